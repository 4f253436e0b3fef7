package transport

import (
	"fmt"
	"net"
)

// DefaultAddress returns the first IPv4 address of an interface that is
// up, not loopback and multicast capable. When iface is set only that
// interface is considered.
func DefaultAddress(iface string) (string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return "", fmt.Errorf("listing interfaces: %w", err)
	}

	for _, ifc := range ifaces {
		if iface != "" && ifc.Name != iface {
			continue
		}
		if ifc.Flags&net.FlagUp == 0 || ifc.Flags&net.FlagLoopback != 0 || ifc.Flags&net.FlagMulticast == 0 {
			continue
		}
		addrs, err := ifc.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipNet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			if ip4 := ipNet.IP.To4(); ip4 != nil && !ip4.IsLinkLocalUnicast() {
				return ip4.String(), nil
			}
		}
	}

	if iface != "" {
		return "", fmt.Errorf("%w on interface %s", ErrNoAddress, iface)
	}
	return "", ErrNoAddress
}
