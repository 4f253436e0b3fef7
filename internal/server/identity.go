package server

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// DefaultVirtualDirectory is the path prefix under which content is served.
const DefaultVirtualDirectory = "/content"

// udnPrefix starts every UDN.
const udnPrefix = "uuid:"

// Identity is the device's network identity. Fields derived from the bound
// port are empty before Start and fixed until Stop.
type Identity struct {
	UDN              string
	BindAddress      string
	BoundPort        int
	VirtualDirectory string
	VirtualURL       string
	DescriptionURL   string
	Description      []byte
}

// IdentityStore persists the UDN across restarts.
type IdentityStore interface {
	// LoadUDN returns the stored UDN, or "" when none has been saved.
	LoadUDN(ctx context.Context) (string, error)

	// SaveUDN stores the UDN.
	SaveUDN(ctx context.Context, udn string) error
}

// NewUDN generates a fresh random UDN.
func NewUDN() string {
	return udnPrefix + uuid.NewString()
}

// ValidateUDN checks that udn is "uuid:" followed by a parseable UUID.
func ValidateUDN(udn string) error {
	rest, ok := strings.CutPrefix(udn, udnPrefix)
	if !ok {
		return fmt.Errorf("udn %q must start with %q", udn, udnPrefix)
	}
	if _, err := uuid.Parse(rest); err != nil {
		return fmt.Errorf("udn %q: %w", udn, err)
	}
	return nil
}

// ResolveUDN returns the configured UDN, else the stored one, else a new
// one that is persisted before it is returned.
func ResolveUDN(ctx context.Context, configured string, store IdentityStore) (string, error) {
	if configured != "" {
		if err := ValidateUDN(configured); err != nil {
			return "", err
		}
		return configured, nil
	}

	stored, err := store.LoadUDN(ctx)
	if err != nil {
		return "", fmt.Errorf("loading udn: %w", err)
	}
	if stored != "" {
		if err := ValidateUDN(stored); err != nil {
			return "", fmt.Errorf("stored %w", err)
		}
		return stored, nil
	}

	udn := NewUDN()
	if err := store.SaveUDN(ctx, udn); err != nil {
		return "", fmt.Errorf("saving udn: %w", err)
	}
	return udn, nil
}

// baseURL returns http://address:port with IPv6 addresses bracketed.
func baseURL(address string, port int) string {
	return "http://" + net.JoinHostPort(address, strconv.Itoa(port))
}

// virtualURL joins the base URL and the virtual directory.
func virtualURL(address string, port int, dir string) string {
	return baseURL(address, port) + "/" + strings.Trim(dir, "/")
}
