package transport

import (
	"fmt"

	"github.com/koron/go-ssdp"
)

// rootDeviceST is the search target every root device answers to.
const rootDeviceST = "upnp:rootdevice"

// Advertiser announces one SSDP notification target.
type Advertiser interface {
	Alive() error
	Bye() error
	Close() error
}

// AdvertiserFactory creates an Advertiser for one search target.
type AdvertiserFactory func(st, usn, location, server string, maxAge int) (Advertiser, error)

// multicastAdvertiser uses go-ssdp on the standard multicast group. The
// returned advertiser also answers matching M-SEARCH requests.
func multicastAdvertiser(st, usn, location, server string, maxAge int) (Advertiser, error) {
	adv, err := ssdp.Advertise(st, usn, location, server, maxAge)
	if err != nil {
		return nil, err
	}
	return adv, nil
}

// ssdpTarget is one (ST, USN) pair the device announces.
type ssdpTarget struct {
	st  string
	usn string
}

// ssdpTargets lists the notifications UPnP requires for a root device
// hosting the given service types.
func ssdpTargets(udn, deviceType string, serviceTypes []string) []ssdpTarget {
	targets := []ssdpTarget{
		{st: rootDeviceST, usn: udn + "::" + rootDeviceST},
		{st: udn, usn: udn},
		{st: deviceType, usn: udn + "::" + deviceType},
	}
	seen := make(map[string]bool, len(serviceTypes))
	for _, st := range serviceTypes {
		if seen[st] {
			continue
		}
		seen[st] = true
		targets = append(targets, ssdpTarget{st: st, usn: udn + "::" + st})
	}
	return targets
}

// advertiserSet is the group of advertisers for one device.
type advertiserSet []Advertiser

func newAdvertiserSet(factory AdvertiserFactory, targets []ssdpTarget, location, server string, maxAge int) (advertiserSet, error) {
	set := make(advertiserSet, 0, len(targets))
	for _, t := range targets {
		adv, err := factory(t.st, t.usn, location, server, maxAge)
		if err != nil {
			set.close() //nolint:errcheck // already failing
			return nil, fmt.Errorf("advertising %s: %w", t.st, err)
		}
		set = append(set, adv)
	}
	return set, nil
}

func (s advertiserSet) alive() error {
	for _, adv := range s {
		if err := adv.Alive(); err != nil {
			return err
		}
	}
	return nil
}

// byeAndClose sends ssdp:byebye for every target, then releases sockets.
// The first error is returned after all advertisers are closed.
func (s advertiserSet) byeAndClose() error {
	var first error
	for _, adv := range s {
		if err := adv.Bye(); err != nil && first == nil {
			first = err
		}
	}
	if err := s.close(); err != nil && first == nil {
		first = err
	}
	return first
}

func (s advertiserSet) close() error {
	var first error
	for _, adv := range s {
		if err := adv.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
