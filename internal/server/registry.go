package server

import (
	"github.com/graymedia/mediaserver/internal/upnp"
)

// Service is a UPnP service the dispatcher can route to.
//
// ProcessAction and ProcessSubscription are only ever called from inside
// the dispatcher's exclusive section, so implementations need no locking.
// Errors of type *upnp.Error carry UPnP error codes to the reply; any other
// error becomes 501 Action Failed.
type Service interface {
	ID() string
	Type() string
	SCPD() []byte
	State() upnp.Arguments
	ProcessAction(req *upnp.ActionRequest) error
	ProcessSubscription(req *upnp.SubscriptionRequest) error
}

// Kind is the closed set of services this server hosts.
type Kind int

// Service kinds.
const (
	KindContentDirectory Kind = iota + 1
	KindConnectionManager
)

// String returns the service name.
func (k Kind) String() string {
	switch k {
	case KindContentDirectory:
		return "ContentDirectory"
	case KindConnectionManager:
		return "ConnectionManager"
	default:
		return "unknown"
	}
}

// pathName is the short name used in the service's URLs.
func (k Kind) pathName() string {
	switch k {
	case KindContentDirectory:
		return "cds"
	case KindConnectionManager:
		return "cms"
	default:
		return "unknown"
	}
}

// Entry is one registered service.
type Entry struct {
	Kind    Kind
	Service Service
}

// Registry maps service identifiers to the hosted services. Its contents
// are fixed at construction.
type Registry struct {
	byID    map[string]Entry
	entries []Entry
}

// NewRegistry creates the registry holding exactly the ContentDirectory and
// ConnectionManager services.
//
// Parameters:
//   - cds: The ContentDirectory service
//   - cm: The ConnectionManager service
//
// Returns:
//   - *Registry: Immutable registry
func NewRegistry(cds, cm Service) *Registry {
	entries := []Entry{
		{Kind: KindContentDirectory, Service: cds},
		{Kind: KindConnectionManager, Service: cm},
	}
	byID := make(map[string]Entry, len(entries))
	for _, e := range entries {
		byID[e.Service.ID()] = e
	}
	return &Registry{byID: byID, entries: entries}
}

// FindByID returns the service with exactly this identifier.
func (r *Registry) FindByID(serviceID string) (Service, bool) {
	e, ok := r.byID[serviceID]
	if !ok {
		return nil, false
	}
	return e.Service, true
}

// kindOf returns the variant a registered service was installed as.
func (r *Registry) kindOf(svc Service) Kind {
	for _, e := range r.entries {
		if e.Service == svc {
			return e.Kind
		}
	}
	return 0
}

// Entries returns the registered services in fixed order.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}
