// Package contentdirectory implements the UPnP ContentDirectory:1 service
// over an in-memory catalog.
package contentdirectory

import (
	_ "embed"
	"fmt"

	"github.com/huin/goupnp/soap"

	"github.com/graymedia/mediaserver/internal/eventing"
	"github.com/graymedia/mediaserver/internal/upnp"
)

// Service identity as published in the device description.
const (
	ServiceID   = "urn:upnp-org:serviceId:ContentDirectory"
	ServiceType = "urn:schemas-upnp-org:service:ContentDirectory:1"
)

// Browse flags.
const (
	BrowseMetadata       = "BrowseMetadata"
	BrowseDirectChildren = "BrowseDirectChildren"
)

//go:embed scpd.xml
var scpd []byte

// Options configures a Service.
type Options struct {
	// Catalog is the object tree to serve. A nil catalog serves only the root.
	Catalog *Catalog

	// Eventing sets the subscriber table limits.
	Eventing eventing.Options

	// BaseURL returns the server's virtual URL for res elements. It is
	// called per Browse because the URL is only known after bind.
	BaseURL func() string
}

// Service is the ContentDirectory. Not safe for concurrent use; the
// dispatcher serializes all calls.
type Service struct {
	catalog *Catalog
	events  *eventing.Table
	baseURL func() string
}

// New creates a ContentDirectory service.
func New(opts Options) *Service {
	catalog := opts.Catalog
	if catalog == nil {
		catalog = NewCatalog()
	}
	baseURL := opts.BaseURL
	if baseURL == nil {
		baseURL = func() string { return "" }
	}
	return &Service{
		catalog: catalog,
		events:  eventing.NewTable(opts.Eventing),
		baseURL: baseURL,
	}
}

// ID returns the service identifier.
func (s *Service) ID() string { return ServiceID }

// Type returns the service type URN.
func (s *Service) Type() string { return ServiceType }

// SCPD returns the service description document.
func (s *Service) SCPD() []byte { return scpd }

// Catalog returns the served catalog.
func (s *Service) Catalog() *Catalog { return s.catalog }

// Subscribers returns the active GENA subscribers.
func (s *Service) Subscribers() []eventing.Subscriber { return s.events.Subscribers() }

// State returns the evented variables in SCPD order.
func (s *Service) State() upnp.Arguments {
	return upnp.Arguments{
		{Name: "SystemUpdateID", Value: formatUi4(s.catalog.SystemUpdateID())},
		{Name: "ContainerUpdateIDs", Value: ""},
		{Name: "TransferIDs", Value: ""},
	}
}

// ProcessAction executes one control action and fills req.Results.
// Failures are returned as *upnp.Error.
func (s *Service) ProcessAction(req *upnp.ActionRequest) error {
	switch req.ActionName {
	case "Browse":
		return s.browse(req)
	case "GetSystemUpdateID":
		req.SetResult("Id", formatUi4(s.catalog.SystemUpdateID()))
		return nil
	case "GetSearchCapabilities":
		req.SetResult("SearchCaps", "")
		return nil
	case "GetSortCapabilities":
		req.SetResult("SortCaps", "")
		return nil
	default:
		return upnp.NewError(upnp.ErrorInvalidAction, fmt.Sprintf("unknown action %q", req.ActionName))
	}
}

// ProcessSubscription registers, renews or cancels a GENA subscriber.
// A rejected request is marked on req and the cause returned.
func (s *Service) ProcessSubscription(req *upnp.SubscriptionRequest) error {
	return s.events.Process(req, s.State)
}

func (s *Service) browse(req *upnp.ActionRequest) error {
	args, err := requireArgs(req, "ObjectID", "BrowseFlag", "StartingIndex", "RequestedCount")
	if err != nil {
		return err
	}
	start, err := soap.UnmarshalUi4(args["StartingIndex"])
	if err != nil {
		return upnp.NewError(upnp.ErrorInvalidArgs, "StartingIndex: "+err.Error())
	}
	count, err := soap.UnmarshalUi4(args["RequestedCount"])
	if err != nil {
		return upnp.NewError(upnp.ErrorInvalidArgs, "RequestedCount: "+err.Error())
	}

	obj, ok := s.catalog.Object(args["ObjectID"])
	if !ok {
		return upnp.NewError(upnp.ErrorNoSuchObject, "")
	}

	var (
		objects  []*Object
		total    int
		updateID = s.catalog.SystemUpdateID()
	)
	switch args["BrowseFlag"] {
	case BrowseMetadata:
		if start != 0 {
			return upnp.NewError(upnp.ErrorInvalidArgs, "StartingIndex must be 0 for BrowseMetadata")
		}
		objects = []*Object{obj}
		total = 1
	case BrowseDirectChildren:
		children, childErr := s.catalog.Children(obj.ID)
		if childErr != nil {
			return upnp.NewError(upnp.ErrorNoSuchObject, "")
		}
		total = len(children)
		objects = page(children, start, count)
		if obj.Container {
			updateID = obj.UpdateID
		}
	default:
		return upnp.NewError(upnp.ErrorInvalidArgs, fmt.Sprintf("BrowseFlag %q", args["BrowseFlag"]))
	}

	result, err := renderDIDL(objects, s.baseURL())
	if err != nil {
		return upnp.NewError(upnp.ErrorCannotProcess, err.Error())
	}

	req.SetResult("Result", result)
	req.SetResult("NumberReturned", formatUi4(uint32(len(objects))))
	req.SetResult("TotalMatches", formatUi4(uint32(total)))
	req.SetResult("UpdateID", formatUi4(updateID))
	return nil
}

// page applies StartingIndex and RequestedCount. A count of zero means all.
func page(objects []*Object, start, count uint32) []*Object {
	if int(start) >= len(objects) {
		return nil
	}
	end := len(objects)
	if count > 0 && int(start)+int(count) < end {
		end = int(start) + int(count)
	}
	return objects[start:end]
}

// requireArgs fetches the named input arguments or fails with 402.
func requireArgs(req *upnp.ActionRequest, names ...string) (map[string]string, error) {
	out := make(map[string]string, len(names))
	for _, name := range names {
		v, ok := req.Arg(name)
		if !ok {
			return nil, upnp.NewError(upnp.ErrorInvalidArgs, "missing argument "+name)
		}
		out[name] = v
	}
	return out, nil
}

func formatUi4(v uint32) string {
	s, err := soap.MarshalUi4(v)
	if err != nil {
		return "0"
	}
	return s
}
