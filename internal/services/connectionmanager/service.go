// Package connectionmanager implements the UPnP ConnectionManager:1 service
// for a media server that only offers the default connection.
package connectionmanager

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/huin/goupnp/soap"

	"github.com/graymedia/mediaserver/internal/eventing"
	"github.com/graymedia/mediaserver/internal/upnp"
)

// Service identity as published in the device description.
const (
	ServiceID   = "urn:upnp-org:serviceId:ConnectionManager"
	ServiceType = "urn:schemas-upnp-org:service:ConnectionManager:1"
)

// DefaultConnectionID is the only connection a pull-mode server exposes.
const DefaultConnectionID int32 = 0

//go:embed scpd.xml
var scpd []byte

// Options configures a Service.
type Options struct {
	// ProtocolInfo lists the source protocolInfo entries,
	// e.g. "http-get:*:audio/mpeg:*".
	ProtocolInfo []string

	// Eventing sets the subscriber table limits.
	Eventing eventing.Options
}

// Service is the ConnectionManager. Not safe for concurrent use.
type Service struct {
	source string
	events *eventing.Table
}

// New creates a ConnectionManager service.
func New(opts Options) *Service {
	entries := make([]string, 0, len(opts.ProtocolInfo))
	for _, p := range opts.ProtocolInfo {
		if p = strings.TrimSpace(p); p != "" {
			entries = append(entries, p)
		}
	}
	return &Service{
		source: strings.Join(entries, ","),
		events: eventing.NewTable(opts.Eventing),
	}
}

// ID returns the service identifier.
func (s *Service) ID() string { return ServiceID }

// Type returns the service type URN.
func (s *Service) Type() string { return ServiceType }

// SCPD returns the service description document.
func (s *Service) SCPD() []byte { return scpd }

// Subscribers returns the active GENA subscribers.
func (s *Service) Subscribers() []eventing.Subscriber { return s.events.Subscribers() }

// State returns the evented variables in SCPD order.
func (s *Service) State() upnp.Arguments {
	return upnp.Arguments{
		{Name: "SourceProtocolInfo", Value: s.source},
		{Name: "SinkProtocolInfo", Value: ""},
		{Name: "CurrentConnectionIDs", Value: mustI4(DefaultConnectionID)},
	}
}

// ProcessAction executes one control action and fills req.Results.
func (s *Service) ProcessAction(req *upnp.ActionRequest) error {
	switch req.ActionName {
	case "GetProtocolInfo":
		req.SetResult("Source", s.source)
		req.SetResult("Sink", "")
		return nil
	case "GetCurrentConnectionIDs":
		req.SetResult("ConnectionIDs", mustI4(DefaultConnectionID))
		return nil
	case "GetCurrentConnectionInfo":
		return s.connectionInfo(req)
	default:
		return upnp.NewError(upnp.ErrorInvalidAction, fmt.Sprintf("unknown action %q", req.ActionName))
	}
}

// ProcessSubscription registers, renews or cancels a GENA subscriber.
func (s *Service) ProcessSubscription(req *upnp.SubscriptionRequest) error {
	return s.events.Process(req, s.State)
}

func (s *Service) connectionInfo(req *upnp.ActionRequest) error {
	raw, ok := req.Arg("ConnectionID")
	if !ok {
		return upnp.NewError(upnp.ErrorInvalidArgs, "missing argument ConnectionID")
	}
	id, err := soap.UnmarshalI4(strings.TrimSpace(raw))
	if err != nil {
		return upnp.NewError(upnp.ErrorInvalidArgs, "ConnectionID: "+err.Error())
	}
	if id != DefaultConnectionID {
		return upnp.NewError(upnp.ErrorInvalidConnectionReference, "")
	}

	req.SetResult("RcsID", mustI4(-1))
	req.SetResult("AVTransportID", mustI4(-1))
	req.SetResult("ProtocolInfo", "")
	req.SetResult("PeerConnectionManager", "")
	req.SetResult("PeerConnectionID", mustI4(-1))
	req.SetResult("Direction", "Output")
	req.SetResult("Status", "OK")
	return nil
}

func mustI4(v int32) string {
	s, err := soap.MarshalI4(v)
	if err != nil {
		return "0"
	}
	return s
}
