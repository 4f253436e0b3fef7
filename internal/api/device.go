package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/graymedia/mediaserver/internal/audit"
	"github.com/graymedia/mediaserver/internal/eventing"
	"github.com/graymedia/mediaserver/internal/server"
	"github.com/graymedia/mediaserver/internal/telemetry"
)

// DeviceResponse describes the device identity and lifecycle state.
type DeviceResponse struct {
	UDN              string `json:"udn"`
	State            string `json:"state"`
	BindAddress      string `json:"bind_address,omitempty"`
	BoundPort        int    `json:"bound_port,omitempty"`
	VirtualDirectory string `json:"virtual_directory"`
	VirtualURL       string `json:"virtual_url,omitempty"`
	DescriptionURL   string `json:"description_url,omitempty"`
}

// ServiceResponse describes one hosted UPnP service.
type ServiceResponse struct {
	Name        string               `json:"name"`
	ServiceID   string               `json:"service_id"`
	ServiceType string               `json:"service_type"`
	State       map[string]string    `json:"state"`
	Subscribers []SubscriberResponse `json:"subscribers"`
}

// SubscriberResponse describes one GENA subscription.
type SubscriberResponse struct {
	SID       string    `json:"sid"`
	Callbacks []string  `json:"callbacks"`
	Expires   time.Time `json:"expires"`
	NextSeq   uint32    `json:"next_seq"`
}

// subscriberLister is implemented by services that keep a GENA table.
type subscriberLister interface {
	Subscribers() []eventing.Subscriber
}

func (s *Server) handleGetDevice(w http.ResponseWriter, _ *http.Request) {
	id := s.media.Identity()
	writeJSON(w, http.StatusOK, DeviceResponse{
		UDN:              id.UDN,
		State:            s.media.State().String(),
		BindAddress:      id.BindAddress,
		BoundPort:        id.BoundPort,
		VirtualDirectory: id.VirtualDirectory,
		VirtualURL:       id.VirtualURL,
		DescriptionURL:   id.DescriptionURL,
	})
}

// handleGetDescription returns the description document the transport
// serves to control points. It exists only while running.
func (s *Server) handleGetDescription(w http.ResponseWriter, _ *http.Request) {
	desc := s.media.Identity().Description
	if len(desc) == 0 {
		writeNotFound(w, "device is not running")
		return
	}
	w.Header().Set("Content-Type", `text/xml; charset="utf-8"`)
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // client went away
	w.Write(desc)
}

func (s *Server) handleListServices(w http.ResponseWriter, _ *http.Request) {
	services, ok := s.snapshotServices()
	if !ok {
		writeUnavailable(w, "device is not initialized")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"services": services,
		"count":    len(services),
	})
}

// handleGetService matches {name} against the service name
// ("ContentDirectory") or its full service ID.
func (s *Server) handleGetService(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	services, ok := s.snapshotServices()
	if !ok {
		writeUnavailable(w, "device is not initialized")
		return
	}
	for _, svc := range services {
		if strings.EqualFold(svc.Name, name) || svc.ServiceID == name {
			writeJSON(w, http.StatusOK, svc)
			return
		}
	}
	writeNotFound(w, "service not found")
}

// snapshotServices reads every service inside the dispatcher's exclusive
// section so the view is consistent with in-flight events.
func (s *Server) snapshotServices() ([]ServiceResponse, bool) {
	var out []ServiceResponse
	ok := s.media.Inspect(func(reg *server.Registry) {
		for _, e := range reg.Entries() {
			out = append(out, describeService(e))
		}
	})
	return out, ok
}

func describeService(e server.Entry) ServiceResponse {
	resp := ServiceResponse{
		Name:        e.Kind.String(),
		ServiceID:   e.Service.ID(),
		ServiceType: e.Service.Type(),
		State:       make(map[string]string),
		Subscribers: []SubscriberResponse{},
	}
	for _, arg := range e.Service.State() {
		resp.State[arg.Name] = arg.Value
	}
	if lister, ok := e.Service.(subscriberLister); ok {
		for _, sub := range lister.Subscribers() {
			resp.Subscribers = append(resp.Subscribers, SubscriberResponse{
				SID:       sub.SID,
				Callbacks: append([]string(nil), sub.Callbacks...),
				Expires:   sub.Expires,
				NextSeq:   sub.Seq,
			})
		}
	}
	return resp
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	if s.stats == nil {
		writeNotFound(w, "telemetry is not enabled")
		return
	}
	writeJSON(w, http.StatusOK, s.stats.Stats())
}

// channelSnapshot gives a new upnp.lifecycle subscriber the current
// state. Dispatch events have no snapshot.
func (s *Server) channelSnapshot(channel string) (any, bool) {
	if channel != telemetry.ChannelLifecycle {
		return nil, false
	}
	state := s.media.State()
	return telemetry.LifecycleEvent{
		UDN:       s.media.Identity().UDN,
		To:        state.String(),
		Online:    state == server.StateRunning,
		Timestamp: time.Now().UTC(),
	}, true
}

// handleAdvertise sends an alive advertisement immediately.
func (s *Server) handleAdvertise(w http.ResponseWriter, r *http.Request) {
	err := s.media.Advertise()
	switch {
	case err == nil:
		s.recordAudit(r.Context(), audit.ActionAdvertise, claimsFromContext(r.Context()).Subject, nil)
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "advertised"})
	case errors.Is(err, server.ErrInvalidState):
		writeError(w, http.StatusConflict, ErrCodeConflict, "device is not running")
	default:
		s.logger.Warn("on-demand advertisement failed",
			"error", err,
			"request_id", r.Context().Value(ctxKeyRequestID),
		)
		writeError(w, http.StatusBadGateway, ErrCodeUpstreamFailed, "advertisement failed")
	}
}
