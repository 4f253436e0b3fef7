package telemetry

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/graymedia/mediaserver/internal/server"
)

// WebSocket channels used by Broadcast.
const (
	ChannelDispatch  = "upnp.dispatch"
	ChannelLifecycle = "upnp.lifecycle"
)

// InfluxDB measurements.
const (
	measurementDispatch      = "upnp_dispatch"
	measurementAdvertisement = "ssdp_advertisement"
)

// PointWriter writes one time-series point without blocking.
// Satisfied by *influxdb.Client.
type PointWriter interface {
	WritePoint(measurement string, tags map[string]string, fields map[string]interface{})
}

// Publisher publishes an MQTT message. Satisfied by *mqtt.Client.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Broadcaster pushes a message to WebSocket subscribers of a channel.
// Satisfied by the admin API hub.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// Logger defines the logging interface used by the recorder.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures a Recorder. Only Registerer is required.
type Options struct {
	Registerer prometheus.Registerer

	Points      PointWriter
	Publisher   Publisher
	Broadcaster Broadcaster

	// StatusTopic receives a retained message on every lifecycle change.
	StatusTopic string
	QoS         byte

	UDN    string
	Clock  clock.Clock
	Logger Logger
}

// Stats is a point-in-time summary for the admin API.
type Stats struct {
	Dispatched          uint64    `json:"dispatched"`
	Failed              uint64    `json:"failed"`
	Advertisements      uint64    `json:"advertisements"`
	AdvertisementErrors uint64    `json:"advertisement_errors"`
	LastAdvertisement   time.Time `json:"last_advertisement,omitempty"`
	State               string    `json:"state"`
}

// DispatchEvent is the payload broadcast for each dispatched event.
type DispatchEvent struct {
	Event      string `json:"event"`
	Service    string `json:"service"`
	Operation  string `json:"operation,omitempty"`
	Status     string `json:"status"`
	ErrorCode  int    `json:"error_code,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

// LifecycleEvent is the payload published on state changes.
type LifecycleEvent struct {
	UDN       string    `json:"udn"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Online    bool      `json:"online"`
	Timestamp time.Time `json:"timestamp"`
}

// Recorder implements server.DispatchObserver and server.LifecycleObserver.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Recorder struct {
	opts   Options
	clock  clock.Clock
	logger Logger

	dispatchTotal    *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec
	upnpErrors       *prometheus.CounterVec
	advertisements   *prometheus.CounterVec
	state            prometheus.Gauge

	dispatched   atomic.Uint64
	failed       atomic.Uint64
	adverts      atomic.Uint64
	advertErrors atomic.Uint64
	lastAdvert   atomic.Int64
	currentState atomic.Int32
}

// NewRecorder creates a recorder and registers its collectors.
//
// Parameters:
//   - opts: Sinks and the Prometheus registerer
//
// Returns:
//   - *Recorder: Ready to pass to server.Options
//   - error: If a collector cannot be registered
func NewRecorder(opts Options) (*Recorder, error) {
	if opts.Registerer == nil {
		return nil, ErrNoRegisterer
	}
	r := &Recorder{
		opts:   opts,
		clock:  opts.Clock,
		logger: opts.Logger,
		dispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mediaserver",
			Subsystem: "upnp",
			Name:      "dispatch_total",
			Help:      "UPnP events handled by the dispatcher.",
		}, []string{"event", "service", "status"}),
		dispatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mediaserver",
			Subsystem: "upnp",
			Name:      "dispatch_duration_seconds",
			Help:      "Time spent handling one UPnP event, including the wait for the dispatch lock.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"event"}),
		upnpErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mediaserver",
			Subsystem: "upnp",
			Name:      "errors_total",
			Help:      "UPnP error codes returned to control points.",
		}, []string{"code"}),
		advertisements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mediaserver",
			Subsystem: "ssdp",
			Name:      "advertisements_total",
			Help:      "SSDP alive advertisement rounds.",
		}, []string{"result"}),
		state: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mediaserver",
			Name:      "lifecycle_state",
			Help:      "Server lifecycle state (0 uninitialized, 1 initialized, 2 running, 3 stopped).",
		}),
	}
	if r.clock == nil {
		r.clock = clock.New()
	}
	if r.logger == nil {
		r.logger = noopLogger{}
	}

	for _, c := range []prometheus.Collector{r.dispatchTotal, r.dispatchDuration, r.upnpErrors, r.advertisements, r.state} {
		if err := opts.Registerer.Register(c); err != nil {
			return nil, fmt.Errorf("telemetry: registering collector: %w", err)
		}
	}
	return r, nil
}

// ObserveDispatch records one dispatched event.
func (r *Recorder) ObserveDispatch(rec server.DispatchRecord) {
	event := rec.EventType.String()
	service := rec.Kind.String()
	status := rec.Status.String()

	r.dispatchTotal.WithLabelValues(event, service, status).Inc()
	r.dispatchDuration.WithLabelValues(event).Observe(rec.Duration.Seconds())
	if rec.ErrorCode != 0 {
		r.upnpErrors.WithLabelValues(strconv.Itoa(int(rec.ErrorCode))).Inc()
	}

	r.dispatched.Add(1)
	if rec.Status != 0 {
		r.failed.Add(1)
	}

	if r.opts.Points != nil {
		r.opts.Points.WritePoint(measurementDispatch,
			map[string]string{
				"event":   event,
				"service": service,
				"status":  status,
			},
			map[string]interface{}{
				"duration_ms": float64(rec.Duration.Microseconds()) / 1000,
				"error_code":  int64(rec.ErrorCode),
			},
		)
	}

	if r.opts.Broadcaster != nil {
		r.opts.Broadcaster.Broadcast(ChannelDispatch, DispatchEvent{
			Event:      event,
			Service:    service,
			Operation:  rec.Operation,
			Status:     status,
			ErrorCode:  int(rec.ErrorCode),
			DurationMS: rec.Duration.Milliseconds(),
		})
	}
}

// ObserveLifecycle records a state change and publishes the retained
// status message.
func (r *Recorder) ObserveLifecycle(from, to server.State) {
	r.state.Set(float64(to))
	r.currentState.Store(int32(to))

	ev := LifecycleEvent{
		UDN:       r.opts.UDN,
		From:      from.String(),
		To:        to.String(),
		Online:    to == server.StateRunning,
		Timestamp: r.clock.Now().UTC(),
	}

	if r.opts.Broadcaster != nil {
		r.opts.Broadcaster.Broadcast(ChannelLifecycle, ev)
	}

	if r.opts.Publisher == nil || r.opts.StatusTopic == "" {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		r.logger.Error("encoding lifecycle event", "error", err)
		return
	}
	if err := r.opts.Publisher.Publish(r.opts.StatusTopic, payload, r.opts.QoS, true); err != nil {
		r.logger.Warn("publishing lifecycle status failed",
			"topic", r.opts.StatusTopic,
			"state", ev.To,
			"error", err,
		)
	}
}

// ObserveAdvertisement records one SSDP alive round.
func (r *Recorder) ObserveAdvertisement(err error) {
	result := "ok"
	if err != nil {
		result = "error"
		r.advertErrors.Add(1)
	}
	r.advertisements.WithLabelValues(result).Inc()
	r.adverts.Add(1)
	r.lastAdvert.Store(r.clock.Now().UnixNano())

	if r.opts.Points != nil {
		r.opts.Points.WritePoint(measurementAdvertisement,
			map[string]string{"result": result},
			map[string]interface{}{"count": int64(1)},
		)
	}
}

// Stats returns the current counters.
func (r *Recorder) Stats() Stats {
	s := Stats{
		Dispatched:          r.dispatched.Load(),
		Failed:              r.failed.Load(),
		Advertisements:      r.adverts.Load(),
		AdvertisementErrors: r.advertErrors.Load(),
		State:               server.State(r.currentState.Load()).String(),
	}
	if ns := r.lastAdvert.Load(); ns != 0 {
		s.LastAdvertisement = time.Unix(0, ns).UTC()
	}
	return s
}
