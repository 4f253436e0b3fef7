package transport

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/graymedia/mediaserver/internal/upnp"
)

const genaEventNT = "upnp:event"

// handleSubscribe serves SUBSCRIBE: a new subscription when CALLBACK and
// NT are present, a renewal when SID is present.
func (t *HTTP) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	dev, svcID, ok := t.eventTarget(w, r)
	if !ok {
		return
	}

	sid := r.Header.Get("SID")
	callbackHeader := r.Header.Get("CALLBACK")
	nt := r.Header.Get("NT")

	ev := &upnp.SubscriptionEvent{
		UDN:       dev.udn,
		ServiceID: svcID,
		Timeout:   parseTimeout(r.Header.Get("TIMEOUT")),
	}

	switch {
	case sid != "" && (callbackHeader != "" || nt != ""):
		http.Error(w, "SID cannot be combined with CALLBACK or NT", http.StatusBadRequest)
		return
	case sid != "":
		ev.Kind = upnp.SubscriptionRenew
		ev.SID = sid
	default:
		if nt != genaEventNT {
			http.Error(w, "NT must be "+genaEventNT, http.StatusPreconditionFailed)
			return
		}
		callbacks := parseCallbacks(callbackHeader)
		if len(callbacks) == 0 {
			http.Error(w, "missing or invalid CALLBACK", http.StatusPreconditionFailed)
			return
		}
		ev.Kind = upnp.SubscriptionNew
		ev.SID = "uuid:" + uuid.NewString()
		ev.Callbacks = callbacks
	}

	status := dev.handler(upnp.EventSubscriptionRequest, ev, nil)
	if !ev.Accepted {
		writeSubscriptionFailure(w, ev, status)
		return
	}

	w.Header().Set("SID", ev.SID)
	w.Header().Set("TIMEOUT", formatTimeout(ev.AcceptedTimeout))
	w.Header().Set("Content-Length", "0")
	w.WriteHeader(http.StatusOK)

	if ev.Kind == upnp.SubscriptionNew && len(ev.PropertySet) > 0 {
		t.notifier.send(ev.Callbacks, ev.SID, ev.InitialSeq, ev.PropertySet)
	}
}

// handleUnsubscribe serves UNSUBSCRIBE.
func (t *HTTP) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	dev, svcID, ok := t.eventTarget(w, r)
	if !ok {
		return
	}

	sid := r.Header.Get("SID")
	if sid == "" {
		http.Error(w, "missing SID", http.StatusPreconditionFailed)
		return
	}
	if r.Header.Get("CALLBACK") != "" || r.Header.Get("NT") != "" {
		http.Error(w, "SID cannot be combined with CALLBACK or NT", http.StatusBadRequest)
		return
	}

	ev := &upnp.SubscriptionEvent{
		UDN:       dev.udn,
		ServiceID: svcID,
		SID:       sid,
		Kind:      upnp.SubscriptionCancel,
	}
	status := dev.handler(upnp.EventSubscriptionRequest, ev, nil)
	if !ev.Accepted {
		writeSubscriptionFailure(w, ev, status)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// eventTarget resolves the request path to the service's identifier.
func (t *HTTP) eventTarget(w http.ResponseWriter, r *http.Request) (*device, string, bool) {
	dev := t.current()
	if dev == nil {
		http.NotFound(w, r)
		return nil, "", false
	}
	svc, ok := dev.events[r.URL.Path]
	if !ok {
		http.NotFound(w, r)
		return nil, "", false
	}
	return dev, svc.ServiceId, true
}

// writeSubscriptionFailure maps a rejected subscription to a GENA status.
// Renewals and cancellations of unknown SIDs are 412; a refused new
// subscription is 503.
func writeSubscriptionFailure(w http.ResponseWriter, ev *upnp.SubscriptionEvent, status upnp.Status) {
	code := http.StatusServiceUnavailable
	switch {
	case status == upnp.StatusBadRequest:
		code = http.StatusBadRequest
	case status == upnp.StatusInvalidService:
		code = http.StatusNotFound
	case status == upnp.StatusNotReady:
		code = http.StatusServiceUnavailable
	case ev.Kind == upnp.SubscriptionRenew, ev.Kind == upnp.SubscriptionCancel:
		code = http.StatusPreconditionFailed
	}
	reason := ev.RejectReason
	if reason == "" {
		reason = http.StatusText(code)
	}
	http.Error(w, reason, code)
}

// parseCallbacks extracts the http URLs from "<url1><url2>".
func parseCallbacks(header string) []string {
	var out []string
	for {
		start := strings.IndexByte(header, '<')
		if start < 0 {
			return out
		}
		end := strings.IndexByte(header[start:], '>')
		if end < 0 {
			return out
		}
		raw := header[start+1 : start+end]
		header = header[start+end+1:]

		u, err := url.Parse(raw)
		if err != nil || u.Scheme != "http" || u.Host == "" {
			continue
		}
		out = append(out, raw)
	}
}

// parseTimeout reads "Second-N" or "Second-infinite". Zero means infinite
// or unspecified; the service clamps both.
func parseTimeout(header string) time.Duration {
	v, ok := strings.CutPrefix(strings.TrimSpace(header), "Second-")
	if !ok || strings.EqualFold(v, "infinite") {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}

func formatTimeout(d time.Duration) string {
	if d <= 0 {
		return "Second-infinite"
	}
	return fmt.Sprintf("Second-%d", int(d/time.Second))
}

// notifier delivers GENA NOTIFY messages.
type notifier struct {
	client *http.Client
	server string
	logger Logger
	wg     sync.WaitGroup
}

func newNotifier(timeout time.Duration, server string, logger Logger) *notifier {
	return &notifier{
		client: &http.Client{Timeout: timeout},
		server: server,
		logger: logger,
	}
}

// send delivers body asynchronously to the first callback that accepts it.
func (n *notifier) send(callbacks []string, sid string, seq uint32, body []byte) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		for _, cb := range callbacks {
			err := n.deliver(cb, sid, seq, body)
			if err == nil {
				return
			}
			n.logger.Debug("event delivery failed", "callback", cb, "sid", sid, "error", err)
		}
		n.logger.Warn("event not delivered to any callback", "sid", sid, "seq", seq)
	}()
}

func (n *notifier) deliver(callback, sid string, seq uint32, body []byte) error {
	req, err := http.NewRequestWithContext(context.Background(), methodNotify, callback, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", xmlContentType)
	req.Header.Set("NT", genaEventNT)
	req.Header.Set("NTS", "upnp:propchange")
	req.Header.Set("SID", sid)
	req.Header.Set("SEQ", strconv.FormatUint(uint64(seq), 10))

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close() //nolint:errcheck // body unused
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("callback answered %s", resp.Status)
	}
	return nil
}

// wait blocks until pending deliveries finish.
func (n *notifier) wait() {
	n.wg.Wait()
}
