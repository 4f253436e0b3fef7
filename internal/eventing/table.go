// Package eventing keeps the GENA subscriber table of one UPnP service.
//
// A Table is not safe for concurrent use. It is only touched from inside
// the dispatcher's exclusive section, which already serializes access.
package eventing

import (
	"fmt"
	"sort"
	"time"

	"github.com/benbjohnson/clock"
)

// Default limits applied when Options leaves a field zero.
const (
	DefaultMaxTimeout     = 1800 * time.Second
	DefaultMinTimeout     = 60 * time.Second
	DefaultMaxSubscribers = 128
)

// Subscriber is one active GENA subscription.
type Subscriber struct {
	SID       string
	Callbacks []string
	Expires   time.Time

	// Seq is the event key of the next NOTIFY. The initial event uses 0.
	Seq uint32
}

// Options configures a Table.
type Options struct {
	// MaxTimeout caps accepted durations. Longer and infinite requests are
	// clamped to it.
	MaxTimeout time.Duration

	// MinTimeout is the shortest duration granted. Shorter requests are
	// raised to it.
	MinTimeout time.Duration

	// MaxSubscribers limits concurrent subscriptions.
	MaxSubscribers int

	// Clock supplies the current time. Defaults to the wall clock.
	Clock clock.Clock
}

// Table tracks subscribers of a single service.
type Table struct {
	maxTimeout     time.Duration
	minTimeout     time.Duration
	maxSubscribers int
	clock          clock.Clock
	subs           map[string]*Subscriber
}

// NewTable creates an empty subscriber table.
//
// Parameters:
//   - opts: Limits and clock; zero fields take the package defaults
//
// Returns:
//   - *Table: Empty table ready for Subscribe
func NewTable(opts Options) *Table {
	if opts.MaxTimeout <= 0 {
		opts.MaxTimeout = DefaultMaxTimeout
	}
	if opts.MinTimeout <= 0 {
		opts.MinTimeout = DefaultMinTimeout
	}
	if opts.MinTimeout > opts.MaxTimeout {
		opts.MinTimeout = opts.MaxTimeout
	}
	if opts.MaxSubscribers <= 0 {
		opts.MaxSubscribers = DefaultMaxSubscribers
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	return &Table{
		maxTimeout:     opts.MaxTimeout,
		minTimeout:     opts.MinTimeout,
		maxSubscribers: opts.MaxSubscribers,
		clock:          opts.Clock,
		subs:           make(map[string]*Subscriber),
	}
}

// Clamp returns the duration actually granted for a request.
// Zero (infinite) and anything above the maximum yield the maximum.
func (t *Table) Clamp(requested time.Duration) time.Duration {
	switch {
	case requested <= 0, requested > t.maxTimeout:
		return t.maxTimeout
	case requested < t.minTimeout:
		return t.minTimeout
	default:
		return requested
	}
}

// Subscribe adds a new subscriber.
//
// Parameters:
//   - sid: Subscription identifier chosen by the transport
//   - callbacks: Delivery URLs in preference order
//   - requested: Requested duration, zero for infinite
//
// Returns:
//   - time.Duration: Granted duration after clamping
//   - error: ErrNoCallback, ErrSubscriptionExists or ErrTooManySubscribers
func (t *Table) Subscribe(sid string, callbacks []string, requested time.Duration) (time.Duration, error) {
	t.prune()

	if len(callbacks) == 0 {
		return 0, ErrNoCallback
	}
	if _, ok := t.subs[sid]; ok {
		return 0, fmt.Errorf("%w: %s", ErrSubscriptionExists, sid)
	}
	if len(t.subs) >= t.maxSubscribers {
		return 0, fmt.Errorf("%w: limit %d", ErrTooManySubscribers, t.maxSubscribers)
	}

	granted := t.Clamp(requested)
	cbs := make([]string, len(callbacks))
	copy(cbs, callbacks)
	t.subs[sid] = &Subscriber{
		SID:       sid,
		Callbacks: cbs,
		Expires:   t.clock.Now().Add(granted),
	}
	return granted, nil
}

// Renew extends an existing subscription.
//
// Returns:
//   - time.Duration: Granted duration after clamping
//   - error: ErrUnknownSubscription if the SID is not active
func (t *Table) Renew(sid string, requested time.Duration) (time.Duration, error) {
	t.prune()

	sub, ok := t.subs[sid]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownSubscription, sid)
	}
	granted := t.Clamp(requested)
	sub.Expires = t.clock.Now().Add(granted)
	return granted, nil
}

// Cancel removes a subscription.
// Returns ErrUnknownSubscription if the SID is not active.
func (t *Table) Cancel(sid string) error {
	t.prune()

	if _, ok := t.subs[sid]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSubscription, sid)
	}
	delete(t.subs, sid)
	return nil
}

// Get returns a copy of the active subscriber with the given SID.
func (t *Table) Get(sid string) (Subscriber, bool) {
	t.prune()

	sub, ok := t.subs[sid]
	if !ok {
		return Subscriber{}, false
	}
	out := *sub
	out.Callbacks = append([]string(nil), sub.Callbacks...)
	return out, true
}

// NextSeq returns the event key for the next NOTIFY to sid and advances it.
// The key wraps from the maximum back to 1, never to 0.
func (t *Table) NextSeq(sid string) (uint32, bool) {
	sub, ok := t.subs[sid]
	if !ok {
		return 0, false
	}
	seq := sub.Seq
	sub.Seq++
	if sub.Seq == 0 {
		sub.Seq = 1
	}
	return seq, true
}

// Count returns the number of active subscribers.
func (t *Table) Count() int {
	t.prune()
	return len(t.subs)
}

// Subscribers returns copies of all active subscribers ordered by SID.
func (t *Table) Subscribers() []Subscriber {
	t.prune()

	out := make([]Subscriber, 0, len(t.subs))
	for _, sub := range t.subs {
		s := *sub
		s.Callbacks = append([]string(nil), sub.Callbacks...)
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SID < out[j].SID })
	return out
}

// prune drops subscriptions whose expiry has passed.
func (t *Table) prune() {
	now := t.clock.Now()
	for sid, sub := range t.subs {
		if !now.Before(sub.Expires) {
			delete(t.subs, sid)
		}
	}
}
