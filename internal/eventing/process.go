package eventing

import (
	"fmt"

	"github.com/graymedia/mediaserver/internal/upnp"
)

// Process applies a GENA request to the table and records the outcome on
// req. New subscriptions are accepted with the service's current evented
// state so the transport can send the initial event, whose event key is
// taken from the subscriber here.
//
// Parameters:
//   - req: Translated subscription request
//   - state: Returns the service's evented variables
//
// Returns:
//   - error: The table error when the request was rejected
func (t *Table) Process(req *upnp.SubscriptionRequest, state func() upnp.Arguments) error {
	switch req.Kind {
	case upnp.SubscriptionNew:
		granted, err := t.Subscribe(req.SID, req.Callbacks, req.RequestedDuration)
		if err != nil {
			req.Reject(err.Error())
			return err
		}
		req.Accept(granted, state())
		req.InitialSeq, _ = t.NextSeq(req.SID)

	case upnp.SubscriptionRenew:
		granted, err := t.Renew(req.SID, req.RequestedDuration)
		if err != nil {
			req.Reject(err.Error())
			return err
		}
		req.Accept(granted, nil)

	case upnp.SubscriptionCancel:
		if err := t.Cancel(req.SID); err != nil {
			req.Reject(err.Error())
			return err
		}
		req.Accept(0, nil)

	default:
		err := fmt.Errorf("%w: subscription kind %s", upnp.ErrMalformedEvent, req.Kind)
		req.Reject(err.Error())
		return err
	}
	return nil
}
