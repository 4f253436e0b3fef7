// Package upnp defines the typed requests, raw transport events and UPnP
// error codes shared by the dispatch layer, the services and the transport.
//
// The transport hands the dispatcher a raw event (ActionEvent or
// SubscriptionEvent) together with an EventType. The Translator converts the
// raw event into an ActionRequest or SubscriptionRequest, the owning service
// mutates that request exactly once, and the Translator writes the outcome
// back into the raw event for the transport to render.
//
// # Error Codes
//
// Services report failures as *Error values carrying a UPnP error code:
//
//	return upnp.NewError(upnp.ErrorNoSuchObject, "no such object")
//
// Any other error returned by a service is reported as 501 Action Failed.
//
// Thread Safety:
//   - Requests and raw events are single-use and owned by one dispatch call.
//   - The Translator is stateless and safe for concurrent use.
package upnp
