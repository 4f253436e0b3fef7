package upnp

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
)

// eventNamespace is the GENA property set namespace.
const eventNamespace = "urn:schemas-upnp-org:event-1-0"

// Translator maps raw transport events to typed requests and writes the
// processed outcome back. The zero value is ready to use.
type Translator struct{}

// TranslateAction converts a raw action event into an ActionRequest.
//
// The body may be a full SOAP envelope or just the action element. The
// action element's children become the ordered input arguments.
//
// Returns:
//   - *ActionRequest: Request ready for dispatch
//   - error: ErrMalformedEvent if the service ID, action name or body is missing
func (Translator) TranslateAction(ev *ActionEvent) (*ActionRequest, error) {
	if ev == nil {
		return nil, fmt.Errorf("%w: nil action event", ErrMalformedEvent)
	}
	if ev.ServiceID == "" {
		return nil, fmt.Errorf("%w: missing service id", ErrMalformedEvent)
	}
	if len(bytes.TrimSpace(ev.Body)) == 0 {
		return nil, fmt.Errorf("%w: missing action body", ErrMalformedEvent)
	}

	name, namespace, args, err := parseActionBody(ev.Body)
	if err != nil {
		return nil, err
	}

	actionName := ev.ActionName
	switch {
	case actionName == "":
		actionName = name
	case name != actionName:
		return nil, fmt.Errorf("%w: body action %q does not match %q", ErrMalformedEvent, name, actionName)
	}

	serviceType := ev.ServiceType
	if serviceType == "" {
		serviceType = namespace
	}

	return &ActionRequest{
		UDN:         ev.UDN,
		ServiceID:   ev.ServiceID,
		ServiceType: serviceType,
		ActionName:  actionName,
		Arguments:   args,
	}, nil
}

// ApplyAction writes the processed request back into the raw event:
// either the response fragment or the error fields.
func (Translator) ApplyAction(req *ActionRequest, ev *ActionEvent) {
	if req.Failed() {
		FailAction(ev, req.ErrorCode, req.ErrorDescription)
		return
	}
	ev.ErrCode = 0
	ev.ErrStr = ""
	ev.Result = renderActionResponse(req)
}

// FailAction sets only the error fields of a raw action event.
func FailAction(ev *ActionEvent, code ErrorCode, description string) {
	if ev == nil {
		return
	}
	if description == "" {
		description = code.String()
	}
	ev.ErrCode = int(code)
	ev.ErrStr = description
	ev.Result = nil
}

// TranslateSubscription converts a raw GENA event into a SubscriptionRequest.
//
// Returns:
//   - *SubscriptionRequest: Request ready for dispatch
//   - error: ErrMalformedEvent if the service ID, SID or kind is missing, or
//     a new subscription has no callback URL
func (Translator) TranslateSubscription(ev *SubscriptionEvent) (*SubscriptionRequest, error) {
	if ev == nil {
		return nil, fmt.Errorf("%w: nil subscription event", ErrMalformedEvent)
	}
	if ev.ServiceID == "" {
		return nil, fmt.Errorf("%w: missing service id", ErrMalformedEvent)
	}
	if ev.SID == "" {
		return nil, fmt.Errorf("%w: missing subscription id", ErrMalformedEvent)
	}

	switch ev.Kind {
	case SubscriptionNew:
		if len(ev.Callbacks) == 0 {
			return nil, fmt.Errorf("%w: subscription without callback", ErrMalformedEvent)
		}
	case SubscriptionRenew, SubscriptionCancel:
	default:
		return nil, fmt.Errorf("%w: unknown subscription kind %d", ErrMalformedEvent, ev.Kind)
	}

	callbacks := make([]string, len(ev.Callbacks))
	copy(callbacks, ev.Callbacks)

	return &SubscriptionRequest{
		UDN:               ev.UDN,
		ServiceID:         ev.ServiceID,
		SID:               ev.SID,
		Kind:              ev.Kind,
		Callbacks:         callbacks,
		RequestedDuration: ev.Timeout,
	}, nil
}

// ApplySubscription writes the processed request back into the raw event.
func (Translator) ApplySubscription(req *SubscriptionRequest, ev *SubscriptionEvent) {
	if req.Rejected {
		FailSubscription(ev, req.RejectReason)
		return
	}
	ev.Accepted = true
	ev.Rejected = false
	ev.RejectReason = ""
	ev.AcceptedTimeout = req.AcceptedDuration
	ev.PropertySet = nil
	ev.InitialSeq = req.InitialSeq
	if len(req.InitialState) > 0 {
		ev.PropertySet = RenderPropertySet(req.InitialState)
	}
}

// FailSubscription marks a raw subscription event rejected.
func FailSubscription(ev *SubscriptionEvent, reason string) {
	if ev == nil {
		return
	}
	ev.Accepted = false
	ev.Rejected = true
	ev.RejectReason = reason
	ev.AcceptedTimeout = 0
	ev.PropertySet = nil
	ev.InitialSeq = 0
}

// RenderPropertySet renders evented variables as a GENA property set.
func RenderPropertySet(vars Arguments) []byte {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	buf.WriteString(`<e:propertyset xmlns:e="` + eventNamespace + `">`)
	for _, v := range vars {
		buf.WriteString("<e:property>")
		writeElement(&buf, v.Name, v.Value)
		buf.WriteString("</e:property>")
	}
	buf.WriteString("</e:propertyset>")
	return buf.Bytes()
}

// renderActionResponse renders <u:ActionResponse> with the ordered results.
func renderActionResponse(req *ActionRequest) []byte {
	var buf bytes.Buffer
	buf.WriteString("<u:" + req.ActionName + "Response")
	if req.ServiceType != "" {
		buf.WriteString(` xmlns:u="`)
		xml.EscapeText(&buf, []byte(req.ServiceType)) //nolint:errcheck // bytes.Buffer writes cannot fail
		buf.WriteString(`"`)
	}
	buf.WriteString(">")
	for _, r := range req.Results {
		writeElement(&buf, r.Name, r.Value)
	}
	buf.WriteString("</u:" + req.ActionName + "Response>")
	return buf.Bytes()
}

// writeElement writes <name>escaped value</name>.
func writeElement(buf *bytes.Buffer, name, value string) {
	buf.WriteString("<" + name + ">")
	xml.EscapeText(buf, []byte(value)) //nolint:errcheck // bytes.Buffer writes cannot fail
	buf.WriteString("</" + name + ">")
}

// parseActionBody finds the action element inside a SOAP envelope (or a
// bare action element) and returns its name, namespace and arguments.
func parseActionBody(body []byte) (name, namespace string, args Arguments, err error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	for {
		tok, tokErr := dec.Token()
		if errors.Is(tokErr, io.EOF) {
			return "", "", nil, fmt.Errorf("%w: no action element in body", ErrMalformedEvent)
		}
		if tokErr != nil {
			return "", "", nil, fmt.Errorf("%w: %w", ErrMalformedEvent, tokErr)
		}

		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch start.Name.Local {
		case "Envelope", "Body":
			continue
		case "Header":
			if skipErr := dec.Skip(); skipErr != nil {
				return "", "", nil, fmt.Errorf("%w: %w", ErrMalformedEvent, skipErr)
			}
			continue
		}

		args, err = readArguments(dec)
		if err != nil {
			return "", "", nil, err
		}
		return start.Name.Local, start.Name.Space, args, nil
	}
}

// readArguments reads the child elements of the action element in order.
func readArguments(dec *xml.Decoder) (Arguments, error) {
	args := Arguments{}
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: reading arguments: %w", ErrMalformedEvent, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			var value string
			if err := dec.DecodeElement(&value, &t); err != nil {
				return nil, fmt.Errorf("%w: argument %s: %w", ErrMalformedEvent, t.Name.Local, err)
			}
			args = append(args, Argument{Name: t.Name.Local, Value: value})
		case xml.EndElement:
			return args, nil
		}
	}
}
