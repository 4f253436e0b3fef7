package transport

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/graymedia/mediaserver/internal/upnp"
)

const (
	soapEnvelopeNS = "http://schemas.xmlsoap.org/soap/envelope/"
	soapEncodingNS = "http://schemas.xmlsoap.org/soap/encoding/"
	controlNS      = "urn:schemas-upnp-org:control-1-0"
)

// soapFault is the body of a UPnP error response.
type soapFault struct {
	XMLName     xml.Name `xml:"s:Fault"`
	FaultCode   string   `xml:"faultcode"`
	FaultString string   `xml:"faultstring"`
	Detail      struct {
		UPnPError struct {
			Xmlns       string `xml:"xmlns,attr"`
			Code        int    `xml:"errorCode"`
			Description string `xml:"errorDescription"`
		} `xml:"UPnPError"`
	} `xml:"detail"`
}

// handleControl receives a SOAP action, dispatches it and writes the
// response envelope or a UPnP fault.
func (t *HTTP) handleControl(w http.ResponseWriter, r *http.Request) {
	dev := t.current()
	if dev == nil {
		http.NotFound(w, r)
		return
	}
	svc, ok := dev.control[r.URL.Path]
	if !ok {
		http.NotFound(w, r)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBodySize))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "reading request body", http.StatusBadRequest)
		return
	}

	serviceType, action := parseSOAPAction(r.Header.Get("SOAPACTION"))
	if serviceType == "" {
		serviceType = svc.ServiceType
	}

	ev := &upnp.ActionEvent{
		UDN:         dev.udn,
		ServiceID:   svc.ServiceId,
		ServiceType: serviceType,
		ActionName:  action,
		Body:        body,
	}
	status := dev.handler(upnp.EventControlActionRequest, ev, nil)

	switch {
	case ev.ErrCode != 0:
		writeFault(w, ev.ErrCode, ev.ErrStr)
	case status == upnp.StatusNotReady:
		http.Error(w, "device not ready", http.StatusServiceUnavailable)
	case status != upnp.StatusOK:
		writeFault(w, int(upnp.ErrorActionFailed), upnp.ErrorActionFailed.String())
	default:
		writeEnvelope(w, http.StatusOK, ev.Result)
	}
}

// parseSOAPAction splits `"urn:...:service:X:1#Action"` into its parts.
func parseSOAPAction(header string) (serviceType, action string) {
	header = strings.Trim(strings.TrimSpace(header), `"`)
	i := strings.LastIndexByte(header, '#')
	if i < 0 {
		return "", ""
	}
	return header[:i], header[i+1:]
}

func writeEnvelope(w http.ResponseWriter, status int, inner []byte) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	buf.WriteString(`<s:Envelope xmlns:s="` + soapEnvelopeNS + `" s:encodingStyle="` + soapEncodingNS + `"><s:Body>`)
	buf.Write(inner)
	buf.WriteString(`</s:Body></s:Envelope>`)

	w.Header().Set("EXT", "")
	writeXML(w, status, buf.Bytes())
}

func writeFault(w http.ResponseWriter, code int, description string) {
	var fault soapFault
	fault.FaultCode = "s:Client"
	fault.FaultString = "UPnPError"
	fault.Detail.UPnPError.Xmlns = controlNS
	fault.Detail.UPnPError.Code = code
	fault.Detail.UPnPError.Description = description

	inner, err := xml.Marshal(fault)
	if err != nil {
		http.Error(w, "UPnP error "+strconv.Itoa(code), http.StatusInternalServerError)
		return
	}
	writeEnvelope(w, http.StatusInternalServerError, inner)
}
