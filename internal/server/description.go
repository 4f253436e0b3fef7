package server

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"net/url"

	"github.com/huin/goupnp"
)

// DeviceType is the UPnP device type this server publishes.
const DeviceType = "urn:schemas-upnp-org:device:MediaServer:1"

const deviceNamespace = "urn:schemas-upnp-org:device-1-0"

// DeviceInfo holds the static fields of the device description.
type DeviceInfo struct {
	FriendlyName     string
	Manufacturer     string
	ManufacturerURL  string
	ModelDescription string
	ModelName        string
	ModelNumber      string
	ModelURL         string
	SerialNumber     string
	PresentationURL  string
}

// SCPDPath returns the URL path of a service's description.
func SCPDPath(k Kind) string { return "/upnp/scpd/" + k.pathName() + ".xml" }

// ControlPath returns the URL path SOAP actions are posted to.
func ControlPath(k Kind) string { return "/upnp/control/" + k.pathName() }

// EventPath returns the URL path GENA requests are sent to.
func EventPath(k Kind) string { return "/upnp/event/" + k.pathName() }

// BuildDescription renders the root device description document.
//
// Parameters:
//   - info: Static device fields
//   - udn: Device UDN
//   - base: Base URL of the bound transport, e.g. http://10.0.0.2:49152
//   - entries: Hosted services in publication order
//
// Returns:
//   - []byte: The description document
//   - error: If base is not a URL or encoding fails
func BuildDescription(info DeviceInfo, udn, base string, entries []Entry) ([]byte, error) {
	u, err := url.Parse(base + "/")
	if err != nil {
		return nil, fmt.Errorf("parsing base url: %w", err)
	}

	root := goupnp.RootDevice{
		SpecVersion: goupnp.SpecVersion{Major: 1, Minor: 0},
		Device: goupnp.Device{
			DeviceType:       DeviceType,
			FriendlyName:     info.FriendlyName,
			Manufacturer:     info.Manufacturer,
			ManufacturerURL:  goupnp.URLField{Str: info.ManufacturerURL},
			ModelDescription: info.ModelDescription,
			ModelName:        info.ModelName,
			ModelNumber:      info.ModelNumber,
			ModelURL:         goupnp.URLField{Str: info.ModelURL},
			SerialNumber:     info.SerialNumber,
			UDN:              udn,
			PresentationURL:  goupnp.URLField{Str: info.PresentationURL},
		},
	}
	for _, e := range entries {
		root.Device.Services = append(root.Device.Services, goupnp.Service{
			ServiceType: e.Service.Type(),
			ServiceId:   e.Service.ID(),
			SCPDURL:     goupnp.URLField{Str: SCPDPath(e.Kind)},
			ControlURL:  goupnp.URLField{Str: ControlPath(e.Kind)},
			EventSubURL: goupnp.URLField{Str: EventPath(e.Kind)},
		})
	}
	root.SetURLBase(u)

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	start := xml.StartElement{
		Name: xml.Name{Local: "root"},
		Attr: []xml.Attr{{Name: xml.Name{Local: "xmlns"}, Value: deviceNamespace}},
	}
	if err := enc.EncodeElement(root, start); err != nil {
		return nil, fmt.Errorf("encoding description: %w", err)
	}
	if err := enc.Flush(); err != nil {
		return nil, fmt.Errorf("encoding description: %w", err)
	}
	return buf.Bytes(), nil
}

// scpdDocuments maps each service's SCPD path to its document.
func scpdDocuments(entries []Entry) map[string][]byte {
	docs := make(map[string][]byte, len(entries))
	for _, e := range entries {
		docs[SCPDPath(e.Kind)] = e.Service.SCPD()
	}
	return docs
}
