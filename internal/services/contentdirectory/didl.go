package contentdirectory

import (
	"encoding/xml"
	"net/url"
	"strconv"
	"strings"
)

// DIDL-Lite namespaces.
const (
	didlNamespace = "urn:schemas-upnp-org:metadata-1-0/DIDL-Lite/"
	dcNamespace   = "http://purl.org/dc/elements/1.1/"
	upnpNamespace = "urn:schemas-upnp-org:metadata-1-0/upnp/"
)

type didlLite struct {
	XMLName   xml.Name     `xml:"DIDL-Lite"`
	Xmlns     string       `xml:"xmlns,attr"`
	XmlnsDC   string       `xml:"xmlns:dc,attr"`
	XmlnsUPnP string       `xml:"xmlns:upnp,attr"`
	Objects   []didlObject `xml:"object"`
}

// didlObject marshals as <container> or <item> depending on XMLName.
type didlObject struct {
	XMLName    xml.Name
	ID         string    `xml:"id,attr"`
	ParentID   string    `xml:"parentID,attr"`
	Restricted string    `xml:"restricted,attr"`
	ChildCount *int      `xml:"childCount,attr,omitempty"`
	Title      string    `xml:"dc:title"`
	Class      string    `xml:"upnp:class"`
	Res        []didlRes `xml:"res,omitempty"`
}

type didlRes struct {
	ProtocolInfo string `xml:"protocolInfo,attr"`
	Size         string `xml:"size,attr,omitempty"`
	URL          string `xml:",chardata"`
}

// renderDIDL renders objects as a DIDL-Lite document. baseURL is the
// server's virtual URL; item resources are addressed relative to it.
func renderDIDL(objects []*Object, baseURL string) (string, error) {
	doc := didlLite{
		Xmlns:     didlNamespace,
		XmlnsDC:   dcNamespace,
		XmlnsUPnP: upnpNamespace,
		Objects:   make([]didlObject, 0, len(objects)),
	}
	for _, obj := range objects {
		doc.Objects = append(doc.Objects, toDIDL(obj, baseURL))
	}

	out, err := xml.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func toDIDL(obj *Object, baseURL string) didlObject {
	d := didlObject{
		ID:         obj.ID,
		ParentID:   obj.ParentID,
		Restricted: "1",
		Title:      obj.Title,
		Class:      obj.Class,
	}
	if obj.Container {
		d.XMLName = xml.Name{Local: "container"}
		n := obj.ChildCount()
		d.ChildCount = &n
		return d
	}

	d.XMLName = xml.Name{Local: "item"}
	if obj.Resource != nil {
		res := didlRes{
			ProtocolInfo: obj.Resource.ProtocolInfo,
			URL:          resourceURL(baseURL, obj),
		}
		if obj.Resource.Size > 0 {
			res.Size = strconv.FormatInt(obj.Resource.Size, 10)
		}
		d.Res = []didlRes{res}
	}
	return d
}

// resourceURL joins the virtual URL with the item's resource path, escaping
// each segment. Items without a path are addressed by object ID.
func resourceURL(baseURL string, obj *Object) string {
	segments := []string{"media", obj.ID}
	if p := strings.Trim(obj.Resource.Path, "/"); p != "" {
		segments = strings.Split(p, "/")
	}
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.TrimRight(baseURL, "/") + "/" + strings.Join(segments, "/")
}
