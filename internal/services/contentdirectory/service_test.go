package contentdirectory

import (
	"encoding/xml"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/graymedia/mediaserver/internal/upnp"
)

// newTestService builds:
//
//	0 Root
//	└── 1 Music
//	    ├── 2 Track A
//	    ├── 3 Track B
//	    └── 4 Track C
func newTestService(t *testing.T) *Service {
	t.Helper()
	catalog := NewCatalog()
	music, err := catalog.AddContainer(RootID, "Music")
	if err != nil {
		t.Fatalf("AddContainer() error = %v", err)
	}
	for _, title := range []string{"Track A", "Track B", "Track C"} {
		if _, err := catalog.AddItem(music, title, ClassAudioItem, Resource{
			ProtocolInfo: "http-get:*:audio/mpeg:*",
			Size:         1024,
		}); err != nil {
			t.Fatalf("AddItem() error = %v", err)
		}
	}
	return New(Options{
		Catalog: catalog,
		BaseURL: func() string { return "http://192.168.1.10:49152/content" },
	})
}

func browseRequest(objectID, flag, start, count string) *upnp.ActionRequest {
	return &upnp.ActionRequest{
		ServiceID:  ServiceID,
		ActionName: "Browse",
		Arguments: upnp.Arguments{
			{Name: "ObjectID", Value: objectID},
			{Name: "BrowseFlag", Value: flag},
			{Name: "Filter", Value: "*"},
			{Name: "StartingIndex", Value: start},
			{Name: "RequestedCount", Value: count},
			{Name: "SortCriteria", Value: ""},
		},
	}
}

type parsedDIDL struct {
	Containers []struct {
		ID         string `xml:"id,attr"`
		ChildCount string `xml:"childCount,attr"`
		Title      string `xml:"title"`
	} `xml:"container"`
	Items []struct {
		ID    string `xml:"id,attr"`
		Title string `xml:"title"`
		Res   struct {
			ProtocolInfo string `xml:"protocolInfo,attr"`
			Size         string `xml:"size,attr"`
			URL          string `xml:",chardata"`
		} `xml:"res"`
	} `xml:"item"`
}

func TestBrowse(t *testing.T) {
	svc := newTestService(t)

	tests := []struct {
		name           string
		req            *upnp.ActionRequest
		wantReturned   string
		wantTotal      string
		wantContainers int
		wantItems      int
	}{
		{"root metadata", browseRequest("0", BrowseMetadata, "0", "0"), "1", "1", 1, 0},
		{"root children", browseRequest("0", BrowseDirectChildren, "0", "0"), "1", "1", 1, 0},
		{"all tracks", browseRequest("1", BrowseDirectChildren, "0", "0"), "3", "3", 0, 3},
		{"paged tracks", browseRequest("1", BrowseDirectChildren, "1", "1"), "1", "3", 0, 1},
		{"start past end", browseRequest("1", BrowseDirectChildren, "5", "10"), "0", "3", 0, 0},
		{"item metadata", browseRequest("2", BrowseMetadata, "0", "1"), "1", "1", 0, 1},
		{"item children", browseRequest("2", BrowseDirectChildren, "0", "0"), "0", "0", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := svc.ProcessAction(tt.req); err != nil {
				t.Fatalf("ProcessAction() error = %v", err)
			}
			if got, _ := tt.req.Results.Get("NumberReturned"); got != tt.wantReturned {
				t.Errorf("NumberReturned = %s, want %s", got, tt.wantReturned)
			}
			if got, _ := tt.req.Results.Get("TotalMatches"); got != tt.wantTotal {
				t.Errorf("TotalMatches = %s, want %s", got, tt.wantTotal)
			}

			result, _ := tt.req.Results.Get("Result")
			var doc parsedDIDL
			if err := xml.Unmarshal([]byte(result), &doc); err != nil {
				t.Fatalf("Result is not valid DIDL-Lite: %v\n%s", err, result)
			}
			if len(doc.Containers) != tt.wantContainers || len(doc.Items) != tt.wantItems {
				t.Errorf("containers=%d items=%d, want %d/%d", len(doc.Containers), len(doc.Items), tt.wantContainers, tt.wantItems)
			}
		})
	}
}

func TestBrowseRendersResources(t *testing.T) {
	svc := newTestService(t)
	req := browseRequest("1", BrowseDirectChildren, "0", "1")
	if err := svc.ProcessAction(req); err != nil {
		t.Fatalf("ProcessAction() error = %v", err)
	}

	result, _ := req.Results.Get("Result")
	if !strings.HasPrefix(result, `<DIDL-Lite xmlns="urn:schemas-upnp-org:metadata-1-0/DIDL-Lite/"`) {
		t.Errorf("Result root = %.80s", result)
	}
	if !strings.Contains(result, "<dc:title>Track A</dc:title>") {
		t.Errorf("Result missing dc:title: %s", result)
	}

	var doc parsedDIDL
	if err := xml.Unmarshal([]byte(result), &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	res := doc.Items[0].Res
	if res.URL != "http://192.168.1.10:49152/content/media/2" {
		t.Errorf("res URL = %q", res.URL)
	}
	if res.ProtocolInfo != "http-get:*:audio/mpeg:*" || res.Size != "1024" {
		t.Errorf("res attrs = %+v", res)
	}
	if got, _ := req.Results.Get("UpdateID"); got != "3" {
		t.Errorf("UpdateID = %s, want container update id 3", got)
	}
}

func TestBrowseChildrenOfItem(t *testing.T) {
	svc := newTestService(t)
	req := browseRequest("2", BrowseDirectChildren, "0", "0")
	if err := svc.ProcessAction(req); err != nil {
		t.Fatalf("ProcessAction() error = %v", err)
	}

	for _, name := range []string{"NumberReturned", "TotalMatches"} {
		if got, _ := req.Results.Get(name); got != "0" {
			t.Errorf("%s = %s, want 0", name, got)
		}
	}
	var doc parsedDIDL
	result, _ := req.Results.Get("Result")
	if err := xml.Unmarshal([]byte(result), &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(doc.Containers)+len(doc.Items) != 0 {
		t.Errorf("Result = %s, want empty DIDL-Lite", result)
	}
}

func TestBrowseErrors(t *testing.T) {
	svc := newTestService(t)

	tests := []struct {
		name string
		req  *upnp.ActionRequest
		want upnp.ErrorCode
	}{
		{"unknown object", browseRequest("99", BrowseMetadata, "0", "0"), upnp.ErrorNoSuchObject},
		{"bad flag", browseRequest("0", "BrowseEverything", "0", "0"), upnp.ErrorInvalidArgs},
		{"bad index", browseRequest("0", BrowseDirectChildren, "-1", "0"), upnp.ErrorInvalidArgs},
		{"bad count", browseRequest("0", BrowseDirectChildren, "0", "many"), upnp.ErrorInvalidArgs},
		{"metadata with offset", browseRequest("0", BrowseMetadata, "1", "0"), upnp.ErrorInvalidArgs},
		{"missing args", &upnp.ActionRequest{ActionName: "Browse"}, upnp.ErrorInvalidArgs},
		{"unknown action", &upnp.ActionRequest{ActionName: "Search"}, upnp.ErrorInvalidAction},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.ProcessAction(tt.req)
			var upnpErr *upnp.Error
			if !errors.As(err, &upnpErr) {
				t.Fatalf("ProcessAction() error = %v, want *upnp.Error", err)
			}
			if upnpErr.Code != tt.want {
				t.Errorf("code = %d, want %d", upnpErr.Code, tt.want)
			}
		})
	}
}

func TestSimpleActions(t *testing.T) {
	svc := newTestService(t)

	tests := []struct {
		action string
		result string
		want   string
	}{
		{"GetSystemUpdateID", "Id", "4"},
		{"GetSearchCapabilities", "SearchCaps", ""},
		{"GetSortCapabilities", "SortCaps", ""},
	}
	for _, tt := range tests {
		t.Run(tt.action, func(t *testing.T) {
			req := &upnp.ActionRequest{ActionName: tt.action}
			if err := svc.ProcessAction(req); err != nil {
				t.Fatalf("ProcessAction() error = %v", err)
			}
			got, ok := req.Results.Get(tt.result)
			if !ok || got != tt.want {
				t.Errorf("%s = %q, %v; want %q", tt.result, got, ok, tt.want)
			}
		})
	}
}

func TestProcessSubscription(t *testing.T) {
	svc := newTestService(t)

	req := &upnp.SubscriptionRequest{
		SID:               "uuid:sub-1",
		Kind:              upnp.SubscriptionNew,
		Callbacks:         []string{"http://10.0.0.5:1234/notify"},
		RequestedDuration: 0,
	}
	if err := svc.ProcessSubscription(req); err != nil {
		t.Fatalf("ProcessSubscription() error = %v", err)
	}
	if req.AcceptedDuration != 1800*time.Second {
		t.Errorf("AcceptedDuration = %v, want 1800s for infinite request", req.AcceptedDuration)
	}
	names := make([]string, 0, len(req.InitialState))
	for _, v := range req.InitialState {
		names = append(names, v.Name)
	}
	if strings.Join(names, ",") != "SystemUpdateID,ContainerUpdateIDs,TransferIDs" {
		t.Errorf("InitialState names = %v", names)
	}
	if len(svc.Subscribers()) != 1 {
		t.Errorf("Subscribers() = %d", len(svc.Subscribers()))
	}
}

func TestCatalogAddErrors(t *testing.T) {
	c := NewCatalog()
	if _, err := c.AddContainer("missing", "x"); !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("AddContainer(missing) error = %v", err)
	}
	item, err := c.AddItem(RootID, "song", "", Resource{})
	if err != nil {
		t.Fatalf("AddItem() error = %v", err)
	}
	if obj, _ := c.Object(item); obj.Class != ClassItem {
		t.Errorf("default class = %q", obj.Class)
	}
	if _, err := c.AddItem(item, "nested", "", Resource{}); !errors.Is(err, ErrNotContainer) {
		t.Errorf("AddItem(under item) error = %v", err)
	}
	if c.SystemUpdateID() != 1 || c.Len() != 2 {
		t.Errorf("SystemUpdateID=%d Len=%d", c.SystemUpdateID(), c.Len())
	}
}
