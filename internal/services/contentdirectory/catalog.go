package contentdirectory

import (
	"fmt"
	"strconv"
)

// RootID is the object ID of the catalog root container.
const RootID = "0"

// UPnP AV object classes used by the catalog.
const (
	ClassContainer   = "object.container.storageFolder"
	ClassItem        = "object.item"
	ClassAudioItem   = "object.item.audioItem.musicTrack"
	ClassVideoItem   = "object.item.videoItem"
	ClassImageItem   = "object.item.imageItem.photo"
	defaultRootTitle = "Root"
)

// Resource describes how an item's bytes are reachable.
type Resource struct {
	// Path is appended to the server's virtual URL to form the res URL.
	Path string

	// ProtocolInfo is the DLNA protocolInfo string, e.g. "http-get:*:audio/mpeg:*".
	ProtocolInfo string

	// Size in bytes; zero omits the attribute.
	Size int64
}

// Object is a container or item in the catalog.
type Object struct {
	ID       string
	ParentID string
	Title    string
	Class    string

	// Container is true for objects that can hold children.
	Container bool

	// UpdateID changes whenever a child is added to the container.
	UpdateID uint32

	// Resource is set for items only.
	Resource *Resource

	children []string
}

// ChildCount returns the number of direct children.
func (o *Object) ChildCount() int {
	return len(o.children)
}

// Catalog is the in-memory object tree browsed by the ContentDirectory.
//
// A Catalog is not safe for concurrent use. Mutate it during setup or
// through the dispatcher's exclusive section.
type Catalog struct {
	objects        map[string]*Object
	nextID         uint64
	systemUpdateID uint32
}

// NewCatalog creates a catalog holding only the root container.
func NewCatalog() *Catalog {
	root := &Object{
		ID:        RootID,
		ParentID:  "-1",
		Title:     defaultRootTitle,
		Class:     ClassContainer,
		Container: true,
	}
	return &Catalog{
		objects: map[string]*Object{RootID: root},
		nextID:  1,
	}
}

// AddContainer creates a container under parentID.
//
// Returns:
//   - string: ID of the new container
//   - error: ErrObjectNotFound or ErrNotContainer for a bad parent
func (c *Catalog) AddContainer(parentID, title string) (string, error) {
	return c.add(parentID, &Object{
		Title:     title,
		Class:     ClassContainer,
		Container: true,
	})
}

// AddItem creates an item under parentID. An empty class defaults to
// object.item.
//
// Returns:
//   - string: ID of the new item
//   - error: ErrObjectNotFound or ErrNotContainer for a bad parent
func (c *Catalog) AddItem(parentID, title, class string, res Resource) (string, error) {
	if class == "" {
		class = ClassItem
	}
	r := res
	return c.add(parentID, &Object{
		Title:    title,
		Class:    class,
		Resource: &r,
	})
}

func (c *Catalog) add(parentID string, obj *Object) (string, error) {
	parent, ok := c.objects[parentID]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrObjectNotFound, parentID)
	}
	if !parent.Container {
		return "", fmt.Errorf("%w: %s", ErrNotContainer, parentID)
	}

	obj.ID = strconv.FormatUint(c.nextID, 10)
	obj.ParentID = parentID
	c.nextID++

	c.objects[obj.ID] = obj
	parent.children = append(parent.children, obj.ID)
	parent.UpdateID++
	c.systemUpdateID++
	return obj.ID, nil
}

// Object returns the object with the given ID.
func (c *Catalog) Object(id string) (*Object, bool) {
	obj, ok := c.objects[id]
	return obj, ok
}

// Children returns the direct children of id in insertion order.
// Items have no children.
func (c *Catalog) Children(id string) ([]*Object, error) {
	obj, ok := c.objects[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, id)
	}
	out := make([]*Object, 0, len(obj.children))
	for _, childID := range obj.children {
		out = append(out, c.objects[childID])
	}
	return out, nil
}

// SystemUpdateID returns the catalog-wide change counter.
func (c *Catalog) SystemUpdateID() uint32 {
	return c.systemUpdateID
}

// Len returns the number of objects including the root.
func (c *Catalog) Len() int {
	return len(c.objects)
}
