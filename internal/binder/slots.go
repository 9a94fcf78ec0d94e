package binder

import (
	"errors"
	"fmt"

	"github.com/hackclub/mediafield/internal/dom"
	"golang.org/x/net/html"
)

// ErrMissingElement means a slot had to be created but the markup it hangs
// off is not on the page.
var ErrMissingElement = errors.New("missing element")

// Role names a singleton element the binder keeps in sync with the last
// upload.
type Role int

const (
	RolePreview Role = iota
	RoleURLField
)

func (r Role) String() string {
	switch r {
	case RolePreview:
		return "preview"
	case RoleURLField:
		return "url_field"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// Slot holds one value.
type Slot interface {
	Set(value string)
}

// Slots is a keyed store of singleton elements. Find returns nil when the
// role has no element yet. Prepare reports whether Create would succeed
// without creating anything.
type Slots interface {
	Find(role Role) Slot
	Prepare(role Role) error
	Create(role Role) (Slot, error)
}

// Upsert writes value into every role, creating missing slots. All missing
// slots are checked before anything is written, so a failure leaves the
// store untouched. It returns the roles that were created.
func Upsert(s Slots, value string, roles ...Role) ([]Role, error) {
	found := make([]Slot, len(roles))
	for i, role := range roles {
		if found[i] = s.Find(role); found[i] == nil {
			if err := s.Prepare(role); err != nil {
				return nil, fmt.Errorf("cannot create %s: %w", role, err)
			}
		}
	}

	var created []Role
	for i, role := range roles {
		slot := found[i]
		if slot == nil {
			var err error
			if slot, err = s.Create(role); err != nil {
				return created, fmt.Errorf("failed to create %s: %w", role, err)
			}
			created = append(created, role)
		}
		slot.Set(value)
	}
	return created, nil
}

// DocumentSlots keeps the preview image and the hidden URL field of an HTML
// form.
type DocumentSlots struct {
	doc *dom.Document
}

func NewDocumentSlots(doc *dom.Document) *DocumentSlots {
	return &DocumentSlots{doc: doc}
}

type attrSlot struct {
	node *html.Node
	attr string
}

func (s attrSlot) Set(value string) {
	dom.SetAttr(s.node, s.attr, value)
}

func (s *DocumentSlots) Find(role Role) Slot {
	switch role {
	case RolePreview:
		if n := s.doc.First(previewSel); n != nil {
			return attrSlot{node: n, attr: "src"}
		}
	case RoleURLField:
		if n := s.doc.First(urlFieldSel); n != nil {
			return attrSlot{node: n, attr: "value"}
		}
	}
	return nil
}

func (s *DocumentSlots) Prepare(role Role) error {
	_, err := s.parent(role)
	return err
}

func (s *DocumentSlots) Create(role Role) (Slot, error) {
	parent, err := s.parent(role)
	if err != nil {
		return nil, err
	}

	switch role {
	case RolePreview:
		img := s.doc.CreateElement("img")
		dom.AddClass(img, PreviewClass)
		parent.AppendChild(img)
		return attrSlot{node: img, attr: "src"}, nil
	default:
		input := s.doc.CreateElement("input")
		dom.SetAttr(input, "type", "hidden")
		dom.SetAttr(input, "name", URLFieldName)
		parent.AppendChild(input)
		return attrSlot{node: input, attr: "value"}, nil
	}
}

// parent finds where a new element for role is appended: the preview goes
// into the current-file container, the hidden field next to the file input.
func (s *DocumentSlots) parent(role Role) (*html.Node, error) {
	switch role {
	case RolePreview:
		container := s.doc.First(containerSel)
		if container == nil {
			return nil, fmt.Errorf("%w: %s", ErrMissingElement, ContainerSelector)
		}
		return container, nil
	case RoleURLField:
		input := s.doc.First(fileInputSel)
		if input == nil || input.Parent == nil {
			return nil, fmt.Errorf("%w: %s", ErrMissingElement, FileInputSelector)
		}
		return input.Parent, nil
	default:
		return nil, fmt.Errorf("unknown role %s", role)
	}
}

// MemorySlots is an in-memory Slots used where no document is involved.
type MemorySlots struct {
	Values map[Role]string
	// Unavailable roles fail Prepare and Create with the given error.
	Unavailable map[Role]error
	Creates     map[Role]int
}

func NewMemorySlots() *MemorySlots {
	return &MemorySlots{
		Values:      make(map[Role]string),
		Unavailable: make(map[Role]error),
		Creates:     make(map[Role]int),
	}
}

type memorySlot struct {
	store *MemorySlots
	role  Role
}

func (s memorySlot) Set(value string) {
	s.store.Values[s.role] = value
}

func (m *MemorySlots) Find(role Role) Slot {
	if _, ok := m.Values[role]; !ok {
		return nil
	}
	return memorySlot{store: m, role: role}
}

func (m *MemorySlots) Prepare(role Role) error {
	return m.Unavailable[role]
}

func (m *MemorySlots) Create(role Role) (Slot, error) {
	if err := m.Prepare(role); err != nil {
		return nil, err
	}
	m.Creates[role]++
	m.Values[role] = ""
	return memorySlot{store: m, role: role}, nil
}
