// Package h5browse contains core domain types and interfaces for browsing
// hierarchical container files (HDF5 and friends) as a lazily materialized tree.
package h5browse

import (
	"fmt"
	"strconv"
	"strings"
)

// ContainerStore defines the navigation capability set the tree engine needs
// from a backing container file. Implementations own the Group/Dataset graph for
// the lifetime of the session and must serialize all of their operations, since
// the underlying format library is not assumed reentrant.
//
// Once Close has been called every method, and every [Object] previously handed
// out, must fail with [ErrInvalidHandle].
type ContainerStore interface {
	// Path returns the location the store was opened from
	Path() string

	// Mode returns the open mode
	Mode() Mode

	// Valid reports whether the store is still open
	Valid() bool

	// Close releases all resources. Safe to call more than once.
	Close() error

	// Resolve looks up an absolute, "/"-rooted path. "/" is the root group.
	Resolve(absPath string) (Object, error)

	// Child returns the named direct child of group
	Child(group Object, name string) (Object, error)

	// ChildNames lists the children of group. Order is stable within one session.
	ChildNames(group Object) ([]string, error)

	// Classify reports whether obj is a Group or a Dataset
	Classify(obj Object) (Kind, error)

	// ShapeAndType returns the dimensions and element type name of a dataset
	ShapeAndType(dataset Object) (Shape, string, error)

	// ChildCount returns the number of direct children without touching grandchildren
	ChildCount(group Object) (int, error)

	// Attributes returns the attribute mapping of obj
	Attributes(obj Object) (map[string]any, error)
}

// StoreOpener opens a container at path. Registered per store type in the
// adapters package.
type StoreOpener func(path string, mode Mode) (ContainerStore, error)

// Object is an opaque live handle to a Group or Dataset. It is only meaningful
// to the store that produced it and only while that store is open.
type Object interface {
	// Name returns the last path segment ("/" for the root group)
	Name() string
	// Path returns the absolute path of the object
	Path() string
}

// Kind classifies a container node
type Kind int

const (
	KindGroup Kind = iota
	KindDataset
)

func (k Kind) String() string {
	switch k {
	case KindGroup:
		return "group"
	case KindDataset:
		return "dataset"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// MarshalYAML renders the kind by name
func (k Kind) MarshalYAML() (any, error) {
	return k.String(), nil
}

// Mode is the open mode of a container file
type Mode int

const (
	ReadOnly Mode = iota
	// ReadWrite only adds a write permission check at open time; the browser never writes.
	ReadWrite
)

func (m Mode) String() string {
	if m == ReadWrite {
		return "rw"
	}
	return "r"
}

// ParseMode accepts "r" (default when empty) and "rw"/"r+"/"a"
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "r", "ro", "read":
		return ReadOnly, nil
	case "rw", "r+", "a", "write":
		return ReadWrite, nil
	default:
		return ReadOnly, fmt.Errorf("unknown open mode: %q", s)
	}
}

// Shape is the ordered sequence of dataset dimension sizes. An empty Shape is a scalar.
type Shape []uint64

// String renders the shape the way numpy prints tuples: "(1024,)", "(3, 4)", "()"
func (s Shape) String() string {
	switch len(s) {
	case 0:
		return "()"
	case 1:
		return "(" + strconv.FormatUint(s[0], 10) + ",)"
	}
	parts := make([]string, len(s))
	for i, d := range s {
		parts[i] = strconv.FormatUint(d, 10)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// Size returns the total number of elements
func (s Shape) Size() uint64 {
	n := uint64(1)
	for _, d := range s {
		n *= d
	}
	return n
}
