package h5browse

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by stores, the tree engine and the shells.
// Adapters wrap these with context; match them with errors.Is.
var (
	ErrNotFound      = errors.New("not found")
	ErrFormat        = errors.New("not a valid container")
	ErrPermission    = errors.New("permission denied")
	ErrInvalidHandle = errors.New("invalid handle: container is closed")
	ErrStaleNode     = errors.New("stale node")

	ErrNotGroup    = errors.New("not a group")
	ErrNotDataset  = errors.New("not a dataset")
	ErrUnknownNode = errors.New("unknown node id")
)

// StoreError records a failed store operation along with the path it was for
type StoreError struct {
	Op   string
	Path string
	Err  error
}

func (e *StoreError) Error() string {
	if e.Path == "" {
		return e.Op + ": " + e.Err.Error()
	}
	return e.Op + " " + e.Path + ": " + e.Err.Error()
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError is a convenience constructor for [StoreError]
func NewStoreError(op, path string, err error) error {
	return &StoreError{Op: op, Path: path, Err: err}
}

// StaleNodeError is returned when a tree node's path no longer resolves in the
// store, usually because the file changed on disk after the node was listed.
// It matches both [ErrStaleNode] and the underlying cause.
type StaleNodeError struct {
	Path string
	Err  error
}

func (e *StaleNodeError) Error() string {
	return fmt.Sprintf("stale node %s: %v", e.Path, e.Err)
}

func (e *StaleNodeError) Is(target error) bool {
	return target == ErrStaleNode
}

func (e *StaleNodeError) Unwrap() error {
	return e.Err
}
