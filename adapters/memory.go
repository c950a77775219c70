package adapters

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/brettbedarf/h5browse"
	"github.com/brettbedarf/h5browse/internal/util"
)

// MemNode is one Group or Dataset of an in-memory container
type MemNode struct {
	Name  string
	Kind  h5browse.Kind
	Shape h5browse.Shape
	DType string
	Attrs map[string]any

	parent   *MemNode
	children []*MemNode
}

// NewMemGroup creates a detached group node
func NewMemGroup(name string, attrs map[string]any) *MemNode {
	return &MemNode{Name: name, Kind: h5browse.KindGroup, Attrs: attrs}
}

// NewMemDataset creates a detached dataset node
func NewMemDataset(name string, shape h5browse.Shape, dtype string, attrs map[string]any) *MemNode {
	return &MemNode{Name: name, Kind: h5browse.KindDataset, Shape: shape, DType: dtype, Attrs: attrs}
}

// Add appends children to a group and returns the group for chaining.
// A child with the same name as an existing one replaces it in place.
func (n *MemNode) Add(children ...*MemNode) *MemNode {
	for _, ch := range children {
		ch.parent = n
		if i := n.indexOf(ch.Name); i >= 0 {
			n.children[i].parent = nil
			n.children[i] = ch
			continue
		}
		n.children = append(n.children, ch)
	}
	return n
}

func (n *MemNode) indexOf(name string) int {
	return slices.IndexFunc(n.children, func(c *MemNode) bool { return c.Name == name })
}

func (n *MemNode) child(name string) (*MemNode, bool) {
	if i := n.indexOf(name); i >= 0 {
		return n.children[i], true
	}
	return nil, false
}

// MemoryStore implements [h5browse.ContainerStore] over a [MemNode] graph. It is
// used for layout files, tests, and simulating files that change while browsed.
type MemoryStore struct {
	mu     sync.Mutex
	root   *MemNode
	path   string
	mode   h5browse.Mode
	closed bool
}

var _ h5browse.ContainerStore = (*MemoryStore)(nil)

// memObject is the live handle type handed out by [MemoryStore]
type memObject struct {
	store *MemoryStore
	node  *MemNode
	path  string
}

func (o *memObject) Name() string {
	if o.path == "/" {
		return "/"
	}
	return o.node.Name
}

func (o *memObject) Path() string { return o.path }

func RegisterMemory() {
	Register(MemoryStoreType, OpenMemory, ".yaml", ".yml", ".json")
}

// NewMemoryStore wraps root as an open store. path is informational only.
func NewMemoryStore(root *MemNode, path string, mode h5browse.Mode) *MemoryStore {
	if root == nil {
		root = NewMemGroup("/", nil)
	}
	root.Kind = h5browse.KindGroup
	root.parent = nil
	return &MemoryStore{root: root, path: path, mode: mode}
}

// OpenMemory loads a YAML or JSON layout file (see [LayoutNode]) into a MemoryStore
func OpenMemory(path string, mode h5browse.Mode) (h5browse.ContainerStore, error) {
	logger := util.GetLogger("MemoryStore.Open")

	if err := checkAccess("open", path, mode); err != nil {
		return nil, err
	}
	root, err := LoadLayoutFile(path)
	if err != nil {
		return nil, err
	}
	logger.Debug().Str("path", path).Str("mode", mode.String()).Msg("Opened layout file")
	return NewMemoryStore(root, path, mode), nil
}

func (s *MemoryStore) Path() string        { return s.path }
func (s *MemoryStore) Mode() h5browse.Mode { return s.mode }

func (s *MemoryStore) Valid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

// Close invalidates the store and every handle it produced
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *MemoryStore) Resolve(absPath string) (h5browse.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, h5browse.NewStoreError("resolve", absPath, h5browse.ErrInvalidHandle)
	}
	n, err := s.lookupLocked(absPath)
	if err != nil {
		return nil, err
	}
	return s.objectLocked(n), nil
}

func (s *MemoryStore) lookupLocked(absPath string) (*MemNode, error) {
	if !strings.HasPrefix(absPath, "/") {
		return nil, h5browse.NewStoreError("resolve", absPath, fmt.Errorf("%w: path must be absolute", h5browse.ErrNotFound))
	}
	cur := s.root
	for _, seg := range util.SplitPath(absPath) {
		if cur.Kind != h5browse.KindGroup {
			return nil, h5browse.NewStoreError("resolve", absPath, fmt.Errorf("%w: %s is a dataset", h5browse.ErrNotFound, cur.Name))
		}
		next, ok := cur.child(seg)
		if !ok {
			return nil, h5browse.NewStoreError("resolve", absPath, fmt.Errorf("%w: missing segment %q", h5browse.ErrNotFound, seg))
		}
		cur = next
	}
	return cur, nil
}

func (s *MemoryStore) objectLocked(n *MemNode) *memObject {
	segs := []string{}
	for cur := n; cur.parent != nil; cur = cur.parent {
		segs = append(segs, cur.Name)
	}
	slices.Reverse(segs)
	return &memObject{store: s, node: n, path: "/" + strings.Join(segs, "/")}
}

// handleLocked validates that obj belongs to this open store and is still
// attached to the tree
func (s *MemoryStore) handleLocked(op string, obj h5browse.Object) (*memObject, error) {
	o, ok := obj.(*memObject)
	if !ok || o == nil || o.store != s || s.closed {
		return nil, h5browse.NewStoreError(op, pathOf(obj), h5browse.ErrInvalidHandle)
	}
	for cur := o.node; cur != s.root; cur = cur.parent {
		if cur == nil {
			return nil, h5browse.NewStoreError(op, o.path, fmt.Errorf("%w: object was removed", h5browse.ErrNotFound))
		}
	}
	return o, nil
}

func (s *MemoryStore) groupLocked(op string, obj h5browse.Object) (*memObject, error) {
	o, err := s.handleLocked(op, obj)
	if err != nil {
		return nil, err
	}
	if o.node.Kind != h5browse.KindGroup {
		return nil, h5browse.NewStoreError(op, o.path, h5browse.ErrNotGroup)
	}
	return o, nil
}

func (s *MemoryStore) Child(group h5browse.Object, name string) (h5browse.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, err := s.groupLocked("child", group)
	if err != nil {
		return nil, err
	}
	ch, ok := g.node.child(name)
	if !ok {
		return nil, h5browse.NewStoreError("child", util.JoinPath(g.path, name), h5browse.ErrNotFound)
	}
	return &memObject{store: s, node: ch, path: util.JoinPath(g.path, name)}, nil
}

func (s *MemoryStore) ChildNames(group h5browse.Object) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, err := s.groupLocked("list", group)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(g.node.children))
	for i, ch := range g.node.children {
		names[i] = ch.Name
	}
	return names, nil
}

func (s *MemoryStore) Classify(obj h5browse.Object) (h5browse.Kind, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, err := s.handleLocked("classify", obj)
	if err != nil {
		return 0, err
	}
	return o.node.Kind, nil
}

func (s *MemoryStore) ShapeAndType(dataset h5browse.Object) (h5browse.Shape, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, err := s.handleLocked("shape", dataset)
	if err != nil {
		return nil, "", err
	}
	if o.node.Kind != h5browse.KindDataset {
		return nil, "", h5browse.NewStoreError("shape", o.path, h5browse.ErrNotDataset)
	}
	return slices.Clone(o.node.Shape), o.node.DType, nil
}

func (s *MemoryStore) ChildCount(group h5browse.Object) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, err := s.groupLocked("count", group)
	if err != nil {
		return 0, err
	}
	return len(g.node.children), nil
}

func (s *MemoryStore) Attributes(obj h5browse.Object) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, err := s.handleLocked("attributes", obj)
	if err != nil {
		return nil, err
	}
	attrs := make(map[string]any, len(o.node.Attrs))
	for k, v := range o.node.Attrs {
		attrs[k] = v
	}
	return attrs, nil
}

// Remove detaches the object at absPath, simulating an external change to the
// file. Handles to the removed subtree start failing with ErrNotFound.
func (s *MemoryStore) Remove(absPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return h5browse.NewStoreError("remove", absPath, h5browse.ErrInvalidHandle)
	}
	n, err := s.lookupLocked(absPath)
	if err != nil {
		return err
	}
	if n == s.root {
		return h5browse.NewStoreError("remove", absPath, fmt.Errorf("%w: cannot remove the root group", h5browse.ErrPermission))
	}
	p := n.parent
	p.children = slices.Delete(p.children, p.indexOf(n.Name), p.indexOf(n.Name)+1)
	n.parent = nil
	return nil
}

// AddGroup creates an empty group under parentPath
func (s *MemoryStore) AddGroup(parentPath, name string, attrs map[string]any) error {
	return s.add(parentPath, NewMemGroup(name, attrs))
}

// AddDataset creates a dataset under parentPath
func (s *MemoryStore) AddDataset(parentPath, name string, shape h5browse.Shape, dtype string, attrs map[string]any) error {
	return s.add(parentPath, NewMemDataset(name, shape, dtype, attrs))
}

func (s *MemoryStore) add(parentPath string, n *MemNode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return h5browse.NewStoreError("add", parentPath, h5browse.ErrInvalidHandle)
	}
	if err := validateName(n.Name); err != nil {
		return h5browse.NewStoreError("add", parentPath, err)
	}
	p, err := s.lookupLocked(parentPath)
	if err != nil {
		return err
	}
	if p.Kind != h5browse.KindGroup {
		return h5browse.NewStoreError("add", parentPath, h5browse.ErrNotGroup)
	}
	p.Add(n)
	return nil
}

func validateName(name string) error {
	if name == "" || name == "." || name == ".." || strings.Contains(name, "/") {
		return fmt.Errorf("%w: invalid node name %q", h5browse.ErrFormat, name)
	}
	return nil
}

// pathOf names obj in errors. Typed nil handles of this package report "".
func pathOf(obj h5browse.Object) string {
	switch o := obj.(type) {
	case nil:
		return ""
	case *memObject:
		if o == nil {
			return ""
		}
	case *h5Object:
		if o == nil {
			return ""
		}
	}
	return obj.Path()
}
