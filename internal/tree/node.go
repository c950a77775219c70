// Package tree implements the lazily materialized mirror of a container's
// Group/Dataset graph: nodes, one-level materialization, the expansion
// controller and its node-ID registry.
package tree

import (
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/brettbedarf/h5browse"
)

// Node mirrors one Group or Dataset. Children are empty until the node is
// populated by a [Materializer].
type Node struct {
	name    string
	sizeStr string
	typeStr string
	tooltip string
	kind    h5browse.Kind
	parent  *Node         // non-owning, only used to rebuild the path
	nodeID  atomic.Uint64 // Active registry ID; 0 if not registered

	mu         sync.RWMutex // Protects the fields below
	children   []*Node
	populated  bool
	expandable bool
}

var _ h5browse.NodeInfo = (*Node)(nil)

// NewRoot creates the root node of a tree. It has no name, no parent and
// stays expandable until populated.
func NewRoot() *Node {
	return &Node{kind: h5browse.KindGroup, expandable: true}
}

// NewNode creates an unpopulated node.
//
// NOTE: parent is only recorded for path reconstruction, the parent must still
// adopt the node with [Node.AppendChild]
func NewNode(name, sizeStr, typeStr string, kind h5browse.Kind, parent *Node) *Node {
	return &Node{
		name:    name,
		sizeStr: sizeStr,
		typeStr: typeStr,
		kind:    kind,
		parent:  parent,
	}
}

// NodeID returns the nodeID of the node (Thread-safe); 0 if not registered
func (n *Node) NodeID() uint64 {
	return n.nodeID.Load()
}

func (n *Node) Name() string    { return n.name }
func (n *Node) SizeStr() string { return n.sizeStr }
func (n *Node) TypeStr() string { return n.typeStr }
func (n *Node) Tooltip() string { return n.tooltip }

func (n *Node) Kind() h5browse.Kind { return n.kind }

// Parent returns nil for the root
func (n *Node) Parent() *Node { return n.parent }

func (n *Node) IsRoot() bool { return n.parent == nil }

// Path is an alias of [Node.FullPath] for [h5browse.NodeInfo]
func (n *Node) Path() string { return n.FullPath() }

// FullPath rebuilds the absolute container path by walking parent pointers.
// The root yields "/" and its children "/<name>".
func (n *Node) FullPath() string {
	if n.parent == nil {
		return "/"
	}
	segs := []string{}
	for cur := n; cur.parent != nil; cur = cur.parent {
		segs = append(segs, cur.name)
	}
	slices.Reverse(segs)
	return "/" + strings.Join(segs, "/")
}

// MarkExpandable records whether the live node had children at creation time
func (n *Node) MarkExpandable(flag bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.expandable = flag
}

func (n *Node) Expandable() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.expandable
}

func (n *Node) Populated() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.populated
}

// AppendChild adds child in insertion order and sets its parent to n.
// Only the materializer should call this.
func (n *Node) AppendChild(child *Node) {
	n.mu.Lock()
	defer n.mu.Unlock()
	child.parent = n
	n.children = append(n.children, child)
}

// ChildNodes returns a snapshot of the populated children
func (n *Node) ChildNodes() []*Node {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return slices.Clone(n.children)
}

// Children implements [h5browse.NodeInfo]
func (n *Node) Children() []h5browse.NodeInfo {
	n.mu.RLock()
	defer n.mu.RUnlock()
	infos := make([]h5browse.NodeInfo, len(n.children))
	for i, ch := range n.children {
		infos[i] = ch
	}
	return infos
}

// Child finds a populated child by name
func (n *Node) Child(name string) (*Node, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, ch := range n.children {
		if ch.name == name {
			return ch, true
		}
	}
	return nil, false
}

// commit installs a fully built child level and marks n populated. It reports
// false if another expansion already populated n.
func (n *Node) commit(children []*Node) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.populated {
		return false
	}
	for _, ch := range children {
		ch.parent = n
	}
	n.children = children
	n.populated = true
	return true
}
