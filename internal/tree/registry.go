package tree

import (
	"sync/atomic"

	"github.com/brettbedarf/h5browse/internal/util"
	"github.com/puzpuzpuz/xsync/v4"
)

// RootID is the node ID of the tree root. It matches the FUSE root inode.
const RootID uint64 = 1

// Registry maps session node IDs to nodes. IDs are handed out on demand and
// the registry is only an index; nodes are owned by their parents.
type Registry struct {
	root   *Node
	lastID atomic.Uint64             // Last registry ID assigned
	nodes  *xsync.Map[uint64, *Node] // maps registry IDs to nodes
}

func NewRegistry(root *Node) *Registry {
	r := &Registry{root: root, nodes: xsync.NewMap[uint64, *Node]()}
	root.nodeID.Store(RootID)
	r.lastID.Store(RootID)
	r.nodes.Store(RootID, root)
	return r
}

func (r *Registry) Root() *Node { return r.root }

// EnsureID retrieves or allocates & sets the node's ID; safe with or without
// held node locks
func (r *Registry) EnsureID(n *Node) uint64 {
	// fast path
	if id := n.nodeID.Load(); id != 0 {
		return id
	}
	newID := r.lastID.Add(1)
	// only one CAS will succeed
	if n.nodeID.CompareAndSwap(0, newID) {
		r.nodes.Store(newID, n)
		return newID
	}
	// someone else won the race, load the real value
	return n.nodeID.Load()
}

// Lookup returns the node registered under id
func (r *Registry) Lookup(id uint64) (*Node, bool) {
	return r.nodes.Load(id)
}

// Forget drops id from the index. The node gets a fresh ID the next time
// [Registry.EnsureID] sees it. The root is never forgotten.
func (r *Registry) Forget(id uint64) {
	logger := util.GetLogger("Registry.Forget")
	if id == RootID {
		return
	}
	n, ok := r.nodes.LoadAndDelete(id)
	if !ok {
		logger.Debug().Uint64("id", id).Msg("No node found")
		return
	}
	n.nodeID.CompareAndSwap(id, 0)
}

// Len returns the number of registered nodes, root included
func (r *Registry) Len() int {
	return r.nodes.Size()
}
