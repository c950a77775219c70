// Package browser wires a container store, the lazy tree engine and the shells
// (listing, inspection, FUSE mount) into a browsing session.
package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/brettbedarf/h5browse"
	"github.com/brettbedarf/h5browse/adapters"
	"github.com/brettbedarf/h5browse/config"
	wfuse "github.com/brettbedarf/h5browse/internal/fuse"
	"github.com/brettbedarf/h5browse/internal/tree"
	"github.com/brettbedarf/h5browse/internal/util"
	"github.com/google/uuid"
)

// Browser is one browsing session over an open container. All expansion goes
// through a single event loop goroutine that owns the store.
type Browser struct {
	ID    uuid.UUID
	cfg   *config.Config
	store h5browse.ContainerStore
	root  *tree.Node
	ctrl  *tree.Controller

	events   chan h5browse.ExpandEvent
	stop     context.CancelFunc
	loopDone chan struct{}

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error

	mu     sync.Mutex // Protects server
	server *wfuse.Server
}

var _ wfuse.Session = (*Browser)(nil)

// Open opens the container named by cfg.FilePath and starts a session.
// The store type is detected from the path unless cfg.StoreType is set.
func Open(cfg *config.Config) (*Browser, error) {
	logger := util.GetLogger("Browser.Open")
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}
	if cfg.FilePath == "" {
		return nil, errors.New("no container file specified")
	}

	adapters.RegisterBuiltins()
	adapters.RegisterHTTP(adapters.HTTPSource{Headers: cfg.HTTPHeaders, Timeout: cfg.HTTPTimeout})

	store, err := adapters.Open(cfg.StoreType, cfg.FilePath, cfg.Mode)
	if err != nil {
		logger.Error().Err(err).Str("path", cfg.FilePath).Str("mode", cfg.Mode.String()).Msg("Failed to open container")
		return nil, err
	}
	return New(cfg, store), nil
}

// New starts a session over an already open store. The session takes
// ownership of the store and closes it on [Browser.Close].
func New(cfg *config.Config, store h5browse.ContainerStore) *Browser {
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}
	root := tree.NewRoot()
	registry := tree.NewRegistry(root)
	ctrl := tree.NewController(store, tree.NewMaterializer(store, cfg.GroupLabel), registry)

	ctx, stop := context.WithCancel(context.Background())
	b := &Browser{
		ID:       uuid.New(),
		cfg:      cfg,
		store:    store,
		root:     root,
		ctrl:     ctrl,
		events:   make(chan h5browse.ExpandEvent, cfg.EventBuffer),
		stop:     stop,
		loopDone: make(chan struct{}),
	}
	go func() {
		defer close(b.loopDone)
		ctrl.Run(ctx, b.events)
	}()

	logger := util.GetLogger("Browser.New")
	logger.Info().Str("session", b.ID.String()).Str("path", store.Path()).Str("mode", store.Mode().String()).Msg("Browsing session started")
	return b
}

func (b *Browser) Config() *config.Config        { return b.cfg }
func (b *Browser) Store() h5browse.ContainerStore { return b.store }

// Root returns the root node, registered as [tree.RootID]
func (b *Browser) Root() h5browse.NodeInfo {
	return b.root
}

// Node returns the node registered under id
func (b *Browser) Node(id uint64) (h5browse.NodeInfo, bool) {
	n, ok := b.ctrl.Registry().Lookup(id)
	if !ok {
		return nil, false
	}
	return n, true
}

// ParentID returns the ID of id's parent, registering the parent if it was
// forgotten. The root is its own parent.
func (b *Browser) ParentID(id uint64) (uint64, bool) {
	reg := b.ctrl.Registry()
	n, ok := reg.Lookup(id)
	if !ok {
		return 0, false
	}
	if n.IsRoot() {
		return tree.RootID, true
	}
	return reg.EnsureID(n.Parent()), true
}

// Forget releases a node ID handed out by [Browser.Expand]
func (b *Browser) Forget(id uint64) {
	b.ctrl.Registry().Forget(id)
}

// Expand sends an expansion event for id and waits for the reply. Cancelling
// ctx only stops waiting; an expansion already in flight still completes.
func (b *Browser) Expand(ctx context.Context, id uint64) ([]h5browse.NodeInfo, error) {
	if b.closed.Load() {
		return nil, fmt.Errorf("expand %d: %w", id, h5browse.ErrInvalidHandle)
	}
	reply := make(chan h5browse.ExpandResult, 1)
	select {
	case b.events <- h5browse.ExpandEvent{NodeID: id, Reply: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-b.loopDone:
		return nil, fmt.Errorf("expand %d: %w", id, h5browse.ErrInvalidHandle)
	}

	select {
	case res := <-reply:
		return res.Children, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-b.loopDone:
		// the loop may have answered just before it stopped
		select {
		case res := <-reply:
			return res.Children, res.Err
		default:
			return nil, fmt.Errorf("expand %d: %w", id, h5browse.ErrInvalidHandle)
		}
	}
}

// Find expands lazily along absPath and returns the node found there
func (b *Browser) Find(ctx context.Context, absPath string) (h5browse.NodeInfo, error) {
	var cur h5browse.NodeInfo = b.root
	for _, seg := range util.SplitPath(absPath) {
		children, err := b.Expand(ctx, cur.NodeID())
		if err != nil {
			return nil, err
		}
		next := findChild(children, seg)
		if next == nil {
			return nil, h5browse.NewStoreError("find", absPath, h5browse.ErrNotFound)
		}
		cur = next
	}
	return cur, nil
}

func findChild(children []h5browse.NodeInfo, name string) h5browse.NodeInfo {
	for _, ch := range children {
		if ch.Name() == name {
			return ch
		}
	}
	return nil
}

// Inspect re-resolves the node by path and returns its metadata document.
// Dataset values are never read.
func (b *Browser) Inspect(ctx context.Context, id uint64) (*h5browse.Details, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if b.closed.Load() {
		return nil, fmt.Errorf("inspect %d: %w", id, h5browse.ErrInvalidHandle)
	}
	n, ok := b.ctrl.Registry().Lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: %d", h5browse.ErrUnknownNode, id)
	}
	return describe(b.store, n.FullPath(), n.Name())
}

// InspectPath is [Browser.Find] followed by [Browser.Inspect]
func (b *Browser) InspectPath(ctx context.Context, absPath string) (*h5browse.Details, error) {
	n, err := b.Find(ctx, absPath)
	if err != nil {
		return nil, err
	}
	return b.Inspect(ctx, n.NodeID())
}

func describe(store h5browse.ContainerStore, path, name string) (*h5browse.Details, error) {
	obj, err := store.Resolve(path)
	if err != nil {
		if errors.Is(err, h5browse.ErrNotFound) {
			return nil, &h5browse.StaleNodeError{Path: path, Err: err}
		}
		return nil, err
	}
	kind, err := store.Classify(obj)
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = "/"
	}
	d := &h5browse.Details{Path: path, Name: name, Kind: kind}

	switch kind {
	case h5browse.KindDataset:
		if d.Shape, d.Type, err = store.ShapeAndType(obj); err != nil {
			return nil, err
		}
	case h5browse.KindGroup:
		if d.ChildCount, err = store.ChildCount(obj); err != nil {
			return nil, err
		}
	}
	if d.Attributes, err = store.Attributes(obj); err != nil {
		return nil, err
	}
	return d, nil
}

// Walk visits the tree depth first from the root, expanding lazily up to
// maxDepth levels (negative is unbounded)
func (b *Browser) Walk(ctx context.Context, maxDepth int, fn tree.WalkFunc) error {
	return tree.Walk(ctx, b.expandInfo, b.root, maxDepth, fn)
}

func (b *Browser) expandInfo(ctx context.Context, n h5browse.NodeInfo) ([]h5browse.NodeInfo, error) {
	return b.Expand(ctx, n.NodeID())
}

// Print writes the materialized part of the tree, see [tree.Print]
func (b *Browser) Print(w io.Writer, opts tree.PrintOptions) error {
	return tree.Print(w, b.root, opts)
}

// Close stops the event loop, unmounts a mounted view and closes the store
// exactly once. Later operations fail with [h5browse.ErrInvalidHandle].
func (b *Browser) Close() error {
	b.closeOnce.Do(func() {
		logger := util.GetLogger("Browser.Close")
		b.closed.Store(true)

		if err := b.Unmount(); err != nil {
			logger.Warn().Err(err).Msg("Unmount on close failed")
		}
		b.stop()
		<-b.loopDone
		b.closeErr = b.store.Close()
		logger.Info().Str("session", b.ID.String()).Msg("Browsing session closed")
	})
	return b.closeErr
}
