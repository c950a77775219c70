package tree

import (
	"context"
	"errors"
	"fmt"

	"github.com/brettbedarf/h5browse"
	"github.com/brettbedarf/h5browse/internal/util"
)

// Controller reacts to expansion requests. A node is either Unpopulated or
// Populated; Populated is terminal.
type Controller struct {
	store    h5browse.ContainerStore
	mat      *Materializer
	registry *Registry
}

func NewController(store h5browse.ContainerStore, mat *Materializer, registry *Registry) *Controller {
	return &Controller{store: store, mat: mat, registry: registry}
}

func (c *Controller) Registry() *Registry { return c.registry }

// Expand materializes node's children. It re-resolves the node by path on
// every call so an external change to the file shows up as a
// [h5browse.StaleNodeError] instead of a dangling handle. Expand never recurses.
func (c *Controller) Expand(ctx context.Context, node *Node) error {
	logger := util.GetLogger("Controller.Expand")
	if node.Populated() {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	path := node.FullPath()
	live, err := c.store.Resolve(path)
	switch {
	case err == nil:
	case errors.Is(err, h5browse.ErrNotFound):
		logger.Debug().Err(err).Str("path", path).Msg("Node no longer resolves")
		return &h5browse.StaleNodeError{Path: path, Err: err}
	case errors.Is(err, h5browse.ErrInvalidHandle):
		logger.Error().Err(err).Str("path", path).Msg("Expansion on a closed container")
		return fmt.Errorf("expand %s: %w", path, err)
	default:
		return err
	}

	if err := c.mat.Populate(node, live); err != nil {
		if errors.Is(err, h5browse.ErrNotFound) {
			return &h5browse.StaleNodeError{Path: path, Err: err}
		}
		return err
	}
	return nil
}

// Run consumes expansion events one at a time until events is closed or ctx
// ends. It must run on the goroutine that owns the store. Events still queued
// when ctx ends are answered with ErrInvalidHandle.
func (c *Controller) Run(ctx context.Context, events <-chan h5browse.ExpandEvent) {
	logger := util.GetLogger("Controller.Run")
	logger.Debug().Msg("Event loop started")
	defer logger.Debug().Msg("Event loop stopped")

	for {
		select {
		case <-ctx.Done():
			drain(events)
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ctx.Err() != nil {
				reply(ev, stopped(ev.NodeID))
				drain(events)
				return
			}
			reply(ev, c.Handle(ctx, ev.NodeID))
		}
	}
}

func stopped(id uint64) h5browse.ExpandResult {
	return h5browse.ExpandResult{NodeID: id, Err: fmt.Errorf("expand %d: %w", id, h5browse.ErrInvalidHandle)}
}

func drain(events <-chan h5browse.ExpandEvent) {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			reply(ev, stopped(ev.NodeID))
		default:
			return
		}
	}
}

func reply(ev h5browse.ExpandEvent, res h5browse.ExpandResult) {
	if ev.Reply == nil {
		return
	}
	select {
	case ev.Reply <- res:
	default:
		log := util.GetLogger("Controller.Run")
		log.Warn().Uint64("nodeID", ev.NodeID).Msg("Reply channel not ready, dropping result")
	}
}

// Handle expands the node registered under id and registers its children so
// shells can address them in follow-up events.
func (c *Controller) Handle(ctx context.Context, id uint64) h5browse.ExpandResult {
	logger := util.GetLogger("Controller.Handle")
	logger.Trace().Uint64("nodeID", id).Msg("Expand event")

	node, ok := c.registry.Lookup(id)
	if !ok {
		return h5browse.ExpandResult{NodeID: id, Err: fmt.Errorf("%w: %d", h5browse.ErrUnknownNode, id)}
	}
	if err := c.Expand(ctx, node); err != nil {
		return h5browse.ExpandResult{NodeID: id, Err: err}
	}

	children := node.ChildNodes()
	infos := make([]h5browse.NodeInfo, len(children))
	for i, ch := range children {
		c.registry.EnsureID(ch)
		infos[i] = ch
	}
	return h5browse.ExpandResult{NodeID: id, Children: infos}
}
