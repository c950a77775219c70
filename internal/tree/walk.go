package tree

import (
	"context"
	"errors"

	"github.com/brettbedarf/h5browse"
)

// SkipChildren can be returned by a [WalkFunc] to keep Walk from descending
// into the current node
var SkipChildren = errors.New("skip children")

// ExpandFunc materializes a node and returns its children
type ExpandFunc func(ctx context.Context, n h5browse.NodeInfo) ([]h5browse.NodeInfo, error)

// WalkFunc is called for every visited node; depth is 0 for the start node
type WalkFunc func(n h5browse.NodeInfo, depth int) error

// Walk visits start and its descendants depth first in child order, expanding
// groups lazily through expand. It never expands nodes deeper than maxDepth;
// a negative maxDepth means unbounded. Groups that were created without
// children are not expanded.
func Walk(ctx context.Context, expand ExpandFunc, start h5browse.NodeInfo, maxDepth int, fn WalkFunc) error {
	return walk(ctx, expand, start, 0, maxDepth, fn)
}

func walk(ctx context.Context, expand ExpandFunc, n h5browse.NodeInfo, depth, maxDepth int, fn WalkFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := fn(n, depth); err != nil {
		if errors.Is(err, SkipChildren) {
			return nil
		}
		return err
	}
	if n.Kind() != h5browse.KindGroup || (maxDepth >= 0 && depth >= maxDepth) {
		return nil
	}

	children := n.Children()
	if !n.Populated() {
		if !n.Expandable() {
			return nil
		}
		var err error
		if children, err = expand(ctx, n); err != nil {
			return err
		}
	}
	for _, ch := range children {
		if err := walk(ctx, expand, ch, depth+1, maxDepth, fn); err != nil {
			return err
		}
	}
	return nil
}
