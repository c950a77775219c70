package tree

import (
	"errors"
	"fmt"

	"github.com/brettbedarf/h5browse"
	"github.com/brettbedarf/h5browse/internal/util"
)

const DefaultGroupLabel = "Group"

// unknownInfo stands in for the size and type of a dataset whose header
// could not be read
const unknownInfo = "?"

// Materializer populates exactly one level of a [Node] from the live store
// object it mirrors, with one level of lookahead for group expandability.
type Materializer struct {
	store      h5browse.ContainerStore
	groupLabel string
}

func NewMaterializer(store h5browse.ContainerStore, groupLabel string) *Materializer {
	if groupLabel == "" {
		groupLabel = DefaultGroupLabel
	}
	return &Materializer{store: store, groupLabel: groupLabel}
}

// Populate fills node's children from live. Children are built into a scratch
// list and only committed once the whole level succeeded, so on error node is
// left unpopulated with no partial children. A dataset whose shape cannot be
// read is still listed, with "?" for its size and type. Calling it on a
// populated node is a no-op.
func (m *Materializer) Populate(node *Node, live h5browse.Object) error {
	logger := util.GetLogger("Materializer.Populate")
	if node.Populated() {
		return nil
	}

	kind, err := m.store.Classify(live)
	if err != nil {
		return err
	}
	if kind == h5browse.KindDataset {
		node.commit(nil)
		return nil
	}

	names, err := m.store.ChildNames(live)
	if err != nil {
		return err
	}

	scratch := make([]*Node, 0, len(names))
	for _, name := range names {
		child, err := m.newChild(node, live, name)
		if err != nil {
			logger.Debug().Err(err).Str("path", live.Path()).Str("child", name).Msg("Materialization aborted")
			return err
		}
		scratch = append(scratch, child)
	}

	if node.commit(scratch) {
		logger.Trace().Str("path", live.Path()).Int("children", len(scratch)).Msg("Populated node")
	}
	return nil
}

func (m *Materializer) newChild(parent *Node, live h5browse.Object, name string) (*Node, error) {
	obj, err := m.store.Child(live, name)
	if err != nil {
		return nil, err
	}
	kind, err := m.store.Classify(obj)
	if err != nil {
		return nil, err
	}

	switch kind {
	case h5browse.KindDataset:
		sizeStr, typeStr := unknownInfo, unknownInfo
		shape, dtype, err := m.store.ShapeAndType(obj)
		switch {
		case err == nil:
			sizeStr, typeStr = shape.String(), dtype
		case errors.Is(err, h5browse.ErrInvalidHandle), errors.Is(err, h5browse.ErrNotFound):
			return nil, err
		default:
			log := util.GetLogger("Materializer.Populate")
			log.Warn().Err(err).Str("path", obj.Path()).Msg("Unreadable dataset header, listing without shape")
		}
		child := NewNode(name, sizeStr, typeStr, h5browse.KindDataset, parent)
		child.MarkExpandable(false)
		return child, nil
	case h5browse.KindGroup:
		count, err := m.store.ChildCount(obj)
		if err != nil {
			return nil, err
		}
		child := NewNode(name, "", m.groupLabel, h5browse.KindGroup, parent)
		child.tooltip = fmt.Sprintf("%d sub-items", count)
		child.MarkExpandable(count > 0)
		return child, nil
	default:
		return nil, fmt.Errorf("%w: unknown kind %v for %s", h5browse.ErrFormat, kind, obj.Path())
	}
}
