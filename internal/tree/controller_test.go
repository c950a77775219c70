package tree

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/brettbedarf/h5browse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestController_ExpandTwice(t *testing.T) {
	t.Parallel()
	ctrl, root := newTestController(newScenarioStore())
	ctx := context.Background()

	require.NoError(t, ctrl.Expand(ctx, root))
	first := root.ChildNodes()
	require.NoError(t, ctrl.Expand(ctx, root))

	assert.True(t, root.Populated())
	assert.Equal(t, first, root.ChildNodes())
}

func TestController_ExpandMatchesStore(t *testing.T) {
	t.Parallel()
	store := newScenarioStore()
	ctrl, root := newTestController(store)
	ctx := context.Background()

	// every reachable node's path must resolve, and groups must be expandable
	// exactly when they have children
	err := Walk(ctx, func(ctx context.Context, n h5browse.NodeInfo) ([]h5browse.NodeInfo, error) {
		node := n.(*Node)
		if err := ctrl.Expand(ctx, node); err != nil {
			return nil, err
		}
		return node.Children(), nil
	}, root, -1, func(n h5browse.NodeInfo, _ int) error {
		live, err := store.Resolve(n.Path())
		require.NoError(t, err)
		assert.Equal(t, n.Path(), live.Path())
		if n.Kind() == h5browse.KindGroup && n.Path() != "/" {
			count, err := store.ChildCount(live)
			require.NoError(t, err)
			assert.Equal(t, count > 0, n.Expandable(), n.Path())
		}
		return nil
	})
	require.NoError(t, err)
}

func TestController_StaleNode(t *testing.T) {
	t.Parallel()
	store := newScenarioStore()
	ctrl, root := newTestController(store)
	ctx := context.Background()

	require.NoError(t, ctrl.Expand(ctx, root))
	grp, ok := root.Child("15")
	require.True(t, ok)

	require.NoError(t, store.Remove("/15"))
	err := ctrl.Expand(ctx, grp)

	require.Error(t, err)
	assert.ErrorIs(t, err, h5browse.ErrStaleNode)
	assert.ErrorIs(t, err, h5browse.ErrNotFound)
	var stale *h5browse.StaleNodeError
	require.True(t, errors.As(err, &stale))
	assert.Equal(t, "/15", stale.Path)
	assert.False(t, grp.Populated(), "stale nodes stay unpopulated")

	// re-adding the group makes the retry succeed
	require.NoError(t, store.AddGroup("/", "15", nil))
	require.NoError(t, store.AddDataset("/15", "temperature", h5browse.Shape{1024}, "float64", nil))
	require.NoError(t, ctrl.Expand(ctx, grp))
	assert.True(t, grp.Populated())
	assert.Len(t, grp.Children(), 1)
}

func TestController_ClosedStore(t *testing.T) {
	t.Parallel()
	store := newScenarioStore()
	ctrl, root := newTestController(store)
	require.NoError(t, store.Close())

	err := ctrl.Expand(context.Background(), root)

	assert.ErrorIs(t, err, h5browse.ErrInvalidHandle)
	assert.False(t, root.Populated())
}

func TestController_CancelledContext(t *testing.T) {
	t.Parallel()
	ctrl, root := newTestController(newScenarioStore())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := ctrl.Expand(ctx, root)

	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, root.Populated())
}

func TestController_Handle(t *testing.T) {
	t.Parallel()
	ctrl, _ := newTestController(newScenarioStore())
	ctx := context.Background()

	res := ctrl.Handle(ctx, RootID)
	require.NoError(t, res.Err)
	require.Len(t, res.Children, 2)
	grpID := res.Children[0].NodeID()
	assert.NotZero(t, grpID, "children are registered for follow-up events")

	res = ctrl.Handle(ctx, grpID)
	require.NoError(t, res.Err)
	assert.Equal(t, grpID, res.NodeID)
	assert.Len(t, res.Children, 2)

	res = ctrl.Handle(ctx, 9999)
	assert.ErrorIs(t, res.Err, h5browse.ErrUnknownNode)
}

func TestController_Run(t *testing.T) {
	t.Parallel()
	ctrl, _ := newTestController(newScenarioStore())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan h5browse.ExpandEvent)
	done := make(chan struct{})
	go func() {
		ctrl.Run(ctx, events)
		close(done)
	}()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reply := make(chan h5browse.ExpandResult, 1)
			events <- h5browse.ExpandEvent{NodeID: RootID, Reply: reply}
			res := <-reply
			assert.NoError(t, res.Err)
			assert.Len(t, res.Children, 2, "concurrent requests never duplicate children")
		}()
	}
	wg.Wait()

	// events without a reply channel are processed and dropped
	events <- h5browse.ExpandEvent{NodeID: RootID}

	close(events)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("event loop did not stop after the channel closed")
	}
}

func TestController_RunStopsOnContext(t *testing.T) {
	t.Parallel()
	ctrl, _ := newTestController(newScenarioStore())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		ctrl.Run(ctx, make(chan h5browse.ExpandEvent))
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("event loop did not stop after cancel")
	}
}

func TestController_RunAnswersQueuedOnStop(t *testing.T) {
	t.Parallel()
	ctrl, _ := newTestController(newScenarioStore())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	events := make(chan h5browse.ExpandEvent, 4)
	replies := make([]chan h5browse.ExpandResult, 3)
	for i := range replies {
		replies[i] = make(chan h5browse.ExpandResult, 1)
		events <- h5browse.ExpandEvent{NodeID: RootID, Reply: replies[i]}
	}
	events <- h5browse.ExpandEvent{NodeID: RootID}

	ctrl.Run(ctx, events)

	assert.Empty(t, events, "queued events are drained")
	for _, r := range replies {
		select {
		case res := <-r:
			assert.Equal(t, RootID, res.NodeID)
			assert.ErrorIs(t, res.Err, h5browse.ErrInvalidHandle)
		default:
			t.Fatal("queued event was not answered")
		}
	}
}
