package h5browse

// ExpandEvent is sent by a shell to the expansion controller to request that
// a node's children be materialized. Reply, when non-nil, receives exactly one
// [ExpandResult]; it should be buffered so the controller never blocks on a
// shell that stopped listening.
type ExpandEvent struct {
	NodeID uint64
	Reply  chan<- ExpandResult
}

// ExpandResult answers an [ExpandEvent]
type ExpandResult struct {
	NodeID   uint64
	Children []NodeInfo
	Err      error
}
