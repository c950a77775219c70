package h5browse

// NodeInfo provides read-only access to a materialized tree node for shells
// (CLI listing, FUSE view, ...)
type NodeInfo interface {
	// NodeID returns the session node identifier; 0 if not registered
	NodeID() uint64

	// Name returns the node's display name (last path component)
	Name() string

	// Path returns the absolute container path of the node
	Path() string

	// SizeStr is the stringified dataset shape; empty for groups
	SizeStr() string

	// TypeStr is the element type name for datasets or the group label
	TypeStr() string

	// Tooltip is a short hint such as "3 sub-items"
	Tooltip() string

	Kind() Kind

	// Expandable reports whether the live node had children when this node was created
	Expandable() bool

	// Populated reports whether the children have been materialized
	Populated() bool

	// Children returns the materialized children in insertion order
	Children() []NodeInfo
}

// Details is the metadata document shown for a single node. It never contains
// dataset values.
type Details struct {
	Path       string         `yaml:"path" json:"path"`
	Name       string         `yaml:"name" json:"name"`
	Kind       Kind           `yaml:"kind" json:"kind"`
	Shape      Shape          `yaml:"shape,omitempty" json:"shape,omitempty"`
	Type       string         `yaml:"type,omitempty" json:"type,omitempty"`
	ChildCount int            `yaml:"children,omitempty" json:"children,omitempty"`
	Attributes map[string]any `yaml:"attributes,omitempty" json:"attributes,omitempty"`
}
