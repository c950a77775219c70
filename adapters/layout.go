package adapters

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/brettbedarf/h5browse"
	"gopkg.in/yaml.v3"
)

// LayoutNode describes a container tree in a YAML or JSON layout file:
//
//	attrs: {title: Weather}
//	children:
//	  - name: "15"
//	    children:
//	      - name: temperature
//	        shape: [1024]
//	        dtype: float64
//	  - name: empty_grp
//	    kind: group
//
// An entry is a dataset when kind says so or when it carries a shape or dtype;
// otherwise it is a group.
type LayoutNode struct {
	Name     string         `yaml:"name,omitempty" json:"name,omitempty"`
	Kind     string         `yaml:"kind,omitempty" json:"kind,omitempty"`
	Shape    []uint64       `yaml:"shape,omitempty" json:"shape,omitempty"`
	DType    string         `yaml:"dtype,omitempty" json:"dtype,omitempty"`
	Attrs    map[string]any `yaml:"attrs,omitempty" json:"attrs,omitempty"`
	Children []LayoutNode   `yaml:"children,omitempty" json:"children,omitempty"`
}

const defaultLayoutDType = "float64"

// LoadLayoutFile reads a .yaml, .yml or .json layout file into a detached root group
func LoadLayoutFile(path string) (*MemNode, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, classifyOSError("open", path, err)
	}
	root, err := ParseLayout(data, filepath.Ext(path))
	if err != nil {
		return nil, h5browse.NewStoreError("open", path, err)
	}
	return root, nil
}

// ParseLayout decodes a layout document. ext selects the codec.
func ParseLayout(data []byte, ext string) (*MemNode, error) {
	var doc LayoutNode
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("%w: %w", h5browse.ErrFormat, err)
		}
	case ".json":
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("%w: %w", h5browse.ErrFormat, err)
		}
	default:
		return nil, fmt.Errorf("%w: unknown layout extension %q", h5browse.ErrFormat, ext)
	}

	if doc.isDataset() {
		return nil, fmt.Errorf("%w: layout root must be a group", h5browse.ErrFormat)
	}
	doc.Name = "/"
	return doc.build(true)
}

func (l LayoutNode) isDataset() bool {
	switch strings.ToLower(l.Kind) {
	case "dataset":
		return true
	case "group":
		return false
	}
	return len(l.Shape) > 0 || l.DType != ""
}

func (l LayoutNode) build(root bool) (*MemNode, error) {
	if !root {
		if err := validateName(l.Name); err != nil {
			return nil, err
		}
	}
	switch strings.ToLower(l.Kind) {
	case "", "group", "dataset":
	default:
		return nil, fmt.Errorf("%w: unknown kind %q for %q", h5browse.ErrFormat, l.Kind, l.Name)
	}

	if l.isDataset() {
		if len(l.Children) > 0 {
			return nil, fmt.Errorf("%w: dataset %q cannot have children", h5browse.ErrFormat, l.Name)
		}
		dtype := l.DType
		if dtype == "" {
			dtype = defaultLayoutDType
		}
		return NewMemDataset(l.Name, h5browse.Shape(l.Shape), dtype, l.Attrs), nil
	}

	g := NewMemGroup(l.Name, l.Attrs)
	for _, c := range l.Children {
		if _, dup := g.child(c.Name); dup {
			return nil, fmt.Errorf("%w: duplicate child %q in %q", h5browse.ErrFormat, c.Name, l.Name)
		}
		ch, err := c.build(false)
		if err != nil {
			return nil, err
		}
		g.Add(ch)
	}
	return g, nil
}
