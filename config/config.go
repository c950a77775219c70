package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/brettbedarf/h5browse"
	"github.com/brettbedarf/h5browse/internal/util"
	"gopkg.in/yaml.v3"
)

// Default configuration constants. See [Config] for field descriptions.
const (
	DefaultFsName = "h5browse"
	DefaultName   = "h5browse"
	DefaultLogLvl = util.InfoLevel

	// DefaultStoreType is empty so the store type is detected from the path
	DefaultStoreType = ""

	DefaultMode = h5browse.ReadOnly

	// DefaultGroupLabel is the type column shown for groups
	DefaultGroupLabel = "Group"

	// DefaultEventBuffer is the capacity of the expansion event channel
	DefaultEventBuffer = 16

	// DefaultHTTPTimeout bounds fetching a remote container
	DefaultHTTPTimeout = 60 * time.Second

	// DefaultAttrTimeout is the attribute cache timeout in seconds
	DefaultAttrTimeout = 1.0

	// DefaultEntryTimeout is the directory entry cache timeout in seconds
	DefaultEntryTimeout = 1.0
)

// Config contains runtime configuration values for a browsing session.
type Config struct {
	MountOptions
	FilePath    string            // Container to open; a local path or http(s) URL
	StoreType   string            // Store backend; empty detects it from FilePath (Default "")
	Mode        h5browse.Mode     // Open mode (Default read-only)
	LogLvl      util.LogLevel     // Internal log level (Default info)
	GroupLabel  string            // Type column for groups (Default "Group")
	EventBuffer int               // Expansion event channel capacity (Default 16)
	HTTPTimeout time.Duration     // Remote fetch timeout (Default 60s)
	HTTPHeaders map[string]string // Extra request headers for remote containers
	// NOTE: FUSE view only:

	AttrTimeout  float64 // Attribute cache timeout in seconds (Default 1.0)
	EntryTimeout float64 // Directory entry cache timeout in seconds (Default 1.0)
}

// ConfigOverride uses pointer fields to distinguish between unset and zero values
// when loading partial configuration. See [Config] for field descriptions.
type ConfigOverride struct {
	FilePath    *string           `yaml:"file,omitempty" json:"file,omitempty"`
	StoreType   *string           `yaml:"store_type,omitempty" json:"store_type,omitempty"`
	Mode        *string           `yaml:"mode,omitempty" json:"mode,omitempty"`
	LogLvl      *int              `yaml:"verbose,omitempty" json:"verbose,omitempty"` // CLI verbosity 1 (error) to 5 (trace)
	GroupLabel  *string           `yaml:"group_label,omitempty" json:"group_label,omitempty"`
	EventBuffer *int              `yaml:"event_buffer,omitempty" json:"event_buffer,omitempty"`
	HTTPTimeout *float64          `yaml:"http_timeout,omitempty" json:"http_timeout,omitempty"` // seconds
	HTTPHeaders map[string]string `yaml:"http_headers,omitempty" json:"http_headers,omitempty"`

	Debug        *bool    `yaml:"debug,omitempty" json:"debug,omitempty"`
	FsName       *string  `yaml:"fs_name,omitempty" json:"fs_name,omitempty"`
	Name         *string  `yaml:"name,omitempty" json:"name,omitempty"`
	AttrTimeout  *float64 `yaml:"attr_timeout,omitempty" json:"attr_timeout,omitempty"`
	EntryTimeout *float64 `yaml:"entry_timeout,omitempty" json:"entry_timeout,omitempty"`
}

// NewDefaultConfig creates a new Config with all default values.
func NewDefaultConfig() *Config {
	return &Config{
		MountOptions: MountOptions{
			FsName: DefaultFsName,
			Name:   DefaultName,
		},
		StoreType:    DefaultStoreType,
		Mode:         DefaultMode,
		LogLvl:       DefaultLogLvl,
		GroupLabel:   DefaultGroupLabel,
		EventBuffer:  DefaultEventBuffer,
		HTTPTimeout:  DefaultHTTPTimeout,
		AttrTimeout:  DefaultAttrTimeout,
		EntryTimeout: DefaultEntryTimeout,
	}
}

// NewConfig creates a Config from defaults with override applied on top.
// A nil override yields the defaults. An unparsable Mode is ignored; use
// [Config.Merge] directly to observe the error.
func NewConfig(override *ConfigOverride) *Config {
	cfg := NewDefaultConfig()
	if override != nil {
		_ = cfg.Merge(override)
	}
	return cfg
}

// Merge applies non-nil values from override onto this Config.
// This allows partial configuration updates while preserving existing values.
// Every valid field is applied even when Mode fails to parse.
func (c *Config) Merge(override *ConfigOverride) error {
	var err error
	if override.FilePath != nil {
		c.FilePath = *override.FilePath
	}
	if override.StoreType != nil {
		c.StoreType = *override.StoreType
	}
	if override.Mode != nil {
		mode, perr := h5browse.ParseMode(*override.Mode)
		if perr != nil {
			err = perr
		} else {
			c.Mode = mode
		}
	}
	if override.LogLvl != nil {
		c.LogLvl = util.VerbosityToLevel(*override.LogLvl)
	}
	if override.GroupLabel != nil {
		c.GroupLabel = *override.GroupLabel
	}
	if override.EventBuffer != nil {
		c.EventBuffer = max(0, *override.EventBuffer)
	}
	if override.HTTPTimeout != nil {
		c.HTTPTimeout = time.Duration(*override.HTTPTimeout * float64(time.Second))
	}
	if override.HTTPHeaders != nil {
		c.HTTPHeaders = make(map[string]string, len(override.HTTPHeaders))
		for k, v := range override.HTTPHeaders {
			c.HTTPHeaders[k] = v
		}
	}
	if override.Debug != nil {
		c.Debug = *override.Debug
	}
	if override.FsName != nil {
		c.FsName = *override.FsName
	}
	if override.Name != nil {
		c.Name = *override.Name
	}
	if override.AttrTimeout != nil {
		c.AttrTimeout = *override.AttrTimeout
	}
	if override.EntryTimeout != nil {
		c.EntryTimeout = *override.EntryTimeout
	}
	return err
}

// LoadConfigOverrideFile loads configuration overrides from a file without merging.
// Supports both YAML (.yaml, .yml) and JSON (.json) formats.
func LoadConfigOverrideFile(path string) (*ConfigOverride, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var override ConfigOverride

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &override); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &override); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown config file extension: %s", path)
	}

	return &override, nil
}

// NewConfigFromFile creates a new Config by merging file overrides with defaults.
// This is a convenience function that combines NewDefaultConfig, LoadConfigOverrideFile, and Merge.
func NewConfigFromFile(path string) (*Config, error) {
	cfg := NewDefaultConfig()
	override, err := LoadConfigOverrideFile(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Merge(override); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return cfg, nil
}

// AttrTTL returns AttrTimeout as a duration
func (c *Config) AttrTTL() time.Duration {
	return time.Duration(c.AttrTimeout * float64(time.Second))
}

// EntryTTL returns EntryTimeout as a duration
func (c *Config) EntryTTL() time.Duration {
	return time.Duration(c.EntryTimeout * float64(time.Second))
}
