package logging

import "fmt"

// Config selects and tunes the decision log backend.
type Config struct {
	// Backend is "jsonl", "sqlite" or "none".
	Backend string `json:"backend"`
	Path    string `json:"path"`
	// Rotation applies to the jsonl backend when MaxSizeMB is set.
	MaxSizeMB  int `json:"max_size_mb"`
	MaxBackups int `json:"max_backups"`
	MaxAgeDays int `json:"max_age_days"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "jsonl"
	}
	if c.Path == "" {
		c.Path = "decisions.log"
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	switch c.Backend {
	case "jsonl", "sqlite", "none":
	default:
		return fmt.Errorf("unknown backend %s", c.Backend)
	}
	if c.Backend != "none" && c.Path == "" {
		return fmt.Errorf("path is required")
	}
	return nil
}

// NewStore opens the configured backend.
func NewStore(c Config) (LogStore, error) {
	switch c.Backend {
	case "none":
		return NopStore{}, nil
	case "sqlite":
		return NewSQLiteStore(c.Path)
	case "jsonl", "":
		if c.MaxSizeMB > 0 {
			return NewRotatingJSONLStore(c.Path, c.MaxSizeMB, c.MaxBackups, c.MaxAgeDays)
		}
		return NewJSONLStore(c.Path)
	default:
		return nil, fmt.Errorf("unknown backend %s", c.Backend)
	}
}
