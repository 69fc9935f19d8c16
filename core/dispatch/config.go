package dispatch

import "fmt"

// Config defines dispatch search parameters.
type Config struct {
	// DefaultSearchLimit bounds the nearest-truck search when the
	// caller does not supply a limit of its own.
	DefaultSearchLimit int64 `json:"default_search_limit"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.DefaultSearchLimit == 0 {
		c.DefaultSearchLimit = 100_000
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if c.DefaultSearchLimit < 0 {
		return fmt.Errorf("default_search_limit must not be negative")
	}
	return nil
}
