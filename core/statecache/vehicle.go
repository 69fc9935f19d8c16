package statecache

import (
	"fmt"
	"time"

	"github.com/towgrid/dispatch/core/metrics"
)

// Config defines sizing for the vehicle state caches.
type Config struct {
	// TTLSeconds expires entries this long after insertion.
	TTLSeconds int `json:"ttl_seconds"`
	// Capacity bounds resident entries per cache kind.
	Capacity uint64 `json:"capacity"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.TTLSeconds == 0 {
		c.TTLSeconds = 300
	}
	if c.Capacity == 0 {
		c.Capacity = 2000
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if c.TTLSeconds < 0 {
		return fmt.Errorf("ttl_seconds must not be negative")
	}
	return nil
}

// VehicleState bundles the two per-truck caches used on the dispatch
// path: truck id to last known node and truck id to busy flag. The two
// caches age independently.
type VehicleState struct {
	Location *Cache[int64]
	Busy     *Cache[bool]
}

// NewVehicleState builds both caches from the configuration.
func NewVehicleState(cfg Config, sink metrics.CacheLookupRecorder) *VehicleState {
	ttl := time.Duration(cfg.TTLSeconds) * time.Second
	return &VehicleState{
		Location: NewCache[int64]("location", ttl, cfg.Capacity, sink),
		Busy:     NewCache[bool]("busy", ttl, cfg.Capacity, sink),
	}
}

// Start runs the expiration janitors.
func (s *VehicleState) Start() {
	go s.Location.Start()
	go s.Busy.Start()
}

// Stop terminates the expiration janitors.
func (s *VehicleState) Stop() {
	s.Location.Stop()
	s.Busy.Stop()
}
