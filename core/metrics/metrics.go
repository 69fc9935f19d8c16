package metrics

import "time"

// DispatchEvent represents the outcome of one dispatch commit.
type DispatchEvent struct {
	OrderID      int64
	TowTruckID   int64
	DispatcherID int64
	Outcome      string // "committed", "anchor_failed" or "partial"
	Time         time.Time
}

// MetricsSink records dispatch events for observability purposes.
type MetricsSink interface {
	RecordDispatch(ev DispatchEvent) error
}

// AssignEvent captures one nearest-vehicle search.
type AssignEvent struct {
	AreaID     int64
	Candidates int
	Found      bool
	Duration   time.Duration
}

// AssignRecorder records nearest-vehicle searches.
type AssignRecorder interface {
	RecordAssign(ev AssignEvent) error
}

// CacheLookupRecorder records vehicle state cache hits and misses.
type CacheLookupRecorder interface {
	RecordCacheLookup(cache string, hit bool) error
}

// FleetSizeRecorder records the number of trucks seen during listing.
type FleetSizeRecorder interface {
	RecordFleetSize(size int) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordDispatch(DispatchEvent) error         { return nil }
func (NopSink) RecordAssign(AssignEvent) error             { return nil }
func (NopSink) RecordCacheLookup(string, bool) error       { return nil }
func (NopSink) RecordFleetSize(int) error                  { return nil }
