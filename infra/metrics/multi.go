package metrics

import coremetrics "github.com/towgrid/dispatch/core/metrics"

// MultiSink fans dispatch events out to multiple sinks.
type MultiSink struct {
	Sinks []coremetrics.MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...coremetrics.MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordDispatch forwards the event to all sinks, returning the first
// error encountered.
func (m *MultiSink) RecordDispatch(ev coremetrics.DispatchEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordDispatch(ev); err != nil {
			return err
		}
	}
	return nil
}

// RecordAssign forwards search events to sinks that support them.
func (m *MultiSink) RecordAssign(ev coremetrics.AssignEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(coremetrics.AssignRecorder); ok {
			if err := rec.RecordAssign(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordCacheLookup forwards cache lookups to sinks that support them.
func (m *MultiSink) RecordCacheLookup(cache string, hit bool) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(coremetrics.CacheLookupRecorder); ok {
			if err := rec.RecordCacheLookup(cache, hit); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordFleetSize forwards fleet size metrics to sinks that support them.
func (m *MultiSink) RecordFleetSize(size int) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(coremetrics.FleetSizeRecorder); ok {
			if err := rec.RecordFleetSize(size); err != nil {
				return err
			}
		}
	}
	return nil
}
