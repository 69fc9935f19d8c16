package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/towgrid/dispatch/core/metrics"
)

// PromSink records dispatch events in Prometheus metrics.
type PromSink struct {
	dispatches *prometheus.CounterVec
	assigns    *prometheus.HistogramVec
	lookups    *prometheus.CounterVec
	fleet      prometheus.Gauge
}

// NewPromSink registers dispatch metrics on the default Prometheus
// registerer. The Prometheus server should be started separately using
// cfg.PrometheusAddr.
func NewPromSink(cfg coremetrics.Config) (*PromSink, error) {
	return NewPromSinkWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(cfg coremetrics.Config, reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	dispatches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_commits_total",
		Help: "Total number of dispatch commits by outcome",
	}, []string{"outcome"})
	assigns := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "assign_duration_seconds",
		Help:    "Time spent searching for the nearest available truck",
		Buckets: prometheus.DefBuckets,
	}, []string{"found"})
	lookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vehicle_state_cache_lookups_total",
		Help: "Vehicle state cache lookups by cache kind and result",
	}, []string{"cache", "result"})
	fleet := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fleet_trucks_total",
		Help: "Number of trucks returned by the last fleet listing",
	})

	if err := reg.Register(dispatches); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			dispatches = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(assigns); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			assigns = are.ExistingCollector.(*prometheus.HistogramVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(lookups); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			lookups = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(fleet); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			fleet = are.ExistingCollector.(prometheus.Gauge)
		} else {
			return nil, err
		}
	}

	return &PromSink{dispatches: dispatches, assigns: assigns, lookups: lookups, fleet: fleet}, nil
}

// RecordDispatch increments the commit counter for the outcome.
func (s *PromSink) RecordDispatch(ev coremetrics.DispatchEvent) error {
	s.dispatches.WithLabelValues(ev.Outcome).Inc()
	return nil
}

// RecordAssign observes the search duration.
func (s *PromSink) RecordAssign(ev coremetrics.AssignEvent) error {
	s.assigns.WithLabelValues(strconv.FormatBool(ev.Found)).Observe(ev.Duration.Seconds())
	return nil
}

// RecordCacheLookup increments the hit or miss counter for the cache.
func (s *PromSink) RecordCacheLookup(cache string, hit bool) error {
	result := "miss"
	if hit {
		result = "hit"
	}
	s.lookups.WithLabelValues(cache, result).Inc()
	return nil
}

// RecordFleetSize sets the gauge to the number of listed trucks.
func (s *PromSink) RecordFleetSize(size int) error {
	s.fleet.Set(float64(size))
	return nil
}
