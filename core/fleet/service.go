// Package fleet manages the volatile side of the tow truck records:
// position reports, status changes and cache-backed reads.
package fleet

import (
	"context"
	"fmt"
	"time"

	"github.com/towgrid/dispatch/core/events"
	"github.com/towgrid/dispatch/core/logger"
	"github.com/towgrid/dispatch/core/metrics"
	"github.com/towgrid/dispatch/core/model"
	"github.com/towgrid/dispatch/core/statecache"
	"github.com/towgrid/dispatch/internal/eventbus"
)

// TowTruckRepository is the durable store behind the fleet service.
type TowTruckRepository interface {
	FindTowTruckByID(ctx context.Context, id int64) (model.TowTruck, error)
	ListTowTrucks(ctx context.Context, q model.TruckQuery) ([]model.TowTruck, error)
	UpdateStatus(ctx context.Context, id int64, status string) error
	InsertLocation(ctx context.Context, truckID, nodeID int64) error
	LatestLocationNode(ctx context.Context, id int64) (int64, error)
}

// Service exposes tow truck operations. Reads go cache-first with a
// durable fallback; writes keep cache and store convergent by pairing
// every durable write with a synchronous cache write.
type Service struct {
	trucks TowTruckRepository
	cache  *statecache.VehicleState
	log    logger.Logger
	sink   metrics.MetricsSink
	bus    *eventbus.TypedBus[events.Event]
}

// NewService wires the fleet service. The event bus is optional.
func NewService(trucks TowTruckRepository, cache *statecache.VehicleState, log logger.Logger, sink metrics.MetricsSink) *Service {
	if sink == nil {
		sink = metrics.NopSink{}
	}
	return &Service{trucks: trucks, cache: cache, log: log, sink: sink}
}

// SetEventBus configures the bus used to publish location notifications.
func (s *Service) SetEventBus(bus *eventbus.TypedBus[events.Event]) { s.bus = bus }

// UpdateLocation records a position report. The cache write precedes
// the durable append so the dispatch path observes the freshest node
// even while the insert is in flight.
func (s *Service) UpdateLocation(ctx context.Context, truckID, nodeID int64) error {
	s.cache.Location.Set(truckID, nodeID)
	if err := s.trucks.InsertLocation(ctx, truckID, nodeID); err != nil {
		return fmt.Errorf("update location of truck %d: %w", truckID, err)
	}
	if s.bus != nil {
		s.bus.Publish(events.LocationUpdated{TowTruckID: truckID, NodeID: nodeID, Time: time.Now().UTC()})
	}
	return nil
}

// UpdateStatus moves the truck to the given status, durable write
// first, then the busy cache, so both records converge once the call
// returns.
func (s *Service) UpdateStatus(ctx context.Context, truckID int64, status string) error {
	if status != model.TruckStatusAvailable && status != model.TruckStatusBusy {
		return fmt.Errorf("%w: unknown truck status %q", model.ErrValidation, status)
	}
	if err := s.trucks.UpdateStatus(ctx, truckID, status); err != nil {
		return fmt.Errorf("update status of truck %d: %w", truckID, err)
	}
	s.cache.Busy.Set(truckID, status == model.TruckStatusBusy)
	return nil
}

// GetTowTruck returns the truck with its last known node resolved
// cache-first. The busy cache is refreshed from the fetched row.
func (s *Service) GetTowTruck(ctx context.Context, id int64) (model.TowTruck, error) {
	truck, err := s.trucks.FindTowTruckByID(ctx, id)
	if err != nil {
		return model.TowTruck{}, fmt.Errorf("get truck %d: %w", id, err)
	}
	s.cache.Busy.Set(truck.ID, truck.Busy())

	node, err := s.cache.Location.GetOrLoad(ctx, truck.ID, func(ctx context.Context) (int64, error) {
		return s.trucks.LatestLocationNode(ctx, truck.ID)
	})
	if err != nil {
		// No position on record yet; the truck is still addressable.
		s.log.Debugf("truck %d has no known location: %v", id, err)
		return truck, nil
	}
	truck.NodeID = node
	return truck, nil
}

// ListTowTrucks returns a page of trucks and refreshes the busy cache
// from each row.
func (s *Service) ListTowTrucks(ctx context.Context, q model.TruckQuery) ([]model.TowTruck, error) {
	trucks, err := s.trucks.ListTowTrucks(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list trucks: %w", err)
	}
	for _, t := range trucks {
		s.cache.Busy.Set(t.ID, t.Busy())
	}
	s.recordFleetSize(len(trucks))
	return trucks, nil
}

func (s *Service) recordFleetSize(n int) {
	if rec, ok := s.sink.(metrics.FleetSizeRecorder); ok {
		_ = rec.RecordFleetSize(n)
	}
}
