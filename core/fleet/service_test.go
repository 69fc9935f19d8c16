package fleet

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/towgrid/dispatch/core/events"
	"github.com/towgrid/dispatch/core/model"
	"github.com/towgrid/dispatch/core/statecache"
	"github.com/towgrid/dispatch/infra/logger"
	"github.com/towgrid/dispatch/internal/eventbus"
)

type fakeRepo struct {
	mu         sync.Mutex
	trucks     map[int64]model.TowTruck
	locations  map[int64][]int64
	loads      int
	failInsert error
	failStatus error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{trucks: map[int64]model.TowTruck{}, locations: map[int64][]int64{}}
}

func (f *fakeRepo) FindTowTruckByID(_ context.Context, id int64) (model.TowTruck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.trucks[id]
	if !ok {
		return model.TowTruck{}, model.ErrNotFound
	}
	return t, nil
}

func (f *fakeRepo) ListTowTrucks(_ context.Context, q model.TruckQuery) ([]model.TowTruck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.TowTruck, 0, len(f.trucks))
	for _, t := range f.trucks {
		if q.Status != nil && t.Status != *q.Status {
			continue
		}
		if q.AreaID != nil && t.AreaID != *q.AreaID {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeRepo) UpdateStatus(_ context.Context, id int64, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failStatus != nil {
		return f.failStatus
	}
	t, ok := f.trucks[id]
	if !ok {
		return model.ErrNotFound
	}
	t.Status = status
	f.trucks[id] = t
	return nil
}

func (f *fakeRepo) InsertLocation(_ context.Context, truckID, nodeID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failInsert != nil {
		return f.failInsert
	}
	f.locations[truckID] = append(f.locations[truckID], nodeID)
	return nil
}

func (f *fakeRepo) LatestLocationNode(_ context.Context, id int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	nodes := f.locations[id]
	if len(nodes) == 0 {
		return 0, model.ErrNotFound
	}
	return nodes[len(nodes)-1], nil
}

func newService(repo *fakeRepo) (*Service, *statecache.VehicleState) {
	cache := statecache.NewVehicleState(statecache.Config{TTLSeconds: 300, Capacity: 2000}, nil)
	return NewService(repo, cache, logger.NopLogger{}, nil), cache
}

func TestUpdateLocationWritesCacheBeforeStore(t *testing.T) {
	repo := newFakeRepo()
	svc, cache := newService(repo)
	// The durable insert fails but the cache write has already landed.
	repo.failInsert = errors.New("insert refused")

	err := svc.UpdateLocation(context.Background(), 11, 4)
	require.Error(t, err)

	node, ok := cache.Location.Get(11)
	require.True(t, ok)
	assert.Equal(t, int64(4), node)
}

func TestUpdateLocationPersistsAndPublishes(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newService(repo)
	bus := eventbus.NewTyped[events.Event]()
	sub := bus.Subscribe()
	svc.SetEventBus(bus)

	require.NoError(t, svc.UpdateLocation(context.Background(), 11, 4))
	assert.Equal(t, []int64{4}, repo.locations[11])

	select {
	case ev := <-sub:
		loc, ok := ev.(events.LocationUpdated)
		require.True(t, ok)
		assert.Equal(t, int64(11), loc.TowTruckID)
		assert.Equal(t, int64(4), loc.NodeID)
	case <-time.After(time.Second):
		t.Fatal("no location event published")
	}
}

func TestUpdateStatusConverges(t *testing.T) {
	repo := newFakeRepo()
	repo.trucks[11] = model.TowTruck{ID: 11, Status: model.TruckStatusAvailable}
	svc, cache := newService(repo)

	require.NoError(t, svc.UpdateStatus(context.Background(), 11, model.TruckStatusBusy))

	assert.Equal(t, model.TruckStatusBusy, repo.trucks[11].Status)
	busy, ok := cache.Busy.Get(11)
	require.True(t, ok)
	assert.True(t, busy)
}

func TestUpdateStatusRejectsUnknownStatus(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newService(repo)
	err := svc.UpdateStatus(context.Background(), 11, "towing")
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestUpdateStatusStoreFailureSkipsCache(t *testing.T) {
	repo := newFakeRepo()
	repo.trucks[11] = model.TowTruck{ID: 11, Status: model.TruckStatusAvailable}
	repo.failStatus = errors.New("write refused")
	svc, cache := newService(repo)

	err := svc.UpdateStatus(context.Background(), 11, model.TruckStatusBusy)
	require.Error(t, err)
	_, ok := cache.Busy.Get(11)
	assert.False(t, ok, "cache must not diverge from a failed durable write")
}

func TestGetTowTruckResolvesLocationFromCache(t *testing.T) {
	repo := newFakeRepo()
	repo.trucks[11] = model.TowTruck{ID: 11, Status: model.TruckStatusBusy}
	svc, cache := newService(repo)
	cache.Location.Set(11, 3)

	truck, err := svc.GetTowTruck(context.Background(), 11)
	require.NoError(t, err)
	assert.Equal(t, int64(3), truck.NodeID)
	assert.Zero(t, repo.loads, "cached location must not hit the store")

	busy, ok := cache.Busy.Get(11)
	require.True(t, ok)
	assert.True(t, busy, "busy cache refreshed from the fetched row")
}

func TestGetTowTruckFallsBackToStore(t *testing.T) {
	repo := newFakeRepo()
	repo.trucks[11] = model.TowTruck{ID: 11, Status: model.TruckStatusAvailable}
	repo.locations[11] = []int64{2, 5}
	svc, cache := newService(repo)

	truck, err := svc.GetTowTruck(context.Background(), 11)
	require.NoError(t, err)
	assert.Equal(t, int64(5), truck.NodeID)
	assert.Equal(t, 1, repo.loads)

	// Loaded value is now cached.
	node, ok := cache.Location.Get(11)
	require.True(t, ok)
	assert.Equal(t, int64(5), node)
}

func TestGetTowTruckToleratesMissingLocation(t *testing.T) {
	repo := newFakeRepo()
	repo.trucks[11] = model.TowTruck{ID: 11, Status: model.TruckStatusAvailable}
	svc, _ := newService(repo)

	truck, err := svc.GetTowTruck(context.Background(), 11)
	require.NoError(t, err)
	assert.Zero(t, truck.NodeID)
}

func TestGetTowTruckNotFound(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newService(repo)
	_, err := svc.GetTowTruck(context.Background(), 42)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestListTowTrucksRefreshesBusyCache(t *testing.T) {
	repo := newFakeRepo()
	repo.trucks[11] = model.TowTruck{ID: 11, Status: model.TruckStatusBusy, AreaID: 10}
	repo.trucks[12] = model.TowTruck{ID: 12, Status: model.TruckStatusAvailable, AreaID: 10}
	svc, cache := newService(repo)

	area := int64(10)
	trucks, err := svc.ListTowTrucks(context.Background(), model.TruckQuery{PageSize: -1, AreaID: &area})
	require.NoError(t, err)
	assert.Len(t, trucks, 2)

	busy, ok := cache.Busy.Get(11)
	require.True(t, ok)
	assert.True(t, busy)
	busy, ok = cache.Busy.Get(12)
	require.True(t, ok)
	assert.False(t, busy)
}
