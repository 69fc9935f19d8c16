package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/towgrid/dispatch/core/dispatch/logging"
	"github.com/towgrid/dispatch/core/events"
	"github.com/towgrid/dispatch/core/graph"
	"github.com/towgrid/dispatch/core/model"
	"github.com/towgrid/dispatch/core/statecache"
	"github.com/towgrid/dispatch/infra/logger"
	"github.com/towgrid/dispatch/internal/eventbus"
)

type fakeOrders struct {
	mu            sync.Mutex
	nextID        int64
	orders        map[int64]model.Order
	completed     []model.CompletedOrder
	failCompleted error
	failDispatch  error
}

func newFakeOrders() *fakeOrders {
	return &fakeOrders{nextID: 1, orders: map[int64]model.Order{}}
}

func (f *fakeOrders) CreateOrder(_ context.Context, clientID, nodeID int64, carValue float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.orders[id] = model.Order{
		ID:        id,
		ClientID:  clientID,
		Status:    model.OrderStatusPending,
		NodeID:    nodeID,
		CarValue:  carValue,
		OrderTime: time.Now().UTC(),
	}
	return nil
}

func (f *fakeOrders) FindOrderByID(_ context.Context, id int64) (model.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return model.Order{}, model.ErrNotFound
	}
	return o, nil
}

func (f *fakeOrders) UpdateOrderStatus(_ context.Context, orderID int64, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return model.ErrNotFound
	}
	o.Status = status
	f.orders[orderID] = o
	return nil
}

func (f *fakeOrders) UpdateOrderDispatched(_ context.Context, orderID, dispatcherID, towTruckID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDispatch != nil {
		return f.failDispatch
	}
	o, ok := f.orders[orderID]
	if !ok {
		return model.ErrNotFound
	}
	o.Status = model.OrderStatusDispatched
	o.DispatcherID = &dispatcherID
	o.TowTruckID = &towTruckID
	f.orders[orderID] = o
	return nil
}

func (f *fakeOrders) ListOrders(_ context.Context, q model.OrderQuery) ([]model.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Order, 0, len(f.orders))
	for _, o := range f.orders {
		if q.Status != nil && o.Status != *q.Status {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

func (f *fakeOrders) CreateCompletedOrder(_ context.Context, orderID, towTruckID int64, completedTime time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCompleted != nil {
		return f.failCompleted
	}
	f.completed = append(f.completed, model.CompletedOrder{
		ID:            int64(len(f.completed) + 1),
		OrderID:       orderID,
		TowTruckID:    towTruckID,
		CompletedTime: completedTime,
	})
	return nil
}

func (f *fakeOrders) GetAllCompletedOrders(_ context.Context) ([]model.CompletedOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.CompletedOrder(nil), f.completed...), nil
}

type fakeTrucks struct {
	mu         sync.Mutex
	trucks     map[int64]model.TowTruck
	locations  map[int64]int64
	loads      int
	failStatus error
}

func newFakeTrucks() *fakeTrucks {
	return &fakeTrucks{trucks: map[int64]model.TowTruck{}, locations: map[int64]int64{}}
}

func (f *fakeTrucks) add(t model.TowTruck, node int64) {
	f.trucks[t.ID] = t
	f.locations[t.ID] = node
}

func (f *fakeTrucks) FindTowTruckByID(_ context.Context, id int64) (model.TowTruck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.trucks[id]
	if !ok {
		return model.TowTruck{}, model.ErrNotFound
	}
	return t, nil
}

func (f *fakeTrucks) ListTowTrucks(_ context.Context, q model.TruckQuery) ([]model.TowTruck, error) {
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

func (f *fakeTrucks) UpdateStatus(_ context.Context, id int64, status string) error {
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

func (f *fakeTrucks) LatestLocationNode(_ context.Context, id int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	node, ok := f.locations[id]
	if !ok {
		return 0, model.ErrNotFound
	}
	return node, nil
}

type fakeUsers struct {
	users       map[int64]model.User
	dispatchers map[int64]model.Dispatcher
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{users: map[int64]model.User{}, dispatchers: map[int64]model.Dispatcher{}}
}

func (f *fakeUsers) FindUserByID(_ context.Context, id int64) (model.User, error) {
	u, ok := f.users[id]
	if !ok {
		return model.User{}, model.ErrNotFound
	}
	return u, nil
}

func (f *fakeUsers) FindUsersByIDs(_ context.Context, ids []int64) ([]model.User, error) {
	out := make([]model.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := f.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeUsers) FindDispatcherByID(_ context.Context, id int64) (model.Dispatcher, error) {
	d, ok := f.dispatchers[id]
	if !ok {
		return model.Dispatcher{}, model.ErrNotFound
	}
	return d, nil
}

func (f *fakeUsers) FindDispatchersByIDs(_ context.Context, ids []int64) ([]model.Dispatcher, error) {
	out := make([]model.Dispatcher, 0, len(ids))
	for _, id := range ids {
		if d, ok := f.dispatchers[id]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

type fakeAreas struct{ areas map[int64]int64 }

func (f fakeAreas) AreaIDByNodeID(_ context.Context, nodeID int64) (int64, error) {
	a, ok := f.areas[nodeID]
	if !ok {
		return 0, model.ErrNotFound
	}
	return a, nil
}

type memoryAudit struct {
	mu   sync.Mutex
	recs []logging.Record
}

func (m *memoryAudit) Append(_ context.Context, rec logging.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, rec)
	return nil
}

func (m *memoryAudit) Query(context.Context, logging.Query) ([]logging.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]logging.Record(nil), m.recs...), nil
}

func (m *memoryAudit) Close() error { return nil }

// lineGraph builds 1-2-3-4-5 with weight 5 per segment.
func lineGraph(t *testing.T) *graph.Graph {
	t.Helper()
	g := graph.New()
	for id := int64(1); id <= 5; id++ {
		g.AddNode(graph.Node{ID: id})
	}
	for id := int64(1); id <= 4; id++ {
		require.NoError(t, g.AddEdge(graph.Edge{From: id, To: id + 1, Weight: 5}))
	}
	return g
}

type fixture struct {
	coord  *Coordinator
	orders *fakeOrders
	trucks *fakeTrucks
	users  *fakeUsers
	cache  *statecache.VehicleState
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	orders := newFakeOrders()
	trucks := newFakeTrucks()
	users := newFakeUsers()
	cache := statecache.NewVehicleState(statecache.Config{TTLSeconds: 300, Capacity: 2000}, nil)
	coord := NewCoordinator(
		lineGraph(t), cache, orders, trucks, users,
		fakeAreas{areas: map[int64]int64{1: 10, 2: 10, 3: 10, 4: 10, 5: 10}},
		logger.NopLogger{}, nil,
	)
	return &fixture{coord: coord, orders: orders, trucks: trucks, users: users, cache: cache}
}

func TestCreateOrderRejectsUnknownNode(t *testing.T) {
	f := newFixture(t)
	err := f.coord.CreateOrder(context.Background(), 1, 99, 1000)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrValidation)
	assert.Empty(t, f.orders.orders)
}

func TestCreateOrderPersistsPending(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.coord.CreateOrder(context.Background(), 1, 3, 2500))
	o := f.orders.orders[1]
	assert.Equal(t, model.OrderStatusPending, o.Status)
	assert.Equal(t, int64(3), o.NodeID)
	assert.Nil(t, o.TowTruckID)
}

func TestAssignNearestVehiclePicksClosest(t *testing.T) {
	f := newFixture(t)
	f.trucks.add(model.TowTruck{ID: 11, Status: model.TruckStatusAvailable, AreaID: 10}, 2)
	f.trucks.add(model.TowTruck{ID: 12, Status: model.TruckStatusAvailable, AreaID: 10}, 5)

	id, ok, err := f.coord.AssignNearestVehicle(context.Background(), 1, 10, 100)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(11), id, "the truck one hop away wins over the far one")
}

func TestAssignNearestVehicleHonorsSearchLimit(t *testing.T) {
	f := newFixture(t)
	f.trucks.add(model.TowTruck{ID: 11, Status: model.TruckStatusAvailable, AreaID: 10}, 3)

	// Truck sits at distance 10; a limit of 9 must exclude it.
	_, ok, err := f.coord.AssignNearestVehicle(context.Background(), 1, 10, 9)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = f.coord.AssignNearestVehicle(context.Background(), 1, 10, 10)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAssignNearestVehicleBusyCacheOverridesRow(t *testing.T) {
	f := newFixture(t)
	f.trucks.add(model.TowTruck{ID: 11, Status: model.TruckStatusAvailable, AreaID: 10}, 2)
	f.trucks.add(model.TowTruck{ID: 12, Status: model.TruckStatusAvailable, AreaID: 10}, 4)
	// A fresher dispatch already marked 11 busy; the stale row still
	// says available.
	f.cache.Busy.Set(11, true)

	id, ok, err := f.coord.AssignNearestVehicle(context.Background(), 1, 10, 100)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(12), id)
}

func TestAssignNearestVehicleUsesCachedLocation(t *testing.T) {
	f := newFixture(t)
	f.trucks.add(model.TowTruck{ID: 11, Status: model.TruckStatusAvailable, AreaID: 10}, 2)
	f.cache.Location.Set(11, 2)

	_, ok, err := f.coord.AssignNearestVehicle(context.Background(), 1, 10, 100)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Zero(t, f.trucks.loads, "cached location must not hit the store")
}

func TestAssignNearestVehicleSkipsTruckWithoutLocation(t *testing.T) {
	f := newFixture(t)
	f.trucks.trucks[11] = model.TowTruck{ID: 11, Status: model.TruckStatusAvailable, AreaID: 10}

	_, ok, err := f.coord.AssignNearestVehicle(context.Background(), 1, 10, 100)
	require.NoError(t, err)
	assert.False(t, ok, "a truck with no reported position is unrankable")
}

func TestAssignNearestVehicleNoCandidates(t *testing.T) {
	f := newFixture(t)
	_, ok, err := f.coord.AssignNearestVehicle(context.Background(), 1, 10, 100)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDispatchCommits(t *testing.T) {
	f := newFixture(t)
	f.trucks.add(model.TowTruck{ID: 11, Status: model.TruckStatusAvailable, AreaID: 10}, 2)
	require.NoError(t, f.coord.CreateOrder(context.Background(), 1, 3, 2500))

	bus := eventbus.NewTyped[events.Event]()
	sub := bus.Subscribe()
	f.coord.SetEventBus(bus)
	audit := &memoryAudit{}
	f.coord.SetAuditStore(audit)

	at := time.Now().UTC()
	require.NoError(t, f.coord.Dispatch(context.Background(), 1, 7, 11, at))

	o := f.orders.orders[1]
	require.NotNil(t, o.TowTruckID)
	assert.Equal(t, model.OrderStatusDispatched, o.Status)
	assert.Equal(t, int64(11), *o.TowTruckID)
	assert.Equal(t, int64(7), *o.DispatcherID)

	assert.Equal(t, model.TruckStatusBusy, f.trucks.trucks[11].Status)
	busy, ok := f.cache.Busy.Get(11)
	require.True(t, ok)
	assert.True(t, busy)

	require.Len(t, f.orders.completed, 1)
	assert.Equal(t, int64(1), f.orders.completed[0].OrderID)

	select {
	case ev := <-sub:
		d, ok := ev.(events.OrderDispatched)
		require.True(t, ok)
		assert.Equal(t, int64(11), d.TowTruckID)
	case <-time.After(time.Second):
		t.Fatal("no dispatch event published")
	}

	require.Len(t, audit.recs, 1)
	assert.Equal(t, int64(1), audit.recs[0].OrderID)
	assert.NotEmpty(t, audit.recs[0].ID)
}

func TestDispatchAnchorFailureMutatesNothing(t *testing.T) {
	f := newFixture(t)
	f.trucks.add(model.TowTruck{ID: 11, Status: model.TruckStatusAvailable, AreaID: 10}, 2)
	require.NoError(t, f.coord.CreateOrder(context.Background(), 1, 3, 2500))
	f.orders.failCompleted = errors.New("write refused")

	err := f.coord.Dispatch(context.Background(), 1, 7, 11, time.Now().UTC())
	require.Error(t, err)

	o := f.orders.orders[1]
	assert.Equal(t, model.OrderStatusPending, o.Status)
	assert.Nil(t, o.TowTruckID)
	assert.Equal(t, model.TruckStatusAvailable, f.trucks.trucks[11].Status)
	_, ok := f.cache.Busy.Get(11)
	assert.False(t, ok)
}

func TestDispatchSecondStepFailureLeavesAnchor(t *testing.T) {
	f := newFixture(t)
	f.trucks.add(model.TowTruck{ID: 11, Status: model.TruckStatusAvailable, AreaID: 10}, 2)
	require.NoError(t, f.coord.CreateOrder(context.Background(), 1, 3, 2500))
	f.trucks.failStatus = errors.New("write refused")

	err := f.coord.Dispatch(context.Background(), 1, 7, 11, time.Now().UTC())
	require.Error(t, err)

	// The anchor record survives the failed second step; the gap is
	// reported to the caller instead of rolled back.
	assert.Len(t, f.orders.completed, 1)
}

func TestGetOrderEnrichment(t *testing.T) {
	f := newFixture(t)
	f.users.users[1] = model.User{ID: 1, Username: "stranded"}
	f.users.users[2] = model.User{ID: 2, Username: "ops"}
	f.users.users[3] = model.User{ID: 3, Username: "driver"}
	f.users.dispatchers[7] = model.Dispatcher{ID: 7, UserID: 2, AreaID: 10}
	f.trucks.add(model.TowTruck{ID: 11, DriverID: 3, Status: model.TruckStatusAvailable, AreaID: 10}, 2)

	require.NoError(t, f.coord.CreateOrder(context.Background(), 1, 3, 2500))
	require.NoError(t, f.coord.Dispatch(context.Background(), 1, 7, 11, time.Now().UTC()))

	detail, err := f.coord.GetOrder(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "stranded", detail.ClientUsername)
	require.NotNil(t, detail.DispatcherUsername)
	assert.Equal(t, "ops", *detail.DispatcherUsername)
	require.NotNil(t, detail.DriverUsername)
	assert.Equal(t, "driver", *detail.DriverUsername)
	assert.Equal(t, int64(10), detail.AreaID)
}

func TestGetOrderNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.coord.GetOrder(context.Background(), 42)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestGetPaginatedOrdersEnrichment(t *testing.T) {
	f := newFixture(t)
	f.users.users[1] = model.User{ID: 1, Username: "alice"}
	f.users.users[2] = model.User{ID: 2, Username: "bob"}

	require.NoError(t, f.coord.CreateOrder(context.Background(), 1, 2, 1000))
	require.NoError(t, f.coord.CreateOrder(context.Background(), 2, 4, 9000))

	details, err := f.coord.GetPaginatedOrders(context.Background(), model.OrderQuery{Page: 0, PageSize: 10})
	require.NoError(t, err)
	require.Len(t, details, 2)
	names := map[int64]string{}
	for _, d := range details {
		names[d.ClientID] = d.ClientUsername
		assert.Equal(t, int64(10), d.AreaID)
	}
	assert.Equal(t, "alice", names[1])
	assert.Equal(t, "bob", names[2])
}

func TestGetPaginatedOrdersEmpty(t *testing.T) {
	f := newFixture(t)
	details, err := f.coord.GetPaginatedOrders(context.Background(), model.OrderQuery{Page: 0, PageSize: 10})
	require.NoError(t, err)
	assert.Empty(t, details)
}

// The end-to-end flow: a client order at one end of the line, two
// trucks on it, the nearer one gets dispatched.
func TestOrderLifecycle(t *testing.T) {
	f := newFixture(t)
	f.users.users[1] = model.User{ID: 1, Username: "client"}
	f.trucks.add(model.TowTruck{ID: 11, Status: model.TruckStatusAvailable, AreaID: 10}, 2)
	f.trucks.add(model.TowTruck{ID: 12, Status: model.TruckStatusAvailable, AreaID: 10}, 5)

	ctx := context.Background()
	require.NoError(t, f.coord.CreateOrder(ctx, 1, 1, 3000))

	truckID, ok, err := f.coord.AssignNearestVehicle(ctx, 1, 10, 100)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(11), truckID)

	require.NoError(t, f.coord.Dispatch(ctx, 1, 7, truckID, time.Now().UTC()))

	// The dispatched truck is no longer a candidate for the next order.
	require.NoError(t, f.coord.CreateOrder(ctx, 1, 1, 500))
	next, ok, err := f.coord.AssignNearestVehicle(ctx, 1, 10, 100)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(12), next)

	completed, err := f.coord.GetCompletedOrders(ctx)
	require.NoError(t, err)
	assert.Len(t, completed, 1)
}
