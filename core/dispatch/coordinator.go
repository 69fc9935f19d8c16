// Package dispatch orchestrates the order lifecycle: creation, nearest
// vehicle selection and the two-step commit that binds an order to a
// tow truck.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/towgrid/dispatch/core/dispatch/logging"
	"github.com/towgrid/dispatch/core/events"
	"github.com/towgrid/dispatch/core/graph"
	"github.com/towgrid/dispatch/core/logger"
	"github.com/towgrid/dispatch/core/metrics"
	"github.com/towgrid/dispatch/core/model"
	"github.com/towgrid/dispatch/core/statecache"
	"github.com/towgrid/dispatch/internal/eventbus"
)

// Coordinator drives an order from pending to dispatched. Nearest
// available selection reads cached vehicle state with a durable
// fallback; the commit writes order and truck records concurrently
// after anchoring the completed order record.
type Coordinator struct {
	graph  *graph.Graph
	cache  *statecache.VehicleState
	orders OrderRepository
	trucks TowTruckRepository
	users  UserRepository
	areas  MapRepository
	log    logger.Logger
	sink   metrics.MetricsSink
	bus    *eventbus.TypedBus[events.Event]
	audit  logging.Store
}

// NewCoordinator wires the coordinator. Event bus and audit store are
// optional and attached through setters.
func NewCoordinator(
	g *graph.Graph,
	cache *statecache.VehicleState,
	orders OrderRepository,
	trucks TowTruckRepository,
	users UserRepository,
	areas MapRepository,
	log logger.Logger,
	sink metrics.MetricsSink,
) *Coordinator {
	if sink == nil {
		sink = metrics.NopSink{}
	}
	return &Coordinator{
		graph:  g,
		cache:  cache,
		orders: orders,
		trucks: trucks,
		users:  users,
		areas:  areas,
		log:    log,
		sink:   sink,
	}
}

// SetEventBus configures the bus used to publish order notifications.
func (c *Coordinator) SetEventBus(bus *eventbus.TypedBus[events.Event]) { c.bus = bus }

// SetAuditStore configures the store used to persist dispatch records.
func (c *Coordinator) SetAuditStore(store logging.Store) { c.audit = store }

// CreateOrder inserts a new pending order for the client at nodeID.
// The node is cross-checked against the road graph before insertion.
func (c *Coordinator) CreateOrder(ctx context.Context, clientID, nodeID int64, carValue float64) error {
	if !c.graph.HasNode(nodeID) {
		return fmt.Errorf("%w: unknown node %d", model.ErrValidation, nodeID)
	}
	if err := c.orders.CreateOrder(ctx, clientID, nodeID, carValue); err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	c.publish(events.OrderCreated{ClientID: clientID, NodeID: nodeID, CarValue: carValue, Time: time.Now().UTC()})
	return nil
}

// UpdateOrderStatus moves the order to the given status.
func (c *Coordinator) UpdateOrderStatus(ctx context.Context, orderID int64, status string) error {
	return c.orders.UpdateOrderStatus(ctx, orderID, status)
}

// AssignNearestVehicle returns the id of the non-busy truck in areaID
// closest to orderNodeID, searching at most searchLimit distance units.
// The boolean is false when no candidate exists or none is within
// range; that is a normal outcome, not an error. The selection is a
// snapshot of cache and store state at read time: two concurrent calls
// may pick the same truck.
func (c *Coordinator) AssignNearestVehicle(ctx context.Context, orderNodeID, areaID, searchLimit int64) (int64, bool, error) {
	start := time.Now()

	available := model.TruckStatusAvailable
	trucks, err := c.trucks.ListTowTrucks(ctx, model.TruckQuery{
		Page:     0,
		PageSize: -1,
		Status:   &available,
		AreaID:   &areaID,
	})
	if err != nil {
		return 0, false, fmt.Errorf("list candidate trucks: %w", err)
	}

	// node id -> truck id for the reverse lookup after the search.
	candidates := make(map[int64]int64, len(trucks))
	for _, t := range trucks {
		truck := t
		busy, ok := c.cache.Busy.Get(truck.ID)
		if !ok {
			// The row just read is the durable truth; repopulate.
			busy = truck.Busy()
			c.cache.Busy.Set(truck.ID, busy)
		}
		if busy {
			continue
		}
		node, err := c.cache.Location.GetOrLoad(ctx, truck.ID, func(ctx context.Context) (int64, error) {
			return c.trucks.LatestLocationNode(ctx, truck.ID)
		})
		if err != nil {
			// A truck that never reported a position cannot be ranked.
			c.log.Debugf("skip truck %d: no known location: %v", truck.ID, err)
			continue
		}
		candidates[node] = truck.ID
	}

	goals := make(map[int64]struct{}, len(candidates))
	for node := range candidates {
		goals[node] = struct{}{}
	}
	node, found := c.graph.NearestGoal(orderNodeID, goals, searchLimit)

	c.recordAssign(metrics.AssignEvent{
		AreaID:     areaID,
		Candidates: len(candidates),
		Found:      found,
		Duration:   time.Since(start),
	})
	if !found {
		return 0, false, nil
	}
	return candidates[node], true, nil
}

// Dispatch binds the order to a dispatcher and truck using a two-step
// commit. Step one appends the completed order record; if it fails
// nothing else is mutated. Step two updates the order and the truck
// status concurrently; the two writes touch independent aggregates and
// have no ordering dependency on each other. A step-two failure is
// reported even though step one already committed, leaving a completed
// order record without the matching order and truck mutation; that gap
// is surfaced, not rolled back, and reconciliation happens out of band.
func (c *Coordinator) Dispatch(ctx context.Context, orderID, dispatcherID, truckID int64, at time.Time) error {
	if err := c.orders.CreateCompletedOrder(ctx, orderID, truckID, at); err != nil {
		c.recordDispatch(orderID, dispatcherID, truckID, "anchor_failed")
		return fmt.Errorf("dispatch order %d: completed order record: %w", orderID, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.orders.UpdateOrderDispatched(gctx, orderID, dispatcherID, truckID)
	})
	g.Go(func() error {
		if err := c.trucks.UpdateStatus(gctx, truckID, model.TruckStatusBusy); err != nil {
			return err
		}
		c.cache.Busy.Set(truckID, true)
		return nil
	})
	if err := g.Wait(); err != nil {
		c.recordDispatch(orderID, dispatcherID, truckID, "partial")
		c.log.Errorf("dispatch order %d: commit after anchor: %v", orderID, err)
		return fmt.Errorf("dispatch order %d: %w", orderID, err)
	}

	c.recordDispatch(orderID, dispatcherID, truckID, "committed")
	c.publish(events.OrderDispatched{OrderID: orderID, DispatcherID: dispatcherID, TowTruckID: truckID, Time: at})
	if c.audit != nil {
		rec := logging.Record{
			ID:           uuid.NewString(),
			OrderID:      orderID,
			DispatcherID: dispatcherID,
			TowTruckID:   truckID,
			Timestamp:    at,
		}
		if err := c.audit.Append(ctx, rec); err != nil {
			c.log.Warnf("dispatch audit append: %v", err)
		}
	}
	return nil
}

// GetCompletedOrders returns every completed order record.
func (c *Coordinator) GetCompletedOrders(ctx context.Context) ([]model.CompletedOrder, error) {
	return c.orders.GetAllCompletedOrders(ctx)
}

// GetOrder returns the order joined with client, dispatcher and driver
// display fields and the area of the order's node.
func (c *Coordinator) GetOrder(ctx context.Context, id int64) (model.OrderDetail, error) {
	order, err := c.orders.FindOrderByID(ctx, id)
	if err != nil {
		return model.OrderDetail{}, fmt.Errorf("get order %d: %w", id, err)
	}

	client, err := c.users.FindUserByID(ctx, order.ClientID)
	if err != nil {
		return model.OrderDetail{}, fmt.Errorf("get order %d: client: %w", id, err)
	}

	detail := model.OrderDetail{
		ID:             order.ID,
		ClientID:       order.ClientID,
		ClientUsername: client.Username,
		DispatcherID:   order.DispatcherID,
		TowTruckID:     order.TowTruckID,
		Status:         order.Status,
		NodeID:         order.NodeID,
		CarValue:       order.CarValue,
		OrderTime:      order.OrderTime,
		CompletedTime:  order.CompletedTime,
	}

	if order.DispatcherID != nil {
		d, err := c.users.FindDispatcherByID(ctx, *order.DispatcherID)
		if err != nil {
			return model.OrderDetail{}, fmt.Errorf("get order %d: dispatcher: %w", id, err)
		}
		u, err := c.users.FindUserByID(ctx, d.UserID)
		if err != nil {
			return model.OrderDetail{}, fmt.Errorf("get order %d: dispatcher user: %w", id, err)
		}
		detail.DispatcherUserID = &d.UserID
		detail.DispatcherUsername = &u.Username
	}

	if order.TowTruckID != nil {
		truck, err := c.trucks.FindTowTruckByID(ctx, *order.TowTruckID)
		if err != nil {
			return model.OrderDetail{}, fmt.Errorf("get order %d: truck: %w", id, err)
		}
		driver, err := c.users.FindUserByID(ctx, truck.DriverID)
		if err != nil {
			return model.OrderDetail{}, fmt.Errorf("get order %d: driver: %w", id, err)
		}
		detail.DriverUserID = &truck.DriverID
		detail.DriverUsername = &driver.Username
	}

	area, err := c.areas.AreaIDByNodeID(ctx, order.NodeID)
	if err != nil {
		return model.OrderDetail{}, fmt.Errorf("get order %d: area: %w", id, err)
	}
	detail.AreaID = area

	return detail, nil
}

// GetPaginatedOrders lists orders enriched like GetOrder. Client and
// dispatcher usernames are resolved through maps built once per page;
// the per-row truck and area lookups stay un-batched because listing
// is not on the assignment path.
func (c *Coordinator) GetPaginatedOrders(ctx context.Context, q model.OrderQuery) ([]model.OrderDetail, error) {
	orders, err := c.orders.ListOrders(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	if len(orders) == 0 {
		return []model.OrderDetail{}, nil
	}

	usernames, err := c.usernameMap(ctx, orders)
	if err != nil {
		return nil, err
	}
	dispatchers, err := c.dispatcherInfoMap(ctx, orders)
	if err != nil {
		return nil, err
	}

	details := make([]model.OrderDetail, 0, len(orders))
	for _, order := range orders {
		detail := model.OrderDetail{
			ID:             order.ID,
			ClientID:       order.ClientID,
			ClientUsername: usernames[order.ClientID],
			DispatcherID:   order.DispatcherID,
			TowTruckID:     order.TowTruckID,
			Status:         order.Status,
			NodeID:         order.NodeID,
			CarValue:       order.CarValue,
			OrderTime:      order.OrderTime,
			CompletedTime:  order.CompletedTime,
		}

		if order.DispatcherID != nil {
			if info, ok := dispatchers[*order.DispatcherID]; ok {
				userID := info.UserID
				username := info.Username
				detail.DispatcherUserID = &userID
				detail.DispatcherUsername = &username
			}
		}

		if order.TowTruckID != nil {
			truck, err := c.trucks.FindTowTruckByID(ctx, *order.TowTruckID)
			if err != nil {
				return nil, fmt.Errorf("list orders: truck %d: %w", *order.TowTruckID, err)
			}
			driver, err := c.users.FindUserByID(ctx, truck.DriverID)
			if err != nil {
				return nil, fmt.Errorf("list orders: driver %d: %w", truck.DriverID, err)
			}
			detail.DriverUserID = &truck.DriverID
			detail.DriverUsername = &driver.Username
		}

		area, err := c.areas.AreaIDByNodeID(ctx, order.NodeID)
		if err != nil {
			return nil, fmt.Errorf("list orders: area of node %d: %w", order.NodeID, err)
		}
		detail.AreaID = area

		details = append(details, detail)
	}
	return details, nil
}

type dispatcherInfo struct {
	UserID   int64
	Username string
}

func (c *Coordinator) usernameMap(ctx context.Context, orders []model.Order) (map[int64]string, error) {
	ids := make([]int64, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ClientID)
	}
	users, err := c.users.FindUsersByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list orders: client usernames: %w", err)
	}
	m := make(map[int64]string, len(users))
	for _, u := range users {
		m[u.ID] = u.Username
	}
	return m, nil
}

func (c *Coordinator) dispatcherInfoMap(ctx context.Context, orders []model.Order) (map[int64]dispatcherInfo, error) {
	var ids []int64
	for _, o := range orders {
		if o.DispatcherID != nil {
			ids = append(ids, *o.DispatcherID)
		}
	}
	if len(ids) == 0 {
		return map[int64]dispatcherInfo{}, nil
	}
	ds, err := c.users.FindDispatchersByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list orders: dispatchers: %w", err)
	}
	userIDs := make([]int64, 0, len(ds))
	for _, d := range ds {
		userIDs = append(userIDs, d.UserID)
	}
	users, err := c.users.FindUsersByIDs(ctx, userIDs)
	if err != nil {
		return nil, fmt.Errorf("list orders: dispatcher users: %w", err)
	}
	byID := make(map[int64]string, len(users))
	for _, u := range users {
		byID[u.ID] = u.Username
	}
	m := make(map[int64]dispatcherInfo, len(ds))
	for _, d := range ds {
		m[d.ID] = dispatcherInfo{UserID: d.UserID, Username: byID[d.UserID]}
	}
	return m, nil
}

func (c *Coordinator) publish(e events.Event) {
	if c.bus != nil {
		c.bus.Publish(e)
	}
}

func (c *Coordinator) recordDispatch(orderID, dispatcherID, truckID int64, outcome string) {
	_ = c.sink.RecordDispatch(metrics.DispatchEvent{
		OrderID:      orderID,
		DispatcherID: dispatcherID,
		TowTruckID:   truckID,
		Outcome:      outcome,
		Time:         time.Now().UTC(),
	})
}

func (c *Coordinator) recordAssign(ev metrics.AssignEvent) {
	if rec, ok := c.sink.(metrics.AssignRecorder); ok {
		_ = rec.RecordAssign(ev)
	}
}
