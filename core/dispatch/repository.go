package dispatch

import (
	"context"
	"time"

	"github.com/towgrid/dispatch/core/model"
)

// OrderRepository is the durable store for orders and the append-only
// completed order records.
type OrderRepository interface {
	CreateOrder(ctx context.Context, clientID, nodeID int64, carValue float64) error
	FindOrderByID(ctx context.Context, id int64) (model.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, status string) error
	UpdateOrderDispatched(ctx context.Context, orderID, dispatcherID, towTruckID int64) error
	ListOrders(ctx context.Context, q model.OrderQuery) ([]model.Order, error)
	CreateCompletedOrder(ctx context.Context, orderID, towTruckID int64, completedTime time.Time) error
	GetAllCompletedOrders(ctx context.Context) ([]model.CompletedOrder, error)
}

// TowTruckRepository is the durable fallback behind the vehicle state
// cache.
type TowTruckRepository interface {
	FindTowTruckByID(ctx context.Context, id int64) (model.TowTruck, error)
	ListTowTrucks(ctx context.Context, q model.TruckQuery) ([]model.TowTruck, error)
	UpdateStatus(ctx context.Context, id int64, status string) error
	LatestLocationNode(ctx context.Context, id int64) (int64, error)
}

// UserRepository resolves user and dispatcher ids to display records
// for order enrichment.
type UserRepository interface {
	FindUserByID(ctx context.Context, id int64) (model.User, error)
	FindUsersByIDs(ctx context.Context, ids []int64) ([]model.User, error)
	FindDispatcherByID(ctx context.Context, id int64) (model.Dispatcher, error)
	FindDispatchersByIDs(ctx context.Context, ids []int64) ([]model.Dispatcher, error)
}

// MapRepository resolves a node id to the area it belongs to.
type MapRepository interface {
	AreaIDByNodeID(ctx context.Context, nodeID int64) (int64, error)
}
