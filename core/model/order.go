package model

import "time"

// Order lifecycle states. The state machine is linear: an order is
// created pending, bound to a dispatcher and tow truck when dispatched,
// and closed when completed. Orders are never deleted.
const (
	OrderStatusPending    = "pending"
	OrderStatusDispatched = "dispatched"
	OrderStatusCompleted  = "completed"
)

// Order is a service request placed by a client at a road network node.
type Order struct {
	ID            int64      `json:"id"`
	ClientID      int64      `json:"client_id"`
	DispatcherID  *int64     `json:"dispatcher_id,omitempty"`
	TowTruckID    *int64     `json:"tow_truck_id,omitempty"`
	Status        string     `json:"status"`
	NodeID        int64      `json:"node_id"`
	CarValue      float64    `json:"car_value"`
	OrderTime     time.Time  `json:"order_time"`
	CompletedTime *time.Time `json:"completed_time,omitempty"`
}

// CompletedOrder is the append-only durability anchor written as the
// first step of a dispatch. It is created exactly once per dispatched
// order and never mutated afterwards.
type CompletedOrder struct {
	ID            int64     `json:"id"`
	OrderID       int64     `json:"order_id"`
	TowTruckID    int64     `json:"tow_truck_id"`
	CompletedTime time.Time `json:"completed_time"`
}

// OrderDetail is an Order joined with display fields resolved from the
// identity and map lookups. It is assembled for read paths only.
type OrderDetail struct {
	ID                 int64      `json:"id"`
	ClientID           int64      `json:"client_id"`
	ClientUsername     string     `json:"client_username"`
	DispatcherID       *int64     `json:"dispatcher_id,omitempty"`
	DispatcherUserID   *int64     `json:"dispatcher_user_id,omitempty"`
	DispatcherUsername *string    `json:"dispatcher_username,omitempty"`
	TowTruckID         *int64     `json:"tow_truck_id,omitempty"`
	DriverUserID       *int64     `json:"driver_user_id,omitempty"`
	DriverUsername     *string    `json:"driver_username,omitempty"`
	AreaID             int64      `json:"area_id"`
	Status             string     `json:"status"`
	NodeID             int64      `json:"node_id"`
	CarValue           float64    `json:"car_value"`
	OrderTime          time.Time  `json:"order_time"`
	CompletedTime      *time.Time `json:"completed_time,omitempty"`
}
