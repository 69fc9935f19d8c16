// Package events defines the notifications published on the internal
// event bus. Delivery is best effort; nothing on the dispatch path
// blocks on a subscriber.
package events

import "time"

// Event is implemented by every bus notification.
type Event interface{ event() }

// OrderCreated is published after a client order is persisted.
type OrderCreated struct {
	ClientID int64
	NodeID   int64
	CarValue float64
	Time     time.Time
}

// OrderDispatched is published after a successful dispatch commit.
type OrderDispatched struct {
	OrderID      int64
	DispatcherID int64
	TowTruckID   int64
	Time         time.Time
}

// LocationUpdated is published after a truck reports a new position.
type LocationUpdated struct {
	TowTruckID int64
	NodeID     int64
	Time       time.Time
}

func (OrderCreated) event()    {}
func (OrderDispatched) event() {}
func (LocationUpdated) event() {}
