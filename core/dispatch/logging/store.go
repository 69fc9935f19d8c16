// Package logging persists an append-only audit trail of dispatch
// decisions, independent of the durable order store.
package logging

import (
	"context"
	"fmt"
	"time"
)

// Record is one committed dispatch decision.
type Record struct {
	ID           string    `json:"id"`
	OrderID      int64     `json:"order_id"`
	DispatcherID int64     `json:"dispatcher_id"`
	TowTruckID   int64     `json:"tow_truck_id"`
	Timestamp    time.Time `json:"timestamp"`
}

// Query filters records. Zero fields match everything.
type Query struct {
	Start      time.Time
	End        time.Time
	TowTruckID int64
}

// Store is an append-only dispatch log.
type Store interface {
	Append(ctx context.Context, rec Record) error
	Query(ctx context.Context, q Query) ([]Record, error)
	Close() error
}

// New builds the store selected by backend: "jsonl" or "sqlite".
func New(backend, path string) (Store, error) {
	switch backend {
	case "jsonl":
		return NewJSONLStore(path)
	case "sqlite":
		return NewSQLiteStore(path)
	default:
		return nil, fmt.Errorf("unknown audit backend %s", backend)
	}
}

func (q Query) matches(r Record) bool {
	if !q.Start.IsZero() && r.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && r.Timestamp.After(q.End) {
		return false
	}
	if q.TowTruckID != 0 && r.TowTruckID != q.TowTruckID {
		return false
	}
	return true
}
