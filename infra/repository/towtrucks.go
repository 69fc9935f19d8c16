package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/towgrid/dispatch/core/model"
)

// TowTruckRepo persists tow trucks and their location reports. It is
// the durable fallback behind the vehicle state cache.
type TowTruckRepo struct {
	pool *pgxpool.Pool
}

// NewTowTruckRepo creates a tow truck repository on the pool.
func NewTowTruckRepo(pool *pgxpool.Pool) *TowTruckRepo {
	return &TowTruckRepo{pool: pool}
}

// FindTowTruckByID returns the truck joined with its driver's username.
// NodeID is left zero; the caller resolves it cache-first.
func (r *TowTruckRepo) FindTowTruckByID(ctx context.Context, id int64) (model.TowTruck, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT tt.id, tt.driver_id, u.username, tt.status, tt.area_id
		FROM tow_trucks tt
		JOIN users u ON tt.driver_id = u.id
		WHERE tt.id = $1`, id)
	var t model.TowTruck
	if err := row.Scan(&t.ID, &t.DriverID, &t.DriverUsername, &t.Status, &t.AreaID); err != nil {
		return model.TowTruck{}, wrap("truck repository: find", err)
	}
	return t, nil
}

// ListTowTrucks returns a page of trucks with the most recent reported
// node per truck resolved through a correlated subquery. Nil filters
// are ignored and PageSize -1 disables the limit.
func (r *TowTruckRepo) ListTowTrucks(ctx context.Context, q model.TruckQuery) ([]model.TowTruck, error) {
	var conds []string
	var args []any
	idx := 1

	if q.Status != nil {
		conds = append(conds, fmt.Sprintf("tt.status = $%d", idx))
		args = append(args, *q.Status)
		idx++
	}
	if q.AreaID != nil {
		conds = append(conds, fmt.Sprintf("tt.area_id = $%d", idx))
		args = append(args, *q.AreaID)
		idx++
	}

	query := `SELECT tt.id, tt.driver_id, u.username, tt.status, tt.area_id,
		(SELECT l.node_id FROM locations l
		 WHERE l.tow_truck_id = tt.id ORDER BY l.timestamp DESC LIMIT 1) AS node_id
		FROM tow_trucks tt
		JOIN users u ON tt.driver_id = u.id`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY tt.id ASC"
	if q.PageSize != -1 {
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", idx, idx+1)
		args = append(args, q.PageSize, q.Page*q.PageSize)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, wrap("truck repository: list", err)
	}
	defer rows.Close()

	var trucks []model.TowTruck
	for rows.Next() {
		var t model.TowTruck
		var node *int64
		if err := rows.Scan(&t.ID, &t.DriverID, &t.DriverUsername, &t.Status, &t.AreaID, &node); err != nil {
			return nil, wrap("truck repository: list scan", err)
		}
		if node != nil {
			t.NodeID = *node
		}
		trucks = append(trucks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("truck repository: list rows", err)
	}
	return trucks, nil
}

// UpdateStatus moves the truck to status.
func (r *TowTruckRepo) UpdateStatus(ctx context.Context, id int64, status string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE tow_trucks SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return wrap("truck repository: update status", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("truck repository: update status: truck %d: %w", id, model.ErrNotFound)
	}
	return nil
}

// InsertLocation appends a position report.
func (r *TowTruckRepo) InsertLocation(ctx context.Context, truckID, nodeID int64) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO locations (tow_truck_id, node_id, timestamp)
		VALUES ($1, $2, NOW())`,
		truckID, nodeID)
	if err != nil {
		return wrap("truck repository: insert location", err)
	}
	return nil
}

// LatestLocationNode returns the node of the truck's most recent
// position report.
func (r *TowTruckRepo) LatestLocationNode(ctx context.Context, id int64) (int64, error) {
	var node int64
	err := r.pool.QueryRow(ctx, `
		SELECT node_id FROM locations
		WHERE tow_truck_id = $1 ORDER BY timestamp DESC LIMIT 1`, id).Scan(&node)
	if err != nil {
		return 0, wrap("truck repository: latest location", err)
	}
	return node, nil
}
