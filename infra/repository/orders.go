package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/towgrid/dispatch/core/model"
)

// OrderRepo persists orders and the append-only completed order
// records.
type OrderRepo struct {
	pool *pgxpool.Pool
}

// NewOrderRepo creates an order repository on the pool.
func NewOrderRepo(pool *pgxpool.Pool) *OrderRepo {
	return &OrderRepo{pool: pool}
}

// CreateOrder inserts a pending order at the client's node.
func (r *OrderRepo) CreateOrder(ctx context.Context, clientID, nodeID int64, carValue float64) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO orders (client_id, node_id, car_value, status, order_time)
		VALUES ($1, $2, $3, 'pending', NOW())`,
		clientID, nodeID, carValue)
	if err != nil {
		return wrap("order repository: create", err)
	}
	return nil
}

const orderColumns = `id, client_id, dispatcher_id, tow_truck_id, status, node_id, car_value, order_time, completed_time`

// FindOrderByID returns the order with the given id.
func (r *OrderRepo) FindOrderByID(ctx context.Context, id int64) (model.Order, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	var o model.Order
	err := row.Scan(&o.ID, &o.ClientID, &o.DispatcherID, &o.TowTruckID, &o.Status,
		&o.NodeID, &o.CarValue, &o.OrderTime, &o.CompletedTime)
	if err != nil {
		return model.Order{}, wrap("order repository: find", err)
	}
	return o, nil
}

// UpdateOrderStatus moves the order to status. Completion also stamps
// completed_time.
func (r *OrderRepo) UpdateOrderStatus(ctx context.Context, orderID int64, status string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE orders
		SET status = $1,
		    completed_time = CASE WHEN $1 = 'completed' THEN NOW() ELSE completed_time END
		WHERE id = $2`,
		status, orderID)
	if err != nil {
		return wrap("order repository: update status", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("order repository: update status: order %d: %w", orderID, model.ErrNotFound)
	}
	return nil
}

// UpdateOrderDispatched binds the order to a dispatcher and truck and
// moves it out of pending.
func (r *OrderRepo) UpdateOrderDispatched(ctx context.Context, orderID, dispatcherID, towTruckID int64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE orders
		SET dispatcher_id = $1, tow_truck_id = $2, status = 'dispatched'
		WHERE id = $3`,
		dispatcherID, towTruckID, orderID)
	if err != nil {
		return wrap("order repository: update dispatched", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("order repository: update dispatched: order %d: %w", orderID, model.ErrNotFound)
	}
	return nil
}

// Sortable columns exposed to the listing API. Anything else falls
// back to the primary key.
var orderSortColumns = map[string]string{
	"id":         "o.id",
	"order_time": "o.order_time",
	"car_value":  "o.car_value",
}

// ListOrders returns a page of orders. Nil filters are ignored and
// PageSize -1 disables the limit.
func (r *OrderRepo) ListOrders(ctx context.Context, q model.OrderQuery) ([]model.Order, error) {
	var conds []string
	var args []any
	idx := 1

	if q.Status != nil {
		conds = append(conds, fmt.Sprintf("o.status = $%d", idx))
		args = append(args, *q.Status)
		idx++
	}
	if q.AreaID != nil {
		conds = append(conds, fmt.Sprintf("n.area_id = $%d", idx))
		args = append(args, *q.AreaID)
		idx++
	}

	query := `SELECT o.id, o.client_id, o.dispatcher_id, o.tow_truck_id, o.status,
		o.node_id, o.car_value, o.order_time, o.completed_time
		FROM orders o JOIN nodes n ON o.node_id = n.id`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	sortCol := "o.id"
	if q.SortBy != nil {
		if col, ok := orderSortColumns[*q.SortBy]; ok {
			sortCol = col
		}
	}
	dir := "ASC"
	if q.SortOrder != nil && strings.EqualFold(*q.SortOrder, "desc") {
		dir = "DESC"
	}
	query += fmt.Sprintf(" ORDER BY %s %s", sortCol, dir)

	if q.PageSize != -1 {
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", idx, idx+1)
		args = append(args, q.PageSize, q.Page*q.PageSize)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, wrap("order repository: list", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		var o model.Order
		if err := rows.Scan(&o.ID, &o.ClientID, &o.DispatcherID, &o.TowTruckID, &o.Status,
			&o.NodeID, &o.CarValue, &o.OrderTime, &o.CompletedTime); err != nil {
			return nil, wrap("order repository: list scan", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("order repository: list rows", err)
	}
	return orders, nil
}

// CreateCompletedOrder appends the durability anchor for a dispatch.
func (r *OrderRepo) CreateCompletedOrder(ctx context.Context, orderID, towTruckID int64, completedTime time.Time) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO completed_orders (order_id, tow_truck_id, completed_time)
		VALUES ($1, $2, $3)`,
		orderID, towTruckID, completedTime)
	if err != nil {
		return wrap("order repository: create completed", err)
	}
	return nil
}

// GetAllCompletedOrders returns every completed order record.
func (r *OrderRepo) GetAllCompletedOrders(ctx context.Context) ([]model.CompletedOrder, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, order_id, tow_truck_id, completed_time
		FROM completed_orders ORDER BY completed_time`)
	if err != nil {
		return nil, wrap("order repository: completed list", err)
	}
	defer rows.Close()

	var res []model.CompletedOrder
	for rows.Next() {
		var c model.CompletedOrder
		if err := rows.Scan(&c.ID, &c.OrderID, &c.TowTruckID, &c.CompletedTime); err != nil {
			return nil, wrap("order repository: completed scan", err)
		}
		res = append(res, c)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("order repository: completed rows", err)
	}
	return res, nil
}
