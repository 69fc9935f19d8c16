package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/towgrid/dispatch/core/model"
)

// UserRepo resolves identity records for order enrichment.
type UserRepo struct {
	pool *pgxpool.Pool
}

// NewUserRepo creates a user repository on the pool.
func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

// FindUserByID returns the user with the given id.
func (r *UserRepo) FindUserByID(ctx context.Context, id int64) (model.User, error) {
	var u model.User
	err := r.pool.QueryRow(ctx, `SELECT id, username FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Username)
	if err != nil {
		return model.User{}, wrap("user repository: find", err)
	}
	return u, nil
}

// FindUsersByIDs returns the users matching ids. Missing ids are
// silently absent from the result.
func (r *UserRepo) FindUsersByIDs(ctx context.Context, ids []int64) ([]model.User, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, username FROM users WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, wrap("user repository: find many", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.Username); err != nil {
			return nil, wrap("user repository: scan", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("user repository: rows", err)
	}
	return users, nil
}

// FindDispatcherByID returns the dispatcher with the given id.
func (r *UserRepo) FindDispatcherByID(ctx context.Context, id int64) (model.Dispatcher, error) {
	var d model.Dispatcher
	err := r.pool.QueryRow(ctx, `SELECT id, user_id, area_id FROM dispatchers WHERE id = $1`, id).
		Scan(&d.ID, &d.UserID, &d.AreaID)
	if err != nil {
		return model.Dispatcher{}, wrap("user repository: find dispatcher", err)
	}
	return d, nil
}

// FindDispatchersByIDs returns the dispatchers matching ids.
func (r *UserRepo) FindDispatchersByIDs(ctx context.Context, ids []int64) ([]model.Dispatcher, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, user_id, area_id FROM dispatchers WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, wrap("user repository: find dispatchers", err)
	}
	defer rows.Close()

	var ds []model.Dispatcher
	for rows.Next() {
		var d model.Dispatcher
		if err := rows.Scan(&d.ID, &d.UserID, &d.AreaID); err != nil {
			return nil, wrap("user repository: dispatcher scan", err)
		}
		ds = append(ds, d)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("user repository: dispatcher rows", err)
	}
	return ds, nil
}
