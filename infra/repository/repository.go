// Package repository implements the durable store behind the core
// services on PostgreSQL via pgx. Row lookups that match nothing map
// to model.ErrNotFound; every other driver failure is classified as a
// dependency failure so callers can tell "absent" from "broken".
package repository

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/towgrid/dispatch/core/model"
)

func wrap(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, model.ErrNotFound)
	}
	return fmt.Errorf("%s: %w: %w", op, model.ErrDependency, err)
}
