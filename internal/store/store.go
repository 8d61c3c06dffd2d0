// Package store defines the persistence ports used by the booking engine.
package store

import (
	"context"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"github.com/example/tablesched/internal/reservation"
)

// TableInventory is a read-only view of the dining room.
type TableInventory interface {
	ActiveTables(ctx context.Context) ([]reservation.Table, error)
	GetTable(ctx context.Context, id int64) (reservation.Table, error)
}

// Reservations exposes reservation rows only through transactions.
type Reservations interface {
	// View runs fn against a consistent read-only snapshot of committed rows.
	View(ctx context.Context, fn func(tx Tx) error) error
	// Update runs fn in a read-write transaction. Nothing fn wrote survives
	// unless fn returns nil and the commit succeeds.
	Update(ctx context.Context, fn func(tx Tx) error) error
}

type Tx interface {
	// LockTableDay serializes writers for one (table, date) key until the
	// transaction ends.
	LockTableDay(ctx context.Context, tableID int64, date civil.Date) error

	// ListActive returns pending and confirmed reservations on date.
	ListActive(ctx context.Context, date civil.Date) ([]reservation.Reservation, error)
	// ListActiveForTable returns pending and confirmed reservations on tableID
	// whose interval intersects [from, to).
	ListActiveForTable(ctx context.Context, tableID int64, from, to time.Time) ([]reservation.Reservation, error)
	// ListByDate returns every reservation on date regardless of status.
	ListByDate(ctx context.Context, date civil.Date) ([]reservation.Reservation, error)

	// Get returns the row; inside Update it is locked until the transaction ends.
	Get(ctx context.Context, id uuid.UUID) (reservation.Reservation, error)
	Insert(ctx context.Context, r reservation.Reservation) error
	// Save persists table, time, guests and status changes of an existing row.
	Save(ctx context.Context, r reservation.Reservation) error
}
