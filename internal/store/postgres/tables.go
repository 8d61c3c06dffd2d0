// Package postgres implements the store ports on PostgreSQL via pgx.
package postgres

import (
	"context"
	"fmt"

	"github.com/example/tablesched/internal/db"
	"github.com/example/tablesched/internal/reservation"
)

// Tables reads dining_tables. Create and SetActive exist for the admin CLI;
// the booking engine only reads.
type Tables struct{ db *db.DB }

func NewTables(d *db.DB) *Tables { return &Tables{db: d} }

func (r *Tables) Create(ctx context.Context, t reservation.Table) (int64, error) {
	if t.MinPartySize < 1 {
		t.MinPartySize = 1
	}
	var id int64
	err := r.db.QueryRow(ctx, `
INSERT INTO dining_tables(label, capacity, min_party_size, active)
VALUES ($1,$2,$3,$4)
RETURNING id`, t.Label, t.Capacity, t.MinPartySize, t.Active).Scan(&id)
	return id, db.WrapNotFound(err)
}

func (r *Tables) SetActive(ctx context.Context, id int64, active bool) error {
	return r.db.Exec(ctx, `UPDATE dining_tables SET active=$2 WHERE id=$1`, id, active)
}

func (r *Tables) ActiveTables(ctx context.Context) ([]reservation.Table, error) {
	return r.list(ctx, `WHERE active`)
}

func (r *Tables) List(ctx context.Context) ([]reservation.Table, error) {
	return r.list(ctx, "")
}

func (r *Tables) list(ctx context.Context, where string) ([]reservation.Table, error) {
	rows, err := r.db.Query(ctx, `
SELECT id,label,capacity,min_party_size,active
FROM dining_tables `+where+`
ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var out []reservation.Table
	for rows.Next() {
		var t reservation.Table
		if err := rows.Scan(&t.ID, &t.Label, &t.Capacity, &t.MinPartySize, &t.Active); err != nil {
			return nil, fmt.Errorf("scan table: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *Tables) GetTable(ctx context.Context, id int64) (reservation.Table, error) {
	var t reservation.Table
	err := r.db.QueryRow(ctx, `
SELECT id,label,capacity,min_party_size,active
FROM dining_tables
WHERE id=$1`, id).Scan(&t.ID, &t.Label, &t.Capacity, &t.MinPartySize, &t.Active)
	if db.IsNotFound(err) {
		return reservation.Table{}, fmt.Errorf("table %d: %w", id, reservation.ErrNotFound)
	}
	if err != nil {
		return reservation.Table{}, fmt.Errorf("get table %d: %w", id, err)
	}
	return t, nil
}
