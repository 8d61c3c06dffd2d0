package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/example/tablesched/internal/db"
	"github.com/example/tablesched/internal/reservation"
	"github.com/example/tablesched/internal/store"
)

const reservationColumns = `id,table_id,customer_name,customer_email,customer_phone,user_id,special_requests,
reservation_date,reservation_time,reservation_end_time,number_of_guests,
duration_minutes,grace_period_minutes,max_sitting_minutes,status,created_at,updated_at`

var epoch = civil.Date{Year: 1970, Month: time.January, Day: 1}

type Reservations struct{ db *db.DB }

func NewReservations(d *db.DB) *Reservations { return &Reservations{db: d} }

// View reads under REPEATABLE READ so every query in fn sees one snapshot.
func (r *Reservations) View(ctx context.Context, fn func(tx store.Tx) error) error {
	opts := pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}
	err := r.db.WithTx(ctx, "view reservations", opts, func(tx pgx.Tx) error {
		return fn(&pgTx{tx: tx})
	})
	return translate(err)
}

// Update writes under READ COMMITTED; writers of the same (table, date)
// serialize on LockTableDay and re-read committed rows after acquiring it.
func (r *Reservations) Update(ctx context.Context, fn func(tx store.Tx) error) error {
	opts := pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadWrite}
	err := r.db.WithTx(ctx, "update reservations", opts, func(tx pgx.Tx) error {
		return fn(&pgTx{tx: tx, writable: true})
	})
	return translate(err)
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case db.Code(err) == db.CodeExclusionViolation:
		return fmt.Errorf("%w: %w", reservation.ErrSchedulingConflict, err)
	case db.IsTransient(err):
		return fmt.Errorf("%w: %w", reservation.ErrTransactionFailure, err)
	}
	return err
}

type pgTx struct {
	tx       pgx.Tx
	writable bool
}

// LockTableDay takes a transaction-scoped advisory lock keyed on the table id
// and the day number. Keys that collide after the int4 conversion only cost
// extra serialization.
func (t *pgTx) LockTableDay(ctx context.Context, tableID int64, date civil.Date) error {
	if !t.writable {
		return fmt.Errorf("lock table %d on %s: read-only transaction", tableID, date)
	}
	_, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1::int4, $2::int4)`, int32(tableID), int32(date.DaysSince(epoch)))
	if err != nil {
		return fmt.Errorf("lock table %d on %s: %w", tableID, date, err)
	}
	return nil
}

func (t *pgTx) ListActive(ctx context.Context, date civil.Date) ([]reservation.Reservation, error) {
	return t.query(ctx, `
SELECT `+reservationColumns+`
FROM reservations
WHERE reservation_date=$1 AND status = ANY($2)
ORDER BY reservation_time ASC, created_at ASC`, dateArg(date), activeStatuses())
}

func (t *pgTx) ListActiveForTable(ctx context.Context, tableID int64, from, to time.Time) ([]reservation.Reservation, error) {
	return t.query(ctx, `
SELECT `+reservationColumns+`
FROM reservations
WHERE table_id=$1 AND status = ANY($2)
  AND reservation_time < $4 AND $3 < reservation_end_time
ORDER BY reservation_time ASC, created_at ASC`, tableID, activeStatuses(), from, to)
}

func (t *pgTx) ListByDate(ctx context.Context, date civil.Date) ([]reservation.Reservation, error) {
	return t.query(ctx, `
SELECT `+reservationColumns+`
FROM reservations
WHERE reservation_date=$1
ORDER BY reservation_time ASC, created_at ASC`, dateArg(date))
}

func (t *pgTx) Get(ctx context.Context, id uuid.UUID) (reservation.Reservation, error) {
	sql := `SELECT ` + reservationColumns + ` FROM reservations WHERE id=$1`
	if t.writable {
		sql += ` FOR UPDATE`
	}
	res, err := scanReservation(t.tx.QueryRow(ctx, sql, id))
	if db.IsNotFound(err) {
		return reservation.Reservation{}, fmt.Errorf("reservation %s: %w", id, reservation.ErrNotFound)
	}
	if err != nil {
		return reservation.Reservation{}, fmt.Errorf("get reservation %s: %w", id, err)
	}
	return res, nil
}

func (t *pgTx) Insert(ctx context.Context, r reservation.Reservation) error {
	_, err := t.tx.Exec(ctx, `
INSERT INTO reservations(`+reservationColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		r.ID, r.TableID, r.Customer.Name, r.Customer.Email, r.Customer.Phone, r.Customer.UserID, r.SpecialRequests,
		dateArg(r.Date), r.StartAt, r.EndAt, r.Guests,
		r.DurationMinutes, r.GracePeriodMinutes, r.MaxSittingMinutes, string(r.Status), r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert reservation %s: %w", r.ID, err)
	}
	return nil
}

func (t *pgTx) Save(ctx context.Context, r reservation.Reservation) error {
	tag, err := t.tx.Exec(ctx, `
UPDATE reservations
SET table_id=$2, reservation_date=$3, reservation_time=$4, reservation_end_time=$5,
    number_of_guests=$6, status=$7, updated_at=$8
WHERE id=$1`,
		r.ID, r.TableID, dateArg(r.Date), r.StartAt, r.EndAt, r.Guests, string(r.Status), r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save reservation %s: %w", r.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("reservation %s: %w", r.ID, reservation.ErrNotFound)
	}
	return nil
}

func (t *pgTx) query(ctx context.Context, sql string, args ...any) ([]reservation.Reservation, error) {
	rows, err := t.tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query reservations: %w", err)
	}
	defer rows.Close()

	var out []reservation.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanReservation(row db.Row) (reservation.Reservation, error) {
	var (
		r      reservation.Reservation
		date   time.Time
		status string
	)
	err := row.Scan(
		&r.ID, &r.TableID, &r.Customer.Name, &r.Customer.Email, &r.Customer.Phone, &r.Customer.UserID, &r.SpecialRequests,
		&date, &r.StartAt, &r.EndAt, &r.Guests,
		&r.DurationMinutes, &r.GracePeriodMinutes, &r.MaxSittingMinutes, &status, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return reservation.Reservation{}, err
		}
		return reservation.Reservation{}, fmt.Errorf("scan reservation: %w", err)
	}
	r.Date = civil.DateOf(date)
	r.Status = reservation.Status(status)
	return r, nil
}

func dateArg(d civil.Date) time.Time { return d.In(time.UTC) }

func activeStatuses() []string {
	out := make([]string, 0, len(reservation.ActiveStatuses))
	for _, s := range reservation.ActiveStatuses {
		out = append(out, string(s))
	}
	return out
}
