package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/example/tablesched/internal/reservation"
	"github.com/example/tablesched/internal/slots"
	"github.com/example/tablesched/internal/store"
)

const retryDelay = 50 * time.Millisecond

// Guard is the only writer of table assignments. Every write takes the
// (table, date) lock and re-checks overlap before touching the row.
type Guard struct {
	catalog      slots.Catalog
	tables       store.TableInventory
	reservations store.Reservations
	alloc        *Allocator
	policy       *PolicyHolder
	now          func() time.Time
}

func NewGuard(catalog slots.Catalog, tables store.TableInventory, reservations store.Reservations, alloc *Allocator, policy *PolicyHolder, now func() time.Time) *Guard {
	if now == nil {
		now = time.Now
	}
	return &Guard{
		catalog:      catalog,
		tables:       tables,
		reservations: reservations,
		alloc:        alloc,
		policy:       policy,
		now:          now,
	}
}

// Book validates req, picks a table and commits a confirmed reservation.
// A conflict found under lock is returned as ErrSchedulingConflict and is
// not retried on another table.
func (g *Guard) Book(ctx context.Context, req reservation.BookingRequest) (reservation.Reservation, error) {
	if err := req.Validate(); err != nil {
		return reservation.Reservation{}, err
	}
	pol := g.policy.Current()
	now := g.now()
	start := req.StartAt.In(g.catalog.Location)
	if !start.After(now) {
		return reservation.Reservation{}, reservation.ErrPastReservation
	}
	if !g.catalog.Contains(start) {
		return reservation.Reservation{}, fmt.Errorf("%w: %s is not a bookable slot", reservation.ErrValidation, start.Format("2006-01-02 15:04"))
	}
	iv := slots.NewInterval(start, pol.Duration())

	var booked reservation.Reservation
	err := g.run(ctx, pol, func(ctx context.Context) error {
		table, err := g.alloc.Allocate(ctx, iv, req.Guests)
		if err != nil {
			return err
		}
		r := reservation.Reservation{
			ID:                 uuid.New(),
			TableID:            &table.ID,
			Customer:           req.Customer,
			SpecialRequests:    req.SpecialRequests,
			Date:               slots.DateOf(start, g.catalog.Location),
			StartAt:            iv.Start,
			EndAt:              iv.End,
			Guests:             req.Guests,
			DurationMinutes:    pol.DurationMinutes,
			GracePeriodMinutes: pol.GracePeriodMinutes,
			MaxSittingMinutes:  pol.MaxSittingMinutes,
			Status:             reservation.StatusConfirmed,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		err = g.reservations.Update(ctx, func(tx store.Tx) error {
			return g.claim(ctx, tx, r, tx.Insert)
		})
		if err != nil {
			return err
		}
		booked = r
		return nil
	})
	return booked, err
}

// Change is a staff edit of an existing reservation. Nil fields are kept.
// StartAt replaces the whole start; Date and Clock replace one part of it
// and are merged with the row as read under lock.
type Change struct {
	TableID *int64
	StartAt *time.Time
	Date    *civil.Date
	Clock   *civil.Time
	Guests  *int
}

func (c Change) Empty() bool {
	return c.TableID == nil && c.StartAt == nil && c.Date == nil && c.Clock == nil && c.Guests == nil
}

func (c Change) validate() error {
	if c.Guests != nil {
		if err := reservation.ValidateGuests(*c.Guests); err != nil {
			return fmt.Errorf("%w: %v", reservation.ErrValidation, err)
		}
	}
	if c.StartAt != nil && (c.Date != nil || c.Clock != nil) {
		return fmt.Errorf("%w: give either a start time or a date and clock", reservation.ErrValidation)
	}
	if c.Clock != nil && !c.Clock.IsValid() {
		return fmt.Errorf("%w: invalid clock time", reservation.ErrValidation)
	}
	return nil
}

// Move applies a staff table, time or party size change and, when to is
// set, a status change, all in one transaction. The end time is recomputed
// from the row's own frozen duration. Staff may choose times off the
// catalog grid.
func (g *Guard) Move(ctx context.Context, id uuid.UUID, ch Change, to *reservation.Status) (before, after reservation.Reservation, err error) {
	if err := ch.validate(); err != nil {
		return before, after, err
	}
	pol := g.policy.Current()
	err = g.run(ctx, pol, func(ctx context.Context) error {
		return g.reservations.Update(ctx, func(tx store.Tx) error {
			cur, err := tx.Get(ctx, id)
			if err != nil {
				return err
			}
			if !cur.Status.Active() {
				return fmt.Errorf("%w: cannot move a %s reservation", reservation.ErrInvalidTransition, cur.Status)
			}
			if to != nil {
				if err := reservation.CheckTransition(cur.Status, *to); err != nil {
					return err
				}
			}
			next, err := g.apply(ctx, cur, ch)
			if err != nil {
				return err
			}
			if to != nil {
				next.Status = *to
			}
			if next.Status.Terminal() {
				err = tx.Save(ctx, next)
			} else {
				err = g.claim(ctx, tx, next, tx.Save)
			}
			if err != nil {
				return err
			}
			before, after = cur, next
			return nil
		})
	})
	return before, after, err
}

func (g *Guard) apply(ctx context.Context, r reservation.Reservation, ch Change) (reservation.Reservation, error) {
	if ch.Guests != nil {
		r.Guests = *ch.Guests
	}
	start, moved := g.newStart(r, ch)
	if moved {
		r.StartAt = start
		r.EndAt = start.Add(r.Duration())
		r.Date = slots.DateOf(start, g.catalog.Location)
	}
	if ch.TableID != nil {
		id := *ch.TableID
		r.TableID = &id
	}
	if r.TableID == nil {
		table, err := g.alloc.Allocate(ctx, r.Interval(), r.Guests)
		if err != nil {
			return r, err
		}
		r.TableID = &table.ID
	}

	table, err := g.tables.GetTable(ctx, *r.TableID)
	if err != nil {
		return r, err
	}
	if !table.Active {
		return r, fmt.Errorf("%w: table %d is not in service", reservation.ErrValidation, table.ID)
	}
	if !table.Fits(r.Guests) {
		return r, fmt.Errorf("%w: table %d cannot seat %d guests", reservation.ErrValidation, table.ID, r.Guests)
	}
	r.UpdatedAt = g.now()
	return r, nil
}

// newStart resolves the start requested by ch against the current row.
func (g *Guard) newStart(r reservation.Reservation, ch Change) (time.Time, bool) {
	loc := g.catalog.Location
	switch {
	case ch.StartAt != nil:
		return ch.StartAt.In(loc), true
	case ch.Date != nil || ch.Clock != nil:
		local := r.StartAt.In(loc)
		d, c := civil.DateOf(local), civil.TimeOf(local)
		if ch.Date != nil {
			d = *ch.Date
		}
		if ch.Clock != nil {
			c = *ch.Clock
		}
		return slots.At(d, c, loc), true
	}
	return time.Time{}, false
}

// claim locks every (table, date) key the row's interval touches, in date
// order, re-runs the overlap check against committed rows and hands r to
// write. A sitting that runs past midnight shares a key with bookings of
// the next day.
func (g *Guard) claim(ctx context.Context, tx store.Tx, r reservation.Reservation, write func(context.Context, reservation.Reservation) error) error {
	for _, d := range touchedDates(r, g.catalog.Location) {
		if err := tx.LockTableDay(ctx, *r.TableID, d); err != nil {
			return err
		}
	}
	existing, err := tx.ListActiveForTable(ctx, *r.TableID, r.StartAt, r.EndAt)
	if err != nil {
		return err
	}
	for _, other := range existing {
		if other.ID != r.ID {
			return fmt.Errorf("table %d at %s: %w", *r.TableID, r.Interval(), reservation.ErrSchedulingConflict)
		}
	}
	return write(ctx, r)
}

// touchedDates lists r.Date and every following date its end spills into.
func touchedDates(r reservation.Reservation, loc *time.Location) []civil.Date {
	last := slots.DateOf(r.EndAt.Add(-time.Nanosecond), loc)
	out := []civil.Date{r.Date}
	for d := r.Date.AddDays(1); !d.After(last); d = d.AddDays(1) {
		out = append(out, d)
	}
	return out
}

// run bounds op by the booking timeout and retries a transaction failure once.
func (g *Guard) run(ctx context.Context, pol Policy, op func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, pol.BookingTimeout)
	defer cancel()

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(retryDelay), 1), ctx)
	err := backoff.Retry(func() error {
		err := op(ctx)
		if err == nil || reservation.IsRetryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}, b)
	return deadlineFailure(err)
}

// deadlineFailure reports an expired or cancelled context as a retryable
// transaction failure.
func deadlineFailure(err error) error {
	if err != nil && !reservation.IsRetryable(err) && (errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)) {
		return fmt.Errorf("%w: %v", reservation.ErrTransactionFailure, err)
	}
	return err
}
