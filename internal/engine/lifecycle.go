package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/example/tablesched/internal/reservation"
	"github.com/example/tablesched/internal/store"
)

// Lifecycle moves reservations through their status machine. Each change
// re-reads the row inside the write transaction and re-validates it there.
type Lifecycle struct {
	reservations store.Reservations
	policy       *PolicyHolder
	now          func() time.Time
}

func NewLifecycle(reservations store.Reservations, policy *PolicyHolder, now func() time.Time) *Lifecycle {
	if now == nil {
		now = time.Now
	}
	return &Lifecycle{reservations: reservations, policy: policy, now: now}
}

// Cancel is open to the owner and to staff, and only while now is earlier
// than the start minus the cancellation window.
func (l *Lifecycle) Cancel(ctx context.Context, id uuid.UUID, by reservation.Requester, now time.Time) (reservation.Reservation, error) {
	window := l.policy.Current().CancellationWindow()
	return l.transition(ctx, id, reservation.StatusCancelled, func(r reservation.Reservation) error {
		if !by.CanAccess(r) {
			return reservation.ErrForbidden
		}
		if err := reservation.CheckTransition(r.Status, reservation.StatusCancelled); err != nil {
			return err
		}
		if !now.Before(r.StartAt.Add(-window)) {
			return fmt.Errorf("%w: cancellations close %s before the reservation", reservation.ErrTooLateToCancel, window)
		}
		return nil
	})
}

func (l *Lifecycle) MarkSeated(ctx context.Context, id uuid.UUID, by reservation.Requester) (reservation.Reservation, error) {
	return l.SetStatus(ctx, id, reservation.StatusSeated, by)
}

func (l *Lifecycle) MarkCompleted(ctx context.Context, id uuid.UUID, by reservation.Requester) (reservation.Reservation, error) {
	return l.SetStatus(ctx, id, reservation.StatusCompleted, by)
}

func (l *Lifecycle) MarkNoShow(ctx context.Context, id uuid.UUID, by reservation.Requester) (reservation.Reservation, error) {
	return l.SetStatus(ctx, id, reservation.StatusNoShow, by)
}

// SetStatus is the staff path. It follows the transition table but not the
// cancellation window.
func (l *Lifecycle) SetStatus(ctx context.Context, id uuid.UUID, to reservation.Status, by reservation.Requester) (reservation.Reservation, error) {
	return l.transition(ctx, id, to, func(reservation.Reservation) error {
		if !by.Staff {
			return reservation.ErrForbidden
		}
		return nil
	})
}

// transition is bounded by the booking timeout; a row lock held past it
// surfaces as ErrTransactionFailure.
func (l *Lifecycle) transition(ctx context.Context, id uuid.UUID, to reservation.Status, allow func(reservation.Reservation) error) (reservation.Reservation, error) {
	ctx, cancel := context.WithTimeout(ctx, l.policy.Current().BookingTimeout)
	defer cancel()

	var out reservation.Reservation
	err := l.reservations.Update(ctx, func(tx store.Tx) error {
		r, err := tx.Get(ctx, id)
		if err != nil {
			return err
		}
		if err := allow(r); err != nil {
			return err
		}
		if err := reservation.CheckTransition(r.Status, to); err != nil {
			return err
		}
		r.Status = to
		r.UpdatedAt = l.now()
		if err := tx.Save(ctx, r); err != nil {
			return err
		}
		out = r
		return nil
	})
	if err != nil {
		return reservation.Reservation{}, fmt.Errorf("reservation %s -> %s: %w", id, to, deadlineFailure(err))
	}
	return out, nil
}
