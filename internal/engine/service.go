package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/example/tablesched/internal/metrics"
	"github.com/example/tablesched/internal/notify"
	"github.com/example/tablesched/internal/reservation"
	"github.com/example/tablesched/internal/slots"
	"github.com/example/tablesched/internal/store"
)

// AvailabilityCache fronts Calculator.ForDate. Implementations must treat
// Invalidate as retiring every entry of the date.
type AvailabilityCache interface {
	Get(ctx context.Context, date civil.Date, guests int, load func(context.Context) ([]SlotAvailability, error)) ([]SlotAvailability, error)
	Invalidate(ctx context.Context, date civil.Date) error
}

// Service is the entry point used by the HTTP and CLI layers. It adds
// authorization, logging, metrics, cache invalidation and notifications
// around the calculator, guard and lifecycle.
type Service struct {
	catalog      slots.Catalog
	reservations store.Reservations
	policy       *PolicyHolder

	calc      *Calculator
	guard     *Guard
	lifecycle *Lifecycle

	notifier notify.Notifier
	cache    AvailabilityCache
	now      func() time.Time
}

type Option func(*Service)

func WithNotifier(n notify.Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithCache(c AvailabilityCache) Option {
	return func(s *Service) { s.cache = c }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(catalog slots.Catalog, tables store.TableInventory, reservations store.Reservations, policy *PolicyHolder, opts ...Option) *Service {
	s := &Service{
		catalog:      catalog,
		reservations: reservations,
		policy:       policy,
		notifier:     notify.LogNotifier{},
		now:          time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	s.calc = NewCalculator(catalog, tables, reservations, policy)
	s.guard = NewGuard(catalog, tables, reservations, NewAllocator(s.calc), policy, s.now)
	s.lifecycle = NewLifecycle(reservations, policy, s.now)
	return s
}

func (s *Service) Catalog() slots.Catalog { return s.catalog }

func (s *Service) Policy() *PolicyHolder { return s.policy }

func (s *Service) Availability(ctx context.Context, date civil.Date, guests int) ([]SlotAvailability, error) {
	load := func(ctx context.Context) ([]SlotAvailability, error) {
		return s.calc.ForDate(ctx, date, guests)
	}
	if s.cache == nil {
		metrics.AvailabilityQuery("store")
		return load(ctx)
	}
	return s.cache.Get(ctx, date, guests, load)
}

func (s *Service) Book(ctx context.Context, req reservation.BookingRequest) (reservation.Reservation, error) {
	defer metrics.Time("book")()

	r, err := s.guard.Book(ctx, req)
	metrics.Booking(err)
	entry := log.WithFields(log.Fields{
		"start":  req.StartAt.Format(time.RFC3339),
		"guests": req.Guests,
	})
	if err != nil {
		logFailure(entry, err, "booking rejected")
		return reservation.Reservation{}, err
	}
	entry.WithFields(log.Fields{"reservation": r.ID.String(), "table": *r.TableID}).Info("reservation booked")
	s.committed(ctx, notify.KindBooked, r, r.Date)
	return r, nil
}

func (s *Service) Cancel(ctx context.Context, id uuid.UUID, by reservation.Requester) (reservation.Reservation, error) {
	r, err := s.lifecycle.Cancel(ctx, id, by, s.now())
	return s.afterTransition(ctx, id, reservation.StatusCancelled, r, err)
}

func (s *Service) Seat(ctx context.Context, id uuid.UUID, by reservation.Requester) (reservation.Reservation, error) {
	r, err := s.lifecycle.MarkSeated(ctx, id, by)
	return s.afterTransition(ctx, id, reservation.StatusSeated, r, err)
}

func (s *Service) Complete(ctx context.Context, id uuid.UUID, by reservation.Requester) (reservation.Reservation, error) {
	r, err := s.lifecycle.MarkCompleted(ctx, id, by)
	return s.afterTransition(ctx, id, reservation.StatusCompleted, r, err)
}

func (s *Service) NoShow(ctx context.Context, id uuid.UUID, by reservation.Requester) (reservation.Reservation, error) {
	r, err := s.lifecycle.MarkNoShow(ctx, id, by)
	return s.afterTransition(ctx, id, reservation.StatusNoShow, r, err)
}

// StaffUpdate is a staff PATCH. A table, time or party size change and a
// status change in the same update commit together or not at all.
type StaffUpdate struct {
	Change
	Status *reservation.Status
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, u StaffUpdate, by reservation.Requester) (reservation.Reservation, error) {
	if !by.Staff {
		return reservation.Reservation{}, reservation.ErrForbidden
	}
	if u.Change.Empty() && u.Status == nil {
		return reservation.Reservation{}, fmt.Errorf("%w: nothing to update", reservation.ErrValidation)
	}
	if u.Change.Empty() {
		r, err := s.lifecycle.SetStatus(ctx, id, *u.Status, by)
		return s.afterTransition(ctx, id, *u.Status, r, err)
	}

	defer metrics.Time("move")()
	before, after, err := s.guard.Move(ctx, id, u.Change, u.Status)
	if u.Status != nil {
		metrics.Transition(*u.Status, err)
	}
	entry := log.WithField("reservation", id.String())
	if err != nil {
		logFailure(entry, err, "reservation update rejected")
		return reservation.Reservation{}, err
	}
	entry.WithFields(log.Fields{
		"table":  *after.TableID,
		"start":  after.StartAt.Format(time.RFC3339),
		"status": after.Status,
	}).Info("reservation moved")
	if before.Date != after.Date {
		s.invalidate(ctx, before.Date)
	}
	s.committed(ctx, notify.KindMoved, after, after.Date)
	if after.Status != before.Status {
		s.publish(ctx, notify.KindFor(after.Status), after)
	}
	return after, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID, by reservation.Requester) (reservation.Reservation, error) {
	var r reservation.Reservation
	err := s.reservations.View(ctx, func(tx store.Tx) error {
		var err error
		r, err = tx.Get(ctx, id)
		return err
	})
	if err != nil {
		return reservation.Reservation{}, err
	}
	if !by.CanAccess(r) {
		return reservation.Reservation{}, reservation.ErrForbidden
	}
	return r, nil
}

// List returns every reservation on date, staff only.
func (s *Service) List(ctx context.Context, date civil.Date, by reservation.Requester) ([]reservation.Reservation, error) {
	if !by.Staff {
		return nil, reservation.ErrForbidden
	}
	var out []reservation.Reservation
	err := s.reservations.View(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.ListByDate(ctx, date)
		return err
	})
	return out, err
}

func (s *Service) afterTransition(ctx context.Context, id uuid.UUID, to reservation.Status, r reservation.Reservation, err error) (reservation.Reservation, error) {
	metrics.Transition(to, err)
	entry := log.WithFields(log.Fields{"reservation": id.String(), "to": to})
	if err != nil {
		logFailure(entry, err, "transition rejected")
		return reservation.Reservation{}, err
	}
	entry.Info("reservation status changed")
	s.committed(ctx, notify.KindFor(to), r, r.Date)
	return r, nil
}

// committed runs the post-commit side effects. Neither can fail the
// operation.
func (s *Service) committed(ctx context.Context, kind notify.Kind, r reservation.Reservation, date civil.Date) {
	s.invalidate(ctx, date)
	s.publish(ctx, kind, r)
}

// publish delivers on a detached goroutine; a failed delivery is only logged.
func (s *Service) publish(ctx context.Context, kind notify.Kind, r reservation.Reservation) {
	ev := notify.Event{Kind: kind, Reservation: r, At: s.now()}
	go func(ctx context.Context) {
		if err := s.notifier.Notify(ctx, ev); err != nil {
			metrics.NotifyError()
			log.WithError(err).WithField("reservation", r.ID.String()).Warn("notification failed")
		}
	}(context.WithoutCancel(ctx))
}

func (s *Service) invalidate(ctx context.Context, date civil.Date) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(context.WithoutCancel(ctx), date); err != nil {
		log.WithError(err).WithField("date", date.String()).Warn("availability cache invalidation failed")
	}
}

func logFailure(entry *log.Entry, err error, msg string) {
	switch {
	case errors.Is(err, reservation.ErrSchedulingConflict), errors.Is(err, reservation.ErrNoTableAvailable):
		entry.WithError(err).Warn(msg)
	case errors.Is(err, reservation.ErrTransactionFailure):
		entry.WithError(err).Error(msg)
	default:
		entry.WithError(err).Info(msg)
	}
}
