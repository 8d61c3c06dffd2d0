// Package scheduler runs periodic housekeeping against the booking service.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/example/tablesched/internal/reservation"
	"github.com/example/tablesched/internal/slots"
)

// Bookings is the part of the engine the sweeper drives.
type Bookings interface {
	Catalog() slots.Catalog
	List(ctx context.Context, date civil.Date, by reservation.Requester) ([]reservation.Reservation, error)
	NoShow(ctx context.Context, id uuid.UUID, by reservation.Requester) (reservation.Reservation, error)
}

// NoShowSweeper polls for confirmed reservations whose grace period has
// elapsed and marks them no_show.
type NoShowSweeper struct {
	Bookings Bookings
	Interval time.Duration
	Now      func() time.Time
}

var sweeper = reservation.Requester{Staff: true}

func (s *NoShowSweeper) Run(ctx context.Context) error {
	t := time.NewTicker(s.Interval)
	defer t.Stop()

	s.Sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep checks today and yesterday in the restaurant's time zone, so a
// late sitting past midnight is still picked up. It returns once every
// transition it started has finished.
func (s *NoShowSweeper) Sweep(ctx context.Context) int {
	now := s.now()
	loc := s.Bookings.Catalog().Location
	today := slots.DateOf(now, loc)

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		marked int
	)
	for _, d := range []civil.Date{today.AddDays(-1), today} {
		list, err := s.Bookings.List(ctx, d, sweeper)
		if err != nil {
			log.WithError(err).WithField("date", d.String()).Warn("no-show sweep: list failed")
			continue
		}
		for _, r := range list {
			if !overdue(r, now) {
				continue
			}
			r := r
			wg.Add(1)
			go func() {
				defer wg.Done()
				if s.markNoShow(ctx, r) {
					mu.Lock()
					marked++
					mu.Unlock()
				}
			}()
		}
	}
	wg.Wait()
	return marked
}

func (s *NoShowSweeper) markNoShow(ctx context.Context, r reservation.Reservation) bool {
	_, err := s.Bookings.NoShow(ctx, r.ID, sweeper)
	switch {
	case err == nil:
		log.WithField("reservation_id", r.ID).Info("marked no-show after grace period")
		return true
	case errors.Is(err, reservation.ErrInvalidTransition):
		// Seated or cancelled since the list was read.
		log.WithField("reservation_id", r.ID).Debug("no-show sweep: row moved on")
	default:
		log.WithError(err).WithField("reservation_id", r.ID).Warn("no-show sweep: transition failed")
	}
	return false
}

// overdue uses the grace period frozen on the row, not the live policy.
func overdue(r reservation.Reservation, now time.Time) bool {
	if r.Status != reservation.StatusConfirmed {
		return false
	}
	grace := time.Duration(r.GracePeriodMinutes) * time.Minute
	return !now.Before(r.StartAt.Add(grace))
}

func (s *NoShowSweeper) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
