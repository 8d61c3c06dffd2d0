// Package notify delivers reservation events to downstream consumers.
// Delivery is best effort and never affects a committed reservation.
package notify

import (
	"context"
	"time"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"github.com/example/tablesched/internal/reservation"
)

type Kind string

const (
	KindBooked    Kind = "reservation.booked"
	KindMoved     Kind = "reservation.moved"
	KindCancelled Kind = "reservation.cancelled"
	KindSeated    Kind = "reservation.seated"
	KindCompleted Kind = "reservation.completed"
	KindNoShow    Kind = "reservation.no_show"
)

// KindFor maps a status reached by a transition to its event kind.
func KindFor(s reservation.Status) Kind {
	switch s {
	case reservation.StatusCancelled:
		return KindCancelled
	case reservation.StatusSeated:
		return KindSeated
	case reservation.StatusCompleted:
		return KindCompleted
	case reservation.StatusNoShow:
		return KindNoShow
	case reservation.StatusConfirmed, reservation.StatusPending:
		return KindBooked
	}
	return Kind("reservation." + string(s))
}

type Event struct {
	Kind        Kind
	Reservation reservation.Reservation
	At          time.Time
}

type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// LogNotifier writes events to the process log.
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, ev Event) error {
	r := ev.Reservation
	fields := log.Fields{
		"event":       ev.Kind,
		"reservation": r.ID.String(),
		"start":       r.StartAt.Format(time.RFC3339),
		"guests":      r.Guests,
		"status":      r.Status,
	}
	if r.TableID != nil {
		fields["table"] = *r.TableID
	}
	log.WithFields(fields).Info("reservation event")
	return nil
}

// Multi fans an event out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, ev Event) error {
	var errs *multierror.Error
	for _, n := range m {
		if err := n.Notify(ctx, ev); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}

// Discard drops every event.
type Discard struct{}

func (Discard) Notify(context.Context, Event) error { return nil }
