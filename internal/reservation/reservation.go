// Package reservation holds the booking domain model shared by the engine,
// the stores and the HTTP layer.
package reservation

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"github.com/example/tablesched/internal/slots"
)

const (
	MinGuests = 1
	MaxGuests = 20
)

// Table is owned by the inventory module and read-only here.
type Table struct {
	ID           int64
	Label        string
	Capacity     int
	MinPartySize int
	Active       bool
}

// Fits reports whether a party of guests may be seated at the table.
func (t Table) Fits(guests int) bool {
	least := t.MinPartySize
	if least < 1 {
		least = 1
	}
	return guests >= least && guests <= t.Capacity
}

type Customer struct {
	Name   string
	Email  string
	Phone  string
	UserID *int64
}

type Reservation struct {
	ID       uuid.UUID
	TableID  *int64
	Customer Customer

	SpecialRequests string

	Date    civil.Date
	StartAt time.Time
	EndAt   time.Time
	Guests  int

	// Copied from policy at booking time and never recomputed from configuration.
	DurationMinutes    int
	GracePeriodMinutes int
	MaxSittingMinutes  int

	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (r Reservation) Interval() slots.Interval {
	return slots.Interval{Start: r.StartAt, End: r.EndAt}
}

func (r Reservation) Duration() time.Duration {
	return time.Duration(r.DurationMinutes) * time.Minute
}

// OnTable reports whether r is assigned to table id.
func (r Reservation) OnTable(id int64) bool {
	return r.TableID != nil && *r.TableID == id
}

// OwnedBy reports whether the reservation is linked to userID.
func (r Reservation) OwnedBy(userID int64) bool {
	return r.Customer.UserID != nil && *r.Customer.UserID == userID
}

// Requester is the authenticated caller of an operation.
type Requester struct {
	UserID int64
	Staff  bool
}

func (q Requester) CanAccess(r Reservation) bool {
	return q.Staff || (q.UserID != 0 && r.OwnedBy(q.UserID))
}
