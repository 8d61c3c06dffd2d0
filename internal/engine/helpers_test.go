package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/require"

	"github.com/example/tablesched/internal/notify"
	"github.com/example/tablesched/internal/reservation"
	"github.com/example/tablesched/internal/slots"
	"github.com/example/tablesched/internal/store"
)

// day is a Tuesday; the fixture clock starts the morning before.
var day = civil.Date{Year: 2026, Month: time.March, Day: 3}

func at(hour, minute int) time.Time {
	return time.Date(2026, time.March, 3, hour, minute, 0, 0, time.UTC)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type eventSink struct {
	ch chan notify.Event
}

func (s *eventSink) Notify(ctx context.Context, ev notify.Event) error {
	s.ch <- ev
	return nil
}

type fixture struct {
	store    *store.MemoryStore
	tableIDs []int64
	policy   *PolicyHolder
	clock    *fakeClock
	events   *eventSink
	svc      *Service
}

func testCatalog() slots.Catalog {
	return slots.Catalog{Windows: slots.DefaultWindows(), Interval: 30 * time.Minute, Location: time.UTC}
}

// newFixture builds a service over an in-memory store holding one table per
// capacity, in order.
func newFixture(t *testing.T, capacities ...int) *fixture {
	t.Helper()
	f := &fixture{
		store:  store.NewMemoryStore(),
		policy: NewPolicyHolder(DefaultPolicy()),
		clock:  &fakeClock{t: time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)},
		events: &eventSink{ch: make(chan notify.Event, 64)},
	}
	for i, c := range capacities {
		f.tableIDs = append(f.tableIDs, f.store.AddTable(reservation.Table{Label: fmt.Sprintf("T%d", i+1), Capacity: c, Active: true}))
	}
	f.svc = f.service(f.store)
	return f
}

// service wires a service whose reservation rows come from rs.
func (f *fixture) service(rs store.Reservations, opts ...Option) *Service {
	opts = append([]Option{WithClock(f.clock.Now), WithNotifier(f.events)}, opts...)
	return NewService(testCatalog(), f.store, rs, f.policy, opts...)
}

func request(start time.Time, guests int) reservation.BookingRequest {
	return reservation.BookingRequest{
		Customer: reservation.Customer{Name: "Ada Lovelace", Email: "ada@example.com", Phone: "+44 20 7946 0000"},
		StartAt:  start,
		Guests:   guests,
	}
}

func ownedRequest(start time.Time, guests int, userID int64) reservation.BookingRequest {
	req := request(start, guests)
	req.Customer.UserID = &userID
	return req
}

func (f *fixture) book(t *testing.T, start time.Time, guests int) reservation.Reservation {
	t.Helper()
	r, err := f.svc.Book(context.Background(), request(start, guests))
	require.NoError(t, err)
	return r
}

func (f *fixture) nextEvent(t *testing.T) notify.Event {
	t.Helper()
	select {
	case ev := <-f.events.ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no notification delivered")
		return notify.Event{}
	}
}

// requireNoOverlap checks the stored active rows of day pairwise.
func (f *fixture) requireNoOverlap(t *testing.T) {
	t.Helper()
	err := f.store.View(context.Background(), func(tx store.Tx) error {
		rows, err := tx.ListActive(context.Background(), day)
		if err != nil {
			return err
		}
		for i := range rows {
			for j := i + 1; j < len(rows); j++ {
				a, b := rows[i], rows[j]
				if *a.TableID == *b.TableID && a.Interval().Overlaps(b.Interval()) {
					return fmt.Errorf("table %d: %s overlaps %s", *a.TableID, a.Interval(), b.Interval())
				}
			}
		}
		return nil
	})
	require.NoError(t, err)
}

var staff = reservation.Requester{UserID: 99, Staff: true}
