package engine

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/civil"

	"github.com/example/tablesched/internal/reservation"
	"github.com/example/tablesched/internal/slots"
	"github.com/example/tablesched/internal/store"
)

// SlotAvailability describes one catalog start time.
type SlotAvailability struct {
	Time            time.Time
	Available       bool
	AvailableTables int
	TotalCapacity   int
	TableIDs        []int64
}

// Calculator answers availability questions from one consistent snapshot
// per call. It never writes.
type Calculator struct {
	catalog      slots.Catalog
	tables       store.TableInventory
	reservations store.Reservations
	policy       *PolicyHolder
}

func NewCalculator(catalog slots.Catalog, tables store.TableInventory, reservations store.Reservations, policy *PolicyHolder) *Calculator {
	return &Calculator{catalog: catalog, tables: tables, reservations: reservations, policy: policy}
}

// ForDate evaluates every catalog slot of date. A guests value of zero skips
// the party size filter.
func (c *Calculator) ForDate(ctx context.Context, date civil.Date, guests int) ([]SlotAvailability, error) {
	if guests != 0 {
		if err := reservation.ValidateGuests(guests); err != nil {
			return nil, fmt.Errorf("%w: %v", reservation.ErrValidation, err)
		}
	}
	starts := c.catalog.StartTimes(date)
	if len(starts) == 0 {
		return []SlotAvailability{}, nil
	}

	tables, err := c.tables.ActiveTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("load tables: %w", err)
	}
	duration := c.policy.Current().Duration()
	last := starts[len(starts)-1].Add(duration)
	booked, err := c.activeBetween(ctx, starts[0], last)
	if err != nil {
		return nil, err
	}

	out := make([]SlotAvailability, 0, len(starts))
	for _, t := range starts {
		free := freeTables(tables, booked, slots.NewInterval(t, duration), guests)
		slot := SlotAvailability{
			Time:            t,
			Available:       len(free) > 0,
			AvailableTables: len(free),
			TableIDs:        make([]int64, 0, len(free)),
		}
		for _, tbl := range free {
			slot.TotalCapacity += tbl.Capacity
			slot.TableIDs = append(slot.TableIDs, tbl.ID)
		}
		out = append(out, slot)
	}
	return out, nil
}

// AtInterval returns the active tables that can seat guests for the whole of iv.
func (c *Calculator) AtInterval(ctx context.Context, iv slots.Interval, guests int) ([]reservation.Table, error) {
	tables, err := c.tables.ActiveTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("load tables: %w", err)
	}
	booked, err := c.activeBetween(ctx, iv.Start, iv.End)
	if err != nil {
		return nil, err
	}
	return freeTables(tables, booked, iv, guests), nil
}

// activeBetween reads pending and confirmed rows of every date touched by
// [from, to) in one snapshot, plus the day before so that a late sitting
// running past midnight is seen.
func (c *Calculator) activeBetween(ctx context.Context, from, to time.Time) ([]reservation.Reservation, error) {
	first := slots.DateOf(from, c.catalog.Location).AddDays(-1)
	last := slots.DateOf(to.Add(-time.Nanosecond), c.catalog.Location)

	var out []reservation.Reservation
	err := c.reservations.View(ctx, func(tx store.Tx) error {
		for d := first; !d.After(last); d = d.AddDays(1) {
			rows, err := tx.ListActive(ctx, d)
			if err != nil {
				return err
			}
			out = append(out, rows...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load reservations: %w", err)
	}
	return out, nil
}

func freeTables(tables []reservation.Table, booked []reservation.Reservation, iv slots.Interval, guests int) []reservation.Table {
	var out []reservation.Table
	for _, t := range tables {
		if guests != 0 && !t.Fits(guests) {
			continue
		}
		if occupied(t.ID, booked, iv) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func occupied(tableID int64, booked []reservation.Reservation, iv slots.Interval) bool {
	for _, r := range booked {
		if r.OnTable(tableID) && r.Status.Active() && r.Interval().Overlaps(iv) {
			return true
		}
	}
	return false
}
