package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/example/tablesched/internal/reservation"
	"github.com/example/tablesched/internal/slots"
)

// Allocator picks a table for a party. The choice is advisory; Guard
// re-checks it under lock before anything is written.
type Allocator struct {
	calc *Calculator
}

func NewAllocator(calc *Calculator) *Allocator {
	return &Allocator{calc: calc}
}

// Candidates returns the free tables for iv in best-fit order: smallest
// capacity first, then lowest id.
func (a *Allocator) Candidates(ctx context.Context, iv slots.Interval, guests int) ([]reservation.Table, error) {
	free, err := a.calc.AtInterval(ctx, iv, guests)
	if err != nil {
		return nil, err
	}
	sortBestFit(free)
	return free, nil
}

func (a *Allocator) Allocate(ctx context.Context, iv slots.Interval, guests int) (reservation.Table, error) {
	candidates, err := a.Candidates(ctx, iv, guests)
	if err != nil {
		return reservation.Table{}, err
	}
	if len(candidates) == 0 {
		return reservation.Table{}, fmt.Errorf("%d guests at %s: %w", guests, iv, reservation.ErrNoTableAvailable)
	}
	return candidates[0], nil
}

func sortBestFit(tables []reservation.Table) {
	sort.SliceStable(tables, func(i, j int) bool {
		if tables[i].Capacity != tables[j].Capacity {
			return tables[i].Capacity < tables[j].Capacity
		}
		return tables[i].ID < tables[j].ID
	})
}
