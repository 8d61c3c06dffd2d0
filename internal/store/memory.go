package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"github.com/example/tablesched/internal/reservation"
)

// MemoryStore implements TableInventory and Reservations in process memory.
// Writers are serialized store-wide, readers work on copies of committed rows.
type MemoryStore struct {
	mu           sync.RWMutex
	tables       map[int64]reservation.Table
	reservations map[uuid.UUID]reservation.Reservation
	nextTableID  int64

	writer chan struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tables:       make(map[int64]reservation.Table),
		reservations: make(map[uuid.UUID]reservation.Reservation),
		writer:       make(chan struct{}, 1),
	}
}

// AddTable registers a table and returns its id. An id of zero is assigned.
func (s *MemoryStore) AddTable(t reservation.Table) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.ID == 0 {
		s.nextTableID++
		t.ID = s.nextTableID
	} else if t.ID > s.nextTableID {
		s.nextTableID = t.ID
	}
	if t.MinPartySize < 1 {
		t.MinPartySize = 1
	}
	s.tables[t.ID] = t
	return t.ID
}

// SetTableActive flips the active flag of a table.
func (s *MemoryStore) SetTableActive(id int64, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tables[id]
	if !ok {
		return fmt.Errorf("table %d: %w", id, reservation.ErrNotFound)
	}
	t.Active = active
	s.tables[id] = t
	return nil
}

func (s *MemoryStore) ActiveTables(ctx context.Context) ([]reservation.Table, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]reservation.Table, 0, len(s.tables))
	for _, t := range s.tables {
		if t.Active {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) GetTable(ctx context.Context, id int64) (reservation.Table, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tables[id]
	if !ok {
		return reservation.Table{}, fmt.Errorf("table %d: %w", id, reservation.ErrNotFound)
	}
	return t, nil
}

func (s *MemoryStore) snapshot() map[uuid.UUID]reservation.Reservation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make(map[uuid.UUID]reservation.Reservation, len(s.reservations))
	for id, r := range s.reservations {
		rows[id] = r
	}
	return rows
}

func (s *MemoryStore) View(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", reservation.ErrTransactionFailure, err)
	}
	return fn(&memTx{rows: s.snapshot()})
}

func (s *MemoryStore) Update(ctx context.Context, fn func(tx Tx) error) error {
	select {
	case s.writer <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("%w: waiting for writer: %v", reservation.ErrTransactionFailure, ctx.Err())
	}
	defer func() { <-s.writer }()

	tx := &memTx{rows: s.snapshot(), writable: true, dirty: make(map[uuid.UUID]struct{})}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: commit: %v", reservation.ErrTransactionFailure, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range tx.dirty {
		s.reservations[id] = tx.rows[id]
	}
	return nil
}

type memTx struct {
	rows     map[uuid.UUID]reservation.Reservation
	writable bool
	dirty    map[uuid.UUID]struct{}
}

func (tx *memTx) LockTableDay(ctx context.Context, tableID int64, date civil.Date) error {
	if !tx.writable {
		return fmt.Errorf("lock table %d on %s: read-only transaction", tableID, date)
	}
	return ctx.Err()
}

func (tx *memTx) ListActive(ctx context.Context, date civil.Date) ([]reservation.Reservation, error) {
	return tx.filter(func(r reservation.Reservation) bool {
		return r.Date == date && r.Status.Active()
	}), nil
}

func (tx *memTx) ListActiveForTable(ctx context.Context, tableID int64, from, to time.Time) ([]reservation.Reservation, error) {
	return tx.filter(func(r reservation.Reservation) bool {
		return r.OnTable(tableID) && r.Status.Active() && r.StartAt.Before(to) && from.Before(r.EndAt)
	}), nil
}

func (tx *memTx) ListByDate(ctx context.Context, date civil.Date) ([]reservation.Reservation, error) {
	return tx.filter(func(r reservation.Reservation) bool { return r.Date == date }), nil
}

func (tx *memTx) filter(keep func(reservation.Reservation) bool) []reservation.Reservation {
	var out []reservation.Reservation
	for _, r := range tx.rows {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartAt.Equal(out[j].StartAt) {
			return out[i].StartAt.Before(out[j].StartAt)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (tx *memTx) Get(ctx context.Context, id uuid.UUID) (reservation.Reservation, error) {
	r, ok := tx.rows[id]
	if !ok {
		return reservation.Reservation{}, fmt.Errorf("reservation %s: %w", id, reservation.ErrNotFound)
	}
	return r, nil
}

func (tx *memTx) Insert(ctx context.Context, r reservation.Reservation) error {
	if !tx.writable {
		return fmt.Errorf("insert reservation: read-only transaction")
	}
	if _, ok := tx.rows[r.ID]; ok {
		return fmt.Errorf("insert reservation %s: duplicate id", r.ID)
	}
	if err := tx.checkExclusion(r); err != nil {
		return err
	}
	tx.rows[r.ID] = r
	tx.dirty[r.ID] = struct{}{}
	return nil
}

func (tx *memTx) Save(ctx context.Context, r reservation.Reservation) error {
	if !tx.writable {
		return fmt.Errorf("save reservation: read-only transaction")
	}
	if _, ok := tx.rows[r.ID]; !ok {
		return fmt.Errorf("reservation %s: %w", r.ID, reservation.ErrNotFound)
	}
	if err := tx.checkExclusion(r); err != nil {
		return err
	}
	tx.rows[r.ID] = r
	tx.dirty[r.ID] = struct{}{}
	return nil
}

// checkExclusion mirrors the database exclusion constraint: active rows on
// the same table never overlap.
func (tx *memTx) checkExclusion(r reservation.Reservation) error {
	if r.TableID == nil || !r.Status.Active() {
		return nil
	}
	for id, other := range tx.rows {
		if id == r.ID || !other.Status.Active() || !other.OnTable(*r.TableID) {
			continue
		}
		if other.Interval().Overlaps(r.Interval()) {
			return fmt.Errorf("table %d overlaps reservation %s: %w", *r.TableID, id, reservation.ErrSchedulingConflict)
		}
	}
	return nil
}
