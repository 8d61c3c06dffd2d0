// Package engine computes availability, allocates tables and commits
// reservations without double-booking.
package engine

import (
	"errors"
	"sync/atomic"
	"time"
)

// Policy holds the values copied onto each new reservation plus the
// operational limits of the booking path.
type Policy struct {
	DurationMinutes           int
	GracePeriodMinutes        int
	MaxSittingMinutes         int
	CancellationWindowMinutes int
	BookingTimeout            time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		DurationMinutes:           105,
		GracePeriodMinutes:        15,
		MaxSittingMinutes:         120,
		CancellationWindowMinutes: 120,
		BookingTimeout:            5 * time.Second,
	}
}

func (p Policy) Validate() error {
	switch {
	case p.DurationMinutes < 1:
		return errors.New("duration must be at least one minute")
	case p.GracePeriodMinutes < 0:
		return errors.New("grace period cannot be negative")
	case p.MaxSittingMinutes < p.DurationMinutes:
		return errors.New("max sitting cannot be shorter than the duration")
	case p.CancellationWindowMinutes < 0:
		return errors.New("cancellation window cannot be negative")
	case p.BookingTimeout <= 0:
		return errors.New("booking timeout must be positive")
	}
	return nil
}

func (p Policy) Duration() time.Duration {
	return time.Duration(p.DurationMinutes) * time.Minute
}

func (p Policy) CancellationWindow() time.Duration {
	return time.Duration(p.CancellationWindowMinutes) * time.Minute
}

// PolicyHolder lets configuration reloads swap the policy while requests
// are in flight. Each operation reads it once.
type PolicyHolder struct {
	v atomic.Pointer[Policy]
}

func NewPolicyHolder(p Policy) *PolicyHolder {
	h := &PolicyHolder{}
	h.v.Store(&p)
	return h
}

func (h *PolicyHolder) Current() Policy {
	return *h.v.Load()
}

func (h *PolicyHolder) Set(p Policy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	h.v.Store(&p)
	return nil
}
