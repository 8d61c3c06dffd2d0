package reservation

import (
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
)

// BookingRequest is a customer or staff request for a new reservation.
type BookingRequest struct {
	Customer        Customer
	StartAt         time.Time
	Guests          int
	SpecialRequests string
}

// Validate collects every field problem into one ErrValidation.
func (b BookingRequest) Validate() error {
	var errs *multierror.Error
	if strings.TrimSpace(b.Customer.Name) == "" {
		errs = multierror.Append(errs, fmt.Errorf("customer name required"))
	}
	if strings.TrimSpace(b.Customer.Email) == "" {
		errs = multierror.Append(errs, fmt.Errorf("customer email required"))
	} else if _, err := mail.ParseAddress(b.Customer.Email); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("customer email %q is not a valid address", b.Customer.Email))
	}
	if strings.TrimSpace(b.Customer.Phone) == "" {
		errs = multierror.Append(errs, fmt.Errorf("customer phone required"))
	}
	if b.StartAt.IsZero() {
		errs = multierror.Append(errs, fmt.Errorf("reservation time required"))
	}
	if err := ValidateGuests(b.Guests); err != nil {
		errs = multierror.Append(errs, err)
	}
	if len(b.SpecialRequests) > 1000 {
		errs = multierror.Append(errs, fmt.Errorf("special requests longer than 1000 characters"))
	}
	if err := errs.ErrorOrNil(); err != nil {
		return fmt.Errorf("%w: %s", ErrValidation, flatten(errs))
	}
	return nil
}

func ValidateGuests(n int) error {
	if n < MinGuests || n > MaxGuests {
		return fmt.Errorf("number of guests must be between %d and %d", MinGuests, MaxGuests)
	}
	return nil
}

func flatten(errs *multierror.Error) string {
	parts := make([]string, 0, len(errs.Errors))
	for _, e := range errs.Errors {
		parts = append(parts, e.Error())
	}
	return strings.Join(parts, "; ")
}
