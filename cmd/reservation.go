package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/example/tablesched/internal/config"
	"github.com/example/tablesched/internal/engine"
	"github.com/example/tablesched/internal/notify"
	"github.com/example/tablesched/internal/reservation"
	"github.com/example/tablesched/internal/slots"
)

// The CLI acts with staff rights; whoever can reach the database already has them.
var operator = reservation.Requester{Staff: true}

func newReservationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "reservation",
		Aliases: []string{"res"},
		Short:   "Query availability and manage reservations (non-UI)",
	}
	cmd.AddCommand(newAvailabilityCmd())
	cmd.AddCommand(newBookCmd())
	cmd.AddCommand(newCancelCmd())
	cmd.AddCommand(newReservationListCmd())
	return cmd
}

// withService opens the backend and runs fn against a service using the
// configured policy.
func withService(fn func(ctx context.Context, svc *engine.Service) error) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	ctx := context.Background()
	b, err := openBackend(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer b.Close()

	svc := b.service(engine.NewPolicyHolder(cfg.Policy), engine.WithNotifier(notify.LogNotifier{}))
	return fn(ctx, svc)
}

func newAvailabilityCmd() *cobra.Command {
	var (
		date   string
		guests int
	)
	c := &cobra.Command{
		Use:   "availability",
		Short: "Show every slot of a date and how many tables are free",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := slots.ParseDate(date)
			if err != nil {
				return err
			}
			return withService(func(ctx context.Context, svc *engine.Service) error {
				avail, err := svc.Availability(ctx, d, guests)
				if err != nil {
					return err
				}
				for _, a := range avail {
					fmt.Fprintf(cmd.OutOrStdout(), "%s available=%t tables=%d capacity=%d ids=%v\n",
						slots.FormatClock(a.Time), a.Available, a.AvailableTables, a.TotalCapacity, a.TableIDs)
				}
				return nil
			})
		},
	}
	c.Flags().StringVar(&date, "date", "", "date YYYY-MM-DD")
	c.Flags().IntVar(&guests, "guests", 0, "party size (0 lists every table)")
	_ = c.MarkFlagRequired("date")
	return c
}

func newBookCmd() *cobra.Command {
	var (
		name, email, phone string
		date, clock        string
		guests             int
		requests           string
		userID             int64
	)
	c := &cobra.Command{
		Use:   "book",
		Short: "Book a table at a catalog slot",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := slots.ParseDate(date)
			if err != nil {
				return err
			}
			t, err := slots.ParseClock(clock)
			if err != nil {
				return err
			}
			return withService(func(ctx context.Context, svc *engine.Service) error {
				req := reservation.BookingRequest{
					Customer:        reservation.Customer{Name: name, Email: email, Phone: phone},
					StartAt:         slots.At(d, t, svc.Catalog().Location),
					Guests:          guests,
					SpecialRequests: requests,
				}
				if userID != 0 {
					req.Customer.UserID = &userID
				}
				r, err := svc.Book(ctx, req)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "booked id=%s table=%d start=%s end=%s status=%s\n",
					r.ID, *r.TableID, r.StartAt.Format(time.RFC3339), r.EndAt.Format(time.RFC3339), r.Status)
				return nil
			})
		},
	}
	c.Flags().StringVar(&name, "name", "", "customer name")
	c.Flags().StringVar(&email, "email", "", "customer email")
	c.Flags().StringVar(&phone, "phone", "", "customer phone")
	c.Flags().StringVar(&date, "date", "", "date YYYY-MM-DD")
	c.Flags().StringVar(&clock, "time", "", "start time HH:MM")
	c.Flags().IntVar(&guests, "guests", 2, "party size")
	c.Flags().StringVar(&requests, "requests", "", "special requests")
	c.Flags().Int64Var(&userID, "user-id", 0, "link the reservation to a user")
	for _, f := range []string{"name", "email", "phone", "date", "time"} {
		_ = c.MarkFlagRequired(f)
	}
	return c
}

func newCancelCmd() *cobra.Command {
	var (
		id    string
		force bool
	)
	c := &cobra.Command{
		Use:   "cancel",
		Short: "Cancel a reservation",
		RunE: func(cmd *cobra.Command, args []string) error {
			rid, err := uuid.Parse(id)
			if err != nil {
				return fmt.Errorf("invalid --id: %w", err)
			}
			return withService(func(ctx context.Context, svc *engine.Service) error {
				var r reservation.Reservation
				if force {
					cancelled := reservation.StatusCancelled
					r, err = svc.Update(ctx, rid, engine.StaffUpdate{Status: &cancelled}, operator)
				} else {
					r, err = svc.Cancel(ctx, rid, operator)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "id=%s status=%s\n", r.ID, r.Status)
				return nil
			})
		},
	}
	c.Flags().StringVar(&id, "id", "", "reservation id")
	c.Flags().BoolVar(&force, "force", false, "ignore the cancellation window")
	_ = c.MarkFlagRequired("id")
	return c
}

func newReservationListCmd() *cobra.Command {
	var date string
	c := &cobra.Command{
		Use:   "list",
		Short: "List every reservation on a date",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := slots.ParseDate(date)
			if err != nil {
				return err
			}
			return withService(func(ctx context.Context, svc *engine.Service) error {
				list, err := svc.List(ctx, d, operator)
				if err != nil {
					return err
				}
				loc := svc.Catalog().Location
				for _, r := range list {
					table := "-"
					if r.TableID != nil {
						table = fmt.Sprint(*r.TableID)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "id=%s table=%s %s-%s guests=%d status=%s name=%q%s\n",
						r.ID, table, slots.FormatClock(r.StartAt.In(loc)), slots.FormatClock(r.EndAt.In(loc)),
						r.Guests, r.Status, r.Customer.Name, requestsSuffix(r.SpecialRequests))
				}
				return nil
			})
		},
	}
	c.Flags().StringVar(&date, "date", "", "date YYYY-MM-DD")
	_ = c.MarkFlagRequired("date")
	return c
}

func requestsSuffix(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	return fmt.Sprintf(" requests=%q", s)
}
