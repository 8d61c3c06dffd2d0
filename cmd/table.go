package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/tablesched/internal/config"
	"github.com/example/tablesched/internal/reservation"
)

func newTableCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "table",
		Short: "Manage the dining room inventory",
	}
	cmd.AddCommand(newTableAddCmd())
	cmd.AddCommand(newTableListCmd())
	cmd.AddCommand(newTableSetActiveCmd())
	return cmd
}

func newTableAddCmd() *cobra.Command {
	var (
		label    string
		capacity int
		minParty int
	)

	c := &cobra.Command{
		Use:   "add",
		Short: "Add a table",
		RunE: func(cmd *cobra.Command, args []string) error {
			if capacity < 1 || minParty < 1 || minParty > capacity {
				return fmt.Errorf("need 1 <= --min-party <= --capacity")
			}
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			ctx := context.Background()
			b, err := openBackend(ctx, cfg, true)
			if err != nil {
				return err
			}
			defer b.Close()

			id, err := b.tables.Create(ctx, reservation.Table{Label: label, Capacity: capacity, MinPartySize: minParty, Active: true})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created table id=%d label=%q capacity=%d min_party=%d\n", id, label, capacity, minParty)
			return nil
		},
	}

	c.Flags().StringVar(&label, "label", "", "table label shown to staff")
	c.Flags().IntVar(&capacity, "capacity", 0, "seats")
	c.Flags().IntVar(&minParty, "min-party", 1, "smallest party the table is given to")
	_ = c.MarkFlagRequired("label")
	_ = c.MarkFlagRequired("capacity")
	return c
}

func newTableListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tables",
		RunE: func(cmd *cobra.Command, args []string) error {
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

			tables, err := b.tables.List(ctx)
			if err != nil {
				return err
			}
			for _, t := range tables {
				fmt.Fprintf(cmd.OutOrStdout(), "id=%d label=%q capacity=%d min_party=%d active=%t\n",
					t.ID, t.Label, t.Capacity, t.MinPartySize, t.Active)
			}
			return nil
		},
	}
}

func newTableSetActiveCmd() *cobra.Command {
	var (
		id     int64
		active bool
	)
	c := &cobra.Command{
		Use:   "set-active",
		Short: "Take a table in or out of service",
		RunE: func(cmd *cobra.Command, args []string) error {
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

			if err := b.tables.SetActive(ctx, id, active); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "table id=%d active=%t\n", id, active)
			return nil
		},
	}
	c.Flags().Int64Var(&id, "id", 0, "table id")
	c.Flags().BoolVar(&active, "active", true, "whether the table takes bookings")
	_ = c.MarkFlagRequired("id")
	return c
}
