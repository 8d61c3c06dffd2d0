package cmd

import (
	"context"
	"fmt"

	"github.com/example/tablesched/internal/config"
	"github.com/example/tablesched/internal/db"
	"github.com/example/tablesched/internal/engine"
	"github.com/example/tablesched/internal/logging"
	"github.com/example/tablesched/internal/migrate"
	"github.com/example/tablesched/internal/store/postgres"
)

// backend is the database-backed state shared by every command.
type backend struct {
	cfg          config.Config
	db           *db.DB
	tables       *postgres.Tables
	reservations *postgres.Reservations
}

func openBackend(ctx context.Context, cfg config.Config, migrateUp bool) (*backend, error) {
	if err := logging.Setup(cfg.Log); err != nil {
		return nil, err
	}
	if migrateUp {
		if err := migrate.Up(ctx, cfg.DatabaseURL); err != nil {
			return nil, err
		}
	}
	d, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := d.Ping(ctx); err != nil {
		d.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return &backend{
		cfg:          cfg,
		db:           d,
		tables:       postgres.NewTables(d),
		reservations: postgres.NewReservations(d),
	}, nil
}

func (b *backend) Close() { b.db.Close() }

func (b *backend) service(policy *engine.PolicyHolder, opts ...engine.Option) *engine.Service {
	return engine.NewService(b.cfg.Catalog, b.tables, b.reservations, policy, opts...)
}
