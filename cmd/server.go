package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/example/tablesched/internal/auth"
	"github.com/example/tablesched/internal/cache"
	"github.com/example/tablesched/internal/config"
	"github.com/example/tablesched/internal/engine"
	"github.com/example/tablesched/internal/notify"
	"github.com/example/tablesched/internal/scheduler"
	"github.com/example/tablesched/internal/web"
)

func newServerCmd() *cobra.Command {
	var migrateUp bool

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the reservation HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			loader, err := config.NewLoader()
			if err != nil {
				return err
			}
			cfg, err := loader.Load()
			if err != nil {
				return err
			}
			if err := cfg.RequireCookieKeys(); err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			b, err := openBackend(ctx, cfg, migrateUp)
			if err != nil {
				return err
			}
			defer b.Close()

			policy := engine.NewPolicyHolder(cfg.Policy)
			loader.WatchPolicy(func(p engine.Policy) {
				if err := policy.Set(p); err != nil {
					log.WithError(err).Warn("policy reload rejected")
				}
			})

			opts := []engine.Option{}
			notifiers := notify.Multi{notify.LogNotifier{}}
			if len(cfg.KafkaBrokers) > 0 {
				kn := notify.NewKafkaNotifier(notify.NewKafkaWriter(cfg.KafkaTopic, cfg.KafkaBrokers...))
				defer kn.Close()
				notifiers = append(notifiers, kn)
			}
			opts = append(opts, engine.WithNotifier(notifiers))

			if cfg.RedisAddr != "" {
				rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
				defer rdb.Close()
				if err := rdb.Ping(ctx).Err(); err != nil {
					return fmt.Errorf("redis ping: %w", err)
				}
				opts = append(opts, engine.WithCache(cache.NewAvailability(rdb, cfg.AvailabilityCacheTTL)))
			}

			svc := b.service(policy, opts...)
			if cfg.NoShowSweepInterval > 0 {
				sw := &scheduler.NoShowSweeper{Bookings: svc, Interval: cfg.NoShowSweepInterval}
				go func() {
					if err := sw.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
						log.WithError(err).Error("no-show sweeper stopped")
					}
				}()
			}

			ws := &web.Server{
				Service:        svc,
				Users:          auth.NewUsers(b.db),
				Sessions:       auth.NewSessions(cfg.CookieHashKey, cfg.CookieBlockKey),
				Ping:           b.db.Ping,
				RequestTimeout: 30 * time.Second,
			}
			return web.Start(ctx, cfg.ListenAddr, ws.Routes())
		},
	}

	cmd.Flags().BoolVar(&migrateUp, "migrate", true, "run database migrations on startup")

	cmd.Flags().Lookup("migrate").NoOptDefVal = "true"
	return cmd
}
