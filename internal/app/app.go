// Package app assembles the appointment service from configuration. Both
// leadcal-server and leadcalctl build on it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"

	"leadcal/backend/internal/config"
	"leadcal/backend/internal/events"
	"leadcal/backend/internal/lock"
	"leadcal/backend/internal/service/appointments"
	"leadcal/backend/internal/store"
	"leadcal/backend/internal/store/memory"
	"leadcal/backend/internal/store/postgres"
	"leadcal/backend/migrations"
)

type App struct {
	Service *appointments.Service
	Repo    store.AppointmentRepository
	Leads   store.LeadRepository

	// DB is nil for the memory driver.
	DB     *bun.DB
	Memory *memory.Store
	Redis  *redis.Client

	// Checks feed the HTTP readiness endpoint and the gRPC health reporter.
	Checks map[string]func(ctx context.Context) error

	closers []func() error
}

// Build opens every configured backend. On error anything already opened is
// closed again.
func Build(ctx context.Context, cfg config.Config, log *slog.Logger) (_ *App, err error) {
	a := &App{Checks: make(map[string]func(ctx context.Context) error)}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		log.Warn("using in-memory store; data is lost on exit")
		a.Memory = memory.New()
		a.Repo, a.Leads = a.Memory, a.Memory
		a.Checks["store"] = func(context.Context) error { return nil }
	default:
		log.Info("connecting to database", DatabaseLogArgs(cfg.DatabaseURL)...)
		db, err := postgres.Open(ctx, cfg.DatabaseURL, postgres.PoolConfig{
			MaxOpenConns:    cfg.DBMaxOpenConns,
			MaxIdleConns:    cfg.DBMaxIdleConns,
			ConnMaxLifetime: cfg.DBConnMaxLifetime,
			ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
		})
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		a.DB = db
		a.closers = append(a.closers, func() error { return postgres.Close(db) })

		if cfg.MigrateOnStart {
			applied, err := postgres.Migrate(ctx, db, migrations.FS)
			if err != nil {
				return nil, fmt.Errorf("migrate: %w", err)
			}
			log.Info("migrations applied", slog.Any("applied", applied))
		}

		a.Repo = postgres.NewAppointmentRepo(db)
		a.Leads = postgres.NewLeadRepo(db)
		a.Checks["postgres"] = db.PingContext
	}

	var locker lock.Locker = lock.Noop{}
	switch cfg.LockBackend {
	case config.LockBackendLocal:
		locker = lock.NewLocal()
	case config.LockBackendRedis:
		client, err := lock.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		a.Redis = client
		a.closers = append(a.closers, client.Close)
		a.Checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
		locker = lock.NewRedis(client, lock.RedisConfig{TTL: cfg.LockTTL, Wait: cfg.LockWait})
	}

	var publisher events.Publisher = events.Noop{}
	if len(events.SplitBrokers(cfg.KafkaBrokers)) > 0 {
		kp, err := events.NewKafkaPublisher(events.KafkaConfig{Brokers: cfg.KafkaBrokers, Topic: cfg.KafkaTopic})
		if err != nil {
			return nil, fmt.Errorf("kafka publisher: %w", err)
		}
		publisher = kp
		a.closers = append(a.closers, kp.Close)
		log.Info("publishing appointment events", slog.String("topic", cfg.KafkaTopic))
	}

	a.Service = appointments.NewService(a.Repo, a.Leads,
		appointments.WithLocker(locker),
		appointments.WithPublisher(publisher),
		appointments.WithLocation(cfg.Location),
		appointments.WithLogger(log),
	)
	return a, nil
}

// Ready runs every dependency check and returns the first failure.
func (a *App) Ready(ctx context.Context) error {
	for name, check := range a.Checks {
		if err := check(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// Close releases backends in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// DatabaseLogArgs describes the database target without credentials.
func DatabaseLogArgs(databaseURL string) []any {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return []any{slog.String("db_url", "invalid")}
	}
	name := strings.TrimPrefix(u.Path, "/")
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "default"
	}
	if host == "" {
		host = "unknown"
	}
	if name == "" {
		name = "unknown"
	}
	return []any{
		slog.String("db_host", host),
		slog.String("db_port", port),
		slog.String("db_name", name),
	}
}
