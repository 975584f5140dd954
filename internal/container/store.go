package container

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/samber/do"
	"github.com/serroba/link-tracker/internal/analytics"
	analyticsstore "github.com/serroba/link-tracker/internal/analytics/store"
	"github.com/serroba/link-tracker/internal/health"
	"github.com/serroba/link-tracker/internal/links"
	"github.com/serroba/link-tracker/internal/store"
	"github.com/serroba/link-tracker/internal/tracking"
	"go.uber.org/zap"
)

const connectTimeout = 10 * time.Second

// ErrRedisDisabled is returned when a Redis-backed component is requested without RedisAddr.
var ErrRedisDisabled = errors.New("redis is not configured")

// Storage is the selected database backend. Links always live in the database; the click
// log and its reports are swapped for no-ops when ClickLog is none.
type Storage struct {
	Links     links.Repository
	Clicks    tracking.ClickLog
	Analytics analytics.Store
	Migrator  store.Migrator
	// Health pings the database; nil for the in-memory backend.
	Health health.Checker

	close func() error
}

// Shutdown releases the database connection.
func (s *Storage) Shutdown() error {
	if s.close == nil {
		return nil
	}

	return s.close()
}

type sqlBackend interface {
	links.Repository
	tracking.ClickLog
	analytics.Store
	store.Migrator
}

// StorePackage provides *Storage for Options.Database. SQL backends are migrated on start.
func StorePackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (*Storage, error) {
		opts := do.MustInvoke[*Options](i)
		logger := do.MustInvoke[*zap.Logger](i)

		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()

		storage, err := openStorage(ctx, opts)
		if err != nil {
			return nil, err
		}

		if err := storage.Migrator.Migrate(ctx); err != nil {
			_ = storage.Shutdown()

			return nil, err
		}

		if opts.ClickLog == ClickLogNone {
			noop := analyticsstore.NewNoop(logger)
			storage.Clicks = noop
			storage.Analytics = noop
		}

		logger.Info("storage ready",
			zap.String("database", opts.Database),
			zap.String("click_log", opts.ClickLog),
		)

		return storage, nil
	})
}

func openStorage(ctx context.Context, opts *Options) (*Storage, error) {
	switch opts.Database {
	case DatabaseMemory, "":
		return newStorage(store.NewMemoryStore(), nil, nil), nil
	case DatabaseSQLite:
		db, err := store.OpenSQLite(ctx, opts.DatabaseURL)
		if err != nil {
			return nil, err
		}

		sqlite := store.NewSQLiteStore(db)

		return newStorage(sqlite, sqlite, sqlite.Shutdown), nil
	case DatabasePostgres:
		pool, err := pgxpool.New(ctx, opts.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}

		if err := pool.Ping(ctx); err != nil {
			pool.Close()

			return nil, fmt.Errorf("ping postgres: %w", err)
		}

		return newStorage(store.NewPostgresStore(pool), health.CheckerFunc(pool.Ping), func() error {
			pool.Close()

			return nil
		}), nil
	default:
		return nil, fmt.Errorf("unknown database %q", opts.Database)
	}
}

func newStorage(backend sqlBackend, ping health.Checker, closeFn func() error) *Storage {
	return &Storage{
		Links:     backend,
		Clicks:    backend,
		Analytics: backend,
		Migrator:  backend,
		Health:    ping,
		close:     closeFn,
	}
}

// RedisPackage provides the *redis.Client. Resolving it fails with ErrRedisDisabled when no
// address is configured, so callers check Options.RedisAddr first.
func RedisPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (*redis.Client, error) {
		opts := do.MustInvoke[*Options](i)
		if opts.RedisAddr == "" {
			return nil, ErrRedisDisabled
		}

		return redis.NewClient(&redis.Options{
			Addr: opts.RedisAddr,
		}), nil
	})
}

// RepositoryPackage provides the links.Repository the service reads through, caching
// published code lookups in Redis when it is configured.
func RepositoryPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (links.Repository, error) {
		opts := do.MustInvoke[*Options](i)
		storage := do.MustInvoke[*Storage](i)

		if opts.RedisAddr == "" || opts.CacheTTLSeconds <= 0 {
			return storage.Links, nil
		}

		client := do.MustInvoke[*redis.Client](i)
		ttl := time.Duration(opts.CacheTTLSeconds) * time.Second

		return store.NewRedisCacheRepository(storage.Links, client, ttl), nil
	})
}
