// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/warden/internal/auth"
	"github.com/holomush/warden/internal/auth/memory"
	"github.com/holomush/warden/internal/auth/postgres"
	authredis "github.com/holomush/warden/internal/auth/redis"
	"github.com/holomush/warden/internal/config"
	"github.com/holomush/warden/internal/httpapi"
	"github.com/holomush/warden/internal/logging"
	"github.com/holomush/warden/internal/observability"
	"github.com/holomush/warden/internal/policy"
	"github.com/holomush/warden/internal/store"
)

// readinessTimeout bounds each backend ping made by the readiness probe.
const readinessTimeout = 2 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the HTTP API and, unless disabled, the metrics and health
endpoints. Stops gracefully on SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServeWithDeps(ctx, cfg, cmd, nil)
		},
	}

	config.BindFlags(cmd.Flags())
	cmd.Flags().Bool("database-auto-migrate", false, "apply pending migrations before serving")

	return cmd
}

// backends holds the connections serve opened, so they can be pinged and
// closed together.
type backends struct {
	pool   *pgxpool.Pool
	redis  *goredis.Client
	hasher *auth.LimitedHasher
}

func (b *backends) ready() bool {
	ctx, cancel := context.WithTimeout(context.Background(), readinessTimeout)
	defer cancel()
	if b.pool != nil && b.pool.Ping(ctx) != nil {
		return false
	}
	if b.redis != nil && b.redis.Ping(ctx).Err() != nil {
		return false
	}
	return true
}

func (b *backends) close() {
	if b.redis != nil {
		if err := b.redis.Close(); err != nil {
			slog.Debug("error closing redis client", "error", err)
		}
	}
	if b.pool != nil {
		b.pool.Close()
	}
}

// runServeWithDeps starts the API with injectable dependencies and blocks
// until ctx is done or a server fails. If deps is nil, default
// implementations are used.
func runServeWithDeps(ctx context.Context, cfg *config.Config, cmd *cobra.Command, deps *ServeDeps) error {
	deps = deps.withDefaults()

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logger := logging.Setup("warden", version, cfg.Log.Format, cmd.ErrOrStderr(),
		logging.WithLevel(level),
		logging.WithRedactedFields(cfg.Log.Redact...),
	)
	slog.SetDefault(logger)

	slog.Info("starting warden",
		"http_addr", cfg.HTTP.Addr,
		"session_store", cfg.Session.Store,
		"session_duration", cfg.Session.Duration,
		"hasher", cfg.Hasher.Algorithm,
	)

	b := &backends{}
	defer b.close()

	svc, err := buildService(ctx, cfg, deps, b, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var obsServer ObservabilityServer
	var metrics *observability.Metrics
	if cfg.Metrics.Addr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Metrics.Addr, b.ready)
		obsErrChan, err := obsServer.Start()
		if err != nil {
			return oops.Code("OBSERVABILITY_START_FAILED").Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
		metrics = obsServer.Metrics()
		metrics.WatchHasher(b.hasher.InFlight)
	}

	pol, err := policy.New(cfg.Auth.ExcludedPaths)
	if err != nil {
		stopServer(obsServer)
		return err
	}
	slog.Debug("auth policy loaded", "excluded_paths", pol.Patterns())

	handler, err := httpapi.NewRouter(httpapi.Options{
		Service:      svc,
		Policy:       pol,
		CookieName:   cfg.HTTP.CookieName,
		CookieSecure: cfg.HTTP.CookieSecure,
		TokenHeader:  cfg.HTTP.TokenHeader,
		AllowBasic:   cfg.Auth.AllowBasic,
		Metrics:      metrics,
		Logger:       logger,
	})
	if err != nil {
		stopServer(obsServer)
		return oops.Code("API_INIT_FAILED").Wrap(err)
	}

	apiServer := deps.APIServerFactory(cfg.HTTP.Addr, handler, cfg.HTTP.ReadHeaderTimeout)
	apiErrChan, err := apiServer.Start()
	if err != nil {
		stopServer(obsServer)
		return oops.Code("API_START_FAILED").Wrap(err)
	}
	go monitorServerErrors(ctx, cancel, apiErrChan, "api")

	cmd.Println("warden started")
	slog.Info("warden ready", "http_addr", apiServer.Addr())

	<-ctx.Done()
	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()

	if err := apiServer.Stop(shutdownCtx); err != nil {
		slog.Warn("error stopping api server", "error", err)
	}
	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			slog.Warn("error stopping observability server", "error", err)
		}
	}

	slog.Info("shutdown complete")
	return nil
}

// buildService wires the credential store, session registry and hasher
// selected by cfg. Connections opened are recorded in b.
func buildService(ctx context.Context, cfg *config.Config, deps *ServeDeps, b *backends, logger *slog.Logger) (*auth.Service, error) {
	connectOpts := store.DefaultConnectOptions
	connectOpts.Attempts = cfg.Database.ConnectAttempts

	var users auth.UserRepository = memory.NewUserRepository()
	if cfg.UsesPostgres() {
		pool, err := deps.PoolFactory(ctx, cfg.Database.URL, connectOpts)
		if err != nil {
			return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
		}
		b.pool = pool
		slog.Info("connected to database")

		if cfg.Database.AutoMigrate {
			if err := migrateUp(deps, cfg.Database.URL); err != nil {
				return nil, err
			}
		}
		users = postgres.NewUserRepository(pool)
	} else {
		slog.Warn("database.url not set, users are kept in memory")
	}

	registryOpts := []auth.RegistryOption{auth.WithSessionDuration(cfg.Session.Duration)}

	var registry auth.SessionRegistry
	var err error
	switch cfg.Session.Store {
	case config.SessionInline:
		registry, err = auth.NewInlineRegistry(users, registryOpts...)
	case config.SessionMemory:
		registry, err = auth.NewStoredRegistry(users, memory.NewSessionRepository(), registryOpts...)
	case config.SessionPostgres:
		registry, err = auth.NewStoredRegistry(users, postgres.NewSessionRepository(b.pool), registryOpts...)
	case config.SessionRedis:
		rdb, connErr := deps.RedisFactory(ctx, cfg.Redis.URL, connectOpts)
		if connErr != nil {
			return nil, oops.Code("REDIS_CONNECT_FAILED").With("operation", "connect to redis").Wrap(connErr)
		}
		b.redis = rdb
		registry, err = auth.NewStoredRegistry(users, authredis.NewSessionRepository(rdb, cfg.Redis.KeyPrefix), registryOpts...)
		slog.Info("connected to redis")
	default:
		return nil, oops.Code("CONFIG_INVALID").Errorf("unknown session store %q", cfg.Session.Store)
	}
	if err != nil {
		return nil, oops.Code("REGISTRY_INIT_FAILED").Wrap(err)
	}

	hasher, err := newHasher(cfg.Hasher)
	if err != nil {
		return nil, err
	}

	b.hasher = auth.NewLimitedHasher(hasher, cfg.Hasher.MaxConcurrent)
	svc, err := auth.NewAuthServiceWithLogger(users, registry, b.hasher, logger)
	if err != nil {
		return nil, oops.Code("AUTH_INIT_FAILED").Wrap(err)
	}
	return svc, nil
}

// newHasher builds the configured password hasher.
func newHasher(cfg config.HasherConfig) (auth.PasswordHasher, error) {
	switch cfg.Algorithm {
	case config.HasherBcrypt:
		//nolint:wrapcheck // hasher errors carry their own codes
		return auth.NewBcryptHasher(cfg.BcryptCost)
	case config.HasherArgon2id:
		params := auth.DefaultArgon2Params
		params.Time = cfg.ArgonTime
		params.Memory = cfg.ArgonMemory
		params.Threads = cfg.ArgonThreads
		//nolint:wrapcheck // hasher errors carry their own codes
		return auth.NewArgon2idHasherWithParams(params)
	default:
		return nil, oops.Code("CONFIG_INVALID").Errorf("unknown hasher algorithm %q", cfg.Algorithm)
	}
}

func migrateUp(deps *ServeDeps, url string) error {
	migrator, err := deps.MigratorFactory(url)
	if err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "create migrator").Wrap(err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			slog.Debug("error closing migrator", "error", closeErr)
		}
	}()
	if err := migrator.Up(); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "run migrations").Wrap(err)
	}
	slog.Info("migrations applied")
	return nil
}

func stopServer(s ObservabilityServer) {
	if s == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		slog.Warn("failed to stop observability server during cleanup", "error", err)
	}
}

// monitorServerErrors cancels ctx when a server reports an error. It exits
// when an error arrives, the channel closes or ctx is done.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
