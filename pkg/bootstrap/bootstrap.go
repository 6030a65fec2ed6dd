// Package bootstrap holds the startup shared by every binary: env loading,
// config, the service logger and the database and redis connections.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"github.com/angelmondragon/retailops-backend/pkg/config"
	"github.com/angelmondragon/retailops-backend/pkg/db"
	"github.com/angelmondragon/retailops-backend/pkg/instance"
	"github.com/angelmondragon/retailops-backend/pkg/logger"
	"github.com/angelmondragon/retailops-backend/pkg/migrate"
	"github.com/angelmondragon/retailops-backend/pkg/redis"
)

type Option func(*options)

type options struct {
	redis      bool
	devMigrate bool
}

// WithRedis connects redis after the database.
func WithRedis() Option { return func(o *options) { o.redis = true } }

// WithDevMigrations applies pending migrations when running in dev with
// auto migrate enabled.
func WithDevMigrations() Option { return func(o *options) { o.devMigrate = true } }

type Runtime struct {
	Kind   string
	Config *config.Config
	Logger *logger.Logger
	DB     *db.Client
	Redis  *redis.Client

	closers []namedCloser
}

type namedCloser struct {
	name  string
	close func() error
}

// Start loads config and opens the connections kind needs. On error every
// connection opened so far is closed again.
func Start(ctx context.Context, kind string, opts ...Option) (rt *Runtime, err error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	rt = &Runtime{Kind: kind, Logger: logger.New(logger.Options{ServiceName: kind})}
	if loadErr := godotenv.Load(); loadErr != nil {
		rt.Logger.Debug(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.Service.Kind = kind
	rt.Config = cfg
	rt.Logger = logger.New(logger.Options{
		ServiceName: kind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	defer func() {
		if err != nil {
			err = multierr.Append(err, rt.Close())
			rt = nil
		}
	}()

	rt.DB, err = db.New(ctx, cfg.DB, rt.Logger)
	if err != nil {
		return rt, fmt.Errorf("database: %w", err)
	}
	rt.onClose("database", rt.DB.Close)

	if o.devMigrate {
		if err = migrate.MaybeRunDev(ctx, cfg, rt.Logger, rt.DB); err != nil {
			return rt, fmt.Errorf("dev migrations: %w", err)
		}
	}

	if o.redis {
		rt.Redis, err = redis.New(ctx, cfg.Redis, rt.Logger)
		if err != nil {
			return rt, fmt.Errorf("redis: %w", err)
		}
		rt.onClose("redis", rt.Redis.Close)
	}
	return rt, nil
}

// OnClose registers a shutdown hook. Hooks run in reverse order.
func (r *Runtime) OnClose(name string, fn func() error) {
	r.onClose(name, fn)
}

func (r *Runtime) onClose(name string, fn func() error) {
	r.closers = append(r.closers, namedCloser{name: name, close: fn})
}

// Close runs the shutdown hooks and returns every failure combined.
func (r *Runtime) Close() error {
	if r == nil {
		return nil
	}
	var errs error
	for i := len(r.closers) - 1; i >= 0; i-- {
		c := r.closers[i]
		if err := c.close(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	r.closers = nil
	return errs
}

// Scope returns ctx carrying the fields every log line of the process shares.
func (r *Runtime) Scope(ctx context.Context, extra map[string]any) context.Context {
	fields := map[string]any{
		"env":         r.Config.App.Env,
		"serviceKind": r.Kind,
		"instance":    instance.ID(),
	}
	for k, v := range extra {
		fields[k] = v
	}
	return r.Logger.WithFields(ctx, fields)
}
