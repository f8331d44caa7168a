package bootstrap

import (
	"context"
	"errors"

	"go.uber.org/multierr"

	"github.com/jasskhinda/facility-billing/pkg/config"
	"github.com/jasskhinda/facility-billing/pkg/db"
	"github.com/jasskhinda/facility-billing/pkg/instance"
	"github.com/jasskhinda/facility-billing/pkg/logger"
	"github.com/jasskhinda/facility-billing/pkg/migrate"
	"github.com/jasskhinda/facility-billing/pkg/redis"
)

// Runtime is the process scaffolding every binary starts from: loaded
// config, a leveled logger, and the clients it asked for.
type Runtime struct {
	Kind   string
	Config *config.Config
	Logger *logger.Logger
	DB     *db.Client
	Redis  *redis.Client

	closers []namedCloser
}

type namedCloser struct {
	name string
	fn   func() error
}

type runtimeOptions struct {
	redis      bool
	migrations bool
}

// RuntimeOption selects optional clients for Open.
type RuntimeOption func(*runtimeOptions)

// WithRedis opens the redis client.
func WithRedis() RuntimeOption {
	return func(o *runtimeOptions) { o.redis = true }
}

// WithDevMigrations applies embedded migrations when running in dev with
// auto-migrate enabled.
func WithDevMigrations() RuntimeOption {
	return func(o *runtimeOptions) { o.migrations = true }
}

// Open loads config for kind and connects the database plus any optional
// clients. On failure everything opened so far is closed again.
func Open(ctx context.Context, kind string, opts ...RuntimeOption) (*Runtime, error) {
	var o runtimeOptions
	for _, opt := range opts {
		opt(&o)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	cfg.Service.Kind = kind

	rt := &Runtime{
		Kind:   kind,
		Config: cfg,
		Logger: logger.New(logger.Options{
			ServiceName: kind,
			Level:       logger.ParseLevel(cfg.App.LogLevel),
			WarnStack:   cfg.App.LogWarnStack,
		}),
	}
	if err := rt.connect(ctx, o); err != nil {
		_ = rt.Close()
		return nil, err
	}
	return rt, nil
}

func (rt *Runtime) connect(ctx context.Context, o runtimeOptions) error {
	var err error
	if rt.DB, err = db.New(ctx, rt.Config.DB, rt.Logger); err != nil {
		return err
	}
	rt.OnClose("database", rt.DB.Close)

	if o.migrations {
		if err := migrate.MaybeRunDev(ctx, rt.Config, rt.Logger, rt.DB); err != nil {
			return err
		}
	}
	if o.redis {
		if rt.Redis, err = redis.New(ctx, rt.Config.Redis, rt.Logger); err != nil {
			return err
		}
		rt.OnClose("redis", rt.Redis.Close)
	}
	return nil
}

// OnClose registers fn to run from Close. Closers run in reverse order.
func (rt *Runtime) OnClose(name string, fn func() error) {
	rt.closers = append(rt.closers, namedCloser{name: name, fn: fn})
}

// Context decorates ctx with the fields every log line of the process carries.
func (rt *Runtime) Context(ctx context.Context, extra map[string]any) context.Context {
	fields := map[string]any{
		"env":         rt.Config.App.Env,
		"serviceKind": rt.Kind,
		"instance":    instance.GetID(),
	}
	for k, v := range extra {
		fields[k] = v
	}
	return rt.Logger.WithFields(ctx, fields)
}

// Close releases registered clients, logging and returning every failure.
func (rt *Runtime) Close() error {
	var errs error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		c := rt.closers[i]
		if err := c.fn(); err != nil {
			rt.Logger.Error(context.Background(), "error closing "+c.name, err)
			errs = multierr.Append(errs, err)
		}
	}
	rt.closers = nil
	return errs
}

// Shutdown reports whether err is the normal result of a cancelled run.
func Shutdown(err error) bool {
	return err == nil || errors.Is(err, context.Canceled)
}
