package settings

import (
	"log/slog"
	"time"

	"github.com/goliatone/go-settings/pkg/activity"
)

// Option configures a Manager.
type Option func(*managerConfig)

type managerConfig struct {
	logger         *slog.Logger
	opLogger       OperationLogger
	activityHooks  activity.Hooks
	activityConfig activity.Config
	validateIDs    bool
	now            func() time.Time
}

func applyOptions(opts []Option) managerConfig {
	cfg := managerConfig{
		logger:         slog.New(slog.DiscardHandler),
		opLogger:       noopOperationLogger{},
		activityConfig: activity.Config{Enabled: true, Channel: activity.DefaultChannel},
		validateIDs:    true,
		now:            time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// WithLogger sets the diagnostics logger. Nil restores the discard logger.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *managerConfig) {
		if logger == nil {
			cfg.logger = slog.New(slog.DiscardHandler)
			return
		}
		cfg.logger = logger
	}
}

// WithOperationLogger records one event per boundary call.
func WithOperationLogger(logger OperationLogger) Option {
	return func(cfg *managerConfig) {
		if logger == nil {
			cfg.opLogger = noopOperationLogger{}
			return
		}
		cfg.opLogger = logger
	}
}

// WithActivityHooks attaches activity hooks notified after writes. Hooks are
// cloned and nil entries dropped.
func WithActivityHooks(hooks activity.Hooks) Option {
	kept := hooks.Compact()
	return func(cfg *managerConfig) {
		cfg.activityHooks = kept
	}
}

// WithActivityConfig overrides the emitter configuration. The default is
// enabled on the "settings" channel. A nil Clock uses the manager clock.
func WithActivityConfig(config activity.Config) Option {
	return func(cfg *managerConfig) {
		cfg.activityConfig = config
	}
}

// WithIdentifierValidation toggles the schema id and key name format checks.
func WithIdentifierValidation(enabled bool) Option {
	return func(cfg *managerConfig) {
		cfg.validateIDs = enabled
	}
}

// WithClock replaces the time source used for durations and event times.
func WithClock(now func() time.Time) Option {
	return func(cfg *managerConfig) {
		if now != nil {
			cfg.now = now
		}
	}
}
