package hclschema

import (
	"log/slog"

	settings "github.com/goliatone/go-settings"
)

// Option configures a Source.
type Option func(*config)

type config struct {
	logger          *slog.Logger
	cache           settings.ProgramCache
	registry        *settings.FunctionRegistry
	evaluatorLogger settings.EvaluatorLogger
	cached          bool
}

func applyOptions(opts []Option) config {
	cfg := config{
		logger: slog.New(slog.DiscardHandler),
		cache:  settings.NewMemoryProgramCache(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// WithLogger sets the diagnostics logger.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *config) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// WithProgramCache shares compiled rule programs across sources.
func WithProgramCache(cache settings.ProgramCache) Option {
	return func(cfg *config) {
		if cache != nil {
			cfg.cache = cache
		}
	}
}

// WithFunctionRegistry exposes custom functions to key rules.
func WithFunctionRegistry(registry *settings.FunctionRegistry) Option {
	return func(cfg *config) {
		cfg.registry = registry
	}
}

// WithEvaluatorLogger records every rule evaluation.
func WithEvaluatorLogger(logger settings.EvaluatorLogger) Option {
	return func(cfg *config) {
		cfg.evaluatorLogger = logger
	}
}

// WithCache keeps the parsed catalog between lookups until Reload. Without it
// every Lookup and List re-reads the catalog files, so edits are seen by the
// next request.
func WithCache() Option {
	return func(cfg *config) {
		cfg.cached = true
	}
}
