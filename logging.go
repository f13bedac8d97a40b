package settings

import (
	"context"
	"log/slog"
	"time"
)

// Operation names reported in OperationLogEvent.Op.
const (
	OpSchemaExists = "schema_exists"
	OpListSchemas  = "list_schemas"
	OpListKeys     = "list_keys"
	OpRead         = "read"
	OpWrite        = "write"
	OpOpen         = "open"
)

// OperationLogEvent describes one boundary call. StoredTypeMismatch is set
// when a read found a backend value whose tag disagreed with the declared
// type and returned the default instead.
type OperationLogEvent struct {
	Op                 string
	SchemaID           string
	Key                string
	Duration           time.Duration
	Err                error
	StoredTypeMismatch bool
}

// OperationLogger records boundary calls.
type OperationLogger interface {
	LogOperation(OperationLogEvent)
}

// OperationLoggerFunc adapts a function to OperationLogger.
type OperationLoggerFunc func(OperationLogEvent)

// LogOperation implements OperationLogger.
func (f OperationLoggerFunc) LogOperation(event OperationLogEvent) {
	if f != nil {
		f(event)
	}
}

type noopOperationLogger struct{}

func (noopOperationLogger) LogOperation(OperationLogEvent) {}

// SlogLogger writes operation and evaluation events to a slog.Logger.
// Failures are logged at warn level, everything else at debug.
type SlogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger wraps logger; nil falls back to slog.Default.
func NewSlogLogger(logger *slog.Logger) *SlogLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogLogger{logger: logger}
}

// LogOperation implements OperationLogger.
func (l *SlogLogger) LogOperation(event OperationLogEvent) {
	attrs := []slog.Attr{
		slog.String("op", event.Op),
		slog.Duration("duration", event.Duration),
	}
	if event.SchemaID != "" {
		attrs = append(attrs, slog.String("schema", event.SchemaID))
	}
	if event.Key != "" {
		attrs = append(attrs, slog.String("key", event.Key))
	}
	if event.StoredTypeMismatch {
		attrs = append(attrs, slog.Bool("stored_type_mismatch", true))
	}
	l.log("settings operation", event.Err, attrs)
}

// LogEvaluation implements EvaluatorLogger.
func (l *SlogLogger) LogEvaluation(event EvaluatorLogEvent) {
	attrs := []slog.Attr{
		slog.String("engine", event.Engine),
		slog.String("expr", event.Expr),
		slog.Duration("duration", event.Duration),
	}
	if event.SchemaID != "" {
		attrs = append(attrs, slog.String("schema", event.SchemaID))
	}
	if event.Key != "" {
		attrs = append(attrs, slog.String("key", event.Key))
	}
	l.log("settings rule evaluation", event.Err, attrs)
}

func (l *SlogLogger) log(msg string, err error, attrs []slog.Attr) {
	level := slog.LevelDebug
	if err != nil {
		level = slog.LevelWarn
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	l.logger.LogAttrs(context.Background(), level, msg, attrs...)
}
