package settings

import "time"

// EvaluatorLogEvent describes one rule check.
type EvaluatorLogEvent struct {
	Engine   string
	Expr     string
	SchemaID string
	Key      string
	Duration time.Duration
	Err      error
}

// EvaluatorLogger records rule checks.
type EvaluatorLogger interface {
	LogEvaluation(EvaluatorLogEvent)
}

// EvaluatorLoggerFunc adapts a function to EvaluatorLogger.
type EvaluatorLoggerFunc func(EvaluatorLogEvent)

// LogEvaluation implements EvaluatorLogger.
func (f EvaluatorLoggerFunc) LogEvaluation(event EvaluatorLogEvent) {
	if f != nil {
		f(event)
	}
}

type noopEvaluatorLogger struct{}

func (noopEvaluatorLogger) LogEvaluation(EvaluatorLogEvent) {}
