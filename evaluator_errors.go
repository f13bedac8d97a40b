package settings

import (
	"errors"
	"fmt"
	"strings"
)

// EvaluationError reports a rule that failed to compile or run. SchemaID and
// Key are empty for compile failures, which happen before a rule is bound to
// a key.
type EvaluationError struct {
	Engine   string
	Expr     string
	SchemaID string
	Key      string
	Err      error
}

// Target returns "<schema>/<key>", or "" when the rule has no key.
func (e *EvaluationError) Target() string {
	if e == nil {
		return ""
	}
	return ruleTarget(e.SchemaID, e.Key)
}

func (e *EvaluationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "settings: %s rule %s", e.Engine, describeExpression(e.Expr))
	if target := e.Target(); target != "" {
		sb.WriteString(" on ")
		sb.WriteString(target)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *EvaluationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func describeExpression(expr string) string {
	if expr == "" {
		return "<empty>"
	}
	return fmt.Sprintf("%q", expr)
}

func ruleTarget(schemaID, key string) string {
	switch {
	case schemaID != "" && key != "":
		return schemaID + "/" + key
	case schemaID != "":
		return schemaID
	default:
		return key
	}
}

// wrapEvaluatorError prefixes engine setup failures that are not tied to an
// expression.
func wrapEvaluatorError(engine string, err error) error {
	if err == nil {
		return nil
	}
	var evalErr *EvaluationError
	if errors.As(err, &evalErr) || strings.HasPrefix(err.Error(), "settings:") {
		return err
	}
	return fmt.Errorf("settings: %s evaluator: %w", engine, err)
}

// wrapEvaluationError attaches the engine, expression and the key the rule
// guards. An existing EvaluationError keeps the fields it already has.
func wrapEvaluationError(engine, expr string, ctx RuleContext, err error) error {
	if err == nil {
		return nil
	}
	var evalErr *EvaluationError
	if errors.As(err, &evalErr) {
		if evalErr.Engine == "" {
			evalErr.Engine = engine
		}
		if evalErr.Expr == "" {
			evalErr.Expr = expr
		}
		if evalErr.SchemaID == "" && evalErr.Key == "" {
			evalErr.SchemaID = ctx.SchemaID
			evalErr.Key = ctx.Key
		}
		return evalErr
	}
	return &EvaluationError{
		Engine:   engine,
		Expr:     expr,
		SchemaID: ctx.SchemaID,
		Key:      ctx.Key,
		Err:      err,
	}
}
