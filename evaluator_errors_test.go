package settings

import (
	"errors"
	"testing"
)

func TestWrapEvaluationErrorCreatesMetadata(t *testing.T) {
	base := errors.New("boom")
	err := wrapEvaluationError("expr", "flag && missing", RuleContext{SchemaID: "org.example.app", Key: "volume"}, base)

	var evalErr *EvaluationError
	if !errors.As(err, &evalErr) {
		t.Fatalf("expected EvaluationError, got %T", err)
	}
	if evalErr.Engine != "expr" {
		t.Fatalf("expected engine expr, got %q", evalErr.Engine)
	}
	if evalErr.Expr != "flag && missing" {
		t.Fatalf("expected expression metadata, got %q", evalErr.Expr)
	}
	if evalErr.SchemaID != "org.example.app" || evalErr.Key != "volume" {
		t.Fatalf("expected key target, got %q/%q", evalErr.SchemaID, evalErr.Key)
	}
	if got := evalErr.Target(); got != "org.example.app/volume" {
		t.Fatalf("expected target org.example.app/volume, got %q", got)
	}
	if !errors.Is(evalErr.Err, base) {
		t.Fatalf("wrapped error should unwrap to base error")
	}
	want := `settings: expr rule "flag && missing" on org.example.app/volume: boom`
	if got := evalErr.Error(); got != want {
		t.Fatalf("unexpected message:\n got %s\nwant %s", got, want)
	}
}

func TestWrapEvaluationErrorAugmentsExisting(t *testing.T) {
	base := errors.New("compile failure")
	existing := &EvaluationError{
		Engine: "expr",
		Err:    base,
	}

	err := wrapEvaluationError("cel", "rule", RuleContext{SchemaID: "org.example.app", Key: "theme"}, existing)
	if !errors.Is(err, base) {
		t.Fatalf("expected base error to unwrap")
	}
	if existing.Engine != "expr" {
		t.Fatalf("existing engine should not be overwritten, got %q", existing.Engine)
	}
	if existing.Expr != "rule" {
		t.Fatalf("expression should be filled, got %q", existing.Expr)
	}
	if existing.Target() != "org.example.app/theme" {
		t.Fatalf("target should be filled, got %q", existing.Target())
	}
}

func TestEvaluationErrorWithoutTarget(t *testing.T) {
	err := wrapEvaluationError("cel", "", RuleContext{}, errors.New("syntax"))
	want := "settings: cel rule <empty>: syntax"
	if got := err.Error(); got != want {
		t.Fatalf("unexpected message:\n got %s\nwant %s", got, want)
	}
	if wrapEvaluationError("cel", "x", RuleContext{}, nil) != nil {
		t.Fatalf("nil error should stay nil")
	}
}
