package settings

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// RuleConstraint accepts a value when a rule expression evaluates to true.
// The expression sees the decoded value as `value` along with `schema`, `key`,
// `now`, `args` and `metadata`.
type RuleConstraint struct {
	engine     string
	expression string
	rule       CompiledRule
	schemaID   string
	key        string
	args       map[string]any
	metadata   map[string]any
	logger     EvaluatorLogger
	now        func() time.Time
}

// RuleOption configures a RuleConstraint.
type RuleOption func(*RuleConstraint)

// RuleWithTarget sets the schema id and key exposed to the expression and
// used as the evaluation scope in logs and errors.
func RuleWithTarget(schemaID, key string) RuleOption {
	return func(c *RuleConstraint) {
		c.schemaID = schemaID
		c.key = key
	}
}

// RuleWithArgs exposes args to the expression.
func RuleWithArgs(args map[string]any) RuleOption {
	return func(c *RuleConstraint) {
		c.args = cloneAnyMap(args)
	}
}

// RuleWithMetadata exposes metadata to the expression.
func RuleWithMetadata(metadata map[string]any) RuleOption {
	return func(c *RuleConstraint) {
		c.metadata = cloneAnyMap(metadata)
	}
}

// RuleWithEvaluatorLogger records every evaluation.
func RuleWithEvaluatorLogger(logger EvaluatorLogger) RuleOption {
	return func(c *RuleConstraint) {
		if logger == nil {
			logger = noopEvaluatorLogger{}
		}
		c.logger = logger
	}
}

// RuleWithClock replaces the time source bound to `now`.
func RuleWithClock(now func() time.Time) RuleOption {
	return func(c *RuleConstraint) {
		if now != nil {
			c.now = now
		}
	}
}

// NewRuleConstraint compiles expression with evaluator. Compilation errors
// are returned here rather than on the first check.
func NewRuleConstraint(evaluator Evaluator, expression string, opts ...RuleOption) (*RuleConstraint, error) {
	if evaluator == nil {
		return nil, fmt.Errorf("settings: rule %q has no evaluator", expression)
	}
	c := &RuleConstraint{
		engine:     evaluatorEngineName(evaluator),
		expression: strings.TrimSpace(expression),
		logger:     noopEvaluatorLogger{},
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	rule, err := evaluator.Compile(c.expression)
	if err != nil {
		return nil, err
	}
	c.rule = rule
	return c, nil
}

// Expression returns the rule source.
func (c *RuleConstraint) Expression() string { return c.expression }

// Engine returns the name of the evaluator that compiled the rule.
func (c *RuleConstraint) Engine() string { return c.engine }

func (c *RuleConstraint) Check(v Variant) error {
	value, err := Decode(v)
	if err != nil {
		return err
	}
	now := c.now()
	ctx := RuleContext{
		Value:    value,
		SchemaID: c.schemaID,
		Key:      c.key,
		Now:      &now,
		Args:     c.args,
		Metadata: c.metadata,
	}
	start := time.Now()
	result, err := c.rule.Evaluate(ctx)
	err = wrapEvaluationError(c.engine, c.expression, ctx, err)
	c.logger.LogEvaluation(EvaluatorLogEvent{
		Engine:   c.engine,
		Expr:     c.expression,
		SchemaID: ctx.SchemaID,
		Key:      ctx.Key,
		Duration: time.Since(start),
		Err:      err,
	})
	if err != nil {
		return err
	}
	ok, isBool := result.(bool)
	if !isBool {
		return fmt.Errorf("rule returned %T, want bool", result)
	}
	if !ok {
		return fmt.Errorf("rule %s evaluated to false", strconv.Quote(c.expression))
	}
	return nil
}

func (c *RuleConstraint) String() string {
	return c.engine + " rule " + strconv.Quote(c.expression)
}

// NewEvaluator returns the evaluator for engine: "expr" (also the empty
// string), "cel" or "js". The js engine requires the js_eval build tag.
func NewEvaluator(engine string, cache ProgramCache, registry *FunctionRegistry) (Evaluator, error) {
	switch strings.ToLower(strings.TrimSpace(engine)) {
	case "", "expr":
		return NewExprEvaluator(ExprWithProgramCache(cache), ExprWithFunctionRegistry(registry)), nil
	case "cel":
		return NewCELEvaluator(CELWithProgramCache(cache), CELWithFunctionRegistry(registry)), nil
	case "js":
		if !jsEvaluatorAvailable() {
			return nil, fmt.Errorf("settings: js rules require the js_eval build tag")
		}
		return NewJSEvaluator(JSWithProgramCache(cache), JSWithFunctionRegistry(registry)), nil
	default:
		return nil, fmt.Errorf("settings: unknown rule engine %q", engine)
	}
}

func evaluatorEngineName(e Evaluator) string {
	switch fmt.Sprintf("%T", e) {
	case "*settings.exprEvaluator":
		return "expr"
	case "*settings.celEvaluator":
		return "cel"
	case "*settings.jsEvaluator":
		return "js"
	default:
		return "custom"
	}
}

func cloneAnyMap(src map[string]any) map[string]any {
	if len(src) == 0 {
		return nil
	}
	dst := make(map[string]any, len(src))
	for key, value := range src {
		dst[key] = value
	}
	return dst
}
