package settings

import (
	"fmt"
	"reflect"

	celgo "github.com/google/cel-go/cel"
	functions "github.com/google/cel-go/common/functions"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
)

// CELEvaluatorOption configures the CEL evaluator.
type CELEvaluatorOption func(*celEvaluator)

// CELWithProgramCache wires a ProgramCache into the CEL evaluator.
func CELWithProgramCache(cache ProgramCache) CELEvaluatorOption {
	return func(e *celEvaluator) {
		e.cache = cache
	}
}

// CELWithFunctionRegistry wires a FunctionRegistry into the CEL evaluator.
func CELWithFunctionRegistry(registry *FunctionRegistry) CELEvaluatorOption {
	return func(e *celEvaluator) {
		if registry == nil {
			return
		}
		e.registry = registry.Clone()
	}
}

var anySliceType = reflect.TypeOf([]any{})

type celEvaluator struct {
	cache    ProgramCache
	registry *FunctionRegistry
}

// NewCELEvaluator constructs an Evaluator backed by cel-go. Rules see value,
// schema, key, now, args and metadata; numeric comparisons across int, uint
// and double are allowed since the dynamic form of a value decides its CEL
// type.
func NewCELEvaluator(opts ...CELEvaluatorOption) Evaluator {
	e := &celEvaluator{}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

func (e *celEvaluator) Evaluate(ctx RuleContext, expression string) (any, error) {
	if expression == "" {
		return nil, wrapEvaluatorError("cel", fmt.Errorf("expression must not be empty"))
	}
	program, err := e.loadOrCompile(expression)
	if err != nil {
		return nil, err
	}
	return e.run(program, expression, ctx)
}

func (e *celEvaluator) Compile(expression string, _ ...CompileOption) (CompiledRule, error) {
	if expression == "" {
		return nil, wrapEvaluatorError("cel", fmt.Errorf("expression must not be empty"))
	}
	program, err := e.loadOrCompile(expression)
	if err != nil {
		return nil, err
	}
	return &celCompiledRule{
		evaluator:  e,
		program:    program,
		expression: expression,
	}, nil
}

func (e *celEvaluator) loadOrCompile(expression string) (celgo.Program, error) {
	cacheKey := "cel:" + expression
	if e.cache != nil {
		if cached, ok := e.cache.Get(cacheKey); ok {
			if program, ok := cached.(celgo.Program); ok {
				return program, nil
			}
		}
	}

	env, err := e.buildEnv()
	if err != nil {
		return nil, wrapEvaluationError("cel", expression, RuleContext{}, err)
	}
	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, wrapEvaluationError("cel", expression, RuleContext{}, issues.Err())
	}
	program, err := env.Program(ast)
	if err != nil {
		return nil, wrapEvaluationError("cel", expression, RuleContext{}, err)
	}
	if e.cache != nil {
		e.cache.Set(cacheKey, program)
	}
	return program, nil
}

func (e *celEvaluator) buildEnv() (*celgo.Env, error) {
	opts := []celgo.EnvOption{
		celgo.Variable("value", celgo.DynType),
		celgo.Variable("schema", celgo.StringType),
		celgo.Variable("key", celgo.StringType),
		celgo.Variable("now", celgo.TimestampType),
		celgo.Variable("args", celgo.DynType),
		celgo.Variable("metadata", celgo.DynType),
		celgo.CrossTypeNumericComparisons(true),
	}
	if e.registry != nil {
		opts = append(opts, celgo.Function("call", celgo.Overload(
			"call_dyn",
			[]*celgo.Type{celgo.StringType, celgo.ListType(celgo.DynType)},
			celgo.DynType,
			celgo.FunctionBinding(functions.FunctionOp(e.callBinding())),
		)))
	}
	return celgo.NewEnv(opts...)
}

func (e *celEvaluator) run(program celgo.Program, expression string, ctx RuleContext) (any, error) {
	ctx = ctx.withDefaults()
	out, _, err := program.Eval(ctx.bindings())
	if err != nil {
		return nil, wrapEvaluationError("cel", expression, ctx, err)
	}
	return out.Value(), nil
}

type celCompiledRule struct {
	evaluator  *celEvaluator
	program    celgo.Program
	expression string
}

func (r *celCompiledRule) Evaluate(ctx RuleContext) (any, error) {
	if r.evaluator == nil {
		return nil, wrapEvaluatorError("cel", fmt.Errorf("compiled rule missing evaluator"))
	}
	return r.evaluator.run(r.program, r.expression, ctx)
}

// callBinding exposes registry functions as call("name", [args...]).
func (e *celEvaluator) callBinding() func(...ref.Val) ref.Val {
	return func(values ...ref.Val) ref.Val {
		if e.registry == nil {
			return types.NewErr("settings: function registry not configured")
		}
		if len(values) != 2 {
			return types.NewErr("settings: call requires a function name and an argument list")
		}
		name, ok := values[0].Value().(string)
		if !ok {
			return types.NewErr("settings: call name must be string")
		}
		native, err := values[1].ConvertToNative(anySliceType)
		if err != nil {
			return types.NewErr("settings: call arguments: %v", err)
		}
		result, err := e.registry.Call(name, native.([]any)...)
		if err != nil {
			return types.NewErr("%s", err.Error())
		}
		if result == nil {
			return types.NullValue
		}
		return types.DefaultTypeAdapter.NativeToValue(result)
	}
}
