package expressions

import (
	"context"
	"strings"
)

// Engine evaluates guard and selector expressions.
// Two condition engines (CEL, Expr) plus GoJQ for output selection.
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}

// Registry routes an expression to the engine named by its prefix:
// "cel:" or "expr:". Unprefixed expressions go to the default CEL engine.
type Registry struct {
	cel  Engine
	expr Engine
}

// NewRegistry creates a Registry with both condition engines ready.
func NewRegistry() (*Registry, error) {
	celEng, err := NewCELEngine()
	if err != nil {
		return nil, err
	}
	return &Registry{cel: celEng, expr: NewExprEngine()}, nil
}

// Split separates the engine prefix from the expression body.
func Split(expression string) (engine, body string) {
	if rest, ok := strings.CutPrefix(expression, "cel:"); ok {
		return "cel", strings.TrimSpace(rest)
	}
	if rest, ok := strings.CutPrefix(expression, "expr:"); ok {
		return "expr", strings.TrimSpace(rest)
	}
	return "cel", expression
}

// Evaluate routes the expression to the engine its prefix selects.
func (r *Registry) Evaluate(ctx context.Context, expression string, data map[string]any) (any, error) {
	engine, body := Split(expression)
	if engine == "expr" {
		return r.expr.Evaluate(ctx, body, data)
	}
	return r.cel.Evaluate(ctx, body, data)
}

// EvaluateBool evaluates a condition expression and coerces the result to a
// boolean: nil and false are false, everything else is true.
func (r *Registry) EvaluateBool(ctx context.Context, expression string, data map[string]any) (bool, error) {
	out, err := r.Evaluate(ctx, expression, data)
	if err != nil {
		return false, err
	}
	switch v := out.(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	default:
		return true, nil
	}
}

// Check compiles the expression without evaluating it, reporting syntax
// errors. Used by definition validation for transition conditions.
func (r *Registry) Check(expression string) error {
	engine, body := Split(expression)
	if engine == "expr" {
		return r.expr.(*ExprEngine).Check(body)
	}
	return r.cel.(*CELEngine).Check(body)
}
