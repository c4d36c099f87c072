package security

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"stocktally/internal/core/apperror"
)

// MutationPolicy gates inventory adjustments with a tenant-configurable CEL
// expression. The expression sees the proposed mutation and returns true to
// allow it. Tenants store the expression in their settings JSONB
// (tenant.SettingMutationPolicy); absent or empty means DefaultPolicyExpr.
//
// Variables available to the expression:
//
//	kind      string  adjustment kind ("damage", "theft", "found", "correction", "transfer_leg")
//	quantity  double  signed quantity delta in units
//	backdated bool    true when the effective date is before today
type MutationPolicy struct {
	program cel.Program
	expr    string
}

// DefaultPolicyExpr permits everything. Tenants tighten it, e.g.
// `!backdated && quantity > -100.0` to forbid backdated or large write-offs.
const DefaultPolicyExpr = "true"

var (
	envOnce   sync.Once
	policyEnv *cel.Env
	envErr    error
)

func celEnv() (*cel.Env, error) {
	envOnce.Do(func() {
		policyEnv, envErr = cel.NewEnv(
			cel.Variable("kind", cel.StringType),
			cel.Variable("quantity", cel.DoubleType),
			cel.Variable("backdated", cel.BoolType),
		)
	})
	return policyEnv, envErr
}

// CompileMutationPolicy compiles a CEL expression into a reusable policy.
// An empty expression compiles the default (allow-all) policy.
func CompileMutationPolicy(expr string) (*MutationPolicy, error) {
	if expr == "" {
		expr = DefaultPolicyExpr
	}

	env, err := celEnv()
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile mutation policy %q: %w", expr, issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("mutation policy %q must evaluate to bool, got %s", expr, ast.OutputType())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("program mutation policy: %w", err)
	}

	return &MutationPolicy{program: prg, expr: expr}, nil
}

// MustCompileMutationPolicy panics on compile error. Use for constants and tests.
func MustCompileMutationPolicy(expr string) *MutationPolicy {
	p, err := CompileMutationPolicy(expr)
	if err != nil {
		panic(err)
	}
	return p
}

// Expr returns the source expression.
func (p *MutationPolicy) Expr() string {
	return p.expr
}

// Check evaluates the policy for a proposed adjustment.
// Returns a PolicyViolation AppError when the expression yields false.
func (p *MutationPolicy) Check(kind string, quantity float64, backdated bool) error {
	out, _, err := p.program.Eval(map[string]any{
		"kind":      kind,
		"quantity":  quantity,
		"backdated": backdated,
	})
	if err != nil {
		return apperror.NewInternal(fmt.Errorf("evaluate mutation policy: %w", err))
	}

	allowed, ok := out.Value().(bool)
	if !ok {
		return apperror.NewInternal(fmt.Errorf("mutation policy returned non-bool: %v", out.Value()))
	}
	if !allowed {
		return apperror.NewPolicyViolation("mutation rejected by tenant policy").
			WithDetail("policy", p.expr).
			WithDetail("kind", kind)
	}
	return nil
}
