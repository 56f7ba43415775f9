// Package formula compiles the round-score expression of §4.5/§9: a
// configuration string over the fixed variables d (dollars, float), b/r/g
// (chip counts, int), restricted to a fixed set of functions, with any
// other identifier rejected at load time rather than at evaluation time.
//
// Grounded on other_examples/manifests/kedacore-keda's dependency on
// github.com/expr-lang/expr, the pack's one general-purpose expression
// evaluator — a direct fit for the source's `eval` replacement called out
// in §9's Design Notes.
package formula

import (
	"fmt"
	"math"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Vars is the environment a compiled formula evaluates against.
type Vars struct {
	D float64
	B int
	R int
	G int
}

// Formula is a compiled round-score expression.
type Formula struct {
	program *vm.Program
}

// allowed functions, matching §4.5's enumerated operator set exactly.
var funcs = map[string]any{
	"abs":   func(x float64) float64 { return math.Abs(x) },
	"float": func(x int) float64 { return float64(x) },
	"int":   func(x float64) int { return int(x) },
	"max":   func(a, b float64) float64 { return math.Max(a, b) },
	"min":   func(a, b float64) float64 { return math.Min(a, b) },
	"pow":   func(a, b float64) float64 { return math.Pow(a, b) },
	"round": func(x float64) float64 { return math.Round(x) },
}

// Compile parses expr and rejects any free identifier other than d, b, r,
// g and the enumerated functions, failing before the session starts
// (§8: "Round-score formula referencing a forbidden name fails to load
// before the session starts").
func Compile(source string) (*Formula, error) {
	env := compileEnv()
	program, err := expr.Compile(source, expr.Env(env), expr.AsFloat64(), expr.DisableAllBuiltins())
	if err != nil {
		return nil, fmt.Errorf("formula: %w", err)
	}
	return &Formula{program: program}, nil
}

func compileEnv() map[string]any {
	e := map[string]any{
		"d": float64(0),
		"b": 0,
		"r": 0,
		"g": 0,
	}
	for name, fn := range funcs {
		e[name] = fn
	}
	return e
}

// Eval runs the compiled formula against v, rounding the result to the
// nearest integer per §4.5.
func (f *Formula) Eval(v Vars) (int, error) {
	e := map[string]any{
		"d": v.D,
		"b": v.B,
		"r": v.R,
		"g": v.G,
	}
	for name, fn := range funcs {
		e[name] = fn
	}
	out, err := expr.Run(f.program, e)
	if err != nil {
		return 0, fmt.Errorf("formula: eval: %w", err)
	}
	result, _ := out.(float64)
	return int(math.Round(result)), nil
}
