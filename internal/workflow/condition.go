// Package workflow implements the graph execution engine: edge
// resolution, the synchronous drive loop, checkpoint suspend and resume,
// and the definition registry.
package workflow

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// conditionEvaluator compiles and evaluates edge guard expressions over
// step data. Compiled programs are cached by source since the same edges
// are evaluated on every drive step.
type conditionEvaluator struct {
	mu       sync.RWMutex
	programs map[string]*vm.Program
}

func newConditionEvaluator() *conditionEvaluator {
	return &conditionEvaluator{programs: make(map[string]*vm.Program)}
}

// Evaluate runs a boolean expression against step data. Undefined
// variables evaluate to nil rather than failing, so conditions can probe
// fields an earlier node may not have produced yet.
func (e *conditionEvaluator) Evaluate(src string, stepData map[string]any) (bool, error) {
	program, err := e.compile(src)
	if err != nil {
		return false, fmt.Errorf("compile condition %q: %w", src, err)
	}

	env := stepData
	if env == nil {
		env = map[string]any{}
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("evaluate condition %q: %w", src, err)
	}
	result, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("condition %q evaluated to %T, want bool", src, out)
	}
	return result, nil
}

func (e *conditionEvaluator) compile(src string) (*vm.Program, error) {
	e.mu.RLock()
	program, ok := e.programs[src]
	e.mu.RUnlock()
	if ok {
		return program, nil
	}

	program, err := expr.Compile(src,
		expr.Env(map[string]any{}),
		expr.AllowUndefinedVariables(),
		expr.AsBool(),
	)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.programs[src] = program
	e.mu.Unlock()
	return program, nil
}
