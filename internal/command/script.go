package command

import (
	"sync"

	"github.com/kestrel-build/kestrel/internal/script"
)

// ScriptCommandFunc is one script command's compiled body, produced by
// internal/projectdesc the same way internal/apply's PrepareFunc is.
type ScriptCommandFunc func(scope *script.Scope) error

// ScriptExecutor evaluates script commands with its own
// internal/script.Evaluator, one at a time: Run executes on the calling
// goroutine and holds mu for the whole evaluation, so script commands on
// one executor never run concurrently with one another. It has no
// dedicated thread of its own.
type ScriptExecutor struct {
	Evaluator *script.Evaluator
	mu        sync.Mutex
}

// NewScriptExecutor returns a ScriptExecutor with a fresh evaluator.
func NewScriptExecutor() *ScriptExecutor {
	return &ScriptExecutor{Evaluator: script.NewEvaluator()}
}

// Run evaluates fn against scope, serialized against any other script
// command on this executor, and returns the property/dependency/
// artifacts-map accesses it performed.
func (e *ScriptExecutor) Run(fn ScriptCommandFunc, scope *script.Scope) (script.Access, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if fn == nil {
		if scope != nil && scope.Properties != nil {
			return scope.Properties.Access(), nil
		}
		return script.Access{}, nil
	}
	err := fn(scope)
	if scope != nil && scope.Properties != nil {
		return scope.Properties.Access(), err
	}
	return script.Access{}, err
}
