package script

import (
	"fmt"

	"github.com/t14raptor/go-fast/parser"

	kerrors "github.com/kestrel-build/kestrel/internal/errors"
	"github.com/kestrel-build/kestrel/internal/types"
)

// CheckSyntax parses source with go-fast's JavaScript parser purely to
// catch syntax errors, reporting one as a ScriptEvaluationError. It
// performs no code generation. No package in this module calls it
// outside its tests; internal/projectdesc does not run it at resolve time.
func CheckSyntax(kind string, loc types.SourceLocation, source string) error {
	if source == "" {
		return nil
	}
	if _, err := parser.ParseFile(source); err != nil {
		return kerrors.NewScriptEvaluationError(kind, loc, nil, fmt.Errorf("syntax error: %w", err))
	}
	return nil
}
