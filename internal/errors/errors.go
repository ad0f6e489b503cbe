// Package errors defines the typed error kinds of §7: Configuration,
// BuildGraphLoad, Cycle, Conflict, ScriptEvaluation, IO, Cancelled, and
// Internal. Each kind is its own struct implementing error, modelled on the
// teacher repo's internal/errors package (IndexingError, ParseError, ...):
// contextual fields, plus an Underlying error and Unwrap on the kinds that
// wrap a cause, and a Timestamp on the Configuration, BuildGraphLoad and IO
// kinds. No struct carries a Kind field; the Kind constants name the rows.
package errors

import (
	"fmt"
	"sync"
	"time"

	"github.com/hbollon/go-edlib"

	"github.com/kestrel-build/kestrel/internal/types"
)

// Kind identifies which row of the §7 error table an error belongs to.
type Kind string

const (
	KindConfiguration    Kind = "configuration"
	KindBuildGraphLoad   Kind = "build_graph_load"
	KindCycle            Kind = "cycle"
	KindConflict         Kind = "conflict"
	KindScriptEvaluation Kind = "script_evaluation"
	KindIO               Kind = "io"
	KindCancelled        Kind = "cancelled"
	KindInternal         Kind = "internal"
)

// ConfigurationError reports an unknown profile, invalid override, or
// other malformed configuration. It has no local recovery (§7).
type ConfigurationError struct {
	Field      string
	Value      string
	Suggestion string
	Underlying error
	Timestamp  time.Time
}

// NewConfigurationError builds a ConfigurationError. If known is
// non-empty and value doesn't match any entry, the closest match (by
// Jaro-Winkler similarity) is offered as a Suggestion.
func NewConfigurationError(field, value string, known []string, err error) *ConfigurationError {
	return &ConfigurationError{
		Field:      field,
		Value:      value,
		Suggestion: nearestMatch(value, known),
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

func (e *ConfigurationError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("configuration error for %s (got %q, did you mean %q?): %v", e.Field, e.Value, e.Suggestion, e.Underlying)
	}
	return fmt.Sprintf("configuration error for %s (got %q): %v", e.Field, e.Value, e.Underlying)
}

func (e *ConfigurationError) Unwrap() error { return e.Underlying }

// nearestMatch returns the candidate from known with the highest
// similarity to value, or "" if known is empty or nothing is close
// enough to be worth suggesting.
func nearestMatch(value string, known []string) string {
	const minSimilarity = 0.5
	best := ""
	bestScore := minSimilarity
	for _, candidate := range known {
		score, err := edlib.StringsSimilarity(value, candidate, edlib.JaroWinkler)
		if err != nil {
			continue
		}
		if float64(score) > bestScore {
			bestScore = float64(score)
			best = candidate
		}
	}
	return best
}

// BuildGraphLoadSubKind distinguishes the three ways loading a persisted
// build graph (§4.1) can fail.
type BuildGraphLoadSubKind string

const (
	NoBuildGraph   BuildGraphLoadSubKind = "no_build_graph"
	SchemaMismatch BuildGraphLoadSubKind = "schema_mismatch"
	CorruptPersist BuildGraphLoadSubKind = "corrupt"
)

// BuildGraphLoadError wraps a failure to load the persisted build graph.
type BuildGraphLoadError struct {
	SubKind    BuildGraphLoadSubKind
	Path       string
	Underlying error
	Timestamp  time.Time
}

func NewNoBuildGraphError(path string) *BuildGraphLoadError {
	return &BuildGraphLoadError{SubKind: NoBuildGraph, Path: path, Timestamp: time.Now()}
}

func NewSchemaMismatchError(path string, err error) *BuildGraphLoadError {
	return &BuildGraphLoadError{SubKind: SchemaMismatch, Path: path, Underlying: err, Timestamp: time.Now()}
}

func NewCorruptError(path string, err error) *BuildGraphLoadError {
	return &BuildGraphLoadError{SubKind: CorruptPersist, Path: path, Underlying: err, Timestamp: time.Now()}
}

func (e *BuildGraphLoadError) Error() string {
	switch e.SubKind {
	case NoBuildGraph:
		return fmt.Sprintf("no build graph at %s", e.Path)
	case SchemaMismatch:
		return fmt.Sprintf("build graph at %s has an incompatible schema: %v", e.Path, e.Underlying)
	default:
		return fmt.Sprintf("build graph at %s is corrupt: %v", e.Path, e.Underlying)
	}
}

func (e *BuildGraphLoadError) Unwrap() error { return e.Underlying }

// CycleParticipant names one node on a reported cycle.
type CycleParticipant struct {
	Description string
	Location    types.SourceLocation
}

// CycleError reports a cycle detected in the rule graph (§4.4) or the
// artifact/rule-node DAG (§4.3, invariant I4). It carries the whole cycle
// so the message can show every participant, per §7.
type CycleError struct {
	Participants []CycleParticipant
}

func NewCycleError(participants []CycleParticipant) *CycleError {
	return &CycleError{Participants: participants}
}

func (e *CycleError) Error() string {
	msg := "dependency cycle detected:\n"
	for i, p := range e.Participants {
		msg += fmt.Sprintf("  [%d] %s (%s)\n", i, p.Description, p.Location)
	}
	return msg
}

// ConflictError reports two rules producing the same output path, or two
// artifacts sharing a file path in violation of invariant I3. Both source
// locations are carried per §7.
type ConflictError struct {
	Path       string
	FirstWhat  string
	First      types.SourceLocation
	SecondWhat string
	Second     types.SourceLocation
}

func NewConflictError(path, firstWhat string, first types.SourceLocation, secondWhat string, second types.SourceLocation) *ConflictError {
	return &ConflictError{Path: path, FirstWhat: firstWhat, First: first, SecondWhat: secondWhat, Second: second}
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict on %q: %s (%s) vs. %s (%s)", e.Path, e.FirstWhat, e.First, e.SecondWhat, e.Second)
}

// ScriptEvaluationError reports a failure inside a prepare/outputArtifacts/
// scan script, attributed to its source file and line (§7).
type ScriptEvaluationError struct {
	ScriptKind string // "prepare", "outputArtifacts", "scan"
	Location   types.SourceLocation
	Backtrace  []string
	Underlying error
}

func NewScriptEvaluationError(kind string, loc types.SourceLocation, backtrace []string, err error) *ScriptEvaluationError {
	return &ScriptEvaluationError{ScriptKind: kind, Location: loc, Backtrace: backtrace, Underlying: err}
}

func (e *ScriptEvaluationError) Error() string {
	msg := fmt.Sprintf("%s script failed at %s: %v", e.ScriptKind, e.Location, e.Underlying)
	for _, frame := range e.Backtrace {
		msg += "\n  at " + frame
	}
	return msg
}

func (e *ScriptEvaluationError) Unwrap() error { return e.Underlying }

// IOError reports a file or process I/O failure. Under keepGoing, the
// caller marks the owning branch failed and continues (§7); this type
// itself carries no recovery policy, only context.
type IOError struct {
	Operation  string
	Path       string
	Underlying error
	Timestamp  time.Time
}

func NewIOError(op, path string, err error) *IOError {
	return &IOError{Operation: op, Path: path, Underlying: err, Timestamp: time.Now()}
}

func (e *IOError) Error() string {
	return fmt.Sprintf("io %s failed for %s: %v", e.Operation, e.Path, e.Underlying)
}

func (e *IOError) Unwrap() error { return e.Underlying }

// CancelledError is returned by any build that was aborted via the
// executor's cancel flag (§4.8). It is a distinct kind so callers can
// special-case exit code 3 (§6).
type CancelledError struct {
	Reason string
}

func NewCancelledError(reason string) *CancelledError {
	return &CancelledError{Reason: reason}
}

func (e *CancelledError) Error() string {
	if e.Reason == "" {
		return "build cancelled"
	}
	return fmt.Sprintf("build cancelled: %s", e.Reason)
}

// InternalError reports a failed invariant check, with node/product
// context attached (§7). It should never occur in a correct build; it
// exists so invariant violations fail loudly instead of corrupting state
// silently.
type InternalError struct {
	Invariant  string
	Context    string
	Underlying error
}

func NewInternalError(invariant, context string, err error) *InternalError {
	return &InternalError{Invariant: invariant, Context: context, Underlying: err}
}

func (e *InternalError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("internal error: invariant %s violated (%s): %v", e.Invariant, e.Context, e.Underlying)
	}
	return fmt.Sprintf("internal error: invariant %s violated (%s)", e.Invariant, e.Context)
}

func (e *InternalError) Unwrap() error { return e.Underlying }

// MultiError aggregates the errors keepGoing accumulates across
// independent branches (§4.8, §7).
type MultiError struct {
	Errors []error
}

func NewMultiError(errs []error) *MultiError {
	filtered := make([]error, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			filtered = append(filtered, err)
		}
	}
	return &MultiError{Errors: filtered}
}

func (e *MultiError) Error() string {
	switch len(e.Errors) {
	case 0:
		return "no errors"
	case 1:
		return e.Errors[0].Error()
	default:
		return fmt.Sprintf("%d errors: %v", len(e.Errors), e.Errors)
	}
}

func (e *MultiError) Unwrap() []error { return e.Errors }

// WarningCollector deduplicates warnings by (message, location) as §7
// requires, while still surfacing each distinct warning live via OnWarning.
type WarningCollector struct {
	mu        sync.Mutex
	seen      map[warningKey]struct{}
	warnings  []Warning
	OnWarning func(Warning)
}

type warningKey struct {
	message  string
	location string
}

// Warning is one deduplicated project warning.
type Warning struct {
	Message  string
	Location types.SourceLocation
}

// NewWarningCollector returns an empty collector.
func NewWarningCollector() *WarningCollector {
	return &WarningCollector{seen: make(map[warningKey]struct{})}
}

// Add records w unless an identical (message, location) pair was already
// recorded, returning whether it was newly added.
func (c *WarningCollector) Add(w Warning) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := warningKey{message: w.Message, location: w.Location.String()}
	if _, dup := c.seen[key]; dup {
		return false
	}
	c.seen[key] = struct{}{}
	c.warnings = append(c.warnings, w)
	if c.OnWarning != nil {
		c.OnWarning(w)
	}
	return true
}

// All returns every distinct warning recorded so far, in recording order.
func (c *WarningCollector) All() []Warning {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Warning, len(c.warnings))
	copy(out, c.warnings)
	return out
}
