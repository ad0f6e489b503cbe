package graph

import "time"

// CommandKind distinguishes the two command descriptor shapes a
// transformer can carry (§6 external collaborator: command executors).
type CommandKind uint8

const (
	ProcessCommandKind CommandKind = iota
	ScriptCommandKind
)

// CommandDescriptor is a transformer's recipe for one step of its
// execution (§4.9 consumes these; §3 "commands (ordered list of command
// descriptors)"). The fields cover both process and script commands;
// only the ones relevant to Kind are populated.
type CommandDescriptor struct {
	Kind CommandKind

	// Process fields.
	Program          string
	Arguments        []string
	WorkingDirectory string
	Environment      map[string]string

	// Script fields.
	ScriptSource string

	Description  string
	IgnoreDryRun bool
	JobPool      string
}

// Transformer is shared state produced by one rule application (§3): the
// rule it came from, the artifact sets it touches, its ordered commands,
// and every fingerprint/snapshot the change tracker needs to decide
// whether it must re-run (§4.6, §4.7).
type Transformer struct {
	Rule *Rule

	Inputs              []*Artifact
	ExplicitlyDependsOn []*Artifact
	Outputs             []*Artifact

	Commands []CommandDescriptor

	PropertiesRequestedInPrepareScript             []string
	PropertiesRequestedInCommands                  []string
	PropertiesRequestedFromArtifactInPrepareScript map[string][]string
	PropertiesRequestedFromArtifactInCommands      map[string][]string
	ImportedFilesUsedInPrepareScript               []string
	ImportedFilesUsedInCommands                    []string
	DepsRequestedInPrepareScript                   []string
	DepsRequestedInCommands                        []string
	ArtifactsMapRequestedInPrepareScript            []string
	ArtifactsMapRequestedInCommands                []string
	ExportedModulesAccessedInPrepareScript         []string
	ExportedModulesAccessedInCommands              []string

	LastCommandExecutionTime      time.Time
	LastPrepareScriptExecutionTime time.Time

	PrepareScriptNeedsChangeTracking bool
	CommandsNeedChangeTracking       bool
	MarkedForRerun                   bool
	AlwaysRun                        bool
}

// NewTransformer creates an empty transformer for rule.
func NewTransformer(rule *Rule) *Transformer {
	return &Transformer{
		Rule:                                            rule,
		PropertiesRequestedFromArtifactInPrepareScript: make(map[string][]string),
		PropertiesRequestedFromArtifactInCommands:      make(map[string][]string),
		AlwaysRun:                                       rule != nil && rule.AlwaysRun,
	}
}

// ContainsOutput reports whether a is one of the transformer's outputs,
// the I1 check callers assert before wiring a generated artifact in.
func (t *Transformer) ContainsOutput(a *Artifact) bool {
	for _, out := range t.Outputs {
		if out == a {
			return true
		}
	}
	return false
}
