// Package projectdesc is the one external collaborator of §6 the expanded
// spec implements for real: a parser for kestrel's KDL project description
// language (`Project`/`Product`/`Group`/`Rule`/`Artifact`/`Module` items,
// §1) that resolves a project file into a *graph.Project and compiles each
// declared rule's commands into the Go closures internal/apply and
// internal/command expect (internal/script's package doc names this
// package as responsible for exactly that compilation step).
//
// There is no sandboxed script language here, matching the teacher's own
// choice for its `.lci.kdl` config (internal/config/kdl_config.go): a
// rule's prepare step is declared as a literal, ordered command list with
// `{{input}}`/`{{output}}` substitution, and a ScriptRegistry gives a
// project author an escape hatch to a hand-registered Go closure when the
// declarative form isn't enough.
package projectdesc
