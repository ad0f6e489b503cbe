// Package projectfile implements §4.12's project-file updater: minimal,
// textual edits to a KDL project file — insert a group, add or remove
// files from a group's file list, remove a group — rather than a
// regenerate-the-whole-file rewrite. Line endings are detected before
// editing and restored on write (lineendings.go); every edit reports a
// (changeLine, lineOffset) pair so a caller holding source locations
// recorded against the file (types.SourceLocation) can shift them past
// the edit point.
//
// Unlike the original implementation this was distilled from, kestrel's
// project format has no multi-line QML-style object literals to
// rewrite: a group is always one line (its file list lives in a single
// `files="..."` property), so locating and editing a node is a plain
// line-oriented scan rather than an AST rewrite. internal/projectdesc's
// parser still validates the file is well-formed KDL before any edit is
// attempted.
package projectfile
