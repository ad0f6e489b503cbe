package types

import "fmt"

// SourceLocation points at a position inside a textual project file. It is
// attached to every declarative item (Rule, Product, Group, Artifact
// binding) so that conflict and cycle errors can name where each
// participant came from, and so the project-file updater (§4.12) knows
// where to apply a minimal edit.
type SourceLocation struct {
	FilePath string
	Line     int
	Column   int
}

func (l SourceLocation) String() string {
	if l.FilePath == "" {
		return "<unknown>"
	}
	if l.Line == 0 {
		return l.FilePath
	}
	if l.Column == 0 {
		return fmt.Sprintf("%s:%d", l.FilePath, l.Line)
	}
	return fmt.Sprintf("%s:%d:%d", l.FilePath, l.Line, l.Column)
}

// IsZero reports whether the location carries no information.
func (l SourceLocation) IsZero() bool {
	return l.FilePath == "" && l.Line == 0 && l.Column == 0
}
