package projectfile

import "strings"

// LineEnding is a project file's detected line-ending convention.
type LineEnding int

const (
	UnknownLineEndings LineEnding = iota
	UnixLineEndings
	WindowsLineEndings
	MixedLineEndings
)

// DetectLineEndings classifies raw's line endings by counting how many
// '\n' bytes are immediately preceded by '\r' versus not: no newlines at
// all is Unknown, all-CRLF is Windows, all-LF is Unix, a mix of both is
// Mixed. Grounded on ProjectFileUpdater::guessLineEndingType.
func DetectLineEndings(raw []byte) LineEnding {
	lfCount, crlfCount := 0, 0
	for i, b := range raw {
		if b != '\n' {
			continue
		}
		if i > 0 && raw[i-1] == '\r' {
			crlfCount++
		} else {
			lfCount++
		}
	}
	switch {
	case lfCount == 0 && crlfCount == 0:
		return UnknownLineEndings
	case crlfCount == 0:
		return UnixLineEndings
	case lfCount == 0:
		return WindowsLineEndings
	default:
		return MixedLineEndings
	}
}

// ToUnix normalizes text to LF-only line endings before editing.
func ToUnix(text string, orig LineEnding) string {
	if orig == UnixLineEndings || orig == UnknownLineEndings {
		return text
	}
	return strings.ReplaceAll(text, "\r\n", "\n")
}

// FromUnix restores text's line endings to want, the convention
// detected before editing began. Mixed and Unknown files are written
// back as plain LF: there is no single convention to restore.
func FromUnix(text string, want LineEnding) string {
	if want == WindowsLineEndings {
		return strings.ReplaceAll(text, "\n", "\r\n")
	}
	return text
}
