package projectfile

import "strings"

// nodeSpan is one node found by scanning a project file's lines
// directly: its header line, the line holding its opening brace (equal
// to Header for a brace-less single-line node, like every `group`
// this module writes), the line holding the matching closing brace
// (equal to Open for a single-line node), and its header's leading
// indentation in spaces. Lines are tracked 0-based throughout this
// package; callers converting to a types.SourceLocation add one.
type nodeSpan struct {
	Name   string
	Header int
	Open   int
	Close  int
	Indent int
}

// findKind returns the first node of kind at brace-depth 0 within
// lines[from:to], regardless of name.
func findKind(lines []string, from, to int, kind string) (nodeSpan, bool) {
	return scan(lines, from, to, kind, "")
}

// findNamed returns the node of kind named name at brace-depth 0 within
// lines[from:to].
func findNamed(lines []string, from, to int, kind, name string) (nodeSpan, bool) {
	return scan(lines, from, to, kind, name)
}

func scan(lines []string, from, to int, kind, name string) (nodeSpan, bool) {
	depth := 0
	for i := from; i < to && i < len(lines); i++ {
		line := lines[i]
		if depth == 0 {
			if indent, ok := headerMatch(line, kind, name); ok {
				span := nodeSpan{Name: name, Header: i, Open: i, Indent: indent}
				if strings.Contains(line, "{") {
					span.Close = matchingClose(lines, i)
				} else {
					span.Close = i
				}
				return span, true
			}
		}
		depth += strings.Count(line, "{") - strings.Count(line, "}")
	}
	return nodeSpan{}, false
}

// headerMatch reports whether line's trimmed content opens a node of
// kind (and, when name != "", specifically named name), returning the
// line's leading indentation width.
func headerMatch(line, kind, name string) (int, bool) {
	trimmed := strings.TrimLeft(line, " \t")
	indent := len(line) - len(trimmed)

	prefix := kind + " "
	if !strings.HasPrefix(trimmed, prefix) {
		return 0, false
	}
	rest := strings.TrimSpace(trimmed[len(prefix):])
	if name == "" {
		return indent, true
	}
	return indent, strings.HasPrefix(rest, `"`+name+`"`)
}

// matchingClose returns the 0-based line index whose closing brace
// brings the running depth opened on line open back to zero.
func matchingClose(lines []string, open int) int {
	depth := 0
	for i := open; i < len(lines); i++ {
		depth += strings.Count(lines[i], "{") - strings.Count(lines[i], "}")
		if depth == 0 {
			return i
		}
	}
	return len(lines) - 1
}
