package projectfile

import (
	"os"
	"sort"
	"strings"

	kerrors "github.com/kestrel-build/kestrel/internal/errors"
	"github.com/kestrel-build/kestrel/internal/projectdesc"
)

// Edit is §4.12's (changeLine, lineOffset) report: a 1-based line number
// at which lineOffset lines were inserted (positive) or removed
// (negative), for shifting any types.SourceLocation recorded against
// lines at or after ChangeLine.
type Edit struct {
	ChangeLine int
	LineOffset int
}

// Operation is one project-file edit: insert/remove a group, add/remove
// files from a group.
type Operation interface {
	apply(lines []string) ([]string, Edit, error)
}

// Apply reads path, runs op against its content, and writes the result
// back, preserving the file's original line endings. The file must
// parse as KDL both before and is assumed to still parse after op's
// edit; op implementations only ever touch exactly one line's text or
// insert/remove exactly one whole line, so a well-formed input stays
// well-formed.
func Apply(path string, op Operation) (Edit, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Edit{}, kerrors.NewIOError("read", path, err)
	}

	ending := DetectLineEndings(raw)
	content := ToUnix(string(raw), ending)

	if _, err := projectdesc.Parse(content); err != nil {
		return Edit{}, err
	}

	lines := strings.Split(content, "\n")
	newLines, edit, err := op.apply(lines)
	if err != nil {
		return Edit{}, err
	}

	out := FromUnix(strings.Join(newLines, "\n"), ending)
	if err := os.WriteFile(path, []byte(out), 0o644); err != nil {
		return Edit{}, kerrors.NewIOError("write", path, err)
	}
	return edit, nil
}

// locateGroup finds product's span and, within it, group's span, or
// reports a ConfigurationError naming whichever was not found.
func locateGroup(lines []string, product, group string) (nodeSpan, nodeSpan, error) {
	projectSpan, ok := findKind(lines, 0, len(lines), "project")
	if !ok {
		return nodeSpan{}, nodeSpan{}, kerrors.NewConfigurationError("project", "", nil, nil)
	}
	productSpan, ok := findNamed(lines, projectSpan.Open+1, projectSpan.Close, "product", product)
	if !ok {
		return nodeSpan{}, nodeSpan{}, kerrors.NewConfigurationError("product", product, nil, nil)
	}
	groupSpan, ok := findNamed(lines, productSpan.Open+1, productSpan.Close, "group", group)
	if !ok {
		return nodeSpan{}, nodeSpan{}, kerrors.NewConfigurationError("group", group, nil, nil)
	}
	return productSpan, groupSpan, nil
}

func locateProduct(lines []string, product string) (nodeSpan, error) {
	projectSpan, ok := findKind(lines, 0, len(lines), "project")
	if !ok {
		return nodeSpan{}, kerrors.NewConfigurationError("project", "", nil, nil)
	}
	productSpan, ok := findNamed(lines, projectSpan.Open+1, projectSpan.Close, "product", product)
	if !ok {
		return nodeSpan{}, kerrors.NewConfigurationError("product", product, nil, nil)
	}
	return productSpan, nil
}

// InsertGroup appends a new, empty group node as product's last child,
// at product's indentation + 4 (§4.12).
type InsertGroup struct {
	Product string
	Group   string
}

func (op InsertGroup) apply(lines []string) ([]string, Edit, error) {
	productSpan, err := locateProduct(lines, op.Product)
	if err != nil {
		return nil, Edit{}, err
	}

	indent := strings.Repeat(" ", productSpan.Indent+4)
	newLine := indent + `group "` + op.Group + `" files="" tags=""`

	insertAt := productSpan.Close
	out := make([]string, 0, len(lines)+1)
	out = append(out, lines[:insertAt]...)
	out = append(out, newLine)
	out = append(out, lines[insertAt:]...)

	return out, Edit{ChangeLine: insertAt + 1, LineOffset: 1}, nil
}

// RemoveGroup deletes a named group node from product.
type RemoveGroup struct {
	Product string
	Group   string
}

func (op RemoveGroup) apply(lines []string) ([]string, Edit, error) {
	_, groupSpan, err := locateGroup(lines, op.Product, op.Group)
	if err != nil {
		return nil, Edit{}, err
	}

	out := make([]string, 0, len(lines)-1)
	out = append(out, lines[:groupSpan.Header]...)
	out = append(out, lines[groupSpan.Close+1:]...)

	return out, Edit{ChangeLine: groupSpan.Header + 1, LineOffset: -1}, nil
}

// AddFiles merges files into group's files="..." property, keeping the
// existing entries' relative order and appending the new ones (sorted,
// deduplicated against what's already there).
type AddFiles struct {
	Product string
	Group   string
	Files   []string
}

func (op AddFiles) apply(lines []string) ([]string, Edit, error) {
	return editFiles(lines, op.Product, op.Group, func(existing []string) []string {
		have := make(map[string]bool, len(existing))
		for _, f := range existing {
			have[f] = true
		}
		var fresh []string
		for _, f := range op.Files {
			if !have[f] {
				fresh = append(fresh, f)
				have[f] = true
			}
		}
		sort.Strings(fresh)
		return append(append([]string{}, existing...), fresh...)
	})
}

// RemoveFiles removes files from group's files="..." property.
type RemoveFiles struct {
	Product string
	Group   string
	Files   []string
}

func (op RemoveFiles) apply(lines []string) ([]string, Edit, error) {
	return editFiles(lines, op.Product, op.Group, func(existing []string) []string {
		drop := make(map[string]bool, len(op.Files))
		for _, f := range op.Files {
			drop[f] = true
		}
		out := make([]string, 0, len(existing))
		for _, f := range existing {
			if !drop[f] {
				out = append(out, f)
			}
		}
		return out
	})
}

func editFiles(lines []string, product, group string, transform func([]string) []string) ([]string, Edit, error) {
	_, groupSpan, err := locateGroup(lines, product, group)
	if err != nil {
		return nil, Edit{}, err
	}

	line := lines[groupSpan.Header]
	existing := splitFiles(getQuotedProperty(line, "files"))
	updated := transform(existing)
	newLine := setQuotedProperty(line, "files", strings.Join(updated, ","))

	out := append([]string{}, lines...)
	out[groupSpan.Header] = newLine
	return out, Edit{ChangeLine: groupSpan.Header + 1, LineOffset: 0}, nil
}

func splitFiles(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// getQuotedProperty returns the value of a `key="..."` property on
// line, or "" if key is absent or malformed.
func getQuotedProperty(line, key string) string {
	marker := key + `="`
	idx := strings.Index(line, marker)
	if idx == -1 {
		return ""
	}
	start := idx + len(marker)
	end := strings.Index(line[start:], `"`)
	if end == -1 {
		return ""
	}
	return line[start : start+end]
}

// setQuotedProperty replaces key's quoted value on line with value, or
// appends `key="value"` if key is not already present.
func setQuotedProperty(line, key, value string) string {
	marker := key + `="`
	idx := strings.Index(line, marker)
	if idx == -1 {
		return strings.TrimRight(line, " \t") + ` ` + key + `="` + value + `"`
	}
	start := idx + len(marker)
	end := strings.Index(line[start:], `"`)
	if end == -1 {
		return line
	}
	end += start
	return line[:start] + value + line[end:]
}
