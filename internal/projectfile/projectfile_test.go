package projectfile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleKDL = `project "app" {
    product "app" type="application" {
        group "sources" files="main.cpp,util.cpp" tags="cpp"
        rule "compile" inputs="cpp" outputs="obj" multiplex=true {
            artifact path="{{base}}.o" tags="obj"
            command program="g++" arguments="-c,{{input}},-o,{{output}}"
        }
    }
}
`

func writeProject(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app.kdl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDetectLineEndingsClassifiesEachConvention(t *testing.T) {
	require.Equal(t, UnknownLineEndings, DetectLineEndings([]byte("no newlines here")))
	require.Equal(t, UnixLineEndings, DetectLineEndings([]byte("a\nb\nc\n")))
	require.Equal(t, WindowsLineEndings, DetectLineEndings([]byte("a\r\nb\r\nc\r\n")))
	require.Equal(t, MixedLineEndings, DetectLineEndings([]byte("a\r\nb\nc\r\n")))
}

func TestToUnixAndFromUnixRoundTripWindowsLineEndings(t *testing.T) {
	original := "a\r\nb\r\nc\r\n"
	ending := DetectLineEndings([]byte(original))
	require.Equal(t, WindowsLineEndings, ending)

	unix := ToUnix(original, ending)
	require.Equal(t, "a\nb\nc\n", unix)
	require.Equal(t, original, FromUnix(unix, ending))
}

func TestAddFilesAppendsNewSortedEntriesAfterExisting(t *testing.T) {
	path := writeProject(t, sampleKDL)

	edit, err := Apply(path, AddFiles{Product: "app", Group: "sources", Files: []string{"zeta.cpp", "alpha.cpp", "util.cpp"}})
	require.NoError(t, err)
	require.Equal(t, 0, edit.LineOffset)

	out, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(out), `files="main.cpp,util.cpp,alpha.cpp,zeta.cpp"`)
}

func TestRemoveFilesDropsNamedEntries(t *testing.T) {
	path := writeProject(t, sampleKDL)

	_, err := Apply(path, RemoveFiles{Product: "app", Group: "sources", Files: []string{"util.cpp"}})
	require.NoError(t, err)

	out, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(out), `files="main.cpp"`)
	require.NotContains(t, string(out), "util.cpp")
}

func TestInsertGroupAppendsAtProductIndentPlusFourAndReportsOffset(t *testing.T) {
	path := writeProject(t, sampleKDL)

	edit, err := Apply(path, InsertGroup{Product: "app", Group: "headers"})
	require.NoError(t, err)
	require.Equal(t, 1, edit.LineOffset)

	out, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(string(out), "\n")
	require.Equal(t, edit.ChangeLine, findLine(t, lines, `group "headers"`)+1)
	require.True(t, strings.HasPrefix(lines[edit.ChangeLine-1], strings.Repeat(" ", 8)+`group "headers"`))
}

func TestRemoveGroupDeletesItsLineAndReportsNegativeOffset(t *testing.T) {
	path := writeProject(t, sampleKDL)

	edit, err := Apply(path, RemoveGroup{Product: "app", Group: "sources"})
	require.NoError(t, err)
	require.Equal(t, -1, edit.LineOffset)

	out, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotContains(t, string(out), `group "sources"`)
}

func TestApplyRejectsUnknownProduct(t *testing.T) {
	path := writeProject(t, sampleKDL)
	_, err := Apply(path, InsertGroup{Product: "missing", Group: "headers"})
	require.Error(t, err)
}

func TestApplyRejectsUnknownGroup(t *testing.T) {
	path := writeProject(t, sampleKDL)
	_, err := Apply(path, RemoveGroup{Product: "app", Group: "missing"})
	require.Error(t, err)
}

func TestApplyRejectsUnparsableProjectFile(t *testing.T) {
	path := writeProject(t, "this is not { valid kdl")
	_, err := Apply(path, InsertGroup{Product: "app", Group: "headers"})
	require.Error(t, err)
}

func TestApplyPreservesWindowsLineEndings(t *testing.T) {
	windows := strings.ReplaceAll(sampleKDL, "\n", "\r\n")
	path := writeProject(t, windows)

	_, err := Apply(path, InsertGroup{Product: "app", Group: "headers"})
	require.NoError(t, err)

	out, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(out), "\r\n")
	require.NotContains(t, string(out), "headers\n")
}

func findLine(t *testing.T, lines []string, substr string) int {
	t.Helper()
	for i, l := range lines {
		if strings.Contains(l, substr) {
			return i
		}
	}
	t.Fatalf("no line containing %q", substr)
	return -1
}
