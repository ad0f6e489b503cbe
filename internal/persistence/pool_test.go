package persistence

import (
	"bytes"
	"path/filepath"
	"testing"

	kerrors "github.com/kestrel-build/kestrel/internal/errors"
	"github.com/stretchr/testify/require"
)

func TestInternDeduplicatesIdenticalObjects(t *testing.T) {
	p := NewPool(1, []byte("cfg-v1"))

	id1 := p.Intern(TagArtifact, []byte("hello.o"))
	id2 := p.Intern(TagArtifact, []byte("hello.o"))
	id3 := p.Intern(TagArtifact, []byte("world.o"))

	require.Equal(t, id1, id2)
	require.NotEqual(t, id1, id3)
	require.Equal(t, 2, p.Len())
}

func TestInternDistinguishesTagsForSameBytes(t *testing.T) {
	p := NewPool(1, nil)

	id1 := p.Intern(TagArtifact, []byte("x"))
	id2 := p.Intern(TagProduct, []byte("x"))

	require.NotEqual(t, id1, id2)
}

func TestGetReturnsStoredBytesAndTag(t *testing.T) {
	p := NewPool(1, nil)
	id := p.Intern(TagRuleNode, []byte("payload"))

	data, tag, err := p.Get(id)
	require.NoError(t, err)
	require.Equal(t, []byte("payload"), data)
	require.Equal(t, TagRuleNode, tag)
}

func TestGetRejectsOutOfRangeID(t *testing.T) {
	p := NewPool(1, nil)
	_, _, err := p.Get(999)
	require.Error(t, err)
	var internalErr *kerrors.InternalError
	require.ErrorAs(t, err, &internalErr)
}

func TestSaveLoadRoundTrips(t *testing.T) {
	p := NewPool(3, []byte("profile=release"))
	idA := p.Intern(TagArtifact, []byte("main.cpp"))
	idB := p.Intern(TagProduct, []byte("myapp"))

	var buf bytes.Buffer
	require.NoError(t, p.Save(&buf))

	loaded, err := Load(&buf, 3, []byte("profile=release"))
	require.NoError(t, err)
	require.Equal(t, 2, loaded.Len())

	data, tag, err := loaded.Get(idA)
	require.NoError(t, err)
	require.Equal(t, []byte("main.cpp"), data)
	require.Equal(t, TagArtifact, tag)

	data, tag, err = loaded.Get(idB)
	require.NoError(t, err)
	require.Equal(t, []byte("myapp"), data)
	require.Equal(t, TagProduct, tag)
}

func TestLoadRejectsSchemaVersionMismatch(t *testing.T) {
	p := NewPool(3, []byte("cfg"))
	p.Intern(TagArtifact, []byte("a"))

	var buf bytes.Buffer
	require.NoError(t, p.Save(&buf))

	_, err := Load(&buf, 4, []byte("cfg"))
	require.Error(t, err)
	var loadErr *kerrors.BuildGraphLoadError
	require.ErrorAs(t, err, &loadErr)
	require.Equal(t, kerrors.SchemaMismatch, loadErr.SubKind)
}

func TestLoadRejectsConfigSnapshotMismatch(t *testing.T) {
	p := NewPool(3, []byte("cfg=old"))
	p.Intern(TagArtifact, []byte("a"))

	var buf bytes.Buffer
	require.NoError(t, p.Save(&buf))

	_, err := Load(&buf, 3, []byte("cfg=new"))
	require.Error(t, err)
	var loadErr *kerrors.BuildGraphLoadError
	require.ErrorAs(t, err, &loadErr)
	require.Equal(t, kerrors.SchemaMismatch, loadErr.SubKind)
}

func TestLoadRejectsTruncatedFile(t *testing.T) {
	p := NewPool(1, nil)
	p.Intern(TagArtifact, []byte("a"))

	var buf bytes.Buffer
	require.NoError(t, p.Save(&buf))

	truncated := bytes.NewReader(buf.Bytes()[:8])
	_, err := Load(truncated, 1, nil)
	require.Error(t, err)
	var loadErr *kerrors.BuildGraphLoadError
	require.ErrorAs(t, err, &loadErr)
	require.Equal(t, kerrors.CorruptPersist, loadErr.SubKind)
}

func TestLoadFileMissingReportsNoBuildGraph(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadFile(filepath.Join(dir, "build.kstrl"), 1, nil)
	require.Error(t, err)
	var loadErr *kerrors.BuildGraphLoadError
	require.ErrorAs(t, err, &loadErr)
	require.Equal(t, kerrors.NoBuildGraph, loadErr.SubKind)
}

func TestSaveFileThenLoadFileRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "build.kstrl")

	p := NewPool(2, []byte("cfg"))
	id := p.Intern(TagProject, []byte("root"))
	require.NoError(t, p.SaveFile(path))

	loaded, err := LoadFile(path, 2, []byte("cfg"))
	require.NoError(t, err)
	data, _, err := loaded.Get(id)
	require.NoError(t, err)
	require.Equal(t, []byte("root"), data)
}
