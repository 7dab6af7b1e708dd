package outdir

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))
}

func TestPrepare_Idempotent(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", ".states")
	require.NoError(t, Prepare(dir))
	require.NoError(t, Prepare(dir))

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestClear_LeavesEmptyDirectory(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "XML_Parse_xmlwf.json"))
	touch(t, filepath.Join(dir, "XML_StopParser_xmlwf.json"))

	require.NoError(t, Clear(dir))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestClear_RemovesScratchAndCreatesMissing(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".work", "item-1"), 0o755))
	touch(t, filepath.Join(dir, ".work", "item-1", "stale.json"))
	require.NoError(t, Clear(dir))
	entries, _ := os.ReadDir(dir)
	assert.Empty(t, entries)

	missing := filepath.Join(t.TempDir(), "fresh")
	require.NoError(t, Clear(missing))
	_, err := os.Stat(missing)
	assert.NoError(t, err)
}

func TestList_SkipsHiddenAndDirs(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "b.json"))
	touch(t, filepath.Join(dir, "a.json"))
	require.NoError(t, os.Mkdir(filepath.Join(dir, ".work"), 0o755))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	names, err := List(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.json", "b.json"}, names)
}

func TestMerge(t *testing.T) {
	dir := t.TempDir()
	private := filepath.Join(dir, ".work", "w1")
	require.NoError(t, Prepare(private))
	touch(t, filepath.Join(private, "foo_a.json"))
	touch(t, filepath.Join(private, "foo_b.json"))

	moved, err := Merge(private, dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"foo_a.json", "foo_b.json"}, moved)

	names, _ := List(dir)
	assert.Equal(t, []string{"foo_a.json", "foo_b.json"}, names)
	_, err = os.Stat(private)
	assert.True(t, os.IsNotExist(err), "private dir removed after a clean merge")
}

func TestMerge_Collision(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "foo_a.json"))

	private := filepath.Join(dir, ".work", "w2")
	require.NoError(t, Prepare(private))
	touch(t, filepath.Join(private, "foo_a.json"))
	touch(t, filepath.Join(private, "foo_c.json"))

	moved, err := Merge(private, dir)
	assert.ErrorIs(t, err, ErrArtifactCollision)
	assert.Equal(t, []string{"foo_c.json"}, moved)
	_, statErr := os.Stat(filepath.Join(private, "foo_a.json"))
	assert.NoError(t, statErr, "colliding artifact kept aside")
}

func TestMerge_MissingPrivate(t *testing.T) {
	moved, err := Merge(filepath.Join(t.TempDir(), "never-created"), t.TempDir())
	assert.NoError(t, err)
	assert.Empty(t, moved)
}
