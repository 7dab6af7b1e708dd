package group

import (
	"os"
	"path/filepath"
	"testing"

	"argstates/internal/compdb"
	"argstates/internal/flags"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func load(t *testing.T, content string) *compdb.Index {
	t.Helper()
	path := filepath.Join(t.TempDir(), "compile_commands.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	ix, err := compdb.Load(path)
	require.NoError(t, err)
	return ix
}

func TestGroup_SharedDirectoryMergesFlags(t *testing.T) {
	ix := load(t, `[
	  {"directory": "/proj/lib", "file": "a.c", "arguments": ["-DX","-g","-c","foo.o"]},
	  {"directory": "/proj/lib", "file": "b.c", "arguments": ["-DX","-g","-c","foo.o"]}
	]`)

	groups := Group(ix.Records(), nil)
	require.Len(t, groups, 1)

	g := groups["/proj/lib"]
	require.NotNil(t, g)
	assert.Equal(t, []string{"/proj/lib/a.c", "/proj/lib/b.c"}, g.Files)

	filtered := flags.NewFilter(nil).FilterUnits(g.Flags)
	assert.Equal(t, []string{"-DX"}, flags.Flatten(filtered))
}

func TestGroup_FollowsDeclaredDirectory(t *testing.T) {
	// Both sources live under src/ but are compiled from different build dirs.
	ix := load(t, `[
	  {"directory": "/build/one", "file": "/src/x.c", "arguments": ["cc","-DONE","-c","/src/x.c"]},
	  {"directory": "/build/two", "file": "/src/y.c", "arguments": ["cc","-DTWO","-I","inc","-c","/src/y.c"]},
	  {"directory": "/build/two", "file": "/src/z.c", "arguments": ["cc","-I","inc","-DZ","-c","/src/z.c"]}
	]`)

	groups := Group(ix.Records(), nil)
	assert.Equal(t, []string{"/build/one", "/build/two"}, Keys(groups))

	two := groups["/build/two"]
	assert.Equal(t, []string{"/src/y.c", "/src/z.c"}, two.Files)
	assert.Equal(t, []string{"-DTWO", "-I", "inc", "-DZ"}, flags.Flatten(two.Flags))
	assert.Equal(t, "cc", two.Compiler)
	assert.Equal(t, "/src/y.c", two.Sample())
}

func TestGroup_MembershipMatchesDirectory(t *testing.T) {
	ix := load(t, `[
	  {"directory": "/a", "file": "1.c", "arguments": ["cc","-c","1.c"]},
	  {"directory": "/b", "file": "2.c", "arguments": ["cc","-c","2.c"]},
	  {"directory": "/a", "file": "3.c", "arguments": ["cc","-c","3.c"]},
	  {"directory": "/c", "file": "/a/4.c", "arguments": ["cc","-c","/a/4.c"]}
	]`)

	groups := Group(ix.Records(), nil)
	for dir, g := range groups {
		var want []string
		for _, r := range ix.Records() {
			if r.Directory == dir {
				want = append(want, r.File)
			}
		}
		assert.ElementsMatch(t, want, g.Files, "group %s", dir)
	}
}

func TestGroup_CustomKey(t *testing.T) {
	ix := load(t, `[
	  {"directory": "/build", "file": "/src/lib/a.c", "arguments": ["cc","-c","/src/lib/a.c"]},
	  {"directory": "/build", "file": "/src/app/b.c", "arguments": ["cc","-c","/src/app/b.c"]}
	]`)

	groups := Group(ix.Records(), func(r *compdb.Record) string { return filepath.Dir(r.File) })
	assert.Equal(t, []string{"/src/app", "/src/lib"}, Keys(groups))
}
