package crawler

import (
	"os"
	"path/filepath"
	"testing"

	"argstates/internal/extractor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestCrawler_ScanProject(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "xmlwf.c"), "int main(void) { return run_xmlwf(); }\n")
	writeFile(t, filepath.Join(root, "xmlfile.h"), "#define OPEN(p) XML_ParserCreate(p)\n")
	writeFile(t, filepath.Join(root, "notes.txt"), "XML_NotCode\n")
	writeFile(t, filepath.Join(root, ".git", "hooks.c"), "void XML_Hidden(void) {}\n")
	writeFile(t, filepath.Join(root, "sub", "codepage.c"), "int codepageMap(int x) { return x; }\n")

	ext, err := extractor.NewExtractor("c")
	require.NoError(t, err)
	c := NewCrawler(ext, nil)

	names := make(map[string]bool)
	err = c.ScanProject(root, func(r *extractor.Reference) {
		names[r.Name] = true
	})
	require.NoError(t, err)

	assert.True(t, names["run_xmlwf"])
	assert.True(t, names["XML_ParserCreate"], "macro body in a header")
	assert.True(t, names["codepageMap"], "subdirectories are walked")
	assert.False(t, names["XML_NotCode"], "non-C files are ignored")
	assert.False(t, names["XML_Hidden"], "ignored directories are skipped")
}

func TestCrawler_ScanFiles_SkipsMissing(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "gen.inc")
	writeFile(t, src, "void f(void) { XML_SetUserData(0, 0); }\n")

	ext, err := extractor.NewExtractor("c")
	require.NoError(t, err)
	c := NewCrawler(ext, nil)

	var refs []*extractor.Reference
	c.ScanFiles([]string{filepath.Join(root, "missing.c"), src}, func(r *extractor.Reference) {
		refs = append(refs, r)
	})
	assert.True(t, extractor.Names(refs)["XML_SetUserData"])
}
