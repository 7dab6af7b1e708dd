package index

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"argstates/internal/crawler"
	"argstates/internal/extractor"
)

// References maps every name mentioned in a set of sources to where.
type References struct {
	byName map[string][]*extractor.Reference
}

// Has reports whether name occurs anywhere in the scanned sources.
func (r *References) Has(name string) bool {
	_, ok := r.byName[name]
	return ok
}

// Where returns the occurrences of name, ordered by file and line.
func (r *References) Where(name string) []*extractor.Reference {
	return r.byName[name]
}

func (r *References) Len() int {
	return len(r.byName)
}

// Indexer orchestrates reference scanning for a directory group.
type Indexer struct {
	crawler *crawler.Crawler
}

// NewIndexer creates a new indexer.
func NewIndexer(c *crawler.Crawler) *Indexer {
	return &Indexer{
		crawler: c,
	}
}

// Build scans every C file under dir plus the listed files that live
// elsewhere.
func (i *Indexer) Build(dir string, files []string) (*References, error) {
	refs := &References{byName: make(map[string][]*extractor.Reference)}
	add := func(ref *extractor.Reference) {
		refs.byName[ref.Name] = append(refs.byName[ref.Name], ref)
	}

	if err := i.crawler.ScanProject(dir, add); err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	var outside []string
	for _, f := range files {
		if !strings.HasPrefix(f, dir+string(filepath.Separator)) {
			outside = append(outside, f)
		}
	}
	i.crawler.ScanFiles(outside, add)

	for _, occ := range refs.byName {
		sort.SliceStable(occ, func(a, b int) bool {
			if occ[a].Filepath != occ[b].Filepath {
				return occ[a].Filepath < occ[b].Filepath
			}
			return occ[a].Line < occ[b].Line
		})
	}
	return refs, nil
}
