package crawler

import (
	"io/fs"
	"log/slog"
	"path/filepath"

	"argstates/internal/extractor"
)

// Crawler scans C sources for name references.
type Crawler struct {
	extractor  *extractor.Extractor
	ignored    []string
	extensions map[string]bool
	logger     *slog.Logger
}

// NewCrawler creates a new crawler instance.
func NewCrawler(ext *extractor.Extractor, logger *slog.Logger) *Crawler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Crawler{
		extractor:  ext,
		ignored:    []string{".git", ".svn", "node_modules", "CMakeFiles"},
		extensions: map[string]bool{".c": true, ".h": true},
		logger:     logger,
	}
}

// ScanProject walks root and streams the references of every C file found.
func (c *Crawler) ScanProject(root string, onRef func(*extractor.Reference)) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			for _, ign := range c.ignored {
				if d.Name() == ign {
					return filepath.SkipDir
				}
			}
			return nil
		}

		if !c.extensions[filepath.Ext(d.Name())] {
			return nil
		}
		c.scanFile(path, onRef)
		return nil
	})
}

// ScanFiles streams the references of each listed file regardless of
// extension.
func (c *Crawler) ScanFiles(paths []string, onRef func(*extractor.Reference)) {
	for _, p := range paths {
		c.scanFile(p, onRef)
	}
}

func (c *Crawler) scanFile(path string, onRef func(*extractor.Reference)) {
	refs, err := c.extractor.ExtractFromFile(path)
	if err != nil {
		// A broken file must not fail the whole scan.
		c.logger.Debug("skipping unparsable source", "file", path, "err", err)
		return
	}
	for _, r := range refs {
		onRef(r)
	}
}
