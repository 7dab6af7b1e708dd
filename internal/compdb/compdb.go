// Package compdb loads a JSON compilation database and lifts the structured
// parts of every command (compiler, stage, output, inputs) out of the raw
// argument vector.
package compdb

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"argstates/internal/flags"

	"github.com/mattn/go-shellwords"
)

// Record is one compiled file of the database.
type Record struct {
	File      string   `json:"file"`      // absolute
	Directory string   `json:"directory"` // declared working directory
	Raw       []string `json:"arguments"`

	// Structured fields lifted out of Raw at ingestion.
	Compiler string       `json:"-"`
	Stage    string       `json:"-"`
	Output   string       `json:"-"`
	Inputs   []string     `json:"-"` // positional tokens, the source included
	Flags    []flags.Unit `json:"-"` // everything else, in order
}

type entry struct {
	Directory *string  `json:"directory"`
	File      *string  `json:"file"`
	Arguments []string `json:"arguments"`
	Command   *string  `json:"command"`
	Output    string   `json:"output"`
}

var stageFlags = map[string]bool{"-c": true, "-S": true, "-E": true, "-fsyntax-only": true}

// Index is the loaded database, addressable by file and by directory.
type Index struct {
	Path    string
	records []*Record
	byFile  map[string]*Record
	byDir   map[string][]*Record
}

// Load reads and indexes the database at path.
func Load(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, missing(path)
		}
		return nil, err
	}

	var entries []entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, malformedf(path, -1, "%v", err)
	}

	base := filepath.Dir(path)
	ix := &Index{
		Path:   path,
		byFile: make(map[string]*Record, len(entries)),
		byDir:  make(map[string][]*Record),
	}
	for i, e := range entries {
		rec, err := ingest(path, base, i, e)
		if err != nil {
			return nil, err
		}
		// First record wins for files compiled more than once.
		if _, dup := ix.byFile[rec.File]; dup {
			continue
		}
		ix.records = append(ix.records, rec)
		ix.byFile[rec.File] = rec
		ix.byDir[rec.Directory] = append(ix.byDir[rec.Directory], rec)
	}
	return ix, nil
}

func ingest(path, base string, i int, e entry) (*Record, error) {
	if e.Directory == nil || *e.Directory == "" {
		return nil, malformedf(path, i, "missing directory")
	}
	if e.File == nil || *e.File == "" {
		return nil, malformedf(path, i, "missing file")
	}

	raw := e.Arguments
	if len(raw) == 0 {
		if e.Command == nil || strings.TrimSpace(*e.Command) == "" {
			return nil, malformedf(path, i, "missing arguments")
		}
		parsed, err := shellwords.Parse(*e.Command)
		if err != nil {
			return nil, malformedf(path, i, "cannot split command: %v", err)
		}
		raw = parsed
	}

	dir := *e.Directory
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(base, dir)
	}
	dir = filepath.Clean(dir)

	rec := &Record{
		File:      absolute(dir, *e.File),
		Directory: dir,
		Raw:       raw,
		Output:    e.Output,
	}
	if err := rec.lift(); err != nil {
		return nil, malformedf(path, i, "%s: %v", rec.File, err)
	}
	return rec, nil
}

// lift splits Raw into the structured fields. The build tooling always
// emits a stage selector; a command without one is not something this
// driver can safely reduce to a frontend invocation.
func (r *Record) lift() error {
	argv := r.Raw
	if len(argv) > 0 && !strings.HasPrefix(argv[0], "-") && absolute(r.Directory, argv[0]) != r.File {
		r.Compiler = argv[0]
		argv = argv[1:]
	}

	for _, u := range flags.Parse(argv) {
		switch {
		case u.Positional:
			r.Inputs = append(r.Inputs, u.Flag)
		case stageFlags[u.Flag]:
			r.Stage = u.Flag
		case u.Flag == "-o":
			if !u.HasValue {
				return errors.New("dangling -o without an output path")
			}
			r.Output = u.Value
		case strings.HasPrefix(u.Flag, "-o") && len(u.Flag) > 2:
			r.Output = u.Flag[2:]
		default:
			r.Flags = append(r.Flags, u)
		}
	}

	if r.Stage == "" {
		return errors.New("no compile-stage selector (-c, -S, -E or -fsyntax-only)")
	}
	return nil
}

func absolute(dir, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(dir, p)
}

// Lookup returns the record compiled for file.
func (ix *Index) Lookup(file string) (*Record, bool) {
	r, ok := ix.byFile[filepath.Clean(file)]
	return r, ok
}

// Files maps every absolute source path to its record.
func (ix *Index) Files() map[string]*Record {
	out := make(map[string]*Record, len(ix.byFile))
	for k, v := range ix.byFile {
		out[k] = v
	}
	return out
}

// Directory returns the records whose declared working directory is dir.
func (ix *Index) Directory(dir string) []*Record {
	return ix.byDir[filepath.Clean(dir)]
}

// Directories lists the declared working directories, sorted.
func (ix *Index) Directories() []string {
	dirs := make([]string, 0, len(ix.byDir))
	for d := range ix.byDir {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)
	return dirs
}

// Records returns every record in database order.
func (ix *Index) Records() []*Record {
	return ix.records
}

func (ix *Index) Len() int {
	return len(ix.records)
}
