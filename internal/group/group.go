// Package group partitions translation units into directory groups that
// share one merged invocation.
package group

import (
	"sort"

	"argstates/internal/compdb"
	"argstates/internal/flags"
)

// DirectoryGroup is every TU built from one declared working directory.
type DirectoryGroup struct {
	Dir      string
	Files    []string     // sorted, absolute
	Flags    []flags.Unit // union of the members' flags, first-seen order
	Compiler string       // first non-empty compiler among the members
}

// Sample is the representative file used to probe the compiler driver.
func (g *DirectoryGroup) Sample() string {
	if len(g.Files) == 0 {
		return ""
	}
	return g.Files[0]
}

// KeyFunc chooses the group a record belongs to.
type KeyFunc func(*compdb.Record) string

// ByDirectory keys records by their declared working directory. This is what
// the build system used as the compiler's cwd, which is not necessarily the
// directory the source file lives in.
func ByDirectory(r *compdb.Record) string {
	return r.Directory
}

// Group partitions records by key. A nil key means ByDirectory.
func Group(records []*compdb.Record, key KeyFunc) map[string]*DirectoryGroup {
	if key == nil {
		key = ByDirectory
	}

	groups := make(map[string]*DirectoryGroup)
	for _, r := range records {
		k := key(r)
		g, ok := groups[k]
		if !ok {
			g = &DirectoryGroup{Dir: k}
			groups[k] = g
		}
		g.Files = append(g.Files, r.File)
		g.Flags = flags.Union(g.Flags, r.Flags)
		if g.Compiler == "" {
			g.Compiler = r.Compiler
		}
	}

	for _, g := range groups {
		sort.Strings(g.Files)
	}
	return groups
}

// Keys returns the group keys sorted.
func Keys(groups map[string]*DirectoryGroup) []string {
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
