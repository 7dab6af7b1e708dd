// Package outdir manages the directory the plugin writes its artifacts into.
package outdir

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

var ErrArtifactCollision = errors.New("artifact name collision")

// Prepare ensures dir exists.
func Prepare(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating output directory %s: %w", dir, err)
	}
	return nil
}

// Clear removes every entry in dir and leaves dir itself in place. Call it
// once per run, before the first invocation: artifacts are keyed only by
// symbol, so clearing mid-run would mix stale and fresh results.
func Clear(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Prepare(dir)
		}
		return fmt.Errorf("reading output directory %s: %w", dir, err)
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return fmt.Errorf("removing %s: %w", e.Name(), err)
		}
	}
	return nil
}

// List returns the regular files directly in dir, sorted. Hidden entries
// (the worker scratch area among them) are skipped.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && e.Name()[0] != '.' {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Merge moves every artifact in private into dir and removes private. It
// refuses to overwrite: a name that already exists in dir is left in private
// and reported with ErrArtifactCollision after the other files are moved.
func Merge(private, dir string) ([]string, error) {
	names, err := List(private)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var moved, collided []string
	for _, name := range names {
		dst := filepath.Join(dir, name)
		if _, err := os.Lstat(dst); err == nil {
			collided = append(collided, name)
			continue
		}
		if err := os.Rename(filepath.Join(private, name), dst); err != nil {
			return moved, fmt.Errorf("moving artifact %s: %w", name, err)
		}
		moved = append(moved, name)
	}

	if len(collided) > 0 {
		return moved, fmt.Errorf("%w: %v (kept in %s)", ErrArtifactCollision, collided, private)
	}
	return moved, os.RemoveAll(private)
}
