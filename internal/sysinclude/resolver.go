// Package sysinclude discovers the implicit system include directories a
// compiler driver would hand to its frontend.
package sysinclude

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/mattn/go-shellwords"
	"golang.org/x/sync/singleflight"
)

// StrategyClangV1 scrapes `clang -###` output for -internal-*isystem markers.
const StrategyClangV1 = "clang-###/v1"

// DefaultMarkers introduce an implicit system include directory in the -cc1
// line printed by `clang -###`.
var DefaultMarkers = []string{"-internal-isystem", "-internal-externc-isystem"}

// IncludePair is a marker flag and the directory it introduces.
type IncludePair struct {
	Flag string
	Path string
}

func (p IncludePair) Tokens() []string {
	return []string{p.Flag, p.Path}
}

// Resolver is the versioned capability the driver depends on. Swapping the
// parsing strategy for another compiler version does not touch callers.
type Resolver interface {
	ResolveSystemIncludes(ctx context.Context, file, cwd string) ([]IncludePair, error)
	Strategy() string
}

// ClangDriverResolver probes the driver in "show commands, do not execute"
// mode. Results are memoised per (compiler, cwd, source language).
type ClangDriverResolver struct {
	compiler string
	markers  []string
	logger   *slog.Logger

	cache *lru.Cache[string, []IncludePair]
	probe singleflight.Group
}

// NewClangDriverResolver creates a resolver for compiler. A nil logger means
// slog.Default().
func NewClangDriverResolver(compiler string, logger *slog.Logger) (*ClangDriverResolver, error) {
	if compiler == "" {
		return nil, errors.New("sysinclude: compiler path is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	cache, err := lru.New[string, []IncludePair](256)
	if err != nil {
		return nil, err
	}
	return &ClangDriverResolver{
		compiler: compiler,
		markers:  DefaultMarkers,
		logger:   logger,
		cache:    cache,
	}, nil
}

func (r *ClangDriverResolver) Strategy() string {
	return StrategyClangV1
}

// ResolveSystemIncludes runs `<compiler> -### file` in cwd and returns the
// include pairs in discovery order. No marker in the output yields an empty
// slice and no error; callers decide how loudly to complain.
func (r *ClangDriverResolver) ResolveSystemIncludes(ctx context.Context, file, cwd string) ([]IncludePair, error) {
	key := r.compiler + "\x00" + cwd + "\x00" + filepath.Ext(file)
	if pairs, ok := r.cache.Get(key); ok {
		return pairs, nil
	}

	v, err, _ := r.probe.Do(key, func() (any, error) {
		out, err := r.run(ctx, file, cwd)
		if err != nil {
			return nil, err
		}
		pairs := ParseDriverOutput(out, r.markers)
		r.cache.Add(key, pairs)
		r.logger.Debug("resolved system includes",
			"compiler", r.compiler, "cwd", cwd, "sample", file, "count", len(pairs))
		return pairs, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]IncludePair), nil
}

func (r *ClangDriverResolver) run(ctx context.Context, file, cwd string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, r.compiler, "-###", file)
	cmd.Dir = cwd
	out, err := cmd.CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		// -### on some drivers exits non-zero while still printing the job
		// lines; only a probe that printed nothing is a failure.
		if !errors.As(err, &exitErr) || len(out) == 0 {
			return nil, fmt.Errorf("probing %s -### %s: %w", r.compiler, file, err)
		}
	}
	return out, nil
}

// ParseDriverOutput tokenises every line with shell quoting rules and
// captures the token following each marker.
func ParseDriverOutput(out []byte, markers []string) []IncludePair {
	isMarker := make(map[string]bool, len(markers))
	for _, m := range markers {
		isMarker[m] = true
	}

	pairs := []IncludePair{}
	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		tokens, err := shellwords.Parse(scanner.Text())
		if err != nil {
			continue
		}
		for i := 0; i+1 < len(tokens); i++ {
			if isMarker[tokens[i]] {
				pairs = append(pairs, IncludePair{Flag: tokens[i], Path: tokens[i+1]})
				i++
			}
		}
	}
	return pairs
}
