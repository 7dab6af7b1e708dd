// Package changeset reads the list of symbols a run analyzes.
package changeset

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Read loads a newline-delimited change-set file.
func Read(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open change set: %w", err)
	}
	defer f.Close()

	symbols, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read change set %s: %w", path, err)
	}
	return symbols, nil
}

// Parse returns the symbols in r in order, one per line. Surrounding
// whitespace is stripped, blank lines are ignored and repeats keep the
// first occurrence.
func Parse(r io.Reader) ([]string, error) {
	var symbols []string
	seen := make(map[string]bool)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		sym := strings.TrimSpace(sc.Text())
		if sym == "" || seen[sym] {
			continue
		}
		seen[sym] = true
		symbols = append(symbols, sym)
	}
	return symbols, sc.Err()
}
