package analysis

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"argstates/internal/config"
	"argstates/internal/storage"
)

// AuditReport summarizes which symbols of a run are missing results and why.
type AuditReport struct {
	Run *storage.Run

	Totals map[string]int // invocations per outcome

	// NoArtifact lists change-set symbols no invocation produced an
	// artifact for, in change-set order.
	NoArtifact []string
	Failures   []*storage.Invocation // failed or error outcomes
	Skipped    []*storage.Invocation

	// EmptyIncludeGroups resolved no system include directories, so their
	// invocations most likely failed on missing standard headers.
	EmptyIncludeGroups []string
}

// Analyzer audits recorded runs.
type Analyzer struct {
	ledger storage.Ledger
}

// NewAnalyzer creates a new analyzer.
func NewAnalyzer(ledger storage.Ledger) *Analyzer {
	return &Analyzer{ledger: ledger}
}

// Audit builds the report for runID, or for the latest run when runID is
// empty.
func (a *Analyzer) Audit(ctx context.Context, runID string) (*AuditReport, error) {
	var run *storage.Run
	var err error
	if runID == "" {
		run, err = a.ledger.LatestRun(ctx)
	} else {
		run, err = a.ledger.GetRun(ctx, runID)
	}
	if err != nil {
		return nil, err
	}

	invs, err := a.ledger.Invocations(ctx, run.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load invocations: %w", err)
	}
	probes, err := a.ledger.IncludeProbes(ctx, run.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load include probes: %w", err)
	}

	report := &AuditReport{Run: run, Totals: make(map[string]int)}
	var artifacts []string
	covered := make(map[string]bool)

	for _, inv := range invs {
		report.Totals[inv.Outcome]++
		switch inv.Outcome {
		case storage.OutcomeFailed, storage.OutcomeError:
			report.Failures = append(report.Failures, inv)
		case storage.OutcomeSkipped:
			report.Skipped = append(report.Skipped, inv)
		}
		if inv.Symbol != "" && len(inv.Artifacts) > 0 {
			covered[inv.Symbol] = true
		}
		artifacts = append(artifacts, inv.Artifacts...)
	}

	for _, sym := range run.Symbols {
		if covered[sym] || (run.Mode == config.ModeBatch && hasArtifactFor(artifacts, sym)) {
			continue
		}
		report.NoArtifact = append(report.NoArtifact, sym)
	}

	for _, p := range probes {
		if p.Pairs == 0 {
			report.EmptyIncludeGroups = append(report.EmptyIncludeGroups, p.Group)
		}
	}
	sort.Strings(report.EmptyIncludeGroups)

	return report, nil
}

// hasArtifactFor matches the plugin's "<symbol>_<tu>" artifact naming. Batch
// invocations carry no symbol, so this is the only link back.
func hasArtifactFor(artifacts []string, symbol string) bool {
	prefix := symbol + "_"
	for _, name := range artifacts {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}
