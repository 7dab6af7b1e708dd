package storage

import (
	"context"
	"time"
)

// Ledger records what every run did so failures can be audited afterwards.
type Ledger interface {
	// BeginRun inserts a run row; FinishRun stamps its end time.
	BeginRun(ctx context.Context, run *Run) error
	FinishRun(ctx context.Context, runID string, finishedAt time.Time) error

	// RecordInvocation appends one executed (or skipped) work item.
	RecordInvocation(ctx context.Context, inv *Invocation) error

	// RecordIncludes stores how many system include pairs a group resolved.
	RecordIncludes(ctx context.Context, probe *IncludeProbe) error

	GetRun(ctx context.Context, runID string) (*Run, error)
	LatestRun(ctx context.Context) (*Run, error)
	Invocations(ctx context.Context, runID string) ([]*Invocation, error)
	IncludeProbes(ctx context.Context, runID string) ([]*IncludeProbe, error)

	Close() error
}

type Run struct {
	ID         string
	Mode       string
	Root       string
	OutputDir  string
	Groups     []string
	Symbols    []string
	StartedAt  time.Time
	FinishedAt time.Time // zero while running
}

// Invocation outcomes.
const (
	OutcomeProduced = "produced" // exit 0 with at least one artifact
	OutcomeEmpty    = "empty"    // exit 0, nothing written
	OutcomeFailed   = "failed"   // non-zero exit or timeout
	OutcomeError    = "error"    // could not start, or artifacts could not be merged
	OutcomeSkipped  = "skipped"  // symbol never referenced by the group's sources
)

type Invocation struct {
	RunID     string
	Item      int
	Group     string
	Symbol    string // empty in batch mode
	Outcome   string
	ExitCode  int
	Artifacts []string
	Duration  time.Duration
	Argv      []string
	Stderr    string
	Err       string
}

type IncludeProbe struct {
	RunID    string
	Group    string
	Strategy string
	Pairs    int
}
