// Package pipeline assembles a driver run from a loaded configuration.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"argstates/internal/analysis"
	"argstates/internal/changeset"
	"argstates/internal/compdb"
	"argstates/internal/config"
	"argstates/internal/driver"
	"argstates/internal/group"
	"argstates/internal/outdir"
	"argstates/internal/runner"
	"argstates/internal/storage"
	"argstates/internal/sysinclude"
	"argstates/internal/telemetry"
)

type Pipeline struct {
	Config *config.Config
	Logger *slog.Logger
	Out    io.Writer // progress lines
}

func New(cfg *config.Config, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{Config: cfg, Logger: logger, Out: os.Stdout}
}

// Targets resolves args, or the configured targets when args is empty,
// against the project root. Empty means every group.
func (p *Pipeline) Targets(args []string) []string {
	raw := args
	if len(raw) == 0 {
		raw = p.Config.Project.Targets
	}
	out := make([]string, 0, len(raw))
	for _, t := range raw {
		out = append(out, p.Config.TargetDir(t))
	}
	return out
}

// Run executes the full driver run and prints a summary. With a ledger
// configured the run is audited right after.
func (p *Pipeline) Run(ctx context.Context, targets []string) (*driver.Report, error) {
	if err := p.Config.Validate(); err != nil {
		return nil, err
	}

	shutdown, err := telemetry.Init(ctx, telemetry.Config{
		Metrics:  p.Config.Telemetry.Metrics,
		Traces:   p.Config.Telemetry.Traces,
		Textfile: p.Config.Telemetry.Textfile,
	})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			p.Logger.Warn("telemetry shutdown", "err", err)
		}
	}()

	index, err := p.loadIndexStage()
	if err != nil {
		return nil, err
	}
	symbols, err := p.changeSetStage()
	if err != nil {
		return nil, err
	}

	ledger, err := p.openLedgerStage()
	if err != nil {
		return nil, err
	}
	if ledger != nil {
		defer ledger.Close()
	}

	d, err := p.driverStage(index, ledger)
	if err != nil {
		return nil, err
	}

	fmt.Fprintf(p.Out, "🚀 Running %s mode over %d symbol(s) with %d worker(s)...\n", p.Config.Mode, len(symbols), p.Config.Workers)
	start := time.Now()
	report, err := d.Run(ctx, targets, symbols)
	if err != nil {
		return report, err
	}

	p.summaryStage(report, time.Since(start))
	if ledger != nil {
		p.auditStage(ctx, ledger, report.RunID)
	}
	return report, nil
}

// Plan builds every invocation without running any.
func (p *Pipeline) Plan(ctx context.Context, targets []string) (*driver.Plan, error) {
	if err := p.Config.Validate(); err != nil {
		return nil, err
	}
	index, err := p.loadIndexStage()
	if err != nil {
		return nil, err
	}
	symbols, err := p.changeSetStage()
	if err != nil {
		return nil, err
	}
	d, err := p.driverStage(index, nil)
	if err != nil {
		return nil, err
	}
	return d.Plan(ctx, targets, symbols)
}

// Groups loads the database and returns its directory groups.
func (p *Pipeline) Groups() (map[string]*group.DirectoryGroup, error) {
	index, err := p.loadIndexStage()
	if err != nil {
		return nil, err
	}
	return group.Group(index.Records(), group.ByDirectory), nil
}

// Includes probes the system include directories of one group.
func (p *Pipeline) Includes(ctx context.Context, target string) ([]sysinclude.IncludePair, error) {
	groups, err := p.Groups()
	if err != nil {
		return nil, err
	}
	g, ok := groups[target]
	if !ok {
		return nil, &driver.UnknownDirectoryGroupError{Target: target, Known: len(groups)}
	}
	resolver, err := sysinclude.NewClangDriverResolver(p.Config.Compiler.Path, p.Logger)
	if err != nil {
		return nil, err
	}
	return resolver.ResolveSystemIncludes(ctx, g.Sample(), g.Dir)
}

// Clean prepares and empties the output directory.
func (p *Pipeline) Clean() error {
	if err := outdir.Prepare(p.Config.OutputDir); err != nil {
		return err
	}
	return outdir.Clear(p.Config.OutputDir)
}

// Audit reports on a recorded run; empty runID means the latest.
func (p *Pipeline) Audit(ctx context.Context, runID string) (*analysis.AuditReport, error) {
	if p.Config.Ledger == "" {
		return nil, errors.New("no ledger configured")
	}
	store, err := storage.NewSQLiteStore(p.Config.Ledger)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	defer store.Close()
	return analysis.NewAnalyzer(store).Audit(ctx, runID)
}

func (p *Pipeline) loadIndexStage() (*compdb.Index, error) {
	index, err := compdb.Load(p.Config.DatabasePath())
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(p.Out, "📂 Loaded %d compile commands from %s\n", index.Len(), index.Path)
	return index, nil
}

// changeSetStage reads the symbols. Batch mode hands the names file to the
// plugin as is, but it is still read so the run records what it covered.
func (p *Pipeline) changeSetStage() ([]string, error) {
	path := p.Config.ChangeSet
	if p.Config.Mode == config.ModeBatch {
		path = p.Config.BatchNamesFile()
	}
	symbols, err := changeset.Read(path)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(p.Out, "📝 Change set: %d symbol(s)\n", len(symbols))
	return symbols, nil
}

func (p *Pipeline) openLedgerStage() (storage.Ledger, error) {
	if p.Config.Ledger == "" {
		return nil, nil
	}
	store, err := storage.NewSQLiteStore(p.Config.Ledger)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	return store, nil
}

func (p *Pipeline) driverStage(index *compdb.Index, ledger storage.Ledger) (*driver.Driver, error) {
	resolver, err := sysinclude.NewClangDriverResolver(p.Config.Compiler.Path, p.Logger)
	if err != nil {
		return nil, err
	}
	return driver.New(driver.OptionsFromConfig(p.Config), index, driver.Deps{
		Resolver: resolver,
		Executor: runner.New(p.Config.Timeout),
		Ledger:   ledger,
		Logger:   p.Logger,
	})
}

func (p *Pipeline) summaryStage(report *driver.Report, elapsed time.Duration) {
	fmt.Fprintf(p.Out, "✅ %d invocation(s) in %v: %d produced, %d empty, %d failed, %d error, %d skipped\n",
		report.Invocations(), elapsed.Round(time.Millisecond),
		report.Count(storage.OutcomeProduced),
		report.Count(storage.OutcomeEmpty),
		report.Count(storage.OutcomeFailed),
		report.Count(storage.OutcomeError),
		report.Count(storage.OutcomeSkipped))
	for _, dir := range report.EmptyIncludes {
		fmt.Fprintf(p.Out, "⚠️  No system includes resolved for %s\n", dir)
	}
}

func (p *Pipeline) auditStage(ctx context.Context, ledger storage.Ledger, runID string) {
	report, err := analysis.NewAnalyzer(ledger).Audit(ctx, runID)
	if err != nil {
		p.Logger.Warn("audit failed", "run", runID, "err", err)
		return
	}
	PrintAudit(p.Out, report)
}

// PrintAudit writes an audit report in the CLI's format.
func PrintAudit(w io.Writer, r *analysis.AuditReport) {
	fmt.Fprintf(w, "🔍 Audit of run %s (%s mode)\n", r.Run.ID, r.Run.Mode)
	fmt.Fprintf(w, "  -> %d symbol(s) without an artifact\n", len(r.NoArtifact))
	for _, sym := range r.NoArtifact {
		fmt.Fprintf(w, "     - %s\n", sym)
	}
	fmt.Fprintf(w, "  -> %d failed invocation(s)\n", len(r.Failures))
	for _, inv := range r.Failures {
		label := inv.Symbol
		if label == "" {
			label = "(batch)"
		}
		fmt.Fprintf(w, "     - %s in %s: %s exit=%d %s\n", label, inv.Group, inv.Outcome, inv.ExitCode, inv.Err)
	}
	if len(r.Skipped) > 0 {
		fmt.Fprintf(w, "  -> %d symbol invocation(s) skipped by the prefilter\n", len(r.Skipped))
	}
	for _, g := range r.EmptyIncludeGroups {
		fmt.Fprintf(w, "  -> ⚠️  %s resolved no system includes\n", g)
	}
}
