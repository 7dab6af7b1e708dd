package driver

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"argstates/internal/config"
	"argstates/internal/outdir"
	"argstates/internal/runner"
	"argstates/internal/storage"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// scratchDir holds the private per-invocation output directories.
const scratchDir = ".work"

// Result is the outcome of one work item.
type Result struct {
	Item      *WorkItem
	Outcome   string // one of the storage.Outcome* values
	ExitCode  int
	TimedOut  bool
	Duration  time.Duration
	Artifacts []string
	Err       error
}

type Report struct {
	RunID    string
	Mode     string
	Started  time.Time
	Finished time.Time
	Plan     *Plan
	Results  []*Result
	// EmptyIncludes lists groups whose include probe found nothing.
	EmptyIncludes []string
}

// Count returns how many results ended with outcome.
func (r *Report) Count(outcome string) int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome == outcome {
			n++
		}
	}
	return n
}

// Invocations is the number of child processes actually started.
func (r *Report) Invocations() int {
	return len(r.Results) - r.Count(storage.OutcomeSkipped)
}

// Run plans, clears the output directory once and executes every item.
// Only fatal conditions return an error; a failing child is recorded in the
// report and the run goes on.
func (d *Driver) Run(ctx context.Context, targets, symbols []string) (*Report, error) {
	plan, err := d.Plan(ctx, targets, symbols)
	if err != nil {
		return nil, err
	}

	if err := outdir.Prepare(d.opts.OutputDir); err != nil {
		return nil, err
	}
	if err := outdir.Clear(d.opts.OutputDir); err != nil {
		return nil, fmt.Errorf("clearing output directory: %w", err)
	}

	report := &Report{
		RunID:   uuid.NewString(),
		Mode:    d.opts.Mode,
		Started: time.Now(),
		Plan:    plan,
		Results: make([]*Result, len(plan.Items)),
	}
	for _, gp := range plan.Groups {
		if len(gp.Includes) == 0 {
			report.EmptyIncludes = append(report.EmptyIncludes, gp.Dir)
		}
	}
	d.beginRun(ctx, report)

	d.logger.Info("starting run", "run", report.RunID, "mode", d.opts.Mode,
		"groups", len(plan.Groups), "items", len(plan.Items), "workers", d.opts.Workers)

	if d.opts.Workers <= 1 {
		err = d.runSequential(ctx, report)
	} else {
		err = d.runPool(ctx, report)
	}
	if err != nil {
		return report, err
	}

	_ = os.Remove(filepath.Join(d.opts.OutputDir, scratchDir))
	report.Finished = time.Now()
	if d.ledger != nil {
		if err := d.ledger.FinishRun(ctx, report.RunID, report.Finished); err != nil {
			d.logger.Warn("ledger: finishing run", "run", report.RunID, "err", err)
		}
	}
	return report, nil
}

func (d *Driver) runSequential(ctx context.Context, report *Report) error {
	for i, item := range report.Plan.Items {
		res, err := d.execute(ctx, report.RunID, item, nil)
		if err != nil {
			return err
		}
		report.Results[i] = res
	}
	return nil
}

// runPool spreads items over a bounded set of workers. Each item writes to
// its own scratch directory, and its diagnostics are buffered and flushed
// whole so parallel output never interleaves.
func (d *Driver) runPool(ctx context.Context, report *Report) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.opts.Workers)

	for i, item := range report.Plan.Items {
		i, item := i, item
		g.Go(func() error {
			var buf bytes.Buffer
			res, err := d.execute(gctx, report.RunID, item, &buf)
			d.flushStderr(buf.Bytes())
			if err != nil {
				return err
			}
			report.Results[i] = res
			return nil
		})
	}
	return g.Wait()
}

func (d *Driver) flushStderr(p []byte) {
	if len(p) == 0 {
		return
	}
	d.stderrMu.Lock()
	defer d.stderrMu.Unlock()
	_, _ = d.stderr.Write(p)
}

// execute runs one item. The returned error is only set when the run itself
// has been cancelled.
func (d *Driver) execute(ctx context.Context, runID string, item *WorkItem, stderr io.Writer) (*Result, error) {
	res := &Result{Item: item}
	if item.Skip {
		res.Outcome = storage.OutcomeSkipped
		d.logger.Info("skipping symbol with no reference in group", "item", item.ID, "group", item.Group, "symbol", item.Symbol)
		d.finish(ctx, runID, res, "")
		return res, nil
	}

	ctx, span := d.tracer.Start(ctx, "argstates.invoke", trace.WithAttributes(
		attribute.String("group", item.Group),
		attribute.String("symbol", item.Symbol),
		attribute.Int("item", item.ID),
	))
	defer span.End()

	private := filepath.Join(d.opts.OutputDir, scratchDir, fmt.Sprintf("%05d", item.ID))
	if err := outdir.Prepare(private); err != nil {
		res.Outcome, res.Err = storage.OutcomeError, err
		d.finish(ctx, runID, res, "")
		return res, nil
	}

	out, err := d.exec.Run(ctx, runner.Command{
		Argv:   item.Argv,
		Dir:    item.Dir,
		Env:    map[string]string{config.OutputDirEnv: private},
		Stderr: stderr,
	})
	if err != nil {
		if ctx.Err() != nil {
			span.SetStatus(codes.Error, "cancelled")
			return nil, fmt.Errorf("run cancelled at item %d: %w", item.ID, ctx.Err())
		}
		res.Outcome, res.Err = storage.OutcomeError, err
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		_ = os.RemoveAll(private)
		d.finish(ctx, runID, res, "")
		return res, nil
	}

	res.ExitCode = out.ExitCode
	res.TimedOut = out.TimedOut
	res.Duration = out.Duration

	// Keep whatever a failing plugin managed to write.
	d.mergeMu.Lock()
	res.Artifacts, err = outdir.Merge(private, d.opts.OutputDir)
	d.mergeMu.Unlock()

	switch {
	case err != nil:
		res.Outcome, res.Err = storage.OutcomeError, err
	case out.TimedOut || out.ExitCode != 0:
		res.Outcome = storage.OutcomeFailed
	case len(res.Artifacts) == 0:
		res.Outcome = storage.OutcomeEmpty
	default:
		res.Outcome = storage.OutcomeProduced
	}
	if res.Outcome == storage.OutcomeFailed || res.Outcome == storage.OutcomeError {
		span.SetStatus(codes.Error, res.Outcome)
	}
	span.SetAttributes(attribute.Int("exit_code", res.ExitCode), attribute.Int("artifacts", len(res.Artifacts)))

	d.inst.Duration.Record(ctx, res.Duration.Seconds())
	d.finish(ctx, runID, res, string(out.Stderr))
	return res, nil
}

// finish logs, counts and records a result.
func (d *Driver) finish(ctx context.Context, runID string, res *Result, stderrTail string) {
	item := res.Item
	d.inst.Invocations.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", res.Outcome)))

	attrs := []any{"item", item.ID, "group", item.Group, "outcome", res.Outcome,
		"exit_code", res.ExitCode, "artifacts", len(res.Artifacts), "duration", res.Duration}
	if item.Symbol != "" {
		attrs = append(attrs, "symbol", item.Symbol)
	}
	switch res.Outcome {
	case storage.OutcomeFailed, storage.OutcomeError:
		if res.Err != nil {
			attrs = append(attrs, "err", res.Err)
		}
		if res.TimedOut {
			attrs = append(attrs, "timed_out", true)
		}
		d.logger.Warn("invocation did not complete cleanly", attrs...)
	case storage.OutcomeSkipped:
	default:
		d.logger.Info("invocation finished", attrs...)
	}

	if d.ledger == nil {
		return
	}
	inv := &storage.Invocation{
		RunID:     runID,
		Item:      item.ID,
		Group:     item.Group,
		Symbol:    item.Symbol,
		Outcome:   res.Outcome,
		ExitCode:  res.ExitCode,
		Artifacts: res.Artifacts,
		Duration:  res.Duration,
		Argv:      item.Argv,
		Stderr:    stderrTail,
	}
	if res.Err != nil {
		inv.Err = res.Err.Error()
	}
	if err := d.ledger.RecordInvocation(context.WithoutCancel(ctx), inv); err != nil {
		d.logger.Warn("ledger: recording invocation", "item", item.ID, "err", err)
	}
}

func (d *Driver) beginRun(ctx context.Context, report *Report) {
	if d.ledger == nil {
		return
	}
	run := &storage.Run{
		ID:        report.RunID,
		Mode:      report.Mode,
		Root:      d.opts.Root,
		OutputDir: d.opts.OutputDir,
		Symbols:   report.Plan.Symbols,
		StartedAt: report.Started,
	}
	for _, gp := range report.Plan.Groups {
		run.Groups = append(run.Groups, gp.Dir)
	}
	if err := d.ledger.BeginRun(ctx, run); err != nil {
		d.logger.Warn("ledger: beginning run", "run", run.ID, "err", err)
		return
	}
	for _, gp := range report.Plan.Groups {
		probe := &storage.IncludeProbe{RunID: run.ID, Group: gp.Dir, Strategy: gp.Strategy, Pairs: len(gp.Includes)}
		if err := d.ledger.RecordIncludes(ctx, probe); err != nil {
			d.logger.Warn("ledger: recording include probe", "group", gp.Dir, "err", err)
		}
	}
}
