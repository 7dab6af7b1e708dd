// Package driver turns a compilation database and a change set into plugin
// invocations and runs them.
package driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"argstates/internal/compdb"
	"argstates/internal/config"
	"argstates/internal/crawler"
	"argstates/internal/extractor"
	"argstates/internal/flags"
	"argstates/internal/group"
	"argstates/internal/index"
	"argstates/internal/invocation"
	"argstates/internal/runner"
	"argstates/internal/storage"
	"argstates/internal/sysinclude"
	"argstates/internal/telemetry"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Executor runs one child process. *runner.Runner is the production one.
type Executor interface {
	Run(ctx context.Context, c runner.Command) (*runner.Result, error)
}

// Options is the per-run configuration, fixed at construction.
type Options struct {
	Mode            string // config.ModeSymbol or config.ModeBatch
	Root            string // recorded in the ledger only
	Executable      string
	PluginPath      string
	PluginName      string
	FallbackInclude string
	NamesFile       string // batch mode
	Suffix          string // batch mode
	OutputDir       string
	Workers         int
	Prefilter       bool // per-symbol mode only
}

// OptionsFromConfig copies the run settings out of a loaded config.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Mode:            cfg.Mode,
		Root:            cfg.Project.Root,
		Executable:      cfg.Compiler.Path,
		PluginPath:      cfg.Plugin.Path,
		PluginName:      cfg.Plugin.Name,
		FallbackInclude: cfg.Compiler.FallbackInclude,
		NamesFile:       cfg.BatchNamesFile(),
		Suffix:          cfg.Suffix,
		OutputDir:       cfg.OutputDir,
		Workers:         cfg.Workers,
		Prefilter:       cfg.Prefilter,
	}
}

// Deps are the collaborators a Driver calls. Only Resolver is required.
type Deps struct {
	Resolver sysinclude.Resolver
	Filter   *flags.Filter    // nil means the default rule table
	Executor Executor         // nil means runner.New(0)
	Ledger   storage.Ledger   // nil disables recording
	Indexer  *index.Indexer   // nil builds a C indexer when Prefilter is set
	Logger   *slog.Logger
	Meter    metric.Meter
	Tracer   trace.Tracer
	// Stderr receives each invocation's diagnostics when workers > 1,
	// flushed whole per invocation.
	Stderr io.Writer
}

type Driver struct {
	opts   Options
	groups map[string]*group.DirectoryGroup

	resolver sysinclude.Resolver
	filter   *flags.Filter
	exec     Executor
	ledger   storage.Ledger
	indexer  *index.Indexer
	logger   *slog.Logger
	inst     *telemetry.Instruments
	tracer   trace.Tracer

	stderrMu sync.Mutex
	stderr   io.Writer
	mergeMu  sync.Mutex
}

// New groups the index by declared directory and validates opts.
func New(opts Options, db *compdb.Index, deps Deps) (*Driver, error) {
	if db == nil {
		return nil, errors.New("driver: nil compilation database")
	}
	if deps.Resolver == nil {
		return nil, errors.New("driver: a system include resolver is required")
	}
	switch opts.Mode {
	case config.ModeSymbol, config.ModeBatch:
	default:
		return nil, fmt.Errorf("driver: unknown mode %q", opts.Mode)
	}
	if opts.OutputDir == "" {
		return nil, errors.New("driver: output directory is required")
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}

	var err error
	if opts.OutputDir, err = filepath.Abs(opts.OutputDir); err != nil {
		return nil, err
	}
	// The child runs in the group directory, so the plugin must get an
	// absolute names file.
	if opts.Mode == config.ModeBatch && opts.NamesFile != "" {
		if opts.NamesFile, err = filepath.Abs(opts.NamesFile); err != nil {
			return nil, err
		}
	}

	d := &Driver{
		opts:     opts,
		groups:   group.Group(db.Records(), group.ByDirectory),
		resolver: deps.Resolver,
		filter:   deps.Filter,
		exec:     deps.Executor,
		ledger:   deps.Ledger,
		indexer:  deps.Indexer,
		logger:   deps.Logger,
		tracer:   deps.Tracer,
		stderr:   deps.Stderr,
	}
	if d.filter == nil {
		d.filter = flags.NewFilter(nil)
	}
	if d.exec == nil {
		d.exec = runner.New(0)
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	if d.tracer == nil {
		d.tracer = otel.Tracer("argstates/driver")
	}
	if d.stderr == nil {
		d.stderr = os.Stderr
	}
	if opts.Prefilter && d.indexer == nil {
		ext, err := extractor.NewExtractor("c")
		if err != nil {
			return nil, err
		}
		d.indexer = index.NewIndexer(crawler.NewCrawler(ext, d.logger))
	}
	if d.inst, err = telemetry.NewInstruments(deps.Meter); err != nil {
		return nil, fmt.Errorf("driver: registering metrics: %w", err)
	}
	return d, nil
}

// Groups returns the directory groups of the database.
func (d *Driver) Groups() map[string]*group.DirectoryGroup {
	return d.groups
}

// WorkItem is one planned compiler invocation.
type WorkItem struct {
	ID     int
	Group  string
	Symbol string // empty in batch mode
	Dir    string
	Argv   []string
	Skip   bool // prefilter found no reference to Symbol
}

// GroupPlan is what was prepared once for a targeted group.
type GroupPlan struct {
	Dir      string
	Files    []string
	Includes []sysinclude.IncludePair
	Flags    []string // filtered union
	Strategy string
}

type Plan struct {
	Mode    string
	Symbols []string
	Groups  []*GroupPlan
	Items   []*WorkItem
}

// Plan resolves targets, prepares each group once and builds every
// invocation without running anything. An unknown target fails the whole
// plan. No targets means every group.
func (d *Driver) Plan(ctx context.Context, targets, symbols []string) (*Plan, error) {
	selected, err := d.selectGroups(targets)
	if err != nil {
		return nil, err
	}
	if d.opts.Mode == config.ModeSymbol && len(symbols) == 0 {
		d.logger.Warn("change set is empty; nothing to invoke")
	}

	plan := &Plan{Mode: d.opts.Mode, Symbols: symbols}
	for _, g := range selected {
		units := d.filter.FilterUnits(g.Flags)
		gp, err := d.prepare(ctx, g, units)
		if err != nil {
			return nil, err
		}
		plan.Groups = append(plan.Groups, gp)

		base := invocation.Spec{
			Executable:      d.opts.Executable,
			PluginPath:      d.opts.PluginPath,
			PluginName:      d.opts.PluginName,
			SystemIncludes:  gp.Includes,
			Inputs:          g.Files,
			FallbackInclude: d.opts.FallbackInclude,
			Flags:           units,
		}

		if d.opts.Mode == config.ModeBatch {
			spec := base
			spec.Params = invocation.BatchParams(d.opts.NamesFile, d.opts.Suffix)
			if err := d.addItem(plan, spec, g, "", false); err != nil {
				return nil, err
			}
			continue
		}

		var referenced *index.References
		if d.opts.Prefilter {
			referenced = d.referencedNames(g)
		}
		for _, sym := range symbols {
			spec := base
			spec.Params = invocation.SymbolParams(sym)
			skip := referenced != nil && !referenced.Has(sym)
			if err := d.addItem(plan, spec, g, sym, skip); err != nil {
				return nil, err
			}
		}
	}
	return plan, nil
}

func (d *Driver) addItem(plan *Plan, spec invocation.Spec, g *group.DirectoryGroup, sym string, skip bool) error {
	argv, err := invocation.Build(spec)
	if err != nil {
		return fmt.Errorf("building invocation for %s: %w", g.Dir, err)
	}
	plan.Items = append(plan.Items, &WorkItem{
		ID:     len(plan.Items),
		Group:  g.Dir,
		Symbol: sym,
		Dir:    g.Dir,
		Argv:   argv,
		Skip:   skip,
	})
	return nil
}

func (d *Driver) selectGroups(targets []string) ([]*group.DirectoryGroup, error) {
	if len(targets) == 0 {
		out := make([]*group.DirectoryGroup, 0, len(d.groups))
		for _, k := range group.Keys(d.groups) {
			out = append(out, d.groups[k])
		}
		return out, nil
	}

	seen := make(map[string]bool, len(targets))
	var out []*group.DirectoryGroup
	for _, t := range targets {
		key := filepath.Clean(t)
		g, ok := d.groups[key]
		if !ok {
			return nil, &UnknownDirectoryGroupError{Target: t, Known: len(d.groups)}
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, g)
	}
	return out, nil
}

// prepare resolves the group's system includes from its sample file. The
// result is assumed to hold for every file in the group.
func (d *Driver) prepare(ctx context.Context, g *group.DirectoryGroup, units []flags.Unit) (*GroupPlan, error) {
	includes, err := d.resolver.ResolveSystemIncludes(ctx, g.Sample(), g.Dir)
	if err != nil {
		return nil, fmt.Errorf("resolving system includes for %s: %w", g.Dir, err)
	}
	if len(includes) == 0 {
		d.logger.Warn("no system include directories resolved; invocations will likely miss standard headers",
			"group", g.Dir, "sample", g.Sample(), "strategy", d.resolver.Strategy())
		d.inst.EmptyIncludes.Add(ctx, 1)
	}

	return &GroupPlan{
		Dir:      g.Dir,
		Files:    g.Files,
		Includes: includes,
		Flags:    flags.Flatten(units),
		Strategy: d.resolver.Strategy(),
	}, nil
}

// referencedNames indexes the group's sources. A failed scan returns nil,
// which skips nothing.
func (d *Driver) referencedNames(g *group.DirectoryGroup) *index.References {
	refs, err := d.indexer.Build(g.Dir, g.Files)
	if err != nil {
		d.logger.Warn("prefilter scan failed; not skipping any symbol", "group", g.Dir, "err", err)
		return nil
	}
	return refs
}
