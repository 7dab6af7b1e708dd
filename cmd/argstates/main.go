package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"argstates/internal/config"
	"argstates/internal/group"
	"argstates/internal/pipeline"

	"github.com/spf13/cobra"
)

var (
	rootCmd = &cobra.Command{
		Use:   "argstates",
		Short: "Run the ArgStates compiler plugin over a project's change set",
	}
	configPath string
	logLevel   string
	logFormat  string

	mode    string
	workers int
	all     bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to the YAML configuration")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format (text, json)")

	for _, cmd := range []*cobra.Command{runCmd, planCmd} {
		cmd.Flags().StringVar(&mode, "mode", "", "Drive mode: symbol or batch (overrides config)")
		cmd.Flags().BoolVar(&all, "all", false, "Target every directory group of the database")
	}
	runCmd.Flags().IntVarP(&workers, "workers", "w", 0, "Parallel invocations (overrides config)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(groupsCmd)
	rootCmd.AddCommand(includesCmd)
	rootCmd.AddCommand(cleanCmd)
	rootCmd.AddCommand(auditCmd)
}

// setup loads the configuration, applies flag overrides and builds the
// pipeline.
func setup() *pipeline.Pipeline {
	logger, err := newLogger(logLevel, logFormat)
	if err != nil {
		log.Fatalf("Invalid logging flags: %v", err)
	}
	slog.SetDefault(logger)

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if mode != "" {
		cfg.Mode = mode
	}
	if workers > 0 {
		cfg.Workers = workers
	}
	return pipeline.New(cfg, logger)
}

func newLogger(level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "text":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

// targets turns positional args into group keys. Without args the
// configured targets apply; --all (or no configured targets) means every
// group.
func targets(p *pipeline.Pipeline, args []string) []string {
	if all {
		return nil
	}
	t := p.Targets(args)
	if len(t) == 0 {
		fmt.Println("🧭 No targets given. Running over every directory group.")
	}
	return t
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

var runCmd = &cobra.Command{
	Use:   "run [targets...]",
	Short: "Invoke the plugin for every targeted group and change-set symbol",
	Run: func(cmd *cobra.Command, args []string) {
		p := setup()
		ctx, cancel := signalContext()
		defer cancel()

		report, err := p.Run(ctx, targets(p, args))
		if err != nil {
			log.Fatalf("Run failed: %v", err)
		}
		fmt.Printf("🎉 Run %s complete! Artifacts: %s\n", report.RunID, p.Config.OutputDir)
	},
}

var planCmd = &cobra.Command{
	Use:   "plan [targets...]",
	Short: "Print the invocations a run would execute, without running them",
	Run: func(cmd *cobra.Command, args []string) {
		p := setup()
		plan, err := p.Plan(context.Background(), targets(p, args))
		if err != nil {
			log.Fatalf("Plan failed: %v", err)
		}

		for _, g := range plan.Groups {
			fmt.Printf("📁 %s (%d files, %d system includes via %s)\n", g.Dir, len(g.Files), len(g.Includes), g.Strategy)
		}
		for _, item := range plan.Items {
			prefix := "▶️ "
			if item.Skip {
				prefix = "⏭️ "
			}
			fmt.Printf("%s[%d] cd %s && %s\n", prefix, item.ID, item.Dir, strings.Join(item.Argv, " "))
		}
		fmt.Printf("✅ %d invocation(s) planned.\n", len(plan.Items))
	},
}

var groupsCmd = &cobra.Command{
	Use:   "groups",
	Short: "List the directory groups of the compilation database",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		p := setup()
		groups, err := p.Groups()
		if err != nil {
			log.Fatalf("Failed to load database: %v", err)
		}
		for _, k := range group.Keys(groups) {
			g := groups[k]
			fmt.Printf("📁 %s\n", g.Dir)
			fmt.Printf("  -> %d file(s), %d flag unit(s), compiler %q\n", len(g.Files), len(g.Flags), g.Compiler)
		}
	},
}

var includesCmd = &cobra.Command{
	Use:   "includes <target>",
	Short: "Show the system include directories resolved for a group",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		p := setup()
		pairs, err := p.Includes(context.Background(), p.Targets(args)[0])
		if err != nil {
			log.Fatalf("Include resolution failed: %v", err)
		}
		if len(pairs) == 0 {
			fmt.Println("⚠️  No system include directories found.")
			return
		}
		for _, pair := range pairs {
			fmt.Printf("%s %s\n", pair.Flag, pair.Path)
		}
	},
}

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Create the output directory if needed and remove every artifact in it",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		p := setup()
		if err := p.Clean(); err != nil {
			log.Fatalf("Clean failed: %v", err)
		}
		fmt.Printf("🧹 Cleared %s\n", p.Config.OutputDir)
	},
}

var auditCmd = &cobra.Command{
	Use:   "audit [run-id]",
	Short: "Report which symbols of a recorded run produced no artifact",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		p := setup()
		runID := ""
		if len(args) > 0 {
			runID = args[0]
		}
		report, err := p.Audit(context.Background(), runID)
		if err != nil {
			log.Fatalf("Audit failed: %v", err)
		}
		pipeline.PrintAudit(os.Stdout, report)
	},
}
