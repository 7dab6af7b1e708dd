package main

import (
	"context"
	"fmt"
	"log"

	"argstates/internal/config"
	"argstates/internal/pipeline"
)

func main() {
	cfg, err := config.LoadConfig("config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	p := pipeline.New(cfg, nil)
	fmt.Printf("🚀 Driving %s over %s...\n", cfg.Plugin.Name, cfg.Project.Root)
	report, err := p.Run(context.Background(), p.Targets(nil))
	if err != nil {
		log.Fatalf("Run failed: %v", err)
	}

	fmt.Printf("✨ Process complete! %d invocation(s); artifacts in %s\n", report.Invocations(), cfg.OutputDir)
}
