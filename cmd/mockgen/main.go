package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"workgraph/cmd/mockgen/engine"
)

func main() {
	scenario := flag.String("scenario", "mild", "Scenario to generate: mild, chaos")
	distribution := flag.String("distribution", "uniform", "Distribution to use: uniform, weibull")
	outDir := flag.String("out", "./.cache/snapshot", "Output snapshot directory")
	count := flag.Int("count", 200, "Number of issues to generate")
	seed := flag.Int64("seed", 1, "Random seed")
	flag.Parse()

	cfg := engine.GeneratorConfig{
		Scenario:     *scenario,
		Distribution: *distribution,
		Count:        *count,
		Seed:         *seed,
		Now:          time.Now().UTC(),
	}

	fmt.Printf("Generating scenario '%s' (Distribution: %s, Count: %d) to %s...\n", cfg.Scenario, cfg.Distribution, cfg.Count, *outDir)

	data := engine.Generate(cfg)

	if err := engine.Save(*outDir, data); err != nil {
		fmt.Printf("Failed to save mock data: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Done: %s.\n", engine.Summary(data))
}
