// Command add-electricity prepares a PyPSA network: it reads a base
// network from a CSV folder, runs the configured preparation stages
// and writes the augmented network back out.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"k8s.io/klog/v2"

	"github.com/cristobal-GC/pypsa-spain/pkg/pypsaspain"
	"github.com/cristobal-GC/pypsa-spain/pkg/pypsaspain/config"
	"github.com/cristobal-GC/pypsa-spain/pkg/pypsaspain/network"
)

func main() {
	var (
		configPath string
		networkIn  string
		networkOut string
		dataDir    string
		dryRun     bool
	)

	flag.StringVar(&configPath, "config", config.DefaultPath(), "Path to the YAML configuration")
	flag.StringVar(&networkIn, "network-in", "", "CSV folder of the base network")
	flag.StringVar(&networkOut, "network-out", "", "CSV folder the prepared network is written to")
	flag.StringVar(&dataDir, "data-dir", "", "Directory prepended to relative data paths from the configuration")
	flag.BoolVar(&dryRun, "dry-run", false, "Run every stage and print the summary without writing the network")
	klog.InitFlags(nil)
	flag.Parse()

	// Secrets referenced by the configuration may live in a .env file.
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		klog.ErrorS(err, "Failed to load configuration", "path", configPath)
		os.Exit(1)
	}
	if dataDir != "" {
		cfg.RebaseData(dataDir)
	}
	if networkIn == "" {
		klog.ErrorS(nil, "A base network is required; pass -network-in")
		os.Exit(1)
	}
	if !dryRun && networkOut == "" {
		klog.ErrorS(nil, "No destination; pass -network-out or -dry-run")
		os.Exit(1)
	}

	klog.InfoS("Starting network preparation",
		"run", cfg.Run.Name,
		"config", configPath,
		"networkIn", networkIn,
		"dryRun", dryRun)

	n, err := network.ImportCSVFolder(networkIn)
	if err != nil {
		klog.ErrorS(err, "Failed to import base network", "path", networkIn)
		os.Exit(1)
	}

	pipeline, err := pypsaspain.NewPipeline(cfg)
	if err != nil {
		klog.ErrorS(err, "Failed to build pipeline")
		os.Exit(1)
	}

	summary, err := pipeline.Prepare(n)
	if err != nil {
		klog.ErrorS(err, "Preparation failed", "run", cfg.Run.Name)
		os.Exit(1)
	}

	printSummary(summary)

	if dryRun {
		klog.InfoS("Dry run, network not written", "run", summary.Run)
		return
	}

	if err := n.ExportCSVFolder(networkOut); err != nil {
		klog.ErrorS(err, "Failed to export prepared network", "path", networkOut)
		os.Exit(1)
	}
	klog.InfoS("Wrote prepared network", "path", networkOut, "run", summary.Run)
}

func printSummary(s *pypsaspain.Summary) {
	fmt.Printf("run:        %s\n", s.Run)
	fmt.Printf("stages:     %s\n", strings.Join(s.Stages, ", "))
	fmt.Printf("snapshots:  %d (%.4f years)\n", s.Snapshots, s.Nyears)
	fmt.Printf("buses:      %d\n", s.Buses)
	fmt.Printf("lines:      %d\n", s.Lines)
	fmt.Printf("links:      %d\n", s.Links)
	fmt.Printf("generators: %d\n", s.Generators)
	fmt.Printf("loads:      %d\n", s.Loads)
	fmt.Printf("carriers:   %d\n", s.Carriers)
}
