// Command validate-inputs checks a scenario configuration against a
// base network without writing anything: every preparation stage runs
// on a scratch copy and all failures are reported at once.
package main

import (
	"flag"
	"fmt"
	"os"

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
		dataDir    string
	)

	flag.StringVar(&configPath, "config", config.DefaultPath(), "Path to the YAML configuration")
	flag.StringVar(&networkIn, "network-in", "", "CSV folder of the base network")
	flag.StringVar(&dataDir, "data-dir", "", "Directory prepended to relative data paths from the configuration")
	klog.InitFlags(nil)
	flag.Parse()

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

	problems := pipeline.ValidateInputs(n)
	if len(problems) == 0 {
		fmt.Printf("%s validates against %s\n", configPath, networkIn)
		return
	}

	fmt.Fprintf(os.Stderr, "%d problem(s) found:\n", len(problems))
	for _, p := range problems {
		fmt.Fprintf(os.Stderr, "  - %v\n", p)
	}
	os.Exit(1)
}
