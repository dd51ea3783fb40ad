package network

import (
	"fmt"
	"time"

	"k8s.io/klog/v2"

	"github.com/cristobal-GC/pypsa-spain/pkg/pypsaspain/config"
)

// BuildSnapshots installs the model horizon on the network: hourly
// timestamps from start (inclusive) to end (exclusive), stepped and
// weighted by the configured resolution. Any snapshot index already
// installed is replaced.
func (n *Network) BuildSnapshots(cfg config.SnapshotsConfig) error {
	start, err := parseSnapshotTime(cfg.Start)
	if err != nil {
		return fmt.Errorf("snapshots start: %v", err)
	}
	end, err := parseSnapshotTime(cfg.End)
	if err != nil {
		return fmt.Errorf("snapshots end: %v", err)
	}
	if !end.After(start) {
		return fmt.Errorf("snapshots end %s must be after start %s", cfg.End, cfg.Start)
	}

	resolution := cfg.Resolution
	if resolution <= 0 {
		resolution = 1
	}
	step := time.Duration(resolution) * time.Hour

	var (
		ts []time.Time
		ws []float64
	)
	for t := start; t.Before(end); t = t.Add(step) {
		ts = append(ts, t)
		ws = append(ws, float64(resolution))
	}

	if err := n.SetSnapshots(ts, ws); err != nil {
		return err
	}

	klog.V(2).InfoS("Built snapshot index",
		"start", cfg.Start,
		"end", cfg.End,
		"resolutionHours", resolution,
		"snapshots", len(ts),
		"nyears", n.Nyears())

	return nil
}
