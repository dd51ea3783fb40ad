// Command retrieve-esios pulls electricity market indicators from the
// ESIOS API into the local archive and optionally exports them as the
// price CSV consumed by the network preparation. It runs once or as a
// daemon with a metrics endpoint.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"k8s.io/klog/v2"

	"github.com/cristobal-GC/pypsa-spain/pkg/pypsaspain/config"
	"github.com/cristobal-GC/pypsa-spain/pkg/pypsaspain/esios"
	"github.com/cristobal-GC/pypsa-spain/pkg/pypsaspain/esios/archive"
	"github.com/cristobal-GC/pypsa-spain/pkg/pypsaspain/esios/cache"
	"github.com/cristobal-GC/pypsa-spain/pkg/pypsaspain/esios/metrics"
)

func main() {
	var (
		configPath    string
		indicator     int
		geoID         int
		startStr      string
		endStr        string
		once          bool
		interval      time.Duration
		listenAddr    string
		exportPath    string
		exportColumn  string
		retentionDays int
	)

	flag.StringVar(&configPath, "config", "", "Path to the YAML configuration (defaults and environment only when empty)")
	flag.IntVar(&indicator, "indicator", 0, "Indicator to retrieve (defaults to the configured price indicator)")
	flag.IntVar(&geoID, "geo", 0, "Geographic scope of the indicator (defaults to the configured geo)")
	flag.StringVar(&startStr, "start", "", "Start of the retrieval window, YYYY-MM-DD (defaults to yesterday)")
	flag.StringVar(&endStr, "end", "", "End of the retrieval window, YYYY-MM-DD, exclusive (defaults to start plus one day)")
	flag.BoolVar(&once, "once", false, "Retrieve one window and exit")
	flag.DurationVar(&interval, "interval", 6*time.Hour, "Time between retrievals in daemon mode")
	flag.StringVar(&listenAddr, "listen", ":9610", "The address the metrics endpoint binds to")
	flag.StringVar(&exportPath, "export", "", "Write the retrieved window as a price CSV to this path")
	flag.StringVar(&exportColumn, "export-column", "", "Column name of the exported CSV (defaults to the start year)")
	flag.IntVar(&retentionDays, "retention-days", 0, "Drop archived values older than this many days (0 keeps everything)")
	klog.InitFlags(nil)
	flag.Parse()

	// Secrets such as ESIOS_API_TOKEN may live in a local .env file.
	_ = godotenv.Load()

	cfg, err := loadConfig(configPath)
	if err != nil {
		klog.ErrorS(err, "Failed to load configuration")
		os.Exit(1)
	}
	if cfg.ESIOS.Token == "" {
		klog.ErrorS(nil, "ESIOS_API_TOKEN is not set; the API rejects unauthenticated requests")
		os.Exit(1)
	}
	if indicator == 0 {
		indicator = cfg.ESIOS.PriceIndicator
	}
	if geoID == 0 {
		geoID = cfg.ESIOS.GeoID
	}

	pinned := startStr != "" || endStr != ""
	start, end, err := window(startStr, endStr, time.Now().UTC())
	if err != nil {
		klog.ErrorS(err, "Invalid retrieval window")
		os.Exit(1)
	}

	store, err := archive.Open(cfg.ESIOS.DatabasePath)
	if err != nil {
		klog.ErrorS(err, "Failed to open archive", "path", cfg.ESIOS.DatabasePath)
		os.Exit(1)
	}
	defer store.Close()

	indicatorCache := cache.New(time.Duration(cfg.ESIOS.CacheTTL), time.Duration(cfg.ESIOS.MaxCacheAge))
	defer indicatorCache.Close()

	client := esios.NewClient(cfg.ESIOS, esios.WithCache(indicatorCache))
	defer client.Close()

	klog.InfoS("Starting ESIOS retriever",
		"indicator", indicator,
		"geo", geoID,
		"baseURL", client.BaseURL(),
		"archive", cfg.ESIOS.DatabasePath,
		"once", once,
		"listenAddr", listenAddr)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	server := &http.Server{Addr: listenAddr, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			klog.ErrorS(err, "Failed to start metrics server")
			os.Exit(1)
		}
	}()

	r := &retriever{
		client:        client,
		store:         store,
		cache:         indicatorCache,
		indicator:     indicator,
		geoID:         geoID,
		exportPath:    exportPath,
		exportColumn:  exportColumn,
		retentionDays: retentionDays,
	}

	if err := r.retrieve(ctx, start, end); err != nil {
		klog.ErrorS(err, "Retrieval failed", "indicator", indicator, "geo", geoID)
		if once {
			os.Exit(1)
		}
	}

	if !once {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
	loop:
		for {
			select {
			case <-ctx.Done():
				break loop
			case <-ticker.C:
				if !pinned {
					start, end, _ = window("", "", time.Now().UTC())
				}
				if err := r.retrieve(ctx, start, end); err != nil {
					klog.ErrorS(err, "Retrieval failed", "indicator", indicator, "geo", geoID)
				}
			}
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		klog.ErrorS(err, "Failed to shut down metrics server")
	}
	klog.InfoS("ESIOS retriever stopped")
}

type retriever struct {
	client        *esios.Client
	store         *archive.Store
	cache         *cache.Cache
	indicator     int
	geoID         int
	exportPath    string
	exportColumn  string
	retentionDays int
}

// retrieve pulls one window, archives it and updates the metrics.
func (r *retriever) retrieve(ctx context.Context, start, end time.Time) error {
	ind, err := r.client.GetIndicator(ctx, r.indicator, r.geoID, start, end)
	if err != nil {
		metrics.RetrievalsTotal.WithLabelValues("error").Inc()
		return err
	}
	metrics.RetrievalsTotal.WithLabelValues("success").Inc()
	metrics.RetrievedPoints.Add(float64(len(ind.Values)))
	metrics.LastRetrievalTimestamp.SetToCurrentTime()

	runID, err := r.store.RecordRun(r.indicator, r.geoID, start, end, len(ind.Values))
	if err != nil {
		return fmt.Errorf("failed to record retrieval run: %v", err)
	}
	if err := r.store.InsertPoints(runID, ind.Values); err != nil {
		return fmt.Errorf("failed to archive values: %v", err)
	}
	metrics.ArchivedPoints.Add(float64(len(ind.Values)))

	hits, misses := r.cache.GetMetrics()
	metrics.CacheHits.Set(float64(hits))
	metrics.CacheMisses.Set(float64(misses))

	klog.InfoS("Retrieved indicator",
		"indicator", r.indicator,
		"name", ind.ShortName,
		"geo", r.geoID,
		"points", len(ind.Values),
		"run", runID,
		"start", start.Format("2006-01-02"),
		"end", end.Format("2006-01-02"))

	if r.retentionDays > 0 {
		if err := r.store.Cleanup(r.retentionDays); err != nil {
			klog.ErrorS(err, "Failed to clean up archive")
		}
	}

	if r.exportPath != "" {
		if err := r.export(start, end); err != nil {
			return err
		}
	}
	return nil
}

func (r *retriever) export(start, end time.Time) error {
	column := r.exportColumn
	if column == "" {
		column = strconv.Itoa(start.Year())
	}
	f, err := os.Create(r.exportPath)
	if err != nil {
		return fmt.Errorf("failed to create export file: %v", err)
	}
	defer f.Close()

	if err := r.store.ExportPriceCSV(f, r.indicator, r.geoID, start, end, column); err != nil {
		return fmt.Errorf("failed to export price series: %v", err)
	}
	klog.InfoS("Exported price series", "path", r.exportPath, "column", column)
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = os.Getenv("PYPSA_ES_CONFIG")
	}
	if path != "" {
		return config.Load(path)
	}
	return config.FromEnv()
}

// window resolves the retrieval window. With no bounds given it covers
// yesterday; with only a start it covers one day from there. Ends are
// exclusive.
func window(startStr, endStr string, now time.Time) (time.Time, time.Time, error) {
	day := 24 * time.Hour
	today := now.Truncate(day)

	if startStr == "" && endStr == "" {
		return today.Add(-day), today, nil
	}
	if startStr == "" {
		return time.Time{}, time.Time{}, fmt.Errorf("-end requires -start")
	}
	start, err := time.Parse("2006-01-02", startStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid -start %q: %v", startStr, err)
	}
	if endStr == "" {
		return start, start.Add(day), nil
	}
	end, err := time.Parse("2006-01-02", endStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid -end %q: %v", endStr, err)
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("-end %s must be after -start %s", endStr, startStr)
	}
	return start, end, nil
}
