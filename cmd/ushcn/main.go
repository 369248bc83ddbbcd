// Command ushcn downloads the USHCN and GHCN-Daily archives, reshapes every
// requested dataset into long format with station coordinates attached, and
// writes one artifact per dataset.
//
// Usage:
//
//	ushcn [flags] [dataset ...]
//
// Datasets: daily, monthly-raw, monthly-tob, monthly-fls52, monthly (all three
// monthly variants), stations, all.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"

	httpadapter "github.com/couchcryptid/ushcn-etl/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/ushcn-etl/internal/adapter/kafka"
	"github.com/couchcryptid/ushcn-etl/internal/adapter/noaa"
	parquetadapter "github.com/couchcryptid/ushcn-etl/internal/adapter/parquet"
	sqliteadapter "github.com/couchcryptid/ushcn-etl/internal/adapter/sqlite"
	"github.com/couchcryptid/ushcn-etl/internal/config"
	"github.com/couchcryptid/ushcn-etl/internal/domain"
	"github.com/couchcryptid/ushcn-etl/internal/observability"
	"github.com/couchcryptid/ushcn-etl/internal/pipeline"
)

const (
	exitOK     = 0
	exitFailed = 1
	exitConfig = 2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return exitConfig
	}

	fs := pflag.NewFlagSet("ushcn", pflag.ContinueOnError)
	datasets := fs.StringSlice("datasets", cfg.Datasets, "datasets to build (comma separated)")
	fs.BoolVar(&cfg.CacheEnabled, "cache", cfg.CacheEnabled, "keep downloads in the cache directory and reuse them")
	fs.StringVar(&cfg.OutputDir, "output-dir", cfg.OutputDir, "directory for output artifacts")
	fs.StringVar(&cfg.OutputFormat, "format", cfg.OutputFormat, "output format: parquet or sqlite")
	fs.IntVarP(&cfg.BatchSize, "batch-size", "b", cfg.BatchSize, "rows per column batch")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: ushcn [flags] [dataset ...]\n\nDatasets: %s\n\nFlags:\n", datasetHelp)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		return exitConfig
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		return exitConfig
	}

	names := fs.Args()
	if len(names) == 0 {
		names = *datasets
	}
	sel, err := selectDatasets(names)
	if err != nil {
		slog.Error("invalid datasets", "error", err)
		fs.Usage()
		return exitConfig
	}
	if err := cfg.CheckOutputDir(); err != nil {
		slog.Error("invalid output directory", "error", err)
		return exitConfig
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fetcher := noaa.NewFetcher(noaa.CacheConfig{Enabled: cfg.CacheEnabled, Dir: cfg.CacheDir}, cfg.HTTPTimeout, cfg.DownloadRetries, logger, metrics)
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Error("download cleanup error", "error", err)
		}
	}()
	source := noaa.NewSource(noaa.Catalog{BaseURL: cfg.NOAABaseURL}, fetcher, logger)

	var publisher pipeline.ReportPublisher
	if cfg.ReportingEnabled() {
		p := kafkaadapter.NewReportPublisher(cfg, logger)
		defer func() {
			if err := p.Close(); err != nil {
				logger.Error("kafka writer close error", "error", err)
			}
		}()
		publisher = p
	}

	sinks, exporter := outputs(cfg)
	runner := pipeline.NewRunner(source, sinks, publisher, logger, metrics, pipeline.Options{
		BatchSize:          cfg.BatchSize,
		MaxSkipRatio:       cfg.MaxSkipRatio,
		GapSampleSize:      cfg.GapSampleSize,
		DropQualityFlagged: cfg.DropQualityFlagged,
	})

	if cfg.MetricsAddr != "" {
		srv := httpadapter.NewServer(cfg.MetricsAddr, runner, prometheus.DefaultGatherer, logger)
		srvCtx, cancel := context.WithCancel(context.Background())
		done := srv.Serve(srvCtx, cfg.ShutdownTimeout)
		defer func() {
			cancel()
			<-done
		}()
	}

	code := exitOK
	if sel.stations {
		paths, err := runner.ExportStations(ctx, exporter, domain.GHCNStations, domain.USHCNStations)
		for _, p := range paths {
			fmt.Println(p)
		}
		if err != nil {
			logger.Error("station export failed", "error", err)
			code = exitFailed
		}
	}
	if len(sel.variants) > 0 {
		reports, err := runner.Run(ctx, sel.variants)
		for _, r := range reports {
			printReport(r)
		}
		if err != nil {
			logger.Error("run failed", "error", err)
			code = exitFailed
		}
	}
	if ctx.Err() != nil {
		logger.Info("interrupted")
		code = exitFailed
	}
	return code
}

// outputs picks the sink factory and station exporter of the output format.
func outputs(cfg *config.Config) (pipeline.SinkFactory, pipeline.StationExporter) {
	if cfg.OutputFormat == config.FormatSQLite {
		return sqliteadapter.SinkFactory{Dir: cfg.OutputDir}, sqliteadapter.StationExporter{Dir: cfg.OutputDir}
	}
	return parquetadapter.SinkFactory{Dir: cfg.OutputDir}, parquetadapter.StationExporter{Dir: cfg.OutputDir}
}

func printReport(r domain.CoverageReport) {
	status := "ok"
	switch {
	case !r.Success:
		status = "FAILED: " + r.Error
	case !r.FullCoverage():
		status = fmt.Sprintf("ok, %d rows without coordinates dropped", r.Gaps)
	}
	fmt.Printf("%-14s rows=%d lines=%d skipped=%d coverage=%d/%d %s\n",
		r.Variant, r.RowsWritten, r.LinesRead, r.LinesSkipped, r.Matched, r.Total, status)
	if r.Artifact != "" && r.Success {
		fmt.Printf("%-14s %s\n", "", r.Artifact)
	}
}
