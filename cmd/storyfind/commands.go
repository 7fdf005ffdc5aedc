package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/storyfind/internal/blob"
	"github.com/hyperjump/storyfind/internal/config"
	"github.com/hyperjump/storyfind/internal/corpus"
	"github.com/hyperjump/storyfind/internal/embedding"
	"github.com/hyperjump/storyfind/internal/hydrate"
	"github.com/hyperjump/storyfind/internal/store"
	"github.com/hyperjump/storyfind/internal/vector"
	"github.com/hyperjump/storyfind/pkg/utils"
)

func runBuild() {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	input := fs.String("input", "", "catalogue file (default: build.input)")
	out := fs.String("out", "", "output directory (default: build.output)")
	textField := fs.String("text-field", "", "column holding the summary (default: build.text_field)")
	table := fs.String("table", "", "SQLite table (default: build.table)")
	sheet := fs.String("sheet", "", "spreadsheet sheet (default: first sheet)")
	metricName := fs.String("metric", "", "l2 or cosine (default: index.metric)")
	compressionName := fs.String("compression", "", "none, zstd, or lz4 (default: index.compression)")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	applyBuildFlags(cfg, buildFlags{
		Input: *input, Output: *out, TextField: *textField, Table: *table, Sheet: *sheet,
		Metric: *metricName, Compression: *compressionName,
	})
	if cfg.Build.Input == "" || cfg.Build.Output == "" {
		fmt.Println("Usage: storyfind build --input <catalogue> --out <dir>")
		os.Exit(1)
	}

	logger, err := utils.NewLogger(cfg.Debug || *debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx := context.Background()
	idx, err := buildIndex(ctx, cfg, logger)
	if err != nil {
		fmt.Printf("Build failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Indexed %d stories into %s (dimensions: %d, metric: %s)\n",
		idx.Len(), cfg.Build.Output, idx.Dimensions(), idx.Metric())
}

// buildFlags are command-line overrides for the build section.
type buildFlags struct {
	Input, Output, TextField, Table, Sheet, Metric, Compression string
}

func applyBuildFlags(cfg *config.Config, f buildFlags) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&cfg.Build.Input, f.Input)
	set(&cfg.Build.Output, f.Output)
	set(&cfg.Build.TextField, f.TextField)
	set(&cfg.Build.Table, f.Table)
	set(&cfg.Build.Sheet, f.Sheet)
	set(&cfg.Index.Metric, f.Metric)
	set(&cfg.Index.Compression, f.Compression)
}

func buildIndex(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*vector.FlatIndex, error) {
	metric, err := vector.ParseMetric(cfg.Index.Metric)
	if err != nil {
		return nil, err
	}
	compression, err := store.ParseCompression(cfg.Index.Compression)
	if err != nil {
		return nil, err
	}
	embedder, err := embedding.NewFromConfig(ctx, cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	defer embedder.Close()

	builder := corpus.NewBuilder(embedder,
		corpus.WithLogger(logger),
		corpus.WithMetric(metric),
		corpus.WithCompression(compression),
		corpus.WithBatchSize(cfg.Embedding.BatchSize),
	)
	return builder.BuildFile(ctx, cfg.Build.Input, cfg.Build.Output, corpus.Options{
		TextField: cfg.Build.TextField,
		Table:     cfg.Build.Table,
		Sheet:     cfg.Build.Sheet,
	})
}

// statusReport is the shape printed by the status command; it mirrors GET /api/v1/status.
type statusReport struct {
	Fingerprint         string `json:"fingerprint"`
	Hydrated            bool   `json:"hydrated"`
	Entries             int    `json:"entries"`
	Dimensions          int    `json:"dimensions"`
	Metric              string `json:"metric,omitempty"`
	Compression         string `json:"compression,omitempty"`
	DiskUsageBytes      *int64 `json:"disk_usage_bytes,omitempty"`
	EmbeddingDimensions int    `json:"embedding_dimensions,omitempty"`
	RefinerEnabled      bool   `json:"refiner_enabled"`
	DefaultK            int    `json:"default_k,omitempty"`
	MaxK                int    `json:"max_k,omitempty"`
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = inspect the index directly)")
	hydrateRemote := fs.Bool("hydrate", false, "fetch a remote index to report its size (direct mode)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	var (
		report *statusReport
		err    error
	)
	if *serverURL != "" {
		report, err = statusViaHTTP(*serverURL)
	} else {
		var cfg *config.Config
		cfg, _, err = loadConfig(*configPath)
		if err == nil {
			report, err = statusDirect(context.Background(), cfg, *hydrateRemote)
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}

	if *outputFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(report)
		return
	}
	writeStatusText(os.Stdout, report)
}

func statusViaHTTP(serverURL string) (*statusReport, error) {
	resp, err := httpClient.Get(strings.TrimRight(serverURL, "/") + "/api/v1/status")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return nil, serverError(resp)
	}
	var report statusReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &report, nil
}

// statusDirect inspects a local index on disk. Remote indexes are only fetched when hydrate is set.
func statusDirect(ctx context.Context, cfg *config.Config, hydrateRemote bool) (*statusReport, error) {
	fp := blob.FingerprintFor(cfg.Index)
	report := &statusReport{
		Fingerprint:         fp.String(),
		EmbeddingDimensions: cfg.Embedding.Dimensions,
		RefinerEnabled:      cfg.Refiner.EnabledOrDefault(),
		DefaultK:            cfg.Search.DefaultK,
		MaxK:                cfg.Search.MaxK,
	}
	if cfg.Index.Source == "local" {
		info, err := store.Inspect(cfg.Index.Path)
		if err != nil {
			return nil, err
		}
		report.Entries = info.Entries
		report.Dimensions = info.Dimensions
		report.Metric = info.Metric
		report.Compression = string(info.Compression)
		report.DiskUsageBytes = &info.SizeBytes
		return report, nil
	}
	if !hydrateRemote {
		return report, nil
	}
	resolver, fp, err := blob.NewFromConfig(ctx, cfg.Index)
	if err != nil {
		return nil, err
	}
	h := hydrate.New(hydrate.NewCache(),
		hydrate.WithStagingDir(cfg.Index.StagingDir),
		hydrate.WithTimeout(cfg.Index.HydrationTimeout))
	idx, err := h.Get(ctx, fp, resolver)
	if err != nil {
		return nil, err
	}
	report.Hydrated = true
	report.Entries = idx.Len()
	report.Dimensions = idx.Dimensions()
	report.Metric = idx.Metric().String()
	return report, nil
}

func writeStatusText(w io.Writer, r *statusReport) {
	fmt.Fprintf(w, "Index:            %s\n", r.Fingerprint)
	if r.Entries > 0 || r.Dimensions > 0 || r.Hydrated {
		fmt.Fprintf(w, "Stories:          %d\n", r.Entries)
		fmt.Fprintf(w, "Dimensions:       %d\n", r.Dimensions)
		fmt.Fprintf(w, "Metric:           %s\n", r.Metric)
	} else {
		fmt.Fprintln(w, "Stories:          not loaded")
	}
	if r.Compression != "" {
		fmt.Fprintf(w, "Compression:      %s\n", r.Compression)
	}
	if r.DiskUsageBytes != nil {
		fmt.Fprintf(w, "Disk usage:       %d bytes\n", *r.DiskUsageBytes)
	}
	if r.EmbeddingDimensions > 0 {
		fmt.Fprintf(w, "Embedding dims:   %d\n", r.EmbeddingDimensions)
	}
	fmt.Fprintf(w, "Refiner:          %s\n", enabledString(r.RefinerEnabled))
	if r.DefaultK > 0 {
		fmt.Fprintf(w, "k (default/max):  %d/%d\n", r.DefaultK, r.MaxK)
	}
}

func enabledString(b bool) string {
	if b {
		return "enabled"
	}
	return "disabled"
}
