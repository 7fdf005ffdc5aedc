// Package main is the storyfind CLI entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/storyfind/internal/blob"
	"github.com/hyperjump/storyfind/internal/config"
	"github.com/hyperjump/storyfind/internal/embedding"
	"github.com/hyperjump/storyfind/internal/hydrate"
	"github.com/hyperjump/storyfind/internal/refine"
	"github.com/hyperjump/storyfind/internal/search"
	"github.com/hyperjump/storyfind/internal/server"
	"github.com/hyperjump/storyfind/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/storyfind/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used.
// Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "search":
		runSearch()
	case "build":
		runBuild()
	case "status":
		runStatus()
	case "init":
		runInit()
	case "version", "--version", "-v":
		fmt.Printf("storyfind version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("Invalid config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
		zap.String("index_source", cfg.Index.Source),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	if cfg.Index.WarmOrDefault() {
		start := time.Now()
		if err := components.Engine.Warm(ctx); err != nil {
			// Requests retry hydration; the server still starts.
			logger.Error("Index warm-up failed", zap.Error(err))
		} else {
			logger.Info("Index warmed", zap.Duration("elapsed", time.Since(start)))
		}
	}

	srv := server.NewServer(components.Engine, &cfg.Server,
		server.WithLogger(logger),
		server.WithIndexConfig(&cfg.Index),
	)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(shutdownCtx)
}

// Components holds initialized services.
type Components struct {
	Embedder embedding.Embedder
	Refiner  *refine.Refiner
	Hydrator *hydrate.Hydrator
	Engine   *search.Engine
}

// Close releases provider resources.
func (c *Components) Close() {
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	embedder, err := embedding.NewFromConfig(ctx, cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	refiner, err := refine.NewFromConfig(ctx, cfg.Refiner, logger)
	if err != nil {
		_ = embedder.Close()
		return nil, fmt.Errorf("failed to initialize refiner: %w", err)
	}

	resolver, fp, err := blob.NewFromConfig(ctx, cfg.Index)
	if err != nil {
		_ = embedder.Close()
		return nil, fmt.Errorf("failed to initialize index resolver: %w", err)
	}

	hydrator := hydrate.New(hydrate.NewCache(),
		hydrate.WithLogger(logger),
		hydrate.WithStagingDir(cfg.Index.StagingDir),
		hydrate.WithTimeout(cfg.Index.HydrationTimeout),
	)
	engine := search.NewEngine(refiner, embedder, hydrator,
		search.Source{Fingerprint: fp, Resolver: resolver},
		&cfg.Search,
		search.WithLogger(logger),
		search.WithEmbedTimeout(cfg.Embedding.Timeout),
	)
	logger.Debug("components initialized",
		zap.String("fingerprint", fp.String()),
		zap.String("embedding_provider", cfg.Embedding.Provider),
		zap.Int("embedding_dimensions", embedder.Dimensions()),
		zap.Bool("refiner_enabled", refiner.Enabled()),
	)

	return &Components{
		Embedder: embedder,
		Refiner:  refiner,
		Hydrator: hydrator,
		Engine:   engine,
	}, nil
}

func runInit() {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "config file to create")
	source := fs.String("source", "local", "index source: local, s3, or minio")
	force := fs.Bool("force", false, "overwrite an existing file")
	_ = fs.Parse(os.Args[2:])

	if err := writeDefaultConfig(*configPath, *source, *force); err != nil {
		fmt.Printf("Init failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Config written: %s\n", *configPath)
}

// writeDefaultConfig writes a config holding only defaults. Secrets are left to the environment.
func writeDefaultConfig(path, source string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use -force to overwrite)", path)
	}
	cfg := &config.Config{Index: config.IndexConfig{Source: source}}
	config.ApplyDefaults(cfg)
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	return config.Save(path, cfg)
}

func printUsage() {
	fmt.Println(`storyfind - Find a story from what you remember about it

Usage:
  storyfind server [flags]           Start the HTTP retrieval API
  storyfind search [flags] <query>   Find stories similar to a description
  storyfind build [flags]            Build index artifacts from a story catalogue
  storyfind status [flags]           Show index and engine status
  storyfind init [flags]             Write a default config file
  storyfind version                  Show version
  storyfind help                     Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/storyfind/config.yaml)
  --debug            Enable debug logging

Search Flags:
  --config string    Config file path (for direct mode; also supplies the default k)
  --server string    Server URL (default: http://localhost:8080). Use --server "" to search directly.
  --k int            Number of stories to return (default from config, or 3)
  --refine           Rewrite the query with the refiner before embedding (direct mode, default: true)
  --output string    Output format: text, compact, or json (default: text)

Build Flags:
  --config string       Config file path
  --input string        Catalogue file: .jsonl, .json, .yaml, .xlsx, or .db (default: build.input)
  --out string          Output directory for index.vec and index.meta (default: build.output)
  --text-field string   Column holding the summary (default: text)
  --metric string       l2 or cosine (default: index.metric)
  --compression string  none, zstd, or lz4 (default: index.compression)

Status Flags:
  --config string    Config file path (for direct mode)
  --server string    Server URL (default: http://localhost:8080). Use --server "" to inspect directly.
  --hydrate          In direct mode, fetch a remote index to report its size
  --output string    Output format: text or json (default: text)

Examples:
  storyfind init --source s3
  storyfind build --input stories.jsonl --out ./index
  storyfind server
  storyfind search "a robot from the future helps a boy"
  storyfind search --k 5 --output json "the one with the time machine in the desk"
  storyfind search --server "" --refine=false "lost cat at sea"
  storyfind status --output json`)
}
