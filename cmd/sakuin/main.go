// Package main is the Sakuin CLI entry point.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/tsukimori/sakuin/internal/cli"
	"github.com/tsukimori/sakuin/internal/config"
	"github.com/tsukimori/sakuin/internal/corpus"
	"github.com/tsukimori/sakuin/internal/embedding"
	"github.com/tsukimori/sakuin/internal/ensemble"
	"github.com/tsukimori/sakuin/internal/extract"
	"github.com/tsukimori/sakuin/internal/project"
	"github.com/tsukimori/sakuin/internal/server"
	"github.com/tsukimori/sakuin/internal/storage"
	"github.com/tsukimori/sakuin/internal/training"
	"github.com/tsukimori/sakuin/internal/vocab"
	"github.com/tsukimori/sakuin/internal/watcher"
	"github.com/tsukimori/sakuin/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/sakuin/config.yaml"

// loadConfig loads config from path. When path is the default, it first
// looks for config.yaml in the current directory (for development); if
// that exists it is used. Returns the config and the path that was
// actually loaded.
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
	case "suggest":
		runSuggest()
	case "train":
		runTrain(false)
	case "learn":
		runTrain(true)
	case "projects":
		runProjects()
	case "clear":
		runClear()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("sakuin version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`Usage: sakuin <command> [flags]

Commands:
  server     Run the HTTP API server
  suggest    Suggest subjects for a document (file argument or stdin)
  train      Train a project's backends from a corpus
  learn      Apply labeled documents incrementally to a trained project
  projects   List configured projects and their training state
  clear      Remove all learned state for a project
  status     Show storage paths and disk usage
  version    Print the version
  help       Print this help

Run "sakuin <command> -h" for command flags.
`)
}

// components holds everything built from configuration.
type components struct {
	cfg      *config.Config
	logger   *zap.Logger
	store    *storage.SQLiteStore
	embedder embedding.Embedder
	registry *project.Registry
	coord    *training.Coordinator
}

func (c *components) Close() {
	if c.embedder != nil {
		_ = c.embedder.Close()
	}
	if c.store != nil {
		_ = c.store.Close()
	}
	_ = c.logger.Sync()
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*components, error) {
	store, err := storage.NewSQLiteStore(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open model store: %w", err)
	}

	var embedder embedding.Embedder
	if cfg.Embedding.ModelPath != "" {
		onnx, err := embedding.NewONNXEmbedder(
			cfg.Embedding.ModelPath,
			cfg.Embedding.Dimensions,
			cfg.Embedding.MaxTokens,
			cfg.Embedding.CacheSize,
		)
		if err != nil {
			// Embedding-dependent backends report themselves unavailable;
			// everything else keeps working.
			logger.Warn("embedder unavailable", zap.Error(err))
		} else {
			embedder = onnx
		}
	}

	registry, err := project.NewRegistry(cfg, embedder, store, logger)
	if err != nil {
		if embedder != nil {
			_ = embedder.Close()
		}
		_ = store.Close()
		return nil, err
	}
	return &components{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		embedder: embedder,
		registry: registry,
		coord:    training.NewCoordinator(store, logger),
	}, nil
}

func setup(configPath string, debug bool) *components {
	cfg, resolvedPath, err := loadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug || debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	logger.Debug("config loaded", zap.String("config_path", resolvedPath))

	comps, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	return comps
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	comps := setup(*configPath, *debug)
	defer comps.Close()
	logger := comps.logger

	// Vocabulary edits take effect without a restart.
	watchSvc := watcher.New(logger)
	for _, pc := range comps.cfg.Projects {
		if pc.Vocabulary == "" {
			continue
		}
		pc := pc
		err := watchSvc.WatchFile(pc.Vocabulary, func() {
			ix, err := vocab.Load(pc.Vocabulary)
			if err != nil {
				logger.Warn("vocabulary reload failed",
					zap.String("project", pc.ID), zap.Error(err))
				return
			}
			if p, err := comps.registry.Get(pc.ID); err == nil {
				p.ReloadVocabulary(ix)
			}
		})
		if err != nil {
			logger.Warn("vocabulary watch failed",
				zap.String("project", pc.ID), zap.Error(err))
		}
	}
	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if err := watchSvc.Start(watchCtx); err != nil {
		logger.Fatal("Failed to start watcher", zap.Error(err))
	}
	defer watchSvc.Stop()

	srv := server.NewServer(comps.registry, comps.coord, comps.cfg, logger)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

// readInputText returns the file's content when path is set, otherwise
// reads stdin.
func readInputText(path string) (string, error) {
	if path != "" {
		text, err := extract.NewExtractor().Extract(path)
		if err != nil {
			return "", err
		}
		return text, nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(data), nil
}

func runSuggest() {
	fs := flag.NewFlagSet("suggest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	projectID := fs.String("project", "", "project id (required)")
	limit := fs.Int("limit", 0, "maximum number of suggestions")
	threshold := fs.Float64("threshold", 0, "minimum suggestion score")
	format := fs.String("format", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])
	if *projectID == "" {
		fmt.Println("suggest: -project is required")
		fs.Usage()
		os.Exit(1)
	}

	comps := setup(*configPath, false)
	defer comps.Close()
	p, err := comps.registry.Get(*projectID)
	if err != nil {
		comps.logger.Fatal("Unknown project", zap.Error(err))
	}

	text, err := readInputText(fs.Arg(0))
	if err != nil {
		comps.logger.Fatal("Failed to read input", zap.Error(err))
	}

	opts := ensemble.Options{
		Limit:     comps.cfg.Ensemble.DefaultLimit,
		Threshold: *threshold,
	}
	if *limit > 0 {
		opts.Limit = *limit
	}
	if opts.Limit > comps.cfg.Ensemble.MaxLimit {
		opts.Limit = comps.cfg.Ensemble.MaxLimit
	}

	res, err := p.Suggest(context.Background(), text, opts)
	if err != nil {
		comps.logger.Fatal("Suggest failed", zap.Error(err))
	}
	if err := cli.WriteSuggestions(os.Stdout, p.ID, res, cli.OutputFormat(*format)); err != nil {
		comps.logger.Fatal("Output failed", zap.Error(err))
	}
}

func runTrain(incremental bool) {
	name := "train"
	if incremental {
		name = "learn"
	}
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	projectID := fs.String("project", "", "project id (required)")
	format := fs.String("format", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])
	if *projectID == "" || fs.NArg() == 0 {
		fmt.Printf("%s: -project and a corpus path are required\n", name)
		fs.Usage()
		os.Exit(1)
	}

	comps := setup(*configPath, false)
	defer comps.Close()
	p, err := comps.registry.Get(*projectID)
	if err != nil {
		comps.logger.Fatal("Unknown project", zap.Error(err))
	}

	docs, err := corpus.Load(fs.Arg(0), extract.NewExtractor())
	if err != nil {
		comps.logger.Fatal("Failed to load corpus", zap.Error(err))
	}
	report, err := comps.coord.Train(context.Background(), p.ID, p.Backends(), p.Engine(), docs, incremental)
	if err != nil {
		comps.logger.Fatal("Training failed", zap.Error(err))
	}
	if err := cli.WriteReport(os.Stdout, report, cli.OutputFormat(*format)); err != nil {
		comps.logger.Fatal("Output failed", zap.Error(err))
	}
}

func runProjects() {
	fs := flag.NewFlagSet("projects", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	format := fs.String("format", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	comps := setup(*configPath, false)
	defer comps.Close()

	var infos []project.Info
	for _, p := range comps.registry.List() {
		info, err := comps.registry.Dump(p.ID)
		if err != nil {
			comps.logger.Fatal("Dump failed", zap.Error(err))
		}
		infos = append(infos, info)
	}
	if err := cli.WriteProjects(os.Stdout, infos, cli.OutputFormat(*format)); err != nil {
		comps.logger.Fatal("Output failed", zap.Error(err))
	}
}

func runClear() {
	fs := flag.NewFlagSet("clear", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	projectID := fs.String("project", "", "project id (required)")
	_ = fs.Parse(os.Args[2:])
	if *projectID == "" {
		fmt.Println("clear: -project is required")
		fs.Usage()
		os.Exit(1)
	}

	comps := setup(*configPath, false)
	defer comps.Close()
	if err := comps.registry.Clear(*projectID); err != nil {
		comps.logger.Fatal("Clear failed", zap.Error(err))
	}
	fmt.Printf("Cleared project %s\n", *projectID)
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Config:    %s\n", resolvedPath)
	fmt.Printf("Database:  %s\n", cfg.Storage.DatabasePath)
	fmt.Printf("Indices:   %s\n", cfg.Storage.IndexDir)
	fmt.Printf("Projects:  %d\n", len(cfg.Projects))
	if bytes, err := storage.DiskUsageBytes(cfg.Storage.DatabasePath, cfg.Storage.IndexDir); err == nil {
		fmt.Printf("Disk used: %.1f MiB\n", float64(bytes)/(1024*1024))
	}
}
