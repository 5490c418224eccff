// Package main is the kotae CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/classifier"
	"github.com/hyperjump/kotae/internal/cli"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/contentcache"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/generator"
	"github.com/hyperjump/kotae/internal/keyword"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/resolver"
	"github.com/hyperjump/kotae/internal/server"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
	"github.com/hyperjump/kotae/internal/watcher"
	"github.com/hyperjump/kotae/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/kotae/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if that exists
// it is used instead. Returns the config and the path actually loaded.
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
	case "ask":
		runAsk()
	case "add":
		runAdd()
	case "reindex":
		runReindex()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("kotae version %s\n", version)
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
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	var drift *watcher.DriftWatcher
	if cfg.Watch.Enabled {
		onChange := watcher.DriftCheck(logger,
			components.Storage.CountRecords,
			func() int { return components.Engine.Index().Size() },
			components.Engine.Rebuild,
		)
		drift = watcher.NewDriftWatcher(
			cfg.Storage.DatabasePath,
			time.Duration(cfg.Watch.DebounceMS)*time.Millisecond,
			onChange,
			logger,
		)
		if err := drift.Start(context.Background()); err != nil {
			logger.Fatal("Failed to start drift watcher", zap.Error(err))
		}
		defer drift.Stop()
	}

	srv := server.NewServer(components.Engine, components.Storage, components.Keyword, cfg, logger)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	if cfg.Storage.IndexPath != "" {
		if err := components.Engine.Index().Save(cfg.Storage.IndexPath); err != nil {
			logger.Warn("index save failed", zap.String("path", cfg.Storage.IndexPath), zap.Error(err))
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

func runAsk() {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = use direct storage when server is not running)")
	test := fs.Bool("test", true, "use placeholder resource instead of generating an image")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: kotae ask [flags] <question>")
		os.Exit(1)
	}
	query := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if query == "" {
		fmt.Println("Usage: kotae ask [flags] <question>")
		os.Exit(1)
	}
	format, err := cli.ParseFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	req := &models.ResolveRequest{Query: query, Test: test}
	var resp *models.ResolveResponse
	if *serverURL != "" {
		r, err := resolveViaHTTP(*serverURL, req)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Ask failed: %v\n", err)
			os.Exit(1)
		}
		resp = r
	} else {
		components, cleanup := mustComponents(*configPath)
		defer cleanup()
		r, err := components.Engine.Resolve(context.Background(), req)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Ask failed: %v\n", err)
			os.Exit(1)
		}
		resp = r
	}

	if err := cli.WriteResolveResult(os.Stdout, resp, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func resolveViaHTTP(serverURL string, req *models.ResolveRequest) (*models.ResolveResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(serverURL+"/api/v1/resolve", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var out models.ResolveResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

func runAdd() {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = use direct storage)")
	answer := fs.String("answer", "", "answer text (generated when omitted)")
	resource := fs.String("resource", "", "resource URL (required)")
	tags := fs.String("tags", "", "comma-separated tags")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 || *resource == "" {
		fmt.Println("Usage: kotae add --resource <url> [flags] <question>")
		os.Exit(1)
	}
	question := strings.TrimSpace(strings.Join(fs.Args(), " "))

	req := &models.AddRecordRequest{
		Question:    question,
		Answer:      *answer,
		ResourceURL: *resource,
	}
	if *tags != "" {
		for _, tag := range strings.Split(*tags, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				req.Tags = append(req.Tags, tag)
			}
		}
	}

	var out *models.AddRecordResponse
	if *serverURL != "" {
		body, err := json.Marshal(req)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Add failed: %v\n", err)
			os.Exit(1)
		}
		resp, err := http.Post(*serverURL+"/api/v1/records", "application/json", bytes.NewReader(body))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Request failed: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			fmt.Fprintf(os.Stderr, "Add failed (%d): %s\n", resp.StatusCode, string(b))
			os.Exit(1)
		}
		out = &models.AddRecordResponse{}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			fmt.Fprintf(os.Stderr, "Parse failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		components, cleanup := mustComponents(*configPath)
		defer cleanup()
		r, err := components.Engine.AddRecord(context.Background(), req)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Add failed: %v\n", err)
			os.Exit(1)
		}
		out = r
	}

	if out.FromCache {
		fmt.Printf("Already recorded as %q (score %.3f)\n", out.MatchedQuestion, out.Score)
		return
	}
	fmt.Printf("Record created at slot %d: %s\n", out.Slot, out.Record.ID)
}

func runReindex() {
	fs := flag.NewFlagSet("reindex", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = use direct storage)")
	_ = fs.Parse(os.Args[2:])

	if *serverURL != "" {
		resp, err := http.Post(*serverURL+"/api/v1/reindex", "application/json", nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Request failed: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			fmt.Fprintf(os.Stderr, "Reindex failed (%d): %s\n", resp.StatusCode, string(b))
			os.Exit(1)
		}
		var out struct {
			Records int `json:"records"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			fmt.Fprintf(os.Stderr, "Parse failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Index rebuilt: %d record(s)\n", out.Records)
		return
	}

	components, cleanup := mustComponents(*configPath)
	defer cleanup()
	n, err := components.Engine.Rebuild(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Reindex failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Index rebuilt: %d record(s)\n", n)
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = use direct storage)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var status cli.Status
	if *serverURL != "" {
		resp, err := http.Get(*serverURL + "/api/v1/status")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			fmt.Fprintf(os.Stderr, "Status failed (%d): %s\n", resp.StatusCode, string(b))
			os.Exit(1)
		}
		if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
			fmt.Fprintf(os.Stderr, "Parse failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		cfg, _, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		components, cleanup := mustComponents(*configPath)
		defer cleanup()
		count, err := components.Storage.CountRecords(context.Background())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Count failed: %v\n", err)
			os.Exit(1)
		}
		status = cli.Status{
			Records:   count,
			IndexSize: components.Engine.Index().Size(),
			Config: map[string]interface{}{
				"similarity_threshold": components.Engine.Threshold(),
				"embedding_dimensions": cfg.Embedding.Dimensions,
				"database_path":        cfg.Storage.DatabasePath,
				"index_path":           cfg.Storage.IndexPath,
				"keyword_index_path":   cfg.Storage.KeywordIndexPath,
				"test_mode":            cfg.Artifacts.TestModeOrDefault(),
			},
		}
		diskBytes, err := storage.DiskUsageBytes(
			cfg.Storage.DatabasePath, cfg.Storage.IndexPath, cfg.Storage.KeywordIndexPath)
		if err == nil {
			status.DiskUsageBytes = &diskBytes
		}
	}

	if err := cli.WriteStatus(os.Stdout, &status, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

// mustComponents loads config and initializes components for direct-storage
// subcommands, exiting on failure. The returned cleanup closes everything.
func mustComponents(configPath string) (*Components, func()) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	components, err := initializeComponents(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	return components, func() {
		components.Close()
		_ = logger.Sync()
	}
}

// Components holds initialized services.
type Components struct {
	Storage  storage.Storage
	Embedder embedding.Embedder
	Keyword  *keyword.BleveIndex
	Engine   *resolver.Engine

	artifacts *contentcache.Memoizer
}

func (c *Components) Close() {
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Keyword != nil {
		_ = c.Keyword.Close()
	}
	if c.artifacts != nil {
		_ = c.artifacts.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	var embedder embedding.Embedder
	onnxEmbedder, err := embedding.NewONNXEmbedder(
		cfg.Embedding.ModelPath,
		cfg.Embedding.Dimensions,
		cfg.Embedding.MaxTokens,
		cfg.Embedding.CacheSize,
	)
	if err != nil {
		logger.Warn("ONNX embedder unavailable, using deterministic mock",
			zap.String("model_path", cfg.Embedding.ModelPath),
			zap.Error(err))
		embedder = embedding.NewMockEmbedder(cfg.Embedding.Dimensions)
	} else {
		embedder = onnxEmbedder
	}

	index, err := vector.NewSlotIndex(cfg.Embedding.Dimensions)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize index: %w", err)
	}
	if cfg.Storage.IndexPath != "" {
		if loadErr := index.Load(cfg.Storage.IndexPath); loadErr != nil {
			logger.Warn("index load skipped (run reindex)",
				zap.String("path", cfg.Storage.IndexPath),
				zap.Error(loadErr))
		}
	}
	logger.Info("semantic index initialized",
		zap.Int("size", index.Size()),
		zap.Int("dimensions", index.Dimensions()))

	kw, err := keyword.NewBleveIndex(cfg.Storage.KeywordIndexPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize keyword index: %w", err)
	}

	apiKey := ""
	if cfg.Generator.APIKeyFile != "" {
		apiKey, err = generator.LoadAPIKey(cfg.Generator.APIKeyFile)
		if err != nil {
			logger.Warn("API key unavailable, generator calls will be unauthenticated",
				zap.String("path", cfg.Generator.APIKeyFile),
				zap.Error(err))
		}
	}
	client, err := generator.NewClient(generator.ClientConfig{
		BaseURL:    cfg.Generator.BaseURL,
		APIKey:     apiKey,
		Model:      cfg.Generator.Model,
		ImageModel: cfg.Generator.ImageModel,
		ImageSize:  cfg.Generator.ImageSize,
		Timeout:    time.Duration(cfg.Generator.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize generator client: %w", err)
	}
	llm := generator.NewLLM(client)

	var gate classifier.Classifier = classifier.AllowAll{}
	if cfg.Classifier.EnabledOrDefault() {
		gate = classifier.NewLLM(client)
	}

	artifactCache, err := contentcache.New(contentcache.Options{
		Driver:        cfg.Artifacts.CacheDriver,
		RedisAddr:     cfg.Artifacts.RedisAddr,
		RedisPassword: cfg.Artifacts.RedisPassword,
		RedisDB:       cfg.Artifacts.RedisDB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize artifact cache: %w", err)
	}
	artifacts := contentcache.NewMemoizer(artifactCache)

	engine, err := resolver.NewEngine(resolver.Options{
		Store:               store,
		Index:               index,
		Embedder:            embedder,
		Generator:           llm,
		Artist:              llm,
		Classifier:          gate,
		Keyword:             kw,
		Artifacts:           artifacts,
		Logger:              logger,
		SimilarityThreshold: cfg.Cache.SimilarityThreshold,
		TopK:                cfg.Cache.TopK,
		RefusalMessage:      cfg.Cache.RefusalMessage,
		SnapshotPath:        cfg.Storage.IndexPath,
		TestMode:            cfg.Artifacts.TestModeOrDefault(),
		PlaceholderURL:      cfg.Artifacts.PlaceholderURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize resolver: %w", err)
	}

	return &Components{
		Storage:   store,
		Embedder:  embedder,
		Keyword:   kw,
		Engine:    engine,
		artifacts: artifacts,
	}, nil
}

func printUsage() {
	fmt.Println(`kotae - similarity-gated answer cache

Usage:
  kotae server [flags]                       Start the HTTP server
  kotae ask [flags] <question>               Resolve a question
  kotae add --resource <url> <question>      Ingest a question record
  kotae reindex [flags]                      Rebuild the semantic index from the store
  kotae status [flags]                       Show record/index status
  kotae version                              Show version
  kotae help                                 Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/kotae/config.yaml)
  --debug            Enable debug logging

Ask Flags:
  --config string    Config file path (for direct storage mode)
  --server string    Server URL (default: http://localhost:8080). Use empty (--server "") for direct storage.
  --test             Use placeholder resource instead of generating an image (default: true)
  --output string    Output format: text or json (default: text)

Add Flags:
  --config string    Config file path (for direct storage mode)
  --server string    Server URL (default: http://localhost:8080). Use empty (--server "") for direct storage.
  --answer string    Answer text; generated when omitted
  --resource string  Resource URL (required)
  --tags string      Comma-separated tags

Reindex/Status Flags:
  --config string    Config file path (for direct storage mode)
  --server string    Server URL (default: http://localhost:8080). Use empty (--server "") for direct storage.
  --output string    Output format for status: text or json (default: text)

Examples:
  kotae server
  kotae ask "What is LPG reform?"
  kotae ask --test=false "What is LPG reform?"
  kotae add --resource https://cdn.example.com/lpg.png --tags economy "What is LPG reform?"
  kotae reindex
  kotae status --output json`)
}
