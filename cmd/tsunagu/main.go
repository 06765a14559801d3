// Command tsunagu runs the document relation server and its companion
// commands: ingest PDFs, query related passages, and inspect the store.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/tsunagu/internal/cli"
	"github.com/hyperjump/tsunagu/internal/config"
	"github.com/hyperjump/tsunagu/internal/embedding"
	"github.com/hyperjump/tsunagu/internal/events"
	"github.com/hyperjump/tsunagu/internal/indexer"
	"github.com/hyperjump/tsunagu/internal/keyword"
	"github.com/hyperjump/tsunagu/internal/layout"
	"github.com/hyperjump/tsunagu/internal/models"
	"github.com/hyperjump/tsunagu/internal/search"
	"github.com/hyperjump/tsunagu/internal/server"
	"github.com/hyperjump/tsunagu/internal/storage"
	"github.com/hyperjump/tsunagu/internal/vector"
	"github.com/hyperjump/tsunagu/internal/watcher"
	"github.com/hyperjump/tsunagu/pkg/utils"
)

const (
	version           = "0.3.0"
	defaultConfigPath = "/usr/local/etc/tsunagu/config.yaml"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "server":
		runServer(os.Args[2:])
	case "ingest":
		runIngest(os.Args[2:])
	case "related":
		runRelated(os.Args[2:])
	case "list":
		runList(os.Args[2:])
	case "delete":
		runDelete(os.Args[2:])
	case "status":
		runStatus(os.Args[2:])
	case "version":
		fmt.Printf("tsunagu %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// loadConfig loads the config file. When path is the default and a
// config.yaml exists in the working directory, the local file wins, which
// keeps development setups out of /usr/local/etc.
func loadConfig(path string) (*config.Config, error) {
	if path == defaultConfigPath {
		if cwd, err := os.Getwd(); err == nil {
			local := filepath.Join(cwd, "config.yaml")
			if _, err := os.Stat(local); err == nil {
				path = local
			}
		}
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := &config.Config{}
		config.ApplyDefaults(cfg)
		return cfg, nil
	}
	return config.Load(path)
}

// Components holds the wired application parts so commands share one
// initialization path and one shutdown order.
type Components struct {
	Config       *config.Config
	Logger       *zap.Logger
	Storage      storage.Storage
	Embedder     embedding.Embedder // nil when no endpoint is configured
	VectorIndex  *vector.MemoryIndex
	KeywordIndex keyword.Index
	Engine       *search.Engine
	Pipeline     *indexer.Pipeline
	Bus          *events.Bus
}

func initializeComponents(cfg *config.Config) (*Components, error) {
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	st, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	var embedder embedding.Embedder
	if cfg.Embedding.Endpoint != "" {
		httpEmbedder, err := embedding.NewHTTPEmbedder(
			cfg.Embedding.Endpoint,
			cfg.Embedding.Model,
			cfg.Embedding.Dimensions,
			cfg.Embedding.CacheSize,
			time.Duration(cfg.Embedding.TimeoutSec)*time.Second,
		)
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("create embedder: %w", err)
		}
		embedder = httpEmbedder
	} else {
		logger.Info("no embedding endpoint configured, ranking is lexical-only")
	}

	vectorIndex, err := vector.NewMemoryIndex(cfg.Embedding.Dimensions)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("create vector index: %w", err)
	}
	if err := vectorIndex.Load(cfg.Storage.VectorIndexPath); err != nil {
		logger.Warn("vector index load failed, starting empty", zap.Error(err))
	}

	keywordIndex, err := keyword.NewBleveIndex(cfg.Storage.BleveIndexPath)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("open keyword index: %w", err)
	}

	bus := events.NewBus()
	engine := search.NewEngine(keywordIndex, vectorIndex, embedder, &cfg.Search,
		search.WithLogger(logger))
	pipeline := indexer.NewPipeline(
		st,
		keywordIndex,
		vectorIndex,
		embedder,
		layout.NewExtractor(cfg.Layout),
		indexer.NewChunker(cfg.Chunking),
		bus,
		cfg.Search.IndexBatchSize,
		indexer.WithLogger(logger),
	)

	return &Components{
		Config:       cfg,
		Logger:       logger,
		Storage:      st,
		Embedder:     embedder,
		VectorIndex:  vectorIndex,
		KeywordIndex: keywordIndex,
		Engine:       engine,
		Pipeline:     pipeline,
		Bus:          bus,
	}, nil
}

// Close persists the vector index and releases all resources.
func (c *Components) Close() {
	if err := c.VectorIndex.Save(c.Config.Storage.VectorIndexPath); err != nil {
		c.Logger.Error("failed to save vector index", zap.Error(err))
	}
	c.Bus.Close()
	if err := c.KeywordIndex.Close(); err != nil {
		c.Logger.Error("failed to close keyword index", zap.Error(err))
	}
	_ = c.VectorIndex.Close()
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if err := c.Storage.Close(); err != nil {
		c.Logger.Error("failed to close storage", zap.Error(err))
	}
	_ = c.Logger.Sync()
}

func runServer(args []string) {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "path to config file")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fatalf("failed to load config: %v", err)
	}
	c, err := initializeComponents(cfg)
	if err != nil {
		fatalf("failed to initialize: %v", err)
	}
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var watch *watcher.Watcher
	if len(cfg.Watch.Directories) > 0 {
		watch = watcher.NewWatcher(
			cfg.Watch.Directories,
			cfg.Watch.RecursiveOrDefault(),
			func(path string) {
				if _, err := c.Pipeline.IngestFile(ctx, path); err != nil {
					c.Logger.Error("watch ingest failed", zap.String("path", path), zap.Error(err))
				}
			},
			func(path string) {
				if err := c.Pipeline.DeletePath(ctx, path); err != nil &&
					!errors.Is(err, storage.ErrNotFound) {
					c.Logger.Error("watch delete failed", zap.String("path", path), zap.Error(err))
				}
			},
			watcher.WithLogger(c.Logger),
		)
		if err := watch.Start(ctx); err != nil {
			fatalf("failed to start watcher: %v", err)
		}
		defer watch.Stop()
		go watch.SyncExistingFiles()
	}

	srv := server.NewServer(c.Engine, c.Pipeline, c.Storage, c.Bus, watch, cfg, c.Logger)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			c.Logger.Error("server error", zap.Error(err))
		}
	case sig := <-sigCh:
		c.Logger.Info("shutting down", zap.String("signal", sig.String()))
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Stop(shutdownCtx); err != nil {
			c.Logger.Error("shutdown error", zap.Error(err))
		}
	}
}

func runIngest(args []string) {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "path to config file")
	_ = fs.Parse(args)
	paths := fs.Args()
	if len(paths) == 0 {
		fmt.Fprintln(os.Stderr, "usage: tsunagu ingest [flags] <pdf-or-directory>...")
		os.Exit(1)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fatalf("failed to load config: %v", err)
	}
	c, err := initializeComponents(cfg)
	if err != nil {
		fatalf("failed to initialize: %v", err)
	}
	defer c.Close()

	ctx := context.Background()
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			fatalf("cannot stat %s: %v", path, err)
		}
		if info.IsDir() {
			n, err := c.Pipeline.IngestDirectory(ctx, path)
			if err != nil {
				fatalf("ingest directory %s: %v", path, err)
			}
			fmt.Printf("ingested %d documents from %s\n", n, path)
			continue
		}
		docID, err := c.Pipeline.IngestFile(ctx, path)
		if err != nil {
			fatalf("ingest %s: %v", path, err)
		}
		fmt.Printf("ingested %s (%s)\n", path, docID)
	}
}

func runRelated(args []string) {
	fs := flag.NewFlagSet("related", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "path to config file")
	limit := fs.Int("limit", 0, "maximum number of results (default from config)")
	exclude := fs.String("exclude", "", "chunk ID the query was selected from")
	format := fs.String("format", "text", "output format: text or json")
	_ = fs.Parse(relatedArgsReorder(args))
	rest := fs.Args()
	if len(rest) < 2 {
		fmt.Fprintln(os.Stderr, "usage: tsunagu related [flags] <document-id> <query>...")
		os.Exit(1)
	}
	docID := rest[0]
	queryText := buildQueryText(rest[1:])

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fatalf("failed to load config: %v", err)
	}
	c, err := initializeComponents(cfg)
	if err != nil {
		fatalf("failed to initialize: %v", err)
	}
	defer c.Close()

	q := &models.RelatedQuery{
		DocumentID:     docID,
		Query:          queryText,
		ExcludeChunkID: *exclude,
		Limit:          *limit,
	}
	if q.Limit <= 0 {
		q.Limit = cfg.Search.DefaultLimit
	}
	results, err := c.Engine.FindRelated(context.Background(), q)
	if err != nil {
		fatalf("related query failed: %v", err)
	}
	if err := cli.WriteRelatedResults(os.Stdout, results, cli.OutputFormat(*format)); err != nil {
		fatalf("write results: %v", err)
	}
}

func runList(args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "path to config file")
	format := fs.String("format", "text", "output format: text or json")
	offset := fs.Int("offset", 0, "listing offset")
	limit := fs.Int("limit", 50, "maximum documents to list")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fatalf("failed to load config: %v", err)
	}
	c, err := initializeComponents(cfg)
	if err != nil {
		fatalf("failed to initialize: %v", err)
	}
	defer c.Close()

	docs, err := c.Storage.ListDocuments(context.Background(), *offset, *limit)
	if err != nil {
		fatalf("list documents: %v", err)
	}
	if err := cli.WriteDocuments(os.Stdout, docs, cli.OutputFormat(*format)); err != nil {
		fatalf("write documents: %v", err)
	}
}

func runDelete(args []string) {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "path to config file")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: tsunagu delete [flags] <document-id>")
		os.Exit(1)
	}
	docID := fs.Arg(0)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fatalf("failed to load config: %v", err)
	}
	c, err := initializeComponents(cfg)
	if err != nil {
		fatalf("failed to initialize: %v", err)
	}
	defer c.Close()

	if err := c.Pipeline.DeleteDocument(context.Background(), docID); err != nil {
		fatalf("delete %s: %v", docID, err)
	}
	fmt.Printf("deleted %s\n", docID)
}

func runStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "path to config file")
	jsonOut := fs.Bool("json", false, "output as JSON")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fatalf("failed to load config: %v", err)
	}
	c, err := initializeComponents(cfg)
	if err != nil {
		fatalf("failed to initialize: %v", err)
	}
	defer c.Close()

	ctx := context.Background()
	docCount, err := c.Storage.CountDocuments(ctx)
	if err != nil {
		fatalf("count documents: %v", err)
	}
	chunkCount, err := c.Storage.CountChunks(ctx)
	if err != nil {
		fatalf("count chunks: %v", err)
	}
	keywordCount, err := c.KeywordIndex.DocCount()
	if err != nil {
		fatalf("keyword doc count: %v", err)
	}
	diskBytes, _ := storage.DiskUsageBytes(
		cfg.Storage.DatabasePath,
		cfg.Storage.BleveIndexPath,
		cfg.Storage.VectorIndexPath,
	)

	if *jsonOut {
		fmt.Printf(`{"documents":%d,"chunks":%d,"keyword_entries":%d,"vectors":%d,"disk_usage_bytes":%d}`+"\n",
			docCount, chunkCount, keywordCount, c.VectorIndex.Size(), diskBytes)
		return
	}
	fmt.Printf("Documents:        %d\n", docCount)
	fmt.Printf("Chunks:           %d\n", chunkCount)
	fmt.Printf("Keyword entries:  %d\n", keywordCount)
	fmt.Printf("Vectors:          %d\n", c.VectorIndex.Size())
	fmt.Printf("Disk usage:       %.1f MB\n", float64(diskBytes)/(1024*1024))
	if len(cfg.Watch.Directories) > 0 {
		fmt.Printf("Watch dirs:       %s\n", strings.Join(cfg.Watch.Directories, ", "))
	}
}

// relatedArgsReorder moves flag arguments ahead of positionals so
// `tsunagu related DOC "some query" -limit 5` parses; the flag package stops
// at the first positional otherwise.
func relatedArgsReorder(args []string) []string {
	var flags, positionals []string
	i := 0
	for i < len(args) {
		arg := args[i]
		if strings.HasPrefix(arg, "-") {
			flags = append(flags, arg)
			if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
				flags = append(flags, args[i+1])
				i += 2
				continue
			}
			i++
			continue
		}
		positionals = append(positionals, arg)
		i++
	}
	return append(flags, positionals...)
}

// buildQueryText joins query arguments into one query string.
func buildQueryText(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func printUsage() {
	fmt.Print(`tsunagu - geometry-aware PDF relation engine

Usage:
  tsunagu <command> [flags] [arguments]

Commands:
  server     Start the HTTP API server (watches drop directories if configured)
  ingest     Ingest PDF files or directories into the store
  related    Find passages related to a query within one document
  list       List ingested documents
  delete     Delete a document and its index entries
  status     Show store and index statistics
  version    Print the version
  help       Show this help

Common flags:
  -config <path>   Config file (default ` + defaultConfigPath + `,
                   or ./config.yaml when present)

Examples:
  tsunagu server
  tsunagu ingest ~/papers/attention.pdf
  tsunagu related 3f9c1b "scaled dot product attention" -limit 5
  tsunagu related 3f9c1b "residual stream" -format json
  tsunagu status -json
`)
}
