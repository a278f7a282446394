// Package main is the mdvdb CLI entry point.
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
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/mdvdb/internal/cli"
	"github.com/hyperjump/mdvdb/internal/config"
	"github.com/hyperjump/mdvdb/internal/embedding"
	"github.com/hyperjump/mdvdb/internal/indexer"
	"github.com/hyperjump/mdvdb/internal/keyword"
	"github.com/hyperjump/mdvdb/internal/links"
	"github.com/hyperjump/mdvdb/internal/models"
	"github.com/hyperjump/mdvdb/internal/search"
	"github.com/hyperjump/mdvdb/internal/server"
	"github.com/hyperjump/mdvdb/internal/vector"
	"github.com/hyperjump/mdvdb/internal/watcher"
	"github.com/hyperjump/mdvdb/pkg/utils"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "init":
		runInit()
	case "index":
		runIndex()
	case "search":
		runSearch()
	case "watch":
		runWatch()
	case "serve":
		runServe()
	case "status":
		runStatus()
	case "links":
		runLinks()
	case "schema":
		runSchema()
	case "clusters":
		runClusters()
	case "version", "--version", "-v":
		fmt.Printf("mdvdb version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// loadConfig loads the config at path and returns it with the project root,
// which is the directory containing the config file. All relative paths
// reported by commands are relative to that root.
func loadConfig(path string) (*config.Config, string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.Load(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, "", fmt.Errorf("no config found at %s (run \"mdvdb init\" first)", path)
		}
		return nil, "", err
	}
	return cfg, filepath.Dir(abs), nil
}

func newLogger(cfg *config.Config, debug bool) *zap.Logger {
	logger, err := utils.NewLogger(cfg.Debug || debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func embeddingID(cfg *config.Config) models.EmbeddingConfig {
	return models.EmbeddingConfig{
		Provider:   cfg.Embedding.Provider,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
	}
}

// openStore opens just the vector index for read-only commands that do not
// need an embedding provider or the lexical index.
func openStore(cfg *config.Config, logger *zap.Logger) *vector.Store {
	store, err := vector.Open(cfg.IndexPath(), embeddingID(cfg), vector.WithStoreLogger(logger))
	if err != nil {
		if errors.Is(err, vector.ErrIndexNotFound) {
			fatal("Index not found at %s (run \"mdvdb index\" first)", cfg.IndexPath())
		}
		fatal("Failed to open index: %v", err)
	}
	return store
}

// Components holds the initialized services behind the read-write commands.
type Components struct {
	Store    *vector.Store
	Index    *keyword.Index
	Provider embedding.Provider
	Cache    *embedding.Cache
	Engine   *search.Engine
	Pipeline *indexer.Pipeline
}

func (c *Components) Close() {
	if c.Index != nil {
		_ = c.Index.Close()
	}
	if c.Provider != nil {
		_ = c.Provider.Close()
	}
	if c.Cache != nil {
		_ = c.Cache.Close()
	}
}

func initializeComponents(root string, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	store, err := vector.OpenOrCreate(cfg.IndexPath(), embeddingID(cfg), vector.WithStoreLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to open vector index: %w", err)
	}

	index, err := keyword.Open(cfg.FTSDir, keyword.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	provider, err := embedding.NewProvider(cfg.Embedding, logger)
	if err != nil {
		_ = index.Close()
		return nil, err
	}

	cache, err := embedding.OpenCache(cfg.CachePath())
	if err != nil {
		logger.Warn("embedding cache unavailable", zap.Error(err))
		cache = nil
	}
	batcherOpts := []embedding.BatcherOption{embedding.WithBatcherLogger(logger)}
	if cache != nil {
		batcherOpts = append(batcherOpts, embedding.WithBatcherCache(cache))
	}
	batcher := embedding.NewBatcher(provider, cfg.Embedding.Model, cfg.Embedding.BatchSize, batcherOpts...)

	engine := search.NewEngine(store, index, provider, cfg.Search, search.WithLogger(logger))
	pipeline := indexer.NewPipeline(root, cfg, store, index, batcher, indexer.WithLogger(logger))

	return &Components{
		Store:    store,
		Index:    index,
		Provider: provider,
		Cache:    cache,
		Engine:   engine,
		Pipeline: pipeline,
	}, nil
}

func runInit() {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	configPath := fs.String("config", config.DefaultFileName, "config file path to create")
	_ = fs.Parse(os.Args[2:])

	if _, err := config.Init(*configPath); err != nil {
		if errors.Is(err, config.ErrAlreadyExists) {
			fatal("Config already exists: %s", *configPath)
		}
		fatal("Init failed: %v", err)
	}
	fmt.Printf("Created %s\n", *configPath)
	fmt.Println("Edit the embedding section, then run \"mdvdb index\".")
}

func runIndex() {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	configPath := fs.String("config", config.DefaultFileName, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	full := fs.Bool("full", false, "discard the existing index and rebuild it (the embedding cache is kept)")
	file := fs.String("file", "", "index a single file instead of the whole project")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fatal("%v", err)
	}
	cfg, root, err := loadConfig(*configPath)
	if err != nil {
		fatal("Failed to load config: %v", err)
	}
	logger := newLogger(cfg, *debug)
	defer logger.Sync()

	if *full {
		if err := os.Remove(cfg.IndexPath()); err != nil && !os.IsNotExist(err) {
			fatal("Failed to remove vector index: %v", err)
		}
		if err := os.RemoveAll(cfg.FTSDir); err != nil {
			fatal("Failed to remove lexical index: %v", err)
		}
	}

	components, err := initializeComponents(root, cfg, logger)
	if err != nil {
		fatal("Failed to initialize: %v", err)
	}
	defer components.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *file != "" {
		rel, err := relToRoot(root, *file)
		if err != nil {
			fatal("%v", err)
		}
		res, err := components.Pipeline.IngestFile(ctx, rel)
		if err != nil {
			fatal("Indexing %s failed: %v", rel, err)
		}
		if err := cli.WriteIngestResult(os.Stdout, res, format); err != nil {
			fatal("Output failed: %v", err)
		}
		return
	}

	var progress models.ProgressFunc
	if format == cli.OutputText {
		progress = printProgress
	}
	res, err := components.Pipeline.IngestAll(ctx, progress)
	if err != nil {
		fatal("Indexing failed: %v", err)
	}
	if err := cli.WriteIngestResult(os.Stdout, res, format); err != nil {
		fatal("Output failed: %v", err)
	}
}

func printProgress(ev models.ProgressEvent) {
	switch ev.Phase {
	case models.PhaseDiscovering:
		fmt.Println("Discovering files...")
	case models.PhaseParsing:
		fmt.Printf("  [%d/%d] %s\n", ev.Current, ev.Total, ev.Path)
	case models.PhaseEmbedding:
		fmt.Printf("  embedding batch %d/%d (%d/%d chunks)\n",
			ev.Batch, ev.TotalBatches, ev.ChunksDone, ev.ChunksTotal)
	case models.PhaseCleaning:
		fmt.Printf("  removing %d stale file(s)\n", ev.Removed)
	case models.PhaseClustering:
		fmt.Println("Clustering documents...")
	case models.PhaseSaving:
		fmt.Println("Saving index...")
	}
}

// relToRoot normalizes a user-supplied path to a slash-separated path
// relative to the project root.
func relToRoot(root, path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%s is outside the project root %s", path, root)
	}
	return filepath.ToSlash(rel), nil
}

// filterList collects repeated -filter flags.
type filterList []models.MetadataFilter

func (f *filterList) String() string { return fmt.Sprintf("%d filter(s)", len(*f)) }

func (f *filterList) Set(value string) error {
	parsed, err := cli.ParseFilterArg(value)
	if err != nil {
		return err
	}
	*f = append(*f, parsed)
	return nil
}

// searchArgsReorder moves any flags (and their values) that appear after the
// query to the front of the slice so that flag.Parse() sees them. Go's flag
// package stops at the first non-flag argument, so
// "mdvdb search zebra -limit 5" would otherwise leave -limit unparsed.
func searchArgsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

// buildSearchQuery joins all positional args with spaces so multi-word
// queries work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func runSearch() {
	searchArgs := searchArgsReorder(os.Args[2:])

	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", config.DefaultFileName, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	limit := fs.Int("limit", 0, "number of results (default from config)")
	mode := fs.String("mode", "", "search mode: semantic, lexical, or hybrid (default from config)")
	minScore := fs.Float64("min-score", 0, "minimum final score (default from config)")
	pathPrefix := fs.String("path", "", "restrict results to files under this prefix")
	decay := fs.Bool("decay", false, "down-rank stale files by modification time")
	boostLinks := fs.Bool("boost-links", false, "boost files linked from other results")
	outputFormat := fs.String("output", "text", "output format: text or json")
	var filters filterList
	fs.Var(&filters, "filter", "frontmatter filter, e.g. status=open or priority=1..5 (repeatable)")
	fs.Usage = func() { printSearchUsage(fs) }
	_ = fs.Parse(searchArgs)

	if fs.NArg() < 1 {
		printSearchUsage(fs)
		os.Exit(1)
	}
	queryStr := buildSearchQuery(fs.Args())
	if queryStr == "" {
		printSearchUsage(fs)
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fatal("%v", err)
	}

	cfg, root, err := loadConfig(*configPath)
	if err != nil {
		fatal("Failed to load config: %v", err)
	}
	logger := newLogger(cfg, *debug)
	defer logger.Sync()

	components, err := initializeComponents(root, cfg, logger)
	if err != nil {
		fatal("Failed to initialize: %v", err)
	}
	defer components.Close()

	query := &models.SearchQuery{
		Query:      queryStr,
		Limit:      *limit,
		MinScore:   *minScore,
		Mode:       models.SearchMode(*mode),
		Filters:    filters,
		PathPrefix: *pathPrefix,
		BoostLinks: *boostLinks,
	}
	if *decay {
		query.DecayEnabled = true
		query.DecayHalfLife = cfg.Search.DecayHalfLifeDays
	}

	response, err := components.Engine.Search(context.Background(), query)
	if err != nil {
		fatal("Search failed: %v", err)
	}
	if err := cli.WriteSearchResults(os.Stdout, response, format); err != nil {
		fatal("Output failed: %v", err)
	}
}

func printSearchUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: mdvdb search [flags] <query>\n\n")
	fmt.Fprintf(fs.Output(), "Query is all remaining arguments joined by spaces.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Examples:
  mdvdb search postgres tuning
  mdvdb search -mode lexical "exact phrase"
  mdvdb search -filter status=open -filter priority=1..3 migrations
  mdvdb search -path notes/projects -decay roadmap
  mdvdb search -output json backlog   # structured JSON for other tools
`)
}

func runWatch() {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	configPath := fs.String("config", config.DefaultFileName, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, root, err := loadConfig(*configPath)
	if err != nil {
		fatal("Failed to load config: %v", err)
	}
	logger := newLogger(cfg, *debug)
	defer logger.Sync()

	components, err := initializeComponents(root, cfg, logger)
	if err != nil {
		fatal("Failed to initialize: %v", err)
	}
	defer components.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Catch up on changes made while the watcher was not running.
	res, err := components.Pipeline.IngestAll(ctx, nil)
	if err != nil {
		fatal("Initial sync failed: %v", err)
	}
	_ = cli.WriteIngestResult(os.Stdout, res, cli.OutputText)
	if res.Cancelled {
		return
	}

	debounce := time.Duration(cfg.Watch.DebounceMs) * time.Millisecond
	w := watcher.New(root, cfg.SourceDirs, components.Pipeline.Discoverer(),
		watcher.WithLogger(logger), watcher.WithDebounce(debounce))
	if err := w.Start(ctx); err != nil {
		fatal("Failed to start watcher: %v", err)
	}
	defer w.Stop()

	fmt.Println("Watching for changes. Press Ctrl-C to stop.")
	for ev := range w.Events() {
		switch ev.Kind {
		case watcher.EventRemove:
			if err := components.Pipeline.RemoveFile(ev.Path); err != nil {
				logger.Warn("remove failed", zap.String("path", ev.Path), zap.Error(err))
				continue
			}
			fmt.Printf("removed  %s\n", ev.Path)
		default:
			res, err := components.Pipeline.IngestFile(ctx, ev.Path)
			if err != nil {
				logger.Warn("reindex failed", zap.String("path", ev.Path), zap.Error(err))
				continue
			}
			if res.FilesSkipped > 0 {
				continue
			}
			fmt.Printf("indexed  %s (%d chunks)\n", ev.Path, res.ChunksWritten)
		}
	}
}

func runServe() {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", config.DefaultFileName, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	host := fs.String("host", "", "listen host (default from config)")
	port := fs.Int("port", 0, "listen port (default from config)")
	_ = fs.Parse(os.Args[2:])

	cfg, root, err := loadConfig(*configPath)
	if err != nil {
		fatal("Failed to load config: %v", err)
	}
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	logger := newLogger(cfg, *debug)
	defer logger.Sync()

	components, err := initializeComponents(root, cfg, logger)
	if err != nil {
		fatal("Failed to initialize: %v", err)
	}
	defer components.Close()

	srv := server.NewServer(components.Engine, components.Store, &cfg.Server, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", config.DefaultFileName, "config file path")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fatal("%v", err)
	}
	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fatal("Failed to load config: %v", err)
	}
	logger := newLogger(cfg, false)
	defer logger.Sync()

	store := openStore(cfg, logger)
	report := cli.StatusReport{IndexStatus: store.Status()}
	if disk, err := utils.DiskUsageBytes(cfg.IndexPath(), cfg.FTSDir, cfg.CachePath()); err == nil {
		report.DiskUsageBytes = disk
	}
	if err := cli.WriteStatus(os.Stdout, report, format); err != nil {
		fatal("Output failed: %v", err)
	}
}

func runLinks() {
	fs := flag.NewFlagSet("links", flag.ExitOnError)
	configPath := fs.String("config", config.DefaultFileName, "config file path")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fatal("%v", err)
	}
	cfg, root, err := loadConfig(*configPath)
	if err != nil {
		fatal("Failed to load config: %v", err)
	}
	logger := newLogger(cfg, false)
	defer logger.Sync()

	store := openStore(cfg, logger)
	graph := store.Links()
	known := make(map[string]struct{})
	for _, p := range store.FilePaths() {
		known[p] = struct{}{}
	}

	if fs.NArg() == 0 {
		if err := cli.WriteOrphans(os.Stdout, links.Orphans(graph, known), format); err != nil {
			fatal("Output failed: %v", err)
		}
		return
	}
	rel, err := relToRoot(root, fs.Arg(0))
	if err != nil {
		fatal("%v", err)
	}
	if _, ok := known[rel]; !ok {
		fatal("File not indexed: %s", rel)
	}
	if err := cli.WriteFileLinks(os.Stdout, rel, links.Query(graph, rel, known), format); err != nil {
		fatal("Output failed: %v", err)
	}
}

func runSchema() {
	fs := flag.NewFlagSet("schema", flag.ExitOnError)
	configPath := fs.String("config", config.DefaultFileName, "config file path")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fatal("%v", err)
	}
	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fatal("Failed to load config: %v", err)
	}
	logger := newLogger(cfg, false)
	defer logger.Sync()

	store := openStore(cfg, logger)
	schema := store.Schema()
	if schema == nil {
		schema = &models.Schema{}
	}
	if err := cli.WriteSchema(os.Stdout, schema, format); err != nil {
		fatal("Output failed: %v", err)
	}
}

func runClusters() {
	fs := flag.NewFlagSet("clusters", flag.ExitOnError)
	configPath := fs.String("config", config.DefaultFileName, "config file path")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fatal("%v", err)
	}
	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fatal("Failed to load config: %v", err)
	}
	logger := newLogger(cfg, false)
	defer logger.Sync()

	store := openStore(cfg, logger)
	state := store.Clusters()
	if state == nil {
		state = &models.ClusterState{}
	}
	if err := cli.WriteClusters(os.Stdout, state, format); err != nil {
		fatal("Output failed: %v", err)
	}
}

func printUsage() {
	fmt.Println(`mdvdb - markdown vector database

Usage:
  mdvdb init [flags]              Create a default config file
  mdvdb index [flags]             Index the project (incremental by default)
  mdvdb search [flags] <query>    Search indexed notes
  mdvdb watch [flags]             Watch for changes and update incrementally
  mdvdb serve [flags]             Start the HTTP server
  mdvdb status [flags]            Show index status
  mdvdb links [flags] [file]      Show a file's links, or orphans with no file
  mdvdb schema [flags]            Show the inferred frontmatter schema
  mdvdb clusters [flags]          Show document clusters
  mdvdb version                   Show version
  mdvdb help                      Show this help

Common Flags:
  -config string    Config file path (default: .mdvdb.yml in the current directory)
  -debug            Enable debug logging
  -output string    Output format: text or json (default: text)

Index Flags:
  -full             Discard the existing index and rebuild it (embedding cache kept)
  -file string      Index a single file instead of the whole project

Search Flags:
  -limit int        Number of results (default from config)
  -mode string      semantic, lexical, or hybrid (default from config)
  -min-score float  Minimum final score
  -filter value     Frontmatter filter: field, field=value, field=a,b or field=min..max (repeatable)
  -path string      Restrict results to files under this prefix
  -decay            Down-rank stale files by modification time
  -boost-links      Boost files linked from other results

Serve Flags:
  -host string      Listen host (default from config)
  -port int         Listen port (default from config)

Examples:
  mdvdb init
  mdvdb index
  mdvdb index -file notes/roadmap.md
  mdvdb search postgres tuning
  mdvdb search -filter status=open -limit 5 migrations
  mdvdb links notes/roadmap.md
  mdvdb serve -port 8080`)
}
