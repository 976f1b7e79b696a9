// Package main is the emaki CLI entry point.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/hyperjump/emaki/internal/cli"
	"github.com/hyperjump/emaki/internal/config"
	"github.com/hyperjump/emaki/internal/embedding"
	"github.com/hyperjump/emaki/internal/extract"
	"github.com/hyperjump/emaki/internal/imagegen"
	"github.com/hyperjump/emaki/internal/keyword"
	"github.com/hyperjump/emaki/internal/models"
	"github.com/hyperjump/emaki/internal/scene"
	"github.com/hyperjump/emaki/internal/server"
	"github.com/hyperjump/emaki/internal/slideshow"
	"github.com/hyperjump/emaki/internal/storage"
	"github.com/hyperjump/emaki/internal/storyboard"
	"github.com/hyperjump/emaki/internal/watcher"
	"github.com/hyperjump/emaki/pkg/utils"
	"go.uber.org/zap"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/emaki/config.yaml"
	defaultServerURL  = "http://localhost:8090"
)

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
	case "segment":
		runSegment()
	case "generate":
		runGenerate()
	case "show":
		runShow()
	case "list":
		runList()
	case "search":
		runSearch()
	case "delete":
		runDelete()
	case "status":
		runStatus()
	case "config":
		runConfig()
	case "version", "--version", "-v":
		fmt.Printf("emaki version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runConfig() {
	if len(os.Args) < 3 || os.Args[2] != "init" {
		fmt.Println("Usage: emaki config init [--path file] [--force]")
		os.Exit(1)
	}
	fs := flag.NewFlagSet("config init", flag.ExitOnError)
	path := fs.String("path", defaultConfigPath, "where to write the config file")
	force := fs.Bool("force", false, "overwrite an existing config file")
	_ = fs.Parse(os.Args[3:])

	if err := writeDefaultConfig(*path, *force); err != nil {
		fmt.Fprintf(os.Stderr, "Config init failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Wrote default config to %s\n", *path)
}

// writeDefaultConfig saves a config with every default spelled out to path.
// An existing file is left alone unless force is set.
func writeDefaultConfig(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	threshold := config.DefaultThreshold
	cfg.Segmentation.Threshold = &threshold
	return config.Save(path, cfg)
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (segmentation pairs, inbox events, etc.)")
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

	components, err := initializeComponents(cfg, logger, debugMode, true)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()

	var watchSvc server.WatchService
	if len(cfg.Watch.Directories) > 0 {
		w := newInboxWatcher(watchCtx, cfg, components.Pipeline, logger, debugMode)
		if err := w.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		go w.SyncExistingFiles()
		watchSvc = w
	}

	srv := server.NewServer(
		components.Pipeline,
		components.Storage,
		components.SceneIndex,
		cfg,
		watchSvc,
		logger,
	)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

// newInboxWatcher builds a watcher that turns files dropped into the inbox into storyboards
// and removes the storyboard of a deleted file.
func newInboxWatcher(ctx context.Context, cfg *config.Config, p *storyboard.Pipeline, logger *zap.Logger, debug bool) *watcher.Watcher {
	opts := []watcher.Option{}
	if debug {
		opts = append(opts, watcher.WithLogger(logger))
	}
	return watcher.New(
		cfg.Watch.Directories,
		cfg.Watch.Extensions,
		cfg.Watch.RecursiveOrDefault(),
		func(path string) {
			story, err := p.RunFile(ctx, path, nil)
			if err != nil {
				logger.Warn("inbox storyboard failed", zap.String("path", path), zap.Error(err))
				return
			}
			logger.Info("inbox storyboard ready", zap.String("path", path), zap.String("id", story.ID), zap.Int("scenes", story.SceneCount))
		},
		func(path string) {
			if err := p.RemoveFile(ctx, path); err != nil && !errors.Is(err, storage.ErrNotFound) {
				logger.Warn("inbox remove failed", zap.String("path", path), zap.Error(err))
			}
		},
		opts...,
	)
}

// argsReorder moves any flags (and their values) that appear after positional arguments
// to the front of the slice so that flag.Parse() sees them. Go's flag package stops at the
// first non-flag argument, so "emaki segment some text -threshold 0.5" would otherwise
// leave -threshold unparsed.
func argsReorder(args []string) []string {
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

// joinArgs joins positional args with spaces so multi-word input works with or without quoting.
func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// readInput returns the story text: the extracted content of file when set, otherwise the
// positional args, otherwise everything on stdin.
func readInput(args []string, file string, stdin io.Reader) (string, error) {
	if file != "" {
		text, err := extract.NewExtractor().Extract(file)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", file, err)
		}
		return text, nil
	}
	if text := joinArgs(args); text != "" {
		return text, nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(data), nil
}

// thresholdFlag parses an optional threshold; an empty value means the configured default.
func thresholdFlag(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid threshold %q: %w", s, err)
	}
	return &v, nil
}

func parseFormat(s string) cli.OutputFormat {
	format, err := cli.ParseOutputFormat(s)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	return format
}

func runSegment() {
	fs := flag.NewFlagSet("segment", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (for direct mode)")
	serverURL := fs.String("server", "", "server URL (empty = embed locally)")
	file := fs.String("file", "", "read the story from a .txt, .md, .pdf or .docx file")
	threshold := fs.String("threshold", "", "similarity threshold (default from config)")
	outputFormat := fs.String("output", "text", "output format: text, compact (one scene per line), or json")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: emaki segment [flags] [text]\n\nText is the remaining arguments, --file, or stdin.\n\n")
		fs.PrintDefaults()
	}
	_ = fs.Parse(argsReorder(os.Args[2:]))

	format := parseFormat(*outputFormat)
	th, err := thresholdFlag(*threshold)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	text, err := readInput(fs.Args(), *file, os.Stdin)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	req := &models.SegmentRequest{Text: text, Threshold: th}
	if err := req.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Nothing to segment: %v\n", err)
		os.Exit(1)
	}

	var resp *models.SegmentResponse
	if *serverURL != "" {
		resp = &models.SegmentResponse{}
		err = postJSON(*serverURL+"/api/v1/segment", req, http.StatusOK, resp)
	} else {
		resp, err = segmentLocally(*configPath, req)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Segment failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteScenes(os.Stdout, resp, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

// segmentLocally segments with the configured embedder only; storage and indices stay closed
// so that it works next to a running server.
func segmentLocally(configPath string, req *models.SegmentRequest) (*models.SegmentResponse, error) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		return nil, err
	}
	defer logger.Sync()

	embedder, err := newEmbedder(cfg, logger)
	if err != nil {
		return nil, err
	}
	defer embedder.Close()

	opts := []scene.SegmenterOption{}
	if cfg.Debug {
		opts = append(opts, scene.WithLogger(logger))
	}
	th := cfg.Segmentation.ThresholdOrDefault()
	if req.Threshold != nil {
		th = *req.Threshold
	}
	start := time.Now()
	scenes, err := scene.NewSegmenter(embedder, opts...).Split(context.Background(), req.Text, th)
	if err != nil {
		return nil, err
	}
	return &models.SegmentResponse{
		Sentences: len(scene.Tokenize(req.Text)),
		Scenes:    scenes,
		Threshold: th,
		TookMs:    time.Since(start).Milliseconds(),
	}, nil
}

func runGenerate() {
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	id := fs.String("id", "", "story id (default: derived from the file path, or a new uuid)")
	title := fs.String("title", "", "story title (default: file name)")
	style := fs.String("style", "", "image style, e.g. realistic, cartoon, watercolor (default from config)")
	threshold := fs.String("threshold", "", "similarity threshold (default from config)")
	skipImages := fs.Bool("skip-images", false, "segment and store scenes without generating images")
	outputFormat := fs.String("output", "text", "output format: text, compact, or json")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: emaki generate [flags] <file-or-directory | ->\n\nUse - to read the story from stdin.\n\n")
		fs.PrintDefaults()
	}
	_ = fs.Parse(argsReorder(os.Args[2:]))

	if fs.NArg() < 1 {
		fs.Usage()
		os.Exit(1)
	}
	format := parseFormat(*outputFormat)
	th, err := thresholdFlag(*threshold)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	input := &models.StoryInput{
		ID:         *id,
		Title:      *title,
		Style:      *style,
		Threshold:  th,
		SkipImages: *skipImages,
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger, cfg.Debug, !*skipImages)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	path := fs.Arg(0)
	var story *models.Story
	switch {
	case path == "-":
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Read stdin failed: %v\n", err)
			os.Exit(1)
		}
		input.Content = string(data)
		story, err = components.Pipeline.Run(ctx, input)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Storyboard failed: %v\n", err)
			os.Exit(1)
		}
	default:
		info, err := os.Stat(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to stat path: %v\n", err)
			os.Exit(1)
		}
		if info.IsDir() {
			n, err := components.Pipeline.RunDirectory(ctx, path, input)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Storyboard directory failed after %d stories: %v\n", n, err)
				os.Exit(1)
			}
			fmt.Printf("Built %d storyboard(s) from %s\n", n, path)
			return
		}
		if input.ID != "" {
			text, err := extract.NewExtractor().Extract(path)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Failed to read %s: %v\n", path, err)
				os.Exit(1)
			}
			input.Content = text
			if input.Title == "" {
				input.Title = filepath.Base(path)
			}
			story, err = components.Pipeline.Run(ctx, input)
		} else {
			story, err = components.Pipeline.RunFile(ctx, path, input)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Storyboard failed: %v\n", err)
			os.Exit(1)
		}
	}

	detail, err := components.Pipeline.Detail(ctx, story.ID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load story: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteStory(os.Stdout, detail, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

// resolveManifest returns the manifest path for target, which may be a manifest file,
// a storyboard directory or a story id below outputDir.
func resolveManifest(target, outputDir string) (string, error) {
	if info, err := os.Stat(target); err == nil {
		if info.IsDir() {
			return filepath.Join(target, storage.ManifestFile), nil
		}
		return target, nil
	}
	dir, err := storyboard.StoryDir(outputDir, target)
	if err != nil {
		return "", fmt.Errorf("%s is neither a storyboard path nor a story id: %w", target, err)
	}
	return filepath.Join(dir, storage.ManifestFile), nil
}

// readCommands sends a slideshow command for every recognised line of r until r is exhausted
// or ctx is done.
func readCommands(ctx context.Context, r io.Reader, out chan<- slideshow.Command) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		cmd, ok := slideshow.ParseCommand(scanner.Text())
		if !ok {
			continue
		}
		select {
		case out <- cmd:
		case <-ctx.Done():
			return
		}
		if cmd == slideshow.CommandQuit {
			return
		}
	}
}

func runShow() {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	interval := fs.Duration("interval", 0, "auto-advance interval (default from config)")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: emaki show [flags] <story-id | storyboard-dir | story.json>\n\n")
		fmt.Fprintf(fs.Output(), "Controls: enter/n = next, p = previous, s = pause/resume, q = quit\n\n")
		fs.PrintDefaults()
	}
	_ = fs.Parse(argsReorder(os.Args[2:]))
	if fs.NArg() < 1 {
		fs.Usage()
		os.Exit(1)
	}

	outputDir := ""
	every := *interval
	if cfg, _, err := loadConfig(*configPath); err == nil {
		outputDir = cfg.Storage.OutputDir
		if every <= 0 {
			every = cfg.Slideshow.Interval()
		}
	}
	manifestPath, err := resolveManifest(fs.Arg(0), outputDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load storyboard: %v\n", err)
		os.Exit(1)
	}
	session, err := slideshow.LoadSession(manifestPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load storyboard: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	commands := make(chan slideshow.Command)
	go readCommands(ctx, os.Stdin, commands)

	if err := slideshow.NewPlayer(os.Stdout, every).Run(ctx, session, commands); err != nil {
		fmt.Fprintf(os.Stderr, "Slideshow failed: %v\n", err)
		os.Exit(1)
	}
}

func runList() {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (for direct storage mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = open storage directly)")
	offset := fs.Int("offset", 0, "number of stories to skip")
	limit := fs.Int("limit", 20, "number of stories")
	outputFormat := fs.String("output", "text", "output format: text, compact, or json")
	_ = fs.Parse(os.Args[2:])
	format := parseFormat(*outputFormat)

	var page struct {
		Stories []*models.Story `json:"stories"`
		Total   int64           `json:"total"`
	}
	if *serverURL != "" {
		q := url.Values{}
		q.Set("offset", strconv.Itoa(*offset))
		q.Set("limit", strconv.Itoa(*limit))
		if err := getJSON(*serverURL+"/api/v1/stories?"+q.Encode(), &page); err != nil {
			fmt.Fprintf(os.Stderr, "List failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		store := openStorage(*configPath)
		defer store.Close()
		ctx := context.Background()
		var err error
		if page.Stories, err = store.ListStories(ctx, *offset, *limit); err == nil {
			page.Total, err = store.CountStories(ctx)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "List failed: %v\n", err)
			os.Exit(1)
		}
	}
	if err := cli.WriteStories(os.Stdout, page.Stories, page.Total, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

// openStorage opens only the SQLite store named by the config at path.
func openStorage(configPath string) *storage.SQLiteStorage {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open storage: %v\n", err)
		os.Exit(1)
	}
	return store
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (for direct storage mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = open storage directly)")
	limit := fs.Int("limit", 10, "number of results")
	fuzzy := fs.Bool("fuzzy", false, "enable fuzzy matching for typo tolerance")
	outputFormat := fs.String("output", "text", "output format: text, compact, or json")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: emaki search [flags] <query>\n\n")
		fs.PrintDefaults()
	}
	_ = fs.Parse(argsReorder(os.Args[2:]))

	query := joinArgs(fs.Args())
	if query == "" {
		fs.Usage()
		os.Exit(1)
	}
	format := parseFormat(*outputFormat)

	search := func(fuzzy bool) (*models.SceneSearchResponse, error) {
		q := url.Values{}
		q.Set("q", query)
		q.Set("limit", strconv.Itoa(*limit))
		q.Set("fuzzy", strconv.FormatBool(fuzzy))
		var resp models.SceneSearchResponse
		if err := getJSON(*serverURL+"/api/v1/scenes/search?"+q.Encode(), &resp); err != nil {
			return nil, err
		}
		return &resp, nil
	}
	if *serverURL == "" {
		cfg, _, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		logger, err := utils.NewLogger(cfg.Debug)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
			os.Exit(1)
		}
		defer logger.Sync()
		components, err := initializeComponents(cfg, logger, cfg.Debug, false)
		if err != nil {
			logger.Fatal("Failed to initialize", zap.Error(err))
		}
		defer components.Close()
		search = func(fuzzy bool) (*models.SceneSearchResponse, error) {
			return components.Pipeline.SearchScenes(context.Background(), query, *limit, fuzzy)
		}
	}

	resp, err := search(*fuzzy)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		os.Exit(1)
	}
	// Retry with fuzzy matching when an exact search finds nothing.
	if !*fuzzy && resp.Total == 0 {
		if fuzzyResp, err := search(true); err == nil && fuzzyResp.Total > 0 {
			resp = fuzzyResp
		}
	}
	if err := cli.WriteSceneSearch(os.Stdout, resp, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runDelete() {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (for direct storage mode)")
	serverURL := fs.String("server", "", "server URL (empty = open storage directly)")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: emaki delete [flags] <story-id>")
		os.Exit(1)
	}
	storyID := fs.Arg(0)

	if *serverURL != "" {
		if err := deleteViaHTTP(*serverURL, storyID); err != nil {
			fmt.Printf("Deletion failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Story deleted: %s\n", storyID)
		return
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger, cfg.Debug, false)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	if err := components.Pipeline.DeleteStory(context.Background(), storyID); err != nil {
		fmt.Printf("Deletion failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Story deleted: %s\n", storyID)
}

// statusResponse is the shape of the GET /api/v1/status response.
type statusResponse struct {
	Stories          int64                  `json:"stories"`
	Scenes           int64                  `json:"scenes"`
	IndexedScenes    *uint64                `json:"indexed_scenes,omitempty"`
	DiskUsageBytes   *int64                 `json:"disk_usage_bytes,omitempty"`
	WatchDirectories []string               `json:"watch_directories,omitempty"`
	Config           map[string]interface{} `json:"config,omitempty"`
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (for direct storage mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = open storage directly)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	var status statusResponse
	if *serverURL != "" {
		if err := getJSON(*serverURL+"/api/v1/status", &status); err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		cfg, _, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open storage: %v\n", err)
			os.Exit(1)
		}
		defer store.Close()
		ctx := context.Background()
		if status.Stories, err = store.CountStories(ctx); err == nil {
			status.Scenes, err = store.CountScenes(ctx)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Count failed: %v\n", err)
			os.Exit(1)
		}
		status.Config = map[string]interface{}{
			"embedding_provider": cfg.Embedding.Provider,
			"image_provider":     cfg.Image.Provider,
			"image_style":        cfg.Image.Style,
			"threshold":          cfg.Segmentation.ThresholdOrDefault(),
			"database_path":      cfg.Storage.DatabasePath,
			"bleve_index_path":   cfg.Storage.BleveIndexPath,
			"output_dir":         cfg.Storage.OutputDir,
		}
		if diskBytes, err := storage.DiskUsageBytes(cfg.Storage.DatabasePath, cfg.Storage.BleveIndexPath, cfg.Storage.OutputDir); err == nil {
			status.DiskUsageBytes = &diskBytes
		}
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(status); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		writeStatusText(os.Stdout, &status)
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

func writeStatusText(w io.Writer, status *statusResponse) {
	fmt.Fprintf(w, "stories:            %d   # count of storyboards\n", status.Stories)
	fmt.Fprintf(w, "scenes:             %d   # count of scenes across all stories\n", status.Scenes)
	if status.IndexedScenes != nil {
		fmt.Fprintf(w, "indexed_scenes:     %d   # scenes in the keyword index\n", *status.IndexedScenes)
	}
	if status.DiskUsageBytes != nil {
		fmt.Fprintf(w, "disk_usage_bytes:   %d   # database, index and images on disk\n", *status.DiskUsageBytes)
	}
	for _, d := range status.WatchDirectories {
		fmt.Fprintf(w, "watching:           %s\n", d)
	}
	if len(status.Config) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "# configuration")
		for _, key := range []string{"embedding_provider", "embedding_dimensions", "image_provider", "image_model", "image_style", "threshold", "database_path", "bleve_index_path", "output_dir"} {
			if v, ok := status.Config[key]; ok && v != "" {
				fmt.Fprintf(w, "%-20s%v\n", key+":", v)
			}
		}
	}
}

func apiClient() *http.Client {
	return utils.NewRetryClient(2*time.Minute, 1, nil).StandardClient()
}

func getJSON(target string, out interface{}) error {
	resp, err := apiClient().Get(target)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	return decodeResponse(resp, http.StatusOK, out)
}

func postJSON(target string, body interface{}, want int, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := apiClient().Post(target, "application/json", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	return decodeResponse(resp, want, out)
}

func deleteViaHTTP(serverURL, id string) error {
	req, err := http.NewRequest(http.MethodDelete, serverURL+"/api/v1/stories/"+url.PathEscape(id), nil)
	if err != nil {
		return err
	}
	resp, err := apiClient().Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	return decodeResponse(resp, http.StatusOK, nil)
}

func decodeResponse(resp *http.Response, want int, out interface{}) error {
	if resp.StatusCode != want {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Components holds initialized services.
type Components struct {
	Storage    storage.Storage
	Embedder   embedding.Embedder
	SceneIndex *keyword.SceneIndex
	Generator  imagegen.Generator
	Pipeline   *storyboard.Pipeline
}

func (c *Components) Close() {
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.SceneIndex != nil {
		_ = c.SceneIndex.Close()
	}
}

// newEmbedder creates the configured embedder. An ONNX model that cannot be loaded falls back
// to the mock embedder so that the rest of the tool stays usable.
func newEmbedder(cfg *config.Config, logger *zap.Logger) (embedding.Embedder, error) {
	embedder, err := embedding.New(&cfg.Embedding, logger)
	if err == nil {
		return embedder, nil
	}
	if cfg.Embedding.Provider != config.EmbeddingProviderONNX {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	logger.Warn("ONNX embedder unavailable, falling back to mock embeddings", zap.String("model_path", cfg.Embedding.ModelPath), zap.Error(err))
	return embedding.NewMockEmbedder(cfg.Embedding.Dimensions), nil
}

// initializeComponents opens storage and the scene index and builds the pipeline. When
// withImages is false the placeholder generator is used, so no image API key is required.
func initializeComponents(cfg *config.Config, logger *zap.Logger, debug, withImages bool) (*Components, error) {
	c := &Components{}
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	c.Storage = store

	c.Embedder, err = newEmbedder(cfg, logger)
	if err != nil {
		c.Close()
		return nil, err
	}

	c.SceneIndex, err = keyword.NewSceneIndex(cfg.Storage.BleveIndexPath)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize scene index: %w", err)
	}

	if withImages {
		c.Generator, err = imagegen.New(&cfg.Image, logger)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to initialize image generator: %w", err)
		}
	} else {
		c.Generator = imagegen.NewPlaceholderGenerator(cfg.Image.Width, cfg.Image.Height)
	}

	opts := []storyboard.Option{}
	if debug {
		opts = append(opts, storyboard.WithLogger(logger))
	}
	c.Pipeline = storyboard.NewPipeline(c.Storage, c.Embedder, c.Generator, c.SceneIndex, cfg, opts...)
	logger.Info("components initialized",
		zap.String("embedding_provider", cfg.Embedding.Provider),
		zap.String("image_provider", cfg.Image.Provider),
		zap.Bool("images", withImages))
	return c, nil
}

func printUsage() {
	fmt.Println(`emaki - Turn stories into illustrated storyboards

Usage:
  emaki server [flags]                   Start the HTTP server (and inbox watcher)
  emaki segment [flags] [text]           Split text into scenes
  emaki generate [flags] <file|dir|->    Build storyboards (scenes + images + story.json)
  emaki show [flags] <story>             Play a storyboard as a terminal slideshow
  emaki list [flags]                     List stories
  emaki search [flags] <query>           Search scene text
  emaki delete [flags] <id>              Delete a story and its storyboard
  emaki status [flags]                   Show storage/index status
  emaki config init [--path] [--force]   Write a config file with all defaults
  emaki version                          Show version
  emaki help                             Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/emaki/config.yaml)
  --debug            Enable debug logging

Segment Flags:
  --server string     Server URL. Empty (default) embeds locally.
  --file string       Read the story from a file instead of arguments or stdin
  --threshold float   Similarity threshold (default from config, 0.7)
  --output string     text, compact or json (default: text)

Generate Flags:
  --id, --title, --style, --threshold   Story settings
  --skip-images                         Store scenes without generating images
  --output string                       text, compact or json (default: text)

List / Search / Status Flags:
  --server string    Server URL (default: http://localhost:8090). Use --server "" for direct storage.
  --output string    Output format

Examples:
  emaki server
  emaki segment "The knight rode north. He reached the castle. A dragon slept."
  emaki segment --threshold 0.5 --file chapter1.txt
  emaki generate --style watercolor chapter1.txt
  emaki generate --skip-images ./stories/
  cat tale.txt | emaki generate --title "A Tale" -
  emaki show <story-id>
  emaki search --fuzzy dragn
  emaki status --output json`)
}
