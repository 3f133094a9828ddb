package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"sjsage522/srpauditor/config"
	"sjsage522/srpauditor/helpers"
	"sjsage522/srpauditor/internal"
	"sjsage522/srpauditor/internal/classify"
	"sjsage522/srpauditor/internal/csvio"
	"sjsage522/srpauditor/internal/dom"
	"sjsage522/srpauditor/internal/processor"
	"sjsage522/srpauditor/internal/selector"
	"sjsage522/srpauditor/internal/traverse"
	"sjsage522/srpauditor/logger"
	apperrors "sjsage522/srpauditor/pkg/errors"
	"sjsage522/srpauditor/services/publisher"
	"sjsage522/srpauditor/services/store"
	"sjsage522/srpauditor/services/worker"

	"github.com/joho/godotenv"
)

const usage = `usage:
  srpauditor scan -url URL[,URL...] -mode reconcile|placeholder|small-image|export [-csv FILE] [-key COLUMN] [-fields a,b] [-map COL=key,...]
  srpauditor selectors set -domain DOMAIN -file FILE.json
  srpauditor selectors show -domain DOMAIN
  srpauditor cache clear|enable|disable|status
  srpauditor keys set -provider ocr|openai -value KEY`

func main() {
	// Load environment variables
	godotenv.Load()

	// Initialize logger first
	logger.Init()
	log := logger.Default

	// Load and validate configuration
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	// Set up context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigChan:
			log.Info().
				Str("signal", sig.String()).
				Msg("Received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := run(ctx, cfg, os.Args[1:], os.Stdout); err != nil {
		if apperrors.IsTraversalTimeout(err) {
			log.Warn().Err(err).Msg("Scan stopped early; partial reports were written")
			os.Exit(2)
		}
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}

// run dispatches one CLI command
func run(ctx context.Context, cfg *config.Config, args []string, stdout io.Writer) error {
	if len(args) == 0 {
		return errors.New(usage)
	}

	deps, err := initializeServices(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.Warn("Failed to close services: %v", err)
		}
	}()

	switch args[0] {
	case "scan":
		return runScan(ctx, cfg, deps, args[1:], stdout)
	case "selectors":
		return runSelectors(ctx, deps, args[1:], stdout)
	case "cache":
		return runCache(ctx, deps, args[1:], stdout)
	case "keys":
		return runKeys(ctx, deps, args[1:], stdout)
	default:
		return errors.New(usage)
	}
}

// initializeServices initializes all required services
func initializeServices(ctx context.Context, cfg *config.Config) (*internal.Dependencies, error) {
	s, err := newStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	deps := &internal.Dependencies{
		Store:       s,
		Registry:    selector.NewRegistry(s),
		ImageCache:  classify.NewCache(s, classify.Policy(cfg.ImageCachePolicy)),
		Diagnostics: helpers.NewLogger(cfg.ErrorLogFile),
	}
	if err := deps.ImageCache.Load(ctx); err != nil {
		logger.Warn("Image cache unavailable, classifying every image: %v", err)
	}

	if cfg.ReportPublish {
		p := publisher.NewRedisPublisher(cfg.RedisAddr, cfg.RedisDB, cfg.RedisStream, cfg.RedisStreamMaxLength)
		if err := p.Ping(ctx); err != nil {
			p.Close()
			deps.Close()
			return nil, apperrors.NewPublisher("failed to connect to redis at "+cfg.RedisAddr, err)
		}
		deps.Publisher = p
		logger.Info("Publishing reports to Redis at %s (DB: %d, Stream: %s)",
			cfg.RedisAddr, cfg.RedisDB, cfg.RedisStream)
	}

	return deps, nil
}

// newStore opens the configured store backend
func newStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.StoreBackend {
	case "memory":
		return store.NewMemoryStore(), nil
	case "file":
		return store.NewFileStore(cfg.StoreFile)
	case "sqlite":
		return store.NewSQLiteStore(ctx, cfg.SQLitePath)
	case "redis":
		r := store.NewRedisStore(cfg.RedisAddr, cfg.RedisDB)
		if err := r.Ping(ctx); err != nil {
			r.Close()
			return nil, apperrors.NewStore("failed to connect to redis at "+cfg.RedisAddr, err)
		}
		logger.Info("Connected to Redis store at %s (DB: %d)", cfg.RedisAddr, cfg.RedisDB)
		return r, nil
	case "memcache":
		logger.Info("Using Memcache store at %s", cfg.MemcacheAddr)
		return store.NewMemcacheService(cfg.MemcacheAddr), nil
	default:
		return nil, apperrors.NewConfiguration("unknown store backend "+cfg.StoreBackend, nil)
	}
}

// newClassifier builds the configured remote image classifier. Keys come
// from the environment first, then from the store.
func newClassifier(ctx context.Context, cfg *config.Config, s store.Store) (classify.Classifier, error) {
	if cfg.ClassifierProvider == "openai" {
		key, err := classify.ResolveAPIKey(ctx, s, "openai", cfg.OpenAIAPIKey)
		if err != nil {
			return nil, err
		}
		return classify.NewVisionClassifier(key, cfg.OpenAIAPIURL, cfg.OpenAIModel, helpers.Client()), nil
	}
	key, err := classify.ResolveAPIKey(ctx, s, "ocr", cfg.OCRAPIKey)
	if err != nil {
		return nil, err
	}
	return classify.NewOCRClassifier(key, cfg.OCRAPIURL, helpers.Client()), nil
}

func runScan(ctx context.Context, cfg *config.Config, deps *internal.Dependencies, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("scan", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	urls := fs.String("url", "", "listing page URL, comma separated for several")
	modeName := fs.String("mode", "", "reconcile, placeholder, small-image or export")
	csvPath := fs.String("csv", "", "pipe-delimited feed for reconcile")
	keyColumn := fs.String("key", "", "primary key column of the feed")
	fields := fs.String("fields", "", "export fields, comma separated")
	fieldMap := fs.String("map", "", "feed column to selector key pairs, COL=key,...")
	threshold := fs.Int("threshold", cfg.SmallImageKB, "small image threshold in KB")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w\n%s", err, usage)
	}

	targets := splitList(*urls)
	if len(targets) == 0 {
		return apperrors.NewConfiguration("-url is required", nil)
	}

	mode, err := buildMode(*modeName, *csvPath, *keyColumn, *fields, *fieldMap, *threshold)
	if err != nil {
		return err
	}
	revisit, err := processor.ParseRevisit(cfg.ImageRevisit)
	if err != nil {
		return err
	}

	classifier, err := newClassifier(ctx, cfg, deps.Store)
	if err != nil {
		return err
	}

	jobs := make([]worker.Job, 0, len(targets))
	for _, u := range targets {
		jobs = append(jobs, worker.Job{URL: u, Mode: mode})
	}

	w := worker.NewWorker(worker.Options{
		Registry: deps.Registry,
		Detector: classify.NewDetector(classifier, helpers.ContentLength, deps.ImageCache, classify.DetectorOptions{
			Timeout:       cfg.ClassifierTimeout,
			RatePerMinute: cfg.ClassifierRatePerMinute,
		}),
		Sizer: classify.NewSizeChecker(helpers.ContentLength),
		OpenPage: func(ctx context.Context, url string) (dom.Page, error) {
			return dom.Open(ctx, url, dom.Options{
				Driver:      cfg.BrowserDriver,
				Headless:    cfg.BrowserHeadless,
				ChromeWSURL: cfg.ChromeWSURL,
				Timeout:     cfg.PageTimeout,
			})
		},
		Publisher: deps.Publisher,
		Logger:    deps.Diagnostics,
		Traverse: traverse.Options{
			SettleDelay:   cfg.SettleDelay,
			MaxIterations: cfg.MaxIterations,
			MaxElapsed:    cfg.MaxElapsed,
		},
		Revisit:      revisit,
		AnnotateTick: cfg.AnnotateTick,
		ReportDir:    cfg.ReportDir,
	})

	summaries, err := w.Run(ctx, jobs)
	for _, s := range summaries {
		switch {
		case s.ReportPath != "":
			fmt.Fprintf(stdout, "%s %s: %d rows -> %s\n", s.Site, s.Mode, s.Rows, s.ReportPath)
		case s.NoData:
			fmt.Fprintf(stdout, "%s %s: %s\n", s.Site, s.Mode, csvio.ErrNoData)
		}
	}
	return err
}

// buildMode turns the scan flags into a processing mode
func buildMode(name, csvPath, keyColumn, fields, fieldMap string, thresholdKB int) (processor.Mode, error) {
	switch name {
	case "reconcile":
		if csvPath == "" {
			return nil, apperrors.NewConfiguration("reconcile needs -csv", nil)
		}
		f, err := os.Open(csvPath)
		if err != nil {
			return nil, apperrors.NewConfiguration("failed to open feed "+csvPath, err)
		}
		defer f.Close()

		feed, err := csvio.ParseFeed(f, keyColumn)
		if err != nil {
			return nil, err
		}
		mapping, err := parseFieldMap(fieldMap)
		if err != nil {
			return nil, err
		}
		logger.Info("Loaded %d feed rows from %s", feed.Len(), csvPath)
		return processor.Reconcile{Feed: feed, FieldMap: mapping}, nil
	case "placeholder":
		return processor.Placeholder{}, nil
	case "small-image":
		return processor.SmallImage{ThresholdKB: thresholdKB}, nil
	case "export":
		return processor.Export{Fields: splitList(fields)}, nil
	default:
		return nil, apperrors.NewConfiguration(fmt.Sprintf("unknown mode %q", name), nil)
	}
}

// parseFieldMap reads COL=key pairs
func parseFieldMap(raw string) (map[string]string, error) {
	pairs := splitList(raw)
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		col, key, ok := strings.Cut(pair, "=")
		col, key = strings.TrimSpace(col), strings.TrimSpace(key)
		if !ok || col == "" || key == "" {
			return nil, apperrors.NewConfiguration(fmt.Sprintf("invalid field mapping %q", pair), nil)
		}
		out[col] = key
	}
	return out, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func runSelectors(ctx context.Context, deps *internal.Dependencies, args []string, stdout io.Writer) error {
	if len(args) == 0 {
		return errors.New(usage)
	}
	fs := flag.NewFlagSet("selectors", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	domain := fs.String("domain", "", "dealer domain or global")
	file := fs.String("file", "", "JSON object of selector key to CSS selector")
	if err := fs.Parse(args[1:]); err != nil {
		return fmt.Errorf("%w\n%s", err, usage)
	}
	if *domain == "" {
		return apperrors.NewConfiguration("-domain is required", nil)
	}

	switch args[0] {
	case "set":
		data, err := os.ReadFile(*file)
		if err != nil {
			return apperrors.NewConfiguration("failed to read "+*file, err)
		}
		var cfg selector.Config
		if err := json.Unmarshal(data, &cfg); err != nil {
			return apperrors.NewConfiguration("selector file must be a JSON object of strings", err)
		}
		if err := deps.Registry.Save(ctx, *domain, cfg); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "saved %d selectors for %s\n", len(cfg), selector.NormalizeHost(*domain))
		return nil
	case "show":
		cfg, err := deps.Registry.Resolve(ctx, *domain)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(cfg)
	default:
		return errors.New(usage)
	}
}

func runCache(ctx context.Context, deps *internal.Dependencies, args []string, stdout io.Writer) error {
	if len(args) != 1 {
		return errors.New(usage)
	}
	c := deps.ImageCache

	switch args[0] {
	case "clear":
		if err := c.Clear(ctx); err != nil {
			return err
		}
		fmt.Fprintln(stdout, "image cache cleared")
	case "enable", "disable":
		if err := c.SetEnabled(ctx, args[0] == "enable"); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "image cache %sd\n", args[0])
	case "status":
		state := "disabled"
		if c.Enabled() {
			state = "enabled"
		}
		fmt.Fprintf(stdout, "image cache %s, %d entries\n", state, c.Len())
	default:
		return errors.New(usage)
	}
	return nil
}

func runKeys(ctx context.Context, deps *internal.Dependencies, args []string, stdout io.Writer) error {
	if len(args) == 0 || args[0] != "set" {
		return errors.New(usage)
	}
	fs := flag.NewFlagSet("keys", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	provider := fs.String("provider", "", "ocr or openai")
	value := fs.String("value", "", "API key; empty removes the stored key")
	if err := fs.Parse(args[1:]); err != nil {
		return fmt.Errorf("%w\n%s", err, usage)
	}
	if *provider != "ocr" && *provider != "openai" {
		return apperrors.NewConfiguration("-provider must be ocr or openai", nil)
	}

	if err := classify.SaveAPIKey(ctx, deps.Store, *provider, *value); err != nil {
		return err
	}
	if *value == "" {
		fmt.Fprintf(stdout, "%s api key removed\n", *provider)
	} else {
		fmt.Fprintf(stdout, "%s api key saved\n", *provider)
	}
	return nil
}
