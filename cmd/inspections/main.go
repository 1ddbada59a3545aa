package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aluiziolira/go-scrape-inspections/cache"
	"github.com/aluiziolira/go-scrape-inspections/config"
	"github.com/aluiziolira/go-scrape-inspections/geocode"
	"github.com/aluiziolira/go-scrape-inspections/models"
	"github.com/aluiziolira/go-scrape-inspections/parser"
	"github.com/aluiziolira/go-scrape-inspections/pipeline"
	"github.com/aluiziolira/go-scrape-inspections/scraper"
)

func main() {
	if err := config.LoadEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}

	cfg, err := parseConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}

	logger, level := newLogger(cfg.Verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("run failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func parseConfig(args []string) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	fs := flag.NewFlagSet("inspections", flag.ContinueOnError)
	fs.IntVar(&cfg.Limit, "limit", cfg.Limit, "Maximum listings to process (0 = all)")
	fs.StringVar(&cfg.Params.ZipCode, "zip", cfg.Params.ZipCode, "Zip code to search")
	fs.StringVar(&cfg.Params.City, "city", cfg.Params.City, "City to search")
	fs.StringVar(&cfg.Params.BusinessName, "name", cfg.Params.BusinessName, "Business name to search")
	fs.StringVar(&cfg.Params.InspectionStart, "start", cfg.Params.InspectionStart, "Inspection start date (M/D/YYYY)")
	fs.StringVar(&cfg.Params.InspectionEnd, "end", cfg.Params.InspectionEnd, "Inspection end date (M/D/YYYY)")
	fs.Func("param", "Override a search parameter as Name=Value (repeatable)", func(s string) error {
		name, value, ok := strings.Cut(s, "=")
		if !ok {
			return fmt.Errorf("expected Name=Value, got %q", s)
		}
		return cfg.Params.Set(name, value)
	})
	fs.BoolVar(&cfg.UseCache, "cached", cfg.UseCache, "Read the cached results page instead of fetching")
	fs.StringVar(&cfg.CacheFile, "cache-file", cfg.CacheFile, "Path of the cached results page (empty disables caching)")
	timeoutSec := fs.Int("timeout", int(cfg.Timeout/time.Second), "Request timeout (seconds)")
	fs.IntVar(&cfg.MaxRetries, "max-retries", cfg.MaxRetries, "Maximum retry attempts for the search page")
	fs.BoolVar(&cfg.Geocode, "geocode", cfg.Geocode, "Geocode record addresses")
	fs.StringVar(&cfg.GeocodeAPIKey, "geocode-key", cfg.GeocodeAPIKey, "Geocoding API key")
	fs.Float64Var(&cfg.GeocodeRPS, "geocode-rps", cfg.GeocodeRPS, "Geocoding requests per second")
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "Extraction and pipeline workers (1 streams listings and keeps document order)")
	fs.StringVar(&cfg.OutputFile, "output", cfg.OutputFile, "Output file path")
	format := fs.String("format", cfg.OutputFormat, "Output format: csv, json, geojson, or dual")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Prometheus metrics listen address (e.g. :9090)")
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Enable verbose logging")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	cfg.Timeout = time.Duration(*timeoutSec) * time.Second
	cfg.OutputFormat = strings.ToLower(*format)
	return cfg, nil
}

func applyEnv(cfg *config.Config) error {
	if value, ok, err := config.EnvInt("INSPECTIONS_LIMIT"); err != nil {
		return fmt.Errorf("invalid INSPECTIONS_LIMIT: %w", err)
	} else if ok {
		cfg.Limit = value
	}
	if value, ok, err := config.EnvInt("INSPECTIONS_WORKERS"); err != nil {
		return fmt.Errorf("invalid INSPECTIONS_WORKERS: %w", err)
	} else if ok {
		cfg.Workers = value
	}
	if value, ok, err := config.EnvBool("INSPECTIONS_GEOCODE"); err != nil {
		return fmt.Errorf("invalid INSPECTIONS_GEOCODE: %w", err)
	} else if ok {
		cfg.Geocode = value
	}
	if value, ok, err := config.EnvFloat("INSPECTIONS_GEOCODE_RPS"); err != nil {
		return fmt.Errorf("invalid INSPECTIONS_GEOCODE_RPS: %w", err)
	} else if ok {
		cfg.GeocodeRPS = value
	}
	if value, ok := config.EnvString("INSPECTIONS_GEOCODE_API_KEY"); ok {
		cfg.GeocodeAPIKey = value
	}
	if value, ok := config.EnvString("INSPECTIONS_BASE_URL"); ok {
		cfg.BaseURL = value
	}
	if value, ok := config.EnvString("INSPECTIONS_CACHE_FILE"); ok {
		cfg.CacheFile = value
	}
	if value, ok := config.EnvString("INSPECTIONS_OUTPUT"); ok {
		cfg.OutputFile = value
	}
	if value, ok := config.EnvString("INSPECTIONS_METRICS_ADDR"); ok {
		cfg.MetricsAddr = value
	}
	return nil
}

func run(ctx context.Context, cfg *config.Config) error {
	metrics := scraper.NewMetrics()
	metricsServer := startMetricsServer(cfg.MetricsAddr, metrics)
	defer shutdownMetricsServer(metricsServer)

	result := &models.RunResult{StartTime: time.Now()}

	page, err := loadPage(ctx, cfg, metrics, result)
	if err != nil {
		return err
	}
	result.Source = page.URL

	doc, err := parser.LoadDocument(page.Body, page.Encoding)
	if err != nil {
		return err
	}

	writer, err := createWriter(cfg.OutputFormat, cfg.OutputFile)
	if err != nil {
		return fmt.Errorf("creating writer: %w", err)
	}
	defer func() {
		if err := writer.Close(); err != nil {
			slog.Error("close writer", slog.Any("error", err))
		}
	}()

	var opts []pipeline.Option
	if cfg.Geocode {
		geocoder, err := geocode.NewClient(cfg.GeocodeURL,
			geocode.WithAPIKey(cfg.GeocodeAPIKey),
			geocode.WithRate(cfg.GeocodeRPS),
			geocode.WithCacheSize(cfg.GeocodeCacheSize),
		)
		if err != nil {
			return err
		}
		opts = append(opts, pipeline.WithGeocoder(geocoder), pipeline.WithObserver(metrics))
	}

	p := pipeline.NewPipeline(ctx, writer, cfg, opts...)
	p.Start(cfg.Workers)
	if cfg.Verbose {
		p.StartMetricsReporting(10 * time.Second)
	}

	extractor := parser.NewExtractor(parser.WithLimit(cfg.Limit))
	result.ListingCount = len(extractor.Listings(doc))
	metrics.AddListings(result.ListingCount)
	slog.Info("listings located",
		slog.Int("listings", result.ListingCount),
		slog.String("source", result.Source),
	)

	for rec, err := range extractRecords(ctx, extractor, doc, cfg.Workers) {
		if err != nil {
			var le *parser.ListingError
			if !errors.As(err, &le) {
				return fmt.Errorf("extract listings: %w", err)
			}
			result.FailedIDs = append(result.FailedIDs, le.ID)
			result.ListingErrors++
			metrics.IncListingError()
			slog.Warn("listing skipped", slog.Any("error", err))
			continue
		}
		metrics.ObserveRecord(rec.Summary.SampleCount)
		result.RecordCount++
		if err := p.Process(rec); err != nil {
			if errors.Is(err, pipeline.ErrPipelineClosed) || errors.Is(err, context.Canceled) {
				slog.Info("stopping extraction", slog.Any("reason", err))
				break
			}
			return fmt.Errorf("pipeline process: %w", err)
		}
	}

	if err := p.Close(); err != nil {
		return fmt.Errorf("pipeline shutdown: %w", err)
	}
	if err := writer.Validate(); err != nil {
		return fmt.Errorf("output validation: %w", err)
	}

	result.EndTime = time.Now()
	printSummary(result, p.GetMetrics(), cfg.OutputFile)
	return nil
}

// extractRecords streams records one listing at a time for a single worker.
// With more workers the listings are extracted in parallel first; records come
// out in document order followed by the listing failures.
func extractRecords(ctx context.Context, e *parser.Extractor, doc *goquery.Document, workers int) iter.Seq2[*models.Record, error] {
	if workers <= 1 {
		return e.Records(doc)
	}
	return func(yield func(*models.Record, error) bool) {
		records, err := e.Collect(ctx, doc, workers)
		for _, rec := range records {
			if !yield(rec, nil) {
				return
			}
		}
		if err == nil {
			return
		}
		if joined, ok := err.(interface{ Unwrap() []error }); ok {
			for _, failure := range joined.Unwrap() {
				if !yield(nil, failure) {
					return
				}
			}
			return
		}
		yield(nil, err)
	}
}

func loadPage(ctx context.Context, cfg *config.Config, metrics *scraper.Metrics, result *models.RunResult) (*models.Page, error) {
	var store *cache.FileStore
	if cfg.CacheFile != "" {
		store = cache.NewFileStore(cfg.CacheFile)
	}

	if cfg.UseCache {
		page, err := store.Load()
		if err != nil {
			return nil, fmt.Errorf("load cached page: %w", err)
		}
		slog.Info("using cached results page", slog.String("path", store.Path()))
		return page, nil
	}

	fetcher, err := scraper.NewFetcher(cfg, metrics)
	if err != nil {
		return nil, fmt.Errorf("initialising fetcher: %w", err)
	}
	slog.Info("fetching results page", slog.String("url", fetcher.SearchURL(cfg.Params)))

	page, err := fetcher.Fetch(ctx, cfg.Params)
	result.RequestCount, _, result.RetryCount = fetcher.Stats()
	if err != nil {
		return nil, err
	}

	if store != nil {
		if err := store.Save(page); err != nil {
			slog.Warn("caching results page failed", slog.Any("error", err))
		}
	}
	return page, nil
}

func createWriter(format, filename string) (pipeline.OutputWriter, error) {
	switch format {
	case "json":
		return pipeline.NewJSONWriter(filename)
	case "csv":
		return pipeline.NewCSVWriter(filename)
	case "geojson":
		return pipeline.NewGeoJSONWriter(filename)
	case "dual":
		jsonFilename := strings.TrimSuffix(filename, ".csv") + ".jsonl"
		return pipeline.NewDualWriter(filename, jsonFilename)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

func startMetricsServer(addr string, metrics *scraper.Metrics) *http.Server {
	if addr == "" || metrics == nil {
		return nil
	}
	server := &http.Server{
		Addr:    addr,
		Handler: promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", slog.Any("error", err))
		}
	}()
	slog.Info("metrics server enabled", slog.String("addr", addr))
	return server
}

func shutdownMetricsServer(server *http.Server) {
	if server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("metrics server shutdown failed", slog.Any("error", err))
	}
}

func printSummary(result *models.RunResult, metrics map[string]interface{}, outputFile string) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Extraction complete")

	written := int64(0)
	if processed, ok := metrics["processed_records"].(int64); ok {
		written = processed
	}

	fmt.Printf("  Source:          %s\n", result.Source)
	fmt.Printf("  Listings:        %d\n", result.ListingCount)
	fmt.Printf("  Records:         %d\n", result.RecordCount)
	fmt.Printf("  Written:         %d\n", written)
	fmt.Printf("  Listing errors:  %d\n", result.ListingErrors)
	if len(result.FailedIDs) > 0 {
		fmt.Printf("  Failed listings: %v\n", result.FailedIDs)
	}
	if result.RequestCount > 0 {
		fmt.Printf("  Requests:        %d (retries %d)\n", result.RequestCount, result.RetryCount)
	}
	if valErrors, ok := metrics["validation_errors"].(map[string]int); ok && len(valErrors) > 0 {
		fmt.Printf("  Skipped:         %v\n", valErrors)
	}
	fmt.Printf("  Duration:        %v\n", result.EndTime.Sub(result.StartTime))
	fmt.Printf("  Output file:     %s\n", outputFile)
	fmt.Println(separator)
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stderr) {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
