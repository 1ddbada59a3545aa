package config

import (
	"fmt"
	"net/url"
	"time"
)

// Config holds scraper configuration.
type Config struct {
	BaseURL         string
	SearchPath      string
	Params          SearchParams
	Limit           int
	Timeout         time.Duration
	MaxRetries      int
	RetryBackoff    time.Duration
	RetryBackoffMax time.Duration
	UserAgent       string

	CacheFile string
	UseCache  bool

	Geocode          bool
	GeocodeURL       string
	GeocodeAPIKey    string
	GeocodeRPS       float64
	GeocodeCacheSize int

	Workers            int
	PipelineBufferSize int
	BatchSize          int
	DedupeMaxSize      int
	OutputFile         string
	OutputFormat       string // csv, json, geojson, or dual
	MetricsAddr        string
	Verbose            bool
}

// DefaultConfig returns conservative defaults for the King County search.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:            "http://info.kingcounty.gov",
		SearchPath:         "/health/ehs/foodsafety/inspections/Results.aspx",
		Params:             DefaultSearchParams(),
		Limit:              0,
		Timeout:            30 * time.Second,
		MaxRetries:         2,
		RetryBackoff:       500 * time.Millisecond,
		RetryBackoffMax:    5 * time.Second,
		UserAgent:          "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		CacheFile:          "search_results.html",
		UseCache:           false,
		Geocode:            false,
		GeocodeURL:         "https://maps.googleapis.com/maps/api/geocode/json",
		GeocodeRPS:         5,
		GeocodeCacheSize:   1024,
		Workers:            1,
		PipelineBufferSize: 256,
		BatchSize:          32,
		DedupeMaxSize:      10000,
		OutputFile:         "output/inspections.csv",
		OutputFormat:       "csv",
		MetricsAddr:        "",
		Verbose:            false,
	}
}

// SearchURL returns the absolute URL of the results page without a query.
func (c *Config) SearchURL() string {
	return c.BaseURL + c.SearchPath
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}

	if c.Limit < 0 {
		return fmt.Errorf("limit cannot be negative")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RetryBackoffMax < 0 {
		return fmt.Errorf("retry backoff max cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.UseCache && c.CacheFile == "" {
		return fmt.Errorf("cache file cannot be empty when reading from cache")
	}

	if c.Geocode {
		if c.GeocodeURL == "" {
			return fmt.Errorf("geocode URL cannot be empty")
		}
		if c.GeocodeRPS <= 0 {
			return fmt.Errorf("geocode rps must be positive")
		}
		if c.GeocodeCacheSize <= 0 {
			return fmt.Errorf("geocode cache size must be positive")
		}
	}

	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}
	if c.PipelineBufferSize <= 0 {
		return fmt.Errorf("pipeline buffer size must be positive")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.DedupeMaxSize <= 0 {
		return fmt.Errorf("dedupe max size must be positive")
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}
	switch c.OutputFormat {
	case "csv", "json", "geojson", "dual":
	default:
		return fmt.Errorf("output format must be csv, json, geojson, or dual")
	}

	return nil
}
