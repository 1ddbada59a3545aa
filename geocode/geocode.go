// Package geocode resolves record addresses to coordinates through the
// Google Geocoding JSON API.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"github.com/aluiziolira/go-scrape-inspections/models"
)

// DefaultTimeout is the default timeout for one lookup.
const DefaultTimeout = 10 * time.Second

var (
	// ErrNotFound is returned when the provider has no match for an address.
	ErrNotFound = errors.New("geocode: address not found")
	// ErrEmptyAddress is returned without issuing a request.
	ErrEmptyAddress = errors.New("geocode: empty address")
)

type cached struct {
	loc   *models.Location
	found bool
}

// Client looks up addresses, pacing requests and caching answers,
// including negative ones.
type Client struct {
	endpoint  string
	apiKey    string
	client    *http.Client
	limiter   *rate.Limiter
	cacheSize int
	cache     *lru.Cache[string, cached]
}

// Option configures a Client.
type Option func(*Client)

// WithAPIKey sets the provider API key.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.client = hc
	}
}

// WithRate limits lookups to rps requests per second with no bursting.
func WithRate(rps float64) Option {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithCacheSize sets how many addresses are remembered.
func WithCacheSize(n int) Option {
	return func(c *Client) {
		c.cacheSize = n
	}
}

// NewClient creates a Client for the given endpoint.
func NewClient(endpoint string, opts ...Option) (*Client, error) {
	c := &Client{
		endpoint:  endpoint,
		client:    &http.Client{Timeout: DefaultTimeout},
		limiter:   rate.NewLimiter(rate.Inf, 1),
		cacheSize: 1024,
	}
	for _, opt := range opts {
		opt(c)
	}

	cache, err := lru.New[string, cached](c.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create geocode cache: %w", err)
	}
	c.cache = cache
	return c, nil
}

type apiResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		FormattedAddress string `json:"formatted_address"`
		Geometry         struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

// Geocode returns the first match for address.
func (c *Client) Geocode(ctx context.Context, address string) (*models.Location, error) {
	key := strings.Join(strings.Fields(address), " ")
	if key == "" {
		return nil, ErrEmptyAddress
	}

	if hit, ok := c.cache.Get(key); ok {
		if !hit.found {
			return nil, ErrNotFound
		}
		loc := *hit.loc
		return &loc, nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	loc, err := c.lookup(ctx, key)
	switch {
	case errors.Is(err, ErrNotFound):
		c.cache.Add(key, cached{})
		return nil, err
	case err != nil:
		return nil, err
	}

	c.cache.Add(key, cached{loc: loc, found: true})
	out := *loc
	return &out, nil
}

func (c *Client) lookup(ctx context.Context, address string) (*models.Location, error) {
	q := url.Values{}
	q.Set("address", address)
	if c.apiKey != "" {
		q.Set("key", c.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geocode: HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var decoded apiResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("decode geocode response: %w", err)
	}

	switch decoded.Status {
	case "OK":
	case "ZERO_RESULTS":
		return nil, ErrNotFound
	default:
		if decoded.ErrorMessage != "" {
			return nil, fmt.Errorf("geocode: %s: %s", decoded.Status, decoded.ErrorMessage)
		}
		return nil, fmt.Errorf("geocode: status %s", decoded.Status)
	}
	if len(decoded.Results) == 0 {
		return nil, ErrNotFound
	}

	first := decoded.Results[0]
	return &models.Location{
		Latitude:         first.Geometry.Location.Lat,
		Longitude:        first.Geometry.Location.Lng,
		FormattedAddress: first.FormattedAddress,
	}, nil
}
