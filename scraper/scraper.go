package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/aluiziolira/go-scrape-inspections/config"
	"github.com/aluiziolira/go-scrape-inspections/models"
)

// pageEncoding is the encoding of every fetched body: the collector
// converts responses to UTF-8 before handing them over.
const pageEncoding = "utf-8"

// Fetcher retrieves the inspection search results page.
type Fetcher struct {
	cfg       *config.Config
	collector *colly.Collector
	Metrics   *Metrics

	requestCount int64
	errorCount   int64
	retryCount   int64
}

// NewFetcher builds a fetcher configured from cfg.
func NewFetcher(cfg *config.Config, metrics *Metrics) (*Fetcher, error) {
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}

	collector := colly.NewCollector(
		colly.AllowedDomains(parsed.Hostname()),
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)
	collector.DetectCharset = true
	collector.MaxBodySize = 64 << 20
	collector.IgnoreRobotsTxt = true
	collector.SetRequestTimeout(cfg.Timeout)
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	if metrics == nil {
		metrics = NewMetrics()
	}
	return &Fetcher{
		cfg:       cfg,
		collector: collector,
		Metrics:   metrics,
	}, nil
}

// SearchURL returns the results page URL for params.
func (f *Fetcher) SearchURL(params config.SearchParams) string {
	return f.cfg.SearchURL() + "?" + params.Values().Encode()
}

// Fetch issues the search and returns the raw results page. Failed attempts
// are retried with capped exponential backoff unless the error is permanent.
func (f *Fetcher) Fetch(ctx context.Context, params config.SearchParams) (*models.Page, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	target := f.SearchURL(params)

	var lastErr error
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page, err := f.fetchOnce(target)
		if err == nil {
			return page, nil
		}
		lastErr = err

		if attempt >= f.cfg.MaxRetries || !retryable(err) {
			break
		}

		atomic.AddInt64(&f.retryCount, 1)
		f.Metrics.IncRetries()
		delay := backoff(f.cfg, attempt+1)
		slog.Debug("retrying search page",
			slog.Int("attempt", attempt+1),
			slog.Duration("delay", delay),
			slog.Any("error", err),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, fmt.Errorf("fetch %s: %w", target, lastErr)
}

func (f *Fetcher) fetchOnce(target string) (*models.Page, error) {
	c := f.collector.Clone()

	var page *models.Page
	var fetchErr error

	c.OnRequest(func(r *colly.Request) {
		r.Ctx.Put("start", time.Now())
		atomic.AddInt64(&f.requestCount, 1)
		f.Metrics.IncRequest("started")
	})

	c.OnResponse(func(r *colly.Response) {
		if start, ok := r.Request.Ctx.GetAny("start").(time.Time); ok {
			f.Metrics.ObserveDuration(time.Since(start))
		}
		f.Metrics.IncRequest("completed")
		page = &models.Page{
			URL:       r.Request.URL.String(),
			Body:      append([]byte(nil), r.Body...),
			Encoding:  pageEncoding,
			FetchedAt: time.Now(),
		}
	})

	c.OnError(func(r *colly.Response, err error) {
		statusCode := 0
		if r != nil {
			statusCode = r.StatusCode
		}
		fetchErr = classifyError(err, statusCode)
	})

	if err := c.Visit(target); err != nil && fetchErr == nil {
		fetchErr = classifyError(err, 0)
	}
	if fetchErr == nil && page == nil {
		fetchErr = errors.New("no response received")
	}

	if fetchErr != nil {
		atomic.AddInt64(&f.errorCount, 1)
		category := errorTypeLabel(fetchErr)
		f.Metrics.IncError(category)
		slog.Error("search page request failed",
			slog.String("url", target),
			slog.String("category", category),
			slog.Any("error", fetchErr),
		)
		return nil, fetchErr
	}
	return page, nil
}

// Stats reports request, error and retry counts.
func (f *Fetcher) Stats() (requests, errs, retries int) {
	return int(atomic.LoadInt64(&f.requestCount)),
		int(atomic.LoadInt64(&f.errorCount)),
		int(atomic.LoadInt64(&f.retryCount))
}

func classifyError(err error, statusCode int) error {
	if err == nil && statusCode == 0 {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout{Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrConnection{Err: err}
	}

	if statusCode != 0 {
		wrapped := err
		if wrapped == nil {
			wrapped = fmt.Errorf("http status %d", statusCode)
		}
		switch {
		case statusCode == http.StatusForbidden:
			return ErrForbidden{Err: wrapped}
		case statusCode == http.StatusNotFound:
			return ErrNotFound{Err: wrapped}
		case statusCode == http.StatusTooManyRequests:
			return ErrRateLimited{Err: wrapped}
		case statusCode >= http.StatusInternalServerError:
			return ErrServer{StatusCode: statusCode, Err: wrapped}
		}
	}

	return err
}

func backoff(cfg *config.Config, attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}

	base := cfg.RetryBackoff
	if base <= 0 {
		base = 100 * time.Millisecond
	}

	delay := base * time.Duration(1<<(attempt-1))
	if max := cfg.RetryBackoffMax; max > 0 && delay > max {
		delay = max
	}
	return delay
}
