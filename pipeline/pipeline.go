package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aluiziolira/go-scrape-inspections/config"
	"github.com/aluiziolira/go-scrape-inspections/geocode"
	"github.com/aluiziolira/go-scrape-inspections/models"
	"github.com/aluiziolira/go-scrape-inspections/parser"
)

var (
	// ErrPipelineClosed is returned when Process is called after shutdown.
	ErrPipelineClosed = errors.New("pipeline: closed")
	// ErrPipelineCloseTimeout is returned when workers do not drain in time.
	ErrPipelineCloseTimeout = errors.New("pipeline: close timed out")
)

var drainTimeout = 2 * time.Minute

// OutputWriter defines the interface for data output.
type OutputWriter interface {
	Write(records []*models.Record) error
	Close() error
	Validate() error
}

// Geocoder resolves an address to a location.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (*models.Location, error)
}

// Observer receives geocoding outcomes.
type Observer interface {
	IncGeocode(outcome string)
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithGeocoder geocodes every record before it is written. Records without
// an address, or whose address cannot be resolved, are dropped.
func WithGeocoder(g Geocoder) Option {
	return func(p *Pipeline) {
		p.geocoder = g
	}
}

// WithObserver reports geocoding outcomes to o.
func WithObserver(o Observer) Option {
	return func(p *Pipeline) {
		p.observer = o
	}
}

// Pipeline coordinates validation, de-duplication, geocoding and output writing.
type Pipeline struct {
	ctx       context.Context
	writer    OutputWriter
	recordCh  chan *models.Record
	batchSize int
	geocoder  Geocoder
	observer  Observer

	wg sync.WaitGroup

	seen *lru.Cache[string, struct{}]

	metrics metrics

	mu     sync.Mutex // guards closed/err
	closed bool
	err    error

	closeOnce    sync.Once
	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// NewPipeline builds a pipeline sized from cfg.
func NewPipeline(ctx context.Context, writer OutputWriter, cfg *config.Config, opts ...Option) *Pipeline {
	if ctx == nil {
		ctx = context.Background()
	}
	bufferSize := cfg.PipelineBufferSize
	if bufferSize <= 0 {
		bufferSize = 1
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 1
	}
	dedupeSize := cfg.DedupeMaxSize
	if dedupeSize <= 0 {
		dedupeSize = 1
	}
	// lru.New only fails for a non-positive size.
	seen, _ := lru.New[string, struct{}](dedupeSize)

	p := &Pipeline{
		ctx:       ctx,
		writer:    writer,
		recordCh:  make(chan *models.Record, bufferSize),
		batchSize: batchSize,
		seen:      seen,
		metrics:   newMetrics(),
		shutdown:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches worker goroutines.
func (p *Pipeline) Start(workers int) {
	if workers <= 0 {
		workers = 1
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// Process enqueues records for downstream processing.
func (p *Pipeline) Process(records ...*models.Record) error {
	if len(records) == 0 {
		return nil
	}

	closed, err := p.state()
	if err != nil {
		return err
	}
	if closed {
		return ErrPipelineClosed
	}

	for _, rec := range records {
		if rec == nil {
			continue
		}
		if err := p.enqueue(rec); err != nil {
			return err
		}
	}
	return nil
}

// Close waits for workers to finish and prevents more submissions.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
	}
	p.mu.Unlock()

	p.signalShutdown()
	p.closeOnce.Do(func() {
		close(p.recordCh)
	})

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(drainTimeout):
		return ErrPipelineCloseTimeout
	}
	return p.Err()
}

// Err returns the first error encountered during processing.
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// GetMetrics returns a snapshot of the internal counters.
func (p *Pipeline) GetMetrics() map[string]interface{} {
	return p.metrics.snapshot()
}

// StartMetricsReporting emits periodic progress logs.
func (p *Pipeline) StartMetricsReporting(interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				metrics := p.GetMetrics()
				processed := metrics["processed_records"].(int64)
				validation := metrics["validation_errors"].(map[string]int)
				slog.Info("pipeline progress",
					slog.Int64("processed", processed),
					slog.Int("validation_kinds", len(validation)),
				)
			case <-p.shutdown:
				return
			}
		}
	}()
}

func (p *Pipeline) worker() {
	defer p.wg.Done()

	batch := make([]*models.Record, 0, p.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := p.writer.Write(batch); err != nil {
			return err
		}
		batch = batch[:0]
		return nil
	}

	for rec := range p.recordCh {
		prepared := p.prepare(rec)
		if prepared == nil {
			continue
		}
		batch = append(batch, prepared)
		if len(batch) >= p.batchSize {
			if err := flush(); err != nil {
				p.setErr(fmt.Errorf("write batch: %w", err))
				return
			}
		}
	}

	if err := flush(); err != nil {
		p.setErr(fmt.Errorf("write batch: %w", err))
	}
}

func (p *Pipeline) prepare(rec *models.Record) *models.Record {
	if err := parser.ValidateRecord(rec); err != nil {
		p.metrics.addValidation("invalid_record")
		return nil
	}

	if seen, _ := p.seen.ContainsOrAdd(rec.ListingID, struct{}{}); seen {
		p.metrics.addValidation("duplicate_listing")
		return nil
	}

	if p.geocoder != nil && !p.locate(rec) {
		return nil
	}

	p.metrics.incrementProcessed()
	return rec
}

// locate attaches a location to rec and reports whether rec should be kept.
func (p *Pipeline) locate(rec *models.Record) bool {
	address := rec.Address()
	if address == "" {
		p.metrics.addValidation("missing_address")
		p.observe("skipped")
		return false
	}

	loc, err := p.geocoder.Geocode(p.ctx, address)
	switch {
	case errors.Is(err, geocode.ErrNotFound):
		p.metrics.addValidation("geocode_not_found")
		p.observe("not_found")
		return false
	case err != nil:
		p.metrics.addValidation("geocode_error")
		p.observe("error")
		slog.Warn("geocode failed",
			slog.String("listing", rec.ListingID),
			slog.String("address", address),
			slog.Any("error", err),
		)
		return false
	}

	p.observe("found")
	rec.Location = loc
	return true
}

func (p *Pipeline) observe(outcome string) {
	if p.observer != nil {
		p.observer.IncGeocode(outcome)
	}
}

func (p *Pipeline) enqueue(rec *models.Record) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrPipelineClosed
		}
	}()

	select {
	case <-p.shutdown:
		return ErrPipelineClosed
	case <-p.ctx.Done():
		return p.ctx.Err()
	case p.recordCh <- rec:
		return nil
	}
}

func (p *Pipeline) setErr(err error) {
	if err == nil {
		return
	}

	p.mu.Lock()
	if p.err != nil {
		p.mu.Unlock()
		return
	}
	p.err = err
	p.closed = true
	p.mu.Unlock()

	p.signalShutdown()
	p.closeOnce.Do(func() {
		close(p.recordCh)
	})
}

func (p *Pipeline) state() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed, p.err
}

func (p *Pipeline) signalShutdown() {
	p.shutdownOnce.Do(func() {
		close(p.shutdown)
	})
}

type metrics struct {
	mu         sync.Mutex
	processed  int64
	validation map[string]int
}

func newMetrics() metrics {
	return metrics{
		validation: make(map[string]int),
	}
}

func (m *metrics) incrementProcessed() {
	m.mu.Lock()
	m.processed++
	m.mu.Unlock()
}

func (m *metrics) addValidation(kind string) {
	m.mu.Lock()
	m.validation[kind]++
	m.mu.Unlock()
}

func (m *metrics) snapshot() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	copyValidation := make(map[string]int, len(m.validation))
	for k, v := range m.validation {
		copyValidation[k] = v
	}

	return map[string]interface{}{
		"processed_records": m.processed,
		"validation_errors": copyValidation,
	}
}
