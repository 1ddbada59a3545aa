package pipeline

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/aluiziolira/go-scrape-inspections/config"
	"github.com/aluiziolira/go-scrape-inspections/geocode"
	"github.com/aluiziolira/go-scrape-inspections/models"
)

type mockWriter struct {
	mu          sync.Mutex
	batches     [][]*models.Record
	closed      bool
	validateErr error
}

func (mw *mockWriter) Write(records []*models.Record) error {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	copyBatch := make([]*models.Record, len(records))
	copy(copyBatch, records)
	mw.batches = append(mw.batches, copyBatch)
	return nil
}

func (mw *mockWriter) Close() error {
	mw.mu.Lock()
	mw.closed = true
	mw.mu.Unlock()
	return nil
}

func (mw *mockWriter) Validate() error {
	return mw.validateErr
}

func (mw *mockWriter) all() []*models.Record {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	var out []*models.Record
	for _, batch := range mw.batches {
		out = append(out, batch...)
	}
	return out
}

func (mw *mockWriter) batchSizes() []int {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	sizes := make([]int, 0, len(mw.batches))
	for _, batch := range mw.batches {
		sizes = append(sizes, len(batch))
	}
	return sizes
}

type blockingWriter struct {
	blockCh chan struct{}
}

func (bw *blockingWriter) Write(records []*models.Record) error {
	<-bw.blockCh
	return nil
}

func (bw *blockingWriter) Close() error {
	return nil
}

func (bw *blockingWriter) Validate() error {
	return nil
}

type fakeGeocoder struct {
	mu        sync.Mutex
	addresses []string
	notFound  map[string]bool
	fail      map[string]bool
}

func (g *fakeGeocoder) Geocode(_ context.Context, address string) (*models.Location, error) {
	g.mu.Lock()
	g.addresses = append(g.addresses, address)
	g.mu.Unlock()
	if g.notFound[address] {
		return nil, geocode.ErrNotFound
	}
	if g.fail[address] {
		return nil, errors.New("provider down")
	}
	return &models.Location{Latitude: 47.6, Longitude: -122.3, FormattedAddress: address + ", USA"}, nil
}

type countingObserver struct {
	mu       sync.Mutex
	outcomes map[string]int
}

func (o *countingObserver) IncGeocode(outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.outcomes == nil {
		o.outcomes = make(map[string]int)
	}
	o.outcomes[outcome]++
}

func newRecord(id, name string, address ...string) *models.Record {
	md := models.NewMetadata()
	md.Append(models.LabelBusinessName, name)
	for _, line := range address {
		md.Append(models.LabelAddress, line)
	}
	return &models.Record{
		ListingID: id,
		Metadata:  md,
		Summary:   models.ScoreSummary{SampleCount: 2, Total: 30, HighScore: 20, AverageScore: 15},
	}
}

func TestPipelineProcessValidationAndDedup(t *testing.T) {
	cfg := config.DefaultConfig()
	writer := &mockWriter{}
	p := NewPipeline(context.Background(), writer, cfg)
	p.Start(1)

	valid := newRecord("PR1~a~", "Taco Spot", "1 Pine St")
	invalid := &models.Record{ListingID: "", Metadata: models.NewMetadata()}
	duplicate := newRecord("PR1~a~", "Taco Spot", "1 Pine St")

	if err := p.Process(valid, invalid, duplicate); err != nil {
		t.Fatalf("process: %v", err)
	}

	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if got := len(writer.all()); got != 1 {
		t.Fatalf("written records = %d, want 1", got)
	}

	metrics := p.GetMetrics()
	validation, ok := metrics["validation_errors"].(map[string]int)
	if !ok {
		t.Fatalf("expected validation errors map")
	}
	if validation["invalid_record"] == 0 {
		t.Fatalf("expected invalid_record validation error")
	}
	if validation["duplicate_listing"] == 0 {
		t.Fatalf("expected duplicate_listing validation error")
	}
}

func TestPipelineWritesRecordWithoutMetadata(t *testing.T) {
	writer := &mockWriter{}
	p := NewPipeline(context.Background(), writer, config.DefaultConfig())
	p.Start(1)

	rec := &models.Record{
		ListingID: "PR1~x~",
		Metadata:  models.NewMetadata(),
		Summary:   models.ScoreSummary{SampleCount: 1, Total: 12, HighScore: 12, AverageScore: 12},
	}
	if err := p.Process(rec); err != nil {
		t.Fatalf("process: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	written := writer.all()
	if len(written) != 1 {
		t.Fatalf("written records = %d, want 1", len(written))
	}
	if got := written[0].Summary; got.SampleCount != 1 || got.HighScore != 12 || got.AverageScore != 12 {
		t.Fatalf("summary = %+v", got)
	}
	if validation, _ := p.GetMetrics()["validation_errors"].(map[string]int); validation["invalid_record"] != 0 {
		t.Fatalf("record without metadata rejected: %v", validation)
	}
}

func TestPipelineBatchFlushThreshold(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BatchSize = 16
	writer := &mockWriter{}
	p := NewPipeline(context.Background(), writer, cfg)
	p.Start(1)

	for i := 0; i < 17; i++ {
		if err := p.Process(newRecord("PR"+strconv.Itoa(i)+"~x~", "R")); err != nil {
			t.Fatalf("process: %v", err)
		}
	}

	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	sizes := writer.batchSizes()
	if len(sizes) != 2 {
		t.Fatalf("batch writes = %d, want 2", len(sizes))
	}
	if sizes[0] != 16 || sizes[1] != 1 {
		t.Fatalf("batch sizes = %v, want [16 1]", sizes)
	}
}

func TestPipelineSingleWorkerKeepsOrder(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BatchSize = 3
	writer := &mockWriter{}
	p := NewPipeline(context.Background(), writer, cfg)
	p.Start(1)

	for i := 0; i < 10; i++ {
		if err := p.Process(newRecord("PR"+strconv.Itoa(i)+"~x~", "R")); err != nil {
			t.Fatalf("process: %v", err)
		}
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	for i, rec := range writer.all() {
		if want := "PR" + strconv.Itoa(i) + "~x~"; rec.ListingID != want {
			t.Fatalf("record %d = %s, want %s", i, rec.ListingID, want)
		}
	}
}

func TestPipelineCloseDrainsPendingItems(t *testing.T) {
	cfg := config.DefaultConfig()
	writer := &mockWriter{}
	p := NewPipeline(context.Background(), writer, cfg)
	p.Start(2)

	for i := 0; i < 100; i++ {
		if err := p.Process(newRecord("PR"+strconv.Itoa(i+200)+"~x~", "R")); err != nil {
			t.Fatalf("process: %v", err)
		}
	}

	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if got := len(writer.all()); got != 100 {
		t.Fatalf("written records = %d, want 100", got)
	}
}

func TestPipelineProcessAfterClose(t *testing.T) {
	p := NewPipeline(context.Background(), &mockWriter{}, config.DefaultConfig())
	p.Start(1)
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := p.Process(newRecord("PR1~x~", "R")); !errors.Is(err, ErrPipelineClosed) {
		t.Fatalf("err = %v, want ErrPipelineClosed", err)
	}
}

func TestPipelineGeocoding(t *testing.T) {
	cfg := config.DefaultConfig()
	writer := &mockWriter{}
	geo := &fakeGeocoder{
		notFound: map[string]bool{"0 Nowhere Rd": true},
		fail:     map[string]bool{"9 Broken Ave": true},
	}
	observer := &countingObserver{}
	p := NewPipeline(context.Background(), writer, cfg, WithGeocoder(geo), WithObserver(observer))
	p.Start(1)

	records := []*models.Record{
		newRecord("PR1~a~", "Found", "123 Main St", "Seattle WA"),
		newRecord("PR2~b~", "No Address"),
		newRecord("PR3~c~", "Unknown", "0 Nowhere Rd"),
		newRecord("PR4~d~", "Broken", "9 Broken Ave"),
	}
	if err := p.Process(records...); err != nil {
		t.Fatalf("process: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	written := writer.all()
	if len(written) != 1 {
		t.Fatalf("written = %d, want 1", len(written))
	}
	if written[0].Location == nil || written[0].Location.FormattedAddress != "123 Main St Seattle WA, USA" {
		t.Fatalf("unexpected location %+v", written[0].Location)
	}

	for _, addr := range geo.addresses {
		if addr == "" {
			t.Fatalf("geocoder called with empty address")
		}
	}
	if len(geo.addresses) != 3 {
		t.Fatalf("geocoder calls = %d, want 3", len(geo.addresses))
	}

	validation := p.GetMetrics()["validation_errors"].(map[string]int)
	for _, kind := range []string{"missing_address", "geocode_not_found", "geocode_error"} {
		if validation[kind] != 1 {
			t.Fatalf("validation[%s] = %d, want 1", kind, validation[kind])
		}
	}
	if observer.outcomes["found"] != 1 || observer.outcomes["skipped"] != 1 {
		t.Fatalf("observer outcomes = %v", observer.outcomes)
	}
}

func TestPipelineCloseTimeout(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BatchSize = 1

	writer := &blockingWriter{blockCh: make(chan struct{})}
	p := NewPipeline(context.Background(), writer, cfg)
	p.Start(1)

	if err := p.Process(newRecord("PR1~blocked~", "Blocked")); err != nil {
		t.Fatalf("process: %v", err)
	}

	previousTimeout := drainTimeout
	drainTimeout = 25 * time.Millisecond
	t.Cleanup(func() {
		drainTimeout = previousTimeout
		close(writer.blockCh)
	})

	if err := p.Close(); err == nil || !errors.Is(err, ErrPipelineCloseTimeout) {
		t.Fatalf("expected close timeout error, got %v", err)
	}
}
