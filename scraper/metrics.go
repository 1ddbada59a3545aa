package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for fetching and extraction.
type Metrics struct {
	Registry          *prometheus.Registry
	RequestsTotal     *prometheus.CounterVec
	RequestDuration   prometheus.Histogram
	RetriesTotal      prometheus.Counter
	ErrorsTotal       *prometheus.CounterVec
	ListingsTotal     prometheus.Counter
	ListingErrors     prometheus.Counter
	RecordsTotal      prometheus.Counter
	GeocodeLookups    *prometheus.CounterVec
	InspectionSamples prometheus.Histogram
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inspections_requests_total",
			Help: "Total HTTP requests issued for the search page.",
		},
		[]string{"phase"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "inspections_request_duration_seconds",
			Help:    "HTTP latency of search page requests.",
			Buckets: prometheus.DefBuckets,
		},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "inspections_retries_total",
			Help: "Total number of retry attempts scheduled.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inspections_errors_total",
			Help: "Total number of fetch errors by type.",
		},
		[]string{"error_type"},
	)
	listings := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "inspections_listings_total",
			Help: "Total number of restaurant listings located.",
		},
	)
	listingErrors := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "inspections_listing_errors_total",
			Help: "Listings that failed structural extraction.",
		},
	)
	records := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "inspections_records_total",
			Help: "Records assembled and sent to the pipeline.",
		},
	)
	geocode := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inspections_geocode_lookups_total",
			Help: "Geocoding lookups by outcome.",
		},
		[]string{"outcome"},
	)
	samples := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "inspections_scored_samples",
			Help:    "Scored inspections per listing.",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		},
	)

	registry.MustRegister(requests, requestDuration, retries, errorsTotal, listings, listingErrors, records, geocode, samples)

	return &Metrics{
		Registry:          registry,
		RequestsTotal:     requests,
		RequestDuration:   requestDuration,
		RetriesTotal:      retries,
		ErrorsTotal:       errorsTotal,
		ListingsTotal:     listings,
		ListingErrors:     listingErrors,
		RecordsTotal:      records,
		GeocodeLookups:    geocode,
		InspectionSamples: samples,
	}
}

// IncRequest increments the requests total counter.
func (m *Metrics) IncRequest(phase string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(phase).Inc()
}

// ObserveDuration records an HTTP request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// IncRetries increments the retries counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// AddListings records located listings.
func (m *Metrics) AddListings(n int) {
	if m == nil {
		return
	}
	m.ListingsTotal.Add(float64(n))
}

// IncListingError counts a listing that failed extraction.
func (m *Metrics) IncListingError() {
	if m == nil {
		return
	}
	m.ListingErrors.Inc()
}

// ObserveRecord counts an assembled record and its scored sample count.
func (m *Metrics) ObserveRecord(samples int) {
	if m == nil {
		return
	}
	m.RecordsTotal.Inc()
	m.InspectionSamples.Observe(float64(samples))
}

// IncGeocode counts a geocoding lookup by outcome.
func (m *Metrics) IncGeocode(outcome string) {
	if m == nil {
		return
	}
	m.GeocodeLookups.WithLabelValues(outcome).Inc()
}
