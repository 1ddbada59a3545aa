package parser

import (
	"context"
	"errors"
	"iter"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"

	"github.com/aluiziolira/go-scrape-inspections/models"
)

// Extractor assembles one record per listing.
type Extractor struct {
	limit int
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithLimit caps the number of listings processed. Zero means no cap.
func WithLimit(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.limit = n
		}
	}
}

// NewExtractor creates an Extractor.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Listings returns the listings the extractor will process, honouring the limit.
func (e *Extractor) Listings(doc *goquery.Document) []Listing {
	listings := FindListings(doc)
	if e.limit > 0 && len(listings) > e.limit {
		listings = listings[:e.limit]
	}
	return listings
}

// Extract builds the record for a single listing. Structural failures are
// returned as *ListingError.
func (e *Extractor) Extract(l Listing) (*models.Record, error) {
	md, err := ExtractMetadata(l.Selection)
	if err != nil {
		return nil, &ListingError{Index: l.Index, ID: l.ID, Err: err}
	}
	return &models.Record{
		ListingID: l.ID,
		Metadata:  md,
		Summary:   AggregateScores(l.Selection),
	}, nil
}

// Records yields records lazily in document order. A failing listing yields
// a nil record and its *ListingError, and iteration continues with the next
// listing. Ranging again over the same document yields the same sequence.
func (e *Extractor) Records(doc *goquery.Document) iter.Seq2[*models.Record, error] {
	return func(yield func(*models.Record, error) bool) {
		for _, l := range e.Listings(doc) {
			if !yield(e.Extract(l)) {
				return
			}
		}
	}
}

// Collect extracts all listings with up to workers goroutines and returns the
// successful records in document order. Listing failures are joined into the
// returned error; the records of other listings are still returned.
func (e *Extractor) Collect(ctx context.Context, doc *goquery.Document, workers int) ([]*models.Record, error) {
	if workers <= 0 {
		workers = 1
	}

	listings := e.Listings(doc)
	records := make([]*models.Record, len(listings))
	failures := make([]error, len(listings))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, l := range listings {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			records[i], failures[i] = e.Extract(l)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]*models.Record, 0, len(records))
	for _, r := range records {
		if r != nil {
			out = append(out, r)
		}
	}
	return out, errors.Join(failures...)
}
