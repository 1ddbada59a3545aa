// Package pipeline validates, geocodes and writes extracted inspection records.
package pipeline

import (
	"errors"
	"fmt"
	"sync"

	"github.com/aluiziolira/go-scrape-inspections/models"
)

// DualWriter outputs to both CSV and JSONL so a run yields a spreadsheet
// and the full multi-valued records at once. The JSONL side is written
// first; Validate reports listings that reached one output but not the other.
type DualWriter struct {
	csvWriter  *CSVWriter
	jsonWriter *JSONWriter
	mu         sync.Mutex

	jsonIDs []string
	csvRows int
}

// NewDualWriter creates a writer for both outputs.
func NewDualWriter(csvFilename, jsonFilename string) (*DualWriter, error) {
	csvWriter, err := NewCSVWriter(csvFilename)
	if err != nil {
		return nil, fmt.Errorf("failed to create CSV writer: %w", err)
	}

	jsonWriter, err := NewJSONWriter(jsonFilename)
	if err != nil {
		csvWriter.Close()
		return nil, fmt.Errorf("failed to create JSON writer: %w", err)
	}

	return &DualWriter{
		csvWriter:  csvWriter,
		jsonWriter: jsonWriter,
	}, nil
}

// Write writes records to both outputs.
func (dw *DualWriter) Write(records []*models.Record) error {
	dw.mu.Lock()
	defer dw.mu.Unlock()

	if err := dw.jsonWriter.Write(records); err != nil {
		return fmt.Errorf("JSON write failed: %w", err)
	}
	for _, rec := range records {
		dw.jsonIDs = append(dw.jsonIDs, rec.ListingID)
	}

	if err := dw.csvWriter.Write(records); err != nil {
		return fmt.Errorf("CSV write failed: %w", err)
	}
	dw.csvRows += len(records)

	return nil
}

// Counts returns how many records reached the JSONL and CSV outputs.
func (dw *DualWriter) Counts() (jsonRecords, csvRows int) {
	dw.mu.Lock()
	defer dw.mu.Unlock()
	return len(dw.jsonIDs), dw.csvRows
}

// Close closes both writers.
func (dw *DualWriter) Close() error {
	dw.mu.Lock()
	defer dw.mu.Unlock()

	var errs []error
	if err := dw.csvWriter.Close(); err != nil {
		errs = append(errs, fmt.Errorf("CSV close failed: %w", err))
	}
	if err := dw.jsonWriter.Close(); err != nil {
		errs = append(errs, fmt.Errorf("JSON close failed: %w", err))
	}
	return errors.Join(errs...)
}

// Validate validates both output files.
func (dw *DualWriter) Validate() error {
	var errs []error
	if err := dw.csvWriter.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("CSV validation failed: %w", err))
	}
	if err := dw.jsonWriter.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("JSON validation failed: %w", err))
	}

	dw.mu.Lock()
	if dw.csvRows < len(dw.jsonIDs) {
		errs = append(errs, fmt.Errorf("CSV is missing %d of %d records, first missing listing %s",
			len(dw.jsonIDs)-dw.csvRows, len(dw.jsonIDs), dw.jsonIDs[dw.csvRows]))
	}
	dw.mu.Unlock()
	return errors.Join(errs...)
}
