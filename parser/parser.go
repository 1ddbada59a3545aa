package parser

import (
	"fmt"
	"strings"

	"github.com/aluiziolira/go-scrape-inspections/models"
)

// ValidateRecord ensures the extractor captured the fields downstream
// stages rely on. Empty metadata is valid: a listing whose table has no
// label rows still reports its inspection scores.
func ValidateRecord(r *models.Record) error {
	if r == nil {
		return fmt.Errorf("record is nil")
	}
	if strings.TrimSpace(r.ListingID) == "" {
		return fmt.Errorf("record missing listing id")
	}
	if r.Summary.SampleCount < 0 || r.Summary.HighScore < 0 {
		return fmt.Errorf("record %s has a negative score summary", r.ListingID)
	}
	return nil
}
