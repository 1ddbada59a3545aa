package parser

import (
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/go-scrape-inspections/models"
)

const inspectionMarker = "inspection"

// IsInspectionRow reports whether row describes one inspection event: four
// td cells and a first cell that mentions "inspection" without starting with
// it. Rows starting with the word are headers.
func IsInspectionRow(row *goquery.Selection) bool {
	if goquery.NodeName(row) != "tr" {
		return false
	}
	cells := rowCells(row)
	if cells.Length() != 4 {
		return false
	}
	text := strings.ToLower(CleanCell(cells.First()))
	return strings.Contains(text, inspectionMarker) && !strings.HasPrefix(text, inspectionMarker)
}

// AggregateScores summarises the inspection rows found anywhere in listing.
//
// Every matching row counts as a sample until its score cell fails to parse,
// which removes it again. HighScore starts at zero, so it is the maximum
// score or zero when no score is positive.
func AggregateScores(listing *goquery.Selection) models.ScoreSummary {
	rows := listing.Find("tr").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return IsInspectionRow(s)
	})

	summary := models.ScoreSummary{SampleCount: rows.Length()}
	rows.Each(func(_ int, row *goquery.Selection) {
		score, err := strconv.Atoi(CleanCell(rowCells(row).Eq(2)))
		if err != nil {
			summary.SampleCount--
			return
		}
		summary.Total += score
		if score > summary.HighScore {
			summary.HighScore = score
		}
	})

	if summary.SampleCount > 0 {
		summary.AverageScore = float64(summary.Total) / float64(summary.SampleCount)
	}
	return summary
}
