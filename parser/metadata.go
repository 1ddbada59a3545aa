package parser

import (
	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/go-scrape-inspections/models"
)

// ExtractMetadata folds the two-column rows of the listing's first table into
// label/value pairs. A row with a blank label continues the previous label.
// Rows with any other cell count are skipped.
//
// A blank-labelled row before any label lands under the "" key.
func ExtractMetadata(listing *goquery.Selection) (*models.Metadata, error) {
	table := listing.Find("table").First()
	if table.Length() == 0 {
		return nil, ErrNoTable
	}

	md := models.NewMetadata()
	label := ""
	for _, row := range tableRows(table) {
		if !IsMetadataRow(row) {
			continue
		}
		cells := rowCells(row)
		if key := CleanCell(cells.Eq(0)); key != "" {
			label = key
		}
		md.Append(label, CleanCell(cells.Eq(1)))
	}
	return md, nil
}

// IsMetadataRow reports whether row is a tr with exactly two td children.
func IsMetadataRow(row *goquery.Selection) bool {
	return goquery.NodeName(row) == "tr" && rowCells(row).Length() == 2
}

// tableRows returns the rows directly owned by table, looking through the
// row groups the HTML parser inserts.
func tableRows(table *goquery.Selection) []*goquery.Selection {
	var rows []*goquery.Selection
	table.Children().Each(func(_ int, child *goquery.Selection) {
		switch goquery.NodeName(child) {
		case "tr":
			rows = append(rows, child)
		case "thead", "tbody", "tfoot":
			child.ChildrenFiltered("tr").Each(func(_ int, row *goquery.Selection) {
				rows = append(rows, row)
			})
		}
	})
	return rows
}
