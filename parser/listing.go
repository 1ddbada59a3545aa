package parser

import (
	"regexp"

	"github.com/PuerkitoBio/goquery"
)

var listingIDPattern = regexp.MustCompile(`PR\d+~`)

// Listing is one restaurant container inside a parsed document.
type Listing struct {
	Index     int
	ID        string
	Selection *goquery.Selection
}

// FindListings returns the restaurant containers in document order.
// A document without any returns an empty slice.
func FindListings(doc *goquery.Document) []Listing {
	listings := []Listing{}
	if doc == nil {
		return listings
	}
	doc.Find("div[id]").Each(func(_ int, s *goquery.Selection) {
		id, _ := s.Attr("id")
		if !listingIDPattern.MatchString(id) {
			return
		}
		listings = append(listings, Listing{
			Index:     len(listings),
			ID:        id,
			Selection: s,
		})
	})
	return listings
}
