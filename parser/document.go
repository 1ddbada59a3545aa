// Package parser turns the inspection search results page into records.
//
// The page has no machine readable schema. Each restaurant is a div whose id
// looks like "PR0012345~", holding a two-column metadata table and four-column
// inspection rows. The functions here locate those containers, fold the
// metadata rows into labels and aggregate the inspection scores.
package parser

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"
)

// LoadDocument parses raw page bytes declared in the given encoding.
// An empty encoding is treated as UTF-8.
func LoadDocument(content []byte, encoding string) (*goquery.Document, error) {
	encoding = strings.TrimSpace(encoding)
	if encoding == "" {
		encoding = "utf-8"
	}

	r, err := charset.NewReaderLabel(encoding, bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("decode %s document: %w", encoding, err)
	}

	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}
