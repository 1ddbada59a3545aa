package parser

import (
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// CleanCell returns the direct text of a table cell with surrounding
// whitespace, colons and hyphens removed. Cells that are empty or hold
// nested markup instead of a single text node yield "".
func CleanCell(cell *goquery.Selection) string {
	if cell == nil || cell.Length() == 0 {
		return ""
	}
	text, ok := directText(cell.Get(0))
	if !ok {
		return ""
	}
	return strings.TrimFunc(text, isCellPadding)
}

// directText reports the content of n when its only child is a text node.
func directText(n *html.Node) (string, bool) {
	c := n.FirstChild
	if c == nil || c != n.LastChild || c.Type != html.TextNode {
		return "", false
	}
	return c.Data, true
}

func isCellPadding(r rune) bool {
	return unicode.IsSpace(r) || r == ':' || r == '-'
}

// rowCells returns the td children of a row.
func rowCells(row *goquery.Selection) *goquery.Selection {
	return row.ChildrenFiltered("td")
}
