// Package models defines data structures for the inspection scraper.
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Score summary keys merged into every flattened record.
const (
	KeyAverageScore     = "Average Score"
	KeyHighScore        = "High Score"
	KeyTotalInspections = "Total Inspections"
)

// Well-known metadata labels of the inspection results page.
const (
	LabelBusinessName     = "Business Name"
	LabelAddress          = "Address"
	LabelBusinessCategory = "Business Category"
	LabelPhone            = "Phone"
)

// Metadata maps a label to the ordered values that appeared under it.
// Labels keep the order in which they were first seen.
type Metadata struct {
	keys   []string
	values map[string][]string
}

// NewMetadata returns an empty Metadata.
func NewMetadata() *Metadata {
	return &Metadata{values: make(map[string][]string)}
}

// Append adds value under label, registering the label on first use.
func (m *Metadata) Append(label, value string) {
	if m.values == nil {
		m.values = make(map[string][]string)
	}
	if _, ok := m.values[label]; !ok {
		m.keys = append(m.keys, label)
	}
	m.values[label] = append(m.values[label], value)
}

// Keys returns the labels in document order.
func (m *Metadata) Keys() []string {
	if m == nil {
		return nil
	}
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Values returns a copy of the values stored under label.
func (m *Metadata) Values(label string) []string {
	if m == nil {
		return nil
	}
	vals, ok := m.values[label]
	if !ok {
		return nil
	}
	out := make([]string, len(vals))
	copy(out, vals)
	return out
}

// First returns the first value stored under label, or "".
func (m *Metadata) First(label string) string {
	if m == nil {
		return ""
	}
	if vals := m.values[label]; len(vals) > 0 {
		return vals[0]
	}
	return ""
}

// Has reports whether label is present.
func (m *Metadata) Has(label string) bool {
	if m == nil {
		return false
	}
	_, ok := m.values[label]
	return ok
}

// Len returns the number of distinct labels.
func (m *Metadata) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// ScoreSummary aggregates the scored inspections of one listing.
type ScoreSummary struct {
	SampleCount  int     `json:"sample_count"`
	Total        int     `json:"total"`
	HighScore    int     `json:"high_score"`
	AverageScore float64 `json:"average_score"`
}

// Field is one flattened key of a Record. Metadata fields carry Values,
// score fields carry Number.
type Field struct {
	Key    string
	Values []string
	Number any
}

// Record is the merged output for one listing.
type Record struct {
	ListingID string
	Metadata  *Metadata
	Summary   ScoreSummary
	Location  *Location
}

// BusinessName returns the first "Business Name" value.
func (r *Record) BusinessName() string {
	return r.Metadata.First(LabelBusinessName)
}

// Address joins the "Address" values with single spaces. Blank values,
// left by cells whose text sat inside nested markup, are skipped so the
// result never carries doubled or edge spaces. Records without an address
// return "".
func (r *Record) Address() string {
	parts := make([]string, 0, 2)
	for _, v := range r.Metadata.Values(LabelAddress) {
		if v = strings.TrimSpace(v); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, " ")
}

// Fields flattens the record: metadata labels in document order followed by
// the score summary keys. Score keys replace metadata labels of the same name.
func (r *Record) Fields() []Field {
	fields := make([]Field, 0, r.Metadata.Len()+3)
	for _, key := range r.Metadata.Keys() {
		switch key {
		case KeyAverageScore, KeyHighScore, KeyTotalInspections:
			continue
		}
		fields = append(fields, Field{Key: key, Values: r.Metadata.Values(key)})
	}
	return append(fields,
		Field{Key: KeyAverageScore, Number: r.Summary.AverageScore},
		Field{Key: KeyHighScore, Number: r.Summary.HighScore},
		Field{Key: KeyTotalInspections, Number: r.Summary.SampleCount},
	)
}

// MarshalJSON encodes the flattened record as a JSON object with stable key order.
func (r *Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r.Fields() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Key)
		if err != nil {
			return nil, fmt.Errorf("encode key %q: %w", f.Key, err)
		}
		var val []byte
		if f.Values != nil {
			val, err = json.Marshal(f.Values)
		} else {
			val, err = json.Marshal(f.Number)
		}
		if err != nil {
			return nil, fmt.Errorf("encode value for %q: %w", f.Key, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
