package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/aluiziolira/go-scrape-inspections/models"
)

type featureCollection struct {
	Type     string    `json:"type"`
	Features []feature `json:"features"`
}

type feature struct {
	Type       string         `json:"type"`
	Geometry   *geometry      `json:"geometry"`
	Properties *models.Record `json:"properties"`
}

// geometry is a GeoJSON Point; coordinates are longitude then latitude.
type geometry struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

// GeoJSONWriter collects records as point features and writes a single
// FeatureCollection on Close. Records without a location get a null geometry.
type GeoJSONWriter struct {
	file     *os.File
	features []feature
	closed   bool
	mu       sync.Mutex
}

// NewGeoJSONWriter creates the output file.
func NewGeoJSONWriter(filename string) (*GeoJSONWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create geojson file: %w", err)
	}
	return &GeoJSONWriter{file: f, features: []feature{}}, nil
}

// Write buffers records as features.
func (gw *GeoJSONWriter) Write(records []*models.Record) error {
	gw.mu.Lock()
	defer gw.mu.Unlock()

	if gw.closed {
		return fmt.Errorf("geojson writer closed")
	}
	for _, rec := range records {
		f := feature{Type: "Feature", Properties: rec}
		if rec.Location != nil {
			f.Geometry = &geometry{
				Type:        "Point",
				Coordinates: [2]float64{rec.Location.Longitude, rec.Location.Latitude},
			}
		}
		gw.features = append(gw.features, f)
	}
	return nil
}

// Close writes the collection and closes the file.
func (gw *GeoJSONWriter) Close() error {
	gw.mu.Lock()
	defer gw.mu.Unlock()

	if gw.closed {
		return nil
	}
	gw.closed = true

	enc := json.NewEncoder(gw.file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(featureCollection{Type: "FeatureCollection", Features: gw.features}); err != nil {
		gw.file.Close()
		return fmt.Errorf("encode geojson: %w", err)
	}
	return gw.file.Close()
}

// Validate ensures the output file is still reachable. Content is written
// on Close.
func (gw *GeoJSONWriter) Validate() error {
	if _, err := os.Stat(gw.file.Name()); err != nil {
		return fmt.Errorf("stat geojson file: %w", err)
	}
	return nil
}

// Count returns the number of buffered features.
func (gw *GeoJSONWriter) Count() int {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	return len(gw.features)
}
