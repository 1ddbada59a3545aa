package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aluiziolira/go-scrape-inspections/models"
)

func sampleRecord() *models.Record {
	rec := newRecord("PR0001~JOES~", "Joe's Diner", "123 Main St", "Seattle WA")
	rec.Metadata.Append(models.LabelPhone, "(206) 555-0100")
	rec.Location = &models.Location{Latitude: 47.6062, Longitude: -122.3321, FormattedAddress: "123 Main St, Seattle, WA"}
	return rec
}

func TestCSVWriterWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "inspections.csv")

	writer, err := NewCSVWriter(path)
	if err != nil {
		t.Fatalf("create csv writer: %v", err)
	}

	if err := writer.Write([]*models.Record{sampleRecord()}); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close csv: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records=%d, want 2", len(records))
	}
	if records[0][0] != "listing_id" || records[0][1] != "business_name" {
		t.Fatalf("unexpected header: %v", records[0])
	}
	row := records[1]
	want := []string{"PR0001~JOES~", "Joe's Diner", "123 Main St Seattle WA", "", "(206) 555-0100", "15.00", "20", "2", "47.6062", "-122.3321", "123 Main St, Seattle, WA"}
	for i := range want {
		if row[i] != want[i] {
			t.Fatalf("column %s = %q, want %q", csvHeader[i], row[i], want[i])
		}
	}
}

func TestJSONWriterWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "inspections.jsonl")

	writer, err := NewJSONWriter(path)
	if err != nil {
		t.Fatalf("create json writer: %v", err)
	}

	if err := writer.Write([]*models.Record{sampleRecord()}); err != nil {
		t.Fatalf("write json: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close json: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open json: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	count := 0
	for scanner.Scan() {
		var decoded struct {
			ListingID string                     `json:"listing_id"`
			Record    map[string]json.RawMessage `json:"record"`
			Location  *models.Location           `json:"location"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &decoded); err != nil {
			t.Fatalf("invalid json line: %v", err)
		}
		if decoded.ListingID != "PR0001~JOES~" {
			t.Fatalf("listing id = %q", decoded.ListingID)
		}
		if string(decoded.Record["Address"]) != `["123 Main St","Seattle WA"]` {
			t.Fatalf("address = %s", decoded.Record["Address"])
		}
		if string(decoded.Record["High Score"]) != "20" {
			t.Fatalf("high score = %s", decoded.Record["High Score"])
		}
		if decoded.Location == nil || decoded.Location.Latitude != 47.6062 {
			t.Fatalf("location = %+v", decoded.Location)
		}
		count++
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan json: %v", err)
	}
	if count != 1 {
		t.Fatalf("json lines=%d, want 1", count)
	}
}

func TestGeoJSONWriterWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inspections.geojson")

	writer, err := NewGeoJSONWriter(path)
	if err != nil {
		t.Fatalf("create geojson writer: %v", err)
	}

	unlocated := newRecord("PR0002~X~", "No Location")
	if err := writer.Write([]*models.Record{sampleRecord(), unlocated}); err != nil {
		t.Fatalf("write geojson: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close geojson: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read geojson: %v", err)
	}

	var decoded struct {
		Type     string `json:"type"`
		Features []struct {
			Geometry *struct {
				Type        string    `json:"type"`
				Coordinates []float64 `json:"coordinates"`
			} `json:"geometry"`
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("decode geojson: %v", err)
	}
	if decoded.Type != "FeatureCollection" || len(decoded.Features) != 2 {
		t.Fatalf("unexpected collection: %s", raw)
	}
	first := decoded.Features[0]
	if first.Geometry == nil || first.Geometry.Coordinates[0] != -122.3321 || first.Geometry.Coordinates[1] != 47.6062 {
		t.Fatalf("unexpected geometry %+v", first.Geometry)
	}
	names, ok := first.Properties["Business Name"].([]any)
	if !ok || len(names) != 1 || names[0] != "Joe's Diner" {
		t.Fatalf("business name = %v", first.Properties["Business Name"])
	}
	if first.Properties["Total Inspections"] != float64(2) {
		t.Fatalf("total inspections = %v", first.Properties["Total Inspections"])
	}
	if decoded.Features[1].Geometry != nil {
		t.Fatalf("record without location should have null geometry")
	}
}

func TestDualWriterWrite(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "inspections.csv")
	jsonPath := filepath.Join(dir, "inspections.jsonl")

	writer, err := NewDualWriter(csvPath, jsonPath)
	if err != nil {
		t.Fatalf("create dual writer: %v", err)
	}

	if err := writer.Write([]*models.Record{sampleRecord()}); err != nil {
		t.Fatalf("write dual: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate dual: %v", err)
	}
	if jsonRecords, csvRows := writer.Counts(); jsonRecords != 1 || csvRows != 1 {
		t.Fatalf("counts = %d/%d, want 1/1", jsonRecords, csvRows)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close dual: %v", err)
	}

	if info, err := os.Stat(csvPath); err != nil || info.Size() == 0 {
		t.Fatalf("csv file missing or empty")
	}
	if info, err := os.Stat(jsonPath); err != nil || info.Size() == 0 {
		t.Fatalf("json file missing or empty")
	}
}

func TestDualWriterValidateReportsDivergedOutputs(t *testing.T) {
	dir := t.TempDir()
	writer, err := NewDualWriter(filepath.Join(dir, "inspections.csv"), filepath.Join(dir, "inspections.jsonl"))
	if err != nil {
		t.Fatalf("create dual writer: %v", err)
	}
	t.Cleanup(func() { writer.jsonWriter.Close() })

	if err := writer.csvWriter.file.Close(); err != nil {
		t.Fatalf("close csv file: %v", err)
	}
	if err := writer.Write([]*models.Record{sampleRecord()}); err == nil {
		t.Fatalf("expected CSV write failure")
	}

	if jsonRecords, csvRows := writer.Counts(); jsonRecords != 1 || csvRows != 0 {
		t.Fatalf("counts = %d/%d, want 1/0", jsonRecords, csvRows)
	}
	err = writer.Validate()
	if err == nil || !strings.Contains(err.Error(), "first missing listing PR0001~JOES~") {
		t.Fatalf("validate = %v, want missing listing report", err)
	}
}
