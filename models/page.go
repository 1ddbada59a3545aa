package models

import "time"

// Page is a raw search results document and its declared encoding.
type Page struct {
	URL       string    `json:"url"`
	Body      []byte    `json:"-"`
	Encoding  string    `json:"encoding"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Location is the geocoding result for a record address.
type Location struct {
	Latitude         float64 `json:"latitude"`
	Longitude        float64 `json:"longitude"`
	FormattedAddress string  `json:"formatted_address"`
}

// RunResult holds the overall result of one extraction run.
type RunResult struct {
	StartTime     time.Time
	EndTime       time.Time
	Source        string
	ListingCount  int
	RecordCount   int
	ListingErrors int
	FailedIDs     []string
	RetryCount    int
	RequestCount  int
}
