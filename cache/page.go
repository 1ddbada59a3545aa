// Package cache stores the raw search results page on disk so extraction can
// be re-run without hitting the site.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aluiziolira/go-scrape-inspections/models"
)

// ErrNotCached is returned by Load when no page has been saved.
var ErrNotCached = errors.New("cache: page not cached")

// FileStore keeps one page body in a file plus a JSON sidecar holding the
// URL, encoding and fetch time.
type FileStore struct {
	path string
}

type pageMeta struct {
	URL       string `json:"url"`
	Encoding  string `json:"encoding"`
	FetchedAt string `json:"fetched_at"`
}

// NewFileStore creates a store writing the body to path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the body file path.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) metaPath() string {
	return s.path + ".meta.json"
}

// Save writes page atomically: both files are written to temporaries and
// renamed into place.
func (s *FileStore) Save(page *models.Page) error {
	if page == nil {
		return fmt.Errorf("cache: page is nil")
	}
	if dir := filepath.Dir(s.path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create cache directory %q: %w", dir, err)
		}
	}

	meta, err := json.Marshal(pageMeta{
		URL:       page.URL,
		Encoding:  page.Encoding,
		FetchedAt: page.FetchedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("encode cache metadata: %w", err)
	}

	if err := writeFileAtomic(s.path, page.Body); err != nil {
		return err
	}
	return writeFileAtomic(s.metaPath(), meta)
}

// Load returns the cached page. A body without a sidecar is read as UTF-8.
func (s *FileStore) Load() (*models.Page, error) {
	body, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotCached
	}
	if err != nil {
		return nil, fmt.Errorf("read cached page: %w", err)
	}

	page := &models.Page{
		URL:      "file://" + s.path,
		Body:     body,
		Encoding: "utf-8",
	}

	raw, err := os.ReadFile(s.metaPath())
	if errors.Is(err, fs.ErrNotExist) {
		return page, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cache metadata: %w", err)
	}

	var meta pageMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("decode cache metadata: %w", err)
	}
	if meta.URL != "" {
		page.URL = meta.URL
	}
	if enc := strings.TrimSpace(meta.Encoding); enc != "" {
		page.Encoding = enc
	}
	if meta.FetchedAt != "" {
		if t, err := time.Parse(time.RFC3339, meta.FetchedAt); err == nil {
			page.FetchedAt = t
		}
	}
	return page, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}
