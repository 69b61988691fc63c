package thumbnail

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/dgnsrekt/tabkeeper/internal/tabs"
)

var ErrNotFound = errors.New("thumbnail not found")

// Meta describes a stored thumbnail.
type Meta struct {
	TabID      tabs.ID   `json:"tab_id"`
	URL        string    `json:"url"`
	Title      string    `json:"title,omitempty"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	SizeBytes  int       `json:"size_bytes"`
	CapturedAt time.Time `json:"captured_at"`
}

// Store keeps one PNG plus a metadata sidecar per tab.
type Store struct {
	dir string
	mu  sync.RWMutex
}

// NewStore creates a Store and ensures the directory exists.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("thumbnail store: mkdir %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) paths(id tabs.ID) (string, string, error) {
	if !id.Valid() {
		return "", "", fmt.Errorf("invalid tab id: %d", id)
	}
	base := filepath.Join(s.dir, id.String())
	return base + ".png", base + ".json", nil
}

// Save encodes img as PNG and writes it with its metadata.
func (s *Store) Save(meta Meta, img image.Image) error {
	imgPath, jsonPath, err := s.paths(meta.TabID)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return fmt.Errorf("thumbnail store: encode: %w", err)
	}
	b := img.Bounds()
	meta.Width, meta.Height = b.Dx(), b.Dy()
	meta.SizeBytes = buf.Len()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.WriteFile(imgPath, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("thumbnail store: write image: %w", err)
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		_ = os.Remove(imgPath)
		return fmt.Errorf("thumbnail store: marshal meta: %w", err)
	}
	if err := os.WriteFile(jsonPath, data, 0o644); err != nil {
		_ = os.Remove(imgPath)
		return fmt.Errorf("thumbnail store: write meta: %w", err)
	}
	return nil
}

// Get reads thumbnail metadata for a tab.
func (s *Store) Get(id tabs.ID) (Meta, error) {
	_, jsonPath, err := s.paths(id)
	if err != nil {
		return Meta{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(jsonPath)
	if err != nil {
		if os.IsNotExist(err) {
			return Meta{}, fmt.Errorf("%w: tab %d", ErrNotFound, id)
		}
		return Meta{}, fmt.Errorf("thumbnail store: read meta: %w", err)
	}
	var meta Meta
	if err := json.Unmarshal(data, &meta); err != nil {
		return Meta{}, fmt.Errorf("thumbnail store: unmarshal meta: %w", err)
	}
	return meta, nil
}

// ReadImage returns the PNG bytes stored for a tab.
func (s *Store) ReadImage(id tabs.ID) ([]byte, error) {
	imgPath, _, err := s.paths(id)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(imgPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: tab %d", ErrNotFound, id)
		}
		return nil, fmt.Errorf("thumbnail store: read image: %w", err)
	}
	return data, nil
}

// List returns all thumbnails, newest first.
func (s *Store) List() ([]Meta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("thumbnail store: glob: %w", err)
	}
	metas := make([]Meta, 0, len(matches))
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var meta Meta
		if err := json.Unmarshal(data, &meta); err != nil {
			continue
		}
		metas = append(metas, meta)
	}
	sort.Slice(metas, func(i, j int) bool {
		return metas[i].CapturedAt.After(metas[j].CapturedAt)
	})
	return metas, nil
}

// Delete removes a tab's thumbnail. Missing files are not an error.
func (s *Store) Delete(id tabs.ID) error {
	imgPath, jsonPath, err := s.paths(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range []string{imgPath, jsonPath} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			slog.Debug("thumbnail cleanup failed", "path", p, "error", err)
		}
	}
	return nil
}
