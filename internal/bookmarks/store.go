package bookmarks

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Bookmark is one saved url.
type Bookmark struct {
	URL     string    `json:"url"`
	Title   string    `json:"title,omitempty"`
	Created time.Time `json:"created"`
}

// Store is a JSON-file bookmark table keyed by url.
type Store struct {
	path  string
	mu    sync.RWMutex
	byURL map[string]Bookmark
}

// Open loads the bookmark file at path, creating an empty table when it does
// not exist yet.
func Open(path string) (*Store, error) {
	s := &Store{path: path, byURL: make(map[string]Bookmark)}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("bookmarks: read %s: %w", path, err)
	}
	var list []Bookmark
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("bookmarks: decode %s: %w", path, err)
	}
	for _, b := range list {
		s.byURL[normalize(b.URL)] = b
	}
	return s, nil
}

// normalize drops the fragment and a trailing slash so that trivially
// different spellings of a page match.
func normalize(url string) string {
	if i := strings.IndexByte(url, '#'); i >= 0 {
		url = url[:i]
	}
	return strings.TrimSuffix(url, "/")
}

// IsBookmarked reports whether url is saved.
func (s *Store) IsBookmarked(url string) bool {
	if url == "" {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byURL[normalize(url)]
	return ok
}

// Add saves url and persists the table.
func (s *Store) Add(url, title string) error {
	if url == "" {
		return fmt.Errorf("bookmarks: empty url")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byURL[normalize(url)] = Bookmark{URL: url, Title: title, Created: time.Now().UTC()}
	return s.flushLocked()
}

// Remove deletes url and persists the table.
func (s *Store) Remove(url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := normalize(url)
	if _, ok := s.byURL[key]; !ok {
		return nil
	}
	delete(s.byURL, key)
	return s.flushLocked()
}

// List returns bookmarks sorted by url.
func (s *Store) List() []Bookmark {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Bookmark, 0, len(s.byURL))
	for _, b := range s.byURL {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out
}

func (s *Store) flushLocked() error {
	list := make([]Bookmark, 0, len(s.byURL))
	for _, b := range s.byURL {
		list = append(list, b)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].URL < list[j].URL })
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("bookmarks: marshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("bookmarks: mkdir: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("bookmarks: write: %w", err)
	}
	return nil
}
