package sessionstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/dgnsrekt/tabkeeper/internal/tabs"
)

const fileName = "session.json"

// Store persists the tab session to a single JSON file so it survives
// restarts and crashes.
type Store struct {
	path string
	mu   sync.RWMutex
}

// NewStore creates a Store under dir and ensures the directory exists.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("session store: mkdir %s: %w", dir, err)
	}
	return &Store{path: filepath.Join(dir, fileName)}, nil
}

func (s *Store) Path() string { return s.path }

// Save replaces the stored session. The write goes through a temp file and a
// rename so a crash never leaves a truncated session behind.
func (s *Store) Save(state *tabs.SessionState) error {
	if state == nil {
		return s.Clear()
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("session store: marshal: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(s.path), fileName+".*.tmp")
	if err != nil {
		return fmt.Errorf("session store: create temp: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("session store: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("session store: close: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("session store: rename: %w", err)
	}
	return nil
}

// Load reads the stored session. It returns nil, nil when none exists.
func (s *Store) Load() (*tabs.SessionState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("session store: read: %w", err)
	}
	var state tabs.SessionState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("session store: decode %s: %w", s.path, err)
	}
	return &state, nil
}

// Clear removes the stored session.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("session store: remove: %w", err)
	}
	return nil
}
