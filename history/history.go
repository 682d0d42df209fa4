// Package history keeps the most recent transcriptions so they can be
// re-injected or copied later. The store is capped: once full, adding a new
// entry evicts the oldest one.
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultMax is the number of entries kept when no cap is configured.
const DefaultMax = 50

type Entry struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Provider  string    `json:"provider"`
	Mode      string    `json:"mode"`
	AudioS    float64   `json:"audio_s"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is a capped transcript log persisted as a JSON file. All methods
// are safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	path    string
	max     int
	entries []Entry // oldest first
}

// Open loads the store at path, creating parent directories as needed.
// A missing file yields an empty store. If the file holds more than max
// entries the oldest are dropped on load.
func Open(path string, max int) (*Store, error) {
	if max <= 0 {
		max = DefaultMax
	}
	s := &Store{path: path, max: max}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading history: %w", err)
	}
	if len(data) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, &s.entries); err != nil {
		return nil, fmt.Errorf("parsing history %s: %w", path, err)
	}
	if len(s.entries) > max {
		s.entries = s.entries[len(s.entries)-max:]
	}
	return s, nil
}

// Add appends a transcription, evicting the oldest entry when at capacity,
// and persists the store.
func (s *Store) Add(text, provider, mode string, audioS float64) (Entry, error) {
	e := Entry{
		ID:        uuid.NewString(),
		Text:      text,
		Provider:  provider,
		Mode:      mode,
		AudioS:    audioS,
		CreatedAt: time.Now().UTC(),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	if len(s.entries) > s.max {
		s.entries = s.entries[len(s.entries)-s.max:]
	}
	if err := s.saveLocked(); err != nil {
		return Entry{}, err
	}
	return e, nil
}

// Entries returns all entries, newest first.
func (s *Store) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.entries))
	for i, e := range s.entries {
		out[len(s.entries)-1-i] = e
	}
	return out
}

// Latest returns the most recent entry, if any.
func (s *Store) Latest() (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) == 0 {
		return Entry{}, false
	}
	return s.entries[len(s.entries)-1], true
}

// Get looks an entry up by id.
func (s *Store) Get(id string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Clear empties the store and persists the empty state.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
