package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// State file keys, the localStorage analog of the legacy client.
const (
	StateCurrentContent = "current_content"
	StateCurrentDBName  = "current_db_name"
	StateDeviceID       = "wordbank_device_id"
	StatePhone          = "wordbank_phone"
	StateContents       = "wordbank_contents"
)

const stateFileName = "state.json"

// State is the persistent key/value file under the data directory. Every Set
// is written through; a crash loses at most nothing.
type State struct {
	path string

	mu     sync.Mutex
	values map[string]string
}

// LoadState reads the state file under dataDir, starting empty when absent.
func LoadState(dataDir string) (*State, error) {
	s := &State{
		path:   filepath.Join(dataDir, stateFileName),
		values: map[string]string{},
	}

	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("os.ReadFile(state) > %w", err)
	}
	if err := json.Unmarshal(raw, &s.values); err != nil {
		return nil, fmt.Errorf("json.Unmarshal(state) > %w", err)
	}
	return s, nil
}

// Get returns the stored value for key.
func (s *State) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

// Set stores key=value and persists the file.
func (s *State) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return s.persistLocked()
}

// DeviceID returns the stable per-install identifier, creating one on first use.
func (s *State) DeviceID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.values[StateDeviceID]; ok && id != "" {
		return id, nil
	}
	id := uuid.NewString()
	s.values[StateDeviceID] = id
	if err := s.persistLocked(); err != nil {
		return "", err
	}
	return id, nil
}

// persistLocked writes the file atomically via a rename.
func (s *State) persistLocked() error {
	raw, err := json.MarshalIndent(s.values, "", "  ")
	if err != nil {
		return fmt.Errorf("json.MarshalIndent(state) > %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("os.MkdirAll(state dir) > %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("os.WriteFile(state tmp) > %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("os.Rename(state) > %w", err)
	}
	return nil
}
