package prefs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"bridged/internal/common/fsutil"
)

// Preference keys as persisted by the desktop shell. The backend's
// /settings/sync-frontend endpoint expects exactly these names.
const (
	KeyTheme        = "jarvis-theme"
	KeyVoiceEnabled = "jarvis-voice-enabled"
	KeyAutoStart    = "jarvis-auto-start"
	KeyBackendPort  = "jarvis-backend-port"
	KeyAIModel      = "jarvis-ai-model"
)

// Store is a file-backed preference set. All access goes through the store;
// Snapshot returns copies so callers never share the live map.
type Store struct {
	mu   sync.RWMutex
	path string
	vals map[string]string
}

func defaults() map[string]string {
	return map[string]string{
		KeyTheme:        "dark",
		KeyVoiceEnabled: "false",
		KeyAutoStart:    "false",
		KeyBackendPort:  "8000",
		KeyAIModel:      "orca-mini-3b-gguf2-q4_0.gguf",
	}
}

// Open loads the store at path, creating it with defaults if absent.
func Open(path string) (*Store, error) {
	p, err := fsutil.ExpandHome(path)
	if err != nil {
		return nil, err
	}
	s := &Store{path: p, vals: defaults()}
	b, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read prefs: %w", err)
	}
	var onDisk map[string]string
	if err := json.Unmarshal(b, &onDisk); err != nil {
		return nil, fmt.Errorf("parse prefs: %w", err)
	}
	for k, v := range onDisk {
		s.vals[k] = v
	}
	return s, nil
}

// Get returns the value for key, empty when unset.
func (s *Store) Get(key string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.vals[key]
}

// Set updates key and persists the full set.
func (s *Store) Set(key, value string) error {
	s.mu.Lock()
	s.vals[key] = value
	s.mu.Unlock()
	return s.Save()
}

// Replace overwrites the stored values with vals (copied) and persists.
// Unknown keys are kept; this mirrors the copy-not-merge sync semantics.
func (s *Store) Replace(vals map[string]string) error {
	s.mu.Lock()
	for k, v := range vals {
		s.vals[k] = v
	}
	s.mu.Unlock()
	return s.Save()
}

// Snapshot returns a copy of the current preference set.
func (s *Store) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.vals))
	for k, v := range s.vals {
		out[k] = v
	}
	return out
}

// Selected returns the locally persisted model selection.
func (s *Store) Selected() string { return s.Get(KeyAIModel) }

// SetSelected persists a new model selection.
func (s *Store) SetSelected(model string) error { return s.Set(KeyAIModel, model) }

// Save writes the preference set atomically (temp file + rename).
func (s *Store) Save() error {
	s.mu.RLock()
	b, err := json.MarshalIndent(s.vals, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("prefs dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".prefs-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}
