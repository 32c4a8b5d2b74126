package prefs

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestOpenDefaults(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "prefs.json"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if s.Get(KeyTheme) != "dark" {
		t.Fatalf("theme=%q", s.Get(KeyTheme))
	}
	if s.Get(KeyAIModel) == "" {
		t.Fatalf("expected default model")
	}
}

func TestSetPersists(t *testing.T) {
	p := filepath.Join(t.TempDir(), "prefs.json")
	s, err := Open(p)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Set(KeyVoiceEnabled, "true"); err != nil {
		t.Fatalf("set: %v", err)
	}
	// reopen and confirm the value survived
	s2, err := Open(p)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if s2.Get(KeyVoiceEnabled) != "true" {
		t.Fatalf("voice=%q", s2.Get(KeyVoiceEnabled))
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "prefs.json"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	snap := s.Snapshot()
	snap[KeyTheme] = "light"
	if s.Get(KeyTheme) != "dark" {
		t.Fatalf("snapshot mutation leaked into store")
	}
}

func TestReplaceKeepsUnknownKeys(t *testing.T) {
	p := filepath.Join(t.TempDir(), "prefs.json")
	s, err := Open(p)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Replace(map[string]string{KeyTheme: "light", "jarvis-extra": "1"}); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if s.Get(KeyTheme) != "light" || s.Get("jarvis-extra") != "1" {
		t.Fatalf("replace did not apply")
	}
	if s.Get(KeyBackendPort) == "" {
		t.Fatalf("replace dropped existing key")
	}
}

func TestSelected(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "prefs.json"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.SetSelected("mistral-7b-instruct-v0.1.Q4_0.gguf"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if s.Selected() != "mistral-7b-instruct-v0.1.Q4_0.gguf" {
		t.Fatalf("selected=%q", s.Selected())
	}
}

func TestSaveWritesValidJSON(t *testing.T) {
	p := filepath.Join(t.TempDir(), "prefs.json")
	s, err := Open(p)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}
	b, err := os.ReadFile(p)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var m map[string]string
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(m) == 0 {
		t.Fatalf("empty prefs file")
	}
}

func TestOpenCorruptFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "prefs.json")
	if err := os.WriteFile(p, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Open(p); err == nil {
		t.Fatalf("expected error for corrupt prefs")
	}
}
