package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "dir", "config.json")

	cfg := DefaultConfig()
	cfg.Scheduler.MaxRetries = 5
	cfg.Agents["extra"] = AgentConfig{Type: "generation", Executor: "command", Command: "mytool"}

	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("saved file missing: %v", err)
	}

	loaded, err := Load(path, "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Scheduler.MaxRetries != 5 {
		t.Errorf("MaxRetries = %d, want 5", loaded.Scheduler.MaxRetries)
	}
	extra, ok := loaded.Agents["extra"]
	if !ok || extra.Command != "mytool" {
		t.Errorf("extra agent = %+v, ok = %v", extra, ok)
	}
}

func TestSaveUnwritablePath(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, nil, 0644); err != nil {
		t.Fatal(err)
	}
	// Parent "directory" is a regular file; MkdirAll must fail.
	if err := Save(DefaultConfig(), filepath.Join(blocker, "config.json")); err == nil {
		t.Error("Save under a file should fail")
	}
}
