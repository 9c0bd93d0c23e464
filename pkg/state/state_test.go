package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestManagerRoundTrip(t *testing.T) {
	ws := t.TempDir()

	sm := NewManager(ws)
	if err := sm.SetLastChannel("telegram"); err != nil {
		t.Fatalf("SetLastChannel: %v", err)
	}
	if err := sm.SetLastChatID("12345"); err != nil {
		t.Fatalf("SetLastChatID: %v", err)
	}
	if err := sm.SetLastDeploy("https://myapp-abc.vercel.app"); err != nil {
		t.Fatalf("SetLastDeploy: %v", err)
	}

	reloaded := NewManager(ws)
	if got := reloaded.GetLastChannel(); got != "telegram" {
		t.Errorf("GetLastChannel = %q", got)
	}
	if got := reloaded.GetLastChatID(); got != "12345" {
		t.Errorf("GetLastChatID = %q", got)
	}
	url, at := reloaded.GetLastDeploy()
	if url != "https://myapp-abc.vercel.app" {
		t.Errorf("GetLastDeploy url = %q", url)
	}
	if at.IsZero() {
		t.Error("GetLastDeploy timestamp should be set")
	}
}

func TestManagerStateFileLivesUnderStateDir(t *testing.T) {
	ws := t.TempDir()

	sm := NewManager(ws)
	if err := sm.SetLastChannel("discord"); err != nil {
		t.Fatalf("SetLastChannel: %v", err)
	}

	if _, err := os.Stat(filepath.Join(ws, "state", "state.json")); err != nil {
		t.Fatalf("expected state/state.json to exist: %v", err)
	}
	if _, err := os.Stat(filepath.Join(ws, "state", "state.json.tmp")); !os.IsNotExist(err) {
		t.Error("temp file should not linger after save")
	}
}

func TestManagerLegacyPathMigration(t *testing.T) {
	ws := t.TempDir()

	legacy := State{LastChannel: "telegram", LastChatID: "99", Timestamp: time.Now()}
	data, err := json.Marshal(legacy)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(ws, "state.json"), data, 0o644); err != nil {
		t.Fatal(err)
	}

	sm := NewManager(ws)
	if got := sm.GetLastChatID(); got != "99" {
		t.Fatalf("legacy state not loaded, GetLastChatID = %q", got)
	}

	// First write lands in the new location.
	if err := sm.SetLastChatID("100"); err != nil {
		t.Fatalf("SetLastChatID: %v", err)
	}
	if _, err := os.Stat(filepath.Join(ws, "state", "state.json")); err != nil {
		t.Fatalf("expected migrated state file: %v", err)
	}
}

func TestManagerBootstrapTimeoutDoesNotBlock(t *testing.T) {
	ws := t.TempDir()

	prevRead := stateReadFile
	prevTimeout := stateBootstrapTimeout
	defer func() {
		stateReadFile = prevRead
		stateBootstrapTimeout = prevTimeout
	}()

	stateBootstrapTimeout = 20 * time.Millisecond
	release := make(chan struct{})
	stateReadFile = func(string) ([]byte, error) {
		<-release
		return nil, os.ErrNotExist
	}

	start := time.Now()
	sm := NewManager(ws)
	if elapsed := time.Since(start); elapsed > 120*time.Millisecond {
		t.Fatalf("constructor blocked too long: %v", elapsed)
	}
	if got := sm.GetLastChannel(); got != "" {
		t.Errorf("expected empty state after skipped bootstrap, got %q", got)
	}

	close(release)
	time.Sleep(5 * time.Millisecond)
}

func TestManagerCorruptStateFile(t *testing.T) {
	ws := t.TempDir()
	if err := os.MkdirAll(filepath.Join(ws, "state"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(ws, "state", "state.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	// Corrupt state is logged and skipped; the manager starts empty.
	sm := NewManager(ws)
	if got := sm.GetLastChannel(); got != "" {
		t.Errorf("expected empty state, got %q", got)
	}
}
