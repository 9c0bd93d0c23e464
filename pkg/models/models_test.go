package models

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/droidgram/droidgram/pkg/config"
)

func TestSetModelPersists(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Agents.Defaults.Model = "gpt-5.2"

	configPath := filepath.Join(t.TempDir(), "config.json")
	if err := config.SaveConfig(configPath, cfg); err != nil {
		t.Fatalf("seed config: %v", err)
	}

	if err := SetModel(cfg, configPath, "claude-opus-4-6"); err != nil {
		t.Fatalf("SetModel: %v", err)
	}

	if got, want := cfg.Agents.Defaults.Model, "claude-opus-4-6"; got != want {
		t.Fatalf("model = %q, want %q", got, want)
	}

	raw, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	text := string(raw)
	if !strings.Contains(text, `"model": "claude-opus-4-6"`) {
		t.Fatalf("saved config missing model change: %s", text)
	}
}

func TestSetModelRejectsEmpty(t *testing.T) {
	cfg := config.DefaultConfig()
	configPath := filepath.Join(t.TempDir(), "config.json")

	if err := SetModel(cfg, configPath, "   "); err == nil {
		t.Fatalf("expected error for blank model name")
	}
	if _, err := os.Stat(configPath); !os.IsNotExist(err) {
		t.Fatalf("blank model must not write config")
	}
}

func TestSetEffortPersists(t *testing.T) {
	cfg := config.DefaultConfig()
	configPath := filepath.Join(t.TempDir(), "config.json")

	if err := SetEffort(cfg, configPath, "  HIGH "); err != nil {
		t.Fatalf("SetEffort: %v", err)
	}
	if got, want := cfg.Agents.Defaults.ReasoningEffort, "high"; got != want {
		t.Fatalf("effort = %q, want %q", got, want)
	}

	raw, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	if !strings.Contains(string(raw), `"reasoning_effort": "high"`) {
		t.Fatalf("saved config missing effort: %s", raw)
	}
}

func TestSetEffortRejectsUnknown(t *testing.T) {
	cfg := config.DefaultConfig()
	configPath := filepath.Join(t.TempDir(), "config.json")

	err := SetEffort(cfg, configPath, "extreme")
	if err == nil {
		t.Fatalf("expected error for unknown effort")
	}
	if !strings.Contains(err.Error(), "low, medium, high") {
		t.Fatalf("error should list valid values, got: %v", err)
	}
	if cfg.Agents.Defaults.ReasoningEffort != "" {
		t.Fatalf("rejected effort must not change config")
	}
}

func TestVendorOf(t *testing.T) {
	cases := []struct {
		model string
		want  string
	}{
		{"claude-opus-4-6", "anthropic"},
		{"gpt-5.3-codex", "openai"},
		{"gpt-5.2", "openai"},
		{"gemini-2.5-flash", "google"},
		{"glm-4.7", "zhipu"},
		{"llama-3.3-70b", "unknown"},
		{"", "unknown"},
	}
	for _, tc := range cases {
		if got := VendorOf(tc.model); got != tc.want {
			t.Errorf("VendorOf(%q) = %q, want %q", tc.model, got, tc.want)
		}
	}
}

func TestCatalogVendorsConsistent(t *testing.T) {
	for _, m := range Catalog() {
		if got := VendorOf(m.ID); got != m.Vendor {
			t.Errorf("VendorOf(%q) = %q, catalog says %q", m.ID, got, m.Vendor)
		}
		if !IsKnown(m.ID) {
			t.Errorf("IsKnown(%q) = false for catalog entry", m.ID)
		}
	}
	if IsKnown("made-up-model") {
		t.Fatalf("IsKnown should reject IDs outside the catalog")
	}
}

func TestIsValidEffort(t *testing.T) {
	for _, e := range ValidEfforts {
		if !IsValidEffort(e) {
			t.Errorf("IsValidEffort(%q) = false", e)
		}
	}
	if IsValidEffort("turbo") {
		t.Fatalf("IsValidEffort should reject values droid does not take")
	}
}
