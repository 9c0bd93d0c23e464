package models

import (
	"fmt"
	"strings"

	"github.com/droidgram/droidgram/pkg/config"
)

// Model is one entry in the curated catalog of IDs accepted by droid's
// -m flag. droid owns provider credentials and routing, so the catalog
// is a naming aid, not a gate.
type Model struct {
	ID     string
	Vendor string
	Notes  string
}

// ValidEfforts are the values droid accepts for its -r flag.
var ValidEfforts = []string{"low", "medium", "high"}

// Catalog returns the known model IDs, grouped by vendor.
func Catalog() []Model {
	return []Model{
		{ID: "claude-opus-4-6", Vendor: "anthropic", Notes: "deep multi-step work"},
		{ID: "claude-sonnet-4-5-20250929", Vendor: "anthropic", Notes: "daily driver"},
		{ID: "claude-haiku-4-5-20251001", Vendor: "anthropic", Notes: "fast, cheap"},
		{ID: "gpt-5.3-codex", Vendor: "openai"},
		{ID: "gpt-5.3-codex-spark", Vendor: "openai", Notes: "low latency"},
		{ID: "gpt-5.2-codex", Vendor: "openai"},
		{ID: "gpt-5.2", Vendor: "openai"},
		{ID: "gemini-2.5-pro", Vendor: "google"},
		{ID: "gemini-2.5-flash", Vendor: "google", Notes: "fast, cheap"},
		{ID: "glm-4.7", Vendor: "zhipu"},
	}
}

// VendorOf returns the vendor name implied by a model ID string.
func VendorOf(model string) string {
	lower := strings.ToLower(model)
	switch {
	case strings.Contains(lower, "claude"):
		return "anthropic"
	case strings.Contains(lower, "gpt"), strings.Contains(lower, "codex"),
		strings.Contains(lower, "o3"), strings.Contains(lower, "o4"):
		return "openai"
	case strings.Contains(lower, "gemini"):
		return "google"
	case strings.Contains(lower, "glm"):
		return "zhipu"
	default:
		return "unknown"
	}
}

// IsKnown reports whether the model ID is in the curated catalog.
func IsKnown(model string) bool {
	for _, m := range Catalog() {
		if m.ID == model {
			return true
		}
	}
	return false
}

// IsValidEffort reports whether effort is a value droid's -r flag accepts.
func IsValidEffort(effort string) bool {
	for _, e := range ValidEfforts {
		if e == effort {
			return true
		}
	}
	return false
}

// PrintList displays the current model, effort setting, and the catalog.
func PrintList(cfg *config.Config) {
	current := strings.TrimSpace(cfg.Agents.Defaults.Model)
	if current == "" {
		fmt.Println("Current model: (droid default)")
	} else {
		fmt.Printf("Current model: %s\n", current)
		fmt.Printf("Vendor: %s\n", VendorOf(current))
	}

	if cfg.Agents.Defaults.ReasoningEffort != "" {
		fmt.Printf("Reasoning effort: %s\n", cfg.Agents.Defaults.ReasoningEffort)
	} else {
		fmt.Println("Reasoning effort: (droid default)")
	}

	fmt.Println("\nKnown models:")
	vendor := ""
	for _, m := range Catalog() {
		if m.Vendor != vendor {
			vendor = m.Vendor
			fmt.Printf("  %s\n", vendor)
		}
		if m.Notes != "" {
			fmt.Printf("    - %s (%s)\n", m.ID, m.Notes)
		} else {
			fmt.Printf("    - %s\n", m.ID)
		}
	}

	fmt.Println("\nSwitch with: droidgram models set <id>")
}

// SetModel validates and persists a new default model.
func SetModel(cfg *config.Config, configPath string, newModel string) error {
	newModel = strings.TrimSpace(newModel)
	if newModel == "" {
		return fmt.Errorf("model name is required")
	}

	if !IsKnown(newModel) {
		fmt.Printf("Warning: %q is not in the known model list.\n", newModel)
		fmt.Printf("The model will be set anyway; droid rejects it at run time if it does not exist.\n\n")
	}

	oldModel := cfg.Agents.Defaults.Model
	if strings.TrimSpace(oldModel) == "" {
		oldModel = "(droid default)"
	}
	cfg.Agents.Defaults.Model = newModel

	if err := config.SaveConfig(configPath, cfg); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	fmt.Printf("Model changed: %s → %s\n", oldModel, newModel)
	fmt.Printf("Vendor: %s\n", VendorOf(newModel))
	return nil
}

// SetEffort validates and persists a new default reasoning effort.
func SetEffort(cfg *config.Config, configPath string, effort string) error {
	effort = strings.ToLower(strings.TrimSpace(effort))
	if !IsValidEffort(effort) {
		return fmt.Errorf("invalid reasoning effort %q: valid values are %s", effort, strings.Join(ValidEfforts, ", "))
	}

	old := cfg.Agents.Defaults.ReasoningEffort
	if old == "" {
		old = "(none)"
	}
	cfg.Agents.Defaults.ReasoningEffort = effort

	if err := config.SaveConfig(configPath, cfg); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	fmt.Printf("Reasoning effort changed: %s → %s\n", old, effort)
	return nil
}

// PrintStatus displays the current model settings.
func PrintStatus(cfg *config.Config) {
	model := strings.TrimSpace(cfg.Agents.Defaults.Model)
	if model == "" {
		fmt.Printf("Model:            (droid default)\n")
	} else {
		fmt.Printf("Model:            %s\n", model)
		fmt.Printf("Vendor:           %s\n", VendorOf(model))
	}

	if cfg.Agents.Defaults.ReasoningEffort != "" {
		fmt.Printf("Reasoning Effort: %s\n", cfg.Agents.Defaults.ReasoningEffort)
	} else {
		fmt.Printf("Reasoning Effort: (droid default)\n")
	}
}

// GetConfigPath returns the standard config file path.
func GetConfigPath() string {
	return config.DefaultConfigPath()
}
