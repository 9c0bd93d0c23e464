package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Config is the root configuration stored at ~/.droidgram/config.json.
type Config struct {
	Agents    AgentsConfig    `json:"agents"`
	Channels  ChannelsConfig  `json:"channels"`
	Droid     DroidConfig     `json:"droid"`
	Autonomy  AutonomyConfig  `json:"autonomy"`
	Deploy    DeployConfig    `json:"deploy"`
	Jobs      JobsConfig      `json:"jobs"`
	Routing   RoutingConfig   `json:"routing"`
	Heartbeat HeartbeatConfig `json:"heartbeat"`
}

type AgentsConfig struct {
	Defaults AgentDefaults `json:"defaults"`
}

type AgentDefaults struct {
	Workspace           string `json:"workspace" env:"WORKSPACE"`
	Model               string `json:"model" env:"MODEL"`
	ReasoningEffort     string `json:"reasoning_effort" env:"REASONING_EFFORT"`
	RestrictToWorkspace bool   `json:"restrict_to_workspace"`
}

type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
	Discord  DiscordConfig  `json:"discord"`
}

type TelegramConfig struct {
	Enabled   bool                `json:"enabled"`
	Token     string              `json:"token" env:"TELEGRAM_TOKEN"`
	AllowFrom FlexibleStringSlice `json:"allow_from"`
	Proxy     string              `json:"proxy,omitempty"`
}

type DiscordConfig struct {
	Enabled   bool                `json:"enabled"`
	Token     string              `json:"token" env:"DISCORD_TOKEN"`
	AllowFrom FlexibleStringSlice `json:"allow_from"`
}

// DroidConfig controls how the droid CLI subprocess is launched.
type DroidConfig struct {
	Binary             string `json:"binary,omitempty" env:"DROID_BINARY"`
	AutoLevel          string `json:"auto_level,omitempty"`
	IdleTimeoutSeconds int    `json:"idle_timeout_seconds,omitempty" env:"DROID_IDLE_TIMEOUT"`
	HardTimeoutSeconds int    `json:"hard_timeout_seconds,omitempty" env:"DROID_HARD_TIMEOUT"`
}

// DeployConfig controls the vercel deploy loop.
type DeployConfig struct {
	MaxRetries int      `json:"max_retries"`
	Prod       bool     `json:"prod"`
	Scope      string   `json:"scope,omitempty"`
	Regions    []string `json:"regions,omitempty"`
	VerifyURL  bool     `json:"verify_url"`
}

// JobsConfig controls the async job queue.
type JobsConfig struct {
	Enabled     bool   `json:"enabled"`
	MaxAttempts int    `json:"max_attempts"`
	PollSeconds int    `json:"poll_seconds,omitempty"`
	Schedule    string `json:"schedule,omitempty"`
}

type HeartbeatConfig struct {
	Enabled         bool `json:"enabled"`
	IntervalMinutes int  `json:"interval_minutes,omitempty"`
}

// FlexibleStringSlice accepts either a JSON string or an array of strings.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if single == "" {
			*f = FlexibleStringSlice{}
			return nil
		}
		parts := strings.Split(single, ",")
		out := make(FlexibleStringSlice, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		*f = out
		return nil
	}

	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("allow list must be a string or array of strings: %w", err)
	}
	*f = FlexibleStringSlice(list)
	return nil
}

// DefaultConfig returns the config used when no file exists yet.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Agents: AgentsConfig{
			Defaults: AgentDefaults{
				Workspace:           filepath.Join(home, "droidgram"),
				Model:               "",
				ReasoningEffort:     "",
				RestrictToWorkspace: true,
			},
		},
		Channels: ChannelsConfig{
			Telegram: TelegramConfig{Enabled: false, AllowFrom: FlexibleStringSlice{}},
			Discord:  DiscordConfig{Enabled: false, AllowFrom: FlexibleStringSlice{}},
		},
		Droid: DroidConfig{
			IdleTimeoutSeconds: 120,
			HardTimeoutSeconds: 900,
		},
		Autonomy: DefaultAutonomyConfig(),
		Deploy: DeployConfig{
			MaxRetries: 2,
			VerifyURL:  true,
		},
		Jobs: JobsConfig{
			Enabled:     true,
			MaxAttempts: 2,
			PollSeconds: 5,
		},
		Routing: RoutingConfig{
			Enabled:          false,
			UnmappedBehavior: RoutingUnmappedBehaviorBlock,
			Mappings:         []RoutingMapping{},
		},
		Heartbeat: HeartbeatConfig{
			Enabled:         true,
			IntervalMinutes: 30,
		},
	}
}

// ConfigDir returns ~/.droidgram, creating nothing.
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".droidgram"
	}
	return filepath.Join(home, ".droidgram")
}

// DefaultConfigPath returns the standard config file location.
func DefaultConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

// WorkspacePath returns the configured agent workspace with ~ expanded.
func (c *Config) WorkspacePath() string {
	ws := c.Agents.Defaults.Workspace
	if ws == "" {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "droidgram")
	}
	if strings.HasPrefix(ws, "~") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, strings.TrimPrefix(ws, "~"))
		}
	}
	return ws
}

// LoadConfig reads, validates, and applies env overrides to the config at path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Routing.UnmappedBehavior == "" {
		cfg.Routing.UnmappedBehavior = RoutingUnmappedBehaviorBlock
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("apply env overrides: %w", err)
	}
	if err := ValidateRoutingConfig(cfg.Routing); err != nil {
		return nil, err
	}
	if err := ValidateAutonomyConfig(cfg.Autonomy); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveConfig validates and writes the config as indented JSON.
func SaveConfig(path string, cfg *Config) error {
	if err := ValidateRoutingConfig(cfg.Routing); err != nil {
		return err
	}
	if err := ValidateAutonomyConfig(cfg.Autonomy); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) error {
	return env.ParseWithOptions(cfg, env.Options{Prefix: "DROIDGRAM_"})
}
