package config

import (
	"fmt"
	"strings"
)

// Autonomy levels, in increasing order of permissions.
const (
	AutonomyOff    = "off"
	AutonomyLow    = "low"
	AutonomyMedium = "medium"
	AutonomyHigh   = "high"
	AutonomyFull   = "full"
)

// AutonomyConfig decides which actions a session may perform without
// asking. Applying a level overwrites the sub-configs from a preset;
// no other cross-field enforcement happens.
type AutonomyConfig struct {
	Level   string                `json:"level" env:"AUTONOMY_LEVEL"`
	Git     AutonomyGitConfig     `json:"git"`
	Preview AutonomyPreviewConfig `json:"preview"`
	Exec    AutonomyExecConfig    `json:"exec"`
	Safety  AutonomySafetyConfig  `json:"safety"`
}

type AutonomyGitConfig struct {
	AutoCommit bool `json:"auto_commit"`
	AutoPush   bool `json:"auto_push"`
	AutoPR     bool `json:"auto_pr"`
}

type AutonomyPreviewConfig struct {
	AutoDeploy  bool `json:"auto_deploy"`
	AutoPromote bool `json:"auto_promote"`
}

type AutonomyExecConfig struct {
	Enabled        bool     `json:"enabled"`
	Allowlist      []string `json:"allowlist"`
	Blocklist      []string `json:"blocklist"`
	TimeoutSeconds int      `json:"timeout_seconds"`
}

type AutonomySafetyConfig struct {
	MaxCommandsPerTask int  `json:"max_commands_per_task"`
	MaxFixAttempts     int  `json:"max_fix_attempts"`
	NotifyOnAction     bool `json:"notify_on_action"`
}

// AutonomyLevels lists valid levels in ascending order.
func AutonomyLevels() []string {
	return []string{AutonomyOff, AutonomyLow, AutonomyMedium, AutonomyHigh, AutonomyFull}
}

// IsValidAutonomyLevel reports whether level names a known preset.
func IsValidAutonomyLevel(level string) bool {
	switch strings.ToLower(level) {
	case AutonomyOff, AutonomyLow, AutonomyMedium, AutonomyHigh, AutonomyFull:
		return true
	}
	return false
}

// Allowlists per level. Entries are "binary" or "binary subcommand";
// a bare binary allows all of its subcommands.
var (
	autonomyLowAllowlist = []string{
		"ls", "cat", "pwd", "head", "tail", "wc", "grep", "find", "which", "echo",
		"git status", "git log", "git diff", "git branch", "git remote",
		"node --version", "npm --version", "go version",
	}

	autonomyMediumAllowlist = append(append([]string{}, autonomyLowAllowlist...),
		"npm install", "npm ci", "npm run", "npm test",
		"pnpm install", "pnpm run", "pnpm test",
		"yarn install", "yarn run", "yarn test",
		"bun install", "bun run", "bun test",
		"node", "npx", "tsc",
		"go build", "go test", "go vet", "go fmt", "go mod",
		"git add", "git commit", "git checkout", "git stash", "git fetch", "git pull",
		"mkdir", "touch", "cp", "mv",
	)

	autonomyHighAllowlist = append(append([]string{}, autonomyMediumAllowlist...),
		"git push", "git merge", "git rebase", "git tag",
		"vercel", "gh",
	)
)

// autonomyPresets maps level to the sub-configs that level implies.
var autonomyPresets = map[string]AutonomyConfig{
	AutonomyOff: {
		Level:   AutonomyOff,
		Git:     AutonomyGitConfig{},
		Preview: AutonomyPreviewConfig{},
		Exec:    AutonomyExecConfig{Enabled: false, Allowlist: []string{}, Blocklist: []string{}, TimeoutSeconds: 30},
		Safety:  AutonomySafetyConfig{MaxCommandsPerTask: 0, MaxFixAttempts: 0, NotifyOnAction: true},
	},
	AutonomyLow: {
		Level:   AutonomyLow,
		Git:     AutonomyGitConfig{},
		Preview: AutonomyPreviewConfig{},
		Exec:    AutonomyExecConfig{Enabled: true, Allowlist: autonomyLowAllowlist, Blocklist: []string{}, TimeoutSeconds: 30},
		Safety:  AutonomySafetyConfig{MaxCommandsPerTask: 5, MaxFixAttempts: 0, NotifyOnAction: true},
	},
	AutonomyMedium: {
		Level:   AutonomyMedium,
		Git:     AutonomyGitConfig{AutoCommit: true},
		Preview: AutonomyPreviewConfig{},
		Exec:    AutonomyExecConfig{Enabled: true, Allowlist: autonomyMediumAllowlist, Blocklist: []string{}, TimeoutSeconds: 60},
		Safety:  AutonomySafetyConfig{MaxCommandsPerTask: 10, MaxFixAttempts: 1, NotifyOnAction: true},
	},
	AutonomyHigh: {
		Level:   AutonomyHigh,
		Git:     AutonomyGitConfig{AutoCommit: true, AutoPush: true},
		Preview: AutonomyPreviewConfig{AutoDeploy: true},
		Exec:    AutonomyExecConfig{Enabled: true, Allowlist: autonomyHighAllowlist, Blocklist: []string{}, TimeoutSeconds: 120},
		Safety:  AutonomySafetyConfig{MaxCommandsPerTask: 20, MaxFixAttempts: 2, NotifyOnAction: true},
	},
	AutonomyFull: {
		Level:   AutonomyFull,
		Git:     AutonomyGitConfig{AutoCommit: true, AutoPush: true, AutoPR: true},
		Preview: AutonomyPreviewConfig{AutoDeploy: true, AutoPromote: true},
		Exec:    AutonomyExecConfig{Enabled: true, Allowlist: autonomyHighAllowlist, Blocklist: []string{}, TimeoutSeconds: 300},
		Safety:  AutonomySafetyConfig{MaxCommandsPerTask: 50, MaxFixAttempts: 2, NotifyOnAction: false},
	},
}

// AutonomyPreset returns a deep copy of the preset for level.
func AutonomyPreset(level string) (AutonomyConfig, bool) {
	preset, ok := autonomyPresets[strings.ToLower(level)]
	if !ok {
		return AutonomyConfig{}, false
	}
	out := preset
	out.Exec.Allowlist = append([]string{}, preset.Exec.Allowlist...)
	out.Exec.Blocklist = append([]string{}, preset.Exec.Blocklist...)
	return out, true
}

// DefaultAutonomyConfig returns the preset for the default level.
func DefaultAutonomyConfig() AutonomyConfig {
	preset, _ := AutonomyPreset(AutonomyLow)
	return preset
}

// ApplyAutonomyLevel overwrites c's sub-configs from the named preset.
func (c *AutonomyConfig) ApplyAutonomyLevel(level string) error {
	preset, ok := AutonomyPreset(level)
	if !ok {
		return fmt.Errorf("unknown autonomy level %q (valid: %s)", level, strings.Join(AutonomyLevels(), ", "))
	}
	*c = preset
	return nil
}

// ValidateAutonomyConfig checks the level name and timeout bounds.
func ValidateAutonomyConfig(c AutonomyConfig) error {
	if c.Level != "" && !IsValidAutonomyLevel(c.Level) {
		return fmt.Errorf("autonomy.level must be one of %s, got %q", strings.Join(AutonomyLevels(), ", "), c.Level)
	}
	if c.Exec.TimeoutSeconds < 0 {
		return fmt.Errorf("autonomy.exec.timeout_seconds must not be negative")
	}
	return nil
}
