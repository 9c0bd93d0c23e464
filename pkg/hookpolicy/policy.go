package hookpolicy

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/droidgram/droidgram/pkg/hooks"
)

// PolicyFileName is the per-workspace policy file, at the workspace root.
const PolicyFileName = "hooks.yaml"

// Verbosity levels for captured hook context.
const (
	VerbosityMinimal = "minimal"
	VerbosityNormal  = "normal"
	VerbosityVerbose = "verbose"
)

// Policy controls which lifecycle events fire and what they capture.
type Policy struct {
	Enabled bool
	Audit   AuditPolicy
	Events  map[hooks.Event]EventPolicy
}

// AuditPolicy controls the JSONL audit trail.
type AuditPolicy struct {
	Enabled bool
	Path    string
}

// EventPolicy is the per-event configuration.
type EventPolicy struct {
	Enabled       bool
	Verbosity     string
	CaptureFields []string
	Instructions  []string
}

// Diagnostics carries non-fatal findings from policy loading.
type Diagnostics struct {
	Warnings []string
}

type policyFile struct {
	Enabled *bool                `yaml:"enabled"`
	Audit   *auditSection        `yaml:"audit"`
	Events  map[string]eventFile `yaml:"events"`
}

type auditSection struct {
	Enabled *bool  `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type eventFile struct {
	Enabled       *bool    `yaml:"enabled"`
	Verbosity     string   `yaml:"verbosity"`
	CaptureFields []string `yaml:"capture_fields"`
	Instructions  []string `yaml:"instructions"`
}

// Default is the policy used when no hooks.yaml exists: all events on,
// normal verbosity, audit trail enabled.
func Default() Policy {
	events := make(map[hooks.Event]EventPolicy, len(hooks.KnownEvents()))
	for _, ev := range hooks.KnownEvents() {
		events[ev] = EventPolicy{Enabled: true, Verbosity: VerbosityNormal}
	}
	return Policy{
		Enabled: true,
		Audit:   AuditPolicy{Enabled: true},
		Events:  events,
	}
}

// Load reads <workspace>/hooks.yaml. A missing file yields the default
// policy with no error; a malformed file yields the default policy plus
// the parse error so callers can surface it without losing hooks.
func Load(workspace string) (Policy, Diagnostics, error) {
	return LoadFile(filepath.Join(workspace, PolicyFileName))
}

func LoadFile(path string) (Policy, Diagnostics, error) {
	policy := Default()
	var diag Diagnostics

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return policy, diag, nil
		}
		return policy, diag, fmt.Errorf("read hook policy: %w", err)
	}

	var file policyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return policy, diag, fmt.Errorf("parse hook policy: %w", err)
	}

	if file.Enabled != nil {
		policy.Enabled = *file.Enabled
	}
	if file.Audit != nil {
		if file.Audit.Enabled != nil {
			policy.Audit.Enabled = *file.Audit.Enabled
		}
		if file.Audit.Path != "" {
			policy.Audit.Path = file.Audit.Path
		}
	}

	for name, raw := range file.Events {
		event := hooks.Event(strings.ToLower(strings.TrimSpace(name)))
		if !hooks.IsKnownEvent(event) {
			diag.Warnings = append(diag.Warnings, fmt.Sprintf("unknown hook event %q ignored", name))
			continue
		}
		entry := policy.Events[event]
		if raw.Enabled != nil {
			entry.Enabled = *raw.Enabled
		}
		if raw.Verbosity != "" {
			if isValidVerbosity(raw.Verbosity) {
				entry.Verbosity = raw.Verbosity
			} else {
				diag.Warnings = append(diag.Warnings, fmt.Sprintf("event %s: unknown verbosity %q, keeping %s", event, raw.Verbosity, entry.Verbosity))
			}
		}
		if len(raw.CaptureFields) > 0 {
			entry.CaptureFields = append([]string(nil), raw.CaptureFields...)
		}
		if len(raw.Instructions) > 0 {
			entry.Instructions = append([]string(nil), raw.Instructions...)
		}
		policy.Events[event] = entry
	}

	return policy, diag, nil
}

func isValidVerbosity(v string) bool {
	switch v {
	case VerbosityMinimal, VerbosityNormal, VerbosityVerbose:
		return true
	}
	return false
}

// EventEnabled reports whether ev should fire under this policy.
func (p Policy) EventEnabled(ev hooks.Event) bool {
	if !p.Enabled {
		return false
	}
	entry, ok := p.Events[ev]
	if !ok {
		return true
	}
	return entry.Enabled
}

// AuditPath resolves where the JSONL audit trail should live for a
// workspace, or "" when the trail is disabled. A relative configured
// path is joined onto the workspace.
func (p Policy) AuditPath(workspace string) string {
	if !p.Audit.Enabled {
		return ""
	}
	if p.Audit.Path == "" {
		return filepath.Join(workspace, "hooks", "hook-events.jsonl")
	}
	if filepath.IsAbs(p.Audit.Path) {
		return p.Audit.Path
	}
	return filepath.Join(workspace, p.Audit.Path)
}
