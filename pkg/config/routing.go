package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// RoutingUnmappedBehaviorBlock rejects messages with no mapping.
	RoutingUnmappedBehaviorBlock = "block"
	// RoutingUnmappedBehaviorDefault routes unmapped messages to the
	// default workspace.
	RoutingUnmappedBehaviorDefault = "default"
)

// RoutingConfig maps chats to workspaces.
type RoutingConfig struct {
	Enabled          bool             `json:"enabled"`
	UnmappedBehavior string           `json:"unmapped_behavior"`
	Mappings         []RoutingMapping `json:"mappings"`
}

// RoutingMapping binds one channel/chat pair to a workspace.
type RoutingMapping struct {
	Channel        string              `json:"channel"`
	ChatID         string              `json:"chat_id"`
	Workspace      string              `json:"workspace"`
	AllowedSenders FlexibleStringSlice `json:"allowed_senders"`
	Label          string              `json:"label,omitempty"`
	RequireMention *bool               `json:"require_mention,omitempty"`
}

// MentionRequired reports whether group messages must mention the bot
// to be routed. Defaults to true when unset.
func (m RoutingMapping) MentionRequired() bool {
	if m.RequireMention == nil {
		return true
	}
	return *m.RequireMention
}

// ValidateRoutingConfig checks mapping fields, workspace paths, and
// duplicate channel/chat pairs.
func ValidateRoutingConfig(r RoutingConfig) error {
	switch r.UnmappedBehavior {
	case "", RoutingUnmappedBehaviorBlock, RoutingUnmappedBehaviorDefault:
	default:
		return fmt.Errorf("routing.unmapped_behavior must be %q or %q, got %q",
			RoutingUnmappedBehaviorBlock, RoutingUnmappedBehaviorDefault, r.UnmappedBehavior)
	}

	seen := make(map[string]int, len(r.Mappings))
	for i, m := range r.Mappings {
		where := fmt.Sprintf("routing.mappings[%d]", i)
		if m.Label != "" {
			where = fmt.Sprintf("%s (%s)", where, m.Label)
		}

		channel := strings.ToLower(strings.TrimSpace(m.Channel))
		if channel == "" {
			return fmt.Errorf("%s: channel is required", where)
		}
		chatID := strings.TrimSpace(m.ChatID)
		if chatID == "" {
			return fmt.Errorf("%s: chat_id is required", where)
		}

		key := channel + "\x00" + chatID
		if prev, dup := seen[key]; dup {
			return fmt.Errorf("%s: duplicates mapping %d for %s/%s", where, prev, channel, chatID)
		}
		seen[key] = i

		if m.Workspace == "" {
			return fmt.Errorf("%s: workspace is required", where)
		}
		if !filepath.IsAbs(m.Workspace) {
			return fmt.Errorf("%s: workspace must be an absolute path, got %q", where, m.Workspace)
		}
		if info, err := os.Stat(m.Workspace); err != nil || !info.IsDir() {
			return fmt.Errorf("%s: workspace %q is not accessible", where, m.Workspace)
		}

		if len(m.AllowedSenders) == 0 {
			return fmt.Errorf("%s: allowed_senders must not be empty", where)
		}
	}
	return nil
}
