package agent

import (
	"fmt"
	"strings"
	"time"
)

// ContextBuilder assembles the prompt handed to droid exec. droid reads
// AGENTS.md and DROID.md from the workspace on its own; the builder only
// adds what droid cannot know: which chat the turn came from, when, and
// the autonomy level in force.
type ContextBuilder struct {
	workspace string
	restrict  bool
	nowFn     func() time.Time
}

// TurnContext is the per-message metadata prefixed to a droid prompt.
type TurnContext struct {
	Channel  string
	ChatID   string
	SenderID string
	Autonomy string
}

func NewContextBuilder(workspace string, restrictToWorkspace bool) *ContextBuilder {
	return &ContextBuilder{
		workspace: workspace,
		restrict:  restrictToWorkspace,
		nowFn:     time.Now,
	}
}

// BuildPrompt prefixes the user message with a compact turn header.
// Media stashed by a channel adapter is already annotated inline in the
// message ("[file saved: …]"), so the header never repeats it.
func (cb *ContextBuilder) BuildPrompt(content string, tc TurnContext) string {
	var sb strings.Builder

	sb.WriteString("[droidgram turn]\n")
	fmt.Fprintf(&sb, "channel: %s\n", orUnknown(tc.Channel))
	fmt.Fprintf(&sb, "chat_id: %s\n", orUnknown(tc.ChatID))
	if tc.SenderID != "" {
		fmt.Fprintf(&sb, "sender: %s\n", tc.SenderID)
	}
	fmt.Fprintf(&sb, "time: %s\n", cb.nowFn().Format("2006-01-02 15:04 (Monday)"))
	if tc.Autonomy != "" {
		fmt.Fprintf(&sb, "autonomy: %s\n", tc.Autonomy)
	}

	sb.WriteString("You are replying inside a chat window. Keep answers brief and use plain text; long command transcripts belong in the workspace, not the reply.\n")
	if cb.restrict {
		fmt.Fprintf(&sb, "Stay inside %s; do not read or write files outside it.\n", cb.workspace)
	}

	sb.WriteString("\n")
	sb.WriteString(content)
	return sb.String()
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "unknown"
	}
	return s
}
