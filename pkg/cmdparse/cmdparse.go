// Package cmdparse extracts ordered shell-command sequences from free-form
// chat text. Numbered lists win over "Step N:" prefixes, which win over
// bullet lists, which win over fenced code blocks.
package cmdparse

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// ParsedCommand is one entry of an extracted command sequence.
type ParsedCommand struct {
	Index       int    `json:"index"`
	Raw         string `json:"raw"`
	Command     string `json:"command"`
	Description string `json:"description,omitempty"`
}

var (
	numberedRe = regexp.MustCompile(`(?m)(?:^|\s)(\d+)[.)]\s+`)
	stepRe     = regexp.MustCompile(`(?mi)(?:^|\s)step\s+(\d+)\s*[:.]\s*`)
	bulletRe   = regexp.MustCompile(`(?m)^\s*[-*•]\s+(.+)$`)
	fenceRe    = regexp.MustCompile("(?s)```[a-zA-Z]*\\n(.*?)```")

	trailingCommentRe = regexp.MustCompile(`\s+#.*$`)
	trailingParenRe   = regexp.MustCompile(`\s*\(([^)]*)\)\s*$`)
	inlineCodeRe      = regexp.MustCompile("^`(.+)`$")

	// Trailing "to <verb> ..." clauses are prose, not part of the command.
	trailingPurposeRe = regexp.MustCompile(`(?i)\s+to\s+(install|run|build|start|stop|create|check|verify|test|deploy|update|upgrade|fix|ensure|make|set|get|download|clean|remove|generate|compile|see|view|confirm|add|list|show)\b.*$`)
)

// Parse extracts an ordered command sequence from text. It never fails:
// unrecognizable input yields an empty slice. Results are sorted by the
// numeric index parsed from the text, not by position.
func Parse(text string) []ParsedCommand {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	commands := parseIndexed(text, numberedRe)
	if len(commands) == 0 {
		commands = parseIndexed(text, stepRe)
	}
	if len(commands) == 0 {
		commands = parseBullets(text)
	}
	if len(commands) == 0 {
		commands = parseFenced(text)
	}

	sort.SliceStable(commands, func(i, j int) bool {
		return commands[i].Index < commands[j].Index
	})
	return commands
}

// parseIndexed handles patterns that carry their own numeric index
// ("1. cmd", "2) cmd", "Step 3: cmd"). Each command runs from the end of
// its marker to the start of the next marker.
func parseIndexed(text string, re *regexp.Regexp) []ParsedCommand {
	matches := re.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return nil
	}

	out := make([]ParsedCommand, 0, len(matches))
	for i, m := range matches {
		idx, err := strconv.Atoi(text[m[2]:m[3]])
		if err != nil {
			continue
		}
		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		span := text[m[1]:end]
		// A marker's command ends at its own line even when the next
		// marker sits further down.
		if nl := strings.IndexByte(span, '\n'); nl >= 0 {
			span = span[:nl]
		}
		raw := strings.TrimSpace(span)
		if cmd, desc := cleanCommand(raw); cmd != "" {
			out = append(out, ParsedCommand{Index: idx, Raw: raw, Command: cmd, Description: desc})
		}
	}
	return out
}

func parseBullets(text string) []ParsedCommand {
	matches := bulletRe.FindAllStringSubmatch(text, -1)
	out := make([]ParsedCommand, 0, len(matches))
	for i, m := range matches {
		raw := strings.TrimSpace(m[1])
		if cmd, desc := cleanCommand(raw); cmd != "" {
			out = append(out, ParsedCommand{Index: i + 1, Raw: raw, Command: cmd, Description: desc})
		}
	}
	return out
}

// parseFenced treats each non-comment line inside ``` blocks as one
// command, indexed by line order across all blocks.
func parseFenced(text string) []ParsedCommand {
	blocks := fenceRe.FindAllStringSubmatch(text, -1)
	var out []ParsedCommand
	idx := 0
	for _, block := range blocks {
		for _, line := range strings.Split(block[1], "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "//") {
				continue
			}
			idx++
			if cmd, desc := cleanCommand(line); cmd != "" {
				out = append(out, ParsedCommand{Index: idx, Raw: line, Command: cmd, Description: desc})
			}
		}
	}
	return out
}

// cleanCommand strips chat prose from around a command and returns the
// command plus any description recovered from the stripped text.
func cleanCommand(raw string) (string, string) {
	cmd := strings.TrimSpace(raw)
	desc := ""

	if m := inlineCodeRe.FindStringSubmatch(cmd); m != nil {
		cmd = strings.TrimSpace(m[1])
	}
	if m := trailingParenRe.FindStringSubmatch(cmd); m != nil {
		desc = strings.TrimSpace(m[1])
		cmd = strings.TrimSpace(trailingParenRe.ReplaceAllString(cmd, ""))
	}
	if m := trailingPurposeRe.FindStringIndex(cmd); m != nil {
		if desc == "" {
			desc = strings.TrimSpace(cmd[m[0]:])
		}
		cmd = strings.TrimSpace(cmd[:m[0]])
	}
	cmd = strings.TrimSpace(trailingCommentRe.ReplaceAllString(cmd, ""))

	// A bare number or leftover punctuation is not a command.
	if cmd == "" || !strings.ContainsAny(cmd, "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ") {
		return "", ""
	}
	return cmd, desc
}
