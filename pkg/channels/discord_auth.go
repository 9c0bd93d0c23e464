package channels

import "strings"

// NormalizeDiscordBotToken strips surrounding quotes and an optional
// "Bot " prefix left over from copy/paste, returning the bare token.
func NormalizeDiscordBotToken(token string) string {
	t := strings.TrimSpace(token)
	t = strings.Trim(t, "\"'")
	t = strings.TrimSpace(t)

	parts := strings.Fields(t)
	if len(parts) >= 2 && strings.EqualFold(parts[0], "bot") {
		return strings.Join(parts[1:], "")
	}
	return t
}
