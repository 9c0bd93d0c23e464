package droid

import (
	"encoding/json"
	"strings"
)

// Response is the final outcome of one droid exec invocation.
type Response struct {
	Text      string
	SessionID string
	IsError   bool
	Subtype   string
}

// event is one decoded JSON object from droid stdout. Field names vary
// between droid releases, so decoding goes through a permissive map
// instead of a fixed struct.
type event struct {
	Type      string
	Subtype   string
	Text      string
	SessionID string
	IsError   bool
}

func decodeEvent(data []byte) (event, bool) {
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return event{}, false
	}
	ev := event{}
	ev.Type, _ = m["type"].(string)
	ev.Subtype, _ = m["subtype"].(string)
	ev.Text = firstString(m, "result", "message", "output", "text")
	if ev.Text == "" {
		// Some releases nest the payload: {"message":{"content":"..."}}.
		if nested, ok := m["message"].(map[string]interface{}); ok {
			ev.Text = firstString(nested, "content", "text")
		}
	}
	ev.SessionID = firstString(m, "sessionId", "session_id")
	ev.IsError = firstBool(m, "is_error", "isError")
	return ev, true
}

func firstString(m map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func firstBool(m map[string]interface{}, keys ...string) bool {
	for _, k := range keys {
		if b, ok := m[k].(bool); ok {
			return b
		}
	}
	return false
}

// terminal reports whether the event can stand as the final result.
func (ev event) terminal() bool {
	return ev.Text != "" || ev.Type == "result" || ev.IsError
}

func responseFrom(ev event) *Response {
	return &Response{
		Text:      ev.Text,
		SessionID: ev.SessionID,
		IsError:   ev.IsError,
		Subtype:   ev.Subtype,
	}
}

// parseOutput reads droid stdout as either a single JSON object or
// JSON-Lines. In line mode the last terminal event wins and the session
// ID is taken from any event that carries one.
func parseOutput(stdout string) (*Response, error) {
	trimmed := strings.TrimSpace(stdout)
	if trimmed == "" {
		return nil, &RunError{Kind: ErrorParse, Detail: "empty output"}
	}

	if ev, ok := decodeEvent([]byte(trimmed)); ok && ev.terminal() {
		return responseFrom(ev), nil
	}

	var resp *Response
	var sessionID string
	for _, line := range strings.Split(trimmed, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || !strings.HasPrefix(line, "{") {
			continue
		}
		ev, ok := decodeEvent([]byte(line))
		if !ok {
			continue
		}
		if ev.SessionID != "" {
			sessionID = ev.SessionID
		}
		if ev.terminal() {
			resp = responseFrom(ev)
		}
	}
	if resp == nil {
		return nil, &RunError{Kind: ErrorParse, Detail: sampleOf(trimmed, 200)}
	}
	if resp.SessionID == "" {
		resp.SessionID = sessionID
	}
	return resp, nil
}

// sampleOf keeps the first max characters, for parse diagnostics.
func sampleOf(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
