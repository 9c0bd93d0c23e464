package droid

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestLooksLikeAuthError(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"Error: 401 Unauthorized", true},
		{"request failed: Invalid API key provided", true},
		{"Invalid token", true},
		{"FORBIDDEN", true},
		{"you are not logged in", true},
		{"all 14 tests passed", false},
		{"deployed to production", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := looksLikeAuthError(tt.in); got != tt.want {
			t.Errorf("looksLikeAuthError(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestClassify(t *testing.T) {
	direct := &RunError{Kind: ErrorAuth}
	if got := Classify(direct); got != ErrorAuth {
		t.Errorf("Classify(direct) = %v", got)
	}

	wrapped := fmt.Errorf("handling message: %w", &RunError{Kind: ErrorIdleTimeout})
	if got := Classify(wrapped); got != ErrorIdleTimeout {
		t.Errorf("Classify(wrapped) = %v", got)
	}

	if got := Classify(errors.New("plain")); got != ErrorExec {
		t.Errorf("Classify(plain) = %v, want %v", got, ErrorExec)
	}
}

func TestRunError_ErrorString(t *testing.T) {
	e := &RunError{Kind: ErrorExec, Err: errors.New("exit status 2"), Detail: "boom"}
	got := e.Error()
	for _, want := range []string{"droid exec", "exit status 2", "boom"} {
		if !strings.Contains(got, want) {
			t.Errorf("Error() = %q, missing %q", got, want)
		}
	}
}

func TestUserMessage_Auth(t *testing.T) {
	msg := UserMessage(&RunError{Kind: ErrorAuth, Detail: "401 from backend"})
	if !strings.Contains(msg, "sign in") {
		t.Errorf("auth message should tell the user to sign in, got %q", msg)
	}
	if !strings.Contains(msg, "401 from backend") {
		t.Errorf("auth message should carry the detail, got %q", msg)
	}
}

func TestUserMessage_BinaryNotFound(t *testing.T) {
	msg := UserMessage(&RunError{Kind: ErrorBinaryNotFound, Detail: "droid"})
	if !strings.Contains(msg, "droid.binary") {
		t.Errorf("message should point at the config key, got %q", msg)
	}
}

func TestUserMessage_RedactsAndTruncates(t *testing.T) {
	detail := "VERCEL_TOKEN=abc123secretvalue failed\n" + strings.Repeat("x", 4000)
	msg := UserMessage(&RunError{Kind: ErrorExec, Detail: detail})

	if strings.Contains(msg, "abc123secretvalue") {
		t.Error("secret leaked into user message")
	}
	if !strings.Contains(msg, "VERCEL_TOKEN=***") {
		t.Errorf("expected masked assignment, got %q", msg)
	}
	if !strings.Contains(msg, "(truncated)") {
		t.Error("expected truncation marker")
	}
	if n := len([]rune(msg)); n > maxUserMessageChars+40 {
		t.Errorf("message length %d exceeds cap", n)
	}
}

func TestUserMessage_GenericFallback(t *testing.T) {
	msg := UserMessage(errors.New("boom"))
	if !strings.Contains(msg, "/reset") {
		t.Errorf("fallback should mention /reset, got %q", msg)
	}
}
