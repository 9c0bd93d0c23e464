package droid

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind buckets droid failures for user-facing reporting.
type ErrorKind string

const (
	ErrorBinaryNotFound ErrorKind = "binary_not_found"
	ErrorAuth           ErrorKind = "auth"
	ErrorParse          ErrorKind = "parse"
	ErrorIdleTimeout    ErrorKind = "idle_timeout"
	ErrorHardTimeout    ErrorKind = "hard_timeout"
	ErrorExec           ErrorKind = "exec"
)

// RunError is a classified droid failure plus a trimmed diagnostic.
type RunError struct {
	Kind   ErrorKind
	Err    error
	Detail string
}

func (e *RunError) Error() string {
	msg := fmt.Sprintf("droid %s", e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

func (e *RunError) Unwrap() error { return e.Err }

// Classify extracts the kind from an error chain. Errors that never went
// through the runner map to ErrorExec.
func Classify(err error) ErrorKind {
	var re *RunError
	if errors.As(err, &re) {
		return re.Kind
	}
	return ErrorExec
}

// Keywords that mark failed output as an authentication problem. Only
// consulted after an invocation has already failed, so ordinary mentions
// of these words inside a successful droid result are never sniffed.
var authKeywords = []string{
	"401",
	"403",
	"unauthorized",
	"forbidden",
	"invalid token",
	"invalid api key",
	"api_key",
	"api key",
	"not logged in",
	"authentication failed",
	"credit balance",
}

func looksLikeAuthError(s string) bool {
	lower := strings.ToLower(s)
	for _, kw := range authKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

const maxUserMessageChars = 2500

// UserMessage renders any droid failure as actionable chat text. Output
// is redacted and capped so raw stack traces and secrets never reach a
// user.
func UserMessage(err error) string {
	var re *RunError
	if !errors.As(err, &re) {
		return finishUserMessage("Something unexpected went wrong while running droid. Try again, or send /reset to start a fresh session.")
	}

	var msg string
	switch re.Kind {
	case ErrorBinaryNotFound:
		msg = "The droid CLI isn't installed or isn't on PATH. Install it, or point droid.binary in ~/.droidgram/config.json at the executable."
	case ErrorAuth:
		msg = "droid can't authenticate with its backend. Open a terminal, run `droid`, sign in again, then retry."
		if re.Detail != "" {
			msg += "\n\nDetails: " + re.Detail
		}
	case ErrorParse:
		msg = "droid returned output I couldn't read. Retrying usually clears this; /reset starts a clean session."
		if re.Detail != "" {
			msg += "\n\nOutput sample: " + re.Detail
		}
	case ErrorIdleTimeout:
		msg = "droid went quiet and was stopped. Try a smaller step, or /reset if this keeps happening."
		if re.Detail != "" {
			msg += "\n\nPartial output:\n" + re.Detail
		}
	case ErrorHardTimeout:
		msg = "droid hit the time ceiling and was stopped. Break the task into smaller steps, or raise droid.hard_timeout_seconds in the config."
		if re.Detail != "" {
			msg += "\n\nPartial output:\n" + re.Detail
		}
	default:
		msg = "droid exited with an error."
		if re.Detail != "" {
			msg += "\n\n" + re.Detail
		}
	}
	return finishUserMessage(msg)
}

// ErrorResult renders a droid result that carried is_error. The process
// ran and answered, so this is droid reporting its own failure rather
// than the runner failing to reach it.
func ErrorResult(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return finishUserMessage("droid reported an error without details. Try again, or send /reset to start a fresh session.")
	}
	return finishUserMessage("droid reported an error:\n\n" + text + "\n\nSend /reset to start a fresh session if this persists.")
}

func finishUserMessage(msg string) string {
	msg = Redact(msg)
	r := []rune(msg)
	if len(r) > maxUserMessageChars {
		msg = string(r[:maxUserMessageChars]) + "... (truncated)"
	}
	return msg
}
