package droid

import (
	"errors"
	"strings"
	"testing"
)

func TestParseOutput_SingleObject(t *testing.T) {
	resp, err := parseOutput(`{"result":"done","session_id":"abc","is_error":false}`)
	if err != nil {
		t.Fatalf("parseOutput() error = %v", err)
	}
	if resp.Text != "done" || resp.SessionID != "abc" || resp.IsError {
		t.Errorf("got %+v", resp)
	}
}

func TestParseOutput_FieldAliases(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		text    string
		session string
		isErr   bool
	}{
		{"message field", `{"message":"hi","sessionId":"s1"}`, "hi", "s1", false},
		{"output field", `{"output":"built ok"}`, "built ok", "", false},
		{"text field", `{"text":"plain"}`, "plain", "", false},
		{"camel isError", `{"result":"bad","isError":true}`, "bad", "", true},
		{"snake is_error", `{"result":"bad","is_error":true}`, "bad", "", true},
		{"result wins over text", `{"result":"r","text":"t"}`, "r", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := parseOutput(tt.in)
			if err != nil {
				t.Fatalf("parseOutput(%q) error = %v", tt.in, err)
			}
			if resp.Text != tt.text {
				t.Errorf("Text = %q, want %q", resp.Text, tt.text)
			}
			if resp.SessionID != tt.session {
				t.Errorf("SessionID = %q, want %q", resp.SessionID, tt.session)
			}
			if resp.IsError != tt.isErr {
				t.Errorf("IsError = %v, want %v", resp.IsError, tt.isErr)
			}
		})
	}
}

func TestParseOutput_NestedMessage(t *testing.T) {
	resp, err := parseOutput(`{"type":"message","message":{"content":"from nested"}}`)
	if err != nil {
		t.Fatalf("parseOutput() error = %v", err)
	}
	if resp.Text != "from nested" {
		t.Errorf("Text = %q, want %q", resp.Text, "from nested")
	}
}

func TestParseOutput_JSONLines(t *testing.T) {
	in := strings.Join([]string{
		`{"type":"system","session_id":"sess-9"}`,
		`{"type":"message","message":{"content":"step one"}}`,
		`{"type":"result","result":"all finished","subtype":"success"}`,
	}, "\n")

	resp, err := parseOutput(in)
	if err != nil {
		t.Fatalf("parseOutput() error = %v", err)
	}
	if resp.Text != "all finished" {
		t.Errorf("Text = %q, want the last terminal event", resp.Text)
	}
	if resp.SessionID != "sess-9" {
		t.Errorf("SessionID = %q, want carried from the system event", resp.SessionID)
	}
	if resp.Subtype != "success" {
		t.Errorf("Subtype = %q", resp.Subtype)
	}
}

func TestParseOutput_LastTerminalWins(t *testing.T) {
	in := strings.Join([]string{
		`{"type":"result","result":"first"}`,
		`{"type":"result","result":"second"}`,
	}, "\n")

	resp, err := parseOutput(in)
	if err != nil {
		t.Fatalf("parseOutput() error = %v", err)
	}
	if resp.Text != "second" {
		t.Errorf("Text = %q, want %q", resp.Text, "second")
	}
}

func TestParseOutput_IgnoresNoiseLines(t *testing.T) {
	in := strings.Join([]string{
		"npm WARN deprecated something",
		`{"type":"result","result":"ok despite noise","sessionId":"n1"}`,
		"trailing non-json",
	}, "\n")

	resp, err := parseOutput(in)
	if err != nil {
		t.Fatalf("parseOutput() error = %v", err)
	}
	if resp.Text != "ok despite noise" {
		t.Errorf("Text = %q", resp.Text)
	}
	if resp.SessionID != "n1" {
		t.Errorf("SessionID = %q", resp.SessionID)
	}
}

func TestParseOutput_Garbage(t *testing.T) {
	_, err := parseOutput("droid: command crashed\nstack trace line 1\nstack trace line 2")
	if err == nil {
		t.Fatal("expected parse error")
	}
	if kind := Classify(err); kind != ErrorParse {
		t.Fatalf("Classify = %v, want %v", kind, ErrorParse)
	}
	var re *RunError
	if !errors.As(err, &re) {
		t.Fatal("expected *RunError")
	}
	if !strings.Contains(re.Detail, "droid: command crashed") {
		t.Errorf("Detail = %q, want a sample of the raw output", re.Detail)
	}
}

func TestParseOutput_Empty(t *testing.T) {
	for _, in := range []string{"", "   \n\t  "} {
		if _, err := parseOutput(in); Classify(err) != ErrorParse {
			t.Errorf("parseOutput(%q): want parse error, got %v", in, err)
		}
	}
}

func TestParseOutput_EventsButNoResult(t *testing.T) {
	in := strings.Join([]string{
		`{"type":"system","session_id":"s1"}`,
		`{"type":"tool_use"}`,
	}, "\n")
	if _, err := parseOutput(in); Classify(err) != ErrorParse {
		t.Errorf("want parse error when no terminal event exists, got %v", err)
	}
}

func TestSampleOf(t *testing.T) {
	if got := sampleOf("short", 10); got != "short" {
		t.Errorf("sampleOf = %q", got)
	}
	if got := sampleOf("abcdefghij", 4); got != "abcd..." {
		t.Errorf("sampleOf = %q, want %q", got, "abcd...")
	}
}
