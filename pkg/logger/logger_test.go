package logger

import (
	"strings"
	"testing"
)

func TestLevelString(t *testing.T) {
	cases := []struct {
		level Level
		want  string
	}{
		{DEBUG, "DEBUG"},
		{INFO, "INFO"},
		{WARN, "WARN"},
		{ERROR, "ERROR"},
		{Level(99), "UNKNOWN"},
	}
	for _, tc := range cases {
		if got := tc.level.String(); got != tc.want {
			t.Errorf("Level(%d).String() = %q, want %q", tc.level, got, tc.want)
		}
	}
}

func TestSetLevel(t *testing.T) {
	orig := GetLevel()
	defer SetLevel(orig)

	SetLevel(DEBUG)
	if got := GetLevel(); got != DEBUG {
		t.Errorf("GetLevel() = %v after SetLevel(DEBUG)", got)
	}
	SetLevel(ERROR)
	if got := GetLevel(); got != ERROR {
		t.Errorf("GetLevel() = %v after SetLevel(ERROR)", got)
	}
}

func TestFormatFieldsSorted(t *testing.T) {
	got := formatFields(map[string]interface{}{
		"zebra": 1,
		"alpha": "two",
		"mid":   true,
	})
	want := " alpha=two mid=true zebra=1"
	if got != want {
		t.Errorf("formatFields() = %q, want %q", got, want)
	}
}

func TestFormatFieldsEmpty(t *testing.T) {
	if got := formatFields(nil); got != "" {
		t.Errorf("formatFields(nil) = %q, want empty", got)
	}
	if got := formatFields(map[string]interface{}{}); got != "" {
		t.Errorf("formatFields(empty) = %q, want empty", got)
	}
}

func TestFormatValueQuoting(t *testing.T) {
	if got := formatValue("plain"); got != "plain" {
		t.Errorf("formatValue(plain) = %q", got)
	}
	got := formatValue("has space")
	if !strings.HasPrefix(got, "\"") || !strings.HasSuffix(got, "\"") {
		t.Errorf("formatValue with space should be quoted, got %q", got)
	}
	if got := formatValue(42); got != "42" {
		t.Errorf("formatValue(42) = %q", got)
	}
}
