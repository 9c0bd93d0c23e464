package workspacetpl

import (
	"strings"
	"testing"
)

func TestLoadWorkspaceTemplates(t *testing.T) {
	templates, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	want := map[string]bool{
		"AGENTS.md":        true,
		"DROID.md":         true,
		"AUTONOMY.md":      true,
		"USER.md":          true,
		"memory/MEMORY.md": true,
	}

	if len(templates) != len(want) {
		t.Fatalf("template count = %d, want %d", len(templates), len(want))
	}

	for _, tpl := range templates {
		if !want[tpl.RelativePath] {
			t.Fatalf("unexpected template path: %s", tpl.RelativePath)
		}
		delete(want, tpl.RelativePath)
		if strings.TrimSpace(tpl.Content) == "" {
			t.Fatalf("empty template content: %s", tpl.RelativePath)
		}
	}

	for missing := range want {
		t.Fatalf("missing template path: %s", missing)
	}
}

func TestTemplateContentBranding(t *testing.T) {
	templates, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	byPath := map[string]string{}
	for _, tpl := range templates {
		byPath[tpl.RelativePath] = tpl.Content
	}

	if !strings.Contains(byPath["AGENTS.md"], "You are droidgram") {
		t.Fatalf("AGENTS.md missing droidgram identity")
	}
	if !strings.Contains(byPath["DROID.md"], "droid exec") {
		t.Fatalf("DROID.md missing droid invocation shape")
	}
	if !strings.Contains(byPath["AUTONOMY.md"], "/autonomy") {
		t.Fatalf("AUTONOMY.md missing chat command reference")
	}
	for _, level := range []string{"`off`", "`low`", "`medium`", "`high`", "`full`"} {
		if !strings.Contains(byPath["AUTONOMY.md"], level) {
			t.Fatalf("AUTONOMY.md missing level %s", level)
		}
	}
	if !strings.Contains(byPath["memory/MEMORY.md"], "Long-term Memory") {
		t.Fatalf("MEMORY template missing expected heading")
	}
}
