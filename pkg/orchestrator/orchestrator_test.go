package orchestrator

import (
	"strings"
	"testing"
)

func TestClassifyQuickPrompt(t *testing.T) {
	c := Classify("fix the typo in README", false)
	if c.Tier != Quick {
		t.Errorf("expected quick, got %s (score %d, reasons %v)", c.Tier, c.Score, c.Reasons)
	}
	if c.Score != 0 {
		t.Errorf("expected score 0, got %d", c.Score)
	}
	if c.Enqueue() {
		t.Error("quick prompt must not be enqueued")
	}
}

func TestClassifyEmptyPrompt(t *testing.T) {
	c := Classify("   ", false)
	if c.Tier != Quick || c.Score != 0 {
		t.Errorf("expected quick/0, got %s/%d", c.Tier, c.Score)
	}
}

func TestClassifyMediumPrompt(t *testing.T) {
	c := Classify("Refactor the session store, then update the call sites.", false)
	if c.Score != 4 {
		t.Errorf("expected score 4 (restructure+multi-step), got %d: %v", c.Score, c.Reasons)
	}
	if c.Tier != Medium {
		t.Errorf("expected medium, got %s", c.Tier)
	}
	if c.Enqueue() {
		t.Error("medium prompt must not be enqueued")
	}
}

func TestClassifyComplexPrompt(t *testing.T) {
	prompt := "Refactor the billing module to use the new tax service, then update " +
		"every invoice template to pull rates from it. " +
		strings.Repeat("Keep the legacy carve-outs for enterprise accounts intact. ", 4)

	c := Classify(prompt, false)
	if c.Tier != Complex {
		t.Errorf("expected complex, got %s (score %d, reasons %v)", c.Tier, c.Score, c.Reasons)
	}
	if !c.Enqueue() {
		t.Error("complex prompt should be enqueued")
	}
}

func TestClassifyPersonaAddsPoint(t *testing.T) {
	prompt := "Refactor the session store, then update the call sites."

	without := Classify(prompt, false)
	with := Classify(prompt, true)

	if with.Score != without.Score+1 {
		t.Errorf("persona should add exactly one point: %d vs %d", with.Score, without.Score)
	}
	if without.Tier != Medium || with.Tier != Complex {
		t.Errorf("expected medium→complex bump, got %s→%s", without.Tier, with.Tier)
	}
}

func TestKeywordGroupScoresOnce(t *testing.T) {
	c := Classify("refactor and migrate and rewrite everything", false)
	if c.Score != 2 {
		t.Errorf("one group should score once, got %d: %v", c.Score, c.Reasons)
	}
}

func TestClassifyMultiLineBonus(t *testing.T) {
	prompt := "do this\nand this\nand this\nand this"
	c := Classify(prompt, false)

	found := false
	for _, r := range c.Reasons {
		if r == "multi-line" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected multi-line reason, got %v", c.Reasons)
	}
}

func TestComplexThresholdEnvOverride(t *testing.T) {
	prompt := "Refactor the session store, then update the call sites."

	t.Setenv(ComplexThresholdEnv, "4")
	if c := Classify(prompt, false); c.Tier != Complex {
		t.Errorf("threshold 4 should route score-4 prompt to complex, got %s", c.Tier)
	}

	t.Setenv(ComplexThresholdEnv, "banana")
	if c := Classify(prompt, false); c.Tier != Medium {
		t.Errorf("invalid threshold should fall back to default, got %s", c.Tier)
	}

	t.Setenv(ComplexThresholdEnv, "0")
	if c := Classify(prompt, false); c.Tier != Medium {
		t.Errorf("non-positive threshold should fall back to default, got %s", c.Tier)
	}
}

func TestKeywordTableCoverage(t *testing.T) {
	tests := []struct {
		prompt string
		reason string
	}{
		{"first do x, after that do y", "keywords:multi-step"},
		{"migrate the database to postgres", "keywords:restructure"},
		{"analyze the crash logs", "keywords:research"},
		{"build a landing page", "keywords:build"},
		{"set up the staging environment", "keywords:build"},
	}

	for _, tt := range tests {
		c := Classify(tt.prompt, false)
		found := false
		for _, r := range c.Reasons {
			if r == tt.reason {
				found = true
			}
		}
		if !found {
			t.Errorf("%q: expected reason %s, got %v", tt.prompt, tt.reason, c.Reasons)
		}
	}
}
