// Package orchestrator routes incoming prompts: quick and medium work runs
// inside the chat turn, complex work is inserted into the background job
// queue so the channel stays responsive.
package orchestrator

import (
	"os"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Complexity is the routing tier for a prompt.
type Complexity string

const (
	Quick   Complexity = "quick"
	Medium  Complexity = "medium"
	Complex Complexity = "complex"
)

// ComplexThresholdEnv overrides the score at which a prompt is routed to
// the job queue.
const ComplexThresholdEnv = "DROIDGRAM_COMPLEX_THRESHOLD"

const (
	defaultComplexThreshold = 5
	mediumThreshold         = 3

	mediumLengthRunes  = 200
	complexLengthRunes = 500
	multiLineBonusAt   = 3
)

// Classification is the scored routing decision. Reasons lists which rules
// fired, for debug logs and the //status command.
type Classification struct {
	Tier    Complexity
	Score   int
	Reasons []string
}

// Enqueue reports whether the prompt should go to the job queue.
func (c Classification) Enqueue() bool {
	return c.Tier == Complex
}

type keywordGroup struct {
	name   string
	points int
	words  []string
}

// Each group scores once no matter how many of its words appear. Scoring is
// a fixed table; there is no feedback loop.
var keywordGroups = []keywordGroup{
	{name: "multi-step", points: 2, words: []string{" then ", "after that", "and then", "followed by", "step 1", "step one"}},
	{name: "restructure", points: 2, words: []string{"refactor", "migrate", "rewrite", "overhaul", "redesign"}},
	{name: "research", points: 1, words: []string{"research", "analyze", "analyse", "investigate", "compare", "deep dive"}},
	{name: "build", points: 1, words: []string{"build", "create", "implement", "scaffold", "set up", "setup", "deploy"}},
}

// Classify scores a prompt and maps it to a tier. personaActive adds a
// point because persona turns carry extra context assembly.
func Classify(prompt string, personaActive bool) Classification {
	c := Classification{Tier: Quick}

	trimmed := strings.TrimSpace(prompt)
	if trimmed == "" {
		return c
	}

	length := utf8.RuneCountInString(trimmed)
	if length > mediumLengthRunes {
		c.Score++
		c.Reasons = append(c.Reasons, "length>200")
	}
	if length > complexLengthRunes {
		c.Score += 2
		c.Reasons = append(c.Reasons, "length>500")
	}
	if strings.Count(trimmed, "\n") >= multiLineBonusAt {
		c.Score++
		c.Reasons = append(c.Reasons, "multi-line")
	}

	// Padding lets word-boundary phrases like " then " match at the edges.
	padded := " " + strings.ToLower(trimmed) + " "
	for _, group := range keywordGroups {
		for _, w := range group.words {
			if strings.Contains(padded, w) {
				c.Score += group.points
				c.Reasons = append(c.Reasons, "keywords:"+group.name)
				break
			}
		}
	}

	if personaActive {
		c.Score++
		c.Reasons = append(c.Reasons, "persona")
	}

	switch {
	case c.Score >= complexThreshold():
		c.Tier = Complex
	case c.Score >= mediumThreshold:
		c.Tier = Medium
	}
	return c
}

// complexThreshold reads the env override on every call so the gateway can
// be retuned without a restart.
func complexThreshold() int {
	raw := os.Getenv(ComplexThresholdEnv)
	if raw == "" {
		return defaultComplexThreshold
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return defaultComplexThreshold
	}
	return n
}
