package deploy

import (
	"context"
	"fmt"
	"strings"

	"github.com/droidgram/droidgram/pkg/logger"
)

// DefaultMaxRetries caps re-attempts after the first deployment, so a
// default run makes at most three attempts.
const DefaultMaxRetries = 2

// DeployFunc runs one deployment attempt. Swapped in tests.
type DeployFunc func(ctx context.Context, dir string, opts Options) (Result, error)

// Outcome is the final state of a self-healing deployment.
type Outcome struct {
	Success      bool
	URL          string
	InspectorURL string
	Attempts     int
	RetryCount   int
	FixesApplied []string
	Diagnosis    *DiagnosisResult
	Verified     bool
	Message      string
}

// Healer drives the bounded attempt, diagnose, fix cycle around a
// deployment. It is an explicit loop with a hard iteration cap, never
// recursion; a fix that fails aborts the whole run immediately.
type Healer struct {
	deploy     DeployFunc
	fixer      *Fixer
	verifier   *Verifier
	maxRetries int
	progress   func(string)
}

func NewHealer(client *Client, fixer *Fixer, maxRetries int) *Healer {
	h := &Healer{deploy: client.Deploy, fixer: fixer, maxRetries: maxRetries}
	if h.maxRetries < 0 {
		h.maxRetries = DefaultMaxRetries
	}
	return h
}

// SetVerifier enables a post-success health check of the deployment URL.
func (h *Healer) SetVerifier(v *Verifier) {
	h.verifier = v
}

// SetProgress installs a callback fired at attempt boundaries, suitable for
// streaming status lines into chat.
func (h *Healer) SetProgress(fn func(string)) {
	h.progress = fn
}

// Run deploys dir, diagnosing and fixing failures until success, the retry
// budget runs out, or a non-fixable failure appears. The returned error is
// only non-nil when the CLI could not be run at all; classified deployment
// failures come back as Success=false with a templated Message.
func (h *Healer) Run(ctx context.Context, dir string, opts Options) (Outcome, error) {
	var outcome Outcome

	for attempt := 0; attempt <= h.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			outcome.Message = "Deployment cancelled."
			return outcome, err
		}
		outcome.Attempts = attempt + 1
		outcome.RetryCount = attempt
		h.emit(fmt.Sprintf("Deploy attempt %d/%d...", attempt+1, h.maxRetries+1))

		res, err := h.deploy(ctx, dir, opts)
		if err != nil {
			outcome.Message = fmt.Sprintf("Could not run the vercel CLI: %v", err)
			return outcome, err
		}

		if res.Success {
			outcome.Success = true
			outcome.URL = res.URL
			outcome.InspectorURL = res.InspectorURL
			outcome.Message = successMessage(res, outcome.RetryCount)
			h.verify(ctx, &outcome)
			return outcome, nil
		}

		diag := Diagnose(res.Stderr + "\n" + res.Stdout)
		outcome.Diagnosis = &diag
		logger.WarnCF("deploy", "Attempt failed", map[string]interface{}{
			"attempt":  attempt + 1,
			"category": string(diag.Category),
		})
		h.emit(fmt.Sprintf("Attempt %d failed: %s", attempt+1, diag.Problem))

		if !diag.AutoFixable || attempt == h.maxRetries {
			outcome.Message = h.failureMessage(diag, outcome)
			return outcome, nil
		}

		if err := h.fixer.Apply(ctx, diag); err != nil {
			outcome.Message = h.failureMessage(diag, outcome) +
				fmt.Sprintf("\nAutomatic fix (%s) failed: %v", FixLabel(diag.Category), err)
			return outcome, nil
		}
		outcome.FixesApplied = append(outcome.FixesApplied, FixLabel(diag.Category))
		h.emit("Applied fix: " + FixLabel(diag.Category))
	}

	// Not reached: the final attempt returns from inside the loop.
	return outcome, nil
}

func (h *Healer) verify(ctx context.Context, outcome *Outcome) {
	if h.verifier == nil || outcome.URL == "" {
		return
	}
	if err := h.verifier.Verify(ctx, outcome.URL); err != nil {
		logger.WarnCF("deploy", "Deployment URL health check failed", map[string]interface{}{
			"url":   outcome.URL,
			"error": err.Error(),
		})
		outcome.Message += "\nNote: the URL has not answered a health check yet; it may still be propagating."
		return
	}
	outcome.Verified = true
}

func (h *Healer) emit(msg string) {
	if h.progress != nil {
		h.progress(msg)
	}
}

func successMessage(res Result, retries int) string {
	var b strings.Builder
	b.WriteString("Deployed: " + res.URL)
	if res.InspectorURL != "" {
		b.WriteString("\nInspector: " + res.InspectorURL)
	}
	if retries == 1 {
		b.WriteString("\nRecovered after 1 retry.")
	} else if retries > 1 {
		b.WriteString(fmt.Sprintf("\nRecovered after %d retries.", retries))
	}
	return b.String()
}

// failureMessage always carries the diagnosis category, its confidence and
// the table's literal solution string.
func (h *Healer) failureMessage(diag DiagnosisResult, outcome Outcome) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Deployment failed [%s, confidence %d%%] after %d attempt", diag.Category, diag.Confidence, outcome.Attempts))
	if outcome.Attempts != 1 {
		b.WriteString("s")
	}
	b.WriteString(".\n")
	b.WriteString("Problem: " + diag.Problem + "\n")
	b.WriteString("Suggested fix: " + diag.Solution)
	if len(outcome.FixesApplied) > 0 {
		b.WriteString("\nFixes already attempted: " + strings.Join(outcome.FixesApplied, ", "))
	}
	return b.String()
}
