package deploy

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/droidgram/droidgram/pkg/logger"
)

const (
	// DefaultDeployTimeout bounds one vercel invocation end to end,
	// including the remote build.
	DefaultDeployTimeout = 10 * time.Minute

	defaultBinaryName = "vercel"
)

// Replaced in tests.
var lookPath = exec.LookPath

// Options configure one vercel invocation.
type Options struct {
	Prod     bool
	Debug    bool
	Archive  bool
	Scope    string
	Regions  []string
	BuildEnv []string
	Env      []string
	Token    string
}

// Result captures one deployment attempt.
type Result struct {
	Success      bool
	URL          string
	InspectorURL string
	ExitCode     int
	Stdout       string
	Stderr       string
	Duration     time.Duration
}

// Client shells out to the vercel CLI.
type Client struct {
	binary  string
	timeout time.Duration
}

// NewClient resolves the vercel binary. An empty name means PATH lookup of
// "vercel"; a name containing a path separator is used as-is.
func NewClient(binary string) (*Client, error) {
	if binary == "" {
		binary = defaultBinaryName
	}
	if !strings.ContainsAny(binary, `/\`) {
		resolved, err := lookPath(binary)
		if err != nil {
			return nil, fmt.Errorf("vercel CLI not found in PATH: %w", err)
		}
		binary = resolved
	}
	return &Client{binary: binary, timeout: DefaultDeployTimeout}, nil
}

func (c *Client) Binary() string {
	return c.binary
}

func (c *Client) buildArgs(dir string, opts Options) []string {
	args := []string{dir, "--yes"}
	if opts.Prod {
		args = append(args, "--prod")
	}
	if opts.Debug {
		args = append(args, "--debug")
	}
	if opts.Archive {
		args = append(args, "--archive=tgz")
	}
	if opts.Scope != "" {
		args = append(args, "--scope", opts.Scope)
	}
	if len(opts.Regions) > 0 {
		args = append(args, "--regions", strings.Join(opts.Regions, ","))
	}
	for _, kv := range opts.BuildEnv {
		args = append(args, "--build-env", kv)
	}
	for _, kv := range opts.Env {
		args = append(args, "--env", kv)
	}
	return args
}

// Deploy runs one vercel invocation for the project in dir. A non-zero exit
// comes back as Success=false with captured output, not an error; errors are
// reserved for failures to run the CLI at all.
func (c *Client) Deploy(ctx context.Context, dir string, opts Options) (Result, error) {
	runCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	// The token travels via environment, never argv, so it cannot show up
	// in process listings.
	var env []string
	if opts.Token != "" {
		env = append(env, "VERCEL_TOKEN="+opts.Token)
	}

	args := c.buildArgs(dir, opts)
	logger.InfoCF("deploy", "Running vercel", map[string]interface{}{
		"dir":  dir,
		"prod": opts.Prod,
	})

	start := time.Now()
	run, err := runCommand(runCtx, dir, env, c.binary, args...)
	res := Result{
		ExitCode: run.exitCode,
		Stdout:   run.stdout,
		Stderr:   run.stderr,
		Duration: time.Since(start),
	}
	if err != nil {
		return res, fmt.Errorf("run vercel: %w", err)
	}

	combined := run.stdout + "\n" + run.stderr
	res.URL = extractDeploymentURL(combined)
	res.InspectorURL = extractInspectorURL(combined)
	res.Success = run.exitCode == 0

	if res.Success {
		logger.InfoCF("deploy", "Deployment finished", map[string]interface{}{
			"url":      res.URL,
			"duration": res.Duration.Round(time.Second).String(),
		})
	} else {
		logger.WarnCF("deploy", "Deployment failed", map[string]interface{}{
			"exit_code": res.ExitCode,
		})
	}
	return res, nil
}

var (
	deploymentURLRe = regexp.MustCompile(`https://[a-zA-Z0-9][a-zA-Z0-9.-]*\.vercel\.app\b`)
	inspectorURLRe  = regexp.MustCompile(`https://vercel\.com/[^\s"'` + "`" + `]+`)
)

// extractDeploymentURL returns the last *.vercel.app URL in the output; the
// CLI prints the final deployment URL after any aliases and build log noise.
func extractDeploymentURL(output string) string {
	matches := deploymentURLRe.FindAllString(output, -1)
	if len(matches) == 0 {
		return ""
	}
	return matches[len(matches)-1]
}

func extractInspectorURL(output string) string {
	return inspectorURLRe.FindString(output)
}
