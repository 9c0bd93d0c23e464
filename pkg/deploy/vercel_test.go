package deploy

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
)

func stubRunCommand(t *testing.T, fn func(ctx context.Context, dir string, env []string, name string, args ...string) (cmdResult, error)) {
	t.Helper()
	orig := runCommand
	runCommand = fn
	t.Cleanup(func() { runCommand = orig })
}

func TestBuildArgsFull(t *testing.T) {
	c := &Client{binary: "/usr/local/bin/vercel"}
	args := c.buildArgs("/tmp/site", Options{
		Prod:     true,
		Debug:    true,
		Archive:  true,
		Scope:    "acme",
		Regions:  []string{"fra1", "iad1"},
		BuildEnv: []string{"NODE_ENV=production", "ANALYTICS=off"},
		Env:      []string{"API_BASE=https://api.example.com"},
	})
	want := []string{
		"/tmp/site", "--yes", "--prod", "--debug", "--archive=tgz",
		"--scope", "acme",
		"--regions", "fra1,iad1",
		"--build-env", "NODE_ENV=production",
		"--build-env", "ANALYTICS=off",
		"--env", "API_BASE=https://api.example.com",
	}
	if !reflect.DeepEqual(args, want) {
		t.Fatalf("args mismatch:\n got %v\nwant %v", args, want)
	}
}

func TestBuildArgsMinimal(t *testing.T) {
	c := &Client{binary: "vercel"}
	args := c.buildArgs("/tmp/site", Options{})
	want := []string{"/tmp/site", "--yes"}
	if !reflect.DeepEqual(args, want) {
		t.Fatalf("args mismatch: got %v, want %v", args, want)
	}
}

func TestExtractDeploymentURLTakesLast(t *testing.T) {
	out := `Vercel CLI 33.0.1
Inspect: https://vercel.com/acme/site/4Yx7 [2s]
Preview: https://site-git-main-acme.vercel.app [copied]
Production: https://site-acme.vercel.app [1m]
`
	if got := extractDeploymentURL(out); got != "https://site-acme.vercel.app" {
		t.Fatalf("expected production URL, got %q", got)
	}
	if got := extractInspectorURL(out); got != "https://vercel.com/acme/site/4Yx7" {
		t.Fatalf("unexpected inspector URL: %q", got)
	}
}

func TestExtractDeploymentURLNoMatch(t *testing.T) {
	if got := extractDeploymentURL("Error! build exploded"); got != "" {
		t.Fatalf("expected empty URL, got %q", got)
	}
}

func TestDeploySuccess(t *testing.T) {
	var gotName string
	var gotArgs []string
	var gotEnv []string
	stubRunCommand(t, func(_ context.Context, dir string, env []string, name string, args ...string) (cmdResult, error) {
		gotName = name
		gotArgs = args
		gotEnv = env
		return cmdResult{stdout: "https://site-acme.vercel.app\n"}, nil
	})

	c := &Client{binary: "/usr/local/bin/vercel", timeout: DefaultDeployTimeout}
	res, err := c.Deploy(context.Background(), "/tmp/site", Options{Token: "vc_tok"})
	if err != nil {
		t.Fatalf("Deploy: %v", err)
	}
	if !res.Success {
		t.Fatal("expected success")
	}
	if res.URL != "https://site-acme.vercel.app" {
		t.Fatalf("unexpected URL: %q", res.URL)
	}
	if gotName != "/usr/local/bin/vercel" {
		t.Fatalf("unexpected binary: %q", gotName)
	}
	if len(gotArgs) < 2 || gotArgs[0] != "/tmp/site" || gotArgs[1] != "--yes" {
		t.Fatalf("unexpected args: %v", gotArgs)
	}
	foundToken := false
	for _, kv := range gotEnv {
		if kv == "VERCEL_TOKEN=vc_tok" {
			foundToken = true
		}
	}
	if !foundToken {
		t.Fatal("expected VERCEL_TOKEN in the child env")
	}
}

func TestDeployNonZeroExitIsNotAnError(t *testing.T) {
	stubRunCommand(t, func(_ context.Context, _ string, _ []string, _ string, _ ...string) (cmdResult, error) {
		return cmdResult{stderr: "Error! 401 Unauthorized", exitCode: 1}, nil
	})

	c := &Client{binary: "vercel", timeout: DefaultDeployTimeout}
	res, err := c.Deploy(context.Background(), "/tmp/site", Options{})
	if err != nil {
		t.Fatalf("expected nil error for exit 1, got %v", err)
	}
	if res.Success {
		t.Fatal("expected failure")
	}
	if res.ExitCode != 1 {
		t.Fatalf("expected exit code 1, got %d", res.ExitCode)
	}
	if !strings.Contains(res.Stderr, "401") {
		t.Fatalf("expected stderr captured, got %q", res.Stderr)
	}
}

func TestDeployRunnerErrorPropagates(t *testing.T) {
	stubRunCommand(t, func(_ context.Context, _ string, _ []string, _ string, _ ...string) (cmdResult, error) {
		return cmdResult{exitCode: -1}, errors.New("spawn failed")
	})

	c := &Client{binary: "vercel", timeout: DefaultDeployTimeout}
	if _, err := c.Deploy(context.Background(), "/tmp/site", Options{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestNewClientResolvesViaPATH(t *testing.T) {
	orig := lookPath
	lookPath = func(name string) (string, error) {
		if name != "vercel" {
			t.Fatalf("unexpected lookup: %q", name)
		}
		return "/opt/bin/vercel", nil
	}
	defer func() { lookPath = orig }()

	c, err := NewClient("")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if c.Binary() != "/opt/bin/vercel" {
		t.Fatalf("unexpected binary: %q", c.Binary())
	}
}

func TestNewClientNotFound(t *testing.T) {
	orig := lookPath
	lookPath = func(string) (string, error) { return "", errors.New("not found") }
	defer func() { lookPath = orig }()

	if _, err := NewClient(""); err == nil {
		t.Fatal("expected error when vercel is missing")
	}
}

func TestNewClientExplicitPathSkipsLookup(t *testing.T) {
	orig := lookPath
	lookPath = func(string) (string, error) {
		t.Fatal("lookPath should not be called for explicit paths")
		return "", nil
	}
	defer func() { lookPath = orig }()

	c, err := NewClient("/custom/vercel")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if c.Binary() != "/custom/vercel" {
		t.Fatalf("unexpected binary: %q", c.Binary())
	}
}
