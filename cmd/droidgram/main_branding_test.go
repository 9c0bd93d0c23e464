package main

import (
	"bytes"
	"io"
	"os"
	"strings"
	"testing"
)

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()

	origStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("create pipe: %v", err)
	}
	os.Stdout = w

	fn()

	_ = w.Close()
	os.Stdout = origStdout

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		t.Fatalf("read captured stdout: %v", err)
	}
	_ = r.Close()
	return buf.String()
}

func TestPrintVersionUsesDisplayName(t *testing.T) {
	out := captureStdout(t, printVersion)

	if !strings.Contains(out, "droidgram v") {
		t.Fatalf("version output missing droidgram branding: %q", out)
	}
}

func TestPrintHelpListsCoreCommands(t *testing.T) {
	out := captureStdout(t, printHelp)

	if !strings.Contains(out, "Initialize droidgram configuration and workspace") {
		t.Fatalf("help output missing onboarding wording: %q", out)
	}
	for _, command := range []string{"gateway", "channels", "routing", "jobs", "deploy", "doctor", "dash"} {
		if !strings.Contains(out, "\n  "+command) {
			t.Fatalf("help output missing command %q: %q", command, out)
		}
	}
}

func TestInvokedCLINameClampsUnknownBinaries(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	os.Args = []string{"/tmp/go-build/cmd.test"}
	if got := invokedCLIName(); got != "droidgram" {
		t.Fatalf("invokedCLIName() = %q, want droidgram", got)
	}

	os.Args = []string{"/opt/homebrew/bin/droidgram"}
	if got := invokedCLIName(); got != "droidgram" {
		t.Fatalf("invokedCLIName() = %q, want droidgram", got)
	}
}
