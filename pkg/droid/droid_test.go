package droid

import (
	"context"
	"errors"
	"os/exec"
	"testing"
	"time"

	"github.com/google/uuid"
)

func testRunner(idle, hard time.Duration, spawn spawnFunc) *Runner {
	return &Runner{
		binary:      "/usr/local/bin/droid",
		workDir:     "/tmp/ws",
		idleTimeout: idle,
		hardTimeout: hard,
		spawn:       spawn,
	}
}

func TestBuildArgs_AllOptions(t *testing.T) {
	r := testRunner(time.Second, time.Second, nil)
	got := r.buildArgs("fix the bug", Options{
		SessionID:       "sess-1",
		Model:           "claude-sonnet-4-5",
		ReasoningEffort: "high",
		AutoLevel:       "medium",
	})
	want := []string{
		"exec", "-o", "json", "--cwd", "/tmp/ws",
		"-s", "sess-1", "-m", "claude-sonnet-4-5", "-r", "high", "--auto", "medium",
		"fix the bug",
	}
	if len(got) != len(want) {
		t.Fatalf("args = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("args[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestBuildArgs_Minimal(t *testing.T) {
	r := testRunner(time.Second, time.Second, nil)
	got := r.buildArgs("hello", Options{})
	want := []string{"exec", "-o", "json", "--cwd", "/tmp/ws", "hello"}
	if len(got) != len(want) {
		t.Fatalf("args = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("args[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRun_Success(t *testing.T) {
	var gotArgs []string
	spawn := func(ctx context.Context, bin string, args []string, dir string, onStdout, onStderr func(string)) (int, error) {
		gotArgs = args
		onStdout(`{"type":"result","result":"all done","session_id":"abc-123"}`)
		return 0, nil
	}
	r := testRunner(time.Second, 5*time.Second, spawn)

	resp, err := r.Run(context.Background(), "do the thing", Options{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if resp.Text != "all done" {
		t.Errorf("Text = %q, want %q", resp.Text, "all done")
	}
	if resp.SessionID != "abc-123" {
		t.Errorf("SessionID = %q, want %q", resp.SessionID, "abc-123")
	}
	if resp.IsError {
		t.Error("IsError = true, want false")
	}
	if gotArgs[len(gotArgs)-1] != "do the thing" {
		t.Errorf("prompt should be the last argument, got %v", gotArgs)
	}
}

func TestRun_JSONLinesStream(t *testing.T) {
	spawn := func(ctx context.Context, bin string, args []string, dir string, onStdout, onStderr func(string)) (int, error) {
		onStdout(`{"type":"system","sessionId":"s-77"}`)
		onStdout(`{"type":"message","message":{"content":"working on it"}}`)
		onStdout(`{"type":"result","result":"finished"}`)
		return 0, nil
	}
	r := testRunner(time.Second, 5*time.Second, spawn)

	resp, err := r.Run(context.Background(), "go", Options{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if resp.Text != "finished" {
		t.Errorf("Text = %q, want %q", resp.Text, "finished")
	}
	if resp.SessionID != "s-77" {
		t.Errorf("SessionID = %q, want %q (carried from earlier event)", resp.SessionID, "s-77")
	}
}

func TestRun_EmptyPrompt(t *testing.T) {
	r := testRunner(time.Second, time.Second, nil)
	if _, err := r.Run(context.Background(), "   ", Options{}); err == nil {
		t.Fatal("expected error for empty prompt")
	}
}

func TestRun_IdleTimeout(t *testing.T) {
	spawn := func(ctx context.Context, bin string, args []string, dir string, onStdout, onStderr func(string)) (int, error) {
		onStdout(`{"type":"system","session_id":"s1"}`)
		<-ctx.Done()
		return -1, ctx.Err()
	}
	r := testRunner(50*time.Millisecond, 10*time.Second, spawn)

	_, err := r.Run(context.Background(), "hang forever", Options{})
	if err == nil {
		t.Fatal("expected idle timeout error")
	}
	if kind := Classify(err); kind != ErrorIdleTimeout {
		t.Fatalf("Classify(%v) = %v, want %v", err, kind, ErrorIdleTimeout)
	}
}

func TestRun_HardTimeout(t *testing.T) {
	// Keeps emitting so the idle timer never fires; only the ceiling can.
	spawn := func(ctx context.Context, bin string, args []string, dir string, onStdout, onStderr func(string)) (int, error) {
		tick := time.NewTicker(10 * time.Millisecond)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return -1, ctx.Err()
			case <-tick.C:
				onStdout(`{"type":"progress"}`)
			}
		}
	}
	r := testRunner(2*time.Second, 60*time.Millisecond, spawn)

	_, err := r.Run(context.Background(), "never ends", Options{})
	if err == nil {
		t.Fatal("expected hard timeout error")
	}
	if kind := Classify(err); kind != ErrorHardTimeout {
		t.Fatalf("Classify(%v) = %v, want %v", err, kind, ErrorHardTimeout)
	}
}

func TestRun_ParentContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	spawn := func(ctx context.Context, bin string, args []string, dir string, onStdout, onStderr func(string)) (int, error) {
		<-ctx.Done()
		return -1, ctx.Err()
	}
	r := testRunner(time.Second, time.Second, spawn)

	_, err := r.Run(ctx, "x", Options{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
}

func TestRun_SpawnBinaryMissing(t *testing.T) {
	spawn := func(ctx context.Context, bin string, args []string, dir string, onStdout, onStderr func(string)) (int, error) {
		return -1, exec.ErrNotFound
	}
	r := testRunner(time.Second, time.Second, spawn)

	_, err := r.Run(context.Background(), "x", Options{})
	if kind := Classify(err); kind != ErrorBinaryNotFound {
		t.Fatalf("Classify(%v) = %v, want %v", err, kind, ErrorBinaryNotFound)
	}
}

func TestRun_AuthSniffOnFailure(t *testing.T) {
	spawn := func(ctx context.Context, bin string, args []string, dir string, onStdout, onStderr func(string)) (int, error) {
		onStderr("Error: 401 Unauthorized")
		return 1, nil
	}
	r := testRunner(time.Second, time.Second, spawn)

	_, err := r.Run(context.Background(), "x", Options{})
	if kind := Classify(err); kind != ErrorAuth {
		t.Fatalf("Classify(%v) = %v, want %v", err, kind, ErrorAuth)
	}
}

func TestRun_StructuredErrorResult(t *testing.T) {
	// droid exiting non-zero with a parseable error result is surfaced as
	// a Response, not an error.
	spawn := func(ctx context.Context, bin string, args []string, dir string, onStdout, onStderr func(string)) (int, error) {
		onStdout(`{"type":"result","subtype":"error_during_execution","result":"The task was rejected","is_error":true}`)
		return 1, nil
	}
	r := testRunner(time.Second, time.Second, spawn)

	resp, err := r.Run(context.Background(), "x", Options{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !resp.IsError {
		t.Error("IsError = false, want true")
	}
	if resp.Text != "The task was rejected" {
		t.Errorf("Text = %q", resp.Text)
	}
	if resp.Subtype != "error_during_execution" {
		t.Errorf("Subtype = %q", resp.Subtype)
	}
}

func TestRun_ExecErrorNoOutput(t *testing.T) {
	spawn := func(ctx context.Context, bin string, args []string, dir string, onStdout, onStderr func(string)) (int, error) {
		onStderr("segmentation fault")
		return 2, nil
	}
	r := testRunner(time.Second, time.Second, spawn)

	_, err := r.Run(context.Background(), "x", Options{})
	if kind := Classify(err); kind != ErrorExec {
		t.Fatalf("Classify(%v) = %v, want %v", err, kind, ErrorExec)
	}
}

func TestFallbackSessionID(t *testing.T) {
	a := FallbackSessionID("telegram:123@a1b2c3")
	b := FallbackSessionID("telegram:123@a1b2c3")
	c := FallbackSessionID("discord:999@a1b2c3")

	if a != b {
		t.Errorf("same key produced different IDs: %q vs %q", a, b)
	}
	if a == c {
		t.Error("different keys produced the same ID")
	}
	if _, err := uuid.Parse(a); err != nil {
		t.Errorf("FallbackSessionID returned invalid UUID %q: %v", a, err)
	}
}

func TestLineBuffer_Cap(t *testing.T) {
	b := newLineBuffer(10)
	b.add("12345678")
	b.add("abcdEFGH")
	b.add("zzz")
	if got, want := b.String(), "12345678\na\n"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestTailOf(t *testing.T) {
	if got := tailOf("short", 10); got != "short" {
		t.Errorf("tailOf(short) = %q", got)
	}
	got := tailOf("abcdefghij", 4)
	if got != "...ghij" {
		t.Errorf("tailOf = %q, want %q", got, "...ghij")
	}
}
