package droid

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/droidgram/droidgram/pkg/config"
	"github.com/droidgram/droidgram/pkg/logger"
)

const (
	// DefaultIdleTimeout kills the process when no output arrives for this long.
	DefaultIdleTimeout = 120 * time.Second
	// DefaultHardTimeout is the ceiling for a single droid invocation.
	DefaultHardTimeout = 15 * time.Minute

	maxCapturedBytes = 1 << 20
	termGracePeriod  = 5 * time.Second
)

// Options carries the per-invocation flags for droid exec.
type Options struct {
	SessionID       string
	Model           string
	ReasoningEffort string
	AutoLevel       string
}

// spawnFunc starts the droid binary and streams its output line by line.
// Implementations return the process exit code, or -1 with an error when
// the process could not run to completion.
type spawnFunc func(ctx context.Context, bin string, args []string, dir string, onStdout, onStderr func(line string)) (int, error)

// Runner invokes the droid CLI in non-interactive JSON mode.
type Runner struct {
	binary      string
	workDir     string
	idleTimeout time.Duration
	hardTimeout time.Duration
	spawn       spawnFunc
}

// New resolves the droid binary and returns a Runner rooted at workDir.
func New(cfg config.DroidConfig, workDir string) (*Runner, error) {
	bin, err := ResolveBinary(cfg.Binary)
	if err != nil {
		return nil, err
	}
	idle := time.Duration(cfg.IdleTimeoutSeconds) * time.Second
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	hard := time.Duration(cfg.HardTimeoutSeconds) * time.Second
	if hard <= 0 {
		hard = DefaultHardTimeout
	}
	return &Runner{
		binary:      bin,
		workDir:     workDir,
		idleTimeout: idle,
		hardTimeout: hard,
		spawn:       spawnDroid,
	}, nil
}

// Binary returns the resolved droid executable path.
func (r *Runner) Binary() string { return r.binary }

// WorkDir returns the directory droid runs in.
func (r *Runner) WorkDir() string { return r.workDir }

func (r *Runner) buildArgs(prompt string, opts Options) []string {
	args := []string{"exec", "-o", "json", "--cwd", r.workDir}
	if opts.SessionID != "" {
		args = append(args, "-s", opts.SessionID)
	}
	if opts.Model != "" {
		args = append(args, "-m", opts.Model)
	}
	if opts.ReasoningEffort != "" {
		args = append(args, "-r", opts.ReasoningEffort)
	}
	if opts.AutoLevel != "" {
		args = append(args, "--auto", opts.AutoLevel)
	}
	return append(args, prompt)
}

// Run executes one droid exec turn and parses its stdout. The idle timer
// resets whenever either stream produces a line; the hard timer never
// resets. A process that exits non-zero but still prints a structured
// error result is returned as a Response with IsError set, not as an error.
func (r *Runner) Run(ctx context.Context, prompt string, opts Options) (*Response, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, errors.New("empty prompt")
	}
	args := r.buildArgs(prompt, opts)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var idleFired, hardFired atomic.Bool
	idleTimer := time.AfterFunc(r.idleTimeout, func() {
		idleFired.Store(true)
		cancel()
	})
	defer idleTimer.Stop()
	hardTimer := time.AfterFunc(r.hardTimeout, func() {
		hardFired.Store(true)
		cancel()
	})
	defer hardTimer.Stop()

	stdout := newLineBuffer(maxCapturedBytes)
	stderr := newLineBuffer(maxCapturedBytes)

	started := time.Now()
	logger.DebugCF("droid", "spawning droid exec", map[string]interface{}{
		"cwd":     r.workDir,
		"session": opts.SessionID,
		"model":   opts.Model,
	})

	exitCode, spawnErr := r.spawn(runCtx, r.binary, args, r.workDir,
		func(line string) {
			idleTimer.Reset(r.idleTimeout)
			stdout.add(line)
		},
		func(line string) {
			idleTimer.Reset(r.idleTimeout)
			stderr.add(line)
		},
	)

	idleTimer.Stop()
	hardTimer.Stop()

	out := stdout.String()
	errOut := stderr.String()

	switch {
	case hardFired.Load():
		logger.WarnCF("droid", "droid killed at hard ceiling", map[string]interface{}{
			"after": time.Since(started).Round(time.Second),
		})
		return nil, &RunError{Kind: ErrorHardTimeout, Err: context.DeadlineExceeded, Detail: tailOf(out, 600)}
	case idleFired.Load():
		logger.WarnCF("droid", "droid killed after going idle", map[string]interface{}{
			"idle": r.idleTimeout,
		})
		return nil, &RunError{Kind: ErrorIdleTimeout, Err: context.DeadlineExceeded, Detail: tailOf(out, 600)}
	case ctx.Err() != nil:
		return nil, ctx.Err()
	}

	if spawnErr != nil {
		if isNotFoundErr(spawnErr) {
			return nil, &RunError{Kind: ErrorBinaryNotFound, Err: spawnErr, Detail: r.binary}
		}
		return nil, &RunError{Kind: ErrorExec, Err: spawnErr, Detail: tailOf(errOut, 600)}
	}

	resp, perr := parseOutput(out)
	if exitCode != 0 {
		if looksLikeAuthError(out + "\n" + errOut) {
			return nil, &RunError{Kind: ErrorAuth, Detail: tailOf(out+"\n"+errOut, 600)}
		}
		if perr == nil {
			resp.IsError = true
			return resp, nil
		}
		return nil, &RunError{Kind: ErrorExec, Detail: fmt.Sprintf("exit code %d: %s", exitCode, tailOf(errOut, 600))}
	}
	if perr != nil {
		if looksLikeAuthError(out + "\n" + errOut) {
			return nil, &RunError{Kind: ErrorAuth, Detail: tailOf(out+"\n"+errOut, 600)}
		}
		return nil, perr
	}

	logger.DebugCF("droid", "droid exec finished", map[string]interface{}{
		"took":    time.Since(started).Round(time.Millisecond),
		"session": resp.SessionID,
	})
	return resp, nil
}

// FallbackSessionID derives a stable droid session ID from a chat session
// key, for sessions where droid never reported its own ID. The same key
// always yields the same UUID so resumed chats keep their droid context.
func FallbackSessionID(sessionKey string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("droidgram://session/"+sessionKey)).String()
}

func spawnDroid(ctx context.Context, bin string, args []string, dir string, onStdout, onStderr func(string)) (int, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = dir
	cmd.Cancel = func() error {
		if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
			return cmd.Process.Kill()
		}
		return nil
	}
	cmd.WaitDelay = termGracePeriod

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return -1, err
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return -1, err
	}
	if err := cmd.Start(); err != nil {
		return -1, err
	}

	var wg sync.WaitGroup
	wg.Add(2)
	scan := func(r io.Reader, emit func(string)) {
		defer wg.Done()
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 0, 64*1024), maxCapturedBytes)
		for sc.Scan() {
			emit(sc.Text())
		}
	}
	go scan(stdoutPipe, onStdout)
	go scan(stderrPipe, onStderr)
	wg.Wait()

	err = cmd.Wait()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, err
}

func isNotFoundErr(err error) bool {
	return errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist)
}

// lineBuffer accumulates output lines up to a byte cap; excess is dropped.
type lineBuffer struct {
	mu  sync.Mutex
	buf strings.Builder
	max int
}

func newLineBuffer(max int) *lineBuffer {
	return &lineBuffer{max: max}
}

func (b *lineBuffer) add(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.buf.Len() >= b.max {
		return
	}
	if room := b.max - b.buf.Len(); len(line) > room {
		line = line[:room]
	}
	b.buf.WriteString(line)
	b.buf.WriteByte('\n')
}

func (b *lineBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// tailOf keeps the last max characters; droid errors surface at the end.
func tailOf(s string, max int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return "..." + string(r[len(r)-max:])
}
