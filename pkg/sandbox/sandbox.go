// Package sandbox runs one vetted command at a time. Every command must
// pass the deny check, then the allow check, before a process is
// spawned; execution uses an argument vector, never a shell.
package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"
)

const (
	// DefaultTimeout bounds a single command run.
	DefaultTimeout = 30 * time.Second
	// maxOutputBytes caps captured stdout and stderr each.
	maxOutputBytes = 1 << 20
	// maxMessageChars keeps rendered results inside chat message limits.
	maxMessageChars = 3500
)

// Result is the outcome of one command run.
type Result struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	Stdout   string `json:"stdout,omitempty"`
	Stderr   string `json:"stderr,omitempty"`
	ExitCode int    `json:"exit_code"`
}

// Runner spawns argv in dir with env and returns captured output. The
// seam exists so tests can prove a rejected command never spawns.
type Runner func(ctx context.Context, argv []string, dir string, env []string) (stdout, stderr string, exitCode int, err error)

// Sandbox validates and executes single commands.
type Sandbox struct {
	workingDir string
	timeout    time.Duration
	allow      Allowlist
	blocklist  []string
	extraEnv   map[string]string
	run        Runner
}

// Deny patterns guard against destructive commands. Root-level targets
// are blocked while subpaths pass ("rm -rf /" vs "rm -rf /home/u/p").
var denyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\brm\s(.*\s)?/\*?(\s|$)`),
	regexp.MustCompile(`(?i)\bchmod\s+(-[a-z]+\s+)*777\s+/(\s|$)`),
	regexp.MustCompile(`(?i)\bsudo\s+rm\b`),
	regexp.MustCompile(`(?i)\b(mkfs|diskpart)\b`),
	regexp.MustCompile(`(?i)\bdd\s+if=`),
	regexp.MustCompile(`>\s*/dev/sd[a-z]\b`),
	regexp.MustCompile(`(?i)\b(shutdown|reboot|poweroff)\b`),
	regexp.MustCompile(`:\(\)\s*\{.*\};\s*:`),
}

// Destructive reports whether command matches a pattern no allowlist or
// autonomy level may override.
func Destructive(command string) bool {
	for _, pattern := range denyPatterns {
		if pattern.MatchString(command) {
			return true
		}
	}
	return false
}

func NewSandbox(workingDir string, allow Allowlist) *Sandbox {
	return &Sandbox{
		workingDir: workingDir,
		timeout:    DefaultTimeout,
		allow:      allow,
		run:        defaultRunner,
	}
}

func (s *Sandbox) SetTimeout(timeout time.Duration) {
	if timeout > 0 {
		s.timeout = timeout
	}
}

// SetBlocklist installs literal substrings that reject a command.
func (s *Sandbox) SetBlocklist(entries []string) {
	s.blocklist = s.blocklist[:0]
	for _, e := range entries {
		if trimmed := strings.TrimSpace(e); trimmed != "" {
			s.blocklist = append(s.blocklist, strings.ToLower(trimmed))
		}
	}
}

// SetExtraEnv injects additional environment variables into every run.
func (s *Sandbox) SetExtraEnv(env map[string]string) {
	if len(env) == 0 {
		return
	}
	if s.extraEnv == nil {
		s.extraEnv = map[string]string{}
	}
	for k, v := range env {
		if strings.TrimSpace(k) == "" {
			continue
		}
		s.extraEnv[k] = v
	}
}

// SetRunner replaces the process spawner.
func (s *Sandbox) SetRunner(r Runner) {
	if r != nil {
		s.run = r
	}
}

// Validate runs the deny check then the allow check without executing.
// A nil return means Execute would spawn the command.
func (s *Sandbox) Validate(command string) error {
	_, err := s.vet(command)
	return err
}

func (s *Sandbox) vet(command string) ([]string, error) {
	cmd := strings.TrimSpace(command)
	if cmd == "" {
		return nil, errors.New("empty command")
	}
	lower := strings.ToLower(cmd)

	for _, entry := range s.blocklist {
		if strings.Contains(lower, entry) {
			return nil, fmt.Errorf("command blocked by safety guard (matches blocklist entry %q)", entry)
		}
	}
	if Destructive(cmd) {
		return nil, errors.New("command blocked by safety guard (dangerous pattern detected)")
	}

	argv, err := SplitArgv(cmd)
	if err != nil {
		return nil, fmt.Errorf("command blocked by safety guard (unparseable: %v)", err)
	}
	if len(argv) == 0 {
		return nil, errors.New("empty command")
	}

	sub := ""
	if len(argv) > 1 {
		sub = argv[1]
	}
	if !s.allow.Allows(argv[0], sub) {
		return nil, fmt.Errorf("command %q is not in the allowlist", argv[0])
	}
	return argv, nil
}

// Execute runs one command. Rejected commands never spawn a process.
func (s *Sandbox) Execute(ctx context.Context, command string) Result {
	argv, err := s.vet(command)
	if err != nil {
		return Result{Success: false, Message: err.Error(), ExitCode: -1}
	}

	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	env := mergeEnv(os.Environ(), s.runEnv())
	stdout, stderr, exitCode, runErr := s.run(runCtx, argv, s.workingDir, env)

	if runCtx.Err() == context.DeadlineExceeded {
		msg := fmt.Sprintf("Command timed out after %v", s.timeout)
		if stdout != "" {
			msg += "\nPartial output:\n" + stdout
		}
		return Result{
			Success:  false,
			Message:  truncateMessage(msg),
			Stdout:   stdout,
			Stderr:   stderr,
			ExitCode: -1,
		}
	}

	if runErr != nil {
		output := stdout
		if stderr != "" {
			output += "\nSTDERR:\n" + stderr
		}
		output = strings.TrimSpace(output)
		if output == "" {
			output = runErr.Error()
		}
		return Result{
			Success:  false,
			Message:  truncateMessage(fmt.Sprintf("%s\nExit code: %d", output, exitCode)),
			Stdout:   stdout,
			Stderr:   stderr,
			ExitCode: exitCode,
		}
	}

	output := stdout
	if output == "" {
		output = "(no output)"
	}
	return Result{
		Success:  true,
		Message:  truncateMessage(output),
		Stdout:   stdout,
		Stderr:   stderr,
		ExitCode: 0,
	}
}

func (s *Sandbox) runEnv() map[string]string {
	env := map[string]string{
		"CI":          "true",
		"FORCE_COLOR": "0",
	}
	for k, v := range s.extraEnv {
		env[k] = v
	}
	return env
}

func defaultRunner(ctx context.Context, argv []string, dir string, env []string) (string, string, int, error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	if dir != "" {
		cmd.Dir = dir
	}
	cmd.Env = env

	stdout := &cappedBuffer{max: maxOutputBytes}
	stderr := &cappedBuffer{max: maxOutputBytes}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}
	return stdout.String(), stderr.String(), exitCode, err
}

// cappedBuffer keeps the first max bytes and silently drops the rest.
type cappedBuffer struct {
	buf bytes.Buffer
	max int
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	room := b.max - b.buf.Len()
	if room <= 0 {
		return len(p), nil
	}
	if len(p) > room {
		b.buf.Write(p[:room])
		return len(p), nil
	}
	return b.buf.Write(p)
}

func (b *cappedBuffer) String() string { return b.buf.String() }

func truncateMessage(s string) string {
	if len(s) <= maxMessageChars {
		return s
	}
	return s[:maxMessageChars] + fmt.Sprintf("\n... (truncated, %d more chars)", len(s)-maxMessageChars)
}

func mergeEnv(base []string, overrides map[string]string) []string {
	if len(overrides) == 0 {
		return base
	}
	out := make([]string, 0, len(base)+len(overrides))
	for _, kv := range base {
		keep := true
		for k := range overrides {
			if strings.HasPrefix(kv, k+"=") {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, kv)
		}
	}
	for k, v := range overrides {
		out = append(out, fmt.Sprintf("%s=%s", k, v))
	}
	return out
}
