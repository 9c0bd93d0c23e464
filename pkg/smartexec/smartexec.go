// Package smartexec layers session autonomy policy over the sandbox:
// an absolute denylist no level can override, an expanded allowlist
// unlocked only at full autonomy, and sequence execution with dry-run
// and stop-on-error semantics.
package smartexec

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/droidgram/droidgram/pkg/cmdparse"
	"github.com/droidgram/droidgram/pkg/config"
	"github.com/droidgram/droidgram/pkg/sandbox"
)

// absoluteBlocklist entries are merged into every session blocklist.
// Substring matches, lowercase. Root-path patterns live in the sandbox
// deny regexes instead, so subpaths are not caught here.
var absoluteBlocklist = []string{
	"curl | sh",
	"curl | bash",
	"wget | sh",
	"wget | bash",
	"> /etc/passwd",
	"> /etc/shadow",
	"history -c",
}

// Executor runs vetted commands for one session.
type Executor struct {
	workingDir string
	auto       config.AutonomyConfig
	sb         *sandbox.Sandbox
}

// New builds an executor for the session's autonomy config. The
// expanded allowlist joins in only at full autonomy; the absolute
// blocklist joins in always.
func New(workingDir string, auto config.AutonomyConfig) *Executor {
	allow := sandbox.ParseAllowlist(auto.Exec.Allowlist)
	if strings.EqualFold(auto.Level, config.AutonomyFull) {
		allow = allow.Merge(expandedAllowlist())
	}

	sb := sandbox.NewSandbox(workingDir, allow)
	blocklist := append(append([]string{}, absoluteBlocklist...), auto.Exec.Blocklist...)
	sb.SetBlocklist(blocklist)
	if auto.Exec.TimeoutSeconds > 0 {
		sb.SetTimeout(time.Duration(auto.Exec.TimeoutSeconds) * time.Second)
	}

	return &Executor{workingDir: workingDir, auto: auto, sb: sb}
}

// SetRunner replaces the process spawner on the underlying sandbox.
func (e *Executor) SetRunner(r sandbox.Runner) { e.sb.SetRunner(r) }

// IsAbsolutelyBlocked reports whether command can never run regardless
// of autonomy level or allowlist contents.
func IsAbsolutelyBlocked(command string) bool {
	if sandbox.Destructive(command) {
		return true
	}
	lower := strings.ToLower(command)
	for _, entry := range absoluteBlocklist {
		if strings.Contains(lower, entry) {
			return true
		}
	}
	return false
}

// Execute runs a single command under the session policy.
func (e *Executor) Execute(ctx context.Context, command string) sandbox.Result {
	if !e.auto.Exec.Enabled {
		return sandbox.Result{
			Success:  false,
			Message:  fmt.Sprintf("command execution is disabled at autonomy level %q", e.auto.Level),
			ExitCode: -1,
		}
	}
	return e.sb.Execute(ctx, command)
}

// Validate reports whether command would run, without executing.
func (e *Executor) Validate(command string) error {
	if !e.auto.Exec.Enabled {
		return fmt.Errorf("command execution is disabled at autonomy level %q", e.auto.Level)
	}
	return e.sb.Validate(command)
}

// ValidateCommands partitions commands into runnable and rejected
// against the active allowlist and blocklists.
func (e *Executor) ValidateCommands(commands []cmdparse.ParsedCommand) (valid, invalid []cmdparse.ParsedCommand) {
	for _, cmd := range commands {
		if e.Validate(cmd.Command) == nil {
			valid = append(valid, cmd)
		} else {
			invalid = append(invalid, cmd)
		}
	}
	return valid, invalid
}

// CommandResult pairs one sequence entry with its outcome.
type CommandResult struct {
	Command cmdparse.ParsedCommand `json:"command"`
	Result  sandbox.Result         `json:"result"`
	Skipped bool                   `json:"skipped,omitempty"`
}

// SequenceResult summarizes a RunSequence call.
type SequenceResult struct {
	Results       []CommandResult `json:"results"`
	ExecutedCount int             `json:"executed_count"`
	FailedCount   int             `json:"failed_count"`
	SkippedCount  int             `json:"skipped_count"`
	Stopped       bool            `json:"stopped"`
}

// SequenceOptions control RunSequence.
type SequenceOptions struct {
	// StopOnError aborts the sequence at the first failed command.
	StopOnError bool
	// DryRun validates each command without spawning anything.
	DryRun bool
	// Progress fires after each command is handled.
	Progress func(cmd cmdparse.ParsedCommand, res sandbox.Result)
}

// DefaultSequenceOptions stop on the first failure and execute for real.
func DefaultSequenceOptions() SequenceOptions {
	return SequenceOptions{StopOnError: true}
}

// RunSequence executes commands one at a time in ascending index order.
func (e *Executor) RunSequence(ctx context.Context, commands []cmdparse.ParsedCommand, opts SequenceOptions) SequenceResult {
	ordered := make([]cmdparse.ParsedCommand, len(commands))
	copy(ordered, commands)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })

	var seq SequenceResult
	stopped := false
	for _, cmd := range ordered {
		if stopped {
			seq.Results = append(seq.Results, CommandResult{Command: cmd, Skipped: true})
			seq.SkippedCount++
			continue
		}

		var res sandbox.Result
		if opts.DryRun {
			if err := e.Validate(cmd.Command); err != nil {
				res = sandbox.Result{Success: false, Message: err.Error(), ExitCode: -1}
			} else {
				res = sandbox.Result{Success: true, Message: "dry run: command would execute"}
			}
		} else {
			res = e.Execute(ctx, cmd.Command)
			seq.ExecutedCount++
		}

		seq.Results = append(seq.Results, CommandResult{Command: cmd, Result: res})
		if !res.Success {
			seq.FailedCount++
			if opts.StopOnError {
				stopped = true
				seq.Stopped = true
			}
		}
		if opts.Progress != nil {
			opts.Progress(cmd, res)
		}
	}
	return seq
}
