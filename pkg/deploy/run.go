package deploy

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
)

type cmdResult struct {
	stdout   string
	stderr   string
	exitCode int
}

// Replaced in tests.
var runCommand = runCommandReal

// runCommandReal executes name with args in dir, an argv invocation with no
// shell interpretation. CI=true and FORCE_COLOR=0 keep CLI tools
// non-interactive and ANSI-free.
func runCommandReal(ctx context.Context, dir string, extraEnv []string, name string, args ...string) (cmdResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "CI=true", "FORCE_COLOR=0")
	cmd.Env = append(cmd.Env, extraEnv...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := cmdResult{stdout: stdout.String(), stderr: stderr.String()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.exitCode = exitErr.ExitCode()
			return res, nil
		}
		res.exitCode = -1
		return res, err
	}
	return res, nil
}
