package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// gatewayPIDFilePath is where the running gateway records its PID. Telegram
// allows one getUpdates consumer per token, so a second gateway on the same
// host would knock the first offline with 409 conflicts.
func gatewayPIDFilePath() string {
	return filepath.Join(filepath.Dir(getConfigPath()), "gateway.pid")
}

// processCommandLineForPID returns the command line of a live process.
// Swappable for tests.
var processCommandLineForPID = func(pid int) (string, error) {
	if runtime.GOOS == "linux" {
		raw, err := os.ReadFile(fmt.Sprintf("/proc/%d/cmdline", pid))
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(strings.ReplaceAll(string(raw), "\x00", " ")), nil
	}
	out, err := exec.Command("ps", "-o", "command=", "-p", strconv.Itoa(pid)).Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// isGatewayProcessCommandLine reports whether a command line looks like a
// droidgram gateway process. PIDs get reused: the stale-lock check must not
// mistake an unrelated process, or a droidgram invocation that is not the
// gateway subcommand, for a running gateway.
func isGatewayProcessCommandLine(cmdline string) bool {
	fields := strings.Fields(cmdline)

	i := 0
	if i < len(fields) && fields[i] == "env" {
		i++
		for i < len(fields) && strings.Contains(fields[i], "=") {
			i++
		}
	}

	if i >= len(fields) {
		return false
	}

	base := strings.ToLower(filepath.Base(fields[i]))
	base = strings.TrimSuffix(base, ".exe")
	if !strings.HasPrefix(base, cliName) {
		return false
	}

	if i+1 >= len(fields) {
		return false
	}
	return fields[i+1] == "gateway"
}

// isGatewayProcessPID reports whether pid is a live droidgram gateway.
func isGatewayProcessPID(pid int) (bool, error) {
	cmdline, err := processCommandLineForPID(pid)
	if err != nil {
		return false, err
	}
	return isGatewayProcessCommandLine(cmdline), nil
}

// acquireGatewayLock claims the PID file, refusing while a live gateway owns
// it. Stale entries (dead PID, or a reused PID now running something else)
// are replaced. The returned release removes the file only if it still holds
// our PID.
func acquireGatewayLock() (func(), error) {
	pidPath := gatewayPIDFilePath()
	if err := os.MkdirAll(filepath.Dir(pidPath), 0700); err != nil {
		return nil, err
	}

	if raw, err := os.ReadFile(pidPath); err == nil {
		if pid, perr := strconv.Atoi(strings.TrimSpace(string(raw))); perr == nil && pid > 0 && pid != os.Getpid() {
			if alive, _ := isGatewayProcessPID(pid); alive {
				return nil, fmt.Errorf("another gateway is already running (pid %d); stop it first or check: %s service status", pid, invokedCLIName())
			}
		}
	}

	pid := os.Getpid()
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(pid)), 0600); err != nil {
		return nil, err
	}

	release := func() {
		raw, err := os.ReadFile(pidPath)
		if err != nil {
			return
		}
		if strings.TrimSpace(string(raw)) == strconv.Itoa(pid) {
			os.Remove(pidPath)
		}
	}
	return release, nil
}
