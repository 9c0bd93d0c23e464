//go:build linux

package service

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const systemdUnitName = "droidgram-gateway.service"

type systemdUserManager struct {
	runner   commandRunner
	exePath  string
	unitName string
	unitPath string
}

func newPlatformManager(exePath string, runner commandRunner) Manager {
	return newSystemdUserManager(exePath, runner)
}

func newSystemdUserManager(exePath string, runner commandRunner) Manager {
	home, _ := os.UserHomeDir()
	return &systemdUserManager{
		runner:   runner,
		exePath:  exePath,
		unitName: systemdUnitName,
		unitPath: filepath.Join(home, ".config", "systemd", "user", systemdUnitName),
	}
}

func (m *systemdUserManager) Backend() string { return BackendSystemd }

func (m *systemdUserManager) Install() error {
	if err := os.MkdirAll(filepath.Dir(m.unitPath), 0755); err != nil {
		return err
	}

	pathEnv := buildSystemdPath(os.Getenv("PATH"), detectBrewPrefix(m.runner))
	unit := renderSystemdUnit(m.exePath, pathEnv)
	if err := os.WriteFile(m.unitPath, []byte(unit), 0644); err != nil {
		return err
	}

	if out, err := runCommand(m.runner, 10*time.Second, "systemctl", "--user", "daemon-reload"); err != nil {
		return m.wrapSystemdError("daemon-reload", err, out)
	}
	if out, err := runCommand(m.runner, 10*time.Second, "systemctl", "--user", "enable", m.unitName); err != nil {
		return m.wrapSystemdError("enable", err, out)
	}
	return nil
}

func (m *systemdUserManager) Uninstall() error {
	_, _ = runCommand(m.runner, 15*time.Second, "systemctl", "--user", "disable", "--now", m.unitName)
	if err := os.Remove(m.unitPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	_, _ = runCommand(m.runner, 10*time.Second, "systemctl", "--user", "daemon-reload")
	return nil
}

func (m *systemdUserManager) Start() error {
	if _, err := os.Stat(m.unitPath); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("service is not installed; run `droidgram service install`")
		}
		return err
	}
	if out, err := runCommand(m.runner, 15*time.Second, "systemctl", "--user", "start", m.unitName); err != nil {
		return m.wrapSystemdError("start", err, out)
	}
	return nil
}

func (m *systemdUserManager) Stop() error {
	out, err := runCommand(m.runner, 15*time.Second, "systemctl", "--user", "stop", m.unitName)
	if err != nil {
		msg := strings.ToLower(string(out))
		if strings.Contains(msg, "not loaded") || strings.Contains(msg, "could not be found") {
			return nil
		}
		return m.wrapSystemdError("stop", err, out)
	}
	return nil
}

func (m *systemdUserManager) Restart() error {
	if _, err := os.Stat(m.unitPath); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("service is not installed; run `droidgram service install`")
		}
		return err
	}
	if out, err := runCommand(m.runner, 20*time.Second, "systemctl", "--user", "restart", m.unitName); err != nil {
		return m.wrapSystemdError("restart", err, out)
	}
	return nil
}

func (m *systemdUserManager) Status() (Status, error) {
	st := Status{Backend: BackendSystemd}
	if _, err := os.Stat(m.unitPath); err == nil {
		st.Installed = true
	}

	if out, err := runCommand(m.runner, 5*time.Second, "systemctl", "--user", "is-enabled", m.unitName); err == nil {
		if strings.TrimSpace(string(out)) == "enabled" {
			st.Enabled = true
		}
	}

	out, err := runCommand(m.runner, 5*time.Second, "systemctl", "--user", "is-active", m.unitName)
	state := strings.TrimSpace(string(out))
	if err == nil && state == "active" {
		st.Running = true
	}
	switch {
	case state != "":
		st.Detail = oneLine(state)
	case st.Installed:
		st.Detail = "installed but not loaded"
	}
	return st, nil
}

func (m *systemdUserManager) Logs(lines int) (string, error) {
	if lines <= 0 {
		lines = 100
	}
	out, err := runCommand(m.runner, 10*time.Second, "journalctl", "--user", "-u", m.unitName, "-n", strconv.Itoa(lines), "--no-pager")
	if err != nil {
		return "", fmt.Errorf("journalctl failed: %s", commandErrorDetail(err, out))
	}
	if strings.TrimSpace(string(out)) == "" {
		return "", fmt.Errorf("no journal entries for %s", m.unitName)
	}
	return string(out), nil
}

// wrapSystemdError adds a WSL hint, since the usual failure there is a
// missing systemd user session rather than anything unit-specific.
func (m *systemdUserManager) wrapSystemdError(op string, err error, out []byte) error {
	detail := commandErrorDetail(err, out)
	if IsWSL() {
		return fmt.Errorf("%s failed: %s (WSL usually has no systemd user session; enable systemd in /etc/wsl.conf or run `droidgram gateway` directly)", op, detail)
	}
	return fmt.Errorf("%s failed: %s", op, detail)
}
