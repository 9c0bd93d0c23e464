// Package service installs and controls the droidgram gateway as a
// background service: a systemd user unit on Linux, a launchd agent on
// macOS. Other platforms get a manager that reports itself unsupported
// so callers can degrade instead of failing.
package service

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	BackendSystemd     = "systemd"
	BackendLaunchd     = "launchd"
	BackendUnsupported = "unsupported"
)

// Manager abstracts one platform's service backend.
type Manager interface {
	Backend() string
	Install() error
	Uninstall() error
	Start() error
	Stop() error
	Restart() error
	Status() (Status, error)
	Logs(lines int) (string, error)
}

// Status describes the install and runtime state of the gateway service.
type Status struct {
	Backend   string
	Installed bool
	Enabled   bool
	Running   bool
	Detail    string
}

// NewManager returns the service manager for the current platform. exePath
// is the droidgram binary the service will run.
func NewManager(exePath string) (Manager, error) {
	if strings.TrimSpace(exePath) == "" {
		return nil, fmt.Errorf("executable path is empty")
	}
	return newPlatformManager(exePath, execRunner{}), nil
}

// commandRunner shells out to platform tools (systemctl, launchctl, brew).
// Tests substitute it to script tool behavior.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

func runCommand(runner commandRunner, timeout time.Duration, name string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return runner.Run(ctx, name, args...)
}

func commandErrorDetail(err error, out []byte) string {
	if msg := oneLine(string(out)); msg != "" {
		return msg
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

// IsWSL reports whether the process runs inside Windows Subsystem for
// Linux, where systemd user sessions are frequently absent.
func IsWSL() bool {
	return detectWSLWith(os.Getenv, os.ReadFile)
}

func detectWSLWith(getenv func(string) string, readFile func(string) ([]byte, error)) bool {
	if getenv("WSL_INTEROP") != "" || getenv("WSL_DISTRO_NAME") != "" {
		return true
	}
	version, err := readFile("/proc/version")
	if err != nil {
		return false
	}
	v := strings.ToLower(string(version))
	return strings.Contains(v, "microsoft") || strings.Contains(v, "wsl")
}

// buildSystemdPath assembles the PATH baked into the service definition.
// Services inherit almost no environment, so the unit must carry every
// directory droid and its toolchains might live in: the installer's own
// PATH, the standard baseline, Homebrew, and droid's install locations.
func buildSystemdPath(installerPath, brewPrefix string) string {
	sep := string(os.PathListSeparator)
	home, _ := os.UserHomeDir()

	candidates := make([]string, 0, 16)
	for _, p := range strings.Split(installerPath, sep) {
		if strings.TrimSpace(p) != "" {
			candidates = append(candidates, p)
		}
	}
	candidates = append(candidates, "/usr/local/bin", "/usr/bin", "/bin")
	if brewPrefix != "" {
		candidates = append(candidates,
			filepath.Join(brewPrefix, "bin"),
			filepath.Join(brewPrefix, "sbin"),
		)
	}
	if home != "" {
		// droid's curl installer targets ~/.local/bin; older Factory
		// setups used ~/.factory/bin.
		candidates = append(candidates,
			filepath.Join(home, ".local", "bin"),
			filepath.Join(home, ".factory", "bin"),
		)
	}

	seen := make(map[string]struct{}, len(candidates))
	out := make([]string, 0, len(candidates))
	for _, p := range candidates {
		clean := filepath.Clean(p)
		if _, ok := seen[clean]; ok {
			continue
		}
		seen[clean] = struct{}{}
		out = append(out, clean)
	}
	return strings.Join(out, sep)
}

func detectBrewPrefix(runner commandRunner) string {
	if _, err := exec.LookPath("brew"); err != nil {
		return ""
	}
	out, err := runCommand(runner, 4*time.Second, "brew", "--prefix")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

func renderSystemdUnit(exePath, pathEnv string) string {
	var b strings.Builder
	b.WriteString("[Unit]\n")
	b.WriteString("Description=droidgram gateway\n")
	b.WriteString("After=network-online.target\n")
	b.WriteString("\n[Service]\n")
	b.WriteString("Type=simple\n")
	fmt.Fprintf(&b, "ExecStart=%s gateway\n", exePath)
	b.WriteString("Restart=always\n")
	b.WriteString("RestartSec=5\n")
	if pathEnv != "" {
		fmt.Fprintf(&b, "Environment=PATH=%s\n", pathEnv)
	}
	b.WriteString("\n[Install]\n")
	b.WriteString("WantedBy=default.target\n")
	return b.String()
}

func renderLaunchdPlist(label, exePath, stdoutPath, stderrPath, pathEnv string) string {
	var b strings.Builder
	b.WriteString("<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n")
	b.WriteString("<!DOCTYPE plist PUBLIC \"-//Apple//DTD PLIST 1.0//EN\" \"http://www.apple.com/DTDs/PropertyList-1.0.dtd\">\n")
	b.WriteString("<plist version=\"1.0\">\n<dict>\n")
	fmt.Fprintf(&b, "\t<key>Label</key>\n\t<string>%s</string>\n", label)
	b.WriteString("\t<key>ProgramArguments</key>\n\t<array>\n")
	fmt.Fprintf(&b, "\t\t<string>%s</string>\n", exePath)
	b.WriteString("\t\t<string>gateway</string>\n")
	b.WriteString("\t</array>\n")
	b.WriteString("\t<key>RunAtLoad</key>\n\t<true/>\n")
	b.WriteString("\t<key>KeepAlive</key>\n\t<true/>\n")
	fmt.Fprintf(&b, "\t<key>StandardOutPath</key>\n\t<string>%s</string>\n", stdoutPath)
	fmt.Fprintf(&b, "\t<key>StandardErrorPath</key>\n\t<string>%s</string>\n", stderrPath)
	if pathEnv != "" {
		b.WriteString("\t<key>EnvironmentVariables</key>\n\t<dict>\n")
		fmt.Fprintf(&b, "\t\t<key>PATH</key>\n\t\t<string>%s</string>\n", pathEnv)
		b.WriteString("\t</dict>\n")
	}
	b.WriteString("</dict>\n</plist>\n")
	return b.String()
}

func oneLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func tailFileLines(path string, n int) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if n <= 0 {
		n = 100
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n") + "\n", nil
}

func combineLogSections(sections map[string]string) string {
	paths := make([]string, 0, len(sections))
	for p := range sections {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var b strings.Builder
	for _, p := range paths {
		content := strings.TrimSpace(sections[p])
		if content == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "==> %s <==\n%s\n", p, content)
	}
	return b.String()
}
