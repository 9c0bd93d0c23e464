package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/droidgram/droidgram/pkg/auth"
	"github.com/droidgram/droidgram/pkg/config"
	"github.com/droidgram/droidgram/pkg/droid"
	"github.com/droidgram/droidgram/pkg/queue"
	svcmgr "github.com/droidgram/droidgram/pkg/service"
)

type doctorOptions struct {
	JSON    bool
	Fix     bool
	Verbose bool
}

type doctorCheckStatus string

const (
	doctorOK   doctorCheckStatus = "ok"
	doctorWarn doctorCheckStatus = "warn"
	doctorErr  doctorCheckStatus = "error"
	doctorSkip doctorCheckStatus = "skip"
)

type doctorCheck struct {
	Name    string            `json:"name"`
	Status  doctorCheckStatus `json:"status"`
	Message string            `json:"message,omitempty"`
	Data    map[string]string `json:"data,omitempty"`
}

type doctorReport struct {
	CLI       string        `json:"cli"`
	Version   string        `json:"version"`
	OS        string        `json:"os"`
	Arch      string        `json:"arch"`
	Timestamp string        `json:"timestamp"`
	Checks    []doctorCheck `json:"checks"`
}

func doctorCmd() {
	opts, showHelp, err := parseDoctorOptions(os.Args[2:])
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		doctorHelp()
		os.Exit(2)
	}
	if showHelp {
		doctorHelp()
		return
	}

	rep := runDoctor(opts)
	if opts.JSON {
		b, _ := json.MarshalIndent(rep, "", "  ")
		fmt.Println(string(b))
	} else {
		printDoctorReport(rep)
	}

	// Exit non-zero if any hard error.
	for _, c := range rep.Checks {
		if c.Status == doctorErr {
			os.Exit(1)
		}
	}
}

func doctorHelp() {
	commandName := invokedCLIName()
	fmt.Println("\nDoctor:")
	fmt.Printf("  %s doctor checks your config, workspace, channels, gateway health, the droid CLI, and deploy tooling (vercel, git, node).\n", commandName)
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --json        Machine-readable output")
	fmt.Println("  --fix         Apply safe fixes (recreate missing workspace template files)")
	fmt.Println("  --verbose     Include extra details")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Printf("  %s doctor\n", commandName)
	fmt.Printf("  %s doctor --fix\n", commandName)
	fmt.Printf("  %s doctor --json\n", commandName)
}

func parseDoctorOptions(args []string) (doctorOptions, bool, error) {
	opts := doctorOptions{}
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--json":
			opts.JSON = true
		case "--fix":
			opts.Fix = true
		case "--verbose", "-v":
			opts.Verbose = true
		case "help", "--help", "-h":
			return opts, true, nil
		default:
			return opts, false, fmt.Errorf("unknown option: %s", args[i])
		}
	}
	return opts, false, nil
}

func runDoctor(opts doctorOptions) doctorReport {
	rep := doctorReport{
		CLI:       invokedCLIName(),
		Version:   version,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	add := func(c doctorCheck) {
		rep.Checks = append(rep.Checks, c)
	}

	telegramEnabled := false

	// Config + workspace
	configPath := getConfigPath()
	configExists := fileExists(configPath)
	if configExists {
		add(doctorCheck{Name: "config", Status: doctorOK, Message: configPath})
	} else {
		add(doctorCheck{
			Name:    "config",
			Status:  doctorWarn,
			Message: fmt.Sprintf("missing: %s (run: %s onboard --yes)", configPath, invokedCLIName()),
		})
	}

	var cfg *config.Config
	var cfgErr error
	if configExists {
		cfg, cfgErr = loadConfig()
		if cfgErr != nil {
			add(doctorCheck{Name: "config.load", Status: doctorErr, Message: cfgErr.Error()})
		}
	}

	if cfgErr == nil && cfg != nil {
		workspace := cfg.WorkspacePath()
		if fileExists(workspace) {
			add(doctorCheck{Name: "workspace", Status: doctorOK, Message: workspace})
			add(checkWorkspaceTemplates(workspace, opts))
		} else {
			add(doctorCheck{
				Name:    "workspace",
				Status:  doctorWarn,
				Message: fmt.Sprintf("missing: %s (run: %s onboard --yes)", workspace, invokedCLIName()),
			})
		}

		// Channels
		telegramEnabled = cfg.Channels.Telegram.Enabled
		if cfg.Channels.Telegram.Enabled {
			if strings.TrimSpace(cfg.Channels.Telegram.Token) == "" {
				add(doctorCheck{Name: "telegram", Status: doctorWarn, Message: "enabled but token is empty"})
			} else {
				add(doctorCheck{Name: "telegram", Status: doctorOK, Message: "enabled"})
				if len(cfg.Channels.Telegram.AllowFrom) == 0 {
					add(doctorCheck{Name: "telegram.allow_from", Status: doctorWarn, Message: fmt.Sprintf("empty (any Telegram user can talk to your bot); run: %s channels setup telegram", invokedCLIName())})
				} else {
					add(doctorCheck{Name: "telegram.allow_from", Status: doctorOK, Message: fmt.Sprintf("%d entries", len(cfg.Channels.Telegram.AllowFrom))})
				}
			}
		} else {
			add(doctorCheck{Name: "telegram", Status: doctorSkip, Message: "disabled"})
		}

		if cfg.Channels.Discord.Enabled {
			if strings.TrimSpace(cfg.Channels.Discord.Token) == "" {
				add(doctorCheck{Name: "discord", Status: doctorWarn, Message: "enabled but token is empty"})
			} else {
				add(doctorCheck{Name: "discord", Status: doctorOK, Message: "enabled"})
				if len(cfg.Channels.Discord.AllowFrom) == 0 {
					add(doctorCheck{Name: "discord.allow_from", Status: doctorWarn, Message: fmt.Sprintf("empty (any Discord user can talk to your bot); run: %s channels setup discord", invokedCLIName())})
				} else {
					add(doctorCheck{Name: "discord.allow_from", Status: doctorOK, Message: fmt.Sprintf("%d entries", len(cfg.Channels.Discord.AllowFrom))})
				}
			}
		} else {
			add(doctorCheck{Name: "discord", Status: doctorSkip, Message: "disabled"})
		}

		if cfg.Agents.Defaults.RestrictToWorkspace {
			add(doctorCheck{Name: "agent.restrict_to_workspace", Status: doctorOK, Message: "true"})
		} else {
			add(doctorCheck{Name: "agent.restrict_to_workspace", Status: doctorWarn, Message: "false (droid can touch files outside the workspace)"})
		}

		// Routing rules
		if cfg.Routing.Enabled {
			if err := config.ValidateRoutingConfig(cfg.Routing); err != nil {
				add(doctorCheck{Name: "routing", Status: doctorErr, Message: err.Error()})
			} else {
				add(doctorCheck{Name: "routing", Status: doctorOK, Message: fmt.Sprintf("%d mappings", len(cfg.Routing.Mappings))})
			}
		} else {
			add(doctorCheck{Name: "routing", Status: doctorSkip, Message: "disabled"})
		}

		// Job store
		if cfg.Jobs.Enabled {
			storePath := jobStorePath(cfg)
			c := doctorCheck{Name: "jobs", Status: doctorOK}
			queued, running, done, failed := queue.NewService(storePath, nil).Counts()
			c.Message = fmt.Sprintf("%d queued, %d running, %d done, %d failed", queued, running, done, failed)
			if opts.Verbose {
				c.Data = map[string]string{"store": storePath}
			}
			add(c)
		} else {
			add(doctorCheck{Name: "jobs", Status: doctorSkip, Message: "disabled"})
		}
	} else if !configExists {
		// Best-effort workspace check with default path.
		home, _ := os.UserHomeDir()
		if home != "" {
			defaultWorkspace := filepath.Join(home, "droidgram")
			if fileExists(defaultWorkspace) {
				add(doctorCheck{Name: "workspace", Status: doctorOK, Message: defaultWorkspace})
			} else {
				add(doctorCheck{
					Name:    "workspace",
					Status:  doctorWarn,
					Message: fmt.Sprintf("missing: %s (run: %s onboard --yes)", defaultWorkspace, invokedCLIName()),
				})
			}
		}
	}

	// Deploy auth store
	store, err := auth.LoadStore()
	if err != nil {
		add(doctorCheck{Name: "auth.store", Status: doctorWarn, Message: err.Error()})
	} else if store == nil || len(store.Credentials) == 0 {
		add(doctorCheck{Name: "auth.store", Status: doctorSkip, Message: fmt.Sprintf("no credentials stored (optional; run: %s auth login --provider vercel)", invokedCLIName())})
	} else {
		for _, provider := range []string{auth.ProviderGitHub, auth.ProviderVercel} {
			cred, ok := store.Credentials[provider]
			if !ok {
				add(doctorCheck{Name: "auth." + provider, Status: doctorSkip, Message: "not configured"})
				continue
			}
			st := doctorOK
			msg := "authenticated"
			if cred.IsExpired() {
				st, msg = doctorErr, "expired"
			} else if cred.NeedsRefresh() {
				st, msg = doctorWarn, "needs refresh"
			}
			add(doctorCheck{Name: "auth." + provider, Status: st, Message: fmt.Sprintf("%s (%s)", msg, cred.AuthMethod)})
		}
	}

	// The droid CLI is the one binary nothing works without.
	add(checkDroidBinary(cfg))

	// Deploy tooling (all optional).
	add(checkBinaryWithHint("vercel", []string{"--version"}, 3*time.Second, "npm install -g vercel"))
	add(checkBinaryWithHint("git", []string{"--version"}, 3*time.Second, "install git (Xcode CLT, apt, or Homebrew)"))
	add(checkBinaryWithHint("node", []string{"--version"}, 3*time.Second, "install node (e.g. Homebrew or nodejs.org)"))

	// Gateway log quick scan: common Telegram 409 conflict from multiple instances.
	add(checkGatewayLog(telegramEnabled))
	for _, c := range checkServiceStatus() {
		add(c)
	}
	add(checkServicePath(opts))

	// Stable output order.
	sort.SliceStable(rep.Checks, func(i, j int) bool { return rep.Checks[i].Name < rep.Checks[j].Name })
	return rep
}

func printDoctorReport(rep doctorReport) {
	fmt.Printf("%s %s Doctor (%s)\n\n", logo, displayName, rep.CLI)
	fmt.Printf("Version: %s\n", rep.Version)
	fmt.Printf("OS/Arch: %s/%s\n", rep.OS, rep.Arch)
	fmt.Printf("Time: %s\n\n", rep.Timestamp)

	// Group by severity.
	for _, st := range []doctorCheckStatus{doctorErr, doctorWarn, doctorOK, doctorSkip} {
		title := map[doctorCheckStatus]string{doctorErr: "Errors", doctorWarn: "Warnings", doctorOK: "OK", doctorSkip: "Skipped"}[st]
		any := false
		for _, c := range rep.Checks {
			if c.Status != st {
				continue
			}
			if !any {
				fmt.Println(title + ":")
				any = true
			}
			mark := map[doctorCheckStatus]string{doctorErr: "✗", doctorWarn: "!", doctorOK: "✓", doctorSkip: "-"}[st]
			if c.Message != "" {
				fmt.Printf("  %s %s: %s\n", mark, c.Name, c.Message)
			} else {
				fmt.Printf("  %s %s\n", mark, c.Name)
			}
			if len(c.Data) > 0 {
				keys := make([]string, 0, len(c.Data))
				for k := range c.Data {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				for _, k := range keys {
					fmt.Printf("    %s=%s\n", k, c.Data[k])
				}
			}
		}
		if any {
			fmt.Println()
		}
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func checkWorkspaceTemplates(workspace string, opts doctorOptions) doctorCheck {
	required := []string{"AGENTS.md", "DROID.md", "AUTONOMY.md", "USER.md", filepath.Join("memory", "MEMORY.md")}
	missing := func() []string {
		out := []string{}
		for _, name := range required {
			if !fileExists(filepath.Join(workspace, name)) {
				out = append(out, name)
			}
		}
		return out
	}

	gone := missing()
	if len(gone) == 0 {
		return doctorCheck{Name: "workspace.templates", Status: doctorOK, Message: "all present"}
	}

	if opts.Fix {
		createWorkspaceTemplates(workspace)
		gone = missing()
		if len(gone) == 0 {
			return doctorCheck{Name: "workspace.templates", Status: doctorOK, Message: "recreated missing files"}
		}
	}

	return doctorCheck{
		Name:    "workspace.templates",
		Status:  doctorWarn,
		Message: fmt.Sprintf("missing: %s (run: %s doctor --fix)", strings.Join(gone, ", "), invokedCLIName()),
	}
}

func checkDroidBinary(cfg *config.Config) doctorCheck {
	configured := ""
	if cfg != nil {
		configured = cfg.Droid.Binary
	}
	bin, err := droid.ResolveBinary(configured)
	if err != nil {
		return doctorCheck{
			Name:    "droid",
			Status:  doctorErr,
			Message: "droid CLI not found",
			Data:    map[string]string{"install_hint": droidInstallHint},
		}
	}
	return runBinaryCheck("droid", bin, []string{"--version"}, 3*time.Second)
}

func checkBinaryWithHint(name string, args []string, timeout time.Duration, installHint string) doctorCheck {
	c := checkBinary(name, args, timeout)
	if c.Status == doctorErr && installHint != "" {
		if c.Data == nil {
			c.Data = map[string]string{}
		}
		// Only mention brew if it is present; otherwise keep the message generic.
		if findBrew() != "" || strings.HasPrefix(installHint, "install ") || strings.HasPrefix(installHint, "npm ") {
			c.Data["install_hint"] = installHint
		}
	}
	return c
}

func checkBinary(name string, args []string, timeout time.Duration) doctorCheck {
	p, err := lookPathWithFallback(name)
	if err != nil {
		return doctorCheck{Name: name, Status: doctorErr, Message: "not found in PATH"}
	}
	return runBinaryCheck(name, p, args, timeout)
}

func runBinaryCheck(name, path string, args []string, timeout time.Duration) doctorCheck {
	c := doctorCheck{Name: name, Status: doctorOK, Message: path}
	if len(args) == 0 {
		return c
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, path, args...)
	// Avoid blocking on tools that write lots of help output.
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			c.Status = doctorWarn
			c.Message = fmt.Sprintf("%s (timeout)", path)
			return c
		}
		c.Status = doctorWarn
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = strings.TrimSpace(stdout.String())
		}
		if msg == "" {
			msg = err.Error()
		}
		c.Data = map[string]string{"run_error": truncateOneLine(msg, 220)}
		return c
	}

	out := firstNonEmptyLine(stdout.String())
	if out == "" {
		out = firstNonEmptyLine(stderr.String())
	}
	if out != "" {
		if c.Data == nil {
			c.Data = map[string]string{}
		}
		c.Data["output"] = truncateOneLine(out, 180)
	}
	return c
}

// lookPathWithFallback resolves a binary via PATH first, then the usual
// install dirs. PATH is often trimmed when the doctor runs under the
// service manager.
func lookPathWithFallback(name string) (string, error) {
	p, err := exec.LookPath(name)
	if err == nil {
		return p, nil
	}
	fallbackDirs := []string{
		"/opt/homebrew/bin",
		"/usr/local/bin",
		"/home/linuxbrew/.linuxbrew/bin",
		"/usr/bin",
		"/bin",
	}
	for _, dir := range fallbackDirs {
		candidate := filepath.Join(dir, name)
		if info, statErr := os.Stat(candidate); statErr == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	return "", err
}

func firstNonEmptyLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			return line
		}
	}
	return ""
}

func truncateOneLine(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

func checkGatewayLog(telegramEnabled bool) doctorCheck {
	if !telegramEnabled {
		return doctorCheck{Name: "gateway.log", Status: doctorSkip, Message: "telegram disabled"}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return doctorCheck{Name: "gateway.log", Status: doctorSkip, Message: "home directory unavailable"}
	}
	p := filepath.Join(home, ".droidgram", "gateway.log")
	if !fileExists(p) {
		return doctorCheck{Name: "gateway.log", Status: doctorSkip, Message: "not found"}
	}

	tail, err := readTail(p, 128*1024)
	if err != nil {
		return doctorCheck{Name: "gateway.log", Status: doctorWarn, Message: p, Data: map[string]string{"read_error": err.Error()}}
	}

	conflictNeedle := "409 \"Conflict: terminated by other getUpdates request"
	connectNeedle := "[telegram] Telegram bot connected"
	conflictAt := strings.LastIndex(tail, conflictNeedle)
	connectedAt := strings.LastIndex(tail, connectNeedle)
	// Only treat 409 as a current error if it appears after the last successful connect in the log tail.
	if conflictAt >= 0 && (connectedAt < 0 || connectedAt < conflictAt) {
		return doctorCheck{Name: "gateway.telegram", Status: doctorErr, Message: "Telegram getUpdates 409 conflict (multiple bot instances running?)", Data: map[string]string{"log": p}}
	}
	return doctorCheck{Name: "gateway.log", Status: doctorOK, Message: p}
}

func checkServiceStatus() []doctorCheck {
	checks := make([]doctorCheck, 0, 4)
	add := func(c doctorCheck) { checks = append(checks, c) }

	exePath, err := os.Executable()
	if err != nil {
		add(doctorCheck{Name: "service.backend", Status: doctorWarn, Message: "unable to resolve executable path", Data: map[string]string{"error": err.Error()}})
		return checks
	}

	mgr, err := svcmgr.NewManager(exePath)
	if err != nil {
		add(doctorCheck{Name: "service.backend", Status: doctorWarn, Message: "unable to initialize service manager", Data: map[string]string{"error": err.Error()}})
		return checks
	}

	st, err := mgr.Status()
	if err != nil {
		add(doctorCheck{Name: "service.backend", Status: doctorWarn, Message: "service status check failed", Data: map[string]string{"error": err.Error()}})
		return checks
	}

	backendStatus := doctorOK
	if st.Backend == svcmgr.BackendUnsupported {
		backendStatus = doctorSkip
	}
	add(doctorCheck{Name: "service.backend", Status: backendStatus, Message: st.Backend})

	if st.Backend == svcmgr.BackendUnsupported {
		msg := st.Detail
		if strings.TrimSpace(msg) == "" {
			msg = "service backend unavailable on this platform"
		}
		add(doctorCheck{Name: "service.installed", Status: doctorSkip, Message: msg})
		add(doctorCheck{Name: "service.running", Status: doctorSkip, Message: msg})
		add(doctorCheck{Name: "service.enabled", Status: doctorSkip, Message: msg})
		return checks
	}

	if st.Installed {
		add(doctorCheck{Name: "service.installed", Status: doctorOK, Message: "installed"})
	} else {
		add(doctorCheck{Name: "service.installed", Status: doctorWarn, Message: fmt.Sprintf("not installed (run: %s service install)", invokedCLIName())})
	}

	if !st.Installed {
		add(doctorCheck{Name: "service.running", Status: doctorSkip, Message: "service is not installed"})
	} else if st.Running {
		add(doctorCheck{Name: "service.running", Status: doctorOK, Message: "running"})
	} else {
		add(doctorCheck{Name: "service.running", Status: doctorWarn, Message: fmt.Sprintf("not running (run: %s service start)", invokedCLIName())})
	}

	if !st.Installed {
		add(doctorCheck{Name: "service.enabled", Status: doctorSkip, Message: "service is not installed"})
	} else if st.Enabled {
		add(doctorCheck{Name: "service.enabled", Status: doctorOK, Message: "enabled"})
	} else {
		add(doctorCheck{Name: "service.enabled", Status: doctorWarn, Message: fmt.Sprintf("not enabled (run: %s service install)", invokedCLIName())})
	}

	if strings.TrimSpace(st.Detail) != "" {
		add(doctorCheck{Name: "service.detail", Status: doctorSkip, Message: st.Detail})
	}
	return checks
}

// checkServicePath verifies the installed unit still points at the current
// binary. Homebrew upgrades move the Cellar path out from under the unit.
// The unit locations mirror what the service manager installs.
func checkServicePath(opts doctorOptions) doctorCheck {
	home, err := os.UserHomeDir()
	if err != nil {
		return doctorCheck{Name: "service.path", Status: doctorSkip, Message: "home directory unavailable"}
	}

	var unitPath, configured string
	switch runtime.GOOS {
	case "linux":
		unitPath = filepath.Join(home, ".config", "systemd", "user", "droidgram-gateway.service")
		b, err := os.ReadFile(unitPath)
		if err != nil {
			return doctorCheck{Name: "service.path", Status: doctorSkip, Message: "unit not installed"}
		}
		configured = parseSystemdExecStartPath(string(b))
	case "darwin":
		unitPath = filepath.Join(home, "Library", "LaunchAgents", "io.droidgram.gateway.plist")
		b, err := os.ReadFile(unitPath)
		if err != nil {
			return doctorCheck{Name: "service.path", Status: doctorSkip, Message: "unit not installed"}
		}
		configured = parseLaunchdProgramArg0(string(b))
	default:
		return doctorCheck{Name: "service.path", Status: doctorSkip, Message: "no unit on this platform"}
	}

	expected, _ := serviceExecutablePath()
	if servicePathNeedsRefresh(configured, expected) {
		return doctorCheck{
			Name:    "service.path",
			Status:  doctorWarn,
			Message: fmt.Sprintf("unit points at %s (run: %s service refresh)", configured, invokedCLIName()),
			Data:    map[string]string{"expected": expected, "unit": unitPath},
		}
	}

	c := doctorCheck{Name: "service.path", Status: doctorOK, Message: "unit matches current binary"}
	if opts.Verbose {
		c.Data = map[string]string{"configured": configured, "unit": unitPath}
	}
	return c
}

// parseSystemdExecStartPath pulls the binary path out of a unit file's
// ExecStart= line.
func parseSystemdExecStartPath(unit string) string {
	for _, line := range strings.Split(unit, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "ExecStart=") {
			continue
		}
		fields := strings.Fields(strings.TrimPrefix(line, "ExecStart="))
		if len(fields) > 0 {
			return fields[0]
		}
	}
	return ""
}

// parseLaunchdProgramArg0 pulls the first ProgramArguments entry out of a
// launchd plist.
func parseLaunchdProgramArg0(plist string) string {
	idx := strings.Index(plist, "ProgramArguments")
	if idx < 0 {
		return ""
	}
	rest := plist[idx:]
	start := strings.Index(rest, "<string>")
	if start < 0 {
		return ""
	}
	rest = rest[start+len("<string>"):]
	end := strings.Index(rest, "</string>")
	if end < 0 {
		return ""
	}
	return strings.TrimSpace(rest[:end])
}

func servicePathNeedsRefresh(configured, expected string) bool {
	configured = strings.TrimSpace(configured)
	expected = strings.TrimSpace(expected)
	if configured == "" || expected == "" {
		return false
	}
	return configured != expected
}

func readTail(path string, maxBytes int64) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return "", err
	}
	size := st.Size()
	if size <= maxBytes {
		b, err := io.ReadAll(f)
		return string(b), err
	}
	// Seek to last maxBytes.
	if _, err := f.Seek(size-maxBytes, io.SeekStart); err != nil {
		return "", err
	}
	b, err := io.ReadAll(f)
	return string(b), err
}

func findBrew() string {
	// PATH first
	if p, err := exec.LookPath("brew"); err == nil {
		return p
	}
	// Common locations
	for _, p := range []string{"/opt/homebrew/bin/brew", "/usr/local/bin/brew", "/home/linuxbrew/.linuxbrew/bin/brew"} {
		if fileExists(p) {
			return p
		}
	}
	return ""
}
