// droidgram - Chat gateway for the droid coding agent
// Inspired by and based on nanobot: https://github.com/HKUDS/nanobot
// License: MIT
//
// Copyright (c) 2026 droidgram contributors

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/droidgram/droidgram/pkg/agent"
	"github.com/droidgram/droidgram/pkg/auth"
	"github.com/droidgram/droidgram/pkg/bus"
	"github.com/droidgram/droidgram/pkg/channels"
	"github.com/droidgram/droidgram/pkg/config"
	"github.com/droidgram/droidgram/pkg/constants"
	"github.com/droidgram/droidgram/pkg/droid"
	"github.com/droidgram/droidgram/pkg/logger"
	"github.com/droidgram/droidgram/pkg/models"
	"github.com/droidgram/droidgram/pkg/queue"
	"github.com/droidgram/droidgram/pkg/routing"
	"github.com/droidgram/droidgram/pkg/workspacetpl"
)

var (
	version   = "dev"
	buildTime string
	goVersion string
)

const logo = "🤖"
const displayName = "droidgram"
const cliName = "droidgram"

const docsURLBase = "https://droidgram.github.io/droidgram/docs.html"

const droidInstallHint = "curl -fsSL https://app.factory.ai/cli | sh"

func invokedCLIName() string {
	if len(os.Args) == 0 {
		return cliName
	}
	base := strings.ToLower(filepath.Base(os.Args[0]))
	base = strings.TrimSuffix(base, ".exe")
	if !strings.HasPrefix(base, cliName) {
		return cliName
	}
	return base
}

func printVersion() {
	fmt.Printf("%s %s v%s\n", logo, displayName, version)
	if buildTime != "" {
		fmt.Printf("  Build: %s\n", buildTime)
	}
	goVer := goVersion
	if goVer == "" {
		goVer = runtime.Version()
	}
	if goVer != "" {
		fmt.Printf("  Go: %s\n", goVer)
	}
}

func main() {
	if len(os.Args) < 2 {
		printHelp()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "onboard":
		onboard()
	case "agent":
		agentCmd()
	case "gateway":
		gatewayCmd()
	case "service":
		serviceCmd()
	case "channels":
		channelsCmd()
	case "routing":
		routingCmd()
	case "jobs":
		jobsCmd()
	case "autonomy":
		autonomyCmd()
	case "models":
		modelsCmd()
	case "auth":
		authCmd()
	case "deploy":
		deployCmd()
	case "backup":
		backupCmd()
	case "status":
		statusCmd()
	case "doctor":
		doctorCmd()
	case "dash":
		dashCmd()
	case "version", "--version", "-v":
		printVersion()
	case "help", "--help", "-h":
		printHelp()
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printHelp()
		os.Exit(1)
	}
}

func printHelp() {
	commandName := invokedCLIName()
	fmt.Printf("%s %s - Chat gateway for the droid coding agent v%s\n\n", logo, displayName, version)
	fmt.Printf("Usage: %s <command>\n", commandName)
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  onboard     Initialize droidgram configuration and workspace")
	fmt.Println("  agent       Chat with the agent directly")
	fmt.Println("  gateway     Start the droidgram gateway")
	fmt.Println("  service     Manage background gateway service (launchd/systemd)")
	fmt.Println("  channels    Setup and manage chat channels (Telegram, Discord)")
	fmt.Println("  routing     Map chats to per-project workspaces")
	fmt.Println("  jobs        Manage background jobs and schedules")
	fmt.Println("  autonomy    Show or set the autonomy level")
	fmt.Println("  models      Manage models (list, set, effort, status)")
	fmt.Println("  auth        Manage deploy credentials (login, logout, status)")
	fmt.Println("  deploy      Deploy a project directory with self-healing retries")
	fmt.Println("  backup      Backup key droidgram config/workspace files")
	fmt.Println("  status      Show droidgram status")
	fmt.Println("  doctor      Check deployment health and dependencies")
	fmt.Println("  dash        Live terminal dashboard")
	fmt.Println("  version     Show version information")
	fmt.Println()
	fmt.Println("Agent flags:")
	fmt.Println("  --model <model>   Override model for this invocation")
	fmt.Println("  --effort <level>  Set droid reasoning effort (low/medium/high)")
	fmt.Println("  -m <message>      Send a single message (non-interactive)")
	fmt.Println("  -s <session>      Use a specific session key")
}

func onboard() {
	args := os.Args[2:]
	yes, force, showHelp, err := parseOnboardOptions(args)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		onboardHelp()
		os.Exit(2)
	}
	if showHelp {
		onboardHelp()
		return
	}

	configPath := getConfigPath()
	if err := os.MkdirAll(filepath.Dir(configPath), 0700); err != nil {
		fmt.Printf("Error creating config dir: %v\n", err)
		os.Exit(1)
	}

	exists := false
	if _, err := os.Stat(configPath); err == nil {
		exists = true
	}

	var cfg *config.Config
	switch {
	case exists && !force:
		// Idempotent default: never overwrite existing config (which may contain tokens).
		cfg, err = config.LoadConfig(configPath)
		if err != nil {
			fmt.Printf("Error loading existing config at %s: %v\n", configPath, err)
			fmt.Printf("Fix the JSON (or move it aside) then re-run: %s onboard\n", invokedCLIName())
			os.Exit(1)
		}
		fmt.Printf("Config already exists at %s (preserving credentials)\n", configPath)
		fmt.Printf("Reset to defaults (DANGEROUS): %s onboard --force\n", invokedCLIName())
	case exists && force:
		backupPath, berr := backupFile(configPath)
		if berr != nil {
			fmt.Printf("Error backing up existing config: %v\n", berr)
			os.Exit(1)
		}
		cfg = config.DefaultConfig()
		if err := config.SaveConfig(configPath, cfg); err != nil {
			fmt.Printf("Error saving config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Reset config to defaults at %s\n", configPath)
		if backupPath != "" {
			fmt.Printf("Backup written to %s\n", backupPath)
		}
	default:
		cfg = config.DefaultConfig()
		if err := config.SaveConfig(configPath, cfg); err != nil {
			fmt.Printf("Error saving config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Created config at %s\n", configPath)
	}

	workspace := cfg.WorkspacePath()
	os.MkdirAll(workspace, 0755)

	createWorkspaceTemplates(workspace)

	if !yes {
		runOnboardWizard(cfg, configPath)
		// Reload to reflect any wizard edits.
		if cfg2, err := config.LoadConfig(configPath); err == nil && cfg2 != nil {
			cfg = cfg2
		}
	}

	fmt.Printf("%s %s is ready!\n", logo, displayName)
	fmt.Println("\nDocs:")
	fmt.Println(" ", docsLink("#setup"))
	fmt.Println(" ", docsLink("#telegram"))
	fmt.Println(" ", docsLink("#discord"))
	fmt.Println(" ", docsLink("#deploy"))
	fmt.Println(" ", docsLink("#doctor"))

	fmt.Println("\nNext steps:")
	step := 1
	if binaryPath, err := droid.ResolveBinary(cfg.Droid.Binary); err == nil {
		fmt.Printf("  %d. droid CLI already installed: %s\n", step, binaryPath)
	} else {
		fmt.Printf("  %d. Install the droid CLI: %s\n", step, droidInstallHint)
		fmt.Println("     Then sign in by running: droid")
	}
	step++

	channelsReady := configuredChatChannels(cfg)
	if len(channelsReady) == 0 {
		fmt.Printf("  %d. Pair a chat app: %s channels setup telegram\n", step, invokedCLIName())
	} else {
		fmt.Printf("  %d. Chat app already configured: %s\n", step, strings.Join(channelsReady, ", "))
		if hasAnyWeakAllowlist(cfg) {
			fmt.Println("     Warning: one or more channels have an empty allow_from list.")
		}
	}
	step++
	fmt.Printf("  %d. Start gateway: %s gateway\n", step, invokedCLIName())
	fmt.Println("\nOptional:")
	fmt.Printf("  Deploy auth for preview links: %s auth login --provider vercel\n", invokedCLIName())
	fmt.Printf("  Keep it running in the background: %s service install\n", invokedCLIName())
}

func runOnboardWizard(cfg *config.Config, configPath string) {
	r := bufio.NewReader(os.Stdin)

	fmt.Println()
	fmt.Println("Setup wizard:")

	// 1. droid CLI (nothing works without it)
	droidOK := false
	if binaryPath, err := droid.ResolveBinary(cfg.Droid.Binary); err == nil {
		fmt.Printf("  droid CLI found: %s\n", binaryPath)
		droidOK = true
	} else {
		fmt.Println("  droid CLI not found on this machine.")
		fmt.Printf("  Install it with: %s\n", droidInstallHint)
		fmt.Printf("  Help: %s\n", docsLink("#droid-cli"))
	}

	// 2. Smoke test (only useful once droid is installed and signed in)
	if droidOK {
		if promptYesNo(r, "Run a smoke test now (sends one short prompt to droid)?", false) {
			msg := "Smoke test: reply with ONE short sentence (max 12 words) confirming you're ready."
			if err := runSelfAgentOneShot(msg); err != nil {
				fmt.Printf("  Smoke test failed: %v\n", err)
				fmt.Println("  If droid is not signed in yet, run: droid")
			}
		}
	}

	// 3. Default model and autonomy
	changed := false
	if promptYesNo(r, fmt.Sprintf("Change the default model (current: %s)?", cfg.Agents.Defaults.Model), false) {
		m := strings.TrimSpace(promptLine(r, "Model id (blank to keep):"))
		if m != "" {
			if !models.IsKnown(m) {
				fmt.Printf("  Note: %q is not in the known catalog; droid will decide whether it exists.\n", m)
			}
			cfg.Agents.Defaults.Model = m
			changed = true
		}
	}

	level := strings.TrimSpace(promptLine(r, fmt.Sprintf("Autonomy level (%s) [%s]:", strings.Join(config.AutonomyLevels(), "/"), cfg.Autonomy.Level)))
	if level != "" && level != cfg.Autonomy.Level {
		if err := cfg.Autonomy.ApplyAutonomyLevel(level); err != nil {
			fmt.Printf("  Skipped: %v\n", err)
		} else {
			changed = true
		}
	}

	if changed {
		if err := config.SaveConfig(configPath, cfg); err != nil {
			fmt.Printf("  Warning: could not save config: %v\n", err)
		} else {
			fmt.Println("  Saved defaults to config.")
		}
	}

	// 4. Chat channels (messaging apps)
	fmt.Printf("  Help (messaging apps): %s\n", docsLink("#telegram"))
	if promptYesNo(r, "Set up messaging apps (Telegram/Discord) now?", false) {
		runChannelsWizard(r, cfg, configPath)
	}
}

func promptYesNo(r *bufio.Reader, question string, defaultYes bool) bool {
	def := "y/N"
	if defaultYes {
		def = "Y/n"
	}
	for {
		fmt.Printf("  %s [%s]: ", question, def)
		line, _ := r.ReadString('\n')
		s := strings.TrimSpace(strings.ToLower(line))
		if s == "" {
			return defaultYes
		}
		if s == "y" || s == "yes" {
			return true
		}
		if s == "n" || s == "no" {
			return false
		}
		fmt.Println("  Please answer y or n.")
	}
}

func promptLine(r *bufio.Reader, question string) string {
	fmt.Printf("  %s ", question)
	line, _ := r.ReadString('\n')
	return strings.TrimRight(line, "\r\n")
}

func runSelfAgentOneShot(message string) error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}
	cmd := exec.Command(exe, "agent", "-m", message)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin
	return cmd.Run()
}

func onboardHelp() {
	commandName := invokedCLIName()
	fmt.Println("\nOnboard:")
	fmt.Printf("  %s onboard initializes your droidgram config and workspace.\n", commandName)
	fmt.Printf("  It is idempotent by default: it preserves existing config/auth and only creates missing workspace files.\n")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --yes        Non-interactive; never prompts (safe defaults)")
	fmt.Println("  --force      Reset config.json to defaults (backs up existing file first)")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Printf("  %s onboard\n", commandName)
	fmt.Printf("  %s onboard --yes\n", commandName)
	fmt.Printf("  %s onboard --yes --force\n", commandName)
}

func parseOnboardOptions(args []string) (yes bool, force bool, showHelp bool, err error) {
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--yes", "-y":
			yes = true
		case "--force", "-f":
			force = true
		case "help", "--help", "-h":
			showHelp = true
		default:
			return false, false, false, fmt.Errorf("unknown option: %s", args[i])
		}
	}
	return yes, force, showHelp, nil
}

func configuredChatChannels(cfg *config.Config) []string {
	out := make([]string, 0, 2)
	if cfg.Channels.Telegram.Enabled && strings.TrimSpace(cfg.Channels.Telegram.Token) != "" {
		out = append(out, "telegram")
	}
	if cfg.Channels.Discord.Enabled && strings.TrimSpace(cfg.Channels.Discord.Token) != "" {
		out = append(out, "discord")
	}
	return out
}

func hasAnyWeakAllowlist(cfg *config.Config) bool {
	if cfg.Channels.Telegram.Enabled && strings.TrimSpace(cfg.Channels.Telegram.Token) != "" && len(cfg.Channels.Telegram.AllowFrom) == 0 {
		return true
	}
	if cfg.Channels.Discord.Enabled && strings.TrimSpace(cfg.Channels.Discord.Token) != "" && len(cfg.Channels.Discord.AllowFrom) == 0 {
		return true
	}
	return false
}

func docsLink(anchor string) string {
	if strings.HasPrefix(anchor, "#") {
		return docsURLBase + anchor
	}
	if anchor == "" {
		return docsURLBase
	}
	return docsURLBase + "#" + anchor
}

func backupFile(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	perm := os.FileMode(0600)
	if st, err := os.Stat(path); err == nil {
		perm = st.Mode().Perm()
	}
	ts := time.Now().UTC().Format("20060102-150405Z")
	backupPath := fmt.Sprintf("%s.bak.%s", path, ts)
	if err := os.WriteFile(backupPath, b, perm); err != nil {
		return "", err
	}
	return backupPath, nil
}

func createWorkspaceTemplates(workspace string) {
	dirs := []string{"jobs", "sessions", "state", "hooks", "memory"}
	for _, dir := range dirs {
		if err := os.MkdirAll(filepath.Join(workspace, dir), 0755); err != nil {
			fmt.Printf("  Failed to create %s/: %v\n", dir, err)
		}
	}

	templates, err := workspacetpl.Load()
	if err != nil {
		fmt.Printf("  Failed to load workspace templates: %v\n", err)
		return
	}

	for _, tpl := range templates {
		writeFileIfMissing(
			filepath.Join(workspace, tpl.RelativePath),
			tpl.Content,
			fmt.Sprintf("  Created %s\n", tpl.RelativePath),
		)
	}
}

func writeFileIfMissing(path, content, successMsg string) {
	if _, err := os.Stat(path); err == nil {
		return
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		fmt.Printf("  Failed to create %s: %v\n", filepath.Base(path), err)
		return
	}
	fmt.Print(successMsg)
}

func agentCmd() {
	message := ""
	sessionKey := "cli:default"
	modelOverride := ""
	effortOverride := ""

	args := os.Args[2:]
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--debug", "-d":
			logger.SetLevel(logger.DEBUG)
			fmt.Println("🔍 Debug mode enabled")
		case "-m", "--message":
			if i+1 < len(args) {
				message = args[i+1]
				i++
			}
		case "-s", "--session":
			if i+1 < len(args) {
				sessionKey = args[i+1]
				i++
			}
		case "--model":
			if i+1 < len(args) {
				modelOverride = args[i+1]
				i++
			}
		case "--effort":
			if i+1 < len(args) {
				effortOverride = args[i+1]
				i++
			}
		}
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Apply CLI overrides before the droid runner is created
	if modelOverride != "" {
		cfg.Agents.Defaults.Model = modelOverride
	}
	if effortOverride != "" {
		if !models.IsValidEffort(effortOverride) {
			fmt.Printf("Invalid reasoning effort: %s (valid: %s)\n", effortOverride, strings.Join(models.ValidEfforts, ", "))
			os.Exit(1)
		}
		cfg.Agents.Defaults.ReasoningEffort = effortOverride
	}

	msgBus := bus.NewMessageBus()
	agentLoop, err := agent.NewAgentLoop(cfg, msgBus)
	if err != nil {
		fmt.Printf("Error initializing agent: %v\n", err)
		os.Exit(1)
	}

	startupInfo := agentLoop.GetStartupInfo()
	logger.InfoCF("agent", "Agent initialized",
		map[string]interface{}{
			"workspace": startupInfo["workspace"],
			"model":     startupInfo["model"],
			"autonomy":  startupInfo["autonomy"],
		})

	if message != "" {
		ctx := context.Background()
		response, err := agentLoop.ProcessDirect(ctx, message, sessionKey)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("\n%s %s\n", logo, response)
	} else {
		fmt.Printf("%s Interactive mode (Ctrl+C to exit)\n\n", logo)
		interactiveMode(agentLoop, sessionKey)
	}
}

func interactiveMode(agentLoop *agent.AgentLoop, sessionKey string) {
	prompt := fmt.Sprintf("%s You: ", logo)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		HistoryFile:     filepath.Join(os.TempDir(), ".droidgram_history"),
		HistoryLimit:    100,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})

	if err != nil {
		fmt.Printf("Error initializing readline: %v\n", err)
		fmt.Println("Falling back to simple input mode...")
		simpleInteractiveMode(agentLoop, sessionKey)
		return
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				fmt.Println("\nGoodbye!")
				return
			}
			fmt.Printf("Error reading input: %v\n", err)
			continue
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		if input == "exit" || input == "quit" {
			fmt.Println("Goodbye!")
			return
		}

		ctx := context.Background()
		response, err := agentLoop.ProcessDirect(ctx, input, sessionKey)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			continue
		}

		fmt.Printf("\n%s %s\n\n", logo, response)
	}
}

func simpleInteractiveMode(agentLoop *agent.AgentLoop, sessionKey string) {
	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Printf("%s You: ", logo)
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				fmt.Println("\nGoodbye!")
				return
			}
			fmt.Printf("Error reading input: %v\n", err)
			continue
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		if input == "exit" || input == "quit" {
			fmt.Println("Goodbye!")
			return
		}

		ctx := context.Background()
		response, err := agentLoop.ProcessDirect(ctx, input, sessionKey)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			continue
		}

		fmt.Printf("\n%s %s\n\n", logo, response)
	}
}

const heartbeatScheduleName = "heartbeat"

const heartbeatPrompt = "This is a scheduled heartbeat. Review your memory and any unfinished work " +
	"in the workspace. If something needs attention, handle it and report back. " +
	"Otherwise reply with exactly HEARTBEAT_OK."

func gatewayCmd() {
	// Check for --debug flag
	args := os.Args[2:]
	for _, arg := range args {
		if arg == "--debug" || arg == "-d" {
			logger.SetLevel(logger.DEBUG)
			fmt.Println("🔍 Debug mode enabled")
			break
		}
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	releaseLock, err := acquireGatewayLock()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	defer releaseLock()

	msgBus := bus.NewMessageBus()
	agentLoop, err := agent.NewAgentLoop(cfg, msgBus)
	if err != nil {
		fmt.Printf("Error initializing agent: %v\n", err)
		os.Exit(1)
	}

	// Print agent startup info
	fmt.Println("\n📦 Agent Status:")
	startupInfo := agentLoop.GetStartupInfo()
	fmt.Printf("  • Workspace: %v\n", startupInfo["workspace"])
	fmt.Printf("  • Model: %v\n", startupInfo["model"])
	fmt.Printf("  • Autonomy: %v\n", startupInfo["autonomy"])
	if droidInfo, ok := startupInfo["droid"].(map[string]interface{}); ok {
		fmt.Printf("  • Droid: %v (auto: %v)\n", droidInfo["binary"], droidInfo["auto_level"])
	}
	if hooksInfo, ok := startupInfo["hooks"].(map[string]interface{}); ok {
		if enabled, _ := hooksInfo["enabled"].(bool); enabled {
			fmt.Printf("  • Hooks: %v handlers\n", hooksInfo["handlers"])
		}
	}

	// Log to file as well
	logger.InfoCF("agent", "Agent initialized",
		map[string]interface{}{
			"workspace": startupInfo["workspace"],
			"model":     startupInfo["model"],
			"autonomy":  startupInfo["autonomy"],
		})

	// Job queue: background execution for big tasks, schedules, heartbeats.
	var jobService *queue.Service
	if cfg.Jobs.Enabled {
		jobService = queue.NewService(jobStorePath(cfg), nil)
		if cfg.Jobs.MaxAttempts > 0 {
			jobService.SetMaxAttempts(cfg.Jobs.MaxAttempts)
		}
		if cfg.Jobs.PollSeconds > 0 {
			jobService.SetPollInterval(time.Duration(cfg.Jobs.PollSeconds) * time.Second)
		}
		jobService.SetHandler(makeGatewayJobHandler(agentLoop, msgBus))
		agentLoop.SetJobQueue(jobService)

		if cfg.Heartbeat.Enabled {
			if err := ensureHeartbeatSchedule(jobService, cfg); err != nil {
				logger.WarnCF("gateway", "Heartbeat schedule setup failed",
					map[string]interface{}{"error": err.Error()})
			}
		}
	}

	// Routing: per-chat workspaces behind a dispatcher; without it the
	// default loop consumes the bus directly.
	var dispatcher *routing.Dispatcher
	var loopPool *routing.AgentLoopPool
	if cfg.Routing.Enabled {
		resolver, rerr := routing.NewResolver(cfg)
		if rerr != nil {
			fmt.Printf("Error in routing config: %v\n", rerr)
			os.Exit(1)
		}
		loopPool = routing.NewAgentLoopPool(cfg, msgBus)
		dispatcher = routing.NewDispatcher(msgBus, resolver, loopPool)
		fmt.Printf("✓ Routing enabled: %d mappings\n", len(cfg.Routing.Mappings))
	}

	channelManager, err := channels.NewManager(cfg, msgBus)
	if err != nil {
		fmt.Printf("Error creating channel manager: %v\n", err)
		os.Exit(1)
	}

	enabledChannels := channelManager.GetEnabledChannels()
	if len(enabledChannels) > 0 {
		fmt.Printf("✓ Channels enabled: %s\n", strings.Join(enabledChannels, ", "))
	} else {
		fmt.Println("⚠ Warning: No channels enabled")
	}

	fmt.Println("✓ Gateway started")
	fmt.Println("Press Ctrl+C to stop")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if jobService != nil {
		jobService.Start()
		fmt.Println("✓ Job queue started")
	}

	if err := channelManager.StartAll(ctx); err != nil {
		fmt.Printf("Error starting channels: %v\n", err)
	}

	if dispatcher != nil {
		go dispatcher.Run(ctx)
		go watchRoutingReload(ctx, dispatcher)
	} else {
		go agentLoop.Run(ctx)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	<-sigChan

	fmt.Println("\nShutting down...")
	cancel()
	if jobService != nil {
		jobService.Stop()
	}
	agentLoop.Stop()
	if loopPool != nil {
		loopPool.Close()
	}
	channelManager.StopAll(ctx)
	fmt.Println("✓ Gateway stopped")
}

// makeGatewayJobHandler runs queued jobs through the agent. The queue frees
// the chat path immediately; results are delivered here once the job ends.
func makeGatewayJobHandler(agentLoop *agent.AgentLoop, msgBus *bus.MessageBus) queue.Handler {
	return func(ctx context.Context, job *queue.Job) (string, error) {
		if job.Source == heartbeatScheduleName {
			return runHeartbeatJob(ctx, agentLoop, msgBus, job)
		}

		channel := job.Payload.Channel
		chatID := job.Payload.ChatID
		if channel == "" || chatID == "" {
			channel, chatID = constants.ChannelCLI, "direct"
		}
		sessionKey := job.Payload.SessionKey
		if sessionKey == "" {
			sessionKey = fmt.Sprintf("job:%s", job.ID)
		}

		response, err := agentLoop.ProcessDirectWithChannel(ctx, job.Payload.Prompt, sessionKey, channel, chatID, "queue")
		if err != nil {
			return "", err
		}

		if channel != constants.ChannelCLI {
			msgBus.PublishOutbound(ctx, bus.OutboundMessage{
				Channel: channel,
				ChatID:  chatID,
				Content: fmt.Sprintf("Job %s finished:\n\n%s", job.ID, response),
			})
		}
		return response, nil
	}
}

// runHeartbeatJob is the scheduled check-in. Each heartbeat is independent:
// no session history, and HEARTBEAT_OK replies are never delivered.
func runHeartbeatJob(ctx context.Context, agentLoop *agent.AgentLoop, msgBus *bus.MessageBus, job *queue.Job) (string, error) {
	channel := job.Payload.Channel
	chatID := job.Payload.ChatID
	if channel == "" || chatID == "" {
		channel, chatID = agentLoop.LastDelivery()
	}
	if channel == "" || chatID == "" {
		channel, chatID = constants.ChannelCLI, "direct"
	}

	prompt := job.Payload.Prompt
	if prompt == "" {
		prompt = heartbeatPrompt
	}

	response, err := agentLoop.ProcessHeartbeat(ctx, prompt, channel, chatID)
	if err != nil {
		return "", err
	}

	if strings.TrimSpace(response) == "HEARTBEAT_OK" {
		logger.DebugCF("heartbeat", "Heartbeat OK", map[string]interface{}{"channel": channel})
		return "HEARTBEAT_OK", nil
	}

	if channel != constants.ChannelCLI {
		msgBus.PublishOutbound(ctx, bus.OutboundMessage{
			Channel: channel,
			ChatID:  chatID,
			Content: response,
		})
	}
	return response, nil
}

// ensureHeartbeatSchedule registers (or refreshes) the recurring heartbeat
// in the job queue. The schedule survives restarts in the job store, so an
// unchanged interval is left alone.
func ensureHeartbeatSchedule(jobService *queue.Service, cfg *config.Config) error {
	interval := cfg.Heartbeat.IntervalMinutes
	if interval <= 0 {
		interval = 30
	}
	everySec := int64(interval) * 60

	for _, sj := range jobService.Scheduled(true) {
		if sj.Name != heartbeatScheduleName {
			continue
		}
		if sj.Schedule.Kind == queue.ScheduleEvery && sj.Schedule.EverySec == everySec && sj.Enabled {
			return nil
		}
		jobService.RemoveScheduled(sj.ID)
	}

	_, err := jobService.AddScheduled(heartbeatScheduleName,
		queue.Schedule{Kind: queue.ScheduleEvery, EverySec: everySec},
		queue.Payload{Prompt: heartbeatPrompt}, 0)
	return err
}

// watchRoutingReload polls the reload trigger file and swaps the dispatcher
// resolver when `routing reload` touches it. A broken config never replaces
// a working resolver.
func watchRoutingReload(ctx context.Context, dispatcher *routing.Dispatcher) {
	trigger := routingReloadTriggerPath()
	var lastMod time.Time
	if st, err := os.Stat(trigger); err == nil {
		lastMod = st.ModTime()
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st, err := os.Stat(trigger)
			if err != nil || !st.ModTime().After(lastMod) {
				continue
			}
			lastMod = st.ModTime()

			cfg, err := loadConfig()
			if err != nil {
				logger.WarnCF("routing", "Reload skipped: config error",
					map[string]interface{}{"error": err.Error()})
				continue
			}
			resolver, err := routing.NewResolver(cfg)
			if err != nil {
				logger.WarnCF("routing", "Reload skipped: invalid routing config",
					map[string]interface{}{"error": err.Error()})
				continue
			}
			dispatcher.ReplaceResolver(resolver)
			logger.InfoCF("routing", "Routing rules reloaded",
				map[string]interface{}{"mappings": len(cfg.Routing.Mappings)})
		}
	}
}

func modelsCmd() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	if len(os.Args) < 3 {
		models.PrintList(cfg)
		return
	}

	commandName := invokedCLIName()
	switch os.Args[2] {
	case "list":
		models.PrintList(cfg)
	case "set":
		if len(os.Args) < 4 {
			fmt.Printf("Usage: %s models set <model>\n", commandName)
			os.Exit(1)
		}
		configPath := getConfigPath()
		if err := models.SetModel(cfg, configPath, os.Args[3]); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
	case "effort":
		if len(os.Args) < 4 {
			fmt.Printf("Usage: %s models effort <level>\n", commandName)
			fmt.Printf("  Levels: %s\n", strings.Join(models.ValidEfforts, ", "))
			os.Exit(1)
		}
		configPath := getConfigPath()
		if err := models.SetEffort(cfg, configPath, os.Args[3]); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
	case "status":
		models.PrintStatus(cfg)
	default:
		fmt.Printf("Unknown models command: %s\n", os.Args[2])
		fmt.Printf("Usage: %s models [list|set|effort|status]\n", commandName)
	}
}

func autonomyCmd() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	if len(os.Args) < 3 || os.Args[2] == "show" {
		printAutonomyStatus(cfg)
		return
	}

	switch os.Args[2] {
	case "set":
		if len(os.Args) < 4 {
			fmt.Printf("Usage: %s autonomy set <level>\n", invokedCLIName())
			fmt.Printf("  Levels: %s\n", strings.Join(config.AutonomyLevels(), ", "))
			os.Exit(1)
		}
		setAutonomyLevel(cfg, os.Args[3])
	case "help", "--help", "-h":
		autonomyHelp()
	default:
		// Bare level works as shorthand for set.
		if config.IsValidAutonomyLevel(os.Args[2]) {
			setAutonomyLevel(cfg, os.Args[2])
			return
		}
		fmt.Printf("Unknown autonomy command: %s\n", os.Args[2])
		autonomyHelp()
		os.Exit(1)
	}
}

func printAutonomyStatus(cfg *config.Config) {
	fmt.Printf("Autonomy level: %s\n", cfg.Autonomy.Level)
	fmt.Println()
	fmt.Printf("  Git auto-commit: %v\n", cfg.Autonomy.Git.AutoCommit)
	fmt.Printf("  Git auto-push: %v\n", cfg.Autonomy.Git.AutoPush)
	fmt.Printf("  Git auto-PR: %v\n", cfg.Autonomy.Git.AutoPR)
	fmt.Printf("  Preview auto-deploy: %v\n", cfg.Autonomy.Preview.AutoDeploy)
	fmt.Printf("  Preview auto-promote: %v\n", cfg.Autonomy.Preview.AutoPromote)
	fmt.Printf("  Exec enabled: %v\n", cfg.Autonomy.Exec.Enabled)
	fmt.Printf("  Max commands per task: %d\n", cfg.Autonomy.Safety.MaxCommandsPerTask)
	fmt.Printf("  Max fix attempts: %d\n", cfg.Autonomy.Safety.MaxFixAttempts)
	fmt.Println()
	fmt.Printf("Change it: %s autonomy set <%s>\n", invokedCLIName(), strings.Join(config.AutonomyLevels(), "|"))
}

func setAutonomyLevel(cfg *config.Config, level string) {
	level = strings.ToLower(strings.TrimSpace(level))
	if !config.IsValidAutonomyLevel(level) {
		fmt.Printf("Invalid autonomy level: %s\n", level)
		fmt.Printf("Valid levels: %s\n", strings.Join(config.AutonomyLevels(), ", "))
		os.Exit(1)
	}
	if err := cfg.Autonomy.ApplyAutonomyLevel(level); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	if err := config.SaveConfig(getConfigPath(), cfg); err != nil {
		fmt.Printf("Error saving config: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Autonomy level set to %s\n", level)
	if level == config.AutonomyFull {
		fmt.Println("⚠ Full autonomy: the agent may push, PR, and promote deploys without asking.")
	}
}

func autonomyHelp() {
	commandName := invokedCLIName()
	fmt.Println("\nAutonomy commands:")
	fmt.Println("  show            Show the current level and what it allows")
	fmt.Println("  set <level>     Change the level")
	fmt.Println()
	fmt.Printf("Levels: %s\n", strings.Join(config.AutonomyLevels(), ", "))
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Printf("  %s autonomy\n", commandName)
	fmt.Printf("  %s autonomy set high\n", commandName)
}

func statusCmd() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		return
	}

	configPath := getConfigPath()

	fmt.Printf("%s %s Status\n\n", logo, displayName)

	if _, err := os.Stat(configPath); err == nil {
		fmt.Println("Config:", configPath, "✓")
	} else {
		fmt.Println("Config:", configPath, "✗")
	}

	workspace := cfg.WorkspacePath()
	if _, err := os.Stat(workspace); err == nil {
		fmt.Println("Workspace:", workspace, "✓")
	} else {
		fmt.Println("Workspace:", workspace, "✗")
	}

	if _, err := os.Stat(configPath); err == nil {
		fmt.Printf("Model: %s\n", cfg.Agents.Defaults.Model)
		if vendor := models.VendorOf(cfg.Agents.Defaults.Model); vendor != "" {
			fmt.Printf("Vendor: %s\n", vendor)
		}
		if cfg.Agents.Defaults.ReasoningEffort != "" {
			fmt.Printf("Reasoning Effort: %s\n", cfg.Agents.Defaults.ReasoningEffort)
		}
		fmt.Printf("Autonomy: %s\n", cfg.Autonomy.Level)

		if binaryPath, derr := droid.ResolveBinary(cfg.Droid.Binary); derr == nil {
			fmt.Printf("Droid CLI: ✓ %s\n", binaryPath)
		} else {
			fmt.Printf("Droid CLI: ✗ not found (install: %s)\n", droidInstallHint)
		}

		status := func(enabled bool) string {
			if enabled {
				return "✓"
			}
			return "not set"
		}
		fmt.Println("Telegram:", status(cfg.Channels.Telegram.Enabled && strings.TrimSpace(cfg.Channels.Telegram.Token) != ""))
		fmt.Println("Discord:", status(cfg.Channels.Discord.Enabled && strings.TrimSpace(cfg.Channels.Discord.Token) != ""))

		if cfg.Routing.Enabled {
			fmt.Printf("Routing: ✓ %d mappings\n", len(cfg.Routing.Mappings))
		} else {
			fmt.Println("Routing: disabled")
		}

		if cfg.Jobs.Enabled {
			jobService := queue.NewService(jobStorePath(cfg), nil)
			queued, running, done, failed := jobService.Counts()
			fmt.Printf("Jobs: %d queued, %d running, %d done, %d failed\n", queued, running, done, failed)
		} else {
			fmt.Println("Jobs: disabled")
		}

		store, _ := auth.LoadStore()
		if store != nil && len(store.Credentials) > 0 {
			fmt.Println("\nDeploy Auth:")
			for provider, cred := range store.Credentials {
				status := "authenticated"
				if cred.IsExpired() {
					status = "expired"
				} else if cred.NeedsRefresh() {
					status = "needs refresh"
				}
				fmt.Printf("  %s (%s): %s\n", provider, cred.AuthMethod, status)
			}
		}
	}
}

func authCmd() {
	if len(os.Args) < 3 {
		authHelp()
		return
	}

	switch os.Args[2] {
	case "login":
		authLoginCmd()
	case "logout":
		authLogoutCmd()
	case "status":
		authStatusCmd()
	case "import":
		authImportCmd()
	default:
		fmt.Printf("Unknown auth command: %s\n", os.Args[2])
		authHelp()
	}
}

func authHelp() {
	commandName := invokedCLIName()
	fmt.Println("\nAuth commands:")
	fmt.Println("  login       Login via device code or paste token")
	fmt.Println("  logout      Remove stored credentials")
	fmt.Println("  status      Show current auth status")
	fmt.Println("  import      Import a credential from a token file")
	fmt.Println()
	fmt.Println("Login options:")
	fmt.Println("  --provider <name>    Provider to login with (github, vercel)")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Printf("  %s auth login --provider github\n", commandName)
	fmt.Printf("  %s auth login --provider vercel\n", commandName)
	fmt.Printf("  %s auth import ~/.vercel/token.json --provider vercel\n", commandName)
	fmt.Printf("  %s auth logout --provider github\n", commandName)
	fmt.Printf("  %s auth status\n", commandName)
}

func authLoginCmd() {
	provider := ""

	args := os.Args[3:]
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--provider", "-p":
			if i+1 < len(args) {
				provider = args[i+1]
				i++
			}
		}
	}

	if provider == "" {
		fmt.Println("Error: --provider is required")
		fmt.Println("Supported providers: github, vercel")
		return
	}

	switch provider {
	case auth.ProviderGitHub:
		authLoginGitHub()
	case auth.ProviderVercel:
		authLoginPasteToken(provider)
	default:
		fmt.Printf("Unsupported provider: %s\n", provider)
		fmt.Println("Supported providers: github, vercel")
	}
}

func authLoginGitHub() {
	cred, err := auth.LoginGitHubDevice(context.Background())
	if err != nil {
		fmt.Printf("Login failed: %v\n", err)
		os.Exit(1)
	}

	if err := auth.SetCredential(auth.ProviderGitHub, cred); err != nil {
		fmt.Printf("Failed to save credentials: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Login successful!")
	if cred.AccountID != "" {
		fmt.Printf("Account: %s\n", cred.AccountID)
	}
}

func authLoginPasteToken(provider string) {
	cred, err := auth.LoginPasteToken(provider, os.Stdin)
	if err != nil {
		fmt.Printf("Login failed: %v\n", err)
		os.Exit(1)
	}

	if err := auth.SetCredential(provider, cred); err != nil {
		fmt.Printf("Failed to save credentials: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Token saved for %s!\n", provider)
}

func authImportCmd() {
	provider := auth.ProviderVercel
	file := ""

	args := os.Args[3:]
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--provider", "-p":
			if i+1 < len(args) {
				provider = args[i+1]
				i++
			}
		default:
			if file == "" {
				file = args[i]
			}
		}
	}

	if file == "" {
		fmt.Printf("Usage: %s auth import <file> [--provider <name>]\n", invokedCLIName())
		os.Exit(1)
	}

	data, err := os.ReadFile(file)
	if err != nil {
		fmt.Printf("Error reading %s: %v\n", file, err)
		os.Exit(1)
	}

	cred, err := auth.ParseCredentialFile(data, provider, "token")
	if err != nil {
		fmt.Printf("Error parsing credential file: %v\n", err)
		os.Exit(1)
	}

	if err := auth.SetCredential(provider, cred); err != nil {
		fmt.Printf("Failed to save credentials: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✓ Imported %s credential from %s\n", provider, file)
}

func authLogoutCmd() {
	provider := ""

	args := os.Args[3:]
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--provider", "-p":
			if i+1 < len(args) {
				provider = args[i+1]
				i++
			}
		}
	}

	if provider != "" {
		if err := auth.DeleteCredential(provider); err != nil {
			fmt.Printf("Failed to remove credentials: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Logged out from %s\n", provider)
	} else {
		if err := auth.DeleteAllCredentials(); err != nil {
			fmt.Printf("Failed to remove credentials: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Logged out from all providers")
	}
}

func authStatusCmd() {
	store, err := auth.LoadStore()
	if err != nil {
		fmt.Printf("Error loading auth store: %v\n", err)
		return
	}

	if len(store.Credentials) == 0 {
		fmt.Println("No authenticated providers.")
		fmt.Printf("Run: %s auth login --provider <name>\n", invokedCLIName())
		return
	}

	fmt.Println("\nAuthenticated Providers:")
	fmt.Println("------------------------")
	for provider, cred := range store.Credentials {
		status := "active"
		if cred.IsExpired() {
			status = "expired"
		} else if cred.NeedsRefresh() {
			status = "needs refresh"
		}

		fmt.Printf("  %s:\n", provider)
		fmt.Printf("    Method: %s\n", cred.AuthMethod)
		fmt.Printf("    Status: %s\n", status)
		if cred.AccountID != "" {
			fmt.Printf("    Account: %s\n", cred.AccountID)
		}
		if !cred.ExpiresAt.IsZero() {
			fmt.Printf("    Expires: %s\n", cred.ExpiresAt.Format("2006-01-02 15:04"))
		}
	}
}

func getConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".droidgram", "config.json")
}

func loadConfig() (*config.Config, error) {
	return config.LoadConfig(getConfigPath())
}
