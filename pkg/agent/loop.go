package agent

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/droidgram/droidgram/pkg/bus"
	"github.com/droidgram/droidgram/pkg/cmdparse"
	"github.com/droidgram/droidgram/pkg/config"
	"github.com/droidgram/droidgram/pkg/constants"
	"github.com/droidgram/droidgram/pkg/droid"
	"github.com/droidgram/droidgram/pkg/hookpolicy"
	"github.com/droidgram/droidgram/pkg/hooks"
	"github.com/droidgram/droidgram/pkg/hooks/builtin"
	"github.com/droidgram/droidgram/pkg/logger"
	"github.com/droidgram/droidgram/pkg/orchestrator"
	"github.com/droidgram/droidgram/pkg/queue"
	"github.com/droidgram/droidgram/pkg/sandbox"
	"github.com/droidgram/droidgram/pkg/session"
	"github.com/droidgram/droidgram/pkg/smartexec"
	"github.com/droidgram/droidgram/pkg/state"
)

// droidRunner is the slice of droid.Runner the loop depends on.
type droidRunner interface {
	Run(ctx context.Context, prompt string, opts droid.Options) (*droid.Response, error)
	Binary() string
}

// Replaced in tests.
var (
	newDroidRunner = func(cfg config.DroidConfig, workDir string) (droidRunner, error) {
		return droid.New(cfg, workDir)
	}
	newExecutor = func(workingDir string, auto config.AutonomyConfig) *smartexec.Executor {
		return smartexec.New(workingDir, auto)
	}
)

// AgentLoop owns one workspace's conversation runtime. Each inbound
// message becomes exactly one droid turn (or one chat command), handled
// serially; a single loop never interleaves droid invocations.
type AgentLoop struct {
	cfg       *config.Config
	bus       *bus.MessageBus
	sessions  *session.SessionManager
	state     *state.Manager
	hooks     *hooks.Engine
	builder   *ContextBuilder
	workspace string
	auditPath string

	runnerMu sync.Mutex
	runner   droidRunner

	jobsMu sync.Mutex
	jobs   *queue.Service

	running atomic.Bool
}

// NewAgentLoop wires the runtime for cfg's workspace: sessions, state,
// hook engine, and the droid runner all root there.
func NewAgentLoop(cfg *config.Config, msgBus *bus.MessageBus) (*AgentLoop, error) {
	workspace := cfg.WorkspacePath()
	if err := os.MkdirAll(workspace, 0755); err != nil {
		return nil, fmt.Errorf("create workspace %s: %w", workspace, err)
	}

	al := &AgentLoop{
		cfg:       cfg,
		bus:       msgBus,
		sessions:  session.NewSessionManager(filepath.Join(workspace, "sessions")),
		state:     state.NewManager(workspace),
		builder:   NewContextBuilder(workspace, cfg.Agents.Defaults.RestrictToWorkspace),
		workspace: workspace,
	}
	al.hooks, al.auditPath = newHookEngine(workspace)

	// Binary resolution is retried on demand, so installing droid later
	// heals a running gateway without a restart.
	runner, err := newDroidRunner(cfg.Droid, workspace)
	if err != nil {
		logger.WarnCF("agent", "droid binary not resolved yet", map[string]interface{}{
			"error": err.Error(),
		})
	} else {
		al.runner = runner
	}

	return al, nil
}

// newHookEngine loads the workspace hooks.yaml and builds the engine
// around it. A disabled policy yields a disabled engine with no
// handlers and no audit trail.
func newHookEngine(workspace string) (*hooks.Engine, string) {
	policy, diag, loadErr := hookpolicy.Load(workspace)
	if loadErr != nil {
		logger.WarnCF("hooks", "Hook policy load failed; using defaults", map[string]interface{}{
			"error": loadErr.Error(),
		})
	}

	engine := hooks.NewEngine(policy.Enabled)
	if !policy.Enabled {
		return engine, ""
	}
	engine.Register(builtin.NewPolicyHandler(policy, diag, loadErr))

	auditPath := ""
	if policy.Audit.Enabled {
		sink, err := hooks.NewJSONLAuditSinkAt(policy.AuditPath(workspace))
		if err != nil {
			logger.WarnCF("hooks", "Hook audit sink unavailable", map[string]interface{}{
				"error": err.Error(),
			})
		} else {
			engine.SetAuditSink(sink)
			auditPath = sink.Path()
		}
	}
	return engine, auditPath
}

// SetJobQueue attaches the gateway's job queue so complex prompts can
// be deferred instead of blocking the chat. Loops without a queue run
// everything synchronously.
func (al *AgentLoop) SetJobQueue(q *queue.Service) {
	al.jobsMu.Lock()
	defer al.jobsMu.Unlock()
	al.jobs = q
}

func (al *AgentLoop) jobQueue() *queue.Service {
	al.jobsMu.Lock()
	defer al.jobsMu.Unlock()
	return al.jobs
}

// Run consumes inbound messages until the context ends or the bus
// closes.
func (al *AgentLoop) Run(ctx context.Context) error {
	al.running.Store(true)
	defer al.running.Store(false)

	logger.InfoCF("agent", "Agent loop started", map[string]interface{}{
		"workspace": al.workspace,
	})

	for al.running.Load() {
		msg, ok := al.bus.ConsumeInbound(ctx)
		if !ok {
			return ctx.Err()
		}
		al.HandleInbound(ctx, msg)
	}
	return nil
}

// Stop ends Run after the in-flight message completes.
func (al *AgentLoop) Stop() {
	al.running.Store(false)
	logger.InfoC("agent", "Agent loop stopping")
}

// HandleInbound runs one message to completion and publishes the reply.
// It is the entry point for both Run and the routing pool's
// per-workspace goroutines.
func (al *AgentLoop) HandleInbound(ctx context.Context, msg bus.InboundMessage) {
	logger.InfoCF("agent", "Processing message", map[string]interface{}{
		"channel": msg.Channel,
		"chat_id": msg.ChatID,
		"preview": previewOf(msg.Content, 80),
	})

	reply, err := al.processMessage(ctx, msg, false)
	if err != nil {
		logger.ErrorCF("agent", "Turn ended with an error", map[string]interface{}{
			"channel": msg.Channel,
			"chat_id": msg.ChatID,
			"error":   droid.Redact(err.Error()),
		})
	}
	if strings.TrimSpace(reply) == "" {
		return
	}

	channel, chatID := msg.Channel, msg.ChatID
	if constants.IsInternalChannel(channel) {
		channel, chatID = al.systemDeliveryTarget(msg)
		if channel == "" {
			logger.WarnC("agent", "No delivery target for internally originated reply; dropping it")
			return
		}
	}

	out := bus.OutboundMessage{Channel: channel, ChatID: chatID, Content: reply}
	if err := al.bus.PublishOutbound(ctx, out); err != nil {
		logger.ErrorCF("agent", "Publishing reply failed", map[string]interface{}{
			"channel": channel,
			"error":   err.Error(),
		})
	}
}

// systemDeliveryTarget resolves where an internally originated reply
// should go: an origin chat encoded as "channel:chatID" in the message's
// ChatID, else the last real chat this loop served.
func (al *AgentLoop) systemDeliveryTarget(msg bus.InboundMessage) (string, string) {
	if parts := strings.SplitN(msg.ChatID, ":", 2); len(parts) == 2 {
		channel := strings.TrimSpace(parts[0])
		chatID := strings.TrimSpace(parts[1])
		if channel != "" && chatID != "" && !constants.IsInternalChannel(channel) {
			return channel, chatID
		}
	}
	return al.LastDelivery()
}

// ProcessDirect runs one turn outside the bus, for the REPL and
// one-shot CLI invocations.
func (al *AgentLoop) ProcessDirect(ctx context.Context, content, sessionKey string) (string, error) {
	return al.ProcessDirectWithChannel(ctx, content, sessionKey, constants.ChannelCLI, "direct", "local")
}

// ProcessDirectWithChannel runs one turn for work that already knows its
// delivery target, such as queued jobs. The reply is returned, not
// published; the caller owns delivery.
func (al *AgentLoop) ProcessDirectWithChannel(ctx context.Context, content, sessionKey, channel, chatID, senderID string) (string, error) {
	msg := bus.InboundMessage{
		Channel:    channel,
		SenderID:   senderID,
		ChatID:     chatID,
		Content:    content,
		SessionKey: sessionKey,
	}
	return al.processMessage(ctx, msg, true)
}

// ProcessHeartbeat runs a scheduled prompt against a dedicated session
// key so periodic check-ins never pollute chat history.
func (al *AgentLoop) ProcessHeartbeat(ctx context.Context, prompt, channel, chatID string) (string, error) {
	return al.ProcessDirectWithChannel(ctx, prompt, "system:heartbeat", channel, chatID, constants.ChannelSystem)
}

// processMessage is the core turn: chat commands first, then complexity
// routing, then a droid invocation. direct marks callers that already
// own scheduling (REPL, queued jobs); their prompts are never re-queued.
func (al *AgentLoop) processMessage(ctx context.Context, msg bus.InboundMessage, direct bool) (string, error) {
	content := strings.TrimSpace(msg.Content)
	if content == "" {
		return "", nil
	}

	sessionKey := strings.TrimSpace(msg.SessionKey)
	if sessionKey == "" {
		sessionKey = fmt.Sprintf("%s:%s", msg.Channel, msg.ChatID)
	}

	if !direct && !constants.IsInternalChannel(msg.Channel) {
		// Remember where conversation lives so scheduled work without an
		// origin chat can still reach the operator.
		if err := al.state.SetLastChannel(msg.Channel); err != nil {
			logger.DebugCF("agent", "Persisting last channel failed", map[string]interface{}{"error": err.Error()})
		}
		if err := al.state.SetLastChatID(msg.ChatID); err != nil {
			logger.DebugCF("agent", "Persisting last chat id failed", map[string]interface{}{"error": err.Error()})
		}
	}

	if reply, handled := al.handleChatCommand(content, sessionKey); handled {
		return reply, nil
	}

	turnID := uuid.NewString()
	hctx := hooks.Context{
		TurnID:      turnID,
		SessionKey:  sessionKey,
		Channel:     msg.Channel,
		ChatID:      msg.ChatID,
		Model:       al.cfg.Agents.Defaults.Model,
		UserMessage: content,
	}
	al.hooks.Emit(ctx, hooks.EventBeforeTurn, hctx)

	var reply string
	var err error
	if !direct {
		reply = al.maybeEnqueue(content, sessionKey, msg)
	}
	if reply == "" {
		reply, err = al.runDroidTurn(ctx, turnID, content, sessionKey, msg)
	}

	hctx.ResponseSummary = summarize(reply)
	al.hooks.Emit(ctx, hooks.EventAfterTurn, hctx)
	return reply, err
}

// handleChatCommand intercepts the small operator surface. Anything it
// does not recognize falls through to droid untouched.
func (al *AgentLoop) handleChatCommand(content, sessionKey string) (string, bool) {
	if !strings.HasPrefix(content, "/") {
		return "", false
	}
	fields := strings.Fields(content)

	switch strings.ToLower(fields[0]) {
	case "/reset":
		al.sessions.Reset(sessionKey)
		al.saveSession(sessionKey)
		logger.InfoCF("agent", "Session reset", map[string]interface{}{"session_key": sessionKey})
		return "Session cleared. The next message starts a fresh droid session.", true

	case "/autonomy":
		if len(fields) == 1 {
			return fmt.Sprintf("Autonomy is %q for this chat. Levels: %s.\nUse /autonomy <level> to change it.",
				al.autonomyLevel(sessionKey), strings.Join(config.AutonomyLevels(), ", ")), true
		}
		level := strings.ToLower(fields[1])
		if !config.IsValidAutonomyLevel(level) {
			return fmt.Sprintf("Unknown autonomy level %q. Levels: %s.",
				fields[1], strings.Join(config.AutonomyLevels(), ", ")), true
		}
		al.sessions.SetAutonomy(sessionKey, level)
		al.saveSession(sessionKey)
		logger.InfoCF("agent", "Autonomy changed", map[string]interface{}{
			"session_key": sessionKey,
			"level":       level,
		})
		return fmt.Sprintf("Autonomy set to %q for this chat.", level), true

	case "/status":
		return al.statusText(sessionKey), true
	}

	return "", false
}

func (al *AgentLoop) statusText(sessionKey string) string {
	var sb strings.Builder
	sb.WriteString("droidgram status\n")
	fmt.Fprintf(&sb, "Workspace: %s\n", al.workspace)

	model := al.cfg.Agents.Defaults.Model
	if model == "" {
		model = "droid default"
	}
	fmt.Fprintf(&sb, "Model: %s", model)
	if effort := al.cfg.Agents.Defaults.ReasoningEffort; effort != "" {
		fmt.Fprintf(&sb, " (reasoning %s)", effort)
	}
	sb.WriteString("\n")

	fmt.Fprintf(&sb, "Autonomy: %s\n", al.autonomyLevel(sessionKey))

	if sid := al.sessions.GetDroidSession(sessionKey); sid != "" {
		fmt.Fprintf(&sb, "Droid session: %s\n", sid)
	} else {
		sb.WriteString("Droid session: none yet\n")
	}

	if runner, err := al.droidRunner(); err == nil {
		fmt.Fprintf(&sb, "Droid binary: %s\n", runner.Binary())
	} else {
		sb.WriteString("Droid binary: not found\n")
	}

	if jobs := al.jobQueue(); jobs != nil {
		queued, running, done, failed := jobs.Counts()
		fmt.Fprintf(&sb, "Jobs: %d queued, %d running, %d done, %d failed\n", queued, running, done, failed)
	}

	if url, at := al.state.GetLastDeploy(); url != "" {
		fmt.Fprintf(&sb, "Last deploy: %s (%s)\n", url, at.Format("2006-01-02 15:04"))
	}

	return strings.TrimRight(sb.String(), "\n")
}

// maybeEnqueue defers complex prompts to the job queue. Returns the
// acknowledgement to send, or "" when the prompt should run now.
func (al *AgentLoop) maybeEnqueue(content, sessionKey string, msg bus.InboundMessage) string {
	jobs := al.jobQueue()
	if jobs == nil {
		return ""
	}
	cls := orchestrator.Classify(content, false)
	if !cls.Enqueue() {
		return ""
	}

	job, err := jobs.Enqueue(queue.Payload{
		Prompt:     content,
		SessionKey: sessionKey,
		Channel:    msg.Channel,
		ChatID:     msg.ChatID,
	}, 0)
	if err != nil {
		logger.WarnCF("agent", "Enqueue failed; running synchronously", map[string]interface{}{
			"error": err.Error(),
		})
		return ""
	}

	logger.InfoCF("agent", "Complex prompt deferred to job queue", map[string]interface{}{
		"job_id": job.ID,
		"score":  cls.Score,
	})
	return fmt.Sprintf("That looks like a bigger task (complexity %d: %s). Queued as job %s; I'll report back here when it finishes.",
		cls.Score, strings.Join(cls.Reasons, ", "), shortID(job.ID))
}

// runDroidTurn invokes droid once and post-processes its reply. Runner
// failures come back as (user-facing message, error) so job callers can
// account the failure while chat callers still have text to send.
func (al *AgentLoop) runDroidTurn(ctx context.Context, turnID, content, sessionKey string, msg bus.InboundMessage) (string, error) {
	runner, err := al.droidRunner()
	if err != nil {
		al.emitError(ctx, turnID, sessionKey, msg, err)
		return droid.UserMessage(err), err
	}

	level := al.autonomyLevel(sessionKey)
	opts := droid.Options{
		SessionID:       al.sessions.GetDroidSession(sessionKey),
		Model:           al.cfg.Agents.Defaults.Model,
		ReasoningEffort: al.cfg.Agents.Defaults.ReasoningEffort,
		AutoLevel:       al.droidAutoLevel(level),
	}
	prompt := al.builder.BuildPrompt(content, TurnContext{
		Channel:  msg.Channel,
		ChatID:   msg.ChatID,
		SenderID: msg.SenderID,
		Autonomy: level,
	})

	hctx := hooks.Context{
		TurnID:         turnID,
		SessionKey:     sessionKey,
		Channel:        msg.Channel,
		ChatID:         msg.ChatID,
		Model:          opts.Model,
		DroidSessionID: opts.SessionID,
	}
	al.hooks.Emit(ctx, hooks.EventBeforeDroid, hctx)

	start := time.Now()
	resp, err := runner.Run(ctx, prompt, opts)
	elapsed := time.Since(start)
	if err != nil {
		logger.ErrorCF("agent", "droid turn failed", map[string]interface{}{
			"kind":    string(droid.Classify(err)),
			"error":   droid.Redact(err.Error()),
			"elapsed": elapsed.Round(time.Millisecond).String(),
		})
		al.emitError(ctx, turnID, sessionKey, msg, err)
		return droid.UserMessage(err), err
	}

	// First session id wins; replayed via -s on every later turn. When
	// droid never reports one, a deterministic fallback keeps the key
	// stable across restarts.
	sid := resp.SessionID
	if sid == "" && al.sessions.GetDroidSession(sessionKey) == "" {
		sid = droid.FallbackSessionID(sessionKey)
	}
	if sid != "" {
		al.sessions.SetDroidSession(sessionKey, sid)
	}

	al.sessions.AddMessage(sessionKey, "user", content)

	text := strings.TrimSpace(resp.Text)
	if resp.IsError {
		reply := droid.ErrorResult(text)
		al.sessions.AddMessage(sessionKey, "assistant", reply)
		al.saveSession(sessionKey)
		hctx.ResponseSummary = summarize(reply)
		al.hooks.Emit(ctx, hooks.EventAfterDroid, hctx)
		return reply, nil
	}
	if text == "" {
		text = "droid finished without any output."
	} else {
		text = droid.Redact(text)
	}

	logger.InfoCF("agent", "droid turn complete", map[string]interface{}{
		"session_key": sessionKey,
		"elapsed":     elapsed.Round(time.Millisecond).String(),
		"chars":       len(text),
	})

	reply := al.runSuggestedCommands(ctx, turnID, text, sessionKey, msg)

	al.sessions.AddMessage(sessionKey, "assistant", reply)
	al.saveSession(sessionKey)

	hctx.DroidSessionID = al.sessions.GetDroidSession(sessionKey)
	hctx.ResponseSummary = summarize(reply)
	al.hooks.Emit(ctx, hooks.EventAfterDroid, hctx)
	return reply, nil
}

// runSuggestedCommands executes a command sequence found in a droid
// reply when the chat's autonomy level permits it. The reply passes
// through untouched unless every parsed command clears the active
// allowlist; a partially runnable sequence stays a suggestion.
func (al *AgentLoop) runSuggestedCommands(ctx context.Context, turnID, reply, sessionKey string, msg bus.InboundMessage) string {
	auto := al.effectiveAutonomy(sessionKey)
	if !auto.Exec.Enabled {
		return reply
	}
	cmds := cmdparse.Parse(reply)
	if len(cmds) == 0 {
		return reply
	}
	if limit := auto.Safety.MaxCommandsPerTask; limit > 0 && len(cmds) > limit {
		logger.DebugCF("agent", "Suggested sequence exceeds the per-task command cap", map[string]interface{}{
			"commands": len(cmds),
			"cap":      limit,
		})
		return reply
	}

	exec := newExecutor(al.workspace, auto)
	valid, invalid := exec.ValidateCommands(cmds)
	if len(invalid) > 0 || len(valid) == 0 {
		return reply
	}

	al.hooks.Emit(ctx, hooks.EventBeforeExec, hooks.Context{
		TurnID:     turnID,
		SessionKey: sessionKey,
		Channel:    msg.Channel,
		ChatID:     msg.ChatID,
		Command:    valid[0].Command,
		Metadata:   map[string]interface{}{"commands": len(valid)},
	})

	opts := smartexec.DefaultSequenceOptions()
	opts.Progress = func(cmd cmdparse.ParsedCommand, res sandbox.Result) {
		al.hooks.Emit(ctx, hooks.EventAfterExec, hooks.Context{
			TurnID:        turnID,
			SessionKey:    sessionKey,
			Channel:       msg.Channel,
			ChatID:        msg.ChatID,
			Command:       cmd.Command,
			ExitCode:      res.ExitCode,
			CommandOutput: previewOf(res.Message, 400),
		})
	}

	logger.InfoCF("agent", "Running suggested commands", map[string]interface{}{
		"session_key": sessionKey,
		"commands":    len(valid),
		"autonomy":    auto.Level,
	})
	seq := exec.RunSequence(ctx, valid, opts)

	return reply + "\n\n" + renderSequence(seq, auto.Safety.NotifyOnAction)
}

func renderSequence(seq smartexec.SequenceResult, verbose bool) string {
	var sb strings.Builder
	if seq.FailedCount == 0 {
		fmt.Fprintf(&sb, "⚙️ Ran %d suggested command(s), all succeeded.", seq.ExecutedCount)
	} else {
		fmt.Fprintf(&sb, "⚙️ Ran %d suggested command(s), %d failed.", seq.ExecutedCount, seq.FailedCount)
	}

	for _, r := range seq.Results {
		if r.Skipped {
			if verbose {
				fmt.Fprintf(&sb, "\n$ %s\n(skipped)", r.Command.Command)
			}
			continue
		}
		// Failures always surface; successes only in verbose mode.
		if !verbose && r.Result.Success {
			continue
		}
		fmt.Fprintf(&sb, "\n$ %s\n%s", r.Command.Command, strings.TrimSpace(r.Result.Message))
	}
	return sb.String()
}

func (al *AgentLoop) emitError(ctx context.Context, turnID, sessionKey string, msg bus.InboundMessage, err error) {
	al.hooks.Emit(ctx, hooks.EventOnError, hooks.Context{
		TurnID:       turnID,
		SessionKey:   sessionKey,
		Channel:      msg.Channel,
		ChatID:       msg.ChatID,
		ErrorMessage: droid.Redact(err.Error()),
	})
}

func (al *AgentLoop) droidRunner() (droidRunner, error) {
	al.runnerMu.Lock()
	defer al.runnerMu.Unlock()
	if al.runner != nil {
		return al.runner, nil
	}
	runner, err := newDroidRunner(al.cfg.Droid, al.workspace)
	if err != nil {
		return nil, err
	}
	al.runner = runner
	return runner, nil
}

// effectiveAutonomy resolves the autonomy config for one chat: a
// /autonomy override maps to its preset, otherwise the config's
// autonomy block applies as-is.
func (al *AgentLoop) effectiveAutonomy(sessionKey string) config.AutonomyConfig {
	if level := al.sessions.GetAutonomy(sessionKey); level != "" {
		if preset, ok := config.AutonomyPreset(level); ok {
			return preset
		}
	}
	if al.cfg.Autonomy.Level == "" {
		return config.DefaultAutonomyConfig()
	}
	return al.cfg.Autonomy
}

func (al *AgentLoop) autonomyLevel(sessionKey string) string {
	return al.effectiveAutonomy(sessionKey).Level
}

// droidAutoLevel maps a chat autonomy level onto droid's --auto flag.
// An explicit droid.auto_level in config pins the flag regardless of
// the chat level.
func (al *AgentLoop) droidAutoLevel(level string) string {
	if pinned := strings.TrimSpace(al.cfg.Droid.AutoLevel); pinned != "" {
		return pinned
	}
	switch strings.ToLower(level) {
	case config.AutonomyMedium:
		return "medium"
	case config.AutonomyHigh, config.AutonomyFull:
		return "high"
	default:
		return "low"
	}
}

// RecordLastChannel persists the channel scheduled output should use.
func (al *AgentLoop) RecordLastChannel(channel string) error {
	return al.state.SetLastChannel(channel)
}

// RecordLastChatID persists the chat scheduled output should use.
func (al *AgentLoop) RecordLastChatID(chatID string) error {
	return al.state.SetLastChatID(chatID)
}

// LastDelivery reports the most recent real chat this loop served.
func (al *AgentLoop) LastDelivery() (channel, chatID string) {
	return al.state.GetLastChannel(), al.state.GetLastChatID()
}

// GetStartupInfo summarizes the loop's wiring for startup logs.
func (al *AgentLoop) GetStartupInfo() map[string]interface{} {
	droidBinary := ""
	if runner, err := al.droidRunner(); err == nil {
		droidBinary = runner.Binary()
	}

	autonomy := al.cfg.Autonomy.Level
	if autonomy == "" {
		autonomy = config.DefaultAutonomyConfig().Level
	}

	return map[string]interface{}{
		"workspace":        al.workspace,
		"model":            al.cfg.Agents.Defaults.Model,
		"reasoning_effort": al.cfg.Agents.Defaults.ReasoningEffort,
		"autonomy":         autonomy,
		"droid": map[string]interface{}{
			"binary":     droidBinary,
			"auto_level": al.droidAutoLevel(autonomy),
		},
		"hooks": map[string]interface{}{
			"enabled":    al.hooks.Enabled(),
			"handlers":   al.hooks.HandlerCount(),
			"audit_path": al.auditPath,
		},
	}
}

func (al *AgentLoop) saveSession(key string) {
	if err := al.sessions.Save(key); err != nil {
		logger.WarnCF("agent", "Session save failed", map[string]interface{}{
			"session_key": key,
			"error":       err.Error(),
		})
	}
}

// summarize collapses a reply to a single audit-sized line.
func summarize(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	r := []rune(text)
	if len(r) > 200 {
		return string(r[:200]) + "..."
	}
	return text
}

func previewOf(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
