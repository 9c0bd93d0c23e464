package tui

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/droidgram/droidgram/pkg/config"
	"github.com/droidgram/droidgram/pkg/droid"
	"github.com/droidgram/droidgram/pkg/queue"
	svcmgr "github.com/droidgram/droidgram/pkg/service"
)

// Snapshot holds everything the dashboard renders, collected in one pass.
type Snapshot struct {
	ConfigExists    bool
	ConfigPath      string
	Workspace       string
	WorkspaceExists bool
	Model           string
	Effort          string
	Autonomy        string

	// Resolved droid executable; empty when not found.
	DroidBinary string

	Telegram ChannelSnapshot
	Discord  ChannelSnapshot

	RoutingEnabled  bool
	RoutingMappings int

	ServiceBackend   string
	ServiceInstalled bool
	ServiceRunning   bool
	ServiceEnabled   bool

	JobsEnabled bool
	Queued      int
	Running     int
	Done        int
	Failed      int
	RecentJobs  []JobRow
	Schedules   []ScheduleRow

	FetchedAt time.Time
}

// ChannelSnapshot captures one chat channel's readiness.
type ChannelSnapshot struct {
	Status    string // "ready", "open", "broken", "off"
	Enabled   bool
	HasToken  bool
	AllowFrom int
}

type JobRow struct {
	ID      string
	Status  string
	Prompt  string
	Source  string
	Created time.Time
}

type ScheduleRow struct {
	Name     string
	Schedule string
	Enabled  bool
	NextRun  *time.Time
}

const maxRecentJobs = 5

// CollectSnapshot gathers all state. Safe to call from a goroutine.
func CollectSnapshot() Snapshot {
	snap := Snapshot{FetchedAt: time.Now()}

	home, err := os.UserHomeDir()
	if err != nil {
		return snap
	}
	snap.ConfigPath = filepath.Join(home, ".droidgram", "config.json")
	if _, err := os.Stat(snap.ConfigPath); err == nil {
		snap.ConfigExists = true
	}

	cfg, err := config.LoadConfig(snap.ConfigPath)
	if err != nil {
		return snap
	}

	snap.Workspace = cfg.WorkspacePath()
	if info, err := os.Stat(snap.Workspace); err == nil && info.IsDir() {
		snap.WorkspaceExists = true
	}
	snap.Model = cfg.Agents.Defaults.Model
	snap.Effort = cfg.Agents.Defaults.ReasoningEffort
	snap.Autonomy = cfg.Autonomy.Level

	snap.Telegram = channelState(cfg.Channels.Telegram.Enabled, cfg.Channels.Telegram.Token, len(cfg.Channels.Telegram.AllowFrom))
	snap.Discord = channelState(cfg.Channels.Discord.Enabled, cfg.Channels.Discord.Token, len(cfg.Channels.Discord.AllowFrom))

	snap.RoutingEnabled = cfg.Routing.Enabled
	snap.RoutingMappings = len(cfg.Routing.Mappings)
	snap.JobsEnabled = cfg.Jobs.Enabled

	// The slow parts touch disjoint fields, so they run together without
	// a lock.
	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); collectServiceState(&snap) }()
	go func() { defer wg.Done(); collectJobState(&snap, cfg) }()
	go func() { defer wg.Done(); collectDroidState(&snap, cfg) }()
	wg.Wait()

	return snap
}

func channelState(enabled bool, token string, allowCount int) ChannelSnapshot {
	hasToken := strings.TrimSpace(token) != ""
	var status string
	switch {
	case enabled && hasToken && allowCount > 0:
		status = "ready"
	case enabled && hasToken:
		status = "open"
	case enabled:
		status = "broken"
	default:
		status = "off"
	}
	return ChannelSnapshot{Status: status, Enabled: enabled, HasToken: hasToken, AllowFrom: allowCount}
}

func collectServiceState(snap *Snapshot) {
	exePath, err := os.Executable()
	if err != nil {
		return
	}
	mgr, err := svcmgr.NewManager(exePath)
	if err != nil {
		return
	}
	st, err := mgr.Status()
	if err != nil {
		snap.ServiceBackend = mgr.Backend()
		return
	}
	snap.ServiceBackend = st.Backend
	snap.ServiceInstalled = st.Installed
	snap.ServiceRunning = st.Running
	snap.ServiceEnabled = st.Enabled
}

func collectJobState(snap *Snapshot, cfg *config.Config) {
	if !cfg.Jobs.Enabled {
		return
	}
	storePath := filepath.Join(cfg.WorkspacePath(), "jobs", "jobs.json")
	svc := queue.NewService(storePath, nil)

	snap.Queued, snap.Running, snap.Done, snap.Failed = svc.Counts()

	jobs := svc.Jobs(true)
	if len(jobs) > maxRecentJobs {
		jobs = jobs[:maxRecentJobs]
	}
	for _, j := range jobs {
		snap.RecentJobs = append(snap.RecentJobs, JobRow{
			ID:      shortID(j.ID),
			Status:  string(j.Status),
			Prompt:  oneLinePrompt(j.Payload.Prompt, 48),
			Source:  j.Source,
			Created: j.CreatedAt,
		})
	}

	for _, sj := range svc.Scheduled(true) {
		snap.Schedules = append(snap.Schedules, ScheduleRow{
			Name:     sj.Name,
			Schedule: sj.Schedule.Describe(),
			Enabled:  sj.Enabled,
			NextRun:  sj.NextRunAt,
		})
	}
}

func collectDroidState(snap *Snapshot, cfg *config.Config) {
	bin, err := droid.ResolveBinary(cfg.Droid.Binary)
	if err != nil {
		return
	}
	snap.DroidBinary = bin
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func oneLinePrompt(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}

// SuggestedStep returns the next thing worth doing, in plain English.
func (s *Snapshot) SuggestedStep() string {
	switch {
	case !s.ConfigExists:
		return "Create your config: run `droidgram onboard`"
	case s.DroidBinary == "":
		return "Install the droid CLI: curl -fsSL https://app.factory.ai/cli | sh"
	case s.Telegram.Status != "ready" && s.Discord.Status != "ready":
		return "Connect a chat channel: run `droidgram channels setup`"
	case !s.ServiceInstalled:
		return "Install the gateway service: run `droidgram service install`"
	case !s.ServiceRunning:
		return "Start the gateway: run `droidgram service start`"
	default:
		return "All set. The gateway is running; message your bot to start working."
	}
}
