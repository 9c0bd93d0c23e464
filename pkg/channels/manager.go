package channels

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/droidgram/droidgram/pkg/bus"
	"github.com/droidgram/droidgram/pkg/config"
	"github.com/droidgram/droidgram/pkg/logger"
)

// Manager owns the enabled channel adapters and pumps outbound bus
// messages to whichever adapter each reply names.
type Manager struct {
	channels map[string]Channel
	bus      *bus.MessageBus
	config   *config.Config

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager builds an adapter for every enabled channel. A channel that
// is enabled but missing its token is a configuration error, not a
// silent skip.
func NewManager(cfg *config.Config, messageBus *bus.MessageBus) (*Manager, error) {
	m := &Manager{
		channels: make(map[string]Channel),
		bus:      messageBus,
		config:   cfg,
	}

	// Inbound files land under the workspace so the agent can read them.
	mediaDir := filepath.Join(cfg.WorkspacePath(), "media")

	if cfg.Channels.Telegram.Enabled {
		if strings.TrimSpace(cfg.Channels.Telegram.Token) == "" {
			return nil, fmt.Errorf("telegram channel is enabled but has no bot token")
		}
		ch, err := NewTelegramChannel(cfg.Channels.Telegram, messageBus)
		if err != nil {
			return nil, fmt.Errorf("create telegram channel: %w", err)
		}
		ch.SetMediaDir(mediaDir)
		m.channels["telegram"] = ch
	}

	if cfg.Channels.Discord.Enabled {
		if strings.TrimSpace(cfg.Channels.Discord.Token) == "" {
			return nil, fmt.Errorf("discord channel is enabled but has no bot token")
		}
		ch, err := NewDiscordChannel(cfg.Channels.Discord, messageBus)
		if err != nil {
			return nil, fmt.Errorf("create discord channel: %w", err)
		}
		ch.SetMediaDir(mediaDir)
		m.channels["discord"] = ch
	}

	if len(m.channels) == 0 {
		logger.WarnC("channels", "No channels enabled; gateway will only run scheduled work")
	}

	return m, nil
}

func (m *Manager) GetChannel(name string) (Channel, bool) {
	ch, ok := m.channels[name]
	return ch, ok
}

func (m *Manager) GetEnabledChannels() []string {
	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StartAll connects every adapter and starts the outbound delivery
// loop. A subset of adapters failing to connect is tolerated; the error
// is returned only when every configured adapter failed.
func (m *Manager) StartAll(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	started := 0
	var failures []string
	for name, ch := range m.channels {
		if err := ch.Start(runCtx); err != nil {
			logger.ErrorCF("channels", "Failed to start channel", map[string]interface{}{
				"channel": name,
				"error":   err.Error(),
			})
			failures = append(failures, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		started++
		logger.InfoCF("channels", "Channel started", map[string]interface{}{
			"channel": name,
		})
	}

	m.wg.Add(1)
	go m.deliverOutbound(runCtx)

	if len(failures) > 0 {
		sort.Strings(failures)
		if started == 0 && len(m.channels) > 0 {
			return fmt.Errorf("no channel could start: %s", strings.Join(failures, "; "))
		}
		logger.WarnCF("channels", "Some channels failed to start", map[string]interface{}{
			"failures": strings.Join(failures, "; "),
		})
	}

	return nil
}

// StopAll cancels the delivery loop, stops every running adapter, and
// waits for the delivery goroutine to drain.
func (m *Manager) StopAll(ctx context.Context) {
	if m.cancel != nil {
		m.cancel()
	}

	for name, ch := range m.channels {
		if !ch.IsRunning() {
			continue
		}
		if err := ch.Stop(ctx); err != nil {
			logger.WarnCF("channels", "Error stopping channel", map[string]interface{}{
				"channel": name,
				"error":   err.Error(),
			})
		}
	}

	m.wg.Wait()
}

func (m *Manager) deliverOutbound(ctx context.Context) {
	defer m.wg.Done()

	for {
		msg, ok := m.bus.SubscribeOutbound(ctx)
		if !ok {
			return
		}

		ch, exists := m.channels[msg.Channel]
		if !exists {
			logger.WarnCF("channels", "Outbound message names an unknown channel", map[string]interface{}{
				"channel": msg.Channel,
				"chat_id": msg.ChatID,
			})
			continue
		}

		if err := ch.Send(ctx, msg); err != nil {
			logger.ErrorCF("channels", "Failed to deliver outbound message", map[string]interface{}{
				"channel": msg.Channel,
				"chat_id": msg.ChatID,
				"error":   err.Error(),
			})
		}
	}
}
