package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/droidgram/droidgram/pkg/logger"
)

// State is the persistent per-workspace state: where the last conversation
// happened (so heartbeats and job notifications know where to go) and the
// last deployment this workspace produced.
type State struct {
	// LastChannel is the last channel used for communication
	LastChannel string `json:"last_channel,omitempty"`

	// LastChatID is the last chat ID used for communication
	LastChatID string `json:"last_chat_id,omitempty"`

	// LastDeployURL is the most recent successful deployment URL
	LastDeployURL string `json:"last_deploy_url,omitempty"`

	// LastDeployAt records when LastDeployURL was produced
	LastDeployAt time.Time `json:"last_deploy_at,omitempty"`

	// Timestamp is the last time this state was updated
	Timestamp time.Time `json:"timestamp"`
}

// Manager manages persistent state with atomic saves.
type Manager struct {
	workspace string
	state     *State
	mu        sync.RWMutex
	stateFile string
}

var (
	stateReadFile         = os.ReadFile
	stateBootstrapTimeout = 750 * time.Millisecond
)

// NewManager creates a new state manager for the given workspace.
func NewManager(workspace string) *Manager {
	stateDir := filepath.Join(workspace, "state")
	stateFile := filepath.Join(stateDir, "state.json")
	oldStateFile := filepath.Join(workspace, "state.json")

	os.MkdirAll(stateDir, 0755)

	sm := &Manager{
		workspace: workspace,
		stateFile: stateFile,
		state:     &State{},
	}

	loadedState, loadedFromLegacy, err := loadBootstrapWithTimeout(stateFile, oldStateFile, stateBootstrapTimeout)
	if err != nil {
		logger.WarnCF("state", "State bootstrap skipped", map[string]interface{}{
			"workspace": workspace,
			"error":     err.Error(),
		})
	} else if loadedState != nil {
		sm.state = loadedState
		if loadedFromLegacy {
			// Keep startup non-blocking on cloud-backed filesystems.
			// The state will be persisted in the new location on next write.
			logger.InfoCF("state", "Loaded legacy state", map[string]interface{}{
				"path": oldStateFile,
			})
		}
	}

	return sm
}

// SetLastChannel atomically updates the last channel and saves the state.
// Uses a temp file + rename so the state file is never corrupted even if
// the process crashes mid-write.
func (sm *Manager) SetLastChannel(channel string) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.state.LastChannel = channel
	sm.state.Timestamp = time.Now()

	if err := sm.saveAtomic(); err != nil {
		return fmt.Errorf("failed to save state atomically: %w", err)
	}
	return nil
}

// SetLastChatID atomically updates the last chat ID and saves the state.
func (sm *Manager) SetLastChatID(chatID string) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.state.LastChatID = chatID
	sm.state.Timestamp = time.Now()

	if err := sm.saveAtomic(); err != nil {
		return fmt.Errorf("failed to save state atomically: %w", err)
	}
	return nil
}

// SetLastDeploy atomically records the latest deployment URL.
func (sm *Manager) SetLastDeploy(url string) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.state.LastDeployURL = url
	sm.state.LastDeployAt = time.Now()
	sm.state.Timestamp = time.Now()

	if err := sm.saveAtomic(); err != nil {
		return fmt.Errorf("failed to save state atomically: %w", err)
	}
	return nil
}

// GetLastChannel returns the last channel from the state.
func (sm *Manager) GetLastChannel() string {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.state.LastChannel
}

// GetLastChatID returns the last chat ID from the state.
func (sm *Manager) GetLastChatID() string {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.state.LastChatID
}

// GetLastDeploy returns the latest deployment URL and when it happened.
func (sm *Manager) GetLastDeploy() (string, time.Time) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.state.LastDeployURL, sm.state.LastDeployAt
}

// GetTimestamp returns the timestamp of the last state update.
func (sm *Manager) GetTimestamp() time.Time {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.state.Timestamp
}

// saveAtomic writes to a temp file then renames it over the target, which
// is atomic on POSIX systems. Must be called with the lock held.
func (sm *Manager) saveAtomic() error {
	tempFile := sm.stateFile + ".tmp"

	data, err := json.MarshalIndent(sm.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tempFile, sm.stateFile); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

func loadBootstrapWithTimeout(stateFile, oldStateFile string, timeout time.Duration) (*State, bool, error) {
	if timeout <= 0 {
		return loadBootstrap(stateFile, oldStateFile)
	}

	type result struct {
		state      *State
		fromLegacy bool
		err        error
	}

	done := make(chan result, 1)
	go func() {
		st, legacy, err := loadBootstrap(stateFile, oldStateFile)
		done <- result{
			state:      st,
			fromLegacy: legacy,
			err:        err,
		}
	}()

	select {
	case out := <-done:
		return out.state, out.fromLegacy, out.err
	case <-time.After(timeout):
		return nil, false, fmt.Errorf("state load timed out")
	}
}

func loadBootstrap(stateFile, oldStateFile string) (*State, bool, error) {
	if st, err := loadStateFromPath(stateFile); err != nil {
		return nil, false, err
	} else if st != nil {
		return st, false, nil
	}

	if st, err := loadStateFromPath(oldStateFile); err != nil {
		return nil, false, err
	} else if st != nil {
		return st, true, nil
	}

	return nil, false, nil
}

func loadStateFromPath(path string) (*State, error) {
	data, err := stateReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read state file %s: %w", path, err)
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state %s: %w", path, err)
	}
	return &st, nil
}
