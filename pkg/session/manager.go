package session

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/droidgram/droidgram/pkg/logger"
)

// Message is one transcript entry. The droid CLI keeps its own working
// context server-side; this history exists for /status, summaries, and
// prompt framing.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Session struct {
	Key          string    `json:"key"`
	Messages     []Message `json:"messages"`
	Summary      string    `json:"summary,omitempty"`
	DroidSession string    `json:"droid_session,omitempty"`
	Autonomy     string    `json:"autonomy,omitempty"`
	Created      time.Time `json:"created"`
	Updated      time.Time `json:"updated"`
}

type SessionManager struct {
	sessions map[string]*Session
	mu       sync.RWMutex
	storage  string
}

var (
	// Keep gateway startup/routing responsive even if cloud-backed folders stall.
	sessionLoadTimeout  = 750 * time.Millisecond
	sessionSaveWarnTime = 750 * time.Millisecond
	errSessionLoadTimed = errors.New("session load timed out")
	readDir             = os.ReadDir
	readFile            = os.ReadFile
)

func NewSessionManager(storage string) *SessionManager {
	sm := &SessionManager{
		sessions: make(map[string]*Session),
		storage:  storage,
	}

	if storage != "" {
		os.MkdirAll(storage, 0755)
		if err := sm.loadSessionsWithTimeout(sessionLoadTimeout); err != nil {
			logger.WarnCF("session", "Session preload skipped", map[string]interface{}{
				"storage": storage,
				"error":   err.Error(),
			})
		}
	}

	return sm
}

func (sm *SessionManager) GetOrCreate(key string) *Session {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.getOrCreateLocked(key)
}

func (sm *SessionManager) getOrCreateLocked(key string) *Session {
	session, ok := sm.sessions[key]
	if ok {
		return session
	}

	session = &Session{
		Key:      key,
		Messages: []Message{},
		Created:  time.Now(),
		Updated:  time.Now(),
	}
	sm.sessions[key] = session
	return session
}

func (sm *SessionManager) AddMessage(sessionKey, role, content string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	session := sm.getOrCreateLocked(sessionKey)
	session.Messages = append(session.Messages, Message{Role: role, Content: content})
	session.Updated = time.Now()
}

func (sm *SessionManager) GetHistory(key string) []Message {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	session, ok := sm.sessions[key]
	if !ok {
		return []Message{}
	}

	history := make([]Message, len(session.Messages))
	copy(history, session.Messages)
	return history
}

// ListKeys returns all known session keys in stable order.
func (sm *SessionManager) ListKeys() []string {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	keys := make([]string, 0, len(sm.sessions))
	for key := range sm.sessions {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Snapshot returns a deep copy of one session if it exists.
func (sm *SessionManager) Snapshot(key string) (Session, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	stored, ok := sm.sessions[key]
	if !ok || stored == nil {
		return Session{}, false
	}
	return copySession(stored), true
}

func copySession(stored *Session) Session {
	out := Session{
		Key:          stored.Key,
		Summary:      stored.Summary,
		DroidSession: stored.DroidSession,
		Autonomy:     stored.Autonomy,
		Created:      stored.Created,
		Updated:      stored.Updated,
	}
	if len(stored.Messages) > 0 {
		out.Messages = make([]Message, len(stored.Messages))
		copy(out.Messages, stored.Messages)
	} else {
		out.Messages = []Message{}
	}
	return out
}

// ReplaceHistory replaces the message history for a session.
func (sm *SessionManager) ReplaceHistory(sessionKey string, history []Message) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	stored := sm.getOrCreateLocked(sessionKey)
	if len(history) == 0 {
		stored.Messages = []Message{}
	} else {
		stored.Messages = make([]Message, len(history))
		copy(stored.Messages, history)
	}
	stored.Updated = time.Now()
}

func (sm *SessionManager) GetSummary(key string) string {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	session, ok := sm.sessions[key]
	if !ok {
		return ""
	}
	return session.Summary
}

func (sm *SessionManager) SetSummary(key string, summary string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	session, ok := sm.sessions[key]
	if ok {
		session.Summary = summary
		session.Updated = time.Now()
	}
}

// GetDroidSession returns the droid CLI session ID bound to this chat, or
// "" when none has been recorded yet.
func (sm *SessionManager) GetDroidSession(key string) string {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	session, ok := sm.sessions[key]
	if !ok {
		return ""
	}
	return session.DroidSession
}

func (sm *SessionManager) SetDroidSession(key, droidSessionID string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	session := sm.getOrCreateLocked(key)
	session.DroidSession = droidSessionID
	session.Updated = time.Now()
}

// GetAutonomy returns the per-session autonomy level override, or "" when
// the session follows the global config.
func (sm *SessionManager) GetAutonomy(key string) string {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	session, ok := sm.sessions[key]
	if !ok {
		return ""
	}
	return session.Autonomy
}

func (sm *SessionManager) SetAutonomy(key, level string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	session := sm.getOrCreateLocked(key)
	session.Autonomy = level
	session.Updated = time.Now()
}

// Reset clears the transcript and the droid session binding so the next
// message starts a fresh droid context. The autonomy override survives a
// reset; it is a user preference, not conversation state.
func (sm *SessionManager) Reset(key string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	session, ok := sm.sessions[key]
	if !ok {
		return
	}
	session.Messages = []Message{}
	session.Summary = ""
	session.DroidSession = ""
	session.Updated = time.Now()
}

func (sm *SessionManager) TruncateHistory(key string, keepLast int) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	session, ok := sm.sessions[key]
	if !ok {
		return
	}

	if keepLast <= 0 {
		session.Messages = []Message{}
		session.Updated = time.Now()
		return
	}

	if len(session.Messages) <= keepLast {
		return
	}

	session.Messages = session.Messages[len(session.Messages)-keepLast:]
	session.Updated = time.Now()
}

func (sm *SessionManager) Save(key string) error {
	if sm.storage == "" {
		return nil
	}
	saveStartedAt := time.Now()

	// Validate key to avoid invalid filenames and path traversal.
	if key == "" || key == "." || key == ".." || key != filepath.Base(key) || strings.Contains(key, "/") || strings.Contains(key, "\\") {
		return os.ErrInvalid
	}

	// Snapshot under read lock, then perform slow file I/O after unlock.
	sm.mu.RLock()
	stored, ok := sm.sessions[key]
	if !ok {
		sm.mu.RUnlock()
		return nil
	}
	snapshot := copySession(stored)
	sm.mu.RUnlock()

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}

	sessionPath := filepath.Join(sm.storage, key+".json")
	tmpFile, err := os.CreateTemp(sm.storage, "session-*.tmp")
	if err != nil {
		return err
	}

	tmpPath := tmpFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Chmod(0644); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Sync(); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}

	if err := os.Rename(tmpPath, sessionPath); err != nil {
		return err
	}
	cleanup = false

	if elapsed := time.Since(saveStartedAt); elapsed >= sessionSaveWarnTime {
		logger.WarnCF("session", "Session save completed slowly", map[string]interface{}{
			"session_key": key,
			"path":        sessionPath,
			"duration_ms": elapsed.Milliseconds(),
		})
	}
	return nil
}

func (sm *SessionManager) loadSessions() error {
	files, err := readDir(sm.storage)
	if err != nil {
		return err
	}

	for _, file := range files {
		if file.IsDir() {
			continue
		}

		if filepath.Ext(file.Name()) != ".json" {
			continue
		}

		sessionPath := filepath.Join(sm.storage, file.Name())
		data, err := readFile(sessionPath)
		if err != nil {
			continue
		}

		var session Session
		if err := json.Unmarshal(data, &session); err != nil {
			continue
		}

		sm.mu.Lock()
		sm.sessions[session.Key] = &session
		sm.mu.Unlock()
	}

	return nil
}

func (sm *SessionManager) loadSessionsWithTimeout(timeout time.Duration) error {
	if timeout <= 0 {
		return sm.loadSessions()
	}

	done := make(chan error, 1)
	go func() {
		done <- sm.loadSessions()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		return errSessionLoadTimed
	}
}
