// Package channels adapts chat surfaces (Telegram, Discord) onto the
// message bus. Each channel filters senders through an allowlist,
// normalizes inbound messages, and delivers chunked replies.
package channels

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/droidgram/droidgram/pkg/bus"
	"github.com/droidgram/droidgram/pkg/logger"
)

const (
	sendTimeout = 10 * time.Second

	defaultDedupTTL = 10 * time.Minute
	defaultDedupMax = 1000
)

// Channel is the contract every chat surface implements.
type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Send(ctx context.Context, msg bus.OutboundMessage) error
	IsRunning() bool
}

// BaseChannel carries the behavior shared by all surfaces: allowlist
// checks, inbound publishing, media stashing, and duplicate-update
// suppression (both Telegram and Discord redeliver on reconnect).
type BaseChannel struct {
	name      string
	config    interface{}
	bus       *bus.MessageBus
	allowFrom []string
	running   atomic.Bool

	// mediaDir is where inbound attachments land so droid can read
	// them. Empty disables downloads.
	mediaDir string

	dedupMu        sync.Mutex
	processedIDs   map[string]time.Time
	processedOrder []string
	dedupTTL       time.Duration
	dedupMax       int
	nowFn          func() time.Time
}

func NewBaseChannel(name string, config interface{}, messageBus *bus.MessageBus, allowFrom []string) *BaseChannel {
	return &BaseChannel{
		name:         name,
		config:       config,
		bus:          messageBus,
		allowFrom:    allowFrom,
		processedIDs: make(map[string]time.Time),
		dedupTTL:     defaultDedupTTL,
		dedupMax:     defaultDedupMax,
		nowFn:        time.Now,
	}
}

func (b *BaseChannel) Name() string {
	return b.name
}

func (b *BaseChannel) IsRunning() bool {
	return b.running.Load()
}

func (b *BaseChannel) setRunning(v bool) {
	b.running.Store(v)
}

// SetMediaDir enables attachment downloads into dir. Call before Start.
func (b *BaseChannel) SetMediaDir(dir string) {
	b.mediaDir = dir
}

// IsAllowed reports whether senderID passes the allowlist. An empty
// allowlist allows everyone. Sender IDs may be compound "id|username";
// allowlist entries may be a bare ID, "@username", or a compound.
func (b *BaseChannel) IsAllowed(senderID string) bool {
	if len(b.allowFrom) == 0 {
		return true
	}

	id, username := splitSenderID(senderID)
	for _, entry := range b.allowFrom {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if entry == senderID {
			return true
		}
		entryID, entryUser := splitSenderID(entry)
		if entryID != "" && entryID == id {
			return true
		}
		if entryUser != "" && username != "" && strings.EqualFold(entryUser, username) {
			return true
		}
	}
	return false
}

func splitSenderID(s string) (id, username string) {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '|'); i >= 0 {
		return strings.TrimSpace(s[:i]), strings.TrimPrefix(strings.TrimSpace(s[i+1:]), "@")
	}
	if strings.HasPrefix(s, "@") {
		return "", strings.TrimPrefix(s, "@")
	}
	return s, ""
}

// isDuplicate records id and reports whether it was already seen within
// the dedup TTL. The map is bounded; the oldest entry is evicted first.
func (b *BaseChannel) isDuplicate(id string) bool {
	if id == "" {
		return false
	}

	b.dedupMu.Lock()
	defer b.dedupMu.Unlock()

	now := b.nowFn()
	if seen, ok := b.processedIDs[id]; ok {
		if now.Sub(seen) < b.dedupTTL {
			return true
		}
		delete(b.processedIDs, id)
		for i, v := range b.processedOrder {
			if v == id {
				b.processedOrder = append(b.processedOrder[:i], b.processedOrder[i+1:]...)
				break
			}
		}
	}

	for len(b.processedIDs) >= b.dedupMax && len(b.processedOrder) > 0 {
		head := b.processedOrder[0]
		b.processedOrder = b.processedOrder[1:]
		delete(b.processedIDs, head)
	}

	b.processedIDs[id] = now
	b.processedOrder = append(b.processedOrder, id)
	return false
}

// HandleMessage publishes an inbound message on the bus. Senders that
// fail the allowlist are dropped before any work happens.
func (b *BaseChannel) HandleMessage(senderID, chatID, content string, mediaPaths []string, metadata map[string]string) {
	if b.bus == nil {
		return
	}
	if !b.IsAllowed(senderID) {
		logger.DebugCF(b.name, "Message rejected by allowlist", map[string]interface{}{
			"sender_id": senderID,
		})
		return
	}

	msg := bus.InboundMessage{
		Channel:    b.name,
		SenderID:   senderID,
		ChatID:     chatID,
		Content:    content,
		SessionKey: fmt.Sprintf("%s:%s", b.name, chatID),
		Media:      mediaPaths,
		Metadata:   metadata,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.bus.PublishInbound(ctx, msg); err != nil {
		logger.WarnCF(b.name, "Publishing inbound message failed", map[string]interface{}{
			"chat_id": chatID,
			"error":   err.Error(),
		})
	}
}

// stashMedia moves a downloaded temp file into the media dir under a
// collision-proof name and returns the new path, or "" on failure. The
// temp file is always consumed.
func (b *BaseChannel) stashMedia(tmpPath, name string) string {
	if b.mediaDir == "" {
		os.Remove(tmpPath)
		return ""
	}
	if err := os.MkdirAll(b.mediaDir, 0o755); err != nil {
		logger.WarnCF(b.name, "Creating media dir failed", map[string]interface{}{
			"dir":   b.mediaDir,
			"error": err.Error(),
		})
		os.Remove(tmpPath)
		return ""
	}

	base := filepath.Base(strings.TrimSpace(name))
	if base == "" || base == "." || base == string(filepath.Separator) {
		base = "file"
	}
	dest := filepath.Join(b.mediaDir, uuid.NewString()[:8]+"-"+base)
	if err := moveFile(tmpPath, dest); err != nil {
		logger.WarnCF(b.name, "Stashing media failed", map[string]interface{}{
			"dest":  dest,
			"error": err.Error(),
		})
		os.Remove(tmpPath)
		return ""
	}
	return dest
}

// moveFile renames src to dest, falling back to copy+remove when they
// sit on different mounts (the temp dir usually does).
func moveFile(src, dest string) error {
	if err := os.Rename(src, dest); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dest)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dest)
		return err
	}
	return os.Remove(src)
}

// appendContent joins message fragments with a newline.
func appendContent(content, suffix string) string {
	if content == "" {
		return suffix
	}
	return content + "\n" + suffix
}
