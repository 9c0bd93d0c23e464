package channels

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/droidgram/droidgram/pkg/bus"
)

func TestBaseChannelIsAllowed(t *testing.T) {
	tests := []struct {
		name      string
		allowList []string
		senderID  string
		want      bool
	}{
		{
			name:      "empty allowlist allows all",
			allowList: nil,
			senderID:  "anyone",
			want:      true,
		},
		{
			name:      "compound sender matches numeric allowlist",
			allowList: []string{"123456"},
			senderID:  "123456|alice",
			want:      true,
		},
		{
			name:      "compound sender matches username allowlist",
			allowList: []string{"@alice"},
			senderID:  "123456|alice",
			want:      true,
		},
		{
			name:      "numeric sender matches legacy compound allowlist",
			allowList: []string{"123456|alice"},
			senderID:  "123456",
			want:      true,
		},
		{
			name:      "non matching sender is denied",
			allowList: []string{"123456"},
			senderID:  "654321|bob",
			want:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := NewBaseChannel("test", nil, nil, tt.allowList)
			if got := ch.IsAllowed(tt.senderID); got != tt.want {
				t.Fatalf("IsAllowed(%q) = %v, want %v", tt.senderID, got, tt.want)
			}
		})
	}
}

func TestBaseChannelRunningConcurrentAccess(t *testing.T) {
	ch := NewBaseChannel("test", nil, nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ch.setRunning(i%2 == 0)
			_ = ch.IsRunning()
		}(i)
	}
	wg.Wait()
}

func TestBaseChannelIsDuplicate_WithTTL(t *testing.T) {
	ch := NewBaseChannel("test", nil, nil, nil)
	now := time.Date(2026, 2, 16, 0, 0, 0, 0, time.UTC)
	ch.nowFn = func() time.Time { return now }
	ch.dedupTTL = 1 * time.Minute

	if ch.isDuplicate("m1") {
		t.Fatalf("first message should not be duplicate")
	}
	if !ch.isDuplicate("m1") {
		t.Fatalf("second message within ttl should be duplicate")
	}

	now = now.Add(2 * time.Minute)
	if ch.isDuplicate("m1") {
		t.Fatalf("message after ttl should not be duplicate")
	}
}

func TestBaseChannelIsDuplicate_DeterministicBoundedEviction(t *testing.T) {
	ch := NewBaseChannel("test", nil, nil, nil)
	now := time.Date(2026, 2, 16, 0, 0, 0, 0, time.UTC)
	ch.nowFn = func() time.Time { return now }
	ch.dedupTTL = 1 * time.Hour
	ch.dedupMax = 3

	if ch.isDuplicate("a") || ch.isDuplicate("b") || ch.isDuplicate("c") {
		t.Fatalf("first inserts should not be duplicates")
	}
	if len(ch.processedIDs) != 3 {
		t.Fatalf("expected map size 3, got %d", len(ch.processedIDs))
	}

	// Insert d, should evict oldest valid entry (a).
	if ch.isDuplicate("d") {
		t.Fatalf("new id d should not be duplicate")
	}
	if len(ch.processedIDs) != 3 {
		t.Fatalf("expected bounded map size 3 after eviction, got %d", len(ch.processedIDs))
	}
	if _, ok := ch.processedIDs["a"]; ok {
		t.Fatalf("expected oldest id a to be evicted")
	}
	if _, ok := ch.processedIDs["b"]; !ok {
		t.Fatalf("expected b to remain")
	}
	if _, ok := ch.processedIDs["c"]; !ok {
		t.Fatalf("expected c to remain")
	}
	if _, ok := ch.processedIDs["d"]; !ok {
		t.Fatalf("expected d to be present")
	}
}

func TestBaseChannelHandleMessagePublishesInbound(t *testing.T) {
	b := bus.NewMessageBus()
	ch := NewBaseChannel("test", nil, b, nil)

	ch.HandleMessage("123|alice", "chat42", "hello", []string{"/tmp/a.ogg"}, map[string]string{
		"message_id": "7",
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	msg, ok := b.ConsumeInbound(ctx)
	if !ok {
		t.Fatal("expected an inbound message on the bus")
	}
	if msg.Channel != "test" || msg.SenderID != "123|alice" || msg.ChatID != "chat42" {
		t.Fatalf("unexpected envelope: %+v", msg)
	}
	if msg.SessionKey != "test:chat42" {
		t.Fatalf("session key = %q, want test:chat42", msg.SessionKey)
	}
	if len(msg.Media) != 1 || msg.Media[0] != "/tmp/a.ogg" {
		t.Fatalf("media = %v", msg.Media)
	}
	if msg.Metadata["message_id"] != "7" {
		t.Fatalf("metadata = %v", msg.Metadata)
	}
}

func TestBaseChannelHandleMessageBlocksDisallowedSender(t *testing.T) {
	b := bus.NewMessageBus()
	ch := NewBaseChannel("test", nil, b, []string{"999"})

	ch.HandleMessage("123|mallory", "chat1", "hi", nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, ok := b.ConsumeInbound(ctx); ok {
		t.Fatal("disallowed sender should not reach the bus")
	}
}

func TestBaseChannelStashMediaMovesIntoDir(t *testing.T) {
	ch := NewBaseChannel("test", nil, nil, nil)
	mediaDir := t.TempDir()
	ch.SetMediaDir(mediaDir)

	src := filepath.Join(t.TempDir(), "download.tmp")
	if err := os.WriteFile(src, []byte("voice-bytes"), 0o644); err != nil {
		t.Fatalf("write src: %v", err)
	}

	dest := ch.stashMedia(src, "voice note.ogg")
	if dest == "" {
		t.Fatal("expected a stashed path")
	}
	if filepath.Dir(dest) != mediaDir {
		t.Fatalf("stashed outside media dir: %s", dest)
	}
	if !strings.HasSuffix(dest, "-voice note.ogg") {
		t.Fatalf("stashed name should keep the original filename, got %s", dest)
	}
	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read stashed file: %v", err)
	}
	if string(data) != "voice-bytes" {
		t.Fatalf("stashed content = %q", data)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Fatalf("source temp file should be consumed, stat err = %v", err)
	}
}

func TestBaseChannelStashMediaWithoutDirConsumesTemp(t *testing.T) {
	ch := NewBaseChannel("test", nil, nil, nil)

	src := filepath.Join(t.TempDir(), "download.tmp")
	if err := os.WriteFile(src, []byte("x"), 0o644); err != nil {
		t.Fatalf("write src: %v", err)
	}

	if dest := ch.stashMedia(src, "a.bin"); dest != "" {
		t.Fatalf("expected empty path without a media dir, got %s", dest)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Fatalf("source temp file should be removed, stat err = %v", err)
	}
}
