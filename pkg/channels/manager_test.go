package channels

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/droidgram/droidgram/pkg/bus"
	"github.com/droidgram/droidgram/pkg/config"
)

type fakeChannel struct {
	name     string
	running  atomic.Bool
	startErr error
	stops    atomic.Int32
	sent     chan bus.OutboundMessage
}

func newFakeChannel(name string) *fakeChannel {
	return &fakeChannel{
		name: name,
		sent: make(chan bus.OutboundMessage, 8),
	}
}

func (f *fakeChannel) Name() string { return f.name }

func (f *fakeChannel) Start(ctx context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.running.Store(true)
	return nil
}

func (f *fakeChannel) Stop(ctx context.Context) error {
	f.running.Store(false)
	f.stops.Add(1)
	return nil
}

func (f *fakeChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	f.sent <- msg
	return nil
}

func (f *fakeChannel) IsRunning() bool { return f.running.Load() }

func newTestManager(chans ...*fakeChannel) (*Manager, *bus.MessageBus) {
	b := bus.NewMessageBus()
	m := &Manager{
		channels: make(map[string]Channel),
		bus:      b,
		config:   &config.Config{},
	}
	for _, ch := range chans {
		m.channels[ch.name] = ch
	}
	return m, b
}

func TestNewManagerRejectsEnabledChannelWithoutToken(t *testing.T) {
	cfg := &config.Config{}
	cfg.Channels.Telegram.Enabled = true

	if _, err := NewManager(cfg, bus.NewMessageBus()); err == nil {
		t.Fatal("expected error for enabled telegram channel without token")
	}

	cfg = &config.Config{}
	cfg.Channels.Discord.Enabled = true

	if _, err := NewManager(cfg, bus.NewMessageBus()); err == nil {
		t.Fatal("expected error for enabled discord channel without token")
	}
}

func TestNewManagerWithNoChannelsEnabled(t *testing.T) {
	m, err := NewManager(&config.Config{}, bus.NewMessageBus())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := m.GetEnabledChannels(); len(got) != 0 {
		t.Fatalf("expected no enabled channels, got %v", got)
	}
	if _, ok := m.GetChannel("telegram"); ok {
		t.Fatal("expected no telegram channel")
	}
}

func TestManagerGetEnabledChannelsSorted(t *testing.T) {
	m, _ := newTestManager(newFakeChannel("zeta"), newFakeChannel("alpha"))

	got := m.GetEnabledChannels()
	if len(got) != 2 || got[0] != "alpha" || got[1] != "zeta" {
		t.Fatalf("expected sorted channel names, got %v", got)
	}
}

func TestManagerRoutesOutboundToNamedChannel(t *testing.T) {
	alpha := newFakeChannel("alpha")
	beta := newFakeChannel("beta")
	m, b := newTestManager(alpha, beta)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := m.StartAll(ctx); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	defer m.StopAll(context.Background())

	msg := bus.OutboundMessage{Channel: "beta", ChatID: "42", Content: "hello"}
	if err := b.PublishOutbound(ctx, msg); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case got := <-beta.sent:
		if got.ChatID != "42" || got.Content != "hello" {
			t.Fatalf("unexpected delivery: %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery to beta")
	}

	select {
	case got := <-alpha.sent:
		t.Fatalf("alpha should not receive beta's message, got %+v", got)
	default:
	}
}

func TestManagerSkipsUnknownOutboundChannel(t *testing.T) {
	alpha := newFakeChannel("alpha")
	m, b := newTestManager(alpha)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := m.StartAll(ctx); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	defer m.StopAll(context.Background())

	if err := b.PublishOutbound(ctx, bus.OutboundMessage{Channel: "nope", ChatID: "1"}); err != nil {
		t.Fatalf("publish unknown: %v", err)
	}
	if err := b.PublishOutbound(ctx, bus.OutboundMessage{Channel: "alpha", ChatID: "2", Content: "after"}); err != nil {
		t.Fatalf("publish known: %v", err)
	}

	// The unknown-channel message is dropped and the loop keeps going.
	select {
	case got := <-alpha.sent:
		if got.ChatID != "2" {
			t.Fatalf("unexpected delivery: %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("delivery loop stalled after unknown channel")
	}
}

func TestManagerStartAllFailsOnlyWhenEveryChannelFails(t *testing.T) {
	bad := newFakeChannel("bad")
	bad.startErr = errors.New("connect refused")
	good := newFakeChannel("good")

	m, _ := newTestManager(bad, good)
	if err := m.StartAll(context.Background()); err != nil {
		t.Fatalf("partial failure should not error, got %v", err)
	}
	m.StopAll(context.Background())

	allBad := newFakeChannel("bad")
	allBad.startErr = errors.New("connect refused")
	m2, _ := newTestManager(allBad)
	if err := m2.StartAll(context.Background()); err == nil {
		t.Fatal("expected error when every channel fails to start")
	}
	m2.StopAll(context.Background())
}

func TestManagerStopAllStopsRunningChannels(t *testing.T) {
	alpha := newFakeChannel("alpha")
	beta := newFakeChannel("beta")
	m, _ := newTestManager(alpha, beta)

	if err := m.StartAll(context.Background()); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}

	m.StopAll(context.Background())

	if alpha.stops.Load() != 1 || beta.stops.Load() != 1 {
		t.Fatalf("expected each channel stopped once, got alpha=%d beta=%d",
			alpha.stops.Load(), beta.stops.Load())
	}
	if alpha.IsRunning() || beta.IsRunning() {
		t.Fatal("channels should not be running after StopAll")
	}
}
