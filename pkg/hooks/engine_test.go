package hooks

import (
	"context"
	"sync"
	"testing"
)

type memorySink struct {
	mu      sync.Mutex
	entries []AuditEntry
}

func (s *memorySink) Write(entry AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *memorySink) all() []AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]AuditEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

type recordingHandler struct {
	name   string
	result Result
	mu     sync.Mutex
	events []Event
}

func (h *recordingHandler) Name() string { return h.name }

func (h *recordingHandler) Handle(_ context.Context, ev Event, _ Context) Result {
	h.mu.Lock()
	h.events = append(h.events, ev)
	h.mu.Unlock()
	return h.result
}

func (h *recordingHandler) seen() []Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Event, len(h.events))
	copy(out, h.events)
	return out
}

type panicHandler struct{}

func (h *panicHandler) Name() string { return "panicky" }

func (h *panicHandler) Handle(_ context.Context, _ Event, _ Context) Result {
	panic("boom")
}

func TestEngineEmitDispatchesAndAudits(t *testing.T) {
	engine := NewEngine(true)
	handler := &recordingHandler{name: "rec", result: Result{Status: StatusOK, Message: "done"}}
	sink := &memorySink{}
	engine.Register(handler)
	engine.SetAuditSink(sink)

	engine.Emit(context.Background(), EventBeforeDroid, Context{
		TurnID:     "turn-9",
		SessionKey: "telegram:42",
		Channel:    "telegram",
		ChatID:     "42",
	})

	seen := handler.seen()
	if len(seen) != 1 || seen[0] != EventBeforeDroid {
		t.Fatalf("expected handler to see before_droid once, got %v", seen)
	}

	entries := sink.all()
	if len(entries) != 1 {
		t.Fatalf("expected 1 audit entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.Event != EventBeforeDroid {
		t.Errorf("expected event before_droid, got %s", entry.Event)
	}
	if entry.Handler != "rec" {
		t.Errorf("expected handler 'rec', got %q", entry.Handler)
	}
	if entry.Status != StatusOK {
		t.Errorf("expected status ok, got %q", entry.Status)
	}
	if entry.TurnID != "turn-9" || entry.SessionKey != "telegram:42" {
		t.Errorf("context fields not carried into audit entry: %+v", entry)
	}
	if entry.Timestamp.IsZero() {
		t.Error("expected timestamp to be filled in")
	}
}

func TestEngineDisabledSkipsHandlers(t *testing.T) {
	engine := NewEngine(false)
	handler := &recordingHandler{name: "rec", result: Result{Status: StatusOK}}
	sink := &memorySink{}
	engine.Register(handler)
	engine.SetAuditSink(sink)

	engine.Emit(context.Background(), EventAfterTurn, Context{TurnID: "turn-1"})

	if len(handler.seen()) != 0 {
		t.Error("expected no handler calls when engine disabled")
	}
	if len(sink.all()) != 0 {
		t.Error("expected no audit entries when engine disabled")
	}
}

func TestEngineHandlerPanicIsCaptured(t *testing.T) {
	engine := NewEngine(true)
	after := &recordingHandler{name: "after", result: Result{Status: StatusOK}}
	sink := &memorySink{}
	engine.Register(&panicHandler{})
	engine.Register(after)
	engine.SetAuditSink(sink)

	engine.Emit(context.Background(), EventOnError, Context{TurnID: "turn-2"})

	if len(after.seen()) != 1 {
		t.Fatal("expected handler after the panicking one to still run")
	}
	entries := sink.all()
	if len(entries) != 2 {
		t.Fatalf("expected 2 audit entries, got %d", len(entries))
	}
	if entries[0].Status != StatusError {
		t.Errorf("expected panicking handler to audit as error, got %q", entries[0].Status)
	}
	if entries[0].Message != "handler panicked" {
		t.Errorf("unexpected panic message: %q", entries[0].Message)
	}
	if entries[1].Status != StatusOK {
		t.Errorf("expected second handler to audit as ok, got %q", entries[1].Status)
	}
}

func TestEngineEmitWithoutSink(t *testing.T) {
	engine := NewEngine(true)
	handler := &recordingHandler{name: "rec", result: Result{Status: StatusOK}}
	engine.Register(handler)

	engine.Emit(context.Background(), EventBeforeTurn, Context{TurnID: "turn-3"})

	if len(handler.seen()) != 1 {
		t.Error("expected handler to run even without an audit sink")
	}
}

func TestEngineHandlerCount(t *testing.T) {
	engine := NewEngine(true)
	if engine.HandlerCount() != 0 {
		t.Fatalf("expected 0 handlers, got %d", engine.HandlerCount())
	}
	engine.Register(&recordingHandler{name: "a"})
	engine.Register(nil)
	engine.Register(&recordingHandler{name: "b"})
	if engine.HandlerCount() != 2 {
		t.Fatalf("expected 2 handlers (nil skipped), got %d", engine.HandlerCount())
	}
	if !engine.Enabled() {
		t.Error("expected engine to report enabled")
	}
}
