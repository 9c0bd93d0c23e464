package hooks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/droidgram/droidgram/pkg/logger"
)

// Engine fans lifecycle events out to registered handlers and records
// each result through the audit sink. Emit never fails the turn that
// triggered it: handler panics become error results and sink writes
// are queued, not awaited.
type Engine struct {
	mu       sync.RWMutex
	enabled  bool
	handlers []Handler
	sink     AuditSink
}

func NewEngine(enabled bool) *Engine {
	return &Engine{enabled: enabled}
}

func (e *Engine) SetAuditSink(sink AuditSink) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sink = sink
}

func (e *Engine) Register(h Handler) {
	if h == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers = append(e.handlers, h)
}

func (e *Engine) Enabled() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.enabled
}

func (e *Engine) HandlerCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.handlers)
}

// Emit runs every registered handler for ev and audits the results.
func (e *Engine) Emit(ctx context.Context, ev Event, data Context) {
	e.mu.RLock()
	enabled := e.enabled
	handlers := make([]Handler, len(e.handlers))
	copy(handlers, e.handlers)
	sink := e.sink
	e.mu.RUnlock()

	if !enabled || len(handlers) == 0 {
		return
	}
	if data.Timestamp.IsZero() {
		data.Timestamp = time.Now().UTC()
	}

	for _, h := range handlers {
		start := time.Now()
		result := safeHandle(ctx, h, ev, data)
		if result.DurationMs == 0 {
			result.DurationMs = time.Since(start).Milliseconds()
		}
		if result.Status == StatusError {
			logger.WarnCF("hooks", "Hook handler failed", map[string]interface{}{
				"handler": h.Name(),
				"event":   string(ev),
				"error":   errString(result.Err),
			})
		}
		if sink == nil {
			continue
		}
		entry := AuditEntry{
			TurnID:     data.TurnID,
			Event:      ev,
			Handler:    h.Name(),
			Status:     result.Status,
			Message:    result.Message,
			Error:      errString(result.Err),
			DurationMs: result.DurationMs,
			Timestamp:  data.Timestamp,
			SessionKey: data.SessionKey,
			Channel:    data.Channel,
			ChatID:     data.ChatID,
			Metadata:   result.Metadata,
		}
		if err := sink.Write(entry); err != nil {
			logger.DebugCF("hooks", "Audit write failed", map[string]interface{}{
				"event": string(ev),
				"error": err.Error(),
			})
		}
	}
}

func safeHandle(ctx context.Context, h Handler, ev Event, data Context) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			result = Result{
				Status:  StatusError,
				Message: "handler panicked",
				Err:     fmt.Errorf("panic: %v", r),
			}
		}
	}()
	return h.Handle(ctx, ev, data)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
