package security

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// AuditEvent is one tool call or translation with identifiers hashed
type AuditEvent struct {
	Event        string    `json:"event"`
	Tool         string    `json:"tool,omitempty"`
	Backend      string    `json:"backend,omitempty"`
	APIKeyHash   string    `json:"api_key_hash,omitempty"`
	SQLHash      string    `json:"sql_hash,omitempty"`
	QuestionHash string    `json:"question_hash,omitempty"`
	Status       string    `json:"status"`
	ErrorKind    string    `json:"error_kind,omitempty"`
	DurationMs   int64     `json:"duration_ms"`
	Timestamp    time.Time `json:"@timestamp"`
}

// AuditSink receives audit events in addition to the log
type AuditSink interface {
	Write(ctx context.Context, evt AuditEvent) error
}

// auditQueueSize bounds the events waiting for the sink. Events beyond it
// are dropped from the sink and kept in the log only.
const auditQueueSize = 256

// AuditLogger logs security-relevant events with hashed identifiers. Sink
// writes happen on one background worker; Close flushes it.
type AuditLogger struct {
	enabled bool
	sink    AuditSink
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	events chan AuditEvent
	done   chan struct{}
}

func NewAuditLogger(enabled bool, sink AuditSink) *AuditLogger {
	a := &AuditLogger{enabled: enabled, sink: sink, timeout: 5 * time.Second}
	if enabled && sink != nil {
		a.events = make(chan AuditEvent, auditQueueSize)
		a.done = make(chan struct{})
		go a.drain()
	}
	return a
}

// Close stops accepting sink writes and waits for queued ones to finish
func (a *AuditLogger) Close() error {
	if a == nil || a.events == nil {
		return nil
	}
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.events)
	}
	a.mu.Unlock()
	<-a.done
	return nil
}

func (a *AuditLogger) drain() {
	defer close(a.done)
	for evt := range a.events {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		if err := a.sink.Write(ctx, evt); err != nil {
			log.Warn().Err(err).Str("event", evt.Event).Msg("audit sink write failed")
		}
		cancel()
	}
}

// LogToolCall records a dispatched tool call
func (a *AuditLogger) LogToolCall(tool, backend, apiKey, status, errKind string, duration time.Duration) {
	if !a.enabled {
		return
	}
	a.emit(AuditEvent{
		Event:      "tool_audit",
		Tool:       tool,
		Backend:    backend,
		APIKeyHash: HashID(apiKey),
		Status:     status,
		ErrorKind:  errKind,
		DurationMs: duration.Milliseconds(),
	})
}

// LogTranslation records a natural-language translation. Question and SQL
// are never logged in clear.
func (a *AuditLogger) LogTranslation(question, generatedSQL, apiKey, status string, duration time.Duration) {
	if !a.enabled {
		return
	}
	a.emit(AuditEvent{
		Event:        "nl2sql_audit",
		Tool:         "natural_language_to_sql",
		APIKeyHash:   HashID(apiKey),
		QuestionHash: HashID(question),
		SQLHash:      HashID(generatedSQL),
		Status:       status,
		DurationMs:   duration.Milliseconds(),
	})
}

func (a *AuditLogger) emit(evt AuditEvent) {
	evt.Timestamp = time.Now().UTC()

	log.Info().
		Str("event", evt.Event).
		Str("tool", evt.Tool).
		Str("backend", evt.Backend).
		Str("api_key_hash", evt.APIKeyHash).
		Str("sql_hash", evt.SQLHash).
		Str("question_hash", evt.QuestionHash).
		Str("status", evt.Status).
		Str("error_kind", evt.ErrorKind).
		Int64("duration_ms", evt.DurationMs).
		Msg("audit")

	if a.events == nil {
		return
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return
	}
	select {
	case a.events <- evt:
	default:
		log.Warn().Str("event", evt.Event).Msg("audit queue full, sink write dropped")
	}
}

// HashID returns the first 16 hex chars of the SHA-256 of s, or empty
// string for empty input
func HashID(s string) string {
	if s == "" {
		return ""
	}
	h := sha256.Sum256([]byte(s))
	return fmt.Sprintf("%x", h)[:16]
}
