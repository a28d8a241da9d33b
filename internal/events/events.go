// Package events defines the lifecycle notifications a build session emits
// and the sinks that carry them. Sinks are optional collaborators: the
// engine publishes fire-and-forget and treats sink failures as warnings,
// never as build failures.
package events

import (
	"context"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/docgen/internal/logfields"
)

// Type names one lifecycle event kind. The dotted form doubles as the
// subject suffix on message-bus sinks.
type Type string

const (
	TypeSessionStarted   Type = "session.started"
	TypeBuilderFinished  Type = "builder.finished"
	TypeTargetBuilt      Type = "target.built"
	TypeSessionCompleted Type = "session.completed"
)

// Event is one lifecycle notification. Fields beyond Type, SessionID and
// Timestamp are populated per event kind.
type Event struct {
	Type      Type      `json:"type"`
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`

	Document   string  `json:"document,omitempty"`
	Target     string  `json:"target,omitempty"`
	Builder    string  `json:"builder,omitempty"`
	Status     string  `json:"status,omitempty"`
	Output     string  `json:"output,omitempty"`
	Error      string  `json:"error,omitempty"`
	DurationMS float64 `json:"duration_ms,omitempty"`

	// Session completion summary.
	Outcome string `json:"outcome,omitempty"`
	Built   int    `json:"built,omitempty"`
	Failed  int    `json:"failed,omitempty"`
}

// SessionStarted marks the beginning of a render session.
func SessionStarted(sessionID string) Event {
	return Event{Type: TypeSessionStarted, SessionID: sessionID, Timestamp: time.Now().UTC()}
}

// BuilderFinished marks one builder reaching a terminal state.
func BuilderFinished(sessionID, document, builderName, status string, err error) Event {
	ev := Event{
		Type:      TypeBuilderFinished,
		SessionID: sessionID,
		Timestamp: time.Now().UTC(),
		Document:  document,
		Builder:   builderName,
		Status:    status,
	}
	if err != nil {
		ev.Error = err.Error()
	}
	return ev
}

// TargetBuilt marks one document-target pipeline reaching a terminal state.
func TargetBuilt(sessionID, document, targetName, status, output string, d time.Duration, err error) Event {
	ev := Event{
		Type:       TypeTargetBuilt,
		SessionID:  sessionID,
		Timestamp:  time.Now().UTC(),
		Document:   document,
		Target:     targetName,
		Status:     status,
		Output:     output,
		DurationMS: float64(d.Milliseconds()),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	return ev
}

// SessionCompleted summarizes a finished session. outcome is one of
// success, partial, failed, canceled.
func SessionCompleted(sessionID, outcome string, built, failed int) Event {
	return Event{
		Type:      TypeSessionCompleted,
		SessionID: sessionID,
		Timestamp: time.Now().UTC(),
		Outcome:   outcome,
		Built:     built,
		Failed:    failed,
	}
}

// Sink receives lifecycle events. Publish must be safe for concurrent use.
type Sink interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// NoopSink discards every event.
type NoopSink struct{}

func (NoopSink) Publish(context.Context, Event) error { return nil }
func (NoopSink) Close() error                         { return nil }

// LogSink writes events to the structured log at debug level, with session
// boundaries at info.
type LogSink struct{}

func (LogSink) Publish(_ context.Context, ev Event) error {
	attrs := []any{
		slog.String("event", string(ev.Type)),
		logfields.SessionID(ev.SessionID),
	}
	if ev.Document != "" {
		attrs = append(attrs, logfields.Document(ev.Document))
	}
	if ev.Target != "" {
		attrs = append(attrs, logfields.Target(ev.Target))
	}
	if ev.Status != "" {
		attrs = append(attrs, logfields.Status(ev.Status))
	}
	if ev.Error != "" {
		attrs = append(attrs, slog.String(logfields.KeyError, ev.Error))
	}

	switch ev.Type {
	case TypeSessionStarted:
		slog.Info("Session started", attrs...)
	case TypeSessionCompleted:
		slog.Info("Session completed", append(attrs,
			slog.String("outcome", ev.Outcome),
			slog.Int("built", ev.Built),
			slog.Int("failed", ev.Failed))...)
	default:
		slog.Debug("Build event", attrs...)
	}
	return nil
}

func (LogSink) Close() error { return nil }
