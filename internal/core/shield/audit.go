package shield

import (
	"fmt"
	"time"

	"github.com/spf13/cast"
	"go.uber.org/zap"
)

type EventType string

const (
	EventSkipped         EventType = "skipped"
	EventIgnored         EventType = "ignored"
	EventQueued          EventType = "queued"
	EventChangeRequested EventType = "change_requested"
	EventStarted         EventType = "started"
	EventCompleted       EventType = "completed"
	EventTimeout         EventType = "timeout"
	EventReleased        EventType = "released"
	EventFailed          EventType = "failed"
)

// AuditEvent carries everything needed to describe a change without looking
// at live state.
type AuditEvent struct {
	Type      EventType      `json:"event_type"`
	CommandID string         `json:"command_id,omitempty"`
	Name      string         `json:"service"`
	Params    any            `json:"params,omitempty"`
	Reason    string         `json:"reason,omitempty"`
	Expected  ExpectedState  `json:"expected,omitempty"`
	Original  map[string]any `json:"original,omitempty"`
	At        time.Time      `json:"at"`
}

// Changes renders one "resource: 'from' → 'to'" line per expected resource.
func (e AuditEvent) Changes() []string {
	out := make([]string, 0, len(e.Expected))
	for _, exp := range e.Expected {
		from := "unknown"
		if v, ok := e.Original[exp.ResourceID]; ok {
			from = cast.ToString(v)
		}
		out = append(out, fmt.Sprintf("%s: '%s' → '%s'", exp.ResourceID, from, cast.ToString(exp.Value)))
	}
	return out
}

type Auditor interface {
	Emit(event AuditEvent)
}

type AuditorFunc func(event AuditEvent)

func (f AuditorFunc) Emit(event AuditEvent) {
	f(event)
}

type NopAuditor struct{}

func (NopAuditor) Emit(AuditEvent) {}

type MultiAuditor []Auditor

func (m MultiAuditor) Emit(event AuditEvent) {
	for _, a := range m {
		a.Emit(event)
	}
}

// SafeAuditor shields the coordinator from a misbehaving sink.
type SafeAuditor struct {
	Auditor Auditor
	Logger  *zap.Logger
}

func (s SafeAuditor) Emit(event AuditEvent) {
	defer func() {
		if r := recover(); r != nil && s.Logger != nil {
			s.Logger.Error("shield: audit sink panicked, event dropped",
				zap.String("event", string(event.Type)), zap.Any("panic", r))
		}
	}()
	if s.Auditor != nil {
		s.Auditor.Emit(event)
	}
}

type LogAuditor struct {
	Logger *zap.Logger
}

func (l LogAuditor) Emit(event AuditEvent) {
	l.Logger.Info("shield event",
		zap.String("event", string(event.Type)),
		zap.String("service", event.Name),
		zap.String("command_id", event.CommandID),
		zap.String("reason", event.Reason),
		zap.Strings("changes", event.Changes()),
	)
}

func newEvent(t EventType, cmd *Command, reason string, at time.Time) AuditEvent {
	ev := AuditEvent{
		Type:      t,
		CommandID: cmd.ID,
		Name:      cmd.Name,
		Params:    cmd.Params,
		Reason:    reason,
		Expected:  cmd.Expected.clone(),
		At:        at,
	}
	if cmd.Original != nil {
		ev.Original = make(map[string]any, len(cmd.Original))
		for k, v := range cmd.Original {
			ev.Original[k] = v
		}
	}
	return ev
}
