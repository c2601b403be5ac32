package events

import (
	"github.com/berfenger/oigshield2mqtt/internal/core/domain"
	"github.com/berfenger/oigshield2mqtt/internal/core/shield"

	"github.com/asynkron/protoactor-go/eventstream"
)

// StreamAuditor publishes shield audit events on the actor event stream.
type StreamAuditor struct {
	Stream *eventstream.EventStream
}

func (a StreamAuditor) Emit(event shield.AuditEvent) {
	a.Stream.Publish(domain.ShieldAuditEvent{Event: event})
}

var _ shield.Auditor = StreamAuditor{}
