package domain

import (
	"fmt"

	"github.com/berfenger/oigshield2mqtt/internal/core/shield"
)

type SensorUpdateEventMixIn struct {
	Id string
}

type SensorUpdateEvent interface {
	SensorUpdateEvent() string
	SensorId() string
}

func (e SensorUpdateEventMixIn) SensorUpdateEvent() string {
	return fmt.Sprintf("%T", e)
}

func (e SensorUpdateEventMixIn) SensorId() string {
	return e.Id
}

type FloatSensorUpdateEvent struct {
	SensorUpdateEventMixIn
	Value    float64
	Decimals uint
}

type TextSensorUpdateEvent struct {
	SensorUpdateEventMixIn
	Value string
}

type SelectUpdateEvent struct {
	SensorUpdateEventMixIn
	Value string
}

type InputNumberUpdateEvent struct {
	SensorUpdateEventMixIn
	Value    float64
	Decimals uint
}

type BridgeStateUpdateEvent struct {
	SensorUpdateEventMixIn
	Value bool
}

// ShieldAuditEvent carries a shield audit event over the event stream.
type ShieldAuditEvent struct {
	Event shield.AuditEvent
}
