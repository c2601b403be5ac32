package domain

import (
	"time"

	"github.com/berfenger/oigshield2mqtt/internal/core/shield"
	"github.com/berfenger/oigshield2mqtt/pkg/oigcloud"
)

const (
	ACTOR_ID_MASTER       = "master"
	ACTOR_ID_CLOUD        = "cloud"
	ACTOR_ID_TELEMETRY    = "telemetry"
	ACTOR_ID_MQTT         = "mqtt"
	ACTOR_ID_SHIELD       = "shield"
	ACTOR_ID_HA_DISCOVERY = "hadiscovery"
)

type GetStatsRequest struct {
	ActorRequestMixIn
}

type GetStatsResponse struct {
	ActorResponseMixIn
	BoxId string
	Box   oigcloud.BoxStats
}

// Box write operations served by the cloud actor.
const (
	BOX_OP_SET_BOX_MODE            = "set_box_mode"
	BOX_OP_SET_GRID_DELIVERY       = "set_grid_delivery"
	BOX_OP_SET_GRID_DELIVERY_LIMIT = "set_grid_delivery_limit"
	BOX_OP_SET_BOILER_MODE         = "set_boiler_mode"
)

// BoxControlRequest asks the cloud actor for a single box write. A request
// still waiting in the cloud actor after Deadline is answered with
// context.DeadlineExceeded and never reaches the box.
type BoxControlRequest struct {
	ActorRequestMixIn
	Op       string
	Value    int
	Deadline time.Time
}

type BoxControlResponse struct {
	ActorResponseMixIn
}

type SubmitCommandRequest struct {
	ActorRequestMixIn
	Name   string
	Params any
}

type SubmitCommandResponse struct {
	ActorResponseMixIn
	Result shield.SubmitResult
}

type GetShieldStatusRequest struct {
	ActorRequestMixIn
}

type GetShieldStatusResponse struct {
	ActorResponseMixIn
	Status ShieldStatus
}

type PublishMessageRequest struct {
	ActorRequestMixIn
	Topic   string
	Payload string
	Retain  bool
}

type PublishMessageResponse struct {
	ActorResponseMixIn
}

type PublishSensorUpdateRequest struct {
	ActorRequestMixIn
	Retain bool
	Event  SensorUpdateEvent
}

type PublishSensorUpdateResponse struct {
	ActorResponseMixIn
}

type PublishDiscoveryRequest struct {
	ActorRequestMixIn
	Sensors      []GenericSensor
	Selects      []GenericSelect
	InputNumbers []GenericInputNumber
}

type PublishDiscoveryResponse struct {
	ActorResponseMixIn
}

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}
