package actor

import (
	"errors"
	"fmt"
	"time"

	"github.com/berfenger/oigshield2mqtt/internal/config"
	"github.com/berfenger/oigshield2mqtt/internal/core/domain"
	"github.com/berfenger/oigshield2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

// HADiscoveryActor publishes the Home Assistant discovery config once the
// cloud and MQTT actors are up and the box id is known.
type HADiscoveryActor struct {
	config            *config.Config
	behavior          actor.Behavior
	stash             *actorutil.Stash
	cloudActor        *actor.PID
	mqttActor         *actor.PID
	cloudActorHealthy bool
	mqttActorHealthy  bool
	healthyRecv       int

	logger *zap.Logger
}

func NewHADiscoveryActor(config *config.Config, cloudActor *actor.PID, mqttActor *actor.PID, logger *zap.Logger) *HADiscoveryActor {
	act := &HADiscoveryActor{
		config:     config,
		cloudActor: cloudActor,
		mqttActor:  mqttActor,
		behavior:   actor.NewBehavior(),
		stash:      &actorutil.Stash{},
		logger:     actorutil.ActorLogger(domain.ACTOR_ID_HA_DISCOVERY, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *HADiscoveryActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *HADiscoveryActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("hadiscovery@starting started")

		// Check Cloud and MQTT actor healthy
		state.healthyRecv = 0
		state.cloudActorHealthy = false
		state.mqttActorHealthy = false
		// Cloud Actor Request
		actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.cloudActor, domain.ActorHealthRequest{}, 5*time.Second), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_CLOUD,
				Healthy: false,
			}
		})
		// MQTT Actor Request
		actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.mqttActor, domain.ActorHealthRequest{}, 5*time.Second), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_MQTT,
				Healthy: false,
			}
		})
		state.behavior.Become(state.WaitingHealthyReceive)
	case *actor.Restarting:
	default:
		state.logger.Debug("hadiscovery@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HADiscoveryActor) WaitingHealthyReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthResponse:
		state.logger.Debug("hadiscovery@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.healthyRecv++
		if msg.Healthy {
			switch msg.Id {
			case domain.ACTOR_ID_CLOUD:
				state.cloudActorHealthy = true
			case domain.ACTOR_ID_MQTT:
				state.mqttActorHealthy = true
			}
		}
		if state.healthyRecv == 2 {

			if state.cloudActorHealthy && state.mqttActorHealthy {
				// the box id names the device
				actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.cloudActor, domain.GetStatsRequest{}, 15*time.Second), func(err error) any {
					return domain.GetStatsResponse{
						ActorResponseMixIn: domain.ResponseFailed(err),
					}
				})
				state.behavior.Become(state.WaitingStatsReceive)
				state.stash.UnstashAll(ctx)
			} else {
				panic(errors.New("MQTT Actor or Cloud Actor are not healthy"))
			}
		}
	default:
		state.logger.Debug("hadiscovery@healthcheck: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HADiscoveryActor) Done(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.PublishDiscoveryResponse:
		if msg.HasResponseError() {
			state.logger.Error("hadiscovery@done discovery not published", zap.Error(msg.GetResponseError()))
		}
	}
}

func (state *HADiscoveryActor) WaitingStatsReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.GetStatsResponse:
		if msg.HasResponseError() {
			panic(msg.GetResponseError())
		}
		state.logger.Debug("hadiscovery@stats: GetStatsResponse", zap.String("box", msg.BoxId))

		req := DiscoveryRequest(state.config.MQTT.BaseTopic, msg.BoxId, msg.Box.Queen())
		req.ActorRequestMixIn = domain.RequestFrom(ctx.Self())
		ctx.Send(state.mqttActor, req)
		state.behavior.Become(state.Done)

	default:
		state.logger.Debug("hadiscovery@stats: default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// DiscoveryRequest lists every entity of the bridge and the box.
func DiscoveryRequest(baseTopic, boxId string, queen bool) domain.PublishDiscoveryRequest {
	var sensors []domain.GenericSensor

	bridgeDevice := domain.BridgeDevice(baseTopic)
	sensors = append(sensors, domain.BridgeSensors(bridgeDevice)...)
	sensors = append(sensors, domain.ShieldSensors(bridgeDevice)...)

	boxDevice := domain.BoxDevice(boxId, queen)
	boxDevice.ViaDevice = bridgeDevice.Id
	sensors = append(sensors, domain.BoxSensors(boxDevice)...)

	return domain.PublishDiscoveryRequest{
		Sensors:      sensors,
		Selects:      domain.BoxSelects(boxDevice),
		InputNumbers: domain.BoxInputNumbers(boxDevice),
	}
}
