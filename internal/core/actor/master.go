package actor

import (
	"errors"
	"fmt"
	"time"

	adactor "github.com/berfenger/oigshield2mqtt/internal/adapter/actor"
	"github.com/berfenger/oigshield2mqtt/internal/adapter/state"
	"github.com/berfenger/oigshield2mqtt/internal/config"
	"github.com/berfenger/oigshield2mqtt/internal/core/domain"
	"github.com/berfenger/oigshield2mqtt/internal/core/service"
	"github.com/berfenger/oigshield2mqtt/internal/metrics"
	. "github.com/berfenger/oigshield2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

type MQTTActorProvider func(*eventstream.EventStream) *adactor.MQTTActor

type CloudActorProvider func() *adactor.CloudActor

type MasterOfPuppetsActor struct {
	config   config.Config
	behavior actor.Behavior
	stash    *Stash

	currentHealthCheck healthCheckResult
	eventStream        *eventstream.EventStream
	store              *state.Store
	catalog            *service.CommandCatalog
	metrics            *metrics.Metrics
	cloudActor         *actor.PID
	mqttActor          *actor.PID
	telemetryActor     *actor.PID
	shieldActor        *actor.PID
	cloudActorProvider CloudActorProvider
	mqttActorProvider  MQTTActorProvider
	logger             *zap.Logger
}

type healthCheckResult struct {
	healthy        map[string]bool
	checksReceived int
	respondTo      *actor.PID
}

// NewMasterOfPuppetsActor builds the root of the actor tree. metrics may be nil.
func NewMasterOfPuppetsActor(config config.Config, catalog *service.CommandCatalog, metrics *metrics.Metrics,
	cloudActorProvider CloudActorProvider, mqttActorProvider MQTTActorProvider, logger *zap.Logger) *MasterOfPuppetsActor {
	act := &MasterOfPuppetsActor{
		config:             config,
		behavior:           actor.NewBehavior(),
		stash:              &Stash{},
		logger:             ActorLogger(domain.ACTOR_ID_MASTER, logger),
		eventStream:        &eventstream.EventStream{},
		store:              state.NewStore(),
		catalog:            catalog,
		metrics:            metrics,
		cloudActorProvider: cloudActorProvider,
		mqttActorProvider:  mqttActorProvider,
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MasterOfPuppetsActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MasterOfPuppetsActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("master@starting started")

		state.currentHealthCheck = healthCheckResult{}
		state.currentHealthCheck.reset()

		// start Cloud child
		cloudActorPID, err := state.startCloudActor(ctx)
		if err != nil {
			panic(err)
		}
		state.cloudActor = cloudActorPID

		// start MQTT child
		mqttActorPID, err := state.startMQTTActor(ctx)
		if err != nil {
			panic(err)
		}
		state.mqttActor = mqttActorPID

		// start Telemetry child
		telemetryActorPID, err := state.startTelemetryActor(ctx)
		if err != nil {
			panic(err)
		}
		state.telemetryActor = telemetryActorPID

		// start Shield child
		shieldActorPID, err := state.startShieldActor(ctx)
		if err != nil {
			panic(err)
		}
		state.shieldActor = shieldActorPID

		// start HA Discovery
		if state.config.MQTT.HADiscoveryEnable {
			_, err := state.startHADiscoveryActor(ctx)
			if err != nil {
				panic(err)
			}
		}

		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("master@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("master@default ActorHealthRequest")
		state.currentHealthCheck.reset()
		state.currentHealthCheck.respondTo = ctx.Sender()
		for id, pid := range state.children() {
			PipeToSelfWithRecover(ctx, ctx.RequestFuture(pid, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
				return domain.ActorHealthResponse{
					Id:      id,
					Healthy: false,
				}
			})
		}

		ctx.SetReceiveTimeout(1 * time.Second)

		state.behavior.BecomeStacked(state.HealthCheckReceive)
	case adactor.ParsedCommand:
		// redirect parsedCommand to the shield
		state.logger.Debug("master@default parsedCommand", zap.Any("command", msg.Command))
		if msg.Command != nil {
			cmd, err := ParsedMQTTCommandToCommand(state.catalog, *msg.Command)
			if err != nil {
				state.logger.Warn("master@default invalid command", zap.Any("command", msg.Command), zap.Error(err))
				return
			}
			ctx.Send(state.shieldActor, cmd)
		}
	case domain.SubmitCommandRequest:
		ctx.Forward(state.shieldActor)
	case domain.GetShieldStatusRequest:
		ctx.Forward(state.shieldActor)
	case *actor.Terminated:
		// without the cloud nothing works, let the supervisor decide
		if msg.Who.Id == fmt.Sprintf("%s/%s", ctx.Self().Id, domain.ACTOR_ID_CLOUD) {
			state.logger.Error("master@default cloud terminated")
			panic(errors.New("cloud terminated"))
		}
	default:
		state.logger.Debug("master@default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *MasterOfPuppetsActor) HealthCheckReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.ReceiveTimeout:
		// if some actor does not respond to healthCheck, assume not healthy
		ctx.CancelReceiveTimeout()
		state.currentHealthCheck.respond(ctx)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthResponse:
		state.logger.Debug("master@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.currentHealthCheck.checksReceived++
		if msg.Healthy {
			state.currentHealthCheck.healthy[msg.Id] = true
		}
		if state.currentHealthCheck.allReceived() {
			ctx.CancelReceiveTimeout()

			state.currentHealthCheck.respond(ctx)

			state.behavior.UnbecomeStacked()
			state.stash.UnstashAll(ctx)
		} else {
			ctx.SetReceiveTimeout(1 * time.Second)
		}
	default:
		state.logger.Debug("master@healthcheck stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) children() map[string]*actor.PID {
	return map[string]*actor.PID{
		domain.ACTOR_ID_CLOUD:     state.cloudActor,
		domain.ACTOR_ID_MQTT:      state.mqttActor,
		domain.ACTOR_ID_TELEMETRY: state.telemetryActor,
		domain.ACTOR_ID_SHIELD:    state.shieldActor,
	}
}

func (state *MasterOfPuppetsActor) startCloudActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	cloudProps := actor.PropsFromProducer(func() actor.Actor {
		return state.cloudActorProvider()
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(cloudProps, domain.ACTOR_ID_CLOUD)
}

func (state *MasterOfPuppetsActor) startMQTTActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	mqttProps := actor.PropsFromProducer(func() actor.Actor {
		return state.mqttActorProvider(state.eventStream)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(mqttProps, domain.ACTOR_ID_MQTT)
}

func (state *MasterOfPuppetsActor) startTelemetryActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewOneForOneStrategy(10, 10*time.Second, state.restartDecider)

	telemetryProps := actor.PropsFromProducer(func() actor.Actor {
		return NewTelemetryActor(&state.config, state.cloudActor, state.store, state.eventStream, state.logger)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(telemetryProps, domain.ACTOR_ID_TELEMETRY)
}

func (state *MasterOfPuppetsActor) startShieldActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewOneForOneStrategy(10, 10*time.Second, state.restartDecider)

	shieldProps := actor.PropsFromProducer(func() actor.Actor {
		return NewShieldActor(&state.config, state.cloudActor, state.store, state.catalog, state.eventStream, state.metrics, state.logger)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(shieldProps, domain.ACTOR_ID_SHIELD)
}

func (state *MasterOfPuppetsActor) startHADiscoveryActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewOneForOneStrategy(1, 10*time.Second, state.restartDecider)

	haDiscProps := actor.PropsFromProducer(func() actor.Actor {
		return NewHADiscoveryActor(&state.config, state.cloudActor, state.mqttActor, state.logger)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(haDiscProps, domain.ACTOR_ID_HA_DISCOVERY)
}

func (state *MasterOfPuppetsActor) restartDecider(reason interface{}) actor.Directive {
	state.logger.Error("master: handling failure for child", zap.Any("reason", reason))
	return actor.RestartDirective
}

func (state *healthCheckResult) reset() {
	state.healthy = map[string]bool{}
	state.checksReceived = 0
}

func (state *healthCheckResult) allReceived() bool {
	return state.checksReceived == 4
}

func (state *healthCheckResult) allHealthy() bool {
	return state.healthy[domain.ACTOR_ID_CLOUD] && state.healthy[domain.ACTOR_ID_MQTT] &&
		state.healthy[domain.ACTOR_ID_TELEMETRY] && state.healthy[domain.ACTOR_ID_SHIELD]
}

func (state *healthCheckResult) respond(ctx actor.Context) {
	resp := domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_MASTER,
		Healthy: state.allHealthy(),
	}
	if state.respondTo != nil {
		ctx.Send(state.respondTo, resp)
	}
}
