package actor

import (
	"fmt"
	"time"

	"github.com/berfenger/oigshield2mqtt/internal/adapter/state"
	"github.com/berfenger/oigshield2mqtt/internal/config"
	"github.com/berfenger/oigshield2mqtt/internal/core/domain"
	"github.com/berfenger/oigshield2mqtt/internal/core/events"
	"github.com/berfenger/oigshield2mqtt/internal/core/service"
	. "github.com/berfenger/oigshield2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

// TelemetryActor polls the box stats, keeps the observed state store current
// and publishes sensor updates.
type TelemetryActor struct {
	behavior  actor.Behavior
	stash     *Stash
	scheduler *scheduler.TimerScheduler

	cloudActor  *actor.PID
	config      *config.Config
	store       *state.Store
	eventStream *eventstream.EventStream

	logger *zap.Logger
}

type telemetryTick struct {
}

func NewTelemetryActor(config *config.Config, cloudActor *actor.PID, store *state.Store, eventStream *eventstream.EventStream, logger *zap.Logger) *TelemetryActor {
	act := &TelemetryActor{
		config:      config,
		cloudActor:  cloudActor,
		store:       store,
		behavior:    actor.NewBehavior(),
		stash:       &Stash{},
		logger:      ActorLogger(domain.ACTOR_ID_TELEMETRY, logger),
		eventStream: eventStream,
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *TelemetryActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *TelemetryActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("telemetry@starting started")
		state.scheduler = scheduler.NewTimerScheduler(ctx)
		// first poll right away
		ctx.Send(ctx.Self(), telemetryTick{})
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
	default:
		state.logger.Debug("telemetry@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *TelemetryActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("telemetry@default: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_TELEMETRY,
			Healthy: true,
			State:   "idle",
		})
	case telemetryTick:
		state.logger.Debug("telemetry@default tick")
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.cloudActor, domain.GetStatsRequest{}, state.requestTimeout()), func(err error) any {
			return domain.GetStatsResponse{
				ActorResponseMixIn: domain.ResponseFailed(err),
			}
		})
		// schedule next tick
		state.scheduler.RequestOnce(state.config.OIGCloud.PollInterval(), ctx.Self(), telemetryTick{})
		state.behavior.BecomeStacked(state.WaitingStatsReceive)
	default:
		state.logger.Debug("telemetry@default: recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *TelemetryActor) WaitingStatsReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.GetStatsResponse:
		if msg.HasResponseError() {
			state.logger.Error("telemetry@waiting GetStatsResponse error", zap.Error(msg.GetResponseError()))
			state.behavior.UnbecomeStacked()
			state.stash.UnstashAll(ctx)
			return
		}
		state.logger.Debug("telemetry@waiting GetStatsResponse", zap.String("box", msg.BoxId))
		values := service.ResourceValues(msg.Box)
		state.store.Update(values)
		// a stale value must never count as convergence
		for _, id := range service.Resources {
			if _, ok := values[id]; !ok {
				state.logger.Debug("telemetry@waiting resource missing from stats", zap.String("resource", id))
				state.store.Forget(id)
			}
		}
		for _, ev := range events.BoxStatsToUpdateEvents(msg.Box, values) {
			state.eventStream.Publish(ev)
		}
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_TELEMETRY,
			Healthy: true,
			State:   "polling",
		})
	default:
		state.logger.Debug("telemetry@waiting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *TelemetryActor) requestTimeout() time.Duration {
	// leave the cloud actor room to answer with its own timeout error
	if t := state.config.OIGCloud.RequestTimeout(); t > 0 {
		return t + 2*time.Second
	}
	return 12 * time.Second
}
