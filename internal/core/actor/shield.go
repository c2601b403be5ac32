package actor

import (
	"context"
	"fmt"
	"time"

	adactor "github.com/berfenger/oigshield2mqtt/internal/adapter/actor"
	"github.com/berfenger/oigshield2mqtt/internal/adapter/state"
	"github.com/berfenger/oigshield2mqtt/internal/config"
	"github.com/berfenger/oigshield2mqtt/internal/core/domain"
	"github.com/berfenger/oigshield2mqtt/internal/core/events"
	"github.com/berfenger/oigshield2mqtt/internal/core/service"
	"github.com/berfenger/oigshield2mqtt/internal/core/shield"
	"github.com/berfenger/oigshield2mqtt/internal/metrics"
	. "github.com/berfenger/oigshield2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

// ShieldActor owns the shield. Every Submit and Tick runs inside this actor,
// so the shield itself needs no locking.
type ShieldActor struct {
	ActorWithStates
	scheduler   *scheduler.TimerScheduler
	cancelTick  scheduler.CancelFunc
	stash       *Stash
	cloudActor  *actor.PID
	config      *config.Config
	store       *state.Store
	catalog     *service.CommandCatalog
	eventStream *eventstream.EventStream
	metrics     *metrics.Metrics
	shield      *shield.Shield
	now         func() time.Time

	logger *zap.Logger
}

type shieldTick struct {
}

func NewShieldActor(config *config.Config, cloudActor *actor.PID, store *state.Store, catalog *service.CommandCatalog,
	eventStream *eventstream.EventStream, metrics *metrics.Metrics, logger *zap.Logger) *ShieldActor {
	act := &ShieldActor{
		config:      config,
		cloudActor:  cloudActor,
		store:       store,
		catalog:     catalog,
		eventStream: eventStream,
		metrics:     metrics,
		stash:       &Stash{},
		now:         time.Now,
		logger:      ActorLogger(domain.ACTOR_ID_SHIELD, logger),
		ActorWithStates: ActorWithStates{
			Behavior: actor.NewBehavior(),
		},
	}
	act.Become(SHStartingState{
		actor: act,
	})
	return act
}

func (state *ShieldActor) Receive(context actor.Context) {
	state.Behavior.Receive(context)
}

// Starting state

type SHStartingState struct {
	ActorState
	actor *ShieldActor
}

func (state SHStartingState) Name() string {
	return "starting"
}

func (state SHStartingState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.actor.logger.Debug("shield@starting started")

		shieldCfg := state.actor.config.Shield.ShieldConfig()
		gateway := adactor.NewBoxControlGateway(ctx.ActorSystem().Root, state.actor.cloudActor, shieldCfg.DispatchTimeout)
		executor := service.NewCommandExecutor(gateway, state.actor.logger)

		auditors := shield.MultiAuditor{
			shield.LogAuditor{Logger: state.actor.logger},
			events.StreamAuditor{Stream: state.actor.eventStream},
		}
		if state.actor.metrics != nil {
			auditors = append(auditors, state.actor.metrics)
		}

		state.actor.shield = shield.New(shieldCfg, state.actor.catalog.Normalizer(), state.actor.store, executor,
			shield.WithAuditor(auditors),
			shield.WithLogger(state.actor.logger),
			shield.WithClock(state.actor.now))

		state.actor.scheduler = scheduler.NewTimerScheduler(ctx)
		state.actor.cancelTick = state.actor.scheduler.SendRepeatedly(shieldCfg.PollInterval, shieldCfg.PollInterval, ctx.Self(), shieldTick{})

		state.actor.publishState()
		state.actor.Become(SHReadyState{
			actor: state.actor,
		})
		state.actor.stash.UnstashAll(ctx)
	case *actor.Restarting:
		state.actor.stopTicking()
	default:
		state.actor.logger.Debug("shield@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.actor.stash.Stash(ctx, msg)
	}
}

// Ready state

type SHReadyState struct {
	ActorState
	actor *ShieldActor
}

func (state SHReadyState) Name() string {
	return "ready"
}

func (state SHReadyState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.actor.logger.Debug("shield@ready: ActorHealthRequest")
		activity := domain.SHIELD_STATE_IDLE
		if _, ok := state.actor.shield.Active(); ok {
			activity = domain.SHIELD_STATE_ACTIVE
		}
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_SHIELD,
			Healthy: true,
			State:   activity,
		})
	case domain.SubmitCommandRequest:
		state.actor.logger.Debug("shield@ready: SubmitCommandRequest", zap.String("name", msg.Name))
		resp := state.actor.submit(msg)
		if !ForRequest(msg).TryRespond(ctx, resp) && resp.HasResponseError() {
			state.actor.logger.Warn("shield@ready: command rejected", zap.String("name", msg.Name), zap.Error(resp.GetResponseError()))
		}
		state.actor.publishState()
	case shieldTick:
		state.actor.logger.Debug("shield@ready tick")
		state.actor.shield.Tick(context.Background(), state.actor.now())
		state.actor.publishState()
	case domain.GetShieldStatusRequest:
		state.actor.logger.Debug("shield@ready: GetShieldStatusRequest")
		ForRequest(msg).Respond(ctx, domain.GetShieldStatusResponse{
			Status: domain.NewShieldStatus(state.actor.shield.Snapshot(), state.actor.store, state.actor.now()),
		})
	case *actor.Restarting:
		state.actor.stopTicking()
	case *actor.Stopping:
		state.actor.stopTicking()
	default:
		state.actor.logger.Debug("shield@ready: recv", zap.String("state", state.actor.StateName()), zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *ShieldActor) submit(msg domain.SubmitCommandRequest) domain.SubmitCommandResponse {
	req, err := state.catalog.Request(msg.Name, msg.Params)
	if err != nil {
		return domain.SubmitCommandResponse{
			ActorResponseMixIn: domain.ResponseFailed(err),
		}
	}
	// the dispatch deadline is applied by the shield
	result, err := state.shield.Submit(context.Background(), req)
	return domain.SubmitCommandResponse{
		ActorResponseMixIn: domain.ResponseFailed(err),
		Result:             result,
	}
}

func (state *ShieldActor) publishState() {
	snap := state.shield.Snapshot()
	if state.metrics != nil {
		state.metrics.SetShieldState(len(snap.Queue), snap.Active != nil)
	}
	for _, ev := range events.ShieldStateUpdateEvents(snap) {
		state.eventStream.Publish(ev)
	}
}

func (state *ShieldActor) stopTicking() {
	if state.cancelTick != nil {
		state.cancelTick()
		state.cancelTick = nil
	}
}
