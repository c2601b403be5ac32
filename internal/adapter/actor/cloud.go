package actor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/berfenger/oigshield2mqtt/internal/core/domain"
	"github.com/berfenger/oigshield2mqtt/internal/util/actorutil"
	"github.com/berfenger/oigshield2mqtt/pkg/oigcloud"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

const DEFAULT_CLOUD_REQUEST_TIMEOUT = 10 * time.Second

// CloudActor owns the OIG Cloud client. Requests are served one at a time;
// anything arriving while a request is in flight is stashed.
type CloudActor struct {
	behavior actor.Behavior
	stash    *actorutil.Stash
	client   oigcloud.CloudClient
	timeout  time.Duration
	logger   *zap.Logger
}

type backgroundTaskResult struct {
	message any
	replyTo *actor.PID
}

func NewCloudActor(client oigcloud.CloudClient, timeout time.Duration, logger *zap.Logger) *CloudActor {
	if timeout <= 0 {
		timeout = DEFAULT_CLOUD_REQUEST_TIMEOUT
	}
	act := &CloudActor{
		client:   client,
		timeout:  timeout,
		behavior: actor.NewBehavior(),
		stash:    &actorutil.Stash{},
		logger:   actorutil.ActorLogger(domain.ACTOR_ID_CLOUD, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *CloudActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *CloudActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("cloud@starting started")
		err := state.authenticate()
		if errors.Is(err, oigcloud.ErrAuthentication) {
			// bad credentials will not fix themselves, let the supervisor decide
			panic(err)
		} else if err != nil {
			// the client logs in again on the next request
			state.logger.Warn("cloud@starting could not authenticate", zap.Error(err))
		}
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("cloud@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *CloudActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("cloud@default ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_CLOUD,
			Healthy: true,
			State:   "idle",
		})
	case domain.GetStatsRequest:
		state.logger.Debug("cloud@default GetStatsRequest")
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, state.getStats),
			mapTaskResult[domain.GetStatsResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.GetStatsResponse{
					ActorResponseMixIn: domain.ResponseFailed(err),
				},
				replyTo: sender,
			}
		}).WithTimeout(state.timeout).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingCloud)
	case domain.BoxControlRequest:
		state.logger.Debug("cloud@default BoxControlRequest", zap.String("op", msg.Op), zap.Int("value", msg.Value))
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		timeout, expired := state.writeTimeout(msg.Deadline)
		if expired {
			// the caller already gave up, the write must not happen
			state.logger.Warn("cloud@default BoxControlRequest expired", zap.String("op", msg.Op), zap.Time("deadline", msg.Deadline))
			if sender != nil {
				ctx.Send(sender, domain.BoxControlResponse{
					ActorResponseMixIn: domain.ResponseFailed(context.DeadlineExceeded),
				})
			}
			return
		}
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, func(c context.Context) (*domain.BoxControlResponse, error) {
			if err := state.boxControl(c, msg.Op, msg.Value); err != nil {
				return nil, err
			}
			return &domain.BoxControlResponse{}, nil
		}),
			mapTaskResult[domain.BoxControlResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.BoxControlResponse{
					ActorResponseMixIn: domain.ResponseFailed(err),
				},
				replyTo: sender,
			}
		}).WithTimeout(timeout).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingCloud)
	default:
		state.logger.Debug("cloud@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *CloudActor) WaitingCloud(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case backgroundTaskResult:
		state.logger.Debug("cloud@WaitingCloud backgroundTaskResult", zap.String("type", fmt.Sprintf("%T", msg.message)))
		if msg.replyTo != nil {
			ctx.Send(msg.replyTo, msg.message)
		}
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("cloud@WaitingCloud stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

// writeTimeout bounds a write by the request deadline. expired is true once
// the deadline has passed.
func (state *CloudActor) writeTimeout(deadline time.Time) (timeout time.Duration, expired bool) {
	if deadline.IsZero() {
		return state.timeout, false
	}
	left := time.Until(deadline)
	if left <= 0 {
		return 0, true
	}
	return min(left, state.timeout), false
}

func (state *CloudActor) authenticate() error {
	ctx, cancel := context.WithTimeout(context.Background(), state.timeout)
	defer cancel()
	return state.client.Authenticate(ctx)
}

func (state *CloudActor) getStats(ctx context.Context) (*domain.GetStatsResponse, error) {
	stats, err := state.client.GetStats(ctx)
	if err != nil {
		state.logger.Error("cloud: could not get stats", zap.Error(err))
		return nil, err
	}
	boxId, box, err := stats.Box()
	if err != nil {
		return nil, err
	}
	return &domain.GetStatsResponse{
		BoxId: boxId,
		Box:   box,
	}, nil
}

func (state *CloudActor) boxControl(ctx context.Context, op string, value int) error {
	var err error
	switch op {
	case domain.BOX_OP_SET_BOX_MODE:
		err = state.client.SetBoxMode(ctx, value)
	case domain.BOX_OP_SET_GRID_DELIVERY:
		err = state.client.SetGridDelivery(ctx, value != 0)
	case domain.BOX_OP_SET_GRID_DELIVERY_LIMIT:
		err = state.client.SetGridDeliveryLimit(ctx, value)
	case domain.BOX_OP_SET_BOILER_MODE:
		err = state.client.SetBoilerMode(ctx, value)
	default:
		err = fmt.Errorf("unknown box operation %q", op)
	}
	if err != nil {
		state.logger.Error("cloud: box write failed", zap.String("op", op), zap.Error(err))
	}
	return err
}

func mapTaskResult[T any](sender *actor.PID) func(t *T) *backgroundTaskResult {
	return func(t *T) *backgroundTaskResult {
		return &backgroundTaskResult{
			message: *t,
			replyTo: sender,
		}
	}
}
