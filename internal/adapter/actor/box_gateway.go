package actor

import (
	"context"
	"fmt"
	"time"

	"github.com/berfenger/oigshield2mqtt/internal/core/domain"
	"github.com/berfenger/oigshield2mqtt/internal/core/port"

	"github.com/asynkron/protoactor-go/actor"
)

// gatewayReplyGrace covers the cloud actor's own timeout guard.
const gatewayReplyGrace = time.Second

// BoxControlGateway implements port.BoxControl by asking the cloud actor.
// It blocks the caller until the cloud answers or the deadline passes.
type BoxControlGateway struct {
	sender  actor.SenderContext
	cloud   *actor.PID
	timeout time.Duration
}

func NewBoxControlGateway(sender actor.SenderContext, cloud *actor.PID, timeout time.Duration) *BoxControlGateway {
	if timeout <= 0 {
		timeout = DEFAULT_CLOUD_REQUEST_TIMEOUT
	}
	return &BoxControlGateway{
		sender:  sender,
		cloud:   cloud,
		timeout: timeout,
	}
}

func (g *BoxControlGateway) SetBoxMode(ctx context.Context, mode int) error {
	return g.request(ctx, domain.BOX_OP_SET_BOX_MODE, mode)
}

func (g *BoxControlGateway) SetGridDelivery(ctx context.Context, enabled bool) error {
	value := 0
	if enabled {
		value = 1
	}
	return g.request(ctx, domain.BOX_OP_SET_GRID_DELIVERY, value)
}

func (g *BoxControlGateway) SetGridDeliveryLimit(ctx context.Context, limit int) error {
	return g.request(ctx, domain.BOX_OP_SET_GRID_DELIVERY_LIMIT, limit)
}

func (g *BoxControlGateway) SetBoilerMode(ctx context.Context, mode int) error {
	return g.request(ctx, domain.BOX_OP_SET_BOILER_MODE, mode)
}

func (g *BoxControlGateway) request(ctx context.Context, op string, value int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	timeout := g.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}
	if timeout <= 0 {
		return context.DeadlineExceeded
	}

	req := domain.BoxControlRequest{Op: op, Value: value, Deadline: time.Now().Add(timeout)}
	// the cloud actor settles the request by its deadline, wait for that answer
	result, err := g.sender.RequestFuture(g.cloud, req, timeout+gatewayReplyGrace).Result()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	resp, ok := result.(domain.BoxControlResponse)
	if !ok {
		return fmt.Errorf("%s: unexpected response %T", op, result)
	}
	return resp.ResponseError
}

var _ port.BoxControl = (*BoxControlGateway)(nil)
