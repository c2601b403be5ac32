package actorutil

import (
	"github.com/berfenger/oigshield2mqtt/internal/core/domain"

	"github.com/asynkron/protoactor-go/actor"
)

type forRequest struct {
	req domain.ActorRequest
}

type ExtendedRequest interface {
	Respond(ctx actor.Context, resp domain.ActorResponse)
	TryRespond(ctx actor.Context, resp domain.ActorResponse) bool
	ReplyTo(ctx actor.Context) *actor.PID
}

func ForRequest(r domain.ActorRequest) ExtendedRequest {
	return forRequest{req: r}
}

// Respond answers the request, preferring an explicit ReplyToRef over the
// sender of the current message.
func (r forRequest) Respond(ctx actor.Context, resp domain.ActorResponse) {
	if r.req.ReplyTo() != nil {
		ctx.Send((*actor.PID)(r.req.ReplyTo()), resp)
	} else {
		ctx.Respond(resp)
	}
}

// TryRespond answers like Respond and reports false when the request was a
// plain Send with nobody waiting for the response.
func (r forRequest) TryRespond(ctx actor.Context, resp domain.ActorResponse) bool {
	replyTo := r.ReplyTo(ctx)
	if replyTo == nil {
		return false
	}
	ctx.Send(replyTo, resp)
	return true
}

func (r forRequest) ReplyTo(ctx actor.Context) *actor.PID {
	if r.req.ReplyTo() != nil {
		return (*actor.PID)(r.req.ReplyTo())
	}
	return ctx.Sender()
}
