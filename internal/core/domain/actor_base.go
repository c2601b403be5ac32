package domain

import (
	"github.com/asynkron/protoactor-go/actor"
)

type ActorRef actor.PID

// ActorRequestMixIn is embedded by every request. A set ReplyToRef routes the
// response there instead of to the sender.
type ActorRequestMixIn struct {
	ReplyToRef *ActorRef
}

type ActorRequest interface {
	ReplyTo() *ActorRef
}

func (r ActorRequestMixIn) ReplyTo() *ActorRef {
	return r.ReplyToRef
}

// RequestFrom builds a request mixin answering to pid.
func RequestFrom(pid *actor.PID) ActorRequestMixIn {
	return ActorRequestMixIn{ReplyToRef: (*ActorRef)(pid)}
}

type ActorResponseMixIn struct {
	ResponseError error
}

// ResponseFailed builds a response mixin carrying err.
func ResponseFailed(err error) ActorResponseMixIn {
	return ActorResponseMixIn{ResponseError: err}
}

func (r ActorResponseMixIn) GetResponseError() error {
	return r.ResponseError
}

func (r ActorResponseMixIn) HasResponseError() bool {
	return r.ResponseError != nil
}

type ActorResponse interface {
	GetResponseError() error
	HasResponseError() bool
}
