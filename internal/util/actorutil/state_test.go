package actorutil

import (
	"testing"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
)

type namedState string

func (s namedState) Name() string {
	return string(s)
}

func (s namedState) Receive(actor.Context) {
}

func TestActorWithStatesTracksName(t *testing.T) {

	assert := assert.New(t)
	s := &ActorWithStates{Behavior: actor.NewBehavior()}
	assert.Equal("", s.StateName())

	s.Become(namedState("starting"))
	assert.Equal("starting", s.StateName())

	s.Become(namedState("ready"))
	s.BecomeStacked(namedState("waiting"))
	assert.Equal("waiting", s.StateName())

	s.UnbecomeStacked()
	assert.Equal("ready", s.StateName())
}
