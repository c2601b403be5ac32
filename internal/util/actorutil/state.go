package actorutil

import (
	"github.com/asynkron/protoactor-go/actor"
)

// ActorWithStates wraps a Behavior and remembers the names of the stacked
// states, so an actor can report where it is.
type ActorWithStates struct {
	Behavior actor.Behavior
	states   []string
}

type ActorState interface {
	Name() string
	Receive(actor.Context)
}

func (s *ActorWithStates) Become(state ActorState) {
	s.Behavior.Become(state.Receive)
	s.states = append(s.states[:0], state.Name())
}

func (s *ActorWithStates) BecomeStacked(state ActorState) {
	s.Behavior.BecomeStacked(state.Receive)
	s.states = append(s.states, state.Name())
}

func (s *ActorWithStates) UnbecomeStacked() {
	s.Behavior.UnbecomeStacked()
	if len(s.states) > 0 {
		s.states = s.states[:len(s.states)-1]
	}
}

// StateName returns the name of the current state, or "" before the first Become.
func (s *ActorWithStates) StateName() string {
	if len(s.states) == 0 {
		return ""
	}
	return s.states[len(s.states)-1]
}
