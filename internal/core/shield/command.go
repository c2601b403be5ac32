package shield

import (
	"context"
	"sort"
	"strings"
	"time"
)

type Status int

const (
	StatusQueued Status = iota
	StatusActive
	StatusCompleted
	StatusTimedOut
	StatusSkipped
	StatusIgnored
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusQueued:
		return "queued"
	case StatusActive:
		return "active"
	case StatusCompleted:
		return "completed"
	case StatusTimedOut:
		return "timed_out"
	case StatusSkipped:
		return "skipped"
	case StatusIgnored:
		return "ignored"
	case StatusFailed:
		return "failed"
	}
	return "unknown"
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Expectation is a single resource a command must move to a target value.
type Expectation struct {
	ResourceID string `json:"resource"`
	Value      any    `json:"value"`
}

// ExpectedState keeps expectations in the order they were declared.
type ExpectedState []Expectation

func (es ExpectedState) Get(resourceID string) (any, bool) {
	for _, e := range es {
		if e.ResourceID == resourceID {
			return e.Value, true
		}
	}
	return nil, false
}

func (es ExpectedState) ResourceIDs() []string {
	ids := make([]string, 0, len(es))
	for _, e := range es {
		ids = append(ids, e.ResourceID)
	}
	return ids
}

func (es ExpectedState) clone() ExpectedState {
	if es == nil {
		return nil
	}
	out := make(ExpectedState, len(es))
	copy(out, es)
	return out
}

// ExpectedStateProvider computes which resources need to change for a request,
// based on the currently observed state.
type ExpectedStateProvider func(obs StateObserver, norm *Normalizer) ExpectedState

type StateObserver interface {
	Read(resourceID string) (any, bool)
}

// RemoteExecutor sends a command to the remote system. A nil error only means
// the request was accepted, not that it has taken effect.
type RemoteExecutor interface {
	Execute(ctx context.Context, cmd Command) error
}

type ExecutorFunc func(ctx context.Context, cmd Command) error

func (f ExecutorFunc) Execute(ctx context.Context, cmd Command) error {
	return f(ctx, cmd)
}

type Command struct {
	ID           string
	Name         string
	Params       any
	Expected     ExpectedState
	Original     map[string]any
	SubmittedAt  time.Time
	DispatchedAt time.Time
	FinishedAt   time.Time
	Status       Status
	key          string
}

// Request is what callers hand to Submit.
type Request struct {
	Name     string
	Params   any
	Expected ExpectedStateProvider
}

type Outcome int

const (
	OutcomeSkipped Outcome = iota
	OutcomeIgnored
	OutcomeDispatched
	OutcomeQueued
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeIgnored:
		return "ignored"
	case OutcomeDispatched:
		return "dispatched"
	case OutcomeQueued:
		return "queued"
	}
	return "unknown"
}

func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

type SubmitResult struct {
	Outcome   Outcome `json:"outcome"`
	CommandID string  `json:"command_id,omitempty"`
	Reason    string  `json:"reason"`
}

// dedupKey builds the (name, normalized expected state) key. Values that fail
// to normalize fall back to their folded text so the key stays deterministic.
func dedupKey(name string, expected ExpectedState, norm *Normalizer) string {
	parts := make([]string, 0, len(expected))
	for _, e := range expected {
		v, err := norm.Normalize(e.ResourceID, e.Value)
		if err != nil {
			v = "!" + norm.normalizeEnumerated(e.Value)
		}
		parts = append(parts, e.ResourceID+"="+v)
	}
	sort.Strings(parts)
	return name + "|" + strings.Join(parts, ";")
}
