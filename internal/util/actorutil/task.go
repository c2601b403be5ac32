package actorutil

import (
	"context"
	"errors"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/primetalk/goio/io"
)

// timeoutGrace lets the call observe its own context deadline before the
// outer guard gives up on it.
const timeoutGrace = 500 * time.Millisecond

// BackgroundTask runs a blocking call for an actor and turns the outcome into
// a message. Panics and nil results are reported as errors.
type BackgroundTask[T any] struct {
	ctx       actor.Context
	fn        func(context.Context) (*T, error)
	timeout   time.Duration
	onError   func(error)
	recover   func(error) T
	onSuccess func(T)
}

func NewBackgroundTask[T any](ctx actor.Context, fn func(context.Context) (*T, error)) *BackgroundTask[T] {
	return &BackgroundTask[T]{
		ctx: ctx,
		fn:  fn,
	}
}

// WithTimeout sets the deadline of the context handed to the call.
func (t *BackgroundTask[T]) WithTimeout(timeout time.Duration) *BackgroundTask[T] {
	t.timeout = timeout
	return t
}

func (t *BackgroundTask[T]) OnError(fn func(error)) *BackgroundTask[T] {
	t.onError = fn
	return t
}

func (t *BackgroundTask[T]) Recover(fn func(error) T) *BackgroundTask[T] {
	t.recover = fn
	return t
}

func (t *BackgroundTask[T]) OnSuccess(fn func(T)) *BackgroundTask[T] {
	t.onSuccess = fn
	return t
}

func (t *BackgroundTask[T]) PipeTo(actor *actor.PID) {
	t.onSuccess = func(value T) {
		t.ctx.Send(actor, value)
	}
	t.Run()
}

// Run evaluates the task synchronously. A failed task is turned into a value by
// Recover when set, otherwise it is handed to OnError.
func (t *BackgroundTask[T]) Run() {
	callCtx := context.Background()
	if t.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(callCtx, t.timeout)
		defer cancel()
	}

	bgFn := io.Eval(func() (*T, error) {
		return t.fn(callCtx)
	})
	bg := io.Map(bgFn, func(a *T) T {
		if a != nil {
			return *a
		}
		panic(errors.New("result is nil"))
	})
	if t.timeout > 0 {
		bg = io.WithTimeout[T](t.timeout + timeoutGrace)(bg)
	}
	result := io.RunSync(bg)
	var finalValue *T
	if result.Error != nil {
		if t.recover != nil {
			a := t.recover(result.Error)
			finalValue = &a
		} else if t.onError != nil {
			t.onError(result.Error)
			return
		}
	}
	if finalValue == nil {
		finalValue = &result.Value
	}

	if t.onSuccess != nil {
		t.onSuccess(*finalValue)
	}
}

// MapBackgroundTask transforms the result of a successful call. The timeout
// carries over; handlers do not.
func MapBackgroundTask[T, T2 any](bgt *BackgroundTask[T], mapFn func(*T) *T2) *BackgroundTask[T2] {
	newFn := func(ctx context.Context) (*T2, error) {
		r, err := bgt.fn(ctx)
		if err != nil {
			return nil, err
		}
		return mapFn(r), nil
	}
	return &BackgroundTask[T2]{
		ctx:     bgt.ctx,
		fn:      newFn,
		timeout: bgt.timeout,
	}
}
