package actorutil

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackgroundTaskSuccess(t *testing.T) {

	var got string
	task := MapBackgroundTask(NewBackgroundTask[int](nil, func(ctx context.Context) (*int, error) {
		v := 41
		return &v, nil
	}), func(v *int) *string {
		s := fmt.Sprintf("box-%d", *v+1)
		return &s
	})
	task.OnSuccess(func(v string) { got = v }).Run()

	assert.Equal(t, "box-42", got)
}

func TestBackgroundTaskRecover(t *testing.T) {

	errDown := errors.New("down")
	var got error
	NewBackgroundTask[int](nil, func(ctx context.Context) (*int, error) {
		return nil, errDown
	}).Recover(func(err error) int {
		got = err
		return -1
	}).OnSuccess(func(v int) {
		assert.Equal(t, -1, v)
	}).Run()

	assert.Error(t, got)
	assert.Contains(t, got.Error(), errDown.Error())
}

func TestBackgroundTaskTimeoutCancelsCall(t *testing.T) {

	var got error
	start := time.Now()
	NewBackgroundTask[int](nil, func(ctx context.Context) (*int, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}).WithTimeout(50 * time.Millisecond).OnError(func(err error) {
		got = err
	}).Run()

	assert.Error(t, got)
	assert.Less(t, time.Since(start), 2*time.Second)
}
