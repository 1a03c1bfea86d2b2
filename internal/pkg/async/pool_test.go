package async

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func constant(name string, v int) Task {
	return Task{Name: name, Execute: func(context.Context) (interface{}, error) { return v, nil }}
}

func TestPoolExecute(t *testing.T) {
	tasks := []Task{constant("users", 3), constant("sessions", 7), constant("screens", 11)}

	results := NewPool(2).Execute(context.Background(), tasks)

	require.Len(t, results, 3)
	assert.Equal(t, 3, results["users"].Data)
	assert.Equal(t, 7, results["sessions"].Data)
	assert.Equal(t, 11, results["screens"].Data)

	name, err := FirstError(tasks, results, nil)
	assert.Empty(t, name)
	assert.NoError(t, err)
}

func TestPoolBoundsConcurrency(t *testing.T) {
	var running, peak atomic.Int32
	task := func(name string) Task {
		return Task{Name: name, Execute: func(context.Context) (interface{}, error) {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			running.Add(-1)
			return nil, nil
		}}
	}

	tasks := []Task{task("a"), task("b"), task("c"), task("d"), task("e"), task("f")}
	results := NewPool(2).Execute(context.Background(), tasks)

	assert.Len(t, results, len(tasks))
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestFirstErrorFollowsTaskOrder(t *testing.T) {
	boom := errors.New("boom")
	tasks := []Task{
		constant("users", 1),
		{Name: "countries", Execute: func(context.Context) (interface{}, error) { return nil, boom }},
		{Name: "screens", Execute: func(context.Context) (interface{}, error) { return nil, errors.New("later") }},
	}

	results := NewPool(3).Execute(context.Background(), tasks)

	name, err := FirstError(tasks, results, nil)
	assert.Equal(t, "countries", name)
	assert.ErrorIs(t, err, boom)
}

func TestPoolStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	release := make(chan struct{})
	defer close(release)

	tasks := []Task{
		{Name: "slow", Execute: func(ctx context.Context) (interface{}, error) {
			cancel()
			<-release
			return nil, nil
		}},
		constant("fast", 1),
	}

	results := NewPool(1).Execute(ctx, tasks)

	name, err := FirstError(tasks, results, ctx.Err())
	assert.Equal(t, "slow", name)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewPoolClampsWorkers(t *testing.T) {
	assert.Equal(t, 1, NewPool(0).workerCount)
	assert.Equal(t, 1, NewPool(-3).workerCount)
}
