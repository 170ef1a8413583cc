package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/core-tools/hsu-uplink/pkg/errors"
	"github.com/core-tools/hsu-uplink/pkg/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

func TestNewScheduler_Validation(t *testing.T) {
	_, err := NewScheduler([]Task{{Name: "bad", Period: 0, Run: func(context.Context) {}}}, nil, logging.Nop())
	assert.True(t, errors.IsValidationError(err))

	_, err = NewScheduler([]Task{{Name: "nil-run", Period: time.Second}}, nil, logging.Nop())
	assert.True(t, errors.IsValidationError(err))
}

func TestScheduler_RunsTasksPeriodically(t *testing.T) {
	fast := atomic.NewInt32(0)
	slow := atomic.NewInt32(0)

	s, err := NewScheduler([]Task{
		{Name: "fast", Period: 10 * time.Millisecond, Run: func(context.Context) { fast.Inc() }},
		{Name: "slow", Period: 50 * time.Millisecond, Run: func(context.Context) { slow.Inc() }},
	}, nil, logging.Nop())
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))

	assert.Eventually(t, func() bool { return fast.Load() >= 10 }, 2*time.Second, 5*time.Millisecond)
	s.Cancel()

	assert.GreaterOrEqual(t, slow.Load(), int32(1))
	assert.Greater(t, fast.Load(), slow.Load())
}

func TestScheduler_TasksNeverOverlap(t *testing.T) {
	running := atomic.NewInt32(0)
	overlaps := atomic.NewInt32(0)
	work := func(context.Context) {
		if running.Inc() > 1 {
			overlaps.Inc()
		}
		time.Sleep(2 * time.Millisecond)
		running.Dec()
	}

	s, err := NewScheduler([]Task{
		{Name: "a", Period: 3 * time.Millisecond, Run: work},
		{Name: "b", Period: 3 * time.Millisecond, Run: work},
		{Name: "c", Period: 5 * time.Millisecond, Run: work},
	}, nil, logging.Nop())
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	time.Sleep(150 * time.Millisecond)
	s.Cancel()

	assert.Zero(t, overlaps.Load())
}

func TestScheduler_NoTaskStartsAfterCancel(t *testing.T) {
	runs := atomic.NewInt32(0)
	s, err := NewScheduler([]Task{
		{Name: "tick", Period: time.Millisecond, Run: func(context.Context) { runs.Inc() }},
	}, nil, logging.Nop())
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))

	assert.Eventually(t, func() bool { return runs.Load() > 3 }, time.Second, time.Millisecond)
	s.Cancel()
	after := runs.Load()
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, after, runs.Load())
	assert.True(t, s.Cancelled())
}

func TestScheduler_ObserverSeesEveryTick(t *testing.T) {
	var mutex sync.Mutex
	var names []string
	observer := func(name string, at time.Time) {
		mutex.Lock()
		defer mutex.Unlock()
		names = append(names, name)
	}
	runs := atomic.NewInt32(0)

	s, err := NewScheduler([]Task{
		{Name: "reconcile", Period: 5 * time.Millisecond, Run: func(context.Context) { runs.Inc() }},
	}, observer, logging.Nop())
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	assert.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, time.Millisecond)
	s.Cancel()

	mutex.Lock()
	defer mutex.Unlock()
	assert.Equal(t, int(runs.Load()), len(names))
	for _, name := range names {
		assert.Equal(t, "reconcile", name)
	}
}

func TestScheduler_StartTwiceConflicts(t *testing.T) {
	s, err := NewScheduler(nil, nil, logging.Nop())
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	assert.True(t, errors.IsConflictError(s.Start(context.Background())))
	s.Cancel()
}

func TestScheduler_CancelBeforeStart(t *testing.T) {
	s, err := NewScheduler(nil, nil, logging.Nop())
	require.NoError(t, err)
	assert.NotPanics(t, s.Cancel)
}

func TestScheduler_StopsOnContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	runs := atomic.NewInt32(0)
	s, err := NewScheduler([]Task{
		{Name: "tick", Period: time.Millisecond, Run: func(context.Context) { runs.Inc() }},
	}, nil, logging.Nop())
	require.NoError(t, err)
	require.NoError(t, s.Start(ctx))

	assert.Eventually(t, func() bool { return runs.Load() > 0 }, time.Second, time.Millisecond)
	cancel()
	s.Cancel()
}
