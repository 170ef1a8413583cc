package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/core-tools/hsu-uplink/pkg/errors"
	"github.com/core-tools/hsu-uplink/pkg/logging"

	"go.uber.org/atomic"
)

// Task is one periodic job. Run must return promptly: anything slow
// belongs on its own goroutine.
type Task struct {
	Name   string
	Period time.Duration
	Run    func(ctx context.Context)
}

// TickObserver is told about every task execution, before it runs
type TickObserver func(name string, at time.Time)

// Scheduler runs every task on a single goroutine, earliest deadline first.
// Tasks never overlap. Each starts immediately and then repeats after its
// period.
type Scheduler struct {
	tasks    []Task
	observer TickObserver
	logger   logging.Logger

	cancelled *atomic.Bool
	started   *atomic.Bool
	stop      chan struct{}
	stopOnce  sync.Once
	done      chan struct{}
}

func NewScheduler(tasks []Task, observer TickObserver, logger logging.Logger) (*Scheduler, error) {
	for _, task := range tasks {
		if task.Period <= 0 {
			return nil, errors.NewValidationError("task period must be positive", nil).WithContext("task", task.Name)
		}
		if task.Run == nil {
			return nil, errors.NewValidationError("task has no run function", nil).WithContext("task", task.Name)
		}
	}
	return &Scheduler{
		tasks:     append([]Task(nil), tasks...),
		observer:  observer,
		logger:    logger,
		cancelled: atomic.NewBool(false),
		started:   atomic.NewBool(false),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}, nil
}

// Start launches the scheduler goroutine. The context is handed to every task.
func (s *Scheduler) Start(ctx context.Context) error {
	if !s.started.CAS(false, true) {
		return errors.NewConflictError("scheduler already started", nil)
	}
	go s.loop(ctx)
	return nil
}

// Cancel stops scheduling and waits for an in-flight task to finish. No task
// begins after Cancel returns. Must not be called from inside a task.
func (s *Scheduler) Cancel() {
	s.cancelled.Store(true)
	s.stopOnce.Do(func() { close(s.stop) })
	if s.started.Load() {
		<-s.done
	}
}

func (s *Scheduler) Cancelled() bool {
	return s.cancelled.Load()
}

type entry struct {
	task     Task
	deadline time.Time
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	now := time.Now()
	queue := make([]*entry, len(s.tasks))
	for i, task := range s.tasks {
		queue[i] = &entry{task: task, deadline: now}
	}

	if len(queue) == 0 {
		select {
		case <-s.stop:
		case <-ctx.Done():
		}
		return
	}

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		sort.SliceStable(queue, func(i, j int) bool { return queue[i].deadline.Before(queue[j].deadline) })

		for _, e := range queue {
			now = time.Now()
			if e.deadline.After(now) {
				break
			}
			if s.cancelled.Load() || ctx.Err() != nil {
				return
			}
			if s.observer != nil {
				s.observer(e.task.Name, now)
			}
			s.runTask(ctx, e.task)

			e.deadline = e.deadline.Add(e.task.Period)
			if after := time.Now(); e.deadline.Before(after) {
				// Fell behind, skip missed ticks instead of bursting.
				e.deadline = after.Add(e.task.Period)
			}
		}

		timer.Reset(time.Until(earliest(queue)))
	}
}

func (s *Scheduler) runTask(ctx context.Context, task Task) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Errorf("Task panicked, task: %s, panic: %v", task.Name, r)
			panic(r)
		}
	}()
	task.Run(ctx)
}

func earliest(queue []*entry) time.Time {
	next := queue[0].deadline
	for _, e := range queue[1:] {
		if e.deadline.Before(next) {
			next = e.deadline
		}
	}
	return next
}
