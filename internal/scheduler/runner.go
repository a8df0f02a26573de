package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/raulk/clock"
	"github.com/tevino/abool"
	"go.uber.org/zap"
)

// Task is a recurring job. Run is invoked once on Start and then every Interval.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func()
}

// Handle identifies a started task.
type Handle struct {
	task    Task
	stopped *abool.AtomicBool
	cancel  context.CancelFunc
	done    chan struct{}
}

// Done is closed once the task loop has exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

func (h *Handle) Stopped() bool {
	return h.stopped.IsSet()
}

// Runner runs recurring tasks on a clock.
type Runner struct {
	clock clock.Clock

	mu    sync.Mutex
	tasks map[*Handle]struct{}
}

func NewRunner(clk clock.Clock) *Runner {
	if clk == nil {
		clk = clock.New()
	}
	return &Runner{
		clock: clk,
		tasks: make(map[*Handle]struct{}),
	}
}

// Start begins running task until Stop is called or ctx is canceled.
func (r *Runner) Start(ctx context.Context, task Task) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{
		task:    task,
		stopped: abool.New(),
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	r.mu.Lock()
	r.tasks[h] = struct{}{}
	r.mu.Unlock()

	// Ticker exists before Start returns; clock advances after Start are never missed.
	ticker := r.clock.Ticker(task.Interval)

	zap.L().Debug("Task started",
		zap.String("task", task.Name),
		zap.Duration("interval", task.Interval),
	)

	go func() {
		defer close(h.done)
		defer ticker.Stop()

		r.runOnce(h)
		for {
			select {
			case <-ctx.Done():
				zap.L().Debug("Task loop exiting", zap.String("task", task.Name))
				return
			case <-ticker.C:
				r.runOnce(h)
			}
		}
	}()

	return h
}

func (r *Runner) runOnce(h *Handle) {
	if h.stopped.IsSet() {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			zap.L().Error("Task panicked", zap.String("task", h.task.Name), zap.Any("recover", rec))
		}
	}()
	h.task.Run()
}

// Stop prevents any further run of the task. It does not wait for a run
// that is already in progress.
func (r *Runner) Stop(h *Handle) {
	if h == nil || !h.stopped.SetToIf(false, true) {
		return
	}
	h.cancel()

	r.mu.Lock()
	delete(r.tasks, h)
	r.mu.Unlock()

	zap.L().Debug("Task stopped", zap.String("task", h.task.Name))
}

// StopAll stops every task started by r.
func (r *Runner) StopAll() {
	r.mu.Lock()
	handles := make([]*Handle, 0, len(r.tasks))
	for h := range r.tasks {
		handles = append(handles, h)
	}
	r.mu.Unlock()

	for _, h := range handles {
		r.Stop(h)
	}
}

// Running returns the number of tasks not yet stopped.
func (r *Runner) Running() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}
