package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"IgniteX/pkg/logger"
)

// Task is one named fixed-period job.
type Task struct {
	Name     string
	Interval time.Duration
	// RunOnStart runs the task once before the first tick.
	RunOnStart bool
	Run        func(ctx context.Context)
}

// Runner runs every task on its own goroutine. A run that overruns its interval
// delays the next one instead of overlapping it.
type Runner struct {
	tasks   []Task
	log     *logger.Logger
	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

func NewRunner(log *logger.Logger) *Runner {
	return &Runner{log: log}
}

// Add registers a task. Tasks added after Start are rejected.
func (r *Runner) Add(t Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return fmt.Errorf("scheduler already started")
	}
	if t.Interval <= 0 || t.Run == nil {
		return fmt.Errorf("task %q: interval and run func are required", t.Name)
	}
	r.tasks = append(r.tasks, t)
	return nil
}

// Start launches all tasks. They stop when ctx is cancelled or Stop is called.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return
	}
	r.started = true
	ctx, r.cancel = context.WithCancel(ctx)
	tasks := append([]Task(nil), r.tasks...)
	r.mu.Unlock()

	for _, t := range tasks {
		r.wg.Add(1)
		go r.loop(ctx, t)
	}
	r.log.Info("scheduler started", logger.Int("tasks", len(tasks)))
}

func (r *Runner) loop(ctx context.Context, t Task) {
	defer r.wg.Done()
	if t.RunOnStart {
		r.runOnce(ctx, t)
	}
	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.runOnce(ctx, t)
		}
	}
}

func (r *Runner) runOnce(ctx context.Context, t Task) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("scheduled task panicked", logger.String("task", t.Name), logger.Any("panic", p))
		}
	}()
	start := time.Now()
	t.Run(ctx)
	if d := time.Since(start); d > t.Interval {
		r.log.Warn("scheduled task overran its interval",
			logger.String("task", t.Name),
			logger.Duration("took", d),
			logger.Duration("interval", t.Interval))
	}
}

// Stop cancels every task and waits for in-flight runs to return.
func (r *Runner) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
}
