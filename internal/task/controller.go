// Package task owns the externally visible unit of work: its state
// machine, the bounded execution queue and the append-only progress
// event log with live and late-attaching subscribers.
package task

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/joss/ensemble/internal/domain"
	"github.com/joss/ensemble/internal/logging"
)

// ErrNotFound indicates the task id never existed.
var ErrNotFound = errors.New("task not found")

// ErrCancelled is the terminal failure reason for user cancellation.
var ErrCancelled = errors.New("cancelled by user")

// ErrQueueFull indicates the submission queue is saturated.
var ErrQueueFull = errors.New("task queue is full")

// Runner executes one task's work. It is called on a worker goroutine
// with the task already RUNNING. Cancellation is cooperative: the
// runner checks rep.Cancelled between dispatch steps and returns
// ErrCancelled; in-flight provider calls are never forcibly killed,
// only their results discarded.
type Runner func(ctx context.Context, t domain.Task, rep *Reporter) (*domain.TaskResult, error)

// Reporter lets a runner publish progress and observe cancellation.
type Reporter struct {
	ctrl      *Controller
	taskID    string
	cancelled *atomic.Bool
}

// Progress records a progress step on the task's event log.
func (r *Reporter) Progress(pct int, stage string) {
	r.ctrl.progress(r.taskID, pct, stage)
}

// Cancelled reports whether the task has been cancelled.
func (r *Reporter) Cancelled() bool { return r.cancelled.Load() }

const subscriberBuffer = 64

type entry struct {
	task      domain.Task
	events    []domain.TaskEvent
	subs      map[int]chan domain.TaskEvent
	nextSub   int
	cancelled atomic.Bool
}

// Controller drives tasks from QUEUED through their terminal state,
// honoring a maximum-concurrent-tasks bound.
type Controller struct {
	mu     sync.RWMutex
	tasks  map[string]*entry
	queue  chan string
	runner Runner
	log    zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a controller with maxConcurrent worker goroutines.
func New(runner Runner, maxConcurrent int) *Controller {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		tasks:  make(map[string]*entry),
		queue:  make(chan string, 256),
		runner: runner,
		log:    logging.New("task"),
		ctx:    ctx,
		cancel: cancel,
	}
	for i := 0; i < maxConcurrent; i++ {
		c.wg.Add(1)
		go c.worker()
	}
	return c
}

// Shutdown stops accepting work and waits for running tasks to finish.
func (c *Controller) Shutdown() {
	c.cancel()
	close(c.queue)
	c.wg.Wait()
}

// Submit queues one operation and returns the new task id.
func (c *Controller) Submit(op domain.Operation, strategy domain.Strategy, providers []string) (string, error) {
	t := domain.Task{
		ID:        uuid.NewString(),
		Operation: op,
		Strategy:  strategy,
		Providers: append([]string(nil), providers...),
		State:     domain.TaskQueued,
		Stage:     "queued",
		CreatedAt: time.Now().UTC(),
	}

	e := &entry{task: t, subs: make(map[int]chan domain.TaskEvent)}

	c.mu.Lock()
	c.tasks[t.ID] = e
	c.appendEventLocked(e, domain.TaskQueued, 0, "queued", "")
	c.mu.Unlock()

	select {
	case c.queue <- t.ID:
	default:
		c.mu.Lock()
		c.failLocked(e, ErrQueueFull.Error())
		c.mu.Unlock()
		return "", ErrQueueFull
	}

	c.log.Info().Str("task", t.ID).Str("strategy", string(strategy)).Msg("task queued")
	return t.ID, nil
}

// Get returns a snapshot of the task.
func (c *Controller) Get(id string) (domain.Task, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.tasks[id]
	if !ok {
		return domain.Task{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e.task, nil
}

// List returns task snapshots, newest first, optionally filtered by
// state, with offset/limit pagination. A zero limit means no bound.
func (c *Controller) List(state domain.TaskState, limit, offset int) []domain.Task {
	c.mu.RLock()
	out := make([]domain.Task, 0, len(c.tasks))
	for _, e := range c.tasks {
		if state != "" && e.task.State != state {
			continue
		}
		out = append(out, e.task)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Subscribe returns a channel of the task's progress events. All past
// events are replayed first, so a subscriber attaching after
// completion still receives the full history ending in the terminal
// event. The channel closes after a terminal event is delivered.
func (c *Controller) Subscribe(id string) (<-chan domain.TaskEvent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	ch := make(chan domain.TaskEvent, subscriberBuffer+len(e.events))
	for _, ev := range e.events {
		ch <- ev
	}

	if e.task.State.Terminal() {
		close(ch)
		return ch, nil
	}

	key := e.nextSub
	e.nextSub++
	e.subs[key] = ch
	return ch, nil
}

// Cancel flags the task for cooperative cancellation. A task still in
// the queue fails immediately; a running task fails at its next
// cancellation check. Terminal tasks are left untouched.
func (c *Controller) Cancel(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if e.task.State.Terminal() {
		return nil
	}
	e.cancelled.Store(true)
	if e.task.State == domain.TaskQueued {
		c.failLocked(e, ErrCancelled.Error())
	}
	return nil
}

func (c *Controller) worker() {
	defer c.wg.Done()
	for id := range c.queue {
		c.runTask(id)
	}
}

func (c *Controller) runTask(id string) {
	c.mu.Lock()
	e, ok := c.tasks[id]
	if !ok || e.task.State != domain.TaskQueued {
		// Cancelled while queued, or already handled.
		c.mu.Unlock()
		return
	}
	e.task.State = domain.TaskRunning
	e.task.StartedAt = time.Now().UTC()
	e.task.Stage = "running"
	c.appendEventLocked(e, domain.TaskRunning, 5, "running", "")
	snapshot := e.task
	c.mu.Unlock()

	rep := &Reporter{ctrl: c, taskID: id, cancelled: &e.cancelled}

	// A panicking runner fails its task instead of taking down the
	// worker pool.
	var result *domain.TaskResult
	err := logging.WrapError("task", func() error {
		var rerr error
		result, rerr = c.runner(c.ctx, snapshot, rep)
		return rerr
	})

	c.mu.Lock()
	defer c.mu.Unlock()

	if e.task.State.Terminal() {
		return
	}
	if err != nil {
		c.failLocked(e, err.Error())
		c.log.Warn().Str("task", id).Err(err).Msg("task failed")
		return
	}

	e.task.State = domain.TaskCompleted
	e.task.Progress = 100
	e.task.Stage = "done"
	e.task.Result = result
	e.task.CompletedAt = time.Now().UTC()
	c.appendEventLocked(e, domain.TaskCompleted, 100, "done", "")
	c.log.Info().Str("task", id).Msg("task completed")
}

func (c *Controller) progress(id string, pct int, stage string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.tasks[id]
	if !ok || e.task.State.Terminal() {
		return
	}
	e.task.Progress = pct
	e.task.Stage = stage
	c.appendEventLocked(e, e.task.State, pct, stage, "")
}

// failLocked transitions to FAILED preserving the reason verbatim.
// Caller holds c.mu.
func (c *Controller) failLocked(e *entry, reason string) {
	if e.task.State.Terminal() {
		return
	}
	e.task.State = domain.TaskFailed
	e.task.Error = reason
	e.task.Stage = "failed"
	e.task.CompletedAt = time.Now().UTC()
	c.appendEventLocked(e, domain.TaskFailed, e.task.Progress, "failed", reason)
}

// appendEventLocked appends to the event log and fans out to
// subscribers. Terminal events close every subscriber channel.
// Caller holds c.mu.
func (c *Controller) appendEventLocked(e *entry, state domain.TaskState, pct int, stage, errStr string) {
	ev := domain.TaskEvent{
		ID:       ulid.Make().String(),
		TaskID:   e.task.ID,
		State:    state,
		Progress: pct,
		Stage:    stage,
		Error:    errStr,
		At:       time.Now().UTC(),
	}
	e.events = append(e.events, ev)

	for key, ch := range e.subs {
		select {
		case ch <- ev:
		default:
			// Slow subscriber; drop rather than stall the controller.
		}
		if state.Terminal() {
			close(ch)
			delete(e.subs, key)
		}
	}
}
