package schedule

import (
	"sync"
	"time"
)

// Task is a pending callback. Cancel reports whether it stopped the task
// before it ran.
type Task interface {
	Cancel() bool
}

// Scheduler runs fn once after d. Implementations deliver every callback on
// the host's event goroutine so callers never need locks around UI state.
type Scheduler interface {
	After(d time.Duration, fn func()) Task
}

// Loop schedules with real timers and hands expired callbacks to post, which
// is expected to forward them into the host event loop.
type Loop struct {
	post func(func())
}

// NewLoop returns a scheduler whose callbacks are delivered through post.
func NewLoop(post func(func())) *Loop {
	return &Loop{post: post}
}

type loopTask struct {
	mu        sync.Mutex
	timer     *time.Timer
	cancelled bool
	fired     bool
}

func (t *loopTask) Cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancelled || t.fired {
		return false
	}
	t.cancelled = true
	t.timer.Stop()
	return true
}

// claim marks the task as run unless it was cancelled first.
func (t *loopTask) claim() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancelled || t.fired {
		return false
	}
	t.fired = true
	return true
}

// After implements Scheduler. A task cancelled after its timer fired but
// before the host ran it is still dropped.
func (l *Loop) After(d time.Duration, fn func()) Task {
	task := &loopTask{}
	task.mu.Lock()
	task.timer = time.AfterFunc(d, func() {
		l.post(func() {
			if task.claim() {
				fn()
			}
		})
	})
	task.mu.Unlock()
	return task
}
