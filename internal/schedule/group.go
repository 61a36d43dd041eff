package schedule

import (
	"sync"
	"time"
)

// Group tracks the tasks one owner schedules so they can be cancelled
// together when the owner goes away. After Stop, new tasks are refused.
type Group struct {
	sched   Scheduler
	mu      sync.Mutex
	next    int
	tasks   map[int]Task
	stopped bool
}

// NewGroup wraps sched.
func NewGroup(sched Scheduler) *Group {
	return &Group{sched: sched, tasks: map[int]Task{}}
}

type noopTask struct{}

func (noopTask) Cancel() bool { return false }

// After implements Scheduler. The task forgets itself once it runs.
func (g *Group) After(d time.Duration, fn func()) Task {
	g.mu.Lock()
	if g.stopped {
		g.mu.Unlock()
		return noopTask{}
	}
	g.next++
	id := g.next
	// Reserve the slot first so a zero delay cannot fire before registration.
	g.tasks[id] = nil
	g.mu.Unlock()

	task := g.sched.After(d, func() {
		g.mu.Lock()
		_, live := g.tasks[id]
		delete(g.tasks, id)
		g.mu.Unlock()
		if live {
			fn()
		}
	})

	g.mu.Lock()
	defer g.mu.Unlock()
	if _, live := g.tasks[id]; live {
		g.tasks[id] = task
	} else if g.stopped {
		task.Cancel()
	}
	return &groupTask{group: g, id: id, task: task}
}

type groupTask struct {
	group *Group
	id    int
	task  Task
}

func (t *groupTask) Cancel() bool {
	t.group.mu.Lock()
	delete(t.group.tasks, t.id)
	t.group.mu.Unlock()
	return t.task.Cancel()
}

// Len counts the tasks still outstanding.
func (g *Group) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.tasks)
}

// CancelAll cancels outstanding tasks but keeps the group usable.
func (g *Group) CancelAll() int {
	g.mu.Lock()
	tasks := g.tasks
	g.tasks = map[int]Task{}
	g.mu.Unlock()
	n := 0
	for _, t := range tasks {
		if t != nil && t.Cancel() {
			n++
		}
	}
	return n
}

// Stop cancels outstanding tasks and refuses new ones.
func (g *Group) Stop() int {
	g.mu.Lock()
	g.stopped = true
	g.mu.Unlock()
	return g.CancelAll()
}

// Stopped reports whether Stop has been called.
func (g *Group) Stopped() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stopped
}
