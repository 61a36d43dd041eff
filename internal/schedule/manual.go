package schedule

import "time"

// Manual is a virtual clock. Callbacks run on the goroutine calling Advance,
// ordered by due time and then by creation order.
type Manual struct {
	now   time.Duration
	seq   int
	tasks []*manualTask
}

// NewManual returns a clock at time zero.
func NewManual() *Manual {
	return &Manual{}
}

type manualTask struct {
	due  time.Duration
	seq  int
	fn   func()
	done bool
}

func (t *manualTask) Cancel() bool {
	if t.done {
		return false
	}
	t.done = true
	return true
}

// After implements Scheduler.
func (m *Manual) After(d time.Duration, fn func()) Task {
	if d < 0 {
		d = 0
	}
	m.seq++
	task := &manualTask{due: m.now + d, seq: m.seq, fn: fn}
	m.tasks = append(m.tasks, task)
	return task
}

// Now is the virtual time elapsed since creation.
func (m *Manual) Now() time.Duration {
	return m.now
}

// Pending counts tasks that have neither run nor been cancelled.
func (m *Manual) Pending() int {
	n := 0
	for _, t := range m.tasks {
		if !t.done {
			n++
		}
	}
	return n
}

// Advance moves the clock forward by d, running every task that falls due.
// Tasks scheduled by callbacks run in the same call when they are due.
func (m *Manual) Advance(d time.Duration) {
	target := m.now + d
	for {
		next := m.next(target)
		if next == nil {
			break
		}
		m.now = next.due
		next.done = true
		next.fn()
	}
	m.now = target
	m.compact()
}

// RunAll advances until no tasks remain, bounded by limit.
func (m *Manual) RunAll(limit time.Duration) {
	end := m.now + limit
	for m.Pending() > 0 && m.now < end {
		next := m.next(end)
		if next == nil {
			break
		}
		m.Advance(next.due - m.now)
	}
}

func (m *Manual) next(target time.Duration) *manualTask {
	var best *manualTask
	for _, t := range m.tasks {
		if t.done || t.due > target {
			continue
		}
		if best == nil || t.due < best.due || (t.due == best.due && t.seq < best.seq) {
			best = t
		}
	}
	return best
}

func (m *Manual) compact() {
	live := m.tasks[:0]
	for _, t := range m.tasks {
		if !t.done {
			live = append(live, t)
		}
	}
	m.tasks = live
}
