package dispatch

import (
	"github.com/csheth/studydesk/internal/logger"
	"github.com/csheth/studydesk/internal/protocol"
	"github.com/csheth/studydesk/internal/schedule"
	"github.com/csheth/studydesk/internal/viewer"
)

// Options wires a dispatcher to its host.
type Options struct {
	Scheduler schedule.Scheduler
	Log       logger.Logger
	// PageCount bounds page references. Commands pointing outside the
	// document are dropped before planning. Nil disables the check.
	PageCount func() int
}

// Dispatcher replays reply commands against a viewer handle. Plans from
// successive replies queue behind each other and never interleave. Like the
// viewer it expects every call and callback on the host event loop.
type Dispatcher struct {
	handle    viewer.Handle
	tasks     *schedule.Group
	log       logger.Logger
	pageCount func() int

	queue     [][]Step
	remaining int
	closed    bool
}

// New returns a dispatcher driving handle.
func New(handle viewer.Handle, opts Options) *Dispatcher {
	if opts.Log == nil {
		opts.Log = logger.NewNoOpLogger()
	}
	if opts.Scheduler == nil {
		opts.Scheduler = schedule.NewManual()
	}
	return &Dispatcher{
		handle:    handle,
		tasks:     schedule.NewGroup(opts.Scheduler),
		log:       opts.Log,
		pageCount: opts.PageCount,
	}
}

// Dispatch plans cmds and runs the plan now, or after the plans already
// queued. It returns the number of steps planned.
func (d *Dispatcher) Dispatch(cmds []protocol.Command) int {
	if d.closed {
		return 0
	}
	steps := Plan(d.inRange(cmds))
	if len(steps) == 0 {
		return 0
	}
	d.queue = append(d.queue, steps)
	d.log.Debug("planned %d steps over %v (%d plans waiting)", len(steps), Duration(steps), len(d.queue))
	if !d.Busy() {
		d.startNext()
	}
	return len(steps)
}

// Busy reports whether a plan is running.
func (d *Dispatcher) Busy() bool {
	return d.remaining > 0
}

// Queued counts plans waiting behind the running one.
func (d *Dispatcher) Queued() int {
	if d.Busy() {
		return len(d.queue)
	}
	return 0
}

// Cancel drops the running plan and everything queued.
func (d *Dispatcher) Cancel() {
	n := d.tasks.CancelAll()
	d.queue = nil
	d.remaining = 0
	if n > 0 {
		d.log.Debug("cancelled %d pending steps", n)
	}
}

// Close cancels outstanding work and refuses new plans.
func (d *Dispatcher) Close() {
	d.Cancel()
	d.closed = true
	d.tasks.Stop()
}

func (d *Dispatcher) startNext() {
	if d.closed || len(d.queue) == 0 {
		return
	}
	steps := d.queue[0]
	d.queue = d.queue[1:]
	d.remaining = len(steps)
	for _, step := range steps {
		step := step
		d.tasks.After(step.At, func() {
			d.run(step)
			d.remaining--
			if d.remaining == 0 {
				d.startNext()
			}
		})
	}
}

func (d *Dispatcher) run(step Step) {
	d.log.Debug("step %s page=%d term=%q notes=%d", step.Action, step.PageIndex+1, step.Term, len(step.Annotations))
	switch step.Action {
	case ActionGotoPage:
		d.handle.GotoPage(step.PageIndex, true)
	case ActionHighlight:
		d.handle.ScrollToPosition(step.PageIndex, step.Term, viewer.StyleHighlight)
	case ActionAnnotate:
		d.handle.ProcessNewAnnotations(step.Annotations)
	}
}

func (d *Dispatcher) inRange(cmds []protocol.Command) []protocol.Command {
	if d.pageCount == nil {
		return cmds
	}
	total := d.pageCount()
	out := make([]protocol.Command, 0, len(cmds))
	for _, cmd := range cmds {
		if cmd.Target() < 0 || cmd.Target() >= total {
			d.log.Warn("dropping %s: document has %d pages", cmd, total)
			continue
		}
		out = append(out, cmd)
	}
	return out
}
