package tui

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/csheth/studydesk/internal/logger"
)

type jobKind string

const (
	jobKindChat       jobKind = "chat"
	jobKindFlashcards jobKind = "flashcards"
	jobKindSummary    jobKind = "summary"
)

var jobKinds = []jobKind{jobKindChat, jobKindFlashcards, jobKindSummary}

// job is one request the UI is waiting on.
type job struct {
	id      string
	kind    jobKind
	started time.Time
}

// jobDoneMsg brings a finished job and its runner's message back to Update.
type jobDoneMsg struct {
	job     job
	err     error
	payload tea.Msg
}

type jobRunner func(context.Context) (tea.Msg, error)

// jobBus runs tutor requests off the event loop, at most one per kind, each
// under its kind's time limit. Its state is only touched from Update.
type jobBus struct {
	seq    int
	log    logger.Logger
	limits map[jobKind]time.Duration
	active map[jobKind]job
	now    func() time.Time
}

func newJobBus(log logger.Logger) *jobBus {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &jobBus{
		log: log,
		limits: map[jobKind]time.Duration{
			jobKindChat:       chatTimeout,
			jobKindFlashcards: generationTimeout,
			jobKindSummary:    generationTimeout,
		},
		active: map[jobKind]job{},
		now:    time.Now,
	}
}

func (b *jobBus) Busy(kind jobKind) bool {
	_, ok := b.active[kind]
	return ok
}

// Active lists running kinds in display order.
func (b *jobBus) Active() []jobKind {
	var kinds []jobKind
	for _, kind := range jobKinds {
		if b.Busy(kind) {
			kinds = append(kinds, kind)
		}
	}
	return kinds
}

// Start marks kind busy and returns the command that runs it. It returns nil
// while a job of the same kind is still running.
func (b *jobBus) Start(kind jobKind, runner jobRunner) tea.Cmd {
	if b.Busy(kind) {
		return nil
	}
	b.seq++
	j := job{id: fmt.Sprintf("%s-%d", kind, b.seq), kind: kind, started: b.now()}
	b.active[kind] = j
	limit := b.limits[kind]
	b.log.Debug("%s started (limit %s)", j.id, limit)

	return func() tea.Msg {
		ctx := context.Background()
		if limit > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, limit)
			defer cancel()
		}
		payload, err := runner(ctx)
		return jobDoneMsg{job: j, err: err, payload: payload}
	}
}

// Finish clears the job and logs how it ended. A result for a job that is no
// longer the active one of its kind is ignored and reported false.
func (b *jobBus) Finish(msg jobDoneMsg) bool {
	current, ok := b.active[msg.job.kind]
	if !ok || current.id != msg.job.id {
		b.log.Debug("%s finished but is no longer tracked", msg.job.id)
		return false
	}
	delete(b.active, msg.job.kind)
	elapsed := b.now().Sub(msg.job.started).Round(time.Millisecond)
	if msg.err != nil {
		b.log.Warn("%s failed after %s: %v", msg.job.id, elapsed, msg.err)
	} else {
		b.log.Info("%s done in %s", msg.job.id, elapsed)
	}
	return true
}
