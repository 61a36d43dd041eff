package dispatch

import (
	"fmt"
	"time"

	"github.com/csheth/studydesk/internal/annotate"
	"github.com/csheth/studydesk/internal/protocol"
)

// Fixed pacing for replaying a reply's commands. The viewer changes one
// thing at a time so the reader can follow along.
const (
	PageDelay         = 500 * time.Millisecond
	PageSlot          = 1000 * time.Millisecond
	HighlightInterval = 5000 * time.Millisecond
	AnnotateDelay     = 1000 * time.Millisecond
)

// Action is what a step does to the viewer.
type Action int

const (
	ActionGotoPage Action = iota
	ActionHighlight
	ActionAnnotate
)

func (a Action) String() string {
	switch a {
	case ActionGotoPage:
		return "goto-page"
	case ActionHighlight:
		return "highlight"
	case ActionAnnotate:
		return "annotate"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Step is one scheduled effect, At after the plan starts.
type Step struct {
	At          time.Duration
	Action      Action
	PageIndex   int
	Term        string
	Annotations []annotate.Item
}

// Plan lays out the effects of one reply. Only the first page command is
// used; highlights follow one per interval after the page slot, and all
// annotations are handed over together after the last highlight.
func Plan(cmds []protocol.Command) []Step {
	var steps []Step
	var offset time.Duration
	if page, ok := protocol.FirstPage(cmds); ok {
		steps = append(steps, Step{At: PageDelay, Action: ActionGotoPage, PageIndex: page.PageIndex})
		offset = PageSlot
	}
	highlights := protocol.Highlights(cmds)
	for k, h := range highlights {
		steps = append(steps, Step{
			At:        offset + time.Duration(k)*HighlightInterval,
			Action:    ActionHighlight,
			PageIndex: h.PageIndex,
			Term:      h.Term,
		})
	}
	offset += time.Duration(len(highlights)) * HighlightInterval
	if notes := protocol.Annotations(cmds); len(notes) > 0 {
		steps = append(steps, Step{
			At:          offset + AnnotateDelay,
			Action:      ActionAnnotate,
			Annotations: annotate.FromCommands(notes),
		})
	}
	return steps
}

// Duration is when the last step of a plan fires.
func Duration(steps []Step) time.Duration {
	var end time.Duration
	for _, s := range steps {
		if s.At > end {
			end = s.At
		}
	}
	return end
}
