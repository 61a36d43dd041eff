package dispatch

import (
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/csheth/studydesk/internal/annotate"
	"github.com/csheth/studydesk/internal/document"
	"github.com/csheth/studydesk/internal/protocol"
	"github.com/csheth/studydesk/internal/schedule"
	"github.com/csheth/studydesk/internal/viewer"
)

type call struct {
	at   time.Duration
	what string
}

type fakeHandle struct {
	clock *schedule.Manual
	calls []call
}

func (f *fakeHandle) record(format string, args ...any) {
	f.calls = append(f.calls, call{at: f.clock.Now(), what: fmt.Sprintf(format, args...)})
}

func (f *fakeHandle) GotoPage(index int, blink bool) { f.record("goto %d %v", index, blink) }
func (f *fakeHandle) Highlight(term string)          { f.record("search %s", term) }
func (f *fakeHandle) ScrollToPosition(p int, term string, style viewer.Style) {
	f.record("scroll %d %s %s", p, term, style)
}
func (f *fakeHandle) ProcessNewAnnotations(items []annotate.Item) {
	f.record("annotate %v", items)
}

func newTestDispatcher(pages int) (*Dispatcher, *fakeHandle, *schedule.Manual) {
	clock := schedule.NewManual()
	handle := &fakeHandle{clock: clock}
	d := New(handle, Options{Scheduler: clock, PageCount: func() int { return pages }})
	return d, handle, clock
}

func TestPlanTiming(t *testing.T) {
	t.Parallel()

	cmds := []protocol.Command{
		protocol.Page{PageIndex: 2},
		protocol.Highlight{PageIndex: 0, Term: "x"},
		protocol.Highlight{PageIndex: 1, Term: "y"},
		protocol.Annotate{PageIndex: 0, Text: "z"},
	}
	got := Plan(cmds)
	want := []Step{
		{At: 500 * time.Millisecond, Action: ActionGotoPage, PageIndex: 2},
		{At: 1000 * time.Millisecond, Action: ActionHighlight, PageIndex: 0, Term: "x"},
		{At: 6000 * time.Millisecond, Action: ActionHighlight, PageIndex: 1, Term: "y"},
		{At: 12000 * time.Millisecond, Action: ActionAnnotate, Annotations: []annotate.Item{{PageIndex: 0, Text: "z"}}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Plan:\n got %+v\nwant %+v", got, want)
	}
	if Duration(got) != 12*time.Second {
		t.Fatalf("Duration: %v", Duration(got))
	}
}

func TestPlanWithoutPageStartsImmediately(t *testing.T) {
	t.Parallel()

	got := Plan([]protocol.Command{
		protocol.Highlight{PageIndex: 0, Term: "x"},
		protocol.Annotate{PageIndex: 0, Text: "a"},
		protocol.Annotate{PageIndex: 1, Text: "b"},
	})
	if len(got) != 2 || got[0].At != 0 || got[1].At != 6*time.Second {
		t.Fatalf("Plan: %+v", got)
	}
	if len(got[1].Annotations) != 2 {
		t.Fatalf("annotations should be batched: %+v", got[1])
	}

	only := Plan([]protocol.Command{protocol.Annotate{PageIndex: 0, Text: "a"}})
	if len(only) != 1 || only[0].At != AnnotateDelay {
		t.Fatalf("annotate-only plan: %+v", only)
	}
}

func TestPlanUsesFirstPageOnly(t *testing.T) {
	t.Parallel()

	got := Plan([]protocol.Command{protocol.Page{PageIndex: 4}, protocol.Page{PageIndex: 1}})
	if len(got) != 1 || got[0].PageIndex != 4 {
		t.Fatalf("Plan: %+v", got)
	}
}

func TestDispatchFiresInOrder(t *testing.T) {
	t.Parallel()

	d, handle, clock := newTestDispatcher(5)
	d.Dispatch([]protocol.Command{
		protocol.Page{PageIndex: 2},
		protocol.Highlight{PageIndex: 0, Term: "x"},
		protocol.Highlight{PageIndex: 1, Term: "y"},
		protocol.Annotate{PageIndex: 0, Text: "z"},
	})
	clock.Advance(20 * time.Second)
	want := []call{
		{at: 500 * time.Millisecond, what: "goto 2 true"},
		{at: 1000 * time.Millisecond, what: "scroll 0 x highlight"},
		{at: 6000 * time.Millisecond, what: "scroll 1 y highlight"},
		{at: 12000 * time.Millisecond, what: "annotate [{0 z}]"},
	}
	if !reflect.DeepEqual(handle.calls, want) {
		t.Fatalf("calls:\n got %+v\nwant %+v", handle.calls, want)
	}
	if d.Busy() {
		t.Fatalf("dispatcher should be idle")
	}
}

func TestDispatchQueuesPlansWithoutInterleaving(t *testing.T) {
	t.Parallel()

	d, handle, clock := newTestDispatcher(5)
	d.Dispatch([]protocol.Command{
		protocol.Highlight{PageIndex: 0, Term: "a"},
		protocol.Highlight{PageIndex: 0, Term: "b"},
	})
	clock.Advance(time.Second)
	d.Dispatch([]protocol.Command{protocol.Page{PageIndex: 3}})
	if d.Queued() != 1 {
		t.Fatalf("second plan should wait, queued=%d", d.Queued())
	}
	clock.Advance(20 * time.Second)
	want := []call{
		{at: 0, what: "scroll 0 a highlight"},
		{at: 5 * time.Second, what: "scroll 0 b highlight"},
		{at: 5*time.Second + PageDelay, what: "goto 3 true"},
	}
	if !reflect.DeepEqual(handle.calls, want) {
		t.Fatalf("calls:\n got %+v\nwant %+v", handle.calls, want)
	}
}

func TestDispatchDropsOutOfRangeCommands(t *testing.T) {
	t.Parallel()

	d, handle, clock := newTestDispatcher(2)
	n := d.Dispatch([]protocol.Command{
		protocol.Page{PageIndex: 9},
		protocol.Highlight{PageIndex: 1, Term: "ok"},
		protocol.Annotate{PageIndex: 5, Text: "lost"},
	})
	if n != 1 {
		t.Fatalf("steps: got %d want 1", n)
	}
	clock.Advance(10 * time.Second)
	if len(handle.calls) != 1 || handle.calls[0].what != "scroll 1 ok highlight" || handle.calls[0].at != 0 {
		t.Fatalf("calls: %+v", handle.calls)
	}
}

func TestCancelAndClose(t *testing.T) {
	t.Parallel()

	d, handle, clock := newTestDispatcher(5)
	d.Dispatch([]protocol.Command{protocol.Page{PageIndex: 1}, protocol.Highlight{PageIndex: 1, Term: "x"}})
	d.Dispatch([]protocol.Command{protocol.Page{PageIndex: 2}})
	clock.Advance(600 * time.Millisecond)
	d.Cancel()
	clock.Advance(20 * time.Second)
	if len(handle.calls) != 1 {
		t.Fatalf("only the first step should have fired: %+v", handle.calls)
	}

	d.Dispatch([]protocol.Command{protocol.Page{PageIndex: 3}})
	clock.Advance(time.Second)
	if len(handle.calls) != 2 {
		t.Fatalf("dispatcher should accept work after Cancel: %+v", handle.calls)
	}

	d.Close()
	if n := d.Dispatch([]protocol.Command{protocol.Page{PageIndex: 0}}); n != 0 {
		t.Fatalf("Dispatch after Close planned %d steps", n)
	}
	if clock.Pending() != 0 {
		t.Fatalf("pending after close: %d", clock.Pending())
	}
}

func TestDispatchDrivesRealViewer(t *testing.T) {
	t.Parallel()

	clock := schedule.NewManual()
	v := viewer.New(documentWithPages(3), viewer.Options{Scheduler: clock})
	defer v.Close()
	d := New(v, Options{Scheduler: clock, PageCount: v.PageCount})
	defer d.Close()

	reply := protocol.Parse("See page[2].\ncommands:\n/page/2\n/highlight/3/gamma\n/annotate/1/extra context")
	d.Dispatch(reply.Commands)
	clock.Advance(PageDelay)
	if v.CurrentPage() != 1 {
		t.Fatalf("page: %d", v.CurrentPage())
	}
	clock.Advance(PageSlot - PageDelay)
	if s := v.State(); s.Active == nil || s.Active.Term != "gamma" || s.CurrentPage != 2 {
		t.Fatalf("highlight state: %+v", s)
	}
	clock.Advance(HighlightInterval + AnnotateDelay)
	if s := v.State(); s.Typing == nil || s.Typing.FullText != "extra context" {
		t.Fatalf("annotation should be typing: %+v", s)
	}
	clock.Advance(5 * time.Second)
	if got := v.Content().Annotations(0); !reflect.DeepEqual(got, []string{"extra context"}) {
		t.Fatalf("annotations: %v", got)
	}
}

func documentWithPages(n int) document.Content {
	texts := []string{"alpha beta", "beta delta", "gamma ray"}
	return document.FromTexts(texts[:n]...)
}
