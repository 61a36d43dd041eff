package viewer

import (
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/csheth/studydesk/internal/annotate"
	"github.com/csheth/studydesk/internal/document"
	"github.com/csheth/studydesk/internal/schedule"
)

type recordingSurface struct {
	anchors []Anchor
	mounted map[int]bool
}

func (s *recordingSurface) ScrollTo(a Anchor) bool {
	s.anchors = append(s.anchors, a)
	return s.mounted == nil || s.mounted[a.PageIndex]
}

func newTestViewer(t *testing.T, texts ...string) (*Viewer, *schedule.Manual, *recordingSurface) {
	t.Helper()
	clock := schedule.NewManual()
	surface := &recordingSurface{}
	v := New(document.FromTexts(texts...), Options{Scheduler: clock, Surface: surface})
	t.Cleanup(v.Close)
	return v, clock, surface
}

func TestSearchMatchesAndWraps(t *testing.T) {
	t.Parallel()

	v, _, _ := newTestViewer(t, "the cat sat", "a dog ran", "the cat ran")
	v.Highlight("cat")
	state := v.State()
	if !reflect.DeepEqual(state.Search.Matches, []int{0, 2}) {
		t.Fatalf("matches: got %v want [0 2]", state.Search.Matches)
	}
	if state.Search.Current != 0 || v.CurrentPage() != 0 {
		t.Fatalf("expected first match selected, got current=%d page=%d", state.Search.Current, v.CurrentPage())
	}
	v.NextMatch()
	if v.State().Search.Current != 1 || v.CurrentPage() != 2 {
		t.Fatalf("next: current=%d page=%d", v.State().Search.Current, v.CurrentPage())
	}
	v.NextMatch()
	if v.State().Search.Current != 0 || v.CurrentPage() != 0 {
		t.Fatalf("wrap: current=%d page=%d", v.State().Search.Current, v.CurrentPage())
	}
	v.PrevMatch()
	if v.State().Search.Current != 1 {
		t.Fatalf("prev wrap: current=%d", v.State().Search.Current)
	}
}

func TestHighlightTrimsTerm(t *testing.T) {
	t.Parallel()

	v, _, _ := newTestViewer(t, "the cat", "bobcat", "a dog")
	v.Highlight("  cat ")
	state := v.State()
	if state.Search.Query != "cat" {
		t.Fatalf("query: got %q want %q", state.Search.Query, "cat")
	}
	if !reflect.DeepEqual(state.Search.Matches, []int{0, 1}) {
		t.Fatalf("matches: got %v want [0 1]", state.Search.Matches)
	}
	v.NextMatch()
	v.Highlight("cat")
	if v.State().Search.Current != 1 {
		t.Fatalf("same term after trimming should keep the position, got %d", v.State().Search.Current)
	}
}

func TestSearchIsCaseInsensitiveAndClears(t *testing.T) {
	t.Parallel()

	v, _, _ := newTestViewer(t, "Ashoka ruled", "nothing", "ASHOKA again")
	v.Highlight("ashoka")
	if got := v.State().Search.Matches; !reflect.DeepEqual(got, []int{0, 2}) {
		t.Fatalf("matches: got %v", got)
	}
	v.Highlight("")
	state := v.State()
	if state.Search.Query != "" || len(state.Search.Matches) != 0 {
		t.Fatalf("search not cleared: %+v", state.Search)
	}
	v.NextMatch()
	if v.CurrentPage() != 2 {
		t.Fatalf("NextMatch on empty search should not move, page=%d", v.CurrentPage())
	}
}

func TestSearchWithoutMatchesStaysPut(t *testing.T) {
	t.Parallel()

	v, _, surface := newTestViewer(t, "one", "two")
	v.GotoPage(1, false)
	surface.anchors = nil
	v.Highlight("zebra")
	if v.CurrentPage() != 1 || len(surface.anchors) != 0 {
		t.Fatalf("no-match search navigated: page=%d scrolls=%v", v.CurrentPage(), surface.anchors)
	}
}

func TestZoomClamps(t *testing.T) {
	t.Parallel()

	for n := 0; n <= 15; n++ {
		v, _, _ := newTestViewer(t, "x")
		for i := 0; i < n; i++ {
			v.ZoomIn()
		}
		want := math.Min(1.0+0.2*float64(n), MaxScale)
		if math.Abs(v.Scale()-want) > 1e-9 {
			t.Fatalf("zoomIn x%d: got %v want %v", n, v.Scale(), want)
		}

		v2, _, _ := newTestViewer(t, "x")
		for i := 0; i < n; i++ {
			v2.ZoomOut()
		}
		want = math.Max(1.0-0.2*float64(n), MinScale)
		if math.Abs(v2.Scale()-want) > 1e-9 {
			t.Fatalf("zoomOut x%d: got %v want %v", n, v2.Scale(), want)
		}
	}
}

func TestGotoPageBlinkExpires(t *testing.T) {
	t.Parallel()

	v, clock, surface := newTestViewer(t, "a", "b", "c")
	v.GotoPage(2, true)
	anchor := Anchor{PageIndex: 2, Area: AreaPage}
	if !v.IsBlinking(anchor) {
		t.Fatalf("page should blink")
	}
	if len(surface.anchors) != 1 || surface.anchors[0] != anchor {
		t.Fatalf("scrolls: %v", surface.anchors)
	}
	clock.Advance(BlinkDuration - time.Millisecond)
	if !v.IsBlinking(anchor) {
		t.Fatalf("blink cleared early")
	}
	clock.Advance(time.Millisecond)
	if v.IsBlinking(anchor) {
		t.Fatalf("blink not cleared after %v", BlinkDuration)
	}
}

func TestBlinkRestartExtendsWindow(t *testing.T) {
	t.Parallel()

	v, clock, _ := newTestViewer(t, "a")
	anchor := Anchor{PageIndex: 0, Area: AreaPage}
	v.GotoPage(0, true)
	clock.Advance(2 * time.Second)
	v.GotoPage(0, true)
	clock.Advance(2 * time.Second)
	if !v.IsBlinking(anchor) {
		t.Fatalf("second blink should still be live")
	}
}

func TestUnmountedTargetIsSkipped(t *testing.T) {
	t.Parallel()

	clock := schedule.NewManual()
	surface := &recordingSurface{mounted: map[int]bool{}}
	v := New(document.FromTexts("a", "b"), Options{Scheduler: clock, Surface: surface})
	defer v.Close()
	v.GotoPage(1, true)
	if v.CurrentPage() != 1 {
		t.Fatalf("page should still change when target is missing")
	}

	bare := New(document.FromTexts("a", "b"), Options{Scheduler: clock})
	defer bare.Close()
	bare.GotoPage(1, true)
	if bare.CurrentPage() != 1 {
		t.Fatalf("viewer without surface should still navigate")
	}
}

func TestScrollToPositionSetsActiveHighlight(t *testing.T) {
	t.Parallel()

	v, _, _ := newTestViewer(t, "a", "Kalinga war")
	v.ScrollToPosition(1, "Kalinga", StyleCitation)
	state := v.State()
	if state.CurrentPage != 1 || state.Active == nil || state.Active.Term != "Kalinga" || state.Style != StyleCitation {
		t.Fatalf("state: %+v", state)
	}
	if !v.IsBlinking(Anchor{PageIndex: 1, Area: AreaPage}) {
		t.Fatalf("citation should blink its page")
	}
}

func TestCloseCancelsTimersAndIgnoresCalls(t *testing.T) {
	t.Parallel()

	clock := schedule.NewManual()
	settled := 0
	v := New(document.FromTexts("a"), Options{Scheduler: clock, OnSettled: func(annotate.Item) { settled++ }})
	v.GotoPage(0, true)
	v.ProcessNewAnnotations([]annotate.Item{{PageIndex: 0, Text: "note"}})
	v.Close()
	if clock.Pending() != 0 {
		t.Fatalf("pending tasks after close: %d", clock.Pending())
	}
	clock.Advance(10 * time.Second)
	v.ZoomIn()
	v.GotoPage(0, false)
	if settled != 0 || v.Scale() != DefaultScale {
		t.Fatalf("viewer mutated after close: settled=%d scale=%v", settled, v.Scale())
	}
}

func TestReloadRecomputesSearch(t *testing.T) {
	t.Parallel()

	v, _, _ := newTestViewer(t)
	v.Highlight("cell")
	if len(v.State().Search.Matches) != 0 {
		t.Fatalf("no pages yet")
	}
	v.Reload(document.FromTexts("intro", "the cell wall"))
	if got := v.State().Search.Matches; !reflect.DeepEqual(got, []int{1}) {
		t.Fatalf("matches after reload: %v", got)
	}
}
