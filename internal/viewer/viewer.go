package viewer

import (
	"math"
	"strings"
	"time"

	"github.com/csheth/studydesk/internal/annotate"
	"github.com/csheth/studydesk/internal/document"
	"github.com/csheth/studydesk/internal/logger"
	"github.com/csheth/studydesk/internal/schedule"
)

const (
	BlinkDuration = 3000 * time.Millisecond
	TypingTick    = 30 * time.Millisecond
	SettleDelay   = 500 * time.Millisecond

	ZoomStep     = 0.2
	MinScale     = 0.5
	MaxScale     = 3.0
	DefaultScale = 1.0
)

// Style is the visual variant of an active highlight.
type Style string

const (
	StyleHighlight Style = "highlight"
	StyleSearch    Style = "search"
	StyleCitation  Style = "citation"
)

// Area is a scroll destination within a page.
type Area int

const (
	AreaPage Area = iota
	AreaAnnotations
)

// Anchor names something the host can scroll to and blink.
type Anchor struct {
	PageIndex int
	Area      Area
}

// Surface is the host's scrolling capability. ScrollTo returns false when the
// target is not laid out yet; the viewer carries on either way.
type Surface interface {
	ScrollTo(anchor Anchor) bool
}

// Handle is everything the chat side may do to the viewer.
type Handle interface {
	GotoPage(index int, blink bool)
	Highlight(term string)
	ScrollToPosition(pageIndex int, term string, style Style)
	ProcessNewAnnotations(items []annotate.Item)
}

// Highlight is the active citation.
type Highlight struct {
	PageIndex int
	Term      string
}

// Search is the live search state. Current is meaningful only when Matches
// is non-empty.
type Search struct {
	Query   string
	Matches []int
	Current int
}

// Options wires a viewer to its host.
type Options struct {
	Scheduler schedule.Scheduler
	Surface   Surface
	Log       logger.Logger
	// OnSettled runs after an annotation finished typing and was appended to
	// the in-memory document. Hosts persist it from here.
	OnSettled func(annotate.Item)
}

// Viewer owns what the reader sees: position, zoom, search, citation
// highlight, blinking anchors and the annotation typing queue. It is not
// safe for concurrent use; hosts call it from their event loop and the
// scheduler must deliver callbacks there too.
type Viewer struct {
	content   document.Content
	tasks     *schedule.Group
	surface   Surface
	log       logger.Logger
	onSettled func(annotate.Item)

	current    int
	scale      float64
	search     Search
	active     *Highlight
	style      Style
	persistent string

	queue  []annotate.Item
	typing *Typing
	phase  Phase

	blinkGen int
	blinking map[Anchor]int
	closed   bool
}

var _ Handle = (*Viewer)(nil)

// New builds a viewer over a private copy of content.
func New(content document.Content, opts Options) *Viewer {
	if opts.Log == nil {
		opts.Log = logger.NewNoOpLogger()
	}
	if opts.Scheduler == nil {
		opts.Scheduler = schedule.NewManual()
	}
	return &Viewer{
		content:   content.Clone(),
		tasks:     schedule.NewGroup(opts.Scheduler),
		surface:   opts.Surface,
		log:       opts.Log,
		onSettled: opts.OnSettled,
		scale:     DefaultScale,
		style:     StyleHighlight,
		blinking:  map[Anchor]int{},
	}
}

// SetSurface attaches the host scroller once its layout exists.
func (v *Viewer) SetSurface(s Surface) {
	v.surface = s
}

// Content returns a copy of the document as the viewer currently sees it,
// including annotations that finished typing.
func (v *Viewer) Content() document.Content {
	return v.content.Clone()
}

// PageCount is the number of pages loaded.
func (v *Viewer) PageCount() int {
	return v.content.PageCount()
}

// Reload swaps in freshly parsed content and re-runs the live search.
func (v *Viewer) Reload(content document.Content) {
	if v.closed {
		return
	}
	v.content = content.Clone()
	if v.current >= v.content.PageCount() {
		v.current = 0
	}
	if v.search.Query != "" {
		v.recomputeSearch()
	}
}

// Closed reports whether Close has run.
func (v *Viewer) Closed() bool {
	return v.closed
}

// Close cancels every pending timer. Later calls on the viewer do nothing.
func (v *Viewer) Close() {
	if v.closed {
		return
	}
	v.closed = true
	n := v.tasks.Stop()
	v.log.Debug("viewer closed, cancelled %d pending tasks", n)
}

// GotoPage moves to index without range checks and optionally blinks the page.
func (v *Viewer) GotoPage(index int, blink bool) {
	if v.closed {
		return
	}
	v.current = index
	anchor := Anchor{PageIndex: index, Area: AreaPage}
	v.scrollTo(anchor)
	if blink {
		v.blink(anchor)
	}
}

// Highlight is the search entry point. A blank term clears the search.
func (v *Viewer) Highlight(term string) {
	if v.closed {
		return
	}
	term = strings.TrimSpace(term)
	if term == "" {
		v.search = Search{}
		return
	}
	if term == v.search.Query {
		return
	}
	v.search.Query = term
	v.recomputeSearch()
}

func (v *Viewer) recomputeSearch() {
	matches := []int{}
	for i, page := range v.content.Pages {
		if containsFold(page.Text, v.search.Query) {
			matches = append(matches, i)
		}
	}
	v.search.Matches = matches
	v.search.Current = 0
	v.log.Debug("search %q matched %d pages", v.search.Query, len(matches))
	if len(matches) > 0 {
		v.GotoPage(matches[0], true)
	}
}

// ScrollToPosition navigates to a page and marks term there as the active highlight.
func (v *Viewer) ScrollToPosition(pageIndex int, term string, style Style) {
	if v.closed {
		return
	}
	v.GotoPage(pageIndex, true)
	v.active = &Highlight{PageIndex: pageIndex, Term: term}
	if style == "" {
		style = StyleHighlight
	}
	v.style = style
}

// ClearHighlight drops the active citation.
func (v *Viewer) ClearHighlight() {
	v.active = nil
}

// SetPersistentTerm sets the always-on highlight term. Blank clears it.
func (v *Viewer) SetPersistentTerm(term string) {
	if v.closed {
		return
	}
	v.persistent = strings.TrimSpace(term)
}

// NextMatch advances the search cursor, wrapping around.
func (v *Viewer) NextMatch() {
	v.stepMatch(1)
}

// PrevMatch moves the search cursor back, wrapping around.
func (v *Viewer) PrevMatch() {
	v.stepMatch(-1)
}

func (v *Viewer) stepMatch(delta int) {
	if v.closed || len(v.search.Matches) == 0 {
		return
	}
	n := len(v.search.Matches)
	v.search.Current = ((v.search.Current+delta)%n + n) % n
	v.GotoPage(v.search.Matches[v.search.Current], true)
}

// ZoomIn increases the scale by ZoomStep up to MaxScale.
func (v *Viewer) ZoomIn() {
	if v.closed {
		return
	}
	v.scale = math.Min(roundScale(v.scale+ZoomStep), MaxScale)
}

// ZoomOut decreases the scale by ZoomStep down to MinScale.
func (v *Viewer) ZoomOut() {
	if v.closed {
		return
	}
	v.scale = math.Max(roundScale(v.scale-ZoomStep), MinScale)
}

func roundScale(s float64) float64 {
	return math.Round(s*10) / 10
}

// Scale is the current zoom factor.
func (v *Viewer) Scale() float64 {
	return v.scale
}

// CurrentPage is the zero-based page in view.
func (v *Viewer) CurrentPage() int {
	return v.current
}

// IsBlinking reports whether anchor is inside its blink window.
func (v *Viewer) IsBlinking(anchor Anchor) bool {
	_, ok := v.blinking[anchor]
	return ok
}

func (v *Viewer) scrollTo(anchor Anchor) {
	if v.surface == nil {
		return
	}
	if !v.surface.ScrollTo(anchor) {
		v.log.Debug("scroll target page %d area %d not mounted", anchor.PageIndex+1, anchor.Area)
	}
}

// blink marks anchor and clears it after BlinkDuration. A newer blink on the
// same anchor extends the window.
func (v *Viewer) blink(anchor Anchor) {
	v.blinkGen++
	gen := v.blinkGen
	v.blinking[anchor] = gen
	v.tasks.After(BlinkDuration, func() {
		if v.blinking[anchor] == gen {
			delete(v.blinking, anchor)
		}
	})
}

// State is a copy of the viewer's observable state.
type State struct {
	CurrentPage    int
	Scale          float64
	Search         Search
	Active         *Highlight
	Style          Style
	PersistentTerm string
	Queue          []annotate.Item
	Typing         *Typing
	Phase          Phase
}

// State snapshots the viewer.
func (v *Viewer) State() State {
	s := State{
		CurrentPage:    v.current,
		Scale:          v.scale,
		Search:         Search{Query: v.search.Query, Matches: append([]int(nil), v.search.Matches...), Current: v.search.Current},
		Style:          v.style,
		PersistentTerm: v.persistent,
		Queue:          append([]annotate.Item(nil), v.queue...),
		Phase:          v.phase,
	}
	if v.active != nil {
		active := *v.active
		s.Active = &active
	}
	if v.typing != nil {
		typing := *v.typing
		s.Typing = &typing
	}
	return s
}
