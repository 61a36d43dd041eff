package viewer

import (
	"unicode/utf8"

	"github.com/csheth/studydesk/internal/annotate"
)

// Phase is the typing animation state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseTyping
	PhaseSettling
)

func (p Phase) String() string {
	switch p {
	case PhaseTyping:
		return "typing"
	case PhaseSettling:
		return "settling"
	default:
		return "idle"
	}
}

// Typing is the annotation currently being revealed.
type Typing struct {
	PageIndex int
	FullText  string
	Typed     string
}

// Done reports whether every character has been revealed.
func (t Typing) Done() bool {
	return t.Typed == t.FullText
}

// ProcessNewAnnotations drops items already stored, queued or typing, then
// queues the rest and starts typing if idle.
func (v *Viewer) ProcessNewAnnotations(items []annotate.Item) {
	if v.closed {
		return
	}
	fresh := annotate.Filter(v.knownAnnotation, items)
	if len(fresh) == 0 {
		return
	}
	v.queue = append(v.queue, fresh...)
	v.log.Debug("queued %d annotations (%d waiting)", len(fresh), len(v.queue))
	v.startNext()
}

func (v *Viewer) knownAnnotation(pageIndex int, text string) bool {
	if v.content.HasAnnotation(pageIndex, text) {
		return true
	}
	if v.typing != nil && v.typing.PageIndex == pageIndex && v.typing.FullText == text {
		return true
	}
	for _, queued := range v.queue {
		if queued.PageIndex == pageIndex && queued.Text == text {
			return true
		}
	}
	return false
}

// startNext moves Idle to Typing when work is waiting.
func (v *Viewer) startNext() {
	if v.closed || v.phase != PhaseIdle || len(v.queue) == 0 {
		return
	}
	item := v.queue[0]
	v.queue = v.queue[1:]
	v.typing = &Typing{PageIndex: item.PageIndex, FullText: item.Text}
	v.phase = PhaseTyping
	anchor := Anchor{PageIndex: item.PageIndex, Area: AreaAnnotations}
	v.current = item.PageIndex
	v.scrollTo(anchor)
	v.blink(anchor)
	v.tasks.After(TypingTick, v.tick)
}

// tick reveals one more rune, or moves to Settling once the text is complete.
func (v *Viewer) tick() {
	if v.typing == nil || v.phase != PhaseTyping {
		return
	}
	t := v.typing
	if !t.Done() {
		_, size := utf8.DecodeRuneInString(t.FullText[len(t.Typed):])
		t.Typed = t.FullText[:len(t.Typed)+size]
	}
	if !t.Done() {
		v.tasks.After(TypingTick, v.tick)
		return
	}
	v.phase = PhaseSettling
	v.tasks.After(SettleDelay, v.settle)
}

// settle commits the typed annotation and frees the machine for the next one.
func (v *Viewer) settle() {
	if v.typing == nil || v.phase != PhaseSettling {
		return
	}
	item := annotate.Item{PageIndex: v.typing.PageIndex, Text: v.typing.FullText}
	v.content.AppendAnnotation(item.PageIndex, item.Text)
	v.typing = nil
	v.phase = PhaseIdle
	v.log.Debug("annotation settled on page %d", item.PageIndex+1)
	if v.onSettled != nil {
		v.onSettled(item)
	}
	v.startNext()
}
