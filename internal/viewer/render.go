package viewer

// Mark classifies a rendered run of page text.
type Mark int

const (
	MarkNone Mark = iota
	MarkActive
	MarkPersistent
	MarkSearch
)

// Segment is a run of page text sharing one mark. Style is set for MarkActive.
type Segment struct {
	Text  string
	Mark  Mark
	Style Style
}

// Note is an annotation line under a page. Typing notes are partial.
type Note struct {
	Text   string
	Typing bool
}

// Render splits page i into marked segments. Layers are applied in order
// active highlight, persistent term, live search; later layers win where
// they overlap.
func (v *Viewer) Render(i int) []Segment {
	text := v.content.PageText(i)
	if text == "" {
		return nil
	}
	marks := make([]Mark, len(text))
	if v.active != nil && v.active.PageIndex == i {
		paint(marks, findAll(text, v.active.Term), MarkActive)
	}
	paint(marks, findAll(text, v.persistent), MarkPersistent)
	paint(marks, findAll(text, v.search.Query), MarkSearch)

	var segments []Segment
	start := 0
	for pos := 1; pos <= len(text); pos++ {
		if pos < len(text) && marks[pos] == marks[start] {
			continue
		}
		seg := Segment{Text: text[start:pos], Mark: marks[start]}
		if seg.Mark == MarkActive {
			seg.Style = v.style
		}
		segments = append(segments, seg)
		start = pos
	}
	return segments
}

func paint(marks []Mark, spans []span, mark Mark) {
	for _, s := range spans {
		for b := s.start; b < s.end; b++ {
			marks[b] = mark
		}
	}
}

// Notes lists the stored annotations of page i followed by the one being typed there.
func (v *Viewer) Notes(i int) []Note {
	var notes []Note
	for _, text := range v.content.Annotations(i) {
		notes = append(notes, Note{Text: text})
	}
	if v.typing != nil && v.typing.PageIndex == i {
		notes = append(notes, Note{Text: v.typing.Typed, Typing: true})
	}
	return notes
}
