package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/indent"
	"github.com/muesli/reflow/wordwrap"
	"github.com/muesli/reflow/wrap"

	"github.com/csheth/studydesk/internal/viewer"
)

type pageLayout struct {
	windowWidth      int
	windowHeight     int
	viewportWidth    int
	viewportHeight   int
	transcriptHeight int
	composerHeight   int
}

func newPageLayout() pageLayout {
	return pageLayout{
		viewportWidth:    80,
		viewportHeight:   20,
		transcriptHeight: 10,
		composerHeight:   4,
	}
}

func (l *pageLayout) Update(width, height int) {
	l.windowWidth = width
	l.windowHeight = height
	innerWidth := width - viewportHorizontalPadding
	if innerWidth < minViewportWidth {
		innerWidth = minViewportWidth
	}
	l.viewportWidth = innerWidth
	l.composerHeight = 1
	// header, status, composer title and help, transcript title, gaps
	const chrome = 9
	usable := height - chrome - l.composerHeight
	if usable < 12 {
		usable = 12
	}
	l.transcriptHeight = usable / 3
	if l.transcriptHeight < 4 {
		l.transcriptHeight = 4
	}
	l.viewportHeight = usable - l.transcriptHeight
	if l.viewportHeight < 6 {
		l.viewportHeight = 6
	}
}

type documentView struct {
	content string
	anchors map[viewer.Anchor]int
}

type contentBuilder struct {
	builder strings.Builder
	lines   int
}

func (cb *contentBuilder) WriteString(s string) {
	cb.builder.WriteString(s)
	cb.lines += strings.Count(s, "\n")
}

func (cb *contentBuilder) WriteRune(r rune) {
	cb.builder.WriteRune(r)
	if r == '\n' {
		cb.lines++
	}
}

func (cb *contentBuilder) String() string {
	return cb.builder.String()
}

func (cb *contentBuilder) Line() int {
	return cb.lines
}

// buildDocumentView renders every page with its notes and records the line
// each anchor starts on.
func (m *model) buildDocumentView() documentView {
	cb := &contentBuilder{}
	anchors := map[viewer.Anchor]int{}
	total := m.viewer.PageCount()
	width := m.pageWrapWidth()
	if total == 0 {
		cb.WriteString(helperStyle.Render("This document has no pages."))
		return documentView{content: cb.String(), anchors: anchors}
	}

	for i := 0; i < total; i++ {
		if i > 0 {
			cb.WriteRune('\n')
		}
		pageAnchor := viewer.Anchor{PageIndex: i, Area: viewer.AreaPage}
		anchors[pageAnchor] = cb.Line()
		headerStyle := pageHeaderStyle
		if i == m.viewer.CurrentPage() {
			headerStyle = currentPageHeaderStyle
		}
		if m.viewer.IsBlinking(pageAnchor) {
			headerStyle = blinkStyle
		}
		cb.WriteString(headerStyle.Render(fmt.Sprintf("Page %d of %d", i+1, total)))
		cb.WriteRune('\n')

		body := renderSegments(m.viewer.Render(i))
		if strings.TrimSpace(body) == "" {
			body = helperStyle.Render("(no text on this page)")
		}
		cb.WriteString(indent.String(wrapText(body, width), 2))
		cb.WriteRune('\n')

		notes := m.viewer.Notes(i)
		if len(notes) == 0 {
			continue
		}
		noteAnchor := viewer.Anchor{PageIndex: i, Area: viewer.AreaAnnotations}
		anchors[noteAnchor] = cb.Line()
		notesStyle := notesHeaderStyle
		if m.viewer.IsBlinking(noteAnchor) {
			notesStyle = blinkStyle
		}
		cb.WriteString(indent.String(notesStyle.Render("Notes"), 2))
		cb.WriteRune('\n')
		for _, note := range notes {
			text := note.Text
			if note.Typing {
				text += typingCaret
			}
			cb.WriteString(indent.String(noteStyle.Render(wrapText("✎ "+text, width-2)), 4))
			cb.WriteRune('\n')
		}
	}
	return documentView{content: cb.String(), anchors: anchors}
}

// renderSegments styles each run. Runs are rendered line by line because
// lipgloss pads multi-line blocks to a common width.
func renderSegments(segments []viewer.Segment) string {
	var b strings.Builder
	for _, seg := range segments {
		style, styled := segmentStyle(seg)
		if !styled {
			b.WriteString(seg.Text)
			continue
		}
		for i, line := range strings.Split(seg.Text, "\n") {
			if i > 0 {
				b.WriteRune('\n')
			}
			if line != "" {
				b.WriteString(style.Render(line))
			}
		}
	}
	return b.String()
}

func segmentStyle(seg viewer.Segment) (lipgloss.Style, bool) {
	switch seg.Mark {
	case viewer.MarkActive:
		switch seg.Style {
		case viewer.StyleCitation:
			return citationStyle, true
		case viewer.StyleSearch:
			return searchCurrentStyle, true
		default:
			return activeHighlightStyle, true
		}
	case viewer.MarkPersistent:
		return persistentStyle, true
	case viewer.MarkSearch:
		return searchHighlightStyle, true
	default:
		return lipgloss.Style{}, false
	}
}

func wrapText(s string, width int) string {
	if width < minPageWrapWidth {
		width = minPageWrapWidth
	}
	return wrap.String(wordwrap.String(s, width), width)
}

func (m *model) writeConversationStream(cb *contentBuilder) {
	if len(m.transcript) == 0 {
		cb.WriteString(helperStyle.Render("Ask a question with i; replies can turn pages and add notes."))
		cb.WriteRune('\n')
		return
	}
	wrapAt := m.wrapWidth(4)
	for idx, entry := range m.transcript {
		label := transcriptLabel(entry.Kind)
		if entry.Pending {
			label = fmt.Sprintf("%s %s", label, m.spinner.View())
		}
		if label != "" {
			cb.WriteString(transcriptLabelStyle(entry.Kind).Render(label))
			cb.WriteRune('\n')
		}
		body := wordwrap.String(entry.Content, wrapAt)
		cb.WriteString(indentMultiline(body, "  "))
		if len(entry.PageRefs) > 0 {
			cb.WriteRune('\n')
			cb.WriteString(helperStyle.Render("  Cited pages: " + pageList(entry.PageRefs)))
		}
		if m.showCommands {
			for _, command := range entry.Commands {
				cb.WriteRune('\n')
				cb.WriteString(commandStyle.Render("  › " + command))
			}
		}
		if idx < len(m.transcript)-1 {
			cb.WriteRune('\n')
			cb.WriteRune('\n')
		} else {
			cb.WriteRune('\n')
		}
	}
}

func indentMultiline(text, prefix string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}

func (m *model) wrapWidth(padding int) int {
	width := m.viewport.Width
	if width <= 0 {
		width = 80
	}
	if padding < 0 {
		padding = 0
	}
	available := width - padding
	if available < 20 {
		available = 20
	}
	return available
}

// pageWrapWidth narrows the text column as the zoom grows.
func (m *model) pageWrapWidth() int {
	width := int(float64(m.wrapWidth(4)) / m.viewer.Scale())
	if width < minPageWrapWidth {
		width = minPageWrapWidth
	}
	return width
}

func previewText(value string, limit int) string {
	value = strings.TrimSpace(value)
	if limit <= 0 {
		return value
	}
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return strings.TrimSpace(string(runes[:limit])) + "…"
}

func transcriptLabel(kind string) string {
	switch kind {
	case transcriptKindQuestion:
		return "You"
	case transcriptKindAnswer:
		return "Tutor"
	case transcriptKindSummary:
		return "Tutor (summary)"
	case transcriptKindFlashcards:
		return "Tutor (flashcards)"
	case transcriptKindSystem:
		return "System"
	case transcriptKindError:
		return "Error"
	default:
		return kind
	}
}

func transcriptLabelStyle(kind string) lipgloss.Style {
	switch kind {
	case transcriptKindQuestion:
		return youLabelStyle
	case transcriptKindError:
		return errorStyle
	case transcriptKindSystem:
		return helperStyle
	default:
		return tutorLabelStyle
	}
}
