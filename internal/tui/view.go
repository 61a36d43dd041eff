package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"

	"github.com/csheth/studydesk/internal/guide"
	"github.com/csheth/studydesk/internal/viewer"
)

func (m *model) View() string {
	if m.closed {
		return ""
	}
	m.refreshTranscriptIfDirty()
	m.refreshViewportIfDirty()
	switch m.stage {
	case stageSearch:
		return m.viewSearch()
	default:
		return m.viewDisplay()
	}
}

func (m *model) viewDisplay() string {
	body := m.renderStackedDisplay()
	return joinNonEmpty([]string{body, m.composerPanel(), m.footerView()})
}

func (m *model) renderStackedDisplay() string {
	parts := []string{m.heroView()}
	parts = append(parts, m.viewport.View())
	parts = append(parts, m.sessionMeterView())
	if status := m.searchStatusLine(); status != "" {
		parts = append(parts, helperStyle.Render(status))
	}
	if m.errorMessage != "" {
		parts = append(parts, errorStyle.Render(m.errorMessage))
	}
	if m.infoMessage != "" {
		message := m.infoMessage
		if len(m.jobs.Active()) > 0 {
			message = fmt.Sprintf("%s %s", m.spinner.View(), message)
		}
		parts = append(parts, helperStyle.Render(message))
	}
	if m.helpVisible {
		if legend := m.keyLegendView(); legend != "" {
			parts = append(parts, legend)
		}
		parts = append(parts, m.helpView())
	}
	return joinNonEmpty(parts)
}

func (m *model) composerPanel() string {
	return joinNonEmpty([]string{
		sectionHeaderStyle.Render("Composer"),
		m.composer.View(),
		helperStyle.Render(m.composerHelpText()),
	})
}

func (m *model) composerHelpText() string {
	if !m.chatEnabled() {
		return fmt.Sprintf("This is a %s session; chat is available in tutor sessions.", m.session.Type)
	}
	if m.mode == modeInsert {
		return "Enter: send • Esc: back to the document"
	}
	return "i: ask • /: search • ?: keys"
}

func (m *model) footerView() string {
	logBody := strings.TrimSpace(m.transcriptViewport.View())
	if logBody == "" {
		logBody = helperStyle.Render("Ask a question with i; replies can turn pages and add notes.")
	}
	return joinNonEmpty([]string{
		sectionHeaderStyle.Render("Conversation"),
		logBody,
	})
}

func (m *model) viewSearch() string {
	var b strings.Builder
	b.WriteString(sectionHeaderStyle.Render("Search Pages"))
	b.WriteRune('\n')
	b.WriteString(m.searchInput.View())
	b.WriteRune('\n')
	b.WriteString(helperStyle.Render("Enter to search, empty Enter clears, Esc to cancel."))
	return joinNonEmpty([]string{m.frameWithHero(b.String()), m.viewport.View(), m.footerView()})
}

func (m *model) heroView() string {
	title := m.doc.Title
	if title == "" {
		title = m.doc.FileName
	}
	width := m.layout.viewportWidth
	if width <= 0 {
		width = 80
	}
	title = truncate.StringWithTail(title, uint(width), "…")
	meta := []string{fmt.Sprintf("%d pages", m.viewer.PageCount())}
	if m.session.Title != "" {
		meta = append(meta, m.session.Title)
	}
	if m.config.ModelName != "" {
		meta = append(meta, "model "+m.config.ModelName)
	}
	return lipgloss.JoinVertical(
		lipgloss.Left,
		heroTitleStyle.Render(title),
		taglineStyle.Render(strings.Join(meta, " · ")),
	)
}

func (m *model) frameWithHero(body string) string {
	return joinNonEmpty([]string{m.heroView(), body})
}

func joinNonEmpty(parts []string) string {
	filtered := make([]string, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		filtered = append(filtered, part)
	}
	return strings.Join(filtered, "\n\n")
}

func (m *model) modeLabel() string {
	switch {
	case m.stage == stageSearch:
		return "SEARCH"
	case m.mode == modeInsert:
		return "INSERT"
	default:
		return "NORMAL"
	}
}

func (m *model) sessionMeterView() string {
	state := m.viewer.State()
	stats := []string{
		m.modeLabel(),
		fmt.Sprintf("Page %d/%d", state.CurrentPage+1, m.viewer.PageCount()),
		fmt.Sprintf("Zoom %d%%", int(state.Scale*100+0.5)),
	}
	if state.PersistentTerm != "" {
		stats = append(stats, fmt.Sprintf("Pinned %q", state.PersistentTerm))
	}
	switch state.Phase {
	case viewer.PhaseTyping:
		stats = append(stats, fmt.Sprintf("Writing note on page %d", state.Typing.PageIndex+1))
	case viewer.PhaseSettling:
		stats = append(stats, "Saving note")
	}
	if waiting := len(state.Queue); waiting > 0 {
		stats = append(stats, fmt.Sprintf("%d notes queued", waiting))
	}
	if m.dispatcher.Busy() {
		stats = append(stats, "Following reply")
	}
	if badges := m.jobStatusBadges(); len(badges) > 0 {
		stats = append(stats, badges...)
	}
	return statusBarStyle.Render(strings.Join(stats, "  •  "))
}

func (m *model) jobStatusBadges() []string {
	var badges []string
	for _, kind := range m.jobs.Active() {
		badges = append(badges, fmt.Sprintf("%s…", kind))
	}
	return badges
}

func (m *model) searchStatusLine() string {
	search := m.viewer.State().Search
	if search.Query == "" {
		return ""
	}
	if len(search.Matches) == 0 {
		return fmt.Sprintf("No pages contain %q", search.Query)
	}
	return fmt.Sprintf("%q on page %d (%d/%d) • n/N to cycle", search.Query, search.Matches[search.Current]+1, search.Current+1, len(search.Matches))
}

type keyHint struct {
	Key         string
	Description string
}

func (m *model) keyLegendView() string {
	hints := []keyHint{
		{"↑/↓", "Scroll"},
		{"[/]", "Prev/next page"},
		{"g/G", "First or last page"},
		{"i", "Ask the tutor"},
		{"/", "Search"},
		{"n/N", "Next/prev match"},
		{"+/-", "Zoom"},
		{"*", "Pin search term"},
		{"p", "Visit cited page"},
		{"c", "Show commands"},
		{"f", "Flashcards"},
		{"s", "Summary"},
		{"?", "Toggle cheatsheet"},
		{"q", "Quit"},
	}
	rows := []string{sectionHeaderStyle.Render("Navigation Cheatsheet")}
	const columns = 3
	for i := 0; i < len(hints); i += columns {
		end := i + columns
		if end > len(hints) {
			end = len(hints)
		}
		var cells []string
		for _, hint := range hints[i:end] {
			key := keyStyle.Render(hint.Key)
			desc := keyDescStyle.Render(fmt.Sprintf(" %-20s", hint.Description))
			cells = append(cells, lipgloss.JoinHorizontal(lipgloss.Top, key, desc))
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	}
	return legendBoxStyle.Render(strings.Join(rows, "\n"))
}

func (m *model) helpView() string {
	lines := []string{
		sectionHeaderStyle.Render("How replies drive the viewer"),
		helperStyle.Render("• a reply can jump to a page, highlight a term, then write notes under a page."),
		helperStyle.Render("• steps play out over a few seconds; a new reply waits for the previous one."),
		helperStyle.Render("• notes are saved to the library once they finish typing."),
		helperStyle.Render("• Esc clears the active highlight and search, Ctrl+C quits from anywhere."),
		"",
		sectionHeaderStyle.Render("Study plan"),
	}
	plan := guide.Build(guide.Metadata{Title: m.doc.Title, Pages: m.viewer.PageCount(), Mode: string(m.session.Type)})
	for i, step := range plan {
		lines = append(lines, helperStyle.Render(fmt.Sprintf("%d. %s: %s", i+1, step.Title, step.Description)))
	}
	return helpBoxStyle.Render(strings.Join(lines, "\n"))
}
