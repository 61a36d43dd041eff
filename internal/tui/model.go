package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/csheth/studydesk/internal/annotate"
	"github.com/csheth/studydesk/internal/dispatch"
	"github.com/csheth/studydesk/internal/document"
	"github.com/csheth/studydesk/internal/library"
	"github.com/csheth/studydesk/internal/logger"
	"github.com/csheth/studydesk/internal/schedule"
	"github.com/csheth/studydesk/internal/store"
	"github.com/csheth/studydesk/internal/viewer"
)

// Config wires the UI to an opened session.
type Config struct {
	Opened     library.Opened
	Tutor      Tutor
	Sessions   SessionOpener
	Repository annotate.Repository
	Log        logger.Logger
	ModelName  string
	// Scheduler overrides the real-time scheduler, for tests.
	Scheduler schedule.Scheduler
}

func New(config Config) tea.Model {
	log := config.Log
	if log == nil {
		log = logger.NewNoOpLogger()
	}

	composer := textinput.New()
	composer.Placeholder = composerIdlePlaceholder
	composer.Prompt = "› "
	composer.CharLimit = 0

	searchInput := textinput.New()
	searchInput.Placeholder = searchPlaceholder
	searchInput.Prompt = "/ "
	searchInput.CharLimit = 200

	spin := spinner.New()
	spin.Spinner = spinner.Dot

	vp := viewport.New(80, 20)
	vp.MouseWheelEnabled = true
	transcript := viewport.New(80, 10)
	transcript.MouseWheelEnabled = true

	m := &model{
		config:             config,
		log:                log,
		layout:             newPageLayout(),
		stage:              stageDisplay,
		mode:               modeNormal,
		doc:                config.Opened.Document,
		session:            config.Opened.Session,
		jobs:               newJobBus(log.With("jobs")),
		viewport:           vp,
		transcriptViewport: transcript,
		composer:           composer,
		searchInput:        searchInput,
		spinner:            spin,
		anchors:            map[viewer.Anchor]int{},
		tasks:              make(chan func(), 64),
		done:               make(chan struct{}),
		viewportDirty:      true,
		transcriptDirty:    true,
	}

	sched := config.Scheduler
	if sched == nil {
		sched = schedule.NewLoop(m.post)
	}
	if config.Repository != nil && m.doc.ID != "" {
		m.annotations = annotate.NewService(config.Repository, m.doc.ID, annotate.Options{
			Log:    log.With("annotate"),
			Notify: m.annotationCommitted,
		})
	}
	m.viewer = viewer.New(m.doc.Content, viewer.Options{
		Scheduler: sched,
		Surface:   m,
		Log:       log.With("viewer"),
		OnSettled: m.commitAnnotation,
	})
	m.dispatcher = dispatch.New(m.viewer, dispatch.Options{
		Scheduler: sched,
		Log:       log.With("dispatch"),
		PageCount: m.viewer.PageCount,
	})
	if m.chatEnabled() {
		m.composer.Placeholder = composerChatPlaceholder
	}
	m.loadHistory()
	return m
}

type model struct {
	config Config
	log    logger.Logger
	layout pageLayout
	stage  stage
	mode   interactionMode

	doc     document.Document
	session store.Session

	viewer      *viewer.Viewer
	dispatcher  *dispatch.Dispatcher
	annotations *annotate.Service
	tasks       chan func()
	done        chan struct{}
	closed      bool

	jobs *jobBus

	viewport           viewport.Model
	transcriptViewport viewport.Model
	composer           textinput.Model
	searchInput        textinput.Model
	spinner            spinner.Model

	anchors         map[viewer.Anchor]int
	pendingScroll   *viewer.Anchor
	viewportDirty   bool
	transcriptDirty bool

	transcript   []transcriptEntry
	showCommands bool
	lastCited    []int
	citedCursor  int

	helpVisible  bool
	errorMessage string
	infoMessage  string
}

func (m *model) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink, waitForTask(m.tasks)}
	switch m.session.Type {
	case store.SessionFlashcards:
		if !m.hasTranscriptKind(transcriptKindFlashcards) {
			cmds = append(cmds, m.startFlashcards())
		}
	case store.SessionSummary:
		if !m.hasTranscriptKind(transcriptKindSummary) {
			cmds = append(cmds, m.startSummary())
		}
	}
	return tea.Batch(cmds...)
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout.Update(msg.Width, msg.Height)
		m.viewport.Width = m.layout.viewportWidth
		m.viewport.Height = m.layout.viewportHeight
		m.transcriptViewport.Width = m.layout.viewportWidth
		m.transcriptViewport.Height = m.layout.transcriptHeight
		m.composer.Width = m.layout.viewportWidth - 4
		m.searchInput.Width = m.layout.viewportWidth - 4
		m.markViewportDirty()
		m.markTranscriptDirty()
		return m, nil

	case spinner.TickMsg:
		if len(m.jobs.Active()) == 0 {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.markTranscriptDirty()
		return m, cmd

	case taskMsg:
		if m.closed {
			return m, nil
		}
		if msg.fn != nil {
			msg.fn()
		}
		m.markViewportDirty()
		return m, waitForTask(m.tasks)

	case jobDoneMsg:
		if !m.jobs.Finish(msg) || msg.payload == nil {
			return m, nil
		}
		return m.Update(msg.payload)

	case chatResultMsg:
		return m, m.handleChatResult(msg)

	case flashcardsResultMsg:
		m.handleFlashcardsResult(msg)
		return m, nil

	case summaryResultMsg:
		m.handleSummaryResult(msg)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *model) handleKey(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Type == tea.KeyCtrlC {
		m.Close()
		return m, tea.Quit
	}
	if m.stage == stageSearch {
		return m, m.processSearchKey(key)
	}
	if cmd, handled := m.processComposerKey(key); handled {
		return m, cmd
	}
	return m.handleDisplayKey(key)
}

// processComposerKey handles keys while the composer has focus.
func (m *model) processComposerKey(key tea.KeyMsg) (tea.Cmd, bool) {
	if !m.composer.Focused() {
		return nil, false
	}
	switch key.Type {
	case tea.KeyEsc:
		m.composer.Blur()
		m.mode = modeNormal
		return nil, true
	case tea.KeyEnter:
		text := strings.TrimSpace(m.composer.Value())
		if text == "" {
			return nil, true
		}
		cmd := m.submitQuestion(text)
		if cmd != nil {
			m.composer.SetValue("")
		}
		return cmd, true
	}
	var cmd tea.Cmd
	m.composer, cmd = m.composer.Update(key)
	return cmd, true
}

func (m *model) processSearchKey(key tea.KeyMsg) tea.Cmd {
	switch key.Type {
	case tea.KeyEsc:
		m.searchInput.Blur()
		m.searchInput.SetValue("")
		m.stage = stageDisplay
		return nil
	case tea.KeyEnter:
		m.applySearch(m.searchInput.Value())
		m.searchInput.Blur()
		m.stage = stageDisplay
		return nil
	}
	var cmd tea.Cmd
	m.searchInput, cmd = m.searchInput.Update(key)
	return cmd
}

func (m *model) handleDisplayKey(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.String() {
	case "q":
		m.Close()
		return m, tea.Quit
	case "i":
		return m, m.focusComposer()
	case "/":
		m.stage = stageSearch
		m.searchInput.SetValue(m.viewer.State().Search.Query)
		m.searchInput.CursorEnd()
		return m, m.searchInput.Focus()
	case "n":
		m.viewer.NextMatch()
	case "N":
		m.viewer.PrevMatch()
	case "+", "=":
		m.viewer.ZoomIn()
		m.scrollToCurrentPage()
	case "-", "_":
		m.viewer.ZoomOut()
		m.scrollToCurrentPage()
	case "]":
		m.gotoPage(m.viewer.CurrentPage() + 1)
	case "[":
		m.gotoPage(m.viewer.CurrentPage() - 1)
	case "g", "home":
		m.gotoPage(0)
	case "G", "end":
		m.gotoPage(m.viewer.PageCount() - 1)
	case "*":
		m.togglePinnedTerm()
	case "p":
		m.visitCitedPage()
	case "c":
		m.showCommands = !m.showCommands
		m.markTranscriptDirty()
	case "f":
		return m, m.startFlashcards()
	case "s":
		return m, m.startSummary()
	case "?":
		m.actionToggleHelpCmd()
	case "esc":
		m.viewer.ClearHighlight()
		m.applySearch("")
		m.errorMessage = ""
	case "J":
		m.transcriptViewport.LineDown(1)
	case "K":
		m.transcriptViewport.LineUp(1)
	default:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(key)
		return m, cmd
	}
	m.markViewportDirty()
	return m, nil
}

func (m *model) chatEnabled() bool {
	return m.config.Tutor != nil && m.session.Type == store.SessionTutor && m.session.ID != ""
}

func (m *model) focusComposer() tea.Cmd {
	if !m.chatEnabled() {
		m.infoMessage = m.composerHelpText()
		return nil
	}
	m.mode = modeInsert
	return m.composer.Focus()
}

func (m *model) submitQuestion(text string) tea.Cmd {
	if !m.chatEnabled() {
		return nil
	}
	if m.jobs.Busy(jobKindChat) {
		m.infoMessage = "Still waiting for the previous reply."
		return nil
	}
	m.errorMessage = ""
	m.infoMessage = "Asked: " + previewText(text, transcriptPreviewLimit/4)
	m.transcript = append(m.transcript,
		transcriptEntry{Kind: transcriptKindQuestion, Content: text},
		transcriptEntry{Kind: transcriptKindAnswer, Content: "Thinking…", Pending: true},
	)
	m.markTranscriptDirty()
	return m.startJob(jobKindChat, chatJob(m.config.Tutor, m.session.ID, text, m.viewer.Content()))
}

// startJob runs a job and keeps the spinner going while it is out.
func (m *model) startJob(kind jobKind, runner jobRunner) tea.Cmd {
	cmd := m.jobs.Start(kind, runner)
	if cmd == nil {
		return nil
	}
	return tea.Batch(cmd, m.spinner.Tick)
}

func (m *model) handleChatResult(msg chatResultMsg) tea.Cmd {
	m.dropPending(transcriptKindAnswer)
	if msg.err != nil {
		m.errorMessage = fmt.Sprintf("Could not send: %v", msg.err)
		m.transcript = append(m.transcript, transcriptEntry{Kind: transcriptKindError, Content: msg.err.Error()})
		m.markTranscriptDirty()
		return nil
	}
	reply := msg.turn.Reply
	entry := transcriptEntry{Kind: transcriptKindAnswer, Content: reply.Display, PageRefs: msg.turn.PageRefs}
	for _, command := range reply.Commands {
		entry.Commands = append(entry.Commands, command.String())
	}
	m.transcript = append(m.transcript, entry)
	m.markTranscriptDirty()
	m.lastCited = msg.turn.PageRefs
	m.citedCursor = 0
	if msg.turn.Failed {
		m.errorMessage = "The model did not answer; see the log for details."
		return nil
	}
	if steps := m.dispatcher.Dispatch(reply.Commands); steps > 0 {
		m.infoMessage = fmt.Sprintf("Following %d steps from the reply.", steps)
	} else {
		m.infoMessage = ""
	}
	return nil
}

func (m *model) startFlashcards() tea.Cmd {
	if m.config.Tutor == nil {
		m.errorMessage = "No model configured."
		return nil
	}
	if m.jobs.Busy(jobKindFlashcards) {
		return nil
	}
	m.infoMessage = "Writing flashcards…"
	return m.startJob(jobKindFlashcards, flashcardsJob(m.config.Tutor, m.config.Sessions, m.session, m.doc.Title))
}

func (m *model) handleFlashcardsResult(msg flashcardsResultMsg) {
	if msg.err != nil {
		m.errorMessage = fmt.Sprintf("Flashcards failed: %v", msg.err)
		m.infoMessage = ""
		return
	}
	m.infoMessage = fmt.Sprintf("%d flashcards ready.", len(msg.set.Flashcards))
	m.appendTranscript(transcriptEntry{Kind: transcriptKindFlashcards, Content: formatFlashcards(msg.set)})
}

func (m *model) startSummary() tea.Cmd {
	if m.config.Tutor == nil {
		m.errorMessage = "No model configured."
		return nil
	}
	if m.jobs.Busy(jobKindSummary) {
		return nil
	}
	m.infoMessage = "Summarizing…"
	return m.startJob(jobKindSummary, summaryJob(m.config.Tutor, m.config.Sessions, m.session, m.doc.Title))
}

func (m *model) handleSummaryResult(msg summaryResultMsg) {
	if msg.err != nil {
		m.errorMessage = fmt.Sprintf("Summary failed: %v", msg.err)
		m.infoMessage = ""
		return
	}
	m.infoMessage = "Summary ready."
	m.appendTranscript(transcriptEntry{Kind: transcriptKindSummary, Content: msg.summary})
}

// loadHistory fills the transcript from the stored session.
func (m *model) loadHistory() {
	if m.config.Tutor == nil || m.session.ID == "" {
		return
	}
	entries, err := m.config.Tutor.History(context.Background(), m.session.ID)
	if err != nil {
		m.log.Error("load history for session %s: %v", m.session.ID, err)
		m.errorMessage = fmt.Sprintf("Could not load history: %v", err)
		return
	}
	for _, e := range entries {
		entry := transcriptEntry{Content: e.Display, Commands: e.Commands, PageRefs: e.PageRefs}
		switch {
		case e.Message.Role == store.RoleUser:
			entry.Kind = transcriptKindQuestion
		case m.session.Type == store.SessionSummary:
			entry.Kind = transcriptKindSummary
		case m.session.Type == store.SessionFlashcards:
			// decks are shown through SavedFlashcards
			continue
		default:
			entry.Kind = transcriptKindAnswer
			m.lastCited = e.PageRefs
		}
		m.transcript = append(m.transcript, entry)
	}
	if m.session.Type == store.SessionFlashcards {
		if set, ok, err := m.config.Tutor.SavedFlashcards(context.Background(), m.session.ID); err == nil && ok {
			m.transcript = append(m.transcript, transcriptEntry{Kind: transcriptKindFlashcards, Content: formatFlashcards(set)})
		}
	}
}

func (m *model) appendTranscript(entry transcriptEntry) {
	m.transcript = append(m.transcript, entry)
	m.markTranscriptDirty()
	m.transcriptViewport.GotoBottom()
}

func (m *model) dropPending(kind string) {
	kept := m.transcript[:0]
	for _, entry := range m.transcript {
		if entry.Pending && entry.Kind == kind {
			continue
		}
		kept = append(kept, entry)
	}
	m.transcript = kept
}

func (m *model) hasTranscriptKind(kind string) bool {
	for _, entry := range m.transcript {
		if entry.Kind == kind {
			return true
		}
	}
	return false
}

func (m *model) gotoPage(index int) {
	total := m.viewer.PageCount()
	if total == 0 {
		return
	}
	if index < 0 {
		index = 0
	}
	if index >= total {
		index = total - 1
	}
	m.viewer.GotoPage(index, false)
}

func (m *model) scrollToCurrentPage() {
	m.ScrollTo(viewer.Anchor{PageIndex: m.viewer.CurrentPage(), Area: viewer.AreaPage})
}

func (m *model) visitCitedPage() {
	if len(m.lastCited) == 0 {
		m.infoMessage = "The last reply cited no pages."
		return
	}
	page := m.lastCited[m.citedCursor%len(m.lastCited)]
	m.citedCursor++
	if page >= m.viewer.PageCount() {
		m.infoMessage = fmt.Sprintf("Page %d is not in this document.", page+1)
		return
	}
	m.viewer.GotoPage(page, true)
}

func (m *model) togglePinnedTerm() {
	state := m.viewer.State()
	if state.PersistentTerm != "" && (state.Search.Query == "" || state.Search.Query == state.PersistentTerm) {
		m.viewer.SetPersistentTerm("")
		m.infoMessage = "Unpinned highlight."
		return
	}
	if state.Search.Query == "" {
		m.infoMessage = "Search for a term first, then press * to pin it."
		return
	}
	m.viewer.SetPersistentTerm(state.Search.Query)
	m.infoMessage = fmt.Sprintf("Pinned %q.", state.Search.Query)
}

func (m *model) applySearch(query string) {
	m.viewer.Highlight(strings.TrimSpace(query))
	m.markViewportDirty()
}

func (m *model) actionToggleHelpCmd() {
	m.helpVisible = !m.helpVisible
}

// ScrollTo implements viewer.Surface. The scroll is applied after the next
// render so it lands on the fresh layout.
func (m *model) ScrollTo(anchor viewer.Anchor) bool {
	target := anchor
	m.pendingScroll = &target
	m.markViewportDirty()
	_, ok := m.anchors[anchor]
	return ok
}

// post hands a scheduler callback to the event loop. After Close it drops fn.
func (m *model) post(fn func()) {
	select {
	case <-m.done:
	case m.tasks <- fn:
	}
}

func (m *model) commitAnnotation(item annotate.Item) {
	m.markViewportDirty()
	if m.annotations == nil {
		return
	}
	if err := m.annotations.Enqueue(item); err != nil {
		m.log.Warn("note on page %d not saved: %v", item.PageIndex+1, err)
		m.errorMessage = fmt.Sprintf("Note on page %d is kept for this session only: %v", item.PageIndex+1, err)
	}
}

// annotationCommitted runs on the commit worker and reports back through the loop.
func (m *model) annotationCommitted(result annotate.Result) {
	m.post(func() {
		switch {
		case result.Err != nil:
			m.errorMessage = fmt.Sprintf("Note on page %d is kept for this session only: %v", result.Item.PageIndex+1, result.Err)
		case result.Changed:
			m.infoMessage = fmt.Sprintf("Saved note on page %d.", result.Item.PageIndex+1)
		}
	})
}

// Close stops timers and waits for queued notes to reach storage. It is safe
// to call more than once.
func (m *model) Close() {
	if m.closed {
		return
	}
	m.closed = true
	m.dispatcher.Close()
	m.viewer.Close()
	close(m.done)
	if m.annotations != nil {
		m.annotations.Close()
	}
}

func (m *model) markViewportDirty() {
	m.viewportDirty = true
}

func (m *model) markTranscriptDirty() {
	m.transcriptDirty = true
}

func (m *model) refreshViewportIfDirty() {
	if m.viewportDirty {
		m.refreshViewport()
	}
}

func (m *model) refreshViewport() {
	m.viewportDirty = false
	view := m.buildDocumentView()
	m.anchors = view.anchors
	m.viewport.SetContent(view.content)
	if m.pendingScroll == nil {
		return
	}
	if line, ok := m.anchors[*m.pendingScroll]; ok {
		m.viewport.SetYOffset(m.clampYOffset(line))
	}
	m.pendingScroll = nil
}

func (m *model) refreshTranscriptIfDirty() {
	if !m.transcriptDirty {
		return
	}
	m.transcriptDirty = false
	cb := &contentBuilder{}
	m.writeConversationStream(cb)
	atBottom := m.transcriptViewport.AtBottom()
	m.transcriptViewport.SetContent(cb.String())
	if atBottom || len(m.jobs.Active()) > 0 {
		m.transcriptViewport.GotoBottom()
	}
}

func (m *model) clampYOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	maxOffset := m.viewport.TotalLineCount() - m.viewport.Height
	if maxOffset < 0 {
		maxOffset = 0
	}
	if offset > maxOffset {
		return maxOffset
	}
	return offset
}

var (
	sectionHeaderStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("81"))
	errorStyle             = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	helperStyle            = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	searchHighlightStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("190"))
	searchCurrentStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("229"))
	activeHighlightStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#0f0f0f")).Background(lipgloss.Color("#ffd166"))
	citationStyle          = lipgloss.NewStyle().Underline(true).Foreground(lipgloss.Color("#8ecae6"))
	persistentStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("#0f0f0f")).Background(lipgloss.Color("#bde0fe"))
	commandStyle           = lipgloss.NewStyle().Foreground(lipgloss.Color("#a3be8c")).Italic(true)
	pageHeaderStyle        = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("147"))
	currentPageHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")).Underline(true)
	blinkStyle             = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#0f0f0f")).Background(lipgloss.Color("#ff8c00"))
	notesHeaderStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("110"))
	noteStyle              = lipgloss.NewStyle().Foreground(lipgloss.Color("#a3be8c")).Italic(true)
	youLabelStyle          = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ffb347"))
	tutorLabelStyle        = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("81"))

	heroAccentColor        = lipgloss.Color("#ff8c00")
	heroSecondaryTextColor = lipgloss.Color("#ffb347")

	heroTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(heroAccentColor)
	taglineStyle   = lipgloss.NewStyle().Foreground(heroSecondaryTextColor).Italic(true)
	statusBarStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#0f0f0f")).Background(lipgloss.Color("#8ecae6")).Padding(0, 1)
	keyStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#0f0f0f")).Background(lipgloss.Color("#ffd166")).Padding(0, 1)
	keyDescStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#e0def4"))
	legendBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#56526e")).Padding(1, 2)
	helpBoxStyle   = lipgloss.NewStyle().Border(lipgloss.DoubleBorder()).BorderForeground(lipgloss.Color("#7f5af0")).Padding(1, 2)
)
