package tui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/csheth/studydesk/internal/document"
	"github.com/csheth/studydesk/internal/llm"
	"github.com/csheth/studydesk/internal/store"
	"github.com/csheth/studydesk/internal/tutor"
)

type chatResultMsg struct {
	sessionID string
	turn      tutor.Turn
	err       error
}

type flashcardsResultMsg struct {
	sessionID string
	set       llm.FlashcardSet
	err       error
}

type summaryResultMsg struct {
	sessionID string
	summary   string
	err       error
}

// taskMsg carries a scheduler callback onto the event loop.
type taskMsg struct {
	fn func()
}

// waitForTask blocks until the scheduler posts the next callback.
func waitForTask(tasks <-chan func()) tea.Cmd {
	return func() tea.Msg {
		fn, ok := <-tasks
		if !ok {
			return nil
		}
		return taskMsg{fn: fn}
	}
}

func chatJob(t Tutor, sessionID, text string, content document.Content) jobRunner {
	return func(ctx context.Context) (tea.Msg, error) {
		turn, err := t.Send(ctx, sessionID, text, content)
		return chatResultMsg{sessionID: sessionID, turn: turn, err: err}, err
	}
}

// studySession returns sessionID when it already has mode, otherwise opens a
// new session of that mode on the same document.
func studySession(ctx context.Context, sessions SessionOpener, current store.Session, mode store.SessionType, title string) (string, error) {
	if current.Type == mode {
		return current.ID, nil
	}
	if sessions == nil {
		return "", fmt.Errorf("cannot open a %s session from here", mode)
	}
	session, err := sessions.NewSession(ctx, current.DocumentID, mode, title)
	if err != nil {
		return "", fmt.Errorf("open %s session: %w", mode, err)
	}
	return session.ID, nil
}

func flashcardsJob(t Tutor, sessions SessionOpener, current store.Session, title string) jobRunner {
	return func(ctx context.Context) (tea.Msg, error) {
		sessionID, err := studySession(ctx, sessions, current, store.SessionFlashcards, title+" flashcards")
		if err != nil {
			return flashcardsResultMsg{err: err}, err
		}
		set, err := t.Flashcards(ctx, sessionID)
		return flashcardsResultMsg{sessionID: sessionID, set: set, err: err}, err
	}
}

func summaryJob(t Tutor, sessions SessionOpener, current store.Session, title string) jobRunner {
	return func(ctx context.Context) (tea.Msg, error) {
		sessionID, err := studySession(ctx, sessions, current, store.SessionSummary, title+" summary")
		if err != nil {
			return summaryResultMsg{err: err}, err
		}
		summary, err := t.Summarize(ctx, sessionID)
		return summaryResultMsg{sessionID: sessionID, summary: summary, err: err}, err
	}
}

// formatFlashcards lays a deck out as plain text, answers marked with their letter.
func formatFlashcards(set llm.FlashcardSet) string {
	var b strings.Builder
	b.WriteString(set.Title)
	for i, card := range set.Flashcards {
		b.WriteString("\n\n")
		fmt.Fprintf(&b, "%d. %s", i+1, card.Question)
		for j, option := range card.Options {
			marker := " "
			if option == card.CorrectAnswer {
				marker = "*"
			}
			fmt.Fprintf(&b, "\n   %s %c) %s", marker, 'A'+j, option)
		}
		if card.Explanation != "" {
			fmt.Fprintf(&b, "\n   Why: %s", card.Explanation)
		}
	}
	return b.String()
}

func pageList(refs []int) string {
	parts := make([]string, len(refs))
	for i, ref := range refs {
		parts[i] = fmt.Sprint(ref + 1)
	}
	return strings.Join(parts, ", ")
}
