package tui

import (
	"context"
	"time"

	"github.com/csheth/studydesk/internal/document"
	"github.com/csheth/studydesk/internal/llm"
	"github.com/csheth/studydesk/internal/store"
	"github.com/csheth/studydesk/internal/tutor"
)

type stage int

const (
	stageDisplay stage = iota
	stageSearch
)

const (
	minViewportWidth          = 40
	viewportHorizontalPadding = 4
	transcriptPreviewLimit    = 240
	minPageWrapWidth          = 20
)

type interactionMode int

const (
	modeNormal interactionMode = iota
	modeInsert
)

const (
	composerChatPlaceholder  = "Ask the tutor about this document…"
	composerIdlePlaceholder  = "Press i to ask a question."
	searchPlaceholder        = "Search pages…"
	typingCaret              = "▌"
	chatTimeout              = 3 * time.Minute
	generationTimeout        = 5 * time.Minute
	transcriptKindQuestion   = "question"
	transcriptKindAnswer     = "answer"
	transcriptKindSummary    = "summary"
	transcriptKindFlashcards = "flashcards"
	transcriptKindSystem     = "system"
	transcriptKindError      = "error"
)

// Tutor is the conversation backend the UI drives.
type Tutor interface {
	Send(ctx context.Context, sessionID, text string, content document.Content) (tutor.Turn, error)
	History(ctx context.Context, sessionID string) ([]tutor.Entry, error)
	Flashcards(ctx context.Context, sessionID string) (llm.FlashcardSet, error)
	SavedFlashcards(ctx context.Context, sessionID string) (llm.FlashcardSet, bool, error)
	Summarize(ctx context.Context, sessionID string) (string, error)
}

// SessionOpener creates sibling study sessions on the open document.
type SessionOpener interface {
	NewSession(ctx context.Context, documentID string, mode store.SessionType, title string) (store.Session, error)
}

type transcriptEntry struct {
	Kind     string
	Content  string
	Commands []string
	PageRefs []int
	Pending  bool
}
