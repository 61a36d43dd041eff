// Package tutor runs the study conversations: chat turns that may carry
// viewer commands, plus the flashcard and summary modes.
package tutor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/csheth/studydesk/internal/document"
	"github.com/csheth/studydesk/internal/llm"
	"github.com/csheth/studydesk/internal/logger"
	"github.com/csheth/studydesk/internal/protocol"
	"github.com/csheth/studydesk/internal/store"
)

// Apology replaces a reply the model failed to produce.
const Apology = "I'm sorry, I encountered an error while processing your request."

var (
	// ErrEmptyMessage is returned for blank user input.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrWrongMode is returned when a session is used outside its study mode.
	ErrWrongMode = errors.New("session is in a different study mode")
)

// Store is the persistence the tutor needs.
type Store interface {
	GetDocument(ctx context.Context, id string) (document.Document, error)
	GetSession(ctx context.Context, id string) (store.Session, error)
	AppendMessage(ctx context.Context, m store.Message) (store.Message, error)
	Messages(ctx context.Context, sessionID string) ([]store.Message, error)
}

// Options tunes a Tutor.
type Options struct {
	Log    logger.Logger
	Parser *protocol.Parser
}

// Tutor sends chat turns to the model and records them.
type Tutor struct {
	store  Store
	client llm.Client
	parser *protocol.Parser
	log    logger.Logger
}

// New returns a tutor backed by st and client.
func New(st Store, client llm.Client, opts Options) *Tutor {
	log := opts.Log
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	parser := opts.Parser
	if parser == nil {
		parser = protocol.NewParser(log)
	}
	return &Tutor{store: st, client: client, parser: parser, log: log}
}

// Turn is the outcome of one Send.
type Turn struct {
	User      store.Message
	Assistant store.Message
	Reply     protocol.Reply
	PageRefs  []int
	// Failed is set when Assistant holds the apology instead of a model reply.
	Failed bool
}

// Entry is a stored message prepared for display.
type Entry struct {
	Message  store.Message
	Display  string
	Commands []string
	PageRefs []int
}

// Send records text as a user turn, asks the model with the full session
// history and content as context, and records the raw reply. A generation
// failure becomes the apology reply; only storage failures are returned.
func (t *Tutor) Send(ctx context.Context, sessionID, text string, content document.Content) (Turn, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Turn{}, ErrEmptyMessage
	}
	session, err := t.store.GetSession(ctx, sessionID)
	if err != nil {
		return Turn{}, err
	}
	if session.Type != store.SessionTutor {
		return Turn{}, fmt.Errorf("send to %s session: %w", session.Type, ErrWrongMode)
	}

	user, err := t.store.AppendMessage(ctx, store.Message{SessionID: sessionID, Role: store.RoleUser, Content: text})
	if err != nil {
		return Turn{}, fmt.Errorf("store user message: %w", err)
	}
	stored, err := t.store.Messages(ctx, sessionID)
	if err != nil {
		return Turn{}, fmt.Errorf("load history: %w", err)
	}

	turn := Turn{User: user}
	raw, err := t.client.Chat(ctx, toHistory(stored), content.PromptContext())
	if err != nil {
		t.log.Error("generation failed for session %s: %v", sessionID, err)
		raw = Apology
		turn.Failed = true
	}

	turn.Assistant, err = t.store.AppendMessage(ctx, store.Message{SessionID: sessionID, Role: store.RoleAssistant, Content: raw})
	if err != nil {
		return Turn{}, fmt.Errorf("store assistant message: %w", err)
	}
	turn.Reply = t.parser.Parse(raw)
	turn.PageRefs = protocol.PageRefs(turn.Reply.Display)
	t.log.Info("session %s: reply with %d commands", sessionID, len(turn.Reply.Commands))
	return turn, nil
}

// History returns the stored messages of a session with assistant command
// blocks split from their display text.
func (t *Tutor) History(ctx context.Context, sessionID string) ([]Entry, error) {
	msgs, err := t.store.Messages(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(msgs))
	for _, m := range msgs {
		e := Entry{Message: m, Display: m.Content}
		if m.Role == store.RoleAssistant {
			reply := t.parser.Parse(m.Content)
			e.Display = reply.Display
			for _, cmd := range reply.Commands {
				e.Commands = append(e.Commands, cmd.String())
			}
		}
		e.PageRefs = protocol.PageRefs(e.Display)
		out = append(out, e)
	}
	return out, nil
}

// Flashcards generates a deck for a flashcards session and stores it as the
// session's assistant message.
func (t *Tutor) Flashcards(ctx context.Context, sessionID string) (llm.FlashcardSet, error) {
	doc, err := t.documentFor(ctx, sessionID, store.SessionFlashcards)
	if err != nil {
		return llm.FlashcardSet{}, err
	}
	set, err := t.client.Flashcards(ctx, doc.Title, doc.Content.PromptContext())
	if err != nil {
		return llm.FlashcardSet{}, fmt.Errorf("generate flashcards: %w", err)
	}
	encoded, err := json.Marshal(set)
	if err != nil {
		return llm.FlashcardSet{}, err
	}
	if _, err := t.store.AppendMessage(ctx, store.Message{SessionID: sessionID, Role: store.RoleAssistant, Content: string(encoded)}); err != nil {
		return llm.FlashcardSet{}, fmt.Errorf("store flashcards: %w", err)
	}
	return set, nil
}

// SavedFlashcards returns the most recent deck stored in a session.
func (t *Tutor) SavedFlashcards(ctx context.Context, sessionID string) (llm.FlashcardSet, bool, error) {
	msgs, err := t.store.Messages(ctx, sessionID)
	if err != nil {
		return llm.FlashcardSet{}, false, err
	}
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role != store.RoleAssistant {
			continue
		}
		var set llm.FlashcardSet
		if err := json.Unmarshal([]byte(msgs[i].Content), &set); err == nil && len(set.Flashcards) > 0 {
			return set, true, nil
		}
	}
	return llm.FlashcardSet{}, false, nil
}

// Summarize writes a study summary for a summary session and stores it.
func (t *Tutor) Summarize(ctx context.Context, sessionID string) (string, error) {
	doc, err := t.documentFor(ctx, sessionID, store.SessionSummary)
	if err != nil {
		return "", err
	}
	summary, err := t.client.Summarize(ctx, doc.Title, doc.Content.PromptContext())
	if err != nil {
		return "", fmt.Errorf("summarize: %w", err)
	}
	if _, err := t.store.AppendMessage(ctx, store.Message{SessionID: sessionID, Role: store.RoleAssistant, Content: summary}); err != nil {
		return "", fmt.Errorf("store summary: %w", err)
	}
	return summary, nil
}

func (t *Tutor) documentFor(ctx context.Context, sessionID string, mode store.SessionType) (document.Document, error) {
	session, err := t.store.GetSession(ctx, sessionID)
	if err != nil {
		return document.Document{}, err
	}
	if session.Type != mode {
		return document.Document{}, fmt.Errorf("%s on %s session: %w", mode, session.Type, ErrWrongMode)
	}
	return t.store.GetDocument(ctx, session.DocumentID)
}

func toHistory(msgs []store.Message) []llm.Message {
	out := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		role := llm.RoleUser
		if m.Role == store.RoleAssistant {
			role = llm.RoleAssistant
		}
		out = append(out, llm.Message{Role: role, Content: m.Content})
	}
	return out
}
