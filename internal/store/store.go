package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/csheth/studydesk/internal/document"
)

var (
	// ErrNotFound is returned when a document or session id is unknown.
	ErrNotFound = errors.New("not found")
	// ErrHasSessions blocks deleting a document that sessions still use.
	ErrHasSessions = errors.New("document still has sessions")
)

// SessionType is the study mode a session was opened in.
type SessionType string

const (
	SessionTutor      SessionType = "tutor"
	SessionFlashcards SessionType = "flashcards"
	SessionSummary    SessionType = "summary"
)

// Valid reports whether t is a known study mode.
func (t SessionType) Valid() bool {
	switch t {
	case SessionTutor, SessionFlashcards, SessionSummary:
		return true
	}
	return false
}

// Role is the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Session is one study conversation over a document.
type Session struct {
	ID         string      `json:"id"`
	DocumentID string      `json:"documentId"`
	Type       SessionType `json:"type"`
	Title      string      `json:"title"`
	CreatedAt  time.Time   `json:"createdAt"`
	UpdatedAt  time.Time   `json:"updatedAt"`
}

// Message is a stored chat turn. Assistant content is kept raw, command
// block included, so it can be replayed and re-parsed.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store persists documents, sessions and messages. UpdateDocument replaces
// the whole content object.
type Store interface {
	CreateDocument(ctx context.Context, doc document.Document) (document.Document, error)
	GetDocument(ctx context.Context, id string) (document.Document, error)
	UpdateDocument(ctx context.Context, id string, content document.Content) error
	ListDocuments(ctx context.Context) ([]document.Document, error)
	DeleteDocument(ctx context.Context, id string) error

	CreateSession(ctx context.Context, s Session) (Session, error)
	GetSession(ctx context.Context, id string) (Session, error)
	ListSessions(ctx context.Context, documentID string) ([]Session, error)
	DeleteSession(ctx context.Context, id string) error

	AppendMessage(ctx context.Context, m Message) (Message, error)
	Messages(ctx context.Context, sessionID string) ([]Message, error)

	Close() error
}

// Open picks a backend from dsn:
//
//	memory:                   in-process maps
//	file:<path> or *.json     JSON entries file
//	sqlite:<path>             SQLite database
//	postgres://...            PostgreSQL
func Open(ctx context.Context, dsn string) (Store, error) {
	switch {
	case dsn == "" || dsn == "memory:":
		return NewMemory(), nil
	case strings.HasPrefix(dsn, "file:"):
		return NewFile(strings.TrimPrefix(dsn, "file:"))
	case strings.HasPrefix(dsn, "sqlite:"):
		return NewSQLite(ctx, strings.TrimPrefix(dsn, "sqlite:"))
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return NewPostgres(ctx, dsn)
	case strings.HasSuffix(dsn, ".json"):
		return NewFile(dsn)
	case strings.HasSuffix(dsn, ".db"), strings.HasSuffix(dsn, ".sqlite"):
		return NewSQLite(ctx, dsn)
	default:
		return nil, fmt.Errorf("unsupported store %q", dsn)
	}
}

func now() time.Time {
	return time.Now().UTC()
}

// prepareDocument fills the id and timestamps a backend assigns on create.
func prepareDocument(doc document.Document) (document.Document, error) {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if err := doc.Content.Validate(); err != nil {
		return document.Document{}, fmt.Errorf("invalid content: %w", err)
	}
	ts := now()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = ts
	}
	doc.UpdatedAt = ts
	if doc.Metadata.UploadedAt.IsZero() {
		doc.Metadata.UploadedAt = ts
	}
	doc.Metadata.PageCount = doc.Content.TotalPages
	doc.Metadata.Parsed = !doc.Content.NeedsClientParsing
	doc.Content = doc.Content.Clone()
	return doc, nil
}

func prepareSession(s Session) (Session, error) {
	if s.DocumentID == "" {
		return Session{}, errors.New("session needs a document id")
	}
	if s.Type == "" {
		s.Type = SessionTutor
	}
	if !s.Type.Valid() {
		return Session{}, fmt.Errorf("unknown session type %q", s.Type)
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	ts := now()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = ts
	}
	s.UpdatedAt = ts
	return s, nil
}

func prepareMessage(m Message) (Message, error) {
	if m.SessionID == "" {
		return Message{}, errors.New("message needs a session id")
	}
	if m.Role != RoleUser && m.Role != RoleAssistant {
		return Message{}, fmt.Errorf("unknown role %q", m.Role)
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now()
	}
	return m, nil
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
}
