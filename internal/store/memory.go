package store

import (
	"context"
	"sort"
	"sync"

	"github.com/csheth/studydesk/internal/document"
)

// Memory keeps everything in maps. Used by tests and throwaway sessions.
type Memory struct {
	mu       sync.RWMutex
	docs     map[string]document.Document
	sessions map[string]Session
	messages map[string][]Message
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{
		docs:     map[string]document.Document{},
		sessions: map[string]Session{},
		messages: map[string][]Message{},
	}
}

func cloneDocument(doc document.Document) document.Document {
	doc.Content = doc.Content.Clone()
	return doc
}

func (m *Memory) CreateDocument(_ context.Context, doc document.Document) (document.Document, error) {
	doc, err := prepareDocument(doc)
	if err != nil {
		return document.Document{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[doc.ID] = doc
	return cloneDocument(doc), nil
}

func (m *Memory) GetDocument(_ context.Context, id string) (document.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[id]
	if !ok {
		return document.Document{}, notFound("document", id)
	}
	return cloneDocument(doc), nil
}

func (m *Memory) UpdateDocument(_ context.Context, id string, content document.Content) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return notFound("document", id)
	}
	doc.Content = content.Clone()
	doc.Metadata.PageCount = content.TotalPages
	doc.Metadata.Parsed = !content.NeedsClientParsing
	doc.UpdatedAt = now()
	m.docs[id] = doc
	return nil
}

func (m *Memory) ListDocuments(_ context.Context) ([]document.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]document.Document, 0, len(m.docs))
	for _, doc := range m.docs {
		out = append(out, cloneDocument(doc))
	}
	sortDocuments(out)
	return out, nil
}

func (m *Memory) DeleteDocument(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[id]; !ok {
		return notFound("document", id)
	}
	for _, s := range m.sessions {
		if s.DocumentID == id {
			return ErrHasSessions
		}
	}
	delete(m.docs, id)
	return nil
}

func (m *Memory) CreateSession(_ context.Context, s Session) (Session, error) {
	s, err := prepareSession(s)
	if err != nil {
		return Session{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[s.DocumentID]; !ok {
		return Session{}, notFound("document", s.DocumentID)
	}
	m.sessions[s.ID] = s
	return s, nil
}

func (m *Memory) GetSession(_ context.Context, id string) (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return Session{}, notFound("session", id)
	}
	return s, nil
}

func (m *Memory) ListSessions(_ context.Context, documentID string) ([]Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Session, 0)
	for _, s := range m.sessions {
		if documentID == "" || s.DocumentID == documentID {
			out = append(out, s)
		}
	}
	sortSessions(out)
	return out, nil
}

func (m *Memory) DeleteSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return notFound("session", id)
	}
	delete(m.sessions, id)
	delete(m.messages, id)
	return nil
}

func (m *Memory) AppendMessage(_ context.Context, msg Message) (Message, error) {
	msg, err := prepareMessage(msg)
	if err != nil {
		return Message{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[msg.SessionID]
	if !ok {
		return Message{}, notFound("session", msg.SessionID)
	}
	m.messages[msg.SessionID] = append(m.messages[msg.SessionID], msg)
	s.UpdatedAt = msg.CreatedAt
	m.sessions[s.ID] = s
	return msg, nil
}

func (m *Memory) Messages(_ context.Context, sessionID string) ([]Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.sessions[sessionID]; !ok {
		return nil, notFound("session", sessionID)
	}
	return append([]Message(nil), m.messages[sessionID]...), nil
}

func (m *Memory) Close() error { return nil }

// Newest first, ties broken by id so listings are stable.
func sortDocuments(docs []document.Document) {
	sort.Slice(docs, func(i, j int) bool {
		if !docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].CreatedAt.After(docs[j].CreatedAt)
		}
		return docs[i].ID < docs[j].ID
	})
}

func sortSessions(sessions []Session) {
	sort.Slice(sessions, func(i, j int) bool {
		if !sessions[i].UpdatedAt.Equal(sessions[j].UpdatedAt) {
			return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
		}
		return sessions[i].ID < sessions[j].ID
	})
}
