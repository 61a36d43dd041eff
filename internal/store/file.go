package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/csheth/studydesk/internal/document"
)

const (
	entryTypeDocument = "document"
	entryTypeSession  = "session"
	entryTypeMessage  = "message"
)

type entryHeader struct {
	EntryType string `json:"entryType"`
}

type documentEntry struct {
	EntryType string `json:"entryType"`
	document.Document
}

type sessionEntry struct {
	EntryType string `json:"entryType"`
	Session
}

type messageEntry struct {
	EntryType string `json:"entryType"`
	Message
}

// File keeps the library in one JSON array of typed entries. Every call is a
// read-modify-write of the whole file, which is fine for a single reader's
// library and keeps the file easy to inspect by hand.
type File struct {
	path string
	mu   sync.Mutex
}

// NewFile returns a store backed by path, creating its directory.
func NewFile(path string) (*File, error) {
	if path == "" {
		return nil, errors.New("file store needs a path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	return &File{path: path}, nil
}

// Path is the backing file.
func (f *File) Path() string {
	return f.path
}

type fileState struct {
	docs     []document.Document
	sessions []Session
	messages []Message
}

func (f *File) load() (*fileState, error) {
	entries, err := loadEntries(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &fileState{}, nil
		}
		return nil, fmt.Errorf("read %s: %w", f.path, err)
	}
	state := &fileState{}
	for _, raw := range entries {
		entryType, err := detectEntryType(raw)
		if err != nil {
			return nil, fmt.Errorf("decode entry: %w", err)
		}
		switch entryType {
		case entryTypeDocument:
			var entry documentEntry
			if err := json.Unmarshal(raw, &entry); err != nil {
				return nil, fmt.Errorf("decode document: %w", err)
			}
			state.docs = append(state.docs, entry.Document)
		case entryTypeSession:
			var entry sessionEntry
			if err := json.Unmarshal(raw, &entry); err != nil {
				return nil, fmt.Errorf("decode session: %w", err)
			}
			state.sessions = append(state.sessions, entry.Session)
		case entryTypeMessage:
			var entry messageEntry
			if err := json.Unmarshal(raw, &entry); err != nil {
				return nil, fmt.Errorf("decode message: %w", err)
			}
			state.messages = append(state.messages, entry.Message)
		}
	}
	return state, nil
}

func (f *File) save(state *fileState) error {
	entries := make([]json.RawMessage, 0, len(state.docs)+len(state.sessions)+len(state.messages))
	add := func(v any) error {
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		entries = append(entries, raw)
		return nil
	}
	for _, doc := range state.docs {
		if err := add(documentEntry{EntryType: entryTypeDocument, Document: doc}); err != nil {
			return err
		}
	}
	for _, s := range state.sessions {
		if err := add(sessionEntry{EntryType: entryTypeSession, Session: s}); err != nil {
			return err
		}
	}
	for _, m := range state.messages {
		if err := add(messageEntry{EntryType: entryTypeMessage, Message: m}); err != nil {
			return err
		}
	}
	return writeEntries(f.path, entries)
}

// update runs fn on the loaded state and writes it back when fn succeeds.
func (f *File) update(fn func(*fileState) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	state, err := f.load()
	if err != nil {
		return err
	}
	if err := fn(state); err != nil {
		return err
	}
	return f.save(state)
}

func (f *File) view(fn func(*fileState) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	state, err := f.load()
	if err != nil {
		return err
	}
	return fn(state)
}

func (s *fileState) docIndex(id string) int {
	for i, doc := range s.docs {
		if doc.ID == id {
			return i
		}
	}
	return -1
}

func (s *fileState) sessionIndex(id string) int {
	for i, session := range s.sessions {
		if session.ID == id {
			return i
		}
	}
	return -1
}

func (f *File) CreateDocument(_ context.Context, doc document.Document) (document.Document, error) {
	doc, err := prepareDocument(doc)
	if err != nil {
		return document.Document{}, err
	}
	err = f.update(func(s *fileState) error {
		if i := s.docIndex(doc.ID); i >= 0 {
			s.docs[i] = doc
			return nil
		}
		s.docs = append(s.docs, doc)
		return nil
	})
	return doc, err
}

func (f *File) GetDocument(_ context.Context, id string) (document.Document, error) {
	var out document.Document
	err := f.view(func(s *fileState) error {
		i := s.docIndex(id)
		if i < 0 {
			return notFound("document", id)
		}
		out = s.docs[i]
		return nil
	})
	return out, err
}

func (f *File) UpdateDocument(_ context.Context, id string, content document.Content) error {
	return f.update(func(s *fileState) error {
		i := s.docIndex(id)
		if i < 0 {
			return notFound("document", id)
		}
		s.docs[i].Content = content.Clone()
		s.docs[i].Metadata.PageCount = content.TotalPages
		s.docs[i].Metadata.Parsed = !content.NeedsClientParsing
		s.docs[i].UpdatedAt = now()
		return nil
	})
}

func (f *File) ListDocuments(_ context.Context) ([]document.Document, error) {
	var out []document.Document
	err := f.view(func(s *fileState) error {
		out = append(make([]document.Document, 0, len(s.docs)), s.docs...)
		return nil
	})
	sortDocuments(out)
	return out, err
}

func (f *File) DeleteDocument(_ context.Context, id string) error {
	return f.update(func(s *fileState) error {
		i := s.docIndex(id)
		if i < 0 {
			return notFound("document", id)
		}
		for _, session := range s.sessions {
			if session.DocumentID == id {
				return ErrHasSessions
			}
		}
		s.docs = append(s.docs[:i], s.docs[i+1:]...)
		return nil
	})
}

func (f *File) CreateSession(_ context.Context, session Session) (Session, error) {
	session, err := prepareSession(session)
	if err != nil {
		return Session{}, err
	}
	err = f.update(func(s *fileState) error {
		if s.docIndex(session.DocumentID) < 0 {
			return notFound("document", session.DocumentID)
		}
		s.sessions = append(s.sessions, session)
		return nil
	})
	return session, err
}

func (f *File) GetSession(_ context.Context, id string) (Session, error) {
	var out Session
	err := f.view(func(s *fileState) error {
		i := s.sessionIndex(id)
		if i < 0 {
			return notFound("session", id)
		}
		out = s.sessions[i]
		return nil
	})
	return out, err
}

func (f *File) ListSessions(_ context.Context, documentID string) ([]Session, error) {
	out := make([]Session, 0)
	err := f.view(func(s *fileState) error {
		for _, session := range s.sessions {
			if documentID == "" || session.DocumentID == documentID {
				out = append(out, session)
			}
		}
		return nil
	})
	sortSessions(out)
	return out, err
}

func (f *File) DeleteSession(_ context.Context, id string) error {
	return f.update(func(s *fileState) error {
		i := s.sessionIndex(id)
		if i < 0 {
			return notFound("session", id)
		}
		s.sessions = append(s.sessions[:i], s.sessions[i+1:]...)
		kept := s.messages[:0]
		for _, m := range s.messages {
			if m.SessionID != id {
				kept = append(kept, m)
			}
		}
		s.messages = kept
		return nil
	})
}

func (f *File) AppendMessage(_ context.Context, msg Message) (Message, error) {
	msg, err := prepareMessage(msg)
	if err != nil {
		return Message{}, err
	}
	err = f.update(func(s *fileState) error {
		i := s.sessionIndex(msg.SessionID)
		if i < 0 {
			return notFound("session", msg.SessionID)
		}
		s.sessions[i].UpdatedAt = msg.CreatedAt
		s.messages = append(s.messages, msg)
		return nil
	})
	return msg, err
}

func (f *File) Messages(_ context.Context, sessionID string) ([]Message, error) {
	var out []Message
	err := f.view(func(s *fileState) error {
		if s.sessionIndex(sessionID) < 0 {
			return notFound("session", sessionID)
		}
		for _, m := range s.messages {
			if m.SessionID == sessionID {
				out = append(out, m)
			}
		}
		return nil
	})
	return out, err
}

func (f *File) Close() error { return nil }

// writeEntries replaces the file through a temp file so a crash mid-write
// leaves the previous library intact.
func writeEntries(path string, entries []json.RawMessage) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func loadEntries(path string) ([]json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func detectEntryType(raw json.RawMessage) (string, error) {
	var header entryHeader
	if err := json.Unmarshal(raw, &header); err != nil {
		return "", err
	}
	return header.EntryType, nil
}
