// Package library imports PDFs into the store and opens study sessions on them.
package library

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/csheth/studydesk/internal/document"
	"github.com/csheth/studydesk/internal/logger"
	"github.com/csheth/studydesk/internal/source"
	"github.com/csheth/studydesk/internal/store"
)

// Resolver turns user input into a local PDF.
type Resolver interface {
	Resolve(ctx context.Context, input string) (source.Resolved, error)
}

// Extractor turns PDF bytes into page content.
type Extractor interface {
	Parse(ctx context.Context, data []byte) (document.Content, error)
}

// ImportOptions controls a single import.
type ImportOptions struct {
	Title        string
	SessionTitle string
	Mode         store.SessionType
	// Deferred stores placeholder content and parses pages on first Open.
	Deferred bool
}

// Opened is a session with its document ready to view.
type Opened struct {
	Session  store.Session
	Document document.Document
}

// Library coordinates sources, extraction and storage.
type Library struct {
	store     store.Store
	resolver  Resolver
	extractor Extractor
	log       logger.Logger
}

// New returns a library over st.
func New(st store.Store, resolver Resolver, extractor Extractor, log logger.Logger) *Library {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Library{store: st, resolver: resolver, extractor: extractor, log: log}
}

// Import resolves input, extracts its pages and stores the document with a
// new session. When extraction fails nothing is stored.
func (l *Library) Import(ctx context.Context, input string, opts ImportOptions) (Opened, error) {
	if opts.Mode == "" {
		opts.Mode = store.SessionTutor
	}
	if !opts.Mode.Valid() {
		return Opened{}, fmt.Errorf("unknown study mode %q", opts.Mode)
	}
	res, err := l.resolver.Resolve(ctx, input)
	if err != nil {
		return Opened{}, fmt.Errorf("resolve %q: %w", input, err)
	}
	data, err := os.ReadFile(res.Path)
	if err != nil {
		return Opened{}, fmt.Errorf("read %s: %w", res.Path, err)
	}

	content := document.Placeholder()
	if !opts.Deferred {
		content, err = l.extractor.Parse(ctx, data)
		if err != nil {
			return Opened{}, fmt.Errorf("extract %s: %w", res.FileName, err)
		}
	}

	title := strings.TrimSpace(opts.Title)
	if title == "" {
		title = res.Title
	}
	doc, err := l.store.CreateDocument(ctx, document.Document{
		FileName:   res.FileName,
		Title:      title,
		SourcePath: res.Origin,
		Content:    content,
		Metadata:   document.Metadata{Size: int64(len(data))},
	})
	if err != nil {
		return Opened{}, fmt.Errorf("store document: %w", err)
	}
	session, err := l.NewSession(ctx, doc.ID, opts.Mode, opts.SessionTitle)
	if err != nil {
		return Opened{}, err
	}
	l.log.Info("imported %s as %s (%d pages, deferred=%v)", res.FileName, doc.ID, doc.Metadata.PageCount, opts.Deferred)
	return Opened{Session: session, Document: doc}, nil
}

// NewSession opens another session on an existing document.
func (l *Library) NewSession(ctx context.Context, documentID string, mode store.SessionType, title string) (store.Session, error) {
	doc, err := l.store.GetDocument(ctx, documentID)
	if err != nil {
		return store.Session{}, err
	}
	if strings.TrimSpace(title) == "" {
		title = doc.Title
	}
	session, err := l.store.CreateSession(ctx, store.Session{DocumentID: documentID, Type: mode, Title: title})
	if err != nil {
		return store.Session{}, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

// Open loads a session and its document, parsing deferred content first.
func (l *Library) Open(ctx context.Context, sessionID string) (Opened, error) {
	session, err := l.store.GetSession(ctx, sessionID)
	if err != nil {
		return Opened{}, err
	}
	doc, err := l.store.GetDocument(ctx, session.DocumentID)
	if err != nil {
		return Opened{}, err
	}
	if doc.Content.NeedsClientParsing {
		if doc, err = l.parseDeferred(ctx, doc); err != nil {
			return Opened{}, err
		}
	}
	return Opened{Session: session, Document: doc}, nil
}

func (l *Library) parseDeferred(ctx context.Context, doc document.Document) (document.Document, error) {
	if doc.SourcePath == "" {
		return document.Document{}, fmt.Errorf("document %s has no source to parse", doc.ID)
	}
	res, err := l.resolver.Resolve(ctx, doc.SourcePath)
	if err != nil {
		return document.Document{}, fmt.Errorf("resolve %s: %w", doc.SourcePath, err)
	}
	data, err := os.ReadFile(res.Path)
	if err != nil {
		return document.Document{}, fmt.Errorf("read %s: %w", res.Path, err)
	}
	content, err := l.extractor.Parse(ctx, data)
	if err != nil {
		return document.Document{}, fmt.Errorf("extract %s: %w", doc.FileName, err)
	}
	if err := l.store.UpdateDocument(ctx, doc.ID, content); err != nil {
		return document.Document{}, fmt.Errorf("store parsed content: %w", err)
	}
	l.log.Info("parsed deferred document %s (%d pages)", doc.ID, content.TotalPages)
	return l.store.GetDocument(ctx, doc.ID)
}

// Documents lists the library, newest first.
func (l *Library) Documents(ctx context.Context) ([]document.Document, error) {
	return l.store.ListDocuments(ctx)
}

// Sessions lists sessions for a document, or all sessions for "".
func (l *Library) Sessions(ctx context.Context, documentID string) ([]store.Session, error) {
	return l.store.ListSessions(ctx, documentID)
}

// Delete removes a document. Documents with sessions are kept unless force
// is set, in which case their sessions are deleted first.
func (l *Library) Delete(ctx context.Context, documentID string, force bool) error {
	err := l.store.DeleteDocument(ctx, documentID)
	if !errors.Is(err, store.ErrHasSessions) || !force {
		return err
	}
	sessions, err := l.store.ListSessions(ctx, documentID)
	if err != nil {
		return err
	}
	for _, s := range sessions {
		if err := l.store.DeleteSession(ctx, s.ID); err != nil {
			return fmt.Errorf("delete session %s: %w", s.ID, err)
		}
	}
	return l.store.DeleteDocument(ctx, documentID)
}
