package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/csheth/studydesk/internal/document"
)

// runStoreSuite exercises the behaviour every backend must share.
func runStoreSuite(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	content := document.FromTexts("the cat sat", "a dog ran")
	doc, err := s.CreateDocument(ctx, document.Document{FileName: "notes.pdf", Title: "Notes", Content: content})
	require.NoError(t, err)
	require.NotEmpty(t, doc.ID)
	require.Equal(t, 2, doc.Metadata.PageCount)
	require.True(t, doc.Metadata.Parsed)

	got, err := s.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Equal(t, "Notes", got.Title)
	require.Equal(t, content.Texts(), got.Content.Texts())

	updated := got.Content.Clone()
	require.True(t, updated.AppendAnnotation(1, "dogs are loyal"))
	require.NoError(t, s.UpdateDocument(ctx, doc.ID, updated))
	got, err = s.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"dogs are loyal"}, got.Content.Annotations(1))
	require.Empty(t, got.Content.Annotations(0))

	require.ErrorIs(t, s.UpdateDocument(ctx, "missing", updated), ErrNotFound)
	_, err = s.GetDocument(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	session, err := s.CreateSession(ctx, Session{DocumentID: doc.ID, Title: "Chapter 1"})
	require.NoError(t, err)
	require.Equal(t, SessionTutor, session.Type)
	_, err = s.CreateSession(ctx, Session{DocumentID: "missing"})
	require.ErrorIs(t, err, ErrNotFound)
	_, err = s.CreateSession(ctx, Session{DocumentID: doc.ID, Type: "quiz"})
	require.Error(t, err)

	for _, m := range []Message{
		{SessionID: session.ID, Role: RoleUser, Content: "what sat?"},
		{SessionID: session.ID, Role: RoleAssistant, Content: "The cat.\ncommands:\n/highlight/1/cat"},
		{SessionID: session.ID, Role: RoleUser, Content: "thanks"},
	} {
		_, err := s.AppendMessage(ctx, m)
		require.NoError(t, err)
	}
	msgs, err := s.Messages(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	require.Equal(t, RoleAssistant, msgs[1].Role)
	require.Equal(t, "thanks", msgs[2].Content)
	_, err = s.AppendMessage(ctx, Message{SessionID: "missing", Role: RoleUser, Content: "x"})
	require.ErrorIs(t, err, ErrNotFound)

	sessions, err := s.ListSessions(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	all, err := s.ListSessions(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 1)

	docs, err := s.ListDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)

	require.ErrorIs(t, s.DeleteDocument(ctx, doc.ID), ErrHasSessions)
	require.NoError(t, s.DeleteSession(ctx, session.ID))
	_, err = s.Messages(ctx, session.ID)
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, s.DeleteDocument(ctx, doc.ID))
	require.ErrorIs(t, s.DeleteDocument(ctx, doc.ID), ErrNotFound)
}

func TestMemoryStore(t *testing.T) {
	s := NewMemory()
	defer s.Close()
	runStoreSuite(t, s)
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "library", "studydesk.json")
	s, err := NewFile(path)
	require.NoError(t, err)
	runStoreSuite(t, s)
}

func TestFileStorePersistsAcrossOpens(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "studydesk.json")

	first, err := NewFile(path)
	require.NoError(t, err)
	doc, err := first.CreateDocument(ctx, document.Document{Title: "Saved", Content: document.FromTexts("x")})
	require.NoError(t, err)

	second, err := Open(ctx, "file:"+path)
	require.NoError(t, err)
	got, err := second.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Equal(t, "Saved", got.Title)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"entryType": "document"`)
}

func TestFileStoreRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	s, err := NewFile(path)
	require.NoError(t, err)
	_, err = s.ListDocuments(context.Background())
	require.Error(t, err)
}

func TestSQLiteStore(t *testing.T) {
	s, err := NewSQLite(context.Background(), filepath.Join(t.TempDir(), "studydesk.db"))
	if err != nil {
		// go-sqlite3 needs cgo; builds without it cannot open a database.
		t.Skipf("sqlite unavailable: %v", err)
	}
	defer s.Close()
	runStoreSuite(t, s)
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("STUDYDESK_TEST_POSTGRES_URL")
	if dsn == "" {
		t.Skip("STUDYDESK_TEST_POSTGRES_URL not set")
	}
	ctx := context.Background()
	s, err := NewPostgres(ctx, dsn)
	require.NoError(t, err)
	defer s.Close()
	_, err = s.pool.Exec(ctx, `TRUNCATE studydesk_messages, studydesk_sessions, studydesk_documents`)
	require.NoError(t, err)
	runStoreSuite(t, s)
}

func TestOpenSelectsBackend(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := Open(ctx, "memory:")
	require.NoError(t, err)
	require.IsType(t, &Memory{}, s)

	s, err = Open(ctx, filepath.Join(dir, "lib.json"))
	require.NoError(t, err)
	require.IsType(t, &File{}, s)

	_, err = Open(ctx, "mongodb://localhost")
	require.Error(t, err)
}
