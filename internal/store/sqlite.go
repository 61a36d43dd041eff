package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/csheth/studydesk/internal/document"
)

// SQLite stores the library in a single database file.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the database at path and applies the schema.
func NewSQLite(ctx context.Context, path string) (*SQLite, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps :memory: databases shared and serialises writers.
	db.SetMaxOpenConns(1)
	store := &SQLite{db: db}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLite) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		file_name TEXT NOT NULL,
		title TEXT NOT NULL,
		source_path TEXT NOT NULL,
		content TEXT NOT NULL,
		metadata TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL REFERENCES documents(id),
		type TEXT NOT NULL,
		title TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_document ON sessions(document_id);
	CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, seq);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *SQLite) CreateDocument(ctx context.Context, doc document.Document) (document.Document, error) {
	doc, err := prepareDocument(doc)
	if err != nil {
		return document.Document{}, err
	}
	content, metadata, err := encodeDocument(doc)
	if err != nil {
		return document.Document{}, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO documents (id, file_name, title, source_path, content, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, doc.ID, doc.FileName, doc.Title, doc.SourcePath, content, metadata, doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return document.Document{}, fmt.Errorf("failed to insert document: %w", err)
	}
	return doc, nil
}

func (s *SQLite) GetDocument(ctx context.Context, id string) (document.Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, file_name, title, source_path, content, metadata, created_at, updated_at
		FROM documents WHERE id = ?
	`, id)
	doc, err := scanDocument(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return document.Document{}, notFound("document", id)
	}
	return doc, err
}

func (s *SQLite) UpdateDocument(ctx context.Context, id string, content document.Content) error {
	doc, err := s.GetDocument(ctx, id)
	if err != nil {
		return err
	}
	doc.Content = content
	doc.Metadata.PageCount = content.TotalPages
	doc.Metadata.Parsed = !content.NeedsClientParsing
	encodedContent, metadata, err := encodeDocument(doc)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `UPDATE documents SET content = ?, metadata = ?, updated_at = ? WHERE id = ?`,
		encodedContent, metadata, now(), id)
	if err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}
	return nil
}

func (s *SQLite) ListDocuments(ctx context.Context) ([]document.Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, file_name, title, source_path, content, metadata, created_at, updated_at
		FROM documents ORDER BY created_at DESC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()
	out := make([]document.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

func (s *SQLite) DeleteDocument(ctx context.Context, id string) error {
	var sessions int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions WHERE document_id = ?`, id).Scan(&sessions); err != nil {
		return fmt.Errorf("failed to count sessions: %w", err)
	}
	if sessions > 0 {
		return ErrHasSessions
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return requireAffected(res, "document", id)
}

func (s *SQLite) CreateSession(ctx context.Context, session Session) (Session, error) {
	session, err := prepareSession(session)
	if err != nil {
		return Session{}, err
	}
	if _, err := s.GetDocument(ctx, session.DocumentID); err != nil {
		return Session{}, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, document_id, type, title, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, session.ID, session.DocumentID, string(session.Type), session.Title, session.CreatedAt, session.UpdatedAt)
	if err != nil {
		return Session{}, fmt.Errorf("failed to insert session: %w", err)
	}
	return session, nil
}

func (s *SQLite) GetSession(ctx context.Context, id string) (Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, document_id, type, title, created_at, updated_at FROM sessions WHERE id = ?
	`, id)
	session, err := scanSession(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, notFound("session", id)
	}
	return session, err
}

func (s *SQLite) ListSessions(ctx context.Context, documentID string) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, type, title, created_at, updated_at FROM sessions
		WHERE ? = '' OR document_id = ?
		ORDER BY updated_at DESC, id ASC
	`, documentID, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()
	out := make([]Session, 0)
	for rows.Next() {
		session, err := scanSession(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, session)
	}
	return out, rows.Err()
}

func (s *SQLite) DeleteSession(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if err := requireAffected(res, "session", id); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLite) AppendMessage(ctx context.Context, msg Message) (Message, error) {
	msg, err := prepareMessage(msg)
	if err != nil {
		return Message{}, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Message{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()
	res, err := tx.ExecContext(ctx, `UPDATE sessions SET updated_at = ? WHERE id = ?`, msg.CreatedAt, msg.SessionID)
	if err != nil {
		return Message{}, fmt.Errorf("failed to touch session: %w", err)
	}
	if err := requireAffected(res, "session", msg.SessionID); err != nil {
		return Message{}, err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (id, session_id, seq, role, content, created_at)
		VALUES (?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE session_id = ?), ?, ?, ?)
	`, msg.ID, msg.SessionID, msg.SessionID, string(msg.Role), msg.Content, msg.CreatedAt)
	if err != nil {
		return Message{}, fmt.Errorf("failed to insert message: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Message{}, fmt.Errorf("failed to commit message: %w", err)
	}
	return msg, nil
}

func (s *SQLite) Messages(ctx context.Context, sessionID string) ([]Message, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, role, content, created_at FROM messages
		WHERE session_id = ? ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()
	var out []Message
	for rows.Next() {
		var m Message
		var role string
		if err := rows.Scan(&m.ID, &m.SessionID, &role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.Role = Role(role)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

type scanFunc func(dest ...any) error

func encodeDocument(doc document.Document) (string, string, error) {
	content, err := json.Marshal(doc.Content)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal content: %w", err)
	}
	metadata, err := json.Marshal(doc.Metadata)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return string(content), string(metadata), nil
}

func scanDocument(scan scanFunc) (document.Document, error) {
	var doc document.Document
	var content, metadata string
	var created, updated time.Time
	if err := scan(&doc.ID, &doc.FileName, &doc.Title, &doc.SourcePath, &content, &metadata, &created, &updated); err != nil {
		return document.Document{}, err
	}
	if err := json.Unmarshal([]byte(content), &doc.Content); err != nil {
		return document.Document{}, fmt.Errorf("failed to unmarshal content: %w", err)
	}
	if err := json.Unmarshal([]byte(metadata), &doc.Metadata); err != nil {
		return document.Document{}, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	doc.CreatedAt, doc.UpdatedAt = created.UTC(), updated.UTC()
	return doc, nil
}

func scanSession(scan scanFunc) (Session, error) {
	var s Session
	var kind string
	if err := scan(&s.ID, &s.DocumentID, &kind, &s.Title, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return Session{}, err
	}
	s.Type = SessionType(kind)
	s.CreatedAt, s.UpdatedAt = s.CreatedAt.UTC(), s.UpdatedAt.UTC()
	return s, nil
}

func requireAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound(kind, id)
	}
	return nil
}
