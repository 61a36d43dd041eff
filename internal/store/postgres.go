package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/csheth/studydesk/internal/document"
)

// Postgres stores the library in PostgreSQL. Content and metadata are JSONB.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to dsn and applies the schema.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store := &Postgres{pool: pool}
	if err := store.initSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("init postgres schema: %w", err)
	}
	return store, nil
}

func (p *Postgres) initSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS studydesk_documents (
  id TEXT PRIMARY KEY,
  file_name TEXT NOT NULL,
  title TEXT NOT NULL,
  source_path TEXT NOT NULL,
  content JSONB NOT NULL,
  metadata JSONB NOT NULL,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS studydesk_sessions (
  id TEXT PRIMARY KEY,
  document_id TEXT NOT NULL REFERENCES studydesk_documents(id),
  type TEXT NOT NULL,
  title TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS studydesk_messages (
  id TEXT PRIMARY KEY,
  session_id TEXT NOT NULL REFERENCES studydesk_sessions(id) ON DELETE CASCADE,
  seq BIGSERIAL,
  role TEXT NOT NULL,
  content TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_studydesk_sessions_document ON studydesk_sessions(document_id);
CREATE INDEX IF NOT EXISTS idx_studydesk_messages_session ON studydesk_messages(session_id, seq);`)
	return err
}

func (p *Postgres) CreateDocument(ctx context.Context, doc document.Document) (document.Document, error) {
	doc, err := prepareDocument(doc)
	if err != nil {
		return document.Document{}, err
	}
	content, metadata, err := encodeDocument(doc)
	if err != nil {
		return document.Document{}, err
	}
	_, err = p.pool.Exec(ctx, `
INSERT INTO studydesk_documents (id, file_name, title, source_path, content, metadata, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5::jsonb, $6::jsonb, $7, $8)
ON CONFLICT (id)
DO UPDATE SET
  file_name = EXCLUDED.file_name,
  title = EXCLUDED.title,
  source_path = EXCLUDED.source_path,
  content = EXCLUDED.content,
  metadata = EXCLUDED.metadata,
  updated_at = EXCLUDED.updated_at`,
		doc.ID, doc.FileName, doc.Title, doc.SourcePath, content, metadata, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return document.Document{}, fmt.Errorf("insert document: %w", err)
	}
	return doc, nil
}

func (p *Postgres) GetDocument(ctx context.Context, id string) (document.Document, error) {
	row := p.pool.QueryRow(ctx, `
SELECT id, file_name, title, source_path, content::text, metadata::text, created_at, updated_at
FROM studydesk_documents WHERE id=$1`, id)
	doc, err := scanDocument(row.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return document.Document{}, notFound("document", id)
	}
	if err != nil {
		return document.Document{}, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

func (p *Postgres) UpdateDocument(ctx context.Context, id string, content document.Content) error {
	encoded, _, err := encodeDocument(document.Document{Content: content})
	if err != nil {
		return err
	}
	tag, err := p.pool.Exec(ctx, `
UPDATE studydesk_documents
SET content=$2::jsonb,
    metadata = metadata || jsonb_build_object('pageCount', $3::int, 'parsed', $4::bool),
    updated_at=NOW()
WHERE id=$1`, id, encoded, content.TotalPages, !content.NeedsClientParsing)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("document", id)
	}
	return nil
}

func (p *Postgres) ListDocuments(ctx context.Context) ([]document.Document, error) {
	rows, err := p.pool.Query(ctx, `
SELECT id, file_name, title, source_path, content::text, metadata::text, created_at, updated_at
FROM studydesk_documents
ORDER BY created_at DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()
	out := make([]document.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}

func (p *Postgres) DeleteDocument(ctx context.Context, id string) error {
	var sessions int
	if err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM studydesk_sessions WHERE document_id=$1`, id).Scan(&sessions); err != nil {
		return fmt.Errorf("count sessions: %w", err)
	}
	if sessions > 0 {
		return ErrHasSessions
	}
	tag, err := p.pool.Exec(ctx, `DELETE FROM studydesk_documents WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("document", id)
	}
	return nil
}

func (p *Postgres) CreateSession(ctx context.Context, s Session) (Session, error) {
	s, err := prepareSession(s)
	if err != nil {
		return Session{}, err
	}
	if _, err := p.GetDocument(ctx, s.DocumentID); err != nil {
		return Session{}, err
	}
	_, err = p.pool.Exec(ctx, `
INSERT INTO studydesk_sessions (id, document_id, type, title, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)`,
		s.ID, s.DocumentID, string(s.Type), s.Title, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return Session{}, fmt.Errorf("insert session: %w", err)
	}
	return s, nil
}

func (p *Postgres) GetSession(ctx context.Context, id string) (Session, error) {
	row := p.pool.QueryRow(ctx, `
SELECT id, document_id, type, title, created_at, updated_at FROM studydesk_sessions WHERE id=$1`, id)
	s, err := scanSession(row.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, notFound("session", id)
	}
	if err != nil {
		return Session{}, fmt.Errorf("get session: %w", err)
	}
	return s, nil
}

func (p *Postgres) ListSessions(ctx context.Context, documentID string) ([]Session, error) {
	rows, err := p.pool.Query(ctx, `
SELECT id, document_id, type, title, created_at, updated_at FROM studydesk_sessions
WHERE $1 = '' OR document_id=$1
ORDER BY updated_at DESC, id ASC`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()
	out := make([]Session, 0)
	for rows.Next() {
		s, err := scanSession(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return out, nil
}

func (p *Postgres) DeleteSession(ctx context.Context, id string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM studydesk_sessions WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("session", id)
	}
	return nil
}

func (p *Postgres) AppendMessage(ctx context.Context, m Message) (Message, error) {
	m, err := prepareMessage(m)
	if err != nil {
		return Message{}, err
	}
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return Message{}, fmt.Errorf("begin message tx: %w", err)
	}
	defer tx.Rollback(ctx)
	tag, err := tx.Exec(ctx, `UPDATE studydesk_sessions SET updated_at=$2 WHERE id=$1`, m.SessionID, m.CreatedAt)
	if err != nil {
		return Message{}, fmt.Errorf("touch session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return Message{}, notFound("session", m.SessionID)
	}
	_, err = tx.Exec(ctx, `
INSERT INTO studydesk_messages (id, session_id, role, content, created_at)
VALUES ($1, $2, $3, $4, $5)`,
		m.ID, m.SessionID, string(m.Role), m.Content, m.CreatedAt,
	)
	if err != nil {
		return Message{}, fmt.Errorf("insert message: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Message{}, fmt.Errorf("commit message: %w", err)
	}
	return m, nil
}

func (p *Postgres) Messages(ctx context.Context, sessionID string) ([]Message, error) {
	if _, err := p.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	rows, err := p.pool.Query(ctx, `
SELECT id, session_id, role, content, created_at FROM studydesk_messages
WHERE session_id=$1 ORDER BY seq ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()
	var out []Message
	for rows.Next() {
		var m Message
		var role string
		if err := rows.Scan(&m.ID, &m.SessionID, &role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Role = Role(role)
		m.CreatedAt = m.CreatedAt.UTC()
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return out, nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
