// Package store wraps the shared Postgres connection: uploaded-document
// registry and the append-only chat log.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

type Store struct {
	DB *sql.DB
}

// ChatRecord is one question/answer exchange, as exposed on /chat-history.
type ChatRecord struct {
	ID        string    `json:"-"`
	SessionID string    `json:"session_id,omitempty"`
	Message   string    `json:"message"`
	Response  string    `json:"response"`
	Timestamp time.Time `json:"timestamp"`
}

// DocumentRecord tracks an uploaded document through its ingestion lifecycle.
type DocumentRecord struct {
	ID        string
	Filename  string
	Format    string
	SizeBytes int64
	Status    string
	Error     string
	CreatedAt time.Time
}

// Document ingestion statuses persisted for observability.
const (
	DocumentStatusReceived = "received"
	DocumentStatusIndexed  = "indexed"
	DocumentStatusFailed   = "failed"
)

// NewWithDSN constructs the Store using an explicit Postgres DSN
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

// Chat operations

// AppendChat records one exchange. The log is append-only; nothing updates or
// deletes rows.
func (s *Store) AppendChat(ctx context.Context, sessionID, message, response string) error {
	var sid interface{}
	if sessionID != "" {
		sid = sessionID
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO chats (session_id, message, response) VALUES ($1,$2,$3)`,
		sid, message, response)
	if err != nil {
		return fmt.Errorf("append chat: %w", err)
	}
	return nil
}

// ListChatHistory returns exchanges newest-first. An empty sessionID lists
// across all sessions.
func (s *Store) ListChatHistory(ctx context.Context, sessionID string, limit int) ([]ChatRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id, COALESCE(session_id,''), message, response, created_at FROM chats ORDER BY created_at DESC LIMIT $1`
	args := []interface{}{limit}
	if sessionID != "" {
		query = `SELECT id, COALESCE(session_id,''), message, response, created_at FROM chats WHERE session_id=$1 ORDER BY created_at DESC LIMIT $2`
		args = []interface{}{sessionID, limit}
	}
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list chat history: %w", err)
	}
	defer rows.Close()

	var records []ChatRecord
	for rows.Next() {
		var r ChatRecord
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Message, &r.Response, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scan chat record: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list chat history: %w", err)
	}
	return records, nil
}

// Document operations

func (s *Store) CreateDocument(ctx context.Context, id, filename, format string, sizeBytes int64) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO documents (id, filename, format, size_bytes, status) VALUES ($1,$2,$3,$4,$5)`,
		id, filename, format, sizeBytes, DocumentStatusReceived)
	if err != nil {
		return fmt.Errorf("create document: %w", err)
	}
	return nil
}

func (s *Store) MarkDocumentIndexed(ctx context.Context, id string) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE documents SET status=$2, error='' WHERE id=$1`,
		id, DocumentStatusIndexed)
	if err != nil {
		return fmt.Errorf("mark document indexed: %w", err)
	}
	return nil
}

func (s *Store) MarkDocumentFailed(ctx context.Context, id, reason string) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE documents SET status=$2, error=$3 WHERE id=$1`,
		id, DocumentStatusFailed, reason)
	if err != nil {
		return fmt.Errorf("mark document failed: %w", err)
	}
	return nil
}

func (s *Store) GetDocument(ctx context.Context, id string) (DocumentRecord, error) {
	var r DocumentRecord
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, filename, format, size_bytes, status, COALESCE(error,''), created_at FROM documents WHERE id=$1`, id).
		Scan(&r.ID, &r.Filename, &r.Format, &r.SizeBytes, &r.Status, &r.Error, &r.CreatedAt)
	if err != nil {
		return DocumentRecord{}, fmt.Errorf("get document: %w", err)
	}
	return r, nil
}
