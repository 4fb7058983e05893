// Package archive persists received messages to a local SQLite
// database so a listener session leaves a searchable record behind.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for database/sql
)

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	event_urn        TEXT PRIMARY KEY,
	conversation_urn TEXT NOT NULL,
	sender           TEXT NOT NULL,
	body             TEXT NOT NULL,
	created_at       INTEGER NOT NULL,
	stored_at        INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_conversation
	ON messages(conversation_urn, created_at);
`

// Message is one archived message.
type Message struct {
	EventURN        string
	ConversationURN string
	Sender          string
	Body            string
	CreatedAt       time.Time
}

// Store is a SQLite-backed message archive.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if necessary) the archive database at path.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open archive db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create archive schema: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// SaveMessage records a message. Re-delivery of the same event is
// harmless: the row is replaced.
func (s *Store) SaveMessage(ctx context.Context, m Message) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO messages
			(event_urn, conversation_urn, sender, body, created_at, stored_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.EventURN, m.ConversationURN, m.Sender, m.Body,
		m.CreatedAt.UnixMilli(), time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save message: %w", err)
	}
	s.logger.Debug("archived message",
		"event_urn", m.EventURN,
		"conversation_urn", m.ConversationURN,
	)
	return nil
}

// Recent returns the most recent archived messages, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT event_urn, conversation_urn, sender, body, created_at
		FROM messages ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var createdMs int64
		if err := rows.Scan(&m.EventURN, &m.ConversationURN, &m.Sender, &m.Body, &createdMs); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		m.CreatedAt = time.UnixMilli(createdMs)
		out = append(out, m)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
