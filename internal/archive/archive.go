// Package archive provides a SQLite-backed transcript archive for hibiki.
// Every completed exchange is recorded here permanently, independent of the
// bounded in-memory window that feeds the LLM context: the window forgets,
// the archive does not. The archive is write-mostly: it exists for operators
// reviewing what the bot said, not for context assembly.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver

	"github.com/hibiki-bot/hibiki/internal/memory"
)

// Entry is one archived conversation record.
type Entry struct {
	// ChannelID is the channel the exchange happened in.
	ChannelID string
	// Role is the author of the message.
	Role memory.Role
	// Content is the text of the message.
	Content string
	// CreatedAt is when the record was archived.
	CreatedAt time.Time
}

// Archive is a persistent transcript log backed by a local SQLite database.
type Archive struct {
	db *sql.DB
}

// DefaultDBPath returns the default archive location, ~/.hibiki/archive.db,
// creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("archive: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".hibiki")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("archive: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "archive.db"), nil
}

// Open opens (or creates) an Archive at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*Archive, error) {
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("archive: open %s: %w", path, err)
	}
	// Single writer connection avoids SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	a := &Archive{db: db}
	if err := a.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return a, nil
}

// migrate creates the schema if it does not already exist.
func (a *Archive) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS transcript (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    channel_id TEXT    NOT NULL,
    role       TEXT    NOT NULL CHECK(role IN ('user','assistant')),
    content    TEXT    NOT NULL,
    created_at INTEGER NOT NULL  -- Unix timestamp (seconds)
);
CREATE INDEX IF NOT EXISTS idx_transcript_channel_created
    ON transcript (channel_id, created_at);
`
	if _, err := a.db.Exec(ddl); err != nil {
		return fmt.Errorf("archive: migrate: %w", err)
	}
	return nil
}

// Record persists a single message for the given channel.
func (a *Archive) Record(ctx context.Context, channelID string, role memory.Role, content string) error {
	const q = `INSERT INTO transcript (channel_id, role, content, created_at) VALUES (?, ?, ?, ?)`
	if _, err := a.db.ExecContext(ctx, q, channelID, string(role), content, time.Now().Unix()); err != nil {
		return fmt.Errorf("archive: record: %w", err)
	}
	return nil
}

// Recent returns the most recent n entries for the channel, oldest-first.
// Uses a subquery to select the tail, then re-orders for display.
func (a *Archive) Recent(ctx context.Context, channelID string, n int) ([]Entry, error) {
	const q = `
SELECT role, content, created_at FROM (
    SELECT id, role, content, created_at
    FROM   transcript
    WHERE  channel_id = ?
    ORDER  BY created_at DESC, id DESC
    LIMIT  ?
) ORDER BY created_at ASC, id ASC`

	rows, err := a.db.QueryContext(ctx, q, channelID, n)
	if err != nil {
		return nil, fmt.Errorf("archive: recent: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e := Entry{ChannelID: channelID}
		var ts int64
		var role string
		if err := rows.Scan(&role, &e.Content, &ts); err != nil {
			return nil, fmt.Errorf("archive: recent scan: %w", err)
		}
		e.Role = memory.Role(role)
		e.CreatedAt = time.Unix(ts, 0)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("archive: recent rows: %w", err)
	}
	return entries, nil
}

// Close releases the database connection pool.
func (a *Archive) Close() error {
	if err := a.db.Close(); err != nil {
		return fmt.Errorf("archive: close: %w", err)
	}
	return nil
}
