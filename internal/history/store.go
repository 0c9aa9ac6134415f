// Package history persists finished transcripts. It is a downstream
// consumer of the event stream; the orchestration core has no dependency on
// it.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"voicesnap/internal/domain"
)

// Entry is one stored transcript.
type Entry struct {
	ID        string
	SessionID uint64
	Text      string
	Language  string
	Duration  time.Duration
	CreatedAt time.Time
}

// Store writes transcripts to a SQLite database.
type Store struct {
	db *sql.DB
}

// Open creates the database (and parent directory) if needed.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}

	db, err := sql.Open("sqlite", "file:"+path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping history db: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS transcripts (
			id TEXT PRIMARY KEY,
			session_id INTEGER NOT NULL,
			text TEXT NOT NULL,
			language TEXT NOT NULL,
			duration_ms INTEGER NOT NULL,
			created_at REAL NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_transcripts_created ON transcripts(created_at);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Save stores one completed transcription.
func (s *Store) Save(sessionID uint64, result *domain.TranscriptionResult) (Entry, error) {
	entry := Entry{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Text:      result.Text,
		Language:  result.DetectedLanguage,
		Duration:  result.Duration,
		CreatedAt: time.Now(),
	}

	_, err := s.db.Exec(`
		INSERT INTO transcripts (id, session_id, text, language, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.SessionID, entry.Text, entry.Language,
		entry.Duration.Milliseconds(), float64(entry.CreatedAt.UnixNano())/1e9)
	if err != nil {
		return Entry{}, fmt.Errorf("insert transcript: %w", err)
	}
	return entry, nil
}

// Recent returns the newest n transcripts, newest first.
func (s *Store) Recent(n int) ([]Entry, error) {
	rows, err := s.db.Query(`
		SELECT id, session_id, text, language, duration_ms, created_at
		FROM transcripts
		ORDER BY created_at DESC
		LIMIT ?
	`, n)
	if err != nil {
		return nil, fmt.Errorf("query recent: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// Search returns transcripts whose text contains the term, newest first.
func (s *Store) Search(term string) ([]Entry, error) {
	rows, err := s.db.Query(`
		SELECT id, session_id, text, language, duration_ms, created_at
		FROM transcripts
		WHERE text LIKE '%' || ? || '%'
		ORDER BY created_at DESC
	`, term)
	if err != nil {
		return nil, fmt.Errorf("query search: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var e Entry
		var durationMS int64
		var createdAt float64
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Text, &e.Language, &durationMS, &createdAt); err != nil {
			return nil, fmt.Errorf("scan transcript: %w", err)
		}
		e.Duration = time.Duration(durationMS) * time.Millisecond
		sec := int64(createdAt)
		e.CreatedAt = time.Unix(sec, int64((createdAt-float64(sec))*1e9))
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
