package search

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Document is one indexed chunk of session content.
type Document struct {
	ChunkID   string
	SessionID string
	File      string
	Format    string
	StartChar int
	EndChar   int
	StartLine int
	EndLine   int
	Preview   string
	Text      string
}

// ChunkStore persists indexed chunks in SQLite so search hits can be
// resolved back to full chunk records without re-reading chunk files.
type ChunkStore struct {
	db *sql.DB
}

// NewChunkStore opens (or creates) the chunk database at dbPath.
func NewChunkStore(ctx context.Context, dbPath string) (*ChunkStore, error) {
	// WAL keeps reads open while an index run writes.
	dsn := dbPath + "?_journal_mode=WAL&_busy_timeout=5000"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open chunk database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping chunk database: %w", err)
	}

	s := &ChunkStore{db: db}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize chunk schema: %w", err)
	}
	return s, nil
}

func (s *ChunkStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS chunks (
		chunk_id   TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		file       TEXT NOT NULL,
		format     TEXT NOT NULL,
		start_char INTEGER NOT NULL,
		end_char   INTEGER NOT NULL,
		start_line INTEGER NOT NULL,
		end_line   INTEGER NOT NULL,
		preview    TEXT NOT NULL,
		text       TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_session ON chunks(session_id);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the underlying database.
func (s *ChunkStore) Close() error {
	return s.db.Close()
}

// Upsert writes a batch of documents inside one transaction, replacing any
// existing rows with the same chunk id.
func (s *ChunkStore) Upsert(ctx context.Context, docs []Document) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO chunks
		(chunk_id, session_id, file, format, start_char, end_char, start_line, end_line, preview, text)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, d := range docs {
		if _, err := stmt.ExecContext(ctx,
			d.ChunkID, d.SessionID, d.File, d.Format,
			d.StartChar, d.EndChar, d.StartLine, d.EndLine,
			d.Preview, d.Text); err != nil {
			return fmt.Errorf("failed to upsert chunk %s: %w", d.ChunkID, err)
		}
	}
	return tx.Commit()
}

// Get resolves one chunk by id.
func (s *ChunkStore) Get(ctx context.Context, chunkID string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT chunk_id, session_id, file, format, start_char, end_char, start_line, end_line, preview, text
		FROM chunks WHERE chunk_id = ?`, chunkID)

	var d Document
	err := row.Scan(&d.ChunkID, &d.SessionID, &d.File, &d.Format,
		&d.StartChar, &d.EndChar, &d.StartLine, &d.EndLine, &d.Preview, &d.Text)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("chunk %s not found", chunkID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read chunk %s: %w", chunkID, err)
	}
	return &d, nil
}

// DeleteSession removes all chunks indexed for a session; it returns how
// many rows went away. A new chunking run supersedes the old one entirely.
func (s *ChunkStore) DeleteSession(ctx context.Context, sessionID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE session_id = ?`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete session chunks: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// CountSession reports how many chunks a session has indexed.
func (s *ChunkStore) CountSession(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM chunks WHERE session_id = ?`, sessionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count session chunks: %w", err)
	}
	return n, nil
}
