// Package sqlite provides a SQLite backed core.MemorySink using the pure Go
// modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hupe1980/statemesh/core"
	_ "modernc.org/sqlite"
)

// Sink appends memory rows to the memory table.
type Sink struct {
	db *sql.DB
}

// Open opens (and creates if needed) the database at path. Use ":memory:"
// for a throwaway database.
func Open(ctx context.Context, path string) (*Sink, error) {
	dsn := path
	if path != ":memory:" {
		// WAL allows readers while the agent appends
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite doesn't support multiple writers well
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Sink{db: db}
	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// NewFromDB wraps an existing database handle. The schema is created if missing.
func NewFromDB(ctx context.Context, db *sql.DB) (*Sink, error) {
	s := &Sink{db: db}
	if err := s.initSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Sink) Close() error {
	return s.db.Close()
}

func (s *Sink) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS memory (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		agent_id   TEXT NOT NULL,
		seq        INTEGER NOT NULL,
		state      TEXT NOT NULL,
		kind       TEXT NOT NULL,
		intent     TEXT NOT NULL DEFAULT '',
		tool       TEXT NOT NULL DEFAULT '',
		scratchpad TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_memory_agent ON memory(agent_id, seq);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Append inserts row. Existing rows are never updated.
func (s *Sink) Append(ctx context.Context, row core.MemoryRow) error {
	scratchpad, err := json.Marshal(row.Scratchpad)
	if err != nil {
		return fmt.Errorf("encode scratchpad: %w", err)
	}

	created := row.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO memory (agent_id, seq, state, kind, intent, tool, scratchpad, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, row.AgentID, row.Seq, row.State, row.Kind, row.Intent, row.Tool, string(scratchpad), created.UnixNano())
	if err != nil {
		return fmt.Errorf("insert memory row: %w", err)
	}

	return nil
}

// List returns the rows of agentID in insertion order.
func (s *Sink) List(ctx context.Context, agentID string) ([]core.MemoryRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT agent_id, seq, state, kind, intent, tool, scratchpad, created_at
		FROM memory
		WHERE agent_id = ?
		ORDER BY id
	`, agentID)
	if err != nil {
		return nil, fmt.Errorf("query memory rows: %w", err)
	}
	defer rows.Close()

	var out []core.MemoryRow
	for rows.Next() {
		var (
			r          core.MemoryRow
			scratchpad string
			created    int64
		)
		if err := rows.Scan(&r.AgentID, &r.Seq, &r.State, &r.Kind, &r.Intent, &r.Tool, &scratchpad, &created); err != nil {
			return nil, fmt.Errorf("scan memory row: %w", err)
		}
		if err := json.Unmarshal([]byte(scratchpad), &r.Scratchpad); err != nil {
			return nil, fmt.Errorf("decode scratchpad: %w", err)
		}
		r.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, r)
	}

	return out, rows.Err()
}

// Agents returns the distinct agent ids with stored rows.
func (s *Sink) Agents(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT agent_id FROM memory ORDER BY agent_id`)
	if err != nil {
		return nil, fmt.Errorf("query agents: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}
