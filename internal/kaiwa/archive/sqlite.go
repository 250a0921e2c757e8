package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/kaiwa-dev/kaiwa/internal/kaiwa/memory"
)

// SQLite is the reference Archiver: one row per agent, the payload stored in
// its validated wire form so anything read back passes the same schema checks
// the rehydration path applies.
type SQLite struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLite opens (or creates) the archive database at path. SQLite is
// single-writer, so a single shared connection serializes concurrent callers
// through database/sql instead of letting them fight for write locks.
func NewSQLite(path string, logger *slog.Logger) (*SQLite, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("archive: open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("archive: set pragma: %w", err)
		}
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS agent_snapshots (
			agent_id   TEXT PRIMARY KEY,
			payload    BLOB NOT NULL,
			updated_at TEXT NOT NULL
		)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("archive: create snapshots table: %w", err)
	}

	return &SQLite{db: db, logger: logger}, nil
}

// Save overwrites the agent's snapshot with the encoded payload.
func (s *SQLite) Save(ctx context.Context, p *memory.SummaryPayload) error {
	data, err := p.Encode()
	if err != nil {
		return fmt.Errorf("archive: encode snapshot for %q: %w", p.AgentID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO agent_snapshots (agent_id, payload, updated_at)
		VALUES (?, ?, ?)`,
		p.AgentID, data, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("archive: save snapshot for %q: %w", p.AgentID, err)
	}

	s.logger.Debug("archive: saved snapshot",
		"agent_id", p.AgentID,
		"payload_bytes", len(data),
		"top_memories", len(p.TopMemories),
	)
	return nil
}

// Load returns the agent's snapshot, or nil when none is stored.
func (s *SQLite) Load(ctx context.Context, agentID string) (*memory.SummaryPayload, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM agent_snapshots WHERE agent_id = ?`, agentID,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("archive: load snapshot for %q: %w", agentID, err)
	}

	p, err := memory.DecodePayload(data)
	if err != nil {
		return nil, fmt.Errorf("archive: decode snapshot for %q: %w", agentID, err)
	}
	return p, nil
}

// LoadAll returns every stored snapshot, ordered by agent id. Malformed rows
// are skipped with a warning so one corrupt snapshot cannot block startup.
func (s *SQLite) LoadAll(ctx context.Context) ([]*memory.SummaryPayload, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT agent_id, payload FROM agent_snapshots ORDER BY agent_id`)
	if err != nil {
		return nil, fmt.Errorf("archive: load snapshots: %w", err)
	}
	defer rows.Close()

	var out []*memory.SummaryPayload
	for rows.Next() {
		var agentID string
		var data []byte
		if err := rows.Scan(&agentID, &data); err != nil {
			return nil, fmt.Errorf("archive: scan snapshot row: %w", err)
		}
		p, err := memory.DecodePayload(data)
		if err != nil {
			s.logger.Warn("archive: skip malformed snapshot", "agent_id", agentID, "error", err)
			continue
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("archive: iterate snapshot rows: %w", err)
	}
	return out, nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

var _ Archiver = (*SQLite)(nil)
