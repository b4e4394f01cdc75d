package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS chunk_stats (
	chunk_id     TEXT PRIMARY KEY,
	access_count INTEGER NOT NULL DEFAULT 0,
	decay_weight REAL    NOT NULL
)`

// SQLiteStore keeps chunk stats in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path. ":memory:" keeps
// the data in process.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: sqlite path required", ErrInvalidConfig)
	}
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("sqlite: create directory %s: %w", dir, err)
			}
		}
	}

	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	// A single connection serializes writers and keeps ":memory:" databases
	// shared across calls.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func sqliteDSN(path string) string {
	if path == ":memory:" {
		return "file::memory:?_pragma=busy_timeout(5000)"
	}
	return "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
}

func (s *SQLiteStore) Get(ctx context.Context, ids []string) (map[string]Stats, error) {
	out := make(map[string]Stats, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	q := `SELECT chunk_id, access_count, decay_weight FROM chunk_stats WHERE chunk_id IN (` + placeholders + `)`
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: get stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		var st Stats
		if err := rows.Scan(&id, &st.AccessCount, &st.DecayWeight); err != nil {
			return nil, fmt.Errorf("sqlite: scan stats: %w", err)
		}
		out[id] = st
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iter stats: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) Reinforce(ctx context.Context, id string, seed Stats) (Stats, error) {
	return s.update(ctx, id, seed, func(tx *sql.Tx) error {
		const q = `UPDATE chunk_stats
			SET access_count = access_count + 1,
			    decay_weight = MIN(decay_weight + ?, ?)
			WHERE chunk_id = ?`
		_, err := tx.ExecContext(ctx, q, ReinforceStep, MaxWeight, id)
		return err
	})
}

func (s *SQLiteStore) SetWeight(ctx context.Context, id string, weight float64, seed Stats) (Stats, error) {
	return s.update(ctx, id, seed, func(tx *sql.Tx) error {
		const q = `UPDATE chunk_stats SET decay_weight = ? WHERE chunk_id = ?`
		_, err := tx.ExecContext(ctx, q, weight, id)
		return err
	})
}

// update seeds the row if missing, applies fn and reads the result back,
// all inside one transaction.
func (s *SQLiteStore) update(ctx context.Context, id string, seed Stats, fn func(*sql.Tx) error) (st Stats, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Stats{}, fmt.Errorf("sqlite: begin: %w", err)
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, ignoreDone(tx.Rollback()))
		}
	}()

	const seedQ = `INSERT INTO chunk_stats (chunk_id, access_count, decay_weight)
		VALUES (?, ?, ?) ON CONFLICT(chunk_id) DO NOTHING`
	if _, err = tx.ExecContext(ctx, seedQ, id, seed.AccessCount, seed.DecayWeight); err != nil {
		return Stats{}, fmt.Errorf("sqlite: seed %s: %w", id, err)
	}
	if err = fn(tx); err != nil {
		return Stats{}, fmt.Errorf("sqlite: update %s: %w", id, err)
	}
	const readQ = `SELECT access_count, decay_weight FROM chunk_stats WHERE chunk_id = ?`
	if err = tx.QueryRowContext(ctx, readQ, id).Scan(&st.AccessCount, &st.DecayWeight); err != nil {
		return Stats{}, fmt.Errorf("sqlite: read %s: %w", id, err)
	}
	if err = tx.Commit(); err != nil {
		return Stats{}, fmt.Errorf("sqlite: commit: %w", err)
	}
	return st, nil
}

func ignoreDone(err error) error {
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ StatsStore = (*SQLiteStore)(nil)
