package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// SQLiteStore keeps exports in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma: %w", err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveExport(ctx context.Context, e *Export) error {
	prepare(e)
	criteria, err := json.Marshal(e.Criteria)
	if err != nil {
		return fmt.Errorf("encoding criteria: %w", err)
	}
	events, err := json.Marshal(e.Events)
	if err != nil {
		return fmt.Errorf("encoding events: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO exports (id, created_at, group_name, criteria, event_count, events)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			created_at = excluded.created_at,
			group_name = excluded.group_name,
			criteria = excluded.criteria,
			event_count = excluded.event_count,
			events = excluded.events
	`, e.ID, e.CreatedAt.UnixNano(), e.Criteria.GroupName, string(criteria), len(e.Events), string(events))
	if err != nil {
		return fmt.Errorf("inserting export: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetExport(ctx context.Context, id string) (*Export, error) {
	var (
		e                Export
		createdAt        int64
		criteria, events string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, created_at, criteria, events FROM exports WHERE id = ?
	`, id).Scan(&e.ID, &createdAt, &criteria, &events)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying export: %w", err)
	}
	e.CreatedAt = time.Unix(0, createdAt).UTC()
	if err := json.Unmarshal([]byte(criteria), &e.Criteria); err != nil {
		return nil, fmt.Errorf("decoding criteria: %w", err)
	}
	if err := json.Unmarshal([]byte(events), &e.Events); err != nil {
		return nil, fmt.Errorf("decoding events: %w", err)
	}
	return &e, nil
}

func (s *SQLiteStore) ListExports(ctx context.Context, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, criteria, event_count
		FROM exports ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying exports: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var (
			sum       Summary
			createdAt int64
			criteria  string
		)
		if err := rows.Scan(&sum.ID, &createdAt, &criteria, &sum.EventCount); err != nil {
			return nil, fmt.Errorf("scanning export: %w", err)
		}
		sum.CreatedAt = time.Unix(0, createdAt).UTC()
		if err := json.Unmarshal([]byte(criteria), &sum.Criteria); err != nil {
			return nil, fmt.Errorf("decoding criteria: %w", err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}
