package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/seantiz/courier/internal/model"
	"github.com/seantiz/courier/internal/status"

	_ "modernc.org/sqlite"
)

const createInvocationsTable = `
CREATE TABLE IF NOT EXISTS invocations (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL,
    target      TEXT NOT NULL DEFAULT '',
    status      TEXT NOT NULL,
    status_code INTEGER,
    message     TEXT NOT NULL DEFAULT '',
    error       TEXT NOT NULL DEFAULT '',
    delay_ms    INTEGER NOT NULL DEFAULT 0,
    simulated   INTEGER NOT NULL DEFAULT 0,
    cancelled   INTEGER NOT NULL DEFAULT 0,
    duration_ms INTEGER,
    created_at  DATETIME NOT NULL,
    started_at  DATETIME,
    finished_at DATETIME
)`

const createEventsTable = `
CREATE TABLE IF NOT EXISTS events (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    invocation_id TEXT NOT NULL,
    seq           INTEGER NOT NULL,
    kind          TEXT NOT NULL,
    data          TEXT NOT NULL,
    created_at    DATETIME NOT NULL
)`

const createEventsIndex = `
CREATE INDEX IF NOT EXISTS idx_events_invocation ON events (invocation_id, seq)`

const invocationColumns = `id, name, target, status, status_code, message, error,
	delay_ms, simulated, cancelled, duration_ms, created_at, started_at, finished_at`

// ErrNotFound is returned when an invocation is not found.
var ErrNotFound = errors.New("invocation not found")

// Compile-time interface satisfaction check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the SQLite database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Every connection to ":memory:" opens a separate database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	for _, stmt := range []string{createInvocationsTable, createEventsTable, createEventsIndex} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanInvocation(row scanner) (*model.Invocation, error) {
	inv := &model.Invocation{}
	err := row.Scan(
		&inv.ID, &inv.Name, &inv.Target, &inv.Status, &inv.StatusCode, &inv.Message, &inv.Error,
		&inv.DelayMS, &inv.Simulated, &inv.Cancelled, &inv.DurationMS,
		&inv.CreatedAt, &inv.StartedAt, &inv.FinishedAt,
	)
	return inv, err
}

// CreateInvocation inserts a new invocation record.
func (s *SQLiteStore) CreateInvocation(ctx context.Context, inv *model.Invocation) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO invocations (`+invocationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID, inv.Name, inv.Target, inv.Status, inv.StatusCode, inv.Message, inv.Error,
		inv.DelayMS, inv.Simulated, inv.Cancelled, inv.DurationMS,
		inv.CreatedAt, inv.StartedAt, inv.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert invocation: %w", err)
	}
	return nil
}

// GetInvocation retrieves an invocation by ID.
func (s *SQLiteStore) GetInvocation(ctx context.Context, id string) (*model.Invocation, error) {
	inv, err := scanInvocation(s.db.QueryRowContext(ctx,
		`SELECT `+invocationColumns+` FROM invocations WHERE id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get invocation: %w", err)
	}
	return inv, nil
}

// ListInvocations returns a paginated list of invocations ordered by
// created_at DESC, along with the total count of all invocations.
func (s *SQLiteStore) ListInvocations(ctx context.Context, limit, offset int) ([]*model.Invocation, int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	var total int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM invocations").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count invocations: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT `+invocationColumns+` FROM invocations
		ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list invocations: %w", err)
	}
	defer rows.Close()

	var invocations []*model.Invocation
	for rows.Next() {
		inv, err := scanInvocation(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan invocation: %w", err)
		}
		invocations = append(invocations, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate invocations: %w", err)
	}

	return invocations, total, nil
}

// currentStatus reads the status of id inside tx.
func currentStatus(ctx context.Context, tx *sql.Tx, id string) (string, error) {
	var current string
	err := tx.QueryRowContext(ctx, "SELECT status FROM invocations WHERE id = ?", id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("read status: %w", err)
	}
	return current, nil
}

// UpdateInvocationStatus moves an invocation to status. Moving to running
// sets started_at; moving to a terminal status sets finished_at.
func (s *SQLiteStore) UpdateInvocationStatus(ctx context.Context, id, status string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	current, err := currentStatus(ctx, tx, id)
	if err != nil {
		return err
	}
	if !model.ValidTransition(current, status) {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, current, status)
	}

	now := time.Now().UTC()
	switch {
	case status == model.StatusRunning:
		_, err = tx.ExecContext(ctx,
			"UPDATE invocations SET status = ?, started_at = ? WHERE id = ?", status, now, id)
	case model.Terminal(status):
		_, err = tx.ExecContext(ctx,
			"UPDATE invocations SET status = ?, finished_at = ? WHERE id = ?", status, now, id)
	default:
		_, err = tx.ExecContext(ctx,
			"UPDATE invocations SET status = ? WHERE id = ?", status, id)
	}
	if err != nil {
		return fmt.Errorf("update invocation status: %w", err)
	}

	return tx.Commit()
}

// UpdateInvocation writes the outcome fields of inv. A status change is
// validated like UpdateInvocationStatus.
func (s *SQLiteStore) UpdateInvocation(ctx context.Context, inv *model.Invocation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	current, err := currentStatus(ctx, tx, inv.ID)
	if err != nil {
		return err
	}
	if current != inv.Status && !model.ValidTransition(current, inv.Status) {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, current, inv.Status)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE invocations SET
			status = ?, status_code = ?, message = ?, error = ?, cancelled = ?,
			duration_ms = ?,
			started_at = COALESCE(?, started_at),
			finished_at = COALESCE(?, finished_at)
		WHERE id = ?`,
		inv.Status, inv.StatusCode, inv.Message, inv.Error, inv.Cancelled,
		inv.DurationMS, inv.StartedAt, inv.FinishedAt, inv.ID,
	)
	if err != nil {
		return fmt.Errorf("update invocation: %w", err)
	}

	return tx.Commit()
}

// GetInvocationStats computes aggregate statistics over all invocations.
func (s *SQLiteStore) GetInvocationStats(ctx context.Context) (*InvocationStats, error) {
	stats := &InvocationStats{
		CountByStatus: make(map[string]int),
		CountByFamily: make(map[string]int),
	}

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(cancelled), 0),
			COALESCE(AVG(duration_ms), 0)
		FROM invocations`,
	).Scan(&stats.Total, &stats.Cancelled, &stats.AvgDurationMS)
	if err != nil {
		return nil, fmt.Errorf("aggregate invocations: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM invocations GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	for rows.Next() {
		var st string
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		stats.CountByStatus[st] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status counts: %w", err)
	}

	rows, err = s.db.QueryContext(ctx,
		`SELECT status_code / 100, COUNT(*) FROM invocations
		WHERE status_code IS NOT NULL GROUP BY status_code / 100`,
	)
	if err != nil {
		return nil, fmt.Errorf("count by family: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var class, n int
		if err := rows.Scan(&class, &n); err != nil {
			return nil, fmt.Errorf("scan family count: %w", err)
		}
		stats.CountByFamily[status.FamilyOf(class*100).String()] += n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate family counts: %w", err)
	}

	return stats, nil
}

// InsertEvent appends an event to the history of an invocation.
func (s *SQLiteStore) InsertEvent(ctx context.Context, invocationID string, seq int, kind, data string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (invocation_id, seq, kind, data, created_at) VALUES (?, ?, ?, ?, ?)`,
		invocationID, seq, kind, data, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// GetEvents returns the events of an invocation ordered by sequence number.
func (s *SQLiteStore) GetEvents(ctx context.Context, invocationID string) ([]model.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, invocation_id, seq, kind, data, created_at
		FROM events WHERE invocation_id = ? ORDER BY seq ASC`, invocationID,
	)
	if err != nil {
		return nil, fmt.Errorf("get events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var e model.Event
		if err := rows.Scan(&e.ID, &e.InvocationID, &e.Seq, &e.Kind, &e.Data, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}

	return events, nil
}
