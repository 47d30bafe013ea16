// Package history persists a log of job lifecycle changes in SQLite.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/vmunix/reeldl/internal/download"
	"github.com/vmunix/reeldl/internal/migrations"
)

// Action is what happened to a job.
type Action string

const (
	ActionStarted   Action = "started"
	ActionPaused    Action = "paused"
	ActionResumed   Action = "resumed"
	ActionCompleted Action = "completed"
	ActionError     Action = "error"
	ActionCancelled Action = "cancelled"
	ActionEvicted   Action = "evicted"
)

// Record is one history entry.
type Record struct {
	ID         int64           `json:"id"`
	JobID      string          `json:"jobId"`
	Title      string          `json:"title,omitempty"`
	Action     Action          `json:"action"`
	Status     download.Status `json:"status,omitempty"`
	Percent    float64         `json:"percent"`
	Message    string          `json:"message,omitempty"`
	OccurredAt time.Time       `json:"occurredAt"`
}

// Filter specifies criteria for listing history.
type Filter struct {
	JobID  *string
	Action *Action
	Limit  int
	Offset int
}

// Store persists history records.
type Store struct {
	db *sql.DB
}

// NewStore creates a store on an already migrated database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open opens (creating if needed) the database at path and applies migrations.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	// SQLite allows one writer; a single connection also keeps :memory: shared.
	db.SetMaxOpenConns(1)

	if err := Migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Migrate applies the embedded schema.
func Migrate(db *sql.DB) error {
	for i, m := range migrations.All {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("migrate %d: %w", i+1, err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts a history entry. A zero OccurredAt is set to now.
func (s *Store) Record(ctx context.Context, r Record) error {
	if r.JobID == "" {
		return fmt.Errorf("insert history: %w", download.ErrEmptyJobID)
	}
	if r.OccurredAt.IsZero() {
		r.OccurredAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO history (job_id, title, action, status, percent, message, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.JobID, r.Title, string(r.Action), string(r.Status), r.Percent, r.Message, r.OccurredAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}

// List returns entries matching the filter, most recent first.
func (s *Store) List(ctx context.Context, f Filter) ([]*Record, error) {
	where, args := f.where()
	query := `SELECT id, job_id, title, action, status, percent, message, occurred_at
		FROM history ` + where + ` ORDER BY occurred_at DESC, id DESC`

	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
		if f.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", f.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []*Record
	for rows.Next() {
		r := &Record{}
		var action, status string
		var occurred int64
		if err := rows.Scan(&r.ID, &r.JobID, &r.Title, &action, &status, &r.Percent, &r.Message, &occurred); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		r.Action = Action(action)
		r.Status = download.Status(status)
		r.OccurredAt = time.UnixMilli(occurred)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}

	return results, nil
}

// Count returns how many entries match the filter, ignoring Limit and Offset.
func (s *Store) Count(ctx context.Context, f Filter) (int, error) {
	where, args := f.where()
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM history `+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count history: %w", err)
	}
	return n, nil
}

// ForJob returns every entry for one job, oldest first.
func (s *Store) ForJob(ctx context.Context, jobID string) ([]*Record, error) {
	recs, err := s.List(ctx, Filter{JobID: &jobID})
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(recs)-1; i < j; i, j = i+1, j-1 {
		recs[i], recs[j] = recs[j], recs[i]
	}
	return recs, nil
}

// Prune removes entries that occurred before cutoff.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM history WHERE occurred_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	return result.RowsAffected()
}

func (f Filter) where() (string, []any) {
	var conditions []string
	var args []any

	if f.JobID != nil {
		conditions = append(conditions, "job_id = ?")
		args = append(args, *f.JobID)
	}
	if f.Action != nil {
		conditions = append(conditions, "action = ?")
		args = append(args, string(*f.Action))
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}
