package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// State is the lifecycle state of a catalog row.
type State string

const (
	// StateStaged marks a project whose import has not completed.
	StateStaged State = "staged"
	// StateReady marks a project that can be opened.
	StateReady State = "ready"
)

// ErrNotFound is returned when no row matches the requested id.
var ErrNotFound = errors.New("catalog: project not found")

// ErrExists is returned when inserting an id that is already registered.
var ErrExists = errors.New("catalog: project already registered")

// Entry is a registered project.
type Entry struct {
	ID            string
	Name          string
	Version       int
	Dir           string
	State         State
	SourceArchive string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

const entryColumns = "id, name, version, dir, state, source_archive, created_at, updated_at"

// Insert registers e. The row starts staged unless e.State says otherwise.
func (s *Store) Insert(ctx context.Context, e Entry) (*Entry, error) {
	if strings.TrimSpace(e.ID) == "" {
		return nil, errors.New("catalog: project id is required")
	}
	if e.State == "" {
		e.State = StateStaged
	}
	if e.Version <= 0 {
		e.Version = 1
	}
	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now

	_, err := s.exec(ctx,
		`INSERT INTO projects (id, name, version, dir, state, source_archive, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID,
		e.Name,
		e.Version,
		e.Dir,
		e.State,
		nullableString(e.SourceArchive),
		e.CreatedAt.UTC().Format(time.RFC3339Nano),
		e.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		if uniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrExists, e.ID)
		}
		return nil, fmt.Errorf("insert project: %w", err)
	}
	return s.Get(ctx, e.ID)
}

// MarkReady flips a staged row to ready.
func (s *Store) MarkReady(ctx context.Context, id string) error {
	return s.setState(ctx, id, StateReady)
}

func (s *Store) setState(ctx context.Context, id string, state State) error {
	res, err := s.exec(ctx,
		`UPDATE projects SET state = ?, updated_at = ? WHERE id = ?`,
		state,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("update project state: %w", err)
	}
	return requireAffected(res, id)
}

// Touch records a modification of the project and its current name.
func (s *Store) Touch(ctx context.Context, id, name string) error {
	res, err := s.exec(ctx,
		`UPDATE projects SET name = COALESCE(NULLIF(?, ''), name), updated_at = ? WHERE id = ?`,
		name,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("touch project: %w", err)
	}
	return requireAffected(res, id)
}

// Get fetches a row by id. ErrNotFound is returned when it does not exist.
func (s *Store) Get(ctx context.Context, id string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM projects WHERE id = ?`, id)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	return entry, nil
}

// List returns rows in the given states ordered by creation time. With no
// states only ready projects are listed.
func (s *Store) List(ctx context.Context, states ...State) ([]*Entry, error) {
	if len(states) == 0 {
		states = []State{StateReady}
	}
	args := make([]any, len(states))
	for i, state := range states {
		args[i] = state
	}
	query := `SELECT ` + entryColumns + ` FROM projects WHERE state IN (` + placeholders(len(states)) + `) ORDER BY created_at, id`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Delete removes the row for id and reports whether one existed.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.exec(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete project: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// Stats returns a count of rows grouped by state.
func (s *Store) Stats(ctx context.Context) (map[State]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT state, COUNT(1) FROM projects GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("catalog stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[State]int)
	for rows.Next() {
		var state State
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return nil, err
		}
		stats[state] = count
	}
	return stats, rows.Err()
}

func requireAffected(res sql.Result, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}
