package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"adorable/internal/files"
	"adorable/internal/logging"
	"adorable/internal/sandbox"
)

const schema = `
CREATE TABLE IF NOT EXISTS projects (
	id                 TEXT PRIMARY KEY,
	name               TEXT NOT NULL,
	prompt             TEXT NOT NULL,
	status             TEXT NOT NULL,
	current_version_id TEXT,
	sandbox            TEXT,
	created_at         INTEGER NOT NULL,
	updated_at         INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS versions (
	seq          INTEGER PRIMARY KEY AUTOINCREMENT,
	id           TEXT NOT NULL UNIQUE,
	project_id   TEXT NOT NULL REFERENCES projects(id),
	files        TEXT NOT NULL,
	prompt       TEXT NOT NULL,
	build_passed INTEGER NOT NULL,
	created_at   INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_versions_project ON versions(project_id, seq);
`

// SQLite is a Store backed by a single SQLite database file. File sets
// and sandbox handles are stored as JSON columns.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logging.Debug("version store opened", "path", path)
	return &SQLite{db: db, now: time.Now}, nil
}

func (s *SQLite) CreateProject(ctx context.Context, p *Project) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = StatusCreating
	}
	now := s.now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now

	handle, err := encodeHandle(p.Sandbox)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO projects (id, name, prompt, status, current_version_id, sandbox, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Prompt, string(p.Status), nullString(p.CurrentVersionID), handle,
		now.UnixNano(), now.UnixNano())
	if err != nil {
		return fmt.Errorf("insert project %s: %w", p.ID, err)
	}
	return nil
}

func (s *SQLite) GetProject(ctx context.Context, id string) (*Project, error) {
	var (
		p                Project
		status           string
		current, handle  sql.NullString
		created, updated int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, prompt, status, current_version_id, sandbox, created_at, updated_at
		 FROM projects WHERE id = ?`, id).
		Scan(&p.ID, &p.Name, &p.Prompt, &status, &current, &handle, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query project %s: %w", id, err)
	}

	p.Status = Status(status)
	p.CurrentVersionID = current.String
	p.CreatedAt = time.Unix(0, created).UTC()
	p.UpdatedAt = time.Unix(0, updated).UTC()
	if handle.Valid && handle.String != "" {
		var h sandbox.Handle
		if err := json.Unmarshal([]byte(handle.String), &h); err != nil {
			return nil, fmt.Errorf("decode sandbox handle of %s: %w", id, err)
		}
		p.Sandbox = &h
	}
	return &p, nil
}

func (s *SQLite) updateProject(ctx context.Context, id, column string, value any) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE projects SET "+column+" = ?, updated_at = ? WHERE id = ?",
		value, s.now().UTC().UnixNano(), id)
	if err != nil {
		return fmt.Errorf("update project %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLite) SetStatus(ctx context.Context, projectID string, status Status) error {
	return s.updateProject(ctx, projectID, "status", string(status))
}

func (s *SQLite) SetCurrentVersion(ctx context.Context, projectID, versionID string) error {
	var owner string
	err := s.db.QueryRowContext(ctx, `SELECT project_id FROM versions WHERE id = ?`, versionID).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && owner != projectID) {
		return fmt.Errorf("version %s: %w", versionID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("query version %s: %w", versionID, err)
	}
	return s.updateProject(ctx, projectID, "current_version_id", versionID)
}

func (s *SQLite) SetSandbox(ctx context.Context, projectID string, h *sandbox.Handle) error {
	handle, err := encodeHandle(h)
	if err != nil {
		return err
	}
	return s.updateProject(ctx, projectID, "sandbox", handle)
}

func (s *SQLite) CreateVersion(ctx context.Context, v *Version) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	v.CreatedAt = s.now().UTC()

	set := v.Files
	if set == nil {
		set = files.FileSet{}
	}
	data, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("encode files: %w", err)
	}

	if _, err := s.GetProject(ctx, v.ProjectID); err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO versions (id, project_id, files, prompt, build_passed, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		v.ID, v.ProjectID, string(data), v.Prompt, v.BuildPassed, v.CreatedAt.UnixNano())
	if err != nil {
		if _, getErr := s.GetVersion(ctx, v.ID); getErr == nil {
			return fmt.Errorf("version %s: %w", v.ID, ErrExists)
		}
		return fmt.Errorf("insert version %s: %w", v.ID, err)
	}
	return nil
}

func (s *SQLite) GetVersion(ctx context.Context, id string) (*Version, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, project_id, files, prompt, build_passed, created_at FROM versions WHERE id = ?`, id)
	v, err := scanVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("version %s: %w", id, ErrNotFound)
	}
	return v, err
}

func (s *SQLite) ListVersions(ctx context.Context, projectID string) ([]*Version, error) {
	if _, err := s.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, files, prompt, build_passed, created_at
		 FROM versions WHERE project_id = ? ORDER BY seq`, projectID)
	if err != nil {
		return nil, fmt.Errorf("query versions of %s: %w", projectID, err)
	}
	defer rows.Close()

	var out []*Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanVersion(row scanner) (*Version, error) {
	var (
		v       Version
		data    string
		created int64
	)
	if err := row.Scan(&v.ID, &v.ProjectID, &data, &v.Prompt, &v.BuildPassed, &created); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(data), &v.Files); err != nil {
		return nil, fmt.Errorf("decode files of version %s: %w", v.ID, err)
	}
	v.CreatedAt = time.Unix(0, created).UTC()
	return &v, nil
}

func encodeHandle(h *sandbox.Handle) (sql.NullString, error) {
	if h == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(h)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode sandbox handle: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
