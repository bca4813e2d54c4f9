// Package store persists projects, test cases and analysis records in
// SQLite. CRUD only; all business logic lives above the store ports.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkumv1/matt-automated-testing-tool-sub003/internal/core"
	_ "modernc.org/sqlite"
)

//go:embed migrations/001_initial_schema.sql
var migrationV1 string

// SQLiteStore implements core.Store with SQLite storage.
type SQLiteStore struct {
	dbPath string
	db     *sql.DB
}

// New opens (or creates) the database at dbPath and runs migrations.
func New(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}

	// WAL mode for better concurrency between stage writes and poll reads.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &SQLiteStore{dbPath: dbPath, db: db}
	if err := s.migrate(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("running migrations: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteStore) migrate() error {
	var version int
	err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		// Table does not exist yet.
		version = 0
	}

	if version < 1 {
		if _, err := s.db.Exec(migrationV1); err != nil {
			return fmt.Errorf("applying migration v1: %w", err)
		}
	}
	return nil
}

// SaveProject inserts a new project (assigning its id) or updates an
// existing one.
func (s *SQLiteStore) SaveProject(ctx context.Context, p *core.Project) error {
	if p.ID == 0 {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO projects (name, source_type, source_url, source_path, source_ref, analysis_status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, p.Name, p.Source.Type, p.Source.URL, p.Source.Path, p.Source.Ref,
			string(p.AnalysisStatus), p.CreatedAt, p.UpdatedAt)
		if err != nil {
			return fmt.Errorf("inserting project: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("reading project id: %w", err)
		}
		p.ID = core.ProjectID(id)
		return nil
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE projects
		SET name = ?, source_type = ?, source_url = ?, source_path = ?, source_ref = ?, analysis_status = ?, updated_at = ?
		WHERE id = ?
	`, p.Name, p.Source.Type, p.Source.URL, p.Source.Path, p.Source.Ref,
		string(p.AnalysisStatus), p.UpdatedAt, int64(p.ID))
	if err != nil {
		return fmt.Errorf("updating project: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return core.ErrNotFound("project", p.ID)
	}
	return nil
}

// LoadProject loads one project by id.
func (s *SQLiteStore) LoadProject(ctx context.Context, id core.ProjectID) (*core.Project, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, source_type, source_url, source_path, source_ref, analysis_status, created_at, updated_at
		FROM projects WHERE id = ?
	`, int64(id))

	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound("project", id)
	}
	if err != nil {
		return nil, fmt.Errorf("loading project: %w", err)
	}
	return p, nil
}

// ListProjects returns all projects ordered by id.
func (s *SQLiteStore) ListProjects(ctx context.Context) ([]*core.Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, source_type, source_url, source_path, source_ref, analysis_status, created_at, updated_at
		FROM projects ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*core.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning project: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpsertTestCase inserts or replaces a test case keyed by
// (project_id, id).
func (s *SQLiteStore) UpsertTestCase(ctx context.Context, tc *core.TestCase) error {
	var execMS sql.NullInt64
	if tc.ExecutionMS != nil {
		execMS = sql.NullInt64{Int64: *tc.ExecutionMS, Valid: true}
	}
	var result sql.NullString
	if len(tc.Result) > 0 {
		result = sql.NullString{String: string(tc.Result), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO test_cases (id, project_id, name, type, priority, framework, status, execution_ms, result, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id, id) DO UPDATE SET
			name = excluded.name,
			type = excluded.type,
			priority = excluded.priority,
			framework = excluded.framework,
			status = excluded.status,
			execution_ms = excluded.execution_ms,
			result = excluded.result
	`, int64(tc.ID), int64(tc.ProjectID), tc.Name, tc.Type, tc.Priority,
		tc.Framework, string(tc.Status), execMS, result, tc.CreatedAt)
	if err != nil {
		return fmt.Errorf("upserting test case: %w", err)
	}
	return nil
}

// LoadTestCases returns a project's test cases ordered by id.
func (s *SQLiteStore) LoadTestCases(ctx context.Context, projectID core.ProjectID) ([]*core.TestCase, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, name, type, priority, framework, status, execution_ms, result, created_at
		FROM test_cases WHERE project_id = ? ORDER BY id
	`, int64(projectID))
	if err != nil {
		return nil, fmt.Errorf("loading test cases: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*core.TestCase
	for rows.Next() {
		var (
			tc     core.TestCase
			status string
			execMS sql.NullInt64
			result sql.NullString
		)
		if err := rows.Scan(&tc.ID, &tc.ProjectID, &tc.Name, &tc.Type, &tc.Priority,
			&tc.Framework, &status, &execMS, &result, &tc.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning test case: %w", err)
		}
		tc.Status = core.TestStatus(status)
		if execMS.Valid {
			ms := execMS.Int64
			tc.ExecutionMS = &ms
		}
		if result.Valid {
			tc.Result = []byte(result.String)
		}
		out = append(out, &tc)
	}
	return out, rows.Err()
}

// SaveAnalysis appends an immutable analysis record, assigning its id.
func (s *SQLiteStore) SaveAnalysis(ctx context.Context, a *core.AnalysisRecord) error {
	var payload sql.NullString
	if len(a.Payload) > 0 {
		payload = sql.NullString{String: string(a.Payload), Valid: true}
	}
	var completed sql.NullTime
	if a.CompletedAt != nil {
		completed = sql.NullTime{Time: *a.CompletedAt, Valid: true}
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO analysis_records (project_id, agent_id, role, payload, status, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, int64(a.ProjectID), a.AgentID, string(a.Role), payload, string(a.Status), a.StartedAt, completed)
	if err != nil {
		return fmt.Errorf("inserting analysis record: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading analysis id: %w", err)
	}
	a.ID = core.AnalysisID(id)
	return nil
}

// LoadAnalyses returns a project's analysis records ordered by id.
func (s *SQLiteStore) LoadAnalyses(ctx context.Context, projectID core.ProjectID) ([]*core.AnalysisRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, agent_id, role, payload, status, started_at, completed_at
		FROM analysis_records WHERE project_id = ? ORDER BY id
	`, int64(projectID))
	if err != nil {
		return nil, fmt.Errorf("loading analysis records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*core.AnalysisRecord
	for rows.Next() {
		var (
			rec       core.AnalysisRecord
			role      string
			status    string
			payload   sql.NullString
			completed sql.NullTime
		)
		if err := rows.Scan(&rec.ID, &rec.ProjectID, &rec.AgentID, &role,
			&payload, &status, &rec.StartedAt, &completed); err != nil {
			return nil, fmt.Errorf("scanning analysis record: %w", err)
		}
		rec.Role = core.AgentRole(role)
		rec.Status = core.RecordStatus(status)
		if payload.Valid {
			rec.Payload = []byte(payload.String)
		}
		if completed.Valid {
			t := completed.Time
			rec.CompletedAt = &t
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProject(row rowScanner) (*core.Project, error) {
	var (
		p       core.Project
		status  string
		srcURL  sql.NullString
		srcPath sql.NullString
		srcRef  sql.NullString
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Source.Type, &srcURL, &srcPath, &srcRef,
		&status, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.AnalysisStatus = core.AnalysisStatus(status)
	p.Source.URL = srcURL.String
	p.Source.Path = srcPath.String
	p.Source.Ref = srcRef.String
	return &p, nil
}
