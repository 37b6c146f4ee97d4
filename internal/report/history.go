package report

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const historySchema = `
CREATE TABLE IF NOT EXISTS runs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	project TEXT NOT NULL,
	platform TEXT NOT NULL,
	success INTEGER NOT NULL,
	exit_code INTEGER NOT NULL,
	finished_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS module_results (
	run_id INTEGER NOT NULL REFERENCES runs(id),
	name TEXT NOT NULL,
	status TEXT NOT NULL,
	error_kind TEXT,
	cause TEXT,
	duration_ms INTEGER NOT NULL,
	installed JSON,
	PRIMARY KEY (run_id, name)
);

CREATE TABLE IF NOT EXISTS test_results (
	run_id INTEGER NOT NULL REFERENCES runs(id),
	module TEXT NOT NULL,
	name TEXT NOT NULL,
	passed INTEGER NOT NULL,
	cause TEXT,
	duration_ms INTEGER NOT NULL,
	PRIMARY KEY (run_id, module, name)
);
`

// History appends run reports to a SQLite database.
type History struct {
	db *sql.DB
}

// OpenHistory opens (creating if needed) the database at path.
func OpenHistory(ctx context.Context, path string) (*History, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, historySchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &History{db: db}, nil
}

// Close closes the database.
func (h *History) Close() error {
	return h.db.Close()
}

// Record stores doc as one run finished at the given time and returns the
// run id.
func (h *History) Record(ctx context.Context, doc Document, at time.Time) (int64, error) {
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO runs (project, platform, success, exit_code, finished_at) VALUES (?, ?, ?, ?, ?)`,
		doc.Project, doc.Platform, boolInt(doc.Success), doc.ExitCode, at.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO module_results (run_id, name, status, error_kind, cause, duration_ms, installed)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	testStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO test_results (run_id, module, name, passed, cause, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, err
	}
	defer testStmt.Close()

	for _, m := range doc.Modules {
		installed, err := json.Marshal(m.Installed)
		if err != nil {
			return 0, err
		}
		if _, err := stmt.ExecContext(ctx, runID, m.Name, m.Status, nullable(m.ErrorKind), nullable(m.Cause), m.DurationMS, string(installed)); err != nil {
			return 0, fmt.Errorf("insert module %s: %w", m.Name, err)
		}
		for _, t := range m.Tests {
			if _, err := testStmt.ExecContext(ctx, runID, m.Name, t.Name, boolInt(t.Passed), nullable(t.Cause), t.DurationMS); err != nil {
				return 0, fmt.Errorf("insert test %s of %s: %w", t.Name, m.Name, err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return runID, nil
}

// Run is a stored run summary.
type Run struct {
	ID         int64
	Project    string
	Platform   string
	Success    bool
	ExitCode   int
	FinishedAt time.Time
	Modules    []Module
}

// Runs returns the stored runs of project, newest first.
func (h *History) Runs(ctx context.Context, project string) ([]Run, error) {
	rows, err := h.db.QueryContext(ctx,
		`SELECT id, project, platform, success, exit_code, finished_at FROM runs WHERE project = ? ORDER BY id DESC`,
		project)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var finished int64
		if err := rows.Scan(&r.ID, &r.Project, &r.Platform, &r.Success, &r.ExitCode, &finished); err != nil {
			return nil, err
		}
		r.FinishedAt = time.UnixMilli(finished).UTC()
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range runs {
		mods, err := h.modules(ctx, runs[i].ID)
		if err != nil {
			return nil, err
		}
		runs[i].Modules = mods
	}
	return runs, nil
}

func (h *History) modules(ctx context.Context, runID int64) ([]Module, error) {
	rows, err := h.db.QueryContext(ctx,
		`SELECT name, status, error_kind, cause, duration_ms, installed FROM module_results WHERE run_id = ? ORDER BY rowid`,
		runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Module
	for rows.Next() {
		var m Module
		var kind, cause sql.NullString
		var installed string
		if err := rows.Scan(&m.Name, &m.Status, &kind, &cause, &m.DurationMS, &installed); err != nil {
			return nil, err
		}
		m.ErrorKind, m.Cause = kind.String, cause.String
		if err := json.Unmarshal([]byte(installed), &m.Installed); err != nil {
			return nil, fmt.Errorf("module %s: installed column: %w", m.Name, err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		tests, err := h.tests(ctx, runID, out[i].Name)
		if err != nil {
			return nil, err
		}
		out[i].Tests = tests
	}
	return out, nil
}

func (h *History) tests(ctx context.Context, runID int64, module string) ([]Test, error) {
	rows, err := h.db.QueryContext(ctx,
		`SELECT name, passed, cause, duration_ms FROM test_results WHERE run_id = ? AND module = ? ORDER BY rowid`,
		runID, module)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Test
	for rows.Next() {
		var t Test
		var cause sql.NullString
		if err := rows.Scan(&t.Name, &t.Passed, &cause, &t.DurationMS); err != nil {
			return nil, err
		}
		t.Cause = cause.String
		out = append(out, t)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
