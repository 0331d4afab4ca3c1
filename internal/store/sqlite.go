// Package store provides the SQLite-backed mirror of the epic/ticket/
// stage/dependency graph. It is a single-writer, many-reader cache kept
// in lockstep with the on-disk Markdown files by the sync engine.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/jakekausler/stagework/internal/errs"
)

// DB wraps the SQLite connection with the pragmas and migration runner
// this orchestrator needs: WAL for concurrent readers, foreign keys on,
// and a versioned migration ledger.
type DB struct {
	conn *sql.DB
}

// Open opens (creating if absent) the SQLite file at path, applies
// pragmas, and runs any pending migrations.
func Open(ctx context.Context, path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &errs.StoreError{Op: "open", Cause: err}
	}
	conn.SetMaxOpenConns(1) // modernc.org/sqlite + WAL: single writer, serialize at the pool.

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := conn.ExecContext(ctx, p); err != nil {
			conn.Close()
			return nil, &errs.StoreError{Op: "pragma", Cause: fmt.Errorf("%s: %w", p, err)}
		}
	}

	db := &DB{conn: conn}
	if err := db.migrate(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Close releases the underlying connection.
func (db *DB) Close() error { return db.conn.Close() }

// Conn exposes the raw *sql.DB for callers that need transactions.
func (db *DB) Conn() *sql.DB { return db.conn }

func (db *DB) migrate(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`); err != nil {
		return &errs.StoreError{Op: "migrate:bootstrap", Cause: err}
	}

	var current int
	row := db.conn.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`)
	if err := row.Scan(&current); err != nil {
		return &errs.StoreError{Op: "migrate:current_version", Cause: err}
	}

	for i, migration := range migrations {
		version := i + 1
		if version <= current {
			continue
		}
		tx, err := db.conn.BeginTx(ctx, nil)
		if err != nil {
			return &errs.StoreError{Op: "migrate:begin", Cause: err}
		}
		if _, err := tx.ExecContext(ctx, migration); err != nil {
			tx.Rollback()
			return &errs.StoreError{Op: fmt.Sprintf("migrate:v%d", version), Cause: err}
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, version); err != nil {
			tx.Rollback()
			return &errs.StoreError{Op: fmt.Sprintf("migrate:record:v%d", version), Cause: err}
		}
		if err := tx.Commit(); err != nil {
			return &errs.StoreError{Op: fmt.Sprintf("migrate:commit:v%d", version), Cause: err}
		}
	}
	return nil
}

// migrations holds the ordered DDL for every schema version, applied
// sequentially and tracked in schema_migrations — mirrors the versioned-
// migration-constants idiom used elsewhere in this codebase's history.
var migrations = []string{
	migration1RepoEpicTicketStage,
	migration2Dependencies,
	migration3TrackingTables,
}

const migration1RepoEpicTicketStage = `
CREATE TABLE repos (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	path TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL UNIQUE,
	slack_webhook TEXT NOT NULL DEFAULT ''
);

CREATE TABLE epics (
	id TEXT NOT NULL,
	repo_id INTEGER NOT NULL REFERENCES repos(id) ON DELETE CASCADE,
	title TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT '',
	jira_key TEXT NOT NULL DEFAULT '',
	file_path TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (repo_id, id)
);

CREATE TABLE tickets (
	id TEXT NOT NULL,
	repo_id INTEGER NOT NULL REFERENCES repos(id) ON DELETE CASCADE,
	epic_id TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT '',
	jira_key TEXT NOT NULL DEFAULT '',
	source TEXT NOT NULL DEFAULT 'local',
	has_stages INTEGER NOT NULL DEFAULT 0,
	file_path TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (repo_id, id)
);

CREATE TABLE stages (
	id TEXT NOT NULL,
	repo_id INTEGER NOT NULL REFERENCES repos(id) ON DELETE CASCADE,
	ticket_id TEXT NOT NULL DEFAULT '',
	epic_id TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT '',
	refinement_type TEXT NOT NULL DEFAULT '[]',
	worktree_branch TEXT NOT NULL DEFAULT '',
	pr_url TEXT NOT NULL DEFAULT '',
	pr_number INTEGER NOT NULL DEFAULT 0,
	priority INTEGER NOT NULL DEFAULT 0,
	due_date TEXT NOT NULL DEFAULT '',
	session_active INTEGER NOT NULL DEFAULT 0,
	is_draft INTEGER NOT NULL DEFAULT 0,
	pending_merge_parents TEXT NOT NULL DEFAULT '[]',
	mr_target_branch TEXT NOT NULL DEFAULT '',
	rebase_conflict INTEGER NOT NULL DEFAULT 0,
	file_path TEXT NOT NULL DEFAULT '',
	kanban_column TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (repo_id, id)
);

CREATE INDEX idx_stages_status ON stages(repo_id, status);
CREATE INDEX idx_stages_kanban_column ON stages(repo_id, kanban_column);
CREATE INDEX idx_stages_session_active ON stages(repo_id, session_active);
CREATE INDEX idx_tickets_epic ON tickets(repo_id, epic_id);
CREATE INDEX idx_stages_ticket ON stages(repo_id, ticket_id);
`

const migration2Dependencies = `
CREATE TABLE dependencies (
	repo_id INTEGER NOT NULL REFERENCES repos(id) ON DELETE CASCADE,
	from_id TEXT NOT NULL,
	to_id TEXT NOT NULL,
	from_type TEXT NOT NULL,
	to_type TEXT NOT NULL,
	resolved INTEGER NOT NULL DEFAULT 0,
	target_repo_name TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (repo_id, from_id, to_id)
);

CREATE INDEX idx_dependencies_from ON dependencies(repo_id, from_id);
CREATE INDEX idx_dependencies_to ON dependencies(repo_id, to_id);
`

const migration3TrackingTables = `
CREATE TABLE parent_branch_tracking (
	repo_id INTEGER NOT NULL REFERENCES repos(id) ON DELETE CASCADE,
	child_stage_id TEXT NOT NULL,
	parent_stage_id TEXT NOT NULL,
	parent_branch TEXT NOT NULL DEFAULT '',
	parent_pr_url TEXT NOT NULL DEFAULT '',
	last_known_head TEXT NOT NULL DEFAULT '',
	is_merged INTEGER NOT NULL DEFAULT 0,
	last_checked TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (repo_id, child_stage_id, parent_stage_id)
);

CREATE TABLE mr_comment_tracking (
	repo_id INTEGER NOT NULL REFERENCES repos(id) ON DELETE CASCADE,
	stage_id TEXT NOT NULL,
	last_poll_timestamp TEXT NOT NULL DEFAULT '',
	last_known_unresolved_count INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (repo_id, stage_id)
);
`
