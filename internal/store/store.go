package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jakekausler/stagework/internal/errs"
	"github.com/jakekausler/stagework/internal/workitem"
)

// Store is the query/mutation surface described in §4.A: upsert/find/list
// per entity, dependency resolution bookkeeping, and the handful of
// single-field stage updates the orchestrator issues outside a full sync.
type Store struct {
	db *DB
}

func New(db *DB) *Store { return &Store{db: db} }

// UpsertRepoByPath creates the repo row on first sync, or returns the
// existing one, keyed by absolute path.
func (s *Store) UpsertRepoByPath(ctx context.Context, path, name string) (workitem.Repo, error) {
	_, err := s.db.conn.ExecContext(ctx, `
		INSERT INTO repos (path, name) VALUES (?, ?)
		ON CONFLICT(path) DO UPDATE SET name = excluded.name`, path, name)
	if err != nil {
		return workitem.Repo{}, &errs.StoreError{Op: "upsert_repo", Cause: err}
	}
	row := s.db.conn.QueryRowContext(ctx, `SELECT id, path, name, slack_webhook FROM repos WHERE path = ?`, path)
	var r workitem.Repo
	if err := row.Scan(&r.ID, &r.Path, &r.Name, &r.SlackWebhook); err != nil {
		return workitem.Repo{}, &errs.StoreError{Op: "find_repo", Cause: err}
	}
	return r, nil
}

// FirstRepo returns the repo with the lowest id — the repo the run,
// board, next, summary and graph subcommands operate on.
func (s *Store) FirstRepo(ctx context.Context) (workitem.Repo, bool, error) {
	row := s.db.conn.QueryRowContext(ctx, `SELECT id, path, name, slack_webhook FROM repos ORDER BY id ASC LIMIT 1`)
	var r workitem.Repo
	if err := row.Scan(&r.ID, &r.Path, &r.Name, &r.SlackWebhook); err != nil {
		if err == sql.ErrNoRows {
			return workitem.Repo{}, false, nil
		}
		return workitem.Repo{}, false, &errs.StoreError{Op: "first_repo", Cause: err}
	}
	return r, true, nil
}

func (s *Store) FindRepoByName(ctx context.Context, name string) (workitem.Repo, bool, error) {
	row := s.db.conn.QueryRowContext(ctx, `SELECT id, path, name, slack_webhook FROM repos WHERE name = ?`, name)
	var r workitem.Repo
	if err := row.Scan(&r.ID, &r.Path, &r.Name, &r.SlackWebhook); err != nil {
		if err == sql.ErrNoRows {
			return workitem.Repo{}, false, nil
		}
		return workitem.Repo{}, false, &errs.StoreError{Op: "find_repo_by_name", Cause: err}
	}
	return r, true, nil
}

// SyncTxn runs fn inside a single transaction representing one full
// repo-sync: delete-then-reinsert. Any error rolls the whole sync back,
// so readers never observe a half-migrated graph.
func (s *Store) SyncTxn(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return &errs.StoreError{Op: "sync_txn_begin", Cause: err}
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return &errs.StoreError{Op: "sync_txn_commit", Cause: err}
	}
	return nil
}

// ClearRepo deletes every epic/ticket/stage/dependency row for a repo,
// within an in-flight sync transaction — step 3 of §4.B.
func ClearRepo(ctx context.Context, tx *sql.Tx, repoID int64) error {
	for _, table := range []string{"dependencies", "stages", "tickets", "epics"} {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE repo_id = ?`, table), repoID); err != nil {
			return &errs.StoreError{Op: "clear_repo:" + table, Cause: err}
		}
	}
	return nil
}

func UpsertEpic(ctx context.Context, tx *sql.Tx, repoID int64, e workitem.Epic) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO epics (id, repo_id, title, status, jira_key, file_path)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(repo_id, id) DO UPDATE SET
			title=excluded.title, status=excluded.status, jira_key=excluded.jira_key, file_path=excluded.file_path`,
		e.ID, repoID, e.Title, e.Status, e.JiraKey, e.FilePath)
	if err != nil {
		return &errs.StoreError{Op: "upsert_epic", Cause: err}
	}
	return nil
}

func UpsertTicket(ctx context.Context, tx *sql.Tx, repoID int64, t workitem.Ticket) error {
	hasStages := 0
	if t.HasStages {
		hasStages = 1
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO tickets (id, repo_id, epic_id, title, status, jira_key, source, has_stages, file_path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(repo_id, id) DO UPDATE SET
			epic_id=excluded.epic_id, title=excluded.title, status=excluded.status, jira_key=excluded.jira_key,
			source=excluded.source, has_stages=excluded.has_stages, file_path=excluded.file_path`,
		t.ID, repoID, t.EpicID, t.Title, t.Status, t.JiraKey, string(t.Source), hasStages, t.FilePath)
	if err != nil {
		return &errs.StoreError{Op: "upsert_ticket", Cause: err}
	}
	return nil
}

func UpsertStage(ctx context.Context, tx *sql.Tx, repoID int64, st workitem.Stage) error {
	refinement, _ := json.Marshal(st.RefinementType)
	pending, _ := json.Marshal(st.PendingMergeParents)
	sessionActive, isDraft, rebaseConflict := 0, 0, 0
	if st.SessionActive {
		sessionActive = 1
	}
	if st.IsDraft {
		isDraft = 1
	}
	if st.RebaseConflict {
		rebaseConflict = 1
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO stages (
			id, repo_id, ticket_id, epic_id, title, status, refinement_type, worktree_branch,
			pr_url, pr_number, priority, due_date, session_active, is_draft, pending_merge_parents,
			mr_target_branch, rebase_conflict, file_path, kanban_column
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(repo_id, id) DO UPDATE SET
			ticket_id=excluded.ticket_id, epic_id=excluded.epic_id, title=excluded.title, status=excluded.status,
			refinement_type=excluded.refinement_type, worktree_branch=excluded.worktree_branch, pr_url=excluded.pr_url,
			pr_number=excluded.pr_number, priority=excluded.priority, due_date=excluded.due_date,
			session_active=excluded.session_active, is_draft=excluded.is_draft,
			pending_merge_parents=excluded.pending_merge_parents, mr_target_branch=excluded.mr_target_branch,
			rebase_conflict=excluded.rebase_conflict, file_path=excluded.file_path, kanban_column=excluded.kanban_column`,
		st.ID, repoID, st.TicketID, st.EpicID, st.Title, st.Status, string(refinement), st.WorktreeBranch,
		st.PRURL, st.PRNumber, st.Priority, st.DueDate, sessionActive, isDraft, string(pending),
		st.MRTargetBranch, rebaseConflict, st.FilePath, st.KanbanColumn)
	if err != nil {
		return &errs.StoreError{Op: "upsert_stage", Cause: err}
	}
	return nil
}

func UpsertDependency(ctx context.Context, tx *sql.Tx, repoID int64, d workitem.Dependency) error {
	resolved := 0
	if d.Resolved {
		resolved = 1
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO dependencies (repo_id, from_id, to_id, from_type, to_type, resolved, target_repo_name)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(repo_id, from_id, to_id) DO UPDATE SET
			from_type=excluded.from_type, to_type=excluded.to_type, resolved=excluded.resolved,
			target_repo_name=excluded.target_repo_name`,
		repoID, d.FromID, d.ToID, string(d.FromType), string(d.ToType), resolved, d.TargetRepoName)
	if err != nil {
		return &errs.StoreError{Op: "upsert_dependency", Cause: err}
	}
	return nil
}

func scanStage(rows interface{ Scan(...any) error }) (workitem.Stage, error) {
	var st workitem.Stage
	var refinement, pending string
	var sessionActive, isDraft, rebaseConflict int
	if err := rows.Scan(
		&st.ID, &st.RepoID, &st.TicketID, &st.EpicID, &st.Title, &st.Status, &refinement, &st.WorktreeBranch,
		&st.PRURL, &st.PRNumber, &st.Priority, &st.DueDate, &sessionActive, &isDraft, &pending,
		&st.MRTargetBranch, &rebaseConflict, &st.FilePath, &st.KanbanColumn,
	); err != nil {
		return st, err
	}
	st.SessionActive = sessionActive != 0
	st.IsDraft = isDraft != 0
	st.RebaseConflict = rebaseConflict != 0
	_ = json.Unmarshal([]byte(refinement), &st.RefinementType)
	_ = json.Unmarshal([]byte(pending), &st.PendingMergeParents)
	return st, nil
}

const stageColumns = `id, repo_id, ticket_id, epic_id, title, status, refinement_type, worktree_branch,
	pr_url, pr_number, priority, due_date, session_active, is_draft, pending_merge_parents,
	mr_target_branch, rebase_conflict, file_path, kanban_column`

func (s *Store) ListStagesByRepo(ctx context.Context, repoID int64) ([]workitem.Stage, error) {
	rows, err := s.db.conn.QueryContext(ctx, `SELECT `+stageColumns+` FROM stages WHERE repo_id = ? ORDER BY id`, repoID)
	if err != nil {
		return nil, &errs.StoreError{Op: "list_stages", Cause: err}
	}
	defer rows.Close()
	var result []workitem.Stage
	for rows.Next() {
		st, err := scanStage(rows)
		if err != nil {
			return nil, &errs.StoreError{Op: "scan_stage", Cause: err}
		}
		result = append(result, st)
	}
	return result, rows.Err()
}

func (s *Store) ListStagesByTicket(ctx context.Context, repoID int64, ticketID string) ([]workitem.Stage, error) {
	rows, err := s.db.conn.QueryContext(ctx,
		`SELECT `+stageColumns+` FROM stages WHERE repo_id = ? AND ticket_id = ? ORDER BY id`, repoID, ticketID)
	if err != nil {
		return nil, &errs.StoreError{Op: "list_stages_by_ticket", Cause: err}
	}
	defer rows.Close()
	var result []workitem.Stage
	for rows.Next() {
		st, err := scanStage(rows)
		if err != nil {
			return nil, &errs.StoreError{Op: "scan_stage", Cause: err}
		}
		result = append(result, st)
	}
	return result, rows.Err()
}

func (s *Store) ListStagesByEpic(ctx context.Context, repoID int64, epicID string) ([]workitem.Stage, error) {
	rows, err := s.db.conn.QueryContext(ctx,
		`SELECT `+stageColumns+` FROM stages WHERE repo_id = ? AND epic_id = ? ORDER BY id`, repoID, epicID)
	if err != nil {
		return nil, &errs.StoreError{Op: "list_stages_by_epic", Cause: err}
	}
	defer rows.Close()
	var result []workitem.Stage
	for rows.Next() {
		st, err := scanStage(rows)
		if err != nil {
			return nil, &errs.StoreError{Op: "scan_stage", Cause: err}
		}
		result = append(result, st)
	}
	return result, rows.Err()
}

func (s *Store) FindStageByID(ctx context.Context, repoID int64, id string) (workitem.Stage, bool, error) {
	row := s.db.conn.QueryRowContext(ctx, `SELECT `+stageColumns+` FROM stages WHERE repo_id = ? AND id = ?`, repoID, id)
	st, err := scanStage(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return workitem.Stage{}, false, nil
		}
		return workitem.Stage{}, false, &errs.StoreError{Op: "find_stage", Cause: err}
	}
	return st, true, nil
}

func (s *Store) ListTicketsByRepo(ctx context.Context, repoID int64) ([]workitem.Ticket, error) {
	rows, err := s.db.conn.QueryContext(ctx, `
		SELECT id, repo_id, epic_id, title, status, jira_key, source, has_stages, file_path
		FROM tickets WHERE repo_id = ? ORDER BY id`, repoID)
	if err != nil {
		return nil, &errs.StoreError{Op: "list_tickets", Cause: err}
	}
	defer rows.Close()
	var result []workitem.Ticket
	for rows.Next() {
		var t workitem.Ticket
		var hasStages int
		var source string
		if err := rows.Scan(&t.ID, &t.RepoID, &t.EpicID, &t.Title, &t.Status, &t.JiraKey, &source, &hasStages, &t.FilePath); err != nil {
			return nil, &errs.StoreError{Op: "scan_ticket", Cause: err}
		}
		t.HasStages = hasStages != 0
		t.Source = workitem.TicketSource(source)
		result = append(result, t)
	}
	return result, rows.Err()
}

func (s *Store) ListTicketsByEpic(ctx context.Context, repoID int64, epicID string) ([]workitem.Ticket, error) {
	all, err := s.ListTicketsByRepo(ctx, repoID)
	if err != nil {
		return nil, err
	}
	var result []workitem.Ticket
	for _, t := range all {
		if t.EpicID == epicID {
			result = append(result, t)
		}
	}
	return result, nil
}

func (s *Store) ListEpicsByRepo(ctx context.Context, repoID int64) ([]workitem.Epic, error) {
	rows, err := s.db.conn.QueryContext(ctx, `
		SELECT id, repo_id, title, status, jira_key, file_path FROM epics WHERE repo_id = ? ORDER BY id`, repoID)
	if err != nil {
		return nil, &errs.StoreError{Op: "list_epics", Cause: err}
	}
	defer rows.Close()
	var result []workitem.Epic
	for rows.Next() {
		var e workitem.Epic
		if err := rows.Scan(&e.ID, &e.RepoID, &e.Title, &e.Status, &e.JiraKey, &e.FilePath); err != nil {
			return nil, &errs.StoreError{Op: "scan_epic", Cause: err}
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func (s *Store) FindEpicByID(ctx context.Context, repoID int64, id string) (workitem.Epic, bool, error) {
	row := s.db.conn.QueryRowContext(ctx, `SELECT id, repo_id, title, status, jira_key, file_path FROM epics WHERE repo_id=? AND id=?`, repoID, id)
	var e workitem.Epic
	if err := row.Scan(&e.ID, &e.RepoID, &e.Title, &e.Status, &e.JiraKey, &e.FilePath); err != nil {
		if err == sql.ErrNoRows {
			return workitem.Epic{}, false, nil
		}
		return workitem.Epic{}, false, &errs.StoreError{Op: "find_epic", Cause: err}
	}
	return e, true, nil
}

func (s *Store) FindTicketByID(ctx context.Context, repoID int64, id string) (workitem.Ticket, bool, error) {
	row := s.db.conn.QueryRowContext(ctx, `
		SELECT id, repo_id, epic_id, title, status, jira_key, source, has_stages, file_path
		FROM tickets WHERE repo_id=? AND id=?`, repoID, id)
	var t workitem.Ticket
	var hasStages int
	var source string
	if err := row.Scan(&t.ID, &t.RepoID, &t.EpicID, &t.Title, &t.Status, &t.JiraKey, &source, &hasStages, &t.FilePath); err != nil {
		if err == sql.ErrNoRows {
			return workitem.Ticket{}, false, nil
		}
		return workitem.Ticket{}, false, &errs.StoreError{Op: "find_ticket", Cause: err}
	}
	t.HasStages = hasStages != 0
	t.Source = workitem.TicketSource(source)
	return t, true, nil
}

// ListDependenciesFrom returns every dependency row originating at fromID.
func (s *Store) ListDependenciesFrom(ctx context.Context, repoID int64, fromID string) ([]workitem.Dependency, error) {
	rows, err := s.db.conn.QueryContext(ctx, `
		SELECT repo_id, from_id, to_id, from_type, to_type, resolved, target_repo_name
		FROM dependencies WHERE repo_id = ? AND from_id = ?`, repoID, fromID)
	if err != nil {
		return nil, &errs.StoreError{Op: "list_deps_from", Cause: err}
	}
	defer rows.Close()
	return scanDependencyRows(rows)
}

// ListDependenciesByRepo returns every dependency row for a repo (used by
// cycle detection, which needs the whole adjacency list).
func (s *Store) ListDependenciesByRepo(ctx context.Context, repoID int64) ([]workitem.Dependency, error) {
	rows, err := s.db.conn.QueryContext(ctx, `
		SELECT repo_id, from_id, to_id, from_type, to_type, resolved, target_repo_name
		FROM dependencies WHERE repo_id = ?`, repoID)
	if err != nil {
		return nil, &errs.StoreError{Op: "list_deps", Cause: err}
	}
	defer rows.Close()
	return scanDependencyRows(rows)
}

func scanDependencyRows(rows *sql.Rows) ([]workitem.Dependency, error) {
	var result []workitem.Dependency
	for rows.Next() {
		var d workitem.Dependency
		var resolved int
		var fromType, toType string
		if err := rows.Scan(&d.RepoID, &d.FromID, &d.ToID, &fromType, &toType, &resolved, &d.TargetRepoName); err != nil {
			return nil, &errs.StoreError{Op: "scan_dependency", Cause: err}
		}
		d.FromType, d.ToType = workitem.Kind(fromType), workitem.Kind(toType)
		d.Resolved = resolved != 0
		result = append(result, d)
	}
	return result, rows.Err()
}

// AllResolved reports whether every dependency row from fromID is resolved.
func (s *Store) AllResolved(ctx context.Context, repoID int64, fromID string) (bool, error) {
	var unresolvedCount int
	row := s.db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM dependencies WHERE repo_id = ? AND from_id = ? AND resolved = 0`, repoID, fromID)
	if err := row.Scan(&unresolvedCount); err != nil {
		return false, &errs.StoreError{Op: "all_resolved", Cause: err}
	}
	return unresolvedCount == 0, nil
}

// UpdateKanbanColumn sets a single stage's computed column outside a full sync.
func (s *Store) UpdateKanbanColumn(ctx context.Context, repoID int64, stageID, column string) error {
	_, err := s.db.conn.ExecContext(ctx,
		`UPDATE stages SET kanban_column = ? WHERE repo_id = ? AND id = ?`, column, repoID, stageID)
	if err != nil {
		return &errs.StoreError{Op: "update_kanban_column", Cause: err}
	}
	return nil
}

// UpdateSessionActive sets the single-writer session_active flag — set by
// the orchestrator before a worker starts, cleared when it exits. This is
// race-guard R1 (SPEC_FULL.md §4.E.7): cron queries filter on this flag.
func (s *Store) UpdateSessionActive(ctx context.Context, repoID int64, stageID string, active bool) error {
	v := 0
	if active {
		v = 1
	}
	_, err := s.db.conn.ExecContext(ctx,
		`UPDATE stages SET session_active = ? WHERE repo_id = ? AND id = ?`, v, repoID, stageID)
	if err != nil {
		return &errs.StoreError{Op: "update_session_active", Cause: err}
	}
	return nil
}

func (s *Store) UpdatePendingMergeParents(ctx context.Context, repoID int64, stageID string, parents []workitem.PendingMergeParent, isDraft bool) error {
	blob, _ := json.Marshal(parents)
	draft := 0
	if isDraft {
		draft = 1
	}
	_, err := s.db.conn.ExecContext(ctx,
		`UPDATE stages SET pending_merge_parents = ?, is_draft = ? WHERE repo_id = ? AND id = ?`,
		string(blob), draft, repoID, stageID)
	if err != nil {
		return &errs.StoreError{Op: "update_pending_merge_parents", Cause: err}
	}
	return nil
}

// --- Tracking tables for the cron subsystem ---

func (s *Store) UpsertParentBranchTracking(ctx context.Context, repoID int64, t workitem.ParentBranchTracking) error {
	merged := 0
	if t.IsMerged {
		merged = 1
	}
	_, err := s.db.conn.ExecContext(ctx, `
		INSERT INTO parent_branch_tracking
			(repo_id, child_stage_id, parent_stage_id, parent_branch, parent_pr_url, last_known_head, is_merged, last_checked)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(repo_id, child_stage_id, parent_stage_id) DO UPDATE SET
			parent_branch=excluded.parent_branch, parent_pr_url=excluded.parent_pr_url,
			last_known_head=excluded.last_known_head, is_merged=excluded.is_merged, last_checked=excluded.last_checked`,
		repoID, t.ChildStageID, t.ParentStageID, t.ParentBranch, t.ParentPRURL, t.LastKnownHead, merged, t.LastChecked)
	if err != nil {
		return &errs.StoreError{Op: "upsert_parent_branch_tracking", Cause: err}
	}
	return nil
}

// EnsureParentBranchTracking seeds a parent_branch_tracking row the
// first time sync discovers a soft-resolved stage->stage parent, without
// disturbing last_known_head/is_merged the chain manager may already be
// tracking for that pair.
func (s *Store) EnsureParentBranchTracking(ctx context.Context, repoID int64, t workitem.ParentBranchTracking) error {
	_, err := s.db.conn.ExecContext(ctx, `
		INSERT INTO parent_branch_tracking
			(repo_id, child_stage_id, parent_stage_id, parent_branch, parent_pr_url, last_known_head, is_merged, last_checked)
		VALUES (?, ?, ?, ?, ?, '', 0, '')
		ON CONFLICT(repo_id, child_stage_id, parent_stage_id) DO UPDATE SET
			parent_branch=excluded.parent_branch, parent_pr_url=excluded.parent_pr_url`,
		repoID, t.ChildStageID, t.ParentStageID, t.ParentBranch, t.ParentPRURL)
	if err != nil {
		return &errs.StoreError{Op: "ensure_parent_branch_tracking", Cause: err}
	}
	return nil
}

func (s *Store) ListUnmergedParentBranchTracking(ctx context.Context, repoID int64) ([]workitem.ParentBranchTracking, error) {
	rows, err := s.db.conn.QueryContext(ctx, `
		SELECT repo_id, child_stage_id, parent_stage_id, parent_branch, parent_pr_url, last_known_head, is_merged, last_checked
		FROM parent_branch_tracking WHERE repo_id = ? AND is_merged = 0`, repoID)
	if err != nil {
		return nil, &errs.StoreError{Op: "list_unmerged_tracking", Cause: err}
	}
	defer rows.Close()
	var result []workitem.ParentBranchTracking
	for rows.Next() {
		var t workitem.ParentBranchTracking
		var merged int
		if err := rows.Scan(&t.RepoID, &t.ChildStageID, &t.ParentStageID, &t.ParentBranch, &t.ParentPRURL, &t.LastKnownHead, &merged, &t.LastChecked); err != nil {
			return nil, &errs.StoreError{Op: "scan_tracking", Cause: err}
		}
		t.IsMerged = merged != 0
		result = append(result, t)
	}
	return result, rows.Err()
}

func (s *Store) UpsertMrCommentTracking(ctx context.Context, repoID int64, t workitem.MrCommentTracking) error {
	_, err := s.db.conn.ExecContext(ctx, `
		INSERT INTO mr_comment_tracking (repo_id, stage_id, last_poll_timestamp, last_known_unresolved_count)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(repo_id, stage_id) DO UPDATE SET
			last_poll_timestamp=excluded.last_poll_timestamp,
			last_known_unresolved_count=excluded.last_known_unresolved_count`,
		repoID, t.StageID, t.LastPollTimestamp, t.LastKnownUnresolvedCnt)
	if err != nil {
		return &errs.StoreError{Op: "upsert_mr_comment_tracking", Cause: err}
	}
	return nil
}

func (s *Store) GetMrCommentTracking(ctx context.Context, repoID int64, stageID string) (workitem.MrCommentTracking, bool, error) {
	row := s.db.conn.QueryRowContext(ctx, `
		SELECT repo_id, stage_id, last_poll_timestamp, last_known_unresolved_count
		FROM mr_comment_tracking WHERE repo_id = ? AND stage_id = ?`, repoID, stageID)
	var t workitem.MrCommentTracking
	if err := row.Scan(&t.RepoID, &t.StageID, &t.LastPollTimestamp, &t.LastKnownUnresolvedCnt); err != nil {
		if err == sql.ErrNoRows {
			return workitem.MrCommentTracking{}, false, nil
		}
		return workitem.MrCommentTracking{}, false, &errs.StoreError{Op: "get_mr_comment_tracking", Cause: err}
	}
	return t, true, nil
}

// StagesInStatusIdle returns stages in the given status with
// session_active == false — the query shape R1 relies on (cron's
// primary race guard against the main loop).
func (s *Store) StagesInStatusIdle(ctx context.Context, repoID int64, status string) ([]workitem.Stage, error) {
	rows, err := s.db.conn.QueryContext(ctx,
		`SELECT `+stageColumns+` FROM stages WHERE repo_id = ? AND status = ? AND session_active = 0 ORDER BY id`,
		repoID, status)
	if err != nil {
		return nil, &errs.StoreError{Op: "stages_in_status_idle", Cause: err}
	}
	defer rows.Close()
	var result []workitem.Stage
	for rows.Next() {
		st, err := scanStage(rows)
		if err != nil {
			return nil, &errs.StoreError{Op: "scan_stage", Cause: err}
		}
		result = append(result, st)
	}
	return result, rows.Err()
}
