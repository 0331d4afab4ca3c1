// Package syncengine implements §4.B: read work-item files from disk,
// parse their frontmatter, upsert the SQLite mirror, resolve
// dependencies (hard and soft), compute each stage's kanban column, and
// write computed fields back to disk.
package syncengine

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jakekausler/stagework/internal/errs"
	"github.com/jakekausler/stagework/internal/frontmatter"
	"github.com/jakekausler/stagework/internal/pipeline"
	"github.com/jakekausler/stagework/internal/store"
	"github.com/jakekausler/stagework/internal/workitem"
)

// Engine runs sync passes against a Store.
type Engine struct {
	store *store.Store
}

func New(st *store.Store) *Engine { return &Engine{store: st} }

// Result summarizes one sync pass. Errors are ParseError/ExitGateError-
// style non-fatal entries; a failed StoreError transaction is returned
// directly as the Sync error instead.
type Result struct {
	RepoID       int64
	RepoName     string
	EpicCount    int
	TicketCount  int
	StageCount   int
	Errors       []error
	Warnings     []string
}

// parsedGraph holds everything read from disk before any Store write,
// so dependency resolution and kanban computation can run purely over
// in-memory data per §4.B steps 2-6.
type parsedGraph struct {
	epics   map[string]workitem.Epic
	tickets map[string]workitem.Ticket
	stages  map[string]workitem.Stage
}

// Sync runs one full pass over repoPath: discover, parse, upsert, resolve,
// compute columns, write back. It is idempotent in steady state (§8).
func (e *Engine) Sync(ctx context.Context, repoPath string, pm *pipeline.Model) (Result, error) {
	absPath, err := filepath.Abs(repoPath)
	if err != nil {
		return Result{}, fmt.Errorf("sync: resolving repo path: %w", err)
	}
	repoName := filepath.Base(absPath)

	repo, err := e.store.UpsertRepoByPath(ctx, absPath, repoName)
	if err != nil {
		return Result{}, err
	}

	result := Result{RepoID: repo.ID, RepoName: repo.Name}

	files, err := discoverFiles(absPath)
	if err != nil {
		return result, fmt.Errorf("sync: discovering files: %w", err)
	}

	graph := parsedGraph{
		epics:   map[string]workitem.Epic{},
		tickets: map[string]workitem.Ticket{},
		stages:  map[string]workitem.Stage{},
	}

	for _, f := range files {
		raw, err := os.ReadFile(f.Path)
		if err != nil {
			result.Errors = append(result.Errors, &errs.ParseError{Path: f.Path, Cause: err})
			continue
		}
		data, _, err := frontmatter.Split(string(raw))
		if err != nil {
			result.Errors = append(result.Errors, &errs.ParseError{Path: f.Path, Cause: err})
			continue
		}

		switch f.Kind {
		case workitem.KindEpic:
			ep, err := decodeEpic(data, f.Path)
			if err != nil {
				result.Errors = append(result.Errors, err)
				continue
			}
			if ep.ID == "" {
				ep.ID = f.ID
			}
			graph.epics[ep.ID] = ep
		case workitem.KindTicket:
			t, err := decodeTicket(data, f.Path)
			if err != nil {
				result.Errors = append(result.Errors, err)
				continue
			}
			if t.ID == "" {
				t.ID = f.ID
			}
			graph.tickets[t.ID] = t
		case workitem.KindStage:
			st, err := decodeStage(data, f.Path)
			if err != nil {
				result.Errors = append(result.Errors, err)
				continue
			}
			if st.ID == "" {
				st.ID = f.ID
			}
			graph.stages[st.ID] = st
		}
	}

	// has_stages is derived from the parse, not frontmatter.
	for _, st := range graph.stages {
		t := graph.tickets[st.TicketID]
		t.HasStages = true
		graph.tickets[st.TicketID] = t
	}

	res := e.resolveDependencies(ctx, repo, &graph, &result)
	computeKanbanColumns(&graph, pm, res)
	changedStages := computePendingMergeParents(&graph, res)

	if err := e.persist(ctx, repo.ID, graph, res); err != nil {
		return result, err
	}

	if err := e.seedParentBranchTracking(ctx, repo.ID, graph); err != nil {
		result.Errors = append(result.Errors, err)
	}

	for _, id := range changedStages {
		st := graph.stages[id]
		if err := writeBackStage(st); err != nil {
			if os.IsNotExist(err) {
				continue // tolerated silently per §4.B step 7
			}
			result.Errors = append(result.Errors, fmt.Errorf("write-back %s: %w", st.ID, err))
		}
	}

	result.EpicCount = len(graph.epics)
	result.TicketCount = len(graph.tickets)
	result.StageCount = len(graph.stages)
	return result, nil
}

// seedParentBranchTracking feeds mr-chain-manager (§4.E.6): every stage
// with a computed soft-resolved pending-merge parent gets a
// parent_branch_tracking row, so the cron job's
// ListUnmergedParentBranchTracking query has rows to act on. Existing
// is_merged/last_known_head state the chain manager already tracks is
// left untouched.
func (e *Engine) seedParentBranchTracking(ctx context.Context, repoID int64, graph parsedGraph) error {
	for _, st := range graph.stages {
		for _, p := range st.PendingMergeParents {
			t := workitem.ParentBranchTracking{
				ChildStageID:  st.ID,
				ParentStageID: p.StageID,
				ParentBranch:  p.Branch,
				ParentPRURL:   p.PRURL,
			}
			if err := e.store.EnsureParentBranchTracking(ctx, repoID, t); err != nil {
				return err
			}
		}
	}
	return nil
}

// persist clears and re-inserts the whole repo graph in a single
// transaction per §4.A/§4.B step 3.
func (e *Engine) persist(ctx context.Context, repoID int64, graph parsedGraph, res *resolution) error {
	return e.store.SyncTxn(ctx, func(tx *sql.Tx) error {
		if err := store.ClearRepo(ctx, tx, repoID); err != nil {
			return err
		}
		for _, ep := range graph.epics {
			if err := store.UpsertEpic(ctx, tx, repoID, ep); err != nil {
				return err
			}
			for _, ref := range ep.DependsOn {
				if err := upsertDependencyEdge(ctx, tx, repoID, ep.ID, workitem.KindEpic, ref, res); err != nil {
					return err
				}
			}
		}
		for _, t := range graph.tickets {
			if err := store.UpsertTicket(ctx, tx, repoID, t); err != nil {
				return err
			}
			for _, ref := range t.DependsOn {
				if err := upsertDependencyEdge(ctx, tx, repoID, t.ID, workitem.KindTicket, ref, res); err != nil {
					return err
				}
			}
		}
		for _, st := range graph.stages {
			if err := store.UpsertStage(ctx, tx, repoID, st); err != nil {
				return err
			}
			for _, ref := range st.DependsOn {
				if err := upsertDependencyEdge(ctx, tx, repoID, st.ID, workitem.KindStage, ref, res); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// upsertDependencyEdge re-derives and persists a single dependency row,
// looking up the hard-resolved flag already computed by
// resolveDependencies instead of recomputing it.
func upsertDependencyEdge(ctx context.Context, tx *sql.Tx, repoID int64, fromID string, fromType workitem.Kind, ref string, res *resolution) error {
	r := parseDepRef(ref)
	toType, ok := workitem.KindOf(r.ID)
	if !ok {
		toType = workitem.KindStage // unknown target type; validate() will flag it separately
	}
	resolved := res.hard[edgeKey{From: fromID, To: r.ID}]
	return store.UpsertDependency(ctx, tx, repoID, workitem.Dependency{
		FromID:         fromID,
		ToID:           r.ID,
		FromType:       fromType,
		ToType:         toType,
		Resolved:       resolved,
		TargetRepoName: r.RepoName,
	})
}
