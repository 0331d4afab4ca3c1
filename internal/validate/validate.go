// Package validate implements the `validate` CLI surface (§6): a
// read-mostly pass that runs a sync, then checks the resulting store
// for the shape problems §7's ValidationError taxonomy names -
// dangling dependency targets, invalid edge types, unknown statuses,
// duplicate worktree branches, and dependency cycles.
package validate

import (
	"context"
	"fmt"

	"github.com/jakekausler/stagework/internal/errs"
	"github.com/jakekausler/stagework/internal/pipeline"
	"github.com/jakekausler/stagework/internal/store"
	"github.com/jakekausler/stagework/internal/syncengine"
	"github.com/jakekausler/stagework/internal/workitem"
)

// Report is the JSON shape `validate` prints, per §6's CLI surface.
type Report struct {
	Valid        bool     `json:"valid"`
	Errors       []string `json:"errors"`
	Warnings     []string `json:"warnings"`
	PipelineValid bool    `json:"pipeline_valid"`
}

// Run syncs repoPath against st, then validates the resulting graph
// using pm (the caller picks which repo's pipeline to validate with -
// see the "global validate picks one repo's pipeline" decision).
func Run(ctx context.Context, repoPath string, st *store.Store, pm *pipeline.Model) (Report, error) {
	report := Report{PipelineValid: pm != nil}

	engine := syncengine.New(st)
	syncResult, err := engine.Sync(ctx, repoPath, pm)
	if err != nil {
		return Report{}, fmt.Errorf("validate: sync failed: %w", err)
	}
	for _, e := range syncResult.Errors {
		report.Errors = append(report.Errors, e.Error())
	}

	stages, err := st.ListStagesByRepo(ctx, syncResult.RepoID)
	if err != nil {
		return Report{}, fmt.Errorf("validate: listing stages: %w", err)
	}
	tickets, err := st.ListTicketsByRepo(ctx, syncResult.RepoID)
	if err != nil {
		return Report{}, fmt.Errorf("validate: listing tickets: %w", err)
	}
	epics, err := st.ListEpicsByRepo(ctx, syncResult.RepoID)
	if err != nil {
		return Report{}, fmt.Errorf("validate: listing epics: %w", err)
	}
	knownIDs := make(map[string]bool, len(stages)+len(tickets)+len(epics))
	for _, s := range stages {
		knownIDs[s.ID] = true
	}
	for _, t := range tickets {
		knownIDs[t.ID] = true
	}
	for _, ep := range epics {
		knownIDs[ep.ID] = true
	}

	deps, err := st.ListDependenciesByRepo(ctx, syncResult.RepoID)
	if err != nil {
		return Report{}, fmt.Errorf("validate: listing dependencies: %w", err)
	}
	for _, d := range deps {
		if !d.Resolved && d.TargetRepoName == "" {
			if !knownIDs[d.ToID] {
				report.Errors = append(report.Errors,
					(&errs.ValidationError{Field: "depends_on", Message: fmt.Sprintf("%s -> %s: dep points at nonexistent ID", d.FromID, d.ToID)}).Error())
			} else {
				report.Warnings = append(report.Warnings,
					(&errs.ValidationError{Field: "depends_on", Message: fmt.Sprintf("%s -> %s unresolved", d.FromID, d.ToID)}).Error())
			}
		}
		if !workitem.ValidDependencyEdge(d.FromType, d.ToType) {
			report.Errors = append(report.Errors,
				(&errs.ValidationError{Field: "depends_on", Message: fmt.Sprintf("%s -> %s: invalid edge type %s->%s", d.FromID, d.ToID, d.FromType, d.ToType)}).Error())
		}
	}

	for _, cycle := range syncengine.DetectCycles(deps) {
		report.Errors = append(report.Errors,
			(&errs.ValidationError{Field: "depends_on", Message: fmt.Sprintf("dependency cycle: %v", cycle)}).Error())
	}

	seenBranch := map[string]string{}
	for _, s := range stages {
		if pm != nil && !pm.IsKnownStatus(s.Status) {
			report.Warnings = append(report.Warnings,
				(&errs.ValidationError{Field: "status", Message: fmt.Sprintf("%s: unknown status %q", s.ID, s.Status)}).Error())
		}
		if s.WorktreeBranch == "" {
			continue
		}
		if other, dup := seenBranch[s.WorktreeBranch]; dup {
			report.Errors = append(report.Errors,
				(&errs.ValidationError{Field: "worktree_branch", Message: fmt.Sprintf("%s and %s both use branch %q", other, s.ID, s.WorktreeBranch)}).Error())
		} else {
			seenBranch[s.WorktreeBranch] = s.ID
		}
	}

	report.Valid = len(report.Errors) == 0
	return report, nil
}
