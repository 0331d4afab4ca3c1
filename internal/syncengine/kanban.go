package syncengine

import (
	"github.com/jakekausler/stagework/internal/pipeline"
	"github.com/jakekausler/stagework/internal/workitem"
)

// unblockedForColumning reports whether a stage has no deps, or every
// dep is hard-or-soft resolved — the gate for leaving `backlog` per
// §4.B step 5.
func unblockedForColumning(st workitem.Stage, res *resolution) bool {
	if len(st.DependsOn) == 0 {
		return true
	}
	for _, ref := range st.DependsOn {
		r := parseDepRef(ref)
		key := edgeKey{From: st.ID, To: r.ID}
		if res.hard[key] || res.soft[key] {
			continue
		}
		return false
	}
	return true
}

// computeKanbanColumns derives each stage's kanban_column per §4.B step
// 5, given the resolution computed by resolveDependencies, and mutates
// graph.stages in place.
func computeKanbanColumns(graph *parsedGraph, pm *pipeline.Model, res *resolution) {
	for id, st := range graph.stages {
		if !unblockedForColumning(st, res) {
			st.KanbanColumn = workitem.ColumnBacklog
			graph.stages[id] = st
			continue
		}
		switch {
		case st.Status == workitem.StatusComplete:
			st.KanbanColumn = workitem.ColumnDone
		case st.Status == workitem.StatusNotStarted:
			st.KanbanColumn = workitem.ColumnReadyForWork
		case pm != nil && pm.IsKnownStatus(st.Status):
			st.KanbanColumn = pipeline.KanbanColumnForStatus(st.Status)
		default:
			st.KanbanColumn = pipeline.KanbanColumnForStatus(st.Status)
		}
		graph.stages[id] = st
	}
}

// computePendingMergeParents implements §4.B step 6: for stages
// unblocked-for-columning where at least one stage→stage dep is only
// soft-resolved, collect that parent's reference info. Returns the IDs
// of stages whose computed fields changed, for write-back.
func computePendingMergeParents(graph *parsedGraph, res *resolution) []string {
	var changed []string
	for id, st := range graph.stages {
		if !unblockedForColumning(st, res) {
			if len(st.PendingMergeParents) > 0 || st.IsDraft {
				st.PendingMergeParents = nil
				st.IsDraft = false
				graph.stages[id] = st
				changed = append(changed, id)
			}
			continue
		}

		var parents []workitem.PendingMergeParent
		for _, ref := range st.DependsOn {
			r := parseDepRef(ref)
			if r.IsCrossRepo() {
				continue // cross-repo parents excluded per §9 open question
			}
			key := edgeKey{From: st.ID, To: r.ID}
			if !res.soft[key] || res.hard[key] {
				continue
			}
			parent, ok := graph.stages[r.ID]
			if !ok || parent.PRURL == "" {
				continue // skip parents missing PR info
			}
			parents = append(parents, workitem.PendingMergeParent{
				StageID:  parent.ID,
				Branch:   parent.WorktreeBranch,
				PRURL:    parent.PRURL,
				PRNumber: parent.PRNumber,
			})
		}

		newDraft := len(parents) > 0
		if !sameParents(st.PendingMergeParents, parents) || st.IsDraft != newDraft {
			st.PendingMergeParents = parents
			st.IsDraft = newDraft
			graph.stages[id] = st
			changed = append(changed, id)
		}
	}
	return changed
}

func sameParents(a, b []workitem.PendingMergeParent) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
