package syncengine

import (
	"context"

	"github.com/jakekausler/stagework/internal/workitem"
)

// edgeKey identifies one dependency edge for the resolution maps below.
type edgeKey struct {
	From string
	To   string
}

// resolution holds the outcome of dependency resolution for one sync
// pass: which edges are hard-resolved (the persisted `resolved` flag)
// and which stage→stage edges are soft-resolved (never persisted as
// `resolved`, but drives kanban column + pending_merge_parents).
type resolution struct {
	hard map[edgeKey]bool
	soft map[edgeKey]bool
}

func newResolution() *resolution {
	return &resolution{hard: map[edgeKey]bool{}, soft: map[edgeKey]bool{}}
}

// resolveDependencies computes hard/soft resolution for every depends_on
// ref across every entity in the parsed graph, per §4.B step 4.
// Cross-repo refs require a Store lookup against the target repo (which
// must already have a completed sync of its own); unregistered or
// not-yet-synced target repos resolve to unresolved.
func (e *Engine) resolveDependencies(ctx context.Context, repo workitem.Repo, graph *parsedGraph, result *Result) *resolution {
	res := newResolution()

	resolveOne := func(fromID string, fromType workitem.Kind, ref string) {
		r := parseDepRef(ref)
		key := edgeKey{From: fromID, To: r.ID}

		if r.IsCrossRepo() {
			hard := e.crossRepoHardResolved(ctx, r)
			res.hard[key] = hard
			return
		}

		toType, ok := workitem.KindOf(r.ID)
		if !ok {
			result.Warnings = append(result.Warnings, "dependency target has unrecognized ID prefix: "+r.ID)
			return
		}
		if !workitem.ValidDependencyEdge(fromType, toType) {
			result.Errors = append(result.Errors, &invalidDepTypeError{From: fromID, To: r.ID, FromType: fromType, ToType: toType})
		}

		res.hard[key] = e.localHardResolved(graph, toType, r.ID)
		if fromType == workitem.KindStage && toType == workitem.KindStage {
			if st, ok := graph.stages[r.ID]; ok {
				res.soft[key] = workitem.IsSoftResolvableStatus(st.Status)
			}
		}
	}

	for _, ep := range graph.epics {
		for _, ref := range ep.DependsOn {
			resolveOne(ep.ID, workitem.KindEpic, ref)
		}
	}
	for _, t := range graph.tickets {
		for _, ref := range t.DependsOn {
			resolveOne(t.ID, workitem.KindTicket, ref)
		}
	}
	for _, st := range graph.stages {
		for _, ref := range st.DependsOn {
			resolveOne(st.ID, workitem.KindStage, ref)
		}
	}

	return res
}

// localHardResolved computes hard resolution against the in-memory
// parse: a stage target is Complete; a ticket/epic target requires its
// entire stage subtree Complete (zero stages ⇒ never resolved).
func (e *Engine) localHardResolved(graph *parsedGraph, toType workitem.Kind, toID string) bool {
	switch toType {
	case workitem.KindStage:
		st, ok := graph.stages[toID]
		return ok && workitem.IsCompleteStatus(st.Status)
	case workitem.KindTicket:
		stages := stagesOfTicket(graph, toID)
		if len(stages) == 0 {
			return false
		}
		for _, st := range stages {
			if !workitem.IsCompleteStatus(st.Status) {
				return false
			}
		}
		return true
	case workitem.KindEpic:
		stages := stagesOfEpic(graph, toID)
		if len(stages) == 0 {
			return false
		}
		for _, st := range stages {
			if !workitem.IsCompleteStatus(st.Status) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func stagesOfTicket(graph *parsedGraph, ticketID string) []workitem.Stage {
	var out []workitem.Stage
	for _, st := range graph.stages {
		if st.TicketID == ticketID {
			out = append(out, st)
		}
	}
	return out
}

func stagesOfEpic(graph *parsedGraph, epicID string) []workitem.Stage {
	var out []workitem.Stage
	for _, st := range graph.stages {
		if st.EpicID == epicID {
			out = append(out, st)
		}
	}
	return out
}

// crossRepoHardResolved looks up the target repo by name and queries its
// already-synced Store state. A missing registration or missing target
// resolves to unresolved, never an error — cross-repo tracking is best
// effort (§9 open question on cross-repo carve-outs).
func (e *Engine) crossRepoHardResolved(ctx context.Context, r depRef) bool {
	targetRepo, ok, err := e.store.FindRepoByName(ctx, r.RepoName)
	if err != nil || !ok {
		return false
	}
	toType, ok := workitem.KindOf(r.ID)
	if !ok {
		return false
	}
	switch toType {
	case workitem.KindStage:
		st, found, err := e.store.FindStageByID(ctx, targetRepo.ID, r.ID)
		return err == nil && found && workitem.IsCompleteStatus(st.Status)
	case workitem.KindTicket:
		stages, err := e.store.ListStagesByTicket(ctx, targetRepo.ID, r.ID)
		if err != nil || len(stages) == 0 {
			return false
		}
		for _, st := range stages {
			if !workitem.IsCompleteStatus(st.Status) {
				return false
			}
		}
		return true
	case workitem.KindEpic:
		stages, err := e.store.ListStagesByEpic(ctx, targetRepo.ID, r.ID)
		if err != nil || len(stages) == 0 {
			return false
		}
		for _, st := range stages {
			if !workitem.IsCompleteStatus(st.Status) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// invalidDepTypeError reports a dependency edge violating §3's type
// rules (e.g. Epic→Ticket), surfaced by validate per §7 ValidationError.
type invalidDepTypeError struct {
	From, To         string
	FromType, ToType workitem.Kind
}

func (e *invalidDepTypeError) Error() string {
	return "depends_on: " + string(e.FromType) + " " + e.From + " cannot depend on " + string(e.ToType) + " " + e.To
}
