// Package exitgate implements §4.F: the exit gate that propagates a
// stage reaching Complete up through its ticket and epic, and the
// resolver registry that drives phase transitions without spawning a
// session.
package exitgate

import (
	"context"

	"github.com/jakekausler/stagework/internal/pipeline"
	"github.com/jakekausler/stagework/internal/store"
	"github.com/jakekausler/stagework/internal/syncengine"
	"github.com/jakekausler/stagework/internal/workitem"
)

// Outcome is the exit gate's full return shape per §4.F.1.
type Outcome struct {
	StatusChanged   bool
	StatusBefore    string
	StatusAfter     string
	TicketUpdated   bool
	EpicUpdated     bool
	TicketCompleted bool
	EpicCompleted   bool
	SyncSucceeded   bool
	SyncErrors      []error
}

// Gate runs the exit-gate algorithm against one repo's Store + pipeline.
type Gate struct {
	store  *store.Store
	engine *syncengine.Engine
}

func NewGate(st *store.Store, engine *syncengine.Engine) *Gate {
	return &Gate{store: st, engine: engine}
}

// Run implements §4.F.1's algorithm. R3 (race-freedom contract §4.E.7)
// is satisfied by step 1: equal before/after is a pure no-op.
func (g *Gate) Run(ctx context.Context, repoPath string, pm *pipeline.Model, repoID int64, stageID, statusBefore, statusAfter string) (Outcome, error) {
	out := Outcome{StatusBefore: statusBefore, StatusAfter: statusAfter}
	if statusBefore == statusAfter {
		return out, nil
	}
	out.StatusChanged = true

	syncResult, err := g.engine.Sync(ctx, repoPath, pm)
	out.SyncSucceeded = err == nil
	if err != nil {
		out.SyncErrors = append(out.SyncErrors, err)
		return out, nil
	}
	_ = syncResult

	if !workitem.IsCompleteStatus(statusAfter) {
		return out, nil
	}

	stage, found, err := g.store.FindStageByID(ctx, repoID, stageID)
	if err != nil || !found {
		return out, nil
	}

	ticket, found, err := g.store.FindTicketByID(ctx, repoID, stage.TicketID)
	if err != nil || !found {
		return out, nil
	}

	ticketStages, err := g.store.ListStagesByTicket(ctx, repoID, ticket.ID)
	if err == nil && allComplete(ticketStages) && ticket.Status != workitem.StatusComplete {
		if err := syncengine.WriteBackTicketStatus(ticket, workitem.StatusComplete); err == nil {
			out.TicketUpdated = true
			out.TicketCompleted = true
		} else {
			out.SyncErrors = append(out.SyncErrors, err)
		}
	}

	if !out.TicketCompleted || ticket.EpicID == "" {
		return out, nil
	}

	epic, found, err := g.store.FindEpicByID(ctx, repoID, ticket.EpicID)
	if err != nil || !found {
		return out, nil
	}
	epicStages, err := g.store.ListStagesByEpic(ctx, repoID, epic.ID)
	if err == nil && allComplete(epicStages) && epic.Status != workitem.StatusComplete {
		if err := syncengine.WriteBackEpicStatus(epic, workitem.StatusComplete); err == nil {
			out.EpicUpdated = true
			out.EpicCompleted = true
		} else {
			out.SyncErrors = append(out.SyncErrors, err)
		}
	}

	return out, nil
}

func allComplete(stages []workitem.Stage) bool {
	if len(stages) == 0 {
		return false
	}
	for _, s := range stages {
		if !workitem.IsCompleteStatus(s.Status) {
			return false
		}
	}
	return true
}
