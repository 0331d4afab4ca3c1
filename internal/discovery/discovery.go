// Package discovery implements §4.D: scoring and selecting the next
// batch of ready stages for the orchestrator loop to spawn work on.
package discovery

import (
	"context"
	"sort"
	"time"

	"github.com/jakekausler/stagework/internal/pipeline"
	"github.com/jakekausler/stagework/internal/store"
	"github.com/jakekausler/stagework/internal/workitem"
)

// Candidate is a ready stage plus its computed priority score.
type Candidate struct {
	Stage      workitem.Stage
	Score      int
	NeedsHuman bool
}

// Result is buildNext's full return shape: the top-N ready stages plus
// counts of everything else on the board, for display.
type Result struct {
	Ready           []Candidate
	BlockedCount    int
	InProgressCount int
	ToConvertCount  int
}

// priority band bases, highest first — see §4.D's scoring table.
const (
	bandAddressingComments = 700
	bandManualTesting      = 600
	bandAutomaticTesting   = 500
	bandBuildReady         = 400
	bandEntryReady         = 300
	bandOther              = 200
)

// dueDateBonusMaxDays is the horizon beyond which a due date contributes
// nothing to the score; closer due dates score higher within it.
const dueDateBonusMaxDays = 14
const dueDateBonusMax = 100

// Discover queries the Store for every stage in repo, classifies it,
// and returns the scored ready set (capped at maxSlots) plus board
// counts, per §4.D.
func Discover(ctx context.Context, st *store.Store, repoID int64, pm *pipeline.Model, maxSlots int, now time.Time) (Result, error) {
	stages, err := st.ListStagesByRepo(ctx, repoID)
	if err != nil {
		return Result{}, err
	}

	var result Result
	var ready []Candidate

	for _, s := range stages {
		switch s.KanbanColumn {
		case workitem.ColumnToConvert:
			result.ToConvertCount++
			continue
		case workitem.ColumnBacklog:
			result.BlockedCount++
			continue
		case workitem.ColumnDone:
			continue
		}

		if s.SessionActive {
			result.InProgressCount++
			continue
		}

		score, needsHuman := scoreStage(s, pm, now)
		ready = append(ready, Candidate{Stage: s, Score: score, NeedsHuman: needsHuman})
	}

	sort.Slice(ready, func(i, j int) bool {
		if ready[i].Score != ready[j].Score {
			return ready[i].Score > ready[j].Score
		}
		return ready[i].Stage.ID < ready[j].Stage.ID
	})

	if maxSlots > 0 && len(ready) > maxSlots {
		ready = ready[:maxSlots]
	}
	result.Ready = ready
	return result, nil
}

// scoreStage computes one stage's priority score per §4.D's banding
// table, plus the frontmatter priority field and a due-date bonus.
func scoreStage(s workitem.Stage, pm *pipeline.Model, now time.Time) (score int, needsHuman bool) {
	switch {
	case s.Status == workitem.StatusAddressingComment:
		score = bandAddressingComments
	case s.Status == "Manual Testing":
		score = bandManualTesting
		needsHuman = true
	case s.Status == "Automatic Testing":
		score = bandAutomaticTesting
	case s.KanbanColumn == "build":
		score = bandBuildReady
	case s.KanbanColumn == workitem.ColumnReadyForWork:
		score = bandEntryReady
	default:
		score = bandOther
	}

	score += s.Priority
	score += dueDateBonus(s.DueDate, now)
	return score, needsHuman
}

func dueDateBonus(dueDate string, now time.Time) int {
	if dueDate == "" {
		return 0
	}
	due, err := time.Parse("2006-01-02", dueDate)
	if err != nil {
		return 0
	}
	daysOut := int(due.Sub(now).Hours() / 24)
	if daysOut >= dueDateBonusMaxDays {
		return 0
	}
	if daysOut < 0 {
		daysOut = 0
	}
	return dueDateBonusMax - (daysOut * dueDateBonusMax / dueDateBonusMaxDays)
}
