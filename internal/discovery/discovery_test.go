package discovery

import (
	"testing"
	"time"

	"github.com/jakekausler/stagework/internal/workitem"
)

func TestScoreStageBanding(t *testing.T) {
	now := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		name       string
		stage      workitem.Stage
		wantBand   int
		wantHuman  bool
	}{
		{"addressing comments", workitem.Stage{Status: workitem.StatusAddressingComment}, bandAddressingComments, false},
		{"manual testing needs human", workitem.Stage{Status: "Manual Testing"}, bandManualTesting, true},
		{"automatic testing", workitem.Stage{Status: "Automatic Testing"}, bandAutomaticTesting, false},
		{"build ready column", workitem.Stage{KanbanColumn: "build"}, bandBuildReady, false},
		{"entry ready column", workitem.Stage{KanbanColumn: workitem.ColumnReadyForWork}, bandEntryReady, false},
		{"fallback", workitem.Stage{Status: "Something Else"}, bandOther, false},
	}
	for _, c := range cases {
		score, needsHuman := scoreStage(c.stage, nil, now)
		if score != c.wantBand {
			t.Errorf("%s: score = %d, want %d", c.name, score, c.wantBand)
		}
		if needsHuman != c.wantHuman {
			t.Errorf("%s: needsHuman = %v, want %v", c.name, needsHuman, c.wantHuman)
		}
	}
}

func TestScoreStagePriorityAdds(t *testing.T) {
	now := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	s := workitem.Stage{Status: "Something Else", Priority: 10}
	score, _ := scoreStage(s, nil, now)
	if score != bandOther+10 {
		t.Errorf("score = %d, want %d", score, bandOther+10)
	}
}

func TestDueDateBonusDecaysToZero(t *testing.T) {
	now := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)

	dueToday := now.Format("2006-01-02")
	if got := dueDateBonus(dueToday, now); got != dueDateBonusMax {
		t.Errorf("due today bonus = %d, want %d", got, dueDateBonusMax)
	}

	farOut := now.AddDate(0, 0, dueDateBonusMaxDays).Format("2006-01-02")
	if got := dueDateBonus(farOut, now); got != 0 {
		t.Errorf("due %d days out bonus = %d, want 0", dueDateBonusMaxDays, got)
	}

	if got := dueDateBonus("", now); got != 0 {
		t.Errorf("empty due date bonus = %d, want 0", got)
	}

	if got := dueDateBonus("not-a-date", now); got != 0 {
		t.Errorf("malformed due date bonus = %d, want 0", got)
	}
}

func TestDueDateBonusOverdueClampsToMax(t *testing.T) {
	now := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	overdue := now.AddDate(0, 0, -5).Format("2006-01-02")
	if got := dueDateBonus(overdue, now); got != dueDateBonusMax {
		t.Errorf("overdue bonus = %d, want %d", got, dueDateBonusMax)
	}
}
