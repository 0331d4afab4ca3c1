package workitem

import "testing"

func TestKindOf(t *testing.T) {
	cases := []struct {
		id   string
		want Kind
		ok   bool
	}{
		{"EPIC-001", KindEpic, true},
		{"TICKET-001", KindTicket, true},
		{"STAGE-001", KindStage, true},
		{"BOGUS-001", "", false},
		{"", "", false},
	}
	for _, c := range cases {
		got, ok := KindOf(c.id)
		if got != c.want || ok != c.ok {
			t.Errorf("KindOf(%q) = (%q, %v), want (%q, %v)", c.id, got, ok, c.want, c.ok)
		}
	}
}

func TestValidDependencyEdge(t *testing.T) {
	cases := []struct {
		from, to Kind
		want     bool
	}{
		{KindEpic, KindEpic, true},
		{KindEpic, KindTicket, false},
		{KindEpic, KindStage, false},
		{KindTicket, KindTicket, true},
		{KindTicket, KindEpic, true},
		{KindTicket, KindStage, false},
		{KindStage, KindStage, true},
		{KindStage, KindTicket, true},
		{KindStage, KindEpic, true},
	}
	for _, c := range cases {
		if got := ValidDependencyEdge(c.from, c.to); got != c.want {
			t.Errorf("ValidDependencyEdge(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestIsSoftResolvableStatus(t *testing.T) {
	if !IsSoftResolvableStatus(StatusPRCreated) {
		t.Error("PR Created should be soft-resolvable")
	}
	if !IsSoftResolvableStatus(StatusAddressingComment) {
		t.Error("Addressing Comments should be soft-resolvable")
	}
	if IsSoftResolvableStatus(StatusInProgress) {
		t.Error("In Progress should not be soft-resolvable")
	}
}

func TestIsCompleteStatus(t *testing.T) {
	if !IsCompleteStatus(StatusComplete) {
		t.Error("Complete should report complete")
	}
	if IsCompleteStatus(StatusSkipped) {
		t.Error("Skipped should not report complete")
	}
}
