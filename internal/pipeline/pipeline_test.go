package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"
)

const sampleYAML = `
workflow:
  entry_phase: backlog
  defaults:
    WORKFLOW_MAX_PARALLEL: "3"
  phases:
    - name: backlog
      status: Not Started
      skill: start-work
    - name: pr_created
      status: PR Created
      resolver: pr-status
cron:
  mr-comment-poll:
    enabled: true
    interval_seconds: 300
`

func mustModel(t *testing.T) *Model {
	t.Helper()
	var cfg Config
	if err := yaml.Unmarshal([]byte(sampleYAML), &cfg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	m, err := FromConfig(cfg)
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	return m
}

func TestFromConfigEntryPhase(t *testing.T) {
	m := mustModel(t)
	if m.EntryPhase().Name != "backlog" {
		t.Errorf("entry phase = %q, want backlog", m.EntryPhase().Name)
	}
}

func TestFromConfigRejectsMissingEntryPhase(t *testing.T) {
	cfg := Config{}
	cfg.Workflow.EntryPhase = "nonexistent"
	cfg.Workflow.Phases = []Phase{{Name: "backlog", Status: "Not Started", Skill: "start-work"}}
	if _, err := FromConfig(cfg); err == nil {
		t.Fatal("expected error for unresolvable entry_phase")
	}
}

func TestFromConfigRejectsActorAndObserver(t *testing.T) {
	cfg := Config{}
	cfg.Workflow.EntryPhase = "both"
	cfg.Workflow.Phases = []Phase{{Name: "both", Status: "Weird", Skill: "x", Resolver: "y"}}
	if _, err := FromConfig(cfg); err == nil {
		t.Fatal("expected error for phase with both skill and resolver")
	}
}

func TestSkillForStatusAndResolverStatus(t *testing.T) {
	m := mustModel(t)
	if got := m.SkillForStatus("Not Started"); got != "start-work" {
		t.Errorf("SkillForStatus(Not Started) = %q, want start-work", got)
	}
	if !m.IsResolverStatus("PR Created") {
		t.Error("PR Created should be a resolver status")
	}
	if m.IsResolverStatus("Not Started") {
		t.Error("Not Started should not be a resolver status")
	}
}

func TestIsKnownStatus(t *testing.T) {
	m := mustModel(t)
	for _, s := range []string{"Not Started", "In Progress", "Complete", "Skipped", "PR Created"} {
		if !m.IsKnownStatus(s) {
			t.Errorf("IsKnownStatus(%q) = false, want true", s)
		}
	}
	if m.IsKnownStatus("Bogus Status") {
		t.Error("IsKnownStatus(Bogus Status) = true, want false")
	}
}

func TestDefaultAndCronJob(t *testing.T) {
	m := mustModel(t)
	v, ok := m.Default("WORKFLOW_MAX_PARALLEL")
	if !ok || v != "3" {
		t.Errorf("Default(WORKFLOW_MAX_PARALLEL) = (%q, %v), want (3, true)", v, ok)
	}
	job, ok := m.CronJob("mr-comment-poll")
	if !ok || !job.Enabled || job.IntervalSeconds != 300 {
		t.Errorf("CronJob(mr-comment-poll) = %+v, ok=%v", job, ok)
	}
	if _, ok := m.CronJob("mr-chain-manager"); ok {
		t.Error("mr-chain-manager should not be configured in this fixture")
	}
}

func TestKanbanColumnForStatus(t *testing.T) {
	cases := map[string]string{
		"PR Created":   "pr_created",
		"Not-Started":  "not_started",
		"backlog":      "backlog",
	}
	for in, want := range cases {
		if got := KanbanColumnForStatus(in); got != want {
			t.Errorf("KanbanColumnForStatus(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLoadReadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".kanban-workflow.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o644); err != nil {
		t.Fatalf("os.WriteFile: %v", err)
	}
	m, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.EntryPhase().Name != "backlog" {
		t.Errorf("loaded entry phase = %q, want backlog", m.EntryPhase().Name)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
