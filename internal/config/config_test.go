package config

import (
	"testing"

	"github.com/jakekausler/stagework/internal/pipeline"
)

func modelWithDefaults(t *testing.T, defaults map[string]string) *pipeline.Model {
	t.Helper()
	cfg := pipeline.Config{}
	cfg.Workflow.EntryPhase = "backlog"
	cfg.Workflow.Phases = []pipeline.Phase{{Name: "backlog", Status: "Not Started", Skill: "start-work"}}
	cfg.Workflow.Defaults = defaults
	m, err := pipeline.FromConfig(cfg)
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	return m
}

func TestResolveMaxParallelFlagWins(t *testing.T) {
	pm := modelWithDefaults(t, map[string]string{"WORKFLOW_MAX_PARALLEL": "5"})
	t.Setenv("WORKFLOW_MAX_PARALLEL", "7")
	if got := ResolveMaxParallel(3, true, pm); got != 3 {
		t.Errorf("ResolveMaxParallel = %d, want 3 (flag wins)", got)
	}
}

func TestResolveMaxParallelEnvWinsOverPipelineDefault(t *testing.T) {
	pm := modelWithDefaults(t, map[string]string{"WORKFLOW_MAX_PARALLEL": "5"})
	t.Setenv("WORKFLOW_MAX_PARALLEL", "7")
	if got := ResolveMaxParallel(0, false, pm); got != 7 {
		t.Errorf("ResolveMaxParallel = %d, want 7 (env wins over pipeline default)", got)
	}
}

func TestResolveMaxParallelPipelineDefault(t *testing.T) {
	pm := modelWithDefaults(t, map[string]string{"WORKFLOW_MAX_PARALLEL": "5"})
	if got := ResolveMaxParallel(0, false, pm); got != 5 {
		t.Errorf("ResolveMaxParallel = %d, want 5 (pipeline default)", got)
	}
}

func TestResolveMaxParallelBuiltinFallback(t *testing.T) {
	pm := modelWithDefaults(t, nil)
	if got := ResolveMaxParallel(0, false, pm); got != 1 {
		t.Errorf("ResolveMaxParallel = %d, want 1 (built-in default)", got)
	}
}

func TestJiraConfirmRequired(t *testing.T) {
	pm := modelWithDefaults(t, map[string]string{"WORKFLOW_JIRA_CONFIRM": "true"})
	if !JiraConfirmRequired(pm) {
		t.Error("expected true from pipeline default")
	}

	t.Setenv("WORKFLOW_JIRA_CONFIRM", "no")
	if JiraConfirmRequired(pm) {
		t.Error("expected env override (no) to win over pipeline default (true)")
	}
}

func TestWorkflowEnvFiltersPrefix(t *testing.T) {
	t.Setenv("WORKFLOW_MODEL", "opus")
	t.Setenv("UNRELATED_VAR", "x")
	env := WorkflowEnv()
	if env["WORKFLOW_MODEL"] != "opus" {
		t.Errorf("WorkflowEnv()[WORKFLOW_MODEL] = %q, want opus", env["WORKFLOW_MODEL"])
	}
	if _, ok := env["UNRELATED_VAR"]; ok {
		t.Error("WorkflowEnv should not include non-WORKFLOW_ vars")
	}
}

func TestMockServiceEnv(t *testing.T) {
	env := MockServiceEnv([]string{"gitlab", "jira"})
	if env["MOCK_GITLAB"] != "true" || env["MOCK_JIRA"] != "true" {
		t.Errorf("MockServiceEnv = %v, want MOCK_GITLAB/MOCK_JIRA = true", env)
	}
}
