// Package pipeline parses the on-disk workflow configuration into a
// state machine: a flat list of phases, exactly one of them the entry
// phase, each either an actor phase (has a skill) or an observer phase
// (has a resolver).
package pipeline

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jakekausler/stagework/internal/workitem"
)

// Load reads and parses the on-disk pipeline config at path (normally
// <repo>/.kanban-workflow.yaml) into a built Model.
func Load(path string) (*Model, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("pipeline: reading %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("pipeline: parsing %s: %w", path, err)
	}
	return FromConfig(cfg)
}

// Phase is one named state in the workflow.
type Phase struct {
	Name           string   `yaml:"name"`
	Status         string   `yaml:"status"`
	Skill          string   `yaml:"skill,omitempty"`
	Resolver       string   `yaml:"resolver,omitempty"`
	TransitionsTo  []string `yaml:"transitions_to,omitempty"`
}

// IsActor reports whether a worker session advances this phase.
func (p Phase) IsActor() bool { return p.Skill != "" }

// IsObserver reports whether a named resolver advances this phase
// autonomously, without spawning a session.
func (p Phase) IsObserver() bool { return p.Resolver != "" }

// CronJobConfig describes one periodic job's enablement and period.
type CronJobConfig struct {
	Enabled        bool `yaml:"enabled"`
	IntervalSeconds int `yaml:"interval_seconds"`
}

// Config is the raw shape of .kanban-workflow.yaml.
type Config struct {
	Workflow struct {
		EntryPhase string            `yaml:"entry_phase"`
		Phases     []Phase           `yaml:"phases"`
		Defaults   map[string]string `yaml:"defaults"`
	} `yaml:"workflow"`
	Cron map[string]CronJobConfig `yaml:"cron"`
}

// Model is the built state machine: phases, indexed by status and by
// name, with the entry phase resolved.
type Model struct {
	phases     []Phase
	byStatus   map[string]Phase
	byName     map[string]Phase
	entryPhase Phase
	defaults   map[string]string
	cron       map[string]CronJobConfig
}

// reservedStatuses are always valid regardless of configured phases.
var reservedStatuses = map[string]bool{
	workitem.StatusNotStarted: true,
	workitem.StatusInProgress: true,
	workitem.StatusComplete:   true,
	workitem.StatusSkipped:    true,
}

// FromConfig builds the state machine from a parsed Config.
func FromConfig(cfg Config) (*Model, error) {
	if len(cfg.Workflow.Phases) == 0 {
		return nil, fmt.Errorf("pipeline: no phases configured")
	}
	m := &Model{
		byStatus: make(map[string]Phase, len(cfg.Workflow.Phases)),
		byName:   make(map[string]Phase, len(cfg.Workflow.Phases)),
		defaults: cfg.Workflow.Defaults,
		cron:     cfg.Cron,
	}
	for _, p := range cfg.Workflow.Phases {
		if p.IsActor() && p.IsObserver() {
			return nil, fmt.Errorf("pipeline: phase %q has both a skill and a resolver", p.Name)
		}
		m.phases = append(m.phases, p)
		m.byStatus[p.Status] = p
		m.byName[p.Name] = p
	}
	entry, ok := m.byName[cfg.Workflow.EntryPhase]
	if !ok {
		return nil, fmt.Errorf("pipeline: entry_phase %q not found among phases", cfg.Workflow.EntryPhase)
	}
	m.entryPhase = entry
	return m, nil
}

// GetAllStates returns every configured phase.
func (m *Model) GetAllStates() []Phase { return m.phases }

// GetAllStatuses returns the status string of every phase.
func (m *Model) GetAllStatuses() []string {
	out := make([]string, len(m.phases))
	for i, p := range m.phases {
		out[i] = p.Status
	}
	return out
}

// EntryPhase returns the designated entry phase.
func (m *Model) EntryPhase() Phase { return m.entryPhase }

// SkillForStatus returns the skill bound to a status, or "" if the
// status has no actor phase (including reserved and resolver statuses).
func (m *Model) SkillForStatus(status string) string {
	if p, ok := m.byStatus[status]; ok {
		return p.Skill
	}
	return ""
}

// IsResolverStatus reports whether a status maps to an observer phase.
func (m *Model) IsResolverStatus(status string) bool {
	p, ok := m.byStatus[status]
	return ok && p.IsObserver()
}

// IsKnownStatus reports whether a status is either reserved or mapped to
// a configured phase.
func (m *Model) IsKnownStatus(status string) bool {
	if reservedStatuses[status] {
		return true
	}
	_, ok := m.byStatus[status]
	return ok
}

// PhaseForStatus returns the phase bound to status, if any.
func (m *Model) PhaseForStatus(status string) (Phase, bool) {
	p, ok := m.byStatus[status]
	return p, ok
}

// Default looks up a workflow-level default (e.g. WORKFLOW_MAX_PARALLEL).
func (m *Model) Default(key string) (string, bool) {
	v, ok := m.defaults[key]
	return v, ok
}

// CronJob looks up a cron job's config by name.
func (m *Model) CronJob(name string) (CronJobConfig, bool) {
	c, ok := m.cron[name]
	return c, ok
}

// KanbanColumnForStatus snake-cases a pipeline phase's status into its
// column name, e.g. "PR Created" -> "pr_created". Reserved statuses map
// to their own fixed columns by the caller (sync engine), not here.
func KanbanColumnForStatus(status string) string {
	lower := strings.ToLower(status)
	lower = strings.ReplaceAll(lower, " ", "_")
	lower = strings.ReplaceAll(lower, "-", "_")
	return lower
}
