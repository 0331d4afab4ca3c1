// Package workitem defines the epic/ticket/stage hierarchy that the
// orchestrator reads from and writes back to disk.
package workitem

import "strings"

// Kind identifies which level of the hierarchy an entity occupies.
type Kind string

const (
	KindEpic   Kind = "epic"
	KindTicket Kind = "ticket"
	KindStage  Kind = "stage"
)

const (
	epicPrefix   = "EPIC-"
	ticketPrefix = "TICKET-"
	stagePrefix  = "STAGE-"
)

// KindOf derives an entity's Kind from its ID prefix. Entity type is
// always recoverable from the ID alone; this is relied on throughout
// dependency validation and resolution.
func KindOf(id string) (Kind, bool) {
	switch {
	case strings.HasPrefix(id, epicPrefix):
		return KindEpic, true
	case strings.HasPrefix(id, ticketPrefix):
		return KindTicket, true
	case strings.HasPrefix(id, stagePrefix):
		return KindStage, true
	default:
		return "", false
	}
}

// Reserved statuses valid in every pipeline regardless of configured phases.
const (
	StatusNotStarted = "Not Started"
	StatusInProgress = "In Progress"
	StatusComplete   = "Complete"
	StatusSkipped    = "Skipped"
)

// Statuses that make a stage soft-resolvable as a dependency target.
const (
	StatusPRCreated         = "PR Created"
	StatusAddressingComment = "Addressing Comments"
)

// Kanban columns. Most others are the snake-cased name of a pipeline phase.
const (
	ColumnToConvert    = "to_convert"
	ColumnBacklog      = "backlog"
	ColumnReadyForWork = "ready_for_work"
	ColumnDone         = "done"
)

// Epic is the root of the hierarchy; it owns zero or more Tickets.
type Epic struct {
	ID         string
	Title      string
	Status     string
	JiraKey    string
	FilePath   string
	DependsOn  []string
	RepoID     int64
	Unknown    map[string]any // preserved but unrecognized frontmatter keys
}

// TicketSource distinguishes tickets authored locally from ones imported
// from an external tracker.
type TicketSource string

const (
	SourceLocal TicketSource = "local"
	SourceJira  TicketSource = "jira"
)

// Ticket sits between Epic and Stage; it owns zero or more Stages.
type Ticket struct {
	ID        string
	EpicID    string
	Title     string
	Status    string
	JiraKey   string
	Source    TicketSource
	HasStages bool
	FilePath  string
	DependsOn []string
	JiraLinks []string
	RepoID    int64
	Unknown   map[string]any
}

// PendingMergeParent is a computed reference to a soft-resolved parent
// stage whose PR has not yet merged.
type PendingMergeParent struct {
	StageID   string `yaml:"stage_id"`
	Branch    string `yaml:"branch"`
	PRURL     string `yaml:"pr_url"`
	PRNumber  int    `yaml:"pr_number"`
}

// Stage is the leaf of the hierarchy: the unit a worker session executes.
type Stage struct {
	ID                  string
	TicketID            string
	EpicID              string
	Title               string
	Status              string
	RefinementType      []string
	WorktreeBranch      string
	PRURL               string
	PRNumber            int
	Priority            int
	DueDate             string // ISO date, empty if unset
	SessionActive       bool
	IsDraft             bool
	PendingMergeParents []PendingMergeParent
	MRTargetBranch      string
	RebaseConflict      bool
	FilePath            string
	DependsOn           []string
	RepoID              int64
	KanbanColumn        string // computed, not persisted in frontmatter
	Unknown             map[string]any
}

// Dependency is a directed edge from one entity to another.
type Dependency struct {
	FromID         string
	ToID           string
	FromType       Kind
	ToType         Kind
	Resolved       bool
	TargetRepoName string // non-empty for cross-repo deps
	RepoID         int64
}

// Repo registers a repository root for cross-repo dependency resolution.
type Repo struct {
	ID            int64
	Path          string
	Name          string
	SlackWebhook  string
}

// ParentBranchTracking feeds the mr-chain-manager cron job: one row per
// child stage whose worktree branch targets a parent stage's branch.
type ParentBranchTracking struct {
	ChildStageID   string
	ParentStageID  string
	ParentBranch   string
	ParentPRURL    string
	LastKnownHead  string
	IsMerged       bool
	RepoID         int64
	LastChecked    string // RFC3339
}

// MrCommentTracking feeds the mr-comment-poll cron job.
type MrCommentTracking struct {
	StageID                string
	LastPollTimestamp      string // RFC3339
	LastKnownUnresolvedCnt int
	RepoID                 int64
}

// ValidDependencyEdge enforces the type rules from the data model:
// Epic→Epic; Ticket→{Ticket,Epic}; Stage→{Stage,Ticket,Epic}.
// Epic→Ticket, Epic→Stage, and Ticket→Stage are forbidden.
func ValidDependencyEdge(from, to Kind) bool {
	switch from {
	case KindEpic:
		return to == KindEpic
	case KindTicket:
		return to == KindTicket || to == KindEpic
	case KindStage:
		return to == KindStage || to == KindTicket || to == KindEpic
	default:
		return false
	}
}

// IsCompleteStatus reports whether target status alone indicates Complete
// for a stage target. Ticket/epic hard-resolution additionally requires
// the whole subtree, computed by the caller (it needs sibling data).
func IsCompleteStatus(status string) bool {
	return status == StatusComplete
}

// IsSoftResolvableStatus reports whether a stage status makes it a valid
// soft-resolution target for a stage→stage dependency.
func IsSoftResolvableStatus(status string) bool {
	return status == StatusPRCreated || status == StatusAddressingComment
}
