package syncengine

import (
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/jakekausler/stagework/internal/errs"
	"github.com/jakekausler/stagework/internal/workitem"
)

// rawFields is the shape-checked subset of frontmatter keys this engine
// understands; everything else is carried in Unknown and round-tripped
// untouched.
type rawFields struct {
	ID             string   `yaml:"id"`
	Ticket         string   `yaml:"ticket"`
	Epic           string   `yaml:"epic"`
	Title          string   `yaml:"title"`
	Status         string   `yaml:"status"`
	RefinementType []string `yaml:"refinement_type"`
	WorktreeBranch string   `yaml:"worktree_branch"`
	PRURL          string   `yaml:"pr_url"`
	PRNumber       int      `yaml:"pr_number"`
	Priority       int      `yaml:"priority"`
	DueDate        string   `yaml:"due_date"`
	SessionActive  bool     `yaml:"session_active"`
	DependsOn      []string `yaml:"depends_on"`
	MRTargetBranch string   `yaml:"mr_target_branch"`
	RebaseConflict bool     `yaml:"rebase_conflict"`
	JiraKey        string   `yaml:"jira_key"`
	Source         string   `yaml:"source"`
	JiraLinks      []string `yaml:"jira_links"`

	PendingMergeParents []workitem.PendingMergeParent `yaml:"pending_merge_parents"`
	IsDraft             bool                          `yaml:"is_draft"`
}

// decodeStage parses a stage frontmatter YAML blob into a Stage, keeping
// every key the shaped struct doesn't recognize in Unknown.
func decodeStage(yamlText string, filePath string) (workitem.Stage, error) {
	var f rawFields
	if err := yaml.Unmarshal([]byte(yamlText), &f); err != nil {
		return workitem.Stage{}, &errs.ParseError{Path: filePath, Cause: err}
	}

	var node yaml.Node
	if err := yaml.Unmarshal([]byte(yamlText), &node); err != nil {
		return workitem.Stage{}, &errs.ParseError{Path: filePath, Cause: err}
	}
	unknown := unknownKeys(&node, stageKnownKeys)

	return workitem.Stage{
		ID:             f.ID,
		TicketID:       f.Ticket,
		EpicID:         f.Epic,
		Title:          f.Title,
		Status:         f.Status,
		RefinementType: f.RefinementType,
		WorktreeBranch: f.WorktreeBranch,
		PRURL:          f.PRURL,
		PRNumber:       f.PRNumber,
		Priority:       f.Priority,
		DueDate:        f.DueDate,
		SessionActive:  f.SessionActive,
		IsDraft:        f.IsDraft,
		MRTargetBranch: f.MRTargetBranch,
		RebaseConflict: f.RebaseConflict,
		FilePath:       filePath,
		DependsOn:      f.DependsOn,
		Unknown:        unknown,

		PendingMergeParents: f.PendingMergeParents,
	}, nil
}

func decodeTicket(yamlText string, filePath string) (workitem.Ticket, error) {
	var f rawFields
	if err := yaml.Unmarshal([]byte(yamlText), &f); err != nil {
		return workitem.Ticket{}, &errs.ParseError{Path: filePath, Cause: err}
	}
	var node yaml.Node
	if err := yaml.Unmarshal([]byte(yamlText), &node); err != nil {
		return workitem.Ticket{}, &errs.ParseError{Path: filePath, Cause: err}
	}
	unknown := unknownKeys(&node, ticketKnownKeys)

	source := workitem.SourceLocal
	if f.Source == string(workitem.SourceJira) {
		source = workitem.SourceJira
	}

	return workitem.Ticket{
		ID:        f.ID,
		EpicID:    f.Epic,
		Title:     f.Title,
		Status:    f.Status,
		JiraKey:   f.JiraKey,
		Source:    source,
		FilePath:  filePath,
		DependsOn: f.DependsOn,
		JiraLinks: f.JiraLinks,
		Unknown:   unknown,
	}, nil
}

func decodeEpic(yamlText string, filePath string) (workitem.Epic, error) {
	var f rawFields
	if err := yaml.Unmarshal([]byte(yamlText), &f); err != nil {
		return workitem.Epic{}, &errs.ParseError{Path: filePath, Cause: err}
	}
	var node yaml.Node
	if err := yaml.Unmarshal([]byte(yamlText), &node); err != nil {
		return workitem.Epic{}, &errs.ParseError{Path: filePath, Cause: err}
	}
	unknown := unknownKeys(&node, epicKnownKeys)

	return workitem.Epic{
		ID:        f.ID,
		Title:     f.Title,
		Status:    f.Status,
		JiraKey:   f.JiraKey,
		FilePath:  filePath,
		DependsOn: f.DependsOn,
		Unknown:   unknown,
	}, nil
}

var stageKnownKeys = map[string]bool{
	"id": true, "ticket": true, "epic": true, "title": true, "status": true,
	"refinement_type": true, "worktree_branch": true, "pr_url": true,
	"pr_number": true, "priority": true, "due_date": true, "session_active": true,
	"depends_on": true, "pending_merge_parents": true, "is_draft": true,
	"mr_target_branch": true, "rebase_conflict": true,
}

var ticketKnownKeys = map[string]bool{
	"id": true, "epic": true, "title": true, "status": true, "jira_key": true,
	"source": true, "depends_on": true, "jira_links": true,
}

var epicKnownKeys = map[string]bool{
	"id": true, "title": true, "status": true, "jira_key": true, "depends_on": true,
}

// unknownKeys walks a top-level YAML mapping node and returns every
// key/value pair whose key is not in known, decoded to plain Go values.
func unknownKeys(root *yaml.Node, known map[string]bool) map[string]any {
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil
	}
	mapping := root.Content[0]
	if mapping.Kind != yaml.MappingNode {
		return nil
	}
	result := map[string]any{}
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		key := mapping.Content[i].Value
		if known[key] {
			continue
		}
		var v any
		if err := mapping.Content[i+1].Decode(&v); err == nil {
			result[key] = v
		}
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

// encodeStageFrontmatter re-serializes a stage back to YAML, writing
// every known field plus the computed pending_merge_parents/is_draft
// fields, plus every preserved unknown key, in a stable order.
func encodeStageFrontmatter(s workitem.Stage) (string, error) {
	m := yaml.Node{Kind: yaml.MappingNode}
	put := func(key string, value any) {
		keyNode := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}
		valNode := &yaml.Node{}
		if err := valNode.Encode(value); err != nil {
			valNode = &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null"}
		}
		m.Content = append(m.Content, keyNode, valNode)
	}

	put("id", s.ID)
	put("ticket", s.TicketID)
	put("epic", s.EpicID)
	put("title", s.Title)
	put("status", s.Status)
	if len(s.RefinementType) > 0 {
		put("refinement_type", s.RefinementType)
	}
	put("worktree_branch", s.WorktreeBranch)
	if s.PRURL != "" {
		put("pr_url", s.PRURL)
	}
	if s.PRNumber != 0 {
		put("pr_number", s.PRNumber)
	}
	put("priority", s.Priority)
	if s.DueDate != "" {
		put("due_date", s.DueDate)
	}
	put("session_active", s.SessionActive)
	if len(s.DependsOn) > 0 {
		put("depends_on", s.DependsOn)
	}
	put("pending_merge_parents", pendingMergeParentsOrEmpty(s.PendingMergeParents))
	put("is_draft", s.IsDraft)
	if s.MRTargetBranch != "" {
		put("mr_target_branch", s.MRTargetBranch)
	}
	if s.RebaseConflict {
		put("rebase_conflict", s.RebaseConflict)
	}
	keys := make([]string, 0, len(s.Unknown))
	for k := range s.Unknown {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		put(k, s.Unknown[k])
	}

	doc := yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{&m}}
	out, err := yaml.Marshal(&doc)
	if err != nil {
		return "", fmt.Errorf("encoding frontmatter for %s: %w", s.ID, err)
	}
	return string(out), nil
}

// ReadStatusField reads just the "status" key out of a frontmatter YAML
// blob, for callers (the lock registry's ReadStatus) that must not
// parse or rewrite the rest of the document.
func ReadStatusField(yamlText string) (string, error) {
	var f struct {
		Status string `yaml:"status"`
	}
	if err := yaml.Unmarshal([]byte(yamlText), &f); err != nil {
		return "", fmt.Errorf("ReadStatusField: %w", err)
	}
	return f.Status, nil
}

func pendingMergeParentsOrEmpty(parents []workitem.PendingMergeParent) []workitem.PendingMergeParent {
	if parents == nil {
		return []workitem.PendingMergeParent{}
	}
	return parents
}

// setStatusField rewrites (or inserts) the "status" key in a YAML
// mapping while leaving every other key, value, comment, and ordering
// untouched — used for the narrow single-field rewrites (onboarding,
// resolver writes, exit-gate ticket/epic propagation) that must not
// disturb the rest of a file's frontmatter.
func setStatusField(yamlText string, newStatus string) (string, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(yamlText), &doc); err != nil {
		return "", fmt.Errorf("setStatusField: %w", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		doc = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode}}}
	}
	mapping := doc.Content[0]
	if mapping.Kind != yaml.MappingNode {
		mapping.Kind = yaml.MappingNode
		mapping.Content = nil
	}

	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == "status" {
			mapping.Content[i+1].SetString(newStatus)
			out, err := yaml.Marshal(&doc)
			return string(out), err
		}
	}

	keyNode := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: "status"}
	valNode := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: newStatus}
	mapping.Content = append(mapping.Content, keyNode, valNode)
	out, err := yaml.Marshal(&doc)
	return string(out), err
}
