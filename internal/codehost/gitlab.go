package codehost

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// gitlabClient shells out to the `glab` CLI.
type gitlabClient struct{}

func newGitLabClient() Client { return gitlabClient{} }

func (gitlabClient) GetPRStatus(ctx context.Context, prURL string) (PRStatus, error) {
	out, err := exec.CommandContext(ctx, "glab", "mr", "view", prURL, "-F", "json").Output()
	if err != nil {
		return PRStatus{}, fmt.Errorf("glab mr view %s: %w", prURL, err)
	}

	var parsed struct {
		State              string `json:"state"`
		MergedAt           string `json:"merged_at"`
		UnresolvedDiscCount int   `json:"blocking_discussions_resolved_count"`
		HasConflicts       bool   `json:"has_conflicts"`
	}
	if err := json.Unmarshal(out, &parsed); err != nil {
		return PRStatus{}, fmt.Errorf("parsing glab mr view output: %w", err)
	}

	return PRStatus{
		Merged:                parsed.State == "merged" || parsed.MergedAt != "",
		HasUnresolvedComments: parsed.UnresolvedDiscCount > 0,
		UnresolvedThreadCount: parsed.UnresolvedDiscCount,
		State:                 parsed.State,
	}, nil
}

func (gitlabClient) GetBranchHead(ctx context.Context, branch string) (string, error) {
	out, err := exec.CommandContext(ctx, "glab", "api", "repository/branches/"+branch, "--jq", ".commit.id").Output()
	if err != nil {
		return "", fmt.Errorf("glab api branches/%s: %w", branch, err)
	}
	return strings.TrimSpace(string(out)), nil
}

func (gitlabClient) EditPRBase(ctx context.Context, prNumber int, targetBranch string) error {
	out, err := exec.CommandContext(ctx, "glab", "mr", "update", strconv.Itoa(prNumber), "--target-branch", targetBranch).CombinedOutput()
	if err != nil {
		return fmt.Errorf("glab mr update %d: %s: %w", prNumber, string(out), err)
	}
	return nil
}

func (gitlabClient) MarkPRReady(ctx context.Context, prNumber int) error {
	out, err := exec.CommandContext(ctx, "glab", "mr", "update", strconv.Itoa(prNumber), "--ready").CombinedOutput()
	if err != nil {
		return fmt.Errorf("glab mr update %d: %s: %w", prNumber, string(out), err)
	}
	return nil
}
