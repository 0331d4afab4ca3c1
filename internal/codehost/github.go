package codehost

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// githubClient shells out to the `gh` CLI, following the teacher's
// pattern of wrapping a host CLI rather than a REST SDK.
type githubClient struct{}

func newGitHubClient() Client { return githubClient{} }

func (githubClient) GetPRStatus(ctx context.Context, prURL string) (PRStatus, error) {
	out, err := exec.CommandContext(ctx, "gh", "pr", "view", prURL,
		"--json", "state,mergedAt,reviewDecision,reviewThreads").Output()
	if err != nil {
		return PRStatus{}, fmt.Errorf("gh pr view %s: %w", prURL, err)
	}

	var parsed struct {
		State    string `json:"state"`
		MergedAt string `json:"mergedAt"`
		Threads  []struct {
			IsResolved bool `json:"isResolved"`
		} `json:"reviewThreads"`
	}
	if err := json.Unmarshal(out, &parsed); err != nil {
		return PRStatus{}, fmt.Errorf("parsing gh pr view output: %w", err)
	}

	unresolved := 0
	for _, t := range parsed.Threads {
		if !t.IsResolved {
			unresolved++
		}
	}

	return PRStatus{
		Merged:                parsed.MergedAt != "",
		HasUnresolvedComments: unresolved > 0,
		UnresolvedThreadCount: unresolved,
		State:                 parsed.State,
	}, nil
}

func (githubClient) GetBranchHead(ctx context.Context, branch string) (string, error) {
	out, err := exec.CommandContext(ctx, "gh", "api", "repos/:owner/:repo/git/ref/heads/"+branch,
		"--jq", ".object.sha").Output()
	if err != nil {
		return "", fmt.Errorf("gh api ref heads/%s: %w", branch, err)
	}
	return strings.TrimSpace(string(out)), nil
}

func (githubClient) EditPRBase(ctx context.Context, prNumber int, targetBranch string) error {
	out, err := exec.CommandContext(ctx, "gh", "pr", "edit", strconv.Itoa(prNumber), "--base", targetBranch).CombinedOutput()
	if err != nil {
		return fmt.Errorf("gh pr edit %d: %s: %w", prNumber, string(out), err)
	}
	return nil
}

func (githubClient) MarkPRReady(ctx context.Context, prNumber int) error {
	out, err := exec.CommandContext(ctx, "gh", "pr", "ready", strconv.Itoa(prNumber)).CombinedOutput()
	if err != nil {
		return fmt.Errorf("gh pr ready %d: %s: %w", prNumber, string(out), err)
	}
	return nil
}
