// Package codehost defines the small capability interface the
// pr-status resolver and the mr-chain-manager cron job use to query
// and mutate pull/merge requests, plus a factory that resolves a
// platform tag to a concrete client or a graceful null object (§9
// Design Notes: "a factory turns a platform tag into the right
// implementation or a null object when no adapter fits").
package codehost

import "context"

// PRStatus is the code host's view of one pull/merge request.
type PRStatus struct {
	Merged                bool
	HasUnresolvedComments bool
	UnresolvedThreadCount int
	State                 string
}

// Client is the capability set every resolver and cron job depends on,
// per §5's Shared Resources / Code-host client entry.
type Client interface {
	GetPRStatus(ctx context.Context, prURL string) (PRStatus, error)
	GetBranchHead(ctx context.Context, branch string) (string, error)
	EditPRBase(ctx context.Context, prNumber int, targetBranch string) error
	MarkPRReady(ctx context.Context, prNumber int) error
}

// Platform tags recognized by New.
const (
	PlatformGitHub = "github"
	PlatformGitLab = "gitlab"
	PlatformNone   = ""
)

// New resolves a platform tag to a concrete Client. An unrecognized or
// empty tag returns the null object rather than an error — callers
// (notably the pr-status resolver) are written to tolerate "no
// adapter" as a graceful no-op.
func New(platform string) Client {
	switch platform {
	case PlatformGitHub:
		return newGitHubClient()
	case PlatformGitLab:
		return newGitLabClient()
	default:
		return nullClient{}
	}
}

// nullClient answers every call with the type's zero value, letting
// callers treat "no adapter configured" the same as "nothing to report".
type nullClient struct{}

func (nullClient) GetPRStatus(ctx context.Context, prURL string) (PRStatus, error) {
	return PRStatus{}, nil
}
func (nullClient) GetBranchHead(ctx context.Context, branch string) (string, error) { return "", nil }
func (nullClient) EditPRBase(ctx context.Context, prNumber int, targetBranch string) error {
	return nil
}
func (nullClient) MarkPRReady(ctx context.Context, prNumber int) error { return nil }
