package syncengine

import "strings"

// depRef is a parsed depends_on entry: either a local ID, or a
// cross-repo reference of the form "<repo-name>:<ID>".
type depRef struct {
	RepoName string // empty for local refs
	ID       string
}

// parseDepRef splits "repoName:ID" from a bare local "ID". The first
// colon is always taken as the cross-repo separator, whatever follows
// it, so repo names themselves can't contain ':'.
func parseDepRef(raw string) depRef {
	if idx := strings.Index(raw, ":"); idx != -1 {
		return depRef{RepoName: raw[:idx], ID: raw[idx+1:]}
	}
	return depRef{ID: raw}
}

func (r depRef) IsCrossRepo() bool { return r.RepoName != "" }
