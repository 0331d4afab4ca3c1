package exitgate

import (
	"context"

	"github.com/jakekausler/stagework/internal/codehost"
	"github.com/jakekausler/stagework/internal/errs"
	"github.com/jakekausler/stagework/internal/workitem"
)

// Resolver is a named, pluggable observer bound to a pipeline phase
// (§4.F.2). It returns the new status, or "" for no transition.
type Resolver interface {
	Name() string
	Resolve(ctx context.Context, stage workitem.Stage) (newStatus string, err error)
}

// Registry runs every registered resolver, in registration order
// (§9's decision: registration order, not sorted, since pr-status is
// the only built-in and no priority scheme is needed yet).
type Registry struct {
	resolvers []Resolver
}

func NewRegistry() *Registry {
	return &Registry{}
}

func (r *Registry) Register(res Resolver) {
	r.resolvers = append(r.resolvers, res)
}

// Run applies every resolver to stage and returns the first non-empty
// status produced, or "" if none fired. A resolver error is wrapped
// as a ResolverError and treated as a no-op (graceful, per §4.F.2).
func (r *Registry) Run(ctx context.Context, stage workitem.Stage) (string, error) {
	for _, res := range r.resolvers {
		status, err := res.Resolve(ctx, stage)
		if err != nil {
			return "", &errs.ResolverError{Resolver: res.Name(), StageID: stage.ID, Cause: err}
		}
		if status != "" {
			return status, nil
		}
	}
	return "", nil
}

// prStatusResolver implements the core pr-status resolver (§4.F.2):
// merged -> Complete (the reserved terminal status, so hard-resolution
// and the exit gate's upward propagation both fire), unresolved
// comments -> Addressing Comments, else no transition. A null code-host
// client makes every call return "" (the null object already returns
// zero-value PRStatus with no error).
type prStatusResolver struct {
	client codehost.Client
}

func NewPRStatusResolver(client codehost.Client) Resolver {
	return &prStatusResolver{client: client}
}

func (r *prStatusResolver) Name() string { return "pr-status" }

func (r *prStatusResolver) Resolve(ctx context.Context, stage workitem.Stage) (string, error) {
	if stage.PRURL == "" {
		return "", nil
	}
	status, err := r.client.GetPRStatus(ctx, stage.PRURL)
	if err != nil {
		return "", err
	}
	switch {
	case status.Merged:
		return workitem.StatusComplete, nil
	case status.HasUnresolvedComments:
		return workitem.StatusAddressingComment, nil
	default:
		return "", nil
	}
}
