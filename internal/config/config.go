// Package config resolves the orchestrator's runtime settings from CLI
// flags, the WORKFLOW_ environment surface, and the pipeline config's
// own defaults, in that precedence order, following the teacher's
// flat flag.String/flag.Int style in cmd/factory/main.go.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jakekausler/stagework/internal/orchestrator"
	"github.com/jakekausler/stagework/internal/pipeline"
)

// envPrefix is the only environment namespace the orchestrator reads
// from or forwards into worker sessions (§6's Env surface).
const envPrefix = "WORKFLOW_"

// WorkflowEnv collects every WORKFLOW_-prefixed environment variable
// for verbatim forwarding into worker subprocesses.
func WorkflowEnv() map[string]string {
	out := map[string]string{}
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(k, envPrefix) {
			continue
		}
		out[k] = v
	}
	return out
}

// ResolveMaxParallel applies the flag > env > pipeline-default > built-in
// precedence for WORKFLOW_MAX_PARALLEL. flagValue is the value parsed
// from the CLI flag and flagSet reports whether the user actually
// passed it; a flag value of zero or less counts as unset and falls
// through to the next source.
func ResolveMaxParallel(flagValue int, flagSet bool, pm *pipeline.Model) int {
	if flagSet && flagValue > 0 {
		return flagValue
	}
	if v, ok := os.LookupEnv(envPrefix + "MAX_PARALLEL"); ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	if pm != nil {
		if v, ok := pm.Default(envPrefix + "MAX_PARALLEL"); ok {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				return n
			}
		}
	}
	return 1
}

// JiraConfirmRequired reports whether WORKFLOW_JIRA_CONFIRM resolves
// truthy, gating the jira-import thin wrapper's destructive writes.
func JiraConfirmRequired(pm *pipeline.Model) bool {
	if v, ok := os.LookupEnv(envPrefix + "JIRA_CONFIRM"); ok {
		return isTruthy(v)
	}
	if pm != nil {
		if v, ok := pm.Default(envPrefix + "JIRA_CONFIRM"); ok {
			return isTruthy(v)
		}
	}
	return false
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// MockServiceEnv builds the MOCK_<SERVICE>=true pairs for mock-mode
// selective runs, merged into a worker's forwarded environment.
func MockServiceEnv(services []string) map[string]string {
	out := map[string]string{}
	for _, svc := range services {
		out["MOCK_"+strings.ToUpper(svc)] = "true"
	}
	return out
}

// RunConfig is the fully-resolved shape the orchestrator's Loop is
// built from, after flag/env/pipeline-default precedence is applied.
type RunConfig struct {
	RepoPath     string
	MaxParallel  int
	IdleSeconds  int
	LogDir       string
	Model        string
	Verbose      bool
	Once         bool
	MockMode     orchestrator.MockMode
	DrainTimeout time.Duration
	KillTimeout  time.Duration
}

// ToLoopConfig adapts a resolved RunConfig into orchestrator.Config,
// merging the WORKFLOW_ environment surface for session forwarding.
func (c RunConfig) ToLoopConfig() orchestrator.Config {
	return orchestrator.Config{
		RepoPath:     c.RepoPath,
		MaxParallel:  c.MaxParallel,
		IdleSeconds:  c.IdleSeconds,
		LogDir:       c.LogDir,
		Model:        c.Model,
		Verbose:      c.Verbose,
		Once:         c.Once,
		WorkflowEnv:  WorkflowEnv(),
		MockMode:     c.MockMode,
		DrainTimeout: c.DrainTimeout,
		KillTimeout:  c.KillTimeout,
	}
}
