// Package errs defines the error taxonomy shared across the orchestrator:
// one exported type per failure kind, each carrying enough context to log
// structurally and each distinguishable via errors.As for policy dispatch
// (non-fatal vs. fatal vs. abandon-with-skip).
package errs

import "fmt"

// ParseError wraps a frontmatter/YAML parse failure. Non-fatal at sync:
// the entity is omitted and the error recorded in the sync result.
type ParseError struct {
	Path  string
	Cause error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Path, e.Cause)
}
func (e *ParseError) Unwrap() error { return e.Cause }

// ValidationError covers dependency/shape problems surfaced by validate:
// dangling refs, forbidden edge types, invalid statuses, duplicate
// worktree branches, cycles. Never fatal to sync itself.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

// StoreError wraps a transactional write failure. Fatal: the sync that
// produced it is rolled back and the caller must handle it.
type StoreError struct {
	Op    string
	Cause error
}

func (e *StoreError) Error() string { return fmt.Sprintf("store %s: %v", e.Op, e.Cause) }
func (e *StoreError) Unwrap() error { return e.Cause }

// LockError means the stage's file lock was already held. The action is
// abandoned with a skipped_locked outcome; it is never retried within
// the same tick.
type LockError struct {
	Path string
}

func (e *LockError) Error() string { return fmt.Sprintf("lock held: %s", e.Path) }

// WorktreeError wraps a worktree create/remove failure. The caller
// releases the stage lock, logs, and continues with other stages.
type WorktreeError struct {
	Branch string
	Cause  error
}

func (e *WorktreeError) Error() string {
	return fmt.Sprintf("worktree %s: %v", e.Branch, e.Cause)
}
func (e *WorktreeError) Unwrap() error { return e.Cause }

// SessionError wraps a subprocess spawn/IO failure. Treated like a
// nonzero exit: resources are cleaned up and no exit gate runs.
type SessionError struct {
	StageID string
	Cause   error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("session %s: %v", e.StageID, e.Cause)
}
func (e *SessionError) Unwrap() error { return e.Cause }

// ResolverError wraps a resolver/code-host failure. The resolver returns
// null (no transition) and the loop proceeds.
type ResolverError struct {
	Resolver string
	StageID  string
	Cause    error
}

func (e *ResolverError) Error() string {
	return fmt.Sprintf("resolver %s on %s: %v", e.Resolver, e.StageID, e.Cause)
}
func (e *ResolverError) Unwrap() error { return e.Cause }

// ExitGateError wraps a failure writing an upstream ticket/epic file or
// running the resync inside the exit gate. Logged; syncResult.success
// is set false, but other work continues.
type ExitGateError struct {
	StageID string
	Cause   error
}

func (e *ExitGateError) Error() string {
	return fmt.Sprintf("exit gate %s: %v", e.StageID, e.Cause)
}
func (e *ExitGateError) Unwrap() error { return e.Cause }

// ShutdownError wraps a failure during drain cleanup. Logged only; it
// never blocks process exit.
type ShutdownError struct {
	Cause error
}

func (e *ShutdownError) Error() string { return fmt.Sprintf("shutdown: %v", e.Cause) }
func (e *ShutdownError) Unwrap() error { return e.Cause }
