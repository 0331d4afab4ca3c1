// Package lock implements the per-stage-file exclusive lock registry
// described in §4.E.4: advisory within this process, acquired before
// any actor (worker spawn, resolver write, rebase spawn, exit gate)
// touches a stage file, and released on every code path.
package lock

import (
	"os"
	"sync"

	"github.com/jakekausler/stagework/internal/errs"
	"github.com/jakekausler/stagework/internal/frontmatter"
	"github.com/jakekausler/stagework/internal/syncengine"
)

// Registry tracks which stage file paths are currently held.
type Registry struct {
	mu     sync.Mutex
	holder map[string]string // path -> owner label, for diagnostics
}

func NewRegistry() *Registry {
	return &Registry{holder: map[string]string{}}
}

// Acquire takes the exclusive lock on path, tagged with owner for
// diagnostics. Returns a LockError if already held.
func (r *Registry) Acquire(path, owner string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, held := r.holder[path]; held {
		return &errs.LockError{Path: path}
	}
	r.holder[path] = owner
	return nil
}

// Release frees path. Safe to call even if not held (idempotent), so
// every cleanup path can call it unconditionally.
func (r *Registry) Release(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.holder, path)
}

// IsLocked reports whether path is currently held, without acquiring
// it — used by R2 (race-freedom contract, §4.E.7) before any spawn.
func (r *Registry) IsLocked(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, held := r.holder[path]
	return held
}

// ReadStatus reads just the `status` frontmatter field of path without
// acquiring the lock and without otherwise modifying the file.
func ReadStatus(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	data, _, err := frontmatter.Split(string(raw))
	if err != nil {
		return "", err
	}
	return syncengine.ReadStatusField(data)
}
