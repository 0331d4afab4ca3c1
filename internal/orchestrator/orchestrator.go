// Package orchestrator implements §4.E: the bounded-parallelism
// cooperative scheduler that discovers ready stages, spawns isolated
// worker subprocesses against git worktrees, and runs the exit gate on
// every transition, adapted from the teacher's ticker-driven cycle loop
// into a worker-exit-driven scheduler with a bounded worktree pool.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/jakekausler/stagework/internal/discovery"
	"github.com/jakekausler/stagework/internal/exitgate"
	"github.com/jakekausler/stagework/internal/lock"
	"github.com/jakekausler/stagework/internal/pipeline"
	"github.com/jakekausler/stagework/internal/session"
	"github.com/jakekausler/stagework/internal/store"
	"github.com/jakekausler/stagework/internal/syncengine"
	"github.com/jakekausler/stagework/internal/workitem"
	"github.com/jakekausler/stagework/internal/worktree"
)

// MockMode controls how much of the session is faked for dry runs.
type MockMode string

const (
	MockNone      MockMode = "none"
	MockSelective MockMode = "selective"
	MockFull      MockMode = "full"
)

// Config is §4.E.1's configuration shape.
type Config struct {
	RepoPath       string
	MaxParallel    int
	IdleSeconds    int
	LogDir         string
	Model          string
	Verbose        bool
	Once           bool
	WorkflowEnv    map[string]string
	MockMode       MockMode
	DrainTimeout   time.Duration
	KillTimeout    time.Duration
}

func (c Config) drainTimeout() time.Duration {
	if c.DrainTimeout > 0 {
		return c.DrainTimeout
	}
	return 60 * time.Second
}

func (c Config) killTimeout() time.Duration {
	if c.KillTimeout > 0 {
		return c.KillTimeout
	}
	return 5 * time.Second
}

// workerInfo tracks one in-flight spawn, per §4.E.3.h.
type workerInfo struct {
	stageID       string
	stageFilePath string
	worktreePath  string
	worktreeIndex int
	statusBefore  string
	startTime     time.Time
}

// Loop is the single-threaded cooperative scheduler described in §4.E.
type Loop struct {
	cfg       Config
	store     *store.Store
	engine    *syncengine.Engine
	pm        *pipeline.Model
	gate      *exitgate.Gate
	resolvers *exitgate.Registry
	locks     *lock.Registry
	wt        worktreeAllocator
	runner    *session.Runner
	logger    *slog.Logger

	mu            sync.Mutex
	active        map[int]workerInfo // worktree index -> info
	workerExited  chan struct{}
	running       bool
	idleSleepStop chan struct{}
	repoID        int64
	started       bool
	drained       chan struct{} // closed once Run has fully drained and returned

	wg sync.WaitGroup
}

// worktreeAllocator is the minimal surface the loop needs from
// internal/worktree.Manager, declared locally so the loop depends only
// on the shape it uses (keeps the two packages loosely coupled; tests
// can substitute a fake pool).
type worktreeAllocator interface {
	Acquire(branch string) (worktree.Handle, error)
	Release(h worktree.Handle) error
	ReleaseAll() []error
}

// New builds a Loop. The caller supplies the worktree allocator so
// tests can substitute a fake pool.
func New(cfg Config, st *store.Store, engine *syncengine.Engine, pm *pipeline.Model, gate *exitgate.Gate, resolvers *exitgate.Registry, locks *lock.Registry, wt worktreeAllocator, runner *session.Runner, logger *slog.Logger) *Loop {
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = 1
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return &Loop{
		cfg:          cfg,
		store:        st,
		engine:       engine,
		pm:           pm,
		gate:         gate,
		resolvers:    resolvers,
		locks:        locks,
		wt:           wt,
		runner:       runner,
		logger:       logger,
		active:       map[int]workerInfo{},
		workerExited: make(chan struct{}, cfg.MaxParallel+1),
		drained:      make(chan struct{}),
	}
}

// Run executes the scheduler until Stop is called (or, with Once, until
// one pass drains). It implements §4.E.3's per-tick algorithm. Run does
// not return until any shutdown drain it triggers has fully completed,
// so a caller that waits on Run (or on Stop, per its doc) can safely
// exit the process afterward.
func (l *Loop) Run(ctx context.Context) error {
	l.mu.Lock()
	l.running = true
	l.started = true
	l.mu.Unlock()
	defer close(l.drained)

	repo, found, err := l.store.FirstRepo(ctx)
	if err != nil {
		return fmt.Errorf("orchestrator: loading repo: %w", err)
	}
	if !found {
		return fmt.Errorf("orchestrator: no repo registered; run sync first")
	}
	l.repoID = repo.ID

	for l.isRunning() {
		if _, err := l.engine.Sync(ctx, l.cfg.RepoPath, l.pm); err != nil {
			l.logger.Error("resolver sync pass failed", "error", err)
		}
		l.runResolvers(ctx, repo.ID)

		if l.availableSlots() == 0 {
			l.waitForWorkerExit(ctx)
			continue
		}

		disc, err := discovery.Discover(ctx, l.store, repo.ID, l.pm, l.availableSlots(), time.Now())
		if err != nil {
			l.logger.Error("discovery failed", "error", err)
			l.sleepIdle(ctx)
			continue
		}

		spawned := l.spawnCandidates(ctx, disc.Ready)

		if spawned == 0 && l.activeCount() == 0 {
			if l.cfg.Once {
				return nil
			}
			l.sleepIdle(ctx)
			continue
		}

		if l.cfg.Once {
			l.drainAll(l.cfg.drainTimeout(), l.cfg.killTimeout())
			return nil
		}

		if spawned == 0 && l.activeCount() > 0 {
			l.waitForWorkerExit(ctx)
		}
	}

	// The loop exited because Stop() flipped running false; drain here,
	// on Run's own goroutine, so Stop (and anything waiting on l.drained)
	// only unblocks once the drain has actually finished.
	l.drainAll(l.cfg.drainTimeout(), l.cfg.killTimeout())
	return nil
}

// Stop requests a graceful shutdown, per §5's Cancellation & timeouts,
// and blocks until Run has finished draining (or, if Run never started
// or already returned, returns immediately).
func (l *Loop) Stop() {
	l.mu.Lock()
	started := l.started
	l.running = false
	l.mu.Unlock()
	l.wakeIdleSleep()
	l.wakeWorkerExit()
	if !started {
		return
	}
	<-l.drained
}

func (l *Loop) isRunning() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

func (l *Loop) availableSlots() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cfg.MaxParallel - len(l.active)
}

func (l *Loop) activeCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.active)
}

// spawnCandidates implements §4.E.3 steps 4a-4i for as many candidates
// as slots allow, returning the count actually spawned.
func (l *Loop) spawnCandidates(ctx context.Context, candidates []discovery.Candidate) int {
	spawned := 0
	for _, c := range candidates {
		if !l.isRunning() || l.availableSlots() == 0 {
			break
		}
		if l.trySpawn(ctx, c.Stage) {
			spawned++
		}
	}
	return spawned
}

func (l *Loop) trySpawn(ctx context.Context, st workitem.Stage) bool {
	path := st.FilePath
	if path == "" {
		path = filepath.Join(l.cfg.RepoPath, "epics", st.EpicID, st.TicketID, st.ID+".md")
	}

	if l.locks.IsLocked(path) {
		l.logger.Debug("skipped_locked", "stage", st.ID)
		return false
	}
	if err := l.locks.Acquire(path, "worker:"+st.ID); err != nil {
		l.logger.Debug("skipped_locked", "stage", st.ID)
		return false
	}
	release := true
	defer func() {
		if release {
			l.locks.Release(path)
		}
	}()

	currentStatus, err := lock.ReadStatus(path)
	if err != nil {
		l.logger.Warn("failed reading stage status", "stage", st.ID, "error", err)
		return false
	}

	statusBefore := currentStatus
	if currentStatus == workitem.StatusNotStarted {
		entry := l.pm.EntryPhase()
		if entry.Status != "" {
			if err := syncengine.WriteBackStageStatus(st, entry.Status); err != nil {
				l.logger.Warn("onboarding write-back failed", "stage", st.ID, "error", err)
				return false
			}
			statusBefore = entry.Status
		}
	}

	if l.pm.IsResolverStatus(statusBefore) {
		return false // resolvers own this phase, not a session spawn
	}

	skill := l.pm.SkillForStatus(statusBefore)
	if skill == "" {
		return false
	}

	handle, err := l.wt.Acquire(st.WorktreeBranch)
	if err != nil {
		l.logger.Warn("worktree allocation failed", "stage", st.ID, "error", err)
		return false
	}

	logger, err := newSessionLogger(l.cfg.LogDir, st.ID)
	if err != nil {
		l.logger.Warn("session logger creation failed", "stage", st.ID, "error", err)
		_ = l.wt.Release(handle)
		return false
	}

	if err := l.store.UpdateSessionActive(ctx, l.repoID, st.ID, true); err != nil {
		l.logger.Warn("setting session_active failed", "stage", st.ID, "error", err)
	}

	info := workerInfo{
		stageID:       st.ID,
		stageFilePath: path,
		worktreePath:  handle.Path,
		worktreeIndex: handle.Index,
		statusBefore:  statusBefore,
		startTime:     time.Now(),
	}
	l.mu.Lock()
	l.active[handle.Index] = info
	l.mu.Unlock()

	release = false // the worker goroutine now owns the lock release

	l.wg.Add(1)
	go l.runWorker(ctx, st, handle, skill, info, logger)

	return true
}

func (l *Loop) runWorker(ctx context.Context, st workitem.Stage, handle worktree.Handle, skill string, info workerInfo, logger session.Logger) {
	defer l.wg.Done()
	defer logger.Close()

	params := session.Params{
		StageID:       st.ID,
		StageFilePath: info.stageFilePath,
		SkillName:     skill,
		WorktreePath:  handle.Path,
		WorktreeIndex: handle.Index,
		Model:         l.cfg.Model,
		WorkflowEnv:   l.cfg.WorkflowEnv,
	}

	result, err := l.runner.Spawn(ctx, params, logger)
	if err != nil {
		l.logger.Error("session error", "stage", st.ID, "error", err)
	}

	l.onWorkerExit(ctx, st, info, handle, result)
}

// onWorkerExit implements §4.E.5: classify, exit-gate, cleanup.
func (l *Loop) onWorkerExit(ctx context.Context, st workitem.Stage, info workerInfo, handle worktree.Handle, result session.Result) {
	statusAfter, err := lock.ReadStatus(info.stageFilePath)
	if err != nil {
		l.logger.Warn("failed reading post-run status", "stage", st.ID, "error", err)
		statusAfter = info.statusBefore
	}

	switch {
	case statusAfter == info.statusBefore && result.ExitCode != 0:
		l.logger.Warn("worker crashed", "stage", st.ID, "exit_code", result.ExitCode)
	case statusAfter == info.statusBefore:
		l.logger.Info("worker no-op", "stage", st.ID)
	default:
		outcome, err := l.gate.Run(ctx, l.cfg.RepoPath, l.pm, l.repoID, st.ID, info.statusBefore, statusAfter)
		if err != nil {
			l.logger.Error("exit gate failed", "stage", st.ID, "error", err)
		} else {
			l.logger.Info("exit gate ran", "stage", st.ID,
				"ticket_completed", outcome.TicketCompleted, "epic_completed", outcome.EpicCompleted)
		}
	}

	if err := l.store.UpdateSessionActive(ctx, l.repoID, st.ID, false); err != nil {
		l.logger.Warn("clearing session_active failed", "stage", st.ID, "error", err)
	}

	l.locks.Release(info.stageFilePath)
	if err := l.wt.Release(handle); err != nil {
		l.logger.Warn("worktree release failed", "stage", st.ID, "error", err)
	}

	l.mu.Lock()
	delete(l.active, handle.Index)
	l.mu.Unlock()

	l.wakeWorkerExit()
}

// runResolvers implements §4.E.3 step 1: run every registered resolver
// over every stage currently in a resolver (observer) phase. A non-null
// result is written back (under lock) and run through the exit gate
// without spawning a session, per §4.F.2.
func (l *Loop) runResolvers(ctx context.Context, repoID int64) {
	if l.resolvers == nil {
		return
	}
	stages, err := l.store.ListStagesByRepo(ctx, repoID)
	if err != nil {
		l.logger.Error("listing stages for resolvers failed", "error", err)
		return
	}
	for _, st := range stages {
		if !l.pm.IsResolverStatus(st.Status) {
			continue
		}
		path := st.FilePath
		if l.locks.IsLocked(path) {
			continue
		}
		newStatus, err := l.resolvers.Run(ctx, st)
		if err != nil {
			l.logger.Warn("resolver error", "stage", st.ID, "error", err)
			continue
		}
		if newStatus == "" {
			continue
		}
		if err := l.locks.Acquire(path, "resolver:"+st.ID); err != nil {
			continue
		}
		writeErr := syncengine.WriteBackStageStatus(st, newStatus)
		l.locks.Release(path)
		if writeErr != nil {
			l.logger.Warn("resolver write-back failed", "stage", st.ID, "error", writeErr)
			continue
		}
		if _, err := l.gate.Run(ctx, l.cfg.RepoPath, l.pm, repoID, st.ID, st.Status, newStatus); err != nil {
			l.logger.Error("exit gate after resolver failed", "stage", st.ID, "error", err)
		}
	}
}

func (l *Loop) waitForWorkerExit(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-l.workerExited:
	}
}

func (l *Loop) wakeWorkerExit() {
	select {
	case l.workerExited <- struct{}{}:
	default:
	}
}

func (l *Loop) sleepIdle(ctx context.Context) {
	d := time.Duration(l.cfg.IdleSeconds) * time.Second
	if d <= 0 {
		d = time.Second
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	case <-l.idleSleepWake():
	}
}

func (l *Loop) idleSleepWake() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.idleSleepStop == nil {
		l.idleSleepStop = make(chan struct{})
	}
	return l.idleSleepStop
}

func (l *Loop) wakeIdleSleep() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.idleSleepStop != nil {
		close(l.idleSleepStop)
		l.idleSleepStop = nil
	}
}

// drainAll implements the shutdown drain sequence from §5: wait up to
// drainTimeout for workers to exit on their own, then TERM, then wait
// up to killTimeout, then KILL.
func (l *Loop) drainAll(drainTimeout, killTimeout time.Duration) {
	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return
	case <-time.After(drainTimeout):
	}

	l.runner.KillAll(termSignal())
	select {
	case <-done:
		return
	case <-time.After(killTimeout):
	}
	l.runner.KillAll(killSignal())
	<-done
}

func termSignal() syscall.Signal { return syscall.SIGTERM }
func killSignal() syscall.Signal { return syscall.SIGKILL }

func newSessionLogger(logDir, stageID string) (session.Logger, error) {
	if logDir == "" {
		logDir = ".kanban-logs"
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(logDir, stageID+".log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return f, nil
}
