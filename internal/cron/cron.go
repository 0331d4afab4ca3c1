// Package cron implements §4.E.6: the two periodic jobs that run
// alongside the orchestrator loop, sharing its lock registry, worktree
// pool, session runner, and code-host client. Next-fire computation
// follows zulandar-railyard's telegraph/cron.go approach (a robfig/cron parser
// turns each job's schedule into a time.Timer reset on every fire)
// rather than robfig/cron's own Cron runner, since jobs here are
// interval-based (`interval_seconds`) and share process lifetime with
// the orchestrator loop, not a standalone ticker goroutine.
package cron

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jakekausler/stagework/internal/codehost"
	"github.com/jakekausler/stagework/internal/exitgate"
	"github.com/jakekausler/stagework/internal/lock"
	"github.com/jakekausler/stagework/internal/pipeline"
	"github.com/jakekausler/stagework/internal/session"
	"github.com/jakekausler/stagework/internal/store"
	"github.com/jakekausler/stagework/internal/syncengine"
	"github.com/jakekausler/stagework/internal/workitem"
	"github.com/jakekausler/stagework/internal/worktree"
)

// cronParser parses "@every <duration>" descriptors, the form an
// interval_seconds config is translated into below.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// nextInterval computes the duration until a job configured with
// seconds should next fire. On a parse error, or if the computed next
// fire time is not in the future, it returns the plain interval of
// seconds.
func nextInterval(seconds int) time.Duration {
	sched, err := cronParser.Parse(fmt.Sprintf("@every %ds", seconds))
	if err != nil {
		return time.Duration(seconds) * time.Second
	}
	d := time.Until(sched.Next(time.Now()))
	if d <= 0 {
		return time.Duration(seconds) * time.Second
	}
	return d
}

// worktreeAllocator mirrors internal/orchestrator's minimal surface onto
// internal/worktree.Manager, so mr-chain-manager can spawn a rebase
// session against the same bounded pool the main loop uses.
type worktreeAllocator interface {
	Acquire(branch string) (worktree.Handle, error)
	Release(h worktree.Handle) error
}

// Scheduler runs mr-comment-poll and mr-chain-manager, each on its own
// timer, until Stop is called. Every dependency is shared with the
// orchestrator loop's Loop — the two never construct their own copies
// of the lock registry, worktree pool, or session runner.
type Scheduler struct {
	repoPath string
	pm       *pipeline.Model
	store    *store.Store
	gate     *exitgate.Gate
	locks    *lock.Registry
	wt       worktreeAllocator
	runner   *session.Runner
	client   codehost.Client
	logger   *slog.Logger

	repoID int64
	logDir string
	model  string

	stop chan struct{}
}

func New(repoPath string, pm *pipeline.Model, st *store.Store, gate *exitgate.Gate, locks *lock.Registry, wt worktreeAllocator, runner *session.Runner, client codehost.Client, repoID int64, logDir, model string, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return &Scheduler{
		repoPath: repoPath,
		pm:       pm,
		store:    st,
		gate:     gate,
		locks:    locks,
		wt:       wt,
		runner:   runner,
		client:   client,
		repoID:   repoID,
		logDir:   logDir,
		model:    model,
		logger:   logger,
		stop:     make(chan struct{}),
	}
}

// Run blocks, driving both jobs' timers until ctx is done or Stop is
// called. A disabled job logs once at startup and never fires, per
// §4.E.6.
func (s *Scheduler) Run(ctx context.Context) {
	commentCfg, commentOK := s.pm.CronJob("mr_comment_poll")
	chainCfg, chainOK := s.pm.CronJob("mr_chain_manager")

	var commentTimer, chainTimer *time.Timer
	if commentOK && commentCfg.Enabled && commentCfg.IntervalSeconds > 0 {
		commentTimer = time.NewTimer(nextInterval(commentCfg.IntervalSeconds))
		defer commentTimer.Stop()
	} else {
		s.logger.Info("cron job disabled, skipping", "job", "mr-comment-poll")
	}
	if chainOK && chainCfg.Enabled && chainCfg.IntervalSeconds > 0 {
		chainTimer = time.NewTimer(nextInterval(chainCfg.IntervalSeconds))
		defer chainTimer.Stop()
	} else {
		s.logger.Info("cron job disabled, skipping", "job", "mr-chain-manager")
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-timerChan(commentTimer):
			s.runCommentPoll(ctx)
			commentTimer.Reset(nextInterval(commentCfg.IntervalSeconds))
		case <-timerChan(chainTimer):
			s.runChainManager(ctx)
			chainTimer.Reset(nextInterval(chainCfg.IntervalSeconds))
		}
	}
}

// Stop halts the scheduler before the loop's own worker drain, per
// §5's shutdown flow ("stop cron -> stop accepting new work -> ...").
func (s *Scheduler) Stop() {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
}

// timerChan returns a nil timer's channel as nil, which blocks forever
// in a select — the idiom the teacher uses to let a disabled timer sit
// out of the loop without a nil-pointer panic.
func timerChan(t *time.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

// runCommentPoll implements mr-comment-poll (§4.E.6): for every stage in
// PR Created with session_active == false (R1), check PR status and
// either complete it, spawn a review cycle, or just refresh tracking.
func (s *Scheduler) runCommentPoll(ctx context.Context) {
	stages, err := s.store.StagesInStatusIdle(ctx, s.repoID, workitem.StatusPRCreated)
	if err != nil {
		s.logger.Error("mr-comment-poll: listing stages failed", "error", err)
		return
	}
	for _, st := range stages {
		s.pollOne(ctx, st)
	}
}

func (s *Scheduler) pollOne(ctx context.Context, st workitem.Stage) {
	if st.PRURL == "" {
		return
	}
	status, err := s.client.GetPRStatus(ctx, st.PRURL)
	if err != nil {
		s.logger.Warn("mr-comment-poll: PR status fetch failed", "stage", st.ID, "error", err)
		return
	}

	prior, _, err := s.store.GetMrCommentTracking(ctx, s.repoID, st.ID)
	if err != nil {
		s.logger.Warn("mr-comment-poll: reading tracking failed", "stage", st.ID, "error", err)
	}

	if status.Merged {
		if err := s.locks.Acquire(st.FilePath, "cron:mr-comment-poll:"+st.ID); err != nil {
			s.logger.Debug("mr-comment-poll: skipped_locked", "stage", st.ID)
		} else {
			writeErr := syncengine.WriteBackStageStatus(st, workitem.StatusComplete)
			s.locks.Release(st.FilePath)
			if writeErr != nil {
				s.logger.Warn("mr-comment-poll: status write-back failed", "stage", st.ID, "error", writeErr)
			} else if _, err := s.gate.Run(ctx, s.repoPath, s.pm, s.repoID, st.ID, st.Status, workitem.StatusComplete); err != nil {
				s.logger.Error("mr-comment-poll: exit gate failed", "stage", st.ID, "error", err)
			}
		}
	} else if status.UnresolvedThreadCount > prior.LastKnownUnresolvedCnt {
		s.spawnReviewCycle(ctx, st)
	}

	tracking := workitem.MrCommentTracking{
		StageID:                st.ID,
		LastPollTimestamp:      time.Now().UTC().Format(time.RFC3339),
		LastKnownUnresolvedCnt: status.UnresolvedThreadCount,
		RepoID:                 s.repoID,
	}
	if err := s.store.UpsertMrCommentTracking(ctx, s.repoID, tracking); err != nil {
		s.logger.Warn("mr-comment-poll: updating tracking failed", "stage", st.ID, "error", err)
	}
}

// spawnReviewCycle spawns a session against the stage's existing
// worktree branch to address newly-raised review comments. Guarded by
// R2 (lock check) like any other spawn.
func (s *Scheduler) spawnReviewCycle(ctx context.Context, st workitem.Stage) {
	path := st.FilePath
	if s.locks.IsLocked(path) {
		s.logger.Debug("mr-comment-poll: skipped_locked", "stage", st.ID)
		return
	}
	if err := s.locks.Acquire(path, "cron:mr-comment-poll:"+st.ID); err != nil {
		return
	}

	handle, err := s.wt.Acquire(st.WorktreeBranch)
	if err != nil {
		s.locks.Release(path)
		s.logger.Warn("mr-comment-poll: worktree allocation failed", "stage", st.ID, "error", err)
		return
	}

	logger, err := newSessionLogger(s.logDir, st.ID+"-review-cycle")
	if err != nil {
		s.locks.Release(path)
		_ = s.wt.Release(handle)
		s.logger.Warn("mr-comment-poll: session logger creation failed", "stage", st.ID, "error", err)
		return
	}

	go func() {
		defer logger.Close()
		defer s.locks.Release(path)
		defer func() {
			if err := s.wt.Release(handle); err != nil {
				s.logger.Warn("mr-comment-poll: worktree release failed", "stage", st.ID, "error", err)
			}
		}()

		params := session.Params{
			StageID:       st.ID,
			StageFilePath: path,
			SkillName:     "review-cycle",
			WorktreePath:  handle.Path,
			WorktreeIndex: handle.Index,
			Model:         s.model,
		}
		if _, err := s.runner.Spawn(ctx, params, logger); err != nil {
			s.logger.Error("mr-comment-poll: review-cycle session failed", "stage", st.ID, "error", err)
		}
	}()
}

// runChainManager implements mr-chain-manager (§4.E.6): for every
// unmerged parent-branch-tracking row, check the parent's state and
// either mark it merged and attempt a rebase spawn on the child, or
// just refresh the known HEAD.
func (s *Scheduler) runChainManager(ctx context.Context) {
	rows, err := s.store.ListUnmergedParentBranchTracking(ctx, s.repoID)
	if err != nil {
		s.logger.Error("mr-chain-manager: listing tracking failed", "error", err)
		return
	}
	for _, t := range rows {
		s.chainOne(ctx, t)
	}
}

func (s *Scheduler) chainOne(ctx context.Context, t workitem.ParentBranchTracking) {
	var status codehost.PRStatus
	var err error
	if t.ParentPRURL != "" {
		status, err = s.client.GetPRStatus(ctx, t.ParentPRURL)
		if err != nil {
			s.logger.Warn("mr-chain-manager: PR status fetch failed", "child", t.ChildStageID, "parent", t.ParentStageID, "error", err)
			return
		}
	}
	head, err := s.client.GetBranchHead(ctx, t.ParentBranch)
	if err != nil {
		s.logger.Warn("mr-chain-manager: branch head fetch failed", "child", t.ChildStageID, "parent", t.ParentBranch, "error", err)
		return
	}

	if !status.Merged {
		t.LastKnownHead = head
		if err := s.store.UpsertParentBranchTracking(ctx, s.repoID, t); err != nil {
			s.logger.Warn("mr-chain-manager: updating tracking failed", "child", t.ChildStageID, "error", err)
		}
		return
	}

	t.IsMerged = true
	t.LastKnownHead = head
	if err := s.store.UpsertParentBranchTracking(ctx, s.repoID, t); err != nil {
		s.logger.Warn("mr-chain-manager: updating tracking failed", "child", t.ChildStageID, "error", err)
	}

	child, found, err := s.store.FindStageByID(ctx, s.repoID, t.ChildStageID)
	if err != nil || !found {
		return
	}

	if child.RebaseConflict {
		s.logger.Info("mr-chain-manager: skipped_conflict", "child", t.ChildStageID)
		return
	}
	if s.locks.IsLocked(child.FilePath) {
		s.logger.Info("mr-chain-manager: skipped_locked", "child", t.ChildStageID)
		return
	}

	s.spawnRebase(ctx, child)
}

// spawnRebase launches a rebase session on the child stage now that its
// parent branch has merged. Guarded the same way as any other spawn:
// lock acquired up front, released by the worker goroutine on exit.
func (s *Scheduler) spawnRebase(ctx context.Context, child workitem.Stage) {
	if err := s.locks.Acquire(child.FilePath, "cron:mr-chain-manager:"+child.ID); err != nil {
		s.logger.Info("mr-chain-manager: skipped_locked", "child", child.ID)
		return
	}

	handle, err := s.wt.Acquire(child.WorktreeBranch)
	if err != nil {
		s.locks.Release(child.FilePath)
		s.logger.Warn("mr-chain-manager: worktree allocation failed", "child", child.ID, "error", err)
		return
	}

	logger, err := newSessionLogger(s.logDir, child.ID+"-rebase")
	if err != nil {
		s.locks.Release(child.FilePath)
		_ = s.wt.Release(handle)
		s.logger.Warn("mr-chain-manager: session logger creation failed", "child", child.ID, "error", err)
		return
	}

	go func() {
		defer logger.Close()
		defer s.locks.Release(child.FilePath)
		defer func() {
			if err := s.wt.Release(handle); err != nil {
				s.logger.Warn("mr-chain-manager: worktree release failed", "child", child.ID, "error", err)
			}
		}()

		params := session.Params{
			StageID:       child.ID,
			StageFilePath: child.FilePath,
			SkillName:     "rebase",
			WorktreePath:  handle.Path,
			WorktreeIndex: handle.Index,
			Model:         s.model,
		}
		if _, err := s.runner.Spawn(ctx, params, logger); err != nil {
			s.logger.Error("mr-chain-manager: rebase session failed", "child", child.ID, "error", err)
			return
		}

		statusAfter, err := lock.ReadStatus(child.FilePath)
		if err != nil {
			return
		}
		if statusAfter != child.Status {
			if _, err := s.gate.Run(ctx, s.repoPath, s.pm, s.repoID, child.ID, child.Status, statusAfter); err != nil {
				s.logger.Error("mr-chain-manager: exit gate failed", "child", child.ID, "error", err)
			}
		}
	}()
}

func newSessionLogger(logDir, name string) (session.Logger, error) {
	if logDir == "" {
		logDir = ".kanban-logs"
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(logDir, name+".log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return f, nil
}
