// workflow drives the autonomous stage orchestrator: it syncs a repo's
// epic/ticket/stage files into the SQLite mirror, runs the bounded-
// parallelism loop that spawns worker sessions, and (unless disabled)
// runs the cron subsystem alongside it.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/jakekausler/stagework/internal/codehost"
	"github.com/jakekausler/stagework/internal/config"
	wfcron "github.com/jakekausler/stagework/internal/cron"
	"github.com/jakekausler/stagework/internal/discovery"
	"github.com/jakekausler/stagework/internal/exitgate"
	"github.com/jakekausler/stagework/internal/lock"
	"github.com/jakekausler/stagework/internal/orchestrator"
	"github.com/jakekausler/stagework/internal/pipeline"
	"github.com/jakekausler/stagework/internal/session"
	"github.com/jakekausler/stagework/internal/store"
	"github.com/jakekausler/stagework/internal/syncengine"
	"github.com/jakekausler/stagework/internal/validate"
	"github.com/jakekausler/stagework/internal/workitem"
	"github.com/jakekausler/stagework/internal/worktree"
)

// Exit codes per §6: 0 success, 1 validation/run-time failure, 2
// configuration/usage error.
const (
	exitOK     = 0
	exitFailed = 1
	exitUsage  = 2
)

var titleCaser = cases.Title(language.English)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(exitUsage)
	}
	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "run":
		err = runCmd(args)
	case "validate":
		err = validateCmd(args)
	case "sync":
		err = syncCmd(args)
	case "board":
		err = boardCmd(args)
	case "next":
		err = nextCmd(args)
	case "summary":
		err = summaryCmd(args)
	case "graph":
		err = graphCmd(args)
	case "register-repo":
		err = registerRepoCmd(args)
	case "enrich", "jira-import":
		fmt.Fprintf(os.Stderr, "%s: no Jira adapter is wired into this build; out of core scope\n", cmd)
		os.Exit(exitUsage)
	case "-h", "--help", "help":
		usage()
		os.Exit(exitOK)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", cmd)
		usage()
		os.Exit(exitUsage)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitFailed)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `workflow <command> [flags]

Commands:
  run            start the orchestrator loop and cron subsystem
  validate       sync and report validation errors/warnings as JSON
  sync           run one sync pass and print counts
  board          print stages grouped by kanban column
  next           print the next stages discovery would pick
  summary        print stage counts by status
  graph          print the dependency graph
  register-repo  register a repo path in the store
`)
}

// openStore opens the SQLite mirror at dbPath, creating it if absent.
// The caller is responsible for closing the returned *store.DB.
func openStore(ctx context.Context, dbPath string) (*store.DB, *store.Store, error) {
	db, err := store.Open(ctx, dbPath)
	if err != nil {
		return nil, nil, err
	}
	return db, store.New(db), nil
}

func loadPipeline(repoPath string) (*pipeline.Model, error) {
	return pipeline.Load(filepath.Join(repoPath, ".kanban-workflow.yaml"))
}

func runCmd(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	repoPath := fs.String("repo", ".", "repository root path")
	dbPath := fs.String("db", "workflow.db", "SQLite store path")
	maxParallel := fs.Int("max-parallel", 0, "maximum concurrent worker sessions (0 = auto)")
	idleSeconds := fs.Int("idle-seconds", 5, "idle sleep between discovery passes")
	logDir := fs.String("log-dir", ".kanban-logs", "worker session log directory")
	model := fs.String("model", "", "model override forwarded to worker sessions")
	once := fs.Bool("once", false, "run a single pass and exit instead of looping")
	verbose := fs.Bool("verbose", false, "verbose logging")
	platform := fs.String("platform", codehost.PlatformNone, "code host platform: github, gitlab, or empty")
	noCron := fs.Bool("no-cron", false, "disable the cron subsystem")
	_ = fs.Parse(args)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: levelFor(*verbose),
	}))

	db, st, err := openStore(ctx, *dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	pm, err := loadPipeline(*repoPath)
	if err != nil {
		return err
	}

	engine := syncengine.New(st)
	if _, err := engine.Sync(ctx, *repoPath, pm); err != nil {
		return fmt.Errorf("initial sync: %w", err)
	}
	repo, found, err := st.FirstRepo(ctx)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("run: no repo registered after sync")
	}

	locks := lock.NewRegistry()
	wt := worktree.NewManager(*repoPath, filepath.Join(*repoPath, ".worktrees"), "main", resolveMaxParallel(*maxParallel, pm))
	runner := session.NewRunner(*verbose)
	client := codehost.New(*platform)
	gate := exitgate.NewGate(st, engine)
	resolvers := exitgate.NewRegistry()
	resolvers.Register(exitgate.NewPRStatusResolver(client))

	cfg := config.RunConfig{
		RepoPath:    *repoPath,
		MaxParallel: resolveMaxParallel(*maxParallel, pm),
		IdleSeconds: *idleSeconds,
		LogDir:      *logDir,
		Model:       *model,
		Verbose:     *verbose,
		Once:        *once,
	}

	loop := orchestrator.New(cfg.ToLoopConfig(), st, engine, pm, gate, resolvers, locks, wt, runner, logger)

	var cronSched *wfcron.Scheduler
	if !*noCron && !*once {
		cronSched = wfcron.New(*repoPath, pm, st, gate, locks, wt, runner, client, repo.ID, *logDir, *model, logger)
		go cronSched.Run(ctx)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		if cronSched != nil {
			cronSched.Stop()
		}
		loop.Stop()
		cancel()
	}()

	return loop.Run(ctx)
}

// resolveMaxParallel applies flag > env > pipeline-default > built-in
// precedence (§10's config layering).
func resolveMaxParallel(flagValue int, pm *pipeline.Model) int {
	return config.ResolveMaxParallel(flagValue, flagValue > 0, pm)
}

func levelFor(verbose bool) slog.Level {
	if verbose {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

func validateCmd(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	repoPath := fs.String("repo", ".", "repository root path")
	dbPath := fs.String("db", "workflow.db", "SQLite store path")
	_ = fs.Parse(args)

	ctx := context.Background()
	db, st, err := openStore(ctx, *dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	pm, err := loadPipeline(*repoPath)
	if err != nil {
		return err
	}

	report, err := validate.Run(ctx, *repoPath, st, pm)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return err
	}
	if !report.Valid {
		os.Exit(exitFailed)
	}
	return nil
}

func syncCmd(args []string) error {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	repoPath := fs.String("repo", ".", "repository root path")
	dbPath := fs.String("db", "workflow.db", "SQLite store path")
	_ = fs.Parse(args)

	ctx := context.Background()
	db, st, err := openStore(ctx, *dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	pm, err := loadPipeline(*repoPath)
	if err != nil {
		return err
	}

	result, err := syncengine.New(st).Sync(ctx, *repoPath, pm)
	if err != nil {
		return err
	}
	fmt.Printf("repo %s: %d epics, %d tickets, %d stages (%d errors)\n",
		result.RepoName, result.EpicCount, result.TicketCount, result.StageCount, len(result.Errors))
	for _, e := range result.Errors {
		fmt.Println("  -", e)
	}
	return nil
}

func boardCmd(args []string) error {
	fs := flag.NewFlagSet("board", flag.ExitOnError)
	repoPath := fs.String("repo", ".", "repository root path")
	dbPath := fs.String("db", "workflow.db", "SQLite store path")
	_ = fs.Parse(args)

	ctx := context.Background()
	db, st, err := openStore(ctx, *dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	repo, found, err := st.FirstRepo(ctx)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("board: no repo registered; run sync first (repo=%s)", *repoPath)
	}

	stages, err := st.ListStagesByRepo(ctx, repo.ID)
	if err != nil {
		return err
	}

	byColumn := map[string][]workitem.Stage{}
	for _, s := range stages {
		byColumn[s.KanbanColumn] = append(byColumn[s.KanbanColumn], s)
	}
	columns := make([]string, 0, len(byColumn))
	for c := range byColumn {
		columns = append(columns, c)
	}
	sort.Strings(columns)

	for _, c := range columns {
		fmt.Printf("%s (%d)\n", titleCaser.String(c), len(byColumn[c]))
		for _, s := range byColumn[c] {
			fmt.Printf("  %s  %s  [%s]\n", s.ID, s.Title, s.Status)
		}
	}
	return nil
}

func nextCmd(args []string) error {
	fs := flag.NewFlagSet("next", flag.ExitOnError)
	repoPath := fs.String("repo", ".", "repository root path")
	dbPath := fs.String("db", "workflow.db", "SQLite store path")
	slots := fs.Int("slots", 1, "how many candidates to show")
	_ = fs.Parse(args)

	ctx := context.Background()
	db, st, err := openStore(ctx, *dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	pm, err := loadPipeline(*repoPath)
	if err != nil {
		return err
	}
	repo, found, err := st.FirstRepo(ctx)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("next: no repo registered; run sync first (repo=%s)", *repoPath)
	}

	result, err := discovery.Discover(ctx, st, repo.ID, pm, *slots, time.Now())
	if err != nil {
		return err
	}
	for _, c := range result.Ready {
		note := ""
		if c.NeedsHuman {
			note = " (needs human)"
		}
		fmt.Printf("%s  score=%d%s\n", c.Stage.ID, c.Score, note)
	}
	fmt.Printf("blocked=%d in_progress=%d to_convert=%d\n", result.BlockedCount, result.InProgressCount, result.ToConvertCount)
	return nil
}

func summaryCmd(args []string) error {
	fs := flag.NewFlagSet("summary", flag.ExitOnError)
	repoPath := fs.String("repo", ".", "repository root path")
	dbPath := fs.String("db", "workflow.db", "SQLite store path")
	_ = fs.Parse(args)

	ctx := context.Background()
	db, st, err := openStore(ctx, *dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	repo, found, err := st.FirstRepo(ctx)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("summary: no repo registered; run sync first (repo=%s)", *repoPath)
	}

	stages, err := st.ListStagesByRepo(ctx, repo.ID)
	if err != nil {
		return err
	}
	counts := map[string]int{}
	for _, s := range stages {
		counts[s.Status]++
	}
	statuses := make([]string, 0, len(counts))
	for s := range counts {
		statuses = append(statuses, s)
	}
	sort.Strings(statuses)
	for _, s := range statuses {
		fmt.Printf("%-24s %d\n", titleCaser.String(s), counts[s])
	}
	return nil
}

func graphCmd(args []string) error {
	fs := flag.NewFlagSet("graph", flag.ExitOnError)
	repoPath := fs.String("repo", ".", "repository root path")
	dbPath := fs.String("db", "workflow.db", "SQLite store path")
	_ = fs.Parse(args)

	ctx := context.Background()
	db, st, err := openStore(ctx, *dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	repo, found, err := st.FirstRepo(ctx)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("graph: no repo registered; run sync first (repo=%s)", *repoPath)
	}

	deps, err := st.ListDependenciesByRepo(ctx, repo.ID)
	if err != nil {
		return err
	}
	for _, d := range deps {
		status := "resolved"
		if !d.Resolved {
			status = "unresolved"
		}
		target := d.ToID
		if d.TargetRepoName != "" {
			target = d.TargetRepoName + ":" + d.ToID
		}
		fmt.Printf("%s -> %s (%s)\n", d.FromID, target, status)
	}
	for _, cycle := range syncengine.DetectCycles(deps) {
		fmt.Println("cycle:", cycle)
	}
	return nil
}

func registerRepoCmd(args []string) error {
	fs := flag.NewFlagSet("register-repo", flag.ExitOnError)
	repoPath := fs.String("repo", ".", "repository root path to register")
	dbPath := fs.String("db", "workflow.db", "SQLite store path")
	_ = fs.Parse(args)

	ctx := context.Background()
	db, st, err := openStore(ctx, *dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	abs, err := filepath.Abs(*repoPath)
	if err != nil {
		return err
	}
	repo, err := st.UpsertRepoByPath(ctx, abs, filepath.Base(abs))
	if err != nil {
		return err
	}
	fmt.Printf("registered repo %q (id=%d) at %s\n", repo.Name, repo.ID, repo.Path)
	return nil
}
