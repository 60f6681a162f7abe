package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"

	"github.com/mtzanidakis/agentcrew/internal/artifact"
	"github.com/mtzanidakis/agentcrew/internal/config"
	"github.com/mtzanidakis/agentcrew/internal/crew"
	"github.com/mtzanidakis/agentcrew/internal/fetch"
	"github.com/mtzanidakis/agentcrew/internal/llm"
	"github.com/mtzanidakis/agentcrew/internal/natsbus"
	"github.com/mtzanidakis/agentcrew/internal/schedule"
	"github.com/mtzanidakis/agentcrew/internal/search"
	"github.com/mtzanidakis/agentcrew/internal/store"
)

var version = "dev"

var logLevel = new(slog.LevelVar)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	rest := os.Args[2:]

	switch command {
	case "version":
		fmt.Printf("agentcrew %s\n", version)
		return
	case "submit":
		if err := runSubmit(parseArgs(rest)); err != nil {
			fatal("%v", err)
		}
		return
	case "run", "runs", "show", "schedule", "daemon":
	default:
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fatal("load config: %v", err)
	}
	setupLogging(cfg.Log.Level)

	switch command {
	case "run":
		err = runGoal(cfg, parseArgs(rest))
	case "runs":
		err = listRuns(cfg, parseArgs(rest))
	case "show":
		err = showRun(cfg, parseArgs(rest))
	case "schedule":
		err = runSchedule(cfg, rest)
	case "daemon":
		err = runDaemon(cfg)
	}
	if err != nil {
		slog.Error(command+" failed", "error", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "Usage: agentcrew <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, `  run --goal "..." | --goal-file path     Run a goal to completion`)
	fmt.Fprintln(os.Stderr, "  runs [--limit n]                        List recent runs")
	fmt.Fprintln(os.Stderr, `  show --id "..."                         Show a run and its evaluations`)
	fmt.Fprintln(os.Stderr, `  schedule add --name "..." --schedule "..." --goal "..."`)
	fmt.Fprintln(os.Stderr, "  schedule list")
	fmt.Fprintln(os.Stderr, `  schedule pause|resume|delete --id "..."`)
	fmt.Fprintln(os.Stderr, "  daemon                                  Run the scheduler and accept submitted goals")
	fmt.Fprintln(os.Stderr, `  submit --goal "..."                     Submit a goal to a running daemon`)
	fmt.Fprintln(os.Stderr, "  version                                 Print version")
}

func parseArgs(args []string) map[string]string {
	result := make(map[string]string)
	for i := 0; i < len(args); i++ {
		if len(args[i]) > 2 && args[i][:2] == "--" && i+1 < len(args) {
			result[args[i][2:]] = args[i+1]
			i++
		}
	}
	return result
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

func setupLogging(level string) {
	logLevel.Set(parseLevel(level))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// readGoal returns the goal from --goal or the contents of --goal-file.
func readGoal(args map[string]string) (string, error) {
	goal := args["goal"]
	if path := args["goal-file"]; path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read goal file: %w", err)
		}
		goal = string(data)
	}
	goal = strings.TrimSpace(goal)
	if goal == "" {
		return "", fmt.Errorf("--goal or --goal-file is required")
	}
	return goal, nil
}

func newCoordinator(ctx context.Context, cfg *config.Config, db *store.Store, client *natsbus.Client) (*crew.Coordinator, error) {
	completer, err := llm.NewFromConfig(ctx, cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("init llm: %w", err)
	}
	if cfg.Search.APIKey == "" {
		slog.Warn("search api key not set, web search disabled")
	}
	return crew.NewCoordinator(crew.Options{
		Context:          ctx,
		Store:            db,
		Client:           client,
		LLM:              completer,
		Files:            artifact.New(cfg.Artifacts.Root),
		Search:           search.NewBrave(cfg.Search),
		Fetch:            fetch.New(cfg.Fetch),
		Crew:             cfg.Crew,
		FetchConcurrency: cfg.Fetch.Concurrency,
	}), nil
}

func runGoal(cfg *config.Config, args map[string]string) error {
	goal, err := readGoal(args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.New(cfg.Store)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()

	coord, err := newCoordinator(ctx, cfg, db, nil)
	if err != nil {
		return err
	}

	res, err := coord.Run(ctx, goal, "cli")
	if err != nil {
		return err
	}
	evals, err := db.ListEvaluations(res.Run.ID)
	if err != nil {
		return err
	}
	printRun(os.Stdout, res.Run, evals)

	if res.Run.Status == store.RunFailed {
		return fmt.Errorf("run %s failed: %s", res.Run.ID, res.Run.Error)
	}
	return nil
}

func listRuns(cfg *config.Config, args map[string]string) error {
	limit := 20
	if v := args["limit"]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid --limit: %w", err)
		}
		limit = n
	}

	db, err := store.New(cfg.Store)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()

	runs, err := db.ListRuns(limit)
	if err != nil {
		return err
	}
	printRuns(os.Stdout, runs)
	return nil
}

func showRun(cfg *config.Config, args map[string]string) error {
	id := args["id"]
	if id == "" {
		return fmt.Errorf("--id is required")
	}

	db, err := store.New(cfg.Store)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()

	run, err := db.GetRun(id)
	if err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("run not found: %s", id)
	}
	evals, err := db.ListEvaluations(id)
	if err != nil {
		return err
	}
	printRun(os.Stdout, run, evals)
	return nil
}

func runSubmit(args map[string]string) error {
	goal, err := readGoal(args)
	if err != nil {
		return err
	}
	natsURL := os.Getenv("NATS_URL")
	if natsURL == "" {
		natsURL = "nats://localhost:4222"
	}

	resp, err := natsbus.SendIPC(natsURL, natsbus.IPCRequest{
		Type:    "submit_goal",
		Payload: map[string]any{"goal": goal},
	}, 10*time.Second)
	if err != nil {
		return err
	}
	if resp.Error != "" {
		return fmt.Errorf("%s", resp.Error)
	}
	fmt.Printf("Run started: %s\n", resp.ID)
	return nil
}

func runSchedule(cfg *config.Config, rest []string) error {
	if len(rest) == 0 {
		printUsage()
		os.Exit(1)
	}
	sub := rest[0]
	args := parseArgs(rest[1:])

	db, err := store.New(cfg.Store)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()

	switch sub {
	case "add":
		g, err := addGoal(db, args, time.Now())
		if err != nil {
			return err
		}
		fmt.Printf("Scheduled goal created: %s (%s)\n", g.ID, schedule.Describe(g.Schedule))

	case "list":
		goals, err := db.ListGoals()
		if err != nil {
			return err
		}
		printGoals(os.Stdout, goals)

	case "pause":
		if args["id"] == "" {
			return fmt.Errorf("--id is required")
		}
		if err := db.UpdateGoalStatus(args["id"], "paused"); err != nil {
			return err
		}
		fmt.Println("Scheduled goal paused.")

	case "resume":
		if err := resumeGoal(db, args["id"], time.Now()); err != nil {
			return err
		}
		fmt.Println("Scheduled goal resumed.")

	case "delete":
		if args["id"] == "" {
			return fmt.Errorf("--id is required")
		}
		if err := db.DeleteGoal(args["id"]); err != nil {
			return err
		}
		fmt.Println("Scheduled goal deleted.")

	default:
		return fmt.Errorf("unknown schedule command: %s", sub)
	}
	return nil
}

func addGoal(db *store.Store, args map[string]string, now time.Time) (*store.ScheduledGoal, error) {
	if args["name"] == "" || args["schedule"] == "" || args["goal"] == "" {
		return nil, fmt.Errorf("--name, --schedule, and --goal are required")
	}
	sched, err := schedule.Normalize(args["schedule"])
	if err != nil {
		return nil, err
	}
	next, err := schedule.NextRun(sched, now)
	if err != nil {
		return nil, err
	}
	if next == nil {
		return nil, fmt.Errorf("schedule never fires after %s", now.Format(time.RFC3339))
	}

	g := &store.ScheduledGoal{
		ID:        uuid.New().String(),
		Name:      args["name"],
		Goal:      args["goal"],
		Schedule:  sched,
		NextRunAt: next,
	}
	if err := db.SaveGoal(g); err != nil {
		return nil, err
	}
	return g, nil
}

func resumeGoal(db *store.Store, id string, now time.Time) error {
	if id == "" {
		return fmt.Errorf("--id is required")
	}
	g, err := db.GetGoal(id)
	if err != nil {
		return err
	}
	if g == nil {
		return fmt.Errorf("scheduled goal not found: %s", id)
	}
	next, err := schedule.NextRun(g.Schedule, now)
	if err != nil {
		return err
	}
	if next == nil {
		return fmt.Errorf("schedule never fires after %s", now.Format(time.RFC3339))
	}
	g.Status = "active"
	g.NextRunAt = next
	return db.SaveGoal(g)
}

func printRun(w io.Writer, run *store.Run, evals []store.Evaluation) {
	fmt.Fprintf(w, "Run:     %s\n", run.ID)
	fmt.Fprintf(w, "Status:  %s\n", run.Status)
	fmt.Fprintf(w, "Source:  %s\n", run.Source)
	fmt.Fprintf(w, "Goal:    %s\n", oneLine(run.Goal, 120))
	if run.Error != "" {
		fmt.Fprintf(w, "Error:   %s\n", run.Error)
	}
	if len(evals) > 0 {
		fmt.Fprintln(w, "\nEvaluations:")
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		for _, e := range evals {
			fmt.Fprintf(tw, "  %d\ttask %d\t%s\t%s\t%s\n", e.Seq, e.TaskID, e.FilePath, e.Status, oneLine(e.Feedback, 80))
		}
		tw.Flush()
	}
	if run.Summary != "" {
		fmt.Fprintf(w, "\nSummary:\n%s\n", run.Summary)
	}
}

func printRuns(w io.Writer, runs []store.Run) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tSOURCE\tSTARTED\tGOAL")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.Status, r.Source, r.StartedAt.Local().Format("2006-01-02 15:04"), oneLine(r.Goal, 60))
	}
	tw.Flush()
}

func printGoals(w io.Writer, goals []store.ScheduledGoal) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSCHEDULE\tSTATUS\tNEXT RUN\tLAST")
	for _, g := range goals {
		next := "-"
		if g.NextRunAt != nil {
			next = g.NextRunAt.Local().Format("2006-01-02 15:04")
		}
		last := g.LastStatus
		if last == "" {
			last = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", g.ID, g.Name, schedule.Describe(g.Schedule), g.Status, next, last)
	}
	tw.Flush()
}

// oneLine collapses whitespace and cuts s to max runes.
func oneLine(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
