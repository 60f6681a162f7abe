// Package crew assembles a directory with the planner and its crew for each
// goal, runs it to a terminal state and records the run.
package crew

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mtzanidakis/agentcrew/internal/artifact"
	"github.com/mtzanidakis/agentcrew/internal/coder"
	"github.com/mtzanidakis/agentcrew/internal/config"
	"github.com/mtzanidakis/agentcrew/internal/directory"
	"github.com/mtzanidakis/agentcrew/internal/evaluator"
	"github.com/mtzanidakis/agentcrew/internal/llm"
	"github.com/mtzanidakis/agentcrew/internal/natsbus"
	"github.com/mtzanidakis/agentcrew/internal/planner"
	"github.com/mtzanidakis/agentcrew/internal/retriever"
	"github.com/mtzanidakis/agentcrew/internal/search"
	"github.com/mtzanidakis/agentcrew/internal/store"
)

type Options struct {
	// Context bounds runs started with Start. Cancelling it stops them and
	// they are recorded as failed. Defaults to context.Background().
	Context context.Context
	Store   *store.Store
	Client  *natsbus.Client // optional; events and the route journal go here
	LLM     llm.Completer
	Files   *artifact.Store
	Search  search.Searcher
	Fetch   retriever.Fetcher
	Crew    config.CrewConfig
	// FetchConcurrency bounds parallel API calls within one api_call task.
	FetchConcurrency int
}

type Coordinator struct {
	base   context.Context
	store  *store.Store
	client *natsbus.Client
	files  *artifact.Store
	fetch  retriever.Fetcher

	mu          sync.RWMutex
	llm         llm.Completer
	search      search.Searcher
	crew        config.CrewConfig
	concurrency int

	wg sync.WaitGroup
}

// Result is a finished run with the planner outcome that produced it.
type Result struct {
	Run     *store.Run
	Outcome planner.Outcome
}

func NewCoordinator(o Options) *Coordinator {
	base := o.Context
	if base == nil {
		base = context.Background()
	}
	return &Coordinator{
		base:        base,
		store:       o.Store,
		client:      o.Client,
		files:       o.Files,
		search:      o.Search,
		fetch:       o.Fetch,
		llm:         o.LLM,
		crew:        o.Crew,
		concurrency: o.FetchConcurrency,
	}
}

// Reconfigure swaps the completer, searcher and crew limits. A nil
// completer or searcher keeps the current one. Runs already in progress
// keep the settings they started with.
func (c *Coordinator) Reconfigure(l llm.Completer, s search.Searcher, crew config.CrewConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if l != nil {
		c.llm = l
	}
	if s != nil {
		c.search = s
	}
	c.crew = crew
	slog.Info("crew reconfigured", "max_revisions", crew.MaxRevisions, "run_timeout", crew.RunTimeout)
}

// Start runs goal in the background under the coordinator's context and
// returns its run id. Wait blocks until every started run has ended.
func (c *Coordinator) Start(goal, source string) (string, error) {
	run, err := c.begin(goal, source)
	if err != nil {
		return "", err
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if _, err := c.execute(c.base, run); err != nil {
			slog.Error("run failed to record", "id", run.ID, "error", err)
		}
	}()
	return run.ID, nil
}

func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// Run executes goal to a terminal state. The returned error reports a
// failure to record the run; the run's own failure is in Result.Run.
func (c *Coordinator) Run(ctx context.Context, goal, source string) (*Result, error) {
	run, err := c.begin(goal, source)
	if err != nil {
		return nil, err
	}
	return c.execute(ctx, run)
}

func (c *Coordinator) begin(goal, source string) (*store.Run, error) {
	run := &store.Run{
		ID:     uuid.New().String(),
		Goal:   goal,
		Source: source,
		Status: store.RunRunning,
	}
	if err := c.store.SaveRun(run); err != nil {
		return nil, fmt.Errorf("save run: %w", err)
	}
	c.publishEvent(run.ID, "run_started", map[string]any{
		"goal":   truncate(goal, 200),
		"source": run.Source,
	})
	return run, nil
}

func (c *Coordinator) execute(ctx context.Context, run *store.Run) (*Result, error) {
	c.mu.RLock()
	completer, searcher, crewCfg, concurrency := c.llm, c.search, c.crew, c.concurrency
	c.mu.RUnlock()

	if crewCfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, crewCfg.RunTimeout)
		defer cancel()
	}

	slog.Info("starting run", "id", run.ID, "source", run.Source, "goal", truncate(run.Goal, 80))

	dir := directory.New()
	if c.client != nil {
		dir.SetObserver(natsbus.NewJournal(c.client, run.ID))
	}

	p := planner.New(completer, planner.Options{MaxRevisions: crewCfg.MaxRevisions})
	p.AddListener(planner.ListenerFunc(func(e planner.Event) {
		c.publishEvent(run.ID, "planner_"+string(e.Kind), e)
	}))

	dir.Register(p)
	dir.Register(coder.New(completer, c.files, searcher))
	dir.Register(evaluator.New(completer, c.files))
	dir.Register(retriever.New(searcher, c.fetch, concurrency))

	if err := dir.DispatchGoal(ctx, planner.Name, run.Goal); err != nil {
		return nil, fmt.Errorf("dispatch goal: %w", err)
	}

	var cancelErr error
	select {
	case <-p.Done():
	case <-ctx.Done():
		cancelErr = ctx.Err()
	}
	dir.Wait()

	out := p.Outcome()
	status, errText := runStatus(out, cancelErr)
	run.Status = status
	run.Summary = out.Summary
	run.Error = errText

	if err := c.store.UpdateRun(run.ID, run.Status, run.Summary, run.Error); err != nil {
		return nil, fmt.Errorf("update run: %w", err)
	}
	if err := c.store.SaveEvaluations(run.ID, evaluations(out.Evaluations)); err != nil {
		return nil, fmt.Errorf("save evaluations: %w", err)
	}

	c.publishEvent(run.ID, "run_"+status, map[string]any{
		"evaluations": len(out.Evaluations),
		"error":       errText,
	})
	slog.Info("run ended", "id", run.ID, "status", status, "evaluations", len(out.Evaluations))

	saved, err := c.store.GetRun(run.ID)
	if err != nil {
		return nil, err
	}
	if saved == nil {
		saved = run
	}
	return &Result{Run: saved, Outcome: out}, nil
}

// runStatus maps a planner outcome to a stored run status. A run the
// context cut short is failed whatever state the planner was in.
func runStatus(out planner.Outcome, cancelErr error) (string, string) {
	if !out.State.Terminal() {
		if cancelErr == nil {
			cancelErr = fmt.Errorf("planner stopped in state %s", out.State)
		}
		return store.RunFailed, fmt.Sprintf("run cancelled in state %s: %v", out.State, cancelErr)
	}
	switch out.State {
	case planner.StateFinished:
		return store.RunFinished, ""
	case planner.StateIdle:
		return store.RunIdle, ""
	}
	errText := "run failed"
	if out.Err != nil {
		errText = out.Err.Error()
	}
	return store.RunFailed, errText
}

func evaluations(evals []planner.Evaluation) []store.Evaluation {
	out := make([]store.Evaluation, 0, len(evals))
	for _, e := range evals {
		out = append(out, store.Evaluation{
			TaskID:   e.TaskID,
			FilePath: e.FilePath,
			Status:   string(e.Status),
			Feedback: e.Feedback,
		})
	}
	return out
}

func (c *Coordinator) publishEvent(runID, eventType string, data any) {
	if c.client == nil {
		return
	}

	event := map[string]any{
		"type":      eventType,
		"run_id":    runID,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"data":      data,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	_ = c.client.Publish(natsbus.TopicEventsRun(runID), payload)
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
