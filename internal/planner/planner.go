// Package planner turns a goal into a plan and drives it to completion,
// one task at a time, through the other crew members.
package planner

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/mtzanidakis/agentcrew/internal/actor"
	"github.com/mtzanidakis/agentcrew/internal/llm"
	"github.com/mtzanidakis/agentcrew/internal/message"
	"github.com/mtzanidakis/agentcrew/internal/plan"
)

// Name is the directory name of the planner. The coder reports to it.
const Name = "Planner"

type State string

const (
	StateAwaitingGoal   State = "awaiting_goal"
	StatePlanGenerated  State = "plan_generated"
	StateDispatching    State = "dispatching"
	StateAwaitingResult State = "awaiting_result"
	StateFinished       State = "finished"
	StateIdle           State = "idle"
	StateFailed         State = "failed"
)

// Terminal reports whether no further transitions happen from s.
func (s State) Terminal() bool {
	return s == StateFinished || s == StateIdle || s == StateFailed
}

// Names are the directory names tasks are dispatched to.
type Names struct {
	Coder     string
	Evaluator string
	Retriever string
}

type Options struct {
	// MaxRevisions caps requires_revision verdicts per task; 0 is unlimited.
	MaxRevisions int
	Names        Names
}

// Evaluation is one entry of the evaluation record.
type Evaluation struct {
	TaskID   int            `json:"task_id"`
	FilePath string         `json:"file_path"`
	Status   message.Status `json:"status"`
	Feedback string         `json:"feedback"`
}

// Outcome is the result of a run once the planner reaches a terminal state.
type Outcome struct {
	State       State
	Goal        string
	Summary     string
	Err         error
	Evaluations []Evaluation
}

type Planner struct {
	*actor.Base
	llm  llm.Completer
	opts Options

	// turn serializes handlers. mu guards the fields below and is released
	// around completion calls so accessors stay responsive.
	turn          sync.Mutex
	mu            sync.Mutex
	state         State
	goal          string
	queue         *plan.Queue
	searchHistory []string
	pendingAPI    []string
	hasPendingAPI bool
	currentTaskID int
	inflight      *plan.Task
	revisions     map[int]int
	evaluations   []Evaluation
	summary       string
	err           error
	done          chan struct{}
	listeners     []Listener
}

func New(c llm.Completer, opts Options) *Planner {
	if opts.Names.Coder == "" {
		opts.Names.Coder = "Coder"
	}
	if opts.Names.Evaluator == "" {
		opts.Names.Evaluator = "Evaluator"
	}
	if opts.Names.Retriever == "" {
		opts.Names.Retriever = "Retriever"
	}
	return &Planner{
		Base:          actor.NewBase(Name),
		llm:           c,
		opts:          opts,
		state:         StateAwaitingGoal,
		queue:         plan.NewQueue(nil),
		currentTaskID: -1,
		revisions:     make(map[int]int),
		done:          make(chan struct{}),
	}
}

// AddListener registers l for planner events. Listeners are called while
// the planner holds its lock and must not call back into it.
func (p *Planner) AddListener(l Listener) {
	p.mu.Lock()
	p.listeners = append(p.listeners, l)
	p.mu.Unlock()
}

// Done is closed when the planner reaches a terminal state.
func (p *Planner) Done() <-chan struct{} {
	return p.done
}

func (p *Planner) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Planner) CurrentTaskID() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentTaskID
}

// InFlight returns the dispatched task awaiting its result, if any.
func (p *Planner) InFlight() (plan.Task, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inflight == nil {
		return plan.Task{}, false
	}
	return *p.inflight, true
}

// Remaining returns the tasks not yet dispatched, head first.
func (p *Planner) Remaining() []plan.Task {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.Tasks()
}

func (p *Planner) Outcome() Outcome {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Outcome{
		State:       p.state,
		Goal:        p.goal,
		Summary:     p.summary,
		Err:         p.err,
		Evaluations: append([]Evaluation(nil), p.evaluations...),
	}
}

// Receive handles results coming back from the crew. A result counts only
// when it answers the task in flight and comes from the crew member that
// task was sent to.
func (p *Planner) Receive(ctx context.Context, sender string, msg message.Message) {
	p.turn.Lock()
	defer p.turn.Unlock()
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state.Terminal() {
		slog.Debug("planner ignoring message after run ended", "type", msg.Type(), "sender", sender, "state", p.state)
		return
	}

	switch m := msg.(type) {
	case message.TaskComplete:
		task, ok := p.resolve(sender, msg.Type())
		if !ok {
			return
		}
		slog.Info("task completed", "task_id", task.ID, "file_path", task.FilePath)
		if m.Error != "" {
			p.fail(fmt.Errorf("task %d (%s): %s", task.ID, task.FilePath, m.Error))
			return
		}
		p.dispatchNext(ctx)

	case message.EvaluationResult:
		p.handleEvaluation(ctx, sender, m)

	case message.SearchResult:
		if _, ok := p.resolve(sender, msg.Type()); !ok {
			return
		}
		slog.Info("search result received, replanning", "task_id", p.currentTaskID)
		p.searchHistory = append(p.searchHistory, m.Results)
		if err := p.replan(ctx); err != nil {
			p.fail(err)
			return
		}
		p.dispatchNext(ctx)

	case message.APIResult:
		if _, ok := p.resolve(sender, msg.Type()); !ok {
			return
		}
		slog.Info("api result received", "task_id", p.currentTaskID, "results", len(m.Results))
		p.pendingAPI = m.Results
		p.hasPendingAPI = true
		p.dispatchNext(ctx)

	default:
		status := p.execute(ctx, msg)
		slog.Debug("planner execute", "type", msg.Type(), "status", status)
	}
}

// Execute accepts a goal and starts planning.
func (p *Planner) Execute(ctx context.Context, msg message.Message) string {
	p.turn.Lock()
	defer p.turn.Unlock()
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.execute(ctx, msg)
}

func (p *Planner) execute(ctx context.Context, msg message.Message) string {
	g, ok := msg.(message.Goal)
	if !ok {
		return fmt.Sprintf("Error: unexpected %s message", msg.Type())
	}
	if strings.TrimSpace(g.Text) == "" {
		return actor.ErrorStatus(actor.MissingField("goal"))
	}
	if p.state != StateAwaitingGoal {
		return fmt.Sprintf("Error: planner already has a goal (state %s)", p.state)
	}

	p.goal = g.Text
	slog.Info("received goal", "goal", truncate(g.Text, 120))

	if err := p.replan(ctx); err != nil {
		p.fail(err)
		return actor.ErrorStatus(err)
	}
	p.dispatchNext(ctx)
	return "Plan generation started for goal: " + truncate(g.Text, 80)
}

func (p *Planner) handleEvaluation(ctx context.Context, sender string, m message.EvaluationResult) {
	task, ok := p.resolve(sender, m.Type())
	if !ok {
		return
	}

	filePath := m.FilePath
	if filePath == "" {
		filePath = task.FilePath
	}
	p.evaluations = append(p.evaluations, Evaluation{
		TaskID:   p.currentTaskID,
		FilePath: filePath,
		Status:   m.Status,
		Feedback: m.Feedback,
	})
	slog.Info("evaluation received", "task_id", p.currentTaskID, "file_path", filePath, "status", m.Status)
	p.emit(Event{Kind: EventEvaluated, TaskID: p.currentTaskID, FilePath: filePath, Detail: string(m.Status)})

	switch m.Status {
	case message.StatusApproved:
		p.dispatchNext(ctx)

	case message.StatusRequiresRevision:
		if p.opts.MaxRevisions > 0 && p.revisions[p.currentTaskID] >= p.opts.MaxRevisions {
			p.fail(fmt.Errorf("%w: task %d (%s) revised %d times", ErrRevisionLimit, p.currentTaskID, filePath, p.revisions[p.currentTaskID]))
			return
		}
		p.revisions[p.currentTaskID]++

		// The resolved task goes back to the head with the rewrite in front
		// of it, so the file is rewritten and then checked again.
		p.queue.PushFront(task)
		p.queue.PushFront(plan.Task{
			ID:          p.currentTaskID,
			Action:      plan.ActionWriteCode,
			Description: "Revise code based on feedback",
			FilePath:    filePath,
			Status:      string(message.StatusRequiresRevision),
			Feedback:    m.Feedback,
		})
		p.emit(Event{Kind: EventRevisionQueued, TaskID: p.currentTaskID, FilePath: filePath, Detail: m.Feedback})
		p.dispatchNext(ctx)

	default:
		p.fail(fmt.Errorf("evaluation of %s returned %q: %s", filePath, m.Status, m.Feedback))
	}
}

// answers pairs a result type with the action it resolves and the crew
// member expected to send it.
func (p *Planner) answers(t message.Type) (plan.Action, string) {
	switch t {
	case message.TypeTaskComplete:
		return plan.ActionWriteCode, p.opts.Names.Coder
	case message.TypeEvaluationResult:
		return plan.ActionEvaluateCode, p.opts.Names.Evaluator
	case message.TypeSearchResult:
		return plan.ActionSearch, p.opts.Names.Retriever
	case message.TypeAPIResult:
		return plan.ActionAPICall, p.opts.Names.Retriever
	}
	return "", ""
}

// resolve clears the in-flight guard and returns the task it held. Results
// that do not answer the task in flight leave the guard untouched.
func (p *Planner) resolve(sender string, t message.Type) (plan.Task, bool) {
	if p.inflight == nil {
		slog.Warn("result received with no task in flight", "type", t, "sender", sender)
		return plan.Task{}, false
	}
	action, from := p.answers(t)
	if sender != from {
		slog.Warn("ignoring result from unexpected sender", "type", t, "sender", sender, "expected", from)
		return plan.Task{}, false
	}
	if p.inflight.Action != action {
		slog.Warn("ignoring result for another action", "type", t, "task_id", p.inflight.ID, "in_flight", p.inflight.Action)
		return plan.Task{}, false
	}
	task := *p.inflight
	p.inflight = nil
	p.emit(Event{Kind: EventTaskResolved, TaskID: task.ID, Action: task.Action, FilePath: task.FilePath, Detail: string(t)})
	return task, true
}

// replan asks for a fresh plan for the goal and the search history so far,
// replacing whatever is queued.
func (p *Planner) replan(ctx context.Context) error {
	req := planRequest(p.goal, p.searchHistory)
	var raw string
	var err error
	p.unlocked(func() { raw, err = p.llm.Complete(ctx, req) })
	if err != nil {
		return fmt.Errorf("%w: generate plan: %w", plan.ErrParse, err)
	}
	tasks, err := plan.Parse(raw)
	if err != nil {
		return err
	}
	p.queue.Replace(tasks)
	p.state = StatePlanGenerated
	slog.Info("plan generated", "tasks", len(tasks), "searches", len(p.searchHistory))
	p.emit(Event{Kind: EventPlanGenerated, Detail: fmt.Sprintf("%d tasks", len(tasks))})
	return nil
}

// unlocked runs f with mu released. The caller holds turn, so no other
// handler changes state meanwhile.
func (p *Planner) unlocked(f func()) {
	p.mu.Unlock()
	defer p.mu.Lock()
	f()
}

func (p *Planner) fail(err error) {
	p.err = err
	slog.Error("run failed", "goal", truncate(p.goal, 80), "task_id", p.currentTaskID, "error", err)
	p.end(StateFailed)
}

func (p *Planner) end(s State) {
	if p.state.Terminal() {
		return
	}
	p.state = s
	p.inflight = nil
	p.emit(Event{Kind: EventRunEnded, Detail: string(s)})
	close(p.done)
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
