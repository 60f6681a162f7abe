package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mtzanidakis/agentcrew/internal/actor"
	"github.com/mtzanidakis/agentcrew/internal/message"
	"github.com/mtzanidakis/agentcrew/internal/plan"
)

var ErrRevisionLimit = errors.New("revision limit reached")

// dispatchNext sends the head of the plan to the crew member that handles
// its action. It refuses while a task is in flight. Tasks with an unknown
// action are skipped; an empty plan ends the run as idle.
func (p *Planner) dispatchNext(ctx context.Context) {
	if p.inflight != nil {
		slog.Warn("dispatch refused, task still in flight", "task_id", p.inflight.ID, "action", p.inflight.Action)
		return
	}

	for {
		p.state = StateDispatching

		task, ok := p.queue.PopFront()
		if !ok {
			slog.Info("plan exhausted without a finish task", "goal", truncate(p.goal, 80))
			p.end(StateIdle)
			return
		}

		if !task.Action.Known() {
			slog.Warn("skipping task with unknown action", "task_id", task.ID, "action", task.Action)
			p.emit(Event{Kind: EventTaskSkipped, TaskID: task.ID, Action: task.Action})
			continue
		}

		p.currentTaskID = task.ID
		if p.hasPendingAPI {
			task.APIData = p.pendingAPI
			p.pendingAPI = nil
			p.hasPendingAPI = false
		}

		if task.Action == plan.ActionFinish {
			p.finish(ctx)
			return
		}

		recipient, msg, err := p.outbound(task)
		if err != nil {
			p.fail(fmt.Errorf("dispatch task %d (%s): %w", task.ID, task.Action, err))
			return
		}

		p.inflight = &task
		p.state = StateAwaitingResult
		if err := p.Send(ctx, recipient, msg); err != nil {
			p.inflight = nil
			p.fail(fmt.Errorf("dispatch task %d (%s): %w", task.ID, task.Action, err))
			return
		}

		slog.Info("dispatched task", "task_id", task.ID, "action", task.Action, "to", recipient, "revision", task.IsRevision())
		p.emit(Event{Kind: EventTaskDispatched, TaskID: task.ID, Action: task.Action, FilePath: task.FilePath, Detail: recipient})
		return
	}
}

// outbound builds the message for task and names its recipient.
func (p *Planner) outbound(task plan.Task) (string, message.Message, error) {
	switch task.Action {
	case plan.ActionSearch:
		if err := actor.Require("query", task.Query); err != nil {
			return "", nil, err
		}
		return p.opts.Names.Retriever, message.SearchRequest{
			TaskID:    task.ID,
			Query:     task.Query,
			Requester: p.Name(),
		}, nil

	case plan.ActionAPICall:
		if len(task.Requests) == 0 {
			return "", nil, actor.MissingField("requests")
		}
		return p.opts.Names.Retriever, message.APIRequest{
			TaskID:    task.ID,
			Requests:  task.Requests,
			Requester: p.Name(),
		}, nil

	case plan.ActionWriteCode:
		if task.IsRevision() {
			if err := actor.Require("file_path", task.FilePath); err != nil {
				return "", nil, err
			}
			return p.opts.Names.Coder, message.EvaluationResult{
				TaskID:   task.ID,
				Status:   message.StatusRequiresRevision,
				Feedback: task.Feedback,
				FilePath: task.FilePath,
			}, nil
		}
		if err := actor.Require("file_path", task.FilePath, "description", task.Description); err != nil {
			return "", nil, err
		}
		return p.opts.Names.Coder, message.CodingTask{
			TaskID:      task.ID,
			FilePath:    task.FilePath,
			Description: task.Description,
			APIData:     task.APIData,
		}, nil

	case plan.ActionEvaluateCode:
		if err := actor.Require("file_path", task.FilePath, "description", task.Description); err != nil {
			return "", nil, err
		}
		return p.opts.Names.Evaluator, message.EvaluationRequest{
			TaskID:    task.ID,
			Goal:      task.Description,
			FilePath:  task.FilePath,
			Requester: p.Name(),
		}, nil
	}
	return "", nil, fmt.Errorf("no recipient for action %q", task.Action)
}

// finish ends the run with a summary of the evaluation record. A failed
// summary request falls back to a locally built digest.
func (p *Planner) finish(ctx context.Context) {
	slog.Info("summarizing run", "evaluations", len(p.evaluations))

	req := summaryRequest(p.evaluations)
	var summary string
	var err error
	p.unlocked(func() { summary, err = p.llm.Complete(ctx, req) })
	if err != nil || summary == "" {
		slog.Warn("summary generation failed, using digest", "error", err)
		summary = digest(p.goal, p.evaluations)
	}
	p.summary = summary
	p.end(StateFinished)
	slog.Info("run finished", "goal", truncate(p.goal, 80), "evaluations", len(p.evaluations))
}
