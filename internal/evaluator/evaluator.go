// Package evaluator implements the crew member that reviews written files
// against the goal of their task.
package evaluator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mtzanidakis/agentcrew/internal/actor"
	"github.com/mtzanidakis/agentcrew/internal/llm"
	"github.com/mtzanidakis/agentcrew/internal/message"
)

const Name = "Evaluator"

// Files is the read side of the artifact store.
type Files interface {
	Read(path string) (string, error)
}

type Evaluator struct {
	*actor.Base
	llm   llm.Completer
	files Files
}

func New(c llm.Completer, files Files) *Evaluator {
	return &Evaluator{
		Base:  actor.NewBase(Name),
		llm:   c,
		files: files,
	}
}

func (e *Evaluator) Receive(ctx context.Context, sender string, msg message.Message) {
	status := e.Execute(ctx, msg)
	slog.Debug("evaluator handled message", "type", msg.Type(), "sender", sender, "status", status)
}

// Execute reviews the file named by an evaluation_request and sends exactly
// one evaluation_result to the requester.
func (e *Evaluator) Execute(ctx context.Context, msg message.Message) string {
	req, ok := msg.(message.EvaluationRequest)
	if !ok {
		return "No action taken."
	}
	if err := actor.Require("requester", req.Requester); err != nil {
		slog.Warn("evaluation request without requester", "file_path", req.FilePath)
		return actor.ErrorStatus(err)
	}
	if err := actor.Require("goal", req.Goal, "file_path", req.FilePath); err != nil {
		return e.reply(ctx, req, errorResult(req, err))
	}

	slog.Info("evaluating", "task_id", req.TaskID, "file_path", req.FilePath, "requester", req.Requester)

	code, err := e.files.Read(req.FilePath)
	if err != nil {
		return e.reply(ctx, req, errorResult(req, err))
	}

	raw, err := e.llm.Complete(ctx, evaluateRequest(req.Goal, code))
	if err != nil {
		return e.reply(ctx, req, errorResult(req, fmt.Errorf("evaluate code: %w", err)))
	}

	v, err := parseVerdict(raw)
	if err != nil {
		return e.reply(ctx, req, errorResult(req, err))
	}

	return e.reply(ctx, req, message.EvaluationResult{
		TaskID:   req.TaskID,
		Status:   v.Status,
		Feedback: v.Feedback,
		FilePath: req.FilePath,
	})
}

func (e *Evaluator) reply(ctx context.Context, req message.EvaluationRequest, res message.EvaluationResult) string {
	if res.Status == message.StatusError {
		slog.Warn("evaluation failed", "task_id", req.TaskID, "file_path", req.FilePath, "feedback", res.Feedback)
	} else {
		slog.Info("evaluation complete", "task_id", req.TaskID, "file_path", req.FilePath, "status", res.Status)
	}
	if err := e.Send(ctx, req.Requester, res); err != nil {
		slog.Error("send evaluation result", "requester", req.Requester, "error", err)
		return actor.ErrorStatus(err)
	}
	return fmt.Sprintf("Evaluation complete for '%s'. Results sent to '%s'.", req.FilePath, req.Requester)
}

func errorResult(req message.EvaluationRequest, err error) message.EvaluationResult {
	return message.EvaluationResult{
		TaskID:   req.TaskID,
		Status:   message.StatusError,
		Feedback: err.Error(),
		FilePath: req.FilePath,
	}
}

type verdict struct {
	Status   message.Status `json:"status"`
	Feedback string         `json:"feedback"`
}

// parseVerdict decodes the model reply. Only approved and
// requires_revision are accepted from the model.
func parseVerdict(raw string) (verdict, error) {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	var v verdict
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &v); err != nil {
		return verdict{}, fmt.Errorf("parse evaluation response: %w", err)
	}
	if v.Status != message.StatusApproved && v.Status != message.StatusRequiresRevision {
		return verdict{}, fmt.Errorf("parse evaluation response: unexpected status %q", v.Status)
	}
	return v, nil
}
