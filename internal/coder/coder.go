// Package coder implements the crew member that writes and revises files.
package coder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mtzanidakis/agentcrew/internal/actor"
	"github.com/mtzanidakis/agentcrew/internal/artifact"
	"github.com/mtzanidakis/agentcrew/internal/llm"
	"github.com/mtzanidakis/agentcrew/internal/message"
	"github.com/mtzanidakis/agentcrew/internal/search"
)

const (
	Name = "Coder"
	// ReportTo receives task_complete for every handled task.
	ReportTo = "Planner"
)

// Files is the part of the artifact store the coder needs.
type Files interface {
	Read(path string) (string, error)
	Write(path, content string) error
}

type Coder struct {
	*actor.Base
	llm    llm.Completer
	files  Files
	search search.Searcher
}

// New returns a coder. s may be nil, in which case generation runs without
// search context.
func New(c llm.Completer, files Files, s search.Searcher) *Coder {
	return &Coder{
		Base:   actor.NewBase(Name),
		llm:    c,
		files:  files,
		search: s,
	}
}

func (c *Coder) Receive(ctx context.Context, sender string, msg message.Message) {
	status := c.Execute(ctx, msg)
	slog.Debug("coder handled message", "type", msg.Type(), "sender", sender, "status", status)
}

func (c *Coder) Execute(ctx context.Context, msg message.Message) string {
	switch m := msg.(type) {
	case message.CodingTask:
		return c.write(ctx, m)
	case message.EvaluationResult:
		if m.Status == message.StatusRequiresRevision {
			return c.revise(ctx, m)
		}
	}
	return "No action taken."
}

func (c *Coder) write(ctx context.Context, m message.CodingTask) string {
	if err := actor.Require("file_path", m.FilePath, "description", m.Description); err != nil {
		return c.report(ctx, m.TaskID, m.FilePath, err)
	}
	slog.Info("coding", "task_id", m.TaskID, "file_path", m.FilePath, "api_data", len(m.APIData))

	current, err := c.current(m.FilePath)
	if err != nil {
		return c.report(ctx, m.TaskID, m.FilePath, err)
	}

	code, err := c.llm.Complete(ctx, generateRequest(m.Description, current, m.APIData, c.searchContext(ctx, m.Description)))
	if err != nil {
		return c.report(ctx, m.TaskID, m.FilePath, fmt.Errorf("generate code: %w", err))
	}
	if err := c.files.Write(m.FilePath, StripFences(code)); err != nil {
		return c.report(ctx, m.TaskID, m.FilePath, err)
	}

	c.report(ctx, m.TaskID, m.FilePath, nil)
	return "Code generated for " + m.FilePath + "."
}

func (c *Coder) revise(ctx context.Context, m message.EvaluationResult) string {
	if err := actor.Require("file_path", m.FilePath, "feedback", m.Feedback); err != nil {
		return c.report(ctx, m.TaskID, m.FilePath, err)
	}
	slog.Info("revising", "task_id", m.TaskID, "file_path", m.FilePath)

	current, err := c.current(m.FilePath)
	if err != nil {
		return c.report(ctx, m.TaskID, m.FilePath, err)
	}

	code, err := c.llm.Complete(ctx, reviseRequest(m.Feedback, current, c.searchContext(ctx, m.Feedback)))
	if err != nil {
		return c.report(ctx, m.TaskID, m.FilePath, fmt.Errorf("revise code: %w", err))
	}
	if err := c.files.Write(m.FilePath, StripFences(code)); err != nil {
		return c.report(ctx, m.TaskID, m.FilePath, err)
	}

	c.report(ctx, m.TaskID, m.FilePath, nil)
	return "Code revised for " + m.FilePath + "."
}

// current returns the file contents, or "" for a file not written yet.
func (c *Coder) current(path string) (string, error) {
	text, err := c.files.Read(path)
	if errors.Is(err, artifact.ErrNotFound) {
		return "", nil
	}
	return text, err
}

func (c *Coder) searchContext(ctx context.Context, query string) string {
	if c.search == nil {
		return ""
	}
	res, err := c.search.Search(ctx, query)
	if err != nil {
		if !errors.Is(err, search.ErrNotConfigured) {
			slog.Warn("search for coding context failed", "error", err)
		}
		return ""
	}
	return res
}

// report tells the planner the task is done. A non-nil err travels as the
// error field and is also returned as the status line.
func (c *Coder) report(ctx context.Context, taskID int, path string, err error) string {
	done := message.TaskComplete{TaskID: taskID, FilePath: path}
	status := ""
	if err != nil {
		slog.Error("coding task failed", "task_id", taskID, "file_path", path, "error", err)
		done.Error = err.Error()
		status = actor.ErrorStatus(err)
	}
	if sendErr := c.Send(ctx, ReportTo, done); sendErr != nil {
		slog.Error("report task completion", "task_id", taskID, "error", sendErr)
	}
	return status
}

// StripFences removes a leading ``` line and a trailing ``` line from model
// output. Text without fences is returned trimmed.
func StripFences(text string) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	if len(lines) > 0 && strings.HasPrefix(strings.TrimSpace(lines[0]), "```") {
		lines = lines[1:]
	}
	if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
