// Package plan holds the planner's task records and the queue they are
// consumed from.
package plan

import (
	"encoding/json"
	"fmt"
)

type Action string

const (
	ActionSearch       Action = "search"
	ActionAPICall      Action = "api_call"
	ActionWriteCode    Action = "write_code"
	ActionEvaluateCode Action = "evaluate_code"
	ActionFinish       Action = "finish"
)

// Known reports whether the planner knows how to dispatch a.
func (a Action) Known() bool {
	switch a {
	case ActionSearch, ActionAPICall, ActionWriteCode, ActionEvaluateCode, ActionFinish:
		return true
	}
	return false
}

const StatusPending = "pending"

// APIRequestSpec describes one HTTP call of an api_call task.
type APIRequestSpec struct {
	URL    string          `json:"url"`
	Method string          `json:"method,omitempty"`
	Params map[string]any  `json:"params,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// Task is one entry of a plan. Feedback and APIData are set by the planner
// and never come from planning output.
type Task struct {
	ID          int              `json:"task_id"`
	Action      Action           `json:"action"`
	Description string           `json:"description"`
	FilePath    string           `json:"file_path,omitempty"`
	Query       string           `json:"query,omitempty"`
	Requests    []APIRequestSpec `json:"requests,omitempty"`
	Status      string           `json:"status,omitempty"`

	Feedback string   `json:"-"`
	APIData  []string `json:"-"`
}

// IsRevision reports whether t is a revision task inserted after a
// requires_revision verdict.
func (t Task) IsRevision() bool {
	return t.Action == ActionWriteCode && t.Feedback != ""
}

func (t Task) String() string {
	if t.FilePath != "" {
		return fmt.Sprintf("#%d %s %s", t.ID, t.Action, t.FilePath)
	}
	return fmt.Sprintf("#%d %s", t.ID, t.Action)
}

// Queue is a FIFO of tasks consumed from the front. It is not safe for
// concurrent use; the planner owns it.
type Queue struct {
	tasks []Task
}

func NewQueue(tasks []Task) *Queue {
	q := &Queue{}
	q.Replace(tasks)
	return q
}

func (q *Queue) PopFront() (Task, bool) {
	if len(q.tasks) == 0 {
		return Task{}, false
	}
	t := q.tasks[0]
	q.tasks = q.tasks[1:]
	return t, true
}

func (q *Queue) PushFront(t Task) {
	q.tasks = append([]Task{t}, q.tasks...)
}

func (q *Queue) PushBack(t Task) {
	q.tasks = append(q.tasks, t)
}

// Replace discards the queue contents in favour of tasks.
func (q *Queue) Replace(tasks []Task) {
	q.tasks = append([]Task(nil), tasks...)
}

func (q *Queue) Len() int {
	return len(q.tasks)
}

// Tasks returns a copy of the queued tasks, head first.
func (q *Queue) Tasks() []Task {
	return append([]Task(nil), q.tasks...)
}
