// Package message defines the typed messages actors exchange through the
// directory. Every wire "type" has exactly one Go type; the set is closed.
package message

import "github.com/mtzanidakis/agentcrew/internal/plan"

type Type string

const (
	TypeGoal              Type = "goal"
	TypeCodingTask        Type = "coding_task"
	TypeTaskComplete      Type = "task_complete"
	TypeEvaluationRequest Type = "evaluation_request"
	TypeEvaluationResult  Type = "evaluation_result"
	TypeSearchRequest     Type = "search_request"
	TypeSearchResult      Type = "search_result"
	TypeAPIRequest        Type = "api_request"
	TypeAPIResult         Type = "api_result"
)

// Status is the outcome carried by an evaluation_result.
type Status string

const (
	StatusApproved         Status = "approved"
	StatusRequiresRevision Status = "requires_revision"
	StatusError            Status = "error"
)

// Valid reports whether s is one of the statuses an evaluator may produce.
func (s Status) Valid() bool {
	switch s {
	case StatusApproved, StatusRequiresRevision, StatusError:
		return true
	}
	return false
}

// Message is implemented by every variant in this package only.
type Message interface {
	Type() Type
	isMessage()
}

// Goal starts a run on the planner.
type Goal struct {
	Text string `json:"goal"`
}

// CodingTask asks the coder to create or update one file.
type CodingTask struct {
	TaskID      int      `json:"task_id,omitempty"`
	FilePath    string   `json:"file_path"`
	Description string   `json:"description"`
	APIData     []string `json:"api_data,omitempty"`
}

// TaskComplete acknowledges a coding task or a revision. Error is set when
// the coder could not produce the file.
type TaskComplete struct {
	TaskID   int    `json:"task_id,omitempty"`
	FilePath string `json:"file_path,omitempty"`
	Error    string `json:"error,omitempty"`
}

type EvaluationRequest struct {
	TaskID    int    `json:"task_id,omitempty"`
	Goal      string `json:"goal"`
	FilePath  string `json:"file_path"`
	Requester string `json:"requester"`
}

// EvaluationResult travels in two directions: evaluator to requester with
// the verdict, and planner to coder as a revision order
// (Status == StatusRequiresRevision).
type EvaluationResult struct {
	TaskID   int    `json:"task_id,omitempty"`
	Status   Status `json:"status"`
	Feedback string `json:"feedback"`
	FilePath string `json:"file_path"`
}

type SearchRequest struct {
	TaskID    int    `json:"task_id,omitempty"`
	Query     string `json:"query"`
	Requester string `json:"requester"`
}

type SearchResult struct {
	TaskID  int    `json:"task_id,omitempty"`
	Results string `json:"results"`
}

type APIRequest struct {
	TaskID    int                   `json:"task_id,omitempty"`
	Requests  []plan.APIRequestSpec `json:"requests"`
	Requester string                `json:"requester"`
}

// APIResult holds one entry per request, in request order.
type APIResult struct {
	TaskID  int      `json:"task_id,omitempty"`
	Results []string `json:"results"`
}

func (Goal) Type() Type              { return TypeGoal }
func (CodingTask) Type() Type        { return TypeCodingTask }
func (TaskComplete) Type() Type      { return TypeTaskComplete }
func (EvaluationRequest) Type() Type { return TypeEvaluationRequest }
func (EvaluationResult) Type() Type  { return TypeEvaluationResult }
func (SearchRequest) Type() Type     { return TypeSearchRequest }
func (SearchResult) Type() Type      { return TypeSearchResult }
func (APIRequest) Type() Type        { return TypeAPIRequest }
func (APIResult) Type() Type         { return TypeAPIResult }

func (Goal) isMessage()              {}
func (CodingTask) isMessage()        {}
func (TaskComplete) isMessage()      {}
func (EvaluationRequest) isMessage() {}
func (EvaluationResult) isMessage()  {}
func (SearchRequest) isMessage()     {}
func (SearchResult) isMessage()      {}
func (APIRequest) isMessage()        {}
func (APIResult) isMessage()         {}
