package planner

import (
	"time"

	"github.com/mtzanidakis/agentcrew/internal/plan"
)

type EventKind string

const (
	EventPlanGenerated  EventKind = "plan_generated"
	EventTaskDispatched EventKind = "task_dispatched"
	EventTaskResolved   EventKind = "task_resolved"
	EventTaskSkipped    EventKind = "task_skipped"
	EventEvaluated      EventKind = "evaluated"
	EventRevisionQueued EventKind = "revision_queued"
	EventRunEnded       EventKind = "run_ended"
)

// Event reports a planner transition to listeners.
type Event struct {
	Kind     EventKind   `json:"kind"`
	State    State       `json:"state"`
	TaskID   int         `json:"task_id,omitempty"`
	Action   plan.Action `json:"action,omitempty"`
	FilePath string      `json:"file_path,omitempty"`
	Detail   string      `json:"detail,omitempty"`
	At       time.Time   `json:"at"`
}

type Listener interface {
	OnPlannerEvent(Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(Event)

func (f ListenerFunc) OnPlannerEvent(e Event) { f(e) }

func (p *Planner) emit(e Event) {
	e.State = p.state
	e.At = time.Now().UTC()
	for _, l := range p.listeners {
		l.OnPlannerEvent(e)
	}
}
