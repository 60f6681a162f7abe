package natsbus

import "fmt"

// Topic patterns for NATS pub/sub communication.

// TopicActorInbox carries a copy of every envelope routed to the named actor.
func TopicActorInbox(actor string) string {
	return fmt.Sprintf("crew.%s.inbox", actor)
}

func TopicEventsRun(runID string) string {
	return fmt.Sprintf("events.run.%s", runID)
}

func TopicEventsGoal(goalID string) string {
	return fmt.Sprintf("events.goal.%s", goalID)
}

const (
	TopicInboxAll   = "crew.*.inbox"
	TopicEventsAll  = "events.>"
	TopicEventsRuns = "events.run.*"
)

// TopicIPC takes requests from the CLI to a running daemon.
const TopicIPC = "crew.ipc"
