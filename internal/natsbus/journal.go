package natsbus

import (
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/mtzanidakis/agentcrew/internal/message"
)

// HeaderRunID names the run a journaled envelope belongs to.
const HeaderRunID = "Agentcrew-Run-Id"

// Journal mirrors routed envelopes onto the bus, one subject per recipient.
// It is a directory observer; publishing never blocks routing on failure.
type Journal struct {
	client *Client
	runID  string
}

func NewJournal(client *Client, runID string) *Journal {
	return &Journal{client: client, runID: runID}
}

func (j *Journal) Observe(env message.Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		slog.Warn("journal marshal envelope", "type", env.Message.Type(), "error", err)
		return
	}

	msg := nats.NewMsg(TopicActorInbox(env.Recipient))
	msg.Header.Set(HeaderRunID, j.runID)
	msg.Data = data
	if err := j.client.conn.PublishMsg(msg); err != nil {
		slog.Warn("journal publish", "recipient", env.Recipient, "error", err)
	}
}
