package natsbus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// IPCRequest is a command sent by the CLI to a running daemon.
type IPCRequest struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
}

type IPCResponse struct {
	OK    bool            `json:"ok,omitempty"`
	Error string          `json:"error,omitempty"`
	ID    string          `json:"id,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// IPCHandler answers one request. A returned error is sent back as
// IPCResponse.Error.
type IPCHandler func(req IPCRequest) (IPCResponse, error)

// ServeIPC answers requests on TopicIPC until the subscription is drained.
func (c *Client) ServeIPC(handle IPCHandler) (*nats.Subscription, error) {
	return c.conn.Subscribe(TopicIPC, func(msg *nats.Msg) {
		var req IPCRequest
		var resp IPCResponse
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			resp = IPCResponse{Error: fmt.Sprintf("invalid request: %v", err)}
		} else if r, err := handle(req); err != nil {
			resp = IPCResponse{Error: err.Error()}
		} else {
			resp = r
		}

		data, _ := json.Marshal(resp)
		_ = msg.Respond(data)
	})
}

// SendIPC sends req to a daemon and waits for the answer.
func SendIPC(url string, req IPCRequest, timeout time.Duration) (*IPCResponse, error) {
	c, err := NewClientFromURL(url)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	msg, err := c.Request(TopicIPC, data, timeout)
	if err != nil {
		return nil, fmt.Errorf("ipc request: %w", err)
	}

	var resp IPCResponse
	if err := json.Unmarshal(msg.Data, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return &resp, nil
}
