package crew

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mtzanidakis/agentcrew/internal/natsbus"
)

// HandleIPC answers CLI requests sent to a running daemon.
func (c *Coordinator) HandleIPC(req natsbus.IPCRequest) (natsbus.IPCResponse, error) {
	switch req.Type {
	case "submit_goal":
		goal, _ := req.Payload["goal"].(string)
		if strings.TrimSpace(goal) == "" {
			return natsbus.IPCResponse{}, fmt.Errorf("goal is required")
		}
		id, err := c.Start(goal, "ipc")
		if err != nil {
			return natsbus.IPCResponse{}, err
		}
		return natsbus.IPCResponse{OK: true, ID: id}, nil

	case "get_run":
		id, _ := req.Payload["id"].(string)
		run, err := c.store.GetRun(id)
		if err != nil {
			return natsbus.IPCResponse{}, err
		}
		if run == nil {
			return natsbus.IPCResponse{}, fmt.Errorf("run not found: %s", id)
		}
		data, err := json.Marshal(run)
		if err != nil {
			return natsbus.IPCResponse{}, fmt.Errorf("marshal run: %w", err)
		}
		return natsbus.IPCResponse{OK: true, ID: run.ID, Data: data}, nil
	}
	return natsbus.IPCResponse{}, fmt.Errorf("unknown request type: %s", req.Type)
}
