// Package scheduler starts runs for scheduled goals when they fall due.
package scheduler

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/mtzanidakis/agentcrew/internal/config"
	"github.com/mtzanidakis/agentcrew/internal/natsbus"
	"github.com/mtzanidakis/agentcrew/internal/schedule"
	"github.com/mtzanidakis/agentcrew/internal/store"
)

// Runner starts a run in the background and returns its id.
type Runner interface {
	Start(goal, source string) (string, error)
}

type Scheduler struct {
	store      *store.Store
	runner     Runner
	natsClient *natsbus.Client

	mu           sync.Mutex
	pollInterval time.Duration
	reloadCh     chan struct{}
}

func New(s *store.Store, r Runner, client *natsbus.Client, cfg config.SchedulerConfig) *Scheduler {
	return &Scheduler{
		store:        s,
		runner:       r,
		natsClient:   client,
		pollInterval: cfg.PollInterval,
		reloadCh:     make(chan struct{}, 1),
	}
}

// UpdateConfig sets the poll interval and signals the run loop to reset
// its ticker.
func (s *Scheduler) UpdateConfig(pollInterval time.Duration) {
	s.mu.Lock()
	s.pollInterval = pollInterval
	s.mu.Unlock()
	select {
	case s.reloadCh <- struct{}{}:
	default:
	}
}

func (s *Scheduler) interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pollInterval <= 0 {
		return 30 * time.Second
	}
	return s.pollInterval
}

func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval())
	defer ticker.Stop()

	slog.Info("scheduler started", "poll_interval", s.interval())

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopped")
			return
		case <-s.reloadCh:
			ticker.Reset(s.interval())
			slog.Info("scheduler config reloaded", "poll_interval", s.interval())
		case now := <-ticker.C:
			s.poll(now)
		}
	}
}

func (s *Scheduler) poll(now time.Time) {
	goals, err := s.store.GetDueGoals(now)
	if err != nil {
		slog.Error("failed to get due goals", "error", err)
		return
	}

	for _, g := range goals {
		s.execute(g, now)
	}
}

func (s *Scheduler) execute(g store.ScheduledGoal, now time.Time) {
	nextRun, err := schedule.NextRun(g.Schedule, now)
	if err != nil {
		slog.Error("invalid schedule, pausing goal", "id", g.ID, "schedule", g.Schedule, "error", err)
		_ = s.store.UpdateGoalRun(g.ID, g.LastRunID, "error", err.Error(), nil)
		_ = s.store.UpdateGoalStatus(g.ID, "paused")
		return
	}

	if s.stillRunning(g) {
		slog.Warn("previous run still in progress, skipping", "id", g.ID, "name", g.Name, "run", g.LastRunID)
		if err := s.store.UpdateGoalRun(g.ID, g.LastRunID, "skipped", "previous run still in progress", nextRun); err != nil {
			slog.Error("failed to update goal run", "id", g.ID, "error", err)
		}
		s.publishGoalEvent(g, "skipped", g.LastRunID)
		return
	}

	slog.Info("starting scheduled goal", "id", g.ID, "name", g.Name)

	runID, err := s.runner.Start(g.Goal, "schedule:"+g.ID)
	var lastStatus, lastError string
	if err != nil {
		lastStatus = "error"
		lastError = err.Error()
		slog.Error("scheduled goal failed to start", "id", g.ID, "error", err)
	} else {
		lastStatus = "started"
	}

	if err := s.store.UpdateGoalRun(g.ID, runID, lastStatus, lastError, nextRun); err != nil {
		slog.Error("failed to update goal run", "id", g.ID, "error", err)
	}

	s.publishGoalEvent(g, lastStatus, runID)

	// One-shot goals end once they have no next run.
	if nextRun == nil {
		slog.Info("no next run, marking goal as completed", "id", g.ID, "name", g.Name)
		if err := s.store.UpdateGoalStatus(g.ID, "completed"); err != nil {
			slog.Error("failed to complete goal", "id", g.ID, "error", err)
		}
	}
}

func (s *Scheduler) stillRunning(g store.ScheduledGoal) bool {
	if g.LastRunID == "" {
		return false
	}
	run, err := s.store.GetRun(g.LastRunID)
	if err != nil || run == nil {
		return false
	}
	return run.Status == store.RunRunning
}

func (s *Scheduler) publishGoalEvent(g store.ScheduledGoal, status, runID string) {
	if s.natsClient == nil {
		return
	}

	event := map[string]any{
		"type":      "goal_executed",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"data": map[string]any{
			"id":     g.ID,
			"name":   g.Name,
			"status": status,
			"run_id": runID,
		},
	}

	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	_ = s.natsClient.Publish(natsbus.TopicEventsGoal(g.ID), data)
}
