package store

import (
	"database/sql"
	"fmt"
	"time"
)

// ScheduledGoal is a goal started as a new run whenever its schedule fires.
type ScheduledGoal struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Goal       string     `json:"goal"`
	Schedule   string     `json:"schedule"`
	Status     string     `json:"status"`
	NextRunAt  *time.Time `json:"next_run_at,omitempty"`
	LastRunAt  *time.Time `json:"last_run_at,omitempty"`
	LastRunID  string     `json:"last_run_id,omitempty"`
	LastStatus string     `json:"last_status,omitempty"`
	LastError  string     `json:"last_error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

const goalColumns = `id, name, goal, schedule, status, next_run_at, last_run_at, last_run_id, last_status, last_error, created_at`

func scanGoal(scanner interface {
	Scan(dest ...any) error
}) (*ScheduledGoal, error) {
	g := &ScheduledGoal{}
	var lastRunID, lastStatus, lastError *string
	err := scanner.Scan(&g.ID, &g.Name, &g.Goal, &g.Schedule, &g.Status,
		&g.NextRunAt, &g.LastRunAt, &lastRunID, &lastStatus, &lastError, &g.CreatedAt)
	if err != nil {
		return nil, err
	}
	if lastRunID != nil {
		g.LastRunID = *lastRunID
	}
	if lastStatus != nil {
		g.LastStatus = *lastStatus
	}
	if lastError != nil {
		g.LastError = *lastError
	}
	return g, nil
}

func (s *Store) SaveGoal(g *ScheduledGoal) error {
	if g.Status == "" {
		g.Status = "active"
	}
	_, err := s.db.Exec(`
		INSERT INTO scheduled_goals (id, name, goal, schedule, status, next_run_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			goal = excluded.goal,
			schedule = excluded.schedule,
			status = excluded.status,
			next_run_at = excluded.next_run_at`,
		g.ID, g.Name, g.Goal, g.Schedule, g.Status, utc(g.NextRunAt))
	if err != nil {
		return fmt.Errorf("save goal: %w", err)
	}
	return nil
}

func (s *Store) GetGoal(id string) (*ScheduledGoal, error) {
	row := s.db.QueryRow(`SELECT `+goalColumns+` FROM scheduled_goals WHERE id = ?`, id)
	g, err := scanGoal(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get goal: %w", err)
	}
	return g, nil
}

func (s *Store) ListGoals() ([]ScheduledGoal, error) {
	return s.queryGoals(`SELECT ` + goalColumns + ` FROM scheduled_goals ORDER BY created_at, rowid`)
}

// GetDueGoals returns active goals whose next run is at or before now.
func (s *Store) GetDueGoals(now time.Time) ([]ScheduledGoal, error) {
	goals, err := s.queryGoals(`
		SELECT `+goalColumns+` FROM scheduled_goals
		WHERE status = 'active' AND next_run_at <= ?
		ORDER BY next_run_at`, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("get due goals: %w", err)
	}
	return goals, nil
}

func (s *Store) queryGoals(query string, args ...any) ([]ScheduledGoal, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	defer rows.Close()

	var goals []ScheduledGoal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan goal: %w", err)
		}
		goals = append(goals, *g)
	}
	return goals, rows.Err()
}

// UpdateGoalRun records a started run. A nil nextRunAt leaves the goal
// without a next run, which is how one-shot schedules end.
func (s *Store) UpdateGoalRun(id, runID, lastStatus, lastError string, nextRunAt *time.Time) error {
	_, err := s.db.Exec(`
		UPDATE scheduled_goals
		SET last_run_at = ?, last_run_id = ?, last_status = ?, last_error = ?, next_run_at = ?
		WHERE id = ?`, time.Now().UTC(), runID, lastStatus, lastError, utc(nextRunAt), id)
	if err != nil {
		return fmt.Errorf("update goal run: %w", err)
	}
	return nil
}

func (s *Store) UpdateGoalStatus(id, status string) error {
	_, err := s.db.Exec(`UPDATE scheduled_goals SET status = ? WHERE id = ?`, status, id)
	return err
}

func (s *Store) DeleteGoal(id string) error {
	_, err := s.db.Exec(`DELETE FROM scheduled_goals WHERE id = ?`, id)
	return err
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
