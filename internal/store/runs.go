package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Run statuses. Every status except RunRunning is terminal.
const (
	RunRunning  = "running"
	RunFinished = "finished"
	RunIdle     = "idle"
	RunFailed   = "failed"
)

type Run struct {
	ID          string     `json:"id"`
	Goal        string     `json:"goal"`
	Source      string     `json:"source"`
	Status      string     `json:"status"`
	Summary     string     `json:"summary,omitempty"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Evaluation is one verdict recorded during a run, in arrival order.
type Evaluation struct {
	RunID     string    `json:"run_id"`
	Seq       int       `json:"seq"`
	TaskID    int       `json:"task_id"`
	FilePath  string    `json:"file_path"`
	Status    string    `json:"status"`
	Feedback  string    `json:"feedback,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func scanRun(scanner interface {
	Scan(dest ...any) error
}) (*Run, error) {
	r := &Run{}
	var summary, errText *string
	err := scanner.Scan(&r.ID, &r.Goal, &r.Source, &r.Status, &summary, &errText, &r.StartedAt, &r.CompletedAt)
	if err != nil {
		return nil, err
	}
	if summary != nil {
		r.Summary = *summary
	}
	if errText != nil {
		r.Error = *errText
	}
	return r, nil
}

const runColumns = `id, goal, source, status, summary, error, started_at, completed_at`

func (s *Store) SaveRun(r *Run) error {
	if r.Source == "" {
		r.Source = "cli"
	}
	if r.Status == "" {
		r.Status = RunRunning
	}
	_, err := s.db.Exec(`
		INSERT INTO runs (id, goal, source, status, summary, error)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			summary = excluded.summary,
			error = excluded.error,
			completed_at = CASE WHEN excluded.status != 'running' THEN CURRENT_TIMESTAMP ELSE completed_at END`,
		r.ID, r.Goal, r.Source, r.Status, r.Summary, r.Error)
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}

func (s *Store) GetRun(id string) (*Run, error) {
	row := s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

// ListRuns returns the most recent runs first. limit <= 0 returns all.
func (s *Store) ListRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// UpdateRun records the outcome of a run. A terminal status stamps
// completed_at.
func (s *Store) UpdateRun(id, status, summary, errText string) error {
	_, err := s.db.Exec(`
		UPDATE runs
		SET status = ?, summary = ?, error = ?,
		    completed_at = CASE WHEN ? != 'running' THEN CURRENT_TIMESTAMP ELSE completed_at END
		WHERE id = ?`, status, summary, errText, status, id)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	return nil
}

// DeleteRun removes a run and its evaluation record.
func (s *Store) DeleteRun(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`DELETE FROM evaluations WHERE run_id = ?`, id); err != nil {
		return fmt.Errorf("delete evaluations: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM runs WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	return tx.Commit()
}

// SaveEvaluations replaces the evaluation record of a run.
func (s *Store) SaveEvaluations(runID string, evals []Evaluation) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`DELETE FROM evaluations WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("clear evaluations: %w", err)
	}
	for i, e := range evals {
		if _, err := tx.Exec(`
			INSERT INTO evaluations (run_id, seq, task_id, file_path, status, feedback)
			VALUES (?, ?, ?, ?, ?, ?)`,
			runID, i+1, e.TaskID, e.FilePath, e.Status, e.Feedback); err != nil {
			return fmt.Errorf("insert evaluation: %w", err)
		}
	}
	return tx.Commit()
}

func (s *Store) ListEvaluations(runID string) ([]Evaluation, error) {
	rows, err := s.db.Query(`
		SELECT run_id, seq, task_id, file_path, status, feedback, created_at
		FROM evaluations WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("list evaluations: %w", err)
	}
	defer rows.Close()

	var evals []Evaluation
	for rows.Next() {
		var e Evaluation
		var feedback *string
		if err := rows.Scan(&e.RunID, &e.Seq, &e.TaskID, &e.FilePath, &e.Status, &feedback, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan evaluation: %w", err)
		}
		if feedback != nil {
			e.Feedback = *feedback
		}
		evals = append(evals, e)
	}
	return evals, rows.Err()
}
