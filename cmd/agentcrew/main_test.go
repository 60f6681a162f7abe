package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mtzanidakis/agentcrew/internal/config"
	"github.com/mtzanidakis/agentcrew/internal/crew"
	"github.com/mtzanidakis/agentcrew/internal/scheduler"
	"github.com/mtzanidakis/agentcrew/internal/store"
)

func TestParseArgs(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want map[string]string
	}{
		{
			name: "empty",
			args: []string{},
			want: map[string]string{},
		},
		{
			name: "multiple flags",
			args: []string{"--name", "nightly", "--schedule", "0 2 * * *", "--goal", "build it"},
			want: map[string]string{"name": "nightly", "schedule": "0 2 * * *", "goal": "build it"},
		},
		{
			name: "flag without value is ignored",
			args: []string{"--goal"},
			want: map[string]string{},
		},
		{
			name: "non-flag args ignored",
			args: []string{"add", "--id", "abc"},
			want: map[string]string{"id": "abc"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseArgs(tt.args)
			if len(got) != len(tt.want) {
				t.Errorf("parseArgs(%v) returned %d entries, want %d", tt.args, len(got), len(tt.want))
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("parseArgs(%v)[%q] = %q, want %q", tt.args, k, got[k], v)
				}
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q): expected %v, got %v", in, want, got)
		}
	}
}

func TestReadGoal(t *testing.T) {
	goal, err := readGoal(map[string]string{"goal": "  build a page  "})
	if err != nil || goal != "build a page" {
		t.Errorf("expected trimmed goal, got %q / %v", goal, err)
	}

	path := filepath.Join(t.TempDir(), "goal.txt")
	if err := os.WriteFile(path, []byte("from file\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	goal, err = readGoal(map[string]string{"goal": "ignored", "goal-file": path})
	if err != nil || goal != "from file" {
		t.Errorf("expected goal from file, got %q / %v", goal, err)
	}

	if _, err := readGoal(map[string]string{}); err == nil {
		t.Error("expected error for missing goal")
	}
	if _, err := readGoal(map[string]string{"goal-file": filepath.Join(t.TempDir(), "missing")}); err == nil {
		t.Error("expected error for missing goal file")
	}
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(config.StoreConfig{Path: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAddAndResumeGoal(t *testing.T) {
	db := newTestStore(t)
	now := time.Now()

	g, err := addGoal(db, map[string]string{"name": "hourly", "schedule": "every 1h", "goal": "refresh the report"}, now)
	if err != nil {
		t.Fatalf("add goal: %v", err)
	}
	if g.Schedule != `{"kind":"interval","interval_ms":3600000}` {
		t.Errorf("expected normalized schedule, got %s", g.Schedule)
	}
	if g.NextRunAt == nil || !g.NextRunAt.Equal(now.Add(time.Hour).UTC()) {
		t.Errorf("expected next run an hour out, got %v", g.NextRunAt)
	}

	if _, err := addGoal(db, map[string]string{"name": "x", "schedule": "sometimes", "goal": "x"}, now); err == nil {
		t.Error("expected error for invalid schedule")
	}
	if _, err := addGoal(db, map[string]string{"name": "x"}, now); err == nil {
		t.Error("expected error for missing fields")
	}

	if err := db.UpdateGoalStatus(g.ID, "paused"); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if err := resumeGoal(db, g.ID, now); err != nil {
		t.Fatalf("resume: %v", err)
	}
	saved, _ := db.GetGoal(g.ID)
	if saved.Status != "active" {
		t.Errorf("expected active after resume, got %s", saved.Status)
	}
	if err := resumeGoal(db, "missing", now); err == nil {
		t.Error("expected error for unknown goal")
	}
}

func TestPrintRun(t *testing.T) {
	run := &store.Run{ID: "r1", Goal: "build\na page", Source: "cli", Status: store.RunFinished, Summary: "Done."}
	evals := []store.Evaluation{{Seq: 1, TaskID: 2, FilePath: "index.html", Status: "approved", Feedback: "looks good"}}

	var buf bytes.Buffer
	printRun(&buf, run, evals)
	out := buf.String()

	for _, want := range []string{"Run:     r1", "Status:  finished", "Goal:    build a page", "index.html", "approved", "Summary:\nDone."} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Error:") {
		t.Errorf("unexpected error line in:\n%s", out)
	}
}

func TestOneLine(t *testing.T) {
	if got := oneLine("a\n  b\tc", 10); got != "a b c" {
		t.Errorf("expected collapsed whitespace, got %q", got)
	}
	if got := oneLine("αβγδε", 3); got != "αβγ..." {
		t.Errorf("expected rune-safe cut, got %q", got)
	}
}

func TestReloadAppliesChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agentcrew.yaml")
	t.Setenv("AGENTCREW_CONFIG", path)
	t.Setenv("AGENTCREW_ENV_FILE", filepath.Join(dir, "missing.env"))
	t.Setenv("AGENTCREW_LOG_LEVEL", "")
	t.Setenv("AGENTCREW_MAX_REVISIONS", "")

	if err := os.WriteFile(path, []byte("log:\n  level: info\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	db := newTestStore(t)
	coord := crew.NewCoordinator(crew.Options{Store: db})
	rl := &reloader{current: cfg, coord: coord, sched: scheduler.New(db, coord, nil, cfg.Scheduler)}

	logLevel.Set(slog.LevelInfo)
	t.Cleanup(func() { logLevel.Set(slog.LevelInfo) })

	updated := "log:\n  level: debug\ncrew:\n  max_revisions: 2\nscheduler:\n  poll_interval: 1m\n"
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatal(err)
	}
	rl.reload(context.Background())

	if logLevel.Level() != slog.LevelDebug {
		t.Errorf("expected debug level, got %v", logLevel.Level())
	}
	if rl.current.Crew.MaxRevisions != 2 {
		t.Errorf("expected max revisions 2, got %d", rl.current.Crew.MaxRevisions)
	}
	if rl.current.Scheduler.PollInterval != time.Minute {
		t.Errorf("expected poll interval 1m, got %v", rl.current.Scheduler.PollInterval)
	}
}

func TestReloadKeepsConfigOnParseError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agentcrew.yaml")
	t.Setenv("AGENTCREW_CONFIG", path)
	t.Setenv("AGENTCREW_ENV_FILE", filepath.Join(dir, "missing.env"))

	cfg := &config.Config{Log: config.LogConfig{Level: "info"}}
	rl := &reloader{current: cfg}

	if err := os.WriteFile(path, []byte("log: [unclosed\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	rl.reload(context.Background())

	if rl.current != cfg {
		t.Error("expected current config to be kept after a parse error")
	}
}
