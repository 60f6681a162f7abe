package config

import (
	"testing"
	"time"
)

func TestDiff_NoChanges(t *testing.T) {
	cfg := defaults()
	d := Diff(&cfg, &cfg)
	if d.HasChanges() {
		t.Error("expected no changes")
	}
	if len(d.NonReloadable) != 0 {
		t.Errorf("expected no non-reloadable changes, got %v", d.NonReloadable)
	}
}

func TestDiff_LLMChanged(t *testing.T) {
	old := defaults()
	new := defaults()
	new.LLM.Model = "gpt-other"

	d := Diff(&old, &new)
	if !d.LLMChanged {
		t.Fatal("expected llm change")
	}
	if d.NewLLM.Model != "gpt-other" {
		t.Errorf("expected new model gpt-other, got %s", d.NewLLM.Model)
	}
	if d.CrewChanged || d.SchedulerChanged || d.SearchChanged {
		t.Error("expected only the llm section to change")
	}
}

func TestDiff_SchedulerAndCrew(t *testing.T) {
	old := defaults()
	new := defaults()
	new.Scheduler.PollInterval = 5 * time.Second
	new.Crew.MaxRevisions = 4

	d := Diff(&old, &new)
	if !d.SchedulerChanged || d.NewScheduler.PollInterval != 5*time.Second {
		t.Errorf("expected scheduler change to 5s, got %+v", d.NewScheduler)
	}
	if !d.CrewChanged || d.NewCrew.MaxRevisions != 4 {
		t.Errorf("expected crew change to 4 revisions, got %+v", d.NewCrew)
	}
	if !d.HasChanges() {
		t.Error("expected HasChanges")
	}
}

func TestDiff_NonReloadable(t *testing.T) {
	old := defaults()
	new := defaults()
	new.Store.Path = "/elsewhere.db"
	new.NATS.Port = 5222

	d := Diff(&old, &new)
	if d.HasChanges() {
		t.Error("non-reloadable fields must not count as reloadable changes")
	}
	if len(d.NonReloadable) != 2 {
		t.Fatalf("expected 2 non-reloadable changes, got %v", d.NonReloadable)
	}
	if d.NonReloadable[0] != "store.path" || d.NonReloadable[1] != "nats" {
		t.Errorf("unexpected non-reloadable list %v", d.NonReloadable)
	}
}
