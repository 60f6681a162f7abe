package config

import "reflect"

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	LLMChanged bool
	NewLLM     LLMConfig

	SearchChanged bool
	NewSearch     SearchConfig

	CrewChanged bool
	NewCrew     CrewConfig

	SchedulerChanged bool
	NewScheduler     SchedulerConfig

	LogLevelChanged bool
	NewLogLevel     string

	// Non-reloadable fields that changed (log warnings only)
	NonReloadable []string
}

// HasChanges reports whether any reloadable field changed.
func (d *ConfigDiff) HasChanges() bool {
	return d.LLMChanged ||
		d.SearchChanged ||
		d.CrewChanged ||
		d.SchedulerChanged ||
		d.LogLevelChanged
}

// Diff compares two configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	var d ConfigDiff

	if !reflect.DeepEqual(old.LLM, new.LLM) {
		d.LLMChanged = true
		d.NewLLM = new.LLM
	}
	if !reflect.DeepEqual(old.Search, new.Search) {
		d.SearchChanged = true
		d.NewSearch = new.Search
	}
	if old.Crew != new.Crew {
		d.CrewChanged = true
		d.NewCrew = new.Crew
	}
	if old.Scheduler.PollInterval != new.Scheduler.PollInterval {
		d.SchedulerChanged = true
		d.NewScheduler = new.Scheduler
	}
	if old.Log.Level != new.Log.Level {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Log.Level
	}

	if old.Store.Path != new.Store.Path {
		d.NonReloadable = append(d.NonReloadable, "store.path")
	}
	if old.NATS != new.NATS {
		d.NonReloadable = append(d.NonReloadable, "nats")
	}
	if old.Artifacts.Root != new.Artifacts.Root {
		d.NonReloadable = append(d.NonReloadable, "artifacts.root")
	}
	if old.Fetch != new.Fetch {
		d.NonReloadable = append(d.NonReloadable, "fetch")
	}

	return d
}
