package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fsnotify/fsnotify"

	"github.com/mtzanidakis/agentcrew/internal/config"
	"github.com/mtzanidakis/agentcrew/internal/crew"
	"github.com/mtzanidakis/agentcrew/internal/llm"
	"github.com/mtzanidakis/agentcrew/internal/natsbus"
	"github.com/mtzanidakis/agentcrew/internal/scheduler"
	"github.com/mtzanidakis/agentcrew/internal/search"
	"github.com/mtzanidakis/agentcrew/internal/store"
)

func runDaemon(cfg *config.Config) error {
	slog.Info("starting agentcrew daemon", "version", version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// SQLite store
	db, err := store.New(cfg.Store)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()
	slog.Info("store initialized", "path", cfg.Store.Path)

	// Embedded NATS
	var client *natsbus.Client
	if cfg.NATS.Enabled {
		bus, err := natsbus.New(cfg.NATS)
		if err != nil {
			return fmt.Errorf("init nats: %w", err)
		}
		defer bus.Close()

		client, err = natsbus.NewClient(bus)
		if err != nil {
			return fmt.Errorf("init nats client: %w", err)
		}
		defer client.Close()
		slog.Info("nats started", "url", bus.ClientURL())
	} else {
		slog.Warn("nats disabled, events and submit are unavailable")
	}

	coord, err := newCoordinator(ctx, cfg, db, client)
	if err != nil {
		return err
	}

	if client != nil {
		sub, err := client.ServeIPC(coord.HandleIPC)
		if err != nil {
			return fmt.Errorf("serve ipc: %w", err)
		}
		defer func() { _ = sub.Unsubscribe() }()
	}

	sched := scheduler.New(db, coord, client, cfg.Scheduler)
	go sched.Start(ctx)

	rl := &reloader{current: cfg, coord: coord, sched: sched}
	go func() {
		if err := rl.watch(ctx, config.Path()); err != nil {
			slog.Warn("config watcher disabled", "error", err)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	signal.Stop(sigCh)
	slog.Info("shutting down", "signal", sig)
	cancel()

	// Runs in progress see the cancelled context and are recorded as failed.
	coord.Wait()
	return nil
}

// reloader applies config file changes to the running daemon.
type reloader struct {
	current *config.Config
	coord   *crew.Coordinator
	sched   *scheduler.Scheduler
}

// watch reloads whenever the config file is written or replaced. The
// parent directory is watched so editors that rename over the file are
// still seen.
func (r *reloader) watch(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}
	target := filepath.Clean(path)
	slog.Info("watching config", "path", target)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				r.reload(ctx)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("config watcher error", "error", err)
		}
	}
}

func (r *reloader) reload(ctx context.Context) {
	next, err := config.Load()
	if err != nil {
		slog.Error("config reload failed", "error", err)
		return
	}

	d := config.Diff(r.current, next)
	for _, field := range d.NonReloadable {
		slog.Warn("config change requires restart", "field", field)
	}
	if !d.HasChanges() {
		r.current = next
		return
	}

	var completer llm.Completer
	if d.LLMChanged {
		c, err := llm.NewFromConfig(ctx, d.NewLLM)
		if err != nil {
			slog.Error("llm reload failed, keeping current provider", "error", err)
			next.LLM = r.current.LLM
		} else {
			completer = c
			slog.Info("llm reconfigured", "provider", d.NewLLM.Provider, "model", d.NewLLM.Model)
		}
	}
	var searcher search.Searcher
	if d.SearchChanged {
		searcher = search.NewBrave(d.NewSearch)
	}
	if completer != nil || searcher != nil || d.CrewChanged {
		r.coord.Reconfigure(completer, searcher, next.Crew)
	}
	if d.SchedulerChanged {
		r.sched.UpdateConfig(d.NewScheduler.PollInterval)
	}
	if d.LogLevelChanged {
		logLevel.Set(parseLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}

	r.current = next
}
