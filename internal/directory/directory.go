// Package directory routes messages between actors by name. Each actor has
// its own mailbox, drained by at most one goroutine, so an actor never
// handles two messages at once and messages from one sender arrive in the
// order they were routed.
package directory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/mtzanidakis/agentcrew/internal/actor"
	"github.com/mtzanidakis/agentcrew/internal/message"
)

// Observer sees every envelope accepted by Route, before delivery.
type Observer interface {
	Observe(env message.Envelope)
}

type Directory struct {
	mu       sync.RWMutex
	actors   map[string]actor.Actor
	boxes    map[string]*mailbox
	observer Observer

	wg sync.WaitGroup
}

func New() *Directory {
	return &Directory{
		actors: make(map[string]actor.Actor),
		boxes:  make(map[string]*mailbox),
	}
}

// SetObserver installs o. Pass nil to remove it.
func (d *Directory) SetObserver(o Observer) {
	d.mu.Lock()
	d.observer = o
	d.mu.Unlock()
}

// Register adds a under a.Name() and binds it to the directory. A name that
// is already taken is replaced: the last registration wins, and the
// mailbox (with anything still queued in it) is handed to the new actor.
// The return value reports whether a previous actor was replaced.
func (d *Directory) Register(a actor.Actor) bool {
	name := a.Name()

	d.mu.Lock()
	_, replaced := d.actors[name]
	d.actors[name] = a
	if _, ok := d.boxes[name]; !ok {
		d.boxes[name] = newMailbox(name)
	}
	d.mu.Unlock()

	a.Bind(d)

	if replaced {
		slog.Warn("actor re-registered, previous instance replaced", "actor", name)
	} else {
		slog.Debug("actor registered", "actor", name)
	}
	return replaced
}

// Lookup returns the actor registered under name.
func (d *Directory) Lookup(name string) (actor.Actor, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	a, ok := d.actors[name]
	return a, ok
}

// Names returns the registered actor names, sorted.
func (d *Directory) Names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.actors))
	for n := range d.actors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Route queues msg for recipient. It returns an error wrapping
// actor.ErrRecipientNotFound when no actor has that name; the message is
// dropped in that case.
func (d *Directory) Route(ctx context.Context, sender, recipient string, msg message.Message) error {
	d.mu.RLock()
	box, ok := d.boxes[recipient]
	_, registered := d.actors[recipient]
	observer := d.observer
	d.mu.RUnlock()

	if !ok || !registered {
		slog.Warn("dropping message for unknown recipient", "sender", sender, "recipient", recipient, "type", msg.Type())
		return fmt.Errorf("route %s from %s to %s: %w", msg.Type(), sender, recipient, actor.ErrRecipientNotFound)
	}

	if observer != nil {
		observer.Observe(message.Envelope{
			Sender:    sender,
			Recipient: recipient,
			Message:   msg,
			RoutedAt:  time.Now().UTC(),
		})
	}

	slog.Debug("routing message", "sender", sender, "recipient", recipient, "type", msg.Type())
	d.post(box, delivery{ctx: ctx, sender: sender, msg: msg})
	return nil
}

// DispatchGoal hands goal to the Execute entry point of the named actor,
// serialized with its other deliveries.
func (d *Directory) DispatchGoal(ctx context.Context, name, goal string) error {
	d.mu.RLock()
	box, ok := d.boxes[name]
	_, registered := d.actors[name]
	d.mu.RUnlock()

	if !ok || !registered {
		return fmt.Errorf("dispatch goal to %s: %w", name, actor.ErrRecipientNotFound)
	}

	slog.Info("dispatching goal", "actor", name)
	d.post(box, delivery{ctx: ctx, msg: message.Goal{Text: goal}, direct: true})
	return nil
}

// Wait blocks until every mailbox is drained and no handler is running.
func (d *Directory) Wait() {
	d.wg.Wait()
}

// post queues dl and starts a drainer unless one already owns the box.
func (d *Directory) post(box *mailbox, dl delivery) {
	if !box.push(dl) {
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for dl, ok := box.next(); ok; dl, ok = box.next() {
			d.deliver(box.name, dl)
		}
	}()
}

func (d *Directory) deliver(name string, dl delivery) {
	if err := dl.ctx.Err(); err != nil {
		slog.Warn("dropping message, context done", "recipient", name, "type", dl.msg.Type(), "error", err)
		return
	}

	a, ok := d.Lookup(name)
	if !ok {
		slog.Warn("dropping message, recipient gone", "recipient", name, "type", dl.msg.Type())
		return
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("actor handler panicked", "actor", name, "type", dl.msg.Type(), "panic", r)
		}
	}()

	if dl.direct {
		status := a.Execute(dl.ctx, dl.msg)
		slog.Info("task accepted", "actor", name, "status", status)
		return
	}
	a.Receive(dl.ctx, dl.sender, dl.msg)
}
