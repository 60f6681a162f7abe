// Package actor defines the contract every crew member implements and the
// errors shared across the orchestration core.
package actor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/mtzanidakis/agentcrew/internal/message"
)

var (
	ErrRecipientNotFound = errors.New("recipient not found")
	ErrManagerNotSet     = errors.New("actor is not registered with a directory")
	ErrMissingField      = errors.New("missing required field")
)

// Router delivers a message to the actor registered under recipient.
type Router interface {
	Route(ctx context.Context, sender, recipient string, msg message.Message) error
}

// Actor is a named message handler. Receive is the entry point for routed
// messages; Execute performs the actor's work and returns a short status
// line meant for logs.
type Actor interface {
	Name() string
	Bind(r Router)
	Receive(ctx context.Context, sender string, msg message.Message)
	Execute(ctx context.Context, msg message.Message) string
}

// Base carries the name and directory binding of an actor. Embed it.
type Base struct {
	name string

	mu     sync.RWMutex
	router Router
}

func NewBase(name string) *Base {
	return &Base{name: name}
}

func (b *Base) Name() string {
	return b.name
}

// Bind is called by the directory on registration.
func (b *Base) Bind(r Router) {
	b.mu.Lock()
	b.router = r
	b.mu.Unlock()
}

// Send routes msg to recipient with this actor as the sender.
func (b *Base) Send(ctx context.Context, recipient string, msg message.Message) error {
	b.mu.RLock()
	r := b.router
	b.mu.RUnlock()
	if r == nil {
		return fmt.Errorf("send %s to %s: %w", msg.Type(), recipient, ErrManagerNotSet)
	}
	return r.Route(ctx, b.name, recipient, msg)
}

// MissingField returns an ErrMissingField naming fields.
func MissingField(fields ...string) error {
	return fmt.Errorf("%w: %s", ErrMissingField, strings.Join(fields, ", "))
}

// Require returns MissingField for every name whose value is empty, or nil.
// Arguments alternate name, value.
func Require(pairs ...string) error {
	var missing []string
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			missing = append(missing, pairs[i])
		}
	}
	if len(missing) > 0 {
		return MissingField(missing...)
	}
	return nil
}

// ErrorStatus renders err as an Execute status line.
func ErrorStatus(err error) string {
	return "Error: " + err.Error()
}
