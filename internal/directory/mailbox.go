package directory

import (
	"context"
	"sync"

	"github.com/mtzanidakis/agentcrew/internal/message"
)

type delivery struct {
	ctx    context.Context
	sender string
	msg    message.Message
	// direct deliveries go to Execute instead of Receive.
	direct bool
}

// mailbox holds the deliveries waiting for one actor. Ownership of the
// drain passes with the queue state: push reports when the caller must
// start a drainer, and next gives ownership up in the same critical
// section that finds the queue empty, so a delivery is never left behind.
type mailbox struct {
	name string

	mu       sync.Mutex
	queue    []delivery
	draining bool
}

func newMailbox(name string) *mailbox {
	return &mailbox{name: name}
}

// push queues d and reports whether no drainer was running.
func (m *mailbox) push(d delivery) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, d)
	if m.draining {
		return false
	}
	m.draining = true
	return true
}

// next pops the oldest delivery. On an empty queue the drainer stops.
func (m *mailbox) next() (delivery, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) == 0 {
		m.draining = false
		return delivery{}, false
	}
	d := m.queue[0]
	m.queue[0] = delivery{}
	m.queue = m.queue[1:]
	return d, true
}

func (m *mailbox) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}
