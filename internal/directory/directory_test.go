package directory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mtzanidakis/agentcrew/internal/actor"
	"github.com/mtzanidakis/agentcrew/internal/message"
)

type fakeActor struct {
	*actor.Base

	mu       sync.Mutex
	received []message.Message
	senders  []string
	executed []message.Message

	active    atomic.Int32
	maxActive atomic.Int32
	delay     time.Duration
	onReceive func(ctx context.Context, p *fakeActor, sender string, msg message.Message)
}

func newFakeActor(name string) *fakeActor {
	return &fakeActor{Base: actor.NewBase(name)}
}

func (p *fakeActor) Receive(ctx context.Context, sender string, msg message.Message) {
	n := p.active.Add(1)
	defer p.active.Add(-1)
	for {
		m := p.maxActive.Load()
		if n <= m || p.maxActive.CompareAndSwap(m, n) {
			break
		}
	}
	if p.delay > 0 {
		time.Sleep(p.delay)
	}

	p.mu.Lock()
	p.received = append(p.received, msg)
	p.senders = append(p.senders, sender)
	p.mu.Unlock()

	if p.onReceive != nil {
		p.onReceive(ctx, p, sender, msg)
	}
}

func (p *fakeActor) Execute(_ context.Context, msg message.Message) string {
	p.mu.Lock()
	p.executed = append(p.executed, msg)
	p.mu.Unlock()
	return "ok"
}

func (p *fakeActor) snapshot() ([]message.Message, []string, []message.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]message.Message(nil), p.received...),
		append([]string(nil), p.senders...),
		append([]message.Message(nil), p.executed...)
}

type envelopeLog struct {
	mu   sync.Mutex
	envs []message.Envelope
}

func (l *envelopeLog) Observe(env message.Envelope) {
	l.mu.Lock()
	l.envs = append(l.envs, env)
	l.mu.Unlock()
}

func TestRouteUnknownRecipient(t *testing.T) {
	d := New()
	planner := newFakeActor("Planner")
	d.Register(planner)

	err := d.Route(context.Background(), "Planner", "Ghost", message.TaskComplete{})
	if !errors.Is(err, actor.ErrRecipientNotFound) {
		t.Fatalf("expected ErrRecipientNotFound, got %v", err)
	}
	d.Wait()

	received, _, _ := planner.snapshot()
	if len(received) != 0 {
		t.Errorf("expected no deliveries, got %d", len(received))
	}
}

func TestRouteDelivers(t *testing.T) {
	d := New()
	coder := newFakeActor("Coder")
	d.Register(coder)

	msg := message.CodingTask{TaskID: 1, FilePath: "a.js", Description: "write it"}
	if err := d.Route(context.Background(), "Planner", "Coder", msg); err != nil {
		t.Fatalf("route: %v", err)
	}
	d.Wait()

	received, senders, _ := coder.snapshot()
	if len(received) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(received))
	}
	if senders[0] != "Planner" {
		t.Errorf("expected sender Planner, got %s", senders[0])
	}
	if got, ok := received[0].(message.CodingTask); !ok || got.FilePath != "a.js" {
		t.Errorf("unexpected message: %#v", received[0])
	}
}

func TestRoutePreservesOrderAndSerializes(t *testing.T) {
	d := New()
	sink := newFakeActor("Sink")
	sink.delay = time.Millisecond
	d.Register(sink)

	const n = 50
	for i := 1; i <= n; i++ {
		if err := d.Route(context.Background(), "Src", "Sink", message.TaskComplete{TaskID: i}); err != nil {
			t.Fatalf("route %d: %v", i, err)
		}
	}
	d.Wait()

	received, _, _ := sink.snapshot()
	if len(received) != n {
		t.Fatalf("expected %d deliveries, got %d", n, len(received))
	}
	for i, m := range received {
		if id := m.(message.TaskComplete).TaskID; id != i+1 {
			t.Fatalf("expected task %d at position %d, got %d", i+1, i, id)
		}
	}
	if got := sink.maxActive.Load(); got != 1 {
		t.Errorf("expected at most 1 concurrent handler, got %d", got)
	}
}

func TestNestedRouting(t *testing.T) {
	d := New()
	ping := newFakeActor("Ping")
	pong := newFakeActor("Pong")

	ping.onReceive = func(ctx context.Context, p *fakeActor, _ string, msg message.Message) {
		tc := msg.(message.TaskComplete)
		if tc.TaskID < 5 {
			_ = p.Send(ctx, "Pong", message.TaskComplete{TaskID: tc.TaskID + 1})
		}
	}
	pong.onReceive = func(ctx context.Context, p *fakeActor, _ string, msg message.Message) {
		tc := msg.(message.TaskComplete)
		_ = p.Send(ctx, "Ping", message.TaskComplete{TaskID: tc.TaskID + 1})
	}
	d.Register(ping)
	d.Register(pong)

	if err := d.Route(context.Background(), "test", "Ping", message.TaskComplete{TaskID: 0}); err != nil {
		t.Fatalf("route: %v", err)
	}
	d.Wait()

	pingGot, _, _ := ping.snapshot()
	pongGot, _, _ := pong.snapshot()
	if len(pingGot) != 4 || len(pongGot) != 3 {
		t.Fatalf("expected ping=4 pong=3, got ping=%d pong=%d", len(pingGot), len(pongGot))
	}
}

func TestRegisterReplaces(t *testing.T) {
	d := New()
	first := newFakeActor("Coder")
	second := newFakeActor("Coder")

	if d.Register(first) {
		t.Fatal("expected first registration not to replace")
	}
	if !d.Register(second) {
		t.Fatal("expected second registration to replace")
	}

	if err := d.Route(context.Background(), "Planner", "Coder", message.TaskComplete{}); err != nil {
		t.Fatalf("route: %v", err)
	}
	d.Wait()

	got1, _, _ := first.snapshot()
	got2, _, _ := second.snapshot()
	if len(got1) != 0 || len(got2) != 1 {
		t.Errorf("expected delivery to the latest registration, got first=%d second=%d", len(got1), len(got2))
	}
	if names := d.Names(); len(names) != 1 || names[0] != "Coder" {
		t.Errorf("expected [Coder], got %v", names)
	}
}

func TestDispatchGoal(t *testing.T) {
	d := New()
	planner := newFakeActor("Planner")
	d.Register(planner)

	if err := d.DispatchGoal(context.Background(), "Planner", "build a site"); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	d.Wait()

	received, _, executed := planner.snapshot()
	if len(received) != 0 {
		t.Errorf("expected goal to bypass Receive, got %d receives", len(received))
	}
	if len(executed) != 1 {
		t.Fatalf("expected 1 execute, got %d", len(executed))
	}
	if g := executed[0].(message.Goal); g.Text != "build a site" {
		t.Errorf("expected goal text, got %q", g.Text)
	}

	if err := d.DispatchGoal(context.Background(), "Nobody", "x"); !errors.Is(err, actor.ErrRecipientNotFound) {
		t.Errorf("expected ErrRecipientNotFound, got %v", err)
	}
}

func TestObserver(t *testing.T) {
	d := New()
	log := &envelopeLog{}
	d.SetObserver(log)
	d.Register(newFakeActor("Evaluator"))

	_ = d.Route(context.Background(), "Planner", "Evaluator", message.EvaluationRequest{FilePath: "x"})
	_ = d.Route(context.Background(), "Planner", "Ghost", message.EvaluationRequest{})
	d.Wait()

	log.mu.Lock()
	defer log.mu.Unlock()
	if len(log.envs) != 1 {
		t.Fatalf("expected 1 observed envelope, got %d", len(log.envs))
	}
	if log.envs[0].Recipient != "Evaluator" || log.envs[0].Sender != "Planner" {
		t.Errorf("unexpected envelope: %+v", log.envs[0])
	}
}

func TestCancelledContextDropsDelivery(t *testing.T) {
	d := New()
	sink := newFakeActor("Sink")
	d.Register(sink)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := d.Route(ctx, "Src", "Sink", message.TaskComplete{}); err != nil {
		t.Fatalf("route: %v", err)
	}
	d.Wait()

	received, _, _ := sink.snapshot()
	if len(received) != 0 {
		t.Errorf("expected delivery to be dropped, got %d", len(received))
	}
}
