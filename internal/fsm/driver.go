package fsm

import (
	"context"
	"sync"

	"github.com/deckforge/orchestrator/internal/envelope"
)

// Driver hosts a single session's execution and serializes its inbound
// work: at most one outbound generator call is in flight per session, and
// inbound messages are processed in arrival order. InProcessDriver is the
// only implementation; the interface exists so a durable workflow backend
// could host the same Machine without changing transition logic.
type Driver interface {
	// Connect runs the work due on connection accept for sessionID.
	Connect(ctx context.Context, sessionID, userID string) ([]envelope.Event, error)
	// Submit processes one inbound user message for sessionID, serialized
	// against any other Submit/Connect call for the same session.
	Submit(ctx context.Context, sessionID, userID, text string) ([]envelope.Event, error)
	// Cancel cancels any in-flight work for sessionID, used when a client
	// disconnects so pending generator calls stop cooperatively.
	Cancel(sessionID string)
}

// InProcessDriver hosts every session's Machine calls in the current
// process, serialized per session by a dedicated lock and cancelable via a
// per-session context.
type InProcessDriver struct {
	machine *Machine

	mu       sync.Mutex
	sessions map[string]*sessionHost
}

type sessionHost struct {
	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewInProcessDriver constructs an InProcessDriver over machine.
func NewInProcessDriver(machine *Machine) *InProcessDriver {
	return &InProcessDriver{machine: machine, sessions: make(map[string]*sessionHost)}
}

func (d *InProcessDriver) hostFor(sessionID string) *sessionHost {
	d.mu.Lock()
	defer d.mu.Unlock()
	h, ok := d.sessions[sessionID]
	if !ok {
		h = &sessionHost{}
		d.sessions[sessionID] = h
	}
	return h
}

// Connect implements Driver.
func (d *InProcessDriver) Connect(ctx context.Context, sessionID, userID string) ([]envelope.Event, error) {
	return d.run(ctx, sessionID, func(ctx context.Context) ([]envelope.Event, error) {
		return d.machine.HandleConnect(ctx, sessionID, userID)
	})
}

// Submit implements Driver.
func (d *InProcessDriver) Submit(ctx context.Context, sessionID, userID, text string) ([]envelope.Event, error) {
	return d.run(ctx, sessionID, func(ctx context.Context) ([]envelope.Event, error) {
		return d.machine.HandleMessage(ctx, sessionID, userID, text)
	})
}

// run serializes fn against any other in-flight call for sessionID and
// arms a cancelable context so Cancel can stop it cooperatively.
func (d *InProcessDriver) run(ctx context.Context, sessionID string, fn func(context.Context) ([]envelope.Event, error)) ([]envelope.Event, error) {
	host := d.hostFor(sessionID)
	host.mu.Lock()
	defer host.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	d.mu.Lock()
	host.cancel = cancel
	d.mu.Unlock()
	defer cancel()

	return fn(runCtx)
}

// Cancel implements Driver.
func (d *InProcessDriver) Cancel(sessionID string) {
	d.mu.Lock()
	h, ok := d.sessions[sessionID]
	var cancel context.CancelFunc
	if ok {
		cancel = h.cancel
	}
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

var _ Driver = (*InProcessDriver)(nil)
