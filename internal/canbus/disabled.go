package canbus

import (
	"context"
	"net/http"
	"sync"

	"github.com/banshee-data/canpilot/internal/can"
)

// DisabledBus is a no-op Bus used when no CAN hardware is attached. Sent
// frames are discarded and subscribers never receive anything, but their
// channels are closed on Unsubscribe or Close so readers unblock.
type DisabledBus struct {
	mu          sync.Mutex
	subscribers map[string]chan can.Frame
	closing     bool
}

var _ Bus = (*DisabledBus)(nil)

func NewDisabledBus() *DisabledBus {
	return &DisabledBus{subscribers: make(map[string]chan can.Frame)}
}

func (d *DisabledBus) Subscribe() (string, chan can.Frame) {
	id := randomID()
	ch := make(chan can.Frame)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closing {
		close(ch)
		return id, ch
	}
	d.subscribers[id] = ch
	return id, ch
}

func (d *DisabledBus) Unsubscribe(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ch, ok := d.subscribers[id]; ok {
		close(ch)
		delete(d.subscribers, id)
	}
}

func (d *DisabledBus) Send(can.Frame) error { return nil }

func (d *DisabledBus) Initialize() error { return nil }

func (d *DisabledBus) Monitor(ctx context.Context) error { <-ctx.Done(); return ctx.Err() }

func (d *DisabledBus) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closing {
		return nil
	}
	d.closing = true
	for id, ch := range d.subscribers {
		close(ch)
		delete(d.subscribers, id)
	}
	return nil
}

func (d *DisabledBus) AttachAdminRoutes(mux *http.ServeMux) {
	attachAdminRoutes(mux, d, nil)
}
