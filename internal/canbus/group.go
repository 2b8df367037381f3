package canbus

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/banshee-data/canpilot/internal/can"
)

// ErrNoBus is returned by Group.Send for a bus index with no channel.
var ErrNoBus = errors.New("no channel for bus")

type groupSub struct {
	memberIDs map[uint8]string
}

// Group joins one Bus per bus index. Subscribers see frames from every
// member; Send routes on the frame's Bus field.
type Group struct {
	members map[uint8]Bus

	mu   sync.Mutex
	subs map[string]groupSub

	// dropped counts frames a full group subscriber missed.
	dropped atomic.Uint64
}

var _ Bus = (*Group)(nil)

// NewGroup returns a group over the given channels, keyed by bus index.
func NewGroup(members map[uint8]Bus) *Group {
	m := make(map[uint8]Bus, len(members))
	for k, v := range members {
		m[k] = v
	}
	return &Group{members: m, subs: make(map[string]groupSub)}
}

// Buses returns the member bus indexes in ascending order.
func (g *Group) Buses() []uint8 {
	out := make([]uint8, 0, len(g.members))
	for k := range g.members {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Subscribe fans in every member. The returned channel closes once all
// member subscriptions have ended.
func (g *Group) Subscribe() (string, chan can.Frame) {
	id := randomID()
	out := make(chan can.Frame, subscriberBuffer)
	sub := groupSub{memberIDs: make(map[uint8]string, len(g.members))}

	var wg sync.WaitGroup
	for bus, m := range g.members {
		mid, ch := m.Subscribe()
		sub.memberIDs[bus] = mid
		wg.Add(1)
		go func() {
			defer wg.Done()
			for f := range ch {
				select {
				case out <- f:
				default:
					g.dropped.Add(1)
				}
			}
		}()
	}
	go func() {
		wg.Wait()
		close(out)
	}()

	g.mu.Lock()
	g.subs[id] = sub
	g.mu.Unlock()
	return id, out
}

func (g *Group) Unsubscribe(id string) {
	g.mu.Lock()
	sub, ok := g.subs[id]
	delete(g.subs, id)
	g.mu.Unlock()
	if !ok {
		return
	}
	for bus, mid := range sub.memberIDs {
		g.members[bus].Unsubscribe(mid)
	}
}

func (g *Group) Send(f can.Frame) error {
	m, ok := g.members[f.Bus]
	if !ok {
		return fmt.Errorf("%w %d", ErrNoBus, f.Bus)
	}
	return m.Send(f)
}

// Initialize initializes every member.
func (g *Group) Initialize() error {
	for _, bus := range g.Buses() {
		if err := g.members[bus].Initialize(); err != nil {
			return fmt.Errorf("bus %d: %w", bus, err)
		}
	}
	return nil
}

// Monitor runs every member's Monitor. The first member to stop with an
// error cancels the rest and its error is returned.
func (g *Group) Monitor(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errs := make(chan error, len(g.members))
	var wg sync.WaitGroup
	for bus, m := range g.members {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errs <- fmt.Errorf("bus %d: %w", bus, err)
				cancel()
			}
		}()
	}
	wg.Wait()
	close(errs)

	if err, ok := <-errs; ok {
		return err
	}
	return ctx.Err()
}

// Dropped returns the frames lost because a group subscriber was full.
func (g *Group) Dropped() uint64 { return g.dropped.Load() }

func (g *Group) Close() error {
	var errs []error
	for _, bus := range g.Buses() {
		if err := g.members[bus].Close(); err != nil {
			errs = append(errs, fmt.Errorf("bus %d: %w", bus, err))
		}
	}
	return errors.Join(errs...)
}

func (g *Group) AttachAdminRoutes(mux *http.ServeMux) {
	attachAdminRoutes(mux, g, func() any {
		stats := map[string]Stats{"group": {Dropped: g.dropped.Load()}}
		for bus, m := range g.members {
			if s, ok := m.(interface{ Stats() Stats }); ok {
				stats[fmt.Sprintf("bus%d", bus)] = s.Stats()
			}
		}
		return stats
	})
}
