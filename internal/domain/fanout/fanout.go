// Package fanout delivers wire messages to subscriber connections, either to
// everyone attached to one broadcaster or to every connected subscriber.
package fanout

import (
	"context"
	"sync"

	"github.com/okian/livebid/internal/domain/types"
	"github.com/okian/livebid/pkg/logger"
	"github.com/okian/livebid/pkg/metrics"
)

// Subscriber is a connected viewer transport.
type Subscriber interface {
	ID() string
	// Send queues msg for delivery. It must not block on the network.
	Send(msg types.Message) error
}

// Fanout tracks connected subscribers and their broadcaster groups.
type Fanout struct {
	mu      sync.RWMutex
	clients map[string]Subscriber
	groups  map[string]map[string]struct{} // broadcaster -> subscriber ids
	member  map[string]string              // subscriber id -> broadcaster
	log     logger.Logger
}

// New creates an empty fanout.
func New(opts ...Option) *Fanout {
	f := &Fanout{
		clients: make(map[string]Subscriber),
		groups:  make(map[string]map[string]struct{}),
		member:  make(map[string]string),
		log:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Register adds a connected subscriber to the global audience.
func (f *Fanout) Register(ctx context.Context, sub Subscriber) {
	f.mu.Lock()
	f.clients[sub.ID()] = sub
	n := len(f.clients)
	f.mu.Unlock()

	metrics.UpdateConnectedSubscribers(n)
	f.log.Debug(ctx, "subscriber registered", logger.String("subscriber", sub.ID()))
}

// Unregister removes a subscriber and its group membership.
func (f *Fanout) Unregister(ctx context.Context, id string) {
	f.mu.Lock()
	delete(f.clients, id)
	f.leaveLocked(id)
	n := len(f.clients)
	f.mu.Unlock()

	metrics.UpdateConnectedSubscribers(n)
	f.log.Debug(ctx, "subscriber unregistered", logger.String("subscriber", id))
}

// Join moves a subscriber into a broadcaster group, leaving any previous one.
func (f *Fanout) Join(ctx context.Context, broadcasterID, id string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.leaveLocked(id)
	g, ok := f.groups[broadcasterID]
	if !ok {
		g = make(map[string]struct{})
		f.groups[broadcasterID] = g
	}
	g[id] = struct{}{}
	f.member[id] = broadcasterID
}

// Leave removes a subscriber from its broadcaster group, if any.
func (f *Fanout) Leave(ctx context.Context, id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leaveLocked(id)
}

func (f *Fanout) leaveLocked(id string) {
	bid, ok := f.member[id]
	if !ok {
		return
	}
	delete(f.member, id)
	if g, ok := f.groups[bid]; ok {
		delete(g, id)
		if len(g) == 0 {
			delete(f.groups, bid)
		}
	}
}

// Members returns the subscriber ids in a broadcaster group.
func (f *Fanout) Members(broadcasterID string) []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, 0, len(f.groups[broadcasterID]))
	for id := range f.groups[broadcasterID] {
		out = append(out, id)
	}
	return out
}

// Count returns the number of connected subscribers.
func (f *Fanout) Count() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.clients)
}

// Publish delivers msg to every subscriber attached to broadcasterID.
func (f *Fanout) Publish(ctx context.Context, broadcasterID string, msg types.Message) {
	f.mu.RLock()
	targets := make([]Subscriber, 0, len(f.groups[broadcasterID]))
	for id := range f.groups[broadcasterID] {
		if sub, ok := f.clients[id]; ok {
			targets = append(targets, sub)
		}
	}
	f.mu.RUnlock()

	metrics.RecordFanoutMessage("broadcaster")
	f.deliver(ctx, targets, msg)
}

// PublishGlobal delivers msg to every connected subscriber.
func (f *Fanout) PublishGlobal(ctx context.Context, msg types.Message) {
	f.mu.RLock()
	targets := make([]Subscriber, 0, len(f.clients))
	for _, sub := range f.clients {
		targets = append(targets, sub)
	}
	f.mu.RUnlock()

	metrics.RecordFanoutMessage("global")
	f.deliver(ctx, targets, msg)
}

// Send delivers msg to one subscriber.
func (f *Fanout) Send(ctx context.Context, id string, msg types.Message) {
	f.mu.RLock()
	sub, ok := f.clients[id]
	f.mu.RUnlock()
	if !ok {
		return
	}
	metrics.RecordFanoutMessage("direct")
	f.deliver(ctx, []Subscriber{sub}, msg)
}

// deliver is best effort: a failing subscriber is logged and skipped.
func (f *Fanout) deliver(ctx context.Context, targets []Subscriber, msg types.Message) {
	for _, sub := range targets {
		if err := sub.Send(msg); err != nil {
			metrics.RecordFanoutDeliveryError()
			f.log.Warn(ctx, "delivery failed",
				logger.String("subscriber", sub.ID()),
				logger.String("type", msg.Type),
				logger.Error(err))
		}
	}
}
