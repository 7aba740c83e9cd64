package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/JaimeStill/matchflow/pkg/lifecycle"
)

// Publisher accepts events for a session.
type Publisher interface {
	Publish(ctx context.Context, sessionID string, p Payload)
}

// Sink receives every published envelope, independent of subscribers.
// Send must not block.
type Sink interface {
	Send(env Envelope)
}

// Broadcaster delivers envelopes to per-session subscriptions and sinks.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscription]struct{}
	sinks  []Sink
	buffer int
	logger *slog.Logger
	now    func() time.Time
}

// NewBroadcaster creates a Broadcaster whose subscriptions buffer up to
// buffer envelopes before dropping.
func NewBroadcaster(buffer int, logger *slog.Logger, sinks ...Sink) *Broadcaster {
	if buffer <= 0 {
		buffer = 64
	}
	return &Broadcaster{
		subs:   make(map[string]map[*Subscription]struct{}),
		sinks:  sinks,
		buffer: buffer,
		logger: logger.With("system", "events"),
		now:    time.Now,
	}
}

// Subscription receives envelopes for one session until closed.
type Subscription struct {
	sessionID string
	ch        chan Envelope
	b         *Broadcaster
	once      sync.Once
}

// Events returns the receive channel. It is closed by Close.
func (s *Subscription) Events() <-chan Envelope {
	return s.ch
}

// Close unregisters the subscription and closes its channel.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.b.mu.Lock()
		defer s.b.mu.Unlock()

		set := s.b.subs[s.sessionID]
		delete(set, s)
		if len(set) == 0 {
			delete(s.b.subs, s.sessionID)
		}
		close(s.ch)
	})
}

// Subscribe registers a new subscription for sessionID.
func (b *Broadcaster) Subscribe(sessionID string) *Subscription {
	sub := &Subscription{
		sessionID: sessionID,
		ch:        make(chan Envelope, b.buffer),
		b:         b,
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	set, ok := b.subs[sessionID]
	if !ok {
		set = make(map[*Subscription]struct{})
		b.subs[sessionID] = set
	}
	set[sub] = struct{}{}
	return sub
}

// Start closes every open subscription once the coordinator begins
// shutdown, so hijacked stream connections end with the process.
func (b *Broadcaster) Start(lc *lifecycle.Coordinator) error {
	lc.OnShutdown(func() {
		<-lc.Context().Done()
		b.Close()
	})
	return nil
}

// Close ends every open subscription. Subscribers observe a closed channel.
func (b *Broadcaster) Close() {
	b.mu.RLock()
	var open []*Subscription
	for _, set := range b.subs {
		for sub := range set {
			open = append(open, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range open {
		sub.Close()
	}
	if len(open) > 0 {
		b.logger.Info("closed open subscriptions", "count", len(open))
	}
}

// Subscribers returns the number of live subscriptions for sessionID.
func (b *Broadcaster) Subscribers(sessionID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[sessionID])
}

// Publish delivers p to current subscribers without blocking. A subscriber
// whose buffer is full misses the envelope.
func (b *Broadcaster) Publish(ctx context.Context, sessionID string, p Payload) {
	env := NewEnvelope(sessionID, p, b.now())

	b.mu.RLock()
	for sub := range b.subs[sessionID] {
		select {
		case sub.ch <- env:
		default:
			b.logger.Debug("subscriber buffer full, event dropped",
				"session_id", sessionID,
				"type", env.Type,
			)
		}
	}
	b.mu.RUnlock()

	for _, sink := range b.sinks {
		sink.Send(env)
	}
}
