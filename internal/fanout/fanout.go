package fanout

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// SnapshotSource provides the live account snapshots sent to a subscriber
// at attach time. The connection manager implements it.
type SnapshotSource interface {
	AccountSnapshots() []AccountSnapshot
}

// Subscriber is one observer channel. Serialized events arrive on Events()
// until the subscriber is evicted or unsubscribed, at which point the
// channel is closed.
type Subscriber struct {
	id uuid.UUID
	ch chan []byte
}

// Events returns the subscriber's outbound channel.
func (s *Subscriber) Events() <-chan []byte {
	return s.ch
}

// ID returns the subscriber's identity.
func (s *Subscriber) ID() uuid.UUID {
	return s.id
}

// Engine maintains the subscriber set and broadcasts events to it.
type Engine struct {
	logger     *slog.Logger
	bufferSize int

	mu     sync.Mutex
	source SnapshotSource
	subs   map[uuid.UUID]*Subscriber
}

// NewEngine creates a fan-out engine. bufferSize is the per-subscriber
// outbound queue; a subscriber whose queue fills up is evicted.
func NewEngine(bufferSize int, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &Engine{
		logger:     logger,
		bufferSize: bufferSize,
		subs:       make(map[uuid.UUID]*Subscriber),
	}
}

// SetSnapshotSource wires the registry the attach-time snapshot is read
// from. Must be called before Subscribe.
func (e *Engine) SetSnapshotSource(source SnapshotSource) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.source = source
}

// Subscribe registers a new observer and queues the initialAccounts
// snapshot as its first event. The snapshot is taken and the subscriber
// registered atomically with respect to Broadcast, so the observer sees
// the snapshot followed by exactly the events broadcast after attach.
func (e *Engine) Subscribe() *Subscriber {
	sub := &Subscriber{
		id: uuid.New(),
		ch: make(chan []byte, e.bufferSize),
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var accounts []AccountSnapshot
	if e.source != nil {
		accounts = e.source.AccountSnapshots()
	}

	data, err := json.Marshal(InitialAccounts(accounts))
	if err != nil {
		e.logger.Error("failed to marshal snapshot event", "error", err)
	} else {
		sub.ch <- data
	}

	e.subs[sub.id] = sub
	e.logger.Info("observer subscribed", "subscriber_id", sub.id, "observers", len(e.subs))

	return sub
}

// Unsubscribe removes an observer and closes its channel. Calling it for
// an already removed subscriber is a no-op.
func (e *Engine) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.subs[sub.id]; !ok {
		return
	}
	delete(e.subs, sub.id)
	close(sub.ch)
	e.logger.Info("observer unsubscribed", "subscriber_id", sub.id, "observers", len(e.subs))
}

// Broadcast serializes the event once and delivers it to every subscriber.
// Delivery never blocks: a subscriber whose queue is full is evicted and
// the remaining subscribers still receive the event.
func (e *Engine) Broadcast(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		e.logger.Error("failed to marshal event", "event", ev.Event, "error", err)
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for id, sub := range e.subs {
		select {
		case sub.ch <- data:
		default:
			delete(e.subs, id)
			close(sub.ch)
			e.logger.Warn("evicting slow observer",
				"subscriber_id", id,
				"event", ev.Event,
			)
		}
	}
}

// Count returns the number of live subscribers.
func (e *Engine) Count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.subs)
}
