package engine

import (
	"log/slog"
	"sync"

	"github.com/seantiz/courier/internal/model"
)

// backlogSize bounds both the replay backlog of an open topic and the channel
// buffer of each subscriber.
const backlogSize = 64

// EventBroker fans invocation events out to live subscribers. It is safe for
// concurrent use.
//
// An open topic keeps the first backlogSize events it saw, and a subscriber
// joining while the invocation runs receives them before the live events.
// Settled topics are kept as closed markers so that late subscribers get a
// closed channel.
type EventBroker struct {
	logger *slog.Logger

	mu     sync.Mutex
	topics map[string]*eventTopic
}

type eventTopic struct {
	subs    map[int]*subscriber
	nextID  int
	backlog []model.Event
	closed  bool
}

type subscriber struct {
	ch      chan model.Event
	dropped int
}

// NewEventBroker creates an event broker. Dropped events are reported on
// logger.
func NewEventBroker(logger *slog.Logger) *EventBroker {
	return &EventBroker{
		logger: logger,
		topics: make(map[string]*eventTopic),
	}
}

// topic returns the topic of the invocation, creating it if needed. b.mu must
// be held.
func (b *EventBroker) topic(invocationID string) *eventTopic {
	t, ok := b.topics[invocationID]
	if !ok {
		t = &eventTopic{subs: make(map[int]*subscriber)}
		b.topics[invocationID] = t
	}
	return t
}

// Subscribe returns a channel that receives the events of the given
// invocation, starting with its backlog, and an unsubscribe function. If the
// invocation has already settled the channel is closed.
func (b *EventBroker) Subscribe(invocationID string) (<-chan model.Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.topic(invocationID)
	ch := make(chan model.Event, backlogSize)
	if t.closed {
		close(ch)
		return ch, func() {}
	}

	for _, e := range t.backlog {
		ch <- e
	}

	id := t.nextID
	t.nextID++
	t.subs[id] = &subscriber{ch: ch}

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := t.subs[id]; ok {
			b.reportDropped(invocationID, sub)
			delete(t.subs, id)
		}
	}
}

// Publish sends an event to every subscriber of its invocation and appends
// it to the backlog while there is room. A subscriber whose buffer is full
// misses the event; the miss is counted in courier_events_dropped_total.
func (b *EventBroker) Publish(e model.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.topic(e.InvocationID)
	if t.closed {
		return
	}
	if len(t.backlog) < backlogSize {
		t.backlog = append(t.backlog, e)
	}

	for _, sub := range t.subs {
		select {
		case sub.ch <- e:
		default:
			sub.dropped++
			eventsDropped.Inc()
		}
	}
}

// Close signals that no more events will be published for the invocation.
// Subscriber channels are closed, the backlog is released and later
// Subscribe calls return a closed channel.
func (b *EventBroker) Close(invocationID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.topic(invocationID)
	t.closed = true
	t.backlog = nil
	for id, sub := range t.subs {
		b.reportDropped(invocationID, sub)
		close(sub.ch)
		delete(t.subs, id)
	}
}

func (b *EventBroker) reportDropped(invocationID string, sub *subscriber) {
	if sub.dropped > 0 {
		b.logger.Warn("event subscriber fell behind", "invocation_id", invocationID, "dropped", sub.dropped)
	}
}
