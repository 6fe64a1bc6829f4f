package eventbus

import (
	"context"
	"sync"

	"pkt.systems/pslog"
	"pkt.systems/webtabs/schema"
)

// EventType identifies the event payload.
type EventType string

const (
	// EventTab carries tab lifecycle updates.
	EventTab EventType = "tab"
	// EventLoad carries load state transitions.
	EventLoad EventType = "load"
	// EventNotice carries user-facing notices.
	EventNotice EventType = "notice"
)

// Event represents a UI-facing event emitted by the browser.
type Event struct {
	Type   EventType
	Tab    schema.TabEvent
	Load   schema.LoadStateEvent
	Notice schema.NoticeEvent
}

// Bus fans browser events out to stream subscribers. Slow subscribers lose
// events instead of stalling the browser loop.
type Bus struct {
	mu    sync.Mutex
	subs  map[chan Event]struct{}
	log   pslog.Logger
	depth int
}

// New constructs a Bus.
func New(logger pslog.Logger) *Bus {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Bus{
		subs:  make(map[chan Event]struct{}),
		log:   logger,
		depth: 256,
	}
}

// Subscribe registers a subscriber and returns a channel + cancel.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	if b == nil {
		return nil, func() {}
	}
	ch := make(chan Event, b.depth)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	count := len(b.subs)
	b.mu.Unlock()
	b.log.Debug("eventbus subscribe", "subs", count)
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			close(ch)
			b.mu.Unlock()
			b.log.Debug("eventbus unsubscribe")
		})
	}
}

// Subscribers returns the number of live subscribers.
func (b *Bus) Subscribers() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// OnTabEvent publishes a tab event.
func (b *Bus) OnTabEvent(event schema.TabEvent) {
	b.publish(Event{Type: EventTab, Tab: event})
}

// OnLoadState publishes a load state event.
func (b *Bus) OnLoadState(event schema.LoadStateEvent) {
	b.publish(Event{Type: EventLoad, Load: event})
}

// OnNotice publishes a notice.
func (b *Bus) OnNotice(event schema.NoticeEvent) {
	b.publish(Event{Type: EventNotice, Notice: event})
}

// publish sends under the lock so cancel cannot close a channel mid-send.
// Sends never block.
func (b *Bus) publish(event Event) {
	if b == nil {
		return
	}
	b.mu.Lock()
	dropped := 0
	for sub := range b.subs {
		select {
		case sub <- event:
		default:
			dropped++
		}
	}
	b.mu.Unlock()
	if dropped > 0 {
		b.log.Trace("eventbus dropped", "type", event.Type, "count", dropped)
	}
}
