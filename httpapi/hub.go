package httpapi

import (
	"context"
	"sync"
	"time"

	"pkt.systems/webtabs/internal/logx"
	"pkt.systems/webtabs/schema"
)

// StreamEvent is sent to SSE clients.
type StreamEvent struct {
	Seq       uint64                 `json:"seq"`
	Type      string                 `json:"type"`
	TabEvent  string                 `json:"tab_event,omitempty"`
	TabID     schema.TabID           `json:"tab_id,omitempty"`
	Tab       *schema.TabSnapshot    `json:"tab,omitempty"`
	ActiveTab schema.TabID           `json:"active_tab,omitempty"`
	Load      *schema.LoadStateEvent `json:"load,omitempty"`
	Notice    *schema.NoticeEvent    `json:"notice,omitempty"`
	Snapshot  *SnapshotPayload       `json:"snapshot,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// SnapshotPayload seeds client state on connect.
type SnapshotPayload struct {
	Tabs      []schema.TabSnapshot `json:"tabs"`
	ActiveTab schema.TabID         `json:"active_tab"`
}

// Hub broadcasts browser events to stream clients and keeps a bounded
// backlog for Last-Event-ID replay.
type Hub struct {
	mu          sync.Mutex
	seq         uint64
	history     []StreamEvent
	subs        map[chan StreamEvent]struct{}
	historySize int
	now         func() time.Time
}

// NewHub constructs a hub with the given history size.
func NewHub(historySize int) *Hub {
	if historySize <= 0 {
		historySize = 1000
	}
	return &Hub{
		subs:        make(map[chan StreamEvent]struct{}),
		historySize: historySize,
		now:         time.Now,
	}
}

// OnTabEvent implements core.EventSink.
func (h *Hub) OnTabEvent(event schema.TabEvent) {
	logx.WithTab(context.Background(), event.Tab.ID).Trace("hub tab event", "type", event.Type, "active", event.ActiveTab)
	tab := event.Tab
	h.publish(StreamEvent{
		Type:      "tab",
		TabEvent:  string(event.Type),
		TabID:     tab.ID,
		Tab:       &tab,
		ActiveTab: event.ActiveTab,
	})
}

// OnLoadState implements core.EventSink.
func (h *Hub) OnLoadState(event schema.LoadStateEvent) {
	logx.WithTab(context.Background(), event.TabID).Trace("hub load event", "state", event.State)
	load := event
	h.publish(StreamEvent{
		Type:  "load",
		TabID: event.TabID,
		Load:  &load,
	})
}

// OnNotice implements core.EventSink.
func (h *Hub) OnNotice(event schema.NoticeEvent) {
	logx.WithTab(context.Background(), event.TabID).Trace("hub notice", "level", event.Level)
	notice := event
	h.publish(StreamEvent{
		Type:   "notice",
		TabID:  event.TabID,
		Notice: &notice,
	})
}

// Subscribe registers a subscriber and returns the channel, an unsubscribe
// func, the current sequence and the retained backlog.
func (h *Hub) Subscribe() (<-chan StreamEvent, func(), uint64, []StreamEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := make(chan StreamEvent, 256)
	h.subs[ch] = struct{}{}
	history := append([]StreamEvent(nil), h.history...)
	seq := h.seq
	log := logx.Ctx(context.Background())
	log.Info("hub subscribe", "subs", len(h.subs), "history", len(history))
	var once sync.Once
	unsub := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			close(ch)
			remaining := len(h.subs)
			h.mu.Unlock()
			log.Info("hub unsubscribe", "subs", remaining)
		})
	}
	return ch, unsub, seq, history
}

// Replay returns events after the provided seq.
func (h *Hub) Replay(after uint64) []StreamEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	events := make([]StreamEvent, 0, len(h.history))
	for _, event := range h.history {
		if event.Seq > after {
			events = append(events, event)
		}
	}
	logx.Ctx(context.Background()).Debug("hub replay", "after", after, "count", len(events))
	return events
}

// Seq returns the last assigned sequence number.
func (h *Hub) Seq() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.seq
}

func (h *Hub) publish(event StreamEvent) {
	h.mu.Lock()
	h.seq++
	event.Seq = h.seq
	event.Timestamp = h.now()
	h.history = append(h.history, event)
	if len(h.history) > h.historySize {
		h.history = h.history[len(h.history)-h.historySize:]
	}
	dropped := 0
	for sub := range h.subs {
		select {
		case sub <- event:
		default:
			dropped++
		}
	}
	h.mu.Unlock()

	if dropped > 0 {
		logx.Ctx(context.Background()).Warn("hub event dropped", "type", event.Type, "dropped", dropped)
	}
}
