package eventbus

import (
	"sync"
	"testing"
	"time"

	"pkt.systems/webtabs/schema"
)

func TestSubscribeAndPublish(t *testing.T) {
	bus := New(nil)
	ch, cancel := bus.Subscribe()
	defer cancel()

	event := schema.TabEvent{Type: schema.TabEventCreated, Tab: schema.TabSnapshot{ID: "tab1"}, ActiveTab: "tab1"}
	bus.OnTabEvent(event)

	select {
	case got := <-ch:
		if got.Type != EventTab {
			t.Fatalf("expected tab event, got %v", got.Type)
		}
		if got.Tab.Tab.ID != "tab1" || got.Tab.ActiveTab != "tab1" {
			t.Fatalf("unexpected payload: %+v", got.Tab)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("timed out waiting for event")
	}
}

func TestEventKinds(t *testing.T) {
	bus := New(nil)
	ch, cancel := bus.Subscribe()
	defer cancel()

	bus.OnLoadState(schema.LoadStateEvent{TabID: "t", State: schema.LoadStateLoading})
	bus.OnNotice(schema.NoticeEvent{Level: schema.NoticeError, Message: "boom"})

	first := <-ch
	second := <-ch
	if first.Type != EventLoad || first.Load.State != schema.LoadStateLoading {
		t.Fatalf("unexpected first event %+v", first)
	}
	if second.Type != EventNotice || second.Notice.Message != "boom" {
		t.Fatalf("unexpected second event %+v", second)
	}
}

func TestFanOutToAllSubscribers(t *testing.T) {
	bus := New(nil)
	a, cancelA := bus.Subscribe()
	defer cancelA()
	b, cancelB := bus.Subscribe()
	defer cancelB()
	if bus.Subscribers() != 2 {
		t.Fatalf("expected 2 subscribers, got %d", bus.Subscribers())
	}
	bus.OnNotice(schema.NoticeEvent{Message: "hi"})
	for i, ch := range []<-chan Event{a, b} {
		select {
		case got := <-ch:
			if got.Notice.Message != "hi" {
				t.Fatalf("subscriber %d got %+v", i, got)
			}
		case <-time.After(500 * time.Millisecond):
			t.Fatalf("subscriber %d timed out", i)
		}
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := New(nil)
	ch, cancel := bus.Subscribe()
	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatalf("expected channel to be closed")
	}
	if bus.Subscribers() != 0 {
		t.Fatalf("expected no subscribers")
	}
}

func TestPublishDoesNotBlockWhenFull(t *testing.T) {
	bus := New(nil)
	bus.depth = 1
	ch, cancel := bus.Subscribe()
	defer cancel()

	bus.OnNotice(schema.NoticeEvent{Message: "fill"})
	done := make(chan struct{})
	go func() {
		bus.OnNotice(schema.NoticeEvent{Message: "dropped"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("publish blocked on full channel")
	}
	if got := <-ch; got.Notice.Message != "fill" {
		t.Fatalf("expected first event to survive, got %+v", got)
	}
}

func TestConcurrentPublishAndCancel(t *testing.T) {
	bus := New(nil)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_, cancel := bus.Subscribe()
				bus.OnLoadState(schema.LoadStateEvent{TabID: "t"})
				cancel()
			}
		}()
	}
	wg.Wait()
	if bus.Subscribers() != 0 {
		t.Fatalf("expected no subscribers, got %d", bus.Subscribers())
	}
}

func TestNilBus(t *testing.T) {
	var bus *Bus
	ch, cancel := bus.Subscribe()
	cancel()
	if ch != nil {
		t.Fatalf("expected nil channel from nil bus")
	}
	bus.OnNotice(schema.NoticeEvent{})
}
