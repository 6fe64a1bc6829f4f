package core

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"testing"

	"pkt.systems/webtabs/schema"
)

func newTestRegistry(factory RendererFactory, surface Surface, sink EventSink) *TabRegistry {
	return NewTabRegistry(schema.BrowserConfig{}, RegistryDeps{
		Factory: factory,
		Surface: surface,
		Sink:    sink,
	})
}

func checkCurrentInvariant(t *testing.T, r *TabRegistry) {
	t.Helper()
	if r.Len() == 0 {
		if r.CurrentIndex() != -1 {
			t.Fatalf("empty registry must have current -1, got %d", r.CurrentIndex())
		}
		return
	}
	if r.CurrentIndex() < 0 || r.CurrentIndex() >= r.Len() {
		t.Fatalf("current index %d out of range for %d tabs", r.CurrentIndex(), r.Len())
	}
}

func TestRegistryCreateAndCloseScenario(t *testing.T) {
	ctx := context.Background()
	factory := &fakeFactory{}
	r := newTestRegistry(factory, nil, nil)
	r.CreateTab(ctx, "https://a.example")
	r.CreateTab(ctx, "https://b.example")
	if r.CurrentIndex() != 1 {
		t.Fatalf("expected current 1, got %d", r.CurrentIndex())
	}
	r.CloseTab(ctx, 1)
	if r.CurrentIndex() != 0 || r.Len() != 1 {
		t.Fatalf("expected one tab at index 0, got len=%d current=%d", r.Len(), r.CurrentIndex())
	}
	current, ok := r.CurrentTab()
	if !ok || current.URL != "https://a.example" {
		t.Fatalf("expected remaining tab a.example, got %+v", current)
	}
	if !factory.renderer(1).isReleased() {
		t.Fatalf("expected closed renderer to be released")
	}
	if factory.renderer(0).lastLoad() != "https://a.example" {
		t.Fatalf("expected initial load request")
	}
}

func TestRegistryCloseLastTabOpensDefault(t *testing.T) {
	ctx := context.Background()
	factory := &fakeFactory{}
	r := newTestRegistry(factory, nil, nil)
	first := r.CreateTab(ctx, "https://a.example")
	r.CloseTab(ctx, 0)
	if r.Len() != 1 {
		t.Fatalf("expected exactly one tab, got %d", r.Len())
	}
	current, _ := r.CurrentTab()
	if current.ID == first.ID || current.URL != schema.DefaultHomeURL || current.Title != schema.DefaultTabTitle {
		t.Fatalf("expected fresh default tab, got %+v", current)
	}
}

func TestRegistryCloseBeforeCurrentKeepsLogicalTab(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(&fakeFactory{}, nil, nil)
	r.CreateTab(ctx, "https://a.example")
	r.CreateTab(ctx, "https://b.example")
	c := r.CreateTab(ctx, "https://c.example")
	r.CloseTab(ctx, 0)
	current, _ := r.CurrentTab()
	if current.ID != c.ID || r.CurrentIndex() != 1 {
		t.Fatalf("expected current to stay on c, got %+v at %d", current, r.CurrentIndex())
	}
	r.CloseTab(ctx, 5)
	r.CloseTab(ctx, -1)
	if r.Len() != 2 {
		t.Fatalf("out-of-range close must be ignored")
	}
}

func TestRegistryCloseCurrentSwitchesToPrevious(t *testing.T) {
	ctx := context.Background()
	surface := &recordingSurface{}
	r := newTestRegistry(&fakeFactory{}, surface, nil)
	a := r.CreateTab(ctx, "https://a.example")
	b := r.CreateTab(ctx, "https://b.example")
	r.CreateTab(ctx, "https://c.example")
	r.SwitchTo(1)
	r.CloseTab(ctx, 1)
	current, _ := r.CurrentTab()
	if current.ID != a.ID {
		t.Fatalf("expected a to become current, got %+v", current)
	}
	if surface.detached[len(surface.detached)-1] != b.ID {
		t.Fatalf("expected closed tab surface to be detached, got %v", surface.detached)
	}
	if surface.attached[len(surface.attached)-1] != a.ID {
		t.Fatalf("expected a to be attached, got %v", surface.attached)
	}
}

func TestRegistrySwitchToRepublishesURL(t *testing.T) {
	ctx := context.Background()
	sink := &recordingSink{}
	surface := &recordingSurface{}
	r := newTestRegistry(&fakeFactory{}, surface, sink)
	a := r.CreateTab(ctx, "https://a.example")
	b := r.CreateTab(ctx, "https://b.example")
	r.SwitchTo(0)
	events := sink.tabEvents()
	last := events[len(events)-1]
	if last.Type != schema.TabEventActivated || last.Tab.URL != "https://a.example" || last.ActiveTab != a.ID {
		t.Fatalf("unexpected activation event: %+v", last)
	}
	if surface.detached[len(surface.detached)-1] != b.ID || surface.attached[len(surface.attached)-1] != a.ID {
		t.Fatalf("unexpected surface calls: attached=%v detached=%v", surface.attached, surface.detached)
	}
	count := len(events)
	r.SwitchTo(7)
	r.SwitchTo(-2)
	if len(sink.tabEvents()) != count || r.CurrentIndex() != 0 {
		t.Fatalf("out-of-range switch must be ignored")
	}
}

func TestRegistryDegradesOnRendererFailure(t *testing.T) {
	ctx := context.Background()
	sink := &recordingSink{}
	r := newTestRegistry(&fakeFactory{fail: 1}, nil, sink)
	snap := r.CreateTab(ctx, "https://a.example")
	if !snap.Degraded || snap.URL != "https://a.example" {
		t.Fatalf("expected degraded tab, got %+v", snap)
	}
	if !strings.HasPrefix(snap.ErrorPage, "data:text/html") {
		t.Fatalf("expected inline error page, got %q", snap.ErrorPage)
	}
	notices := sink.noticeEvents()
	if len(notices) != 1 || notices[0].Level != schema.NoticeError || notices[0].TabID != snap.ID {
		t.Fatalf("expected an error notice, got %+v", notices)
	}
	next := r.CreateTab(ctx, "https://b.example")
	if next.Degraded {
		t.Fatalf("expected recovery on the next allocation")
	}
}

func TestRegistryDegradesOnPanickingFactory(t *testing.T) {
	factory := RendererFactoryFunc(func(context.Context, RendererEvents) (Renderer, error) {
		panic("boom")
	})
	r := newTestRegistry(factory, nil, nil)
	snap := r.CreateTab(context.Background(), "")
	if !snap.Degraded || snap.URL != schema.DefaultHomeURL {
		t.Fatalf("expected degraded default tab, got %+v", snap)
	}
}

func TestRegistryLoadErrorIsReported(t *testing.T) {
	sink := &recordingSink{}
	factory := RendererFactoryFunc(func(context.Context, RendererEvents) (Renderer, error) {
		return &fakeRenderer{loadErr: errors.New("net::ERR_FAILED")}, nil
	})
	r := newTestRegistry(factory, nil, sink)
	r.CreateTab(context.Background(), "https://a.example")
	if len(sink.noticeEvents()) != 1 {
		t.Fatalf("expected load failure notice")
	}
}

func TestRegistryActivateAndCloseByID(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(&fakeFactory{}, nil, nil)
	a := r.CreateTab(ctx, "https://a.example")
	b := r.CreateTab(ctx, "https://b.example")
	if err := r.Activate(a.ID); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if err := r.Close(ctx, b.ID); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := r.Close(ctx, b.ID); !errors.Is(err, schema.ErrTabNotFound) {
		t.Fatalf("expected ErrTabNotFound, got %v", err)
	}
	if err := r.Activate("missing"); !errors.Is(err, schema.ErrTabNotFound) {
		t.Fatalf("expected ErrTabNotFound, got %v", err)
	}
	tabs := r.Tabs()
	if len(tabs) != 1 || tabs[0].ID != a.ID || !tabs[0].Active {
		t.Fatalf("unexpected tabs: %+v", tabs)
	}
}

func TestRegistryDisposeReleasesEverything(t *testing.T) {
	ctx := context.Background()
	factory := &fakeFactory{}
	r := newTestRegistry(factory, nil, nil)
	r.CreateTab(ctx, "https://a.example")
	r.CreateTab(ctx, "https://b.example")
	r.Dispose()
	if r.Len() != 0 || r.CurrentIndex() != -1 {
		t.Fatalf("expected empty registry")
	}
	for i := 0; i < 2; i++ {
		if !factory.renderer(i).isReleased() {
			t.Fatalf("renderer %d not released", i)
		}
	}
	if _, ok := r.CurrentTab(); ok {
		t.Fatalf("expected no current tab")
	}
}

func TestRegistryRandomOperationsKeepInvariant(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(7))
	r := newTestRegistry(&fakeFactory{}, &recordingSurface{}, &recordingSink{})
	checkCurrentInvariant(t, r)
	r.CreateTab(ctx, "https://example.com")
	for i := 0; i < 2000; i++ {
		switch rng.Intn(3) {
		case 0:
			r.CreateTab(ctx, "https://example.com")
		case 1:
			r.SwitchTo(rng.Intn(r.Len()+4) - 2)
		case 2:
			r.CloseTab(ctx, rng.Intn(r.Len()+4)-2)
		}
		checkCurrentInvariant(t, r)
		if r.Len() == 0 {
			t.Fatalf("registry emptied outside teardown")
		}
	}
}
