package core

import (
	"context"
	"fmt"

	"pkt.systems/pslog"
	"pkt.systems/webtabs/internal/logx"
	"pkt.systems/webtabs/schema"
)

// TabRegistry owns the ordered tabs and the current-tab index. It is not safe
// for concurrent use; Browser serializes access to it.
//
// Whenever tabs is non-empty, 0 <= current < len(tabs). current is -1 only
// before the first tab and after Dispose.
type TabRegistry struct {
	cfg       schema.BrowserConfig
	factory   RendererFactory
	surface   Surface
	sink      EventSink
	eventsFor func(schema.TabID) RendererEvents
	log       pslog.Logger
	tabs      []*tab
	current   int
}

// NewTabRegistry constructs an empty registry.
func NewTabRegistry(cfg schema.BrowserConfig, deps RegistryDeps) *TabRegistry {
	cfg = schema.NormalizeBrowserConfig(cfg)
	if deps.Surface == nil {
		deps.Surface = nopSurface{}
	}
	if deps.Sink == nil {
		deps.Sink = nopSink{}
	}
	if deps.EventsFor == nil {
		deps.EventsFor = func(schema.TabID) RendererEvents { return nopRendererEvents{} }
	}
	if deps.Logger == nil {
		deps.Logger = pslog.Ctx(context.Background())
	}
	return &TabRegistry{
		cfg:       cfg,
		factory:   deps.Factory,
		surface:   deps.Surface,
		sink:      deps.Sink,
		eventsFor: deps.EventsFor,
		log:       deps.Logger,
		current:   -1,
	}
}

// CreateTab opens a tab at initialURL (the home URL when empty), makes it
// current and starts loading. It never fails: when no renderer can be
// allocated the tab is backed by an inline error page.
func (r *TabRegistry) CreateTab(ctx context.Context, initialURL string) schema.TabSnapshot {
	if initialURL == "" {
		initialURL = r.cfg.HomeURL
	}
	id := newTabID()
	log := logx.WithURL(r.log.With("tab", id), initialURL)
	log.Info("browser tab create start")

	t := &tab{
		ID:    id,
		Title: r.cfg.DefaultTitle,
		URL:   initialURL,
		State: schema.LoadStateIdle,
	}
	renderer, err := r.newRenderer(ctx, id)
	if err != nil {
		log.Warn("browser renderer allocation failed", "err", err)
		t.renderer = newDegradedRenderer(initialURL, err)
		t.Degraded = true
		r.sink.OnNotice(schema.NoticeEvent{
			Level:   schema.NoticeError,
			TabID:   id,
			Message: fmt.Sprintf("could not open page: %v", err),
		})
	} else {
		t.renderer = renderer
	}

	prev := r.currentTab()
	r.tabs = append(r.tabs, t)
	r.current = len(r.tabs) - 1
	r.detach(prev)
	r.attach(t)
	r.sink.OnTabEvent(schema.TabEvent{
		Type:      schema.TabEventCreated,
		Tab:       t.Snapshot(r.current, true),
		ActiveTab: id,
	})
	if err := t.renderer.Load(initialURL); err != nil {
		r.reportRendererError(t, "load", err)
	}
	log.Info("browser tab created", "tabs", len(r.tabs), "degraded", t.Degraded)
	return t.Snapshot(r.current, true)
}

func (r *TabRegistry) newRenderer(ctx context.Context, id schema.TabID) (renderer Renderer, err error) {
	if r.factory == nil {
		return nil, schema.ErrRendererUnavailable
	}
	defer func() {
		if rec := recover(); rec != nil {
			renderer = nil
			err = fmt.Errorf("%w: %v", schema.ErrRendererUnavailable, rec)
		}
	}()
	renderer, err = r.factory.NewRenderer(ctx, r.eventsFor(id))
	if err == nil && renderer == nil {
		err = schema.ErrRendererUnavailable
	}
	return renderer, err
}

// SwitchTo makes the tab at index current. Out-of-range indices are ignored.
func (r *TabRegistry) SwitchTo(index int) {
	if index < 0 || index >= len(r.tabs) {
		return
	}
	r.activate(index, r.currentTab())
}

func (r *TabRegistry) activate(index int, prev *tab) {
	target := r.tabs[index]
	if prev != target {
		r.detach(prev)
		r.attach(target)
	}
	r.current = index
	r.sink.OnTabEvent(schema.TabEvent{
		Type:      schema.TabEventActivated,
		Tab:       target.Snapshot(index, true),
		ActiveTab: target.ID,
	})
	r.log.Debug("browser tab activated", "tab", target.ID, "index", index, "url", target.URL)
}

// CloseTab closes the tab at index and releases its renderer before
// returning. Out-of-range indices are ignored. Closing the last tab opens a
// fresh one at the home URL.
func (r *TabRegistry) CloseTab(ctx context.Context, index int) {
	if index < 0 || index >= len(r.tabs) {
		return
	}
	closed := r.tabs[index]
	wasCurrent := index == r.current
	if wasCurrent {
		r.detach(closed)
	}
	r.release(closed)
	r.tabs = append(r.tabs[:index], r.tabs[index+1:]...)
	r.sink.OnTabEvent(schema.TabEvent{
		Type: schema.TabEventClosed,
		Tab:  closed.Snapshot(index, wasCurrent),
	})
	r.log.Info("browser tab closed", "tab", closed.ID, "index", index, "tabs", len(r.tabs))

	switch {
	case len(r.tabs) == 0:
		r.current = -1
		r.CreateTab(ctx, r.cfg.HomeURL)
	case wasCurrent:
		r.activate(max(0, index-1), nil)
	case index < r.current:
		r.current--
	}
}

// CurrentTab returns the current tab.
func (r *TabRegistry) CurrentTab() (schema.TabSnapshot, bool) {
	t := r.currentTab()
	if t == nil {
		return schema.TabSnapshot{}, false
	}
	return t.Snapshot(r.current, true), true
}

// CurrentIndex returns the current index, -1 when empty.
func (r *TabRegistry) CurrentIndex() int {
	return r.current
}

// Len returns the number of open tabs.
func (r *TabRegistry) Len() int {
	return len(r.tabs)
}

// Tabs returns snapshots in registry order.
func (r *TabRegistry) Tabs() []schema.TabSnapshot {
	out := make([]schema.TabSnapshot, 0, len(r.tabs))
	for i, t := range r.tabs {
		out = append(out, t.Snapshot(i, i == r.current))
	}
	return out
}

// IndexOf returns the position of id, or -1.
func (r *TabRegistry) IndexOf(id schema.TabID) int {
	for i, t := range r.tabs {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// Activate switches to the tab with id.
func (r *TabRegistry) Activate(id schema.TabID) error {
	index := r.IndexOf(id)
	if index < 0 {
		return schema.ErrTabNotFound
	}
	r.SwitchTo(index)
	return nil
}

// Close closes the tab with id.
func (r *TabRegistry) Close(ctx context.Context, id schema.TabID) error {
	index := r.IndexOf(id)
	if index < 0 {
		return schema.ErrTabNotFound
	}
	r.CloseTab(ctx, index)
	return nil
}

// Dispose releases every tab. The registry is empty afterwards.
func (r *TabRegistry) Dispose() {
	if t := r.currentTab(); t != nil {
		r.detach(t)
	}
	for _, t := range r.tabs {
		r.release(t)
	}
	r.log.Info("browser tabs disposed", "tabs", len(r.tabs))
	r.tabs = nil
	r.current = -1
}

func (r *TabRegistry) currentTab() *tab {
	if r.current < 0 || r.current >= len(r.tabs) {
		return nil
	}
	return r.tabs[r.current]
}

func (r *TabRegistry) lookup(id schema.TabID) (*tab, int) {
	index := r.IndexOf(id)
	if index < 0 {
		return nil, -1
	}
	return r.tabs[index], index
}

func (r *TabRegistry) attach(t *tab) {
	if t == nil {
		return
	}
	if err := r.surface.Attach(t.ID, t.renderer); err != nil {
		r.reportRendererError(t, "attach", err)
	}
}

func (r *TabRegistry) detach(t *tab) {
	if t == nil {
		return
	}
	if err := r.surface.Detach(t.ID, t.renderer); err != nil {
		r.log.Warn("browser surface detach failed", "tab", t.ID, "err", err)
	}
}

func (r *TabRegistry) release(t *tab) {
	if t.renderer == nil {
		return
	}
	if err := t.renderer.Release(); err != nil {
		r.log.Warn("browser renderer release failed", "tab", t.ID, "err", err)
	}
}

func (r *TabRegistry) reportRendererError(t *tab, op string, err error) {
	r.log.Warn("browser renderer call failed", "tab", t.ID, "op", op, "err", err)
	r.sink.OnNotice(schema.NoticeEvent{
		Level:   schema.NoticeError,
		TabID:   t.ID,
		Message: fmt.Sprintf("%s failed: %v", op, err),
	})
}
