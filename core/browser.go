package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"pkt.systems/pslog"
	"pkt.systems/webtabs/internal/logx"
	"pkt.systems/webtabs/internal/persist"
	"pkt.systems/webtabs/schema"
)

// Browser is the single writer over a TabRegistry and a HistoryStore. Every
// operation and every renderer callback runs as a closure on one loop
// goroutine, in the order it was posted.
type Browser struct {
	cfg       schema.BrowserConfig
	registry  *TabRegistry
	history   *HistoryStore
	downloads DownloadSink
	sink      EventSink
	log       pslog.Logger

	box       *mailbox
	stop      chan struct{}
	stopped   chan struct{}
	closing   atomic.Bool
	closeOnce sync.Once
	disposed  bool // loop-owned

	bgCtx    context.Context
	bgCancel context.CancelFunc
	bg       sync.WaitGroup
}

// NewBrowser constructs a browser and starts its loop. Call Start to open the
// initial tab and Close to release everything.
func NewBrowser(cfg schema.BrowserConfig, deps BrowserDeps) (*Browser, error) {
	if deps.Factory == nil {
		return nil, errors.New("renderer factory is required")
	}
	cfg = schema.NormalizeBrowserConfig(cfg)
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	if deps.EventSink == nil {
		deps.EventSink = nopSink{}
	}
	if deps.History == nil {
		deps.History = NewHistoryStore(persist.NewMemoryStore(), HistoryOptions{Max: cfg.HistoryMax, Logger: logger})
	}
	bgCtx, bgCancel := context.WithCancel(pslog.ContextWithLogger(context.Background(), logger))
	b := &Browser{
		cfg:       cfg,
		history:   deps.History,
		downloads: deps.Downloads,
		sink:      deps.EventSink,
		log:       logger,
		box:       newMailbox(),
		stop:      make(chan struct{}),
		stopped:   make(chan struct{}),
		bgCtx:     bgCtx,
		bgCancel:  bgCancel,
	}
	b.registry = NewTabRegistry(cfg, RegistryDeps{
		Factory:   deps.Factory,
		Surface:   deps.Surface,
		Sink:      deps.EventSink,
		EventsFor: b.eventsFor,
		Logger:    logger,
	})
	go b.loop()
	return b, nil
}

func (b *Browser) loop() {
	defer close(b.stopped)
	for {
		select {
		case <-b.box.notify:
			for _, fn := range b.box.take() {
				b.run(fn)
			}
		case <-b.stop:
			for _, fn := range b.box.close() {
				b.run(fn)
			}
			return
		}
	}
}

func (b *Browser) run(fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			b.log.Error("browser loop task panicked", "panic", fmt.Sprint(rec))
		}
	}()
	fn()
}

// Task states shared between exec and the loop.
const (
	taskQueued int32 = iota
	taskStarted
	taskAbandoned
)

// exec runs fn on the loop and waits for it. A caller whose ctx ends before
// fn starts gets ctx.Err() and fn never runs; once fn has started the caller
// waits for its result, so an error return always means nothing happened.
func (b *Browser) exec(ctx context.Context, fn func() error) error {
	if ctx == nil {
		return errors.New("missing context")
	}
	if b.closing.Load() {
		return schema.ErrBrowserClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	var (
		err   error
		state atomic.Int32
	)
	done := make(chan struct{})
	posted := b.box.post(func() {
		defer close(done)
		if ctx.Err() != nil || !state.CompareAndSwap(taskQueued, taskStarted) {
			state.Store(taskAbandoned)
			err = ctx.Err()
			return
		}
		if b.disposed {
			err = schema.ErrBrowserClosed
			return
		}
		err = fn()
	})
	if !posted {
		return schema.ErrBrowserClosed
	}
	select {
	case <-done:
		return err
	case <-ctx.Done():
		if state.CompareAndSwap(taskQueued, taskAbandoned) {
			return ctx.Err()
		}
		<-done
		return err
	case <-b.stopped:
		select {
		case <-done:
			return err
		default:
			return schema.ErrBrowserClosed
		}
	}
}

// post enqueues fn without waiting. Used by renderer callbacks.
func (b *Browser) post(fn func()) {
	b.box.post(func() {
		if b.disposed {
			return
		}
		fn()
	})
}

// Start opens the initial tab at the configured start URL unless tabs exist.
func (b *Browser) Start(ctx context.Context) (schema.TabSnapshot, error) {
	var snap schema.TabSnapshot
	err := b.exec(ctx, func() error {
		if current, ok := b.registry.CurrentTab(); ok {
			snap = current
			return nil
		}
		snap = b.registry.CreateTab(ctx, b.cfg.StartURL)
		return nil
	})
	return snap, err
}

// CreateTab opens a new current tab. An empty input opens the home URL.
func (b *Browser) CreateTab(ctx context.Context, input string) (schema.TabSnapshot, error) {
	target := b.cfg.HomeURL
	if input != "" {
		normalized, err := schema.NormalizeInputURL(input)
		if err != nil {
			return schema.TabSnapshot{}, err
		}
		target = normalized
	}
	var snap schema.TabSnapshot
	err := b.exec(ctx, func() error {
		snap = b.registry.CreateTab(ctx, target)
		return nil
	})
	return snap, err
}

// SwitchTo activates the tab at index. Out-of-range indices leave the
// current tab in place.
func (b *Browser) SwitchTo(ctx context.Context, index int) (schema.TabSnapshot, error) {
	var snap schema.TabSnapshot
	err := b.exec(ctx, func() error {
		b.registry.SwitchTo(index)
		current, ok := b.registry.CurrentTab()
		if !ok {
			return schema.ErrNoTabs
		}
		snap = current
		return nil
	})
	return snap, err
}

// Activate switches to the tab with id.
func (b *Browser) Activate(ctx context.Context, id schema.TabID) (schema.TabSnapshot, error) {
	var snap schema.TabSnapshot
	err := b.exec(ctx, func() error {
		if err := b.registry.Activate(id); err != nil {
			return err
		}
		snap, _ = b.registry.CurrentTab()
		return nil
	})
	return snap, err
}

// CloseTab closes the tab at index. Out-of-range indices are ignored.
func (b *Browser) CloseTab(ctx context.Context, index int) error {
	return b.exec(ctx, func() error {
		b.registry.CloseTab(ctx, index)
		return nil
	})
}

// CloseTabByID closes the tab with id.
func (b *Browser) CloseTabByID(ctx context.Context, id schema.TabID) error {
	return b.exec(ctx, func() error {
		return b.registry.Close(ctx, id)
	})
}

// CurrentTab returns the current tab.
func (b *Browser) CurrentTab(ctx context.Context) (schema.TabSnapshot, error) {
	var snap schema.TabSnapshot
	err := b.exec(ctx, func() error {
		current, ok := b.registry.CurrentTab()
		if !ok {
			return schema.ErrNoTabs
		}
		snap = current
		return nil
	})
	return snap, err
}

// ListTabs returns all tabs in order and the current tab id.
func (b *Browser) ListTabs(ctx context.Context) ([]schema.TabSnapshot, schema.TabID, error) {
	var tabs []schema.TabSnapshot
	var active schema.TabID
	err := b.exec(ctx, func() error {
		tabs = b.registry.Tabs()
		if current, ok := b.registry.CurrentTab(); ok {
			active = current.ID
		}
		return nil
	})
	return tabs, active, err
}

// Navigate loads address-bar input in the current tab.
func (b *Browser) Navigate(ctx context.Context, input string) (schema.TabSnapshot, error) {
	target, err := schema.NormalizeInputURL(input)
	if err != nil {
		return schema.TabSnapshot{}, err
	}
	var snap schema.TabSnapshot
	err = b.exec(ctx, func() error {
		t := b.registry.currentTab()
		if t == nil {
			return schema.ErrNoTabs
		}
		index := b.registry.CurrentIndex()
		logx.WithURL(b.log.With("tab", t.ID), target).Info("browser navigate")
		t.URL = target
		b.sink.OnTabEvent(schema.TabEvent{Type: schema.TabEventUpdated, Tab: t.Snapshot(index, true), ActiveTab: t.ID})
		if err := t.renderer.Load(target); err != nil {
			b.registry.reportRendererError(t, "load", err)
		}
		snap = t.Snapshot(index, true)
		return nil
	})
	return snap, err
}

// Back navigates the current tab back and reports whether it could.
func (b *Browser) Back(ctx context.Context) (bool, error) {
	return b.step(ctx, "back", Renderer.CanGoBack, Renderer.GoBack)
}

// Forward navigates the current tab forward and reports whether it could.
func (b *Browser) Forward(ctx context.Context) (bool, error) {
	return b.step(ctx, "forward", Renderer.CanGoForward, Renderer.GoForward)
}

func (b *Browser) step(ctx context.Context, op string, can func(Renderer) bool, move func(Renderer) error) (bool, error) {
	moved := false
	err := b.exec(ctx, func() error {
		t := b.registry.currentTab()
		if t == nil {
			return schema.ErrNoTabs
		}
		if !can(t.renderer) {
			return nil
		}
		if err := move(t.renderer); err != nil {
			b.registry.reportRendererError(t, op, err)
			return nil
		}
		moved = true
		return nil
	})
	return moved, err
}

// Reload reloads the current tab.
func (b *Browser) Reload(ctx context.Context) error {
	return b.onCurrent(ctx, "reload", Renderer.Reload)
}

// Stop stops loading in the current tab.
func (b *Browser) Stop(ctx context.Context) error {
	return b.onCurrent(ctx, "stop", Renderer.Stop)
}

func (b *Browser) onCurrent(ctx context.Context, op string, fn func(Renderer) error) error {
	return b.exec(ctx, func() error {
		t := b.registry.currentTab()
		if t == nil {
			return schema.ErrNoTabs
		}
		if err := fn(t.renderer); err != nil {
			b.registry.reportRendererError(t, op, err)
		}
		return nil
	})
}

// History returns the history store.
func (b *Browser) History() *HistoryStore {
	return b.history
}

// Download fetches a URL into the downloads directory on the caller's
// goroutine.
func (b *Browser) Download(ctx context.Context, req schema.DownloadRequest) (schema.DownloadRecord, error) {
	if b.closing.Load() {
		return schema.DownloadRecord{}, schema.ErrBrowserClosed
	}
	if b.downloads == nil {
		return schema.DownloadRecord{}, errors.New("downloads are not configured")
	}
	if req.UserAgent == "" {
		req.UserAgent = b.cfg.UserAgent
	}
	record, err := b.downloads.Fetch(ctx, req)
	b.post(func() { b.downloadNotice("", record, err) })
	return record, err
}

// Close disposes every tab and stops the loop. Pending downloads are
// cancelled and awaited until ctx is done.
func (b *Browser) Close(ctx context.Context) error {
	if ctx == nil {
		return errors.New("missing context")
	}
	var err error
	b.closeOnce.Do(func() {
		err = b.exec(ctx, func() error {
			b.registry.Dispose()
			b.disposed = true
			return nil
		})
		b.closing.Store(true)
		b.bgCancel()
		close(b.stop)
	})
	select {
	case <-b.stopped:
	case <-ctx.Done():
		return ctx.Err()
	}
	done := make(chan struct{})
	go func() {
		b.bg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	if errors.Is(err, schema.ErrBrowserClosed) {
		return nil
	}
	return err
}

func (b *Browser) eventsFor(id schema.TabID) RendererEvents {
	return tabEvents{b: b, id: id}
}

// applyNavigation runs on the loop.
func (b *Browser) applyNavigation(id schema.TabID, ev NavEvent) {
	t, index := b.registry.lookup(id)
	if t == nil {
		return
	}
	log := logx.WithURL(b.log.With("tab", id), ev.URL)
	if ev.Kind == NavStart && ev.URL != "" && !schema.IsWebScheme(ev.URL) {
		log.Info("browser external scheme ignored")
		b.sink.OnNotice(schema.NoticeEvent{
			Level:   schema.NoticeInfo,
			TabID:   id,
			Message: fmt.Sprintf("no handler for %s", ev.URL),
		})
		return
	}
	next, fx := ReduceNavigation(t.navState(), ev, b.cfg.DefaultTitle)
	t.applyNavState(next)
	if fx.LogError != "" {
		log.Warn("browser navigation failed", "info", fx.LogError)
	}
	if fx.Record {
		if _, err := b.history.Record(fx.RecordTitle, fx.RecordURL); err != nil {
			log.Debug("browser history kept in memory", "err", err)
		}
	}
	if fx.Publish != "" {
		b.sink.OnLoadState(schema.LoadStateEvent{TabID: id, State: fx.Publish, URL: next.URL})
	}
	if fx.Changed {
		active := index == b.registry.CurrentIndex()
		var activeID schema.TabID
		if current, ok := b.registry.CurrentTab(); ok {
			activeID = current.ID
		}
		b.sink.OnTabEvent(schema.TabEvent{Type: schema.TabEventUpdated, Tab: t.Snapshot(index, active), ActiveTab: activeID})
	}
}

// startDownload runs on the loop and hands the transfer to a goroutine.
func (b *Browser) startDownload(id schema.TabID, what string, fn func(context.Context) (schema.DownloadRecord, error)) {
	log := b.log.With("tab", id)
	if b.downloads == nil {
		log.Warn("browser download dropped", "kind", what, "err", "downloads are not configured")
		b.sink.OnNotice(schema.NoticeEvent{Level: schema.NoticeError, TabID: id, Message: "downloads are not configured"})
		return
	}
	log.Info("browser download start", "kind", what)
	b.sink.OnNotice(schema.NoticeEvent{Level: schema.NoticeInfo, TabID: id, Message: "download started"})
	b.bg.Add(1)
	go func() {
		defer b.bg.Done()
		ctx := logx.ContextWithTabLogger(b.bgCtx, log, id)
		record, err := fn(ctx)
		b.post(func() { b.downloadNotice(id, record, err) })
	}()
}

func (b *Browser) downloadNotice(id schema.TabID, record schema.DownloadRecord, err error) {
	log := logx.WithDownload(b.log.With("tab", id), record.Name)
	if err != nil {
		log.Warn("browser download failed", "err", err)
		b.sink.OnNotice(schema.NoticeEvent{Level: schema.NoticeError, TabID: id, Message: fmt.Sprintf("download failed: %v", err)})
		return
	}
	log.Info("browser download saved", "path", record.Path, "size", record.Size)
	b.sink.OnNotice(schema.NoticeEvent{Level: schema.NoticeInfo, TabID: id, Message: "saved " + record.Name})
}

// tabEvents binds renderer callbacks to one tab. Every method only posts.
type tabEvents struct {
	b  *Browser
	id schema.TabID
}

func (e tabEvents) OnNavigationStart(url string) {
	e.b.post(func() { e.b.applyNavigation(e.id, NavEvent{Kind: NavStart, URL: url}) })
}

func (e tabEvents) OnNavigationFinish(url, title string) {
	e.b.post(func() { e.b.applyNavigation(e.id, NavEvent{Kind: NavFinish, URL: url, Title: title}) })
}

func (e tabEvents) OnNavigationError(url, info string) {
	e.b.post(func() { e.b.applyNavigation(e.id, NavEvent{Kind: NavError, URL: url, Info: info}) })
}

func (e tabEvents) OnTitle(title string) {
	e.b.post(func() { e.b.applyNavigation(e.id, NavEvent{Kind: NavTitle, Title: title}) })
}

func (e tabEvents) OnBlob(payload schema.BlobPayload) {
	e.b.post(func() {
		e.b.startDownload(e.id, "blob", func(ctx context.Context) (schema.DownloadRecord, error) {
			return e.b.downloads.SaveBlob(ctx, payload)
		})
	})
}

func (e tabEvents) OnDownload(req schema.DownloadRequest) {
	if req.UserAgent == "" {
		req.UserAgent = e.b.cfg.UserAgent
	}
	e.b.post(func() {
		e.b.startDownload(e.id, "url", func(ctx context.Context) (schema.DownloadRecord, error) {
			return e.b.downloads.Fetch(ctx, req)
		})
	})
}
