package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"pkt.systems/webtabs/internal/persist"
	"pkt.systems/webtabs/schema"
)

type browserFixture struct {
	browser   *Browser
	factory   *fakeFactory
	sink      *recordingSink
	downloads *fakeDownloads
	kv        *persist.MemoryStore
}

func newBrowserFixture(t *testing.T) *browserFixture {
	t.Helper()
	f := &browserFixture{
		factory:   &fakeFactory{},
		sink:      &recordingSink{},
		downloads: &fakeDownloads{},
		kv:        persist.NewMemoryStore(),
	}
	history := NewHistoryStore(f.kv, HistoryOptions{})
	b, err := NewBrowser(schema.BrowserConfig{UserAgent: "webtabs-test"}, BrowserDeps{
		Factory:   f.factory,
		History:   history,
		Downloads: f.downloads,
		EventSink: f.sink,
	})
	if err != nil {
		t.Fatalf("new browser: %v", err)
	}
	f.browser = b
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = b.Close(ctx)
	})
	return f
}

// flush waits until every closure posted so far has run.
func (f *browserFixture) flush(t *testing.T) {
	t.Helper()
	if err := f.browser.exec(context.Background(), func() error { return nil }); err != nil {
		t.Fatalf("flush: %v", err)
	}
}

func TestBrowserStartOpensHomeTab(t *testing.T) {
	f := newBrowserFixture(t)
	ctx := context.Background()
	snap, err := f.browser.Start(ctx)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if snap.URL != schema.DefaultHomeURL || snap.Title != schema.DefaultTabTitle || !snap.Active {
		t.Fatalf("unexpected initial tab: %+v", snap)
	}
	again, err := f.browser.Start(ctx)
	if err != nil || again.ID != snap.ID {
		t.Fatalf("expected start to be idempotent, got %+v err=%v", again, err)
	}
}

func TestBrowserNavigationLifecycleRecordsHistory(t *testing.T) {
	f := newBrowserFixture(t)
	ctx := context.Background()
	snap, err := f.browser.Start(ctx)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	events := f.factory.renderer(0).events
	events.OnNavigationStart("https://docs.example.com/x")
	f.flush(t)
	current, _ := f.browser.CurrentTab(ctx)
	if current.Title != "docs.example.com" || current.State != schema.LoadStateLoading {
		t.Fatalf("unexpected tab after start: %+v", current)
	}
	events.OnNavigationFinish("https://docs.example.com/x", "Docs")
	f.flush(t)
	current, _ = f.browser.CurrentTab(ctx)
	if current.ID != snap.ID || current.Title != "Docs" || current.State != schema.LoadStateIdle {
		t.Fatalf("unexpected tab after finish: %+v", current)
	}
	list := f.browser.History().List()
	if len(list) != 1 || list[0].Title != "Docs" || list[0].URL != "https://docs.example.com/x" {
		t.Fatalf("unexpected history: %+v", list)
	}
	stored, _ := f.kv.GetStringSet(schema.HistoryKey)
	if len(stored) != 1 {
		t.Fatalf("expected persisted visit, got %v", stored)
	}
	states := f.sink.loadStates()
	if len(states) != 2 || states[0].State != schema.LoadStateLoading || states[1].State != schema.LoadStateIdle {
		t.Fatalf("unexpected load states: %+v", states)
	}
}

func TestBrowserNavigationErrorOnlyPublishesIdle(t *testing.T) {
	f := newBrowserFixture(t)
	ctx := context.Background()
	if _, err := f.browser.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	before, _ := f.browser.CurrentTab(ctx)
	f.factory.renderer(0).events.OnNavigationError("https://down.example", "net::ERR_CONNECTION_REFUSED")
	f.flush(t)
	after, _ := f.browser.CurrentTab(ctx)
	if after.Title != before.Title || after.URL != before.URL {
		t.Fatalf("error must not change tab metadata: %+v -> %+v", before, after)
	}
	states := f.sink.loadStates()
	if len(states) != 1 || states[0].State != schema.LoadStateIdle {
		t.Fatalf("expected idle state, got %+v", states)
	}
	if f.browser.History().Len() != 0 {
		t.Fatalf("errors must not be recorded")
	}
}

func TestBrowserCallbacksForClosedTabsAreDropped(t *testing.T) {
	f := newBrowserFixture(t)
	ctx := context.Background()
	if _, err := f.browser.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	second, err := f.browser.CreateTab(ctx, "b.example")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if second.URL != "https://b.example" {
		t.Fatalf("expected normalized url, got %q", second.URL)
	}
	if err := f.browser.CloseTabByID(ctx, second.ID); err != nil {
		t.Fatalf("close: %v", err)
	}
	f.factory.renderer(1).events.OnNavigationFinish("https://b.example", "B")
	f.flush(t)
	if f.browser.History().Len() != 0 {
		t.Fatalf("late callback from a closed tab must be ignored")
	}
	if err := f.browser.CloseTabByID(ctx, second.ID); !errors.Is(err, schema.ErrTabNotFound) {
		t.Fatalf("expected ErrTabNotFound, got %v", err)
	}
}

func TestBrowserNavigateBackForward(t *testing.T) {
	f := newBrowserFixture(t)
	ctx := context.Background()
	if _, err := f.browser.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	snap, err := f.browser.Navigate(ctx, "  example.org/path ")
	if err != nil {
		t.Fatalf("navigate: %v", err)
	}
	r := f.factory.renderer(0)
	if snap.URL != "https://example.org/path" || r.lastLoad() != "https://example.org/path" {
		t.Fatalf("unexpected navigate result: %+v load=%q", snap, r.lastLoad())
	}
	if _, err := f.browser.Navigate(ctx, "   "); !errors.Is(err, schema.ErrInvalidURL) {
		t.Fatalf("expected ErrInvalidURL, got %v", err)
	}
	moved, err := f.browser.Back(ctx)
	if err != nil || moved {
		t.Fatalf("expected no back history, moved=%v err=%v", moved, err)
	}
	r.mu.Lock()
	r.back = true
	r.forward = true
	r.mu.Unlock()
	if moved, _ := f.browser.Back(ctx); !moved {
		t.Fatalf("expected back navigation")
	}
	if moved, _ := f.browser.Forward(ctx); !moved {
		t.Fatalf("expected forward navigation")
	}
	if err := f.browser.Reload(ctx); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if err := f.browser.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.reloads != 1 || r.stops != 1 {
		t.Fatalf("expected reload and stop, got %d/%d", r.reloads, r.stops)
	}
}

func TestBrowserExternalSchemeIsNotProjected(t *testing.T) {
	f := newBrowserFixture(t)
	ctx := context.Background()
	if _, err := f.browser.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	f.factory.renderer(0).events.OnNavigationStart("weixin://dl/business")
	f.flush(t)
	current, _ := f.browser.CurrentTab(ctx)
	if current.URL != schema.DefaultHomeURL {
		t.Fatalf("external scheme must not replace the url: %+v", current)
	}
	notices := f.sink.noticeEvents()
	if len(notices) != 1 || notices[0].Level != schema.NoticeInfo {
		t.Fatalf("expected info notice, got %+v", notices)
	}
}

func TestBrowserBlobAndDownloadCallbacks(t *testing.T) {
	f := newBrowserFixture(t)
	ctx := context.Background()
	if _, err := f.browser.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	events := f.factory.renderer(0).events
	events.OnBlob(schema.BlobPayload{DataURI: "data:text/plain;base64,aGk=", MimeType: "text/plain"})
	events.OnDownload(schema.DownloadRequest{URL: "https://example.com/file.zip"})
	waitFor(t, func() bool {
		f.flush(t)
		saved := 0
		for _, n := range f.sink.noticeEvents() {
			if n.Message == "saved blob.bin" || n.Message == "saved file.zip" {
				saved++
			}
		}
		return saved == 2
	})
	f.downloads.mu.Lock()
	defer f.downloads.mu.Unlock()
	if len(f.downloads.urls) != 1 || f.downloads.urls[0].UserAgent != "webtabs-test" {
		t.Fatalf("expected url download with user agent, got %+v", f.downloads.urls)
	}
}

func TestBrowserDownloadFailureBecomesNotice(t *testing.T) {
	f := newBrowserFixture(t)
	f.downloads.err = errors.New("status 404")
	ctx := context.Background()
	if _, err := f.browser.Download(ctx, schema.DownloadRequest{URL: "https://example.com/missing"}); err == nil {
		t.Fatalf("expected download error")
	}
	waitFor(t, func() bool {
		f.flush(t)
		for _, n := range f.sink.noticeEvents() {
			if n.Level == schema.NoticeError {
				return true
			}
		}
		return false
	})
}

func TestBrowserCloseDisposesAndRejects(t *testing.T) {
	f := newBrowserFixture(t)
	ctx := context.Background()
	if _, err := f.browser.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := f.browser.CreateTab(ctx, ""); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := f.browser.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	for i := 0; i < 2; i++ {
		if !f.factory.renderer(i).isReleased() {
			t.Fatalf("renderer %d not released", i)
		}
	}
	if _, err := f.browser.CreateTab(ctx, ""); !errors.Is(err, schema.ErrBrowserClosed) {
		t.Fatalf("expected ErrBrowserClosed, got %v", err)
	}
	if err := f.browser.Close(ctx); err != nil {
		t.Fatalf("second close: %v", err)
	}
	// Callbacks after close must not panic or block.
	f.factory.renderer(0).events.OnNavigationStart("https://late.example")
}

func TestBrowserConcurrentCallersAndCallbacks(t *testing.T) {
	f := newBrowserFixture(t)
	ctx := context.Background()
	if _, err := f.browser.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				switch (w + i) % 4 {
				case 0:
					_, _ = f.browser.CreateTab(ctx, "https://example.com")
				case 1:
					_ = f.browser.CloseTab(ctx, i%3)
				case 2:
					_, _ = f.browser.SwitchTo(ctx, i%5)
				case 3:
					f.factory.renderer(0).events.OnNavigationFinish("https://example.com", "")
				}
			}
		}(w)
	}
	wg.Wait()
	tabs, active, err := f.browser.ListTabs(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tabs) == 0 || active == "" {
		t.Fatalf("expected at least one tab and an active id, got %d %q", len(tabs), active)
	}
	activeCount := 0
	for _, tab := range tabs {
		if tab.Active {
			activeCount++
		}
	}
	if activeCount != 1 {
		t.Fatalf("expected exactly one active tab, got %d", activeCount)
	}
}

func TestBrowserExecHonoursContext(t *testing.T) {
	f := newBrowserFixture(t)
	block := make(chan struct{})
	f.browser.post(func() { <-block })
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := f.browser.CurrentTab(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	close(block)
}

func TestBrowserCancelledCallsDoNothing(t *testing.T) {
	f := newBrowserFixture(t)
	if _, err := f.browser.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < 20; i++ {
		if _, err := f.browser.CreateTab(cancelled, "https://example.com/"); !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	}

	// Queued behind a blocked loop, then abandoned before it starts.
	block := make(chan struct{})
	f.browser.post(func() { <-block })
	ctx, cancelQueued := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancelQueued()
	if _, err := f.browser.CreateTab(ctx, "https://example.com/"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	close(block)
	f.flush(t)

	tabs, _, err := f.browser.ListTabs(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tabs) != 1 {
		t.Fatalf("expected only the start tab, got %d", len(tabs))
	}
	if f.factory.count() != 1 {
		t.Fatalf("expected one renderer, got %d", f.factory.count())
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}
