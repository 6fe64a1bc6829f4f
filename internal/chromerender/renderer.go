package chromerender

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	cdpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"pkt.systems/pslog"
	"pkt.systems/webtabs/core"
	"pkt.systems/webtabs/schema"
)

const historyTimeout = 5 * time.Second

// Renderer is one Chrome page target. Navigation calls return immediately
// and run on tracked goroutines; results arrive through RendererEvents.
type Renderer struct {
	f          *Factory
	events     core.RendererEvents
	log        pslog.Logger
	ctx        context.Context
	cancel     context.CancelFunc
	frameID    cdp.FrameID
	navTimeout time.Duration

	wg sync.WaitGroup

	mu         sync.Mutex
	released   bool
	pending    network.RequestID
	pendingURL string
	failed     bool

	canBack    atomic.Bool
	canForward atomic.Bool
}

func newRenderer(ctx context.Context, f *Factory, events core.RendererEvents) (*Renderer, error) {
	if events == nil {
		return nil, errors.New("renderer events required")
	}
	tabCtx, cancel := chromedp.NewContext(f.browserCtx)
	r := &Renderer{
		f:          f,
		events:     events,
		log:        f.log,
		ctx:        tabCtx,
		cancel:     cancel,
		navTimeout: f.cfg.NavigationTimeout,
	}
	chromedp.ListenTarget(tabCtx, r.onTargetEvent)

	done := make(chan error, 1)
	go func() {
		done <- chromedp.Run(tabCtx,
			cdpruntime.AddBinding(blobBinding),
			chromedp.ActionFunc(func(ctx context.Context) error {
				_, err := page.AddScriptToEvaluateOnNewDocument(blobBridgeScript).Do(ctx)
				return err
			}),
		)
	}()
	select {
	case err := <-done:
		if err != nil {
			cancel()
			return nil, fmt.Errorf("%w: %v", schema.ErrRendererUnavailable, err)
		}
	case <-ctx.Done():
		cancel()
		return nil, ctx.Err()
	}

	c := chromedp.FromContext(tabCtx)
	if c == nil || c.Target == nil {
		cancel()
		return nil, schema.ErrRendererUnavailable
	}
	r.mu.Lock()
	r.frameID = cdp.FrameID(c.Target.TargetID)
	r.mu.Unlock()
	r.log = f.log.With("target", c.Target.TargetID)
	r.log.Debug("chrome target opened")
	return r, nil
}

// Load starts navigating to url.
func (r *Renderer) Load(url string) error {
	return r.background("load", r.navTimeout, func(ctx context.Context) error {
		r.mu.Lock()
		r.failed = false
		r.mu.Unlock()
		_, _, errorText, isDownload, err := page.Navigate(url).Do(ctx)
		if err != nil {
			r.fail(url, err.Error())
			return err
		}
		if errorText != "" && !isDownload {
			r.fail(url, errorText)
		}
		return nil
	})
}

// GoBack navigates one history entry back.
func (r *Renderer) GoBack() error {
	return r.background("back", r.navTimeout, func(ctx context.Context) error {
		return stepHistory(ctx, -1)
	})
}

// CanGoBack reports the last observed history position.
func (r *Renderer) CanGoBack() bool { return r.canBack.Load() }

// GoForward navigates one history entry forward.
func (r *Renderer) GoForward() error {
	return r.background("forward", r.navTimeout, func(ctx context.Context) error {
		return stepHistory(ctx, 1)
	})
}

// CanGoForward reports the last observed history position.
func (r *Renderer) CanGoForward() bool { return r.canForward.Load() }

// Reload reloads the current document.
func (r *Renderer) Reload() error {
	return r.background("reload", r.navTimeout, func(ctx context.Context) error {
		return page.Reload().Do(ctx)
	})
}

// Stop aborts the current load.
func (r *Renderer) Stop() error {
	return r.background("stop", surfaceTimeout, func(ctx context.Context) error {
		return page.StopLoading().Do(ctx)
	})
}

// Release closes the page target and waits for in-flight work.
func (r *Renderer) Release() error {
	r.mu.Lock()
	if r.released {
		r.mu.Unlock()
		return nil
	}
	r.released = true
	r.mu.Unlock()
	r.f.forget(r)
	err := chromedp.Cancel(r.ctx)
	r.cancel()
	r.wg.Wait()
	r.log.Debug("chrome target closed")
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func stepHistory(ctx context.Context, delta int64) error {
	current, entries, err := page.GetNavigationHistory().Do(ctx)
	if err != nil {
		return err
	}
	next := current + delta
	if next < 0 || next >= int64(len(entries)) {
		return nil
	}
	return page.NavigateToHistoryEntry(entries[next].ID).Do(ctx)
}

// background runs fn against the page on a tracked goroutine.
func (r *Renderer) background(op string, timeout time.Duration, fn func(ctx context.Context) error) error {
	r.mu.Lock()
	if r.released {
		r.mu.Unlock()
		return schema.ErrRendererUnavailable
	}
	r.wg.Add(1)
	r.mu.Unlock()
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(r.ctx, timeout)
		defer cancel()
		if err := chromedp.Run(ctx, chromedp.ActionFunc(fn)); err != nil && r.ctx.Err() == nil {
			r.log.Warn("chrome command failed", "op", op, "err", err)
		}
	}()
	return nil
}

func (r *Renderer) fail(url, info string) {
	r.mu.Lock()
	if r.failed || r.released {
		r.mu.Unlock()
		return
	}
	r.failed = true
	r.pending = ""
	r.pendingURL = ""
	r.mu.Unlock()
	r.events.OnNavigationError(url, info)
}

// onTargetEvent runs on the chromedp event loop and must not block.
func (r *Renderer) onTargetEvent(ev any) {
	switch ev := ev.(type) {
	case *network.EventRequestWillBeSent:
		if ev.Request == nil || ev.Type != network.ResourceTypeDocument {
			return
		}
		if string(ev.RequestID) != string(ev.LoaderID) {
			return
		}
		r.mu.Lock()
		main := ev.FrameID == r.frameID && r.frameID != ""
		redirect := main && ev.RequestID == r.pending
		if main {
			r.pending = ev.RequestID
			r.pendingURL = ev.Request.URL
			r.failed = false
		}
		r.mu.Unlock()
		if main && !redirect {
			r.events.OnNavigationStart(ev.Request.URL)
		}
	case *network.EventLoadingFailed:
		r.mu.Lock()
		match := ev.RequestID != "" && ev.RequestID == r.pending
		url := r.pendingURL
		r.mu.Unlock()
		if match {
			r.fail(url, failureText(ev.ErrorText, ev.Canceled))
		}
	case *page.EventLoadEventFired:
		r.mu.Lock()
		skip := r.failed || r.released
		r.pending = ""
		r.mu.Unlock()
		if !skip {
			r.finish("")
		}
	case *page.EventNavigatedWithinDocument:
		r.mu.Lock()
		main := ev.FrameID == r.frameID
		r.mu.Unlock()
		if main {
			r.finish(ev.URL)
		}
	case *cdpruntime.EventBindingCalled:
		if ev.Name != blobBinding {
			return
		}
		payload, err := parseBlobPayload(ev.Payload)
		if err != nil {
			r.log.Warn("chrome blob payload rejected", "err", err)
			return
		}
		r.events.OnBlob(payload)
	}
}

func failureText(text string, canceled bool) string {
	if text != "" {
		return text
	}
	if canceled {
		return "canceled"
	}
	return "navigation failed"
}

// finish reads the committed location and title off the event loop, then
// reports completion. url overrides the location when known.
func (r *Renderer) finish(url string) {
	_ = r.background("finish", historyTimeout, func(ctx context.Context) error {
		var location, title string
		if err := chromedp.Location(&location).Do(ctx); err != nil {
			return err
		}
		if err := chromedp.Title(&title).Do(ctx); err != nil {
			return err
		}
		if url != "" {
			location = url
		}
		if current, entries, err := page.GetNavigationHistory().Do(ctx); err == nil {
			r.canBack.Store(current > 0)
			r.canForward.Store(current+1 < int64(len(entries)))
		}
		r.events.OnNavigationFinish(location, title)
		return nil
	})
}
