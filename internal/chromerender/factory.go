// Package chromerender drives tabs through a Chrome instance over the
// DevTools protocol. Every tab is a separate page target of one browser
// process.
package chromerender

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"pkt.systems/pslog"
	"pkt.systems/webtabs/core"
	"pkt.systems/webtabs/schema"
)

const (
	defaultNavigationTimeout = 60 * time.Second
	defaultStartTimeout      = 30 * time.Second
	surfaceTimeout           = 5 * time.Second
)

// Config controls the Chrome process.
type Config struct {
	ExecPath          string
	Headless          bool
	NoSandbox         bool
	Proxy             string
	UserAgent         string
	WindowWidth       int
	WindowHeight      int
	NavigationTimeout time.Duration
	StartTimeout      time.Duration
	Logger            pslog.Logger
}

// Factory owns the browser process and hands out one page target per tab.
// It also acts as the visible surface: attaching a renderer brings its page
// to the front.
type Factory struct {
	cfg         Config
	log         pslog.Logger
	allocCtx    context.Context
	allocCancel context.CancelFunc
	browserCtx  context.Context
	cancel      context.CancelFunc

	mu        sync.Mutex
	renderers map[cdp.FrameID]*Renderer
	front     *Renderer
	closed    bool
}

// NewFactory launches Chrome and returns a factory bound to it.
func NewFactory(ctx context.Context, cfg Config) (*Factory, error) {
	if cfg.Logger == nil {
		cfg.Logger = pslog.Ctx(ctx)
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavigationTimeout
	}
	if cfg.StartTimeout <= 0 {
		cfg.StartTimeout = defaultStartTimeout
	}
	log := cfg.Logger.With("component", "chrome")

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(cfg)...)
	browserCtx, cancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			log.Trace("chrome cdp", "msg", fmt.Sprintf(format, args...))
		}),
		chromedp.WithErrorf(func(format string, args ...any) {
			log.Warn("chrome cdp error", "err", fmt.Sprintf(format, args...))
		}),
	)
	f := &Factory{
		cfg:         cfg,
		log:         log,
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		browserCtx:  browserCtx,
		cancel:      cancel,
		renderers:   make(map[cdp.FrameID]*Renderer),
	}

	startErr := make(chan error, 1)
	go func() { startErr <- chromedp.Run(browserCtx) }()
	timer := time.NewTimer(cfg.StartTimeout)
	defer timer.Stop()
	select {
	case err := <-startErr:
		if err != nil {
			f.shutdown()
			return nil, fmt.Errorf("%w: %v", schema.ErrRendererUnavailable, err)
		}
	case <-timer.C:
		f.shutdown()
		return nil, fmt.Errorf("%w: chrome did not start within %s", schema.ErrRendererUnavailable, cfg.StartTimeout)
	case <-ctx.Done():
		f.shutdown()
		return nil, ctx.Err()
	}

	chromedp.ListenBrowser(browserCtx, f.onBrowserEvent)
	if err := f.denyNativeDownloads(); err != nil {
		log.Warn("chrome download behavior failed", "err", err)
	}
	log.Info("chrome started", "headless", cfg.Headless, "proxy", cfg.Proxy)
	return f, nil
}

func allocatorOptions(cfg Config) []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("disable-default-apps", true),
		chromedp.Flag("disable-popup-blocking", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("hide-crash-restore-bubble", true),
	}
	if cfg.Headless {
		opts = append(opts, chromedp.Headless)
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if strings.TrimSpace(cfg.Proxy) != "" {
		opts = append(opts, chromedp.ProxyServer(proxyServer(cfg.Proxy)))
	}
	if strings.TrimSpace(cfg.UserAgent) != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.WindowWidth > 0 && cfg.WindowHeight > 0 {
		opts = append(opts, chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight))
	}
	if strings.TrimSpace(cfg.ExecPath) != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	return opts
}

// proxyServer adds an http scheme to bare host:port proxies.
func proxyServer(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.Contains(raw, "://") {
		return raw
	}
	return "http://" + raw
}

func (f *Factory) denyNativeDownloads() error {
	c := chromedp.FromContext(f.browserCtx)
	if c == nil || c.Browser == nil {
		return errors.New("browser not started")
	}
	ctx, cancel := context.WithTimeout(cdp.WithExecutor(f.browserCtx, c.Browser), surfaceTimeout)
	defer cancel()
	return browser.SetDownloadBehavior(browser.SetDownloadBehaviorBehaviorDeny).
		WithEventsEnabled(true).
		Do(ctx)
}

func (f *Factory) onBrowserEvent(ev any) {
	switch ev := ev.(type) {
	case *browser.EventDownloadWillBegin:
		r := f.rendererFor(ev.FrameID)
		if r == nil {
			f.log.Warn("chrome download unrouted", "url", ev.URL, "frame", ev.FrameID)
			return
		}
		r.events.OnDownload(schema.DownloadRequest{
			URL:                ev.URL,
			ContentDisposition: attachmentDisposition(ev.SuggestedFilename),
			UserAgent:          f.cfg.UserAgent,
		})
	}
}

func attachmentDisposition(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	return fmt.Sprintf("attachment; filename=%q", name)
}

// rendererFor resolves a frame to its tab. Subframe downloads fall back to
// the front renderer.
func (f *Factory) rendererFor(id cdp.FrameID) *Renderer {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.renderers[id]; ok {
		return r
	}
	return f.front
}

// NewRenderer opens a new page target.
func (f *Factory) NewRenderer(ctx context.Context, events core.RendererEvents) (core.Renderer, error) {
	f.mu.Lock()
	closed := f.closed
	f.mu.Unlock()
	if closed {
		return nil, schema.ErrRendererUnavailable
	}
	r, err := newRenderer(ctx, f, events)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.renderers[r.frameID] = r
	f.mu.Unlock()
	return r, nil
}

func (f *Factory) forget(r *Renderer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cur, ok := f.renderers[r.frameID]; ok && cur == r {
		delete(f.renderers, r.frameID)
	}
	if f.front == r {
		f.front = nil
	}
}

// Attach brings the renderer's page to the front.
func (f *Factory) Attach(id schema.TabID, r core.Renderer) error {
	cr, ok := r.(*Renderer)
	if !ok {
		return nil
	}
	f.mu.Lock()
	f.front = cr
	f.mu.Unlock()
	cr.background("attach", surfaceTimeout, func(ctx context.Context) error {
		return page.BringToFront().Do(ctx)
	})
	f.log.Trace("chrome surface attached", "tab", id)
	return nil
}

// Detach drops the renderer from the front slot. Hidden pages keep loading.
func (f *Factory) Detach(id schema.TabID, r core.Renderer) error {
	cr, ok := r.(*Renderer)
	if !ok {
		return nil
	}
	f.mu.Lock()
	if f.front == cr {
		f.front = nil
	}
	f.mu.Unlock()
	f.log.Trace("chrome surface detached", "tab", id)
	return nil
}

// Close shuts the browser process down.
func (f *Factory) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	f.mu.Unlock()
	err := chromedp.Cancel(f.browserCtx)
	f.shutdown()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	f.log.Info("chrome stopped")
	return nil
}

func (f *Factory) shutdown() {
	if f.cancel != nil {
		f.cancel()
	}
	if f.allocCancel != nil {
		f.allocCancel()
	}
}
