package webtabs

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"

	"pkt.systems/pslog"
	"pkt.systems/webtabs/core"
	"pkt.systems/webtabs/httpapi"
	"pkt.systems/webtabs/internal/eventbus"
	"pkt.systems/webtabs/internal/metrics"
	"pkt.systems/webtabs/schema"
)

// ServerConfig configures the compositor.
type ServerConfig struct {
	Browser    schema.BrowserConfig
	HTTP       httpapi.Config
	HubHistory int
}

// Downloads saves and lists downloads.
type Downloads interface {
	core.DownloadSink
	List() ([]schema.DownloadRecord, error)
}

// ServerDeps captures dependencies required to build the server.
type ServerDeps struct {
	Factory   core.RendererFactory
	Surface   core.Surface
	History   *core.HistoryStore
	Downloads Downloads
	// Metrics may be nil.
	Metrics *metrics.Metrics
	// EventSink receives browser events in addition to the built-in sinks.
	EventSink core.EventSink
	// Listener, when set, is served instead of listening on HTTP.Addr.
	Listener net.Listener
	Logger   pslog.Logger
	// Closers are closed in order after the browser has shut down.
	Closers []io.Closer
}

// ServerOption toggles compositor components.
type ServerOption func(*serverOptions)

type serverOptions struct {
	enableHTTP bool
}

// WithHTTP enables the HTTP API/UI server.
func WithHTTP() ServerOption {
	return func(o *serverOptions) { o.enableHTTP = true }
}

// Server runs a browser and, optionally, the HTTP control surface over it.
type Server struct {
	cfg      ServerConfig
	options  serverOptions
	browser  *core.Browser
	history  *core.HistoryStore
	bus      *eventbus.Bus
	httpSrv  *httpapi.Server
	listener net.Listener
	closers  []io.Closer
	logger   pslog.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	errCh   chan error
	started bool
	stopped bool
}

// New constructs a composable webtabs server.
func New(cfg ServerConfig, deps ServerDeps, opts ...ServerOption) (*Server, error) {
	options := serverOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	if deps.Factory == nil {
		return nil, errors.New("renderer factory is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	cfg.Browser = schema.NormalizeBrowserConfig(cfg.Browser)
	history := deps.History
	if history == nil {
		history = core.NewHistoryStore(nil, core.HistoryOptions{Max: cfg.Browser.HistoryMax, Logger: logger})
	}

	bus := eventbus.New(logger)
	sinks := []core.EventSink{bus, historyGauge{metrics: deps.Metrics, history: history}}
	if deps.Metrics != nil {
		sinks = append(sinks, deps.Metrics)
	}
	if deps.EventSink != nil {
		sinks = append(sinks, deps.EventSink)
	}
	var hub *httpapi.Hub
	if options.enableHTTP {
		hub = httpapi.NewHub(cfg.HubHistory)
		sinks = append(sinks, hub)
	}

	var downloads Downloads
	if deps.Downloads != nil {
		downloads = instrumentDownloads(deps.Downloads, deps.Metrics)
	}
	browserDeps := core.BrowserDeps{
		Factory:   deps.Factory,
		Surface:   deps.Surface,
		History:   history,
		EventSink: eventFanout{sinks: sinks},
		Logger:    logger,
	}
	if downloads != nil {
		browserDeps.Downloads = downloads
	}
	browser, err := core.NewBrowser(cfg.Browser, browserDeps)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:      cfg,
		options:  options,
		browser:  browser,
		history:  history,
		bus:      bus,
		listener: deps.Listener,
		closers:  deps.Closers,
		logger:   logger,
	}
	if options.enableHTTP {
		httpDeps := httpapi.Deps{
			Browser: browser,
			History: history,
			Hub:     hub,
			Metrics: deps.Metrics,
		}
		if downloads != nil {
			httpDeps.Downloads = downloads
		}
		s.httpSrv = httpapi.NewServer(cfg.HTTP, httpDeps)
	}
	return s, nil
}

// Browser returns the tab controller.
func (s *Server) Browser() *core.Browser {
	return s.browser
}

// History returns the visit log.
func (s *Server) History() *core.HistoryStore {
	return s.history
}

// Bus returns the in-process event bus.
func (s *Server) Bus() *eventbus.Bus {
	return s.bus
}

// Start opens the initial tab and starts the enabled listeners.
func (s *Server) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		pslog.Ctx(ctx).Warn("server start rejected", "reason", "already started")
		return errors.New("server already started")
	}
	s.ctx, s.cancel = context.WithCancel(pslog.ContextWithLogger(ctx, s.logger))
	s.errCh = make(chan error, 1)
	s.started = true
	s.mu.Unlock()

	log := s.logger
	log.Info(
		"server start",
		"http", s.options.enableHTTP,
		"http_addr", s.cfg.HTTP.Addr,
		"http_base_url", s.cfg.HTTP.BaseURL,
		"http_base_path", s.cfg.HTTP.BasePath,
		"start_url", s.cfg.Browser.StartURL,
	)
	if _, err := s.browser.Start(s.ctx); err != nil {
		s.cancel()
		return err
	}
	if s.options.enableHTTP && s.httpSrv != nil {
		handler := s.httpSrv.Handler()
		go func() {
			var err error
			if s.listener != nil {
				err = httpapi.Serve(s.ctx, s.listener, handler)
			} else {
				err = httpapi.ListenAndServe(s.ctx, s.cfg.HTTP.Addr, handler)
			}
			if err != nil {
				log.Error("http server failed", "err", err)
				s.errCh <- err
			}
		}()
	}
	return nil
}

// Wait blocks until the server is stopped or a listener fails.
func (s *Server) Wait() error {
	s.mu.Lock()
	ctx := s.ctx
	errCh := s.errCh
	started := s.started
	s.mu.Unlock()
	if !started {
		return errors.New("server not started")
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if err != nil {
			pslog.Ctx(ctx).Error("server stopped", "err", err)
			_ = s.Stop(context.Background())
			return err
		}
		return nil
	}
}

// Stop closes every tab, stops the listeners and releases the closers.
func (s *Server) Stop(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	cancel := s.cancel
	s.mu.Unlock()

	log := s.logger
	log.Info("server stop requested")
	var errs []error
	if err := s.browser.Close(ctx); err != nil {
		log.Warn("server browser close failed", "err", err)
		errs = append(errs, err)
	}
	if cancel != nil {
		cancel()
	}
	for _, closer := range s.closers {
		if closer == nil {
			continue
		}
		if err := closer.Close(); err != nil {
			log.Warn("server close failed", "err", err)
			errs = append(errs, err)
		}
	}
	log.Info("server stopped")
	return errors.Join(errs...)
}
