package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"pkt.systems/pslog"
	"pkt.systems/webtabs"
	"pkt.systems/webtabs/core"
	"pkt.systems/webtabs/httpapi"
	"pkt.systems/webtabs/internal/appconfig"
	"pkt.systems/webtabs/internal/chromerender"
	"pkt.systems/webtabs/internal/download"
	"pkt.systems/webtabs/internal/metrics"
	"pkt.systems/webtabs/internal/persist"
	"pkt.systems/webtabs/internal/stubrender"
)

// engine is a renderer backend together with its visible surface.
type engine struct {
	factory core.RendererFactory
	surface core.Surface
	closer  io.Closer
}

func selectEngine(ctx context.Context, cfg appconfig.Config) (engine, error) {
	logger := pslog.Ctx(ctx)
	switch cfg.Browser.Engine {
	case "stub":
		logger.Info("renderer engine selected", "engine", "stub")
		return engine{factory: stubrender.NewFactory()}, nil
	case "chrome", "":
		logger.Info("renderer engine selected", "engine", "chrome", "headless", cfg.Browser.Headless)
		factory, err := chromerender.NewFactory(ctx, chromerender.Config{
			ExecPath:          cfg.Browser.ChromePath,
			Headless:          cfg.Browser.Headless,
			NoSandbox:         cfg.Browser.NoSandbox,
			Proxy:             cfg.Browser.Proxy,
			UserAgent:         cfg.Browser.UserAgent,
			WindowWidth:       cfg.Browser.WindowWidth,
			WindowHeight:      cfg.Browser.WindowHeight,
			NavigationTimeout: time.Duration(cfg.Browser.NavTimeout) * time.Second,
			Logger:            logger,
		})
		if err != nil {
			return engine{}, err
		}
		return engine{factory: factory, surface: factory, closer: factory}, nil
	default:
		return engine{}, fmt.Errorf("unsupported browser engine %q", cfg.Browser.Engine)
	}
}

func openHistory(cfg appconfig.Config, logger pslog.Logger) (persist.Opened, *core.HistoryStore, error) {
	if err := os.MkdirAll(cfg.StateDir, 0o700); err != nil {
		return nil, nil, fmt.Errorf("state dir: %w", err)
	}
	kv, err := persist.Open(persist.Options{
		Backend: persist.Backend(cfg.History.Backend),
		Dir:     cfg.StateDir,
		Path:    cfg.History.Path,
		Logger:  logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("history store: %w", err)
	}
	store := core.NewHistoryStore(kv, core.HistoryOptions{
		Max:    cfg.History.MaxEntries,
		Logger: logger,
	})
	return kv, store, nil
}

func newDownloads(cfg appconfig.Config, logger pslog.Logger) (*download.Manager, error) {
	return download.NewManager(download.Config{
		Dir:          cfg.Downloads.Dir,
		MirrorPrefix: cfg.Downloads.MirrorPrefix,
		Retries:      cfg.Downloads.Retries,
		Logger:       logger,
	})
}

func toHTTPConfig(cfg appconfig.HTTPConfig) httpapi.Config {
	return httpapi.Config{
		Addr:          cfg.Addr,
		BaseURL:       cfg.BaseURL,
		BasePath:      cfg.BasePath,
		Token:         cfg.Token,
		EnableMetrics: cfg.EnableMetrics,
		StreamReplay:  cfg.StreamReplay,
	}
}

// buildServer wires the configured engine, history and downloads into a
// server. The engine and history store are closed by Server.Stop.
func buildServer(ctx context.Context, cfg appconfig.Config, opts ...webtabs.ServerOption) (*webtabs.Server, error) {
	logger := pslog.Ctx(ctx)
	kv, history, err := openHistory(cfg, logger)
	if err != nil {
		return nil, err
	}
	downloads, err := newDownloads(cfg, logger)
	if err != nil {
		_ = kv.Close()
		return nil, err
	}
	eng, err := selectEngine(ctx, cfg)
	if err != nil {
		_ = kv.Close()
		return nil, err
	}
	var m *metrics.Metrics
	if cfg.HTTP.EnableMetrics {
		m = metrics.New()
	}
	server, err := webtabs.New(webtabs.ServerConfig{
		Browser:    cfg.BrowserSettings(),
		HTTP:       toHTTPConfig(cfg.HTTP),
		HubHistory: cfg.HTTP.StreamReplay,
	}, webtabs.ServerDeps{
		Factory:   eng.factory,
		Surface:   eng.surface,
		History:   history,
		Downloads: downloads,
		Metrics:   m,
		Logger:    logger,
		Closers:   []io.Closer{eng.closer, kv},
	}, opts...)
	if err != nil {
		if eng.closer != nil {
			_ = eng.closer.Close()
		}
		_ = kv.Close()
		return nil, err
	}
	return server, nil
}
