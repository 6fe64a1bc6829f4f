package core

import (
	"context"

	"pkt.systems/webtabs/schema"
)

// Renderer is one web-content engine instance. Each tab owns exactly one.
// Navigation methods only start work; progress arrives through the
// RendererEvents the renderer was created with.
type Renderer interface {
	Load(url string) error
	GoBack() error
	CanGoBack() bool
	GoForward() error
	CanGoForward() bool
	Reload() error
	Stop() error
	// Release tears the renderer down and returns once no background
	// activity remains.
	Release() error
}

// RendererEvents receives renderer lifecycle callbacks. Implementations must
// not block: callbacks arrive on engine goroutines.
type RendererEvents interface {
	OnNavigationStart(url string)
	OnNavigationFinish(url, title string)
	OnNavigationError(url, info string)
	OnTitle(title string)
	OnBlob(payload schema.BlobPayload)
	OnDownload(schema.DownloadRequest)
}

// RendererFactory allocates renderers. ctx bounds the allocation only; the
// renderer lives until Release.
type RendererFactory interface {
	NewRenderer(ctx context.Context, events RendererEvents) (Renderer, error)
}

// RendererFactoryFunc adapts a function to RendererFactory.
type RendererFactoryFunc func(ctx context.Context, events RendererEvents) (Renderer, error)

// NewRenderer calls f.
func (f RendererFactoryFunc) NewRenderer(ctx context.Context, events RendererEvents) (Renderer, error) {
	return f(ctx, events)
}

// Surface hosts the visible tab. Exactly one renderer is attached at a time.
type Surface interface {
	Attach(id schema.TabID, r Renderer) error
	Detach(id schema.TabID, r Renderer) error
}

type nopSurface struct{}

func (nopSurface) Attach(schema.TabID, Renderer) error { return nil }
func (nopSurface) Detach(schema.TabID, Renderer) error { return nil }

type nopRendererEvents struct{}

func (nopRendererEvents) OnNavigationStart(string) {}
func (nopRendererEvents) OnNavigationFinish(string, string) {}
func (nopRendererEvents) OnNavigationError(string, string) {}
func (nopRendererEvents) OnTitle(string) {}
func (nopRendererEvents) OnBlob(schema.BlobPayload) {}
func (nopRendererEvents) OnDownload(schema.DownloadRequest) {}
