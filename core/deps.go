package core

import (
	"context"

	"pkt.systems/pslog"
	"pkt.systems/webtabs/schema"
)

// DownloadSink writes blob payloads and fetches URL downloads.
type DownloadSink interface {
	SaveBlob(ctx context.Context, payload schema.BlobPayload) (schema.DownloadRecord, error)
	Fetch(ctx context.Context, req schema.DownloadRequest) (schema.DownloadRecord, error)
}

// RegistryDeps captures collaborators of a TabRegistry.
type RegistryDeps struct {
	Factory RendererFactory
	Surface Surface
	Sink    EventSink
	// EventsFor binds renderer callbacks to a tab. Nil drops callbacks.
	EventsFor func(id schema.TabID) RendererEvents
	Logger    pslog.Logger
}

// BrowserDeps captures collaborators of a Browser.
type BrowserDeps struct {
	Factory   RendererFactory
	Surface   Surface
	History   *HistoryStore
	Downloads DownloadSink
	EventSink EventSink
	Logger    pslog.Logger
}
