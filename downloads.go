package webtabs

import (
	"context"

	"pkt.systems/webtabs/internal/metrics"
	"pkt.systems/webtabs/schema"
)

// instrumentDownloads counts transfers on m. A nil m returns d unchanged.
func instrumentDownloads(d Downloads, m *metrics.Metrics) Downloads {
	if m == nil {
		return d
	}
	return instrumentedDownloads{inner: d, metrics: m}
}

type instrumentedDownloads struct {
	inner   Downloads
	metrics *metrics.Metrics
}

func (d instrumentedDownloads) SaveBlob(ctx context.Context, payload schema.BlobPayload) (schema.DownloadRecord, error) {
	record, err := d.inner.SaveBlob(ctx, payload)
	d.metrics.ObserveDownload("blob", record, err)
	return record, err
}

func (d instrumentedDownloads) Fetch(ctx context.Context, req schema.DownloadRequest) (schema.DownloadRecord, error) {
	record, err := d.inner.Fetch(ctx, req)
	d.metrics.ObserveDownload("url", record, err)
	return record, err
}

func (d instrumentedDownloads) List() ([]schema.DownloadRecord, error) {
	return d.inner.List()
}
