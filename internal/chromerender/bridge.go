package chromerender

import (
	"encoding/json"
	"errors"
	"strings"

	"pkt.systems/webtabs/schema"
)

const blobBinding = "webtabsBlob"

// blobBridgeScript runs in every document. Clicks on blob: links are
// resolved in page context and handed to the binding as a data URI.
const blobBridgeScript = `(() => {
  if (window.__webtabsBlobBridge) return;
  window.__webtabsBlobBridge = true;
  const send = (href, name) => fetch(href)
    .then((res) => res.blob())
    .then((blob) => new Promise((resolve, reject) => {
      const reader = new FileReader();
      reader.onload = () => resolve({ blob, data: reader.result });
      reader.onerror = () => reject(reader.error);
      reader.readAsDataURL(blob);
    }))
    .then(({ blob, data }) => {
      const disposition = name ? 'attachment; filename="' + name.replace(/"/g, '') + '"' : '';
      window.` + blobBinding + `(JSON.stringify({
        data_uri: data,
        content_disposition: disposition,
        mime_type: blob.type || '',
      }));
    })
    .catch(() => {});
  document.addEventListener('click', (ev) => {
    const link = ev.target && ev.target.closest ? ev.target.closest('a[href^="blob:"]') : null;
    if (!link) return;
    ev.preventDefault();
    send(link.href, link.getAttribute('download') || '');
  }, true);
})();`

var errEmptyBlobPayload = errors.New("empty blob payload")

func parseBlobPayload(raw string) (schema.BlobPayload, error) {
	var payload schema.BlobPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return schema.BlobPayload{}, err
	}
	payload.DataURI = strings.TrimSpace(payload.DataURI)
	if payload.DataURI == "" {
		return schema.BlobPayload{}, errEmptyBlobPayload
	}
	return payload, nil
}
