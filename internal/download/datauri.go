package download

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	"pkt.systems/webtabs/schema"
)

// DecodeDataURI returns the payload and media type of a data: URI. Both
// base64 and percent-encoded payloads are accepted.
func DecodeDataURI(uri string) ([]byte, string, error) {
	if !strings.HasPrefix(strings.ToLower(uri), "data:") {
		return nil, "", schema.ErrInvalidDataURI
	}
	comma := strings.IndexByte(uri, ',')
	if comma < 0 {
		return nil, "", schema.ErrInvalidDataURI
	}
	header := uri[len("data:"):comma]
	payload := uri[comma+1:]
	isBase64 := false
	mediaType := header
	if strings.HasSuffix(strings.ToLower(header), ";base64") {
		isBase64 = true
		mediaType = header[:len(header)-len(";base64")]
	}
	if semi := strings.IndexByte(mediaType, ';'); semi >= 0 {
		mediaType = mediaType[:semi]
	}
	mediaType = strings.TrimSpace(mediaType)
	if !isBase64 {
		data, err := url.PathUnescape(payload)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", schema.ErrInvalidDataURI, err)
		}
		return []byte(data), mediaType, nil
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		// Some engines drop the padding.
		raw, rawErr := base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if rawErr != nil {
			return nil, "", fmt.Errorf("%w: %v", schema.ErrInvalidDataURI, err)
		}
		data = raw
	}
	return data, mediaType, nil
}
