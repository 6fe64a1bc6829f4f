package download

import (
	"errors"
	"testing"

	"pkt.systems/webtabs/schema"
)

func TestDecodeDataURI(t *testing.T) {
	cases := []struct {
		name string
		in   string
		data string
		mime string
	}{
		{"base64", "data:text/plain;base64,aGVsbG8=", "hello", "text/plain"},
		{"base64-unpadded", "data:application/octet-stream;base64,aGVsbG8", "hello", "application/octet-stream"},
		{"params", "data:text/csv;charset=utf-8;base64,YSxi", "a,b", "text/csv"},
		{"percent", "data:text/plain,hello%20world", "hello world", "text/plain"},
		{"no-media-type", "data:,x", "x", ""},
	}
	for _, tc := range cases {
		data, mime, err := DecodeDataURI(tc.in)
		if err != nil {
			t.Fatalf("case %q: %v", tc.name, err)
		}
		if string(data) != tc.data || mime != tc.mime {
			t.Fatalf("case %q: got %q (%q)", tc.name, data, mime)
		}
	}
	for _, bad := range []string{"", "blob:https://x", "data:text/plain;base64", "data:;base64,@@@"} {
		if _, _, err := DecodeDataURI(bad); !errors.Is(err, schema.ErrInvalidDataURI) {
			t.Fatalf("expected ErrInvalidDataURI for %q, got %v", bad, err)
		}
	}
}
