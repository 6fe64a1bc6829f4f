package schema

import (
	"errors"
	"testing"
)

func TestDeriveLabel(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"host", "https://docs.example.com/x", "docs.example.com"},
		{"port", "http://localhost:8080/a?b=c", "localhost"},
		{"not-a-url", "not a url", "not a url"},
		{"empty", "", ""},
		{"no-host", "about:blank", "about:blank"},
		{"bad-escape", "http://%zz", "http://%zz"},
		{"ipv6", "http://[::1]:80/", "::1"},
	}
	for _, tc := range cases {
		if got := DeriveLabel(tc.in); got != tc.want {
			t.Fatalf("case %q: expected %q, got %q", tc.name, tc.want, got)
		}
	}
}

func TestNormalizeInputURL(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"example.com", "https://example.com"},
		{"  example.com/path  ", "https://example.com/path"},
		{"http://example.com", "http://example.com"},
		{"HTTPS://Example.com", "HTTPS://Example.com"},
	}
	for _, tc := range cases {
		got, err := NormalizeInputURL(tc.in)
		if err != nil {
			t.Fatalf("normalize %q: %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("normalize %q: expected %q, got %q", tc.in, tc.want, got)
		}
	}
	if _, err := NormalizeInputURL("   "); !errors.Is(err, ErrInvalidURL) {
		t.Fatalf("expected ErrInvalidURL, got %v", err)
	}
}

func TestIsWebScheme(t *testing.T) {
	if !IsWebScheme("https://example.com") || !IsWebScheme("about:blank") {
		t.Fatalf("expected web schemes to be loadable")
	}
	if IsWebScheme("weixin://dl/business") {
		t.Fatalf("expected app scheme to be rejected")
	}
}

func TestNormalizeBrowserConfigDefaults(t *testing.T) {
	cfg := NormalizeBrowserConfig(BrowserConfig{})
	if cfg.HomeURL != DefaultHomeURL || cfg.StartURL != DefaultHomeURL {
		t.Fatalf("unexpected urls: %+v", cfg)
	}
	if cfg.DefaultTitle != DefaultTabTitle || cfg.HistoryMax != DefaultHistoryMax {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	cfg = NormalizeBrowserConfig(BrowserConfig{HomeURL: "https://a.example", StartURL: "https://b.example", HistoryMax: 5})
	if cfg.StartURL != "https://b.example" || cfg.HomeURL != "https://a.example" || cfg.HistoryMax != 5 {
		t.Fatalf("unexpected overrides: %+v", cfg)
	}
}
