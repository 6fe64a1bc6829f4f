package core

import (
	"html"
	"net/url"
	"sync"
)

// degradedRenderer stands in for a renderer that could not be allocated.
// It shows an inline error page and accepts every call without effect.
type degradedRenderer struct {
	mu     sync.Mutex
	page   string
	target string
}

func newDegradedRenderer(target string, cause error) *degradedRenderer {
	msg := "renderer unavailable"
	if cause != nil {
		msg = cause.Error()
	}
	return &degradedRenderer{page: errorPageURL(target, msg), target: target}
}

// errorPageURL renders the inline error page as a data URL.
func errorPageURL(target, msg string) string {
	body := "<html><head><title>Page unavailable</title></head><body>" +
		"<h1>Page unavailable</h1><p>" + html.EscapeString(msg) + "</p>"
	if target != "" {
		body += "<p>" + html.EscapeString(target) + "</p>"
	}
	body += "</body></html>"
	return "data:text/html;charset=utf-8," + url.PathEscape(body)
}

func (d *degradedRenderer) Page() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.page
}

func (d *degradedRenderer) Load(target string) error {
	d.mu.Lock()
	d.target = target
	d.mu.Unlock()
	return nil
}

func (d *degradedRenderer) GoBack() error { return nil }
func (d *degradedRenderer) CanGoBack() bool { return false }
func (d *degradedRenderer) GoForward() error { return nil }
func (d *degradedRenderer) CanGoForward() bool { return false }
func (d *degradedRenderer) Reload() error { return nil }
func (d *degradedRenderer) Stop() error { return nil }
func (d *degradedRenderer) Release() error { return nil }
