// Package stubrender is a renderer engine without a browser behind it. Every
// load completes at once with the host name as title, which is enough to
// drive tabs, history and the API on machines without Chrome.
package stubrender

import (
	"context"
	"errors"
	"sync"

	"pkt.systems/webtabs/core"
	"pkt.systems/webtabs/schema"
)

// ErrReleased is returned by calls on a released renderer.
var ErrReleased = errors.New("renderer released")

// Factory creates stub renderers.
type Factory struct {
	// Fail makes every load report a navigation error with this text.
	Fail string

	mu        sync.Mutex
	renderers []*Renderer
}

// NewFactory returns a stub factory.
func NewFactory() *Factory {
	return &Factory{}
}

// NewRenderer implements core.RendererFactory.
func (f *Factory) NewRenderer(ctx context.Context, events core.RendererEvents) (core.Renderer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r := &Renderer{events: events, fail: f.Fail}
	f.mu.Lock()
	f.renderers = append(f.renderers, r)
	f.mu.Unlock()
	return r, nil
}

// Live returns the renderers not yet released.
func (f *Factory) Live() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.renderers {
		if !r.isReleased() {
			n++
		}
	}
	return n
}

// Renderer keeps a linear back/forward list.
type Renderer struct {
	events core.RendererEvents
	fail   string

	mu       sync.Mutex
	stack    []string
	pos      int
	released bool
}

// Load pushes url and reports start and finish.
func (r *Renderer) Load(url string) error {
	r.mu.Lock()
	if r.released {
		r.mu.Unlock()
		return ErrReleased
	}
	if len(r.stack) > 0 {
		r.stack = r.stack[:r.pos+1]
	}
	r.stack = append(r.stack, url)
	r.pos = len(r.stack) - 1
	r.mu.Unlock()
	r.visit(url)
	return nil
}

func (r *Renderer) visit(url string) {
	r.events.OnNavigationStart(url)
	if r.fail != "" {
		r.events.OnNavigationError(url, r.fail)
		return
	}
	r.events.OnNavigationFinish(url, schema.DeriveLabel(url))
}

func (r *Renderer) move(delta int) error {
	r.mu.Lock()
	if r.released {
		r.mu.Unlock()
		return ErrReleased
	}
	next := r.pos + delta
	if next < 0 || next >= len(r.stack) {
		r.mu.Unlock()
		return nil
	}
	r.pos = next
	url := r.stack[next]
	r.mu.Unlock()
	r.visit(url)
	return nil
}

// GoBack moves one entry back.
func (r *Renderer) GoBack() error { return r.move(-1) }

// GoForward moves one entry forward.
func (r *Renderer) GoForward() error { return r.move(1) }

// CanGoBack reports whether an earlier entry exists.
func (r *Renderer) CanGoBack() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.released && r.pos > 0
}

// CanGoForward reports whether a later entry exists.
func (r *Renderer) CanGoForward() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.released && r.pos+1 < len(r.stack)
}

// Reload revisits the current entry.
func (r *Renderer) Reload() error { return r.move(0) }

// Stop is a no-op; loads never stay pending.
func (r *Renderer) Stop() error { return nil }

// Release marks the renderer unusable.
func (r *Renderer) Release() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.released = true
	return nil
}

func (r *Renderer) isReleased() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.released
}
