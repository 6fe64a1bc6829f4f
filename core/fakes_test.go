package core

import (
	"context"
	"errors"
	"sync"

	"pkt.systems/webtabs/schema"
)

type fakeRenderer struct {
	mu       sync.Mutex
	events   RendererEvents
	loads    []string
	back     bool
	forward  bool
	reloads  int
	stops    int
	released bool
	loadErr  error
}

func (r *fakeRenderer) Load(url string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loads = append(r.loads, url)
	return r.loadErr
}

func (r *fakeRenderer) GoBack() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.back = false
	return nil
}

func (r *fakeRenderer) CanGoBack() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.back
}

func (r *fakeRenderer) GoForward() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forward = false
	return nil
}

func (r *fakeRenderer) CanGoForward() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.forward
}

func (r *fakeRenderer) Reload() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reloads++
	return nil
}

func (r *fakeRenderer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stops++
	return nil
}

func (r *fakeRenderer) Release() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.released = true
	return nil
}

func (r *fakeRenderer) lastLoad() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.loads) == 0 {
		return ""
	}
	return r.loads[len(r.loads)-1]
}

func (r *fakeRenderer) isReleased() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.released
}

type fakeFactory struct {
	mu        sync.Mutex
	renderers []*fakeRenderer
	fail      int // number of upcoming allocations that fail
}

func (f *fakeFactory) NewRenderer(_ context.Context, events RendererEvents) (Renderer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail > 0 {
		f.fail--
		return nil, errors.New("gpu process crashed")
	}
	r := &fakeRenderer{events: events}
	f.renderers = append(f.renderers, r)
	return r, nil
}

func (f *fakeFactory) renderer(i int) *fakeRenderer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.renderers[i]
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.renderers)
}

type recordingSurface struct {
	attached []schema.TabID
	detached []schema.TabID
}

func (s *recordingSurface) Attach(id schema.TabID, _ Renderer) error {
	s.attached = append(s.attached, id)
	return nil
}

func (s *recordingSurface) Detach(id schema.TabID, _ Renderer) error {
	s.detached = append(s.detached, id)
	return nil
}

type recordingSink struct {
	mu      sync.Mutex
	tabs    []schema.TabEvent
	states  []schema.LoadStateEvent
	notices []schema.NoticeEvent
}

func (s *recordingSink) OnTabEvent(event schema.TabEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tabs = append(s.tabs, event)
}

func (s *recordingSink) OnLoadState(event schema.LoadStateEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states, event)
}

func (s *recordingSink) OnNotice(event schema.NoticeEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notices = append(s.notices, event)
}

func (s *recordingSink) tabEvents() []schema.TabEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]schema.TabEvent(nil), s.tabs...)
}

func (s *recordingSink) loadStates() []schema.LoadStateEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]schema.LoadStateEvent(nil), s.states...)
}

func (s *recordingSink) noticeEvents() []schema.NoticeEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]schema.NoticeEvent(nil), s.notices...)
}

type fakeDownloads struct {
	mu    sync.Mutex
	blobs []schema.BlobPayload
	urls  []schema.DownloadRequest
	err   error
}

func (d *fakeDownloads) SaveBlob(_ context.Context, payload schema.BlobPayload) (schema.DownloadRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.blobs = append(d.blobs, payload)
	if d.err != nil {
		return schema.DownloadRecord{}, d.err
	}
	return schema.DownloadRecord{Name: "blob.bin", Size: 3}, nil
}

func (d *fakeDownloads) Fetch(_ context.Context, req schema.DownloadRequest) (schema.DownloadRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.urls = append(d.urls, req)
	if d.err != nil {
		return schema.DownloadRecord{}, d.err
	}
	return schema.DownloadRecord{Name: "file.zip", Size: 10}, nil
}
