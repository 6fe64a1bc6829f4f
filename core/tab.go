package core

import "pkt.systems/webtabs/schema"

// tab tracks the state of a single browsing session.
type tab struct {
	ID       schema.TabID
	Title    string
	URL      string
	State    schema.LoadState
	Degraded bool
	renderer Renderer
}

// Snapshot returns a transport-friendly view of the tab.
func (t *tab) Snapshot(index int, active bool) schema.TabSnapshot {
	snap := schema.TabSnapshot{
		ID:       t.ID,
		Index:    index,
		Title:    t.Title,
		URL:      t.URL,
		State:    t.State,
		Active:   active,
		Degraded: t.Degraded,
	}
	if d, ok := t.renderer.(*degradedRenderer); ok {
		snap.ErrorPage = d.Page()
	}
	return snap
}

func (t *tab) navState() NavState {
	return NavState{Title: t.Title, URL: t.URL, State: t.State}
}

func (t *tab) applyNavState(s NavState) {
	t.Title = s.Title
	t.URL = s.URL
	t.State = s.State
}
