package core

import "pkt.systems/webtabs/schema"

// NavKind identifies a renderer lifecycle callback.
type NavKind int

const (
	// NavStart is a navigation that began.
	NavStart NavKind = iota + 1
	// NavFinish is a navigation that completed.
	NavFinish
	// NavError is a navigation that failed.
	NavError
	// NavTitle is a document title that arrived after completion.
	NavTitle
)

// NavEvent is one renderer callback.
type NavEvent struct {
	Kind  NavKind
	URL   string
	Title string
	Info  string
}

// NavState is the tab metadata the projection reads and writes.
type NavState struct {
	Title string
	URL   string
	State schema.LoadState
}

// NavEffects lists what the caller must do after a reduction.
type NavEffects struct {
	// Changed is set when Title or URL differ from the input state.
	Changed bool
	// Publish is the load state to announce, empty for none.
	Publish schema.LoadState
	// Record is set when the visit belongs in history.
	Record      bool
	RecordTitle string
	RecordURL   string
	// LogError carries the renderer error text for the logger.
	LogError string
}

// ReduceNavigation projects a renderer callback onto tab metadata. It has no
// side effects; the returned effects tell the caller what to publish and
// record.
func ReduceNavigation(state NavState, ev NavEvent, defaultTitle string) (NavState, NavEffects) {
	next := state
	var fx NavEffects
	switch ev.Kind {
	case NavStart:
		next.URL = ev.URL
		next.Title = schema.DeriveLabel(ev.URL)
		next.State = schema.LoadStateLoading
		fx.Publish = schema.LoadStateLoading
	case NavFinish:
		next.URL = ev.URL
		next.Title = finishTitle(ev.Title, ev.URL, defaultTitle)
		next.State = schema.LoadStateIdle
		fx.Publish = schema.LoadStateIdle
		fx.Record = true
		fx.RecordTitle = next.Title
		fx.RecordURL = ev.URL
	case NavError:
		next.State = schema.LoadStateIdle
		fx.Publish = schema.LoadStateIdle
		fx.LogError = ev.Info
		if fx.LogError == "" {
			fx.LogError = "navigation failed"
		}
	case NavTitle:
		if ev.Title != "" {
			next.Title = ev.Title
		}
	}
	fx.Changed = next.Title != state.Title || next.URL != state.URL
	return next, fx
}

func finishTitle(pageTitle, url, defaultTitle string) string {
	if pageTitle != "" {
		return pageTitle
	}
	if label := schema.DeriveLabel(url); label != "" {
		return label
	}
	if defaultTitle != "" {
		return defaultTitle
	}
	return schema.DefaultTabTitle
}
