package core

import (
	"testing"

	"pkt.systems/webtabs/schema"
)

func TestReduceNavigationStart(t *testing.T) {
	state := NavState{Title: "New Tab", URL: "https://a.example"}
	next, fx := ReduceNavigation(state, NavEvent{Kind: NavStart, URL: "https://docs.example.com/x"}, "New Tab")
	if next.URL != "https://docs.example.com/x" || next.Title != "docs.example.com" {
		t.Fatalf("unexpected state: %+v", next)
	}
	if next.State != schema.LoadStateLoading || fx.Publish != schema.LoadStateLoading {
		t.Fatalf("expected loading, got %+v / %+v", next, fx)
	}
	if fx.Record || !fx.Changed {
		t.Fatalf("unexpected effects: %+v", fx)
	}
}

func TestReduceNavigationFinishTitleFallbacks(t *testing.T) {
	cases := []struct {
		name      string
		url       string
		pageTitle string
		want      string
	}{
		{"page-title", "https://a.example/x", "Example", "Example"},
		{"host", "https://a.example/x", "", "a.example"},
		{"raw-url", "not a url", "", "not a url"},
		{"placeholder", "", "", "New Tab"},
	}
	for _, tc := range cases {
		next, fx := ReduceNavigation(NavState{}, NavEvent{Kind: NavFinish, URL: tc.url, Title: tc.pageTitle}, "New Tab")
		if next.Title != tc.want {
			t.Fatalf("case %q: expected title %q, got %q", tc.name, tc.want, next.Title)
		}
		if !fx.Record || fx.RecordTitle != tc.want || fx.RecordURL != tc.url {
			t.Fatalf("case %q: unexpected record effects %+v", tc.name, fx)
		}
		if fx.Publish != schema.LoadStateIdle {
			t.Fatalf("case %q: expected idle publish", tc.name)
		}
	}
}

func TestReduceNavigationErrorLeavesMetadata(t *testing.T) {
	state := NavState{Title: "a.example", URL: "https://a.example", State: schema.LoadStateLoading}
	next, fx := ReduceNavigation(state, NavEvent{Kind: NavError, URL: "https://b.example", Info: "net::ERR_NAME_NOT_RESOLVED"}, "New Tab")
	if next.Title != state.Title || next.URL != state.URL {
		t.Fatalf("error must not mutate title/url: %+v", next)
	}
	if next.State != schema.LoadStateIdle || fx.Publish != schema.LoadStateIdle {
		t.Fatalf("expected idle, got %+v", fx)
	}
	if fx.Record || fx.Changed || fx.LogError != "net::ERR_NAME_NOT_RESOLVED" {
		t.Fatalf("unexpected effects: %+v", fx)
	}
}

func TestReduceNavigationLateTitle(t *testing.T) {
	state := NavState{Title: "a.example", URL: "https://a.example"}
	next, fx := ReduceNavigation(state, NavEvent{Kind: NavTitle, Title: "Example Domain"}, "New Tab")
	if next.Title != "Example Domain" || !fx.Changed || fx.Publish != "" {
		t.Fatalf("unexpected title reduction: %+v %+v", next, fx)
	}
	next, fx = ReduceNavigation(next, NavEvent{Kind: NavTitle}, "New Tab")
	if next.Title != "Example Domain" || fx.Changed {
		t.Fatalf("empty title must be ignored: %+v %+v", next, fx)
	}
}
