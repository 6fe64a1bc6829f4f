package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"pkt.systems/webtabs/schema"
)

func TestTabGaugeFollowsLifecycle(t *testing.T) {
	m := New()
	m.OnTabEvent(schema.TabEvent{Type: schema.TabEventCreated})
	m.OnTabEvent(schema.TabEvent{Type: schema.TabEventCreated})
	m.OnTabEvent(schema.TabEvent{Type: schema.TabEventActivated})
	m.OnTabEvent(schema.TabEvent{Type: schema.TabEventClosed})

	if got := testutil.ToFloat64(m.TabsOpen); got != 1 {
		t.Fatalf("expected 1 open tab, got %v", got)
	}
	if got := testutil.ToFloat64(m.TabEvents.WithLabelValues("created")); got != 2 {
		t.Fatalf("expected 2 created events, got %v", got)
	}
}

func TestLoadAndNoticeCounters(t *testing.T) {
	m := New()
	m.OnLoadState(schema.LoadStateEvent{State: schema.LoadStateLoading})
	m.OnLoadState(schema.LoadStateEvent{State: schema.LoadStateIdle})
	m.OnLoadState(schema.LoadStateEvent{State: schema.LoadStateIdle})
	m.OnNotice(schema.NoticeEvent{Level: schema.NoticeError})

	if got := testutil.ToFloat64(m.LoadStates.WithLabelValues("idle")); got != 2 {
		t.Fatalf("expected 2 idle transitions, got %v", got)
	}
	if got := testutil.ToFloat64(m.Notices.WithLabelValues("error")); got != 1 {
		t.Fatalf("expected 1 error notice, got %v", got)
	}
}

func TestDownloadObservations(t *testing.T) {
	m := New()
	m.ObserveDownload("url", schema.DownloadRecord{Size: 10}, nil)
	m.ObserveDownload("blob", schema.DownloadRecord{Size: 5}, nil)
	m.ObserveDownload("url", schema.DownloadRecord{}, errors.New("boom"))

	if got := testutil.ToFloat64(m.DownloadBytes); got != 15 {
		t.Fatalf("expected 15 bytes, got %v", got)
	}
	if got := testutil.ToFloat64(m.Downloads.WithLabelValues("url", "error")); got != 1 {
		t.Fatalf("expected 1 failed url download, got %v", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.SetHistoryEntries(7)
	m.ObserveRequest("GET", "/api/tabs", 200, 5*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	text := string(body)
	for _, want := range []string{
		"webtabs_history_entries 7",
		`webtabs_http_requests_total{method="GET",path="/api/tabs",status="200"} 1`,
		"go_goroutines",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.OnTabEvent(schema.TabEvent{Type: schema.TabEventCreated})
	m.OnLoadState(schema.LoadStateEvent{})
	m.OnNotice(schema.NoticeEvent{})
	m.ObserveDownload("url", schema.DownloadRecord{}, nil)
	m.SetHistoryEntries(1)
	m.ObserveRequest("GET", "/", 200, time.Second)
}
