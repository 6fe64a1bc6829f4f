package webtabs

import (
	"pkt.systems/webtabs/core"
	"pkt.systems/webtabs/internal/metrics"
	"pkt.systems/webtabs/schema"
)

type eventFanout struct {
	sinks []core.EventSink
}

func (f eventFanout) OnTabEvent(event schema.TabEvent) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnTabEvent(event)
	}
}

func (f eventFanout) OnLoadState(event schema.LoadStateEvent) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnLoadState(event)
	}
}

func (f eventFanout) OnNotice(event schema.NoticeEvent) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnNotice(event)
	}
}

// historyGauge refreshes the history size whenever a load settles.
type historyGauge struct {
	metrics *metrics.Metrics
	history *core.HistoryStore
}

func (historyGauge) OnTabEvent(schema.TabEvent) {}

func (g historyGauge) OnLoadState(event schema.LoadStateEvent) {
	if g.metrics == nil || g.history == nil || event.State != schema.LoadStateIdle {
		return
	}
	g.metrics.SetHistoryEntries(g.history.Len())
}

func (historyGauge) OnNotice(schema.NoticeEvent) {}
