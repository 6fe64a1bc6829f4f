package core

import "pkt.systems/webtabs/schema"

// EventSink receives tab, load-state and notice events from the browser.
// Calls happen on the browser loop and must not block.
type EventSink interface {
	OnTabEvent(event schema.TabEvent)
	OnLoadState(event schema.LoadStateEvent)
	OnNotice(event schema.NoticeEvent)
}

type nopSink struct{}

func (nopSink) OnTabEvent(schema.TabEvent) {}
func (nopSink) OnLoadState(schema.LoadStateEvent) {}
func (nopSink) OnNotice(schema.NoticeEvent) {}
