package core

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"pkt.systems/pslog"
	"pkt.systems/webtabs/internal/persist"
	"pkt.systems/webtabs/schema"
)

// errHistoryNotLoaded reports a change kept in memory only because the
// persisted set could not be read; writing would overwrite it.
var errHistoryNotLoaded = errors.New("history not loaded, change kept in memory")

// HistoryOptions configures a HistoryStore.
type HistoryOptions struct {
	Key    string
	Max    int
	Now    func() time.Time
	Logger pslog.Logger
}

// HistoryStore is a bounded visit log persisted as a string set. Reads take a
// snapshot under a read lock; writes build the next set aside and swap it in,
// so List never observes a partial update.
type HistoryStore struct {
	kv   persist.KV
	key  string
	max  int
	now  func() time.Time
	log  pslog.Logger
	wmu  sync.Mutex
	mu   sync.RWMutex
	list []schema.HistoryEntry // ascending by timestamp, ties in record order
	last int64
	// loaded is set once the persisted set has been read; guarded by wmu.
	loaded bool
}

// NewHistoryStore loads the history persisted in kv. Malformed entries are
// skipped. A failing read starts with an empty log and the read is retried
// before the next write; until it succeeds nothing is written back.
func NewHistoryStore(kv persist.KV, opts HistoryOptions) *HistoryStore {
	if kv == nil {
		kv = persist.NewMemoryStore()
	}
	if opts.Key == "" {
		opts.Key = schema.HistoryKey
	}
	if opts.Max <= 0 {
		opts.Max = schema.DefaultHistoryMax
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = pslog.Ctx(context.Background())
	}
	h := &HistoryStore{
		kv:  kv,
		key: opts.Key,
		max: opts.Max,
		now: opts.Now,
		log: opts.Logger.With("history_key", opts.Key),
	}
	_ = h.Reload()
	return h
}

// Reload replaces the in-memory log with the persisted one.
func (h *HistoryStore) Reload() error {
	h.wmu.Lock()
	defer h.wmu.Unlock()
	entries, err := h.readPersisted()
	if err != nil {
		return err
	}
	h.swap(entries)
	h.loaded = true
	h.log.Debug("history load ok", "entries", len(entries))
	return nil
}

// syncLocked makes sure the persisted set has been read before a write.
// Entries recorded while it was unreadable are merged after the persisted
// ones. It reports whether writing back is safe.
func (h *HistoryStore) syncLocked() bool {
	if h.loaded {
		return true
	}
	persisted, err := h.readPersisted()
	if err != nil {
		return false
	}
	h.mu.RLock()
	merged := append(persisted, h.list...)
	h.mu.RUnlock()
	sortAscending(merged)
	h.swap(dedupeEntries(merged))
	h.loaded = true
	h.log.Info("history load recovered", "entries", len(persisted))
	return true
}

// swap trims entries to the maximum and installs them. entries must be
// ascending.
func (h *HistoryStore) swap(entries []schema.HistoryEntry) {
	if len(entries) > h.max {
		entries = entries[len(entries)-h.max:]
	}
	var last int64
	if len(entries) > 0 {
		last = entries[len(entries)-1].Timestamp
	}
	h.mu.Lock()
	h.list = entries
	if last > h.last {
		h.last = last
	}
	h.mu.Unlock()
}

// readPersisted decodes the stored set, ascending. Ties are ordered by url
// then title since backends do not keep insertion order.
func (h *HistoryStore) readPersisted() ([]schema.HistoryEntry, error) {
	raw, err := h.kv.GetStringSet(h.key)
	if err != nil {
		h.log.Warn("history load failed", "err", err)
		return nil, err
	}
	entries := make([]schema.HistoryEntry, 0, len(raw))
	skipped := 0
	for _, value := range raw {
		entry, err := DecodeHistoryEntry(value)
		if err != nil {
			skipped++
			continue
		}
		entries = append(entries, entry)
	}
	if skipped > 0 {
		h.log.Warn("history entries skipped", "count", skipped)
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Timestamp != b.Timestamp {
			return a.Timestamp < b.Timestamp
		}
		if a.URL != b.URL {
			return a.URL < b.URL
		}
		return a.Title < b.Title
	})
	return dedupeEntries(entries), nil
}

// Record appends a visit stamped with the current time. Timestamps never run
// backwards within a store.
func (h *HistoryStore) Record(title, url string) (schema.HistoryEntry, error) {
	return h.record(title, url, 0, true)
}

// RecordAt appends a visit with an explicit timestamp in milliseconds.
func (h *HistoryStore) RecordAt(title, url string, ts int64) (schema.HistoryEntry, error) {
	return h.record(title, url, ts, false)
}

func (h *HistoryStore) record(title, url string, ts int64, stamp bool) (schema.HistoryEntry, error) {
	h.wmu.Lock()
	defer h.wmu.Unlock()
	durable := h.syncLocked()

	h.mu.RLock()
	current := h.list
	last := h.last
	h.mu.RUnlock()

	if stamp {
		ts = h.now().UnixMilli()
		if ts < last {
			ts = last
		}
	}
	entry := schema.HistoryEntry{Timestamp: ts, Title: title, URL: url}
	for _, existing := range current {
		if existing == entry {
			return entry, nil
		}
	}

	next := make([]schema.HistoryEntry, 0, len(current)+1)
	next = append(next, current...)
	next = append(next, entry)
	if len(next) > h.max {
		sortAscending(next)
		next = next[len(next)-h.max:]
	} else if len(current) > 0 && ts < current[len(current)-1].Timestamp {
		sortAscending(next)
	}
	if ts > last {
		last = ts
	}
	err := errHistoryNotLoaded
	if durable {
		err = h.persist(next)
	}

	h.mu.Lock()
	h.list = next
	h.last = last
	h.mu.Unlock()
	if err != nil {
		return entry, err
	}
	h.log.Trace("history recorded", "url", url, "entries", len(next))
	return entry, nil
}

// List returns the entries newest first.
func (h *HistoryStore) List() []schema.HistoryEntry {
	h.mu.RLock()
	out := make([]schema.HistoryEntry, len(h.list))
	for i, entry := range h.list {
		out[len(h.list)-1-i] = entry
	}
	h.mu.RUnlock()
	return out
}

// Len returns the number of entries.
func (h *HistoryStore) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.list)
}

// Clear removes every entry.
func (h *HistoryStore) Clear() error {
	h.wmu.Lock()
	defer h.wmu.Unlock()
	err := h.persist(nil)
	h.mu.Lock()
	h.list = nil
	h.mu.Unlock()
	if err == nil {
		h.loaded = true
		h.log.Info("history cleared")
	}
	return err
}

// Delete removes the entries matching timestamp and url and reports whether
// any were found.
func (h *HistoryStore) Delete(ts int64, url string) (bool, error) {
	h.wmu.Lock()
	defer h.wmu.Unlock()
	durable := h.syncLocked()
	h.mu.RLock()
	current := h.list
	h.mu.RUnlock()
	next := make([]schema.HistoryEntry, 0, len(current))
	for _, entry := range current {
		if entry.Timestamp == ts && entry.URL == url {
			continue
		}
		next = append(next, entry)
	}
	if len(next) == len(current) {
		return false, nil
	}
	err := errHistoryNotLoaded
	if durable {
		err = h.persist(next)
	}
	h.mu.Lock()
	h.list = next
	h.mu.Unlock()
	return true, err
}

// persist writes the full set. On failure the caller keeps the in-memory
// state, which stays authoritative for the session.
func (h *HistoryStore) persist(entries []schema.HistoryEntry) error {
	encoded := make([]string, 0, len(entries))
	for _, entry := range entries {
		encoded = append(encoded, EncodeHistoryEntry(entry))
	}
	if err := h.kv.PutStringSet(h.key, encoded); err != nil {
		h.log.Warn("history persist failed", "entries", len(entries), "err", err)
		return err
	}
	return nil
}

func sortAscending(entries []schema.HistoryEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp < entries[j].Timestamp
	})
}

func dedupeEntries(entries []schema.HistoryEntry) []schema.HistoryEntry {
	seen := make(map[schema.HistoryEntry]struct{}, len(entries))
	out := entries[:0]
	for _, entry := range entries {
		if _, ok := seen[entry]; ok {
			continue
		}
		seen[entry] = struct{}{}
		out = append(out, entry)
	}
	return out
}
