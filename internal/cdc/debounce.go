/*
SPDX-License-Identifier: GPL-3.0-or-later

Copyright (C) 2025 Aaron Mathis aaron.mathis@gmail.com

This file is part of GoSight.

GoSight is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

GoSight is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with GoSight. If not, see https://www.gnu.org/licenses/.
*/

package cdc

import (
	"sync"
	"time"

	"github.com/aaronlmathis/uns-metadata-sync/internal/logging"
)

// DebounceEntry is one metric's in-flight debounce window: a merged
// payload plus the bookkeeping needed to decide when it is due and what it
// carries once flushed.
type DebounceEntry struct {
	MetricKey  string
	FirstSeen  time.Time
	LastUpdate time.Time
	Payload    map[string]any
	Version    int64
	Actor      string
	EventIDs   []string
	Extras     map[string]any

	eventIDSet map[string]bool
}

// DebounceBuffer coalesces repeated changes to the same metric_key within a
// rolling window, evicting the stalest entry when it would otherwise grow
// past max_entries. The buffer is owned by a single CDC worker goroutine;
// it is not safe to share Add/FlushDue calls across goroutines without the
// caller's own synchronization, but the mutex guards against the rare case
// where a forced flush races a concurrent Add.
type DebounceBuffer struct {
	mu        sync.Mutex
	window    time.Duration
	maxEntries int
	order     []string
	entries   map[string]*DebounceEntry
	dropped   int
}

// NewDebounceBuffer builds an empty buffer with the given coalescing
// window and entry cap.
func NewDebounceBuffer(window time.Duration, maxEntries int) *DebounceBuffer {
	return &DebounceBuffer{
		window:     window,
		maxEntries: maxEntries,
		entries:    make(map[string]*DebounceEntry),
	}
}

// Add creates or merges an entry for metricKey: per-key last-write-wins
// into payload, version set to the max seen, actor overwritten when
// non-empty, eventID added to a dedup set, last_update advanced to the max
// timestamp, and extras merged key-by-key.
func (b *DebounceBuffer) Add(metricKey string, diff map[string]any, version int64, actor, eventID string, timestamp time.Time, extras map[string]any) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.entries[metricKey]
	if !ok {
		if b.maxEntries > 0 && len(b.entries) >= b.maxEntries {
			b.evictSmallestLocked()
		}
		entry = &DebounceEntry{
			MetricKey:  metricKey,
			FirstSeen:  timestamp,
			LastUpdate: timestamp,
			Payload:    make(map[string]any),
			Extras:     make(map[string]any),
			eventIDSet: make(map[string]bool),
		}
		b.entries[metricKey] = entry
		b.order = append(b.order, metricKey)
	}

	for k, v := range diff {
		entry.Payload[k] = v
	}
	if version > entry.Version {
		entry.Version = version
	}
	if actor != "" {
		entry.Actor = actor
	}
	if eventID != "" && !entry.eventIDSet[eventID] {
		entry.eventIDSet[eventID] = true
		entry.EventIDs = append(entry.EventIDs, eventID)
	}
	if timestamp.After(entry.LastUpdate) {
		entry.LastUpdate = timestamp
	}
	for k, v := range extras {
		entry.Extras[k] = v
	}
}

// evictSmallestLocked drops the entry with the smallest LastUpdate,
// incrementing the dropped counter and logging at warning level. Caller
// must hold b.mu.
func (b *DebounceBuffer) evictSmallestLocked() {
	if len(b.order) == 0 {
		return
	}
	victimIdx := 0
	victimKey := b.order[0]
	for i, key := range b.order {
		if b.entries[key].LastUpdate.Before(b.entries[victimKey].LastUpdate) {
			victimKey = key
			victimIdx = i
		}
	}
	delete(b.entries, victimKey)
	b.order = append(b.order[:victimIdx], b.order[victimIdx+1:]...)
	b.dropped++
	logging.Warn("cdc: debounce buffer full, evicted metric_key %s (dropped=%d)", victimKey, b.dropped)
}

// FlushDue returns, in original insertion order, every entry whose
// LastUpdate is at least window in the past as of now, removing them from
// the buffer.
func (b *DebounceBuffer) FlushDue(now time.Time) []DebounceEntry {
	b.mu.Lock()
	defer b.mu.Unlock()

	var due []DebounceEntry
	var remaining []string
	for _, key := range b.order {
		entry := b.entries[key]
		if now.Sub(entry.LastUpdate) >= b.window {
			due = append(due, *entry)
			delete(b.entries, key)
		} else {
			remaining = append(remaining, key)
		}
	}
	b.order = remaining
	return due
}

// Dropped reports how many entries have been evicted for capacity since
// construction.
func (b *DebounceBuffer) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Len reports the number of entries currently buffered.
func (b *DebounceBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}
