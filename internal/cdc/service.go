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
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aaronlmathis/uns-metadata-sync/internal/logging"
	"github.com/aaronlmathis/uns-metadata-sync/internal/repository"
)

// DiffPayload is the canonical per-metric message the CDC worker emits
// downstream, one per flushed debounce entry.
type DiffPayload struct {
	MetricID string         `json:"metric_id"`
	UNSPath  string         `json:"uns_path"`
	CanaryID string         `json:"canary_id"`
	Versions []int64        `json:"versions"`
	Metadata DiffMetadata   `json:"metadata"`
	Changes  map[string]any `json:"changes"`
}

// DiffMetadata carries the accumulator's and debounce buffer's bookkeeping
// alongside the merged diff.
type DiffMetadata struct {
	LatestVersion       int64     `json:"latest_version"`
	PreviousVersion     int64     `json:"previous_version"`
	LatestActor         string    `json:"latest_actor"`
	Actors              []string  `json:"actors"`
	Timestamps          []time.Time `json:"timestamps"`
	EventIDs            []string  `json:"event_ids"`
	DebounceFirstSeen   time.Time `json:"debounce_first_seen"`
	DebounceLastUpdate  time.Time `json:"debounce_last_update"`
	DebounceSpanSeconds float64   `json:"debounce_span_seconds"`
	ChangedAt           string    `json:"changed_at,omitempty"`
}

// DiffSink receives one composed DiffPayload per flushed metric. The
// service runtime wires the Canary writer's enqueue operation in here.
type DiffSink func(DiffPayload) error

// Service is the CDC worker's glue: it drives a ReplicationClient tick by
// tick, looks up each changed row's latest version through the
// repository, merges diffs into the accumulator and debounce buffer, and
// periodically flushes ready entries to a DiffSink. A row's identity
// (uns_path, canary_id) is taken from the change record, not the store.
type Service struct {
	repo          repository.MetadataRepository
	client        *ReplicationClient
	accumulator   *Accumulator
	debounce      *DebounceBuffer
	sink          DiffSink
	flushInterval time.Duration
	idleSleep     time.Duration

	mu        sync.Mutex
	lastFlush time.Time
}

// NewService wires the repository, replication client, accumulator,
// debounce buffer, and downstream sink into one CDC worker.
func NewService(repo repository.MetadataRepository, client *ReplicationClient, debounce *DebounceBuffer, sink DiffSink, flushInterval, idleSleep time.Duration) *Service {
	return &Service{
		repo:          repo,
		client:        client,
		accumulator:   NewAccumulator(),
		debounce:      debounce,
		sink:          sink,
		flushInterval: flushInterval,
		idleSleep:     idleSleep,
	}
}

// Run ticks the replication poll and flush loop until ctx is cancelled,
// respecting a <=100ms shutdown-polling interval as required of the three
// worker threads.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(minDuration(s.idleSleep, 100*time.Millisecond))
	defer ticker.Stop()

	s.mu.Lock()
	s.lastFlush = time.Now()
	s.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Service) tick(ctx context.Context) {
	delay, err := s.client.Poll(ctx, s.handleChange)
	if err != nil {
		logging.Warn("cdc: replication poll error, backing off %s: %v", delay, err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		return
	}

	s.mu.Lock()
	due := time.Since(s.lastFlush) >= s.flushInterval
	if due {
		s.lastFlush = time.Now()
	}
	s.mu.Unlock()

	if due {
		s.flushReady(time.Now())
	}
}

// handleChange implements _handle_change: it resolves the changed row's
// latest MetricVersion through the repository, folds the result into a
// DiffEvent, and records it in both the accumulator and the debounce
// buffer. uns_path and canary_id are read from the record's own new
// columns; they are empty when the record does not carry them.
func (s *Service) handleChange(rec ChangeRecord) error {
	metricID, ok := metricIDFromColumns(rec)
	if !ok {
		return nil // not a metrics-table row we track, or no identity column present
	}

	latest, err := s.repo.LatestMetricVersion(metricID)
	if err != nil {
		return fmt.Errorf("cdc: resolve latest version for metric %s: %w", metricID, err)
	}

	unsPath, _ := rec.Columns["uns_path"].(string)
	canaryID, _ := rec.Columns["canary_id"].(string)

	version := latest.ChangedAt.UnixNano()
	eventID := fmt.Sprintf("%s:%d", metricID, version)

	ev := DiffEvent{
		EventID:   eventID,
		UNSPath:   unsPath,
		Version:   version,
		Actor:     latest.ChangedBy,
		Changes:   latest.Diff,
		Timestamp: latest.ChangedAt,
	}
	s.accumulator.Apply(ev)

	extras := map[string]any{
		"metric_id":  metricID,
		"canary_id":  canaryID,
		"changed_at": latest.ChangedAt,
	}
	s.debounce.Add(unsPath, latest.Diff, version, latest.ChangedBy, eventID, latest.ChangedAt, extras)
	return nil
}

// flushReady implements _flush_ready: it pulls every debounce entry whose
// window has elapsed and, for each, pops the matching accumulator snapshot
// and emits the composed payload.
func (s *Service) flushReady(now time.Time) {
	for _, entry := range s.debounce.FlushDue(now) {
		snapshot, ok := s.accumulator.Pop(entry.MetricKey)
		if !ok {
			continue
		}

		metricID, _ := entry.Extras["metric_id"].(string)
		canaryID, _ := entry.Extras["canary_id"].(string)

		var changedAt string
		if ts, ok := entry.Extras["changed_at"].(time.Time); ok && !ts.IsZero() {
			changedAt = ts.UTC().Format(time.RFC3339Nano)
		}

		payload := DiffPayload{
			MetricID: metricID,
			UNSPath:  entry.MetricKey,
			CanaryID: canaryID,
			Versions: snapshot.Versions(),
			Metadata: DiffMetadata{
				LatestVersion:       snapshot.LatestVersion,
				PreviousVersion:     snapshot.PreviousVersion,
				LatestActor:         snapshot.LatestActor,
				Actors:              snapshot.Actors,
				Timestamps:          snapshot.Timestamps,
				EventIDs:            snapshot.EventIDs,
				DebounceFirstSeen:   entry.FirstSeen,
				DebounceLastUpdate:  entry.LastUpdate,
				DebounceSpanSeconds: entry.LastUpdate.Sub(entry.FirstSeen).Seconds(),
				ChangedAt:           changedAt,
			},
			Changes: snapshot.Changes,
		}

		if err := s.sink(payload); err != nil {
			logging.Error("cdc: diff sink failed for metric %s: %v", payload.MetricID, err)
		}
	}
}

// metricIDFromColumns reads metric_id from the new columns, falling back
// to the old columns (e.g. for a delete, where only OldColumns is set).
func metricIDFromColumns(rec ChangeRecord) (string, bool) {
	if v, ok := rec.Columns["metric_id"]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s, true
		}
	}
	if v, ok := rec.OldColumns["metric_id"]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s, true
		}
	}
	return "", false
}

func minDuration(a, b time.Duration) time.Duration {
	if a <= 0 {
		return b
	}
	if a < b {
		return a
	}
	return b
}
