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

// Package runtime is the service supervisor: it builds the ingestor, CDC
// listener, and Canary writer pipelines from configuration, starts them as
// three independently-joined workers, wires the CDC worker's diffs into
// the writer's queue, and stops all three with a bounded timeout.
package runtime

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/lib/pq"

	"github.com/aaronlmathis/uns-metadata-sync/internal/aliascache"
	"github.com/aaronlmathis/uns-metadata-sync/internal/canary"
	"github.com/aaronlmathis/uns-metadata-sync/internal/cdc"
	"github.com/aaronlmathis/uns-metadata-sync/internal/config"
	"github.com/aaronlmathis/uns-metadata-sync/internal/logging"
	"github.com/aaronlmathis/uns-metadata-sync/internal/repository"
	"github.com/aaronlmathis/uns-metadata-sync/internal/sparkplug"
)

// Runtime owns the three pipelines and everything they share: the
// repository connection, the alias cache, and (when CDC is enabled) the
// debounce/accumulator glue wiring diffs into the Canary writer.
type Runtime struct {
	cfg *config.Settings

	db      *sql.DB
	replDB  *sql.DB
	repo    repository.MetadataRepository
	aliases *aliascache.Cache

	ingestor   *sparkplug.Ingestor
	cdcService *cdc.Service
	writer     *canary.Writer

	checkpoints cdc.CheckpointStore
	debounce    *cdc.DebounceBuffer

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New validates configuration, opens the store connection(s), and wires
// every enabled pipeline. It returns an error for any of the spec's fatal
// startup conditions: no MQTT broker configured, CDC requested against a
// non-local store, or an unsupported replication plugin.
func New(cfg *config.Settings) (*Runtime, error) {
	if cfg.MQTT.Broker == "" {
		return nil, fmt.Errorf("runtime: no MQTT broker configured")
	}
	if cfg.CDC.Enabled && cfg.Store.DBMode != "local" {
		return nil, fmt.Errorf("runtime: CDC requested but store db_mode is %q, not local", cfg.Store.DBMode)
	}
	if cfg.CDC.Enabled && cfg.CDC.ReplicationPlugin != "wal2json" {
		return nil, fmt.Errorf("runtime: unsupported replication plugin %q (only wal2json is implemented)", cfg.CDC.ReplicationPlugin)
	}

	db, err := sql.Open("postgres", storeDSN(cfg.Store))
	if err != nil {
		return nil, fmt.Errorf("runtime: open store connection: %w", err)
	}

	repo := repository.New(db)

	aliases, err := aliascache.Load(cfg.AliasCachePath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("runtime: load alias cache: %w", err)
	}

	rt := &Runtime{
		cfg:      cfg,
		db:       db,
		repo:     repo,
		aliases:  aliases,
		ingestor: sparkplug.New(cfg.MQTT, cfg.JSONL, repo, aliases),
	}

	if cfg.Canary.Enabled {
		rt.writer = canary.New(cfg.Canary, rt.deadLetter)
	}

	if cfg.CDC.Enabled {
		if err := rt.buildCDC(); err != nil {
			db.Close()
			return nil, err
		}
	}

	return rt, nil
}

func (rt *Runtime) buildCDC() error {
	cfg := rt.cfg.CDC

	replDB, err := sql.Open("postgres", replicationDSN(cfg))
	if err != nil {
		return fmt.Errorf("runtime: open replication connection: %w", err)
	}
	rt.replDB = replDB

	checkpoints, err := newCheckpointStore(cfg)
	if err != nil {
		return fmt.Errorf("runtime: build checkpoint store: %w", err)
	}
	rt.checkpoints = checkpoints

	factory := cdc.NewPostgresStreamFactory(replDB, cfg.Slot, cfg.MaxBatchMessages)
	backoff := cdc.NewBackoff(500*time.Millisecond, 2.0, 30*time.Second, true, 0)
	client := cdc.NewReplicationClient(cfg.Slot, factory.Factory(), cdc.WAL2JSONDecoder{}, checkpoints, cfg.MaxBatchMessages, backoff)

	rt.debounce = cdc.NewDebounceBuffer(time.Duration(cfg.WindowSeconds)*time.Second, cfg.BufferCap)

	rt.cdcService = cdc.NewService(rt.repo, client, rt.debounce, rt.diffSink,
		time.Duration(cfg.FlushIntervalSeconds)*time.Second,
		time.Duration(cfg.IdleSleepSeconds)*time.Second)
	return nil
}

func newCheckpointStore(cfg config.CDCConfig) (cdc.CheckpointStore, error) {
	switch cfg.CheckpointBackend {
	case "memory":
		return cdc.NewMemoryCheckpointStore(), nil
	default:
		return cdc.NewFileCheckpointStore(cfg.ResumePath, cfg.ResumeFsync)
	}
}

// diffSink converts one flushed cdc.DiffPayload into a canary.Diff — one
// DiffEntry per changed property — and enqueues it on the writer. A full
// queue is logged and dropped, matching the ingest path's own
// drop-with-warning policy for capacity errors.
func (rt *Runtime) diffSink(payload cdc.DiffPayload) error {
	if rt.writer == nil {
		return nil
	}

	ts := payload.Metadata.DebounceLastUpdate
	if ts.IsZero() {
		ts = time.Now()
	}

	entries := make([]canary.DiffEntry, 0, len(payload.Changes))
	for key, value := range payload.Changes {
		entries = append(entries, canary.DiffEntry{Key: key, Timestamp: ts, Value: value})
	}
	if len(entries) == 0 {
		return nil
	}

	if err := rt.writer.Enqueue(canary.Diff{CanaryID: payload.CanaryID, Entries: entries}); err != nil {
		logging.Warn("runtime: dropping diff for metric %s: %v", payload.MetricID, err)
	}
	return nil
}

func (rt *Runtime) deadLetter(d canary.Diff, err error) {
	logging.Error("runtime: dead-lettered diff for canary_id %s: %v", d.CanaryID, err)
}

// Start launches every enabled pipeline. The ingestor and writer run their
// own background goroutines internally; the CDC service's Run loop is
// tracked here so Stop can join it with a timeout.
func (rt *Runtime) Start(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	rt.cancel = cancel

	if err := rt.ingestor.Start(); err != nil {
		cancel()
		return fmt.Errorf("runtime: start ingestor: %w", err)
	}

	if rt.writer != nil {
		rt.writer.Start(ctx)
	}

	if rt.cdcService != nil {
		rt.wg.Add(1)
		go func() {
			defer rt.wg.Done()
			rt.cdcService.Run(ctx)
		}()
	}

	return nil
}

// Stop cancels all pipelines, waits up to timeout for the CDC worker to
// finish its in-flight tick, stops the writer (which revokes its session),
// disconnects the ingestor, and persists the alias cache. Failures during
// shutdown are logged, not returned, matching the spec's "session
// revocation runs on stop but its failures are logged, not raised".
func (rt *Runtime) Stop(timeout time.Duration) {
	if rt.cancel != nil {
		rt.cancel()
	}

	done := make(chan struct{})
	go func() {
		rt.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		logging.Warn("runtime: CDC worker did not stop within %s", timeout)
	}

	if rt.writer != nil {
		rt.writer.Stop(timeout)
	}

	rt.ingestor.Stop()
	if err := rt.aliases.Save(rt.cfg.AliasCachePath); err != nil {
		logging.Error("runtime: persist alias cache: %v", err)
	}

	if rt.replDB != nil {
		rt.replDB.Close()
	}
	rt.db.Close()
}

func storeDSN(cfg config.StoreConfig) string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=disable search_path=%s",
		cfg.Host, cfg.Port, cfg.DB, cfg.User, cfg.Password, cfg.Schema)
}

func replicationDSN(cfg config.CDCConfig) string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		cfg.ReplicationHost, cfg.ReplicationPort, cfg.ReplicationDB, cfg.ReplicationUser, cfg.ReplicationPassword, cfg.ReplicationSSLMode)
}
