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
	"errors"
	"time"

	"github.com/aaronlmathis/uns-metadata-sync/internal/logging"
)

// RawMessage is one undecoded replication message at a known stream
// position.
type RawMessage struct {
	Data     []byte
	Position int64
}

// ErrStreamExhausted signals MessageStream.Next has no more messages ready
// right now; it is not a failure.
var ErrStreamExhausted = errors.New("cdc: stream exhausted")

// MessageStream yields raw replication messages in position order.
type MessageStream interface {
	Next(ctx context.Context) (RawMessage, error)
	Close() error
}

// StreamFactory opens a MessageStream that resumes after startPosition (0
// means "from the slot's beginning").
type StreamFactory func(ctx context.Context, startPosition int64) (MessageStream, error)

// Handler processes one decoded ChangeRecord. A handler error is logged
// and does not stop the poll; it is the caller's responsibility to decide
// whether a given relation's errors should halt ingestion.
type Handler func(rec ChangeRecord) error

// ReplicationClient drives one logical-replication slot: it opens a
// stream through the factory, decodes and dispatches messages, and
// persists the checkpoint every maxBatchMessages records or at stream
// exhaustion.
type ReplicationClient struct {
	slot             string
	streamFactory    StreamFactory
	decoder          ChangeDecoder
	checkpoints      CheckpointStore
	maxBatchMessages int
	backoff          *Backoff
}

// NewReplicationClient wires the slot name, stream factory, decoder,
// checkpoint store, and per-poll batch size into one client.
func NewReplicationClient(slot string, factory StreamFactory, decoder ChangeDecoder, checkpoints CheckpointStore, maxBatchMessages int, backoff *Backoff) *ReplicationClient {
	if maxBatchMessages <= 0 {
		maxBatchMessages = 1
	}
	return &ReplicationClient{
		slot:             slot,
		streamFactory:    factory,
		decoder:          decoder,
		checkpoints:      checkpoints,
		maxBatchMessages: maxBatchMessages,
		backoff:          backoff,
	}
}

// Poll opens the stream at the last checkpointed position, decodes and
// dispatches up to maxBatchMessages records to handle, and persists the new
// position. On success it resets the backoff and returns (0, nil). On any
// stream exception it computes the next backoff delay and returns it
// alongside the error for the caller to sleep on.
func (c *ReplicationClient) Poll(ctx context.Context, handle Handler) (time.Duration, error) {
	startPosition, ok, err := c.checkpoints.Load(c.slot)
	if err != nil {
		return 0, err
	}
	if !ok {
		startPosition = 0
	}

	stream, err := c.streamFactory(ctx, startPosition)
	if err != nil {
		return c.nextDelay(err)
	}
	defer stream.Close()

	lastPosition := startPosition
	processed := 0
	for processed < c.maxBatchMessages {
		msg, err := stream.Next(ctx)
		if errors.Is(err, ErrStreamExhausted) {
			break
		}
		if err != nil {
			if saveErr := c.checkpoints.Save(c.slot, lastPosition); saveErr != nil {
				logging.Warn("cdc: checkpoint save failed for slot %s: %v", c.slot, saveErr)
			}
			return c.nextDelay(err)
		}

		records, derr := c.decoder.Decode(msg.Data, msg.Position)
		if derr != nil {
			logging.Warn("cdc: skipping malformed message at position %d on slot %s: %v", msg.Position, c.slot, derr)
			lastPosition = msg.Position
			processed++
			continue
		}
		for _, rec := range records {
			if herr := handle(rec); herr != nil {
				logging.Error("cdc: handler error for relation %s: %v", rec.Relation, herr)
			}
		}
		lastPosition = msg.Position
		processed++
	}

	if err := c.checkpoints.Save(c.slot, lastPosition); err != nil {
		return 0, err
	}
	c.backoff.Reset()
	return 0, nil
}

func (c *ReplicationClient) nextDelay(cause error) (time.Duration, error) {
	delay, berr := c.backoff.Next()
	if berr != nil {
		return 0, errors.Join(cause, berr)
	}
	return delay, cause
}
