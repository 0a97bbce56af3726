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
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
)

// PostgresStreamFactory opens wal2json changes from a logical replication
// slot via SQL-level consumption (pg_logical_slot_get_changes) rather than
// the binary streaming replication protocol. The slot's own
// confirmed_flush_lsn advances as changes are consumed, so startPosition is
// accepted for StreamFactory symmetry but the server is the source of
// truth for where to resume; this keeps the dependency surface to
// database/sql + lib/pq, already used by internal/repository, instead of
// adding a second Postgres driver for the streaming protocol.
type PostgresStreamFactory struct {
	db          *sql.DB
	slot        string
	maxMessages int
}

// NewPostgresStreamFactory builds a factory reading up to maxMessages
// wal2json changes per Open call from slot.
func NewPostgresStreamFactory(db *sql.DB, slot string, maxMessages int) *PostgresStreamFactory {
	return &PostgresStreamFactory{db: db, slot: slot, maxMessages: maxMessages}
}

// Factory adapts this type to the StreamFactory function signature
// ReplicationClient expects.
func (f *PostgresStreamFactory) Factory() StreamFactory {
	return f.Open
}

// Open queries the slot for its next batch of changes and returns them as
// a MessageStream that serves one RawMessage per Next call.
func (f *PostgresStreamFactory) Open(ctx context.Context, startPosition int64) (MessageStream, error) {
	rows, err := f.db.QueryContext(ctx,
		`SELECT lsn, data FROM pg_logical_slot_get_changes($1, NULL, $2)`,
		f.slot, f.maxMessages)
	if err != nil {
		return nil, fmt.Errorf("cdc: pg_logical_slot_get_changes: %w", err)
	}
	defer rows.Close()

	var messages []RawMessage
	for rows.Next() {
		var lsnStr, data string
		if err := rows.Scan(&lsnStr, &data); err != nil {
			return nil, fmt.Errorf("cdc: scan replication row: %w", err)
		}
		pos, err := parseLSN(lsnStr)
		if err != nil {
			return nil, err
		}
		messages = append(messages, RawMessage{Data: []byte(data), Position: pos})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("cdc: iterate replication rows: %w", err)
	}

	return &sqlMessageStream{messages: messages}, nil
}

// sqlMessageStream serves a pre-fetched batch of RawMessages one at a time.
type sqlMessageStream struct {
	messages []RawMessage
	idx      int
}

func (s *sqlMessageStream) Next(ctx context.Context) (RawMessage, error) {
	if s.idx >= len(s.messages) {
		return RawMessage{}, ErrStreamExhausted
	}
	m := s.messages[s.idx]
	s.idx++
	return m, nil
}

func (s *sqlMessageStream) Close() error { return nil }

// parseLSN converts a Postgres "XXXXXXXX/XXXXXXXX" LSN into a monotonic
// int64 checkpoint position.
func parseLSN(s string) (int64, error) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("cdc: malformed LSN %q", s)
	}
	hi, err := strconv.ParseUint(parts[0], 16, 32)
	if err != nil {
		return 0, fmt.Errorf("cdc: malformed LSN %q: %w", s, err)
	}
	lo, err := strconv.ParseUint(parts[1], 16, 32)
	if err != nil {
		return 0, fmt.Errorf("cdc: malformed LSN %q: %w", s, err)
	}
	return int64(hi)<<32 | int64(lo), nil
}
