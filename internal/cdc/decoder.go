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
	"errors"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/aaronlmathis/uns-metadata-sync/internal/logging"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// ChangeKind distinguishes the row-level operation a ChangeRecord reports.
type ChangeKind string

const (
	ChangeInsert ChangeKind = "insert"
	ChangeUpdate ChangeKind = "update"
	ChangeDelete ChangeKind = "delete"
)

// ChangeRecord is one decoded row-level change, independent of the wire
// format it arrived in.
type ChangeRecord struct {
	Kind       ChangeKind
	Relation   string
	Columns    map[string]any
	OldColumns map[string]any
	Position   int64
	CommitTS   time.Time
}

// ChangeDecoder turns one raw stream message into zero or more
// ChangeRecords. Implementations must skip malformed entries individually
// rather than failing the whole message.
type ChangeDecoder interface {
	Decode(raw []byte, position int64) ([]ChangeRecord, error)
}

// wal2jsonColumn mirrors the structured-column encoding of a wal2json
// change entry.
type wal2jsonColumn struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

type wal2jsonChange struct {
	Kind   string `json:"kind"`
	Schema string `json:"schema"`
	Table  string `json:"table"`

	ColumnNames  []string `json:"columnnames"`
	ColumnValues []any    `json:"columnvalues"`
	Columns      []wal2jsonColumn `json:"columns"`

	OldKeys struct {
		KeyNames  []string `json:"keynames"`
		KeyValues []any    `json:"keyvalues"`
	} `json:"oldkeys"`
	Identity []wal2jsonColumn `json:"identity"`

	Timestamp string `json:"timestamp"`
}

type wal2jsonEnvelope struct {
	Change []wal2jsonChange `json:"change"`
}

// WAL2JSONDecoder decodes the wal2json logical-decoding output plugin's
// JSON format: either {"change":[...]}, a bare list of such entries, or a
// single row object, accepting both the structured {name,value} column
// encoding and the parallel columnnames/columnvalues arrays.
type WAL2JSONDecoder struct{}

func (WAL2JSONDecoder) Decode(raw []byte, position int64) ([]ChangeRecord, error) {
	var envelope wal2jsonEnvelope
	if err := jsonAPI.Unmarshal(raw, &envelope); err == nil && len(envelope.Change) > 0 {
		return decodeChanges(envelope.Change, position), nil
	}

	var list []wal2jsonChange
	if err := jsonAPI.Unmarshal(raw, &list); err == nil && len(list) > 0 {
		return decodeChanges(list, position), nil
	}

	var single wal2jsonChange
	if err := jsonAPI.Unmarshal(raw, &single); err == nil && (single.Kind != "" || len(single.Columns) > 0 || len(single.ColumnNames) > 0) {
		return decodeChanges([]wal2jsonChange{single}, position), nil
	}

	return nil, errors.New("cdc: message did not match any known wal2json shape")
}

func decodeChanges(changes []wal2jsonChange, position int64) []ChangeRecord {
	var out []ChangeRecord
	for _, c := range changes {
		rec, ok := decodeOneChange(c, position)
		if !ok {
			continue
		}
		out = append(out, rec)
	}
	return out
}

func decodeOneChange(c wal2jsonChange, position int64) (ChangeRecord, bool) {
	kind, ok := parseKind(c.Kind)
	if !ok {
		logging.Warn("cdc: skipping change with unrecognized kind %q", c.Kind)
		return ChangeRecord{}, false
	}

	columns := mergeColumns(c.Columns, c.ColumnNames, c.ColumnValues)
	oldColumns := mergeColumns(c.Identity, c.OldKeys.KeyNames, c.OldKeys.KeyValues)

	if len(columns) == 0 && len(oldColumns) == 0 {
		logging.Warn("cdc: skipping change with no column data")
		return ChangeRecord{}, false
	}

	var ts time.Time
	if c.Timestamp != "" {
		if parsed, err := time.Parse("2006-01-02 15:04:05.999999-07", c.Timestamp); err == nil {
			ts = parsed
		} else if parsed, err := time.Parse(time.RFC3339Nano, c.Timestamp); err == nil {
			ts = parsed
		}
	}

	return ChangeRecord{
		Kind:       kind,
		Relation:   joinRelation(c.Schema, c.Table),
		Columns:    columns,
		OldColumns: oldColumns,
		Position:   position,
		CommitTS:   ts,
	}, true
}

func parseKind(raw string) (ChangeKind, bool) {
	switch raw {
	case "insert", "I":
		return ChangeInsert, true
	case "update", "U":
		return ChangeUpdate, true
	case "delete", "D":
		return ChangeDelete, true
	default:
		return "", false
	}
}

func joinRelation(schema, table string) string {
	if schema == "" {
		return table
	}
	return schema + "." + table
}

// mergeColumns accepts either the structured {name,value} list or the
// parallel names/values arrays (whichever is populated) and returns a flat
// map, skipping any entry whose name/value can't be paired.
func mergeColumns(structured []wal2jsonColumn, names []string, values []any) map[string]any {
	if len(structured) > 0 {
		out := make(map[string]any, len(structured))
		for _, col := range structured {
			if col.Name == "" {
				continue
			}
			out[col.Name] = col.Value
		}
		return out
	}
	if len(names) > 0 {
		out := make(map[string]any, len(names))
		for i, name := range names {
			if name == "" || i >= len(values) {
				continue
			}
			out[name] = values[i]
		}
		return out
	}
	return nil
}

// ErrPgoutputUnsupported is returned by PgoutputDecoder.Decode: the
// pgoutput binary logical-decoding protocol is not implemented by this
// port (see the recorded Open Question decision in DESIGN.md).
var ErrPgoutputUnsupported = errors.New("cdc: pgoutput decoding is not implemented")

// PgoutputDecoder exists so ChangeDecoder has a second implementation
// satisfying the "decoder flexibility" design note, but it does not parse
// the pgoutput wire protocol.
type PgoutputDecoder struct{}

func (PgoutputDecoder) Decode(raw []byte, position int64) ([]ChangeRecord, error) {
	return nil, ErrPgoutputUnsupported
}
