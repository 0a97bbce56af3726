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

package canary

import (
	"time"
)

// QualityCode is the OPC-style quality flag Canary expects on every
// sample; this writer only ever reports "good".
const QualityCode = 192

// DiffEntry is one changed property, ready to become a Canary sample row.
type DiffEntry struct {
	Key       string
	Timestamp time.Time
	Value     any
}

// Diff is one metric's coalesced change, addressed by its Canary tag id.
// It is the writer's only input shape; the CDC package's DiffPayload is
// converted into one of these at the service-runtime wiring boundary so
// this package has no dependency on cdc.
type Diff struct {
	CanaryID string
	Entries  []DiffEntry
}

// encodeValue maps a Go value onto the JSON shape Canary's /storeData
// expects per sample: nil becomes "", booleans become "true"/"false",
// numbers and strings pass through, and anything else is left to the
// encoder to marshal structurally.
func encodeValue(v any) any {
	switch t := v.(type) {
	case nil:
		return ""
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		return v
	}
}

// formatTimestamp renders t as Canary's expected
// YYYY-MM-DDTHH:MM:SS.ssssssZ, UTC, microsecond precision.
func formatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000") + "Z"
}

// sampleRow is the [key, timestamp, value, quality] tuple Canary's
// /storeData expects, JSON-encoded as a 4-element array.
type sampleRow [4]any

func (d Diff) rows() []sampleRow {
	rows := make([]sampleRow, 0, len(d.Entries))
	for _, e := range d.Entries {
		rows = append(rows, sampleRow{e.Key, formatTimestamp(e.Timestamp), encodeValue(e.Value), QualityCode})
	}
	return rows
}
