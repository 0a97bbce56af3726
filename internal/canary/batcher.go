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

import "errors"

// ErrPayloadTooLarge is non-retriable: the batch must be split or dropped,
// never retried as-is.
var ErrPayloadTooLarge = errors.New("canary: payload exceeds max_payload_bytes")

// batch is one cycle's worth of diffs, grouped into the wire shape
// /storeData expects.
type batch struct {
	diffs      []Diff
	properties map[string][]sampleRow
}

// buildBatch groups diffs by canary_id into sample rows and rejects the
// batch if its encoded size would exceed maxPayloadBytes (0 disables the
// check).
func buildBatch(diffs []Diff, maxPayloadBytes int) (batch, error) {
	properties := make(map[string][]sampleRow, len(diffs))
	for _, d := range diffs {
		properties[d.CanaryID] = append(properties[d.CanaryID], d.rows()...)
	}

	b := batch{diffs: diffs, properties: properties}
	if maxPayloadBytes <= 0 {
		return b, nil
	}

	size, err := encodedSize(properties)
	if err != nil {
		return batch{}, err
	}
	if size > maxPayloadBytes {
		return batch{}, ErrPayloadTooLarge
	}
	return b, nil
}

func encodedSize(properties map[string][]sampleRow) (int, error) {
	data, err := jsonAPI.Marshal(map[string]any{"sessionToken": "", "properties": properties})
	if err != nil {
		return 0, err
	}
	return len(data), nil
}
