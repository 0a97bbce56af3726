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
	"testing"
	"time"
)

func TestBuildBatchGroupsByCanaryID(t *testing.T) {
	ts := time.Now()
	diffs := []Diff{
		{CanaryID: "line1", Entries: []DiffEntry{{Key: "A", Timestamp: ts, Value: 1}}},
		{CanaryID: "line2", Entries: []DiffEntry{{Key: "B", Timestamp: ts, Value: 2}}},
		{CanaryID: "line1", Entries: []DiffEntry{{Key: "C", Timestamp: ts, Value: 3}}},
	}

	b, err := buildBatch(diffs, 0)
	if err != nil {
		t.Fatalf("buildBatch: %v", err)
	}
	if len(b.properties["line1"]) != 2 {
		t.Fatalf("line1 rows = %d, want 2", len(b.properties["line1"]))
	}
	if len(b.properties["line2"]) != 1 {
		t.Fatalf("line2 rows = %d, want 1", len(b.properties["line2"]))
	}
	if len(b.diffs) != 3 {
		t.Fatalf("diffs = %d, want 3", len(b.diffs))
	}
}

func TestBuildBatchRejectsOversizedPayload(t *testing.T) {
	ts := time.Now()
	diffs := []Diff{
		{CanaryID: "line1", Entries: []DiffEntry{{Key: "A-Very-Long-Tag-Name-Indeed", Timestamp: ts, Value: "a reasonably long string value"}}},
	}

	_, err := buildBatch(diffs, 10)
	if err != ErrPayloadTooLarge {
		t.Fatalf("err = %v, want ErrPayloadTooLarge", err)
	}
}

func TestBuildBatchZeroLimitDisablesCheck(t *testing.T) {
	ts := time.Now()
	diffs := []Diff{
		{CanaryID: "line1", Entries: []DiffEntry{{Key: "A", Timestamp: ts, Value: "x"}}},
	}
	if _, err := buildBatch(diffs, 0); err != nil {
		t.Fatalf("buildBatch with no limit: %v", err)
	}
}
