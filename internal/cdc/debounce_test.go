package cdc

import (
	"testing"
	"time"
)

func TestDebounceAddMergesAndTracksMaxVersion(t *testing.T) {
	b := NewDebounceBuffer(time.Second, 10)
	t0 := time.Unix(1000, 0)

	b.Add("plant/kiln/temp", map[string]any{"setpoint": 1}, 3, "operator-a", "e1", t0, map[string]any{"metric_id": "m1"})
	b.Add("plant/kiln/temp", map[string]any{"units": "C"}, 5, "operator-b", "e2", t0.Add(time.Millisecond), map[string]any{"metric_id": "m1"})

	due := b.FlushDue(t0.Add(2 * time.Second))
	if len(due) != 1 {
		t.Fatalf("expected 1 due entry, got %d", len(due))
	}
	entry := due[0]
	if entry.Version != 5 {
		t.Fatalf("expected max version 5, got %d", entry.Version)
	}
	if entry.Actor != "operator-b" {
		t.Fatalf("expected last non-empty actor operator-b, got %q", entry.Actor)
	}
	if entry.Payload["setpoint"] != 1 || entry.Payload["units"] != "C" {
		t.Fatalf("expected merged payload, got %+v", entry.Payload)
	}
	if len(entry.EventIDs) != 2 {
		t.Fatalf("expected 2 event ids, got %d", len(entry.EventIDs))
	}
}

func TestDebounceFlushDueRespectsWindow(t *testing.T) {
	b := NewDebounceBuffer(time.Second, 10)
	t0 := time.Unix(2000, 0)
	b.Add("a", nil, 1, "", "e1", t0, nil)

	if due := b.FlushDue(t0.Add(500 * time.Millisecond)); len(due) != 0 {
		t.Fatalf("expected nothing due before window elapses, got %d", len(due))
	}
	if due := b.FlushDue(t0.Add(2 * time.Second)); len(due) != 1 {
		t.Fatalf("expected 1 due after window elapses, got %d", len(due))
	}
}

func TestDebounceFlushDuePreservesInsertionOrder(t *testing.T) {
	b := NewDebounceBuffer(time.Second, 10)
	t0 := time.Unix(3000, 0)
	b.Add("first", nil, 1, "", "e1", t0, nil)
	b.Add("second", nil, 1, "", "e2", t0, nil)
	b.Add("third", nil, 1, "", "e3", t0, nil)

	due := b.FlushDue(t0.Add(2 * time.Second))
	if len(due) != 3 {
		t.Fatalf("expected 3 due entries, got %d", len(due))
	}
	if due[0].MetricKey != "first" || due[1].MetricKey != "second" || due[2].MetricKey != "third" {
		t.Fatalf("expected insertion order, got %v", []string{due[0].MetricKey, due[1].MetricKey, due[2].MetricKey})
	}
}

func TestDebounceEvictsSmallestLastUpdateOnCap(t *testing.T) {
	b := NewDebounceBuffer(time.Hour, 2)
	t0 := time.Unix(4000, 0)
	b.Add("oldest", nil, 1, "", "e1", t0, nil)
	b.Add("middle", nil, 1, "", "e2", t0.Add(time.Minute), nil)
	b.Add("newest", nil, 1, "", "e3", t0.Add(2*time.Minute), nil)

	if b.Len() != 2 {
		t.Fatalf("expected cap of 2 entries, got %d", b.Len())
	}
	if b.Dropped() != 1 {
		t.Fatalf("expected 1 dropped entry, got %d", b.Dropped())
	}

	due := b.FlushDue(t0.Add(3 * time.Hour))
	var keys []string
	for _, e := range due {
		keys = append(keys, e.MetricKey)
	}
	for _, k := range keys {
		if k == "oldest" {
			t.Fatalf("expected oldest entry to have been evicted, but it survived: %v", keys)
		}
	}
}

func TestDebounceExtrasMerge(t *testing.T) {
	b := NewDebounceBuffer(time.Second, 10)
	t0 := time.Unix(5000, 0)
	b.Add("a", nil, 1, "", "e1", t0, map[string]any{"metric_id": "m1"})
	b.Add("a", nil, 1, "", "e2", t0, map[string]any{"canary_id": "c1"})

	due := b.FlushDue(t0.Add(2 * time.Second))
	if len(due) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(due))
	}
	if due[0].Extras["metric_id"] != "m1" || due[0].Extras["canary_id"] != "c1" {
		t.Fatalf("expected merged extras, got %+v", due[0].Extras)
	}
}
