package cdc

import (
	"testing"
)

func TestWAL2JSONDecodeEnvelope(t *testing.T) {
	raw := []byte(`{
		"change": [
			{
				"kind": "insert",
				"schema": "public",
				"table": "metrics",
				"columnnames": ["id", "value"],
				"columnvalues": [1, 42.5],
				"timestamp": "2026-07-30 10:15:00.123456+00"
			}
		]
	}`)

	d := WAL2JSONDecoder{}
	recs, err := d.Decode(raw, 100)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	r := recs[0]
	if r.Kind != ChangeInsert {
		t.Fatalf("expected insert, got %v", r.Kind)
	}
	if r.Relation != "public.metrics" {
		t.Fatalf("expected public.metrics, got %q", r.Relation)
	}
	if r.Columns["id"] != float64(1) || r.Columns["value"] != 42.5 {
		t.Fatalf("unexpected columns: %+v", r.Columns)
	}
	if r.Position != 100 {
		t.Fatalf("expected position 100, got %d", r.Position)
	}
	if r.CommitTS.IsZero() {
		t.Fatalf("expected timestamp to parse")
	}
}

func TestWAL2JSONDecodeStructuredColumns(t *testing.T) {
	raw := []byte(`{
		"change": [
			{
				"kind": "update",
				"schema": "public",
				"table": "metrics",
				"columns": [{"name": "id", "value": 1}, {"name": "value", "value": 99}],
				"identity": [{"name": "id", "value": 1}]
			}
		]
	}`)

	d := WAL2JSONDecoder{}
	recs, err := d.Decode(raw, 1)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	r := recs[0]
	if r.Kind != ChangeUpdate {
		t.Fatalf("expected update, got %v", r.Kind)
	}
	if r.Columns["value"] != float64(99) {
		t.Fatalf("unexpected columns: %+v", r.Columns)
	}
	if r.OldColumns["id"] != float64(1) {
		t.Fatalf("unexpected old columns: %+v", r.OldColumns)
	}
}

func TestWAL2JSONDecodeBareList(t *testing.T) {
	raw := []byte(`[
		{"kind": "delete", "schema": "public", "table": "metrics", "oldkeys": {"keynames": ["id"], "keyvalues": [7]}}
	]`)

	d := WAL2JSONDecoder{}
	recs, err := d.Decode(raw, 5)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	if recs[0].Kind != ChangeDelete {
		t.Fatalf("expected delete, got %v", recs[0].Kind)
	}
	if recs[0].OldColumns["id"] != float64(7) {
		t.Fatalf("unexpected old columns: %+v", recs[0].OldColumns)
	}
}

func TestWAL2JSONDecodeSingleRowObject(t *testing.T) {
	raw := []byte(`{"kind": "I", "schema": "public", "table": "metrics", "columnnames": ["id"], "columnvalues": [3]}`)

	d := WAL2JSONDecoder{}
	recs, err := d.Decode(raw, 9)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	if recs[0].Kind != ChangeInsert {
		t.Fatalf("expected insert (from 'I'), got %v", recs[0].Kind)
	}
}

func TestWAL2JSONDecodeSkipsUnrecognizedKind(t *testing.T) {
	raw := []byte(`{"change": [{"kind": "truncate", "schema": "public", "table": "metrics"}]}`)

	d := WAL2JSONDecoder{}
	recs, err := d.Decode(raw, 1)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(recs) != 0 {
		t.Fatalf("expected 0 records for unrecognized kind, got %d", len(recs))
	}
}

func TestWAL2JSONDecodeUnrecognizedShapeErrors(t *testing.T) {
	d := WAL2JSONDecoder{}
	_, err := d.Decode([]byte(`"just a string"`), 1)
	if err == nil {
		t.Fatalf("expected error for unrecognized shape")
	}
}

func TestWAL2JSONDecodeNoSchemaRelation(t *testing.T) {
	raw := []byte(`{"change": [{"kind": "insert", "table": "metrics", "columnnames": ["id"], "columnvalues": [1]}]}`)

	d := WAL2JSONDecoder{}
	recs, err := d.Decode(raw, 1)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(recs) != 1 || recs[0].Relation != "metrics" {
		t.Fatalf("expected bare relation 'metrics', got %+v", recs)
	}
}

func TestPgoutputDecoderUnsupported(t *testing.T) {
	d := PgoutputDecoder{}
	_, err := d.Decode([]byte{0x01}, 1)
	if err != ErrPgoutputUnsupported {
		t.Fatalf("expected ErrPgoutputUnsupported, got %v", err)
	}
}
