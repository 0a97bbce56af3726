package repository

import (
	"testing"

	"github.com/aaronlmathis/uns-metadata-sync/internal/model"
)

func TestColumnsRejectsInvalidType(t *testing.T) {
	_, _, _, _, _, _, _, err := columns(model.PropertyValue{Type: "nonsense"})
	if err != ErrInvalidPropertyType {
		t.Fatalf("expected ErrInvalidPropertyType, got %v", err)
	}
}

func TestColumnsPopulatesExactlyOneField(t *testing.T) {
	typ, vi, vl, vf, vd, vs, vb, err := columns(model.PropertyValue{Type: model.PropertyString, ValueString: "hello"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if typ != "string" || !vs.Valid || vs.String != "hello" {
		t.Fatalf("expected populated string column, got type=%q vs=%+v", typ, vs)
	}
	if vi.Valid || vl.Valid || vf.Valid || vd.Valid || vb.Valid {
		t.Fatalf("expected all other typed columns to be NULL")
	}
}

func TestColumnsBoolean(t *testing.T) {
	typ, _, _, _, _, _, vb, err := columns(model.PropertyValue{Type: model.PropertyBoolean, ValueBool: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if typ != "boolean" || !vb.Valid || !vb.Bool {
		t.Fatalf("expected populated boolean column, got type=%q vb=%+v", typ, vb)
	}
}

func TestDiffMetricDetectsChanges(t *testing.T) {
	old := model.Metric{Datatype: "Int32", UNSPath: "a/b", CanaryID: "a.b"}
	updated := model.Metric{Datatype: "Int64", UNSPath: "a/c", CanaryID: "a.c"}
	diff := diffMetric(old, updated)
	if len(diff) != 3 {
		t.Fatalf("expected 3 changed fields, got %d: %+v", len(diff), diff)
	}
}

func TestDiffMetricNoopWhenUnchanged(t *testing.T) {
	m := model.Metric{Datatype: "Int32", UNSPath: "a/b", CanaryID: "a.b"}
	diff := diffMetric(m, m)
	if len(diff) != 0 {
		t.Fatalf("expected empty diff, got %+v", diff)
	}
}

func TestMarshalUnmarshalDiffRoundTrip(t *testing.T) {
	diff := map[string]any{"datatype": []string{"Int32", "Int64"}}
	s, err := marshalDiff(diff)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	out, err := unmarshalDiff(s)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := out["datatype"]; !ok {
		t.Fatalf("expected datatype key to survive round trip, got %+v", out)
	}
}

func TestUnmarshalDiffEmptyString(t *testing.T) {
	out, err := unmarshalDiff("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected empty map for empty diff string, got %+v", out)
	}
}
