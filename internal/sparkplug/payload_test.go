package sparkplug

import (
	"bytes"
	"compress/gzip"
	"math"
	"testing"

	"google.golang.org/protobuf/encoding/protowire"
)

func appendStringField(b []byte, num protowire.Number, v string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendFixed64Field(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, v)
}

func appendBytesField(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func buildSimpleMetric(name string, alias uint64, datatype uint32, doubleValue float64) []byte {
	var m []byte
	m = appendStringField(m, fieldMetricName, name)
	m = appendVarintField(m, fieldMetricAlias, alias)
	m = appendVarintField(m, fieldMetricDatatype, uint64(datatype))
	m = appendFixed64Field(m, fieldMetricDoubleValue, math.Float64bits(doubleValue))
	return m
}

func buildPayload(metrics [][]byte) []byte {
	var p []byte
	for _, m := range metrics {
		p = appendBytesField(p, fieldPayloadMetrics, m)
	}
	return p
}

func TestDecodePayloadSimpleMetric(t *testing.T) {
	metric := buildSimpleMetric("kiln.temp", 7, DTDouble, 812.5)
	raw := buildPayload([][]byte{metric})

	decoded, err := DecodePayload(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded.Metrics) != 1 {
		t.Fatalf("expected 1 metric, got %d", len(decoded.Metrics))
	}
	m := decoded.Metrics[0]
	if m.Name != "kiln.temp" || m.Alias != 7 || m.Datatype != DTDouble || m.DoubleValue != 812.5 {
		t.Fatalf("unexpected metric: %+v", m)
	}
}

func TestDecodePayloadCompressedGzip(t *testing.T) {
	metric := buildSimpleMetric("kiln.temp", 7, DTDouble, 812.5)
	inner := buildPayload([][]byte{metric})

	var gzBuf bytes.Buffer
	gw := gzip.NewWriter(&gzBuf)
	if _, err := gw.Write(inner); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := gw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}

	var outer []byte
	outer = appendStringField(outer, fieldPayloadUUID, "SPBV1.0_COMPRESSED")
	outer = appendBytesField(outer, fieldPayloadBody, gzBuf.Bytes())

	decoded, err := DecodePayload(outer)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded.Metrics) != 1 || decoded.Metrics[0].Name != "kiln.temp" {
		t.Fatalf("unexpected decoded payload: %+v", decoded)
	}
}

func TestDecodePayloadCompressedEmptyBody(t *testing.T) {
	var outer []byte
	outer = appendStringField(outer, fieldPayloadUUID, "SPBV1.0_COMPRESSED")

	_, err := DecodePayload(outer)
	if err != ErrCompression {
		t.Fatalf("expected ErrCompression, got %v", err)
	}
}

func TestExtractDimensions(t *testing.T) {
	metrics := []RawMetric{
		{Name: "country", HasValue: true, StringValue: "US"},
		{Name: "business_unit", HasValue: true, StringValue: "Widgets"},
		{Name: "plant", HasValue: true, StringValue: "P1"},
		{Name: "kiln.temp", HasValue: true, DoubleValue: 1.0},
	}
	country, bu, plant := extractDimensions(metrics)
	if country != "US" || bu != "Widgets" || plant != "P1" {
		t.Fatalf("got %q %q %q", country, bu, plant)
	}
}

func TestDatatypeName(t *testing.T) {
	if datatypeName(DTDouble) != "Double" {
		t.Fatalf("expected Double")
	}
	if datatypeName(999) != "Unknown" {
		t.Fatalf("expected Unknown for unrecognized code")
	}
}
