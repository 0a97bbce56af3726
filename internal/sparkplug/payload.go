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

// Package sparkplug decodes Sparkplug-B protobuf payloads by hand-walking
// the wire format (no generated message types), maintains the alias
// table, flattens property sets, and orchestrates persistence through
// internal/repository.
package sparkplug

import (
	"bytes"
	"compress/zlib"
	"errors"
	"io"
	"math"

	"github.com/klauspost/compress/gzip"
	"google.golang.org/protobuf/encoding/protowire"
)

// ErrCompression is returned when a compressed payload wrapper carries an
// empty body.
var ErrCompression = errors.New("sparkplug: compressed payload has empty body")

// Sparkplug B wire field numbers, per the Eclipse Tahu payload.proto.
const (
	fieldPayloadTimestamp = 1
	fieldPayloadMetrics   = 2
	fieldPayloadSeq       = 3
	fieldPayloadUUID      = 4
	fieldPayloadBody      = 5

	fieldMetricName         = 1
	fieldMetricAlias        = 2
	fieldMetricTimestamp    = 3
	fieldMetricDatatype     = 4
	fieldMetricIsHistorical = 5
	fieldMetricIsTransient  = 6
	fieldMetricIsNull       = 7
	fieldMetricProperties   = 9
	fieldMetricIntValue     = 10
	fieldMetricLongValue    = 11
	fieldMetricFloatValue   = 12
	fieldMetricDoubleValue  = 13
	fieldMetricBoolValue    = 14
	fieldMetricStringValue  = 15
	fieldMetricBytesValue   = 16

	fieldPropertySetKeys   = 1
	fieldPropertySetValues = 2

	fieldPropertyValueType          = 1
	fieldPropertyValueIsNull        = 2
	fieldPropertyValueInt           = 3
	fieldPropertyValueLong          = 4
	fieldPropertyValueFloat         = 5
	fieldPropertyValueDouble        = 6
	fieldPropertyValueBool          = 7
	fieldPropertyValueString        = 8
	fieldPropertyValuePropertySet   = 9
	fieldPropertyValuePropertySets  = 10
	fieldPropertySetListPropertySet = 1
)

// Datatype codes relevant to this port, per the Sparkplug B spec.
const (
	DTInt8    = 1
	DTInt16   = 2
	DTInt32   = 3
	DTInt64   = 4
	DTUInt8   = 5
	DTUInt16  = 6
	DTUInt32  = 7
	DTUInt64  = 8
	DTFloat   = 9
	DTDouble  = 10
	DTBoolean = 11
	DTString  = 12
	DTText    = 14
)

// RawMetric is a single decoded Sparkplug metric, value still in its
// protobuf-native representation.
type RawMetric struct {
	Name         string
	HasAlias     bool
	Alias        uint64
	Datatype     uint32
	HasDatatype  bool
	IsNull       bool
	IntValue     uint32
	LongValue    uint64
	FloatValue   float32
	DoubleValue  float64
	BoolValue    bool
	StringValue  string
	HasValue     bool
	Properties   map[string]any
}

// RawPayload is a decoded Sparkplug B Payload message.
type RawPayload struct {
	Timestamp uint64
	Seq       uint64
	HasSeq    bool
	UUID      string
	Body      []byte
	Metrics   []RawMetric
}

// DecodePayload parses raw into a RawPayload, transparently inflating a
// compressed wrapper first. A wrapper is recognized either by
// uuid == "SPBV1.0_COMPRESSED", or by a metric literally named
// "algorithm" whose string value is "GZIP"; a wrapper with an empty body
// returns ErrCompression.
func DecodePayload(raw []byte) (RawPayload, error) {
	p, err := decodePayloadMessage(raw)
	if err != nil {
		return RawPayload{}, err
	}

	if isCompressedWrapper(p) {
		if len(p.Body) == 0 {
			return RawPayload{}, ErrCompression
		}
		inflated, err := inflate(p.Body)
		if err != nil {
			return RawPayload{}, err
		}
		return decodePayloadMessage(inflated)
	}
	return p, nil
}

func isCompressedWrapper(p RawPayload) bool {
	if p.UUID == "SPBV1.0_COMPRESSED" {
		return true
	}
	for _, m := range p.Metrics {
		if m.Name == "algorithm" && m.HasValue && m.StringValue == "GZIP" {
			return true
		}
	}
	return false
}

// inflate tries gzip first, then falls back to raw zlib/deflate, matching
// the spec's "try gzip; fall back to raw zlib" decompression order.
func inflate(body []byte) ([]byte, error) {
	if gz, err := gzip.NewReader(bytes.NewReader(body)); err == nil {
		defer gz.Close()
		out, rerr := io.ReadAll(gz)
		if rerr == nil {
			return out, nil
		}
	}

	zr, err := zlib.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

func decodePayloadMessage(raw []byte) (RawPayload, error) {
	var p RawPayload
	b := raw
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return RawPayload{}, protowire.ParseError(n)
		}
		b = b[n:]

		switch num {
		case fieldPayloadTimestamp:
			v, n, err := consumeVarint(b, typ)
			if err != nil {
				return RawPayload{}, err
			}
			p.Timestamp = v
			b = b[n:]
		case fieldPayloadSeq:
			v, n, err := consumeVarint(b, typ)
			if err != nil {
				return RawPayload{}, err
			}
			p.Seq, p.HasSeq = v, true
			b = b[n:]
		case fieldPayloadUUID:
			v, n, err := consumeString(b, typ)
			if err != nil {
				return RawPayload{}, err
			}
			p.UUID = v
			b = b[n:]
		case fieldPayloadBody:
			v, n, err := consumeBytes(b, typ)
			if err != nil {
				return RawPayload{}, err
			}
			p.Body = v
			b = b[n:]
		case fieldPayloadMetrics:
			sub, n, err := consumeBytes(b, typ)
			if err != nil {
				return RawPayload{}, err
			}
			m, err := decodeMetric(sub)
			if err != nil {
				return RawPayload{}, err
			}
			p.Metrics = append(p.Metrics, m)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return RawPayload{}, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return p, nil
}

func decodeMetric(raw []byte) (RawMetric, error) {
	var m RawMetric
	b := raw
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return RawMetric{}, protowire.ParseError(n)
		}
		b = b[n:]

		switch num {
		case fieldMetricName:
			v, n, err := consumeString(b, typ)
			if err != nil {
				return RawMetric{}, err
			}
			m.Name = v
			b = b[n:]
		case fieldMetricAlias:
			v, n, err := consumeVarint(b, typ)
			if err != nil {
				return RawMetric{}, err
			}
			m.Alias, m.HasAlias = v, true
			b = b[n:]
		case fieldMetricDatatype:
			v, n, err := consumeVarint(b, typ)
			if err != nil {
				return RawMetric{}, err
			}
			m.Datatype, m.HasDatatype = uint32(v), true
			b = b[n:]
		case fieldMetricIsNull:
			v, n, err := consumeVarint(b, typ)
			if err != nil {
				return RawMetric{}, err
			}
			m.IsNull = v != 0
			b = b[n:]
		case fieldMetricIntValue:
			v, n, err := consumeVarint(b, typ)
			if err != nil {
				return RawMetric{}, err
			}
			m.IntValue, m.HasValue = uint32(v), true
			b = b[n:]
		case fieldMetricLongValue:
			v, n, err := consumeVarint(b, typ)
			if err != nil {
				return RawMetric{}, err
			}
			m.LongValue, m.HasValue = v, true
			b = b[n:]
		case fieldMetricFloatValue:
			v, n, err := consumeFixed32(b, typ)
			if err != nil {
				return RawMetric{}, err
			}
			m.FloatValue, m.HasValue = math.Float32frombits(v), true
			b = b[n:]
		case fieldMetricDoubleValue:
			v, n, err := consumeFixed64(b, typ)
			if err != nil {
				return RawMetric{}, err
			}
			m.DoubleValue, m.HasValue = math.Float64frombits(v), true
			b = b[n:]
		case fieldMetricBoolValue:
			v, n, err := consumeVarint(b, typ)
			if err != nil {
				return RawMetric{}, err
			}
			m.BoolValue, m.HasValue = v != 0, true
			b = b[n:]
		case fieldMetricStringValue:
			v, n, err := consumeString(b, typ)
			if err != nil {
				return RawMetric{}, err
			}
			m.StringValue, m.HasValue = v, true
			b = b[n:]
		case fieldMetricProperties:
			sub, n, err := consumeBytes(b, typ)
			if err != nil {
				return RawMetric{}, err
			}
			props, err := decodePropertySet(sub)
			if err != nil {
				return RawMetric{}, err
			}
			m.Properties = props
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return RawMetric{}, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return m, nil
}

// decodePropertySet decodes a PropertySet message (parallel keys[]/values[]
// arrays) into a flat map, recursively flattening nested property sets and
// property-set lists.
func decodePropertySet(raw []byte) (map[string]any, error) {
	var keys []string
	var values []any

	b := raw
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]

		switch num {
		case fieldPropertySetKeys:
			v, n, err := consumeString(b, typ)
			if err != nil {
				return nil, err
			}
			keys = append(keys, v)
			b = b[n:]
		case fieldPropertySetValues:
			sub, n, err := consumeBytes(b, typ)
			if err != nil {
				return nil, err
			}
			val, err := decodePropertyValue(sub)
			if err != nil {
				return nil, err
			}
			values = append(values, val)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}

	out := make(map[string]any, len(keys))
	for i, k := range keys {
		if i < len(values) {
			out[k] = values[i]
		}
	}
	return out, nil
}

// decodePropertyValue decodes one PropertyValue: the first populated typed
// field wins, matching the spec's "first populated typed field wins" rule.
func decodePropertyValue(raw []byte) (any, error) {
	b := raw
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]

		switch num {
		case fieldPropertyValueInt:
			v, n, err := consumeVarint(b, typ)
			if err != nil {
				return nil, err
			}
			return int32(v), nil
		case fieldPropertyValueLong:
			v, n, err := consumeVarint(b, typ)
			if err != nil {
				return nil, err
			}
			_ = n
			return int64(v), nil
		case fieldPropertyValueFloat:
			v, _, err := consumeFixed32(b, typ)
			if err != nil {
				return nil, err
			}
			return math.Float32frombits(v), nil
		case fieldPropertyValueDouble:
			v, _, err := consumeFixed64(b, typ)
			if err != nil {
				return nil, err
			}
			return math.Float64frombits(v), nil
		case fieldPropertyValueBool:
			v, _, err := consumeVarint(b, typ)
			if err != nil {
				return nil, err
			}
			return v != 0, nil
		case fieldPropertyValueString:
			v, _, err := consumeString(b, typ)
			if err != nil {
				return nil, err
			}
			return v, nil
		case fieldPropertyValuePropertySet:
			sub, _, err := consumeBytes(b, typ)
			if err != nil {
				return nil, err
			}
			return decodePropertySet(sub)
		case fieldPropertyValuePropertySets:
			sub, _, err := consumeBytes(b, typ)
			if err != nil {
				return nil, err
			}
			return decodePropertySetList(sub)
		default:
			nn := protowire.ConsumeFieldValue(num, typ, b)
			if nn < 0 {
				return nil, protowire.ParseError(nn)
			}
			b = b[nn:]
		}
	}
	return nil, nil
}

func decodePropertySetList(raw []byte) ([]map[string]any, error) {
	var out []map[string]any
	b := raw
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]

		if num == fieldPropertySetListPropertySet {
			sub, n, err := consumeBytes(b, typ)
			if err != nil {
				return nil, err
			}
			ps, err := decodePropertySet(sub)
			if err != nil {
				return nil, err
			}
			out = append(out, ps)
			b = b[n:]
			continue
		}
		nn := protowire.ConsumeFieldValue(num, typ, b)
		if nn < 0 {
			return nil, protowire.ParseError(nn)
		}
		b = b[nn:]
	}
	return out, nil
}

func consumeVarint(b []byte, typ protowire.Type) (uint64, int, error) {
	if typ != protowire.VarintType {
		n := protowire.ConsumeFieldValue(0, typ, b)
		return 0, n, skipMismatch(n)
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, 0, protowire.ParseError(n)
	}
	return v, n, nil
}

func consumeFixed32(b []byte, typ protowire.Type) (uint32, int, error) {
	if typ != protowire.Fixed32Type {
		n := protowire.ConsumeFieldValue(0, typ, b)
		return 0, n, skipMismatch(n)
	}
	v, n := protowire.ConsumeFixed32(b)
	if n < 0 {
		return 0, 0, protowire.ParseError(n)
	}
	return v, n, nil
}

func consumeFixed64(b []byte, typ protowire.Type) (uint64, int, error) {
	if typ != protowire.Fixed64Type {
		n := protowire.ConsumeFieldValue(0, typ, b)
		return 0, n, skipMismatch(n)
	}
	v, n := protowire.ConsumeFixed64(b)
	if n < 0 {
		return 0, 0, protowire.ParseError(n)
	}
	return v, n, nil
}

func consumeBytes(b []byte, typ protowire.Type) ([]byte, int, error) {
	if typ != protowire.BytesType {
		n := protowire.ConsumeFieldValue(0, typ, b)
		return nil, n, skipMismatch(n)
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, 0, protowire.ParseError(n)
	}
	return v, n, nil
}

func consumeString(b []byte, typ protowire.Type) (string, int, error) {
	v, n, err := consumeBytes(b, typ)
	if err != nil {
		return "", n, err
	}
	return string(v), n, nil
}

func skipMismatch(n int) error {
	if n < 0 {
		return protowire.ParseError(n)
	}
	return nil
}
