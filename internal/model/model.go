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

// Package model holds the relational and in-memory entities shared by the
// ingest, CDC, and Canary subsystems: devices, metrics, typed properties,
// version history, and path lineage.
package model

import "time"

// Device mirrors the `devices` table. Unique on UNSPath; secondary identity
// is (GroupID, Edge, DeviceName).
type Device struct {
	DeviceID     string
	GroupID      string
	Country      string
	BusinessUnit string
	Plant        string
	Edge         string
	DeviceName   string
	UNSPath      string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Metric mirrors the `metrics` table. Unique on UNSPath; secondary identity
// is (DeviceID, Name). CanaryID is a deterministic function of UNSPath.
type Metric struct {
	MetricID  string
	DeviceID  string
	Name      string
	UNSPath   string
	Datatype  string
	CanaryID  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PropertyType enumerates the types a MetricProperty value column may hold.
type PropertyType string

const (
	PropertyInt     PropertyType = "int"
	PropertyLong    PropertyType = "long"
	PropertyFloat   PropertyType = "float"
	PropertyDouble  PropertyType = "double"
	PropertyString  PropertyType = "string"
	PropertyBoolean PropertyType = "boolean"
)

// ValidPropertyType reports whether t is one of the six recognized kinds.
func ValidPropertyType(t PropertyType) bool {
	switch t {
	case PropertyInt, PropertyLong, PropertyFloat, PropertyDouble, PropertyString, PropertyBoolean:
		return true
	}
	return false
}

// PropertyValue is a tagged union: exactly one of the typed fields is
// meaningful, selected by Type. It is the Go shape of Sparkplug's
// heterogeneous metric properties and of the MetricProperty row's typed
// value columns.
type PropertyValue struct {
	Type        PropertyType
	ValueInt    int32
	ValueLong   int64
	ValueFloat  float32
	ValueDouble float64
	ValueString string
	ValueBool   bool
}

// PropertySet is a recursive map mirroring Sparkplug's nested property sets
// and arrays of property sets. A value is either a PropertyValue, a nested
// PropertySet, or a []PropertySet.
type PropertySet map[string]any

// MetricProperty mirrors one row of the `metric_properties` table: primary
// key (MetricID, Key), exactly one value_* column populated per Type.
type MetricProperty struct {
	MetricID  string
	Key       string
	Value     PropertyValue
	UpdatedAt time.Time
}

// MetricVersion is an append-only audit row: one per metadata change to a
// metric, linked to the prior version's VersionID by PreviousVersion
// (empty if none).
type MetricVersion struct {
	VersionID       string
	MetricID        string
	ChangedBy       string
	ChangedAt       time.Time
	Diff            map[string]any
	PreviousVersion string
}

// MetricPathLineage records a UNS path rewrite that preserved a metric's
// semantic identity (matched via secondary identity, not UNSPath).
type MetricPathLineage struct {
	LineageID  string
	MetricID   string
	OldUNSPath string
	NewUNSPath string
}

// UpsertStatus is the explicit result of a single-row upsert, replacing the
// source's exception-per-outcome control flow (see spec's Design Notes).
type UpsertStatus int

const (
	Noop UpsertStatus = iota
	Inserted
	Updated
)

func (s UpsertStatus) String() string {
	switch s {
	case Inserted:
		return "inserted"
	case Updated:
		return "updated"
	default:
		return "noop"
	}
}
