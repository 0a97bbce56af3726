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

// Package repository is the Postgres-backed metadata store: idempotent
// single-row and bulk upserts for devices, metrics, and typed metric
// properties, with explicit {inserted, updated, noop} results instead of
// swallowed exceptions.
package repository

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/aaronlmathis/uns-metadata-sync/internal/model"
)

// RepositoryError wraps any underlying driver error without swallowing it.
type RepositoryError struct {
	Op  string
	Err error
}

func (e *RepositoryError) Error() string {
	return fmt.Sprintf("repository: %s: %v", e.Op, e.Err)
}

func (e *RepositoryError) Unwrap() error { return e.Err }

func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &RepositoryError{Op: op, Err: err}
}

// ErrInvalidPropertyType is returned by UpsertMetricProperty and the bulk
// property variant when Value.Type is not one of the six recognized kinds.
var ErrInvalidPropertyType = errors.New("repository: invalid property type")

// MetadataRepository is the narrow capability interface the ingestor and
// CDC sink depend on, matching the teacher's "small, entity-scoped
// interface" convention (see datastore.DataStore) rather than one large
// god-interface.
type MetadataRepository interface {
	UpsertDevice(d model.Device) (model.Device, model.UpsertStatus, error)
	UpsertMetric(m model.Metric) (model.Metric, model.UpsertStatus, error)
	UpsertMetricProperty(p model.MetricProperty) (model.MetricProperty, model.UpsertStatus, error)
	UpsertMetricsBulk(metrics []model.Metric) (map[string]string, error)
	UpsertMetricPropertiesBulk(props []model.MetricProperty) error
	LatestMetricVersion(metricID string) (model.MetricVersion, error)
}

// PGRepository implements MetadataRepository against database/sql + lib/pq.
type PGRepository struct {
	db *sql.DB
}

// New wraps an already-opened *sql.DB. The caller owns its lifecycle.
func New(db *sql.DB) *PGRepository {
	return &PGRepository{db: db}
}
