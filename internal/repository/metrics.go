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

package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aaronlmathis/uns-metadata-sync/internal/model"
)

// UpsertMetric mirrors UpsertDevice's identity resolution: uns_path first,
// then (device_id, name). A uns_path rewrite that resolves via the
// secondary key records a MetricPathLineage row so the rewrite is
// auditable (supplemental feature, grounded on original_source's
// db/lineage_writers.py).
func (r *PGRepository) UpsertMetric(m model.Metric) (model.Metric, model.UpsertStatus, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return model.Metric{}, model.Noop, wrapErr("UpsertMetric.Begin", err)
	}
	defer tx.Rollback()

	existing, err := findMetricByUNSPath(tx, m.UNSPath)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return model.Metric{}, model.Noop, wrapErr("UpsertMetric.findByPath", err)
	}
	if err == nil {
		if metricEqual(existing, m) {
			return existing, model.Noop, tx.Commit()
		}
		updated, uerr := updateMetric(tx, existing.MetricID, m)
		if uerr != nil {
			return model.Metric{}, model.Noop, wrapErr("UpsertMetric.update", uerr)
		}
		if err := writeMetricVersion(tx, updated.MetricID, "ingest", diffMetric(existing, updated)); err != nil {
			return model.Metric{}, model.Noop, wrapErr("UpsertMetric.version", err)
		}
		return updated, model.Updated, tx.Commit()
	}

	existing, err = findMetricBySecondaryKey(tx, m.DeviceID, m.Name)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return model.Metric{}, model.Noop, wrapErr("UpsertMetric.findBySecondary", err)
	}
	if err == nil {
		oldPath := existing.UNSPath
		updated, uerr := updateMetric(tx, existing.MetricID, m)
		if uerr != nil {
			return model.Metric{}, model.Noop, wrapErr("UpsertMetric.updateAfterRewrite", uerr)
		}
		if oldPath != updated.UNSPath {
			if err := writeMetricLineage(tx, updated.MetricID, oldPath, updated.UNSPath); err != nil {
				return model.Metric{}, model.Noop, wrapErr("UpsertMetric.lineage", err)
			}
		}
		if err := writeMetricVersion(tx, updated.MetricID, "ingest", diffMetric(existing, updated)); err != nil {
			return model.Metric{}, model.Noop, wrapErr("UpsertMetric.version", err)
		}
		return updated, model.Updated, tx.Commit()
	}

	inserted, err := insertMetric(tx, m)
	if err != nil {
		return model.Metric{}, model.Noop, wrapErr("UpsertMetric.insert", err)
	}
	if err := writeMetricVersion(tx, inserted.MetricID, "ingest", map[string]any{"created": true}); err != nil {
		return model.Metric{}, model.Noop, wrapErr("UpsertMetric.version", err)
	}
	return inserted, model.Inserted, tx.Commit()
}

func metricEqual(a, b model.Metric) bool {
	return a.DeviceID == b.DeviceID && a.Name == b.Name && a.Datatype == b.Datatype && a.CanaryID == b.CanaryID
}

func diffMetric(old, updated model.Metric) map[string]any {
	diff := map[string]any{}
	if old.Datatype != updated.Datatype {
		diff["datatype"] = []string{old.Datatype, updated.Datatype}
	}
	if old.UNSPath != updated.UNSPath {
		diff["uns_path"] = []string{old.UNSPath, updated.UNSPath}
	}
	if old.CanaryID != updated.CanaryID {
		diff["canary_id"] = []string{old.CanaryID, updated.CanaryID}
	}
	return diff
}

func findMetricByUNSPath(tx *sql.Tx, unsPath string) (model.Metric, error) {
	var m model.Metric
	row := tx.QueryRow(`SELECT metric_id, device_id, name, uns_path, datatype, canary_id, created_at, updated_at
		FROM metrics WHERE uns_path = $1`, unsPath)
	err := row.Scan(&m.MetricID, &m.DeviceID, &m.Name, &m.UNSPath, &m.Datatype, &m.CanaryID, &m.CreatedAt, &m.UpdatedAt)
	return m, err
}

func findMetricBySecondaryKey(tx *sql.Tx, deviceID, name string) (model.Metric, error) {
	var m model.Metric
	row := tx.QueryRow(`SELECT metric_id, device_id, name, uns_path, datatype, canary_id, created_at, updated_at
		FROM metrics WHERE device_id = $1 AND name = $2`, deviceID, name)
	err := row.Scan(&m.MetricID, &m.DeviceID, &m.Name, &m.UNSPath, &m.Datatype, &m.CanaryID, &m.CreatedAt, &m.UpdatedAt)
	return m, err
}

func updateMetric(tx *sql.Tx, metricID string, m model.Metric) (model.Metric, error) {
	now := time.Now().UTC()
	_, err := tx.Exec(`UPDATE metrics SET device_id=$1, name=$2, uns_path=$3, datatype=$4, canary_id=$5, updated_at=$6
		WHERE metric_id=$7`, m.DeviceID, m.Name, m.UNSPath, m.Datatype, m.CanaryID, now, metricID)
	if err != nil {
		return model.Metric{}, err
	}
	m.MetricID = metricID
	m.UpdatedAt = now
	return m, nil
}

func insertMetric(tx *sql.Tx, m model.Metric) (model.Metric, error) {
	now := time.Now().UTC()
	row := tx.QueryRow(`INSERT INTO metrics (device_id, name, uns_path, datatype, canary_id, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING metric_id`,
		m.DeviceID, m.Name, m.UNSPath, m.Datatype, m.CanaryID, now, now)
	if err := row.Scan(&m.MetricID); err != nil {
		return model.Metric{}, err
	}
	m.CreatedAt, m.UpdatedAt = now, now
	return m, nil
}

func writeMetricVersion(tx *sql.Tx, metricID, changedBy string, diff map[string]any) error {
	if len(diff) == 0 {
		return nil
	}
	var prev sql.NullString
	row := tx.QueryRow(`SELECT version_id FROM metric_versions WHERE metric_id=$1 ORDER BY changed_at DESC LIMIT 1`, metricID)
	_ = row.Scan(&prev)

	diffJSON, err := marshalDiff(diff)
	if err != nil {
		return err
	}
	_, err = tx.Exec(`INSERT INTO metric_versions (version_id, metric_id, changed_by, changed_at, diff, previous_version)
		VALUES ($1,$2,$3,$4,$5,$6)`, uuid.NewString(), metricID, changedBy, time.Now().UTC(), diffJSON, prev.String)
	return err
}

func writeMetricLineage(tx *sql.Tx, metricID, oldPath, newPath string) error {
	_, err := tx.Exec(`INSERT INTO metric_path_lineage (lineage_id, metric_id, old_uns_path, new_uns_path)
		VALUES ($1,$2,$3,$4)`, uuid.NewString(), metricID, oldPath, newPath)
	return err
}

// UpsertMetricsBulk deduplicates metrics by (device_id, name) within the
// batch (last write wins), then issues a single multi-row
// INSERT ... ON CONFLICT (device_id, name) DO UPDATE, returning name ->
// metric_id for the caller's follow-up property writes. The conflict
// target is the stable (device_id, name) key, not uns_path, so a uns_path
// rewrite (e.g. a dimension rename) still resolves to its existing row
// instead of racing the table's other unique constraint.
func (r *PGRepository) UpsertMetricsBulk(metrics []model.Metric) (map[string]string, error) {
	if len(metrics) == 0 {
		return map[string]string{}, nil
	}

	byKey := make(map[string]model.Metric, len(metrics))
	order := make([]string, 0, len(metrics))
	for _, m := range metrics {
		key := m.DeviceID + "\x00" + m.Name
		if _, seen := byKey[key]; !seen {
			order = append(order, key)
		}
		byKey[key] = m
	}

	tx, err := r.db.Begin()
	if err != nil {
		return nil, wrapErr("UpsertMetricsBulk.Begin", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	var sb strings.Builder
	sb.WriteString(`INSERT INTO metrics (device_id, name, uns_path, datatype, canary_id, created_at, updated_at) VALUES `)
	args := make([]interface{}, 0, len(order)*7)
	for i, key := range order {
		m := byKey[key]
		if i > 0 {
			sb.WriteString(",")
		}
		base := i * 7
		fmt.Fprintf(&sb, "($%d,$%d,$%d,$%d,$%d,$%d,$%d)", base+1, base+2, base+3, base+4, base+5, base+6, base+7)
		args = append(args, m.DeviceID, m.Name, m.UNSPath, m.Datatype, m.CanaryID, now, now)
	}
	sb.WriteString(` ON CONFLICT (device_id, name) DO UPDATE SET
		uns_path = EXCLUDED.uns_path, datatype = EXCLUDED.datatype,
		canary_id = EXCLUDED.canary_id, updated_at = EXCLUDED.updated_at
		RETURNING name, metric_id`)

	rows, err := tx.Query(sb.String(), args...)
	if err != nil {
		return nil, wrapErr("UpsertMetricsBulk.exec", err)
	}
	out := make(map[string]string, len(order))
	for rows.Next() {
		var name, id string
		if err := rows.Scan(&name, &id); err != nil {
			rows.Close()
			return nil, wrapErr("UpsertMetricsBulk.scan", err)
		}
		out[name] = id
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("UpsertMetricsBulk.rows", err)
	}
	return out, wrapErr("UpsertMetricsBulk.commit", tx.Commit())
}

// LatestMetricVersion returns the most recent version row for metricID, for
// the CDC listener's "look up the latest version row" step.
func (r *PGRepository) LatestMetricVersion(metricID string) (model.MetricVersion, error) {
	var v model.MetricVersion
	var diffJSON string
	row := r.db.QueryRow(`SELECT version_id, metric_id, changed_by, changed_at, diff, previous_version
		FROM metric_versions WHERE metric_id=$1 ORDER BY changed_at DESC LIMIT 1`, metricID)
	if err := row.Scan(&v.VersionID, &v.MetricID, &v.ChangedBy, &v.ChangedAt, &diffJSON, &v.PreviousVersion); err != nil {
		return model.MetricVersion{}, wrapErr("LatestMetricVersion", err)
	}
	diff, err := unmarshalDiff(diffJSON)
	if err != nil {
		return model.MetricVersion{}, wrapErr("LatestMetricVersion.diff", err)
	}
	v.Diff = diff
	return v, nil
}
