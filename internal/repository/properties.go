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

	"github.com/aaronlmathis/uns-metadata-sync/internal/model"
)

// columns returns the seven typed value columns for v, with exactly one
// populated per v.Type; the rest are NULL. Returns ErrInvalidPropertyType
// if v.Type is not recognized.
func columns(v model.PropertyValue) (typ string, vi sql.NullInt64, vl sql.NullInt64, vf sql.NullFloat64, vd sql.NullFloat64, vs sql.NullString, vb sql.NullBool, err error) {
	if !model.ValidPropertyType(v.Type) {
		err = ErrInvalidPropertyType
		return
	}
	typ = string(v.Type)
	switch v.Type {
	case model.PropertyInt:
		vi = sql.NullInt64{Int64: int64(v.ValueInt), Valid: true}
	case model.PropertyLong:
		vl = sql.NullInt64{Int64: v.ValueLong, Valid: true}
	case model.PropertyFloat:
		vf = sql.NullFloat64{Float64: float64(v.ValueFloat), Valid: true}
	case model.PropertyDouble:
		vd = sql.NullFloat64{Float64: v.ValueDouble, Valid: true}
	case model.PropertyString:
		vs = sql.NullString{String: v.ValueString, Valid: true}
	case model.PropertyBoolean:
		vb = sql.NullBool{Bool: v.ValueBool, Valid: true}
	}
	return
}

// UpsertMetricProperty upserts a single (metric_id, key) row, rejecting
// unrecognized types and treating an all-typed-columns-plus-type match as
// noop.
func (r *PGRepository) UpsertMetricProperty(p model.MetricProperty) (model.MetricProperty, model.UpsertStatus, error) {
	typ, vi, vl, vf, vd, vs, vb, err := columns(p.Value)
	if err != nil {
		return model.MetricProperty{}, model.Noop, err
	}

	tx, err := r.db.Begin()
	if err != nil {
		return model.MetricProperty{}, model.Noop, wrapErr("UpsertMetricProperty.Begin", err)
	}
	defer tx.Rollback()

	var existingType string
	var eVi, eVl sql.NullInt64
	var eVf, eVd sql.NullFloat64
	var eVs sql.NullString
	var eVb sql.NullBool
	row := tx.QueryRow(`SELECT type, value_int, value_long, value_float, value_double, value_string, value_bool
		FROM metric_properties WHERE metric_id=$1 AND key=$2`, p.MetricID, p.Key)
	scanErr := row.Scan(&existingType, &eVi, &eVl, &eVf, &eVd, &eVs, &eVb)

	now := time.Now().UTC()
	if scanErr == nil {
		if existingType == typ && eVi == vi && eVl == vl && eVf == vf && eVd == vd && eVs == vs && eVb == vb {
			p.UpdatedAt = now
			return p, model.Noop, tx.Commit()
		}
		_, err = tx.Exec(`UPDATE metric_properties SET type=$1, value_int=$2, value_long=$3, value_float=$4,
			value_double=$5, value_string=$6, value_bool=$7, updated_at=$8 WHERE metric_id=$9 AND key=$10`,
			typ, vi, vl, vf, vd, vs, vb, now, p.MetricID, p.Key)
		if err != nil {
			return model.MetricProperty{}, model.Noop, wrapErr("UpsertMetricProperty.update", err)
		}
		p.UpdatedAt = now
		return p, model.Updated, tx.Commit()
	}
	if !errors.Is(scanErr, sql.ErrNoRows) {
		return model.MetricProperty{}, model.Noop, wrapErr("UpsertMetricProperty.lookup", scanErr)
	}

	_, err = tx.Exec(`INSERT INTO metric_properties (metric_id, key, type, value_int, value_long, value_float,
		value_double, value_string, value_bool, updated_at) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		p.MetricID, p.Key, typ, vi, vl, vf, vd, vs, vb, now)
	if err != nil {
		return model.MetricProperty{}, model.Noop, wrapErr("UpsertMetricProperty.insert", err)
	}
	p.UpdatedAt = now
	return p, model.Inserted, tx.Commit()
}

// UpsertMetricPropertiesBulk deduplicates by (metric_id, key) within the
// batch, last write wins, then issues one multi-row
// INSERT ... ON CONFLICT DO UPDATE with a WHERE guard so rows with no
// actual change don't touch updated_at or emit WAL.
func (r *PGRepository) UpsertMetricPropertiesBulk(props []model.MetricProperty) error {
	if len(props) == 0 {
		return nil
	}

	byKey := make(map[string]model.MetricProperty, len(props))
	order := make([]string, 0, len(props))
	for _, p := range props {
		key := p.MetricID + "\x00" + p.Key
		if _, seen := byKey[key]; !seen {
			order = append(order, key)
		}
		byKey[key] = p
	}

	tx, err := r.db.Begin()
	if err != nil {
		return wrapErr("UpsertMetricPropertiesBulk.Begin", err)
	}
	defer tx.Rollback()

	var sb strings.Builder
	sb.WriteString(`INSERT INTO metric_properties (metric_id, key, type, value_int, value_long, value_float,
		value_double, value_string, value_bool, updated_at) VALUES `)
	args := make([]interface{}, 0, len(order)*10)
	now := time.Now().UTC()
	for i, key := range order {
		p := byKey[key]
		typ, vi, vl, vf, vd, vs, vb, err := columns(p.Value)
		if err != nil {
			return err
		}
		if i > 0 {
			sb.WriteString(",")
		}
		base := i * 10
		fmt.Fprintf(&sb, "($%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9, base+10)
		args = append(args, p.MetricID, p.Key, typ, vi, vl, vf, vd, vs, vb, now)
	}
	sb.WriteString(` ON CONFLICT (metric_id, key) DO UPDATE SET
		type = EXCLUDED.type, value_int = EXCLUDED.value_int, value_long = EXCLUDED.value_long,
		value_float = EXCLUDED.value_float, value_double = EXCLUDED.value_double,
		value_string = EXCLUDED.value_string, value_bool = EXCLUDED.value_bool,
		updated_at = EXCLUDED.updated_at
		WHERE metric_properties.type IS DISTINCT FROM EXCLUDED.type
		   OR metric_properties.value_int IS DISTINCT FROM EXCLUDED.value_int
		   OR metric_properties.value_long IS DISTINCT FROM EXCLUDED.value_long
		   OR metric_properties.value_float IS DISTINCT FROM EXCLUDED.value_float
		   OR metric_properties.value_double IS DISTINCT FROM EXCLUDED.value_double
		   OR metric_properties.value_string IS DISTINCT FROM EXCLUDED.value_string
		   OR metric_properties.value_bool IS DISTINCT FROM EXCLUDED.value_bool`)

	if _, err := tx.Exec(sb.String(), args...); err != nil {
		return wrapErr("UpsertMetricPropertiesBulk.exec", err)
	}
	return wrapErr("UpsertMetricPropertiesBulk.commit", tx.Commit())
}
