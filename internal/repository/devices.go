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
	"time"

	"github.com/aaronlmathis/uns-metadata-sync/internal/model"
)

// UpsertDevice resolves identity by uns_path first, then by the secondary
// natural key (group_id, edge, device_name), inserting only if neither
// lookup finds a row. See spec's identity resolution order.
func (r *PGRepository) UpsertDevice(d model.Device) (model.Device, model.UpsertStatus, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return model.Device{}, model.Noop, wrapErr("UpsertDevice.Begin", err)
	}
	defer tx.Rollback()

	existing, err := findDeviceByUNSPath(tx, d.UNSPath)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return model.Device{}, model.Noop, wrapErr("UpsertDevice.findByPath", err)
	}
	if err == nil {
		if deviceEqual(existing, d) {
			return existing, model.Noop, tx.Commit()
		}
		updated, uerr := updateDevice(tx, existing.DeviceID, d)
		if uerr != nil {
			return model.Device{}, model.Noop, wrapErr("UpsertDevice.update", uerr)
		}
		return updated, model.Updated, tx.Commit()
	}

	existing, err = findDeviceBySecondaryKey(tx, d.GroupID, d.Edge, d.DeviceName)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return model.Device{}, model.Noop, wrapErr("UpsertDevice.findBySecondary", err)
	}
	if err == nil {
		updated, uerr := updateDevice(tx, existing.DeviceID, d)
		if uerr != nil {
			return model.Device{}, model.Noop, wrapErr("UpsertDevice.updateAfterRewrite", uerr)
		}
		return updated, model.Updated, tx.Commit()
	}

	inserted, err := insertDevice(tx, d)
	if err != nil {
		return model.Device{}, model.Noop, wrapErr("UpsertDevice.insert", err)
	}
	return inserted, model.Inserted, tx.Commit()
}

func deviceEqual(a, b model.Device) bool {
	return a.GroupID == b.GroupID &&
		a.Country == b.Country &&
		a.BusinessUnit == b.BusinessUnit &&
		a.Plant == b.Plant &&
		a.Edge == b.Edge &&
		a.DeviceName == b.DeviceName
}

func findDeviceByUNSPath(tx *sql.Tx, unsPath string) (model.Device, error) {
	var d model.Device
	row := tx.QueryRow(`SELECT device_id, group_id, country, business_unit, plant, edge, device_name, uns_path, created_at, updated_at
		FROM devices WHERE uns_path = $1`, unsPath)
	err := row.Scan(&d.DeviceID, &d.GroupID, &d.Country, &d.BusinessUnit, &d.Plant, &d.Edge, &d.DeviceName, &d.UNSPath, &d.CreatedAt, &d.UpdatedAt)
	return d, err
}

func findDeviceBySecondaryKey(tx *sql.Tx, groupID, edge, deviceName string) (model.Device, error) {
	var d model.Device
	row := tx.QueryRow(`SELECT device_id, group_id, country, business_unit, plant, edge, device_name, uns_path, created_at, updated_at
		FROM devices WHERE group_id = $1 AND edge = $2 AND device_name = $3`, groupID, edge, deviceName)
	err := row.Scan(&d.DeviceID, &d.GroupID, &d.Country, &d.BusinessUnit, &d.Plant, &d.Edge, &d.DeviceName, &d.UNSPath, &d.CreatedAt, &d.UpdatedAt)
	return d, err
}

func updateDevice(tx *sql.Tx, deviceID string, d model.Device) (model.Device, error) {
	now := time.Now().UTC()
	_, err := tx.Exec(`UPDATE devices SET group_id=$1, country=$2, business_unit=$3, plant=$4, edge=$5,
		device_name=$6, uns_path=$7, updated_at=$8 WHERE device_id=$9`,
		d.GroupID, d.Country, d.BusinessUnit, d.Plant, d.Edge, d.DeviceName, d.UNSPath, now, deviceID)
	if err != nil {
		return model.Device{}, err
	}
	d.DeviceID = deviceID
	d.UpdatedAt = now
	return d, nil
}

func insertDevice(tx *sql.Tx, d model.Device) (model.Device, error) {
	now := time.Now().UTC()
	row := tx.QueryRow(`INSERT INTO devices (group_id, country, business_unit, plant, edge, device_name, uns_path, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING device_id`,
		d.GroupID, d.Country, d.BusinessUnit, d.Plant, d.Edge, d.DeviceName, d.UNSPath, now, now)
	if err := row.Scan(&d.DeviceID); err != nil {
		return model.Device{}, err
	}
	d.CreatedAt, d.UpdatedAt = now, now
	return d, nil
}
