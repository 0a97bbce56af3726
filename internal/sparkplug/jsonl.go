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

package sparkplug

import (
	"os"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/aaronlmathis/uns-metadata-sync/internal/logging"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// auditWriter appends one JSON line per ingested frame (group, edge,
// device, message type, payload timestamp, and each metric's name, alias,
// datatype and properties; metric values are not recorded) to a file
// chosen by expanding pattern's strftime-style tokens against the current
// time. It opens a new file handle whenever the expanded path
// changes (e.g. at day rollover for a "%Y%m%d" pattern).
type auditWriter struct {
	mu          sync.Mutex
	pattern     string
	currentPath string
	file        *os.File
}

func newAuditWriter(pattern string) *auditWriter {
	return &auditWriter{pattern: pattern}
}

type auditRecord struct {
	Topic     string         `json:"topic"`
	Group     string         `json:"group"`
	Edge      string         `json:"edge"`
	Device    string         `json:"device,omitempty"`
	MsgType   string         `json:"msg_type"`
	Timestamp uint64         `json:"timestamp"`
	Metrics   []auditMetric  `json:"metrics"`
}

type auditMetric struct {
	Name       string         `json:"name"`
	Alias      uint64         `json:"alias,omitempty"`
	Datatype   uint32         `json:"datatype,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
}

func (w *auditWriter) Write(t Topic, payload RawPayload) {
	rec := auditRecord{
		Group:     t.Group,
		Edge:      t.Edge,
		Device:    t.Device,
		MsgType:   t.MsgType,
		Timestamp: payload.Timestamp,
	}
	for _, m := range payload.Metrics {
		rec.Metrics = append(rec.Metrics, auditMetric{
			Name:       m.Name,
			Alias:      m.Alias,
			Datatype:   m.Datatype,
			Properties: m.Properties,
		})
	}

	line, err := jsonAPI.Marshal(rec)
	if err != nil {
		logging.Warn("sparkplug: marshal audit record: %v", err)
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	path := expandPattern(w.pattern, time.Now())
	if path != w.currentPath || w.file == nil {
		if w.file != nil {
			w.file.Close()
		}
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			logging.Warn("sparkplug: open audit file %s: %v", path, err)
			return
		}
		w.file, w.currentPath = f, path
	}

	if _, err := w.file.Write(append(line, '\n')); err != nil {
		logging.Warn("sparkplug: write audit line: %v", err)
	}
}

// expandPattern replaces a small set of strftime-style tokens; it does not
// aim for full strftime compatibility, only the tokens the spec's default
// pattern ("./data/ingest-%Y%m%d.jsonl") needs.
func expandPattern(pattern string, now time.Time) string {
	r := strings.NewReplacer(
		"%Y", now.Format("2006"),
		"%m", now.Format("01"),
		"%d", now.Format("02"),
		"%H", now.Format("15"),
	)
	return r.Replace(pattern)
}
