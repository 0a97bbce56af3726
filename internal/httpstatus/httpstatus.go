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

// Package httpstatus exposes the service's two ambient HTTP endpoints:
// /healthz for liveness/readiness probes and /status for an operator-facing
// snapshot of all three pipelines.
package httpstatus

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"

	"github.com/aaronlmathis/uns-metadata-sync/internal/logging"
	"github.com/aaronlmathis/uns-metadata-sync/internal/runtime"
)

// Reporter is the subset of *runtime.Runtime this package depends on, kept
// narrow so a fake can stand in for tests.
type Reporter interface {
	Status() runtime.Status
	Healthy() bool
}

// NewServer builds the status HTTP server. It does not start listening;
// the caller owns ListenAndServe/Shutdown so it can coordinate with the
// rest of the process's lifecycle.
func NewServer(addr string, reporter Reporter) *http.Server {
	router := mux.NewRouter()
	router.HandleFunc("/healthz", handleHealthz(reporter)).Methods(http.MethodGet)
	router.HandleFunc("/status", handleStatus(reporter)).Methods(http.MethodGet)
	router.Use(loggingMiddleware)

	return &http.Server{
		Addr:    addr,
		Handler: router,
	}
}

func handleHealthz(reporter Reporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !reporter.Healthy() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "starting"})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

func handleStatus(reporter Reporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(reporter.Status())
	}
}

// loggingMiddleware records method, path, status, duration and byte count
// for every request, the same fields gosight-server's own API access log
// captures, via httpsnoop rather than a hand-rolled ResponseWriter wrapper.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		m := httpsnoop.CaptureMetrics(next, w, r)
		logging.Debug("httpstatus: %s %s -> %d (%s, %d bytes)",
			r.Method, r.URL.Path, m.Code, time.Since(start), m.Written)
	})
}
