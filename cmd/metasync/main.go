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

// File: cmd/metasync/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aaronlmathis/uns-metadata-sync/internal/config"
	"github.com/aaronlmathis/uns-metadata-sync/internal/httpstatus"
	"github.com/aaronlmathis/uns-metadata-sync/internal/logging"
	"github.com/aaronlmathis/uns-metadata-sync/internal/runtime"
)

const shutdownTimeout = 10 * time.Second

func main() {
	flagSet := flag.NewFlagSet("uns-metadata-sync", flag.ExitOnError)
	flagSet.String("config", "", "path to config.yaml (default ./config.yaml)")
	flagSet.String("listen", "", "override the /healthz and /status listen address")
	flagSet.String("log-level", "", "override the configured log level")
	flagSet.String("mqtt-broker", "", "override the configured MQTT broker address")
	_ = flagSet.Parse(os.Args[1:])

	cfg, err := config.Load(flagSet)
	if err != nil {
		logging.Fatal("config: %v", err)
	}
	if err := logging.Configure(cfg.LogFile, cfg.LogLevel); err != nil {
		logging.Fatal("logging: %v", err)
	}

	rt, err := runtime.New(cfg)
	if err != nil {
		logging.Fatal("runtime: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := config.WatchForChanges(ctx, flagSet.Lookup("config").Value.String()); err != nil {
		logging.Warn("config: failed to watch config file for changes: %v", err)
	}

	if err := rt.Start(ctx); err != nil {
		logging.Fatal("runtime: start: %v", err)
	}
	logging.Info("uns-metadata-sync: pipelines started")

	statusSrv := httpstatus.NewServer(cfg.ListenAddr, rt)
	go func() {
		logging.Info("uns-metadata-sync: status server listening on %s", cfg.ListenAddr)
		if err := statusSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("httpstatus: %v", err)
		}
	}()

	<-ctx.Done()
	logging.Info("uns-metadata-sync: shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := statusSrv.Shutdown(shutdownCtx); err != nil {
		logging.Warn("httpstatus: shutdown: %v", err)
	}

	rt.Stop(shutdownTimeout)
	logging.Info("uns-metadata-sync: stopped")
}
