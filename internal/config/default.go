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

package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const defaultSettingsYAML = `
listen: ":8090"
log_file: ""
log_level: "info"
alias_cache_path: "./data/alias_cache.json"

mqtt:
  broker: "localhost"
  port: 1883
  username: ""
  password: ""
  client_id: "uns-metadata-sync"
  tls_insecure: false
  topic_all: "spBv1.0/#"
  topic_nbirth_all: "spBv1.0/+/NBIRTH/+"
  topic_dbirth_all: "spBv1.0/+/DBIRTH/+/+"
  auto_request_rebirth: true
  rebirth_throttle_seconds: 60

store:
  host: "localhost"
  port: 5432
  db: "uns_metadata"
  user: "uns_sync"
  password: ""
  schema: "public"
  db_mode: "local"

cdc:
  enabled: true
  slot: "uns_metadata_sync"
  publication: "uns_metadata_pub"
  replication_plugin: "wal2json"
  window_seconds: 5
  flush_interval_seconds: 2
  buffer_cap: 10000
  idle_sleep_seconds: 1
  max_batch_messages: 500
  checkpoint_backend: "file"
  resume_path: "./data/cdc_checkpoint.json"
  resume_fsync: true
  replication_host: "localhost"
  replication_port: 5432
  replication_db: "uns_metadata"
  replication_user: "uns_sync_repl"
  replication_password: ""
  replication_sslmode: "prefer"

canary:
  enabled: true
  base_url: "https://localhost:55380"
  api_token: ""
  client_id: "uns-metadata-sync"
  historians: []
  rate_limit_rps: 20
  burst_size: 20
  queue_capacity: 5000
  max_batch_tags: 200
  max_payload_bytes: 1048576
  request_timeout_seconds: 10
  retry_attempts: 5
  retry_base_delay_seconds: 0.5
  retry_max_delay_seconds: 30
  circuit_consecutive_failures: 5
  circuit_reset_seconds: 30
  session_timeout_ms: 30000
  keepalive_idle_seconds: 60
  keepalive_jitter_seconds: 5

jsonl:
  write_jsonl: false
  pattern: "./data/ingest-%Y%m%d.jsonl"
`

// DefaultSettings returns the built-in baseline configuration, the same
// values EnsureDefaultConfig writes out on first run.
func DefaultSettings() (*Settings, error) {
	var s Settings
	if err := yaml.Unmarshal([]byte(defaultSettingsYAML), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// EnsureDefaultConfig writes the default YAML to path if nothing exists
// there yet, creating parent directories as needed. It never overwrites an
// existing file.
func EnsureDefaultConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, []byte(defaultSettingsYAML), 0644)
}
