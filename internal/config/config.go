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

// Package config provides configuration loading for the sync core. It
// supports loading a YAML file and allows environment variable and CLI
// flag overrides, in that ascending priority order.
package config

import "os"

// MQTTConfig is the Sparkplug-B broker connection and topic surface.
type MQTTConfig struct {
	Broker              string `yaml:"broker"`
	Port                int    `yaml:"port"`
	Username             string `yaml:"username"`
	Password             string `yaml:"password"`
	ClientID             string `yaml:"client_id"`
	TLSInsecure          bool   `yaml:"tls_insecure"`
	TopicAll             string `yaml:"topic_all"`
	TopicNBirthAll       string `yaml:"topic_nbirth_all"`
	TopicDBirthAll       string `yaml:"topic_dbirth_all"`
	AutoRequestRebirth   bool   `yaml:"auto_request_rebirth"`
	RebirthThrottleSecs  int    `yaml:"rebirth_throttle_seconds"`
}

// StoreConfig is the relational metadata store connection.
type StoreConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	DB       string `yaml:"db"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Schema   string `yaml:"schema"`
	DBMode   string `yaml:"db_mode"` // mock | local
}

// CDCConfig is the change-capture listener surface.
type CDCConfig struct {
	Enabled              bool   `yaml:"enabled"`
	Slot                 string `yaml:"slot"`
	Publication          string `yaml:"publication"`
	ReplicationPlugin    string `yaml:"replication_plugin"`
	WindowSeconds        int    `yaml:"window_seconds"`
	FlushIntervalSeconds int    `yaml:"flush_interval_seconds"`
	BufferCap            int    `yaml:"buffer_cap"`
	IdleSleepSeconds     int    `yaml:"idle_sleep_seconds"`
	MaxBatchMessages     int    `yaml:"max_batch_messages"`
	CheckpointBackend    string `yaml:"checkpoint_backend"` // file | memory
	ResumePath           string `yaml:"resume_path"`
	ResumeFsync          bool   `yaml:"resume_fsync"`

	ReplicationHost     string `yaml:"replication_host"`
	ReplicationPort     int    `yaml:"replication_port"`
	ReplicationDB       string `yaml:"replication_db"`
	ReplicationUser     string `yaml:"replication_user"`
	ReplicationPassword string `yaml:"replication_password"`
	ReplicationSSLMode  string `yaml:"replication_sslmode"`
}

// CanaryConfig is the downstream historian writer surface.
type CanaryConfig struct {
	Enabled                    bool     `yaml:"enabled"`
	BaseURL                    string   `yaml:"base_url"`
	APIToken                   string   `yaml:"api_token"`
	ClientID                   string   `yaml:"client_id"`
	Historians                 []string `yaml:"historians"`
	RateLimitRPS               float64  `yaml:"rate_limit_rps"`
	BurstSize                  int      `yaml:"burst_size"`
	QueueCapacity              int      `yaml:"queue_capacity"`
	MaxBatchTags               int      `yaml:"max_batch_tags"`
	MaxPayloadBytes            int      `yaml:"max_payload_bytes"`
	RequestTimeoutSeconds      int      `yaml:"request_timeout_seconds"`
	RetryAttempts              int      `yaml:"retry_attempts"`
	RetryBaseDelaySeconds      float64  `yaml:"retry_base_delay_seconds"`
	RetryMaxDelaySeconds       float64  `yaml:"retry_max_delay_seconds"`
	CircuitConsecutiveFailures int      `yaml:"circuit_consecutive_failures"`
	CircuitResetSeconds        float64  `yaml:"circuit_reset_seconds"`
	SessionTimeoutMS           int      `yaml:"session_timeout_ms"`
	KeepaliveIdleSeconds       float64  `yaml:"keepalive_idle_seconds"`
	KeepaliveJitterSeconds     float64  `yaml:"keepalive_jitter_seconds"`
}

// JSONLConfig controls the optional ingest audit trail.
type JSONLConfig struct {
	WriteJSONL bool   `yaml:"write_jsonl"`
	Pattern    string `yaml:"pattern"`
}

// Settings is the flat, immutable configuration record for the whole
// service, loaded once at startup (flag -> env -> YAML, see Load).
type Settings struct {
	ListenAddr     string       `yaml:"listen"`
	LogFile        string       `yaml:"log_file"`
	LogLevel       string       `yaml:"log_level"`
	AliasCachePath string       `yaml:"alias_cache_path"`
	MQTT           MQTTConfig   `yaml:"mqtt"`
	Store          StoreConfig  `yaml:"store"`
	CDC            CDCConfig    `yaml:"cdc"`
	Canary         CanaryConfig `yaml:"canary"`
	JSONL          JSONLConfig  `yaml:"jsonl"`
}

// ApplyEnvOverrides mutates cfg in place from a fixed set of recognized
// environment variables. CLI flags, applied after this by the caller, take
// the highest precedence.
func ApplyEnvOverrides(cfg *Settings) {
	str := func(env string, dst *string) {
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}
	boolean := func(env string, dst *bool) {
		if v := os.Getenv(env); v != "" {
			*dst = v == "true"
		}
	}

	str("SYNC_LISTEN", &cfg.ListenAddr)
	str("SYNC_LOG_FILE", &cfg.LogFile)
	str("SYNC_LOG_LEVEL", &cfg.LogLevel)
	str("SYNC_ALIAS_CACHE_PATH", &cfg.AliasCachePath)

	str("SYNC_MQTT_BROKER", &cfg.MQTT.Broker)
	str("SYNC_MQTT_USERNAME", &cfg.MQTT.Username)
	str("SYNC_MQTT_PASSWORD", &cfg.MQTT.Password)
	str("SYNC_MQTT_CLIENT_ID", &cfg.MQTT.ClientID)
	boolean("SYNC_MQTT_TLS_INSECURE", &cfg.MQTT.TLSInsecure)

	str("SYNC_STORE_HOST", &cfg.Store.Host)
	str("SYNC_STORE_DB", &cfg.Store.DB)
	str("SYNC_STORE_USER", &cfg.Store.User)
	str("SYNC_STORE_PASSWORD", &cfg.Store.Password)
	str("SYNC_STORE_DB_MODE", &cfg.Store.DBMode)

	boolean("SYNC_CDC_ENABLED", &cfg.CDC.Enabled)
	str("SYNC_CDC_SLOT", &cfg.CDC.Slot)
	str("SYNC_CDC_REPLICATION_PLUGIN", &cfg.CDC.ReplicationPlugin)

	boolean("SYNC_CANARY_ENABLED", &cfg.Canary.Enabled)
	str("SYNC_CANARY_BASE_URL", &cfg.Canary.BaseURL)
	str("SYNC_CANARY_API_TOKEN", &cfg.Canary.APIToken)
}
