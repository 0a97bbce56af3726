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

// Package aliascache maps Sparkplug alias integers back to metric names,
// keyed by (group, edge, device-or-null), with device-scoped entries
// overriding node-scoped ones at lookup time. It is owned by a single
// ingestor goroutine and persisted to disk only at shutdown, so its
// locking exists to guard the rare concurrent reader, not contention
// between writers (same design as the teacher's agent tracker).
package aliascache

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	jsoniter "github.com/json-iterator/go"

	"github.com/aaronlmathis/uns-metadata-sync/internal/logging"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// AliasEntry is what an alias integer resolves to.
type AliasEntry struct {
	Name       string         `json:"name"`
	Datatype   string         `json:"datatype"`
	Properties map[string]any `json:"properties,omitempty"`
}

type scopeKey struct {
	Group, Edge, Device string
}

func (k scopeKey) serialize() string {
	return k.Group + "|" + k.Edge + "|" + k.Device
}

// Cache is the alias table. Zero value is not usable; use New.
type Cache struct {
	mu    sync.RWMutex
	table map[scopeKey]map[int32]AliasEntry
}

// New returns an empty, instance-owned alias cache.
func New() *Cache {
	return &Cache{table: make(map[scopeKey]map[int32]AliasEntry)}
}

// Put records alias -> entry for the scope (group, edge, device). device
// may be "" for a node-scoped (NBIRTH) binding.
func (c *Cache) Put(group, edge, device string, alias int32, entry AliasEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := scopeKey{group, edge, device}
	scope, ok := c.table[key]
	if !ok {
		scope = make(map[int32]AliasEntry)
		c.table[key] = scope
	}
	scope[alias] = entry
}

// Resolve looks up alias under the device scope first, then the
// node (device="") scope, matching the spec's fallback order.
func (c *Cache) Resolve(group, edge, device string, alias int32) (AliasEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if device != "" {
		if scope, ok := c.table[scopeKey{group, edge, device}]; ok {
			if e, ok := scope[alias]; ok {
				return e, true
			}
		}
	}
	if scope, ok := c.table[scopeKey{group, edge, ""}]; ok {
		if e, ok := scope[alias]; ok {
			return e, true
		}
	}
	return AliasEntry{}, false
}

// Len reports the total number of alias bindings across all scopes, for
// status reporting.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := 0
	for _, scope := range c.table {
		n += len(scope)
	}
	return n
}

// Save serializes the cache to path as a newline-terminated JSON object
// keyed by "<group>|<edge>|<device-or-empty>" -> {alias-as-string: entry}.
func (c *Cache) Save(path string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]map[string]AliasEntry, len(c.table))
	for key, scope := range c.table {
		byStr := make(map[string]AliasEntry, len(scope))
		for alias, entry := range scope {
			byStr[strconv.FormatInt(int64(alias), 10)] = entry
		}
		out[key.serialize()] = byStr
	}

	data, err := jsonAPI.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0644)
}

// Load restores a cache previously written by Save. A missing file is not
// an error: the cache simply starts empty, matching first-run behavior.
func Load(path string) (*Cache, error) {
	c := New()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return nil, err
	}

	var raw map[string]map[string]AliasEntry
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	for serialized, byStr := range raw {
		key, err := parseScopeKey(serialized)
		if err != nil {
			logging.Warn("aliascache: skipping malformed scope key %q: %v", serialized, err)
			continue
		}
		scope := make(map[int32]AliasEntry, len(byStr))
		for aliasStr, entry := range byStr {
			alias, err := strconv.ParseInt(aliasStr, 10, 32)
			if err != nil {
				logging.Warn("aliascache: skipping malformed alias %q under %q: %v", aliasStr, serialized, err)
				continue
			}
			scope[int32(alias)] = entry
		}
		c.table[key] = scope
	}
	return c, nil
}

func parseScopeKey(serialized string) (scopeKey, error) {
	parts := strings.Split(serialized, "|")
	if len(parts) != 3 {
		return scopeKey{}, fmt.Errorf("expected 3 '|'-separated fields, got %d", len(parts))
	}
	return scopeKey{Group: parts[0], Edge: parts[1], Device: parts[2]}, nil
}
