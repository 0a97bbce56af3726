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
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/aaronlmathis/uns-metadata-sync/internal/aliascache"
	"github.com/aaronlmathis/uns-metadata-sync/internal/config"
	"github.com/aaronlmathis/uns-metadata-sync/internal/logging"
	"github.com/aaronlmathis/uns-metadata-sync/internal/model"
	"github.com/aaronlmathis/uns-metadata-sync/internal/pathnorm"
	"github.com/aaronlmathis/uns-metadata-sync/internal/repository"
)

// well-known metric names the ingestor reads required device dimensions
// from. Any frame missing one of these resolves to an empty dimension and
// is refused.
const (
	metricCountry      = "country"
	metricBusinessUnit = "business_unit"
	metricPlant        = "plant"
)

type rebirthKey struct {
	Group, Edge, Device string
}

// Ingestor subscribes to Sparkplug topics, maintains the alias cache, and
// orchestrates device/metric/property persistence for each decoded frame.
// It is the only writer of the alias cache; other goroutines only read it
// (the runtime's Status calls Len) or Save it after Stop.
type Ingestor struct {
	cfg  config.MQTTConfig
	repo repository.MetadataRepository
	norm *pathnorm.Normalizer

	client  mqtt.Client
	aliases *aliascache.Cache

	rebirthMu       sync.Mutex
	rebirthLast     map[rebirthKey]time.Time
	rebirthThrottle time.Duration

	jsonl *auditWriter
}

// New builds an Ingestor. aliases may be a freshly-loaded cache (see
// aliascache.Load) so alias bindings survive a restart.
func New(cfg config.MQTTConfig, jsonlCfg config.JSONLConfig, repo repository.MetadataRepository, aliases *aliascache.Cache) *Ingestor {
	var aw *auditWriter
	if jsonlCfg.WriteJSONL {
		aw = newAuditWriter(jsonlCfg.Pattern)
	}
	return &Ingestor{
		cfg:             cfg,
		repo:            repo,
		norm:            pathnorm.NewNormalizer(),
		aliases:         aliases,
		rebirthLast:     make(map[rebirthKey]time.Time),
		rebirthThrottle: time.Duration(cfg.RebirthThrottleSecs) * time.Second,
		jsonl:           aw,
	}
}

// Start connects to the broker and subscribes to the three configured
// topic patterns.
func (in *Ingestor) Start() error {
	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", in.cfg.Broker, in.cfg.Port)).
		SetClientID(in.cfg.ClientID).
		SetUsername(in.cfg.Username).
		SetPassword(in.cfg.Password).
		SetAutoReconnect(true)

	if in.cfg.TLSInsecure {
		opts.SetTLSConfig(&tls.Config{InsecureSkipVerify: true})
	}

	opts.SetDefaultPublishHandler(in.onMessage)
	in.client = mqtt.NewClient(opts)

	if token := in.client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}

	for _, topic := range []string{in.cfg.TopicAll, in.cfg.TopicNBirthAll, in.cfg.TopicDBirthAll} {
		if topic == "" {
			continue
		}
		if token := in.client.Subscribe(topic, 1, in.onMessage); token.Wait() && token.Error() != nil {
			return token.Error()
		}
	}
	return nil
}

// Stop disconnects from the broker. The caller is responsible for
// persisting the alias cache afterward.
func (in *Ingestor) Stop() {
	if in.client != nil && in.client.IsConnected() {
		in.client.Disconnect(250)
	}
}

func (in *Ingestor) onMessage(_ mqtt.Client, msg mqtt.Message) {
	if err := in.HandleMessage(msg.Topic(), msg.Payload()); err != nil {
		logging.Warn("sparkplug: handling %s: %v", msg.Topic(), err)
	}
}

// HandleMessage decodes one raw MQTT message and orchestrates alias
// maintenance/resolution and persistence. It never returns an error for
// recoverable per-frame problems (those are logged and the frame is
// skipped); it returns an error only for unrecognized topics or payload
// decode failures, both of which abort this frame but not the ingestor.
func (in *Ingestor) HandleMessage(topic string, raw []byte) error {
	t, err := ParseTopic(topic)
	if err != nil {
		return err
	}

	payload, err := DecodePayload(raw)
	if err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	if in.jsonl != nil {
		in.jsonl.Write(t, payload)
	}

	if t.IsBirth() {
		in.learnAliases(t, payload)
	}
	in.resolveAliases(t, &payload)

	in.persist(t, payload)
	return nil
}

// learnAliases records alias -> {name, datatype, properties} bindings from
// a birth frame's metrics.
func (in *Ingestor) learnAliases(t Topic, payload RawPayload) {
	for _, m := range payload.Metrics {
		if !m.HasAlias || m.Alias == 0 || m.Name == "" {
			continue
		}
		in.aliases.Put(t.Group, t.Edge, t.Device, int32(m.Alias), aliascache.AliasEntry{
			Name:       m.Name,
			Datatype:   datatypeName(m.Datatype),
			Properties: m.Properties,
		})
	}
}

// resolveAliases fills in missing names for alias-only metrics, requesting
// a throttled rebirth on unresolved lookups.
func (in *Ingestor) resolveAliases(t Topic, payload *RawPayload) {
	unresolved := false
	for i := range payload.Metrics {
		m := &payload.Metrics[i]
		if m.Name != "" || !m.HasAlias {
			continue
		}
		if entry, ok := in.aliases.Resolve(t.Group, t.Edge, t.Device, int32(m.Alias)); ok {
			m.Name = entry.Name
			if !m.HasDatatype && entry.Datatype != "" {
				m.HasDatatype = true
			}
		} else {
			m.Name = fmt.Sprintf("alias:%d", m.Alias)
			unresolved = true
		}
	}
	if unresolved {
		in.maybeRequestRebirth(t)
	}
}

func (in *Ingestor) maybeRequestRebirth(t Topic) {
	if !in.cfg.AutoRequestRebirth || in.client == nil {
		return
	}

	key := rebirthKey{t.Group, t.Edge, t.Device}
	in.rebirthMu.Lock()
	last, seen := in.rebirthLast[key]
	now := time.Now()
	if seen && now.Sub(last) < in.rebirthThrottle {
		in.rebirthMu.Unlock()
		return
	}
	in.rebirthLast[key] = now
	in.rebirthMu.Unlock()

	topic := RebirthTopic(t.Group, t.Edge)
	in.client.Publish(topic, 1, false, []byte{})
}

// persist extracts the required device dimensions, skips metrics missing a
// datatype, and writes device -> bulk metric -> bulk property as three
// repository calls, each committed in its own transaction; a failure in a
// later call does not roll back the earlier ones.
func (in *Ingestor) persist(t Topic, payload RawPayload) {
	country, businessUnit, plant := extractDimensions(payload.Metrics)
	if country == "" || businessUnit == "" || plant == "" {
		logging.Warn("sparkplug: refusing to persist %s/%s/%s: missing required dimension (country=%q business_unit=%q plant=%q)",
			t.Group, t.Edge, t.Device, country, businessUnit, plant)
		return
	}

	devicePath, err := pathnorm.NormalizeDevicePath(t.Group, t.Edge, t.Device)
	if err != nil {
		logging.Warn("sparkplug: invalid device path for %s/%s/%s: %v", t.Group, t.Edge, t.Device, err)
		return
	}

	device, _, err := in.repo.UpsertDevice(model.Device{
		GroupID:      t.Group,
		Country:      country,
		BusinessUnit: businessUnit,
		Plant:        plant,
		Edge:         t.Edge,
		DeviceName:   t.Device,
		UNSPath:      devicePath,
	})
	if err != nil {
		logging.Error("sparkplug: upsert device: %v", err)
		return
	}

	var metrics []model.Metric
	type propJob struct {
		name  string
		value model.PropertyValue
	}
	byMetric := map[string][]propJob{}

	for _, m := range payload.Metrics {
		if m.Name == metricCountry || m.Name == metricBusinessUnit || m.Name == metricPlant {
			continue
		}
		if !m.HasDatatype {
			logging.Debug("sparkplug: skipping metric %q: no datatype", m.Name)
			continue
		}

		metricPath, err := pathnorm.NormalizeMetricPath(t.Group, t.Edge, t.Device, m.Name)
		if err != nil {
			logging.Warn("sparkplug: invalid metric path for %q: %v", m.Name, err)
			continue
		}
		tagID, err := in.norm.EncodeTagID(metricPath, false)
		if err != nil {
			logging.Warn("sparkplug: invalid tag id for %q: %v", metricPath, err)
			continue
		}

		metrics = append(metrics, model.Metric{
			DeviceID: device.DeviceID,
			Name:     m.Name,
			UNSPath:  metricPath,
			Datatype: datatypeName(m.Datatype),
			CanaryID: tagID,
		})

		for key, val := range m.Properties {
			pv, ok := toPropertyValue(val)
			if !ok {
				continue
			}
			byMetric[metricPath] = append(byMetric[metricPath], propJob{name: key, value: pv})
		}
	}

	if len(metrics) == 0 {
		return
	}

	idsByName, err := in.repo.UpsertMetricsBulk(metrics)
	if err != nil {
		logging.Error("sparkplug: bulk upsert metrics: %v", err)
		return
	}

	var props []model.MetricProperty
	pathToName := make(map[string]string, len(metrics))
	for _, m := range metrics {
		pathToName[m.UNSPath] = m.Name
	}
	for metricPath, jobs := range byMetric {
		name := pathToName[metricPath]
		metricID, ok := idsByName[name]
		if !ok {
			continue
		}
		for _, j := range jobs {
			props = append(props, model.MetricProperty{MetricID: metricID, Key: j.name, Value: j.value})
		}
	}
	if len(props) > 0 {
		if err := in.repo.UpsertMetricPropertiesBulk(props); err != nil {
			logging.Error("sparkplug: bulk upsert properties: %v", err)
		}
	}
}

func extractDimensions(metrics []RawMetric) (country, businessUnit, plant string) {
	for _, m := range metrics {
		switch m.Name {
		case metricCountry:
			country = m.StringValue
		case metricBusinessUnit:
			businessUnit = m.StringValue
		case metricPlant:
			plant = m.StringValue
		}
	}
	return
}

func toPropertyValue(v any) (model.PropertyValue, bool) {
	switch t := v.(type) {
	case int32:
		return model.PropertyValue{Type: model.PropertyInt, ValueInt: t}, true
	case int64:
		return model.PropertyValue{Type: model.PropertyLong, ValueLong: t}, true
	case float32:
		return model.PropertyValue{Type: model.PropertyFloat, ValueFloat: t}, true
	case float64:
		return model.PropertyValue{Type: model.PropertyDouble, ValueDouble: t}, true
	case bool:
		return model.PropertyValue{Type: model.PropertyBoolean, ValueBool: t}, true
	case string:
		return model.PropertyValue{Type: model.PropertyString, ValueString: t}, true
	default:
		return model.PropertyValue{}, false
	}
}

func datatypeName(dt uint32) string {
	switch dt {
	case DTInt8:
		return "Int8"
	case DTInt16:
		return "Int16"
	case DTInt32:
		return "Int32"
	case DTInt64:
		return "Int64"
	case DTUInt8:
		return "UInt8"
	case DTUInt16:
		return "UInt16"
	case DTUInt32:
		return "UInt32"
	case DTUInt64:
		return "UInt64"
	case DTFloat:
		return "Float"
	case DTDouble:
		return "Double"
	case DTBoolean:
		return "Boolean"
	case DTString:
		return "String"
	case DTText:
		return "Text"
	default:
		return "Unknown"
	}
}
