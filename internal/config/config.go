// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of lorawan-analyzer.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config decodes and validates the daemon's configuration
// file: the MQTT brokers, the Postgres connection string, the API bind
// address, custom operator rules, and hide rules.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
)

// BrokerConfig is one broker entry of the config file; main copies its
// fields into an internal/ingest.BrokerConfig.
type BrokerConfig struct {
	Server   string `json:"server"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Topic    string `json:"topic"`
	Format   string `json:"format"` // "protobuf" or "json"
}

// PostgresConfig holds the store connection string.
type PostgresConfig struct {
	URL string `json:"url"`
}

// APIConfig holds the external HTTP/WS layer's bind address. Behavior
// of that layer is out of scope; only the wiring value is consumed
// here.
type APIConfig struct {
	Bind string `json:"bind"`
}

// MetricsConfig holds the bind address for the internal Prometheus
// endpoint. Defaults to ":9100" when left empty (see cmd/lorawan-analyzer).
type MetricsConfig struct {
	Bind string `json:"bind,omitempty"`
}

// OperatorRuleConfig is one custom operator entry. Prefix may be a
// single string or an array of strings in the JSON source (handled by
// UnmarshalJSON below).
type OperatorRuleConfig struct {
	Prefix       []string `json:"-"`
	Name         string   `json:"name"`
	Priority     int      `json:"priority,omitempty"`
	KnownDevices []string `json:"known_devices,omitempty"`
	Color        *string  `json:"color,omitempty"`
}

type operatorRuleConfigJSON struct {
	Prefix       json.RawMessage `json:"prefix,omitempty"`
	Name         string          `json:"name"`
	Priority     int             `json:"priority,omitempty"`
	KnownDevices []string        `json:"known_devices,omitempty"`
	Color        *string         `json:"color,omitempty"`
}

// UnmarshalJSON accepts prefix as either a bare string or an array of
// strings.
func (o *OperatorRuleConfig) UnmarshalJSON(data []byte) error {
	var raw operatorRuleConfigJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	o.Name = raw.Name
	o.Priority = raw.Priority
	o.KnownDevices = raw.KnownDevices
	o.Color = raw.Color

	if len(raw.Prefix) == 0 {
		return nil
	}

	var single string
	if err := json.Unmarshal(raw.Prefix, &single); err == nil {
		o.Prefix = []string{single}
		return nil
	}

	var many []string
	if err := json.Unmarshal(raw.Prefix, &many); err != nil {
		return fmt.Errorf("config: operator %q: prefix must be a string or array of strings: %w", raw.Name, err)
	}
	o.Prefix = many
	return nil
}

// HideRuleConfig is one suppression rule consumed by readers (not
// enforced by the pipeline itself).
type HideRuleConfig struct {
	Type        string `json:"type"` // "dev_addr" or "join_eui"
	Prefix      string `json:"prefix"`
	Description string `json:"description,omitempty"`
}

// BusConfig configures the internal NATS-backed cache-invalidation
// bus (internal/bus). Left unset, the writer notifies the broadcaster
// in-process instead of over NATS.
type BusConfig struct {
	Address       string `json:"address,omitempty"`
	Username      string `json:"username,omitempty"`
	Password      string `json:"password,omitempty"`
	CredsFilePath string `json:"creds_file_path,omitempty"`
}

// ColdstoreConfig configures the optional S3 export of rollup rows
// before retention drops them (internal/coldstore). Disabled unless
// Enabled is true.
type ColdstoreConfig struct {
	Enabled      bool   `json:"enabled,omitempty"`
	Endpoint     string `json:"endpoint,omitempty"`
	Bucket       string `json:"bucket,omitempty"`
	Region       string `json:"region,omitempty"`
	AccessKey    string `json:"access_key,omitempty"`
	SecretKey    string `json:"secret_key,omitempty"`
	UsePathStyle bool   `json:"use_path_style,omitempty"`
	Prefix       string `json:"prefix,omitempty"`
}

// Config is the full decoded configuration surface.
type Config struct {
	MQTT        BrokerConfig         `json:"mqtt"`
	MQTTServers []BrokerConfig       `json:"mqtt_servers,omitempty"`
	Postgres    PostgresConfig       `json:"postgres"`
	API         APIConfig            `json:"api"`
	Metrics     MetricsConfig        `json:"metrics,omitempty"`
	Bus         BusConfig            `json:"nats,omitempty"`
	Coldstore   ColdstoreConfig      `json:"coldstore,omitempty"`
	Operators   []OperatorRuleConfig `json:"operators,omitempty"`
	HideRules   []HideRuleConfig     `json:"hide_rules,omitempty"`
}

// Keys holds the process-wide configuration once Init has run.
var Keys Config

// Init reads, schema-validates, and decodes the config file at path
// into Keys.
func Init(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %q: %w", path, err)
	}

	if err := Validate(raw); err != nil {
		return fmt.Errorf("config: validate %q: %w", path, err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&Keys); err != nil {
		return fmt.Errorf("config: decode %q: %w", path, err)
	}

	if Keys.MQTT.Server == "" {
		return fmt.Errorf("config: mqtt.server is required")
	}
	if Keys.Postgres.URL == "" {
		return fmt.Errorf("config: postgres.url is required")
	}

	return nil
}

// Brokers returns every configured broker, primary first.
func (c Config) Brokers() []BrokerConfig {
	return append([]BrokerConfig{c.MQTT}, c.MQTTServers...)
}
