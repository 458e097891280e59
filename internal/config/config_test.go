// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of lorawan-analyzer.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestInitDecodesMinimalConfig(t *testing.T) {
	path := writeTempConfig(t, `{
		"mqtt": {"server": "tcp://localhost:1883", "topic": "eu868/gateway/+/event/+", "format": "protobuf"},
		"postgres": {"url": "postgres://localhost/chirpwatch"},
		"api": {"bind": ":8090"}
	}`)

	Keys = Config{}
	require.NoError(t, Init(path))
	require.Equal(t, "tcp://localhost:1883", Keys.MQTT.Server)
	require.Equal(t, "postgres://localhost/chirpwatch", Keys.Postgres.URL)
	require.Equal(t, ":8090", Keys.API.Bind)
}

func TestInitRejectsMissingMQTTServer(t *testing.T) {
	path := writeTempConfig(t, `{"postgres": {"url": "postgres://localhost/chirpwatch"}}`)
	Keys = Config{}
	require.Error(t, Init(path))
}

func TestInitRejectsUnknownFields(t *testing.T) {
	path := writeTempConfig(t, `{
		"mqtt": {"server": "tcp://localhost:1883", "topic": "t"},
		"postgres": {"url": "postgres://localhost/chirpwatch"},
		"bogus_field": true
	}`)
	Keys = Config{}
	require.Error(t, Init(path))
}

func TestOperatorRuleConfigAcceptsStringPrefix(t *testing.T) {
	var rule OperatorRuleConfig
	require.NoError(t, json.Unmarshal([]byte(`{"prefix": "26000000/7", "name": "TTN"}`), &rule))
	require.Equal(t, []string{"26000000/7"}, rule.Prefix)
}

func TestOperatorRuleConfigAcceptsArrayPrefix(t *testing.T) {
	var rule OperatorRuleConfig
	require.NoError(t, json.Unmarshal([]byte(`{"prefix": ["26000000/7", "27000000/7"], "name": "TTN"}`), &rule))
	require.Equal(t, []string{"26000000/7", "27000000/7"}, rule.Prefix)
}

func TestOperatorRuleConfigColorOnlyEntry(t *testing.T) {
	var rule OperatorRuleConfig
	require.NoError(t, json.Unmarshal([]byte(`{"name": "Helium", "color": "#00ff00"}`), &rule))
	require.Empty(t, rule.Prefix)
	require.Equal(t, "#00ff00", *rule.Color)
}

func TestBrokersReturnsPrimaryFirst(t *testing.T) {
	cfg := Config{
		MQTT:        BrokerConfig{Server: "primary"},
		MQTTServers: []BrokerConfig{{Server: "secondary"}},
	}
	brokers := cfg.Brokers()
	require.Len(t, brokers, 2)
	require.Equal(t, "primary", brokers[0].Server)
	require.Equal(t, "secondary", brokers[1].Server)
}

func TestValidateRejectsBadFormatEnum(t *testing.T) {
	raw := []byte(`{
		"mqtt": {"server": "tcp://localhost:1883", "topic": "t", "format": "xml"},
		"postgres": {"url": "postgres://localhost/chirpwatch"}
	}`)
	require.Error(t, Validate(raw))
}
