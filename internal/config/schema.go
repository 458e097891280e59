// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of lorawan-analyzer.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package config

// ConfigSchema is the JSON Schema the config file is validated against
// before decoding.
const ConfigSchema = `{
  "type": "object",
  "properties": {
    "mqtt": {
      "type": "object",
      "properties": {
        "server": {"type": "string"},
        "username": {"type": "string"},
        "password": {"type": "string"},
        "topic": {"type": "string"},
        "format": {"type": "string", "enum": ["protobuf", "json"]}
      },
      "required": ["server"]
    },
    "mqtt_servers": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "server": {"type": "string"},
          "username": {"type": "string"},
          "password": {"type": "string"},
          "topic": {"type": "string"},
          "format": {"type": "string", "enum": ["protobuf", "json"]}
        },
        "required": ["server"]
      }
    },
    "postgres": {
      "type": "object",
      "properties": {
        "url": {"type": "string"}
      },
      "required": ["url"]
    },
    "api": {
      "type": "object",
      "properties": {
        "bind": {"type": "string"}
      }
    },
    "metrics": {
      "type": "object",
      "properties": {
        "bind": {"type": "string"}
      }
    },
    "nats": {
      "type": "object",
      "properties": {
        "address": {"type": "string"},
        "username": {"type": "string"},
        "password": {"type": "string"},
        "creds_file_path": {"type": "string"}
      }
    },
    "coldstore": {
      "type": "object",
      "properties": {
        "enabled": {"type": "boolean"},
        "endpoint": {"type": "string"},
        "bucket": {"type": "string"},
        "region": {"type": "string"},
        "access_key": {"type": "string"},
        "secret_key": {"type": "string"},
        "use_path_style": {"type": "boolean"},
        "prefix": {"type": "string"}
      }
    },
    "operators": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "prefix": {
            "oneOf": [
              {"type": "string"},
              {"type": "array", "items": {"type": "string"}}
            ]
          },
          "name": {"type": "string"},
          "priority": {"type": "integer"},
          "known_devices": {"type": "array", "items": {"type": "string"}},
          "color": {"type": "string"}
        },
        "required": ["name"]
      }
    },
    "hide_rules": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "type": {"type": "string", "enum": ["dev_addr", "join_eui"]},
          "prefix": {"type": "string"},
          "description": {"type": "string"}
        },
        "required": ["type", "prefix"]
      }
    }
  },
  "required": ["mqtt", "postgres"]
}`
