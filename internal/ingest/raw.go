// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of lorawan-analyzer.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package ingest subscribes to one or more MQTT brokers, classifies
// each inbound message by topic shape, and runs it through decode and
// enrichment. Two long-lived worker kinds live here: one Consumer
// goroutine per broker connection, and a single Pipeline goroutine
// that owns decoding, airtime, operator resolution and session
// tracking.
package ingest

// RawMessage is one inbound MQTT message, queued by a Consumer and
// consumed by the Pipeline.
type RawMessage struct {
	BrokerName string
	Topic      string
	Payload    []byte
	Format     string // "protobuf" or "json"; only meaningful for gateway topics
}
