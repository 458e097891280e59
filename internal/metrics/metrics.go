// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of lorawan-analyzer.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package metrics is the Prometheus instrumentation surface for the
// analyzer: ingest rate, decode errors, broadcaster subscriber/drop
// counts, and writer flush latency/retries.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns every metric the analyzer exposes, registered against
// its own Registry rather than the global default so tests can create
// one per case without collisions.
type Collector struct {
	IngestedMessages *prometheus.CounterVec
	DecodeErrors     *prometheus.CounterVec
	ParsedPackets    *prometheus.CounterVec
	Subscribers      prometheus.Gauge
	SubscriberDrops  prometheus.Counter
	FlushLatency     *prometheus.HistogramVec
	FlushRetries     *prometheus.CounterVec
	SessionCount     prometheus.Gauge
}

// NewCollector builds and registers every metric against reg.
func NewCollector(reg *prometheus.Registry) *Collector {
	c := &Collector{
		IngestedMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chirpwatch",
			Name:      "ingested_messages_total",
			Help:      "MQTT messages received, by broker.",
		}, []string{"broker"}),
		DecodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chirpwatch",
			Name:      "decode_errors_total",
			Help:      "Messages that failed to decode, by topic kind.",
		}, []string{"kind"}),
		ParsedPackets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chirpwatch",
			Name:      "parsed_packets_total",
			Help:      "Packets successfully parsed, by packet type.",
		}, []string{"type"}),
		Subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chirpwatch",
			Name:      "broadcast_subscribers",
			Help:      "Currently connected live-feed subscribers.",
		}),
		SubscriberDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chirpwatch",
			Name:      "broadcast_subscriber_drops_total",
			Help:      "Subscribers dropped for a full send buffer.",
		}),
		FlushLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "chirpwatch",
			Name:      "writer_flush_seconds",
			Help:      "Writer flush round-trip latency, by stream.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stream"}),
		FlushRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chirpwatch",
			Name:      "writer_flush_retries_total",
			Help:      "Flushes re-queued after a failed insert, by stream.",
		}, []string{"stream"}),
		SessionCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chirpwatch",
			Name:      "sessions_active",
			Help:      "Device sessions currently tracked in memory.",
		}),
	}

	reg.MustRegister(
		c.IngestedMessages, c.DecodeErrors, c.ParsedPackets,
		c.Subscribers, c.SubscriberDrops, c.FlushLatency, c.FlushRetries,
		c.SessionCount,
	)
	return c
}

// ObserveFlush records one writer flush's latency.
func (c *Collector) ObserveFlush(stream string, took time.Duration) {
	c.FlushLatency.WithLabelValues(stream).Observe(took.Seconds())
}

// IncIngested counts one inbound MQTT message from broker.
func (c *Collector) IncIngested(broker string) {
	c.IngestedMessages.WithLabelValues(broker).Inc()
}

// IncDecodeError counts one message that failed to decode, by topic
// kind (gateway frame, gateway ack, application uplink, ...).
func (c *Collector) IncDecodeError(kind string) {
	c.DecodeErrors.WithLabelValues(kind).Inc()
}

// IncParsedPacket counts one successfully parsed packet, by type.
func (c *Collector) IncParsedPacket(packetType string) {
	c.ParsedPackets.WithLabelValues(packetType).Inc()
}

// IncFlushRetry counts one re-queued writer flush, by stream.
func (c *Collector) IncFlushRetry(stream string) {
	c.FlushRetries.WithLabelValues(stream).Inc()
}

// Handler serves reg's metrics in the Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
