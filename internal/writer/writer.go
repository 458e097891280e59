// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of lorawan-analyzer.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package writer is the batched persistence stage: two independent
// stream buffers (gateway packets, application packets) flushed on a
// size-or-interval trigger, plus the metadata upserts that keep the
// store's gateway/device rows current.
//
// A single goroutine per stream owns its buffer and the database
// round-trip, so a slow flush never blocks the pipeline beyond the
// channel's own backpressure.
package writer

import (
	"context"
	"time"

	"github.com/chirpwatch/lorawan-analyzer/model"
	"github.com/chirpwatch/lorawan-analyzer/pkg/log"
)

const (
	DefaultBatchSize     = 1000
	DefaultFlushInterval = 2 * time.Second
)

// Store is the persistence surface the writer needs. internal/store
// provides the Postgres/TimescaleDB-backed implementation; tests use a
// fake.
type Store interface {
	InsertPackets(ctx context.Context, rows []*model.ParsedPacket) error
	InsertCsPackets(ctx context.Context, rows []*model.CsPacket) error
	UpsertGateway(ctx context.Context, id string, name, alias, group *string, lat, lon *float64) error
	UpsertCsDevice(ctx context.Context, devEUI string, devAddr *string, deviceName, applicationID string, applicationName *string) error
}

// CacheNotifier is refreshed on every metadata upsert. *broadcast.Hub
// satisfies it directly for an in-process wiring; bus.Publisher
// satisfies it for a notification sent over the internal bus instead.
type CacheNotifier interface {
	UpsertGateway(id string, name, alias, group *string)
	UpsertCsDevice(devEUI string, devAddr *string, deviceName, applicationName string)
}

// FlushCounter records flush latency and retries, by stream name.
// Satisfied structurally by *metrics.Collector; left nil, the Writer
// just skips the observation.
type FlushCounter interface {
	ObserveFlush(stream string, took time.Duration)
	IncFlushRetry(stream string)
}

// Config controls the flush triggers of both stream buffers.
type Config struct {
	BatchSize     int
	FlushInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = DefaultFlushInterval
	}
	return c
}

// Writer owns the two stream channels and their flush workers.
type Writer struct {
	store    Store
	notifier CacheNotifier
	metrics  FlushCounter
	cfg      Config

	packetsIn   chan *model.ParsedPacket
	csPacketsIn chan *model.CsPacket

	done chan struct{}
}

// New builds a Writer. notifier may be nil if no cache needs refreshing
// (e.g. a write-only replica).
func New(store Store, notifier CacheNotifier, cfg Config) *Writer {
	cfg = cfg.withDefaults()
	return &Writer{
		store:       store,
		notifier:    notifier,
		cfg:         cfg,
		packetsIn:   make(chan *model.ParsedPacket, cfg.BatchSize),
		csPacketsIn: make(chan *model.CsPacket, cfg.BatchSize),
		done:        make(chan struct{}),
	}
}

// WithMetrics attaches a FlushCounter, returning w for chaining.
func (w *Writer) WithMetrics(m FlushCounter) *Writer {
	w.metrics = m
	return w
}

// Packets returns the channel the pipeline should send ParsedPacket
// rows to.
func (w *Writer) Packets() chan<- *model.ParsedPacket { return w.packetsIn }

// CsPackets returns the channel the pipeline should send CsPacket rows
// to.
func (w *Writer) CsPackets() chan<- *model.CsPacket { return w.csPacketsIn }

// Start launches the two flush workers. Call Close to drain and stop
// them.
func (w *Writer) Start() {
	go w.runPackets()
	go w.runCsPackets()
}

// Close stops accepting new rows and blocks until both buffers have
// been flushed.
func (w *Writer) Close() {
	close(w.packetsIn)
	close(w.csPacketsIn)
	<-w.done
	<-w.done
}

func (w *Writer) runPackets() {
	defer func() { w.done <- struct{}{} }()

	buf := make([]*model.ParsedPacket, 0, w.cfg.BatchSize)
	var timerC <-chan time.Time

	for {
		select {
		case pkt, ok := <-w.packetsIn:
			if !ok {
				w.flushPackets(buf)
				return
			}
			w.noteUpserts(pkt)
			buf = append(buf, pkt)
			if timerC == nil {
				timerC = time.After(w.cfg.FlushInterval)
			}
			if len(buf) >= w.cfg.BatchSize {
				buf = w.flushPackets(buf)
				timerC = nil
				if len(buf) > 0 {
					timerC = time.After(w.cfg.FlushInterval)
				}
			}
		case <-timerC:
			buf = w.flushPackets(buf)
			timerC = nil
			if len(buf) > 0 {
				timerC = time.After(w.cfg.FlushInterval)
			}
		}
	}
}

func (w *Writer) runCsPackets() {
	defer func() { w.done <- struct{}{} }()

	buf := make([]*model.CsPacket, 0, w.cfg.BatchSize)
	var timerC <-chan time.Time

	for {
		select {
		case cs, ok := <-w.csPacketsIn:
			if !ok {
				w.flushCsPackets(buf)
				return
			}
			w.noteCsUpsert(cs)
			buf = append(buf, cs)
			if timerC == nil {
				timerC = time.After(w.cfg.FlushInterval)
			}
			if len(buf) >= w.cfg.BatchSize {
				buf = w.flushCsPackets(buf)
				timerC = nil
				if len(buf) > 0 {
					timerC = time.After(w.cfg.FlushInterval)
				}
			}
		case <-timerC:
			buf = w.flushCsPackets(buf)
			timerC = nil
			if len(buf) > 0 {
				timerC = time.After(w.cfg.FlushInterval)
			}
		}
	}
}

// flushPackets inserts buf and returns the slice to keep buffering
// from. On failure the whole batch is kept (re-queued at the head) so
// the next flush retries it ahead of anything appended meanwhile.
func (w *Writer) flushPackets(buf []*model.ParsedPacket) []*model.ParsedPacket {
	if len(buf) == 0 {
		return buf
	}
	start := time.Now()
	err := w.store.InsertPackets(context.Background(), buf)
	if w.metrics != nil {
		w.metrics.ObserveFlush("packets", time.Since(start))
	}
	if err != nil {
		log.Warnf("writer: insert packets failed, re-queuing %d rows: %v", len(buf), err)
		if w.metrics != nil {
			w.metrics.IncFlushRetry("packets")
		}
		return buf
	}
	return buf[:0]
}

func (w *Writer) flushCsPackets(buf []*model.CsPacket) []*model.CsPacket {
	if len(buf) == 0 {
		return buf
	}
	start := time.Now()
	err := w.store.InsertCsPackets(context.Background(), buf)
	if w.metrics != nil {
		w.metrics.ObserveFlush("cs_packets", time.Since(start))
	}
	if err != nil {
		log.Warnf("writer: insert cs packets failed, re-queuing %d rows: %v", len(buf), err)
		if w.metrics != nil {
			w.metrics.IncFlushRetry("cs_packets")
		}
		return buf
	}
	return buf[:0]
}

// noteUpserts performs the gateway metadata upsert alongside the row
// insert; device upserts come from the application bus. Upserts are
// not batched: they're single-row ON CONFLICT statements, and the
// cache refresh they trigger is latency sensitive.
//
// For relayed packets the reported name/location belongs to the border
// gateway (the one that actually heard the frame), which gets its own
// row; the relay id is upserted bare so it exists as a gateway too.
func (w *Writer) noteUpserts(pkt *model.ParsedPacket) {
	metaID := pkt.GatewayID
	if pkt.BorderGatewayID != nil {
		metaID = *pkt.BorderGatewayID
		w.upsertGateway(pkt.GatewayID, nil, nil, nil)
	}
	w.upsertGateway(metaID, pkt.GatewayName, pkt.GatewayLat, pkt.GatewayLon)
}

func (w *Writer) upsertGateway(id string, name *string, lat, lon *float64) {
	if err := w.store.UpsertGateway(context.Background(), id, name, nil, nil, lat, lon); err != nil {
		log.Warnf("writer: upsert gateway %q failed: %v", id, err)
		return
	}
	if w.notifier != nil {
		w.notifier.UpsertGateway(id, name, nil, nil)
	}
}

func (w *Writer) noteCsUpsert(cs *model.CsPacket) {
	if err := w.store.UpsertCsDevice(context.Background(), cs.DevEUI, cs.DevAddr, cs.DeviceName, cs.ApplicationID, cs.ApplicationName); err != nil {
		log.Warnf("writer: upsert cs device %q failed: %v", cs.DevEUI, err)
		return
	}
	if w.notifier != nil {
		appName := cs.ApplicationID
		if cs.ApplicationName != nil && *cs.ApplicationName != "" {
			appName = *cs.ApplicationName
		}
		w.notifier.UpsertCsDevice(cs.DevEUI, cs.DevAddr, cs.DeviceName, appName)
	}
}
