// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of lorawan-analyzer.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package broadcast fans out parsed packets to live-feed subscribers,
// applying a per-subscriber filter and maintaining the gateway/device
// metadata caches used to enrich and route them.
package broadcast

import (
	"sync"

	"github.com/chirpwatch/lorawan-analyzer/model"
)

// Subscriber is one live-feed connection. Sink should be a buffered
// channel owned by the transport layer (out of scope here); Hub never
// blocks on it.
type Subscriber struct {
	ID     string
	Filter Filter
	Sink   chan<- *model.LivePacket
}

// Hub is the subscriber set plus the gateway and device metadata
// caches. Add/remove is mutex-guarded; delivery iterates a snapshot
// copy so a slow subscriber can't hold up new subscriptions.
type Hub struct {
	mu          sync.Mutex
	subscribers map[string]*Subscriber

	caches *caches
}

// NewHub returns an empty Hub.
func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[string]*Subscriber),
		caches:      newCaches(),
	}
}

// Subscribe adds sub to the hub. A duplicate ID replaces the existing
// subscriber.
func (h *Hub) Subscribe(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscribers[sub.ID] = sub
}

// Unsubscribe removes a subscriber by id, if present.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subscribers, id)
}

// SubscriberCount reports the number of active subscribers, for
// instrumentation.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

func (h *Hub) snapshot() []*Subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*Subscriber, 0, len(h.subscribers))
	for _, sub := range h.subscribers {
		out = append(out, sub)
	}
	return out
}

// UpsertGateway refreshes the gateway metadata cache; the writer calls
// this on every gateway row upsert.
func (h *Hub) UpsertGateway(id string, name, alias, group *string) {
	h.caches.upsertGateway(id, name, alias, group)
}

// UpsertCsDevice refreshes the CS device metadata cache and its
// reverse DevAddr index.
func (h *Hub) UpsertCsDevice(devEUI string, devAddr *string, deviceName, applicationName string) {
	h.caches.upsertCsDevice(devEUI, devAddr, deviceName, applicationName)
}

// PublishPacket delivers a gateway-pipeline packet to every matching
// subscriber. Downlinks whose DevAddr maps to a known application
// device are additionally routed to chirpstack-mode subscribers, with
// identity filled from the device cache.
func (h *Hub) PublishPacket(pkt *model.ParsedPacket) {
	lp := pkt.ToLivePacket()
	if lp.GatewayName == nil {
		lp.GatewayName = h.caches.gatewayName(pkt.GatewayID)
	}
	gwText := h.caches.gatewayText(pkt.GatewayID)

	knownCsDevEUI, isKnownToCsDevice := "", false
	if pkt.DevAddr != nil {
		knownCsDevEUI, isKnownToCsDevice = h.caches.devEUIForDevAddr(*pkt.DevAddr)
	}

	for _, sub := range h.snapshot() {
		switch sub.Filter.SourceMode {
		case SourceChirpstack:
			if pkt.Type != model.PacketDownlink || !isKnownToCsDevice {
				continue
			}
			routed := *lp
			devEUI := knownCsDevEUI
			routed.DevEUI = &devEUI
			if meta, ok := h.caches.csDevice(knownCsDevEUI); ok && meta.DeviceName != "" {
				name := meta.DeviceName
				routed.DeviceName = &name
			}
			h.deliver(sub, &routed, gwText)
		default:
			h.deliver(sub, lp, gwText)
		}
	}
}

// PublishCsPacket delivers an application-bus packet to every matching
// chirpstack-mode subscriber.
func (h *Hub) PublishCsPacket(cs *model.CsPacket) {
	lp := cs.ToLivePacket()

	for _, sub := range h.snapshot() {
		if sub.Filter.SourceMode != SourceChirpstack {
			continue
		}
		h.deliver(sub, lp, nil)
	}
}

// PublishLive delivers an already-built LivePacket verbatim — used for
// application-bus events that have no persisted row of their own
// (txack, ack, command/down).
func (h *Hub) PublishLive(lp *model.LivePacket) {
	for _, sub := range h.snapshot() {
		if sub.Filter.SourceMode != SourceChirpstack {
			continue
		}
		h.deliver(sub, lp, nil)
	}
}

// deliver sends lp to sub if it passes the filter, dropping the
// subscriber entirely on a full buffer. Best-effort only: no retry, no
// backlog.
func (h *Hub) deliver(sub *Subscriber, lp *model.LivePacket, extraSearchText []string) {
	if !sub.Filter.Matches(lp, extraSearchText...) {
		return
	}
	select {
	case sub.Sink <- lp:
	default:
		h.Unsubscribe(sub.ID)
	}
}
