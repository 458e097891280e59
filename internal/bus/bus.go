// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of lorawan-analyzer.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package bus is the internal notification layer that tells the
// broadcaster's caches about gateway and device metadata changes as
// soon as the writer learns of them.
//
// It reuses the same nats.go client the rest of the ecosystem uses for
// external messaging, but here NATS is purely an internal transport:
// nothing about these subjects crosses the process boundary unless the
// operator points both publisher and subscriber at the same server, in
// which case multiple analyzer instances sharing a database can also
// share a live cache.
package bus

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/chirpwatch/lorawan-analyzer/pkg/log"
)

// Subjects used for internal notifications. Kept short since NATS
// subjects are matched by prefix elsewhere if ever needed.
const (
	SubjectGatewayUpsert  = "chirpwatch.gateway.upsert"
	SubjectCsDeviceUpsert = "chirpwatch.csdevice.upsert"
)

// Config configures the connection to the NATS server backing the bus.
type Config struct {
	Address       string
	Username      string
	Password      string
	CredsFilePath string
}

// Bus wraps a NATS connection with the typed publish/subscribe helpers
// the writer and broadcaster use to stay in sync.
type Bus struct {
	conn          *nats.Conn
	subscriptions []*nats.Subscription
	mu            sync.Mutex
}

// GatewayUpsertEvent is published whenever the writer creates or
// refreshes a gateway row.
type GatewayUpsertEvent struct {
	GatewayID string  `json:"gateway_id"`
	Name      *string `json:"name,omitempty"`
	Alias     *string `json:"alias,omitempty"`
	Group     *string `json:"group,omitempty"`
}

// CsDeviceUpsertEvent is published whenever the writer creates or
// refreshes an application-layer device row.
type CsDeviceUpsertEvent struct {
	DevEUI          string  `json:"dev_eui"`
	DevAddr         *string `json:"dev_addr,omitempty"`
	DeviceName      string  `json:"device_name,omitempty"`
	ApplicationName string  `json:"application_name,omitempty"`
}

// Connect dials the NATS server described by cfg. A Bus is optional:
// if cfg.Address is empty the writer falls back to updating a Hub
// directly in-process and Connect is never called.
func Connect(cfg Config) (*Bus, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("bus: address is required")
	}

	var opts []nats.Option
	if cfg.Username != "" && cfg.Password != "" {
		opts = append(opts, nats.UserInfo(cfg.Username, cfg.Password))
	}
	if cfg.CredsFilePath != "" {
		opts = append(opts, nats.UserCredentials(cfg.CredsFilePath))
	}

	opts = append(opts, nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
		if err != nil {
			log.Warnf("bus: disconnected: %v", err)
		}
	}))
	opts = append(opts, nats.ReconnectHandler(func(nc *nats.Conn) {
		log.Infof("bus: reconnected to %s", nc.ConnectedUrl())
	}))
	opts = append(opts, nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
		log.Errorf("bus: error: %v", err)
	}))

	nc, err := nats.Connect(cfg.Address, opts...)
	if err != nil {
		return nil, fmt.Errorf("bus: connect failed: %w", err)
	}

	log.Infof("bus: connected to %s", cfg.Address)
	return &Bus{conn: nc}, nil
}

// PublishGatewayUpsert announces a gateway metadata change.
func (b *Bus) PublishGatewayUpsert(evt GatewayUpsertEvent) error {
	return b.publish(SubjectGatewayUpsert, evt)
}

// PublishCsDeviceUpsert announces an application-layer device metadata
// change.
func (b *Bus) PublishCsDeviceUpsert(evt CsDeviceUpsertEvent) error {
	return b.publish(SubjectCsDeviceUpsert, evt)
}

func (b *Bus) publish(subject string, evt any) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("bus: marshal for '%s' failed: %w", subject, err)
	}
	if err := b.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("bus: publish to '%s' failed: %w", subject, err)
	}
	return nil
}

// SubscribeGatewayUpsert registers fn to run on every gateway upsert
// notification, decoding the JSON payload first.
func (b *Bus) SubscribeGatewayUpsert(fn func(GatewayUpsertEvent)) error {
	return b.subscribe(SubjectGatewayUpsert, func(data []byte) {
		var evt GatewayUpsertEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			log.Warnf("bus: malformed gateway upsert event: %v", err)
			return
		}
		fn(evt)
	})
}

// SubscribeCsDeviceUpsert registers fn to run on every application
// device upsert notification.
func (b *Bus) SubscribeCsDeviceUpsert(fn func(CsDeviceUpsertEvent)) error {
	return b.subscribe(SubjectCsDeviceUpsert, func(data []byte) {
		var evt CsDeviceUpsertEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			log.Warnf("bus: malformed cs device upsert event: %v", err)
			return
		}
		fn(evt)
	})
}

func (b *Bus) subscribe(subject string, handler func(data []byte)) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, err := b.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("bus: subscribe to '%s' failed: %w", subject, err)
	}
	b.subscriptions = append(b.subscriptions, sub)
	return nil
}

// Flush blocks until all buffered publishes have been sent.
func (b *Bus) Flush() error {
	return b.conn.Flush()
}

// Close unsubscribes everything and closes the connection.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			log.Warnf("bus: unsubscribe failed: %v", err)
		}
	}
	b.subscriptions = nil

	if b.conn != nil {
		b.conn.Close()
		log.Infof("bus: connection closed")
	}
}

// IsConnected reports whether the underlying connection is currently
// active.
func (b *Bus) IsConnected() bool {
	return b.conn != nil && b.conn.IsConnected()
}
