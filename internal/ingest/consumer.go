// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of lorawan-analyzer.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package ingest

import (
	"fmt"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"

	"github.com/chirpwatch/lorawan-analyzer/pkg/log"
)

const reconnectBackoff = 5 * time.Second

// BrokerConfig describes one MQTT broker connection.
type BrokerConfig struct {
	Name     string
	Server   string
	Username string
	Password string
	Topic    string
	Format   string // "protobuf" or "json"
}

// IngestCounter receives per-broker ingest counts. Satisfied
// structurally by *metrics.Collector; left nil, Consumer just skips
// the count.
type IngestCounter interface {
	IncIngested(broker string)
}

// Consumer owns a single broker connection. Each Consumer is its own
// MQTT reader worker: it dequeues messages from the paho client and
// pushes them into the shared fan-out channel, in arrival order, until
// told to stop.
type Consumer struct {
	cfg     BrokerConfig
	client  MQTT.Client
	out     chan<- RawMessage
	Metrics IngestCounter
}

// NewConsumer builds a Consumer for cfg. The connection is not
// established until Start is called. An empty topic subscribes to
// everything; narrowing it is a deployment concern.
func NewConsumer(cfg BrokerConfig, out chan<- RawMessage) *Consumer {
	if cfg.Topic == "" {
		cfg.Topic = "#"
	}
	return &Consumer{cfg: cfg, out: out}
}

// Start connects to the broker and subscribes to cfg.Topic with QoS 0.
// Reconnection is automatic with a fixed backoff; Start returns once
// the initial connection attempt completes.
func (c *Consumer) Start() error {
	opts := MQTT.NewClientOptions()
	opts.AddBroker(c.cfg.Server)
	opts.SetUsername(c.cfg.Username)
	opts.SetPassword(c.cfg.Password)
	opts.SetClientID(fmt.Sprintf("lorawan-analyzer-%s", c.cfg.Name))
	opts.SetAutoReconnect(true)
	opts.SetConnectRetryInterval(reconnectBackoff)
	opts.SetMaxReconnectInterval(reconnectBackoff)
	opts.SetOnConnectHandler(func(client MQTT.Client) {
		log.Infof("ingest: broker %s connected", c.cfg.Name)
		if token := client.Subscribe(c.cfg.Topic, 0, c.handle); token.Wait() && token.Error() != nil {
			log.Errorf("ingest: broker %s subscribe failed: %v", c.cfg.Name, token.Error())
		}
	})
	opts.SetConnectionLostHandler(func(_ MQTT.Client, err error) {
		log.Warnf("ingest: broker %s connection lost: %v", c.cfg.Name, err)
	})

	client := MQTT.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("ingest: connect to %s: %w", c.cfg.Server, token.Error())
	}
	c.client = client
	return nil
}

// Stop disconnects from the broker, draining in-flight handler calls
// first.
func (c *Consumer) Stop() {
	if c.client != nil && c.client.IsConnected() {
		c.client.Disconnect(250)
	}
}

func (c *Consumer) handle(_ MQTT.Client, msg MQTT.Message) {
	if c.Metrics != nil {
		c.Metrics.IncIngested(c.cfg.Name)
	}
	c.out <- RawMessage{
		BrokerName: c.cfg.Name,
		Topic:      msg.Topic(),
		Payload:    msg.Payload(),
		Format:     c.cfg.Format,
	}
}
