// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of lorawan-analyzer.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package bus

import (
	"github.com/chirpwatch/lorawan-analyzer/internal/broadcast"
	"github.com/chirpwatch/lorawan-analyzer/pkg/log"
)

// WireHub subscribes hub to every upsert notification published on b,
// so a broadcaster running in a separate process (or just a separate
// goroutine group) stays current without a direct call from the
// writer. Returns the first subscribe error, if any.
func WireHub(b *Bus, hub *broadcast.Hub) error {
	if err := b.SubscribeGatewayUpsert(func(evt GatewayUpsertEvent) {
		hub.UpsertGateway(evt.GatewayID, evt.Name, evt.Alias, evt.Group)
	}); err != nil {
		return err
	}
	return b.SubscribeCsDeviceUpsert(func(evt CsDeviceUpsertEvent) {
		hub.UpsertCsDevice(evt.DevEUI, evt.DevAddr, evt.DeviceName, evt.ApplicationName)
	})
}

// Publisher adapts a Bus to the writer's CacheNotifier interface, so
// the writer can publish metadata upserts over NATS instead of calling
// a Hub in-process.
type Publisher struct {
	Bus *Bus
}

func (p Publisher) UpsertGateway(id string, name, alias, group *string) {
	if err := p.Bus.PublishGatewayUpsert(GatewayUpsertEvent{GatewayID: id, Name: name, Alias: alias, Group: group}); err != nil {
		log.Warnf("bus: publish gateway upsert failed: %v", err)
	}
}

func (p Publisher) UpsertCsDevice(devEUI string, devAddr *string, deviceName, applicationName string) {
	evt := CsDeviceUpsertEvent{DevEUI: devEUI, DevAddr: devAddr, DeviceName: deviceName, ApplicationName: applicationName}
	if err := p.Bus.PublishCsDeviceUpsert(evt); err != nil {
		log.Warnf("bus: publish cs device upsert failed: %v", err)
	}
}
