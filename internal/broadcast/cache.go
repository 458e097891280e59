// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of lorawan-analyzer.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package broadcast

import "sync"

// gatewayMeta is the subset of a Gateway row the broadcaster needs to
// attach gateway_name and to support text search.
type gatewayMeta struct {
	Name  string
	Alias string
	Group string
}

// csDeviceMeta is the subset of a CsDevice row the broadcaster needs
// to route gateway-side downlinks to ChirpStack subscribers.
type csDeviceMeta struct {
	DeviceName      string
	ApplicationName string
	DevAddr         string
}

// caches holds the two read-mostly metadata tables, rebuilt
// incrementally by upserts from the writer — never read back from
// disk. Both are guarded by one mutex with short, map-only critical
// sections.
type caches struct {
	mu sync.Mutex

	gateways  map[string]gatewayMeta
	csDevices map[string]csDeviceMeta // keyed by DevEUI

	devAddrToDevEUI map[string]string
}

func newCaches() *caches {
	return &caches{
		gateways:        make(map[string]gatewayMeta),
		csDevices:       make(map[string]csDeviceMeta),
		devAddrToDevEUI: make(map[string]string),
	}
}

func (c *caches) upsertGateway(id string, name, alias, group *string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	meta := c.gateways[id]
	if name != nil {
		meta.Name = *name
	}
	if alias != nil {
		meta.Alias = *alias
	}
	if group != nil {
		meta.Group = *group
	}
	c.gateways[id] = meta
}

func (c *caches) upsertCsDevice(devEUI string, devAddr *string, deviceName, applicationName string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	meta := c.csDevices[devEUI]
	if deviceName != "" {
		meta.DeviceName = deviceName
	}
	if applicationName != "" {
		meta.ApplicationName = applicationName
	}
	if devAddr != nil {
		if meta.DevAddr != "" && meta.DevAddr != *devAddr {
			delete(c.devAddrToDevEUI, meta.DevAddr)
		}
		meta.DevAddr = *devAddr
		c.devAddrToDevEUI[*devAddr] = devEUI
	}
	c.csDevices[devEUI] = meta
}

func (c *caches) gatewayName(id string) *string {
	c.mu.Lock()
	defer c.mu.Unlock()
	meta, ok := c.gateways[id]
	if !ok || meta.Name == "" {
		return nil
	}
	name := meta.Name
	return &name
}

// gatewayText returns the searchable alias/group strings for a
// gateway, if any are cached.
func (c *caches) gatewayText(id string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	meta, ok := c.gateways[id]
	if !ok {
		return nil
	}
	var out []string
	if meta.Alias != "" {
		out = append(out, meta.Alias)
	}
	if meta.Group != "" {
		out = append(out, meta.Group)
	}
	return out
}

func (c *caches) csDevice(devEUI string) (csDeviceMeta, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	meta, ok := c.csDevices[devEUI]
	return meta, ok
}

func (c *caches) devEUIForDevAddr(devAddr string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	devEUI, ok := c.devAddrToDevEUI[devAddr]
	return devEUI, ok
}
