// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of lorawan-analyzer.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package broadcast

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUpsertGatewayPreservesUnsetFields(t *testing.T) {
	c := newCaches()
	name := "Rooftop"
	c.upsertGateway("gw-1", &name, nil, nil)

	alias := "roof"
	c.upsertGateway("gw-1", nil, &alias, nil)

	require.Equal(t, "Rooftop", *c.gatewayName("gw-1"))
	require.Equal(t, "roof", c.gateways["gw-1"].Alias)
}

func TestUpsertCsDeviceUpdatesReverseIndexOnDevAddrChange(t *testing.T) {
	c := newCaches()
	addr1 := "26011AAB"
	c.upsertCsDevice("0011223344556677", &addr1, "sensor-1", "farm-app")

	devEUI, ok := c.devEUIForDevAddr("26011AAB")
	require.True(t, ok)
	require.Equal(t, "0011223344556677", devEUI)

	addr2 := "26011ACD"
	c.upsertCsDevice("0011223344556677", &addr2, "sensor-1", "farm-app")

	_, ok = c.devEUIForDevAddr("26011AAB")
	require.False(t, ok)
	devEUI, ok = c.devEUIForDevAddr("26011ACD")
	require.True(t, ok)
	require.Equal(t, "0011223344556677", devEUI)
}
