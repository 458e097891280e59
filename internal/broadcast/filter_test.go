// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of lorawan-analyzer.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package broadcast

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chirpwatch/lorawan-analyzer/model"
)

func lpWithRSSI(rssi int32, ptype model.PacketType) *model.LivePacket {
	devAddr := "26011AAB"
	return &model.LivePacket{RSSI: rssi, Type: ptype, DevAddr: &devAddr, GatewayID: "gw-1", Operator: "The Things Network"}
}

func TestRSSIFilterIgnoredForNonDataTypes(t *testing.T) {
	min := int32(-60)
	f := Filter{RSSIMin: &min}
	require.True(t, f.Matches(lpWithRSSI(-90, model.PacketTxAck)))
}

func TestPacketTypeMembership(t *testing.T) {
	f := Filter{PacketTypes: []model.PacketType{model.PacketJoinRequest}}
	require.False(t, f.Matches(lpWithRSSI(-50, model.PacketData)))
	require.True(t, f.Matches(lpWithRSSI(-50, model.PacketJoinRequest)))
}

func TestOwnershipPassesThroughNonDataTypes(t *testing.T) {
	f := Filter{Prefixes: []string{"FFFF"}, FilterMode: OwnershipOwned}
	require.True(t, f.Matches(lpWithRSSI(-50, model.PacketJoinRequest)))
}

// A bitwise "<hex>/<bits>" prefix and a bare hex fragment are both
// accepted; the bitwise form matches addresses a nibble-aligned string
// prefix could not express.
func TestOwnershipBitwisePrefix(t *testing.T) {
	f := Filter{Prefixes: []string{"26000000/7"}, FilterMode: OwnershipOwned}
	require.True(t, f.Matches(lpWithRSSI(-50, model.PacketData))) // DevAddr 26011AAB
	require.True(t, Filter{Prefixes: []string{"27000000/7"}}.Matches(lpWithRSSI(-50, model.PacketData)))
	require.False(t, Filter{Prefixes: []string{"28000000/7"}}.Matches(lpWithRSSI(-50, model.PacketData)))
}

// Owned and foreign are exact complements for data packets with a
// DevAddr.
func TestOwnershipOwnedForeignComplement(t *testing.T) {
	prefixes := []string{"26000000/7"}
	lp := lpWithRSSI(-50, model.PacketData)
	owned := Filter{Prefixes: prefixes, FilterMode: OwnershipOwned}.Matches(lp)
	foreign := Filter{Prefixes: prefixes, FilterMode: OwnershipForeign}.Matches(lp)
	require.NotEqual(t, owned, foreign)
}
