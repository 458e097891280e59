// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of lorawan-analyzer.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chirpwatch/lorawan-analyzer/model"
)

func TestBuildInsertPacketsSQLUsesDollarPlaceholdersAndPreservesOrder(t *testing.T) {
	devAddr1 := "26011AAB"
	devAddr2 := "26011ACD"
	rows := []*model.ParsedPacket{
		{Timestamp: time.Unix(1000, 0), Type: model.PacketData, GatewayID: "gw-1", DevAddr: &devAddr1, Operator: "The Things Network"},
		{Timestamp: time.Unix(1001, 0), Type: model.PacketData, GatewayID: "gw-1", DevAddr: &devAddr2, Operator: "The Things Network"},
	}

	sqlStr, args, err := buildInsertPacketsSQL(rows)
	require.NoError(t, err)
	require.Contains(t, sqlStr, "INSERT INTO packets")
	require.Contains(t, sqlStr, "$1")
	require.Contains(t, sqlStr, "$19") // 19 columns per row, second row starts at $20
	require.Len(t, args, 19*2)
	require.Equal(t, &devAddr1, args[4])
	require.Equal(t, &devAddr2, args[4+19])
}

// An empty batch never reaches the SQL builder — InsertPackets returns
// before building — and squirrel rejects a VALUES-less insert.
func TestBuildInsertPacketsSQLEmptyInput(t *testing.T) {
	_, _, err := buildInsertPacketsSQL(nil)
	require.Error(t, err)
}

func TestBuildInsertCsPacketsSQLUsesDollarPlaceholders(t *testing.T) {
	rows := []*model.CsPacket{
		{Timestamp: time.Unix(1000, 0), DevEUI: "0011223344556677", DeviceName: "sensor-1", ApplicationID: "farm-app", Operator: "The Things Network"},
	}

	sqlStr, args, err := buildInsertCsPacketsSQL(rows)
	require.NoError(t, err)
	require.Contains(t, sqlStr, "INSERT INTO cs_packets")
	require.Contains(t, sqlStr, "$1")
	require.Len(t, args, 16)
}
