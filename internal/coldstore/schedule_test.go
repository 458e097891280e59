// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of lorawan-analyzer.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package coldstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestExportByHourGroupsByBucketHour(t *testing.T) {
	h0 := time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC)
	h1 := h0.Add(time.Hour)

	rows := []HourlyRow{
		{Bucket: h0, GatewayID: "gw-1"},
		{Bucket: h0, GatewayID: "gw-2"},
		{Bucket: h1, GatewayID: "gw-1"},
	}

	seen := map[time.Time]int{}
	err := exportByHour(rows, func(bucket time.Time, g []HourlyRow) error {
		seen[bucket] = len(g)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, seen[h0])
	require.Equal(t, 1, seen[h1])
}

func TestExportByHourEmptyInput(t *testing.T) {
	calls := 0
	err := exportByHour(nil, func(time.Time, []HourlyRow) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 0, calls)
}

func TestExportByHourChannelSFGroupsByBucketHour(t *testing.T) {
	h0 := time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC)

	rows := []ChannelSFRow{
		{Bucket: h0, GatewayID: "gw-1", SF: 7},
		{Bucket: h0, GatewayID: "gw-1", SF: 9},
	}

	seen := map[time.Time]int{}
	err := exportByHourChannelSF(rows, func(bucket time.Time, g []ChannelSFRow) error {
		seen[bucket] = len(g)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, seen[h0])
}
