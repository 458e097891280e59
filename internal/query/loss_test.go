// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of lorawan-analyzer.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestComputeDeviceLossCountsGapsPerSession(t *testing.T) {
	base := time.Now()
	records := []UplinkRecord{
		{Timestamp: base, SessionID: "s1", FCnt: 1, GatewayID: "gw-1"},
		{Timestamp: base.Add(time.Minute), SessionID: "s1", FCnt: 2, GatewayID: "gw-1"},
		{Timestamp: base.Add(2 * time.Minute), SessionID: "s1", FCnt: 5, GatewayID: "gw-1"}, // gap of 2
	}

	overall, perGateway := ComputeDeviceLoss(records)

	require.Equal(t, int64(3), overall.Received)
	require.Equal(t, int64(2), overall.Missed)
	require.InDelta(t, 40.0, overall.LossPct, 0.001) // 2 / (3+2) * 100

	require.Len(t, perGateway, 1)
	require.Equal(t, "gw-1", *perGateway[0].GatewayID)
}

func TestComputeDeviceLossIgnoresFCntResets(t *testing.T) {
	base := time.Now()
	records := []UplinkRecord{
		{Timestamp: base, SessionID: "s1", FCnt: 100, GatewayID: "gw-1"},
		{Timestamp: base.Add(time.Minute), SessionID: "s1", FCnt: 0, GatewayID: "gw-1"}, // reset, negative gap
	}

	overall, _ := ComputeDeviceLoss(records)
	require.Equal(t, int64(2), overall.Received)
	require.Equal(t, int64(0), overall.Missed)
}

func TestComputeDeviceLossSplitsBySessionIndependently(t *testing.T) {
	base := time.Now()
	records := []UplinkRecord{
		{Timestamp: base, SessionID: "s1", FCnt: 10, GatewayID: "gw-1"},
		{Timestamp: base.Add(time.Minute), SessionID: "s2", FCnt: 0, GatewayID: "gw-2"},
		{Timestamp: base.Add(2 * time.Minute), SessionID: "s1", FCnt: 11, GatewayID: "gw-1"},
		{Timestamp: base.Add(3 * time.Minute), SessionID: "s2", FCnt: 2, GatewayID: "gw-2"}, // gap of 1
	}

	overall, perGateway := ComputeDeviceLoss(records)
	require.Equal(t, int64(4), overall.Received)
	require.Equal(t, int64(1), overall.Missed)
	require.Len(t, perGateway, 2)
}

func TestComputeDeviceLossEmptyInput(t *testing.T) {
	overall, perGateway := ComputeDeviceLoss(nil)
	require.Equal(t, int64(0), overall.Received)
	require.Equal(t, 0.0, overall.LossPct)
	require.Empty(t, perGateway)
}
