// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of lorawan-analyzer.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package decode

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeAppUplink(t *testing.T) {
	raw := []byte(`{
		"deviceInfo": {"devEui": "0011223344556677", "deviceName": "sensor-1", "applicationId": "42", "applicationName": "farm-app"},
		"devAddr": "26011AAB",
		"rxInfo": [{"rssi": -80, "snr": 6.2}],
		"txInfo": {"frequency": 868300000, "modulation": {"lora": {"spreadingFactor": 9, "bandwidth": 125000}}},
		"data": "QKsaASYAAQAB",
		"fCnt": 12,
		"fPort": 2,
		"confirmed": false
	}`)

	up, err := DecodeAppUplink(raw)
	require.NoError(t, err)
	require.Equal(t, "0011223344556677", up.DevEUI)
	require.Equal(t, "sensor-1", up.DeviceName)
	require.Equal(t, "42", up.ApplicationID)
	require.NotNil(t, up.ApplicationName)
	require.Equal(t, "farm-app", *up.ApplicationName)
	require.NotNil(t, up.DevAddr)
	require.Equal(t, "26011AAB", *up.DevAddr)
	require.Equal(t, int32(-80), up.RSSI)
	require.InDelta(t, 6.2, up.SNR, 0.001)
	require.Equal(t, int64(868300000), up.Frequency)
	require.Equal(t, 9, up.SpreadingFactor)
	require.Equal(t, 9, up.PayloadSize)
	require.NotNil(t, up.FCnt)
	require.Equal(t, uint32(12), *up.FCnt)
	require.NotNil(t, up.FPort)
	require.Equal(t, uint8(2), *up.FPort)
	require.NotNil(t, up.Confirmed)
	require.False(t, *up.Confirmed)
}

func TestDecodeAppTxAck(t *testing.T) {
	raw := []byte(`{"deviceInfo": {"devEui": "0011223344556677", "applicationId": "42"}}`)
	ack, err := DecodeAppTxAck(raw)
	require.NoError(t, err)
	require.Equal(t, "0011223344556677", ack.DevEUI)
	require.Equal(t, "42", ack.ApplicationID)
}

func TestDecodeAppAck(t *testing.T) {
	raw := []byte(`{"deviceInfo": {"devEui": "0011223344556677", "applicationId": "42"}, "acknowledged": true}`)
	ack, err := DecodeAppAck(raw)
	require.NoError(t, err)
	require.True(t, ack.Acknowledged)
}

func TestDecodeAppDownlinkCommand(t *testing.T) {
	raw := []byte(`{"deviceInfo": {"devEui": "0011223344556677", "applicationId": "42"}}`)
	cmd, err := DecodeAppDownlinkCommand(raw)
	require.NoError(t, err)
	require.Equal(t, "0011223344556677", cmd.DevEUI)
}

func TestDecodeAppUplinkMalformedJSON(t *testing.T) {
	_, err := DecodeAppUplink([]byte(`not json`))
	require.Error(t, err)
}
