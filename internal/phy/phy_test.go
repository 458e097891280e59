// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of lorawan-analyzer.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package phy

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func mustHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}

func TestDecodeUnconfirmedDataUp(t *testing.T) {
	// MHDR for UnconfirmedDataUp = 0x40. DevAddr 26011AAB (big-endian
	// hex) is little-endian on the wire as AB1A0126. FCtrl=0x00 (no
	// FOpts), FCnt=0x0001 little-endian, FPort=0x01.
	raw := append([]byte{0x40}, mustHex("AB1A0126")...)
	raw = append(raw, 0x00, 0x01, 0x00, 0x01)

	f, err := Decode(raw)
	require.NoError(t, err)
	require.Equal(t, MTypeUnconfirmedDataUp, f.MType)
	require.Equal(t, "26011AAB", f.DevAddr)
	require.NotNil(t, f.FCnt)
	require.Equal(t, uint16(1), *f.FCnt)
	require.NotNil(t, f.Confirmed)
	require.False(t, *f.Confirmed)
	require.NotNil(t, f.FPort)
	require.Equal(t, uint8(1), *f.FPort)
}

func TestDecodeConfirmedDataDown(t *testing.T) {
	raw := append([]byte{byte(MTypeConfirmedDataDown)}, mustHex("AB1A0126")...)
	raw = append(raw, 0x00, 0x02, 0x00)

	f, err := Decode(raw)
	require.NoError(t, err)
	require.True(t, *f.Confirmed)
	require.Nil(t, f.FPort)
}

func TestDecodeJoinRequest(t *testing.T) {
	joinEUI := mustHex("70B3D57ED0000001")
	devEUI := mustHex("0011223344556677")
	raw := []byte{0x00}
	raw = append(raw, reverse(joinEUI)...)
	raw = append(raw, reverse(devEUI)...)
	raw = append(raw, 0x12, 0x34) // DevNonce

	f, err := Decode(raw)
	require.NoError(t, err)
	require.Equal(t, MTypeJoinRequest, f.MType)
	require.Equal(t, "70B3D57ED0000001", f.JoinEUI)
	require.Equal(t, "0011223344556677", f.DevEUI)
	require.Empty(t, f.DevAddr)
}

func TestDecodeShortBufferFails(t *testing.T) {
	_, err := Decode([]byte{0x40, 0x01, 0x02})
	require.ErrorIs(t, err, ErrMalformed)

	_, err = Decode([]byte{0x00, 0x01})
	require.ErrorIs(t, err, ErrMalformed)

	_, err = Decode(nil)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeUnsupportedMTypeReturnsBareFrame(t *testing.T) {
	f, err := Decode([]byte{byte(MTypeJoinAccept)})
	require.NoError(t, err)
	require.Equal(t, MTypeJoinAccept, f.MType)
}
