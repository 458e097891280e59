// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of lorawan-analyzer.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package decode

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadVarintMultiByte(t *testing.T) {
	buf := appendVarint(nil, 300)
	v, pos, err := readVarint(buf, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(300), v)
	require.Equal(t, len(buf), pos)
}

func TestEachFieldSkipsUnknownFieldsByWireType(t *testing.T) {
	var raw []byte
	raw = appendVarintField(raw, 9, 123)              // unknown varint field
	raw = appendStringField(raw, 1, "kept")           // field we care about
	raw = appendBytesField(raw, 10, []byte{1, 2, 3}) // unknown length-delimited field

	var seen string
	err := eachField(raw, func(f field) error {
		if f.Num == 1 {
			seen = string(f.Bytes)
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, "kept", seen)
}

func TestEachFieldTruncatedErrors(t *testing.T) {
	err := eachField([]byte{0x0A, 0x05, 0x01, 0x02}, func(f field) error { return nil })
	require.Error(t, err)
}

func TestSignedVarintInt32TruncatesTenByteEncoding(t *testing.T) {
	rssi := int32(-42)
	raw := appendVarint(nil, uint64(int64(rssi)))
	v, _, err := readVarint(raw, 0)
	require.NoError(t, err)
	require.Equal(t, int32(-42), signedVarintInt32(v))
}
