// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of lorawan-analyzer.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package phy decodes LoRaWAN PHYPayload bytes into the small set of
// fields the analyzer needs. It does not implement MIC validation,
// decryption, or re-encoding; those belong to a network server, which
// this system deliberately is not.
//
// Field layout follows the MHDR bit assignment of the LoRaWAN L2
// specification.
package phy

import (
	"encoding/hex"
	"errors"
	"strings"
)

// MType identifies the LoRaWAN message type carried in the MHDR.
type MType byte

const (
	MTypeJoinRequest         MType = 0x00
	MTypeJoinAccept          MType = 0x01 << 5
	MTypeUnconfirmedDataUp   MType = 0x02 << 5
	MTypeUnconfirmedDataDown MType = 0x03 << 5
	MTypeConfirmedDataUp     MType = 0x04 << 5
	MTypeConfirmedDataDown   MType = 0x05 << 5
	MTypeRejoinRequest       MType = 0x06 << 5
	MTypeProprietary         MType = 0x07 << 5
)

const mtypeMask = 0x07 << 5

// ErrMalformed is returned when the buffer is shorter than the message
// type it claims to be requires. Callers drop the event silently.
var ErrMalformed = errors.New("phy: malformed PHYPayload")

// Frame is the set of fields extracted from a PHYPayload.
type Frame struct {
	MType     MType
	DevAddr   string // 4-byte hex, uppercase; data/data-down frames only
	FCnt      *uint16
	FPort     *uint8
	JoinEUI   string // 8-byte hex, uppercase; join-request only
	DevEUI    string // 8-byte hex, uppercase; join-request only
	Confirmed *bool
}

// Decode parses raw PHYPayload bytes. Unsupported message types
// (join-accept, rejoin, proprietary) still return a Frame with only
// MType populated — the caller decides whether that's actionable.
func Decode(raw []byte) (Frame, error) {
	if len(raw) < 1 {
		return Frame{}, ErrMalformed
	}

	mhdr := raw[0]
	mtype := MType(mhdr & mtypeMask)
	f := Frame{MType: mtype}

	switch mtype {
	case MTypeJoinRequest:
		return decodeJoinRequest(raw, f)
	case MTypeUnconfirmedDataUp, MTypeUnconfirmedDataDown,
		MTypeConfirmedDataUp, MTypeConfirmedDataDown:
		return decodeDataFrame(raw, f)
	default:
		return f, nil
	}
}

func decodeJoinRequest(raw []byte, f Frame) (Frame, error) {
	// MHDR(1) + JoinEUI(8) + DevEUI(8) + DevNonce(2) = 19 bytes minimum.
	if len(raw) < 19 {
		return Frame{}, ErrMalformed
	}
	f.JoinEUI = euiToHex(reverse(raw[1:9]))
	f.DevEUI = euiToHex(reverse(raw[9:17]))
	return f, nil
}

func decodeDataFrame(raw []byte, f Frame) (Frame, error) {
	// MHDR(1) + DevAddr(4) + FCtrl(1) + FCnt(2) = 8 bytes minimum.
	if len(raw) < 8 {
		return Frame{}, ErrMalformed
	}

	devAddr := reverse(raw[1:5])
	f.DevAddr = euiToHex(devAddr)

	fctrl := raw[5]
	fOptsLen := int(fctrl & 0x0F)

	fcnt := uint16(raw[6]) | uint16(raw[7])<<8
	f.FCnt = &fcnt

	confirmed := f.MType == MTypeConfirmedDataUp || f.MType == MTypeConfirmedDataDown
	f.Confirmed = &confirmed

	fOptsStart := 8
	fOptsEnd := fOptsStart + fOptsLen
	if len(raw) < fOptsEnd {
		return Frame{}, ErrMalformed
	}

	if len(raw) > fOptsEnd {
		fport := raw[fOptsEnd]
		f.FPort = &fport
	}

	return f, nil
}

// reverse returns a copy of b with byte order reversed, used to turn
// the little-endian wire encoding of DevAddr/EUIs into the big-endian
// order hex rendering expects.
func reverse(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}

func euiToHex(b []byte) string {
	return strings.ToUpper(hex.EncodeToString(b))
}
