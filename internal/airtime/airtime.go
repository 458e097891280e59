// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of lorawan-analyzer.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package airtime computes LoRa time-on-air using the Semtech
// symbol-time formula.
package airtime

import "math"

// Params describes the radio configuration needed to compute airtime.
// SF and BW are required; a zero value for either means "unknown" and
// Compute returns 0.
//
// The zero value of ImplicitHeader selects the explicit header every
// LoRaWAN frame uses.
type Params struct {
	SpreadingFactor int
	BandwidthHz     int64
	PayloadSize     int
	CodingRate      string // "4/5".."4/8"
	ImplicitHeader  bool
	PreambleSymbols int
}

// DefaultPreambleSymbols is used when Params.PreambleSymbols is zero.
const DefaultPreambleSymbols = 8

// Compute returns the time-on-air in microseconds for the given radio
// parameters, or 0 if SF or BW is unknown.
func Compute(p Params) int64 {
	if p.SpreadingFactor == 0 || p.BandwidthHz == 0 {
		return 0
	}

	sf := p.SpreadingFactor
	bw := float64(p.BandwidthHz)
	cr := codingRateDenominatorOffset(p.CodingRate)

	preamble := p.PreambleSymbols
	if preamble == 0 {
		preamble = DefaultPreambleSymbols
	}

	header := 0.0
	if p.ImplicitHeader {
		header = 1
	}

	lowDataRateOptimize := lowDataRateOptimizeFor(sf, p.BandwidthHz)
	de := 0.0
	if lowDataRateOptimize {
		de = 1
	}

	crc := 1.0 // the PHY CRC term of the Semtech formula

	symbolTimeUs := math.Pow(2, float64(sf)) / bw * 1e6

	numerator := 8*float64(p.PayloadSize) - 4*float64(sf) + 28 + 16*crc - 20*header
	denominator := 4 * (float64(sf) - 2*de)

	payloadSymbNb := 0.0
	if denominator > 0 {
		payloadSymbNb = math.Ceil(numerator/denominator) * float64(cr+4)
	}
	if payloadSymbNb < 0 {
		payloadSymbNb = 0
	}
	payloadSymbNb += 8

	totalUs := symbolTimeUs * (float64(preamble) + 4.25 + payloadSymbNb)
	return int64(math.Round(totalUs))
}

// lowDataRateOptimizeFor mirrors the transceiver auto-enable rule:
// SF>=11 at 125kHz, or SF=12 at 250kHz.
func lowDataRateOptimizeFor(sf int, bwHz int64) bool {
	if bwHz == 125000 && sf >= 11 {
		return true
	}
	if bwHz == 250000 && sf == 12 {
		return true
	}
	return false
}

// codingRateDenominatorOffset parses "4/5".."4/8" into CR (1..4).
func codingRateDenominatorOffset(cr string) int {
	switch cr {
	case "4/5":
		return 1
	case "4/6":
		return 2
	case "4/7":
		return 3
	case "4/8":
		return 4
	default:
		return 1
	}
}
