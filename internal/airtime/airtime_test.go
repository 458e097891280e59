// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of lorawan-analyzer.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package airtime

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComputeKnownVector(t *testing.T) {
	// SF=7, BW=125000, PL=16, CR=4/5 -> 51456us, cross-checked against
	// Semtech's SX1276 calculator.
	us := Compute(Params{
		SpreadingFactor: 7,
		BandwidthHz:     125000,
		PayloadSize:     16,
		CodingRate:      "4/5",
	})
	require.InDelta(t, 51456, us, 1)
}

func TestComputeUnknownRadioIsZero(t *testing.T) {
	require.Equal(t, int64(0), Compute(Params{SpreadingFactor: 7}))
	require.Equal(t, int64(0), Compute(Params{BandwidthHz: 125000}))
}

func TestComputeMonotonicInSF(t *testing.T) {
	prev := int64(0)
	for sf := 7; sf <= 12; sf++ {
		us := Compute(Params{SpreadingFactor: sf, BandwidthHz: 125000, PayloadSize: 16, CodingRate: "4/5"})
		require.Greater(t, us, prev)
		prev = us
	}
}

func TestComputeAllCombinations(t *testing.T) {
	bandwidths := []int64{125000, 250000, 500000}
	crs := []string{"4/5", "4/6", "4/7", "4/8"}
	for sf := 7; sf <= 12; sf++ {
		for _, bw := range bandwidths {
			for _, cr := range crs {
				for _, pl := range []int{1, 16, 64, 255} {
					us := Compute(Params{
						SpreadingFactor: sf,
						BandwidthHz:     bw,
						PayloadSize:     pl,
						CodingRate:      cr,
					})
					require.GreaterOrEqual(t, us, int64(0))
				}
			}
		}
	}
}
