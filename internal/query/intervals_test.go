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

func TestComputeIntervalsBasic(t *testing.T) {
	base := time.Now()
	stats := ComputeIntervals([]time.Time{
		base,
		base.Add(10 * time.Second),
		base.Add(25 * time.Second),
	})

	require.Equal(t, int64(2), stats.Count)
	require.InDelta(t, 10.0, stats.MinS, 0.001)
	require.InDelta(t, 15.0, stats.MaxS, 0.001)
	require.InDelta(t, 12.5, stats.MeanS, 0.001)
}

func TestComputeIntervalsUnsorted(t *testing.T) {
	base := time.Now()
	stats := ComputeIntervals([]time.Time{
		base.Add(25 * time.Second),
		base,
		base.Add(10 * time.Second),
	})

	require.Equal(t, int64(2), stats.Count)
	require.InDelta(t, 10.0, stats.MinS, 0.001)
	require.InDelta(t, 15.0, stats.MaxS, 0.001)
}

func TestComputeIntervalsDegenerate(t *testing.T) {
	require.Equal(t, IntervalStats{Count: 0}, ComputeIntervals(nil))

	base := time.Now()
	require.Equal(t, IntervalStats{Count: 1}, ComputeIntervals([]time.Time{base}))
}
