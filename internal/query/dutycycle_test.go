// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of lorawan-analyzer.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package query

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComputeDutyCycle(t *testing.T) {
	rx, tx := ComputeDutyCycle(5_000_000, 1_000_000, 10_000_000)
	require.InDelta(t, 50.0, rx, 0.001)
	require.InDelta(t, 10.0, tx, 0.001)
}

func TestComputeDutyCycleZeroWindow(t *testing.T) {
	rx, tx := ComputeDutyCycle(100, 100, 0)
	require.Equal(t, 0.0, rx)
	require.Equal(t, 0.0, tx)
}

func TestAverageDutyCyclePercentsAveragesNotSums(t *testing.T) {
	avg := AverageDutyCyclePercents([]float64{10, 20, 30})
	require.InDelta(t, 20.0, avg, 0.001)
}

func TestAverageDutyCyclePercentsEmpty(t *testing.T) {
	require.Equal(t, 0.0, AverageDutyCyclePercents(nil))
}
