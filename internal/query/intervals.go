// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of lorawan-analyzer.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package query

import (
	"sort"
	"time"
)

// ComputeIntervals derives the inter-arrival time distribution between
// consecutive uplink timestamps. A single timestamp (or none) yields a
// result with Count set to the number of timestamps and zeroed
// mean/min/max, rather than a division by zero.
func ComputeIntervals(timestamps []time.Time) IntervalStats {
	if len(timestamps) < 2 {
		return IntervalStats{Count: int64(len(timestamps))}
	}

	sorted := make([]time.Time, len(timestamps))
	copy(sorted, timestamps)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	var sum, min, max float64
	min = sorted[1].Sub(sorted[0]).Seconds()
	for i := 1; i < len(sorted); i++ {
		gap := sorted[i].Sub(sorted[i-1]).Seconds()
		sum += gap
		if gap < min {
			min = gap
		}
		if gap > max {
			max = gap
		}
	}

	n := len(sorted) - 1
	return IntervalStats{
		Count: int64(n),
		MeanS: sum / float64(n),
		MinS:  min,
		MaxS:  max,
	}
}
