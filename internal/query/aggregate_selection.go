// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of lorawan-analyzer.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package query

import "time"

// ShouldUseHourlyAggregate decides whether a time-series query should
// read packets_hourly instead of raw packets: only when the bucket is
// 1h or 1d and no device filter narrows the result.
func ShouldUseHourlyAggregate(bucket time.Duration, hasDeviceFilter bool) bool {
	if hasDeviceFilter {
		return false
	}
	return bucket == time.Hour || bucket == 24*time.Hour
}

// ShouldUseChannelSFHourly decides whether a channel/SF distribution
// query should read packets_channel_sf_hourly instead of raw packets:
// windows of at least an hour with no device filter.
func ShouldUseChannelSFHourly(window time.Duration, hasDeviceFilter bool) bool {
	if hasDeviceFilter {
		return false
	}
	return window >= time.Hour
}
