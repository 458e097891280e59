// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of lorawan-analyzer.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package query implements the read-only operations behind the
// dashboard APIs: gateway list, per-device loss/timeline/
// distributions, time series, duty cycle, recent packets, and join
// activity. Every operation is a pure function of (store, parameters);
// none hold state between calls.
package query

import "time"

// TimeSeriesPoint is one bucketed value, optionally grouped by a
// dimension such as gateway or operator.
type TimeSeriesPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
	Group     *string   `json:"group,omitempty"`
}

// GatewaySummary is one row of the gateway list.
type GatewaySummary struct {
	GatewayID     string  `json:"gateway_id"`
	Name          *string `json:"name,omitempty"`
	PacketCount   int64   `json:"packet_count"`
	AirtimeUs     int64   `json:"airtime_us"`
	UniqueDevices int64   `json:"unique_devices"`
}

// UplinkRecord is the minimal shape device-loss computation needs.
type UplinkRecord struct {
	Timestamp time.Time
	SessionID string
	FCnt      uint32
	GatewayID string
}

// LossStats is the result of one loss computation, either overall or
// scoped to a single gateway.
type LossStats struct {
	GatewayID *string `json:"gateway_id,omitempty"`
	Received  int64   `json:"received"`
	Missed    int64   `json:"missed"`
	LossPct   float64 `json:"loss_pct"`
}

// ChannelSFPoint is one row of a channel/spreading-factor distribution.
type ChannelSFPoint struct {
	Frequency   int64 `json:"frequency"`
	SF          int   `json:"sf"`
	PacketCount int64 `json:"packet_count"`
	AirtimeUs   int64 `json:"airtime_us"`
}

// DutyCycleResult is the duty-cycle computation for one gateway, or the
// window-wide average when no gateway was specified.
type DutyCycleResult struct {
	GatewayID          *string `json:"gateway_id,omitempty"`
	RxAirtimePercent   float64 `json:"rx_airtime_percent"`
	TxDutyCyclePercent float64 `json:"tx_duty_cycle_percent"`
}

// JoinActivityPoint summarizes join-request volume in one bucket.
type JoinActivityPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Operator  string    `json:"operator"`
	JoinCount int64     `json:"join_count"`
}

// GatewayNode is one gateway in the per-gateway tree: its own summary
// plus the operators and devices it has carried traffic for in the
// window, for the dashboard's drill-down view.
type GatewayNode struct {
	GatewaySummary
	Operators []OperatorCount `json:"operators"`
	Devices   []string        `json:"devices"`
}

// OperatorCount is one operator's packet count within a gateway or
// window scope.
type OperatorCount struct {
	Operator    string `json:"operator"`
	PacketCount int64  `json:"packet_count"`
}

// DeviceProfile is the per-device summary shown at the top of a device
// drill-down: identity, first/last sighting, and lifetime counters.
type DeviceProfile struct {
	DevAddr     string    `json:"dev_addr"`
	Operator    string    `json:"operator"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
	PacketCount int64     `json:"packet_count"`
	GatewayIDs  []string  `json:"gateway_ids"`
}

// IntervalStats summarizes the inter-arrival times between a device's
// consecutive uplinks in the window, in seconds.
type IntervalStats struct {
	Count int64   `json:"count"`
	MeanS float64 `json:"mean_s"`
	MinS  float64 `json:"min_s"`
	MaxS  float64 `json:"max_s"`
}

// CsDeviceSummary mirrors GatewaySummary for the ChirpStack-scoped
// (application-bus) view, keyed by DevEUI instead of gateway.
type CsDeviceSummary struct {
	DevEUI      string `json:"dev_eui"`
	DeviceName  string `json:"device_name"`
	PacketCount int64  `json:"packet_count"`
	AirtimeUs   int64  `json:"airtime_us"`
}
