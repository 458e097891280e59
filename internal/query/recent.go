// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of lorawan-analyzer.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package query

import (
	"time"

	sq "github.com/Masterminds/squirrel"
)

// RecentPacketsFilter is the parameter bag for the recent-packets
// query. Any field left at its zero value is not applied.
type RecentPacketsFilter struct {
	GatewayID  string
	DevAddr    string
	PacketType string
	Since      *time.Time
	Until      *time.Time
	Limit      int
}

var recentPacketsColumns = []string{
	"timestamp", "packet_type", "gateway_id", "dev_addr", "operator",
	"frequency", "sf", "rssi", "snr", "airtime_us", "f_cnt", "confirmed",
}

// RecentPacket is one row of the recent-packets listing.
type RecentPacket struct {
	Timestamp  time.Time `db:"timestamp" json:"timestamp"`
	PacketType string    `db:"packet_type" json:"packet_type"`
	GatewayID  string    `db:"gateway_id" json:"gateway_id"`
	DevAddr    *string   `db:"dev_addr" json:"dev_addr,omitempty"`
	Operator   string    `db:"operator" json:"operator"`
	Frequency  int64     `db:"frequency" json:"frequency"`
	SF         *int      `db:"sf" json:"sf,omitempty"`
	RSSI       int32     `db:"rssi" json:"rssi"`
	SNR        float64   `db:"snr" json:"snr"`
	AirtimeUs  int64     `db:"airtime_us" json:"airtime_us"`
	FCnt       *int64    `db:"f_cnt" json:"f_cnt,omitempty"`
	Confirmed  *bool     `db:"confirmed" json:"confirmed,omitempty"`
}

// BuildRecentPacketsQuery assembles a parameterized query from f:
// every present field narrows the WHERE clause with a bound parameter,
// never a string-interpolated value, falling back to an unconditional
// `1=1` when nothing is set.
func BuildRecentPacketsQuery(f RecentPacketsFilter) sq.SelectBuilder {
	q := psqlQuery().Select(recentPacketsColumns...).From("packets").Where(sq.Expr("1=1"))

	if f.GatewayID != "" {
		q = q.Where(sq.Eq{"gateway_id": f.GatewayID})
	}
	if f.DevAddr != "" {
		q = q.Where(sq.Eq{"dev_addr": f.DevAddr})
	}
	if f.PacketType != "" {
		q = q.Where(sq.Eq{"packet_type": f.PacketType})
	}
	if f.Since != nil {
		q = q.Where(sq.GtOrEq{"timestamp": *f.Since})
	}
	if f.Until != nil {
		q = q.Where(sq.LtOrEq{"timestamp": *f.Until})
	}

	q = q.OrderBy("timestamp DESC")

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	q = q.Limit(uint64(limit))

	return q
}

func psqlQuery() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
}
