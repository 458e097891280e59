// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of lorawan-analyzer.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package coldstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// FetchHourly loads every packets_hourly row whose bucket falls in
// [since, until).
func FetchHourly(ctx context.Context, db *sqlx.DB, since, until time.Time) ([]HourlyRow, error) {
	const stmt = `
SELECT bucket, gateway_id, operator, packet_type, packet_count, airtime_us_sum, unique_devices
FROM packets_hourly
WHERE bucket >= $1 AND bucket < $2
ORDER BY bucket`

	rows, err := db.QueryxContext(ctx, stmt, since, until)
	if err != nil {
		return nil, fmt.Errorf("coldstore: fetch hourly rollups: %w", err)
	}
	defer rows.Close()

	var out []HourlyRow
	for rows.Next() {
		var r HourlyRow
		if err := rows.Scan(&r.Bucket, &r.GatewayID, &r.Operator, &r.PacketType, &r.PacketCount, &r.AirtimeUsSum, &r.UniqueDevices); err != nil {
			return nil, fmt.Errorf("coldstore: scan hourly rollup: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// FetchChannelSF loads every packets_channel_sf_hourly row whose bucket
// falls in [since, until).
func FetchChannelSF(ctx context.Context, db *sqlx.DB, since, until time.Time) ([]ChannelSFRow, error) {
	const stmt = `
SELECT bucket, gateway_id, frequency, sf, packet_count, airtime_us_sum
FROM packets_channel_sf_hourly
WHERE bucket >= $1 AND bucket < $2
ORDER BY bucket`

	rows, err := db.QueryxContext(ctx, stmt, since, until)
	if err != nil {
		return nil, fmt.Errorf("coldstore: fetch channel/sf rollups: %w", err)
	}
	defer rows.Close()

	var out []ChannelSFRow
	for rows.Next() {
		var r ChannelSFRow
		if err := rows.Scan(&r.Bucket, &r.GatewayID, &r.Frequency, &r.SF, &r.PacketCount, &r.AirtimeUsSum); err != nil {
			return nil, fmt.Errorf("coldstore: scan channel/sf rollup: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
