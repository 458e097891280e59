// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of lorawan-analyzer.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package query

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
)

// minGatewayPackets is the gateway-list visibility threshold: gateways
// with fewer packets than this in the requested window are hidden.
const minGatewayPackets = 10

// Query wraps the store connection with the read operations the
// dashboard APIs consume. Every method is a pure function of its
// arguments; Query holds no query-specific state between calls.
type Query struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) *Query {
	return &Query{db: db}
}

// bucketExpr renders a time_bucket() call with the interval bound as a
// parameter. make_interval keeps the binding numeric instead of
// relying on interval-literal parsing of a Go duration string.
func bucketExpr(bucket time.Duration) sq.Sqlizer {
	return sq.Expr(`time_bucket(make_interval(secs => ?), "timestamp") AS bucket`, bucket.Seconds())
}

// GatewayList returns every gateway active in [since, until), with
// packet/airtime counts from the hourly aggregate and unique device
// counts recomputed from raw packets. The aggregate's own
// unique_devices column is never summed here: per-hour distinct counts
// do not add up across hours.
func (q *Query) GatewayList(ctx context.Context, since, until time.Time) ([]GatewaySummary, error) {
	const countsQuery = `
SELECT gateway_id, SUM(packet_count) AS packet_count, SUM(airtime_us_sum) AS airtime_us
FROM packets_hourly
WHERE bucket >= $1 AND bucket < $2
GROUP BY gateway_id
HAVING SUM(packet_count) >= $3`

	rows, err := q.db.QueryxContext(ctx, countsQuery, since, until, minGatewayPackets)
	if err != nil {
		return nil, fmt.Errorf("query: gateway list counts: %w", err)
	}
	defer rows.Close()

	var out []GatewaySummary
	for rows.Next() {
		var gw GatewaySummary
		if err := rows.Scan(&gw.GatewayID, &gw.PacketCount, &gw.AirtimeUs); err != nil {
			return nil, fmt.Errorf("query: scan gateway summary: %w", err)
		}

		unique, err := q.uniqueDevices(ctx, gw.GatewayID, since, until)
		if err != nil {
			return nil, err
		}
		gw.UniqueDevices = unique

		out = append(out, gw)
	}
	return out, rows.Err()
}

func (q *Query) uniqueDevices(ctx context.Context, gatewayID string, since, until time.Time) (int64, error) {
	const stmt = `
SELECT COUNT(DISTINCT dev_addr) FROM packets
WHERE gateway_id = $1 AND "timestamp" >= $2 AND "timestamp" < $3 AND dev_addr IS NOT NULL`

	var n int64
	if err := q.db.GetContext(ctx, &n, stmt, gatewayID, since, until); err != nil {
		return 0, fmt.Errorf("query: unique devices for %q: %w", gatewayID, err)
	}
	return n, nil
}

// TimeSeries buckets packet counts over [since, until), reading the
// hourly aggregate when the bucket and filter allow it and raw packets
// otherwise.
func (q *Query) TimeSeries(ctx context.Context, since, until time.Time, bucket time.Duration, gatewayID string) ([]TimeSeriesPoint, error) {
	if ShouldUseHourlyAggregate(bucket, gatewayID != "") {
		return q.timeSeriesFromHourly(ctx, since, until)
	}
	return q.timeSeriesFromRaw(ctx, since, until, bucket, gatewayID)
}

func (q *Query) timeSeriesFromHourly(ctx context.Context, since, until time.Time) ([]TimeSeriesPoint, error) {
	const stmt = `
SELECT bucket, SUM(packet_count) FROM packets_hourly
WHERE bucket >= $1 AND bucket < $2
GROUP BY bucket ORDER BY bucket`

	rows, err := q.db.QueryxContext(ctx, stmt, since, until)
	if err != nil {
		return nil, fmt.Errorf("query: time series from hourly: %w", err)
	}
	defer rows.Close()

	var out []TimeSeriesPoint
	for rows.Next() {
		var p TimeSeriesPoint
		if err := rows.Scan(&p.Timestamp, &p.Value); err != nil {
			return nil, fmt.Errorf("query: scan time series point: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (q *Query) timeSeriesFromRaw(ctx context.Context, since, until time.Time, bucket time.Duration, gatewayID string) ([]TimeSeriesPoint, error) {
	b := psqlQuery().Select().
		Column(bucketExpr(bucket)).
		Column("COUNT(*) AS value").
		From("packets").
		Where(sq.And{sq.GtOrEq{`"timestamp"`: since}, sq.Lt{`"timestamp"`: until}}).
		GroupBy("bucket").OrderBy("bucket")

	if gatewayID != "" {
		b = b.Where(sq.Eq{"gateway_id": gatewayID})
	}

	stmt, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("query: build raw time series: %w", err)
	}

	rows, err := q.db.QueryxContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query: time series from raw: %w", err)
	}
	defer rows.Close()

	var out []TimeSeriesPoint
	for rows.Next() {
		var p TimeSeriesPoint
		if err := rows.Scan(&p.Timestamp, &p.Value); err != nil {
			return nil, fmt.Errorf("query: scan raw time series point: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DeviceLoss runs the per-session fcnt-gap algorithm over a device's
// uplinks in [since, until).
func (q *Query) DeviceLoss(ctx context.Context, devAddr string, since, until time.Time) (overall LossStats, perGateway []LossStats, err error) {
	const stmt = `
SELECT "timestamp", session_id, f_cnt, gateway_id FROM packets
WHERE dev_addr = $1 AND "timestamp" >= $2 AND "timestamp" < $3
  AND session_id IS NOT NULL AND f_cnt IS NOT NULL
ORDER BY "timestamp"`

	rows, err := q.db.QueryxContext(ctx, stmt, devAddr, since, until)
	if err != nil {
		return LossStats{}, nil, fmt.Errorf("query: device loss rows: %w", err)
	}
	defer rows.Close()

	var records []UplinkRecord
	for rows.Next() {
		var r UplinkRecord
		if err := rows.Scan(&r.Timestamp, &r.SessionID, &r.FCnt, &r.GatewayID); err != nil {
			return LossStats{}, nil, fmt.Errorf("query: scan loss row: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return LossStats{}, nil, err
	}

	overall, perGateway = ComputeDeviceLoss(records)
	return overall, perGateway, nil
}

// DutyCycle returns one result per requested gateway, or a single
// averaged result when gatewayIDs is empty.
func (q *Query) DutyCycle(ctx context.Context, since, until time.Time, gatewayIDs []string) ([]DutyCycleResult, error) {
	windowUs := until.Sub(since).Microseconds()

	if len(gatewayIDs) > 0 {
		out := make([]DutyCycleResult, 0, len(gatewayIDs))
		for _, gw := range gatewayIDs {
			up, down, err := q.airtimeSums(ctx, gw, since, until)
			if err != nil {
				return nil, err
			}
			rx, tx := ComputeDutyCycle(up, down, windowUs)
			id := gw
			out = append(out, DutyCycleResult{GatewayID: &id, RxAirtimePercent: rx, TxDutyCyclePercent: tx})
		}
		return out, nil
	}

	allGateways, err := q.allGatewayIDs(ctx, since, until)
	if err != nil {
		return nil, err
	}

	var rxPercents, txPercents []float64
	for _, gw := range allGateways {
		up, down, err := q.airtimeSums(ctx, gw, since, until)
		if err != nil {
			return nil, err
		}
		rx, tx := ComputeDutyCycle(up, down, windowUs)
		rxPercents = append(rxPercents, rx)
		txPercents = append(txPercents, tx)
	}

	return []DutyCycleResult{{
		RxAirtimePercent:   AverageDutyCyclePercents(rxPercents),
		TxDutyCyclePercent: AverageDutyCyclePercents(txPercents),
	}}, nil
}

func (q *Query) airtimeSums(ctx context.Context, gatewayID string, since, until time.Time) (upUs, downUs int64, err error) {
	const stmt = `
SELECT
    COALESCE(SUM(airtime_us) FILTER (WHERE packet_type IN ('data', 'join_request')), 0),
    COALESCE(SUM(airtime_us) FILTER (WHERE packet_type = 'downlink'), 0)
FROM packets
WHERE gateway_id = $1 AND "timestamp" >= $2 AND "timestamp" < $3`

	row := q.db.QueryRowxContext(ctx, stmt, gatewayID, since, until)
	if err := row.Scan(&upUs, &downUs); err != nil {
		return 0, 0, fmt.Errorf("query: airtime sums for %q: %w", gatewayID, err)
	}
	return upUs, downUs, nil
}

func (q *Query) allGatewayIDs(ctx context.Context, since, until time.Time) ([]string, error) {
	const stmt = `SELECT DISTINCT gateway_id FROM packets WHERE "timestamp" >= $1 AND "timestamp" < $2`
	var ids []string
	if err := q.db.SelectContext(ctx, &ids, stmt, since, until); err != nil {
		return nil, fmt.Errorf("query: all gateway ids: %w", err)
	}
	return ids, nil
}

// RecentPackets runs BuildRecentPacketsQuery(f) against the store.
func (q *Query) RecentPackets(ctx context.Context, f RecentPacketsFilter) ([]RecentPacket, error) {
	stmt, args, err := BuildRecentPacketsQuery(f).ToSql()
	if err != nil {
		return nil, fmt.Errorf("query: build recent packets: %w", err)
	}
	var out []RecentPacket
	if err := q.db.SelectContext(ctx, &out, stmt, args...); err != nil {
		return nil, fmt.Errorf("query: recent packets: %w", err)
	}
	return out, nil
}

// ChannelSFDistribution buckets packet count and airtime by frequency
// and spreading factor, reading the hourly channel/SF aggregate when
// the window and filters allow it.
func (q *Query) ChannelSFDistribution(ctx context.Context, since, until time.Time, gatewayID string) ([]ChannelSFPoint, error) {
	if ShouldUseChannelSFHourly(until.Sub(since), gatewayID != "") {
		return q.channelSFFromHourly(ctx, since, until)
	}
	return q.channelSFFromRaw(ctx, since, until, gatewayID)
}

func (q *Query) channelSFFromHourly(ctx context.Context, since, until time.Time) ([]ChannelSFPoint, error) {
	const stmt = `
SELECT frequency, sf, SUM(packet_count), SUM(airtime_us_sum)
FROM packets_channel_sf_hourly
WHERE bucket >= $1 AND bucket < $2
GROUP BY frequency, sf ORDER BY frequency, sf`

	rows, err := q.db.QueryxContext(ctx, stmt, since, until)
	if err != nil {
		return nil, fmt.Errorf("query: channel/sf from hourly: %w", err)
	}
	defer rows.Close()
	return scanChannelSFPoints(rows)
}

func (q *Query) channelSFFromRaw(ctx context.Context, since, until time.Time, gatewayID string) ([]ChannelSFPoint, error) {
	b := psqlQuery().Select("frequency", "COALESCE(sf, 0)", "COUNT(*)", "SUM(airtime_us)").
		From("packets").
		Where(sq.And{sq.GtOrEq{`"timestamp"`: since}, sq.Lt{`"timestamp"`: until}}).
		GroupBy("frequency", "COALESCE(sf, 0)").OrderBy("frequency", "2")

	if gatewayID != "" {
		b = b.Where(sq.Eq{"gateway_id": gatewayID})
	}

	stmt, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("query: build raw channel/sf: %w", err)
	}

	rows, err := q.db.QueryxContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query: channel/sf from raw: %w", err)
	}
	defer rows.Close()
	return scanChannelSFPoints(rows)
}

func scanChannelSFPoints(rows *sqlx.Rows) ([]ChannelSFPoint, error) {
	var out []ChannelSFPoint
	for rows.Next() {
		var p ChannelSFPoint
		if err := rows.Scan(&p.Frequency, &p.SF, &p.PacketCount, &p.AirtimeUs); err != nil {
			return nil, fmt.Errorf("query: scan channel/sf point: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GatewayTree returns one gateway's summary together with the
// operators and devices it carried traffic for in the window, for the
// dashboard's per-gateway drill-down view.
func (q *Query) GatewayTree(ctx context.Context, gatewayID string, since, until time.Time) (*GatewayNode, error) {
	var summary GatewaySummary
	summary.GatewayID = gatewayID

	const countsStmt = `
SELECT COUNT(*), COALESCE(SUM(airtime_us), 0) FROM packets
WHERE gateway_id = $1 AND "timestamp" >= $2 AND "timestamp" < $3`
	row := q.db.QueryRowxContext(ctx, countsStmt, gatewayID, since, until)
	if err := row.Scan(&summary.PacketCount, &summary.AirtimeUs); err != nil {
		return nil, fmt.Errorf("query: gateway tree counts for %q: %w", gatewayID, err)
	}

	unique, err := q.uniqueDevices(ctx, gatewayID, since, until)
	if err != nil {
		return nil, err
	}
	summary.UniqueDevices = unique

	const opStmt = `
SELECT operator, COUNT(*) FROM packets
WHERE gateway_id = $1 AND "timestamp" >= $2 AND "timestamp" < $3
GROUP BY operator ORDER BY COUNT(*) DESC`
	opRows, err := q.db.QueryxContext(ctx, opStmt, gatewayID, since, until)
	if err != nil {
		return nil, fmt.Errorf("query: gateway tree operators for %q: %w", gatewayID, err)
	}
	defer opRows.Close()
	var operators []OperatorCount
	for opRows.Next() {
		var oc OperatorCount
		if err := opRows.Scan(&oc.Operator, &oc.PacketCount); err != nil {
			return nil, fmt.Errorf("query: scan operator count: %w", err)
		}
		operators = append(operators, oc)
	}
	if err := opRows.Err(); err != nil {
		return nil, err
	}

	const devStmt = `
SELECT DISTINCT dev_addr FROM packets
WHERE gateway_id = $1 AND "timestamp" >= $2 AND "timestamp" < $3 AND dev_addr IS NOT NULL
ORDER BY dev_addr`
	var devices []string
	if err := q.db.SelectContext(ctx, &devices, devStmt, gatewayID, since, until); err != nil {
		return nil, fmt.Errorf("query: gateway tree devices for %q: %w", gatewayID, err)
	}

	return &GatewayNode{GatewaySummary: summary, Operators: operators, Devices: devices}, nil
}

// DeviceProfile returns the identity and lifetime counters for a
// single DevAddr over the window.
func (q *Query) DeviceProfile(ctx context.Context, devAddr string, since, until time.Time) (*DeviceProfile, error) {
	const stmt = `
SELECT operator, MIN("timestamp"), MAX("timestamp"), COUNT(*)
FROM packets
WHERE dev_addr = $1 AND "timestamp" >= $2 AND "timestamp" < $3
GROUP BY operator ORDER BY COUNT(*) DESC LIMIT 1`

	var p DeviceProfile
	p.DevAddr = devAddr
	row := q.db.QueryRowxContext(ctx, stmt, devAddr, since, until)
	if err := row.Scan(&p.Operator, &p.FirstSeen, &p.LastSeen, &p.PacketCount); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query: device profile for %q: %w", devAddr, err)
	}

	const gwStmt = `
SELECT DISTINCT gateway_id FROM packets
WHERE dev_addr = $1 AND "timestamp" >= $2 AND "timestamp" < $3
ORDER BY gateway_id`
	if err := q.db.SelectContext(ctx, &p.GatewayIDs, gwStmt, devAddr, since, until); err != nil {
		return nil, fmt.Errorf("query: device profile gateways for %q: %w", devAddr, err)
	}

	return &p, nil
}

// DeviceTimeline buckets one device's packet count over the window,
// reusing the same hourly/raw selection rule as TimeSeries.
func (q *Query) DeviceTimeline(ctx context.Context, devAddr string, since, until time.Time, bucket time.Duration) ([]TimeSeriesPoint, error) {
	b := psqlQuery().Select().
		Column(bucketExpr(bucket)).
		Column("COUNT(*) AS value").
		From("packets").
		Where(sq.And{
			sq.Eq{"dev_addr": devAddr},
			sq.GtOrEq{`"timestamp"`: since},
			sq.Lt{`"timestamp"`: until},
		}).
		GroupBy("bucket").OrderBy("bucket")

	stmt, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("query: build device timeline: %w", err)
	}

	rows, err := q.db.QueryxContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query: device timeline: %w", err)
	}
	defer rows.Close()

	var out []TimeSeriesPoint
	for rows.Next() {
		var p TimeSeriesPoint
		if err := rows.Scan(&p.Timestamp, &p.Value); err != nil {
			return nil, fmt.Errorf("query: scan device timeline point: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DeviceIntervals computes ComputeIntervals over a device's raw uplink
// timestamps in the window.
func (q *Query) DeviceIntervals(ctx context.Context, devAddr string, since, until time.Time) (IntervalStats, error) {
	const stmt = `
SELECT "timestamp" FROM packets
WHERE dev_addr = $1 AND "timestamp" >= $2 AND "timestamp" < $3
  AND packet_type IN ('data', 'join_request')
ORDER BY "timestamp"`

	var timestamps []time.Time
	if err := q.db.SelectContext(ctx, &timestamps, stmt, devAddr, since, until); err != nil {
		return IntervalStats{}, fmt.Errorf("query: device intervals for %q: %w", devAddr, err)
	}
	return ComputeIntervals(timestamps), nil
}

// DeviceDistributions returns the channel/SF distribution scoped to a
// single device — always read from raw packets since the hourly
// channel/SF aggregate carries no device dimension.
func (q *Query) DeviceDistributions(ctx context.Context, devAddr string, since, until time.Time) ([]ChannelSFPoint, error) {
	const stmt = `
SELECT frequency, COALESCE(sf, 0), COUNT(*), SUM(airtime_us)
FROM packets
WHERE dev_addr = $1 AND "timestamp" >= $2 AND "timestamp" < $3
GROUP BY frequency, COALESCE(sf, 0) ORDER BY frequency, 2`

	rows, err := q.db.QueryxContext(ctx, stmt, devAddr, since, until)
	if err != nil {
		return nil, fmt.Errorf("query: device distributions for %q: %w", devAddr, err)
	}
	defer rows.Close()
	return scanChannelSFPoints(rows)
}

// CsDeviceList mirrors GatewayList for the ChirpStack-scoped
// (application-bus) view: packet and airtime counts per DevEUI from
// raw cs_packets (no continuous aggregate exists for this stream).
func (q *Query) CsDeviceList(ctx context.Context, since, until time.Time) ([]CsDeviceSummary, error) {
	const stmt = `
SELECT dev_eui, COALESCE(MAX(device_name), ''), COUNT(*), COALESCE(SUM(airtime_us), 0)
FROM cs_packets
WHERE "timestamp" >= $1 AND "timestamp" < $2
GROUP BY dev_eui ORDER BY dev_eui`

	rows, err := q.db.QueryxContext(ctx, stmt, since, until)
	if err != nil {
		return nil, fmt.Errorf("query: cs device list: %w", err)
	}
	defer rows.Close()

	var out []CsDeviceSummary
	for rows.Next() {
		var d CsDeviceSummary
		if err := rows.Scan(&d.DevEUI, &d.DeviceName, &d.PacketCount, &d.AirtimeUs); err != nil {
			return nil, fmt.Errorf("query: scan cs device summary: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// CsTimeSeries mirrors TimeSeries for the application-bus stream,
// always against raw cs_packets since it has no hourly aggregate.
func (q *Query) CsTimeSeries(ctx context.Context, since, until time.Time, bucket time.Duration, devEUI string) ([]TimeSeriesPoint, error) {
	b := psqlQuery().Select().
		Column(bucketExpr(bucket)).
		Column("COUNT(*) AS value").
		From("cs_packets").
		Where(sq.And{sq.GtOrEq{`"timestamp"`: since}, sq.Lt{`"timestamp"`: until}}).
		GroupBy("bucket").OrderBy("bucket")

	if devEUI != "" {
		b = b.Where(sq.Eq{"dev_eui": devEUI})
	}

	stmt, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("query: build cs time series: %w", err)
	}

	rows, err := q.db.QueryxContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query: cs time series: %w", err)
	}
	defer rows.Close()

	var out []TimeSeriesPoint
	for rows.Next() {
		var p TimeSeriesPoint
		if err := rows.Scan(&p.Timestamp, &p.Value); err != nil {
			return nil, fmt.Errorf("query: scan cs time series point: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// JoinActivity buckets join_request volume by operator over the
// window.
func (q *Query) JoinActivity(ctx context.Context, since, until time.Time, bucket time.Duration) ([]JoinActivityPoint, error) {
	const stmt = `
SELECT time_bucket(make_interval(secs => $1), "timestamp") AS bucket, operator, COUNT(*) AS join_count
FROM packets
WHERE packet_type = 'join_request' AND "timestamp" >= $2 AND "timestamp" < $3
GROUP BY bucket, operator ORDER BY bucket`

	rows, err := q.db.QueryxContext(ctx, stmt, bucket.Seconds(), since, until)
	if err != nil {
		return nil, fmt.Errorf("query: join activity: %w", err)
	}
	defer rows.Close()

	var out []JoinActivityPoint
	for rows.Next() {
		var p JoinActivityPoint
		if err := rows.Scan(&p.Timestamp, &p.Operator, &p.JoinCount); err != nil {
			return nil, fmt.Errorf("query: scan join activity point: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
