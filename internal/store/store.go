// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of lorawan-analyzer.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package store

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/chirpwatch/lorawan-analyzer/model"
)

// Store implements writer.Store against a single Postgres/TimescaleDB
// connection pool.
type Store struct {
	db *sqlx.DB
}

// New wraps an already-connected pool. Use Connect to obtain one.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// InsertPackets writes rows as a single multi-row insert, preserving
// production order within the batch.
func (s *Store) InsertPackets(ctx context.Context, rows []*model.ParsedPacket) error {
	if len(rows) == 0 {
		return nil
	}

	sqlStr, args, err := buildInsertPacketsSQL(rows)
	if err != nil {
		return fmt.Errorf("store: build insert packets: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("store: insert packets: %w", err)
	}
	return nil
}

func buildInsertPacketsSQL(rows []*model.ParsedPacket) (string, []interface{}, error) {
	q := psql.Insert("packets").Columns(
		"timestamp", "packet_type", "gateway_id", "border_gateway_id",
		"dev_addr", "join_eui", "dev_eui", "operator",
		"frequency", "sf", "bandwidth", "rssi", "snr",
		"payload_size", "airtime_us", "f_cnt", "f_port", "confirmed", "session_id",
	)
	for _, r := range rows {
		q = q.Values(
			r.Timestamp, r.Type, r.GatewayID, r.BorderGatewayID,
			r.DevAddr, r.JoinEUI, r.DevEUI, r.Operator,
			r.Frequency, r.SpreadingFactor, r.Bandwidth, r.RSSI, r.SNR,
			r.PayloadSize, r.AirtimeUs, r.FCnt, r.FPort, r.Confirmed, r.SessionID,
		)
	}
	return q.ToSql()
}

// InsertCsPackets writes application-bus rows as a single multi-row
// insert.
func (s *Store) InsertCsPackets(ctx context.Context, rows []*model.CsPacket) error {
	if len(rows) == 0 {
		return nil
	}

	sqlStr, args, err := buildInsertCsPacketsSQL(rows)
	if err != nil {
		return fmt.Errorf("store: build insert cs packets: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("store: insert cs packets: %w", err)
	}
	return nil
}

func buildInsertCsPacketsSQL(rows []*model.CsPacket) (string, []interface{}, error) {
	q := psql.Insert("cs_packets").Columns(
		"timestamp", "dev_eui", "dev_addr", "device_name", "application_id", "operator",
		"frequency", "sf", "bandwidth", "rssi", "snr",
		"payload_size", "airtime_us", "f_cnt", "f_port", "confirmed",
	)
	for _, r := range rows {
		q = q.Values(
			r.Timestamp, r.DevEUI, r.DevAddr, r.DeviceName, r.ApplicationID, r.Operator,
			r.Frequency, r.SpreadingFactor, r.Bandwidth, r.RSSI, r.SNR,
			r.PayloadSize, r.AirtimeUs, r.FCnt, r.FPort, r.Confirmed,
		)
	}
	return q.ToSql()
}

// CustomOperatorRow is one user-defined rule persisted in the
// custom_operators table, merged into the in-memory rule table at
// startup and on reload.
type CustomOperatorRow struct {
	Name     string  `db:"name"`
	Prefix   string  `db:"prefix"`
	Bits     int     `db:"bits"`
	Priority int     `db:"priority"`
	Color    *string `db:"color"`
	Expr     *string `db:"expr"`
}

// ListCustomOperators returns every persisted custom operator rule in
// creation order.
func (s *Store) ListCustomOperators(ctx context.Context) ([]CustomOperatorRow, error) {
	const q = `SELECT name, prefix, bits, priority, color, expr FROM custom_operators ORDER BY id`
	var out []CustomOperatorRow
	if err := s.db.SelectContext(ctx, &out, q); err != nil {
		return nil, fmt.Errorf("store: list custom operators: %w", err)
	}
	return out, nil
}

// UpsertGateway creates the gateway row on first sighting and
// preserves any field left unset thereafter.
func (s *Store) UpsertGateway(ctx context.Context, id string, name, alias, group *string, lat, lon *float64) error {
	const q = `
INSERT INTO gateways (gateway_id, name, alias, group_name, latitude, longitude, first_seen, last_seen)
VALUES ($1, $2, $3, $4, $5, $6, now(), now())
ON CONFLICT (gateway_id) DO UPDATE SET
    name = COALESCE(EXCLUDED.name, gateways.name),
    alias = COALESCE(EXCLUDED.alias, gateways.alias),
    group_name = COALESCE(EXCLUDED.group_name, gateways.group_name),
    latitude = COALESCE(EXCLUDED.latitude, gateways.latitude),
    longitude = COALESCE(EXCLUDED.longitude, gateways.longitude),
    last_seen = now()
`
	if _, err := s.db.ExecContext(ctx, q, id, name, alias, group, lat, lon); err != nil {
		return fmt.Errorf("store: upsert gateway %q: %w", id, err)
	}
	return nil
}

// UpsertCsDevice creates the device row on first sighting, preserves
// any field left unset, and increments packet_count on every call.
func (s *Store) UpsertCsDevice(ctx context.Context, devEUI string, devAddr *string, deviceName, applicationID string, applicationName *string) error {
	const q = `
INSERT INTO cs_devices (dev_eui, dev_addr, device_name, application_id, application_name, last_seen, packet_count)
VALUES ($1, $2, $3, $4, $5, now(), 1)
ON CONFLICT (dev_eui) DO UPDATE SET
    dev_addr = COALESCE(EXCLUDED.dev_addr, cs_devices.dev_addr),
    device_name = CASE WHEN EXCLUDED.device_name <> '' THEN EXCLUDED.device_name ELSE cs_devices.device_name END,
    application_id = CASE WHEN EXCLUDED.application_id <> '' THEN EXCLUDED.application_id ELSE cs_devices.application_id END,
    application_name = COALESCE(EXCLUDED.application_name, cs_devices.application_name),
    last_seen = now(),
    packet_count = cs_devices.packet_count + 1
`
	if _, err := s.db.ExecContext(ctx, q, devEUI, devAddr, deviceName, applicationID, applicationName); err != nil {
		return fmt.Errorf("store: upsert cs device %q: %w", devEUI, err)
	}
	return nil
}
