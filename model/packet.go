// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of lorawan-analyzer.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package model holds the wire and storage types shared across the
// ingestion pipeline: the canonical gateway-side packet, its
// application-bus shadow, gateway/device metadata rows, and the
// real-time wire format sent to live-feed subscribers.
package model

import (
	"strconv"
	"time"
)

// PacketType enumerates the kinds of events the pipeline can emit.
type PacketType string

const (
	PacketData        PacketType = "data"
	PacketJoinRequest PacketType = "join_request"
	PacketDownlink    PacketType = "downlink"
	PacketTxAck       PacketType = "tx_ack"
)

// ParsedPacket is the canonical record produced by the gateway-side
// pipeline (MQTT gateway-bridge events).
//
// GatewayName, GatewayLat and GatewayLon ride along for the metadata
// upsert and the live feed; they are not columns of the packets
// hypertable.
type ParsedPacket struct {
	Timestamp time.Time  `json:"timestamp" db:"timestamp"`
	Type      PacketType `json:"type" db:"packet_type"`

	GatewayID       string   `json:"gateway_id" db:"gateway_id"`
	BorderGatewayID *string  `json:"border_gateway_id,omitempty" db:"border_gateway_id"`
	GatewayName     *string  `json:"gateway_name,omitempty" db:"-"`
	GatewayLat      *float64 `json:"-" db:"-"`
	GatewayLon      *float64 `json:"-" db:"-"`

	DevAddr *string `json:"dev_addr,omitempty" db:"dev_addr"`
	JoinEUI *string `json:"join_eui,omitempty" db:"join_eui"`
	DevEUI  *string `json:"dev_eui,omitempty" db:"dev_eui"`

	Operator string `json:"operator" db:"operator"`

	Frequency       int64   `json:"frequency" db:"frequency"`
	SpreadingFactor *int    `json:"spreading_factor,omitempty" db:"sf"`
	Bandwidth       int64   `json:"bandwidth" db:"bandwidth"`
	RSSI            int32   `json:"rssi" db:"rssi"`
	SNR             float64 `json:"snr" db:"snr"`
	PayloadSize     int     `json:"payload_size" db:"payload_size"`
	AirtimeUs       int64   `json:"airtime_us" db:"airtime_us"`

	FCnt      *uint32 `json:"f_cnt,omitempty" db:"f_cnt"`
	FPort     *uint8  `json:"f_port,omitempty" db:"f_port"`
	Confirmed *bool   `json:"confirmed,omitempty" db:"confirmed"`

	SessionID *string `json:"session_id,omitempty" db:"session_id"`
}

// CsPacket is the application-bus shadow of an uplink, keyed by DevEUI
// rather than gateway id.
type CsPacket struct {
	Timestamp time.Time `json:"timestamp" db:"timestamp"`

	DevEUI        string  `json:"dev_eui" db:"dev_eui"`
	DevAddr       *string `json:"dev_addr,omitempty" db:"dev_addr"`
	DeviceName    string  `json:"device_name" db:"device_name"`
	ApplicationID string  `json:"application_id" db:"application_id"`
	Operator      string  `json:"operator" db:"operator"`

	// ApplicationName rides along for the device metadata upsert; the
	// cs_packets row itself carries it in Operator.
	ApplicationName *string `json:"-" db:"-"`

	Frequency       int64   `json:"frequency" db:"frequency"`
	SpreadingFactor *int    `json:"spreading_factor,omitempty" db:"sf"`
	Bandwidth       int64   `json:"bandwidth" db:"bandwidth"`
	RSSI            int32   `json:"rssi" db:"rssi"`
	SNR             float64 `json:"snr" db:"snr"`
	PayloadSize     int     `json:"payload_size" db:"payload_size"`
	AirtimeUs       int64   `json:"airtime_us" db:"airtime_us"`

	FCnt      *uint32 `json:"f_cnt,omitempty" db:"f_cnt"`
	FPort     *uint8  `json:"f_port,omitempty" db:"f_port"`
	Confirmed *bool   `json:"confirmed,omitempty" db:"confirmed"`
}

// Gateway is the metadata row for a single gateway id, upserted on
// every sighting.
type Gateway struct {
	GatewayID string    `json:"gateway_id" db:"gateway_id"`
	Name      *string   `json:"name,omitempty" db:"name"`
	Alias     *string   `json:"alias,omitempty" db:"alias"`
	GroupName *string   `json:"group_name,omitempty" db:"group_name"`
	FirstSeen time.Time `json:"first_seen" db:"first_seen"`
	LastSeen  time.Time `json:"last_seen" db:"last_seen"`
	Latitude  *float64  `json:"latitude,omitempty" db:"latitude"`
	Longitude *float64  `json:"longitude,omitempty" db:"longitude"`
}

// CsDevice is the metadata row for a DevEUI seen on the application
// bus.
type CsDevice struct {
	DevEUI          string    `json:"dev_eui" db:"dev_eui"`
	DevAddr         *string   `json:"dev_addr,omitempty" db:"dev_addr"`
	DeviceName      string    `json:"device_name" db:"device_name"`
	ApplicationID   string    `json:"application_id" db:"application_id"`
	ApplicationName *string   `json:"application_name,omitempty" db:"application_name"`
	LastSeen        time.Time `json:"last_seen" db:"last_seen"`
	PacketCount     int64     `json:"packet_count" db:"packet_count"`
}

// LivePacket is the wire format sent to subscribed live-feed clients.
type LivePacket struct {
	TimestampMs     int64      `json:"timestamp"`
	GatewayID       string     `json:"gateway_id"`
	GatewayName     *string    `json:"gateway_name,omitempty"`
	BorderGatewayID *string    `json:"border_gateway_id,omitempty"`
	Type            PacketType `json:"type"`
	DevAddr         *string    `json:"dev_addr,omitempty"`
	DevEUI          *string    `json:"dev_eui,omitempty"`
	DeviceName      *string    `json:"device_name,omitempty"`
	JoinEUI         *string    `json:"join_eui,omitempty"`
	Operator        string     `json:"operator"`
	DataRate        string     `json:"data_rate"`
	FrequencyMHz    float64    `json:"frequency"`
	SNR             float64    `json:"snr"`
	RSSI            int32      `json:"rssi"`
	PayloadSize     int        `json:"payload_size"`
	AirtimeMs       float64    `json:"airtime_ms"`
	FCnt            *uint32    `json:"f_cnt,omitempty"`
	FPort           *uint8     `json:"f_port,omitempty"`
	Confirmed       *bool      `json:"confirmed,omitempty"`
	TxStatus        *string    `json:"tx_status,omitempty"`
	Source          *string    `json:"source,omitempty"`
}

// ToLivePacket renders a ParsedPacket into the wire format delivered to
// live-feed subscribers.
func (p *ParsedPacket) ToLivePacket() *LivePacket {
	lp := &LivePacket{
		TimestampMs:     p.Timestamp.UnixMilli(),
		GatewayID:       p.GatewayID,
		GatewayName:     p.GatewayName,
		BorderGatewayID: p.BorderGatewayID,
		Type:            p.Type,
		DevAddr:         p.DevAddr,
		DevEUI:          p.DevEUI,
		JoinEUI:         p.JoinEUI,
		Operator:        p.Operator,
		FrequencyMHz:    float64(p.Frequency) / 1e6,
		SNR:             p.SNR,
		RSSI:            p.RSSI,
		PayloadSize:     p.PayloadSize,
		AirtimeMs:       float64(p.AirtimeUs) / 1000,
		FCnt:            p.FCnt,
		FPort:           p.FPort,
		Confirmed:       p.Confirmed,
	}

	if p.SpreadingFactor != nil {
		lp.DataRate = formatDataRate(*p.SpreadingFactor, p.Bandwidth)
	}

	if p.Type == PacketTxAck {
		status := p.Operator
		lp.TxStatus = &status
	}

	return lp
}

// ToLivePacket renders an application-bus packet into the live-feed
// wire format, marked with source "chirpstack".
func (c *CsPacket) ToLivePacket() *LivePacket {
	source := "chirpstack"
	devEUI := c.DevEUI
	lp := &LivePacket{
		TimestampMs:  c.Timestamp.UnixMilli(),
		Type:         PacketData,
		DevEUI:       &devEUI,
		DevAddr:      c.DevAddr,
		Operator:     c.Operator,
		FrequencyMHz: float64(c.Frequency) / 1e6,
		SNR:          c.SNR,
		RSSI:         c.RSSI,
		PayloadSize:  c.PayloadSize,
		AirtimeMs:    float64(c.AirtimeUs) / 1000,
		FCnt:         c.FCnt,
		FPort:        c.FPort,
		Confirmed:    c.Confirmed,
		Source:       &source,
	}
	if c.DeviceName != "" {
		name := c.DeviceName
		lp.DeviceName = &name
	}
	if c.SpreadingFactor != nil {
		lp.DataRate = formatDataRate(*c.SpreadingFactor, c.Bandwidth)
	}
	return lp
}

func formatDataRate(sf int, bwHz int64) string {
	bwKHz := bwHz / 1000
	return "SF" + strconv.Itoa(sf) + "BW" + strconv.Itoa(int(bwKHz))
}
