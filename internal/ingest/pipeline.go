// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of lorawan-analyzer.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package ingest

import (
	"time"

	"github.com/chirpwatch/lorawan-analyzer/internal/airtime"
	"github.com/chirpwatch/lorawan-analyzer/internal/decode"
	"github.com/chirpwatch/lorawan-analyzer/internal/operator"
	"github.com/chirpwatch/lorawan-analyzer/internal/phy"
	"github.com/chirpwatch/lorawan-analyzer/internal/session"
	"github.com/chirpwatch/lorawan-analyzer/model"
	"github.com/chirpwatch/lorawan-analyzer/pkg/log"
)

// defaultCodingRate is assumed for application-bus uplinks, which
// carry spreading factor and bandwidth but not the coding rate.
const defaultCodingRate = "4/5"

// Sinks is where the Pipeline delivers its output. Each field is
// written to independently so the writer and the broadcaster each see
// every packet without racing each other for it.
type Sinks struct {
	WriterPackets      chan<- *model.ParsedPacket
	WriterCsPackets    chan<- *model.CsPacket
	BroadcastPackets   chan<- *model.ParsedPacket
	BroadcastCsPackets chan<- *model.CsPacket
	BroadcastLive      chan<- *model.LivePacket
}

// PipelineCounter receives per-topic-kind decode and parse counts.
// Satisfied structurally by *metrics.Collector; left nil, the
// Pipeline just skips the counts.
type PipelineCounter interface {
	IncDecodeError(kind string)
	IncParsedPacket(packetType string)
}

// Pipeline is the single consumer of the fan-out channel. Decoders,
// airtime, operator resolution and session tracking all run on this
// one goroutine; nothing here needs its own locking beyond what Table
// and Tracker already provide.
type Pipeline struct {
	Operators *operator.Table
	Sessions  *session.Tracker
	Sinks     Sinks
	Metrics   PipelineCounter
}

// Run processes messages from in until it is closed.
func (p *Pipeline) Run(in <-chan RawMessage) {
	for raw := range in {
		p.process(raw)
	}
}

func (p *Pipeline) process(raw RawMessage) {
	topic := decode.ParseTopic(raw.Topic)

	switch topic.Kind {
	case decode.KindGatewayUp:
		p.processGatewayFrame(raw, topic, false)
	case decode.KindGatewayDown:
		p.processGatewayFrame(raw, topic, true)
	case decode.KindGatewayAck:
		p.processGatewayAck(raw, topic)
	case decode.KindGatewayStats:
		// ignored
	case decode.KindAppUp:
		p.processAppUplink(raw)
	case decode.KindAppTxAck:
		p.processAppAckLike(raw, model.PacketTxAck, decodeAppTxAckNotice)
	case decode.KindAppAck:
		p.processAppAckLike(raw, model.PacketTxAck, decodeAppAckNotice)
	case decode.KindAppCommandDown:
		p.processAppAckLike(raw, model.PacketDownlink, decodeAppCommandDownNotice)
	default:
		// unknown topic shape; dropped silently
	}
}

// incDecodeError records a decode failure, by topic kind, if a
// counter is wired.
func (p *Pipeline) incDecodeError(kind string) {
	if p.Metrics != nil {
		p.Metrics.IncDecodeError(kind)
	}
}

// incParsed records a successfully parsed packet, by type, if a
// counter is wired.
func (p *Pipeline) incParsed(packetType model.PacketType) {
	if p.Metrics != nil {
		p.Metrics.IncParsedPacket(string(packetType))
	}
}

func (p *Pipeline) processGatewayFrame(raw RawMessage, topic decode.Topic, isDown bool) {
	gf, err := decode.DecodeGatewayFrame(raw.Payload, raw.Format, topic.GatewayID)
	if err != nil {
		log.Warnf("ingest: drop malformed gateway frame from %s: %v", topic.GatewayID, err)
		p.incDecodeError("gateway_frame")
		return
	}

	f, err := phy.Decode(gf.PhyPayload)
	if err != nil {
		log.Warnf("ingest: drop malformed PHYPayload from %s: %v", topic.GatewayID, err)
		p.incDecodeError("phy_payload")
		return
	}

	now := time.Now()
	pkt := &model.ParsedPacket{
		Timestamp:       timestampOr(gf.Timestamp, now),
		GatewayID:       gf.GatewayID,
		BorderGatewayID: gf.BorderGatewayID,
		Frequency:       gf.Frequency,
		Bandwidth:       gf.Bandwidth,
		RSSI:            gf.RSSI,
		SNR:             gf.SNR,
		PayloadSize:     len(gf.PhyPayload),
		FCnt:            widenFCnt(f.FCnt),
		FPort:           f.FPort,
		Confirmed:       f.Confirmed,
	}
	if gf.SpreadingFactor != 0 {
		sf := gf.SpreadingFactor
		pkt.SpreadingFactor = &sf
	}
	if gf.Location != nil {
		lat, lon := gf.Location.Latitude, gf.Location.Longitude
		pkt.GatewayLat = &lat
		pkt.GatewayLon = &lon
		if gf.Location.Name != "" {
			name := gf.Location.Name
			pkt.GatewayName = &name
		}
	}
	pkt.AirtimeUs = airtime.Compute(airtime.Params{
		SpreadingFactor: gf.SpreadingFactor,
		BandwidthHz:     gf.Bandwidth,
		PayloadSize:     pkt.PayloadSize,
		CodingRate:      gf.CodingRate,
	})

	switch {
	case isDown:
		pkt.Type = model.PacketDownlink
	case f.MType == phy.MTypeJoinRequest:
		pkt.Type = model.PacketJoinRequest
	default:
		pkt.Type = model.PacketData
	}

	switch pkt.Type {
	case model.PacketJoinRequest:
		joinEUI := f.JoinEUI
		pkt.JoinEUI = &joinEUI
		op := p.Operators.MatchJoinEUI(joinEUI)
		pkt.Operator = op
		if f.DevEUI != "" {
			devEUI := f.DevEUI
			pkt.DevEUI = &devEUI
			sessionID := p.Sessions.OnJoinRequest(f.DevEUI, joinEUI, op, now)
			pkt.SessionID = &sessionID
		}
	case model.PacketData, model.PacketDownlink:
		if f.DevAddr != "" {
			devAddr := f.DevAddr
			pkt.DevAddr = &devAddr
			pkt.Operator = p.Operators.MatchDevAddr(f.DevAddr)

			var sessionID, devEUI string
			var bound bool
			if pkt.Type == model.PacketData {
				sessionID, devEUI, bound = p.Sessions.OnDataUplink(f.DevAddr, pkt.Operator, now)
			} else {
				sessionID, devEUI, bound = p.Sessions.OnDownlink(f.DevAddr, now)
			}
			if bound {
				pkt.SessionID = &sessionID
				pkt.DevEUI = &devEUI
			}
		} else {
			pkt.Operator = operator.UnknownOperator
		}
	}

	p.incParsed(pkt.Type)
	p.Sinks.WriterPackets <- pkt
	p.Sinks.BroadcastPackets <- pkt
}

func (p *Pipeline) processGatewayAck(raw RawMessage, topic decode.Topic) {
	ack, err := decode.DecodeGatewayAck(raw.Payload, raw.Format, topic.GatewayID)
	if err != nil {
		log.Warnf("ingest: drop malformed gateway ack from %s: %v", topic.GatewayID, err)
		p.incDecodeError("gateway_ack")
		return
	}

	correlationID := ack.CorrelationID
	pkt := &model.ParsedPacket{
		Timestamp: time.Now(),
		Type:      model.PacketTxAck,
		GatewayID: ack.GatewayID,
		Operator:  ack.StatusName,
		FCnt:      &correlationID,
	}

	p.incParsed(pkt.Type)
	p.Sinks.WriterPackets <- pkt
	p.Sinks.BroadcastPackets <- pkt
}

func (p *Pipeline) processAppUplink(raw RawMessage) {
	up, err := decode.DecodeAppUplink(raw.Payload)
	if err != nil {
		log.Warnf("ingest: drop malformed application uplink: %v", err)
		p.incDecodeError("app_uplink")
		return
	}

	cs := &model.CsPacket{
		Timestamp:       timestampOr(up.Time, time.Now()),
		DevEUI:          up.DevEUI,
		DevAddr:         up.DevAddr,
		DeviceName:      up.DeviceName,
		ApplicationID:   up.ApplicationID,
		ApplicationName: up.ApplicationName,
		Frequency:       up.Frequency,
		Bandwidth:       up.Bandwidth,
		RSSI:            up.RSSI,
		SNR:             up.SNR,
		PayloadSize:     up.PayloadSize,
		FCnt:            up.FCnt,
		FPort:           up.FPort,
		Confirmed:       up.Confirmed,
	}
	if up.SpreadingFactor != 0 {
		sf := up.SpreadingFactor
		cs.SpreadingFactor = &sf
	}
	cs.AirtimeUs = airtime.Compute(airtime.Params{
		SpreadingFactor: up.SpreadingFactor,
		BandwidthHz:     up.Bandwidth,
		PayloadSize:     up.PayloadSize,
		CodingRate:      defaultCodingRate,
	})

	// Application-bus rows attribute traffic to the application, not
	// the network operator.
	if up.ApplicationName != nil && *up.ApplicationName != "" {
		cs.Operator = *up.ApplicationName
	} else {
		cs.Operator = up.ApplicationID
	}

	p.incParsed(model.PacketData)
	p.Sinks.WriterCsPackets <- cs
	p.Sinks.BroadcastCsPackets <- cs
}

// appAckNotice is the live-feed-only payload shared by the three
// acknowledgement-shaped application events. They produce no persisted
// row, so all that survives is identity and a transmission status.
type appAckNotice struct {
	devEUI string
	appID  string
	status string
}

func decodeAppTxAckNotice(raw []byte) (appAckNotice, error) {
	ack, err := decode.DecodeAppTxAck(raw)
	if err != nil {
		return appAckNotice{}, err
	}
	return appAckNotice{devEUI: ack.DevEUI, appID: ack.ApplicationID, status: "OK"}, nil
}

func decodeAppAckNotice(raw []byte) (appAckNotice, error) {
	ack, err := decode.DecodeAppAck(raw)
	if err != nil {
		return appAckNotice{}, err
	}
	status := "NACK"
	if ack.Acknowledged {
		status = "ACK"
	}
	return appAckNotice{devEUI: ack.DevEUI, appID: ack.ApplicationID, status: status}, nil
}

func decodeAppCommandDownNotice(raw []byte) (appAckNotice, error) {
	cmd, err := decode.DecodeAppDownlinkCommand(raw)
	if err != nil {
		return appAckNotice{}, err
	}
	return appAckNotice{devEUI: cmd.DevEUI, appID: cmd.ApplicationID}, nil
}

func (p *Pipeline) processAppAckLike(raw RawMessage, ptype model.PacketType, decodeFn func([]byte) (appAckNotice, error)) {
	notice, err := decodeFn(raw.Payload)
	if err != nil {
		log.Warnf("ingest: drop malformed application event: %v", err)
		p.incDecodeError("app_ack")
		return
	}

	source := "chirpstack"
	devEUI := notice.devEUI
	lp := &model.LivePacket{
		TimestampMs: time.Now().UnixMilli(),
		Type:        ptype,
		DevEUI:      &devEUI,
		Operator:    notice.appID,
		Source:      &source,
	}
	if notice.status != "" {
		status := notice.status
		lp.TxStatus = &status
	}
	p.incParsed(ptype)
	p.Sinks.BroadcastLive <- lp
}

func timestampOr(t *time.Time, fallback time.Time) time.Time {
	if t != nil {
		return *t
	}
	return fallback
}

func widenFCnt(fcnt *uint16) *uint32 {
	if fcnt == nil {
		return nil
	}
	v := uint32(*fcnt)
	return &v
}
