// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of lorawan-analyzer.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chirpwatch/lorawan-analyzer/internal/operator"
	"github.com/chirpwatch/lorawan-analyzer/internal/session"
	"github.com/chirpwatch/lorawan-analyzer/model"
)

type fakePipelineCounter struct {
	decodeErrors map[string]int
	parsed       map[string]int
}

func newFakePipelineCounter() *fakePipelineCounter {
	return &fakePipelineCounter{decodeErrors: map[string]int{}, parsed: map[string]int{}}
}

func (c *fakePipelineCounter) IncDecodeError(kind string)        { c.decodeErrors[kind]++ }
func (c *fakePipelineCounter) IncParsedPacket(packetType string) { c.parsed[packetType]++ }

func newTestPipeline(t *testing.T) (*Pipeline, chan *model.ParsedPacket, chan *model.ParsedPacket) {
	tbl := operator.NewTable()
	require.NoError(t, tbl.Load(operator.DefaultDevAddrRules(), operator.DefaultJoinEUIRules()))

	writerCh := make(chan *model.ParsedPacket, 4)
	broadcastCh := make(chan *model.ParsedPacket, 4)

	p := &Pipeline{
		Operators: tbl,
		Sessions:  session.New(time.Hour),
		Sinks: Sinks{
			WriterPackets:      writerCh,
			WriterCsPackets:    make(chan *model.CsPacket, 4),
			BroadcastPackets:   broadcastCh,
			BroadcastCsPackets: make(chan *model.CsPacket, 4),
			BroadcastLive:      make(chan *model.LivePacket, 4),
		},
	}
	return p, writerCh, broadcastCh
}

func TestUplinkDecodeAndAirtime(t *testing.T) {
	p, writerCh, broadcastCh := newTestPipeline(t)

	// 16-byte unconfirmed data-up PHYPayload for DevAddr 26011AAB.
	payload := []byte(`{
		"phyPayload": "QKsaASYAAQABAQIDBAUGBw==",
		"txInfo": {"frequency": 868100000, "modulation": {"lora": {"spreadingFactor": 7, "bandwidth": 125000, "codeRate": "4/5"}}},
		"rxInfo": {"rssi": -42, "snr": 7.5}
	}`)

	p.process(RawMessage{Topic: "eu868/gateway/aabbccdd/event/up", Payload: payload, Format: "json"})

	pkt := <-writerCh
	require.Equal(t, model.PacketData, pkt.Type)
	require.Equal(t, "The Things Network", pkt.Operator)
	require.Equal(t, 16, pkt.PayloadSize)
	require.InDelta(t, 51456, pkt.AirtimeUs, 1)
	require.False(t, *pkt.Confirmed)
	require.NotNil(t, pkt.DevAddr)
	require.Equal(t, "26011AAB", *pkt.DevAddr)

	bpkt := <-broadcastCh
	require.Same(t, pkt, bpkt)
}

func TestGatewayAckProducesTxAckPacket(t *testing.T) {
	p, writerCh, _ := newTestPipeline(t)

	payload := []byte(`{"downlinkId": 42, "items": [{"status": 4}]}`)
	p.process(RawMessage{Topic: "eu868/gateway/aabbccdd/event/ack", Payload: payload, Format: "json"})

	pkt := <-writerCh
	require.Equal(t, model.PacketTxAck, pkt.Type)
	require.Equal(t, "CollisionPacket", pkt.Operator)
	require.NotNil(t, pkt.FCnt)
	require.Equal(t, uint32(42), *pkt.FCnt)
	require.Equal(t, int32(0), pkt.RSSI)
	require.Equal(t, 0.0, pkt.SNR)
}

func TestGatewayStatsIsIgnored(t *testing.T) {
	p, writerCh, _ := newTestPipeline(t)
	p.process(RawMessage{Topic: "eu868/gateway/aabbccdd/event/stats", Payload: []byte(`{}`), Format: "json"})

	select {
	case <-writerCh:
		t.Fatal("expected no packet for a stats event")
	default:
	}
}

func TestMalformedTopicIsDroppedSilently(t *testing.T) {
	p, writerCh, _ := newTestPipeline(t)
	p.process(RawMessage{Topic: "nonsense", Payload: []byte(`{}`), Format: "json"})

	select {
	case <-writerCh:
		t.Fatal("expected no packet for an unknown topic")
	default:
	}
}

func TestMetricsCountParsedAndDecodeErrors(t *testing.T) {
	p, writerCh, _ := newTestPipeline(t)
	counter := newFakePipelineCounter()
	p.Metrics = counter

	p.process(RawMessage{Topic: "eu868/gateway/aabbccdd/event/up", Payload: []byte(`{
		"phyPayload": "QKsaASYAAQAB",
		"txInfo": {"frequency": 868100000, "modulation": {"lora": {"spreadingFactor": 7, "bandwidth": 125000, "codeRate": "4/5"}}},
		"rxInfo": {"rssi": -42, "snr": 7.5}
	}`), Format: "json"})
	<-writerCh
	require.Equal(t, 1, counter.parsed[string(model.PacketData)])

	p.process(RawMessage{Topic: "eu868/gateway/aabbccdd/event/up", Payload: []byte(`not json`), Format: "json"})
	require.Equal(t, 1, counter.decodeErrors["gateway_frame"])
}

func TestAppUplinkAttributesToApplication(t *testing.T) {
	tbl := operator.NewTable()
	require.NoError(t, tbl.Load(operator.DefaultDevAddrRules(), operator.DefaultJoinEUIRules()))

	csCh := make(chan *model.CsPacket, 4)
	p := &Pipeline{
		Operators: tbl,
		Sessions:  session.New(time.Hour),
		Sinks: Sinks{
			WriterPackets:      make(chan *model.ParsedPacket, 4),
			WriterCsPackets:    csCh,
			BroadcastPackets:   make(chan *model.ParsedPacket, 4),
			BroadcastCsPackets: make(chan *model.CsPacket, 4),
			BroadcastLive:      make(chan *model.LivePacket, 4),
		},
	}

	payload := []byte(`{
		"deviceInfo": {"devEui": "0011223344556677", "deviceName": "sensor-1", "applicationId": "42", "applicationName": "farm-app"},
		"devAddr": "26011AAB",
		"rxInfo": [{"rssi": -80, "snr": 6.2}],
		"txInfo": {"frequency": 868300000, "modulation": {"lora": {"spreadingFactor": 9, "bandwidth": 125000}}},
		"data": "QKsaASYAAQAB",
		"fCnt": 12
	}`)
	p.process(RawMessage{Topic: "application/42/device/0011223344556677/event/up", Payload: payload})

	cs := <-csCh
	require.Equal(t, "farm-app", cs.Operator)
	require.Equal(t, "sensor-1", cs.DeviceName)
}

func TestAppAckCarriesTxStatus(t *testing.T) {
	p, _, _ := newTestPipeline(t)
	liveCh := make(chan *model.LivePacket, 4)
	p.Sinks.BroadcastLive = liveCh

	payload := []byte(`{"deviceInfo": {"devEui": "0011223344556677", "applicationId": "42"}, "acknowledged": false}`)
	p.process(RawMessage{Topic: "application/42/device/0011223344556677/event/ack", Payload: payload})

	lp := <-liveCh
	require.Equal(t, model.PacketTxAck, lp.Type)
	require.NotNil(t, lp.TxStatus)
	require.Equal(t, "NACK", *lp.TxStatus)
	require.NotNil(t, lp.Source)
	require.Equal(t, "chirpstack", *lp.Source)
}

func TestJoinRequestThenUplinkBindsSession(t *testing.T) {
	p, writerCh, _ := newTestPipeline(t)

	joinPayload := []byte(`{
		"phyPayload": "AAEAANB+1bNwd2ZVRDMiEQASNA==",
		"txInfo": {"frequency": 868100000, "modulation": {"lora": {"spreadingFactor": 7, "bandwidth": 125000, "codeRate": "4/5"}}},
		"rxInfo": {"rssi": -50, "snr": 8}
	}`)
	p.process(RawMessage{Topic: "eu868/gateway/aabbccdd/event/up", Payload: joinPayload, Format: "json"})
	joinPkt := <-writerCh
	require.Equal(t, model.PacketJoinRequest, joinPkt.Type)
	require.NotNil(t, joinPkt.SessionID)

	upPayload := []byte(`{
		"phyPayload": "QKsaASYAAQAB",
		"txInfo": {"frequency": 868100000, "modulation": {"lora": {"spreadingFactor": 7, "bandwidth": 125000, "codeRate": "4/5"}}},
		"rxInfo": {"rssi": -42, "snr": 7.5}
	}`)
	p.process(RawMessage{Topic: "eu868/gateway/aabbccdd/event/up", Payload: upPayload, Format: "json"})
	dataPkt := <-writerCh
	require.Equal(t, model.PacketData, dataPkt.Type)
	require.NotNil(t, dataPkt.SessionID)
	require.Equal(t, *joinPkt.SessionID, *dataPkt.SessionID)
	require.NotNil(t, dataPkt.DevEUI)
}
