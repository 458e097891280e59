// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of lorawan-analyzer.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package decode

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

// GatewayFrame is the envelope extracted from a gateway-bridge up or
// down event, before PHYPayload parsing and enrichment.
type GatewayFrame struct {
	GatewayID       string
	BorderGatewayID *string

	PhyPayload []byte

	Frequency       int64
	SpreadingFactor int
	Bandwidth       int64
	CodingRate      string

	RSSI      int32
	SNR       float64
	Timestamp *time.Time
	Location  *Location
}

// Location is a gateway's reported position, however it was found.
type Location struct {
	Latitude  float64
	Longitude float64
	Name      string
}

// GatewayAck is the outcome of a gateway-bridge ack event.
type GatewayAck struct {
	GatewayID     string
	StatusName    string
	CorrelationID uint32
}

// txAckStatusNames maps the gateway-bridge TxAckStatus enum to the
// human-readable names surfaced on tx_ack packets.
var txAckStatusNames = map[uint64]string{
	0:  "Ignored",
	1:  "OK",
	2:  "TooLate",
	3:  "TooEarly",
	4:  "CollisionPacket",
	5:  "CollisionBeacon",
	6:  "TxFreq",
	7:  "TxPower",
	8:  "GpsUnlocked",
	9:  "QueueFull",
	10: "InternalError",
	11: "DutyCycleOverflow",
}

// DecodeGatewayFrame parses a gateway uplink or downlink event. format
// selects the wire encoding; "json" selects the JSON fallback with
// identical field semantics, anything else reads the raw protobuf wire
// form directly. gatewayID comes from the MQTT topic; the payload's
// rx-info gateway id is used only when the topic gave none.
func DecodeGatewayFrame(raw []byte, format string, gatewayID string) (*GatewayFrame, error) {
	if format == "json" {
		return decodeGatewayFrameJSON(raw, gatewayID)
	}
	return decodeGatewayFrameProto(raw, gatewayID)
}

// Field numbers below follow the ChirpStack gateway-bridge UplinkFrame
// / UplinkTxInfo / UplinkRxInfo / LoraModulationInfo message layout.
const (
	fUplinkPhyPayload = 1
	fUplinkTxInfo     = 2
	fUplinkRxInfo     = 3

	fTxInfoFrequency   = 1
	fTxInfoModulation  = 2
	fModulationLora    = 1
	fLoraSpreadingFact = 1
	fLoraBandwidth     = 2
	fLoraCodeRate      = 3

	fRxInfoGatewayID = 1
	fRxInfoRSSI      = 2
	fRxInfoSNR       = 3
	fRxInfoTimestamp = 4
	fRxInfoLocation  = 5
	fRxInfoMetadata  = 6

	fLocationLatitude  = 1
	fLocationLongitude = 2

	fMetadataKey   = 1
	fMetadataValue = 2
)

func decodeGatewayFrameProto(raw []byte, gatewayID string) (*GatewayFrame, error) {
	gf := &GatewayFrame{GatewayID: gatewayID}
	meta := map[string]string{}

	err := eachField(raw, func(f field) error {
		switch f.Num {
		case fUplinkPhyPayload:
			gf.PhyPayload = append([]byte(nil), f.Bytes...)
		case fUplinkTxInfo:
			return decodeTxInfo(f.Bytes, gf)
		case fUplinkRxInfo:
			return decodeRxInfo(f.Bytes, gf, meta)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("decode: gateway frame: %w", err)
	}

	applyMetadata(gf, meta)
	return gf, nil
}

func decodeTxInfo(buf []byte, gf *GatewayFrame) error {
	return eachField(buf, func(f field) error {
		switch f.Num {
		case fTxInfoFrequency:
			gf.Frequency = int64(f.Varint)
		case fTxInfoModulation:
			return eachField(f.Bytes, func(mf field) error {
				if mf.Num != fModulationLora {
					return nil
				}
				return eachField(mf.Bytes, func(lf field) error {
					switch lf.Num {
					case fLoraSpreadingFact:
						gf.SpreadingFactor = int(lf.Varint)
					case fLoraBandwidth:
						gf.Bandwidth = int64(lf.Varint)
					case fLoraCodeRate:
						gf.CodingRate = string(lf.Bytes)
					}
					return nil
				})
			})
		}
		return nil
	})
}

func decodeRxInfo(buf []byte, gf *GatewayFrame, meta map[string]string) error {
	return eachField(buf, func(f field) error {
		switch f.Num {
		case fRxInfoGatewayID:
			// Only trust this if the topic didn't already give us one.
			if gf.GatewayID == "" {
				gf.GatewayID = string(f.Bytes)
			}
		case fRxInfoRSSI:
			gf.RSSI = signedVarintInt32(f.Varint)
		case fRxInfoSNR:
			// Encoders disagree on this one: float32 on the wire from
			// the bridge itself, a tenths-scaled varint from some
			// concentrator firmwares.
			if f.Wire == wireFixed32 {
				gf.SNR = float64(math.Float32frombits(f.Fixed32))
			} else {
				gf.SNR = float64(int64(f.Varint)) / 10
			}
		case fRxInfoTimestamp:
			ts := time.UnixMicro(int64(f.Varint))
			gf.Timestamp = &ts
		case fRxInfoLocation:
			loc := &Location{}
			if err := eachField(f.Bytes, func(lf field) error {
				switch lf.Num {
				case fLocationLatitude:
					loc.Latitude = coordinate(lf)
				case fLocationLongitude:
					loc.Longitude = coordinate(lf)
				}
				return nil
			}); err != nil {
				return err
			}
			gf.Location = loc
		case fRxInfoMetadata:
			var key, value string
			if err := eachField(f.Bytes, func(mf field) error {
				switch mf.Num {
				case fMetadataKey:
					key = string(mf.Bytes)
				case fMetadataValue:
					value = string(mf.Bytes)
				}
				return nil
			}); err != nil {
				return err
			}
			if key != "" {
				meta[key] = value
			}
		}
		return nil
	})
}

// applyMetadata resolves the gateway location fallback chain (rx-info
// Location first, Helium-style metadata keys second) and the
// relay/border-gateway rewrite.
func applyMetadata(gf *GatewayFrame, meta map[string]string) {
	if gf.Location == nil {
		if lat, ok := meta["gateway_lat"]; ok {
			if long, ok2 := meta["gateway_long"]; ok2 {
				gf.Location = &Location{
					Latitude:  parseFloatOrZero(lat),
					Longitude: parseFloatOrZero(long),
					Name:      meta["gateway_name"],
				}
			}
		}
	}

	if relayID, ok := meta["relay_id"]; ok && relayID != "" {
		original := gf.GatewayID
		gf.GatewayID = relayID
		gf.BorderGatewayID = &original
	}
}

// coordinate reads a Location latitude/longitude, a double on the wire
// or a micro-degree varint from older encoders.
func coordinate(f field) float64 {
	if f.Wire == wireFixed64 {
		return math.Float64frombits(f.Fixed64)
	}
	return float64(int64(f.Varint)) / 1e6
}

func parseFloatOrZero(s string) float64 {
	var f float64
	_, _ = fmt.Sscanf(s, "%g", &f)
	return f
}

// gatewayFrameJSON is the JSON fallback shape, field-for-field
// equivalent to the protobuf layout above.
type gatewayFrameJSON struct {
	PhyPayload []byte `json:"phyPayload"`
	TxInfo     struct {
		Frequency  int64 `json:"frequency"`
		Modulation struct {
			Lora struct {
				SpreadingFactor int    `json:"spreadingFactor"`
				Bandwidth       int64  `json:"bandwidth"`
				CodeRate        string `json:"codeRate"`
			} `json:"lora"`
		} `json:"modulation"`
	} `json:"txInfo"`
	RxInfo struct {
		GatewayID string  `json:"gatewayId"`
		Rssi      int32   `json:"rssi"`
		Snr       float64 `json:"snr"`
		Time      *string `json:"time,omitempty"`
		Location  *struct {
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
		} `json:"location,omitempty"`
		Metadata map[string]string `json:"metadata,omitempty"`
	} `json:"rxInfo"`
}

func decodeGatewayFrameJSON(raw []byte, gatewayID string) (*GatewayFrame, error) {
	var msg gatewayFrameJSON
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("decode: gateway frame json: %w", err)
	}

	gf := &GatewayFrame{
		GatewayID:       gatewayID,
		PhyPayload:      msg.PhyPayload,
		Frequency:       msg.TxInfo.Frequency,
		SpreadingFactor: msg.TxInfo.Modulation.Lora.SpreadingFactor,
		Bandwidth:       msg.TxInfo.Modulation.Lora.Bandwidth,
		CodingRate:      msg.TxInfo.Modulation.Lora.CodeRate,
		RSSI:            msg.RxInfo.Rssi,
		SNR:             msg.RxInfo.Snr,
	}

	if gf.GatewayID == "" && msg.RxInfo.GatewayID != "" {
		gf.GatewayID = msg.RxInfo.GatewayID
	}
	if msg.RxInfo.Time != nil {
		if t, err := time.Parse(time.RFC3339Nano, *msg.RxInfo.Time); err == nil {
			gf.Timestamp = &t
		}
	}
	if msg.RxInfo.Location != nil {
		gf.Location = &Location{
			Latitude:  msg.RxInfo.Location.Latitude,
			Longitude: msg.RxInfo.Location.Longitude,
		}
	}

	applyMetadata(gf, msg.RxInfo.Metadata)
	return gf, nil
}

// DecodeGatewayAck parses a gateway-bridge ack event.
func DecodeGatewayAck(raw []byte, format string, gatewayID string) (*GatewayAck, error) {
	if format == "json" {
		var msg struct {
			DownlinkID uint32 `json:"downlinkId"`
			Items      []struct {
				Status uint64 `json:"status"`
			} `json:"items"`
		}
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, fmt.Errorf("decode: gateway ack json: %w", err)
		}
		status := uint64(0)
		if len(msg.Items) > 0 {
			status = msg.Items[0].Status
		}
		return &GatewayAck{GatewayID: gatewayID, StatusName: ackStatusName(status), CorrelationID: msg.DownlinkID}, nil
	}

	ack := &GatewayAck{GatewayID: gatewayID}
	var status uint64
	err := eachField(raw, func(f field) error {
		switch f.Num {
		case 1:
			ack.CorrelationID = uint32(f.Varint)
		case 2:
			status = f.Varint
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("decode: gateway ack: %w", err)
	}
	ack.StatusName = ackStatusName(status)
	return ack, nil
}

func ackStatusName(status uint64) string {
	if name, ok := txAckStatusNames[status]; ok {
		return name
	}
	return "Unknown"
}

// decodeBase64Payload is shared by the application decoder; kept here
// since both sub-decoders deal with base64 PHY payloads.
func decodeBase64Payload(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, errors.New("decode: invalid base64 payload")
	}
	return b, nil
}
