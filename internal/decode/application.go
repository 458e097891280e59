// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of lorawan-analyzer.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package decode

import (
	"encoding/json"
	"fmt"
	"time"
)

// AppUplink is the application-bus shadow of an uplink event, as
// published by the network server on the application topic tree.
type AppUplink struct {
	DevEUI          string
	DeviceName      string
	ApplicationID   string
	ApplicationName *string
	DevAddr         *string

	RSSI            int32
	SNR             float64
	Frequency       int64
	SpreadingFactor int
	Bandwidth       int64

	PayloadSize int

	FCnt      *uint32
	FPort     *uint8
	Confirmed *bool
	Time      *time.Time
}

// AppTxAck signals a downlink handed to a gateway for transmission.
type AppTxAck struct {
	DevEUI        string
	ApplicationID string
}

// AppAck is a device's confirmation (or timeout) of a confirmed
// downlink.
type AppAck struct {
	DevEUI        string
	ApplicationID string
	Acknowledged  bool
}

// AppDownlinkCommand is a downlink queued by the application.
type AppDownlinkCommand struct {
	DevEUI        string
	ApplicationID string
}

type appUplinkJSON struct {
	DeviceInfo struct {
		DevEui          string  `json:"devEui"`
		DeviceName      string  `json:"deviceName"`
		ApplicationID   string  `json:"applicationId"`
		ApplicationName *string `json:"applicationName,omitempty"`
	} `json:"deviceInfo"`
	DevAddr *string `json:"devAddr,omitempty"`
	RxInfo  []struct {
		Rssi int32   `json:"rssi"`
		Snr  float64 `json:"snr"`
	} `json:"rxInfo"`
	TxInfo struct {
		Frequency  int64 `json:"frequency"`
		Modulation struct {
			Lora struct {
				SpreadingFactor int   `json:"spreadingFactor"`
				Bandwidth       int64 `json:"bandwidth"`
			} `json:"lora"`
		} `json:"modulation"`
	} `json:"txInfo"`
	Data      string  `json:"data"`
	FCnt      *uint32 `json:"fCnt,omitempty"`
	FPort     *uint8  `json:"fPort,omitempty"`
	Confirmed *bool   `json:"confirmed,omitempty"`
	Time      *string `json:"time,omitempty"`
}

// DecodeAppUplink parses an application/{appId}/device/{devEui}/event/up
// message.
func DecodeAppUplink(raw []byte) (*AppUplink, error) {
	var msg appUplinkJSON
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("decode: application uplink: %w", err)
	}

	payload, err := decodeBase64Payload(msg.Data)
	if err != nil {
		return nil, err
	}

	up := &AppUplink{
		DevEUI:          msg.DeviceInfo.DevEui,
		DeviceName:      msg.DeviceInfo.DeviceName,
		ApplicationID:   msg.DeviceInfo.ApplicationID,
		ApplicationName: msg.DeviceInfo.ApplicationName,
		DevAddr:         msg.DevAddr,
		Frequency:       msg.TxInfo.Frequency,
		SpreadingFactor: msg.TxInfo.Modulation.Lora.SpreadingFactor,
		Bandwidth:       msg.TxInfo.Modulation.Lora.Bandwidth,
		PayloadSize:     len(payload),
		FCnt:            msg.FCnt,
		FPort:           msg.FPort,
		Confirmed:       msg.Confirmed,
	}

	if len(msg.RxInfo) > 0 {
		up.RSSI = msg.RxInfo[0].Rssi
		up.SNR = msg.RxInfo[0].Snr
	}
	if msg.Time != nil {
		if t, err := time.Parse(time.RFC3339Nano, *msg.Time); err == nil {
			up.Time = &t
		}
	}

	return up, nil
}

// DecodeAppTxAck parses an .../event/txack message.
func DecodeAppTxAck(raw []byte) (*AppTxAck, error) {
	var msg struct {
		DeviceInfo struct {
			DevEui        string `json:"devEui"`
			ApplicationID string `json:"applicationId"`
		} `json:"deviceInfo"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("decode: application txack: %w", err)
	}
	return &AppTxAck{DevEUI: msg.DeviceInfo.DevEui, ApplicationID: msg.DeviceInfo.ApplicationID}, nil
}

// DecodeAppAck parses an .../event/ack message.
func DecodeAppAck(raw []byte) (*AppAck, error) {
	var msg struct {
		DeviceInfo struct {
			DevEui        string `json:"devEui"`
			ApplicationID string `json:"applicationId"`
		} `json:"deviceInfo"`
		Acknowledged bool `json:"acknowledged"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("decode: application ack: %w", err)
	}
	return &AppAck{DevEUI: msg.DeviceInfo.DevEui, ApplicationID: msg.DeviceInfo.ApplicationID, Acknowledged: msg.Acknowledged}, nil
}

// DecodeAppDownlinkCommand parses a .../command/down message.
func DecodeAppDownlinkCommand(raw []byte) (*AppDownlinkCommand, error) {
	var msg struct {
		DeviceInfo struct {
			DevEui        string `json:"devEui"`
			ApplicationID string `json:"applicationId"`
		} `json:"deviceInfo"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("decode: application command/down: %w", err)
	}
	return &AppDownlinkCommand{DevEUI: msg.DeviceInfo.DevEui, ApplicationID: msg.DeviceInfo.ApplicationID}, nil
}
