// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of lorawan-analyzer.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package decode

import "strings"

// Kind classifies an inbound MQTT message by its topic shape.
type Kind int

const (
	KindUnknown Kind = iota
	KindGatewayUp
	KindGatewayDown
	KindGatewayAck
	KindGatewayStats
	KindAppUp
	KindAppTxAck
	KindAppAck
	KindAppCommandDown
)

// Topic is the result of classifying an MQTT topic string.
type Topic struct {
	Kind          Kind
	GatewayID     string
	ApplicationID string
	DevEUI        string
}

// ParseTopic classifies topic into one of the shapes the dispatcher
// understands. Anything else yields KindUnknown and the caller drops
// the message silently.
func ParseTopic(topic string) Topic {
	parts := strings.Split(strings.Trim(topic, "/"), "/")

	if idx := indexOf(parts, "gateway"); idx >= 0 && idx+3 < len(parts) && parts[idx+2] == "event" {
		gatewayID := parts[idx+1]
		switch parts[idx+3] {
		case "up":
			return Topic{Kind: KindGatewayUp, GatewayID: gatewayID}
		case "down":
			return Topic{Kind: KindGatewayDown, GatewayID: gatewayID}
		case "ack":
			return Topic{Kind: KindGatewayAck, GatewayID: gatewayID}
		case "stats":
			return Topic{Kind: KindGatewayStats, GatewayID: gatewayID}
		}
		return Topic{Kind: KindUnknown}
	}

	if len(parts) >= 4 && parts[0] == "application" && parts[2] == "device" {
		appID := parts[1]
		devEUI := parts[3]

		if len(parts) >= 6 && parts[4] == "event" {
			switch parts[5] {
			case "up":
				return Topic{Kind: KindAppUp, ApplicationID: appID, DevEUI: devEUI}
			case "txack":
				return Topic{Kind: KindAppTxAck, ApplicationID: appID, DevEUI: devEUI}
			case "ack":
				return Topic{Kind: KindAppAck, ApplicationID: appID, DevEUI: devEUI}
			}
			return Topic{Kind: KindUnknown}
		}
		if len(parts) >= 6 && parts[4] == "command" && parts[5] == "down" {
			return Topic{Kind: KindAppCommandDown, ApplicationID: appID, DevEUI: devEUI}
		}
	}

	return Topic{Kind: KindUnknown}
}

func indexOf(parts []string, s string) int {
	for i, p := range parts {
		if p == s {
			return i
		}
	}
	return -1
}
