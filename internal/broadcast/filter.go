// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of lorawan-analyzer.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package broadcast

import (
	"strings"

	"github.com/chirpwatch/lorawan-analyzer/internal/operator"
	"github.com/chirpwatch/lorawan-analyzer/model"
)

// Ownership selects how Filter.Prefixes is applied to a packet's
// DevAddr: keep only matching devices, or hide them.
type Ownership string

const (
	OwnershipOwned   Ownership = "owned"
	OwnershipForeign Ownership = "foreign"
)

// SourceMode partitions subscribers into the gateway pipeline and the
// application (ChirpStack) pipeline.
type SourceMode string

const (
	SourceGateway    SourceMode = "gateway"
	SourceChirpstack SourceMode = "chirpstack"
)

// Filter is a subscriber's predicate set. Every non-nil/non-empty
// field narrows the match; an empty Filter matches everything of the
// right SourceMode.
type Filter struct {
	SourceMode SourceMode

	GatewayID  string
	GatewayIDs []string

	PacketTypes []model.PacketType

	RSSIMin *int32
	RSSIMax *int32

	Prefixes   []string
	FilterMode Ownership

	Search string
}

// Matches reports whether lp passes every predicate in f. SourceMode
// routing happens one level up in Hub, since it depends on how the
// packet entered the system, not just its content. extraSearchText
// carries gateway alias/group strings the wire format doesn't include,
// so substring search still covers them.
func (f Filter) Matches(lp *model.LivePacket, extraSearchText ...string) bool {
	if f.GatewayID != "" && lp.GatewayID != f.GatewayID {
		return false
	}
	if len(f.GatewayIDs) > 0 && !containsString(f.GatewayIDs, lp.GatewayID) {
		return false
	}
	if len(f.PacketTypes) > 0 && !containsType(f.PacketTypes, lp.Type) {
		return false
	}
	if !f.matchesRSSI(lp) {
		return false
	}
	if !f.matchesOwnership(lp) {
		return false
	}
	if f.Search != "" && !f.matchesSearch(lp, extraSearchText) {
		return false
	}
	return true
}

func (f Filter) matchesRSSI(lp *model.LivePacket) bool {
	if f.RSSIMin == nil && f.RSSIMax == nil {
		return true
	}
	if lp.Type != model.PacketData && lp.Type != model.PacketJoinRequest {
		return true
	}
	if f.RSSIMin != nil && lp.RSSI < *f.RSSIMin {
		return false
	}
	if f.RSSIMax != nil && lp.RSSI > *f.RSSIMax {
		return false
	}
	return true
}

func (f Filter) matchesOwnership(lp *model.LivePacket) bool {
	if len(f.Prefixes) == 0 {
		return true
	}
	if lp.Type != model.PacketData {
		return true
	}
	owned := lp.DevAddr != nil && matchesAnyPrefix(*lp.DevAddr, f.Prefixes)
	switch f.FilterMode {
	case OwnershipForeign:
		return !owned
	default:
		return owned
	}
}

func (f Filter) matchesSearch(lp *model.LivePacket, extra []string) bool {
	needle := strings.ToLower(f.Search)
	fields := []string{lp.GatewayID, lp.Operator}
	fields = append(fields, extra...)
	if lp.GatewayName != nil {
		fields = append(fields, *lp.GatewayName)
	}
	if lp.DevAddr != nil {
		fields = append(fields, *lp.DevAddr)
	}
	if lp.DevEUI != nil {
		fields = append(fields, *lp.DevEUI)
	}
	if lp.JoinEUI != nil {
		fields = append(fields, *lp.JoinEUI)
	}
	for _, field := range fields {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}

// matchesAnyPrefix reports whether devAddr falls under any configured
// prefix. A "<hex>/<bits>" entry matches bitwise like an operator
// rule; a bare hex fragment matches as a plain string prefix.
func matchesAnyPrefix(devAddr string, prefixes []string) bool {
	upper := strings.ToUpper(devAddr)
	addr, addrErr := operator.DevAddrToUint32(upper)
	for _, p := range prefixes {
		if strings.Contains(p, "/") {
			prefix, bits, err := operator.ParsePrefix(p)
			if err != nil || addrErr != nil {
				continue
			}
			mask := operator.MaskForBits(bits)
			if addr&mask == prefix&mask {
				return true
			}
			continue
		}
		if strings.HasPrefix(upper, strings.ToUpper(p)) {
			return true
		}
	}
	return false
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func containsType(haystack []model.PacketType, needle model.PacketType) bool {
	for _, t := range haystack {
		if t == needle {
			return true
		}
	}
	return false
}
