// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of lorawan-analyzer.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package query

import "sort"

// ComputeDeviceLoss estimates uplink loss from frame-counter gaps:
// uplinks are ordered by timestamp per session_id; a gap = fcnt −
// prev_fcnt − 1 is counted as missed whenever positive (a lower fcnt
// than the previous one, e.g. after a device reset, contributes no
// missed count). The overall result and a per-gateway breakdown are
// both returned.
func ComputeDeviceLoss(records []UplinkRecord) (overall LossStats, perGateway []LossStats) {
	bySession := make(map[string][]UplinkRecord)
	for _, r := range records {
		bySession[r.SessionID] = append(bySession[r.SessionID], r)
	}

	var totalMissed, totalReceived int64
	missedByGateway := make(map[string]int64)
	receivedByGateway := make(map[string]int64)
	var gatewayOrder []string
	seenGateway := make(map[string]bool)

	for _, session := range bySession {
		sort.Slice(session, func(i, j int) bool { return session[i].Timestamp.Before(session[j].Timestamp) })

		for i, rec := range session {
			totalReceived++
			receivedByGateway[rec.GatewayID]++
			if !seenGateway[rec.GatewayID] {
				seenGateway[rec.GatewayID] = true
				gatewayOrder = append(gatewayOrder, rec.GatewayID)
			}

			if i == 0 {
				continue
			}
			prev := session[i-1]
			gap := int64(rec.FCnt) - int64(prev.FCnt) - 1
			if gap > 0 {
				totalMissed += gap
				missedByGateway[rec.GatewayID] += gap
			}
		}
	}

	overall = LossStats{
		Received: totalReceived,
		Missed:   totalMissed,
		LossPct:  lossPercent(totalReceived, totalMissed),
	}

	sort.Strings(gatewayOrder)
	for _, gw := range gatewayOrder {
		id := gw
		perGateway = append(perGateway, LossStats{
			GatewayID: &id,
			Received:  receivedByGateway[gw],
			Missed:    missedByGateway[gw],
			LossPct:   lossPercent(receivedByGateway[gw], missedByGateway[gw]),
		})
	}

	return overall, perGateway
}

func lossPercent(received, missed int64) float64 {
	total := received + missed
	if total == 0 {
		return 0
	}
	return float64(missed) / float64(total) * 100
}
