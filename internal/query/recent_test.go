// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of lorawan-analyzer.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package query

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildRecentPacketsQueryFallsBackToUnconditional(t *testing.T) {
	sqlStr, args, err := BuildRecentPacketsQuery(RecentPacketsFilter{}).ToSql()
	require.NoError(t, err)
	require.Contains(t, sqlStr, "1=1")
	require.Empty(t, args)
	require.Contains(t, sqlStr, "LIMIT 100")
}

func TestBuildRecentPacketsQueryAddsBoundConditions(t *testing.T) {
	sqlStr, args, err := BuildRecentPacketsQuery(RecentPacketsFilter{
		GatewayID: "gw-1",
		DevAddr:   "26011AAB",
		Limit:     50,
	}).ToSql()
	require.NoError(t, err)
	require.Contains(t, sqlStr, "gateway_id = $")
	require.Contains(t, sqlStr, "dev_addr = $")
	require.Contains(t, sqlStr, "LIMIT 50")
	require.Equal(t, []interface{}{"gw-1", "26011AAB"}, args)
}

func TestBuildRecentPacketsQueryNeverInterpolatesValues(t *testing.T) {
	sqlStr, _, err := BuildRecentPacketsQuery(RecentPacketsFilter{GatewayID: "'; DROP TABLE packets; --"}).ToSql()
	require.NoError(t, err)
	require.NotContains(t, sqlStr, "DROP TABLE")
}
