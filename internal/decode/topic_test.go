// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of lorawan-analyzer.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package decode

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseTopicGatewayUp(t *testing.T) {
	topic := ParseTopic("eu868/gateway/aabbccdd/event/up")
	require.Equal(t, KindGatewayUp, topic.Kind)
	require.Equal(t, "aabbccdd", topic.GatewayID)
}

func TestParseTopicGatewayStatsIgnored(t *testing.T) {
	topic := ParseTopic("eu868/gateway/aabbccdd/event/stats")
	require.Equal(t, KindGatewayStats, topic.Kind)
}

func TestParseTopicApplicationUp(t *testing.T) {
	topic := ParseTopic("application/42/device/0011223344556677/event/up")
	require.Equal(t, KindAppUp, topic.Kind)
	require.Equal(t, "42", topic.ApplicationID)
	require.Equal(t, "0011223344556677", topic.DevEUI)
}

func TestParseTopicApplicationCommandDown(t *testing.T) {
	topic := ParseTopic("application/42/device/0011223344556677/command/down")
	require.Equal(t, KindAppCommandDown, topic.Kind)
}

func TestParseTopicMalformedIsUnknown(t *testing.T) {
	require.Equal(t, KindUnknown, ParseTopic("something/else").Kind)
	require.Equal(t, KindUnknown, ParseTopic("application/42/device/x/event/bogus").Kind)
	require.Equal(t, KindUnknown, ParseTopic("").Kind)
}
