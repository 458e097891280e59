// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of lorawan-analyzer.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package operator

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMatchDevAddrKnownScenario(t *testing.T) {
	tbl := NewTable()
	require.NoError(t, tbl.Load(DefaultDevAddrRules(), DefaultJoinEUIRules()))

	require.Equal(t, "The Things Network", tbl.MatchDevAddr("26011AAB"))
}

func TestMatchDevAddrUnknownFallsBack(t *testing.T) {
	tbl := NewTable()
	require.NoError(t, tbl.Load(DefaultDevAddrRules(), DefaultJoinEUIRules()))

	require.Equal(t, UnknownOperator, tbl.MatchDevAddr("00000000"))
}

func TestMatchJoinEUIPrintableASCIIFallsBackToPrivate(t *testing.T) {
	tbl := NewTable()
	require.NoError(t, tbl.Load(DefaultDevAddrRules(), DefaultJoinEUIRules()))

	// "ABCDEFGH" as bytes, all in the printable ASCII range.
	require.Equal(t, PrivateJoinEUI, tbl.MatchJoinEUI("4142434445464748"))
}

func TestMatchJoinEUINonPrintableFallsBackToUnknown(t *testing.T) {
	tbl := NewTable()
	require.NoError(t, tbl.Load(DefaultDevAddrRules(), DefaultJoinEUIRules()))

	require.Equal(t, UnknownOperator, tbl.MatchJoinEUI("0011223344556677"))
}

func TestMatchJoinEUIKnownPrefix(t *testing.T) {
	tbl := NewTable()
	require.NoError(t, tbl.Load(DefaultDevAddrRules(), DefaultJoinEUIRules()))

	require.Equal(t, "The Things Network", tbl.MatchJoinEUI("70B3D57ED0000001"))
}

// TestOperatorMatchingOrderByPriority: a lower-bits rule with higher
// priority wins over a higher-bits rule with lower priority.
func TestOperatorMatchingOrderByPriority(t *testing.T) {
	tbl := NewTable()
	rules := []*Rule{
		{Prefix: 0x26000000, Bits: 16, Name: "Specific", Priority: 0},
		{Prefix: 0x26000000, Bits: 7, Name: "Overridden", Priority: 10},
	}
	require.NoError(t, tbl.Load(rules, nil))

	require.Equal(t, "Overridden", tbl.MatchDevAddr("26001234"))
}

// TestOperatorMatchingOrderByBits: with equal priority, the
// more-specific (higher bits) rule wins regardless of insertion order.
func TestOperatorMatchingOrderByBits(t *testing.T) {
	tbl := NewTable()
	rules := []*Rule{
		{Prefix: 0x26000000, Bits: 7, Name: "Broad"},
		{Prefix: 0x26010000, Bits: 16, Name: "Narrow"},
	}
	require.NoError(t, tbl.Load(rules, nil))

	require.Equal(t, "Narrow", tbl.MatchDevAddr("26010001"))
	require.Equal(t, "Broad", tbl.MatchDevAddr("26020001"))
}

// TestOperatorMatchingOrderByInsertion: with equal priority and bits,
// the first-inserted rule wins.
func TestOperatorMatchingOrderByInsertion(t *testing.T) {
	tbl := NewTable()
	rules := []*Rule{
		{Prefix: 0x26000000, Bits: 7, Name: "First"},
		{Prefix: 0x26000000, Bits: 7, Name: "Second"},
	}
	require.NoError(t, tbl.Load(rules, nil))

	require.Equal(t, "First", tbl.MatchDevAddr("26010001"))
}

// TestPrefixFilterConsistency: reloading with the same rules in a
// different order never changes which rule wins for a fixed address,
// because sorting is keyed on priority/bits/insertion, not table
// position.
func TestPrefixFilterConsistency(t *testing.T) {
	a := []*Rule{
		{Prefix: 0x26000000, Bits: 7, Name: "Broad"},
		{Prefix: 0x26010000, Bits: 16, Name: "Narrow"},
	}
	b := []*Rule{
		{Prefix: 0x26010000, Bits: 16, Name: "Narrow"},
		{Prefix: 0x26000000, Bits: 7, Name: "Broad"},
	}

	t1, t2 := NewTable(), NewTable()
	require.NoError(t, t1.Load(a, nil))
	require.NoError(t, t2.Load(b, nil))

	require.Equal(t, t1.MatchDevAddr("26010001"), t2.MatchDevAddr("26010001"))
	require.Equal(t, t1.MatchDevAddr("26020001"), t2.MatchDevAddr("26020001"))
}

func TestRuleWithExprCondition(t *testing.T) {
	tbl := NewTable()
	rules := []*Rule{
		{Prefix: 0x26000000, Bits: 7, Name: "EvenOnly", Priority: 10, Expr: "dev_addr % 2 == 0"},
		{Prefix: 0x26000000, Bits: 7, Name: "Fallback", Priority: 0},
	}
	require.NoError(t, tbl.Load(rules, nil))

	require.Equal(t, "EvenOnly", tbl.MatchDevAddr("26000002"))
	require.Equal(t, "Fallback", tbl.MatchDevAddr("26000003"))
}

func TestLoadRejectsInvalidExpr(t *testing.T) {
	tbl := NewTable()
	rules := []*Rule{
		{Prefix: 0x26000000, Bits: 7, Name: "Broken", Expr: "dev_addr +++ 1"},
	}
	err := tbl.Load(rules, nil)
	require.Error(t, err)
}

func TestDevAddrToUint32RoundTrip(t *testing.T) {
	v, err := DevAddrToUint32("26011AAB")
	require.NoError(t, err)
	require.Equal(t, uint32(0x26011AAB), v)

	_, err = DevAddrToUint32("not-hex")
	require.Error(t, err)

	_, err = DevAddrToUint32("2601")
	require.Error(t, err)
}

func TestParsePrefixValid(t *testing.T) {
	addr, bits, err := ParsePrefix("26000000/7")
	require.NoError(t, err)
	require.Equal(t, uint32(0x26000000), addr)
	require.Equal(t, 7, bits)
}

func TestParsePrefixRejectsMalformed(t *testing.T) {
	_, _, err := ParsePrefix("26000000")
	require.Error(t, err)

	_, _, err = ParsePrefix("26000000/not-a-number")
	require.Error(t, err)

	_, _, err = ParsePrefix("not-hex/7")
	require.Error(t, err)
}
