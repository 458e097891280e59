// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of lorawan-analyzer.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package operator resolves a DevAddr or JoinEUI to a named network
// operator using a longest-prefix rule table. The active table is held
// behind an atomic pointer so lookups never block a reload triggered
// by a config change.
package operator

import (
	"sync/atomic"
)

// UnknownOperator is returned when no DevAddr rule matches.
const UnknownOperator = "Unknown"

// PrivateJoinEUI is returned when no JoinEUI rule matches and all 8
// bytes of the JoinEUI are printable ASCII.
const PrivateJoinEUI = "Private"

type snapshot struct {
	devAddrRules []*Rule
	joinRules    []*JoinRule
}

// Table is a reloadable operator rule set. The zero value matches
// nothing until Load is called.
type Table struct {
	cur atomic.Pointer[snapshot]
}

// NewTable returns an empty, ready-to-use Table.
func NewTable() *Table {
	t := &Table{}
	t.cur.Store(&snapshot{})
	return t
}

// Load compiles and installs a new rule set, replacing whatever was
// previously active. Rules with an invalid Expr are rejected and Load
// returns an error without changing the active table.
func (t *Table) Load(devAddrRules []*Rule, joinRules []*JoinRule) error {
	for _, r := range devAddrRules {
		if err := r.compile(); err != nil {
			return err
		}
	}

	devCopy := make([]*Rule, len(devAddrRules))
	copy(devCopy, devAddrRules)
	sortRules(devCopy)

	joinCopy := make([]*JoinRule, len(joinRules))
	copy(joinCopy, joinRules)
	sortJoinRules(joinCopy)

	t.cur.Store(&snapshot{devAddrRules: devCopy, joinRules: joinCopy})
	return nil
}

// MatchDevAddr resolves a 4-byte big-endian hex DevAddr string to an
// operator name, or UnknownOperator if nothing matches.
func (t *Table) MatchDevAddr(hexAddr string) string {
	addr, err := DevAddrToUint32(hexAddr)
	if err != nil {
		return UnknownOperator
	}
	return t.MatchDevAddrUint32(addr)
}

// MatchDevAddrUint32 is MatchDevAddr for an already-parsed address.
// Rules are tried in the table's sorted order (priority desc, bits
// desc, insertion order) and the first rule whose prefix/mask matches
// AND whose optional Expr evaluates true wins.
func (t *Table) MatchDevAddrUint32(addr uint32) string {
	snap := t.cur.Load()
	for _, r := range snap.devAddrRules {
		mask := r.Mask
		if mask == 0 {
			mask = MaskForBits(r.Bits)
		}
		if addr&mask != r.Prefix&mask {
			continue
		}
		if !r.matchesExpr(addr) {
			continue
		}
		return r.Name
	}
	return UnknownOperator
}

// MatchJoinEUI resolves an 8-byte big-endian hex JoinEUI string to an
// operator name, or PrivateJoinEUI/UnknownOperator if nothing matches
// (see MatchJoinEUIUint64).
func (t *Table) MatchJoinEUI(hexEUI string) string {
	eui, err := JoinEUIToUint64(hexEUI)
	if err != nil {
		return UnknownOperator
	}
	return t.MatchJoinEUIUint64(eui)
}

// MatchJoinEUIUint64 is MatchJoinEUI for an already-parsed EUI. If no
// rule matches, the 8 bytes are checked for printable ASCII: vendors
// sometimes populate JoinEUI with an ASCII string for self-assigned
// devices, and such a value is reported as PrivateJoinEUI rather than
// UnknownOperator.
func (t *Table) MatchJoinEUIUint64(eui uint64) string {
	snap := t.cur.Load()
	for _, r := range snap.joinRules {
		mask := maskForBits64(r.Bits)
		if eui&mask == (r.Prefix&mask) {
			return r.Name
		}
	}
	if isPrintableASCII(eui) {
		return PrivateJoinEUI
	}
	return UnknownOperator
}

// isPrintableASCII reports whether every byte of eui, read
// big-endian, falls in the printable ASCII range.
func isPrintableASCII(eui uint64) bool {
	for shift := 56; shift >= 0; shift -= 8 {
		b := byte(eui >> shift)
		if b < 0x20 || b > 0x7e {
			return false
		}
	}
	return true
}
