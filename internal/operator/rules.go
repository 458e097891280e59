// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of lorawan-analyzer.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package operator

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/chirpwatch/lorawan-analyzer/pkg/log"
)

// Rule is one entry in the DevAddr operator ruleset.
type Rule struct {
	Prefix   uint32
	Mask     uint32
	Bits     int
	Name     string
	Priority int
	Color    *string

	// Expr is an optional custom-operator condition (the expr column of
	// custom_operators rows; config-file operators[] entries carry no
	// expression), evaluated in addition to the prefix/mask
	// match against a DevAddrEnv. Most rules leave this empty.
	Expr string

	program *vm.Program
	order   int
}

// DevAddrEnv is the evaluation environment exposed to a Rule.Expr
// expression.
type DevAddrEnv struct {
	DevAddr uint32 `expr:"dev_addr"`
}

// JoinRule is one entry in the JoinEUI prefix table.
type JoinRule struct {
	Prefix uint64
	Bits   int
	Name   string

	order int
}

// compile parses Rule.Expr, if present, into a runnable program.
func (r *Rule) compile() error {
	if r.Expr == "" {
		return nil
	}
	program, err := expr.Compile(r.Expr, expr.Env(DevAddrEnv{}), expr.AsBool())
	if err != nil {
		return fmt.Errorf("operator: compile rule %q expr: %w", r.Name, err)
	}
	r.program = program
	return nil
}

func (r *Rule) matchesExpr(addr uint32) bool {
	if r.program == nil {
		return true
	}
	out, err := expr.Run(r.program, DevAddrEnv{DevAddr: addr})
	if err != nil {
		log.Warnf("operator: rule %q expr evaluation failed: %v", r.Name, err)
		return false
	}
	ok, _ := out.(bool)
	return ok
}

// sortRules orders rules by descending priority, then descending bits
// (more specific first), then insertion order.
func sortRules(rules []*Rule) {
	for i, r := range rules {
		r.order = i
	}
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority > rules[j].Priority
		}
		if rules[i].Bits != rules[j].Bits {
			return rules[i].Bits > rules[j].Bits
		}
		return rules[i].order < rules[j].order
	})
}

func sortJoinRules(rules []*JoinRule) {
	for i, r := range rules {
		r.order = i
	}
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Bits != rules[j].Bits {
			return rules[i].Bits > rules[j].Bits
		}
		return rules[i].order < rules[j].order
	})
}

// MaskForBits returns a 32-bit mask with the top `bits` bits set.
func MaskForBits(bits int) uint32 {
	if bits <= 0 {
		return 0
	}
	if bits >= 32 {
		return 0xFFFFFFFF
	}
	return ^uint32(0) << (32 - bits)
}

func maskForBits64(bits int) uint64 {
	if bits <= 0 {
		return 0
	}
	if bits >= 64 {
		return 0xFFFFFFFFFFFFFFFF
	}
	return ^uint64(0) << (64 - bits)
}

// DevAddrToUint32 parses a big-endian hex DevAddr string into its
// numeric value, mirroring the store's dev_addr_uint32() SQL helper.
func DevAddrToUint32(hexAddr string) (uint32, error) {
	b, err := hex.DecodeString(hexAddr)
	if err != nil || len(b) != 4 {
		return 0, fmt.Errorf("operator: invalid DevAddr %q", hexAddr)
	}
	return binary.BigEndian.Uint32(b), nil
}

// JoinEUIToUint64 parses a big-endian hex JoinEUI string into its
// numeric value.
func JoinEUIToUint64(hexEUI string) (uint64, error) {
	b, err := hex.DecodeString(hexEUI)
	if err != nil || len(b) != 8 {
		return 0, fmt.Errorf("operator: invalid JoinEUI %q", hexEUI)
	}
	return binary.BigEndian.Uint64(b), nil
}

// ParsePrefix parses a config-file operator prefix of the form
// "<hex-devaddr>/<bits>" (e.g. "26000000/7") into the numeric prefix
// and bit count a Rule needs.
func ParsePrefix(prefix string) (addr uint32, bits int, err error) {
	parts := strings.SplitN(prefix, "/", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("operator: prefix %q: want <hex>/<bits>", prefix)
	}

	addr, err = DevAddrToUint32(parts[0])
	if err != nil {
		return 0, 0, err
	}

	bits, err = strconv.Atoi(parts[1])
	if err != nil || bits < 0 || bits > 32 {
		return 0, 0, fmt.Errorf("operator: prefix %q: invalid bit count", prefix)
	}
	return addr, bits, nil
}
