// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of lorawan-analyzer.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package operator

// DefaultDevAddrRules returns the built-in NetID-derived DevAddr
// blocks recognized out of the box, before any config-supplied
// operators[] entries or database-persisted custom rules are merged
// in.
//
// Bits/prefixes below are taken from the LoRa Alliance NetID
// registry's public DevAddr block assignments and are intentionally
// few; most deployments will want to add their own via config.
func DefaultDevAddrRules() []*Rule {
	return []*Rule{
		{Prefix: 0x26000000, Bits: 7, Name: "The Things Network", Priority: 0},
		{Prefix: 0x48000000, Bits: 7, Name: "Helium", Priority: 0},
		{Prefix: 0xFC000000, Bits: 7, Name: "Actility", Priority: 0},
	}
}

// DefaultJoinEUIRules returns the built-in JoinEUI prefixes
// recognized out of the box.
func DefaultJoinEUIRules() []*JoinRule {
	return []*JoinRule{
		{Prefix: 0x70B3D57ED0000000, Bits: 36, Name: "The Things Network"},
	}
}
