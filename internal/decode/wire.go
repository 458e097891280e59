// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of lorawan-analyzer.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package decode

import (
	"encoding/binary"
	"errors"
)

// Minimal protobuf wire-format reader. There is no generated schema
// here; callers walk the byte stream field by field and pull out only
// what they need, skipping anything they don't recognize by its wire
// type alone. That keeps the decoder independent of gateway-bridge
// proto revisions, which add fields far more often than they move them.

type wireType int

const (
	wireVarint          wireType = 0
	wireFixed64         wireType = 1
	wireLengthDelimited wireType = 2
	wireFixed32         wireType = 5
)

var errTruncated = errors.New("decode: truncated protobuf field")

// field is one decoded (tag, payload) pair from a message. Exactly one
// of Varint/Fixed64/Fixed32/Bytes is meaningful, selected by Wire.
type field struct {
	Num     int
	Wire    wireType
	Varint  uint64
	Fixed64 uint64
	Fixed32 uint32
	Bytes   []byte
}

// readVarint reads a base-128 varint starting at pos and returns its
// value and the position just past it.
func readVarint(buf []byte, pos int) (uint64, int, error) {
	var result uint64
	var shift uint
	for {
		if pos >= len(buf) {
			return 0, 0, errTruncated
		}
		b := buf[pos]
		pos++
		result |= uint64(b&0x7F) << shift
		if b&0x80 == 0 {
			return result, pos, nil
		}
		shift += 7
		if shift >= 70 {
			return 0, 0, errTruncated
		}
	}
}

// eachField walks the top-level fields of a length-delimited protobuf
// message and invokes fn for each one. Returning an error from fn
// aborts the walk.
func eachField(buf []byte, fn func(f field) error) error {
	pos := 0
	for pos < len(buf) {
		tag, next, err := readVarint(buf, pos)
		if err != nil {
			return err
		}
		pos = next

		num := int(tag >> 3)
		wt := wireType(tag & 0x7)

		f := field{Num: num, Wire: wt}

		switch wt {
		case wireVarint:
			v, next, err := readVarint(buf, pos)
			if err != nil {
				return err
			}
			f.Varint = v
			pos = next
		case wireFixed64:
			if pos+8 > len(buf) {
				return errTruncated
			}
			f.Fixed64 = binary.LittleEndian.Uint64(buf[pos : pos+8])
			pos += 8
		case wireLengthDelimited:
			n, next, err := readVarint(buf, pos)
			if err != nil {
				return err
			}
			pos = next
			if pos+int(n) > len(buf) {
				return errTruncated
			}
			f.Bytes = buf[pos : pos+int(n)]
			pos += int(n)
		case wireFixed32:
			if pos+4 > len(buf) {
				return errTruncated
			}
			f.Fixed32 = binary.LittleEndian.Uint32(buf[pos : pos+4])
			pos += 4
		default:
			return errors.New("decode: unsupported protobuf wire type")
		}

		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

// signedVarintInt32 interprets a varint payload as a signed 32-bit
// value. Some encoders (notably certain gateway concentrator
// firmwares) emit a full 10-byte two's-complement varint for a
// negative int32; truncating to the low 32 bits recovers the
// intended value either way.
func signedVarintInt32(v uint64) int32 {
	return int32(uint32(v))
}
