// Copyright 2018 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package leb128 implements the variable-length integer encoding used
// throughout the wasm binary format: section/vector counts, indices, and
// i32.const/i64.const immediates.
package leb128

import "io"

// ReadVarUint64 reads an unsigned LEB128-encoded integer from r.
func ReadVarUint64(r io.ByteReader) (uint64, error) {
	var result uint64
	var shift uint

	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}

		result |= uint64(b&0x7f) << shift

		if b&0x80 == 0 {
			break
		}

		shift += 7
	}

	return result, nil
}

// ReadVarInt64 reads a signed LEB128-encoded integer from r.
func ReadVarInt64(r io.ByteReader) (int64, error) {
	var result int64
	var shift uint
	var b byte
	var err error

	for {
		b, err = r.ReadByte()
		if err != nil {
			return 0, err
		}

		result |= int64(b&0x7f) << shift
		shift += 7

		if b&0x80 == 0 {
			break
		}
	}

	if shift < 64 && b&0x40 != 0 {
		result |= -1 << shift
	}

	return result, nil
}

// ReadVarUint32 reads an unsigned 32-bit LEB128-encoded integer. Values
// that overflow 32 bits are rejected, matching the wasm spec's malformed
// module rule for count and index fields.
func ReadVarUint32(r io.ByteReader) (uint32, error) {
	v, err := ReadVarUint64(r)
	if err != nil {
		return 0, err
	}
	if v > 0xFFFFFFFF {
		return 0, ErrOverflow
	}
	return uint32(v), nil
}

// ReadVarInt32 reads a signed 32-bit LEB128-encoded integer.
func ReadVarInt32(r io.ByteReader) (int32, error) {
	v, err := ReadVarInt64(r)
	if err != nil {
		return 0, err
	}
	if v > 0x7FFFFFFF || v < -0x80000000 {
		return 0, ErrOverflow
	}
	return int32(v), nil
}

// WriteVarUint64 writes v as an unsigned LEB128-encoded integer to w.
func WriteVarUint64(w io.ByteWriter, v uint64) error {
	for {
		b := byte(v & 0x7f)
		v >>= 7

		if v != 0 {
			b |= 0x80
		}

		if err := w.WriteByte(b); err != nil {
			return err
		}

		if v == 0 {
			return nil
		}
	}
}

// WriteVarInt64 writes v as a signed LEB128-encoded integer to w.
func WriteVarInt64(w io.ByteWriter, v int64) error {
	for {
		b := byte(v & 0x7f)
		v >>= 7

		signBitSet := b&0x40 != 0

		if (v == 0 && !signBitSet) || (v == -1 && signBitSet) {
			return w.WriteByte(b)
		}

		if err := w.WriteByte(b | 0x80); err != nil {
			return err
		}
	}
}

// WriteVarUint32 writes v as an unsigned 32-bit LEB128-encoded integer.
func WriteVarUint32(w io.ByteWriter, v uint32) error {
	return WriteVarUint64(w, uint64(v))
}

// WriteVarInt32 writes v as a signed 32-bit LEB128-encoded integer.
func WriteVarInt32(w io.ByteWriter, v int32) error {
	return WriteVarInt64(w, int64(v))
}
