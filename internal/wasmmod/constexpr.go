// Copyright 2018 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package wasmmod

import (
	"math"

	"github.com/mamidon/othismo/internal/leb128"
)

// ConstI32 builds the canonical `i32.const v` `end` expression.
func ConstI32(v int32) ConstExpr {
	s := &byteSink{}
	s.WriteByte(0x41)
	s.writeVarInt32(v)
	s.WriteByte(0x0B)
	return ConstExpr(s.buf)
}

// ConstI64 builds the canonical `i64.const v` `end` expression.
func ConstI64(v int64) ConstExpr {
	s := &byteSink{}
	s.WriteByte(0x42)
	_ = leb128.WriteVarInt64(s, v)
	s.WriteByte(0x0B)
	return ConstExpr(s.buf)
}

// ConstF32 builds the canonical `f32.const v` `end` expression.
func ConstF32(v float32) ConstExpr {
	s := &byteSink{}
	s.WriteByte(0x43)
	s.writeFixed32(math.Float32bits(v))
	s.WriteByte(0x0B)
	return ConstExpr(s.buf)
}

// ConstF64 builds the canonical `f64.const v` `end` expression.
func ConstF64(v float64) ConstExpr {
	s := &byteSink{}
	s.WriteByte(0x44)
	s.writeFixed64(math.Float64bits(v))
	s.WriteByte(0x0B)
	return ConstExpr(s.buf)
}

// ZeroConst builds the zero constant expression for the given value type.
func ZeroConst(vt ValueType) (ConstExpr, error) {
	switch vt {
	case ValueTypeI32:
		return ConstI32(0), nil
	case ValueTypeI64:
		return ConstI64(0), nil
	case ValueTypeF32:
		return ConstF32(0), nil
	case ValueTypeF64:
		return ConstF64(0), nil
	default:
		return nil, unsupportedModule("unsupported_value_type")
	}
}
