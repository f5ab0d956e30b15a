// Copyright 2018 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package wasmmod

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/mamidon/othismo/internal/leb128"
)

var wasmMagic = [4]byte{0x00, 0x61, 0x73, 0x6D}
var wasmVersion = [4]byte{0x01, 0x00, 0x00, 0x00}

// Decode parses a wasm binary into a structured Module. Decode preserves
// every section's raw payload bytes and file order so that Encode, absent
// any edits, reproduces the input byte-for-byte.
func Decode(r io.Reader) (*Module, error) {
	br := bufio.NewReader(r)

	var header [8]byte
	n, err := io.ReadFull(br, header[:])
	if err != nil {
		return nil, malformed(n, "truncated header")
	}
	if [4]byte(header[0:4]) != wasmMagic {
		return nil, malformed(0, "bad magic number")
	}
	if [4]byte(header[4:8]) != wasmVersion {
		return nil, malformed(4, "unsupported version")
	}

	m := &Module{}
	offset := 8

	for {
		idByte, err := br.ReadByte()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, malformed(offset, "error reading section id")
		}
		offset++

		peeked, _ := br.Peek(5)
		sizeLen := 1
		for sizeLen <= len(peeked) && peeked[sizeLen-1]&0x80 != 0 {
			sizeLen++
		}
		size, err := leb128.ReadVarUint32(br)
		if err != nil {
			return nil, malformed(offset, "error reading section size")
		}
		if sizeLen != leb128Len(uint64(size)) {
			return nil, malformed(offset, "section size is not minimally encoded")
		}
		offset += sizeLen

		payload := make([]byte, size)
		if _, err := io.ReadFull(br, payload); err != nil {
			return nil, malformed(offset, "truncated section payload")
		}
		offset += int(size)

		id := SectionID(idByte)
		if id > SectionDataCount {
			return nil, malformed(offset, "unknown section id")
		}

		m.sections = append(m.sections, rawSection{id: id, payload: payload})
	}

	return m, nil
}

// leb128Len returns the number of bytes the canonical unsigned LEB128
// encoding of v occupies, used by Decode to reject over-long section
// sizes (which Encode could not reproduce byte-for-byte).
func leb128Len(v uint64) int {
	n := 1
	for v >>= 7; v != 0; v >>= 7 {
		n++
	}
	return n
}

func readString(r *byteCursor) (string, error) {
	n, err := leb128.ReadVarUint32(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func readLimits(r *byteCursor) (Limits, error) {
	flag, err := r.ReadByte()
	if err != nil {
		return Limits{}, err
	}
	min, err := leb128.ReadVarUint32(r)
	if err != nil {
		return Limits{}, err
	}
	l := Limits{Min: min}
	if flag == 1 {
		max, err := leb128.ReadVarUint32(r)
		if err != nil {
			return Limits{}, err
		}
		l.Max = max
		l.HasMax = true
	}
	return l, nil
}

func writeLimits(w *byteSink, l Limits) {
	if l.HasMax {
		w.WriteByte(1)
		w.writeVarUint32(l.Min)
		w.writeVarUint32(l.Max)
		return
	}
	w.WriteByte(0)
	w.writeVarUint32(l.Min)
}

// readConstExpr reads a single constant instruction followed by the End
// opcode, returning the raw encoded bytes (instruction + 0x0B).
func readConstExpr(r *byteCursor) (ConstExpr, error) {
	start := r.pos
	op, err := r.ReadByte()
	if err != nil {
		return nil, err
	}

	switch op {
	case 0x41: // i32.const
		if _, err := leb128.ReadVarInt32(r); err != nil {
			return nil, err
		}
	case 0x42: // i64.const
		if _, err := leb128.ReadVarInt64(r); err != nil {
			return nil, err
		}
	case 0x43: // f32.const
		var buf [4]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, err
		}
	case 0x44: // f64.const
		var buf [8]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, err
		}
	case 0x23: // global.get
		if _, err := leb128.ReadVarUint32(r); err != nil {
			return nil, err
		}
	default:
		return nil, malformed(r.pos, "unsupported constant expression opcode")
	}

	end, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if end != 0x0B {
		return nil, malformed(r.pos, "constant expression missing end opcode")
	}

	return ConstExpr(append([]byte(nil), r.buf[start:r.pos]...)), nil
}

// byteCursor is an io.ByteReader/io.Reader over an in-memory buffer that
// tracks its position, used for decoding individual section payloads that
// have already been buffered whole by Decode.
type byteCursor struct {
	buf []byte
	pos int
}

func newByteCursor(buf []byte) *byteCursor { return &byteCursor{buf: buf} }

func (c *byteCursor) ReadByte() (byte, error) {
	if c.pos >= len(c.buf) {
		return 0, io.EOF
	}
	b := c.buf[c.pos]
	c.pos++
	return b, nil
}

func (c *byteCursor) Read(p []byte) (int, error) {
	if c.pos >= len(c.buf) {
		return 0, io.EOF
	}
	n := copy(p, c.buf[c.pos:])
	c.pos += n
	return n, nil
}

func (c *byteCursor) remaining() []byte {
	return c.buf[c.pos:]
}

// byteSink is a small append-only byte buffer with LEB128 helpers, used by
// the section encoders.
type byteSink struct {
	buf []byte
}

func (s *byteSink) WriteByte(b byte) error {
	s.buf = append(s.buf, b)
	return nil
}

func (s *byteSink) Write(p []byte) (int, error) {
	s.buf = append(s.buf, p...)
	return len(p), nil
}

func (s *byteSink) writeVarUint32(v uint32) {
	_ = leb128.WriteVarUint32(s, v)
}

func (s *byteSink) writeVarInt32(v int32) {
	_ = leb128.WriteVarInt32(s, v)
}

func (s *byteSink) writeVarUint64(v uint64) {
	_ = leb128.WriteVarUint64(s, v)
}

func (s *byteSink) writeString(str string) {
	s.writeVarUint32(uint32(len(str)))
	s.buf = append(s.buf, str...)
}

func (s *byteSink) writeFixed32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	s.buf = append(s.buf, b[:]...)
}

func (s *byteSink) writeFixed64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	s.buf = append(s.buf, b[:]...)
}
