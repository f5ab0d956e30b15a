// Copyright 2018 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package wasmmod

import (
	"io"

	"github.com/mamidon/othismo/internal/leb128"
)

// Encode writes m as a wasm binary. Sections are emitted in the order
// they're held in m (file order for an untouched Decode result; canonical
// order plus original custom-section placement for an edited module).
func (m *Module) Encode(w io.Writer) error {
	if _, err := w.Write(wasmMagic[:]); err != nil {
		return err
	}
	if _, err := w.Write(wasmVersion[:]); err != nil {
		return err
	}

	bw, ok := w.(io.ByteWriter)
	if !ok {
		bw = &byteWriterAdapter{w: w}
	}

	for _, s := range m.sections {
		if err := bw.WriteByte(byte(s.id)); err != nil {
			return err
		}
		if err := leb128.WriteVarUint32(bw, uint32(len(s.payload))); err != nil {
			return err
		}
		if _, err := w.Write(s.payload); err != nil {
			return err
		}
	}

	return nil
}

// byteWriterAdapter gives an io.Writer a WriteByte method when it doesn't
// already have one (io.Writer implementations passed to Encode are not
// guaranteed to be *bytes.Buffer/*bufio.Writer).
type byteWriterAdapter struct {
	w io.Writer
}

func (a *byteWriterAdapter) WriteByte(b byte) error {
	_, err := a.w.Write([]byte{b})
	return err
}
