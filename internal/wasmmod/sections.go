// Copyright 2018 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package wasmmod

import (
	"io"

	"github.com/mamidon/othismo/internal/leb128"
)

// sectionOrder gives the canonical relative ordering of non-custom
// sections in a wasm binary. Custom sections (order 0) may be interleaved
// anywhere and are never reordered by this package.
func sectionOrder(id SectionID) int {
	switch id {
	case SectionType:
		return 1
	case SectionImport:
		return 2
	case SectionFunction:
		return 3
	case SectionTable:
		return 4
	case SectionMemory:
		return 5
	case SectionGlobal:
		return 6
	case SectionExport:
		return 7
	case SectionStart:
		return 8
	case SectionElement:
		return 9
	case SectionDataCount:
		return 10
	case SectionCode:
		return 11
	case SectionData:
		return 12
	default:
		return 0
	}
}

// findSection returns the index of the (at most one expected) section with
// the given id, or -1 if absent.
func (m *Module) findSection(id SectionID) int {
	for i, s := range m.sections {
		if s.id == id {
			return i
		}
	}
	return -1
}

// setSectionPayload replaces the payload of the section with the given id,
// inserting it in canonical position if it is not already present.
func (m *Module) setSectionPayload(id SectionID, payload []byte) {
	if i := m.findSection(id); i >= 0 {
		m.sections[i].payload = payload
		return
	}

	rank := sectionOrder(id)
	insertAt := len(m.sections)
	for i, s := range m.sections {
		if s.id != SectionCustom && sectionOrder(s.id) > rank {
			insertAt = i
			break
		}
	}

	m.sections = append(m.sections, rawSection{})
	copy(m.sections[insertAt+1:], m.sections[insertAt:])
	m.sections[insertAt] = rawSection{id: id, payload: payload}
}

// removeSection deletes the section with the given id, if present.
func (m *Module) removeSection(id SectionID) {
	if i := m.findSection(id); i >= 0 {
		m.sections = append(m.sections[:i], m.sections[i+1:]...)
	}
}

// Imports decodes the Import section, or returns nil if absent.
func (m *Module) Imports() ([]Import, error) {
	i := m.findSection(SectionImport)
	if i < 0 {
		return nil, nil
	}
	c := newByteCursor(m.sections[i].payload)
	count, err := readVarUint32(c)
	if err != nil {
		return nil, err
	}

	imports := make([]Import, 0, count)
	for n := uint32(0); n < count; n++ {
		mod, err := readString(c)
		if err != nil {
			return nil, err
		}
		field, err := readString(c)
		if err != nil {
			return nil, err
		}
		kindByte, err := c.ReadByte()
		if err != nil {
			return nil, err
		}

		imp := Import{Module: mod, Field: field, Kind: ImportKind(kindByte)}
		switch imp.Kind {
		case ImportKindFunc:
			idx, err := readVarUint32(c)
			if err != nil {
				return nil, err
			}
			imp.FuncTypeIdx = idx
		case ImportKindTable:
			elemByte, err := c.ReadByte()
			if err != nil {
				return nil, err
			}
			limits, err := readLimits(c)
			if err != nil {
				return nil, err
			}
			imp.Table = TableType{ElemType: ValueType(elemByte), Limits: limits}
		case ImportKindMemory:
			limits, err := readLimits(c)
			if err != nil {
				return nil, err
			}
			imp.Memory = limits
		case ImportKindGlobal:
			valByte, err := c.ReadByte()
			if err != nil {
				return nil, err
			}
			mutByte, err := c.ReadByte()
			if err != nil {
				return nil, err
			}
			imp.Global = GlobalType{ValType: ValueType(valByte), Mutable: mutByte == 1}
		default:
			return nil, malformed(c.pos, "unknown import kind")
		}

		imports = append(imports, imp)
	}

	return imports, nil
}

// SetImports re-encodes the Import section from imports, removing the
// section entirely if imports is empty.
func (m *Module) SetImports(imports []Import) {
	if len(imports) == 0 {
		m.removeSection(SectionImport)
		return
	}

	s := &byteSink{}
	s.writeVarUint32(uint32(len(imports)))
	for _, imp := range imports {
		s.writeString(imp.Module)
		s.writeString(imp.Field)
		s.WriteByte(byte(imp.Kind))
		switch imp.Kind {
		case ImportKindFunc:
			s.writeVarUint32(imp.FuncTypeIdx)
		case ImportKindTable:
			s.WriteByte(byte(imp.Table.ElemType))
			writeLimits(s, imp.Table.Limits)
		case ImportKindMemory:
			writeLimits(s, imp.Memory)
		case ImportKindGlobal:
			s.WriteByte(byte(imp.Global.ValType))
			s.WriteByte(boolByte(imp.Global.Mutable))
		}
	}
	m.setSectionPayload(SectionImport, s.buf)
}

// Globals decodes the Global section, or returns nil if absent.
func (m *Module) Globals() ([]Global, error) {
	i := m.findSection(SectionGlobal)
	if i < 0 {
		return nil, nil
	}
	c := newByteCursor(m.sections[i].payload)
	count, err := readVarUint32(c)
	if err != nil {
		return nil, err
	}

	globals := make([]Global, 0, count)
	for n := uint32(0); n < count; n++ {
		valByte, err := c.ReadByte()
		if err != nil {
			return nil, err
		}
		mutByte, err := c.ReadByte()
		if err != nil {
			return nil, err
		}
		init, err := readConstExpr(c)
		if err != nil {
			return nil, err
		}
		globals = append(globals, Global{
			Type: GlobalType{ValType: ValueType(valByte), Mutable: mutByte == 1},
			Init: init,
		})
	}

	return globals, nil
}

// SetGlobals re-encodes the Global section from globals, removing the
// section entirely if globals is empty.
func (m *Module) SetGlobals(globals []Global) {
	if len(globals) == 0 {
		m.removeSection(SectionGlobal)
		return
	}

	s := &byteSink{}
	s.writeVarUint32(uint32(len(globals)))
	for _, g := range globals {
		s.WriteByte(byte(g.Type.ValType))
		s.WriteByte(boolByte(g.Type.Mutable))
		s.Write(g.Init)
	}
	m.setSectionPayload(SectionGlobal, s.buf)
}

// Memories decodes the Memory section, or returns nil if absent.
func (m *Module) Memories() ([]Limits, error) {
	i := m.findSection(SectionMemory)
	if i < 0 {
		return nil, nil
	}
	c := newByteCursor(m.sections[i].payload)
	count, err := readVarUint32(c)
	if err != nil {
		return nil, err
	}

	mems := make([]Limits, 0, count)
	for n := uint32(0); n < count; n++ {
		l, err := readLimits(c)
		if err != nil {
			return nil, err
		}
		mems = append(mems, l)
	}
	return mems, nil
}

// SetMemories re-encodes the Memory section from mems, removing the
// section entirely if mems is empty.
func (m *Module) SetMemories(mems []Limits) {
	if len(mems) == 0 {
		m.removeSection(SectionMemory)
		return
	}
	s := &byteSink{}
	s.writeVarUint32(uint32(len(mems)))
	for _, l := range mems {
		writeLimits(s, l)
	}
	m.setSectionPayload(SectionMemory, s.buf)
}

// Exports decodes the Export section, or returns nil if absent.
func (m *Module) Exports() ([]Export, error) {
	i := m.findSection(SectionExport)
	if i < 0 {
		return nil, nil
	}
	c := newByteCursor(m.sections[i].payload)
	count, err := readVarUint32(c)
	if err != nil {
		return nil, err
	}

	exports := make([]Export, 0, count)
	for n := uint32(0); n < count; n++ {
		name, err := readString(c)
		if err != nil {
			return nil, err
		}
		kindByte, err := c.ReadByte()
		if err != nil {
			return nil, err
		}
		idx, err := readVarUint32(c)
		if err != nil {
			return nil, err
		}
		exports = append(exports, Export{Name: name, Kind: ExportKind(kindByte), Index: idx})
	}
	return exports, nil
}

// SetExports re-encodes the Export section from exports. An empty module
// legally carries a zero-entry Export section, so unlike the other
// setters this never removes the section outright if it already existed;
// callers that want it gone call removeSection directly (none currently
// do — every template this kernel produces exports at least one global
// or memory).
func (m *Module) SetExports(exports []Export) {
	s := &byteSink{}
	s.writeVarUint32(uint32(len(exports)))
	for _, e := range exports {
		s.writeString(e.Name)
		s.WriteByte(byte(e.Kind))
		s.writeVarUint32(e.Index)
	}
	m.setSectionPayload(SectionExport, s.buf)
}

// DataSegments decodes the Data section, or returns nil if absent. Only
// the MVP active-segment-against-memory-0 encoding is supported.
func (m *Module) DataSegments() ([]Data, error) {
	i := m.findSection(SectionData)
	if i < 0 {
		return nil, nil
	}
	c := newByteCursor(m.sections[i].payload)
	count, err := readVarUint32(c)
	if err != nil {
		return nil, err
	}

	segs := make([]Data, 0, count)
	for n := uint32(0); n < count; n++ {
		memIdx, err := readVarUint32(c)
		if err != nil {
			return nil, err
		}
		if memIdx != 0 {
			return nil, unsupportedModule("multiple_memories")
		}
		offset, err := readConstExpr(c)
		if err != nil {
			return nil, err
		}
		size, err := readVarUint32(c)
		if err != nil {
			return nil, err
		}
		buf := make([]byte, size)
		if _, err := io.ReadFull(c, buf); err != nil {
			return nil, err
		}
		segs = append(segs, Data{Offset: offset, Init: buf})
	}
	return segs, nil
}

// SetDataSegments re-encodes the Data section from segs, removing the
// section (and any DataCount section) entirely if segs is empty.
func (m *Module) SetDataSegments(segs []Data) {
	if len(segs) == 0 {
		m.removeSection(SectionData)
		m.removeSection(SectionDataCount)
		return
	}

	s := &byteSink{}
	s.writeVarUint32(uint32(len(segs)))
	for _, d := range segs {
		s.writeVarUint32(0) // memory index, always 0
		s.Write(d.Offset)
		s.writeVarUint32(uint32(len(d.Init)))
		s.Write(d.Init)
	}
	m.setSectionPayload(SectionData, s.buf)

	if m.findSection(SectionDataCount) >= 0 {
		cs := &byteSink{}
		cs.writeVarUint32(uint32(len(segs)))
		m.setSectionPayload(SectionDataCount, cs.buf)
	}
}

func readVarUint32(c *byteCursor) (uint32, error) {
	return leb128.ReadVarUint32(c)
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
