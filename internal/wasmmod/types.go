// Copyright 2018 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package wasmmod decodes and re-encodes wasm binary modules section by
// section, and rewrites an arbitrary imported module into a self-contained
// instance template (zero imported globals/memories, canonical exports).
package wasmmod

// SectionID identifies a wasm binary section, in the numbering fixed by the
// core wasm specification.
type SectionID byte

const (
	SectionCustom SectionID = iota
	SectionType
	SectionImport
	SectionFunction
	SectionTable
	SectionMemory
	SectionGlobal
	SectionExport
	SectionStart
	SectionElement
	SectionCode
	SectionData
	SectionDataCount
)

// ValueType is a wasm value type byte.
type ValueType byte

const (
	ValueTypeI32       ValueType = 0x7F
	ValueTypeI64       ValueType = 0x7E
	ValueTypeF32       ValueType = 0x7D
	ValueTypeF64       ValueType = 0x7C
	ValueTypeV128      ValueType = 0x7B
	ValueTypeFuncref   ValueType = 0x70
	ValueTypeExternref ValueType = 0x6F
)

// IsScalarNumeric reports whether v is one of i32/i64/f32/f64 — the only
// value types this kernel hydrates globals for.
func (v ValueType) IsScalarNumeric() bool {
	switch v {
	case ValueTypeI32, ValueTypeI64, ValueTypeF32, ValueTypeF64:
		return true
	}
	return false
}

// IsReferenceOrVector reports whether v is a reference type or v128 — the
// value types the rewriter explicitly rejects on imported globals.
func (v ValueType) IsReferenceOrVector() bool {
	switch v {
	case ValueTypeV128, ValueTypeFuncref, ValueTypeExternref:
		return true
	}
	return false
}

// ImportKind tags the payload of an Import entry.
type ImportKind byte

const (
	ImportKindFunc ImportKind = iota
	ImportKindTable
	ImportKindMemory
	ImportKindGlobal
)

// ExportKind tags the payload of an Export entry.
type ExportKind byte

const (
	ExportKindFunc ExportKind = iota
	ExportKindTable
	ExportKindMemory
	ExportKindGlobal
)

// Limits is a resizable-limits pair (memory or table).
type Limits struct {
	Min    uint32
	Max    uint32
	HasMax bool
}

// GlobalType is a global's declared value type and mutability.
type GlobalType struct {
	ValType ValueType
	Mutable bool
}

// TableType is a table import/definition's element type and size limits.
type TableType struct {
	ElemType ValueType
	Limits   Limits
}

// Import is one entry of the Import section.
type Import struct {
	Module string
	Field  string
	Kind   ImportKind

	// Exactly one of these is meaningful, selected by Kind.
	FuncTypeIdx uint32
	Table       TableType
	Memory      Limits
	Global      GlobalType
}

// Export is one entry of the Export section.
type Export struct {
	Name  string
	Kind  ExportKind
	Index uint32
}

// Global is one entry of the Global section: a defined (never imported,
// post-rewrite) global with a constant initializer expression.
type Global struct {
	Type GlobalType
	Init ConstExpr
}

// Data is one entry of the Data section. This package only ever produces
// and consumes active segments against memory 0, matching the MVP wasm
// binary format (no bulk-memory passive/explicit-memory-index segments).
type Data struct {
	Offset ConstExpr
	Init   []byte
}

// ConstExpr holds the raw encoded bytes of a constant initializer
// expression (a single instruction followed by the 0x0B end opcode), as
// used for global initializers and active data segment offsets. Raw bytes
// are preserved verbatim so an unedited decode→encode round-trip is
// byte-identical even for expressions this package doesn't synthesize
// (e.g. global.get of an immutable import cannot appear post-rewrite, but
// a module with unusual-yet-valid offset expressions may still decode).
type ConstExpr []byte

// Module is the structured, section-ordered in-memory form of a wasm
// binary. Sections are kept in file order (including interleaved Custom
// sections) so an unedited round-trip reproduces the input exactly;
// typed accessors below decode the sections this package actually needs
// to inspect or mutate.
type Module struct {
	sections []rawSection
}

type rawSection struct {
	id      SectionID
	payload []byte
}

// Clone returns a deep copy of m, safe to mutate independently of the
// original (the Instance Snapshot never mutates a template in place — it
// always produces a new pending template).
func (m *Module) Clone() *Module {
	out := &Module{sections: make([]rawSection, len(m.sections))}
	for i, s := range m.sections {
		out.sections[i] = rawSection{id: s.id, payload: append([]byte(nil), s.payload...)}
	}
	return out
}
