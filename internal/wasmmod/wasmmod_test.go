// Copyright 2018 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package wasmmod

import (
	"bytes"
	"errors"
	"testing"
)

func TestRoundTripByteIdentical(t *testing.T) {
	m := &Module{}
	m.SetImports([]Import{
		{Module: "env", Field: "g", Kind: ImportKindGlobal, Global: GlobalType{ValType: ValueTypeI32}},
	})
	m.SetGlobals([]Global{
		{Type: GlobalType{ValType: ValueTypeI32, Mutable: true}, Init: ConstI32(42)},
	})
	m.SetMemories([]Limits{{Min: 1, HasMax: true, Max: 2}})
	m.SetExports([]Export{{Name: "memory", Kind: ExportKindMemory, Index: 0}})
	m.SetDataSegments([]Data{{Offset: ConstI32(0), Init: []byte("hello")}})

	var first bytes.Buffer
	if err := m.Encode(&first); err != nil {
		t.Fatalf("encode: %v", err)
	}

	decoded, err := Decode(bytes.NewReader(first.Bytes()))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	var second bytes.Buffer
	if err := decoded.Encode(&second); err != nil {
		t.Fatalf("re-encode: %v", err)
	}

	if !bytes.Equal(first.Bytes(), second.Bytes()) {
		t.Fatalf("round trip not byte-identical:\n%x\n%x", first.Bytes(), second.Bytes())
	}
}

func TestRewriteClosesImportedGlobalAndMemory(t *testing.T) {
	m := &Module{}
	m.SetImports([]Import{
		{Module: "env", Field: "counter", Kind: ImportKindGlobal, Global: GlobalType{ValType: ValueTypeI32, Mutable: true}},
		{Module: "env", Field: "mem", Kind: ImportKindMemory, Memory: Limits{Min: 1}},
	})
	m.SetExports(nil)

	out, err := Rewrite(m)
	if err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	imports, err := out.Imports()
	if err != nil {
		t.Fatal(err)
	}
	if len(imports) != 0 {
		t.Fatalf("expected zero imports after rewrite, got %d", len(imports))
	}

	globals, err := out.Globals()
	if err != nil {
		t.Fatal(err)
	}
	if len(globals) != 1 {
		t.Fatalf("expected one defined global, got %d", len(globals))
	}
	if globals[0].Type.ValType != ValueTypeI32 {
		t.Fatalf("global type = %v", globals[0].Type.ValType)
	}
	if !bytes.Equal(globals[0].Init, ConstI32(0)) {
		t.Fatalf("global init = %x, want zero const", globals[0].Init)
	}

	mems, err := out.Memories()
	if err != nil {
		t.Fatal(err)
	}
	if len(mems) != 1 {
		t.Fatalf("expected one defined memory, got %d", len(mems))
	}

	exports, err := out.Exports()
	if err != nil {
		t.Fatal(err)
	}
	var sawGlobalExport, sawMemoryExport bool
	for _, e := range exports {
		if e.Kind == ExportKindGlobal && e.Name == "othismo_global_0" && e.Index == 0 {
			sawGlobalExport = true
		}
		if e.Kind == ExportKindMemory && e.Name == "othismo_memory_0" && e.Index == 0 {
			sawMemoryExport = true
		}
	}
	if !sawGlobalExport {
		t.Fatalf("missing othismo_global_0 export: %+v", exports)
	}
	if !sawMemoryExport {
		t.Fatalf("missing othismo_memory_0 export: %+v", exports)
	}
}

func TestRewritePreservesExistingExportName(t *testing.T) {
	m := &Module{}
	m.SetGlobals([]Global{
		{Type: GlobalType{ValType: ValueTypeI32}, Init: ConstI32(7)},
	})
	m.SetExports([]Export{{Name: "myGlobal", Kind: ExportKindGlobal, Index: 0}})

	out, err := Rewrite(m)
	if err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	exports, err := out.Exports()
	if err != nil {
		t.Fatal(err)
	}
	if len(exports) != 1 || exports[0].Name != "myGlobal" {
		t.Fatalf("expected existing export preserved untouched, got %+v", exports)
	}
}

func TestRewriteRejectsSimdGlobal(t *testing.T) {
	m := &Module{}
	m.SetImports([]Import{
		{Module: "env", Field: "v", Kind: ImportKindGlobal, Global: GlobalType{ValType: ValueTypeV128}},
	})

	_, err := Rewrite(m)
	var unsupported *ErrUnsupportedModule
	if !errors.As(err, &unsupported) || unsupported.Tag != "simd_global" {
		t.Fatalf("expected simd_global rejection, got %v", err)
	}
}

func TestRewriteRejectsReferenceTypeGlobal(t *testing.T) {
	m := &Module{}
	m.SetImports([]Import{
		{Module: "env", Field: "r", Kind: ImportKindGlobal, Global: GlobalType{ValType: ValueTypeFuncref}},
	})

	_, err := Rewrite(m)
	var unsupported *ErrUnsupportedModule
	if !errors.As(err, &unsupported) || unsupported.Tag != "reference_type_global" {
		t.Fatalf("expected reference_type_global rejection, got %v", err)
	}
}

func TestRewriteRejectsMultipleMemories(t *testing.T) {
	m := &Module{}
	m.SetImports([]Import{
		{Module: "env", Field: "m1", Kind: ImportKindMemory, Memory: Limits{Min: 1}},
		{Module: "env", Field: "m2", Kind: ImportKindMemory, Memory: Limits{Min: 1}},
	})

	_, err := Rewrite(m)
	var unsupported *ErrUnsupportedModule
	if !errors.As(err, &unsupported) || unsupported.Tag != "multiple_memories" {
		t.Fatalf("expected multiple_memories rejection, got %v", err)
	}
}

func TestRewriteRejectsNonFuncrefTableImport(t *testing.T) {
	m := &Module{}
	m.SetImports([]Import{
		{Module: "env", Field: "t", Kind: ImportKindTable, Table: TableType{ElemType: ValueTypeExternref}},
	})

	_, err := Rewrite(m)
	var unsupported *ErrUnsupportedModule
	if !errors.As(err, &unsupported) || unsupported.Tag != "table_import" {
		t.Fatalf("expected table_import rejection, got %v", err)
	}
}

func TestMalformedMagicRejected(t *testing.T) {
	_, err := Decode(bytes.NewReader([]byte("not a wasm module")))
	var malformed *ErrMalformed
	if !errors.As(err, &malformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}
