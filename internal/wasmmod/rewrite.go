// Copyright 2018 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package wasmmod

import "fmt"

// Rewrite turns an arbitrary imported wasm module into a self-contained
// instance template: every imported global becomes a locally defined,
// exported global initialized to its value type's zero constant; every
// imported memory becomes a locally defined, exported memory; existing
// exports are preserved. Rewrite performs no partial mutation — on error
// the input Module m is returned unmodified conceptually (a *new* Module
// is only ever produced on success).
func Rewrite(m *Module) (*Module, error) {
	imports, err := m.Imports()
	if err != nil {
		return nil, err
	}
	globals, err := m.Globals()
	if err != nil {
		return nil, err
	}
	memories, err := m.Memories()
	if err != nil {
		return nil, err
	}
	exports, err := m.Exports()
	if err != nil {
		return nil, err
	}

	var keptImports []Import
	var convertedGlobals []Global
	var extractedMemories []Limits

	for _, imp := range imports {
		switch imp.Kind {
		case ImportKindGlobal:
			// Step 2: reject unsupported value types before any mutation.
			switch imp.Global.ValType {
			case ValueTypeV128:
				return nil, unsupportedModule("simd_global")
			case ValueTypeFuncref, ValueTypeExternref:
				return nil, unsupportedModule("reference_type_global")
			}
			zero, err := ZeroConst(imp.Global.ValType)
			if err != nil {
				return nil, unsupportedModule("unsupported_value_type")
			}
			convertedGlobals = append(convertedGlobals, Global{
				Type: imp.Global,
				Init: zero,
			})
		case ImportKindMemory:
			extractedMemories = append(extractedMemories, imp.Memory)
		case ImportKindTable:
			if imp.Table.ElemType != ValueTypeFuncref {
				return nil, unsupportedModule("table_import")
			}
			keptImports = append(keptImports, imp)
		default:
			keptImports = append(keptImports, imp)
		}
	}

	if len(memories)+len(extractedMemories) > 1 {
		return nil, unsupportedModule("multiple_memories")
	}

	// Step 1: imported globals sit before defined globals in the global
	// index space; reinsert the converted imports at the head, in the
	// order they were declared, so existing global indices in Code stay
	// valid.
	newGlobals := make([]Global, 0, len(convertedGlobals)+len(globals))
	newGlobals = append(newGlobals, convertedGlobals...)
	newGlobals = append(newGlobals, globals...)

	// Step 4: append the extracted memory limits after any pre-existing
	// defined memory (there can be at most one of either, enforced above).
	newMemories := make([]Limits, 0, len(memories)+len(extractedMemories))
	newMemories = append(newMemories, memories...)
	newMemories = append(newMemories, extractedMemories...)

	newExports := append([]Export(nil), exports...)

	// Step 3: add missing global exports for every defined global index.
	exportedGlobal := make(map[uint32]bool)
	for _, e := range newExports {
		if e.Kind == ExportKindGlobal {
			exportedGlobal[e.Index] = true
		}
	}
	for idx := range newGlobals {
		if !exportedGlobal[uint32(idx)] {
			newExports = append(newExports, Export{
				Name:  fmt.Sprintf("othismo_global_%d", idx),
				Kind:  ExportKindGlobal,
				Index: uint32(idx),
			})
		}
	}

	// Step 5: add the canonical memory export if an import was replaced,
	// or a memory exists that isn't exported yet.
	if len(newMemories) == 1 {
		memoryImportReplaced := len(extractedMemories) > 0
		exportedMemory := false
		for _, e := range newExports {
			if e.Kind == ExportKindMemory && e.Index == 0 {
				exportedMemory = true
				break
			}
		}
		if memoryImportReplaced || !exportedMemory {
			newExports = append(newExports, Export{
				Name:  "othismo_memory_0",
				Kind:  ExportKindMemory,
				Index: 0,
			})
		}
	}

	out := &Module{sections: append([]rawSection(nil), m.sections...)}
	out.SetImports(keptImports)
	out.SetGlobals(newGlobals)
	out.SetMemories(newMemories)
	out.SetExports(newExports)

	return out, nil
}
