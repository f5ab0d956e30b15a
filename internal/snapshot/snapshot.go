// Copyright 2021 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package snapshot implements the Instance Snapshot: reading the live
// linear memory and globals of a running guest back into a wasm template
// (Dehydrate), and compiling and instantiating a template back into a
// running guest (Hydrate).
package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"math"

	"github.com/tetratelabs/wazero"

	"github.com/mamidon/othismo/internal/abi"
	"github.com/mamidon/othismo/internal/wasmmod"
)

// PageSize is the granularity at which Dehydrate scans linear memory for
// non-zero pages to re-encode as active data segments.
const PageSize = 4096

const wasmPageSize = 65536

// Dehydrate reads back every exported global and the contents of linear
// memory from live, and returns a new template — a copy of tmpl with its
// Global section's initializers replaced by the live values, its Data
// section replaced by one active segment per non-all-zero page of memory,
// and its Memory section's minimum grown (never shrunk) to fit the
// observed size. tmpl itself is never mutated.
func Dehydrate(ctx context.Context, live *abi.LiveInstance, tmpl *wasmmod.Module) (*wasmmod.Module, error) {
	out := tmpl.Clone()

	globals, err := tmpl.Globals()
	if err != nil {
		return nil, fmt.Errorf("snapshot: read globals: %w", err)
	}
	exports, err := tmpl.Exports()
	if err != nil {
		return nil, fmt.Errorf("snapshot: read exports: %w", err)
	}

	globalExportName := make(map[uint32]string, len(globals))
	for _, e := range exports {
		if e.Kind == wasmmod.ExportKindGlobal {
			globalExportName[e.Index] = e.Name
		}
	}

	newGlobals := make([]wasmmod.Global, len(globals))
	for idx, g := range globals {
		name, ok := globalExportName[uint32(idx)]
		if !ok {
			return nil, fmt.Errorf("snapshot: defined global %d has no export (rewriter invariant violated)", idx)
		}
		handle := live.ExportedGlobal(name)
		if handle == nil {
			return nil, fmt.Errorf("snapshot: live instance missing global export %q", name)
		}
		bits := handle.Get()

		var init wasmmod.ConstExpr
		switch g.Type.ValType {
		case wasmmod.ValueTypeI32:
			init = wasmmod.ConstI32(int32(bits))
		case wasmmod.ValueTypeI64:
			init = wasmmod.ConstI64(int64(bits))
		case wasmmod.ValueTypeF32:
			init = wasmmod.ConstF32(math.Float32frombits(uint32(bits)))
		case wasmmod.ValueTypeF64:
			init = wasmmod.ConstF64(math.Float64frombits(bits))
		default:
			return nil, fmt.Errorf("snapshot: global %d has non-scalar value type (rewriter invariant violated)", idx)
		}
		newGlobals[idx] = wasmmod.Global{Type: g.Type, Init: init}
	}
	out.SetGlobals(newGlobals)

	memories, err := tmpl.Memories()
	if err != nil {
		return nil, fmt.Errorf("snapshot: read memories: %w", err)
	}
	if len(memories) != 1 {
		return out, nil
	}

	mem := live.Memory()
	size := mem.Size()

	var segments []wasmmod.Data
	for offset := uint32(0); offset < size; offset += PageSize {
		length := uint32(PageSize)
		if remaining := size - offset; remaining < length {
			length = remaining
		}
		page, ok := mem.Read(offset, length)
		if !ok {
			return nil, fmt.Errorf("snapshot: read memory [%d,%d)", offset, offset+length)
		}
		if allZero(page) {
			continue
		}
		segments = append(segments, wasmmod.Data{
			Offset: wasmmod.ConstI32(int32(offset)),
			Init:   append([]byte(nil), page...),
		})
	}
	out.SetDataSegments(segments)

	minPages := (size + wasmPageSize - 1) / wasmPageSize
	if minPages > memories[0].Min {
		memories[0].Min = minPages
	}
	out.SetMemories(memories)

	return out, nil
}

// Hydrate compiles tmpl and instantiates it against rt, which must already
// have the "othismo" host module registered (see abi.BuildHostModule). It
// calls the guest's _othismo_start export, if present, before returning.
func Hydrate(ctx context.Context, rt wazero.Runtime, tmpl *wasmmod.Module) (*abi.LiveInstance, error) {
	var buf bytes.Buffer
	if err := tmpl.Encode(&buf); err != nil {
		return nil, fmt.Errorf("snapshot: encode template: %w", err)
	}

	compiled, err := rt.CompileModule(ctx, buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("snapshot: compile template: %w", err)
	}

	mod, err := rt.InstantiateModule(ctx, compiled, wazero.NewModuleConfig())
	if err != nil {
		return nil, fmt.Errorf("snapshot: instantiate template: %w", err)
	}

	live := abi.NewLiveInstance(mod)
	if live.HasExport("_othismo_start") {
		if _, err := live.CallFunc(ctx, "_othismo_start"); err != nil {
			return nil, fmt.Errorf("snapshot: _othismo_start: %w", err)
		}
	}
	return live, nil
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
