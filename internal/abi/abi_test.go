// Copyright 2019 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package abi

import (
	"context"
	"testing"

	"github.com/tetratelabs/wazero"

	"github.com/mamidon/othismo/internal/envelope"
)

// minimalGuest is a hand-assembled wasm binary exporting a single
// niladic, no-result function named "_othismo_start" whose body is empty
// (just the implicit `end`). It exists purely to exercise LiveInstance
// against a real wazero-compiled module without depending on
// internal/wasmmod's encoder.
var minimalGuest = []byte{
	0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00, // magic, version
	0x01, 0x04, 0x01, 0x60, 0x00, 0x00, // type section: 1 functype () -> ()
	0x03, 0x02, 0x01, 0x00, // function section: 1 function, type 0
	0x07, 0x12, 0x01, 0x0E, // export section: 1 export, name len 14
	'_', 'o', 't', 'h', 'i', 's', 'm', 'o', '_', 's', 't', 'a', 'r', 't',
	0x00, 0x00, // kind func, index 0
	0x0A, 0x04, 0x01, 0x02, 0x00, 0x0B, // code section: 1 body, size 2, 0 locals, end
}

func TestBuildHostModuleAndCallGuestExport(t *testing.T) {
	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)

	out := make(chan envelope.Envelope, 1)
	if _, err := BuildHostModule(ctx, rt, out); err != nil {
		t.Fatalf("BuildHostModule: %v", err)
	}

	compiled, err := rt.CompileModule(ctx, minimalGuest)
	if err != nil {
		t.Fatalf("CompileModule: %v", err)
	}

	mod, err := rt.InstantiateModule(ctx, compiled, wazero.NewModuleConfig())
	if err != nil {
		t.Fatalf("InstantiateModule: %v", err)
	}

	live := NewLiveInstance(mod)

	if !live.HasExport("_othismo_start") {
		t.Fatal("expected _othismo_start export")
	}
	if live.HasExport("_run") {
		t.Fatal("did not expect _run export")
	}

	if err := live.RequireExports("_othismo_start"); err != nil {
		t.Fatalf("RequireExports: %v", err)
	}
	if err := live.RequireExports("_run"); err == nil {
		t.Fatal("expected ABI violation for missing _run export")
	}

	if _, err := live.CallFunc(ctx, "_othismo_start"); err != nil {
		t.Fatalf("CallFunc: %v", err)
	}
}

func TestRequireExportsReportsMissingName(t *testing.T) {
	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)

	compiled, err := rt.CompileModule(ctx, minimalGuest)
	if err != nil {
		t.Fatalf("CompileModule: %v", err)
	}
	mod, err := rt.InstantiateModule(ctx, compiled, wazero.NewModuleConfig())
	if err != nil {
		t.Fatalf("InstantiateModule: %v", err)
	}

	live := NewLiveInstance(mod)
	err = live.RequireExports("_allocate_message", "_message_received")
	if err == nil {
		t.Fatal("expected error")
	}
	v, ok := err.(*ErrABIViolation)
	if !ok || v.Export != "_allocate_message" {
		t.Fatalf("expected violation naming _allocate_message, got %v", err)
	}
}
