// Copyright 2019 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package abi implements the host side of the guest↔host contract: the
// "othismo" host import module (_send_message, _cast_message) and a thin
// LiveInstance wrapper over an instantiated wazero module used by
// internal/session and internal/snapshot to call the guest's required and
// optional exports.
package abi

import (
	"context"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/mamidon/othismo/internal/envelope"
)

// hostEnv is the per-Runtime state a trampoline closes over: nothing more
// than an outbound channel and a monotonically increasing handle counter.
// It deliberately holds no guest memory reference — api.Module.Memory()
// is re-fetched from the api.Module argument wazero passes to every call,
// never cached (spec: "do not retain the guest memory view across
// suspension points").
type hostEnv struct {
	out        chan<- envelope.Envelope
	nextHandle uint64
}

// BuildHostModule instantiates the "othismo" host import module against
// rt, wiring _send_message/_cast_message to enqueue onto out without
// blocking the guest beyond the channel send itself.
func BuildHostModule(ctx context.Context, rt wazero.Runtime, out chan<- envelope.Envelope) (api.Module, error) {
	env := &hostEnv{out: out}

	return rt.NewHostModuleBuilder("othismo").
		NewFunctionBuilder().WithFunc(env.sendMessage).Export("_send_message").
		NewFunctionBuilder().WithFunc(env.castMessage).Export("_cast_message").
		Instantiate(ctx)
}

func (e *hostEnv) sendMessage(ctx context.Context, mod api.Module, ptr, length uint32) uint32 {
	handle := atomic.AddUint64(&e.nextHandle, 1)
	e.enqueue(mod, ptr, length)
	return uint32(handle)
}

func (e *hostEnv) castMessage(ctx context.Context, mod api.Module, ptr, length uint32) uint32 {
	e.enqueue(mod, ptr, length)
	return 0
}

func (e *hostEnv) enqueue(mod api.Module, ptr, length uint32) {
	data, ok := mod.Memory().Read(ptr, length)
	if !ok {
		return
	}
	payload := append([]byte(nil), data...)

	env, err := envelope.Decode(payload)
	if err != nil {
		env = envelope.Envelope{
			Header: envelope.Header{SendTo: envelope.DefaultRecipient},
			Body:   payload,
		}
	}
	e.out <- env
}

// LiveInstance wraps an instantiated guest module, exposing the named
// exports the rest of the kernel needs without leaking the api.Module
// type itself past this package's boundary.
type LiveInstance struct {
	mod api.Module
}

// NewLiveInstance wraps an already-instantiated guest module.
func NewLiveInstance(mod api.Module) *LiveInstance {
	return &LiveInstance{mod: mod}
}

// Memory returns the guest's single exported memory, fetched fresh.
func (li *LiveInstance) Memory() api.Memory {
	return li.mod.Memory()
}

// ExportedGlobal returns the guest's global export named name, or nil if
// absent.
func (li *LiveInstance) ExportedGlobal(name string) api.Global {
	return li.mod.ExportedGlobal(name)
}

// HasExport reports whether the guest exports a function named name.
func (li *LiveInstance) HasExport(name string) bool {
	return li.mod.ExportedFunction(name) != nil
}

// CallFunc invokes the guest export named name with args, returning its
// results.
func (li *LiveInstance) CallFunc(ctx context.Context, name string, args ...uint64) ([]uint64, error) {
	fn := li.mod.ExportedFunction(name)
	if fn == nil {
		return nil, newABIViolation(name, "export not found")
	}
	return fn.Call(ctx, args...)
}

// Close releases the guest instance's resources.
func (li *LiveInstance) Close(ctx context.Context) error {
	return li.mod.Close(ctx)
}

// RequireExports checks that every name in required is present, returning
// ErrABIViolation naming the first missing one.
func (li *LiveInstance) RequireExports(required ...string) error {
	for _, name := range required {
		if !li.HasExport(name) {
			return newABIViolation(name, "required export missing")
		}
	}
	return nil
}
