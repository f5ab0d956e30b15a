// Copyright 2021 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package session implements the Execution Session: the one-turn state
// machine (Created → Hydrated → Delivering → Quiescing → Dehydrated →
// Committed/Discarded) that revives a stored Instance, delivers one
// inbound envelope, and commits its re-serialized state back to the Image.
package session

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/tetratelabs/wazero"

	"github.com/mamidon/othismo/internal/abi"
	"github.com/mamidon/othismo/internal/envelope"
	"github.com/mamidon/othismo/internal/image"
	"github.com/mamidon/othismo/internal/metricsx"
	"github.com/mamidon/othismo/internal/obslog"
	"github.com/mamidon/othismo/internal/snapshot"
	"github.com/mamidon/othismo/internal/wasmmod"
)

// Dispatch is how a turn forwards envelopes the guest sends during
// delivery onward. Each envelope is forwarded as soon as the guest sends
// it, whether or not the turn later commits. Session holds no reference to the router
// itself — only this narrow callback — so ownership stays one-directional
// (the Router depends on Session, never the reverse).
type Dispatch func(envelope.Envelope)

// Session drives one turn for a single target instance. It is not safe
// for concurrent use; the Router runs at most one turn per Process at a
// time.
type Session struct {
	store    *image.Store
	metrics  *metricsx.Provider
	dispatch Dispatch
}

// New returns a Session that commits against store and forwards outbound
// envelopes via dispatch. metrics may be nil.
func New(store *image.Store, metrics *metricsx.Provider, dispatch Dispatch) *Session {
	return &Session{store: store, metrics: metrics, dispatch: dispatch}
}

// outboundBuffer sizes the channel between the host trampolines and the
// session's drain goroutine; it only smooths bursts, since the drain
// goroutine (started in Run, alongside the guest calls) keeps the channel
// empty the whole turn through. Sends never block the guest regardless of
// how many envelopes it emits in one turn, per spec.md §4.5/§5.
const outboundBuffer = 256

// Run executes one full turn against target: Created → Hydrated →
// Delivering → Quiescing → Dehydrated → Committed, or Discarded on the
// first failure. A failure after Created leaves the stored template
// byte-identical to what it was before Run was called.
func (s *Session) Run(ctx context.Context, target string, env envelope.Envelope) error {
	start := time.Now()
	committed := false
	defer func() {
		if s.metrics != nil {
			s.metrics.RecordTurn(time.Since(start), committed)
		}
	}()

	log := obslog.WithFields(obslog.Fields{"instance": target})

	obj, err := s.store.GetObject(ctx, target)
	if err != nil {
		return turnFailed(target, "load", err)
	}
	if obj.Kind != image.ObjectKindInstance {
		return turnFailed(target, "load", fmt.Errorf("object %s is not an instance", target))
	}

	tmpl, err := wasmmod.Decode(bytes.NewReader(obj.Bytes))
	if err != nil {
		return turnFailed(target, "decode", err)
	}

	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)

	outbound := make(chan envelope.Envelope, outboundBuffer)
	drainDone := make(chan struct{})
	go s.drainOutbound(outbound, drainDone)
	defer func() {
		close(outbound)
		<-drainDone
	}()

	if _, err := abi.BuildHostModule(ctx, rt, outbound); err != nil {
		return turnFailed(target, "build_host_module", err)
	}

	live, err := snapshot.Hydrate(ctx, rt, tmpl)
	if err != nil {
		log.WithField("stage", "hydrate").Warn(err.Error())
		return turnFailed(target, "hydrate", err)
	}
	defer live.Close(ctx)

	if err := live.RequireExports("_allocate_message", "_message_received"); err != nil {
		return turnFailed(target, "abi_contract", err)
	}

	payload := env.Bytes()
	results, err := live.CallFunc(ctx, "_allocate_message", uint64(len(payload)))
	if err != nil {
		return turnFailed(target, "allocate_message", err)
	}
	ptr := uint32(results[0])
	if ok := live.Memory().Write(ptr, payload); !ok {
		return turnFailed(target, "write_message", fmt.Errorf("memory write out of bounds at %d..%d", ptr, int(ptr)+len(payload)))
	}

	// The second argument is the host-tracked handle a re-entrant reply
	// would echo back (spec.md §4.6: "request_id==0 means new inbound
	// message, otherwise the handle echoes a prior _send_message return").
	// Delivery in this kernel is always deferred, never re-entrant (see
	// DESIGN.md's Open Questions), so every _message_received call is a
	// fresh inbound message and this is always 0 — never the envelope's
	// own othismo.request_id, which the guest reads out of the payload
	// bytes at ptr instead.
	if _, err := live.CallFunc(ctx, "_message_received", uint64(ptr), 0); err != nil {
		return turnFailed(target, "message_received", err)
	}

	if live.HasExport("_run") {
		if _, err := live.CallFunc(ctx, "_run"); err != nil {
			return turnFailed(target, "run", err)
		}
	}

	newTmpl, err := snapshot.Dehydrate(ctx, live, tmpl)
	if err != nil {
		return turnFailed(target, "dehydrate", err)
	}

	var buf bytes.Buffer
	if err := newTmpl.Encode(&buf); err != nil {
		return turnFailed(target, "encode", err)
	}

	if err := s.store.ReplaceInstance(ctx, target, buf.Bytes()); err != nil {
		return turnFailed(target, "commit", err)
	}

	committed = true
	log.Debug("turn committed")
	return nil
}

// drainOutbound runs for the lifetime of one turn, forwarding every
// envelope the guest emits as soon as it arrives so _send_message/
// _cast_message (internal/abi's trampolines) never block waiting on a
// full channel no matter how many sends one turn issues. Run closes
// outbound once the guest's exports have returned, which ends the range
// loop and signals done.
func (s *Session) drainOutbound(outbound <-chan envelope.Envelope, done chan<- struct{}) {
	defer close(done)
	for env := range outbound {
		if s.dispatch != nil {
			s.dispatch(env)
		}
	}
}
