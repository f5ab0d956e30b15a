// Copyright 2021 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package router

import (
	"context"
	"fmt"

	"github.com/mamidon/othismo/internal/envelope"
	"github.com/mamidon/othismo/internal/obslog"
	"github.com/mamidon/othismo/internal/session"
)

// process is the cooperative task owning one Instance's inbox, grounded
// on othismo/src/othismo/executors.rs's ProcessExecutor poll loop:
// pull one envelope, run it to completion, repeat. Exactly one turn runs
// at a time per process, satisfying spec.md §4.7's "a Process executes
// one message at a time."
type process struct {
	name  string
	in    *inbox
	alive bool
}

func newProcess(name string) *process {
	return &process{name: name, in: newInbox(), alive: true}
}

// run is the process's goroutine body. It pulls envelopes off in until
// the queue is closed (router shutdown or explicit termination), running
// one Execution Session turn per envelope. A turn failure (trap, ABI
// violation, hydrate/dehydrate error) is logged and does not end the
// process — only a Go-level panic inside a turn does, matching spec.md
// §4.7's "if a Process task terminates (panics, returns, or is aborted)".
func (p *process) run(ctx context.Context, r *Router) {
	defer r.wg.Done()
	defer func() {
		if rec := recover(); rec != nil {
			obslog.WithField("process", p.name).Errorf("process panicked: %v", rec)
			r.processTerminated(p.name)
		}
	}()

	for {
		env, ok := p.in.pop()
		if !ok {
			return
		}
		p.runTurn(ctx, r, env)
		r.turnCompleted()
	}
}

func (p *process) runTurn(ctx context.Context, r *Router, env envelope.Envelope) {
	sess := session.New(r.store, r.metrics, r.forward)
	if err := sess.Run(ctx, p.name, env); err != nil {
		obslog.WithFields(obslog.Fields{"process": p.name}).Warn(err.Error())
	}
}

func (p *process) String() string {
	return fmt.Sprintf("process(%s, inbox=%d)", p.name, p.in.len())
}
