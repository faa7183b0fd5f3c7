// Copyright 2026 The Armature Authors
// SPDX-License-Identifier: Apache-2.0

// Package session implements the client engine for the Armature
// real-time control session protocol: exclusive control over robot
// parts, time-critical behaviors (actions), and the conditions that
// move control between them (reactions), with asynchronous
// notification when a condition fires.
//
// A [Session] is opened against a [transport.Stub] supplied by the
// surrounding application — this package never dials, authenticates,
// or retries. Opening allocates the requested parts over the session
// channel, establishes the watch channel, and starts one watcher
// goroutine that dispatches every server-reported reaction event to
// the callbacks and [SignalFlag] latches registered for its reaction
// ID.
//
// Behaviors are described declaratively before they run: an [Action]
// names a server-side action type with its target parts and
// parameters; a [Reaction] pairs a [Condition] (built with IsTrue,
// IsEqual, AllOf, ...) with [Response] effects (Start, StartParallel,
// Invoke, SignalWhen, RealtimeSignal). The server evaluates every
// condition once per control cycle, so transitions happen at control
// frequency without client round trips; the client merely observes
// them.
//
// Concurrency model: any number of caller goroutines may use a
// Session concurrently; one request is in flight on the session
// channel at a time, and responses correlate positionally. The one
// watcher goroutine is the only reader of the watch channel. No call
// blocks longer than a single round trip except End (bounded by
// teardown) and the Wait helpers (bounded by their timeout). There is
// no per-call cancellation; End is the only cancellation primitive
// and implicitly closes every open [Stream].
package session
