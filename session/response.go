// Copyright 2026 The Armature Authors
// SPDX-License-Identifier: Apache-2.0

package session

import "time"

// ReactionEvent is delivered to callbacks when a reaction's
// condition is satisfied.
type ReactionEvent struct {
	// Timestamp is the control-cycle time at which the condition was
	// observed true.
	Timestamp time.Time

	// PreviousAction is the action instance that was running when
	// the condition fired. Nil when no action was associated.
	PreviousAction *uint64

	// CurrentAction is the action instance running after the
	// reaction's effect was applied. Nil when the reaction stopped
	// the action without starting another.
	CurrentAction *uint64
}

// ReactionCallback is invoked by the session's watcher goroutine for
// every event on the reaction it is registered under. Callbacks must
// return promptly (they delay subsequent event dispatch) and must not
// call Session.End, which waits for the watcher goroutine to finish.
type ReactionCallback func(event ReactionEvent)

// Response is one declared effect of a satisfied reaction. The
// variant set is closed: start an action (stopping the associated
// one), start an action in parallel, invoke a callback, signal a
// flag, or raise a named realtime signal. Start and parallel-start
// run in the server's real-time loop; callbacks and flags are purely
// client-side.
type Response interface {
	// isResponse seals the interface.
	isResponse()
}

// startResponse starts another action when the condition fires.
// parallel distinguishes "stop the associated action first" from
// "leave it running".
type startResponse struct {
	actionID uint64
	parallel bool
}

func (startResponse) isResponse() {}

// invokeResponse invokes a client-side callback.
type invokeResponse struct {
	callback ReactionCallback
}

func (invokeResponse) isResponse() {}

// signalResponse signals a client-side flag.
type signalResponse struct {
	flag *SignalFlag
}

func (signalResponse) isResponse() {}

// realtimeSignalResponse raises a named realtime signal on the
// associated action.
type realtimeSignalResponse struct {
	name string
}

func (realtimeSignalResponse) isResponse() {}

// Start stops the action the reaction is attached to and starts the
// given action on the same control cycle.
func Start(action *Action) Response {
	return startResponse{actionID: action.ID}
}

// StartParallel starts the given action without stopping the action
// the reaction is attached to.
func StartParallel(action *Action) Response {
	return startResponse{actionID: action.ID, parallel: true}
}

// Invoke registers a callback to run on the session's watcher
// goroutine every time the condition fires. Client-side only: no
// wire record carries it.
func Invoke(callback ReactionCallback) Response {
	return invokeResponse{callback: callback}
}

// SignalWhen signals the flag the first time the condition fires.
// Client-side only: no wire record carries it.
func SignalWhen(flag *SignalFlag) Response {
	return signalResponse{flag: flag}
}

// RealtimeSignal raises the named realtime signal on the associated
// action when the condition fires. Realtime signals are consumed by
// other actions inside the control loop within the same cycle.
func RealtimeSignal(name string) Response {
	return realtimeSignalResponse{name: name}
}
