// Copyright 2026 The Armature Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"sync"
	"time"

	"github.com/armature-robotics/armature/lib/clock"
)

// SignalFlag is a one-shot latch correlated with one reaction. The
// watcher goroutine signals it when the reaction's condition fires;
// any number of goroutines may wait on it concurrently. Once
// signaled, it stays signaled: later waits return immediately.
//
// Create flags with [NewSignalFlag] and hand them to [SignalWhen],
// or use the session helpers (AddReaction, AddTransition,
// AddActionSequence) which create and register one for you.
type SignalFlag struct {
	clock clock.Clock

	once     sync.Once
	signaled chan struct{}
}

// NewSignalFlag creates an unsignaled flag.
func NewSignalFlag() *SignalFlag {
	return newSignalFlag(clock.Real())
}

func newSignalFlag(c clock.Clock) *SignalFlag {
	return &SignalFlag{clock: c, signaled: make(chan struct{})}
}

// Signal sets the flag and wakes every waiter. Idempotent.
func (f *SignalFlag) Signal() {
	f.once.Do(func() { close(f.signaled) })
}

// Signaled reports whether the flag has been signaled, without
// blocking.
func (f *SignalFlag) Signaled() bool {
	select {
	case <-f.signaled:
		return true
	default:
		return false
	}
}

// Wait blocks until the flag is signaled or timeout elapses, and
// reports whether it was signaled. A timeout <= 0 waits forever. A
// flag that is already signaled returns true immediately.
//
// A false return means only that the wait timed out: the reaction may
// still fire later, and nothing is rolled back server-side.
func (f *SignalFlag) Wait(timeout time.Duration) bool {
	if timeout <= 0 {
		<-f.signaled
		return true
	}
	select {
	case <-f.signaled:
		return true
	default:
	}
	select {
	case <-f.signaled:
		return true
	case <-f.clock.After(timeout):
		// Prefer the signal if both raced.
		return f.Signaled()
	}
}
