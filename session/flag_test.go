// Copyright 2026 The Armature Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"sync"
	"testing"
	"time"

	"github.com/armature-robotics/armature/lib/clock"
	"github.com/armature-robotics/armature/lib/testutil"
)

func TestSignalFlagWaitAfterSignal(t *testing.T) {
	t.Parallel()
	flag := NewSignalFlag()
	flag.Signal()

	if !flag.Signaled() {
		t.Fatal("Signaled = false after Signal")
	}
	// Already-signaled waits return immediately, whatever the timeout.
	if !flag.Wait(time.Nanosecond) {
		t.Fatal("Wait on a signaled flag returned false")
	}
	if !flag.Wait(0) {
		t.Fatal("unbounded Wait on a signaled flag returned false")
	}
}

func TestSignalFlagSignalIsIdempotent(t *testing.T) {
	t.Parallel()
	flag := NewSignalFlag()
	flag.Signal()
	flag.Signal()
	if !flag.Signaled() {
		t.Fatal("Signaled = false after repeated Signal")
	}
}

func TestSignalFlagWaitTimesOut(t *testing.T) {
	t.Parallel()
	fakeClock := clock.Fake(time.Unix(0, 0))
	flag := newSignalFlag(fakeClock)

	result := make(chan bool, 1)
	go func() { result <- flag.Wait(5 * time.Second) }()

	fakeClock.BlockUntilWaiters(1)
	fakeClock.Advance(5 * time.Second)
	if signaled := testutil.RequireReceive(t, result, time.Second, "Wait result"); signaled {
		t.Fatal("Wait returned true without a signal")
	}
	if flag.Signaled() {
		t.Fatal("flag became signaled by timing out")
	}
}

func TestSignalFlagReleasesAllWaiters(t *testing.T) {
	t.Parallel()
	flag := NewSignalFlag()

	var group sync.WaitGroup
	results := make(chan bool, 4)
	for i := 0; i < 4; i++ {
		group.Add(1)
		go func() {
			defer group.Done()
			results <- flag.Wait(0)
		}()
	}
	flag.Signal()
	group.Wait()

	close(results)
	for signaled := range results {
		if !signaled {
			t.Fatal("a waiter returned false after Signal")
		}
	}
}

func TestSignalFlagPrefersSignalOverSimultaneousTimeout(t *testing.T) {
	t.Parallel()
	fakeClock := clock.Fake(time.Unix(0, 0))
	flag := newSignalFlag(fakeClock)

	result := make(chan bool, 1)
	go func() { result <- flag.Wait(5 * time.Second) }()

	fakeClock.BlockUntilWaiters(1)
	flag.Signal()
	fakeClock.Advance(5 * time.Second)
	if signaled := testutil.RequireReceive(t, result, time.Second, "Wait result"); !signaled {
		t.Fatal("Wait returned false for a signaled flag racing its timeout")
	}
}
