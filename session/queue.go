// Copyright 2026 The Armature Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"io"
	"sync"

	"github.com/armature-robotics/armature/wire"
)

// RequestIterator adapts push-style request submission to the
// pull-based consumption contract of the session channel
// (transport.RequestSource): the session writes requests as calls are
// made, and the transport pulls them one at a time for sending.
//
// The queue is unbounded; Write never blocks. Next blocks until a
// request is available or the iterator is ended. End drains anything
// still pending — once the session is shutting down, unsent requests
// must not reach the server.
//
// Safe for concurrent use, though the protocol's one-request-in-flight
// discipline means at most one writer is active at a time.
type RequestIterator struct {
	mu        sync.Mutex
	available *sync.Cond
	pending   []*wire.SessionRequest
	ended     bool
}

// NewRequestIterator creates an empty, open iterator.
func NewRequestIterator() *RequestIterator {
	iterator := &RequestIterator{}
	iterator.available = sync.NewCond(&iterator.mu)
	return iterator
}

// Write enqueues one request for the consumer. Returns ErrSessionEnded
// if the iterator has been ended.
func (it *RequestIterator) Write(request *wire.SessionRequest) error {
	it.mu.Lock()
	defer it.mu.Unlock()
	if it.ended {
		return ErrSessionEnded
	}
	it.pending = append(it.pending, request)
	it.available.Signal()
	return nil
}

// Next implements transport.RequestSource. It blocks until a request
// is available, returning io.EOF once the iterator is ended.
func (it *RequestIterator) Next() (*wire.SessionRequest, error) {
	it.mu.Lock()
	defer it.mu.Unlock()
	for len(it.pending) == 0 && !it.ended {
		it.available.Wait()
	}
	if it.ended {
		return nil, io.EOF
	}
	request := it.pending[0]
	it.pending = it.pending[1:]
	return request, nil
}

// End marks the iterator exhausted, discards pending requests, and
// wakes a blocked consumer, which observes io.EOF on its next pull.
// Idempotent.
func (it *RequestIterator) End() {
	it.mu.Lock()
	defer it.mu.Unlock()
	it.ended = true
	it.pending = nil
	it.available.Broadcast()
}
