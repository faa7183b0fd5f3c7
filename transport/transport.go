// Copyright 2026 The Armature Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"

	"github.com/armature-robotics/armature/wire"
)

// ErrCancelled is returned by a stream's Recv after the stream was
// cancelled locally. The session engine treats it as the expected
// shutdown signal, not a failure.
var ErrCancelled = errors.New("transport: stream cancelled")

// RequestSource is the pull side of the session channel's request
// flow. The transport pulls requests one at a time and sends each on
// the wire; Next blocks until a request is available. Next returns
// io.EOF when the caller has half-closed the request side, after
// which the transport sends a close frame and stops pulling.
type RequestSource interface {
	Next() (*wire.SessionRequest, error)
}

// ResponseStream is the receive side of the session channel.
// Responses arrive strictly in request order.
type ResponseStream interface {
	// Recv blocks for the next response. Returns io.EOF when the
	// server has finished sending, ErrCancelled after Cancel.
	Recv() (*wire.SessionResponse, error)

	// Cancel tears the stream down. Safe to call concurrently with a
	// blocked Recv, which then returns ErrCancelled.
	Cancel()
}

// EventStream is the server-push watch channel delivering reaction
// events in server emission order.
type EventStream interface {
	// Recv blocks for the next event. Returns io.EOF when the server
	// has finished sending, ErrCancelled after Cancel.
	Recv() (*wire.WatchEvent, error)

	// Cancel tears the stream down. Safe to call concurrently with a
	// blocked Recv, which then returns ErrCancelled.
	Cancel()
}

// WriteStream is one write channel: a bidirectional stream pushing
// parameter values into a running action, with one acknowledgement
// per value.
type WriteStream interface {
	Send(*wire.StreamRequest) error

	// Recv blocks for the next acknowledgement.
	Recv() (*wire.StreamResponse, error)

	// CloseSend half-closes the sending side. The server acknowledges
	// by finishing its side, surfaced as io.EOF from Recv.
	CloseSend() error

	// Cancel tears the stream down without the close handshake.
	Cancel()
}

// Stub opens protocol channels against one control server. An
// already-connected Stub is handed to the session engine by the
// surrounding application; the engine never constructs one itself.
//
// Implementations must allow the three open methods to be called from
// any goroutine.
type Stub interface {
	// OpenSession opens the session channel. The transport consumes
	// requests from the source until it returns io.EOF, then
	// half-closes. The context covers channel establishment only.
	OpenSession(ctx context.Context, requests RequestSource) (ResponseStream, error)

	// WatchReactions opens the watch channel for the given session.
	// The server sends a priming event first, then one event per
	// satisfied reaction condition.
	WatchReactions(ctx context.Context, sessionID uint64) (EventStream, error)

	// OpenWriteStream opens a write channel. The caller sends the
	// binding StreamOpen as its first request.
	OpenWriteStream(ctx context.Context) (WriteStream, error)
}
