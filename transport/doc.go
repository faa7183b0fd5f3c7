// Copyright 2026 The Armature Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport defines the stream contract the session engine
// runs over, and a connection-backed implementation of it.
//
// The engine never dials or authenticates: it is handed a [Stub] that
// can open the three channel kinds of the session protocol (the
// request/response session channel, the server-push watch channel,
// and per-parameter write channels). [ConnStub] implements Stub over
// any dial function returning a net.Conn — unix socket in production,
// net.Pipe in tests — using the framing from package wire. Other Stub
// implementations (in-process fakes, future multiplexed transports)
// plug in without the engine noticing.
package transport
