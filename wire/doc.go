// Copyright 2026 The Armature Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire defines the session protocol's wire messages and the
// stream framing they travel in.
//
// The protocol uses three stream kinds against the control server:
//
//   - the session channel: a bidirectional request/response stream
//     carrying [SessionRequest]/[SessionResponse], exactly one response
//     per request;
//   - the watch channel: a server-push stream of [WatchEvent]
//     notifications emitted when reaction conditions are satisfied;
//   - write channels: one bidirectional stream per streamed action
//     parameter, carrying [StreamRequest]/[StreamResponse].
//
// Messages are CBOR-encoded (lib/codec) and framed by frame.go: a
// six-byte header (type, flags, big-endian payload length) followed by
// the payload, with optional zstd compression for large payloads.
// Condition operands deliberately have three distinct numeric wire
// representations (bool, int64, double); the control loop's state
// variables are typed and the server rejects comparisons against the
// wrong type, so the encoding must preserve the distinction.
package wire
