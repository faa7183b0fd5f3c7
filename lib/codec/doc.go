// Copyright 2026 The Armature Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides CBOR encoding and decoding with the
// repository-standard configuration: Core Deterministic Encoding on
// the wire, string map keys, unknown fields ignored on decode.
//
// All session-protocol wire messages go through this package. Code
// elsewhere in the repository should not import fxamacker/cbor
// directly.
package codec
