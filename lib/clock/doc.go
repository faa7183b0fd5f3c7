// Copyright 2026 The Armature Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts wall-clock time behind a small interface so
// timeout behavior is deterministic under test. Production code uses
// [Real]; tests use [Fake] and drive time explicitly with Advance.
package clock
