// Copyright 2026 The Armature Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil holds small helpers shared by tests across the
// repository: channel receive/send/close with timeout safety valves,
// so a broken synchronization path fails the test instead of hanging
// the suite.
package testutil
