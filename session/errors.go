// Copyright 2026 The Armature Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"errors"
	"fmt"

	"github.com/armature-robotics/armature/wire"
)

// ErrSessionEnded is returned by every mutating session operation
// once the session has ended. No network call is made.
var ErrSessionEnded = errors.New("session: session ended")

// ErrStreamEnded is returned by Stream.Send after the stream was
// closed.
var ErrStreamEnded = errors.New("session: stream ended")

// StatusError is a non-OK protocol status from the control server,
// naming the operation that received it. Callers can extract the
// structured status with errors.As:
//
//	var statusErr *session.StatusError
//	if errors.As(err, &statusErr) {
//	    if statusErr.Status.Code == wire.StatusAborted { ... }
//	}
type StatusError struct {
	// Op is the operation whose response carried the status, e.g.
	// "add actions".
	Op string

	// Status is the server's verdict.
	Status wire.Status
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("session: %s failed: %s", e.Op, e.Status)
}

// IsStatus checks whether err is a *StatusError with the given code.
func IsStatus(err error, code wire.StatusCode) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Status.Code == code
	}
	return false
}
