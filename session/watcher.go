// Copyright 2026 The Armature Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"time"

	"github.com/armature-robotics/armature/transport"
	"github.com/armature-robotics/armature/wire"
)

// watch is the session's watcher goroutine: it consumes the watch
// channel for the session's remaining lifetime and dispatches each
// reaction event to the callbacks and flags registered under its
// reaction ID. Events are dispatched in server emission order, one at
// a time.
//
// Errors never escape this goroutine. Cancellation is the expected
// shutdown signal and ends the loop silently; any other transport
// error is recorded on the session for WatcherErr and the next End to
// surface.
func (s *Session) watch() {
	defer close(s.watcherDone)

	for {
		event, err := s.events.Recv()
		if err != nil {
			if errors.Is(err, transport.ErrCancelled) || errors.Is(err, context.Canceled) {
				s.logger.Debug("watch channel cancelled", "session_id", s.id)
				return
			}
			s.mu.Lock()
			s.watcherErr = err
			s.mu.Unlock()
			s.logger.Error("watch channel failed", "session_id", s.id, "error", err)
			return
		}
		if event.Reaction == nil {
			// Keepalive; only the priming event is expected to look
			// like this, and Open consumed that one.
			continue
		}
		s.dispatch(event)
	}
}

// dispatch fans one reaction event out to the registrations for its
// reaction ID. The registration maps are copied under the lock and
// invoked outside it: callbacks are caller code and must not run
// while holding session state.
func (s *Session) dispatch(event *wire.WatchEvent) {
	reactionID := event.Reaction.ReactionID

	s.mu.Lock()
	callbacks := make([]ReactionCallback, len(s.callbacks[reactionID]))
	copy(callbacks, s.callbacks[reactionID])
	flags := make([]*SignalFlag, len(s.flags[reactionID]))
	copy(flags, s.flags[reactionID])
	s.mu.Unlock()

	s.logger.Debug("reaction event",
		"session_id", s.id,
		"reaction_id", reactionID,
		"callbacks", len(callbacks),
		"flags", len(flags),
	)

	reactionEvent := ReactionEvent{
		Timestamp:      time.Unix(0, event.TimestampNS),
		PreviousAction: event.Reaction.PreviousActionInstanceID,
		CurrentAction:  event.Reaction.CurrentActionInstanceID,
	}
	for _, callback := range callbacks {
		callback(reactionEvent)
	}
	for _, flag := range flags {
		flag.Signal()
	}
}
