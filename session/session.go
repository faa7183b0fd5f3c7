// Copyright 2026 The Armature Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/armature-robotics/armature/lib/clock"
	"github.com/armature-robotics/armature/transport"
	"github.com/armature-robotics/armature/wire"
)

// Config holds configuration for opening a Session.
type Config struct {
	// Parts are the parts to allocate for exclusive control.
	// Required, and allocation is all-or-nothing.
	Parts []string

	// Logger is used for structured logging. If nil, slog.Default()
	// is used.
	Logger *slog.Logger

	// Clock drives timeout waits. If nil, the real clock is used.
	// Tests inject a fake to make timeouts deterministic.
	Clock clock.Clock
}

// Session is the client's exclusive-control handle over a set of
// robot parts. It owns the session channel (one request in flight at
// a time, responses strictly in request order), the watch channel,
// and the watcher goroutine that dispatches reaction events to
// registered callbacks and signal flags.
//
// All public methods are safe for concurrent use. Mutating methods
// fail with [ErrSessionEnded] once the session has ended. There is no
// per-call cancellation: a server-talking call blocks for exactly one
// round trip, and the only cancellation primitive is [Session.End],
// which tears down every stream and stops the watcher.
type Session struct {
	stub   transport.Stub
	logger *slog.Logger
	clock  clock.Clock

	id        uint64
	requests  *RequestIterator
	responses transport.ResponseStream
	events    transport.EventStream

	// callMu serializes request/response round trips on the session
	// channel, preserving the one-request-in-flight discipline that
	// makes response correlation positional. End holds it for the
	// whole teardown.
	callMu sync.Mutex

	mu             sync.Mutex
	ended          bool
	ending         bool
	nextReactionID uint64
	callbacks      map[uint64][]ReactionCallback
	flags          map[uint64][]*SignalFlag
	streams        map[streamKey]*Stream
	watcherErr     error

	watcherDone chan struct{}
}

// Open performs the session handshake: allocate the configured parts
// on a fresh session channel, then establish the watch channel and
// verify its priming event, and only then start the watcher
// goroutine. On any handshake failure both channels are torn down and
// no session exists.
//
// The context covers channel establishment; the session itself
// outlives it.
func Open(ctx context.Context, stub transport.Stub, config Config) (*Session, error) {
	if len(config.Parts) == 0 {
		return nil, fmt.Errorf("session: Parts is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sessionClock := config.Clock
	if sessionClock == nil {
		sessionClock = clock.Real()
	}

	requests := NewRequestIterator()
	responses, err := stub.OpenSession(ctx, requests)
	if err != nil {
		requests.End()
		return nil, fmt.Errorf("session: open session channel: %w", err)
	}

	abort := func() {
		requests.End()
		responses.Cancel()
	}

	open := &wire.SessionRequest{
		AllocateParts: &wire.AllocateParts{Parts: config.Parts},
		LogContext:    &wire.LogContext{TraceID: uuid.NewString()},
	}
	if err := requests.Write(open); err != nil {
		abort()
		return nil, err
	}

	response, err := responses.Recv()
	if err != nil {
		abort()
		return nil, fmt.Errorf("session: allocate parts: %w", err)
	}
	if !response.Status.OK() {
		abort()
		return nil, &StatusError{Op: "allocate parts", Status: response.Status}
	}
	if response.InitialSessionData == nil {
		abort()
		return nil, fmt.Errorf("session: allocate parts response carries no initial session data")
	}
	sessionID := response.InitialSessionData.SessionID

	events, err := stub.WatchReactions(ctx, sessionID)
	if err != nil {
		abort()
		return nil, fmt.Errorf("session: open watch channel: %w", err)
	}

	priming, err := events.Recv()
	if err != nil {
		events.Cancel()
		abort()
		return nil, fmt.Errorf("session: watch channel priming: %w", err)
	}
	if priming.Reaction != nil {
		// The server must not report a reaction before any reaction
		// exists. Refusing to start keeps a broken server from
		// dispatching into an empty registration table.
		events.Cancel()
		abort()
		return nil, fmt.Errorf("session: priming watch event carries reaction %d", priming.Reaction.ReactionID)
	}

	s := &Session{
		stub:           stub,
		logger:         logger,
		clock:          sessionClock,
		id:             sessionID,
		requests:       requests,
		responses:      responses,
		events:         events,
		nextReactionID: 1,
		callbacks:      make(map[uint64][]ReactionCallback),
		flags:          make(map[uint64][]*SignalFlag),
		streams:        make(map[streamKey]*Stream),
		watcherDone:    make(chan struct{}),
	}
	go s.watch()

	logger.Info("session opened", "session_id", sessionID, "parts", config.Parts)
	return s, nil
}

// ID returns the server-assigned session identifier.
func (s *Session) ID() uint64 { return s.id }

// WatcherErr returns the transport error recorded by the watcher
// goroutine, if any. Cancellation during shutdown is not an error.
// End also returns this error after an otherwise clean teardown.
func (s *Session) WatcherErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.watcherErr
}

// unusable reports whether the session has ended or is in teardown.
func (s *Session) unusable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended || s.ending
}

// call performs one round trip on the session channel. The round
// trip itself is not cancellable; ctx is only checked before sending.
func (s *Session) call(ctx context.Context, op string, request *wire.SessionRequest) (*wire.SessionResponse, error) {
	s.callMu.Lock()
	defer s.callMu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.unusable() {
		return nil, ErrSessionEnded
	}
	if err := s.requests.Write(request); err != nil {
		return nil, err
	}

	response, err := s.responses.Recv()
	if err != nil {
		return nil, fmt.Errorf("session: %s: %w", op, err)
	}
	if !response.Status.OK() {
		statusErr := &StatusError{Op: op, Status: response.Status}
		if response.Status.Code == wire.StatusAborted {
			// The server has revoked the session (estop, part
			// failure, supervisor preemption). Tear down before
			// surfacing so the caller finds a consistent ENDED
			// session.
			s.logger.Warn("session aborted by server", "session_id", s.id, "status", response.Status.String())
			if _, endErr := s.teardown(); endErr != nil {
				s.logger.Error("teardown after abort failed", "error", endErr)
			}
		}
		return nil, statusErr
	}
	return response, nil
}

// allocateReactionID returns the next reaction instance ID. IDs start
// at 1 and are unique for the session's lifetime.
func (s *Session) allocateReactionID() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextReactionID
	s.nextReactionID++
	return id
}

func (s *Session) registerCallback(reactionID uint64, callback ReactionCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callbacks[reactionID] = append(s.callbacks[reactionID], callback)
}

func (s *Session) registerFlag(reactionID uint64, flag *SignalFlag) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags[reactionID] = append(s.flags[reactionID], flag)
}

// translateReaction converts one reaction into wire records,
// registering client-side callbacks and flags along the way. action
// is the action the reaction is attached to, or nil for a
// free-standing reaction.
//
// A wire record carries at most one response, so responses that run
// in the real-time loop (starts, realtime signals) fan out across
// records: the first reuses the reaction's primary ID, each further
// one allocates a fresh ID. Callbacks and flags are client-side only
// and register under the primary ID without emitting anything. A
// reaction with no record-emitting response still emits one bare
// record so the watcher can observe the condition firing.
func (s *Session) translateReaction(action *Action, reaction *Reaction) ([]wire.Reaction, error) {
	if reaction.Condition == nil {
		return nil, fmt.Errorf("session: reaction has no condition")
	}
	condition, err := reaction.Condition.wireCondition()
	if err != nil {
		return nil, err
	}

	primaryID := s.allocateReactionID()
	var records []wire.Reaction
	emitted := false

	nextRecordID := func() uint64 {
		if !emitted {
			return primaryID
		}
		return s.allocateReactionID()
	}

	for _, response := range reaction.Responses {
		switch r := response.(type) {
		case startResponse:
			record := wire.Reaction{
				ID:        nextRecordID(),
				Condition: condition,
				Response:  &wire.Response{StartActionInstanceID: r.actionID},
			}
			if action != nil {
				record.Association = &wire.ActionAssociation{
					ActionInstanceID:     action.ID,
					StopAssociatedAction: !r.parallel,
				}
			}
			records = append(records, record)
			emitted = true

		case realtimeSignalResponse:
			record := wire.Reaction{
				ID:        nextRecordID(),
				Condition: condition,
			}
			association := &wire.ActionAssociation{TriggeredSignalName: r.name}
			if action != nil {
				association.ActionInstanceID = action.ID
			}
			record.Association = association
			records = append(records, record)
			emitted = true

		case invokeResponse:
			s.registerCallback(primaryID, r.callback)

		case signalResponse:
			s.registerFlag(primaryID, r.flag)

		default:
			return nil, fmt.Errorf("session: unsupported response type %T", response)
		}
	}

	if !emitted {
		// Purely client-side reaction: emit a bare record anyway so
		// the server still reports the condition firing and the
		// callbacks/flags above stay observable.
		record := wire.Reaction{ID: primaryID, Condition: condition}
		if action != nil {
			record.Association = &wire.ActionAssociation{
				ActionInstanceID:     action.ID,
				StopAssociatedAction: false,
			}
		}
		records = append(records, record)
	}
	return records, nil
}

// AddActions appends actions, with their attached reactions, to the
// session. The actions do not run until started.
func (s *Session) AddActions(ctx context.Context, actions ...*Action) error {
	if s.unusable() {
		return ErrSessionEnded
	}

	add := &wire.AddRequest{}
	for _, action := range actions {
		instance, err := action.wireInstance()
		if err != nil {
			return err
		}
		add.ActionInstances = append(add.ActionInstances, instance)
		for _, reaction := range action.Reactions {
			records, err := s.translateReaction(action, reaction)
			if err != nil {
				return err
			}
			add.Reactions = append(add.Reactions, records...)
		}
	}

	_, err := s.call(ctx, "add actions", &wire.SessionRequest{Add: add})
	return err
}

// AddReactions attaches reactions to an already-added action, or —
// with a nil action — adds free-standing reactions that stay active
// for the whole session.
func (s *Session) AddReactions(ctx context.Context, action *Action, reactions ...*Reaction) error {
	if s.unusable() {
		return ErrSessionEnded
	}

	add := &wire.AddRequest{}
	for _, reaction := range reactions {
		records, err := s.translateReaction(action, reaction)
		if err != nil {
			return err
		}
		add.Reactions = append(add.Reactions, records...)
	}

	_, err := s.call(ctx, "add reactions", &wire.SessionRequest{Add: add})
	return err
}

// AddReaction attaches a single condition to an action (or nil for
// free-standing) and returns a flag that signals the first time the
// condition fires. A non-nil callback is additionally invoked on
// every firing.
func (s *Session) AddReaction(ctx context.Context, action *Action, condition Condition, callback ReactionCallback) (*SignalFlag, error) {
	flag := newSignalFlag(s.clock)
	responses := []Response{SignalWhen(flag)}
	if callback != nil {
		responses = append(responses, Invoke(callback))
	}
	if err := s.AddReactions(ctx, action, NewReaction(condition, responses...)); err != nil {
		return nil, err
	}
	return flag, nil
}

// AddTransition makes the from action hand over to the to action when
// the condition fires (stopping from on the same control cycle). A
// nil condition defaults to the action's done condition. Returns a
// flag that signals when the transition has fired; a non-nil callback
// is additionally invoked on every firing.
func (s *Session) AddTransition(ctx context.Context, from, to *Action, condition Condition, callback ReactionCallback) (*SignalFlag, error) {
	if condition == nil {
		condition = IsDone()
	}
	flag := newSignalFlag(s.clock)
	responses := []Response{Start(to), SignalWhen(flag)}
	if callback != nil {
		responses = append(responses, Invoke(callback))
	}
	if err := s.AddReactions(ctx, from, NewReaction(condition, responses...)); err != nil {
		return nil, err
	}
	return flag, nil
}

// AddActionSequence adds the actions and chains them: when action i's
// condition fires, action i+1 starts; the last action's condition
// signals the returned flag instead. conditions may be nil (every
// transition defaults to the action's done condition) or must have
// one entry per action, nil entries defaulting individually.
//
// The sequence still needs StartAction on its first element to begin
// running.
func (s *Session) AddActionSequence(ctx context.Context, actions []*Action, conditions []Condition) (*SignalFlag, error) {
	if len(actions) == 0 {
		return nil, fmt.Errorf("session: action sequence is empty")
	}
	if conditions != nil && len(conditions) != len(actions) {
		return nil, fmt.Errorf("session: %d conditions for %d actions", len(conditions), len(actions))
	}

	conditionFor := func(i int) Condition {
		if conditions == nil || conditions[i] == nil {
			return IsDone()
		}
		return conditions[i]
	}

	if err := s.AddActions(ctx, actions...); err != nil {
		return nil, err
	}
	for i := 0; i < len(actions)-1; i++ {
		reaction := NewReaction(conditionFor(i), Start(actions[i+1]))
		if err := s.AddReactions(ctx, actions[i], reaction); err != nil {
			return nil, err
		}
	}

	last := len(actions) - 1
	flag := newSignalFlag(s.clock)
	final := NewReaction(conditionFor(last), SignalWhen(flag))
	if err := s.AddReactions(ctx, actions[last], final); err != nil {
		return nil, err
	}
	return flag, nil
}

// StartAction stops whatever is running on the session's parts and
// starts the action on the next control cycle.
func (s *Session) StartAction(ctx context.Context, action *Action) error {
	start := &wire.StartRequest{
		ActionInstanceIDs: []uint64{action.ID},
		StopActiveActions: true,
	}
	_, err := s.call(ctx, "start action", &wire.SessionRequest{Start: start})
	return err
}

// StartParallelActions starts the actions without stopping anything
// already running.
func (s *Session) StartParallelActions(ctx context.Context, actions ...*Action) error {
	start := &wire.StartRequest{}
	for _, action := range actions {
		start.ActionInstanceIDs = append(start.ActionInstanceIDs, action.ID)
	}
	_, err := s.call(ctx, "start parallel actions", &wire.SessionRequest{Start: start})
	return err
}

// StartActionAndWait starts the action and blocks until it reports
// done or timeout elapses, reporting whether it completed. A timeout
// <= 0 waits forever. False means only that the wait timed out: the
// action keeps running server-side.
func (s *Session) StartActionAndWait(ctx context.Context, action *Action, timeout time.Duration) (bool, error) {
	flag, err := s.AddReaction(ctx, action, IsDone(), nil)
	if err != nil {
		return false, err
	}
	if err := s.StartAction(ctx, action); err != nil {
		return false, err
	}
	return flag.Wait(timeout), nil
}

// Output is a value polled from an action's streaming-output channel.
type Output struct {
	// Timestamp is when the value was published.
	Timestamp time.Time

	// Value is the raw published value, opaque to this engine.
	Value []byte
}

// LatestOutput polls the most recently published value on the
// action's named streaming-output field.
func (s *Session) LatestOutput(ctx context.Context, action *Action, fieldName string) (*Output, error) {
	request := &wire.SessionRequest{
		LatestOutput: &wire.LatestOutputRequest{
			SessionID: s.id,
			ActionID:  action.ID,
			FieldName: fieldName,
		},
	}
	response, err := s.call(ctx, "latest output", request)
	if err != nil {
		return nil, err
	}
	if response.Output == nil {
		return nil, fmt.Errorf("session: latest output response carries no output")
	}
	return &Output{
		Timestamp: time.Unix(0, response.Output.TimestampNS),
		Value:     response.Output.Value,
	}, nil
}

// End tears the session down: close every open stream, half-close
// the session channel and drain stray responses, stop and join the
// watcher goroutine. Idempotent — a second call is a no-op returning
// false.
//
// The bool reports whether this call performed the teardown and
// reached the ended state. A failed teardown step returns false with
// its error and leaves the session un-ended, so End can be retried.
// After an otherwise clean teardown, any transport error the watcher
// goroutine recorded is returned as the error alongside true.
func (s *Session) End() (bool, error) {
	s.callMu.Lock()
	defer s.callMu.Unlock()
	return s.teardown()
}

// teardown implements End. Callers hold callMu.
func (s *Session) teardown() (bool, error) {
	s.mu.Lock()
	if s.ended || s.ending {
		s.mu.Unlock()
		return false, nil
	}
	s.ending = true
	open := make([]*Stream, 0, len(s.streams))
	for _, stream := range s.streams {
		open = append(open, stream)
	}
	s.mu.Unlock()

	fail := func(err error) (bool, error) {
		s.mu.Lock()
		s.ending = false
		s.mu.Unlock()
		return false, err
	}

	for _, stream := range open {
		if err := stream.Close(); err != nil {
			return fail(fmt.Errorf("session: closing stream %s of action %d: %w", stream.fieldName, stream.actionID, err))
		}
	}

	// Half-close the request side; the server finishes its side in
	// response. Anything it sends first had no requester waiting for
	// it — log and drop.
	s.requests.End()
	for {
		response, err := s.responses.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, transport.ErrCancelled) {
				break
			}
			return fail(fmt.Errorf("session: draining session channel: %w", err))
		}
		s.logger.Warn("unexpected response during session end",
			"session_id", s.id, "status", response.Status.String())
	}

	s.events.Cancel()
	<-s.watcherDone

	s.mu.Lock()
	s.ended = true
	s.ending = false
	watcherErr := s.watcherErr
	s.mu.Unlock()

	s.logger.Info("session ended", "session_id", s.id)
	return true, watcherErr
}
