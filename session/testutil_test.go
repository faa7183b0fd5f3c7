// Copyright 2026 The Armature Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/armature-robotics/armature/transport"
	"github.com/armature-robotics/armature/wire"
)

// testSessionID is the session ID the fake control server assigns.
const testSessionID uint64 = 42

// fakeStub is an in-process transport.Stub scripted by tests. The
// default behavior is a well-behaved control server: allocate
// succeeds with testSessionID, every other request is acknowledged
// OK, the watch channel sends a clean priming event, and write
// channels acknowledge every value.
type fakeStub struct {
	// respond overrides the response for a session-channel request.
	// Nil uses the default OK behavior.
	respond func(*wire.SessionRequest) *wire.SessionResponse

	// primingEvent replaces the default priming event on the watch
	// channel.
	primingEvent *wire.WatchEvent

	// writeStatus, when non-nil, is the acknowledgement status new
	// write channels use instead of OK.
	writeStatus *wire.Status

	mu            sync.Mutex
	requests      []*wire.SessionRequest
	watchSessions []uint64
	writeStreams  []*fakeWriteStream

	// requestSeen receives every session-channel request as the fake
	// server consumes it, for tests that need to synchronize with a
	// concurrent caller.
	requestSeen chan *wire.SessionRequest

	// events is the watch channel, created by WatchReactions. Tests
	// push reaction events through it.
	events *fakeEventStream
}

func newFakeStub() *fakeStub {
	return &fakeStub{
		requestSeen: make(chan *wire.SessionRequest, 64),
	}
}

// recordedRequests returns a snapshot of all session-channel requests
// consumed so far.
func (f *fakeStub) recordedRequests() []*wire.SessionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	requests := make([]*wire.SessionRequest, len(f.requests))
	copy(requests, f.requests)
	return requests
}

func (f *fakeStub) defaultResponse(request *wire.SessionRequest) *wire.SessionResponse {
	response := &wire.SessionResponse{Status: wire.Status{Code: wire.StatusOK}}
	if request.AllocateParts != nil {
		response.InitialSessionData = &wire.InitialSessionData{SessionID: testSessionID}
	}
	return response
}

func (f *fakeStub) OpenSession(ctx context.Context, requests transport.RequestSource) (transport.ResponseStream, error) {
	stream := &fakeResponseStream{
		results: make(chan sessionResult, 64),
		cancel:  make(chan struct{}),
	}
	go func() {
		for {
			request, err := requests.Next()
			if err != nil {
				// Half-close: the server finishes its side.
				stream.results <- sessionResult{err: io.EOF}
				return
			}
			f.mu.Lock()
			f.requests = append(f.requests, request)
			f.mu.Unlock()
			f.requestSeen <- request

			respond := f.respond
			var response *wire.SessionResponse
			if respond != nil {
				response = respond(request)
			}
			if response == nil {
				response = f.defaultResponse(request)
			}
			stream.results <- sessionResult{response: response}
		}
	}()
	return stream, nil
}

func (f *fakeStub) WatchReactions(ctx context.Context, sessionID uint64) (transport.EventStream, error) {
	f.mu.Lock()
	f.watchSessions = append(f.watchSessions, sessionID)
	f.mu.Unlock()

	priming := f.primingEvent
	if priming == nil {
		priming = &wire.WatchEvent{TimestampNS: 1}
	}
	events := newFakeEventStream()
	events.push(priming)
	f.events = events
	return events, nil
}

func (f *fakeStub) OpenWriteStream(ctx context.Context) (transport.WriteStream, error) {
	stream := &fakeWriteStream{
		acks:   make(chan sessionResult, 64),
		status: wire.Status{Code: wire.StatusOK},
	}
	if f.writeStatus != nil {
		stream.status = *f.writeStatus
	}
	f.mu.Lock()
	f.writeStreams = append(f.writeStreams, stream)
	f.mu.Unlock()
	return stream, nil
}

type sessionResult struct {
	response *wire.SessionResponse
	err      error
}

type fakeResponseStream struct {
	results    chan sessionResult
	cancel     chan struct{}
	cancelOnce sync.Once
}

func (s *fakeResponseStream) Recv() (*wire.SessionResponse, error) {
	select {
	case result := <-s.results:
		return result.response, result.err
	case <-s.cancel:
		return nil, transport.ErrCancelled
	}
}

func (s *fakeResponseStream) Cancel() {
	s.cancelOnce.Do(func() { close(s.cancel) })
}

type eventResult struct {
	event *wire.WatchEvent
	err   error
}

type fakeEventStream struct {
	results    chan eventResult
	cancel     chan struct{}
	cancelOnce sync.Once
}

func newFakeEventStream() *fakeEventStream {
	return &fakeEventStream{
		results: make(chan eventResult, 64),
		cancel:  make(chan struct{}),
	}
}

func (s *fakeEventStream) push(event *wire.WatchEvent) {
	s.results <- eventResult{event: event}
}

// pushReaction pushes a reaction event for the given reaction ID.
func (s *fakeEventStream) pushReaction(reactionID uint64, timestampNS int64) {
	s.push(&wire.WatchEvent{
		TimestampNS: timestampNS,
		Reaction:    &wire.ReactionEvent{ReactionID: reactionID},
	})
}

// fail delivers a transport error to the watcher.
func (s *fakeEventStream) fail(err error) {
	s.results <- eventResult{err: err}
}

func (s *fakeEventStream) Recv() (*wire.WatchEvent, error) {
	select {
	case result := <-s.results:
		return result.event, result.err
	case <-s.cancel:
		return nil, transport.ErrCancelled
	}
}

func (s *fakeEventStream) Cancel() {
	s.cancelOnce.Do(func() { close(s.cancel) })
}

func (s *fakeEventStream) cancelled() bool {
	select {
	case <-s.cancel:
		return true
	default:
		return false
	}
}

type fakeWriteStream struct {
	// status is the acknowledgement status for every request.
	status wire.Status

	mu        sync.Mutex
	requests  []*wire.StreamRequest
	sendEnded bool

	acks       chan sessionResult
	cancelOnce sync.Once
	cancelled  bool
}

func (s *fakeWriteStream) Send(request *wire.StreamRequest) error {
	s.mu.Lock()
	s.requests = append(s.requests, request)
	status := s.status
	s.mu.Unlock()
	s.acks <- sessionResult{response: &wire.SessionResponse{Status: status}}
	return nil
}

func (s *fakeWriteStream) Recv() (*wire.StreamResponse, error) {
	result := <-s.acks
	if result.err != nil {
		return nil, result.err
	}
	return &wire.StreamResponse{Status: result.response.Status}, nil
}

func (s *fakeWriteStream) CloseSend() error {
	s.mu.Lock()
	s.sendEnded = true
	s.mu.Unlock()
	// The server finishes its side after the half-close.
	s.acks <- sessionResult{err: io.EOF}
	return nil
}

func (s *fakeWriteStream) Cancel() {
	s.cancelOnce.Do(func() {
		s.mu.Lock()
		s.cancelled = true
		s.mu.Unlock()
	})
}

func (s *fakeWriteStream) recordedRequests() []*wire.StreamRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	requests := make([]*wire.StreamRequest, len(s.requests))
	copy(requests, s.requests)
	return requests
}

// discardLogger silences session logging in tests.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// openTestSession opens a session against the stub with test
// defaults. Additional configuration is applied through configure.
func openTestSession(t *testing.T, stub *fakeStub, configure func(*Config)) *Session {
	t.Helper()
	config := Config{
		Parts:  []string{"arm", "gripper"},
		Logger: discardLogger(),
	}
	if configure != nil {
		configure(&config)
	}
	s, err := Open(context.Background(), stub, config)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}
