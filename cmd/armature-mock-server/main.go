// Copyright 2026 The Armature Authors
// SPDX-License-Identifier: Apache-2.0

// Armature-mock-server is a drop-in stand-in for a robot control
// server in integration tests and demos. It speaks the real framing
// protocol on all three channel kinds, allocates any requested parts,
// acknowledges every add and start, and reports every reaction added
// for a started action as fired after a configurable delay — so a
// client's done-waits and transitions complete without a robot.
//
// Streamed parameter values are stored per action and field, and
// latest-output polls return the most recently streamed value for the
// same key, which lets a client exercise its full write/poll loop
// against the mock.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/armature-robotics/armature/lib/process"
	"github.com/armature-robotics/armature/lib/version"
	"github.com/armature-robotics/armature/wire"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		listenAddress string
		doneAfter     time.Duration
		showVersion   bool
	)
	flag.StringVar(&listenAddress, "listen", "127.0.0.1:7421", "address to listen on")
	flag.DurationVar(&doneAfter, "done-after", 100*time.Millisecond, "delay before a started action's reactions fire")
	flag.BoolVar(&showVersion, "version", false, "print version information and exit")
	flag.Parse()

	if showVersion {
		fmt.Println("armature-mock-server", version.Info())
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	mock := &controlMock{
		logger:    logger,
		doneAfter: doneAfter,
		sessions:  make(map[uint64]*mockSession),
	}

	listener, err := net.Listen("tcp", listenAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", listenAddress, err)
	}
	logger.Info("mock control server listening", "address", listener.Addr().String())

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("mock control server stopping")
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		go mock.handleConn(conn)
	}
}

// outputKey identifies one streamed field of one action within a
// session.
type outputKey struct {
	actionID  uint64
	fieldName string
}

// mockSession is the mock's state for one allocated session.
type mockSession struct {
	id    uint64
	parts []string

	mu        sync.Mutex
	reactions []wire.Reaction
	outputs   map[outputKey]wire.LatestOutput
	watchers  []chan wire.WatchEvent
}

// addWatcher registers a watch channel and returns it. Events fired
// after registration are delivered to it.
func (s *mockSession) addWatcher() chan wire.WatchEvent {
	events := make(chan wire.WatchEvent, 64)
	s.mu.Lock()
	s.watchers = append(s.watchers, events)
	s.mu.Unlock()
	return events
}

func (s *mockSession) removeWatcher(events chan wire.WatchEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, watcher := range s.watchers {
		if watcher == events {
			s.watchers = append(s.watchers[:i], s.watchers[i+1:]...)
			return
		}
	}
}

// broadcast delivers an event to every registered watcher, dropping it
// for watchers whose buffers are full.
func (s *mockSession) broadcast(event wire.WatchEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, watcher := range s.watchers {
		select {
		case watcher <- event:
		default:
		}
	}
}

// controlMock is the shared state of the mock server.
type controlMock struct {
	logger    *slog.Logger
	doneAfter time.Duration

	mu            sync.Mutex
	nextSessionID uint64
	sessions      map[uint64]*mockSession
}

func (m *controlMock) session(id uint64) *mockSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[id]
}

// handleConn dispatches one connection by its hello frame.
func (m *controlMock) handleConn(conn net.Conn) {
	defer conn.Close()

	var hello wire.Hello
	if err := wire.ReadMessage(conn, &hello); err != nil {
		m.logger.Warn("reading hello frame", "error", err)
		return
	}

	var err error
	switch hello.Channel {
	case wire.ChannelSession:
		err = m.serveSession(conn)
	case wire.ChannelWatch:
		err = m.serveWatch(conn)
	case wire.ChannelWrite:
		err = m.serveWrite(conn)
	default:
		m.logger.Warn("unknown channel kind in hello", "channel", hello.Channel)
		return
	}
	if err != nil {
		m.logger.Warn("channel handler failed", "channel", hello.Channel, "error", err)
	}
}

// serveSession runs the request/response loop of one session channel.
func (m *controlMock) serveSession(conn net.Conn) error {
	var session *mockSession
	for {
		var request wire.SessionRequest
		if err := wire.ReadMessage(conn, &request); err != nil {
			if errors.Is(err, io.EOF) {
				// Orderly half-close from the client: finish our side.
				return wire.WriteClose(conn)
			}
			return err
		}

		response := m.handleSessionRequest(&session, &request)
		if err := wire.WriteMessage(conn, response); err != nil {
			return err
		}
	}
}

func (m *controlMock) handleSessionRequest(session **mockSession, request *wire.SessionRequest) *wire.SessionResponse {
	switch {
	case request.AllocateParts != nil:
		if *session != nil {
			return status(wire.StatusFailedPrecondition, "session already allocated")
		}
		m.mu.Lock()
		m.nextSessionID++
		allocated := &mockSession{
			id:      m.nextSessionID,
			parts:   request.AllocateParts.Parts,
			outputs: make(map[outputKey]wire.LatestOutput),
		}
		m.sessions[allocated.id] = allocated
		m.mu.Unlock()
		*session = allocated

		trace := ""
		if request.LogContext != nil {
			trace = request.LogContext.TraceID
		}
		m.logger.Info("session allocated",
			"session_id", allocated.id, "parts", allocated.parts, "trace_id", trace)
		return &wire.SessionResponse{
			Status:             wire.Status{Code: wire.StatusOK},
			InitialSessionData: &wire.InitialSessionData{SessionID: allocated.id},
		}

	case *session == nil:
		return status(wire.StatusFailedPrecondition, "no parts allocated on this channel")

	case request.Add != nil:
		s := *session
		s.mu.Lock()
		s.reactions = append(s.reactions, request.Add.Reactions...)
		s.mu.Unlock()
		m.logger.Info("add accepted", "session_id", s.id,
			"actions", len(request.Add.ActionInstances), "reactions", len(request.Add.Reactions))
		return ok()

	case request.Start != nil:
		s := *session
		m.logger.Info("start accepted", "session_id", s.id,
			"action_ids", request.Start.ActionInstanceIDs, "stop", request.Start.StopActiveActions)
		go m.fireReactions(s, request.Start.ActionInstanceIDs)
		return ok()

	case request.LatestOutput != nil:
		s := *session
		key := outputKey{
			actionID:  request.LatestOutput.ActionID,
			fieldName: request.LatestOutput.FieldName,
		}
		s.mu.Lock()
		output, exists := s.outputs[key]
		s.mu.Unlock()
		if !exists {
			return status(wire.StatusNotFound,
				fmt.Sprintf("no value published on field %q of action %d", key.fieldName, key.actionID))
		}
		return &wire.SessionResponse{
			Status: wire.Status{Code: wire.StatusOK},
			Output: &output,
		}

	default:
		return status(wire.StatusInvalidArgument, "request carries no operation")
	}
}

// fireReactions reports, after the configured delay, every reaction
// associated with one of the started actions as fired.
func (m *controlMock) fireReactions(session *mockSession, actionIDs []uint64) {
	time.Sleep(m.doneAfter)

	started := make(map[uint64]bool, len(actionIDs))
	for _, id := range actionIDs {
		started[id] = true
	}

	session.mu.Lock()
	reactions := append([]wire.Reaction(nil), session.reactions...)
	session.mu.Unlock()

	now := time.Now().UnixNano()
	for _, reaction := range reactions {
		if reaction.Association == nil || !started[reaction.Association.ActionInstanceID] {
			continue
		}
		previous := reaction.Association.ActionInstanceID
		event := wire.WatchEvent{
			TimestampNS: now,
			Reaction: &wire.ReactionEvent{
				ReactionID:               reaction.ID,
				PreviousActionInstanceID: &previous,
			},
		}
		if reaction.Response != nil {
			current := reaction.Response.StartActionInstanceID
			event.Reaction.CurrentActionInstanceID = &current
		}
		session.broadcast(event)
		m.logger.Info("reaction fired", "session_id", session.id, "reaction_id", reaction.ID)
	}
}

// serveWatch sends the priming event and then forwards fired reactions
// until the client drops the connection.
func (m *controlMock) serveWatch(conn net.Conn) error {
	var request wire.WatchRequest
	if err := wire.ReadMessage(conn, &request); err != nil {
		return err
	}
	session := m.session(request.SessionID)
	if session == nil {
		return fmt.Errorf("watch for unknown session %d", request.SessionID)
	}

	events := session.addWatcher()
	defer session.removeWatcher(events)

	if err := wire.WriteMessage(conn, wire.WatchEvent{TimestampNS: time.Now().UnixNano()}); err != nil {
		return err
	}
	m.logger.Info("watch channel established", "session_id", session.id)

	for event := range events {
		if err := wire.WriteMessage(conn, event); err != nil {
			// The client cancelled the watch; not a server failure.
			m.logger.Info("watch channel closed", "session_id", session.id)
			return nil
		}
	}
	return nil
}

// serveWrite runs one write channel: a bind message, then a stream of
// values each acknowledged individually.
func (m *controlMock) serveWrite(conn net.Conn) error {
	var bind wire.StreamRequest
	if err := wire.ReadMessage(conn, &bind); err != nil {
		return err
	}
	if bind.Open == nil {
		return writeAck(conn, wire.Status{Code: wire.StatusInvalidArgument, Message: "first stream request must bind"})
	}
	session := m.session(bind.Open.SessionID)
	if session == nil {
		return writeAck(conn, wire.Status{Code: wire.StatusNotFound,
			Message: fmt.Sprintf("unknown session %d", bind.Open.SessionID)})
	}
	key := outputKey{actionID: bind.Open.ActionID, fieldName: bind.Open.FieldName}
	if err := writeAck(conn, wire.Status{Code: wire.StatusOK}); err != nil {
		return err
	}
	m.logger.Info("write channel bound",
		"session_id", session.id, "action_id", key.actionID, "field", key.fieldName)

	for {
		var request wire.StreamRequest
		if err := wire.ReadMessage(conn, &request); err != nil {
			if errors.Is(err, io.EOF) {
				return wire.WriteClose(conn)
			}
			return err
		}
		session.mu.Lock()
		session.outputs[key] = wire.LatestOutput{
			TimestampNS: time.Now().UnixNano(),
			Value:       request.Value,
		}
		session.mu.Unlock()
		if err := writeAck(conn, wire.Status{Code: wire.StatusOK}); err != nil {
			return err
		}
	}
}

func writeAck(conn net.Conn, s wire.Status) error {
	return wire.WriteMessage(conn, wire.StreamResponse{Status: s})
}

func ok() *wire.SessionResponse {
	return &wire.SessionResponse{Status: wire.Status{Code: wire.StatusOK}}
}

func status(code wire.StatusCode, message string) *wire.SessionResponse {
	return &wire.SessionResponse{Status: wire.Status{Code: code, Message: message}}
}
