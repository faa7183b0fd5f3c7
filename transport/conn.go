// Copyright 2026 The Armature Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/armature-robotics/armature/wire"
)

// Dialer opens one connection to the control server. Called once per
// channel: the protocol runs one channel per connection.
type Dialer func(ctx context.Context) (net.Conn, error)

// ConnStubConfig holds configuration for creating a ConnStub.
type ConnStubConfig struct {
	// Dial opens a new connection per channel. Required.
	Dial Dialer

	// Logger is used for structured logging. If nil, slog.Default()
	// is used.
	Logger *slog.Logger
}

// ConnStub implements Stub over raw connections with the wire
// package's framing. Each opened channel dials its own connection and
// starts with a hello frame declaring the channel kind.
type ConnStub struct {
	dial   Dialer
	logger *slog.Logger
}

// NewConnStub creates a connection-backed stub.
func NewConnStub(config ConnStubConfig) (*ConnStub, error) {
	if config.Dial == nil {
		return nil, fmt.Errorf("transport: Dial is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ConnStub{dial: config.Dial, logger: logger}, nil
}

// OpenSession implements Stub. A pump goroutine pulls requests from
// the source and writes them to the connection; it exits on the
// source's io.EOF (writing a close frame) or on the first write
// failure (closing the connection so Recv surfaces the error).
func (s *ConnStub) OpenSession(ctx context.Context, requests RequestSource) (ResponseStream, error) {
	conn, err := s.open(ctx, wire.ChannelSession)
	if err != nil {
		return nil, err
	}

	stream := &sessionConn{connStream: connStream{conn: conn}}
	go s.pumpRequests(stream, requests)
	return stream, nil
}

// WatchReactions implements Stub.
func (s *ConnStub) WatchReactions(ctx context.Context, sessionID uint64) (EventStream, error) {
	conn, err := s.open(ctx, wire.ChannelWatch)
	if err != nil {
		return nil, err
	}
	if err := wire.WriteMessage(conn, wire.WatchRequest{SessionID: sessionID}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("transport: send watch request: %w", err)
	}
	return &watchConn{connStream: connStream{conn: conn}}, nil
}

// OpenWriteStream implements Stub.
func (s *ConnStub) OpenWriteStream(ctx context.Context) (WriteStream, error) {
	conn, err := s.open(ctx, wire.ChannelWrite)
	if err != nil {
		return nil, err
	}
	return &writeConn{connStream: connStream{conn: conn}}, nil
}

// open dials a connection and sends the hello frame for the channel
// kind.
func (s *ConnStub) open(ctx context.Context, channel string) (net.Conn, error) {
	conn, err := s.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s channel: %w", channel, err)
	}
	if err := wire.WriteMessage(conn, wire.Hello{Channel: channel}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("transport: send hello on %s channel: %w", channel, err)
	}
	return conn, nil
}

// pumpRequests is the transport-side consumer of the request source.
// Runs on its own goroutine for the life of the session channel.
func (s *ConnStub) pumpRequests(stream *sessionConn, requests RequestSource) {
	for {
		request, err := requests.Next()
		if err != nil {
			// The source is exhausted: half-close so the server can
			// finish its side. Write failures here are expected when
			// the connection was already cancelled.
			if err := stream.writeClose(); err != nil {
				s.logger.Debug("session channel half-close failed", "error", err)
			}
			return
		}
		if err := stream.writeMessage(request); err != nil {
			s.logger.Debug("session channel send failed", "error", err)
			// Closing the connection surfaces the failure to the
			// reader side.
			stream.conn.Close()
			return
		}
	}
}

// connStream holds the shared connection state for all three channel
// kinds: the connection, a write lock, and the cancelled flag used to
// classify read errors after local teardown.
type connStream struct {
	conn    net.Conn
	writeMu sync.Mutex

	mu        sync.Mutex
	cancelled bool
}

func (s *connStream) writeMessage(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return wire.WriteMessage(s.conn, v)
}

func (s *connStream) writeClose() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return wire.WriteClose(s.conn)
}

// Cancel tears down the connection. A Recv blocked on the connection
// returns ErrCancelled.
func (s *connStream) Cancel() {
	s.mu.Lock()
	s.cancelled = true
	s.mu.Unlock()
	s.conn.Close()
}

// classifyReadError maps read failures after a local Cancel (or any
// local close of the connection) to ErrCancelled. All other errors
// pass through unchanged, including io.EOF for an orderly remote
// finish.
func (s *connStream) classifyReadError(err error) error {
	s.mu.Lock()
	cancelled := s.cancelled
	s.mu.Unlock()
	if cancelled || errors.Is(err, net.ErrClosed) {
		return ErrCancelled
	}
	return err
}

// sessionConn is the ResponseStream over a raw connection.
type sessionConn struct {
	connStream
}

func (s *sessionConn) Recv() (*wire.SessionResponse, error) {
	var response wire.SessionResponse
	if err := wire.ReadMessage(s.conn, &response); err != nil {
		return nil, s.classifyReadError(err)
	}
	return &response, nil
}

// watchConn is the EventStream over a raw connection.
type watchConn struct {
	connStream
}

func (s *watchConn) Recv() (*wire.WatchEvent, error) {
	var event wire.WatchEvent
	if err := wire.ReadMessage(s.conn, &event); err != nil {
		return nil, s.classifyReadError(err)
	}
	return &event, nil
}

// writeConn is the WriteStream over a raw connection.
type writeConn struct {
	connStream
}

func (s *writeConn) Send(request *wire.StreamRequest) error {
	return s.writeMessage(request)
}

func (s *writeConn) Recv() (*wire.StreamResponse, error) {
	var response wire.StreamResponse
	if err := wire.ReadMessage(s.conn, &response); err != nil {
		return nil, s.classifyReadError(err)
	}
	return &response, nil
}

func (s *writeConn) CloseSend() error {
	return s.writeClose()
}
