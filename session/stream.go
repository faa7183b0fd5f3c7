// Copyright 2026 The Armature Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/armature-robotics/armature/lib/codec"
	"github.com/armature-robotics/armature/transport"
	"github.com/armature-robotics/armature/wire"
)

// streamKey identifies the one write channel an action's streamed
// field may have for the session's lifetime.
type streamKey struct {
	actionID  uint64
	fieldName string
}

// Stream pushes a continuous series of parameter values into one
// field of a running action, over a dedicated write channel. Each
// sent value is individually acknowledged by the server.
//
// A stream is bound 1:1 to its server-side write channel. Once closed
// — explicitly or by Session.End — the same action/field pair cannot
// be opened again on this session.
type Stream struct {
	session   *Session
	actionID  uint64
	fieldName string
	stream    transport.WriteStream

	mu    sync.Mutex
	ended bool
}

// OpenStream opens a write channel for streaming values into the
// action's named field. Fails if a stream for this action/field pair
// was already opened on this session, even an ended one.
func (s *Session) OpenStream(ctx context.Context, action *Action, fieldName string) (*Stream, error) {
	if s.unusable() {
		return nil, ErrSessionEnded
	}

	key := streamKey{actionID: action.ID, fieldName: fieldName}
	s.mu.Lock()
	if _, exists := s.streams[key]; exists {
		s.mu.Unlock()
		return nil, fmt.Errorf("session: stream for field %q of action %d already opened", fieldName, action.ID)
	}
	s.mu.Unlock()

	writeStream, err := s.stub.OpenWriteStream(ctx)
	if err != nil {
		return nil, fmt.Errorf("session: open write channel: %w", err)
	}

	open := &wire.StreamRequest{
		Open: &wire.StreamOpen{
			SessionID: s.id,
			ActionID:  action.ID,
			FieldName: fieldName,
		},
	}
	if err := writeStream.Send(open); err != nil {
		writeStream.Cancel()
		return nil, fmt.Errorf("session: bind stream: %w", err)
	}
	acknowledgement, err := writeStream.Recv()
	if err != nil {
		writeStream.Cancel()
		return nil, fmt.Errorf("session: bind stream: %w", err)
	}
	if !acknowledgement.Status.OK() {
		writeStream.Cancel()
		return nil, &StatusError{Op: "open stream", Status: acknowledgement.Status}
	}

	stream := &Stream{
		session:   s,
		actionID:  action.ID,
		fieldName: fieldName,
		stream:    writeStream,
	}
	s.mu.Lock()
	s.streams[key] = stream
	s.mu.Unlock()

	s.logger.Debug("stream opened", "session_id", s.id, "action_id", action.ID, "field", fieldName)
	return stream, nil
}

// Send pushes one value and blocks for the server's acknowledgement.
// A codec.RawMessage passes through unmodified; any other value is
// CBOR-encoded.
func (st *Stream) Send(value any) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.ended {
		return ErrStreamEnded
	}

	var raw codec.RawMessage
	switch v := value.(type) {
	case codec.RawMessage:
		raw = v
	default:
		encoded, err := codec.Marshal(v)
		if err != nil {
			return fmt.Errorf("session: encode stream value: %w", err)
		}
		raw = encoded
	}

	if err := st.stream.Send(&wire.StreamRequest{Value: raw}); err != nil {
		return fmt.Errorf("session: send stream value: %w", err)
	}
	acknowledgement, err := st.stream.Recv()
	if err != nil {
		return fmt.Errorf("session: stream acknowledgement: %w", err)
	}
	if !acknowledgement.Status.OK() {
		return &StatusError{Op: "stream write", Status: acknowledgement.Status}
	}
	return nil
}

// Close half-closes the write channel and waits for the server to
// finish its side. Idempotent. After Close, Send fails with
// ErrStreamEnded and the action/field pair cannot be re-opened.
func (st *Stream) Close() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.ended {
		return nil
	}
	// The stream is unusable from here on regardless of how the
	// close handshake goes; a failed handshake tears the channel
	// down instead.
	st.ended = true

	if err := st.stream.CloseSend(); err != nil {
		st.stream.Cancel()
		return fmt.Errorf("session: close stream: %w", err)
	}
	for {
		_, err := st.stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, transport.ErrCancelled) {
				return nil
			}
			st.stream.Cancel()
			return fmt.Errorf("session: stream close handshake: %w", err)
		}
	}
}
