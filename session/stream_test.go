// Copyright 2026 The Armature Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"testing"

	"github.com/armature-robotics/armature/lib/codec"
	"github.com/armature-robotics/armature/wire"
)

func TestStreamOpenSendClose(t *testing.T) {
	t.Parallel()
	stub := newFakeStub()
	s := openTestSession(t, stub, nil)
	defer s.End()

	action := testAction(1)
	stream, err := s.OpenStream(context.Background(), action, "target_pose")
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}

	if err := stream.Send(map[string]float64{"x": 0.25}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := stream.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	writeStream := stub.writeStreams[0]
	requests := writeStream.recordedRequests()
	if len(requests) != 2 {
		t.Fatalf("got %d stream requests, want 2", len(requests))
	}
	open := requests[0].Open
	if open == nil || open.SessionID != testSessionID || open.ActionID != action.ID || open.FieldName != "target_pose" {
		t.Fatalf("open request = %+v", open)
	}
	if len(requests[1].Value) == 0 {
		t.Fatal("value request carries no payload")
	}
	writeStream.mu.Lock()
	sendEnded := writeStream.sendEnded
	writeStream.mu.Unlock()
	if !sendEnded {
		t.Fatal("Close did not half-close the write channel")
	}

	if err := stream.Send(1.0); !errors.Is(err, ErrStreamEnded) {
		t.Fatalf("Send after Close: %v, want ErrStreamEnded", err)
	}
	if err := stream.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestStreamSendPassesRawValuesThrough(t *testing.T) {
	t.Parallel()
	stub := newFakeStub()
	s := openTestSession(t, stub, nil)
	defer s.End()

	stream, err := s.OpenStream(context.Background(), testAction(1), "target_pose")
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}
	raw := codec.RawMessage{0x18, 0x2a} // CBOR 42
	if err := stream.Send(raw); err != nil {
		t.Fatalf("Send: %v", err)
	}

	requests := stub.writeStreams[0].recordedRequests()
	if got := requests[len(requests)-1].Value; string(got) != string(raw) {
		t.Fatalf("sent value = %x, want %x unmodified", got, raw)
	}
}

func TestStreamFieldPairOpensOnlyOnce(t *testing.T) {
	t.Parallel()
	stub := newFakeStub()
	s := openTestSession(t, stub, nil)
	defer s.End()

	action := testAction(1)
	stream, err := s.OpenStream(context.Background(), action, "target_pose")
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}
	if _, err := s.OpenStream(context.Background(), action, "target_pose"); err == nil {
		t.Fatal("second OpenStream for the same field succeeded")
	}

	// The restriction outlives the stream: an ended stream still
	// blocks re-opening.
	if err := stream.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := s.OpenStream(context.Background(), action, "target_pose"); err == nil {
		t.Fatal("OpenStream after Close succeeded")
	}

	// A different field of the same action is its own channel.
	if _, err := s.OpenStream(context.Background(), action, "target_velocity"); err != nil {
		t.Fatalf("OpenStream for second field: %v", err)
	}
}

func TestStreamOpenRejected(t *testing.T) {
	t.Parallel()
	stub := newFakeStub()
	stub.writeStatus = &wire.Status{
		Code:    wire.StatusNotFound,
		Message: "action has no streamed field target_pose",
	}
	s := openTestSession(t, stub, nil)
	defer s.End()

	_, err := s.OpenStream(context.Background(), testAction(1), "target_pose")
	if !IsStatus(err, wire.StatusNotFound) {
		t.Fatalf("OpenStream error = %v, want NOT_FOUND status", err)
	}
}

func TestStreamWriteRejected(t *testing.T) {
	t.Parallel()
	stub := newFakeStub()
	s := openTestSession(t, stub, nil)
	defer s.End()

	stream, err := s.OpenStream(context.Background(), testAction(1), "target_pose")
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}
	stub.writeStreams[0].mu.Lock()
	stub.writeStreams[0].status = wire.Status{Code: wire.StatusInvalidArgument, Message: "bad pose"}
	stub.writeStreams[0].mu.Unlock()

	if err := stream.Send(1.0); !IsStatus(err, wire.StatusInvalidArgument) {
		t.Fatalf("Send error = %v, want INVALID_ARGUMENT status", err)
	}
}

func TestEndClosesOpenStreams(t *testing.T) {
	t.Parallel()
	stub := newFakeStub()
	s := openTestSession(t, stub, nil)

	stream, err := s.OpenStream(context.Background(), testAction(1), "target_pose")
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}

	if performed, err := s.End(); !performed || err != nil {
		t.Fatalf("End = (%v, %v), want (true, nil)", performed, err)
	}
	writeStream := stub.writeStreams[0]
	writeStream.mu.Lock()
	sendEnded := writeStream.sendEnded
	writeStream.mu.Unlock()
	if !sendEnded {
		t.Fatal("End did not half-close the write channel")
	}
	if err := stream.Send(1.0); !errors.Is(err, ErrStreamEnded) {
		t.Fatalf("Send after End: %v, want ErrStreamEnded", err)
	}
}
