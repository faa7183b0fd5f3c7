// Copyright 2026 The Armature Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"fmt"

	"github.com/armature-robotics/armature/lib/codec"
)

// StatusCode is a protocol status code carried in every response from
// the control server. Values are protocol constants — changing them
// breaks compatibility with deployed servers.
type StatusCode uint32

const (
	StatusOK                 StatusCode = 0
	StatusInvalidArgument    StatusCode = 3
	StatusNotFound           StatusCode = 5
	StatusResourceExhausted  StatusCode = 8
	StatusFailedPrecondition StatusCode = 9
	StatusAborted            StatusCode = 10
	StatusInternal           StatusCode = 13
	StatusUnavailable        StatusCode = 14
)

// String returns the human-readable name of a status code.
func (c StatusCode) String() string {
	switch c {
	case StatusOK:
		return "OK"
	case StatusInvalidArgument:
		return "INVALID_ARGUMENT"
	case StatusNotFound:
		return "NOT_FOUND"
	case StatusResourceExhausted:
		return "RESOURCE_EXHAUSTED"
	case StatusFailedPrecondition:
		return "FAILED_PRECONDITION"
	case StatusAborted:
		return "ABORTED"
	case StatusInternal:
		return "INTERNAL"
	case StatusUnavailable:
		return "UNAVAILABLE"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint32(c))
	}
}

// Status is the server's verdict on a single request.
type Status struct {
	Code    StatusCode `cbor:"code"`
	Message string     `cbor:"message,omitempty"`
}

// OK reports whether the status indicates success.
func (s Status) OK() bool { return s.Code == StatusOK }

// String formats the status for error messages, e.g.
// "ABORTED: part estopped".
func (s Status) String() string {
	if s.Message == "" {
		return s.Code.String()
	}
	return s.Code.String() + ": " + s.Message
}

// LogContext correlates client-side activity with server-side logs.
// Sent once in the open request; the server attaches the trace ID to
// every log line for the session.
type LogContext struct {
	// TraceID is a client-generated opaque identifier (a UUID in this
	// implementation).
	TraceID string `cbor:"trace_id"`
}

// AllocateParts asks the server to grant this session exclusive
// control over the named parts. Allocation is all-or-nothing.
type AllocateParts struct {
	Parts []string `cbor:"part"`
}

// SessionRequest is the client→server message on the session channel.
// Exactly one of the operation fields is set per request.
type SessionRequest struct {
	// AllocateParts is set only on the first request of a session
	// (the open handshake).
	AllocateParts *AllocateParts `cbor:"allocate_parts,omitempty"`

	// Add appends action instances and reaction records to the
	// running session.
	Add *AddRequest `cbor:"add,omitempty"`

	// Start asks the real-time loop to start actions by instance ID.
	Start *StartRequest `cbor:"start,omitempty"`

	// LatestOutput polls the most recently published value on an
	// action's streaming-output channel.
	LatestOutput *LatestOutputRequest `cbor:"latest_output,omitempty"`

	// LogContext accompanies AllocateParts in the open request.
	LogContext *LogContext `cbor:"log_context,omitempty"`
}

// InitialSessionData is returned once, in the response to the open
// handshake.
type InitialSessionData struct {
	// SessionID is the server-assigned identifier for this session,
	// stable for the session's lifetime.
	SessionID uint64 `cbor:"session_id"`
}

// SessionResponse is the server→client message on the session
// channel. Exactly one response is sent per request, in request
// order.
type SessionResponse struct {
	Status Status `cbor:"status"`

	// InitialSessionData is set only in the open-handshake response.
	InitialSessionData *InitialSessionData `cbor:"initial_session_data,omitempty"`

	// Output is set only in responses to LatestOutput requests.
	Output *LatestOutput `cbor:"output,omitempty"`
}

// ActionInstance describes one action to add to the session. The
// instance ID is caller-assigned and is the correlation key for
// starts, reactions, and streaming.
type ActionInstance struct {
	ID       uint64 `cbor:"action_instance_id"`
	TypeName string `cbor:"type_name"`

	// PartName targets a single part. Mutually exclusive with
	// SlotParts.
	PartName string `cbor:"part_name,omitempty"`

	// SlotParts maps the action type's slot names to part names for
	// multi-part actions. Mutually exclusive with PartName.
	SlotParts map[string]string `cbor:"slot_part_map,omitempty"`

	// FixedParameters is the action type's parameter payload, opaque
	// to this engine.
	FixedParameters codec.RawMessage `cbor:"fixed_parameters,omitempty"`
}

// AddRequest appends actions and reactions to the session.
type AddRequest struct {
	ActionInstances []ActionInstance `cbor:"action_instances,omitempty"`
	Reactions       []Reaction       `cbor:"reactions,omitempty"`
}

// StartRequest asks the real-time loop to start the listed action
// instances on the next control cycle.
type StartRequest struct {
	ActionInstanceIDs []uint64 `cbor:"action_instance_ids"`

	// StopActiveActions stops everything currently running on the
	// session's parts before starting the listed actions.
	StopActiveActions bool `cbor:"stop_active_actions"`
}

// ComparisonOp identifies a comparison operator. String values are
// protocol constants.
type ComparisonOp string

const (
	OpEqual              ComparisonOp = "EQUAL"
	OpNotEqual           ComparisonOp = "NOT_EQUAL"
	OpApproxEqual        ComparisonOp = "APPROX_EQUAL"
	OpLessThan           ComparisonOp = "LESS_THAN"
	OpLessThanOrEqual    ComparisonOp = "LESS_THAN_OR_EQUAL"
	OpGreaterThan        ComparisonOp = "GREATER_THAN"
	OpGreaterThanOrEqual ComparisonOp = "GREATER_THAN_OR_EQUAL"
)

// ConjunctionOp identifies how a conjunction combines its children.
type ConjunctionOp string

const (
	ConjunctionAllOf ConjunctionOp = "ALL_OF"
	ConjunctionAnyOf ConjunctionOp = "ANY_OF"
)

// Comparison compares a real-time state variable against a constant
// operand once per control cycle. Exactly one of BoolValue,
// Int64Value, DoubleValue is set: state variables are typed, and the
// server rejects a comparison whose operand type does not match.
type Comparison struct {
	StateVariable string       `cbor:"state_variable_name"`
	Operation     ComparisonOp `cbor:"operation"`

	BoolValue   *bool    `cbor:"bool_value,omitempty"`
	Int64Value  *int64   `cbor:"int64_value,omitempty"`
	DoubleValue *float64 `cbor:"double_value,omitempty"`

	// MaxAbsError is the tolerance for APPROX_EQUAL. Ignored for
	// other operations.
	MaxAbsError *float64 `cbor:"max_abs_error,omitempty"`
}

// Conjunction combines child conditions with ALL_OF or ANY_OF.
type Conjunction struct {
	Operation  ConjunctionOp `cbor:"operation"`
	Conditions []Condition   `cbor:"conditions"`
}

// Condition is the wire form of a boolean expression tree. Exactly
// one field is set.
type Condition struct {
	Comparison  *Comparison  `cbor:"comparison,omitempty"`
	Negated     *Condition   `cbor:"negated_condition,omitempty"`
	Conjunction *Conjunction `cbor:"conjunction,omitempty"`
}

// Response is the wire form of a reaction's real-time effect. A wire
// reaction record carries at most one response; client-side effects
// (callbacks, signal flags) never appear on the wire.
type Response struct {
	// StartActionInstanceID is the action instance the real-time loop
	// starts when the condition fires.
	StartActionInstanceID uint64 `cbor:"start_action_instance_id"`
}

// ActionAssociation binds a reaction record to the action it was
// attached to. Absent for free-standing reactions.
type ActionAssociation struct {
	ActionInstanceID uint64 `cbor:"action_instance_id"`

	// StopAssociatedAction stops the associated action when the
	// reaction fires (the "transition" behavior, as opposed to
	// starting something in parallel).
	StopAssociatedAction bool `cbor:"stop_associated_action"`

	// TriggeredSignalName names a realtime signal to raise on the
	// associated action when the reaction fires.
	TriggeredSignalName string `cbor:"triggered_signal_name,omitempty"`
}

// Reaction is one wire reaction record: a condition, at most one
// response, and an optional action association. The instance ID is
// the key under which the watch channel reports the condition firing.
type Reaction struct {
	ID          uint64             `cbor:"reaction_instance_id"`
	Condition   Condition          `cbor:"condition"`
	Response    *Response          `cbor:"response,omitempty"`
	Association *ActionAssociation `cbor:"action_association,omitempty"`
}

// WatchRequest is the single client→server message on the watch
// channel, identifying the session to watch.
type WatchRequest struct {
	SessionID uint64 `cbor:"session_id"`
}

// ReactionEvent reports that a reaction's condition was satisfied.
type ReactionEvent struct {
	ReactionID uint64 `cbor:"reaction_id"`

	// PreviousActionInstanceID is the action that was running when
	// the condition fired, if any.
	PreviousActionInstanceID *uint64 `cbor:"previous_action_instance_id,omitempty"`

	// CurrentActionInstanceID is the action running after the
	// reaction's effect was applied, if any.
	CurrentActionInstanceID *uint64 `cbor:"current_action_instance_id,omitempty"`
}

// WatchEvent is one server→client message on the watch channel. The
// first event of a watch is a priming event carrying no reaction
// event; it confirms the channel is established.
type WatchEvent struct {
	// TimestampNS is the control-cycle timestamp in nanoseconds since
	// the Unix epoch.
	TimestampNS int64 `cbor:"timestamp_ns"`

	Reaction *ReactionEvent `cbor:"reaction_event,omitempty"`
}

// StreamOpen is the first message on a write channel, binding it to
// one streamed parameter of one action.
type StreamOpen struct {
	SessionID uint64 `cbor:"session_id"`
	ActionID  uint64 `cbor:"action_instance_id"`
	FieldName string `cbor:"field_name"`
}

// StreamRequest is the client→server message on a write channel.
// The first request carries Open; every subsequent request carries
// Value.
type StreamRequest struct {
	Open *StreamOpen `cbor:"open,omitempty"`

	// Value is the next parameter value, opaque to this engine.
	Value codec.RawMessage `cbor:"value,omitempty"`
}

// StreamResponse acknowledges one StreamRequest.
type StreamResponse struct {
	Status Status `cbor:"status"`
}

// LatestOutputRequest polls the newest value published on an action's
// streaming-output channel.
type LatestOutputRequest struct {
	SessionID uint64 `cbor:"session_id"`
	ActionID  uint64 `cbor:"action_instance_id"`
	FieldName string `cbor:"field_name"`
}

// LatestOutput is the polled value and its publication timestamp.
type LatestOutput struct {
	// TimestampNS is when the value was published, in nanoseconds
	// since the Unix epoch.
	TimestampNS int64 `cbor:"timestamp_ns"`

	Value codec.RawMessage `cbor:"value,omitempty"`
}
