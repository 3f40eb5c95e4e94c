package log

import (
	"time"
)

// Event represents a session trace event.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// SessionID uniquely identifies the service session (UUID).
	SessionID string `cbor:"2,keyasint"`

	// Service is the full service name the session works on.
	Service string `cbor:"3,keyasint,omitempty"`

	// Direction indicates flow relative to the daemon.
	Direction Direction `cbor:"4,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"5,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"6,keyasint"`

	// Type-specific payload (one of these will be set).
	Operation   *OperationEvent   `cbor:"10,keyasint,omitempty"`
	Reply       *ReplyEvent       `cbor:"11,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"13,keyasint,omitempty"`
}

// Direction indicates the direction of flow relative to the daemon.
type Direction uint8

const (
	// DirectionIn indicates a reply or an event raised to the application.
	DirectionIn Direction = 0
	// DirectionOut indicates a request sent to the daemon.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which component captured the event.
type Layer uint8

const (
	// LayerDispatch is the readiness/delivery layer.
	LayerDispatch Layer = 0
	// LayerSession is the per-service state machine.
	LayerSession Layer = 1
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerDispatch:
		return "DISPATCH"
	case LayerSession:
		return "SESSION"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryOperation indicates a daemon request.
	CategoryOperation Category = 0
	// CategoryReply indicates a daemon reply.
	CategoryReply Category = 1
	// CategoryState indicates a state change.
	CategoryState Category = 2
	// CategoryError indicates an error event.
	CategoryError Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryOperation:
		return "OPERATION"
	case CategoryReply:
		return "REPLY"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// OperationEvent captures a request made to the daemon.
type OperationEvent struct {
	// Op names the daemon call, e.g. "register" or "update".
	Op string `cbor:"1,keyasint"`

	// Ref is the reference the call created or targeted (0 if none).
	Ref uint64 `cbor:"2,keyasint,omitempty"`

	// RRType is the record type for queries.
	RRType uint16 `cbor:"3,keyasint,omitempty"`

	// Target is the name the call was made for (fqdn or host name).
	Target string `cbor:"4,keyasint,omitempty"`
}

// ReplyEvent captures one reply processed for a reference.
type ReplyEvent struct {
	// Op names the operation the reply belongs to.
	Op string `cbor:"1,keyasint"`

	// Ref is the reference the reply was delivered on.
	Ref uint64 `cbor:"2,keyasint"`

	// Code is the daemon error code (0 on success).
	Code int32 `cbor:"3,keyasint,omitempty"`

	// Flags are the reply flags for query replies.
	Flags uint32 `cbor:"4,keyasint,omitempty"`

	// Stale is set when the reply arrived for a reference that was no
	// longer current and was ignored.
	Stale bool `cbor:"5,keyasint,omitempty"`
}

// StateChangeEvent captures session state transitions.
type StateChangeEvent struct {
	// OldState is the previous state (may be empty).
	OldState string `cbor:"1,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"2,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"3,keyasint,omitempty"`
}

// ErrorEventData captures failures.
type ErrorEventData struct {
	// Op describes what operation was being performed.
	Op string `cbor:"1,keyasint,omitempty"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Code is the daemon error code (if applicable).
	Code *int `cbor:"3,keyasint,omitempty"`
}
