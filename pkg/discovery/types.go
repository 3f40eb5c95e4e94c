package discovery

import (
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/mash-protocol/dnssd-go/pkg/txtrecord"
)

// DefaultResolveTimeout is used by Resolve.
const DefaultResolveTimeout = 5 * time.Second

// Session errors.
var (
	ErrTimeout            = errors.New("resolve timed out")
	ErrSessionClosed      = errors.New("session closed")
	ErrInvalidPort        = errors.New("port must be non-zero to publish")
	ErrMissingName        = errors.New("service name required")
	ErrMissingType        = errors.New("service type required")
	ErrMissingDaemon      = errors.New("daemon required")
	ErrInvalidAddressType = errors.New("address type must be A or AAAA")
)

// TimeoutError is carried by NotResolved when the resolve deadline passes
// before the attempt completes.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("resolve timed out after %v", e.Timeout)
}

// Is reports whether target is ErrTimeout.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// State is the session's operation state. Monitoring is tracked separately.
type State uint8

const (
	StateIdle State = iota
	StatePublishing
	StateResolving
	StateAddressLookup
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StatePublishing:
		return "PUBLISHING"
	case StateResolving:
		return "RESOLVING"
	case StateAddressLookup:
		return "ADDRESS_LOOKUP"
	default:
		return "UNKNOWN"
	}
}

// EventType identifies what an Event reports.
type EventType uint8

const (
	EventPublished EventType = iota
	EventNotPublished
	EventResolved
	EventNotResolved
	EventTXTUpdated
)

// String returns the event type name.
func (t EventType) String() string {
	switch t {
	case EventPublished:
		return "PUBLISHED"
	case EventNotPublished:
		return "NOT_PUBLISHED"
	case EventResolved:
		return "RESOLVED"
	case EventNotResolved:
		return "NOT_RESOLVED"
	case EventTXTUpdated:
		return "TXT_UPDATED"
	default:
		return "UNKNOWN"
	}
}

// Event is raised to session observers. The service fields are a snapshot
// taken when the event was produced.
type Event struct {
	Type EventType

	Name        string
	ServiceType string
	Domain      string
	HostName    string
	Port        uint16
	Addresses   []netip.AddrPort

	// TXT is the decoded attribute record for TXTUpdated.
	TXT txtrecord.Record

	// Err is set for NotPublished and NotResolved. For TXTUpdated it is set
	// when the new record bytes could not be decoded.
	Err error
}

// EventHandler receives session events on the configured execution context.
type EventHandler func(Event)

// Descriptor is a snapshot of what a session knows about its service.
type Descriptor struct {
	Domain    string
	Type      string
	Name      string
	Port      uint16
	HostName  string
	TXT       []byte
	Addresses []netip.AddrPort
}
