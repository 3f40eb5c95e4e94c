package daemon

// ServiceRef identifies one outstanding daemon operation. Zero is never a
// valid reference.
type ServiceRef uint64

// Flags carried on query replies and query requests.
type Flags uint32

const (
	// FlagsMoreComing is set when further replies are already queued.
	FlagsMoreComing Flags = 0x1

	// FlagsAdd is set when the record was added; clear means removed.
	FlagsAdd Flags = 0x2

	// FlagsLongLivedQuery keeps a query open for change notifications.
	FlagsLongLivedQuery Flags = 0x100
)

// Has reports whether all bits of f2 are set.
func (f Flags) Has(f2 Flags) bool {
	return f&f2 == f2
}

// RegisterReply is delivered for a register reference.
type RegisterReply struct {
	Err ErrorCode

	// Name, Type and Domain are the values actually registered. The daemon
	// may have renamed the service to resolve a conflict.
	Name   string
	Type   string
	Domain string
}

// ResolveReply is delivered for a resolve reference.
type ResolveReply struct {
	Err      ErrorCode
	FullName string
	HostName string
	Port     uint16
	TXT      []byte
}

// QueryReply is delivered for a query reference.
type QueryReply struct {
	Err      ErrorCode
	Flags    Flags
	FullName string
	RRType   uint16
	RData    []byte
	TTL      uint32
}

// Reply callbacks. They run inside ProcessResult.
type (
	RegisterCallback func(RegisterReply)
	ResolveCallback  func(ResolveReply)
	QueryCallback    func(QueryReply)
)

// Daemon is the resolver daemon contract.
//
// Every Create call returns a reference with its own readable descriptor.
// When the descriptor becomes readable, ProcessResult runs exactly one
// pending reply through the callback given at creation. Deallocate releases
// the reference; callers must stop watching the descriptor first.
type Daemon interface {
	CreateRegisterReference(name, regType, domain string, port uint16, txt []byte, cb RegisterCallback) (ServiceRef, error)
	CreateResolveReference(name, regType, domain string, cb ResolveCallback) (ServiceRef, error)
	CreateQueryReference(fqdn string, rrType uint16, flags Flags, cb QueryCallback) (ServiceRef, error)
	UpdateRecord(ref ServiceRef, txt []byte) error
	SocketFD(ref ServiceRef) (int, error)
	ProcessResult(ref ServiceRef) error
	Deallocate(ref ServiceRef)
	Version() (uint32, error)
}
