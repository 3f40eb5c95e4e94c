package discovery

import (
	"net/netip"
	"slices"

	"github.com/mash-protocol/dnssd-go/pkg/txtrecord"
)

// Domain returns the service domain.
func (s *Session) Domain() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.domain
}

// Type returns the service type.
func (s *Session) Type() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.regType
}

// Name returns the instance name. After publishing it is the name the daemon
// actually registered, which may differ after conflict resolution.
func (s *Session) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

// Port returns the service port.
func (s *Session) Port() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

// HostName returns the host name found by the last resolve.
func (s *Session) HostName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hostName
}

// Addresses returns the addresses found by the last completed resolve.
func (s *Session) Addresses() []netip.AddrPort {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.addresses)
}

// AttributeRecordBytes returns the current attribute record in wire form.
func (s *Session) AttributeRecordBytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.txt)
}

// AttributeRecord decodes the current attribute record.
func (s *Session) AttributeRecord() (txtrecord.Record, error) {
	return txtrecord.Decode(s.AttributeRecordBytes())
}

// FullName returns the escaped, fully qualified service instance name.
func (s *Session) FullName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fullNameLocked()
}

// State returns the current operation state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

// IsMonitoring reports whether a monitor query is active.
func (s *Session) IsMonitoring() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.monitorRef != 0
}

// IsPublished reports whether the daemon has confirmed the registration.
func (s *Session) IsPublished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.published
}

// Descriptor returns a snapshot of the service data.
func (s *Session) Descriptor() Descriptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Descriptor{
		Domain:    s.domain,
		Type:      s.regType,
		Name:      s.name,
		Port:      s.port,
		HostName:  s.hostName,
		TXT:       slices.Clone(s.txt),
		Addresses: slices.Clone(s.addresses),
	}
}

// DaemonVersion asks the daemon for its version.
func (s *Session) DaemonVersion() (uint32, error) {
	return s.daemon.Version()
}
