package discovery

import (
	"log/slog"

	"github.com/miekg/dns"

	"github.com/mash-protocol/dnssd-go/pkg/daemon"
	"github.com/mash-protocol/dnssd-go/pkg/dispatch"
	"github.com/mash-protocol/dnssd-go/pkg/log"
)

// SessionConfig configures a Session.
type SessionConfig struct {
	// Name is the service instance name. Required to publish, resolve or
	// monitor.
	Name string

	// Type is the service type, e.g. "_ipp._tcp". Required.
	Type string

	// Domain defaults to "local.".
	Domain string

	// Port is the port to publish.
	Port uint16

	// TXT is the initial attribute record in wire form.
	TXT []byte

	// AddressType selects the address lookup record type after resolving,
	// dns.TypeA (default) or dns.TypeAAAA.
	AddressType uint16

	// Daemon performs the requests. Required.
	Daemon daemon.Daemon

	// Dispatcher delivers replies. When nil the session creates its own on
	// the default selector and closes it on Close.
	Dispatcher *dispatch.Dispatcher

	// Logger receives operational logs. Defaults to slog.Default().
	Logger *slog.Logger

	// Trace receives session trace events. Nil disables tracing.
	Trace log.Logger
}

// Validate checks the config and fills in defaults.
func (c *SessionConfig) Validate() error {
	if c.Daemon == nil {
		return ErrMissingDaemon
	}
	if c.Type == "" {
		return ErrMissingType
	}
	if c.Domain == "" {
		c.Domain = daemon.DefaultDomain
	}
	switch c.AddressType {
	case 0:
		c.AddressType = dns.TypeA
	case dns.TypeA, dns.TypeAAAA:
	default:
		return ErrInvalidAddressType
	}
	return nil
}
