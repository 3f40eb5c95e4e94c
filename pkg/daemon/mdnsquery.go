package daemon

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// mDNS group addresses (RFC 6762 section 3).
var (
	mdnsIPv4Addr = &net.UDPAddr{IP: net.ParseIP("224.0.0.251"), Port: 5353}
	mdnsIPv6Addr = &net.UDPAddr{IP: net.ParseIP("ff02::fb"), Port: 5353}
)

// qClassUnicastResponse is the QU bit of the question class.
const qClassUnicastResponse = 1 << 15

// multicastLookup asks the link once for host's A or AAAA records and
// collects the answers of the first responder.
func (d *ZeroconfDaemon) multicastLookup(ctx context.Context, host string, rrType uint16) ([]net.IP, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(host), rrType)
	msg.RecursionDesired = false
	msg.Question[0].Qclass |= qClassUnicastResponse

	packed, err := msg.Pack()
	if err != nil {
		return nil, err
	}

	network, group := "udp4", mdnsIPv4Addr
	if rrType == dns.TypeAAAA {
		network, group = "udp6", mdnsIPv6Addr
		if ifaces := d.interfaces(); len(ifaces) > 0 {
			group = &net.UDPAddr{IP: group.IP, Port: group.Port, Zone: ifaces[0].Name}
		}
	}

	conn, err := net.ListenUDP(network, nil)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	deadline := time.Now().Add(d.config.QueryTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, err
	}

	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	if _, err := conn.WriteTo(packed, group); err != nil {
		return nil, err
	}

	want := strings.ToLower(dns.Fqdn(host))
	buf := make([]byte, dns.MaxMsgSize)
	for {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			return nil, err
		}

		var resp dns.Msg
		if err := resp.Unpack(buf[:n]); err != nil || !resp.Response {
			continue
		}

		var ips []net.IP
		for _, rr := range append(resp.Answer, resp.Extra...) {
			if strings.ToLower(rr.Header().Name) != want {
				continue
			}
			switch v := rr.(type) {
			case *dns.A:
				if rrType == dns.TypeA {
					ips = append(ips, v.A)
				}
			case *dns.AAAA:
				if rrType == dns.TypeAAAA {
					ips = append(ips, v.AAAA)
				}
			}
		}
		if len(ips) > 0 {
			return ips, nil
		}
	}
}
