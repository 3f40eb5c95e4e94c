package daemon

import (
	"fmt"
	"strings"

	"github.com/miekg/dns"
)

// DefaultDomain is used when no domain is given.
const DefaultDomain = "local."

// ConstructFullName builds "<instance>.<type>.<domain>." with the instance
// label escaped, the way DNSServiceConstructFullName does.
func ConstructFullName(name, regType, domain string) string {
	if domain == "" {
		domain = DefaultDomain
	}
	var b strings.Builder
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c == '.' || c == '\\' {
			b.WriteByte('\\')
		}
		b.WriteByte(c)
	}
	b.WriteByte('.')
	b.WriteString(strings.TrimSuffix(regType, "."))
	b.WriteByte('.')
	b.WriteString(dns.Fqdn(domain))
	return b.String()
}

// SplitFullName splits a full service name into its unescaped instance
// name, service type ("_x._tcp") and domain ("local.").
func SplitFullName(fqdn string) (name, regType, domain string, err error) {
	var inst strings.Builder
	i := 0
	for ; i < len(fqdn); i++ {
		c := fqdn[i]
		if c == '\\' && i+1 < len(fqdn) {
			i++
			inst.WriteByte(fqdn[i])
			continue
		}
		if c == '.' {
			break
		}
		inst.WriteByte(c)
	}
	if i >= len(fqdn) || inst.Len() == 0 {
		return "", "", "", fmt.Errorf("invalid service name %q", fqdn)
	}

	labels := dns.SplitDomainName(fqdn[i+1:])
	if len(labels) < 3 {
		return "", "", "", fmt.Errorf("invalid service name %q", fqdn)
	}
	regType = labels[0] + "." + labels[1]
	domain = dns.Fqdn(strings.Join(labels[2:], "."))
	return inst.String(), regType, domain, nil
}
