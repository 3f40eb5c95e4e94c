package daemon

import (
	"bytes"
	"context"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/enbility/zeroconf/v3"
	"github.com/miekg/dns"

	"github.com/mash-protocol/dnssd-go/pkg/txtrecord"
)

// ZeroconfVersion is the version ZeroconfDaemon reports (major*10000 + minor*100).
const ZeroconfVersion uint32 = 30000

// Config configures the zeroconf daemon.
type Config struct {
	// Interface restricts advertising and browsing to one network interface.
	// Empty means all interfaces.
	Interface string

	// TTL is the record TTL used when registering.
	TTL time.Duration

	// QueryTimeout bounds a one-shot multicast address question.
	QueryTimeout time.Duration

	// Logger receives operational logs. Defaults to slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns the default zeroconf daemon configuration.
func DefaultConfig() Config {
	return Config{
		TTL:          120 * time.Second,
		QueryTimeout: 2 * time.Second,
	}
}

// ZeroconfDaemon is an in-process Daemon backed by the zeroconf mDNS engine.
type ZeroconfDaemon struct {
	config Config
	table  *Table
	logger *slog.Logger

	mu     sync.Mutex
	ops    map[ServiceRef]*operation
	hosts  map[string][]net.IP // keyed by lower-case fqdn host name
	closed bool

	wg sync.WaitGroup
}

// operation is what a reference holds on the zeroconf side.
type operation struct {
	server *zeroconf.Server
	cancel context.CancelFunc
}

// NewZeroconfDaemon creates a zeroconf-backed daemon.
func NewZeroconfDaemon(config Config) (*ZeroconfDaemon, error) {
	if config.QueryTimeout <= 0 {
		config.QueryTimeout = DefaultConfig().QueryTimeout
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ZeroconfDaemon{
		config: config,
		table:  NewTable(),
		logger: logger.With("component", "zeroconf-daemon"),
		ops:    make(map[ServiceRef]*operation),
		hosts:  make(map[string][]net.IP),
	}, nil
}

// interfaces returns the interfaces to use, nil for all.
func (d *ZeroconfDaemon) interfaces() []net.Interface {
	if d.config.Interface == "" {
		return nil
	}
	iface, err := net.InterfaceByName(d.config.Interface)
	if err != nil {
		d.logger.Warn("interface not found, using all", "interface", d.config.Interface, "error", err)
		return nil
	}
	return []net.Interface{*iface}
}

func (d *ZeroconfDaemon) serverOptions() []zeroconf.ServerOption {
	var opts []zeroconf.ServerOption
	if d.config.TTL > 0 {
		opts = append(opts, zeroconf.TTL(uint32(d.config.TTL.Seconds())))
	}
	return opts
}

func (d *ZeroconfDaemon) clientOptions() []zeroconf.ClientOption {
	var opts []zeroconf.ClientOption
	if ifaces := d.interfaces(); ifaces != nil {
		opts = append(opts, zeroconf.SelectIfaces(ifaces))
	}
	return opts
}

// open allocates a reference and records its zeroconf side.
func (d *ZeroconfDaemon) open(op *operation) (ServiceRef, error) {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return 0, &Error{Op: "open", Code: ErrCodeServiceNotRunning}
	}

	ref, err := d.table.Open()
	if err != nil {
		return 0, err
	}

	d.mu.Lock()
	d.ops[ref] = op
	d.mu.Unlock()
	return ref, nil
}

// post queues a reply; a reference released in the meantime drops it.
func (d *ZeroconfDaemon) post(ref ServiceRef, fn func()) {
	if err := d.table.Post(ref, fn); err != nil {
		d.logger.Debug("reply dropped", "ref", ref, "error", err)
	}
}

// CreateRegisterReference advertises a service.
func (d *ZeroconfDaemon) CreateRegisterReference(name, regType, domain string, port uint16, txt []byte, cb RegisterCallback) (ServiceRef, error) {
	if name == "" || regType == "" || cb == nil {
		return 0, &Error{Op: "register", Code: ErrCodeBadParam}
	}
	strs, err := txtrecord.Split(txt)
	if err != nil {
		return 0, &Error{Op: "register", Code: ErrCodeBadParam}
	}

	regType = strings.TrimSuffix(regType, ".")
	zone := zoneName(domain)

	server, err := zeroconf.Register(name, regType, zone, int(port), strs, d.interfaces(), d.serverOptions()...)
	if err != nil {
		d.logger.Warn("register failed", "name", name, "type", regType, "error", err)
		return 0, &Error{Op: "register", Code: ErrCodeUnknown}
	}

	ref, err := d.open(&operation{server: server})
	if err != nil {
		server.Shutdown()
		return 0, err
	}

	reply := RegisterReply{Name: name, Type: regType, Domain: dns.Fqdn(zone)}
	d.post(ref, func() { cb(reply) })
	d.logger.Debug("registered", "ref", ref, "name", name, "type", regType, "port", port)
	return ref, nil
}

// UpdateRecord replaces the TXT record of a register reference.
func (d *ZeroconfDaemon) UpdateRecord(ref ServiceRef, txt []byte) error {
	d.mu.Lock()
	op, ok := d.ops[ref]
	d.mu.Unlock()
	if !ok || op.server == nil {
		return &Error{Op: "update", Code: ErrCodeBadReference}
	}

	strs, err := txtrecord.Split(txt)
	if err != nil {
		return &Error{Op: "update", Code: ErrCodeBadParam}
	}
	op.server.SetText(strs)
	return nil
}

// CreateResolveReference browses for the instance and reports its host,
// port and TXT data each time they change.
func (d *ZeroconfDaemon) CreateResolveReference(name, regType, domain string, cb ResolveCallback) (ServiceRef, error) {
	if name == "" || regType == "" || cb == nil {
		return 0, &Error{Op: "resolve", Code: ErrCodeBadParam}
	}
	regType = strings.TrimSuffix(regType, ".")
	fullName := ConstructFullName(name, regType, domain)

	ctx, cancel := context.WithCancel(context.Background())
	ref, err := d.open(&operation{cancel: cancel})
	if err != nil {
		cancel()
		return 0, err
	}

	var last *ResolveReply
	d.browse(ctx, ref, "resolve", regType, zoneName(domain), func(entry *zeroconf.ServiceEntry, added bool) {
		if !added || entry.Instance != name {
			return
		}
		d.cacheHost(entry)

		txt, err := txtrecord.Join(entry.Text)
		if err != nil {
			d.logger.Warn("unusable TXT data", "instance", entry.Instance, "error", err)
			return
		}
		reply := ResolveReply{
			FullName: fullName,
			HostName: dns.Fqdn(entry.HostName),
			Port:     uint16(entry.Port),
			TXT:      txt,
		}
		if last != nil && last.HostName == reply.HostName && last.Port == reply.Port && bytes.Equal(last.TXT, reply.TXT) {
			return
		}
		last = &reply
		d.post(ref, func() { cb(reply) })
	}, func(code ErrorCode) {
		d.post(ref, func() { cb(ResolveReply{Err: code, FullName: fullName}) })
	})

	return ref, nil
}

// CreateQueryReference answers A/AAAA questions for host names and keeps
// long-lived TXT questions for service instances.
func (d *ZeroconfDaemon) CreateQueryReference(fqdn string, rrType uint16, flags Flags, cb QueryCallback) (ServiceRef, error) {
	if fqdn == "" || cb == nil {
		return 0, &Error{Op: "query", Code: ErrCodeBadParam}
	}

	switch rrType {
	case dns.TypeA, dns.TypeAAAA:
		ctx, cancel := context.WithCancel(context.Background())
		ref, err := d.open(&operation{cancel: cancel})
		if err != nil {
			cancel()
			return 0, err
		}
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.queryAddress(ctx, ref, dns.Fqdn(fqdn), rrType, cb)
		}()
		return ref, nil

	case dns.TypeTXT:
		name, regType, domain, err := SplitFullName(fqdn)
		if err != nil {
			return 0, &Error{Op: "query", Code: ErrCodeBadParam}
		}
		ctx, cancel := context.WithCancel(context.Background())
		ref, err := d.open(&operation{cancel: cancel})
		if err != nil {
			cancel()
			return 0, err
		}
		d.queryTXT(ctx, ref, fqdn, name, regType, domain, cb)
		return ref, nil

	default:
		return 0, &Error{Op: "query", Code: ErrCodeUnsupported}
	}
}

func (d *ZeroconfDaemon) queryAddress(ctx context.Context, ref ServiceRef, host string, rrType uint16, cb QueryCallback) {
	ips := d.cachedAddrs(host, rrType)
	if len(ips) == 0 {
		var err error
		ips, err = d.multicastLookup(ctx, host, rrType)
		if err != nil && ctx.Err() == nil {
			d.logger.Debug("multicast lookup failed", "host", host, "type", dns.TypeToString[rrType], "error", err)
		}
	}
	if ctx.Err() != nil {
		return
	}

	if len(ips) == 0 {
		d.post(ref, func() { cb(QueryReply{Err: ErrCodeNoSuchRecord, FullName: host, RRType: rrType}) })
		return
	}

	ttl := uint32(d.config.TTL.Seconds())
	for i, ip := range ips {
		flags := FlagsAdd
		if i < len(ips)-1 {
			flags |= FlagsMoreComing
		}
		reply := QueryReply{Flags: flags, FullName: host, RRType: rrType, RData: addrRData(ip, rrType), TTL: ttl}
		d.post(ref, func() { cb(reply) })
	}
}

func (d *ZeroconfDaemon) queryTXT(ctx context.Context, ref ServiceRef, fqdn, name, regType, domain string, cb QueryCallback) {
	ttl := uint32(d.config.TTL.Seconds())
	var last []byte
	d.browse(ctx, ref, "query", regType, zoneName(domain), func(entry *zeroconf.ServiceEntry, added bool) {
		if entry.Instance != name {
			return
		}
		if !added {
			if last == nil {
				return
			}
			reply := QueryReply{FullName: fqdn, RRType: dns.TypeTXT, RData: last, TTL: 0}
			last = nil
			d.post(ref, func() { cb(reply) })
			return
		}

		txt, err := txtrecord.Join(entry.Text)
		if err != nil {
			d.logger.Warn("unusable TXT data", "instance", entry.Instance, "error", err)
			return
		}
		if last != nil && bytes.Equal(last, txt) {
			return
		}
		last = txt
		reply := QueryReply{Flags: FlagsAdd, FullName: fqdn, RRType: dns.TypeTXT, RData: txt, TTL: ttl}
		d.post(ref, func() { cb(reply) })
	}, func(code ErrorCode) {
		d.post(ref, func() { cb(QueryReply{Err: code, FullName: fqdn, RRType: dns.TypeTXT}) })
	})
}

// browse runs zeroconf.Browse until ctx is cancelled. onEntry is called from
// a single goroutine; onFail is called once if browsing fails.
func (d *ZeroconfDaemon) browse(ctx context.Context, ref ServiceRef, op, regType, domain string,
	onEntry func(entry *zeroconf.ServiceEntry, added bool), onFail func(ErrorCode)) {
	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	d.wg.Add(2)
	go func() {
		defer d.wg.Done()
		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					return
				}
				onEntry(entry, true)
			case entry, ok := <-removed:
				if !ok {
					removed = nil
					continue
				}
				onEntry(entry, false)
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		defer d.wg.Done()
		if err := zeroconf.Browse(ctx, regType, domain, entries, removed, d.clientOptions()...); err != nil && ctx.Err() == nil {
			d.logger.Warn("browse failed", "ref", ref, "op", op, "type", regType, "error", err)
			onFail(ErrCodeUnknown)
		}
	}()
}

func (d *ZeroconfDaemon) cacheHost(entry *zeroconf.ServiceEntry) {
	if entry.HostName == "" {
		return
	}
	ips := make([]net.IP, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	ips = append(ips, entry.AddrIPv4...)
	ips = append(ips, entry.AddrIPv6...)
	if len(ips) == 0 {
		return
	}

	d.mu.Lock()
	d.hosts[strings.ToLower(dns.Fqdn(entry.HostName))] = ips
	d.mu.Unlock()
}

func (d *ZeroconfDaemon) cachedAddrs(host string, rrType uint16) []net.IP {
	d.mu.Lock()
	all := d.hosts[strings.ToLower(dns.Fqdn(host))]
	d.mu.Unlock()

	var out []net.IP
	for _, ip := range all {
		if isV4 := ip.To4() != nil; isV4 == (rrType == dns.TypeA) {
			out = append(out, ip)
		}
	}
	return out
}

// SocketFD returns the descriptor that becomes readable when a reply is pending.
func (d *ZeroconfDaemon) SocketFD(ref ServiceRef) (int, error) {
	return d.table.FD(ref)
}

// ProcessResult delivers one pending reply.
func (d *ZeroconfDaemon) ProcessResult(ref ServiceRef) error {
	return d.table.Process(ref)
}

// Deallocate stops the operation behind ref and releases it.
func (d *ZeroconfDaemon) Deallocate(ref ServiceRef) {
	d.mu.Lock()
	op, ok := d.ops[ref]
	delete(d.ops, ref)
	d.mu.Unlock()

	if ok {
		if op.cancel != nil {
			op.cancel()
		}
		if op.server != nil {
			op.server.Shutdown()
		}
	}
	d.table.Close(ref)
}

// Version returns ZeroconfVersion.
func (d *ZeroconfDaemon) Version() (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, &Error{Op: "version", Code: ErrCodeServiceNotRunning}
	}
	return ZeroconfVersion, nil
}

// Close releases every reference and waits for background browsing to end.
func (d *ZeroconfDaemon) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	refs := make([]ServiceRef, 0, len(d.ops))
	for ref := range d.ops {
		refs = append(refs, ref)
	}
	d.mu.Unlock()

	for _, ref := range refs {
		d.Deallocate(ref)
	}
	d.table.CloseAll()
	d.wg.Wait()
	return nil
}

// zoneName turns "local." or "" into the "local" form zeroconf expects.
func zoneName(domain string) string {
	domain = strings.TrimSuffix(domain, ".")
	if domain == "" {
		return strings.TrimSuffix(DefaultDomain, ".")
	}
	return domain
}

func addrRData(ip net.IP, rrType uint16) []byte {
	if rrType == dns.TypeA {
		return []byte(ip.To4())
	}
	return []byte(ip.To16())
}

var _ Daemon = (*ZeroconfDaemon)(nil)
