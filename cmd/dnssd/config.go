package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/miekg/dns"
	"gopkg.in/yaml.v3"

	"github.com/mash-protocol/dnssd-go/pkg/discovery"
	"github.com/mash-protocol/dnssd-go/pkg/txtrecord"
)

// Config holds the command configuration. Fields map onto both the YAML
// config file and the command-line flags; flags win.
type Config struct {
	Name        string   `yaml:"name"`
	Type        string   `yaml:"type"`
	Domain      string   `yaml:"domain"`
	Port        uint16   `yaml:"port"`
	TXT         []string `yaml:"txt"`
	AddressType string   `yaml:"address_type"`
	Interface   string   `yaml:"interface"`
	Timeout     string   `yaml:"timeout"`
	LogLevel    string   `yaml:"log_level"`
	Trace       string   `yaml:"trace"`
}

// loadConfigFile reads a YAML config file.
func loadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// merge overwrites c with every non-zero field of o.
func (c *Config) merge(o Config) {
	if o.Name != "" {
		c.Name = o.Name
	}
	if o.Type != "" {
		c.Type = o.Type
	}
	if o.Domain != "" {
		c.Domain = o.Domain
	}
	if o.Port != 0 {
		c.Port = o.Port
	}
	if len(o.TXT) > 0 {
		c.TXT = o.TXT
	}
	if o.AddressType != "" {
		c.AddressType = o.AddressType
	}
	if o.Interface != "" {
		c.Interface = o.Interface
	}
	if o.Timeout != "" {
		c.Timeout = o.Timeout
	}
	if o.LogLevel != "" {
		c.LogLevel = o.LogLevel
	}
	if o.Trace != "" {
		c.Trace = o.Trace
	}
}

// resolveTimeout parses Timeout, defaulting to discovery.DefaultResolveTimeout.
func (c Config) resolveTimeout() (time.Duration, error) {
	if c.Timeout == "" {
		return discovery.DefaultResolveTimeout, nil
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q: %w", c.Timeout, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("timeout must be positive, got %s", d)
	}
	return d, nil
}

// addressType maps "a"/"aaaa" to the record type.
func (c Config) addressType() (uint16, error) {
	switch strings.ToLower(c.AddressType) {
	case "", "a", "ipv4":
		return dns.TypeA, nil
	case "aaaa", "ipv6":
		return dns.TypeAAAA, nil
	default:
		return 0, fmt.Errorf("unknown address type: %s (must be a or aaaa)", c.AddressType)
	}
}

// txtRecord encodes the TXT entries.
func (c Config) txtRecord() ([]byte, error) {
	if len(c.TXT) == 0 {
		return nil, nil
	}
	return txtrecord.Encode(parseTXTPairs(c.TXT))
}

// parseTXTPairs turns "key=value" and bare "key" arguments into a record,
// keeping their order.
func parseTXTPairs(pairs []string) txtrecord.Record {
	r := make(txtrecord.Record, 0, len(pairs))
	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		e := txtrecord.Entry{Key: key}
		if ok {
			e.Value = []byte(value)
		}
		r = append(r, e)
	}
	return r
}

// listFlag collects a repeatable string flag.
type listFlag []string

func (l *listFlag) String() string {
	return strings.Join(*l, ",")
}

func (l *listFlag) Set(v string) error {
	*l = append(*l, v)
	return nil
}
