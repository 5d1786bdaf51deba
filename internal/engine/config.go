package engine

import (
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vulnverified/recce/internal/wordlist"
	"github.com/vulnverified/recce/pkg/ports"
)

// Config holds the runtime configuration for a recce run.
type Config struct {
	Target string

	// Deadline bounds the whole run. A zero or negative value means the run
	// is already out of time and produces a TimedOut report without
	// starting any section.
	Deadline time.Duration

	DNSTimeout           time.Duration
	PortTimeout          time.Duration
	SubdomainTimeout     time.Duration
	HTTPTimeout          time.Duration
	TLSTimeout           time.Duration
	PortConcurrency      int // 0 means one worker per port, up to DefaultPortConcurrency
	SubdomainConcurrency int
	ProbeRate            float64 // probes per second across a section, 0 for unlimited

	RecordTypes  []RecordType
	Ports        []uint16
	Subdomains   []string
	MaxBodyBytes int64
	UserAgent    string
	Resolvers    []string

	// Optional sections and sources.
	AXFR       bool
	Passive    bool
	GeoIP      bool
	Whois      bool
	Wappalyzer bool

	// CancelGrace is how long Run waits for cancelled sections to hand back
	// partial results once the deadline has passed.
	CancelGrace time.Duration

	Log logrus.FieldLogger
}

const (
	DefaultDeadline             = 30 * time.Second
	DefaultDNSTimeout           = 5 * time.Second
	DefaultPortTimeout          = 1 * time.Second
	DefaultSubdomainTimeout     = 3 * time.Second
	DefaultHTTPTimeout          = 10 * time.Second
	DefaultTLSTimeout           = 10 * time.Second
	DefaultPortConcurrency      = 100
	DefaultSubdomainConcurrency = 50
	DefaultMaxBodyBytes         = 200 * 1024
	DefaultCancelGrace          = 250 * time.Millisecond
	DefaultUserAgent            = "recce/dev"
)

// DefaultConfig returns a Config with every default filled in except the
// target. Ports come from pkg/ports and the subdomain dictionary is the
// embedded wordlist.
func DefaultConfig() Config {
	return Config{
		Deadline:             DefaultDeadline,
		DNSTimeout:           DefaultDNSTimeout,
		PortTimeout:          DefaultPortTimeout,
		SubdomainTimeout:     DefaultSubdomainTimeout,
		HTTPTimeout:          DefaultHTTPTimeout,
		TLSTimeout:           DefaultTLSTimeout,
		SubdomainConcurrency: DefaultSubdomainConcurrency,
		RecordTypes:          append([]RecordType(nil), AllRecordTypes...),
		Ports:                append([]uint16(nil), ports.Default...),
		Subdomains:           wordlist.Subdomains(),
		MaxBodyBytes:         DefaultMaxBodyBytes,
		UserAgent:            DefaultUserAgent,
		CancelGrace:          DefaultCancelGrace,
	}
}

func (c Config) logger() logrus.FieldLogger {
	if c.Log != nil {
		return c.Log
	}
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func (c Config) recordTypes() []RecordType {
	if len(c.RecordTypes) == 0 {
		return AllRecordTypes
	}
	return c.RecordTypes
}

func (c Config) cancelGrace() time.Duration {
	if c.CancelGrace <= 0 {
		return DefaultCancelGrace
	}
	return c.CancelGrace
}
