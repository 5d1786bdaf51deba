package recon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"
	"github.com/vulnverified/recce/internal/engine"
)

// DNSClient issues a single DNS question and returns the raw reply.
type DNSClient interface {
	Query(ctx context.Context, name string, qtype uint16) (*dns.Msg, error)
}

const resolvConfPath = "/etc/resolv.conf"

// fallbackResolvers are used when the system configuration can't be read.
var fallbackResolvers = []string{"8.8.8.8:53", "1.1.1.1:53"}

// Exchanger sends DNS messages over UDP with a TCP retry on truncation,
// trying each configured server in turn until one answers.
type Exchanger struct {
	Servers []string
	Timeout time.Duration

	udp *dns.Client
	tcp *dns.Client
}

// NewExchanger builds a DNS client. With no servers given it uses the
// nameservers from /etc/resolv.conf, falling back to public resolvers.
func NewExchanger(servers []string, timeout time.Duration) *Exchanger {
	if len(servers) == 0 {
		servers = systemResolvers()
	}
	normalized := make([]string, 0, len(servers))
	for _, s := range servers {
		if _, _, err := net.SplitHostPort(s); err != nil {
			s = net.JoinHostPort(strings.Trim(s, "[]"), "53")
		}
		normalized = append(normalized, s)
	}
	return &Exchanger{
		Servers: normalized,
		Timeout: timeout,
		udp:     &dns.Client{Net: "udp", Timeout: timeout},
		tcp:     &dns.Client{Net: "tcp", Timeout: timeout},
	}
}

func systemResolvers() []string {
	conf, err := dns.ClientConfigFromFile(resolvConfPath)
	if err != nil || len(conf.Servers) == 0 {
		return fallbackResolvers
	}
	out := make([]string, 0, len(conf.Servers))
	for _, s := range conf.Servers {
		out = append(out, net.JoinHostPort(s, conf.Port))
	}
	return out
}

// Query implements DNSClient.
func (e *Exchanger) Query(ctx context.Context, name string, qtype uint16) (*dns.Msg, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(name), qtype)
	msg.RecursionDesired = true

	var lastErr error
	for _, server := range e.Servers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		resp, _, err := e.client("udp").ExchangeContext(ctx, msg, server)
		if err == nil && resp.Truncated {
			resp, _, err = e.client("tcp").ExchangeContext(ctx, msg, server)
		}
		if err != nil {
			lastErr = fmt.Errorf("%s via %s: %w", dns.TypeToString[qtype], server, err)
			continue
		}
		return resp, nil
	}
	if lastErr == nil {
		lastErr = errors.New("no DNS servers configured")
	}
	return nil, lastErr
}

func (e *Exchanger) client(network string) *dns.Client {
	c := e.udp
	if network == "tcp" {
		c = e.tcp
	}
	if c == nil {
		timeout := e.Timeout
		if timeout <= 0 {
			timeout = engine.DefaultDNSTimeout
		}
		c = &dns.Client{Net: network, Timeout: timeout}
	}
	return c
}
