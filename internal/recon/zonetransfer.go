package recon

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"
	"github.com/vulnverified/recce/internal/engine"
)

const (
	axfrDialTimeout = 10 * time.Second
	axfrReadTimeout = 30 * time.Second
)

// ZoneTransfers tries AXFR against each nameserver in turn. Refusal is the
// expected answer from a sane server and shows up as Success=false, not as
// an error; the error is only set for missing input or cancellation.
func (r *Resolver) ZoneTransfers(ctx context.Context, domain string, nameservers []string) ([]engine.ZoneTransfer, error) {
	if len(nameservers) == 0 {
		return nil, fmt.Errorf("no NS records for %s", domain)
	}

	out := make([]engine.ZoneTransfer, 0, len(nameservers))
	for _, ns := range nameservers {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		ns = trimDot(ns)
		zt := engine.ZoneTransfer{Nameserver: ns}

		rrCount, hosts, err := r.transferZone(ctx, domain, ns)
		if err != nil {
			r.logger().WithField("nameserver", ns).WithError(err).Debug("zone transfer refused")
		} else {
			zt.Success = true
			zt.Records = rrCount
			zt.Hostnames = hosts
		}
		out = append(out, zt)
	}
	return out, nil
}

// transferZone pulls the zone from one nameserver, given as host or
// host:port, and returns the record count plus the in-zone owner names.
func (r *Resolver) transferZone(ctx context.Context, domain, nameserver string) (int, []string, error) {
	addr := nameserver
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, "53")
	}

	xfr := &dns.Transfer{DialTimeout: axfrDialTimeout, ReadTimeout: axfrReadTimeout}
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < xfr.ReadTimeout {
			xfr.DialTimeout, xfr.ReadTimeout = left, left
		}
	}

	q := new(dns.Msg)
	q.SetAxfr(dns.Fqdn(domain))
	envelopes, err := xfr.In(q, addr)
	if err != nil {
		return 0, nil, fmt.Errorf("AXFR to %s: %w", addr, err)
	}

	owners := newHostSet(trimDot(domain))
	count := 0
	for env := range envelopes {
		if env.Error != nil {
			return 0, nil, fmt.Errorf("AXFR from %s: %w", addr, env.Error)
		}
		count += len(env.RR)
		for _, rr := range env.RR {
			owners.add(rr.Header().Name)
		}
	}
	return count, owners.hosts, nil
}
