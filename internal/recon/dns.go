package recon

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/miekg/dns"
	"github.com/sirupsen/logrus"
	"github.com/vulnverified/recce/internal/engine"
)

var qtypes = map[engine.RecordType]uint16{
	engine.RecordA:     dns.TypeA,
	engine.RecordAAAA:  dns.TypeAAAA,
	engine.RecordMX:    dns.TypeMX,
	engine.RecordNS:    dns.TypeNS,
	engine.RecordTXT:   dns.TypeTXT,
	engine.RecordCNAME: dns.TypeCNAME,
	engine.RecordSOA:   dns.TypeSOA,
}

// Resolver implements engine.DNSResolver and engine.ZoneTransferer.
type Resolver struct {
	Client  DNSClient
	Timeout time.Duration // per query
	Log     logrus.FieldLogger
}

// Resolve queries every requested record type concurrently. Types that fail
// carry a DNSFailure in their answer; the returned error is set only when
// all of them failed.
func (r *Resolver) Resolve(ctx context.Context, domain string, types []engine.RecordType) (engine.DNSRecordSet, error) {
	if domain == "" {
		return nil, engine.NewError(engine.KindDNSFailure, "resolve", errors.New("empty domain"))
	}
	types = dedupeTypes(types)
	if len(types) == 0 {
		return nil, engine.NewError(engine.KindDNSFailure, "resolve", errors.New("no record types requested"))
	}

	// One slot per type; each goroutine writes only its own index.
	answers := make([]engine.DNSAnswer, len(types))
	var wg sync.WaitGroup
	for i, rt := range types {
		wg.Add(1)
		go func(i int, rt engine.RecordType) {
			defer wg.Done()
			answers[i] = r.lookup(ctx, domain, rt)
		}(i, rt)
	}
	wg.Wait()

	set := make(engine.DNSRecordSet, len(types))
	var errs []error
	for i, rt := range types {
		set[rt] = answers[i]
		if answers[i].Err != nil {
			errs = append(errs, answers[i].Err)
		}
	}

	if len(errs) == len(types) {
		return set, engine.NewError(engine.KindDNSFailure,
			fmt.Sprintf("all %d record types failed for %s", len(types), domain), errors.Join(errs...))
	}
	return set, nil
}

func (r *Resolver) lookup(ctx context.Context, domain string, rt engine.RecordType) engine.DNSAnswer {
	op := string(rt) + " lookup"
	qtype, ok := qtypes[rt]
	if !ok {
		return engine.DNSAnswer{Values: []string{}, Err: engine.NewError(engine.KindDNSFailure, op, errors.New("unsupported record type"))}
	}

	qctx, cancel := context.WithTimeout(ctx, r.timeout())
	defer cancel()

	resp, err := r.Client.Query(qctx, domain, qtype)
	if err != nil {
		r.logger().WithField("type", rt).WithError(err).Debug("dns query failed")
		return engine.DNSAnswer{Values: []string{}, Err: engine.NewError(engine.KindDNSFailure, op, err)}
	}

	switch resp.Rcode {
	case dns.RcodeSuccess:
	case dns.RcodeNameError:
		return engine.DNSAnswer{Values: []string{}, Err: engine.NewError(engine.KindDNSFailure, op, fmt.Errorf("NXDOMAIN for %s", domain))}
	default:
		return engine.DNSAnswer{Values: []string{}, Err: engine.NewError(engine.KindDNSFailure, op, fmt.Errorf("server returned %s", dns.RcodeToString[resp.Rcode]))}
	}

	values := []string{}
	for _, rr := range resp.Answer {
		if rr.Header().Rrtype != qtype {
			continue
		}
		if v, ok := formatRR(rr); ok {
			values = append(values, v)
		}
	}
	return engine.DNSAnswer{Values: deduplicateStrings(values)}
}

// formatRR renders a resource record's data as one raw string.
func formatRR(rr dns.RR) (string, bool) {
	switch v := rr.(type) {
	case *dns.A:
		return v.A.String(), true
	case *dns.AAAA:
		return v.AAAA.String(), true
	case *dns.MX:
		return fmt.Sprintf("%d %s", v.Preference, trimDot(v.Mx)), true
	case *dns.NS:
		return trimDot(v.Ns), true
	case *dns.TXT:
		return strings.Join(v.Txt, ""), true
	case *dns.CNAME:
		return trimDot(v.Target), true
	case *dns.SOA:
		return fmt.Sprintf("%s %s %d %d %d %d %d",
			trimDot(v.Ns), trimDot(v.Mbox), v.Serial, v.Refresh, v.Retry, v.Expire, v.Minttl), true
	}
	return "", false
}

func (r *Resolver) timeout() time.Duration {
	if r.Timeout <= 0 {
		return engine.DefaultDNSTimeout
	}
	return r.Timeout
}

func (r *Resolver) logger() logrus.FieldLogger {
	return orDiscard(r.Log)
}

func dedupeTypes(types []engine.RecordType) []engine.RecordType {
	seen := make(map[engine.RecordType]bool, len(types))
	var out []engine.RecordType
	for _, t := range types {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

func trimDot(s string) string {
	return strings.TrimSuffix(strings.ToLower(s), ".")
}

func deduplicateStrings(ss []string) []string {
	seen := make(map[string]bool, len(ss))
	out := make([]string, 0, len(ss))
	for _, s := range ss {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
