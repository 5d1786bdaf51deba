package recon

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/miekg/dns"
	"github.com/sirupsen/logrus"
	"github.com/vulnverified/recce/internal/engine"
)

// SubdomainScanner implements engine.SubdomainScanner by resolving
// "<candidate>.<domain>" A records through a bounded worker pool.
type SubdomainScanner struct {
	Client      DNSClient
	Timeout     time.Duration // per candidate
	Concurrency int
	Rate        float64
	Log         logrus.FieldLogger
}

// Scan returns the candidates that resolved, in candidate order, plus any
// dangling CNAMEs seen on the way. NXDOMAIN and empty answers are the
// expected outcome for most candidates and are not errors. The error is
// set only when every attempted candidate failed with a ProbeError.
func (s *SubdomainScanner) Scan(ctx context.Context, domain string, candidates []string) ([]engine.SubdomainResult, []engine.DanglingCNAME, error) {
	if domain == "" {
		return nil, nil, engine.NewError(engine.KindProbeError, "subdomain probe", errors.New("empty domain"))
	}
	if len(candidates) == 0 {
		return []engine.SubdomainResult{}, nil, nil
	}

	opts := ProbeOptions{
		Concurrency: s.concurrency(),
		Timeout:     s.timeout(),
		Rate:        s.Rate,
	}
	outcomes := Probe(ctx, candidates, opts, func(ctx context.Context, word string) engine.ProbeOutcome {
		return s.resolveCandidate(ctx, word, domain)
	})

	found := []engine.SubdomainResult{}
	var (
		dangling []engine.DanglingCNAME
		failures int
	)
	for _, o := range outcomes {
		fqdn := candidateFQDN(o.Item, domain)
		if o.OK {
			found = append(found, engine.SubdomainResult{
				Candidate:  o.Item,
				FQDN:       fqdn,
				ResolvedIP: o.Value,
				CNAME:      o.CNAME,
			})
			continue
		}
		if o.Err != nil {
			failures++
		}
		if o.CNAME != "" {
			if d := checkDangling(fqdn, o.CNAME, o.Value); d != nil {
				dangling = append(dangling, *d)
			}
		}
	}

	if len(outcomes) > 0 && failures == len(outcomes) {
		return found, dangling, engine.NewError(engine.KindProbeError,
			fmt.Sprintf("all %d subdomain probes failed", failures), nil)
	}
	return found, dangling, nil
}

// resolveCandidate issues one A query. The outcome Value holds the first
// address on success and the DNS status otherwise.
func (s *SubdomainScanner) resolveCandidate(ctx context.Context, word, domain string) engine.ProbeOutcome {
	fqdn := candidateFQDN(word, domain)
	out := engine.ProbeOutcome{Item: word}

	resp, err := s.Client.Query(ctx, fqdn, dns.TypeA)
	if err != nil {
		s.logger().WithField("host", fqdn).WithError(err).Debug("subdomain query failed")
		out.Err = engine.NewError(engine.KindProbeError, "resolve "+fqdn, err)
		return out
	}

	for _, rr := range resp.Answer {
		switch v := rr.(type) {
		case *dns.CNAME:
			out.CNAME = trimDot(v.Target)
		case *dns.A:
			if out.Value == "" {
				out.Value = v.A.String()
			}
		}
	}

	switch resp.Rcode {
	case dns.RcodeSuccess:
		if out.Value != "" {
			out.OK = true
		} else {
			out.Value = "NODATA"
		}
	case dns.RcodeNameError:
		out.Value = "NXDOMAIN"
	default:
		out.Value = dns.RcodeToString[resp.Rcode]
		out.Err = engine.NewError(engine.KindProbeError, "resolve "+fqdn, fmt.Errorf("server returned %s", out.Value))
	}
	return out
}

func candidateFQDN(word, domain string) string {
	return strings.ToLower(word) + "." + domain
}

func (s *SubdomainScanner) concurrency() int {
	if s.Concurrency <= 0 {
		return engine.DefaultSubdomainConcurrency
	}
	return s.Concurrency
}

func (s *SubdomainScanner) timeout() time.Duration {
	if s.Timeout <= 0 {
		return engine.DefaultSubdomainTimeout
	}
	return s.Timeout
}

func (s *SubdomainScanner) logger() logrus.FieldLogger {
	return orDiscard(s.Log)
}
