package recon

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/vulnverified/recce/internal/engine"
)

type stubAnswer struct {
	rcode int
	rrs   []string
	err   error
	delay time.Duration
}

// stubDNS answers from a fixed table keyed by "name/TYPE". Unknown
// questions get NXDOMAIN.
type stubDNS struct {
	mu      sync.Mutex
	answers map[string]stubAnswer
	queries []string
}

func (s *stubDNS) Query(ctx context.Context, name string, qtype uint16) (*dns.Msg, error) {
	key := strings.TrimSuffix(name, ".") + "/" + dns.TypeToString[qtype]

	s.mu.Lock()
	s.queries = append(s.queries, key)
	a, ok := s.answers[key]
	s.mu.Unlock()

	if a.delay > 0 {
		select {
		case <-time.After(a.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if a.err != nil {
		return nil, a.err
	}

	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), qtype)
	m.Rcode = a.rcode
	if !ok {
		m.Rcode = dns.RcodeNameError
	}
	for _, s := range a.rrs {
		rr, err := dns.NewRR(s)
		if err != nil {
			return nil, err
		}
		m.Answer = append(m.Answer, rr)
	}
	return m, nil
}

func exampleZone() *stubDNS {
	return &stubDNS{answers: map[string]stubAnswer{
		"example.com/A":     {rrs: []string{"example.com. 300 IN A 93.184.216.34", "example.com. 300 IN A 93.184.216.34"}},
		"example.com/AAAA":  {rrs: []string{"example.com. 300 IN AAAA 2606:2800:220:1::1"}},
		"example.com/MX":    {rrs: []string{"example.com. 300 IN MX 10 Mail.Example.com."}},
		"example.com/NS":    {rrs: []string{"example.com. 300 IN NS a.iana-servers.net.", "example.com. 300 IN NS b.iana-servers.net."}},
		"example.com/TXT":   {rrs: []string{`example.com. 300 IN TXT "v=spf1 " "-all"`}},
		"example.com/CNAME": {},
		"example.com/SOA":   {rcode: dns.RcodeServerFailure},
	}}
}

func TestResolve_AllTypes(t *testing.T) {
	r := &Resolver{Client: exampleZone()}

	set, err := r.Resolve(context.Background(), "example.com", engine.AllRecordTypes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(set) != len(engine.AllRecordTypes) {
		t.Fatalf("got %d types, want exactly %d", len(set), len(engine.AllRecordTypes))
	}

	want := map[engine.RecordType][]string{
		engine.RecordA:     {"93.184.216.34"},
		engine.RecordAAAA:  {"2606:2800:220:1::1"},
		engine.RecordMX:    {"10 mail.example.com"},
		engine.RecordNS:    {"a.iana-servers.net", "b.iana-servers.net"},
		engine.RecordTXT:   {"v=spf1 -all"},
		engine.RecordCNAME: {},
	}
	for rt, values := range want {
		got := set[rt]
		if got.Err != nil {
			t.Errorf("%s: unexpected error %v", rt, got.Err)
		}
		if !reflect.DeepEqual(got.Values, values) {
			t.Errorf("%s = %v, want %v", rt, got.Values, values)
		}
	}

	soa := set[engine.RecordSOA]
	if !errors.Is(soa.Err, engine.ErrDNSFailure) {
		t.Errorf("SOA err = %v, want DNSFailure", soa.Err)
	}
	if soa.Values == nil || len(soa.Values) != 0 {
		t.Errorf("SOA values = %#v, want empty", soa.Values)
	}
}

func TestResolve_KeysMatchRequest(t *testing.T) {
	r := &Resolver{Client: exampleZone()}
	types := []engine.RecordType{engine.RecordMX, engine.RecordA, engine.RecordMX}

	set, err := r.Resolve(context.Background(), "example.com", types)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(set) != 2 {
		t.Fatalf("got keys %v, want A and MX only", set.Types())
	}
	if _, ok := set[engine.RecordNS]; ok {
		t.Error("unrequested NS type present")
	}
}

func TestResolve_AllFail(t *testing.T) {
	r := &Resolver{Client: &stubDNS{}}

	set, err := r.Resolve(context.Background(), "nonexistent.invalid", engine.AllRecordTypes)
	if !errors.Is(err, engine.ErrDNSFailure) {
		t.Fatalf("err = %v, want DNSFailure", err)
	}
	for _, rt := range engine.AllRecordTypes {
		if set[rt].Err == nil {
			t.Errorf("%s: expected error", rt)
		}
	}
}

func TestResolve_TransportError(t *testing.T) {
	zone := exampleZone()
	zone.answers["example.com/MX"] = stubAnswer{err: errors.New("connection refused")}
	r := &Resolver{Client: zone}

	set, err := r.Resolve(context.Background(), "example.com", engine.AllRecordTypes)
	if err != nil {
		t.Fatalf("partial failure should not fail the set: %v", err)
	}
	if !errors.Is(set[engine.RecordMX].Err, engine.ErrDNSFailure) {
		t.Errorf("MX err = %v", set[engine.RecordMX].Err)
	}
	if len(set[engine.RecordA].Values) != 1 {
		t.Errorf("A = %v", set[engine.RecordA].Values)
	}
}

func TestResolve_PerQueryTimeout(t *testing.T) {
	zone := exampleZone()
	zone.answers["example.com/TXT"] = stubAnswer{delay: time.Second}
	r := &Resolver{Client: zone, Timeout: 20 * time.Millisecond}

	start := time.Now()
	set, _ := r.Resolve(context.Background(), "example.com", engine.AllRecordTypes)
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("resolve took %v, per-query timeout not applied", elapsed)
	}
	if set[engine.RecordTXT].Err == nil {
		t.Error("expected TXT timeout error")
	}
}
