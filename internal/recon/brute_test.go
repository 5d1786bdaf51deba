package recon

import (
	"context"
	"errors"
	"testing"

	"github.com/miekg/dns"
	"github.com/vulnverified/recce/internal/engine"
)

func TestSubdomainScan_OnlyResolvedCandidates(t *testing.T) {
	zone := &stubDNS{answers: map[string]stubAnswer{
		"www.example.com/A": {rrs: []string{"www.example.com. 300 IN A 93.184.216.34"}},
		"ftp.example.com/A": {},
	}}
	s := &SubdomainScanner{Client: zone, Concurrency: 2}

	found, dangling, err := s.Scan(context.Background(), "example.com", []string{"www", "mail", "ftp"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("found = %+v, want www only", found)
	}
	if found[0].Candidate != "www" || found[0].FQDN != "www.example.com" || found[0].ResolvedIP != "93.184.216.34" {
		t.Errorf("found[0] = %+v", found[0])
	}
	if len(dangling) != 0 {
		t.Errorf("dangling = %+v", dangling)
	}
}

func TestSubdomainScan_PreservesCandidateOrder(t *testing.T) {
	zone := &stubDNS{answers: map[string]stubAnswer{}}
	words := []string{"a", "b", "c", "d", "e", "f"}
	for _, w := range words {
		zone.answers[w+".example.com/A"] = stubAnswer{rrs: []string{w + ".example.com. 60 IN A 192.0.2.1"}}
	}
	s := &SubdomainScanner{Client: zone, Concurrency: 3}

	found, _, err := s.Scan(context.Background(), "example.com", words)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, r := range found {
		if r.Candidate != words[i] {
			t.Errorf("found[%d] = %s, want %s", i, r.Candidate, words[i])
		}
	}
}

func TestSubdomainScan_CNAMEAndDangling(t *testing.T) {
	zone := &stubDNS{answers: map[string]stubAnswer{
		"cdn.example.com/A": {rrs: []string{
			"cdn.example.com. 60 IN CNAME edge.example.net.",
			"edge.example.net. 60 IN A 192.0.2.10",
		}},
		"blog.example.com/A": {rcode: dns.RcodeNameError, rrs: []string{
			"blog.example.com. 60 IN CNAME old-blog.herokuapp.com.",
		}},
	}}
	s := &SubdomainScanner{Client: zone}

	found, dangling, err := s.Scan(context.Background(), "example.com", []string{"cdn", "blog"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(found) != 1 || found[0].CNAME != "edge.example.net" || found[0].ResolvedIP != "192.0.2.10" {
		t.Errorf("found = %+v", found)
	}
	if len(dangling) != 1 {
		t.Fatalf("dangling = %+v, want one", dangling)
	}
	if dangling[0].Host != "blog.example.com" || dangling[0].Status != "NXDOMAIN" {
		t.Errorf("dangling[0] = %+v", dangling[0])
	}
}

func TestSubdomainScan_AllProbesFail(t *testing.T) {
	zone := &stubDNS{answers: map[string]stubAnswer{
		"www.example.com/A":  {err: errors.New("i/o timeout")},
		"mail.example.com/A": {rcode: dns.RcodeServerFailure},
	}}
	s := &SubdomainScanner{Client: zone}

	found, _, err := s.Scan(context.Background(), "example.com", []string{"www", "mail"})
	if !errors.Is(err, engine.ErrProbe) {
		t.Fatalf("err = %v, want ProbeError", err)
	}
	if len(found) != 0 {
		t.Errorf("found = %+v", found)
	}
}

func TestSubdomainScan_NegativeAnswersAreNotErrors(t *testing.T) {
	s := &SubdomainScanner{Client: &stubDNS{}}

	found, _, err := s.Scan(context.Background(), "example.com", []string{"nope1", "nope2"})
	if err != nil {
		t.Fatalf("NXDOMAIN for every candidate is not a failure: %v", err)
	}
	if len(found) != 0 {
		t.Errorf("found = %+v", found)
	}
}
