package recon

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vulnverified/recce/internal/engine"
)

const sampleWhois = `Domain Name: EXAMPLE.COM
Registry Domain ID: 2336799_DOMAIN_COM-VRSN
Registrar WHOIS Server: whois.iana.org
Updated Date: 2024-08-14T07:01:34Z
Creation Date: 1995-08-14T04:00:00Z
Registry Expiry Date: 2025-08-13T04:00:00Z
Registrar: RESERVED-Internet Assigned Numbers Authority
Registrar IANA ID: 376
Domain Status: clientDeleteProhibited https://icann.org/epp#clientDeleteProhibited
Name Server: A.IANA-SERVERS.NET
Name Server: B.IANA-SERVERS.NET
DNSSEC: signedDelegation
`

type stubWhois struct {
	raw   string
	err   error
	block chan struct{}
}

func (s *stubWhois) Whois(domain string, servers ...string) (string, error) {
	if s.block != nil {
		<-s.block
	}
	return s.raw, s.err
}

func TestWhoisLookup(t *testing.T) {
	w := &Whois{Client: &stubWhois{raw: sampleWhois}}

	info, err := w.Lookup(context.Background(), "example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.Domain != "example.com" {
		t.Errorf("domain = %q", info.Domain)
	}
	if info.Registrar != "RESERVED-Internet Assigned Numbers Authority" {
		t.Errorf("registrar = %q", info.Registrar)
	}
	if want := time.Date(1995, 8, 14, 4, 0, 0, 0, time.UTC); !info.Created.Equal(want) {
		t.Errorf("created = %v, want %v", info.Created, want)
	}
	if len(info.NameServers) != 2 || info.NameServers[0] != "a.iana-servers.net" {
		t.Errorf("name servers = %v", info.NameServers)
	}
}

func TestWhoisLookup_Errors(t *testing.T) {
	w := &Whois{Client: &stubWhois{err: errors.New("connection reset")}}
	if _, err := w.Lookup(context.Background(), "example.com"); !errors.Is(err, engine.ErrEnrichmentFailure) {
		t.Errorf("err = %v, want EnrichmentFailure", err)
	}

	w = &Whois{Client: &stubWhois{raw: "No match for domain \"NOPE.COM\"."}}
	if _, err := w.Lookup(context.Background(), "nope.com"); !errors.Is(err, engine.ErrEnrichmentFailure) {
		t.Errorf("err = %v, want EnrichmentFailure", err)
	}
}

func TestWhoisLookup_RespectsContext(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	w := &Whois{Client: &stubWhois{block: block}}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := w.Lookup(ctx, "example.com")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}
