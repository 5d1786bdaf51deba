package recon

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/likexian/whois"
	whoisparser "github.com/likexian/whois-parser"
	"github.com/sirupsen/logrus"
	"github.com/vulnverified/recce/internal/engine"
)

// WhoisQuerier returns the raw WHOIS text for a domain. *whois.Client
// satisfies it.
type WhoisQuerier interface {
	Whois(domain string, servers ...string) (string, error)
}

// Whois implements engine.WhoisClient.
type Whois struct {
	Client WhoisQuerier
	Log    logrus.FieldLogger
}

// NewWhois returns a Whois client whose network calls give up after timeout.
func NewWhois(timeout time.Duration, log logrus.FieldLogger) *Whois {
	return &Whois{Client: whois.NewClient().SetTimeout(timeout), Log: log}
}

// Lookup queries and parses registration data for domain. The underlying
// client is not context aware, so a cancelled ctx abandons the query.
func (w *Whois) Lookup(ctx context.Context, domain string) (*engine.WhoisInfo, error) {
	type result struct {
		raw string
		err error
	}
	done := make(chan result, 1)
	go func() {
		raw, err := w.client().Whois(domain)
		done <- result{raw, err}
	}()

	var res result
	select {
	case <-ctx.Done():
		return nil, engine.NewError(engine.KindEnrichmentFailure, "whois "+domain, ctx.Err())
	case res = <-done:
	}
	if res.err != nil {
		return nil, engine.NewError(engine.KindEnrichmentFailure, "whois "+domain, res.err)
	}

	info, err := parseWhois(domain, res.raw)
	if err != nil {
		orDiscard(w.Log).WithField("domain", domain).WithError(err).Debug("whois parse failed")
		return nil, engine.NewError(engine.KindEnrichmentFailure, "whois parse "+domain, err)
	}
	return info, nil
}

func (w *Whois) client() WhoisQuerier {
	if w.Client == nil {
		return whois.DefaultClient
	}
	return w.Client
}

func parseWhois(domain, raw string) (*engine.WhoisInfo, error) {
	parsed, err := whoisparser.Parse(raw)
	if err != nil {
		return nil, err
	}

	info := &engine.WhoisInfo{Domain: domain}
	if d := parsed.Domain; d != nil {
		if d.Domain != "" {
			info.Domain = strings.ToLower(d.Domain)
		}
		info.NameServers = lowerAll(d.NameServers)
		info.Status = d.Status
		info.Created = whoisTime(d.CreatedDateInTime, d.CreatedDate)
		info.Updated = whoisTime(d.UpdatedDateInTime, d.UpdatedDate)
		info.Expires = whoisTime(d.ExpirationDateInTime, d.ExpirationDate)
	}
	if r := parsed.Registrar; r != nil {
		info.Registrar = r.Name
		addEmail(info, r.Email)
	}
	if c := parsed.Registrant; c != nil {
		info.Registrant = firstNonEmpty(c.Organization, c.Name)
		info.Country = c.Country
		addEmail(info, c.Email)
	}
	for _, c := range []*whoisparser.Contact{parsed.Administrative, parsed.Technical} {
		if c != nil {
			addEmail(info, c.Email)
		}
	}
	if info.Registrar == "" && info.Created.IsZero() && len(info.NameServers) == 0 {
		return nil, errors.New("no registration data")
	}
	return info, nil
}

func whoisTime(parsed *time.Time, raw string) time.Time {
	if parsed != nil {
		return parsed.UTC()
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05Z", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func addEmail(info *engine.WhoisInfo, email string) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return
	}
	for _, e := range info.Emails {
		if e == email {
			return
		}
	}
	info.Emails = append(info.Emails, email)
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, strings.ToLower(s))
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
