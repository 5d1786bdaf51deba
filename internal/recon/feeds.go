package recon

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Passive hostname feeds. Each parser returns in-scope names in the order
// the feed listed them.

func crtshSource() passiveSource {
	return passiveSource{
		name:       "crt.sh",
		urlFormat:  "https://crt.sh/?q=%%25.%s&output=json",
		accept:     "application/json",
		timeout:    30 * time.Second,
		maxBody:    50 << 20,
		retryDelay: 3 * time.Second,
		parse:      parseCertTransparency,
	}
}

func otxSource() passiveSource {
	return passiveSource{
		name:       "otx",
		urlFormat:  "https://otx.alienvault.com/api/v1/indicators/domain/%s/passive_dns",
		accept:     "application/json",
		timeout:    15 * time.Second,
		maxBody:    10 << 20,
		retryDelay: 3 * time.Second,
		parse:      parsePassiveDNS,
	}
}

func hackertargetSource() passiveSource {
	return passiveSource{
		name:       "hackertarget",
		urlFormat:  "https://api.hackertarget.com/hostsearch/?q=%s",
		timeout:    10 * time.Second,
		maxBody:    5 << 20,
		retryDelay: 2 * time.Second,
		rateMsg:    "API count exceeded",
		parse:      parseHostSearch,
	}
}

// parseCertTransparency reads crt.sh certificate entries. One name_value
// can carry several newline-separated names.
func parseCertTransparency(body []byte, domain string) ([]string, error) {
	var certs []struct {
		NameValue string `json:"name_value"`
	}
	if err := json.Unmarshal(body, &certs); err != nil {
		return nil, fmt.Errorf("decode crt.sh response: %w", err)
	}
	set := newHostSet(domain)
	for _, c := range certs {
		for _, name := range strings.Split(c.NameValue, "\n") {
			set.add(name)
		}
	}
	return set.hosts, nil
}

// parsePassiveDNS reads an OTX passive_dns document.
func parsePassiveDNS(body []byte, domain string) ([]string, error) {
	var doc struct {
		Records []struct {
			Hostname string `json:"hostname"`
		} `json:"passive_dns"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode otx response: %w", err)
	}
	set := newHostSet(domain)
	for _, r := range doc.Records {
		set.add(r.Hostname)
	}
	return set.hosts, nil
}

// parseHostSearch reads HackerTarget's "host,ip" lines. Error messages come
// back as plain text without a comma and yield nothing.
func parseHostSearch(body []byte, domain string) ([]string, error) {
	set := newHostSet(domain)
	for _, line := range strings.Split(string(body), "\n") {
		host, _, found := strings.Cut(line, ",")
		if found {
			set.add(host)
		}
	}
	return set.hosts, nil
}

// hostSet keeps normalized in-scope names in first-seen order.
type hostSet struct {
	domain string
	seen   map[string]bool
	hosts  []string
}

func newHostSet(domain string) *hostSet {
	return &hostSet{domain: domain, seen: make(map[string]bool)}
}

// add lowercases name and reduces a wildcard to its base name before the
// scope check.
func (s *hostSet) add(name string) {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.TrimSuffix(strings.TrimPrefix(name, "*."), ".")
	if name == "" || s.seen[name] || !inScope(name, s.domain) {
		return
	}
	s.seen[name] = true
	s.hosts = append(s.hosts, name)
}
