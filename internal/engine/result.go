// Package engine defines the recce data model and orchestrates one
// reconnaissance run against a single target.
package engine

import (
	"fmt"
	"strings"
	"time"
)

// RecordType is a DNS record type the resolver knows how to query.
type RecordType string

const (
	RecordA     RecordType = "A"
	RecordAAAA  RecordType = "AAAA"
	RecordMX    RecordType = "MX"
	RecordNS    RecordType = "NS"
	RecordTXT   RecordType = "TXT"
	RecordCNAME RecordType = "CNAME"
	RecordSOA   RecordType = "SOA"
)

// AllRecordTypes lists every supported type in report order.
var AllRecordTypes = []RecordType{RecordA, RecordAAAA, RecordMX, RecordNS, RecordTXT, RecordCNAME, RecordSOA}

// ParseRecordType accepts a case-insensitive record type name.
func ParseRecordType(s string) (RecordType, error) {
	rt := RecordType(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range AllRecordTypes {
		if rt == known {
			return rt, nil
		}
	}
	return "", fmt.Errorf("unsupported record type %q", s)
}

// DNSAnswer is the outcome of querying one record type. Empty Values with a
// nil Err means the type was queried and nothing was found.
type DNSAnswer struct {
	Values []string `json:"values"`
	Err    *Error   `json:"error,omitempty"`
}

// DNSRecordSet maps each queried record type to its answer. A type that was
// not queried has no key.
type DNSRecordSet map[RecordType]DNSAnswer

// Types returns the queried types in AllRecordTypes order.
func (s DNSRecordSet) Types() []RecordType {
	var out []RecordType
	for _, rt := range AllRecordTypes {
		if _, ok := s[rt]; ok {
			out = append(out, rt)
		}
	}
	return out
}

// Failed returns the types whose query failed.
func (s DNSRecordSet) Failed() []RecordType {
	var out []RecordType
	for _, rt := range s.Types() {
		if s[rt].Err != nil {
			out = append(out, rt)
		}
	}
	return out
}

func (s DNSRecordSet) clone() DNSRecordSet {
	if s == nil {
		return nil
	}
	out := make(DNSRecordSet, len(s))
	for k, v := range s {
		out[k] = DNSAnswer{Values: append([]string(nil), v.Values...), Err: v.Err}
	}
	return out
}

// ZoneTransfer is the result of an AXFR attempt against a nameserver.
// Records counts every RR received; Hostnames holds the distinct in-zone
// owner names.
type ZoneTransfer struct {
	Nameserver string   `json:"nameserver"`
	Success    bool     `json:"success"`
	Records    int      `json:"records,omitempty"`
	Hostnames  []string `json:"hostnames,omitempty"`
}

// PortResult is the outcome of one TCP connect attempt.
type PortResult struct {
	Port    uint16 `json:"port"`
	Open    bool   `json:"open"`
	Service string `json:"service,omitempty"`
	Err     *Error `json:"error,omitempty"`
}

// SubdomainResult is a dictionary candidate that resolved.
type SubdomainResult struct {
	Candidate  string `json:"candidate"`
	FQDN       string `json:"fqdn"`
	ResolvedIP string `json:"resolved_ip,omitempty"`
	CNAME      string `json:"cname,omitempty"`
}

// DanglingCNAME represents a potential subdomain takeover candidate.
type DanglingCNAME struct {
	Host     string `json:"host"`
	CNAME    string `json:"cname"`
	Platform string `json:"platform"`
	Status   string `json:"status"`
}

// ProbeOutcome is the result of one bounded network attempt. A negative
// outcome (refused port, NXDOMAIN) has OK false and a nil Err.
type ProbeOutcome struct {
	Item  string
	OK    bool
	Value string // service name for ports, first address for names
	CNAME string // alias seen in a DNS answer, if any
	Err   *Error
}

// Header is one response header; multiple values are joined with ", ".
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// SecurityHeader records presence of one header from the fixed table.
type SecurityHeader struct {
	Name    string `json:"name"`
	Present bool   `json:"present"`
	Value   string `json:"value,omitempty"`
}

// PageMeta is document metadata pulled from an HTML body.
type PageMeta struct {
	Title       string            `json:"title,omitempty"`
	Description string            `json:"description,omitempty"`
	Keywords    string            `json:"keywords,omitempty"`
	Generator   string            `json:"generator,omitempty"`
	Canonical   string            `json:"canonical,omitempty"`
	Language    string            `json:"language,omitempty"`
	Viewport    string            `json:"viewport,omitempty"`
	Charset     string            `json:"charset,omitempty"`
	OpenGraph   map[string]string `json:"open_graph,omitempty"`
	Twitter     map[string]string `json:"twitter,omitempty"`
}

// RobotsInfo is the parsed robots.txt of the target, when one was served.
type RobotsInfo struct {
	Disallow []string `json:"disallow,omitempty"`
	Sitemaps []string `json:"sitemaps,omitempty"`
}

// SitemapInfo summarises the sitemap served by the target. Count covers
// every <loc> entry; URLs keeps only the first few.
type SitemapInfo struct {
	Source string   `json:"source"`
	Count  int      `json:"count"`
	URLs   []string `json:"urls,omitempty"`
}

// HTTPFingerprint describes the single HTTP(S) response fetched from the target.
type HTTPFingerprint struct {
	Scheme          string           `json:"scheme"`
	URL             string           `json:"url"`
	FinalURL        string           `json:"final_url,omitempty"`
	StatusCode      int              `json:"status_code"`
	Headers         []Header         `json:"headers"`
	SecurityHeaders []SecurityHeader `json:"security_headers"`
	Technologies    []string         `json:"technologies"`
	BodySample      string           `json:"-"`
	BodyBytes       int              `json:"body_bytes"`
	BodyTruncated   bool             `json:"body_truncated,omitempty"`
	Page            *PageMeta        `json:"page,omitempty"`
	Robots          *RobotsInfo      `json:"robots,omitempty"`
	Sitemap         *SitemapInfo     `json:"sitemap,omitempty"`
}

// Header returns the value of the named response header, case-insensitively.
func (f *HTTPFingerprint) Header(name string) (string, bool) {
	for _, h := range f.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value, true
		}
	}
	return "", false
}

func (f *HTTPFingerprint) clone() *HTTPFingerprint {
	if f == nil {
		return nil
	}
	c := *f
	c.Headers = append([]Header(nil), f.Headers...)
	c.SecurityHeaders = append([]SecurityHeader(nil), f.SecurityHeaders...)
	c.Technologies = append([]string(nil), f.Technologies...)
	if f.Page != nil {
		p := *f.Page
		p.OpenGraph = cloneMap(f.Page.OpenGraph)
		p.Twitter = cloneMap(f.Page.Twitter)
		c.Page = &p
	}
	if f.Robots != nil {
		r := RobotsInfo{
			Disallow: append([]string(nil), f.Robots.Disallow...),
			Sitemaps: append([]string(nil), f.Robots.Sitemaps...),
		}
		c.Robots = &r
	}
	if f.Sitemap != nil {
		sm := *f.Sitemap
		sm.URLs = append([]string(nil), f.Sitemap.URLs...)
		c.Sitemap = &sm
	}
	return &c
}

// TLSInfo describes the leaf certificate presented on port 443.
type TLSInfo struct {
	Issuer        string    `json:"issuer"`
	Subject       string    `json:"subject"`
	DNSNames      []string  `json:"dns_names,omitempty"`
	NotBefore     time.Time `json:"not_before"`
	NotAfter      time.Time `json:"not_after"`
	DaysRemaining int       `json:"days_remaining"`
	Expired       bool      `json:"expired"`
	SelfSigned    bool      `json:"self_signed"`
	Verified      bool      `json:"verified"`
	Version       string    `json:"version,omitempty"`
	CipherSuite   string    `json:"cipher_suite,omitempty"`
}

func (t *TLSInfo) clone() *TLSInfo {
	if t == nil {
		return nil
	}
	c := *t
	c.DNSNames = append([]string(nil), t.DNSNames...)
	return &c
}

// GeoInfo is pass-through geolocation data for the target's first address.
type GeoInfo struct {
	IP          string  `json:"ip"`
	Country     string  `json:"country,omitempty"`
	CountryCode string  `json:"country_code,omitempty"`
	Region      string  `json:"region,omitempty"`
	City        string  `json:"city,omitempty"`
	Zip         string  `json:"zip,omitempty"`
	Latitude    float64 `json:"latitude,omitempty"`
	Longitude   float64 `json:"longitude,omitempty"`
	Timezone    string  `json:"timezone,omitempty"`
	ISP         string  `json:"isp,omitempty"`
	Org         string  `json:"org,omitempty"`
	AS          string  `json:"as,omitempty"`
}

// WhoisInfo is pass-through registration data for the target domain.
type WhoisInfo struct {
	Domain      string    `json:"domain"`
	Registrar   string    `json:"registrar,omitempty"`
	Created     time.Time `json:"created,omitempty"`
	Updated     time.Time `json:"updated,omitempty"`
	Expires     time.Time `json:"expires,omitempty"`
	NameServers []string  `json:"name_servers,omitempty"`
	Status      []string  `json:"status,omitempty"`
	Registrant  string    `json:"registrant,omitempty"`
	Country     string    `json:"country,omitempty"`
	Emails      []string  `json:"emails,omitempty"`
}

func cloneMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
