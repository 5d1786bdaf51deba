package engine

import (
	"encoding/json"
	"time"
)

// Section names one independently computed part of a Report.
type Section string

const (
	SectionDNS         Section = "dns"
	SectionPorts       Section = "ports"
	SectionSubdomains  Section = "subdomains"
	SectionFingerprint Section = "fingerprint"
	SectionTLS         Section = "tls"
	SectionGeoIP       Section = "geoip"
	SectionWhois       Section = "whois"
)

// State is the terminal state of an Aggregator run.
type State string

const (
	StateCompleted State = "completed"
	StateTimedOut  State = "timed_out"
)

// Report is the immutable result of one reconnaissance run. It is built
// once by Run and only exposes read-only accessors; slices and maps
// returned by accessors are copies.
type Report struct {
	target        string
	state         State
	startedAt     time.Time
	completedAt   time.Time
	dns           DNSRecordSet
	zoneTransfers []ZoneTransfer
	ports         []PortResult
	subdomains    []SubdomainResult
	dangling      []DanglingCNAME
	http          *HTTPFingerprint
	tls           *TLSInfo
	geo           *GeoInfo
	whois         *WhoisInfo
	sections      []Section
	errs          map[Section]*Error
}

func (r *Report) Target() string {
	return r.target
}

func (r *Report) State() State {
	return r.state
}

func (r *Report) StartedAt() time.Time {
	return r.startedAt
}

func (r *Report) CompletedAt() time.Time {
	return r.completedAt
}

func (r *Report) Duration() time.Duration {
	return r.completedAt.Sub(r.startedAt)
}

func (r *Report) DNS() DNSRecordSet {
	return r.dns.clone()
}

func (r *Report) HTTP() *HTTPFingerprint {
	return r.http.clone()
}

func (r *Report) TLS() *TLSInfo {
	return r.tls.clone()
}

func (r *Report) Sections() []Section {
	return append([]Section(nil), r.sections...)
}

func (r *Report) Err(s Section) *Error {
	return r.errs[s]
}

func (r *Report) Ports() []PortResult {
	return append([]PortResult(nil), r.ports...)
}

func (r *Report) Dangling() []DanglingCNAME {
	return append([]DanglingCNAME(nil), r.dangling...)
}

func (r *Report) Subdomains() []SubdomainResult {
	return append([]SubdomainResult(nil), r.subdomains...)
}

// ZoneTransfers returns AXFR attempts, empty unless zone transfers were enabled.
func (r *Report) ZoneTransfers() []ZoneTransfer {
	out := make([]ZoneTransfer, len(r.zoneTransfers))
	for i, zt := range r.zoneTransfers {
		zt.Hostnames = append([]string(nil), zt.Hostnames...)
		out[i] = zt
	}
	return out
}

// Geo returns the GeoIP enrichment, nil when disabled or failed.
func (r *Report) Geo() *GeoInfo {
	if r.geo == nil {
		return nil
	}
	g := *r.geo
	return &g
}

// Whois returns the WHOIS enrichment, nil when disabled or failed.
func (r *Report) Whois() *WhoisInfo {
	if r.whois == nil {
		return nil
	}
	w := *r.whois
	w.NameServers = append([]string(nil), r.whois.NameServers...)
	w.Status = append([]string(nil), r.whois.Status...)
	w.Emails = append([]string(nil), r.whois.Emails...)
	return &w
}

// OpenPorts returns only the ports that accepted a connection.
func (r *Report) OpenPorts() []PortResult {
	var out []PortResult
	for _, p := range r.ports {
		if p.Open {
			out = append(out, p)
		}
	}
	return out
}

// Errors returns a copy of the per-section errors.
func (r *Report) Errors() map[Section]*Error {
	out := make(map[Section]*Error, len(r.errs))
	for k, v := range r.errs {
		out[k] = v
	}
	return out
}

type reportJSON struct {
	Target        string             `json:"target"`
	State         State              `json:"state"`
	StartedAt     time.Time          `json:"started_at"`
	CompletedAt   time.Time          `json:"completed_at"`
	DurationSecs  float64            `json:"duration_secs"`
	DNS           DNSRecordSet       `json:"dns,omitempty"`
	ZoneTransfers []ZoneTransfer     `json:"zone_transfers,omitempty"`
	Ports         []PortResult       `json:"ports"`
	Subdomains    []SubdomainResult  `json:"subdomains"`
	Dangling      []DanglingCNAME    `json:"dangling_cnames,omitempty"`
	HTTP          *HTTPFingerprint   `json:"http,omitempty"`
	TLS           *TLSInfo           `json:"tls,omitempty"`
	Geo           *GeoInfo           `json:"geo,omitempty"`
	Whois         *WhoisInfo         `json:"whois,omitempty"`
	Errors        map[Section]*Error `json:"errors,omitempty"`
}

// MarshalJSON renders the report for exporters.
func (r *Report) MarshalJSON() ([]byte, error) {
	return json.Marshal(reportJSON{
		Target:        r.target,
		State:         r.state,
		StartedAt:     r.startedAt,
		CompletedAt:   r.completedAt,
		DurationSecs:  r.Duration().Seconds(),
		DNS:           r.dns,
		ZoneTransfers: r.zoneTransfers,
		Ports:         r.ports,
		Subdomains:    r.subdomains,
		Dangling:      r.dangling,
		HTTP:          r.http,
		TLS:           r.tls,
		Geo:           r.geo,
		Whois:         r.whois,
		Errors:        r.errs,
	})
}

// Summary provides aggregate counts for printers.
type Summary struct {
	RecordTypes     int
	FailedTypes     int
	PortsScanned    int
	OpenPorts       int
	PortErrors      int
	SubdomainsFound int
	Dangling        int
	Technologies    int
	MissingHeaders  int
}

// Summary computes aggregate counts.
func (r *Report) Summary() Summary {
	s := Summary{
		RecordTypes:     len(r.dns),
		FailedTypes:     len(r.dns.Failed()),
		PortsScanned:    len(r.ports),
		SubdomainsFound: len(r.subdomains),
		Dangling:        len(r.dangling),
	}
	for _, p := range r.ports {
		if p.Open {
			s.OpenPorts++
		}
		if p.Err != nil {
			s.PortErrors++
		}
	}
	if r.http != nil {
		s.Technologies = len(r.http.Technologies)
		for _, h := range r.http.SecurityHeaders {
			if !h.Present {
				s.MissingHeaders++
			}
		}
	}
	return s
}

// reportBuilder accumulates section results. It is owned by the Run
// goroutine, so it needs no locking.
type reportBuilder struct {
	r Report
}

func newReportBuilder(target string, started time.Time, sections []Section) *reportBuilder {
	return &reportBuilder{r: Report{
		target:    target,
		startedAt: started,
		sections:  sections,
		errs:      make(map[Section]*Error),
	}}
}

func (b *reportBuilder) fail(s Section, err *Error) {
	if err != nil {
		b.r.errs[s] = err
	}
}

func (b *reportBuilder) build(state State, completed time.Time) *Report {
	r := b.r
	r.state = state
	r.completedAt = completed
	return &r
}
