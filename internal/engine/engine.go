package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// DNSResolver resolves record types for a domain. It returns an error only
// when every requested type failed.
type DNSResolver interface {
	Resolve(ctx context.Context, domain string, types []RecordType) (DNSRecordSet, error)
}

// ZoneTransferer is an optional interface that DNSResolver implementations
// can satisfy to attempt AXFR against the domain's nameservers.
type ZoneTransferer interface {
	ZoneTransfers(ctx context.Context, domain string, nameservers []string) ([]ZoneTransfer, error)
}

// PortScanner probes TCP ports on a host. It returns one result per
// completed attempt, in input order.
type PortScanner interface {
	Scan(ctx context.Context, host string, ports []uint16) ([]PortResult, error)
}

// SubdomainScanner resolves dictionary candidates under a domain and keeps
// the ones that exist.
type SubdomainScanner interface {
	Scan(ctx context.Context, domain string, candidates []string) ([]SubdomainResult, []DanglingCNAME, error)
}

// CandidateSource supplies extra subdomain hostnames, e.g. from passive
// certificate transparency or passive DNS data.
type CandidateSource interface {
	Candidates(ctx context.Context, domain string) ([]string, error)
}

// Fingerprinter fetches the target over HTTP(S) and inspects its TLS
// certificate.
type Fingerprinter interface {
	Fingerprint(ctx context.Context, host string) (*HTTPFingerprint, *TLSInfo, error)
}

// GeoLocator returns geolocation data for a host's address.
type GeoLocator interface {
	Locate(ctx context.Context, host string) (*GeoInfo, error)
}

// WhoisClient returns registration data for a domain.
type WhoisClient interface {
	Lookup(ctx context.Context, domain string) (*WhoisInfo, error)
}

// Stages holds the injectable section implementations. A nil stage drops
// its section from the run.
type Stages struct {
	Resolver      DNSResolver
	Ports         PortScanner
	Subdomains    SubdomainScanner
	Passive       CandidateSource
	Fingerprinter Fingerprinter
	GeoIP         GeoLocator
	Whois         WhoisClient
}

// ProgressReporter is called by the engine to report section progress.
type ProgressReporter interface {
	Stage(num, total int, msg string)
	Detail(msg string)
	Warn(msg string)
}

type nopProgress struct{}

func (nopProgress) Stage(int, int, string) {}
func (nopProgress) Detail(string)          {}
func (nopProgress) Warn(string)            {}

// task is one concurrently running unit of work. It may fill more than one
// section (the fingerprint task fills both fingerprint and tls).
type task struct {
	name     Section
	sections []Section
	msg      string
	run      func(ctx context.Context) func(b *reportBuilder)
}

type taskResult struct {
	name  Section
	apply func(b *reportBuilder)
}

// Run executes one reconnaissance run. The only error it returns is an
// InvalidTarget error; every other failure is recorded in the Report.
func Run(ctx context.Context, cfg Config, stages Stages, progress ProgressReporter) (*Report, error) {
	target, err := NormalizeTarget(cfg.Target)
	if err != nil {
		return nil, err
	}
	if progress == nil {
		progress = nopProgress{}
	}
	log := cfg.logger().WithField("target", target)

	started := time.Now()
	tasks := planTasks(target, cfg, stages, progress, log)
	b := newReportBuilder(target, started, sectionsOf(tasks))

	if cfg.Deadline <= 0 || ctx.Err() != nil {
		cause := ctx.Err()
		if cause == nil {
			cause = context.DeadlineExceeded
		}
		for _, t := range tasks {
			markTimeout(b, t, cause)
		}
		log.WithField("deadline", cfg.Deadline).Debug("deadline already expired, no section started")
		return b.build(StateTimedOut, time.Now()), nil
	}

	runCtx, cancel := context.WithTimeout(ctx, cfg.Deadline)
	defer cancel()

	results := make(chan taskResult, len(tasks))
	pending := make(map[Section]task, len(tasks))
	for i, t := range tasks {
		pending[t.name] = t
		progress.Stage(i+1, len(tasks), t.msg)
		go runTask(runCtx, t, results, log)
	}

	timedOut := false
collect:
	for len(pending) > 0 {
		select {
		case res := <-results:
			res.apply(b)
			delete(pending, res.name)
		case <-runCtx.Done():
			timedOut = true
			break collect
		}
	}

	if timedOut {
		cause := runCtx.Err()
		progress.Warn(fmt.Sprintf("deadline reached with %d section(s) still running", len(pending)))

		// Cancelled sections get a short window to hand back partial data.
		grace := time.NewTimer(cfg.cancelGrace())
		defer grace.Stop()
	drain:
		for len(pending) > 0 {
			select {
			case res := <-results:
				res.apply(b)
				markTimeout(b, pending[res.name], cause)
				delete(pending, res.name)
			case <-grace.C:
				break drain
			}
		}
		for _, t := range pending {
			markTimeout(b, t, cause)
		}
	}

	state := StateCompleted
	if timedOut {
		state = StateTimedOut
	}
	report := b.build(state, time.Now())
	log.WithFields(logrus.Fields{
		"state":   state,
		"elapsed": report.Duration().String(),
	}).Debug("run finished")
	return report, nil
}

func runTask(ctx context.Context, t task, results chan<- taskResult, log logrus.FieldLogger) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			log.WithField("section", t.name).WithError(err).Error("section panicked")
			results <- taskResult{name: t.name, apply: func(b *reportBuilder) {
				for _, s := range t.sections {
					b.fail(s, NewError(sectionKind(s), string(s), err))
				}
			}}
		}
	}()

	apply := t.run(ctx)
	log.WithFields(logrus.Fields{
		"section": t.name,
		"elapsed": time.Since(start).String(),
	}).Debug("section finished")
	results <- taskResult{name: t.name, apply: apply}
}

func markTimeout(b *reportBuilder, t task, cause error) {
	for _, s := range t.sections {
		b.r.errs[s] = NewError(KindTimeout, string(s)+" did not finish before the deadline", cause)
	}
}

func sectionsOf(tasks []task) []Section {
	var out []Section
	for _, t := range tasks {
		out = append(out, t.sections...)
	}
	return out
}

// sectionKind is the error kind a section reports when it fails outright.
func sectionKind(s Section) ErrorKind {
	switch s {
	case SectionDNS:
		return KindDNSFailure
	case SectionPorts, SectionSubdomains:
		return KindProbeError
	case SectionFingerprint:
		return KindFingerprintFailure
	case SectionTLS:
		return KindTLSFailure
	default:
		return KindEnrichmentFailure
	}
}

// asKind returns the *Error of the given kind inside err, or wraps err in one.
func asKind(err error, kind ErrorKind, op string) *Error {
	if err == nil {
		return nil
	}
	if e := FindKind(err, kind); e != nil {
		return e
	}
	return NewError(kind, op, err)
}

func planTasks(target string, cfg Config, stages Stages, progress ProgressReporter, log logrus.FieldLogger) []task {
	var tasks []task

	if stages.Resolver != nil {
		types := cfg.recordTypes()
		tasks = append(tasks, task{
			name:     SectionDNS,
			sections: []Section{SectionDNS},
			msg:      fmt.Sprintf("Resolving %d DNS record types...", len(types)),
			run: func(ctx context.Context) func(*reportBuilder) {
				records, err := stages.Resolver.Resolve(ctx, target, types)
				var transfers []ZoneTransfer
				if zt, ok := stages.Resolver.(ZoneTransferer); ok && cfg.AXFR && err == nil {
					if ns := records[RecordNS].Values; len(ns) > 0 {
						var ztErr error
						transfers, ztErr = zt.ZoneTransfers(ctx, target, ns)
						if ztErr != nil {
							progress.Warn(fmt.Sprintf("zone transfer: %s", ztErr))
						}
					}
				}
				if failed := records.Failed(); len(failed) > 0 && err == nil {
					progress.Warn(fmt.Sprintf("DNS: partial, %s lookup failed", joinTypes(failed)))
				}
				progress.Detail(fmt.Sprintf("DNS: %d record types queried", len(records)))
				return func(b *reportBuilder) {
					b.r.dns = records
					b.r.zoneTransfers = transfers
					b.fail(SectionDNS, asKind(err, KindDNSFailure, "resolve"))
				}
			},
		})
	}

	if stages.Ports != nil {
		tasks = append(tasks, task{
			name:     SectionPorts,
			sections: []Section{SectionPorts},
			msg:      fmt.Sprintf("Scanning %d ports...", len(cfg.Ports)),
			run: func(ctx context.Context) func(*reportBuilder) {
				results, err := stages.Ports.Scan(ctx, target, cfg.Ports)
				if err == nil {
					err = allProbesFailed(len(results), countPortErrors(results), "port")
				}
				open := 0
				for _, r := range results {
					if r.Open {
						open++
					}
				}
				progress.Detail(fmt.Sprintf("Ports: %d open of %d scanned", open, len(results)))
				return func(b *reportBuilder) {
					b.r.ports = results
					b.fail(SectionPorts, asKind(err, KindProbeError, "port scan"))
				}
			},
		})
	}

	if stages.Subdomains != nil {
		tasks = append(tasks, task{
			name:     SectionSubdomains,
			sections: []Section{SectionSubdomains},
			msg:      fmt.Sprintf("Probing %d subdomain candidates...", len(cfg.Subdomains)),
			run: func(ctx context.Context) func(*reportBuilder) {
				found, dangling, scanned, err := sweepSubdomains(ctx, target, cfg, stages, progress, log)
				progress.Detail(fmt.Sprintf("Subdomains: %d of %d candidates resolved", len(found), scanned))
				return func(b *reportBuilder) {
					b.r.subdomains = found
					b.r.dangling = dangling
					b.fail(SectionSubdomains, asKind(err, KindProbeError, "subdomain probe"))
				}
			},
		})
	}

	if stages.Fingerprinter != nil {
		tasks = append(tasks, task{
			name:     SectionFingerprint,
			sections: []Section{SectionFingerprint, SectionTLS},
			msg:      "Fingerprinting HTTP and TLS...",
			run: func(ctx context.Context) func(*reportBuilder) {
				fp, tlsInfo, err := stages.Fingerprinter.Fingerprint(ctx, target)
				if fp != nil {
					progress.Detail(fmt.Sprintf("HTTP: %s %d, %d technologies", fp.Scheme, fp.StatusCode, len(fp.Technologies)))
				}
				return func(b *reportBuilder) {
					b.r.http = fp
					b.r.tls = tlsInfo
					if fp == nil {
						b.fail(SectionFingerprint, asKind(orNil(err), KindFingerprintFailure, "fingerprint"))
					}
					if tlsInfo == nil {
						b.fail(SectionTLS, asKind(orNil(err), KindTLSFailure, "tls inspection"))
					}
				}
			},
		})
	}

	if cfg.GeoIP && stages.GeoIP != nil {
		tasks = append(tasks, task{
			name:     SectionGeoIP,
			sections: []Section{SectionGeoIP},
			msg:      "Looking up GeoIP data...",
			run: func(ctx context.Context) func(*reportBuilder) {
				geo, err := stages.GeoIP.Locate(ctx, target)
				return func(b *reportBuilder) {
					b.r.geo = geo
					b.fail(SectionGeoIP, asKind(err, KindEnrichmentFailure, "geoip"))
				}
			},
		})
	}

	if cfg.Whois && stages.Whois != nil {
		tasks = append(tasks, task{
			name:     SectionWhois,
			sections: []Section{SectionWhois},
			msg:      "Querying WHOIS...",
			run: func(ctx context.Context) func(*reportBuilder) {
				info, err := stages.Whois.Lookup(ctx, target)
				return func(b *reportBuilder) {
					b.r.whois = info
					b.fail(SectionWhois, asKind(err, KindEnrichmentFailure, "whois"))
				}
			},
		})
	}

	return tasks
}

// orNil keeps a nil-result section from ending up without an error when the
// stage forgot to return one.
func orNil(err error) error {
	if err == nil {
		return fmt.Errorf("no result")
	}
	return err
}

func countPortErrors(results []PortResult) int {
	n := 0
	for _, r := range results {
		if r.Err != nil {
			n++
		}
	}
	return n
}

func allProbesFailed(total, failed int, what string) error {
	if total == 0 || failed < total {
		return nil
	}
	return NewError(KindProbeError, fmt.Sprintf("all %d %s probes failed", total, what), nil)
}

func joinTypes(types []RecordType) string {
	parts := make([]string, len(types))
	for i, t := range types {
		parts[i] = string(t)
	}
	return strings.Join(parts, ", ")
}

// Passive sources get 1/passiveShare of the run time left when the
// subdomain section starts.
const passiveShare = 2

// sweepSubdomains scans the dictionary while passive sources are queried.
// Passive collection is bounded by half of the time left; labels it adds
// are scanned in a second batch.
// It returns the number of candidates scanned.
func sweepSubdomains(ctx context.Context, target string, cfg Config, stages Stages, progress ProgressReporter, log logrus.FieldLogger) ([]SubdomainResult, []DanglingCNAME, int, error) {
	words := MergeCandidates(cfg.Subdomains, nil, target)
	if !cfg.Passive || stages.Passive == nil {
		found, dangling, err := stages.Subdomains.Scan(ctx, target, words)
		return found, dangling, len(words), err
	}

	passiveCtx, cancel := context.WithTimeout(ctx, passiveBudget(ctx))
	defer cancel()
	hostsc := make(chan []string, 1)
	go func() {
		hosts, err := stages.Passive.Candidates(passiveCtx, target)
		if err != nil {
			progress.Warn(fmt.Sprintf("passive sources: %s", err))
		}
		hostsc <- hosts
	}()

	found, dangling, err := stages.Subdomains.Scan(ctx, target, words)

	var hosts []string
	select {
	case hosts = <-hostsc:
	case <-ctx.Done():
		return found, dangling, len(words), err
	}
	extra := MergeCandidates(cfg.Subdomains, hosts, target)[len(words):]
	log.WithField("candidates", len(extra)).Debug("passive sources added subdomain candidates")
	if len(extra) == 0 || ctx.Err() != nil {
		return found, dangling, len(words), err
	}

	moreFound, moreDangling, moreErr := stages.Subdomains.Scan(ctx, target, extra)
	found = append(found, moreFound...)
	dangling = append(dangling, moreDangling...)
	if err == nil {
		err = moreErr
	}
	return found, dangling, len(words) + len(extra), err
}

func passiveBudget(ctx context.Context) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return DefaultDeadline / passiveShare
	}
	return time.Until(deadline) / passiveShare
}

// MergeCandidates appends labels derived from passive hostnames to the
// dictionary, keeping dictionary order first and dropping duplicates and
// hosts outside domain.
func MergeCandidates(words, hosts []string, domain string) []string {
	seen := make(map[string]bool, len(words)+len(hosts))
	out := make([]string, 0, len(words)+len(hosts))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	suffix := "." + domain
	for _, h := range hosts {
		h = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(h)), ".")
		if !strings.HasSuffix(h, suffix) {
			continue
		}
		label := strings.TrimSuffix(h, suffix)
		if label == "" || strings.HasPrefix(label, "*") || seen[label] {
			continue
		}
		seen[label] = true
		out = append(out, label)
	}
	return out
}
