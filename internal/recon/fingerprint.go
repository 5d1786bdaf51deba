package recon

import (
	"context"
	"errors"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vulnverified/recce/internal/engine"
)

// TechDetector is an additional technology detector run alongside the
// signature rules. *wappalyzer.Wappalyze satisfies it.
type TechDetector interface {
	Fingerprint(headers map[string][]string, body []byte) map[string]struct{}
}

// Fingerprinter implements engine.Fingerprinter. The HTTP fetch and the TLS
// handshake on HTTPSPort run concurrently and fail independently.
type Fingerprinter struct {
	Client      HTTPDoer
	TLS         TLSHandshaker
	UserAgent   string
	Timeout     time.Duration // per HTTP attempt
	TLSTimeout  time.Duration
	MaxBody     int64
	HTTPSPort   int
	HTTPPort    int
	Signatures  *SignatureSet
	Detector    TechDetector // optional
	FetchRobots bool
	Now         func() time.Time
	Log         logrus.FieldLogger
}

// Fingerprint fetches one page from host, HTTPS first then HTTP, and
// inspects the certificate on the HTTPS port. The returned error joins a
// FingerprintFailure when no page was fetched and a TLSFailure when no
// certificate was read; either result may be present without the other.
func (f *Fingerprinter) Fingerprint(ctx context.Context, host string) (*engine.HTTPFingerprint, *engine.TLSInfo, error) {
	var (
		tlsInfo *engine.TLSInfo
		tlsErr  error
		wg      sync.WaitGroup
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		tlsInfo, tlsErr = f.inspectTLS(ctx, host)
	}()

	fp, httpErr := f.fetch(ctx, host)
	wg.Wait()

	return fp, tlsInfo, errors.Join(httpErr, tlsErr)
}

func (f *Fingerprinter) fetch(ctx context.Context, host string) (*engine.HTTPFingerprint, error) {
	attempts := []struct {
		scheme string
		port   int
	}{
		{"https", f.httpsPort()},
		{"http", f.httpPort()},
	}

	var errs []error
	for _, a := range attempts {
		u := targetURL(a.scheme, host, a.port)
		p, err := f.get(ctx, u, f.timeout(), f.maxBody())
		if err != nil {
			f.logger().WithFields(logrus.Fields{"url": u}).WithError(err).Debug("fingerprint attempt failed")
			errs = append(errs, err)
			if ctx.Err() != nil {
				break
			}
			continue
		}

		fp := f.describe(a.scheme, p)
		if f.FetchRobots {
			fp.Robots = f.robots(ctx, a.scheme, host, a.port)
			fp.Sitemap = f.sitemap(ctx, a.scheme, host, a.port, fp.Robots)
		}
		return fp, nil
	}
	return nil, engine.NewError(engine.KindFingerprintFailure, "fetch "+host, errors.Join(errs...))
}

// describe classifies a fetched page. It does no I/O.
func (f *Fingerprinter) describe(scheme string, p *page) *engine.HTTPFingerprint {
	fp := &engine.HTTPFingerprint{
		Scheme:          scheme,
		URL:             p.url,
		FinalURL:        p.finalURL,
		StatusCode:      p.status,
		Headers:         orderedHeaders(p.header),
		SecurityHeaders: classifySecurityHeaders(p.header),
		BodySample:      string(p.body),
		BodyBytes:       len(p.body),
		BodyTruncated:   p.truncated,
		Page:            parsePageMeta(p.body),
	}

	techs := f.signatures().Match(&probeData{headers: p.header, body: fp.BodySample, cookies: p.cookies})
	if f.Detector != nil {
		techs = mergeTechnologies(techs, f.Detector.Fingerprint(p.header, p.body))
	}
	fp.Technologies = techs
	return fp
}

// robots fetches /robots.txt with the scheme that served the page. Any
// failure just leaves Robots empty.
func (f *Fingerprinter) robots(ctx context.Context, scheme, host string, port int) *engine.RobotsInfo {
	p, err := f.get(ctx, strings.TrimSuffix(targetURL(scheme, host, port), "/")+"/robots.txt", f.timeout(), 64<<10)
	if err != nil || p.status != 200 {
		return nil
	}
	if ct := p.header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "text/plain") {
		return nil
	}
	return parseRobots(p.body)
}

// sitemap fetches the first sitemap robots.txt declares on host, falling
// back to /sitemap.xml with the scheme that served the page.
func (f *Fingerprinter) sitemap(ctx context.Context, scheme, host string, port int, robots *engine.RobotsInfo) *engine.SitemapInfo {
	src := strings.TrimSuffix(targetURL(scheme, host, port), "/") + "/sitemap.xml"
	if robots != nil {
		for _, candidate := range robots.Sitemaps {
			if u, err := url.Parse(candidate); err == nil && (u.Scheme == "http" || u.Scheme == "https") && strings.EqualFold(u.Hostname(), host) {
				src = candidate
				break
			}
		}
	}

	p, err := f.get(ctx, src, f.timeout(), maxSitemapBytes)
	if err != nil || p.status != 200 {
		return nil
	}
	info := parseSitemap(p.body)
	if info == nil {
		return nil
	}
	info.Source = src
	return info
}

func (f *Fingerprinter) inspectTLS(ctx context.Context, host string) (*engine.TLSInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, f.tlsTimeout())
	defer cancel()

	state, err := f.handshaker().Handshake(ctx, host, f.httpsPort())
	if err != nil {
		return nil, engine.NewError(engine.KindTLSFailure, "handshake "+host, err)
	}
	info, err := certInfo(state, host, f.now())
	if err != nil {
		return nil, engine.NewError(engine.KindTLSFailure, "read certificate "+host, err)
	}
	return info, nil
}

// mergeTechnologies adds detector labels not already present. Detector
// labels may carry a ":version" suffix which is ignored for the comparison.
func mergeTechnologies(base []string, extra map[string]struct{}) []string {
	seen := make(map[string]bool, len(base))
	for _, t := range base {
		seen[strings.ToLower(t)] = true
	}
	out := append([]string(nil), base...)
	for label := range extra {
		name, _, _ := strings.Cut(label, ":")
		if name == "" || seen[strings.ToLower(name)] {
			continue
		}
		seen[strings.ToLower(name)] = true
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (f *Fingerprinter) client() HTTPDoer {
	if f.Client == nil {
		return NewHTTPClient()
	}
	return f.Client
}

func (f *Fingerprinter) handshaker() TLSHandshaker {
	if f.TLS == nil {
		return &TLSDialer{Timeout: f.tlsTimeout()}
	}
	return f.TLS
}

func (f *Fingerprinter) signatures() *SignatureSet {
	if f.Signatures == nil {
		return DefaultSignatures()
	}
	return f.Signatures
}

func (f *Fingerprinter) userAgent() string {
	if f.UserAgent == "" {
		return engine.DefaultUserAgent
	}
	return f.UserAgent
}

func (f *Fingerprinter) timeout() time.Duration {
	if f.Timeout <= 0 {
		return engine.DefaultHTTPTimeout
	}
	return f.Timeout
}

func (f *Fingerprinter) tlsTimeout() time.Duration {
	if f.TLSTimeout <= 0 {
		return engine.DefaultTLSTimeout
	}
	return f.TLSTimeout
}

func (f *Fingerprinter) maxBody() int64 {
	if f.MaxBody <= 0 {
		return engine.DefaultMaxBodyBytes
	}
	return f.MaxBody
}

func (f *Fingerprinter) httpsPort() int {
	if f.HTTPSPort == 0 {
		return 443
	}
	return f.HTTPSPort
}

func (f *Fingerprinter) httpPort() int {
	if f.HTTPPort == 0 {
		return 80
	}
	return f.HTTPPort
}

func (f *Fingerprinter) now() time.Time {
	if f.Now == nil {
		return time.Now()
	}
	return f.Now()
}

func (f *Fingerprinter) logger() logrus.FieldLogger {
	return orDiscard(f.Log)
}
