package recon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vulnverified/recce/internal/engine"
)

var errRateLimited = errors.New("rate limited")

// passiveSource describes one third-party hostname feed.
type passiveSource struct {
	name       string
	urlFormat  string // fmt verb receives the domain
	accept     string
	timeout    time.Duration
	maxBody    int64
	retryDelay time.Duration
	rateMsg    string // plain-text marker some feeds return instead of a 429
	parse      func(body []byte, domain string) ([]string, error)
}

func defaultSources() []passiveSource {
	return []passiveSource{crtshSource(), otxSource(), hackertargetSource()}
}

// Passive implements engine.CandidateSource from certificate transparency
// and passive DNS feeds. Sources run concurrently; a failing source only
// narrows the result.
type Passive struct {
	Client    *http.Client
	UserAgent string
	Log       logrus.FieldLogger

	sources []passiveSource
}

// NewPassive returns a Passive querying crt.sh, AlienVault OTX and
// HackerTarget.
func NewPassive(client *http.Client, userAgent string, log logrus.FieldLogger) *Passive {
	return &Passive{Client: client, UserAgent: userAgent, Log: log, sources: defaultSources()}
}

// Candidates returns the hostnames under domain reported by any source,
// lowercased, deduplicated and sorted. The error is non-nil only when every
// source failed.
func (p *Passive) Candidates(ctx context.Context, domain string) ([]string, error) {
	sources := p.sources
	if sources == nil {
		sources = defaultSources()
	}

	hostSets := make([][]string, len(sources))
	errs := make([]error, len(sources))

	var wg sync.WaitGroup
	for i, src := range sources {
		wg.Add(1)
		go func(i int, src passiveSource) {
			defer wg.Done()
			hosts, err := p.query(ctx, src, domain)
			if err != nil {
				p.logger().WithField("source", src.name).WithError(err).Debug("passive source failed")
				errs[i] = fmt.Errorf("%s: %w", src.name, err)
				return
			}
			hostSets[i] = hosts
		}(i, src)
	}
	wg.Wait()

	failed := 0
	for _, err := range errs {
		if err != nil {
			failed++
		}
	}
	if failed == len(sources) {
		return nil, engine.NewError(engine.KindEnrichmentFailure, "passive enumeration", errors.Join(errs...))
	}

	seen := make(map[string]bool)
	var hosts []string
	for _, set := range hostSets {
		for _, h := range set {
			if !seen[h] {
				seen[h] = true
				hosts = append(hosts, h)
			}
		}
	}
	sort.Strings(hosts)
	return hosts, nil
}

func (p *Passive) query(ctx context.Context, src passiveSource, domain string) ([]string, error) {
	body, err := p.fetch(ctx, src, fmt.Sprintf(src.urlFormat, domain))
	if err != nil {
		return nil, err
	}
	return src.parse(body, domain)
}

// fetch retries once after retryDelay unless the source rate limited us.
func (p *Passive) fetch(ctx context.Context, src passiveSource, url string) ([]byte, error) {
	body, err := p.doRequest(ctx, src, url)
	if err == nil || errors.Is(err, errRateLimited) {
		return body, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(src.retryDelay):
	}
	return p.doRequest(ctx, src, url)
}

func (p *Passive) doRequest(ctx context.Context, src passiveSource, url string) ([]byte, error) {
	if src.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, src.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", p.userAgent())
	if src.accept != "" {
		req.Header.Set("Accept", src.accept)
	}

	resp, err := p.client().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w (429)", errRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, src.maxBody))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if src.rateMsg != "" && strings.Contains(string(body), src.rateMsg) {
		return nil, fmt.Errorf("%w: %s", errRateLimited, src.rateMsg)
	}
	return body, nil
}

// inScope reports whether host is domain or one of its subdomains.
func inScope(host, domain string) bool {
	return host == domain || strings.HasSuffix(host, "."+domain)
}

func (p *Passive) client() *http.Client {
	if p.Client == nil {
		return http.DefaultClient
	}
	return p.Client
}

func (p *Passive) userAgent() string {
	if p.UserAgent == "" {
		return engine.DefaultUserAgent
	}
	return p.UserAgent
}

func (p *Passive) logger() logrus.FieldLogger {
	return orDiscard(p.Log)
}
