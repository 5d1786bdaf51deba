package recon

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/vulnverified/recce/internal/engine"
)

// HTTPDoer issues HTTP requests; *http.Client satisfies it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

const maxRedirects = 5

// NewHTTPClient returns a client that reads any certificate and follows at
// most five redirects. Request deadlines come from the context.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			TLSClientConfig:     &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // fingerprinting, not trust
			TLSHandshakeTimeout: engine.DefaultTLSTimeout,
			MaxIdleConnsPerHost: 4,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
}

// page is one fetched HTTP response with its body bounded.
type page struct {
	url       string
	finalURL  string
	status    int
	header    http.Header
	cookies   []string
	body      []byte
	truncated bool
}

func targetURL(scheme, host string, port int) string {
	u := url.URL{Scheme: scheme, Host: host, Path: "/"}
	if (scheme == "https" && port != 443) || (scheme == "http" && port != 80) {
		u.Host = host + ":" + strconv.Itoa(port)
	}
	return u.String()
}

// get performs a single GET bounded by timeout, reading at most maxBody
// bytes of the response.
func (f *Fingerprinter) get(ctx context.Context, rawURL string, timeout time.Duration, maxBody int64) (*page, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.userAgent())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,*/*;q=0.8")

	resp, err := f.client().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	p := &page{
		url:    rawURL,
		status: resp.StatusCode,
		header: resp.Header,
		body:   body,
	}
	if int64(len(body)) > maxBody {
		p.body = body[:maxBody]
		p.truncated = true
	}
	if resp.Request != nil && resp.Request.URL != nil {
		if final := resp.Request.URL.String(); final != rawURL {
			p.finalURL = final
		}
	}
	for _, c := range resp.Cookies() {
		p.cookies = append(p.cookies, c.Name)
	}
	return p, nil
}

// orderedHeaders flattens h into one entry per value, sorted by canonical
// name. Values keep their received order.
func orderedHeaders(h http.Header) []engine.Header {
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []engine.Header
	for _, name := range names {
		canonical := http.CanonicalHeaderKey(name)
		for _, v := range h[name] {
			out = append(out, engine.Header{Name: canonical, Value: v})
		}
	}
	return out
}
