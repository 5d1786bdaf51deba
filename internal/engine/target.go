package engine

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"unicode"

	"golang.org/x/net/idna"
)

// NormalizeTarget turns user input (bare hostname or URL) into the hostname
// used for every section of a run. Scheme, userinfo, port, path, query and
// fragment are stripped, the name is lowercased and IDNs are converted to
// their punycode form.
func NormalizeTarget(input string) (string, error) {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return "", NewError(KindInvalidTarget, "normalize", fmt.Errorf("empty target"))
	}
	if strings.IndexFunc(raw, unicode.IsSpace) >= 0 {
		return "", NewError(KindInvalidTarget, "normalize", fmt.Errorf("target %q contains whitespace", raw))
	}

	host := raw
	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return "", NewError(KindInvalidTarget, "normalize", err)
		}
		host = u.Host
	} else {
		// Bare input: cut path, query and fragment, then userinfo.
		if i := strings.IndexAny(host, "/?#"); i >= 0 {
			host = host[:i]
		}
		if i := strings.LastIndex(host, "@"); i >= 0 {
			host = host[i+1:]
		}
	}

	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimSuffix(host, ".")
	host = strings.Trim(host, "[]")

	if host == "" {
		return "", NewError(KindInvalidTarget, "normalize", fmt.Errorf("no hostname in %q", raw))
	}
	if net.ParseIP(host) != nil {
		return "", NewError(KindInvalidTarget, "normalize", fmt.Errorf("%q is an IP literal, a hostname is required", host))
	}

	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return "", NewError(KindInvalidTarget, "normalize", fmt.Errorf("invalid hostname %q: %w", host, err))
	}
	if !strings.Contains(ascii, ".") && ascii != "localhost" {
		return "", NewError(KindInvalidTarget, "normalize", fmt.Errorf("%q is not a fully qualified hostname", ascii))
	}
	return strings.ToLower(ascii), nil
}
