package recon

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strings"
)

//go:embed signatures.json
var signaturesJSON []byte

// Signature is one declarative technology detection rule. It matches when
// any one of its patterns matches the response.
type Signature struct {
	Name     string          `json:"name"`
	Category string          `json:"category"`
	Headers  []HeaderPattern `json:"headers,omitempty"`
	Body     []string        `json:"body,omitempty"`       // case-insensitive substrings
	BodyRe   []string        `json:"body_regex,omitempty"` // case-insensitive regexps
	Cookies  []string        `json:"cookies,omitempty"`    // names, trailing * for a prefix

	headerRe []*regexp.Regexp
	bodyRe   []*regexp.Regexp
	body     []string
}

// HeaderPattern matches a response header. An empty Pattern matches on
// presence alone.
type HeaderPattern struct {
	Name    string `json:"name"`
	Pattern string `json:"pattern"`
}

// SignatureSet is a compiled, read-only rule list safe for concurrent use.
type SignatureSet struct {
	rules []Signature
}

// ParseSignatures compiles a JSON rule list.
func ParseSignatures(data []byte) (*SignatureSet, error) {
	var rules []Signature
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("parse signatures: %w", err)
	}

	for i := range rules {
		r := &rules[i]
		if r.Name == "" {
			return nil, fmt.Errorf("signature %d: missing name", i)
		}
		r.headerRe = make([]*regexp.Regexp, len(r.Headers))
		for j, h := range r.Headers {
			if h.Pattern == "" {
				continue
			}
			re, err := regexp.Compile("(?i)" + h.Pattern)
			if err != nil {
				return nil, fmt.Errorf("signature %q header %s: %w", r.Name, h.Name, err)
			}
			r.headerRe[j] = re
		}
		for _, p := range r.BodyRe {
			re, err := regexp.Compile("(?i)" + p)
			if err != nil {
				return nil, fmt.Errorf("signature %q body: %w", r.Name, err)
			}
			r.bodyRe = append(r.bodyRe, re)
		}
		for _, s := range r.Body {
			r.body = append(r.body, strings.ToLower(s))
		}
	}
	return &SignatureSet{rules: rules}, nil
}

var defaultSignatures = func() *SignatureSet {
	s, err := ParseSignatures(signaturesJSON)
	if err != nil {
		panic(err)
	}
	return s
}()

// DefaultSignatures returns the built-in rule set.
func DefaultSignatures() *SignatureSet {
	return defaultSignatures
}

// Len reports the number of rules.
func (s *SignatureSet) Len() int {
	return len(s.rules)
}

// probeData is the part of an HTTP response signatures are evaluated against.
type probeData struct {
	headers http.Header
	body    string
	cookies []string
}

// Match returns the labels of every matching rule, sorted and deduplicated.
// Rule order does not affect the result.
func (s *SignatureSet) Match(data *probeData) []string {
	bodyLower := strings.ToLower(data.body)
	seen := make(map[string]bool)
	techs := []string{}
	for i := range s.rules {
		r := &s.rules[i]
		if seen[r.Name] || !r.matches(data, bodyLower) {
			continue
		}
		seen[r.Name] = true
		techs = append(techs, r.Name)
	}
	sort.Strings(techs)
	return techs
}

func (r *Signature) matches(data *probeData, bodyLower string) bool {
	for j, h := range r.Headers {
		for _, v := range data.headers.Values(h.Name) {
			if r.headerRe[j] == nil || r.headerRe[j].MatchString(v) {
				return true
			}
		}
	}
	for _, sub := range r.body {
		if strings.Contains(bodyLower, sub) {
			return true
		}
	}
	for _, re := range r.bodyRe {
		if re.MatchString(data.body) {
			return true
		}
	}
	for _, want := range r.Cookies {
		for _, c := range data.cookies {
			if cookieMatches(want, c) {
				return true
			}
		}
	}
	return false
}

func cookieMatches(pattern, name string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return len(name) >= len(prefix) && strings.EqualFold(name[:len(prefix)], prefix)
	}
	return strings.EqualFold(pattern, name)
}
