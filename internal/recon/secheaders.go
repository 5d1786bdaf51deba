package recon

import (
	"net/http"
	"strings"

	"github.com/vulnverified/recce/internal/engine"
)

var securityHeaderNames = [...]string{
	"Strict-Transport-Security",
	"Content-Security-Policy",
	"X-Content-Type-Options",
	"X-Frame-Options",
	"X-XSS-Protection",
	"Referrer-Policy",
	"Permissions-Policy",
}

// SecurityHeaderNames returns the fixed set of headers every fingerprint
// reports on, in report order.
func SecurityHeaderNames() []string {
	return append([]string(nil), securityHeaderNames[:]...)
}

// classifySecurityHeaders returns one entry per name in the fixed table.
// Repeated headers are joined with ", " as RFC 9110 allows.
func classifySecurityHeaders(h http.Header) []engine.SecurityHeader {
	out := make([]engine.SecurityHeader, len(securityHeaderNames))
	for i, name := range securityHeaderNames {
		out[i] = engine.SecurityHeader{Name: name}
		if values := h.Values(name); len(values) > 0 {
			out[i].Present = true
			out[i].Value = strings.Join(values, ", ")
		}
	}
	return out
}
