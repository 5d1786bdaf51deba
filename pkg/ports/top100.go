// Package ports provides the port lists and service names used by the
// port prober.
package ports

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Default is the well-known list probed when no ports are configured.
var Default = []uint16{
	21, 22, 23, 25, 53, 80, 110, 111, 135, 139,
	143, 443, 445, 993, 995, 1723, 3306, 3389, 5900, 8080,
}

// Top100 holds 100 of the most common TCP ports from nmap frequency data,
// sorted ascending.
var Top100 = normalize([]uint16{
	21, 22, 23, 25, 26, 53, 80, 81, 110, 111,
	113, 135, 139, 143, 144, 179, 199, 443, 445, 465,
	514, 515, 548, 554, 587, 631, 636, 646, 993, 995,
	1025, 1026, 1027, 1028, 1029, 1110, 1433, 1720, 1723, 1755,
	1900, 2000, 2001, 2049, 2121, 2717, 3000, 3128, 3306, 3389,
	3986, 4899, 5000, 5009, 5051, 5060, 5101, 5190, 5357, 5432,
	5631, 5666, 5800, 5900, 6000, 6001, 6646, 7070, 8000, 8008,
	8009, 8080, 8081, 8443, 8888, 9090, 9100, 9999, 10000, 32768,
	49152, 49153, 49154, 49155, 49156, 49157, 1080, 1443, 2082, 2083,
	2086, 2087, 4443, 6379, 6443, 8880, 9200, 9443, 27017, 27018,
})

var services = map[uint16]string{
	21:    "ftp",
	22:    "ssh",
	23:    "telnet",
	25:    "smtp",
	53:    "domain",
	80:    "http",
	81:    "http-alt",
	110:   "pop3",
	111:   "rpcbind",
	135:   "msrpc",
	139:   "netbios-ssn",
	143:   "imap",
	443:   "https",
	445:   "microsoft-ds",
	465:   "smtps",
	587:   "submission",
	631:   "ipp",
	993:   "imaps",
	995:   "pop3s",
	1080:  "socks",
	1433:  "ms-sql-s",
	1723:  "pptp",
	2049:  "nfs",
	3000:  "ppp",
	3128:  "squid-http",
	3306:  "mysql",
	3389:  "ms-wbt-server",
	5060:  "sip",
	5432:  "postgresql",
	5900:  "vnc",
	6379:  "redis",
	6443:  "kubernetes",
	8000:  "http-alt",
	8080:  "http-proxy",
	8443:  "https-alt",
	8888:  "sun-answerbook",
	9200:  "elasticsearch",
	27017: "mongodb",
}

// Service returns the conventional service name for port, or "unknown".
func Service(port uint16) string {
	if s, ok := services[port]; ok {
		return s
	}
	return "unknown"
}

// Parse reads a comma-separated port specification. Entries are single
// ports or inclusive ranges ("8000-8010"); the keywords "default" and
// "top100" expand to those lists. Order is kept and duplicates dropped.
func Parse(spec string) ([]uint16, error) {
	seen := make(map[uint16]bool)
	var out []uint16
	add := func(ps ...uint16) {
		for _, p := range ps {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}

	for _, field := range strings.Split(spec, ",") {
		field = strings.TrimSpace(field)
		switch strings.ToLower(field) {
		case "":
			continue
		case "default":
			add(Default...)
			continue
		case "top100":
			add(Top100...)
			continue
		}

		lo, hi, isRange := strings.Cut(field, "-")
		first, err := parsePort(lo)
		if err != nil {
			return nil, err
		}
		last := first
		if isRange {
			if last, err = parsePort(hi); err != nil {
				return nil, err
			}
			if last < first {
				return nil, fmt.Errorf("invalid port range %q", field)
			}
		}
		for p := uint32(first); p <= uint32(last); p++ {
			add(uint16(p))
		}
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("no ports in %q", spec)
	}
	return out, nil
}

func parsePort(s string) (uint16, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 16)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	return uint16(n), nil
}

func normalize(ps []uint16) []uint16 {
	seen := make(map[uint16]bool, len(ps))
	out := make([]uint16, 0, len(ps))
	for _, p := range ps {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
