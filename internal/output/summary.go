package output

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/vulnverified/recce/internal/engine"
)

// Version is set via ldflags at build time.
var Version = "dev"

// palette holds the styles used by the summary. With noColor every style
// prints plain text.
type palette struct {
	bold  *color.Color
	ok    *color.Color
	warn  *color.Color
	fail  *color.Color
	muted *color.Color
}

func newPalette(noColor bool) palette {
	p := palette{
		bold:  color.New(color.Bold),
		ok:    color.New(color.FgGreen),
		warn:  color.New(color.FgYellow),
		fail:  color.New(color.FgRed),
		muted: color.New(color.FgHiBlack),
	}
	if noColor {
		for _, c := range []*color.Color{p.bold, p.ok, p.warn, p.fail, p.muted} {
			c.DisableColor()
		}
	}
	return p
}

// WriteHeader prints the recce banner.
func WriteHeader(w io.Writer, noColor bool) {
	p := newPalette(noColor)
	fmt.Fprintf(w, "%s\n\n", p.bold.Sprintf("recce %s", Version))
}

// WriteSummary prints the post-run summary: per-section status followed by
// the findings worth a second look.
func WriteSummary(w io.Writer, report *engine.Report, noColor bool) {
	p := newPalette(noColor)
	s := report.Summary()

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s %s\n", p.bold.Sprint("Target:"), report.Target())
	state := p.ok.Sprint(string(report.State()))
	if report.State() == engine.StateTimedOut {
		state = p.warn.Sprint(string(report.State()))
	}
	fmt.Fprintf(w, "%s %s in %.1fs\n", p.bold.Sprint("State:"), state, report.Duration().Seconds())

	fmt.Fprintln(w)
	for _, sec := range report.Sections() {
		status, level := sectionStatus(report, sec)
		c := p.ok
		switch level {
		case levelWarn:
			c = p.warn
		case levelFail:
			c = p.fail
		}
		fmt.Fprintf(w, "  %-12s %s\n", sectionLabel(sec)+":", c.Sprint(status))
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s %d open of %d scanned\n", p.bold.Sprint("Open ports:"), s.OpenPorts, s.PortsScanned)
	fmt.Fprintf(w, "%s %d found\n", p.bold.Sprint("Subdomains:"), s.SubdomainsFound)
	if fp := report.HTTP(); fp != nil {
		fmt.Fprintf(w, "%s %s\n", p.bold.Sprint("Technologies:"), joinOrNone(fp.Technologies))
		fmt.Fprintf(w, "%s %d of %d missing\n", p.bold.Sprint("Security headers:"), s.MissingHeaders, len(fp.SecurityHeaders))
	}

	if t := report.TLS(); t != nil {
		fmt.Fprintf(w, "%s %s\n", p.bold.Sprint("Certificate:"), tlsStatus(p, t))
	}
	if g := report.Geo(); g != nil {
		fmt.Fprintf(w, "%s %s\n", p.bold.Sprint("Location:"), geoLine(g))
	}
	if who := report.Whois(); who != nil {
		fmt.Fprintf(w, "%s %s\n", p.bold.Sprint("Registrar:"), whoisLine(who))
	}

	writeZoneTransfers(w, p, report.ZoneTransfers())

	if dangling := report.Dangling(); len(dangling) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "%s %d potential dangling CNAMEs (possible subdomain takeover)\n", p.warn.Sprint("!"), len(dangling))
		for _, dc := range dangling {
			fmt.Fprintf(w, "  %s -> %s (%s, %s)\n", dc.Host, dc.CNAME, dc.Platform, dc.Status)
		}
	}
}

func writeZoneTransfers(w io.Writer, p palette, transfers []engine.ZoneTransfer) {
	vulnerable := 0
	for _, zt := range transfers {
		if zt.Success {
			vulnerable++
		}
	}
	if vulnerable == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s Zone transfer enabled (%d of %d nameservers vulnerable)\n", p.warn.Sprint("!"), vulnerable, len(transfers))
	for _, zt := range transfers {
		if zt.Success {
			fmt.Fprintf(w, "  %s (%d records)\n", zt.Nameserver, zt.Records)
		}
	}
}

type statusLevel int

const (
	levelOK statusLevel = iota
	levelWarn
	levelFail
)

// sectionStatus renders one line of the section overview, e.g.
// "partial, MX lookup failed" or "timed out".
func sectionStatus(report *engine.Report, sec engine.Section) (string, statusLevel) {
	if err := report.Err(sec); err != nil {
		if errors.Is(err, engine.ErrTimeout) {
			return "timed out", levelWarn
		}
		return "failed: " + errorDetail(err), levelFail
	}

	switch sec {
	case engine.SectionDNS:
		if failed := report.DNS().Failed(); len(failed) > 0 {
			names := make([]string, len(failed))
			for i, rt := range failed {
				names[i] = string(rt)
			}
			return fmt.Sprintf("partial, %s lookup failed", strings.Join(names, ", ")), levelWarn
		}
	case engine.SectionPorts:
		if n := report.Summary().PortErrors; n > 0 {
			return fmt.Sprintf("partial, %d probe errors", n), levelWarn
		}
	}
	return "ok", levelOK
}

// errorDetail drops the kind prefix, which the status line already implies.
func errorDetail(err *engine.Error) string {
	switch {
	case err.Op != "" && err.Err != nil:
		return fmt.Sprintf("%s: %v", err.Op, err.Err)
	case err.Op != "":
		return err.Op
	case err.Err != nil:
		return err.Err.Error()
	}
	return string(err.Kind)
}

func sectionLabel(sec engine.Section) string {
	switch sec {
	case engine.SectionDNS:
		return "DNS"
	case engine.SectionTLS:
		return "TLS"
	case engine.SectionGeoIP:
		return "GeoIP"
	case engine.SectionWhois:
		return "WHOIS"
	}
	s := string(sec)
	return strings.ToUpper(s[:1]) + s[1:]
}

func tlsStatus(p palette, t *engine.TLSInfo) string {
	var notes []string
	switch {
	case t.Expired:
		notes = append(notes, p.fail.Sprintf("expired %d days ago", -t.DaysRemaining))
	case t.DaysRemaining < 30:
		notes = append(notes, p.warn.Sprintf("expires in %d days", t.DaysRemaining))
	default:
		notes = append(notes, fmt.Sprintf("expires in %d days", t.DaysRemaining))
	}
	if t.SelfSigned {
		notes = append(notes, p.warn.Sprint("self-signed"))
	} else if !t.Verified {
		notes = append(notes, p.warn.Sprint("unverified chain"))
	}
	return fmt.Sprintf("%s (%s)", t.Issuer, strings.Join(notes, ", "))
}

func geoLine(g *engine.GeoInfo) string {
	var parts []string
	for _, v := range []string{g.City, g.Region, g.Country} {
		if v != "" {
			parts = append(parts, v)
		}
	}
	line := g.IP
	if len(parts) > 0 {
		line += " " + strings.Join(parts, ", ")
	}
	if g.Org != "" {
		line += " [" + g.Org + "]"
	} else if g.ISP != "" {
		line += " [" + g.ISP + "]"
	}
	return line
}

func whoisLine(who *engine.WhoisInfo) string {
	registrar := who.Registrar
	if registrar == "" {
		registrar = "unknown"
	}
	if !who.Expires.IsZero() {
		return fmt.Sprintf("%s, expires %s", registrar, who.Expires.Format("2006-01-02"))
	}
	return registrar
}

func joinOrNone(ss []string) string {
	if len(ss) == 0 {
		return "none detected"
	}
	return strings.Join(ss, ", ")
}
