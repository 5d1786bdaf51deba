package output

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/vulnverified/recce/internal/engine"
)

// WriteTable renders the report sections as styled terminal tables.
func WriteTable(w io.Writer, report *engine.Report, noColor bool) {
	writeDNSTable(w, report, noColor)
	writePortTable(w, report, noColor)
	writeSubdomainTable(w, report, noColor)
	writeHTTPTable(w, report, noColor)
}

func writeDNSTable(w io.Writer, report *engine.Report, noColor bool) {
	records := report.DNS()
	if len(records) == 0 {
		return
	}
	var rows [][]string
	for _, rt := range records.Types() {
		ans := records[rt]
		if ans.Err != nil {
			rows = append(rows, []string{string(rt), "(lookup failed)"})
			continue
		}
		for _, v := range ans.Values {
			rows = append(rows, []string{string(rt), truncate(v, 70)})
		}
	}
	if len(rows) == 0 {
		fmt.Fprintln(w, "\nNo DNS records found.")
		return
	}
	renderTable(w, "DNS records", []string{"Type", "Value"}, rows, noColor)
}

func writePortTable(w io.Writer, report *engine.Report, noColor bool) {
	if !hasSection(report, engine.SectionPorts) {
		return
	}
	open := report.OpenPorts()
	if len(open) == 0 {
		fmt.Fprintln(w, "\nNo open ports.")
		return
	}
	rows := make([][]string, 0, len(open))
	for _, p := range open {
		rows = append(rows, []string{strconv.Itoa(int(p.Port)), p.Service})
	}
	renderTable(w, "Open ports", []string{"Port", "Service"}, rows, noColor)
}

func writeSubdomainTable(w io.Writer, report *engine.Report, noColor bool) {
	if !hasSection(report, engine.SectionSubdomains) {
		return
	}
	found := report.Subdomains()
	if len(found) == 0 {
		fmt.Fprintln(w, "\nNo subdomains discovered.")
		return
	}
	rows := make([][]string, 0, len(found))
	for _, s := range found {
		rows = append(rows, []string{s.FQDN, s.ResolvedIP, s.CNAME})
	}
	renderTable(w, "Subdomains", []string{"Host", "IP", "CNAME"}, rows, noColor)
}

func writeHTTPTable(w io.Writer, report *engine.Report, noColor bool) {
	fp := report.HTTP()
	if fp == nil {
		return
	}

	fmt.Fprintf(w, "\n%s %d", fp.URL, fp.StatusCode)
	if fp.FinalURL != "" && fp.FinalURL != fp.URL {
		fmt.Fprintf(w, " -> %s", fp.FinalURL)
	}
	fmt.Fprintln(w)
	if fp.Page != nil && fp.Page.Title != "" {
		fmt.Fprintf(w, "Title: %s\n", truncate(fp.Page.Title, 70))
	}
	if fp.Sitemap != nil {
		fmt.Fprintf(w, "Sitemap: %s (%d URLs)\n", fp.Sitemap.Source, fp.Sitemap.Count)
	}

	rows := make([][]string, 0, len(fp.SecurityHeaders))
	for _, h := range fp.SecurityHeaders {
		present := "missing"
		if h.Present {
			present = "present"
		}
		rows = append(rows, []string{h.Name, present, truncate(h.Value, 50)})
	}
	renderTable(w, "Security headers", []string{"Header", "Status", "Value"}, rows, noColor)
}

func renderTable(w io.Writer, title string, headers []string, rows [][]string, noColor bool) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, title)

	if noColor {
		writeSimpleTable(w, headers, rows)
		return
	}

	t := table.New().
		Headers(headers...).
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252"))
			}
			return lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
		})

	for _, row := range rows {
		t.Row(row...)
	}

	fmt.Fprintln(w, t.Render())
}

func writeSimpleTable(w io.Writer, headers []string, rows [][]string) {
	// Calculate column widths.
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	writeSimpleRow(w, widths, headers)

	// Separator.
	for i, width := range widths {
		if i > 0 {
			fmt.Fprint(w, "-+-")
		}
		fmt.Fprint(w, strings.Repeat("-", width))
	}
	fmt.Fprintln(w)

	for _, row := range rows {
		writeSimpleRow(w, widths, row)
	}
}

func writeSimpleRow(w io.Writer, widths []int, cells []string) {
	for i, cell := range cells {
		if i >= len(widths) {
			break
		}
		if i > 0 {
			fmt.Fprint(w, " | ")
		}
		if i == len(cells)-1 {
			fmt.Fprint(w, cell)
			continue
		}
		fmt.Fprintf(w, "%-*s", widths[i], cell)
	}
	fmt.Fprintln(w)
}

func hasSection(report *engine.Report, sec engine.Section) bool {
	for _, s := range report.Sections() {
		if s == sec {
			return true
		}
	}
	return false
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
