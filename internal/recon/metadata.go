package recon

import (
	"bufio"
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/vulnverified/recce/internal/engine"
)

// parsePageMeta extracts document metadata from an HTML body. It returns
// nil when the body carries none.
func parsePageMeta(body []byte) *engine.PageMeta {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}

	meta := &engine.PageMeta{
		Title:     collapseSpace(doc.Find("title").First().Text()),
		Canonical: attr(doc.Find(`link[rel="canonical"]`), "href"),
		Language:  attr(doc.Find("html"), "lang"),
		Charset:   strings.ToLower(attr(doc.Find("meta[charset]"), "charset")),
	}

	doc.Find("meta").Each(func(_ int, s *goquery.Selection) {
		content := strings.TrimSpace(s.AttrOr("content", ""))
		if content == "" {
			return
		}
		name := strings.ToLower(s.AttrOr("name", ""))
		property := strings.ToLower(s.AttrOr("property", ""))

		switch {
		case name == "description":
			meta.Description = content
		case name == "keywords":
			meta.Keywords = content
		case name == "generator":
			meta.Generator = content
		case name == "viewport":
			meta.Viewport = content
		case strings.EqualFold(s.AttrOr("http-equiv", ""), "content-type") && meta.Charset == "":
			meta.Charset = contentTypeCharset(content)
		case strings.HasPrefix(property, "og:"):
			meta.OpenGraph = setKey(meta.OpenGraph, strings.TrimPrefix(property, "og:"), content)
		case strings.HasPrefix(name, "twitter:"):
			meta.Twitter = setKey(meta.Twitter, strings.TrimPrefix(name, "twitter:"), content)
		}
	})

	if meta.Title == "" && meta.Description == "" && meta.Keywords == "" &&
		meta.Generator == "" && meta.Canonical == "" && meta.Language == "" &&
		meta.Viewport == "" && meta.Charset == "" && meta.OpenGraph == nil && meta.Twitter == nil {
		return nil
	}
	return meta
}

// contentTypeCharset returns the charset parameter of a Content-Type value.
func contentTypeCharset(v string) string {
	for _, param := range strings.Split(v, ";") {
		key, value, ok := strings.Cut(strings.TrimSpace(param), "=")
		if ok && strings.EqualFold(strings.TrimSpace(key), "charset") {
			return strings.ToLower(strings.Trim(strings.TrimSpace(value), `"'`))
		}
	}
	return ""
}

func attr(s *goquery.Selection, name string) string {
	return strings.TrimSpace(s.First().AttrOr(name, ""))
}

func setKey(m map[string]string, key, value string) map[string]string {
	if m == nil {
		m = make(map[string]string)
	}
	if _, ok := m[key]; !ok {
		m[key] = value
	}
	return m
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

const (
	maxSitemapBytes = 512 << 10
	maxSitemapURLs  = 20
)

// parseSitemap counts the <loc> entries of a sitemap or sitemap index and
// keeps the first maxSitemapURLs of them. It returns nil when there are none.
func parseSitemap(body []byte) *engine.SitemapInfo {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}
	info := &engine.SitemapInfo{}
	doc.Find("loc").Each(func(_ int, s *goquery.Selection) {
		loc := strings.TrimSpace(s.Text())
		if loc == "" {
			return
		}
		info.Count++
		if len(info.URLs) < maxSitemapURLs {
			info.URLs = append(info.URLs, loc)
		}
	})
	if info.Count == 0 {
		return nil
	}
	return info
}

// parseRobots collects Disallow paths and Sitemap URLs from a robots.txt
// body, regardless of user-agent group.
func parseRobots(body []byte) *engine.RobotsInfo {
	info := &engine.RobotsInfo{}
	seen := make(map[string]bool)

	sc := bufio.NewScanner(bytes.NewReader(body))
	for sc.Scan() {
		line, _, _ := strings.Cut(sc.Text(), "#")
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "disallow":
			if !seen["d:"+value] {
				seen["d:"+value] = true
				info.Disallow = append(info.Disallow, value)
			}
		case "sitemap":
			if !seen["s:"+value] {
				seen["s:"+value] = true
				info.Sitemaps = append(info.Sitemaps, value)
			}
		}
	}

	if len(info.Disallow) == 0 && len(info.Sitemaps) == 0 {
		return nil
	}
	return info
}
