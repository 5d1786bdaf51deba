package recon

import (
	"net/http"
	"reflect"
	"testing"
)

func headers(kv ...string) http.Header {
	h := http.Header{}
	for i := 0; i+1 < len(kv); i += 2 {
		h.Add(kv[i], kv[i+1])
	}
	return h
}

func TestSignatureSet_Match(t *testing.T) {
	tests := []struct {
		name     string
		data     *probeData
		wantTech []string
	}{
		{
			name:     "nginx from Server header",
			data:     &probeData{headers: headers("server", "nginx/1.24.0")},
			wantTech: []string{"nginx"},
		},
		{
			name:     "WordPress from body",
			data:     &probeData{headers: headers(), body: `<link rel="stylesheet" href="/WP-CONTENT/themes/theme/style.css">`},
			wantTech: []string{"WordPress"},
		},
		{
			name:     "Cloudflare from CF-RAY presence",
			data:     &probeData{headers: headers("Cf-Ray", "abc123")},
			wantTech: []string{"Cloudflare"},
		},
		{
			name:     "Express sets Node.js too",
			data:     &probeData{headers: headers("X-Powered-By", "Express")},
			wantTech: []string{"Express", "Node.js"},
		},
		{
			name:     "Next.js from body",
			data:     &probeData{headers: headers(), body: `<script id="__NEXT_DATA__" type="application/json">{}</script>`},
			wantTech: []string{"Next.js", "React"},
		},
		{
			name:     "Laravel from cookies",
			data:     &probeData{headers: headers(), cookies: []string{"laravel_session"}},
			wantTech: []string{"Laravel"},
		},
		{
			name:     "cookie prefix",
			data:     &probeData{headers: headers(), cookies: []string{"incap_ses_123_456"}},
			wantTech: []string{"Imperva"},
		},
		{
			name:     "body regex",
			data:     &probeData{headers: headers(), body: `<script src="/js/jquery-3.7.1.min.js"></script>`},
			wantTech: []string{"jQuery"},
		},
		{
			name:     "no match",
			data:     &probeData{headers: headers("server", "CustomServer/1.0"), body: "<html><body>Hello</body></html>"},
			wantTech: []string{},
		},
	}

	sigs := DefaultSignatures()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sigs.Match(tt.data)
			if !reflect.DeepEqual(got, tt.wantTech) {
				t.Errorf("Match() = %v, want %v", got, tt.wantTech)
			}
		})
	}
}

func TestSignatureSet_OrderIndependent(t *testing.T) {
	data := &probeData{
		headers: headers("Server", "nginx", "X-Powered-By", "PHP/8.2"),
		body:    `<meta name="generator" content="WordPress 6.4">`,
		cookies: []string{"PHPSESSID"},
	}

	forward, err := ParseSignatures([]byte(`[
		{"name": "PHP", "headers": [{"name": "X-Powered-By", "pattern": "php"}]},
		{"name": "nginx", "headers": [{"name": "Server", "pattern": "nginx"}]},
		{"name": "WordPress", "body": ["wordpress"]},
		{"name": "PHP", "cookies": ["PHPSESSID"]}
	]`))
	if err != nil {
		t.Fatal(err)
	}
	reverse, err := ParseSignatures([]byte(`[
		{"name": "PHP", "cookies": ["PHPSESSID"]},
		{"name": "WordPress", "body": ["wordpress"]},
		{"name": "nginx", "headers": [{"name": "Server", "pattern": "nginx"}]},
		{"name": "PHP", "headers": [{"name": "X-Powered-By", "pattern": "php"}]}
	]`))
	if err != nil {
		t.Fatal(err)
	}

	a, b := forward.Match(data), reverse.Match(data)
	if !reflect.DeepEqual(a, b) {
		t.Errorf("rule order changed result: %v vs %v", a, b)
	}
	if want := []string{"PHP", "WordPress", "nginx"}; !reflect.DeepEqual(a, want) {
		t.Errorf("Match() = %v, want %v", a, want)
	}
}

func TestParseSignatures_RejectsBadRules(t *testing.T) {
	tests := map[string]string{
		"invalid JSON":   `{`,
		"missing name":   `[{"category": "x"}]`,
		"bad header re":  `[{"name": "x", "headers": [{"name": "Server", "pattern": "("}]}]`,
		"bad body regex": `[{"name": "x", "body_regex": ["["]}]`,
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseSignatures([]byte(data)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestDefaultSignatures(t *testing.T) {
	sigs := DefaultSignatures()
	if sigs.Len() < 40 {
		t.Errorf("expected at least 40 rules, got %d", sigs.Len())
	}

	categories := make(map[string]int)
	for _, r := range sigs.rules {
		categories[r.Category]++
	}
	for _, cat := range []string{"Web Server", "Language", "Framework", "CMS", "CDN", "WAF"} {
		if categories[cat] == 0 {
			t.Errorf("missing category: %s", cat)
		}
	}
}
