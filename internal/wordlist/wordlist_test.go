package wordlist

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestSubdomains_NonEmpty(t *testing.T) {
	words := Subdomains()
	if len(words) < 100 {
		t.Errorf("expected at least 100 entries, got %d", len(words))
	}
	if words[0] != "www" {
		t.Errorf("first entry = %q, want www", words[0])
	}
}

func TestSubdomains_NoDuplicates(t *testing.T) {
	seen := make(map[string]bool)
	for _, w := range Subdomains() {
		if seen[w] {
			t.Errorf("duplicate entry: %s", w)
		}
		seen[w] = true
	}
}

func TestSubdomains_NoEmptyLines(t *testing.T) {
	for _, w := range Subdomains() {
		if w == "" || strings.HasPrefix(w, "#") {
			t.Errorf("bad entry %q in wordlist", w)
		}
	}
}

func TestParse(t *testing.T) {
	input := "# comment\nWWW\n\n  api  \nwww\nbad label\nmail.\n"
	got, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"www", "api", "mail"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Parse() = %v, want %v", got, want)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "words.txt")
	if err := os.WriteFile(path, []byte("dev\nstaging\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"dev", "staging"}) {
		t.Errorf("Load() = %v", got)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Error("expected error for missing file")
	}
}
