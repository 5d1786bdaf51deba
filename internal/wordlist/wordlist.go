// Package wordlist provides the subdomain candidate labels probed by default
// and loads custom lists from disk.
package wordlist

import (
	"bufio"
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"
)

//go:embed subdomains.txt
var subdomainsTxt string

// Subdomains returns the embedded candidate labels in file order.
func Subdomains() []string {
	words, _ := Parse(strings.NewReader(subdomainsTxt))
	return words
}

// Load reads a custom wordlist file.
func Load(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open wordlist: %w", err)
	}
	defer f.Close()

	words, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("read wordlist %s: %w", path, err)
	}
	return words, nil
}

// Parse reads one label per line. Blank lines and # comments are skipped;
// labels are lowercased, stripped of a trailing dot and deduplicated with
// the first occurrence kept.
func Parse(r io.Reader) ([]string, error) {
	seen := make(map[string]bool)
	var words []string

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		word := strings.TrimSuffix(strings.ToLower(line), ".")
		if word == "" || strings.ContainsAny(word, " \t/:") || seen[word] {
			continue
		}
		seen[word] = true
		words = append(words, word)
	}
	return words, scanner.Err()
}
