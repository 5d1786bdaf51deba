// Package config loads recce options from a YAML file onto an engine.Config.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/vulnverified/recce/internal/engine"
	"github.com/vulnverified/recce/internal/wordlist"
	"github.com/vulnverified/recce/pkg/ports"
	"gopkg.in/yaml.v3"
)

// File mirrors the YAML layout. Unset fields leave the engine defaults alone.
type File struct {
	Deadline  Duration `yaml:"deadline"`
	UserAgent string   `yaml:"user_agent"`

	DNS struct {
		Timeout   Duration `yaml:"timeout"`
		Resolvers []string `yaml:"resolvers"`
		Types     []string `yaml:"types"`
		AXFR      *bool    `yaml:"axfr"`
	} `yaml:"dns"`

	Ports struct {
		List        string   `yaml:"list"` // same syntax as --ports
		Timeout     Duration `yaml:"timeout"`
		Concurrency int      `yaml:"concurrency"`
	} `yaml:"ports"`

	Subdomains struct {
		Wordlist    string   `yaml:"wordlist"`
		Timeout     Duration `yaml:"timeout"`
		Concurrency int      `yaml:"concurrency"`
		Passive     *bool    `yaml:"passive"`
	} `yaml:"subdomains"`

	HTTP struct {
		Timeout    Duration `yaml:"timeout"`
		TLSTimeout Duration `yaml:"tls_timeout"`
		MaxBody    int64    `yaml:"max_body"`
		Wappalyzer *bool    `yaml:"wappalyzer"`
	} `yaml:"http"`

	ProbeRate float64 `yaml:"probe_rate"`
	GeoIP     *bool   `yaml:"geoip"`
	Whois     *bool   `yaml:"whois"`
}

// Duration accepts Go duration strings ("1500ms", "30s") in YAML.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	if v < 0 {
		return fmt.Errorf("line %d: negative duration %q", node.Line, s)
	}
	*d = Duration(v)
	return nil
}

// Load reads and decodes the YAML file at path. Unknown keys are rejected.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	f, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return f, nil
}

// Decode reads one YAML document. An empty document yields an empty File.
func Decode(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return &f, nil
}

// Apply copies every set field of f onto cfg.
func (f *File) Apply(cfg *engine.Config) error {
	setDuration(&cfg.Deadline, f.Deadline)
	setString(&cfg.UserAgent, f.UserAgent)

	setDuration(&cfg.DNSTimeout, f.DNS.Timeout)
	if len(f.DNS.Resolvers) > 0 {
		cfg.Resolvers = append([]string(nil), f.DNS.Resolvers...)
	}
	if len(f.DNS.Types) > 0 {
		types := make([]engine.RecordType, 0, len(f.DNS.Types))
		for _, s := range f.DNS.Types {
			rt, err := engine.ParseRecordType(s)
			if err != nil {
				return err
			}
			types = append(types, rt)
		}
		cfg.RecordTypes = types
	}
	setBool(&cfg.AXFR, f.DNS.AXFR)

	if f.Ports.List != "" {
		list, err := ports.Parse(f.Ports.List)
		if err != nil {
			return err
		}
		cfg.Ports = list
	}
	setDuration(&cfg.PortTimeout, f.Ports.Timeout)
	setInt(&cfg.PortConcurrency, f.Ports.Concurrency)

	if f.Subdomains.Wordlist != "" {
		words, err := wordlist.Load(f.Subdomains.Wordlist)
		if err != nil {
			return err
		}
		cfg.Subdomains = words
	}
	setDuration(&cfg.SubdomainTimeout, f.Subdomains.Timeout)
	setInt(&cfg.SubdomainConcurrency, f.Subdomains.Concurrency)
	setBool(&cfg.Passive, f.Subdomains.Passive)

	setDuration(&cfg.HTTPTimeout, f.HTTP.Timeout)
	setDuration(&cfg.TLSTimeout, f.HTTP.TLSTimeout)
	if f.HTTP.MaxBody > 0 {
		cfg.MaxBodyBytes = f.HTTP.MaxBody
	}
	setBool(&cfg.Wappalyzer, f.HTTP.Wappalyzer)

	if f.ProbeRate > 0 {
		cfg.ProbeRate = f.ProbeRate
	}
	setBool(&cfg.GeoIP, f.GeoIP)
	setBool(&cfg.Whois, f.Whois)
	return nil
}

func setDuration(dst *time.Duration, v Duration) {
	if v > 0 {
		*dst = time.Duration(v)
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}
