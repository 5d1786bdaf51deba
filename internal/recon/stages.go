package recon

import (
	"fmt"
	"net"

	"github.com/vulnverified/recce/internal/engine"
)

// NewStages wires the production collaborators for cfg. Optional sources
// are attached only when cfg enables them.
func NewStages(cfg engine.Config) (engine.Stages, error) {
	log := orDiscard(cfg.Log)
	dnsClient := NewExchanger(cfg.Resolvers, cfg.DNSTimeout)
	httpClient := NewHTTPClient()

	stages := engine.Stages{
		Resolver: &Resolver{Client: dnsClient, Timeout: cfg.DNSTimeout, Log: log.WithField("stage", "dns")},
		Ports: &PortScanner{
			Dialer:      &net.Dialer{},
			Timeout:     cfg.PortTimeout,
			Concurrency: cfg.PortConcurrency,
			Rate:        cfg.ProbeRate,
			Log:         log.WithField("stage", "ports"),
		},
		Subdomains: &SubdomainScanner{
			Client:      dnsClient,
			Timeout:     cfg.SubdomainTimeout,
			Concurrency: cfg.SubdomainConcurrency,
			Rate:        cfg.ProbeRate,
			Log:         log.WithField("stage", "subdomains"),
		},
	}

	fp := &Fingerprinter{
		Client:      httpClient,
		TLS:         &TLSDialer{Timeout: cfg.TLSTimeout},
		UserAgent:   cfg.UserAgent,
		Timeout:     cfg.HTTPTimeout,
		TLSTimeout:  cfg.TLSTimeout,
		MaxBody:     cfg.MaxBodyBytes,
		FetchRobots: true,
		Log:         log.WithField("stage", "fingerprint"),
	}
	if cfg.Wappalyzer {
		detector, err := NewWappalyzer()
		if err != nil {
			return engine.Stages{}, fmt.Errorf("load wappalyzer fingerprints: %w", err)
		}
		fp.Detector = detector
	}
	stages.Fingerprinter = fp

	if cfg.Passive {
		stages.Passive = NewPassive(httpClient, cfg.UserAgent, log.WithField("stage", "passive"))
	}
	if cfg.GeoIP {
		stages.GeoIP = NewGeoIP(httpClient, dnsClient, cfg.UserAgent, log.WithField("stage", "geoip"))
	}
	if cfg.Whois {
		stages.Whois = NewWhois(cfg.HTTPTimeout, log.WithField("stage", "whois"))
	}
	return stages, nil
}
