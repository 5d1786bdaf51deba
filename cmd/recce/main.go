package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"github.com/vulnverified/recce/internal/config"
	"github.com/vulnverified/recce/internal/engine"
	"github.com/vulnverified/recce/internal/output"
	"github.com/vulnverified/recce/internal/recon"
	"github.com/vulnverified/recce/internal/wordlist"
	"github.com/vulnverified/recce/pkg/ports"
)

// Set via ldflags at build time.
var version = "dev"

// options holds raw flag values. Only flags the user actually set override
// the config file.
type options struct {
	jsonOutput bool
	configPath string
	portsList  string
	wordlist   string
	resolvers  []string
	types      []string
	userAgent  string

	deadline             time.Duration
	dnsTimeout           time.Duration
	portTimeout          time.Duration
	subdomainTimeout     time.Duration
	httpTimeout          time.Duration
	portConcurrency      int
	subdomainConcurrency int
	rate                 float64

	axfr       bool
	passive    bool
	geoip      bool
	whois      bool
	wappalyzer bool

	debug   bool
	noColor bool
	silent  bool
	verbose bool
}

func main() {
	output.Version = version
	if err := newRootCmd(&options{}).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(opts *options) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "recce <target>",
		Short: "Reconnaissance for a single host",
		Long:  "Single-target recon: DNS records, TCP port probing, subdomain discovery, HTTP and TLS fingerprinting, with optional GeoIP and WHOIS enrichment.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Respect NO_COLOR env var.
			if _, ok := os.LookupEnv("NO_COLOR"); ok {
				opts.noColor = true
			}

			log := output.NewLogger(os.Stderr, opts.debug, opts.noColor)
			cfg, err := buildConfig(cmd, opts, args[0])
			if err != nil {
				return err
			}
			cfg.Log = log

			// Set up context with signal handling for clean Ctrl+C.
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt)
			defer signal.Stop(sigCh)
			go func() {
				select {
				case <-sigCh:
					fmt.Fprintln(os.Stderr, "\nInterrupted, cleaning up...")
					cancel()
				case <-ctx.Done():
				}
			}()

			stages, err := recon.NewStages(cfg)
			if err != nil {
				return err
			}

			showProgress := !opts.jsonOutput && !opts.silent
			progress := output.NewProgress(os.Stderr, opts.verbose, !showProgress, opts.noColor)
			if showProgress {
				output.WriteHeader(os.Stderr, opts.noColor)
			}

			report, err := engine.Run(ctx, cfg, stages, progress)
			if err != nil {
				return err
			}

			if showProgress {
				progress.Complete()
			}

			if opts.jsonOutput {
				return output.WriteJSON(os.Stdout, report)
			}
			output.WriteTable(os.Stdout, report, opts.noColor)
			output.WriteSummary(os.Stdout, report, opts.noColor)
			return nil
		},
	}

	f := rootCmd.Flags()
	f.BoolVar(&opts.jsonOutput, "json", false, "Output structured JSON to stdout")
	f.StringVarP(&opts.configPath, "config", "c", "", "YAML config file")
	f.StringVar(&opts.portsList, "ports", "", `Ports to probe: list, ranges, "default" or "top100" (default: 20 common ports)`)
	f.StringVarP(&opts.wordlist, "wordlist", "w", "", "Subdomain wordlist file (default: built-in list)")
	f.StringSliceVar(&opts.resolvers, "resolvers", nil, "DNS servers to query (default: system resolvers)")
	f.StringSliceVar(&opts.types, "types", nil, "DNS record types to resolve (default: all)")
	f.StringVar(&opts.userAgent, "user-agent", "", "User-Agent for HTTP requests")

	f.DurationVar(&opts.deadline, "deadline", engine.DefaultDeadline, "Overall run deadline")
	f.DurationVar(&opts.dnsTimeout, "dns-timeout", engine.DefaultDNSTimeout, "Per-query DNS timeout")
	f.DurationVar(&opts.portTimeout, "port-timeout", engine.DefaultPortTimeout, "Per-port connect timeout")
	f.DurationVar(&opts.subdomainTimeout, "subdomain-timeout", engine.DefaultSubdomainTimeout, "Per-candidate resolution timeout")
	f.DurationVar(&opts.httpTimeout, "http-timeout", engine.DefaultHTTPTimeout, "HTTP request timeout")
	f.IntVar(&opts.portConcurrency, "port-concurrency", 0, "Max concurrent port probes (0: one per port, at most 100)")
	f.IntVar(&opts.subdomainConcurrency, "concurrency", engine.DefaultSubdomainConcurrency, "Max concurrent subdomain probes")
	f.Float64Var(&opts.rate, "rate", 0, "Max probes per second per section (0: unlimited)")

	f.BoolVar(&opts.axfr, "axfr", false, "Test for DNS zone transfers")
	f.BoolVar(&opts.passive, "passive", false, "Add candidates from crt.sh, OTX and HackerTarget")
	f.BoolVar(&opts.geoip, "geoip", false, "Look up GeoIP data for the target address")
	f.BoolVar(&opts.whois, "whois", false, "Query WHOIS for the target domain")
	f.BoolVar(&opts.wappalyzer, "wappalyzer", false, "Run Wappalyzer technology detection")

	f.BoolVar(&opts.debug, "debug", false, "Debug logging to stderr")
	f.BoolVar(&opts.noColor, "no-color", false, "Disable terminal colors")
	f.BoolVar(&opts.silent, "silent", false, "Results only, no progress")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose per-section progress")

	rootCmd.Version = version
	rootCmd.SetVersionTemplate("recce {{.Version}}\n")
	return rootCmd
}

// buildConfig layers defaults, the config file and explicitly set flags,
// in that order.
func buildConfig(cmd *cobra.Command, opts *options, target string) (engine.Config, error) {
	cfg := engine.DefaultConfig()
	cfg.Target = target
	cfg.UserAgent = fmt.Sprintf("recce/%s (+https://github.com/vulnverified/recce)", version)

	if opts.configPath != "" {
		file, err := config.Load(opts.configPath)
		if err != nil {
			return cfg, err
		}
		if err := file.Apply(&cfg); err != nil {
			return cfg, fmt.Errorf("config %s: %w", opts.configPath, err)
		}
	}

	flags := cmd.Flags()
	if flags.Changed("ports") {
		list, err := ports.Parse(opts.portsList)
		if err != nil {
			return cfg, fmt.Errorf("invalid --ports: %w", err)
		}
		cfg.Ports = list
	}
	if flags.Changed("wordlist") {
		words, err := wordlist.Load(opts.wordlist)
		if err != nil {
			return cfg, err
		}
		cfg.Subdomains = words
	}
	if flags.Changed("types") {
		types := make([]engine.RecordType, 0, len(opts.types))
		for _, s := range opts.types {
			rt, err := engine.ParseRecordType(s)
			if err != nil {
				return cfg, fmt.Errorf("invalid --types: %w", err)
			}
			types = append(types, rt)
		}
		cfg.RecordTypes = types
	}
	if flags.Changed("resolvers") {
		cfg.Resolvers = opts.resolvers
	}
	if flags.Changed("user-agent") {
		cfg.UserAgent = opts.userAgent
	}

	durations := map[string]*time.Duration{
		"deadline":          &cfg.Deadline,
		"dns-timeout":       &cfg.DNSTimeout,
		"port-timeout":      &cfg.PortTimeout,
		"subdomain-timeout": &cfg.SubdomainTimeout,
		"http-timeout":      &cfg.HTTPTimeout,
	}
	values := map[string]time.Duration{
		"deadline":          opts.deadline,
		"dns-timeout":       opts.dnsTimeout,
		"port-timeout":      opts.portTimeout,
		"subdomain-timeout": opts.subdomainTimeout,
		"http-timeout":      opts.httpTimeout,
	}
	for name, dst := range durations {
		if flags.Changed(name) {
			*dst = values[name]
		}
	}

	if flags.Changed("port-concurrency") {
		cfg.PortConcurrency = opts.portConcurrency
	}
	if flags.Changed("concurrency") {
		cfg.SubdomainConcurrency = opts.subdomainConcurrency
	}
	if flags.Changed("rate") {
		cfg.ProbeRate = opts.rate
	}

	bools := map[string]struct {
		dst *bool
		val bool
	}{
		"axfr":       {&cfg.AXFR, opts.axfr},
		"passive":    {&cfg.Passive, opts.passive},
		"geoip":      {&cfg.GeoIP, opts.geoip},
		"whois":      {&cfg.Whois, opts.whois},
		"wappalyzer": {&cfg.Wappalyzer, opts.wappalyzer},
	}
	for name, b := range bools {
		if flags.Changed(name) {
			*b.dst = b.val
		}
	}
	return cfg, nil
}
