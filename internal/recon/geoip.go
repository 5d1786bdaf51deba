package recon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/miekg/dns"
	"github.com/sirupsen/logrus"
	"github.com/vulnverified/recce/internal/engine"
	"golang.org/x/time/rate"
)

const (
	ipAPIURL     = "http://ip-api.com/json/%s?fields=status,message,country,countryCode,regionName,city,zip,lat,lon,timezone,isp,org,as,query"
	geoIPTimeout = 10 * time.Second
	geoIPMaxBody = 64 << 10
)

// ipAPILimit matches the ip-api.com free tier of 45 requests per minute.
var ipAPILimit = rate.Every(time.Minute / 45)

type ipAPIResponse struct {
	Status      string  `json:"status"`
	Message     string  `json:"message"`
	Query       string  `json:"query"`
	Country     string  `json:"country"`
	CountryCode string  `json:"countryCode"`
	RegionName  string  `json:"regionName"`
	City        string  `json:"city"`
	Zip         string  `json:"zip"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	Timezone    string  `json:"timezone"`
	ISP         string  `json:"isp"`
	Org         string  `json:"org"`
	AS          string  `json:"as"`
}

// GeoIP implements engine.GeoLocator against ip-api.com. The host's first
// A record is located; an IP literal is used as is.
type GeoIP struct {
	Client    *http.Client
	DNS       DNSClient
	UserAgent string
	URL       string // format with one %s for the address; defaults to ip-api.com
	Limiter   *rate.Limiter
	Log       logrus.FieldLogger
}

// NewGeoIP returns a GeoIP locator sharing one rate limiter across calls.
func NewGeoIP(client *http.Client, resolver DNSClient, userAgent string, log logrus.FieldLogger) *GeoIP {
	return &GeoIP{
		Client:    client,
		DNS:       resolver,
		UserAgent: userAgent,
		Limiter:   rate.NewLimiter(ipAPILimit, 1),
		Log:       log,
	}
}

// Locate resolves host and returns the location of its first address.
func (g *GeoIP) Locate(ctx context.Context, host string) (*engine.GeoInfo, error) {
	ip, err := g.address(ctx, host)
	if err != nil {
		return nil, engine.NewError(engine.KindEnrichmentFailure, "geoip resolve "+host, err)
	}

	if g.Limiter != nil {
		if err := g.Limiter.Wait(ctx); err != nil {
			return nil, engine.NewError(engine.KindEnrichmentFailure, "geoip rate limit", err)
		}
	}

	resp, err := g.query(ctx, ip)
	if err != nil {
		return nil, engine.NewError(engine.KindEnrichmentFailure, "geoip lookup "+ip, err)
	}
	g.logger().WithFields(logrus.Fields{"ip": ip, "country": resp.CountryCode}).Debug("geoip located")

	return &engine.GeoInfo{
		IP:          ip,
		Country:     resp.Country,
		CountryCode: resp.CountryCode,
		Region:      resp.RegionName,
		City:        resp.City,
		Zip:         resp.Zip,
		Latitude:    resp.Lat,
		Longitude:   resp.Lon,
		Timezone:    resp.Timezone,
		ISP:         resp.ISP,
		Org:         resp.Org,
		AS:          resp.AS,
	}, nil
}

func (g *GeoIP) address(ctx context.Context, host string) (string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return ip.String(), nil
	}
	if g.DNS == nil {
		return "", fmt.Errorf("no DNS client")
	}
	msg, err := g.DNS.Query(ctx, host, dns.TypeA)
	if err != nil {
		return "", err
	}
	for _, rr := range msg.Answer {
		if a, ok := rr.(*dns.A); ok {
			return a.A.String(), nil
		}
	}
	return "", fmt.Errorf("no A record for %s", host)
}

func (g *GeoIP) query(ctx context.Context, ip string) (*ipAPIResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, geoIPTimeout)
	defer cancel()

	format := g.URL
	if format == "" {
		format = ipAPIURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf(format, ip), nil)
	if err != nil {
		return nil, err
	}
	if g.UserAgent != "" {
		req.Header.Set("User-Agent", g.UserAgent)
	}

	client := g.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w (429)", errRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var out ipAPIResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, geoIPMaxBody)).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if out.Status != "success" {
		return nil, fmt.Errorf("ip-api: %s", out.Message)
	}
	return &out, nil
}

func (g *GeoIP) logger() logrus.FieldLogger {
	return orDiscard(g.Log)
}
