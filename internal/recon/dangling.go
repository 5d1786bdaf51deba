package recon

import (
	"strings"

	"github.com/vulnverified/recce/internal/engine"
)

// takeoverPlatforms maps CNAME target suffixes to hosting platforms where an
// unclaimed resource can be registered by anyone, who then serves content
// for the aliasing name.
var takeoverPlatforms = []struct {
	suffix   string
	platform string
}{
	{".s3.amazonaws.com", "AWS S3"},
	{".cloudfront.net", "AWS CloudFront"},
	{".elasticbeanstalk.com", "AWS Elastic Beanstalk"},
	{".azurewebsites.net", "Azure App Service"},
	{".trafficmanager.net", "Azure Traffic Manager"},
	{".blob.core.windows.net", "Azure Blob Storage"},
	{".azureedge.net", "Azure CDN"},
	{".github.io", "GitHub Pages"},
	{".herokuapp.com", "Heroku"},
	{".pantheonsite.io", "Pantheon"},
	{".netlify.app", "Netlify"},
	{".ghost.io", "Ghost"},
	{".myshopify.com", "Shopify"},
	{".surge.sh", "Surge"},
	{".readthedocs.io", "Read the Docs"},
	{".fastly.net", "Fastly"},
}

// checkDangling flags host when the lookup behind its alias failed with
// NXDOMAIN or SERVFAIL and the alias points at a known platform.
func checkDangling(host, cname, status string) *engine.DanglingCNAME {
	switch status {
	case "NXDOMAIN", "SERVFAIL":
	default:
		return nil
	}

	target := trimDot(strings.TrimSpace(cname))
	for _, p := range takeoverPlatforms {
		if strings.HasSuffix(target, p.suffix) {
			return &engine.DanglingCNAME{Host: host, CNAME: target, Platform: p.platform, Status: status}
		}
	}
	return nil
}
