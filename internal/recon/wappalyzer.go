package recon

import (
	wappalyzer "github.com/projectdiscovery/wappalyzergo"
)

// NewWappalyzer loads the wappalyzergo fingerprint database as an extra
// TechDetector.
func NewWappalyzer() (TechDetector, error) {
	w, err := wappalyzer.New()
	if err != nil {
		return nil, err
	}
	return w, nil
}
