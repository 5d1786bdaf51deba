package recon

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/vulnverified/recce/internal/engine"
)

// TLSHandshaker returns the connection state of a completed handshake.
type TLSHandshaker interface {
	Handshake(ctx context.Context, host string, port int) (tls.ConnectionState, error)
}

// TLSDialer handshakes over TCP without verifying the chain so that any
// presented certificate can be read. Verification happens afterwards.
type TLSDialer struct {
	Timeout time.Duration
}

// Handshake connects to host:port, completes a TLS handshake and closes.
func (d *TLSDialer) Handshake(ctx context.Context, host string, port int) (tls.ConnectionState, error) {
	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: d.Timeout},
		Config: &tls.Config{
			ServerName:         host,
			InsecureSkipVerify: true, //nolint:gosec // certificate is inspected, not trusted
		},
	}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return tls.ConnectionState{}, err
	}
	defer conn.Close()
	return conn.(*tls.Conn).ConnectionState(), nil
}

// certInfo describes the leaf certificate of state. An expired certificate
// yields negative DaysRemaining, not an error.
func certInfo(state tls.ConnectionState, host string, now time.Time) (*engine.TLSInfo, error) {
	if len(state.PeerCertificates) == 0 {
		return nil, errors.New("no peer certificate")
	}
	leaf := state.PeerCertificates[0]

	info := &engine.TLSInfo{
		Issuer:        leaf.Issuer.String(),
		Subject:       leaf.Subject.String(),
		DNSNames:      append([]string(nil), leaf.DNSNames...),
		NotBefore:     leaf.NotBefore.UTC(),
		NotAfter:      leaf.NotAfter.UTC(),
		DaysRemaining: daysRemaining(leaf.NotAfter, now),
		Expired:       now.After(leaf.NotAfter),
		SelfSigned:    isSelfSigned(leaf),
		Verified:      verifyChain(state.PeerCertificates, host, now) == nil,
	}
	if state.Version != 0 {
		info.Version = tls.VersionName(state.Version)
		info.CipherSuite = tls.CipherSuiteName(state.CipherSuite)
	}
	return info, nil
}

// daysRemaining is the whole number of days until notAfter, rounded toward
// negative infinity so a certificate that expired an hour ago reports -1.
// It works in Unix seconds because time.Duration saturates at about 292
// years and certificates valid until 9999-12-31 are common.
func daysRemaining(notAfter, now time.Time) int {
	const day = 24 * 60 * 60
	secs := notAfter.Unix() - now.Unix()
	days := secs / day
	if secs%day < 0 {
		days--
	}
	return int(days)
}

func isSelfSigned(cert *x509.Certificate) bool {
	if !bytes.Equal(cert.RawIssuer, cert.RawSubject) {
		return false
	}
	return cert.CheckSignature(cert.SignatureAlgorithm, cert.RawTBSCertificate, cert.Signature) == nil
}

func verifyChain(chain []*x509.Certificate, host string, now time.Time) error {
	intermediates := x509.NewCertPool()
	for _, c := range chain[1:] {
		intermediates.AddCert(c)
	}
	_, err := chain[0].Verify(x509.VerifyOptions{
		DNSName:       host,
		Intermediates: intermediates,
		CurrentTime:   now,
	})
	if err != nil {
		return fmt.Errorf("verify %s: %w", host, err)
	}
	return nil
}
