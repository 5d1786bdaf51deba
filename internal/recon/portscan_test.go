package recon

import (
	"context"
	"errors"
	"net"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/vulnverified/recce/internal/engine"
	"github.com/vulnverified/recce/pkg/ports"
)

func listen(t *testing.T) (uint16, func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()
	return uint16(ln.Addr().(*net.TCPAddr).Port), func() { ln.Close() }
}

func TestPortScan_OpenAndClosed(t *testing.T) {
	open, stop := listen(t)
	defer stop()
	closed := uint16(closedPort(t))

	s := &PortScanner{Timeout: 2 * time.Second}
	results, err := s.Scan(context.Background(), "127.0.0.1", []uint16{closed, open})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}

	if results[0].Port != closed || results[0].Open || results[0].Err != nil {
		t.Errorf("closed port result = %+v", results[0])
	}
	if results[1].Port != open || !results[1].Open || results[1].Err != nil {
		t.Errorf("open port result = %+v", results[1])
	}
}

type stubDialer struct {
	errs map[string]error
}

func (d *stubDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if err, ok := d.errs[address]; ok {
		return nil, err
	}
	client, server := net.Pipe()
	server.Close()
	return client, nil
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestPortScan_ClassifiesErrors(t *testing.T) {
	d := &stubDialer{errs: map[string]error{
		"example.com:23":   timeoutError{},
		"example.com:8080": errors.New("network is unreachable"),
	}}
	s := &PortScanner{Dialer: d}

	results, err := s.Scan(context.Background(), "example.com", []uint16{22, 23, 8080, 22})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 4 {
		t.Fatalf("got %d results, want one per requested port", len(results))
	}

	wantPorts := []uint16{22, 23, 8080, 22}
	for i, r := range results {
		if r.Port != wantPorts[i] {
			t.Errorf("results[%d].Port = %d, want %d", i, r.Port, wantPorts[i])
		}
	}
	if !results[0].Open || results[0].Service != "ssh" {
		t.Errorf("port 22 = %+v", results[0])
	}
	for _, r := range results[1:3] {
		if r.Open || !errors.Is(r.Err, engine.ErrProbe) {
			t.Errorf("port %d = %+v, want ProbeError", r.Port, r)
		}
	}
}

func TestPortScan_EmptyList(t *testing.T) {
	s := &PortScanner{}
	results, err := s.Scan(context.Background(), "127.0.0.1", nil)
	if err != nil || len(results) != 0 {
		t.Fatalf("results = %v, err = %v", results, err)
	}
}

func TestPortScan_RespectsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := &PortScanner{}
	results, err := s.Scan(ctx, "127.0.0.1", []uint16{80, 443})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results with cancelled context, want 0", len(results))
	}
}

// countingDialer reports every address refused except open, and records the
// highest number of dials in flight at once.
type countingDialer struct {
	open     string
	mu       sync.Mutex
	inFlight int
	peak     int
}

func (d *countingDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	d.mu.Lock()
	d.inFlight++
	d.peak = max(d.peak, d.inFlight)
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		d.inFlight--
		d.mu.Unlock()
	}()

	time.Sleep(time.Millisecond)
	if address != d.open {
		return nil, &net.OpError{Op: "dial", Net: network, Err: syscall.ECONNREFUSED}
	}
	client, server := net.Pipe()
	server.Close()
	return client, nil
}

func TestPortScan_DefaultConcurrencyIsCapped(t *testing.T) {
	list, err := ports.Parse("1-5000")
	if err != nil {
		t.Fatalf("failed to parse range: %v", err)
	}
	d := &countingDialer{open: "127.0.0.1:4444"}
	s := &PortScanner{Dialer: d}

	results, err := s.Scan(context.Background(), "127.0.0.1", list)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 5000 {
		t.Fatalf("got %d results, want 5000", len(results))
	}
	if d.peak > engine.DefaultPortConcurrency {
		t.Errorf("peak in-flight dials = %d, want at most %d", d.peak, engine.DefaultPortConcurrency)
	}
	if !results[4443].Open || results[4443].Port != 4444 {
		t.Errorf("port 4444 = %+v, want open", results[4443])
	}
	for _, r := range results[:10] {
		if r.Open || r.Err != nil {
			t.Errorf("port %d = %+v, want closed", r.Port, r)
		}
	}
}

func TestPortScan_ConcurrencySetting(t *testing.T) {
	tests := []struct {
		name        string
		concurrency int
		ports       int
		want        int
	}{
		{"default small list", 0, 3, 3},
		{"default large list", 0, 65535, engine.DefaultPortConcurrency},
		{"explicit", 500, 65535, 500},
		{"explicit above list", 500, 20, 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &PortScanner{Concurrency: tt.concurrency}
			if got := s.concurrency(tt.ports); got != tt.want {
				t.Errorf("concurrency(%d) = %d, want %d", tt.ports, got, tt.want)
			}
		})
	}
}
