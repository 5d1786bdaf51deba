package recon

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/miekg/dns"
)

// truncatingServer answers UDP queries with TC set and no records, and
// answers the same query in full over TCP on the same port.
type truncatingServer struct {
	addr string
	udp  atomic.Int32
	tcp  atomic.Int32
}

func startTruncatingServer(t *testing.T) *truncatingServer {
	t.Helper()
	ts := &truncatingServer{}
	answer := mustRR(t, "example.com. 300 IN A 192.0.2.10")

	mux := dns.NewServeMux()
	mux.HandleFunc("example.com.", func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		if w.LocalAddr().Network() == "udp" {
			ts.udp.Add(1)
			m.Truncated = true
		} else {
			ts.tcp.Add(1)
			m.Answer = []dns.RR{answer}
		}
		w.WriteMsg(m)
	})

	var (
		pc  net.PacketConn
		ln  net.Listener
		err error
	)
	for range 5 {
		pc, err = net.ListenPacket("udp", "127.0.0.1:0")
		if err != nil {
			t.Fatal(err)
		}
		ln, err = net.Listen("tcp", pc.LocalAddr().String())
		if err == nil {
			break
		}
		pc.Close()
	}
	if err != nil {
		t.Fatalf("failed to bind UDP and TCP on one port: %v", err)
	}

	for _, srv := range []*dns.Server{
		{PacketConn: pc, Handler: mux},
		{Listener: ln, Handler: mux},
	} {
		started := make(chan struct{})
		srv.NotifyStartedFunc = func() { close(started) }
		go srv.ActivateAndServe()
		<-started
		t.Cleanup(func() { srv.Shutdown() })
	}
	ts.addr = pc.LocalAddr().String()
	return ts
}

// deadUDPAddr returns a loopback address nothing listens on.
func deadUDPAddr(t *testing.T) string {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := pc.LocalAddr().String()
	pc.Close()
	return addr
}

func TestExchanger_FailoverAndTCPRetry(t *testing.T) {
	live := startTruncatingServer(t)
	dead := deadUDPAddr(t)

	e := NewExchanger([]string{dead, live.addr}, time.Second)
	resp, err := e.Query(context.Background(), "example.com", dns.TypeA)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Truncated {
		t.Error("expected the full TCP answer, got the truncated UDP reply")
	}
	if len(resp.Answer) != 1 {
		t.Fatalf("answers = %v, want one A record", resp.Answer)
	}
	if a, ok := resp.Answer[0].(*dns.A); !ok || a.A.String() != "192.0.2.10" {
		t.Errorf("answer = %v", resp.Answer[0])
	}
	if live.udp.Load() != 1 || live.tcp.Load() != 1 {
		t.Errorf("udp queries = %d, tcp queries = %d, want 1 each", live.udp.Load(), live.tcp.Load())
	}
}

func TestExchanger_AllServersFail(t *testing.T) {
	dead := deadUDPAddr(t)

	e := NewExchanger([]string{dead}, 500*time.Millisecond)
	_, err := e.Query(context.Background(), "example.com", dns.TypeMX)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "MX via "+dead) {
		t.Errorf("err = %v, want the failing server named", err)
	}
}

func TestExchanger_NoServers(t *testing.T) {
	e := &Exchanger{}
	if _, err := e.Query(context.Background(), "example.com", dns.TypeA); err == nil {
		t.Fatal("expected error without servers")
	}
}

func TestExchanger_CancelledContext(t *testing.T) {
	live := startTruncatingServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := &Exchanger{Servers: []string{live.addr}, Timeout: time.Second}
	if _, err := e.Query(ctx, "example.com", dns.TypeA); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if live.udp.Load() != 0 {
		t.Errorf("udp queries = %d, want none after cancellation", live.udp.Load())
	}
}

func TestNewExchanger_AddsDefaultPort(t *testing.T) {
	e := NewExchanger([]string{"192.0.2.53", "[2001:db8::53]", "192.0.2.54:5353"}, time.Second)
	want := []string{"192.0.2.53:53", "[2001:db8::53]:53", "192.0.2.54:5353"}
	if strings.Join(e.Servers, ",") != strings.Join(want, ",") {
		t.Errorf("servers = %v, want %v", e.Servers, want)
	}
}
