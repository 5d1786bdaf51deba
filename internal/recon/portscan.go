package recon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vulnverified/recce/internal/engine"
	"github.com/vulnverified/recce/pkg/ports"
)

// Dialer opens network connections; *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// PortScanner implements engine.PortScanner with TCP connect probes.
type PortScanner struct {
	Dialer      Dialer
	Timeout     time.Duration // per port
	Concurrency int           // 0 means one worker per port, capped at engine.DefaultPortConcurrency
	Rate        float64
	Log         logrus.FieldLogger
}

// Scan attempts one TCP connection per port. A refused connection is a
// closed port; timeouts and other transport failures are tagged ProbeError.
// Results follow the order of ports.
func (s *PortScanner) Scan(ctx context.Context, host string, portList []uint16) ([]engine.PortResult, error) {
	if host == "" {
		return nil, engine.NewError(engine.KindProbeError, "port scan", errors.New("empty host"))
	}
	if len(portList) == 0 {
		return []engine.PortResult{}, nil
	}

	opts := ProbeOptions{
		Concurrency: s.concurrency(len(portList)),
		Timeout:     s.timeout(),
		Rate:        s.Rate,
	}
	outcomes := Probe(ctx, portList, opts, func(ctx context.Context, port uint16) engine.ProbeOutcome {
		return s.probePort(ctx, host, port)
	})

	results := make([]engine.PortResult, 0, len(outcomes))
	for _, o := range outcomes {
		port, err := strconv.ParseUint(o.Item, 10, 16)
		if err != nil {
			continue
		}
		results = append(results, engine.PortResult{
			Port:    uint16(port),
			Open:    o.OK,
			Service: o.Value,
			Err:     o.Err,
		})
	}
	return results, nil
}

func (s *PortScanner) probePort(ctx context.Context, host string, port uint16) engine.ProbeOutcome {
	item := strconv.Itoa(int(port))
	out := engine.ProbeOutcome{Item: item}

	conn, err := s.dialer().DialContext(ctx, "tcp", net.JoinHostPort(host, item))
	if err == nil {
		conn.Close()
		out.OK = true
		out.Value = ports.Service(port)
		return out
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return out
	}

	op := fmt.Sprintf("dial %s", item)
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() || errors.Is(err, context.DeadlineExceeded) {
		op = fmt.Sprintf("dial %s timed out", item)
	}
	s.logger().WithFields(logrus.Fields{"port": port}).WithError(err).Debug("port probe error")
	out.Err = engine.NewError(engine.KindProbeError, op, err)
	return out
}

func (s *PortScanner) dialer() Dialer {
	if s.Dialer == nil {
		return &net.Dialer{}
	}
	return s.Dialer
}

// concurrency bounds the number of sockets open at once. An explicit
// setting is honoured; the default never exceeds DefaultPortConcurrency.
func (s *PortScanner) concurrency(n int) int {
	if s.Concurrency > 0 {
		return min(s.Concurrency, n)
	}
	return min(n, engine.DefaultPortConcurrency)
}

func (s *PortScanner) timeout() time.Duration {
	if s.Timeout <= 0 {
		return engine.DefaultPortTimeout
	}
	return s.Timeout
}

func (s *PortScanner) logger() logrus.FieldLogger {
	return orDiscard(s.Log)
}
