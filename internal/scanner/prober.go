package scanner

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"strings"
	"syscall"
	"time"

	"github.com/netinspect/netinspect/internal/config"
)

// NoBannerSentinel is the banner of an open port that sent nothing back in time.
const NoBannerSentinel = "No service information received"

// Outcome classifies a single probe. Only OutcomeOpen reaches a report.
type Outcome int

const (
	OutcomeClosed Outcome = iota
	OutcomeOpen
	OutcomeTimeout
	OutcomeError
	OutcomeSkipped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOpen:
		return "open"
	case OutcomeClosed:
		return "closed"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeError:
		return "error"
	case OutcomeSkipped:
		return "skipped"
	}
	return "unknown"
}

// ProbeResult is the outcome of probing one port.
type ProbeResult struct {
	Port         uint16
	Outcome      Outcome
	Banner       string
	ResponseTime time.Duration
	Err          error
}

// Prober performs bounded TCP connect probes with banner capture.
type Prober struct {
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	BufferSize     int
	Payload        []byte
}

// NewProber creates a Prober from scanner configuration, filling in defaults
// for unset values.
func NewProber(cfg config.ScannerConfig) *Prober {
	p := &Prober{
		ConnectTimeout: time.Duration(cfg.ConnectTimeout) * time.Millisecond,
		ReadTimeout:    time.Duration(cfg.ReadTimeout) * time.Millisecond,
		BufferSize:     cfg.BufferSize,
		Payload:        []byte(cfg.ProbePayload),
	}
	if p.ConnectTimeout <= 0 {
		p.ConnectTimeout = time.Second
	}
	if p.ReadTimeout <= 0 {
		p.ReadTimeout = time.Second
	}
	if p.BufferSize <= 0 {
		p.BufferSize = 512
	}
	return p
}

// Probe connects to host:port. host must be an IP literal; anything else is
// skipped without touching the network. The socket is closed before Probe returns.
func (p *Prober) Probe(ctx context.Context, host string, port uint16) ProbeResult {
	result := ProbeResult{Port: port}

	addr, err := netip.ParseAddr(host)
	if err != nil {
		result.Outcome = OutcomeSkipped
		result.Err = err
		return result
	}
	address := netip.AddrPortFrom(addr, port).String()

	dialer := net.Dialer{Timeout: p.ConnectTimeout}
	start := time.Now()
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		result.Outcome = classifyDialError(err)
		result.Err = err
		return result
	}
	defer func() { _ = conn.Close() }()

	result.ResponseTime = time.Since(start)
	result.Outcome = OutcomeOpen
	result.Banner = p.grabBanner(ctx, conn)
	return result
}

// grabBanner sends the probe payload and reads one response chunk under its own deadline.
func (p *Prober) grabBanner(ctx context.Context, conn net.Conn) string {
	deadline := time.Now().Add(p.ReadTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return NoBannerSentinel
	}

	// Cancellation unblocks the read like a deadline would.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	if len(p.Payload) > 0 {
		_, _ = conn.Write(p.Payload)
	}

	buf := make([]byte, p.BufferSize)
	n, _ := conn.Read(buf)
	if n <= 0 {
		return NoBannerSentinel
	}
	return firstLine(buf[:n])
}

// firstLine decodes data lossily and returns its first line, trimmed.
func firstLine(data []byte) string {
	text := strings.ToValidUTF8(string(data), "\uFFFD")
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	return strings.TrimSpace(text)
}

func classifyDialError(err error) Outcome {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return OutcomeTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return OutcomeTimeout
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return OutcomeClosed
	}
	return OutcomeError
}
