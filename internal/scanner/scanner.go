// Package scanner implements the concurrent TCP port scan: port range parsing,
// single-port probing, fan-out orchestration and reverse lookup of the target.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/netinspect/netinspect/internal/config"
	"github.com/netinspect/netinspect/internal/report"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ErrInvalidIP is returned when the scan target is not an IP literal.
var ErrInvalidIP = errors.New("invalid IP address format")

// maxResultBuffer bounds the buffer between probes and the collector.
const maxResultBuffer = 4096

// Phase is a step of a scan.
type Phase string

const (
	PhaseValidating Phase = "validating"
	PhaseScanning   Phase = "port_scanning"
	PhaseReporting  Phase = "reporting"
)

// PortProber probes a single port.
type PortProber interface {
	Probe(ctx context.Context, host string, port uint16) ProbeResult
}

// EventSink receives discoveries while a scan runs.
type EventSink interface {
	PortDiscovered(ctx context.Context, scan *report.ScanReport, port report.PortResult) error
	ScanCompleted(ctx context.Context, scan *report.ScanReport) error
}

// Request describes one scan.
type Request struct {
	// ID identifies the scan; empty generates one.
	ID string
	IP string
	// Ports is a "start-end" range; empty uses the configured default.
	Ports string
	// OnPhase is called when the scan enters a phase.
	OnPhase func(Phase)
	// OnProgress is called from the collecting goroutine after every finished probe.
	OnProgress func(done, total int)
	// OnOpen is called from the collecting goroutine for every open port.
	OnOpen func(report.PortResult)
}

// Scanner performs port scans.
type Scanner struct {
	config        config.ScannerConfig
	prober        PortProber
	resolver      Resolver
	fingerprinter *Fingerprinter
	limiter       *rate.Limiter
	sink          EventSink
	logger        *zap.SugaredLogger
}

// New creates a new Scanner. sink may be nil.
func New(cfg config.ScannerConfig, resolver Resolver, sink EventSink, logger *zap.SugaredLogger) *Scanner {
	s := &Scanner{
		config:        cfg,
		prober:        NewProber(cfg),
		resolver:      resolver,
		fingerprinter: NewFingerprinter(),
		sink:          sink,
		logger:        logger,
	}
	if cfg.RateLimit > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimit)
	}
	return s
}

// Scan validates the target, probes every port of the range concurrently and
// returns the open ports in completion order. If ctx is cancelled the partial
// report is returned together with ctx.Err().
func (s *Scanner) Scan(ctx context.Context, req Request) (*report.ScanReport, error) {
	notify(req.OnPhase, PhaseValidating)

	if err := ValidateIP(req.IP); err != nil {
		return nil, err
	}

	id := req.ID
	if id == "" {
		id = uuid.New().String()
	}
	rep := &report.ScanReport{
		ID:        id,
		IPAddress: req.IP,
		OpenPorts: []report.PortResult{},
		StartedAt: time.Now().UTC(),
	}

	hostname, err := resolveHostname(ctx, s.resolver, req.IP)
	if err != nil {
		s.logger.Debugw("Reverse lookup failed", "ip", req.IP, "error", err)
	}
	rep.Hostname = hostname

	portSpec := req.Ports
	if portSpec == "" {
		portSpec = s.config.DefaultPorts
	}
	rng := ParsePortRange(portSpec)
	total := rng.Len()

	notify(req.OnPhase, PhaseScanning)
	s.logger.Infow("Starting port scan",
		"scan_id", rep.ID,
		"ip", req.IP,
		"hostname", rep.Hostname,
		"start_port", rng.Start,
		"end_port", rng.End,
		"concurrency", s.config.Concurrency,
	)

	done := 0
	for res := range s.fanOut(ctx, req.IP, rng) {
		done++
		if req.OnProgress != nil {
			req.OnProgress(done, total)
		}
		if res.Outcome != OutcomeOpen {
			continue
		}

		port := report.PortResult{
			Port:         res.Port,
			IsOpen:       true,
			Banner:       res.Banner,
			Service:      s.fingerprinter.Identify(res.Port, res.Banner).Name,
			ResponseTime: res.ResponseTime,
		}
		rep.OpenPorts = append(rep.OpenPorts, port)
		s.logger.Debugw("Open port", "ip", req.IP, "port", port.Port, "service", port.Service)
		if req.OnOpen != nil {
			req.OnOpen(port)
		}

		if s.sink != nil {
			if err := s.sink.PortDiscovered(ctx, rep, port); err != nil {
				s.logger.Errorw("Failed to publish port", "port", port.Port, "error", err)
			}
		}
	}

	notify(req.OnPhase, PhaseReporting)
	if s.config.SortResults {
		rep.SortByPort()
	}
	rep.FinishedAt = time.Now().UTC()

	s.logger.Infow("Port scan finished",
		"scan_id", rep.ID,
		"ip", req.IP,
		"probed", done,
		"open_ports", len(rep.OpenPorts),
		"duration", rep.FinishedAt.Sub(rep.StartedAt),
	)

	if err := ctx.Err(); err != nil {
		return rep, err
	}

	if s.sink != nil {
		if err := s.sink.ScanCompleted(ctx, rep); err != nil {
			s.logger.Errorw("Failed to publish scan completion", "scan_id", rep.ID, "error", err)
		}
	}
	return rep, nil
}

// fanOut launches one probe per port and streams results in completion order.
// The channel is closed once every launched probe has finished. Cancelling ctx
// stops further launches.
func (s *Scanner) fanOut(ctx context.Context, ip string, rng Range) <-chan ProbeResult {
	buffer := rng.Len()
	if buffer > maxResultBuffer {
		buffer = maxResultBuffer
	}
	results := make(chan ProbeResult, buffer)

	var sem *semaphore.Weighted
	if s.config.Concurrency > 0 {
		sem = semaphore.NewWeighted(int64(s.config.Concurrency))
	}

	go func() {
		var wg sync.WaitGroup
		defer close(results)
		defer wg.Wait()

		for p := int(rng.Start); p <= int(rng.End); p++ {
			if ctx.Err() != nil {
				return
			}
			if s.limiter != nil {
				if err := s.limiter.Wait(ctx); err != nil {
					return
				}
			}
			if sem != nil {
				if err := sem.Acquire(ctx, 1); err != nil {
					return
				}
			}

			wg.Add(1)
			go func(port uint16) {
				defer wg.Done()
				if sem != nil {
					defer sem.Release(1)
				}
				results <- s.probe(ctx, ip, port)
			}(uint16(p))
		}
	}()

	return results
}

// probe runs one probe, converting a panic into an error outcome.
func (s *Scanner) probe(ctx context.Context, ip string, port uint16) (res ProbeResult) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warnw("Probe panicked", "ip", ip, "port", port, "panic", r)
			res = ProbeResult{Port: port, Outcome: OutcomeError, Err: fmt.Errorf("probe panicked: %v", r)}
		}
	}()
	return s.prober.Probe(ctx, ip, port)
}

// ValidateIP reports whether ip is an IPv4 or IPv6 literal.
func ValidateIP(ip string) error {
	if _, err := netip.ParseAddr(ip); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidIP, ip)
	}
	return nil
}

func notify(fn func(Phase), p Phase) {
	if fn != nil {
		fn(p)
	}
}
