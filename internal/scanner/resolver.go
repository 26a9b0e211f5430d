package scanner

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"
	"github.com/netinspect/netinspect/internal/config"
)

// HostnameNotFound is reported when the reverse lookup of a target fails.
const HostnameNotFound = "Hostname not found"

// ErrNoPTR is returned when a lookup succeeds but carries no PTR record.
var ErrNoPTR = errors.New("no PTR record")

// Resolver performs reverse DNS lookups.
type Resolver interface {
	LookupAddr(ctx context.Context, ip string) (string, error)
}

// NewResolver returns a DNSResolver when a nameserver is configured and the
// system resolver otherwise.
func NewResolver(cfg config.ResolverConfig) Resolver {
	timeout := time.Duration(cfg.Timeout) * time.Millisecond
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if cfg.Nameserver != "" {
		return NewDNSResolver(cfg.Nameserver, timeout)
	}
	return &SystemResolver{Resolver: net.DefaultResolver, Timeout: timeout}
}

// SystemResolver uses the operating system's resolver configuration.
type SystemResolver struct {
	Resolver *net.Resolver
	Timeout  time.Duration
}

// LookupAddr returns the first name the address maps to.
func (r *SystemResolver) LookupAddr(ctx context.Context, ip string) (string, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}
	names, err := r.Resolver.LookupAddr(ctx, ip)
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "", ErrNoPTR
	}
	return strings.TrimSuffix(names[0], "."), nil
}

// DNSResolver queries one nameserver directly for PTR records.
type DNSResolver struct {
	server string
	client *dns.Client
}

// NewDNSResolver creates a DNSResolver for server, which may omit the port.
func NewDNSResolver(server string, timeout time.Duration) *DNSResolver {
	if _, _, err := net.SplitHostPort(server); err != nil {
		server = net.JoinHostPort(server, "53")
	}
	return &DNSResolver{
		server: server,
		client: &dns.Client{Timeout: timeout},
	}
}

// LookupAddr returns the first PTR target for ip.
func (r *DNSResolver) LookupAddr(ctx context.Context, ip string) (string, error) {
	arpa, err := dns.ReverseAddr(ip)
	if err != nil {
		return "", err
	}

	msg := new(dns.Msg)
	msg.SetQuestion(arpa, dns.TypePTR)

	resp, _, err := r.client.ExchangeContext(ctx, msg, r.server)
	if err != nil {
		return "", fmt.Errorf("PTR query to %s failed: %w", r.server, err)
	}
	if resp.Rcode != dns.RcodeSuccess {
		return "", fmt.Errorf("PTR query to %s: %s", r.server, dns.RcodeToString[resp.Rcode])
	}
	for _, rr := range resp.Answer {
		if ptr, ok := rr.(*dns.PTR); ok {
			return strings.TrimSuffix(ptr.Ptr, "."), nil
		}
	}
	return "", ErrNoPTR
}

// resolveHostname applies the HostnameNotFound fallback.
func resolveHostname(ctx context.Context, r Resolver, ip string) (string, error) {
	name, err := r.LookupAddr(ctx, ip)
	if err != nil || name == "" {
		if err == nil {
			err = ErrNoPTR
		}
		return HostnameNotFound, err
	}
	return name, nil
}
