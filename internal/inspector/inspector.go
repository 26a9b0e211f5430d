// Package inspector performs a single-URL HTTP inspection: host resolution,
// robots.txt check, one GET and header/HTML metadata extraction.
package inspector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"github.com/netinspect/netinspect/internal/config"
	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"
)

// Unknown is reported for headers the server did not send.
const Unknown = "Unknown"

// maxBodySize bounds how much of the page is parsed for metadata.
const maxBodySize = 4 << 20

// ErrInvalidURL is returned when the target is not an absolute http(s) URL.
var ErrInvalidURL = errors.New("invalid URL")

// Result is the outcome of one URL inspection.
type Result struct {
	URL             string          `json:"url"`
	IPAddresses     []string        `json:"ip_addresses"`
	ResponseTimeMS  int64           `json:"response_time_ms"`
	HTTPStatus      int             `json:"http_status"`
	ContentType     string          `json:"content_type"`
	ContentLength   int64           `json:"content_length"`
	Server          string          `json:"server"`
	PoweredBy       string          `json:"powered_by"`
	PageTitle       *string         `json:"page_title"`
	MetaDescription *string         `json:"meta_description"`
	RobotsTxtFound  bool            `json:"robots_txt_found"`
	Technologies    []string        `json:"technologies"`
	SecurityHeaders SecurityHeaders `json:"security_headers"`
}

// SecurityHeaders records which hardening headers the response carried.
type SecurityHeaders struct {
	HSTS          bool `json:"hsts"`
	CSP           bool `json:"csp"`
	XFrameOptions bool `json:"x_frame_options"`
}

// Inspector issues the HTTP requests of an inspection.
type Inspector struct {
	client    *http.Client
	resolver  *net.Resolver
	userAgent string
	logger    *zap.SugaredLogger
}

// New creates an Inspector.
func New(cfg config.InspectorConfig, logger *zap.SugaredLogger) (*Inspector, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	timeout := time.Duration(cfg.Timeout) * time.Millisecond
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Inspector{
		client: &http.Client{
			Jar:     jar,
			Timeout: timeout,
		},
		resolver:  net.DefaultResolver,
		userAgent: cfg.UserAgent,
		logger:    logger,
	}, nil
}

// Inspect analyzes a single URL.
func (i *Inspector) Inspect(ctx context.Context, rawURL string) (*Result, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}

	i.logger.Infow("Inspecting URL", "url", rawURL)

	start := time.Now()
	resp, err := i.get(ctx, u.String())
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", rawURL, err)
	}
	defer func() { _ = resp.Body.Close() }()
	elapsed := time.Since(start)

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	headers := resp.Header
	result := &Result{
		URL:            rawURL,
		IPAddresses:    i.lookupHost(ctx, u.Hostname()),
		ResponseTimeMS: elapsed.Milliseconds(),
		HTTPStatus:     resp.StatusCode,
		ContentType:    headerOr(headers, "Content-Type", Unknown),
		Server:         headerOr(headers, "Server", Unknown),
		PoweredBy:      headerOr(headers, "X-Powered-By", Unknown),
		RobotsTxtFound: i.hasRobots(ctx, u),
		SecurityHeaders: SecurityHeaders{
			HSTS:          headers.Get("Strict-Transport-Security") != "",
			CSP:           headers.Get("Content-Security-Policy") != "",
			XFrameOptions: headers.Get("X-Frame-Options") != "",
		},
	}
	if resp.ContentLength > 0 {
		result.ContentLength = resp.ContentLength
	}

	page := parsePage(body)
	result.PageTitle = page.title
	result.MetaDescription = page.description
	result.Technologies = page.technologies

	i.logger.Debugw("URL inspected",
		"url", rawURL,
		"status", result.HTTPStatus,
		"response_time_ms", result.ResponseTimeMS,
		"technologies", result.Technologies,
	)

	return result, nil
}

func (i *Inspector) get(ctx context.Context, target string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	if i.userAgent != "" {
		req.Header.Set("User-Agent", i.userAgent)
	}
	return i.client.Do(req)
}

func (i *Inspector) lookupHost(ctx context.Context, host string) []string {
	addrs, err := i.resolver.LookupHost(ctx, host)
	if err != nil {
		i.logger.Debugw("Host lookup failed", "host", host, "error", err)
		return []string{}
	}
	return addrs
}

func (i *Inspector) hasRobots(ctx context.Context, u *url.URL) bool {
	robots := u.ResolveReference(&url.URL{Path: "/robots.txt"})
	resp, err := i.get(ctx, robots.String())
	if err != nil {
		i.logger.Debugw("robots.txt request failed", "url", robots.String(), "error", err)
		return false
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
	_ = resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

func headerOr(h http.Header, key, fallback string) string {
	if v := h.Get(key); v != "" {
		return v
	}
	return fallback
}
