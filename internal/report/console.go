package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/netinspect/netinspect/internal/inspector"
	"go.uber.org/zap"
)

// Reporter renders finished scans and inspections.
type Reporter interface {
	RenderScan(rep *ScanReport, mode Mode) error
	RenderInspection(res *inspector.Result, mode Mode) error
}

// notFound is printed for page metadata the document did not carry.
const notFound = "Not found"

var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	infoColor    = color.New(color.FgCyan)

	cyan    = color.New(color.FgCyan).SprintFunc()
	green   = color.New(color.FgGreen).SprintFunc()
	red     = color.New(color.FgRed).SprintFunc()
	yellow  = color.New(color.FgYellow).SprintFunc()
	magenta = color.New(color.FgMagenta).SprintFunc()
	blue    = color.New(color.FgBlue).SprintFunc()
)

// Console writes human readable output to a terminal and JSON reports to files.
type Console struct {
	out    io.Writer
	dir    string
	logger *zap.SugaredLogger
}

// NewConsole creates a Console writing text to out and JSON files into dir.
func NewConsole(out io.Writer, dir string, logger *zap.SugaredLogger) *Console {
	return &Console{out: out, dir: dir, logger: logger}
}

// Success prints a bold green line.
func (c *Console) Success(msg string) {
	successColor.Fprintln(c.out, msg)
}

// Error prints a bold red line.
func (c *Console) Error(msg string) {
	errorColor.Fprintln(c.out, msg)
}

// Info prints a cyan line.
func (c *Console) Info(msg string) {
	infoColor.Fprintln(c.out, msg)
}

// RenderScan prints the scan as text or writes port_scan_<ip>.json.
func (c *Console) RenderScan(rep *ScanReport, mode Mode) error {
	switch mode {
	case ModeText:
		c.Success("Hostname: " + rep.Hostname)
		for _, p := range rep.OpenPorts {
			c.printPort(p)
		}
		return nil
	case ModeJSON:
		path, err := WriteJSON(c.dir, ScanFileName(rep.IPAddress), rep)
		if err != nil {
			c.Error("Error while writing JSON file: " + err.Error())
			return err
		}
		c.logger.Infow("Scan report written", "path", path, "open_ports", len(rep.OpenPorts))
		c.Success("Results saved successfully: " + path)
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownMode, mode)
}

func (c *Console) printPort(p PortResult) {
	line := fmt.Sprintf("[%s] Port %s open (response: %s) - Service: %s",
		green("✓"),
		cyan(strconv.Itoa(int(p.Port))),
		yellow(formatDuration(p.ResponseTime.Milliseconds())),
		magenta(p.Banner),
	)
	if p.Service != "" && p.Service != "Unknown" {
		line += " [" + p.Service + "]"
	}
	fmt.Fprintln(c.out, line)
}

// RenderInspection prints the inspection as a sectioned report or writes url_report.json.
func (c *Console) RenderInspection(res *inspector.Result, mode Mode) error {
	switch mode {
	case ModeText:
		c.printInspection(res)
		return nil
	case ModeJSON:
		path, err := WriteJSON(c.dir, InspectionFileName, res)
		if err != nil {
			c.Error("Error while writing JSON file: " + err.Error())
			return err
		}
		c.logger.Infow("Inspection report written", "path", path, "url", res.URL)
		c.Success("JSON report created: " + path)
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownMode, mode)
}

func (c *Console) printInspection(r *inspector.Result) {
	c.section("General")
	c.field("URL:", cyan(r.URL))
	c.field("HTTP Status:", green(strconv.Itoa(r.HTTPStatus)))
	c.field("Response Time:", yellow(formatDuration(r.ResponseTimeMS)))
	c.field("IP Addresses:", magenta(strings.Join(r.IPAddresses, ", ")))

	c.section("Content")
	c.field("Page Title:", cyan(orNotFound(r.PageTitle)))
	c.field("Meta Description:", orNotFound(r.MetaDescription))
	c.field("Content-Type:", r.ContentType)
	c.field("Content-Length:", fmt.Sprintf("%d bytes", r.ContentLength))

	c.section("Server and Technologies")
	c.field("Server:", magenta(r.Server))
	c.field("X-Powered-By:", blue(r.PoweredBy))
	if len(r.Technologies) > 0 {
		c.field("Technologies:", yellow(strings.Join(r.Technologies, ", ")))
	}

	c.section("Security")
	c.field("robots.txt:", flag(r.RobotsTxtFound, "Found", "Not found"))
	c.field("HSTS (Strict-Transport-Security):", flag(r.SecurityHeaders.HSTS, "Enabled", "Disabled"))
	c.field("CSP (Content-Security-Policy):", flag(r.SecurityHeaders.CSP, "Enabled", "Disabled"))
	c.field("X-Frame-Options:", flag(r.SecurityHeaders.XFrameOptions, "Enabled", "Disabled"))
}

func (c *Console) section(title string) {
	fmt.Fprintf(c.out, "\n--- %s ---\n", title)
}

func (c *Console) field(label, value string) {
	fmt.Fprintf(c.out, "%-20s %s\n", label, value)
}

func flag(ok bool, yes, no string) string {
	if ok {
		return green(yes)
	}
	return red(no)
}

func orNotFound(s *string) string {
	if s == nil {
		return notFound
	}
	return *s
}

func formatDuration(ms int64) string {
	return fmt.Sprintf("%d ms", ms)
}
