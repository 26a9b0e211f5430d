// Package report holds the scan report model and renders reports as console text or JSON files.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Mode selects how a report is rendered.
type Mode string

const (
	ModeText Mode = "text"
	ModeJSON Mode = "json"
)

// ErrUnknownMode is returned by ParseMode for anything other than text or json.
var ErrUnknownMode = errors.New("unknown output mode")

// ParseMode converts a user supplied output mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeText:
		return ModeText, nil
	case ModeJSON:
		return ModeJSON, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// PortResult describes one open port. Closed ports are never materialized.
type PortResult struct {
	Port   uint16
	IsOpen bool
	Banner string
	// Service is the fingerprinted service name. It is shown on the console and
	// published with events but is not part of the JSON file.
	Service string
	// ResponseTime covers connection establishment only.
	ResponseTime time.Duration
}

// ScanReport aggregates the results of one scan invocation.
type ScanReport struct {
	ID         string
	Hostname   string
	IPAddress  string
	OpenPorts  []PortResult
	StartedAt  time.Time
	FinishedAt time.Time
}

// Ports returns the open port numbers in report order.
func (r *ScanReport) Ports() []int {
	ports := make([]int, 0, len(r.OpenPorts))
	for _, p := range r.OpenPorts {
		ports = append(ports, int(p.Port))
	}
	return ports
}

// SortByPort orders the open ports ascending.
func (r *ScanReport) SortByPort() {
	sort.Slice(r.OpenPorts, func(i, j int) bool {
		return r.OpenPorts[i].Port < r.OpenPorts[j].Port
	})
}

type scanDocument struct {
	Hostname  string         `json:"hostname"`
	IPAddress string         `json:"ip_address"`
	OpenPorts []portDocument `json:"open_ports"`
}

type portDocument struct {
	Port           uint16 `json:"port"`
	IsOpen         bool   `json:"is_open"`
	ServiceBanner  string `json:"service_banner"`
	ResponseTimeMS int64  `json:"response_time_ms"`
}

// MarshalJSON encodes the report in the port_scan_<ip>.json file layout.
func (r *ScanReport) MarshalJSON() ([]byte, error) {
	doc := scanDocument{
		Hostname:  r.Hostname,
		IPAddress: r.IPAddress,
		OpenPorts: make([]portDocument, 0, len(r.OpenPorts)),
	}
	for _, p := range r.OpenPorts {
		doc.OpenPorts = append(doc.OpenPorts, portDocument{
			Port:           p.Port,
			IsOpen:         p.IsOpen,
			ServiceBanner:  p.Banner,
			ResponseTimeMS: p.ResponseTime.Milliseconds(),
		})
	}
	return json.Marshal(doc)
}

// UnmarshalJSON decodes the port_scan_<ip>.json file layout.
func (r *ScanReport) UnmarshalJSON(data []byte) error {
	var doc scanDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	r.Hostname = doc.Hostname
	r.IPAddress = doc.IPAddress
	r.OpenPorts = make([]PortResult, 0, len(doc.OpenPorts))
	for _, p := range doc.OpenPorts {
		r.OpenPorts = append(r.OpenPorts, PortResult{
			Port:         p.Port,
			IsOpen:       p.IsOpen,
			Banner:       p.ServiceBanner,
			ResponseTime: time.Duration(p.ResponseTimeMS) * time.Millisecond,
		})
	}
	return nil
}

// ScanFileName is the file a JSON scan report is written to.
func ScanFileName(ip string) string {
	return fmt.Sprintf("port_scan_%s.json", ip)
}

// InspectionFileName is the file a JSON URL inspection report is written to.
const InspectionFileName = "url_report.json"
