package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/netinspect/netinspect/internal/inspector"
	"go.uber.org/zap"
)

func init() {
	color.NoColor = true
}

func sampleReport() *ScanReport {
	return &ScanReport{
		Hostname:  "router.lan",
		IPAddress: "192.168.1.1",
		OpenPorts: []PortResult{
			{Port: 80, IsOpen: true, Banner: "HTTP/1.0 200 OK", Service: "HTTP", ResponseTime: 12 * time.Millisecond},
			{Port: 443, IsOpen: true, Banner: "No service information received", Service: "HTTPS", ResponseTime: 3 * time.Millisecond},
		},
	}
}

func TestScanReport_JSONLayout(t *testing.T) {
	data, err := json.Marshal(sampleReport())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if doc["hostname"] != "router.lan" || doc["ip_address"] != "192.168.1.1" {
		t.Fatalf("unexpected header fields: %v", doc)
	}
	ports, ok := doc["open_ports"].([]interface{})
	if !ok || len(ports) != 2 {
		t.Fatalf("open_ports = %v", doc["open_ports"])
	}
	first := ports[0].(map[string]interface{})
	for _, key := range []string{"port", "is_open", "service_banner", "response_time_ms"} {
		if _, ok := first[key]; !ok {
			t.Fatalf("port entry missing %q: %v", key, first)
		}
	}
	if len(first) != 4 {
		t.Fatalf("port entry has extra fields: %v", first)
	}
	if first["response_time_ms"].(float64) != 12 {
		t.Fatalf("response_time_ms = %v", first["response_time_ms"])
	}

	var back ScanReport
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("decode back: %v", err)
	}
	if len(back.OpenPorts) != 2 || back.OpenPorts[1].Port != 443 || back.OpenPorts[0].ResponseTime != 12*time.Millisecond {
		t.Fatalf("decoded report = %+v", back)
	}
}

func TestScanReport_EmptyOpenPortsIsArray(t *testing.T) {
	data, err := json.Marshal(&ScanReport{Hostname: "Hostname not found", IPAddress: "10.0.0.1"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"open_ports":[]`) {
		t.Fatalf("expected empty array, got %s", data)
	}
}

func TestSortByPort(t *testing.T) {
	rep := &ScanReport{OpenPorts: []PortResult{{Port: 443}, {Port: 22}, {Port: 80}}}
	rep.SortByPort()
	got := rep.Ports()
	if got[0] != 22 || got[1] != 80 || got[2] != 443 {
		t.Fatalf("ports = %v", got)
	}
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"text": ModeText, "json": ModeJSON, " JSON ": ModeJSON} {
		got, err := ParseMode(in)
		if err != nil || got != want {
			t.Fatalf("ParseMode(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseMode("xml"); !errors.Is(err, ErrUnknownMode) {
		t.Fatalf("expected ErrUnknownMode, got %v", err)
	}
}

func TestScanFileName(t *testing.T) {
	if got := ScanFileName("10.0.0.5"); got != "port_scan_10.0.0.5.json" {
		t.Fatalf("ScanFileName = %q", got)
	}
}

func TestWriteAtomic_CreatesAndOverwrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "out.json")

	if err := WriteAtomic(path, []byte("first")); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := WriteAtomic(path, []byte("second")); err != nil {
		t.Fatalf("second write: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "second" {
		t.Fatalf("content = %q", data)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o644 {
		t.Fatalf("mode = %v", info.Mode().Perm())
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Fatalf("temp file left behind: %s", e.Name())
		}
	}
}

func TestWriteAtomic_MissingParentFails(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := WriteAtomic(filepath.Join(blocker, "out.json"), []byte("data")); err == nil {
		t.Fatal("expected error when parent is a file")
	}
}

func TestConsole_RenderScanText(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, t.TempDir(), zap.NewNop().Sugar())

	if err := c.RenderScan(sampleReport(), ModeText); err != nil {
		t.Fatalf("RenderScan: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"Hostname: router.lan",
		"[✓] Port 80 open (response: 12 ms) - Service: HTTP/1.0 200 OK [HTTP]",
		"[✓] Port 443 open (response: 3 ms) - Service: No service information received [HTTPS]",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestConsole_RenderScanJSON(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	c := NewConsole(&buf, dir, zap.NewNop().Sugar())

	if err := c.RenderScan(sampleReport(), ModeJSON); err != nil {
		t.Fatalf("RenderScan: %v", err)
	}
	path := filepath.Join(dir, "port_scan_192.168.1.1.json")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if !strings.Contains(string(data), "\n  \"hostname\": \"router.lan\"") {
		t.Fatalf("expected two-space indented JSON, got:\n%s", data)
	}
	if !strings.Contains(buf.String(), path) {
		t.Fatalf("success line does not name the file: %q", buf.String())
	}
}

func TestConsole_RenderScanJSONWriteFailure(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	c := NewConsole(&buf, blocker, zap.NewNop().Sugar())

	if err := c.RenderScan(sampleReport(), ModeJSON); err == nil {
		t.Fatal("expected write error")
	}
	if !strings.Contains(buf.String(), "Error while writing JSON file") {
		t.Fatalf("error not printed: %q", buf.String())
	}
}

func TestConsole_RenderInspection(t *testing.T) {
	title := "Example Domain"
	res := &inspector.Result{
		URL:            "https://example.com",
		IPAddresses:    []string{"93.184.216.34"},
		ResponseTimeMS: 42,
		HTTPStatus:     200,
		ContentType:    "text/html",
		ContentLength:  1256,
		Server:         "ECS",
		PoweredBy:      "Unknown",
		PageTitle:      &title,
		Technologies:   []string{"React"},
		SecurityHeaders: inspector.SecurityHeaders{
			HSTS: true,
		},
	}

	var buf bytes.Buffer
	c := NewConsole(&buf, t.TempDir(), zap.NewNop().Sugar())
	if err := c.RenderInspection(res, ModeText); err != nil {
		t.Fatalf("RenderInspection: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"--- General ---",
		"https://example.com",
		"42 ms",
		"Example Domain",
		"Meta Description:    Not found",
		"1256 bytes",
		"Technologies:        React",
		"HSTS (Strict-Transport-Security): Enabled",
		"CSP (Content-Security-Policy): Disabled",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}

	dir := t.TempDir()
	c = NewConsole(&buf, dir, zap.NewNop().Sugar())
	if err := c.RenderInspection(res, ModeJSON); err != nil {
		t.Fatalf("RenderInspection json: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, InspectionFileName))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var back inspector.Result
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if back.HTTPStatus != 200 || back.MetaDescription != nil || *back.PageTitle != title {
		t.Fatalf("decoded = %+v", back)
	}
}

func TestConsole_UnknownMode(t *testing.T) {
	c := NewConsole(&bytes.Buffer{}, t.TempDir(), zap.NewNop().Sugar())
	if err := c.RenderScan(sampleReport(), Mode("xml")); !errors.Is(err, ErrUnknownMode) {
		t.Fatalf("expected ErrUnknownMode, got %v", err)
	}
}
