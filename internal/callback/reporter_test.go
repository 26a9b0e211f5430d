package callback

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

type receiver struct {
	mu          sync.Mutex
	progress    []Progress
	completions []Completion
	apiKeys     []string
	status      int
}

func (rc *receiver) server(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc.mu.Lock()
		defer rc.mu.Unlock()
		rc.apiKeys = append(rc.apiKeys, r.Header.Get("X-Internal-API-Key"))

		switch r.URL.Path {
		case "/progress":
			var p Progress
			_ = json.NewDecoder(r.Body).Decode(&p)
			rc.progress = append(rc.progress, p)
		case "/complete":
			var c Completion
			_ = json.NewDecoder(r.Body).Decode(&c)
			rc.completions = append(rc.completions, c)
		}
		if rc.status != 0 {
			w.WriteHeader(rc.status)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func (rc *receiver) snapshot() ([]Progress, []Completion) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return append([]Progress(nil), rc.progress...), append([]Completion(nil), rc.completions...)
}

func TestReporter_ProgressAndComplete(t *testing.T) {
	rc := &receiver{}
	srv := rc.server(t)
	r := NewReporter("scan-9", srv.URL+"/progress", srv.URL+"/complete", "secret", zap.NewNop().Sugar())

	r.SetProgress(50, 200)
	r.IncrementDiscoveryCount()
	r.SetPhase("port_scanning")
	r.IncrementDiscoveryCount()
	if err := r.ReportComplete(StatusCompleted, ""); err != nil {
		t.Fatalf("ReportComplete: %v", err)
	}

	progress, completions := rc.snapshot()
	if len(progress) != 1 || len(completions) != 1 {
		t.Fatalf("progress=%d completions=%d", len(progress), len(completions))
	}
	p := progress[0]
	if p.ScanID != "scan-9" || p.Collector != "netinspect" || p.Phase != "port_scanning" ||
		p.Progress != 25 || p.DiscoveryCount != 1 || p.Sequence != 1 {
		t.Fatalf("progress = %+v", p)
	}
	if _, err := time.Parse(time.RFC3339, p.Timestamp); err != nil {
		t.Fatalf("timestamp %q: %v", p.Timestamp, err)
	}
	if c := completions[0]; c.Status != StatusCompleted || c.DiscoveryCount != 2 {
		t.Fatalf("completion = %+v", c)
	}
	for _, k := range rc.apiKeys {
		if k != "secret" {
			t.Fatalf("api key header = %q", k)
		}
	}
}

func TestReporter_SequenceIsMonotonic(t *testing.T) {
	rc := &receiver{}
	srv := rc.server(t)
	r := NewReporter("s", srv.URL+"/progress", "", "", zap.NewNop().Sugar())

	for i := 0; i < 5; i++ {
		_ = r.ReportProgress("port_scanning", i*10, "")
	}
	progress, _ := rc.snapshot()
	for i, p := range progress {
		if p.Sequence != i+1 {
			t.Fatalf("sequence %d at position %d", p.Sequence, i)
		}
	}
}

func TestReporter_Run(t *testing.T) {
	rc := &receiver{}
	srv := rc.server(t)
	r := NewReporter("s", srv.URL+"/progress", "", "", zap.NewNop().Sugar())
	r.SetProgress(1, 4)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx, 20*time.Millisecond)
		close(done)
	}()
	time.Sleep(110 * time.Millisecond)
	cancel()
	<-done

	progress, _ := rc.snapshot()
	if len(progress) < 2 {
		t.Fatalf("expected periodic updates, got %d", len(progress))
	}
	if progress[0].Progress != 25 || progress[0].Message != "1/4 ports probed" {
		t.Fatalf("progress = %+v", progress[0])
	}
}

func TestReporter_ErrorStatus(t *testing.T) {
	rc := &receiver{status: http.StatusInternalServerError}
	srv := rc.server(t)
	r := NewReporter("s", "", srv.URL+"/complete", "", zap.NewNop().Sugar())

	if err := r.ReportComplete(StatusFailed, "boom"); err == nil {
		t.Fatal("expected error for 500 response")
	}
}

func TestReporter_EmptyURLsAreSkipped(t *testing.T) {
	r := NewReporter("s", "", "", "", zap.NewNop().Sugar())
	if err := r.ReportProgress("validating", 0, ""); err != nil {
		t.Fatalf("ReportProgress: %v", err)
	}
	if err := r.ReportComplete(StatusCompleted, ""); err != nil {
		t.Fatalf("ReportComplete: %v", err)
	}
	if r.Percent() != 0 {
		t.Fatalf("percent = %d", r.Percent())
	}
}
