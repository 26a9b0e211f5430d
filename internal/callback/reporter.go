// Package callback posts progress and completion of API scans to caller supplied URLs.
package callback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const collectorName = "netinspect"

// Completion statuses.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Reporter sends progress and completion callbacks for one scan.
type Reporter struct {
	scanID      string
	progressURL string
	completeURL string
	apiKey      string
	logger      *zap.SugaredLogger
	client      *http.Client

	sequence       int64 // monotonic, lets the receiver drop stale updates
	discoveryCount int64
	done           int64
	total          int64

	mu    sync.Mutex
	phase string
}

// Progress represents a progress update.
type Progress struct {
	ScanID         string `json:"scan_id"`
	Collector      string `json:"collector"`
	Sequence       int    `json:"sequence"`
	Phase          string `json:"phase,omitempty"`
	Progress       int    `json:"progress"`
	DiscoveryCount int    `json:"discovery_count"`
	Message        string `json:"message,omitempty"`
	Timestamp      string `json:"timestamp"`
}

// Completion represents a scan completion.
type Completion struct {
	ScanID         string `json:"scan_id"`
	Collector      string `json:"collector"`
	Status         string `json:"status"`
	DiscoveryCount int    `json:"discovery_count"`
	ErrorMessage   string `json:"error_message,omitempty"`
	Timestamp      string `json:"timestamp"`
}

// NewReporter creates a callback reporter. Either URL may be empty to skip that callback.
func NewReporter(scanID, progressURL, completeURL, apiKey string, logger *zap.SugaredLogger) *Reporter {
	return &Reporter{
		scanID:      scanID,
		progressURL: progressURL,
		completeURL: completeURL,
		apiKey:      apiKey,
		logger:      logger,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// SetPhase records the current phase and reports it immediately.
func (r *Reporter) SetPhase(phase string) {
	r.mu.Lock()
	r.phase = phase
	r.mu.Unlock()
	_ = r.ReportProgress(phase, r.Percent(), "")
}

// SetProgress records how many of total ports have been probed.
func (r *Reporter) SetProgress(done, total int) {
	atomic.StoreInt64(&r.done, int64(done))
	atomic.StoreInt64(&r.total, int64(total))
}

// Percent returns the probed share of the range, 0-100.
func (r *Reporter) Percent() int {
	total := atomic.LoadInt64(&r.total)
	if total == 0 {
		return 0
	}
	return int(atomic.LoadInt64(&r.done) * 100 / total)
}

// Run reports progress every interval until ctx is done.
func (r *Reporter) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.mu.Lock()
			phase := r.phase
			r.mu.Unlock()
			_ = r.ReportProgress(phase, r.Percent(),
				fmt.Sprintf("%d/%d ports probed", atomic.LoadInt64(&r.done), atomic.LoadInt64(&r.total)))
		}
	}
}

// ReportProgress sends a progress update.
func (r *Reporter) ReportProgress(phase string, progress int, message string) error {
	if r.progressURL == "" {
		return nil
	}
	seq := atomic.AddInt64(&r.sequence, 1)

	payload := Progress{
		ScanID:         r.scanID,
		Collector:      collectorName,
		Sequence:       int(seq),
		Phase:          phase,
		Progress:       progress,
		DiscoveryCount: r.DiscoveryCount(),
		Message:        message,
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
	}
	return r.send(r.progressURL, payload)
}

// ReportComplete sends a completion callback.
func (r *Reporter) ReportComplete(status string, errorMsg string) error {
	if r.completeURL == "" {
		return nil
	}
	payload := Completion{
		ScanID:         r.scanID,
		Collector:      collectorName,
		Status:         status,
		DiscoveryCount: r.DiscoveryCount(),
		ErrorMessage:   errorMsg,
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
	}
	return r.send(r.completeURL, payload)
}

// IncrementDiscoveryCount counts one more open port.
func (r *Reporter) IncrementDiscoveryCount() {
	atomic.AddInt64(&r.discoveryCount, 1)
}

// DiscoveryCount returns the number of open ports reported so far.
func (r *Reporter) DiscoveryCount() int {
	return int(atomic.LoadInt64(&r.discoveryCount))
}

func (r *Reporter) send(url string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("X-Internal-API-Key", r.apiKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Warnw("Callback failed", "scan_id", r.scanID, "url", url, "error", err)
		return fmt.Errorf("callback request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		r.logger.Warnw("Callback returned error", "scan_id", r.scanID, "url", url, "status", resp.StatusCode)
		return fmt.Errorf("callback returned status %d", resp.StatusCode)
	}

	r.logger.Debugw("Callback sent", "url", url, "status", resp.StatusCode)
	return nil
}
