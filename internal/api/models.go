package api

import "github.com/netinspect/netinspect/internal/report"

// ScanTargetRequest is the body of a synchronous scan.
type ScanTargetRequest struct {
	IP    string `json:"ip" binding:"required"`
	Ports string `json:"ports"`
}

// StartScanRequest is the body of a background scan. Progress and completion
// are posted to the optional callback URLs.
type StartScanRequest struct {
	IP          string `json:"ip" binding:"required"`
	Ports       string `json:"ports"`
	ProgressURL string `json:"progress_url" binding:"omitempty,url"`
	CompleteURL string `json:"complete_url" binding:"omitempty,url"`
}

// InspectRequest is the body of a URL inspection.
type InspectRequest struct {
	URL string `json:"url" binding:"required"`
}

// ScanResponse carries a finished scan.
type ScanResponse struct {
	ScanID string             `json:"scan_id"`
	Report *report.ScanReport `json:"report"`
}

// StartScanResponse acknowledges a background scan.
type StartScanResponse struct {
	ScanID string `json:"scan_id"`
	Status string `json:"status"`
}
