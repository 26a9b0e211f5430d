package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/netinspect/netinspect/internal/callback"
	"github.com/netinspect/netinspect/internal/report"
	"github.com/netinspect/netinspect/internal/scanner"
	"github.com/netinspect/netinspect/internal/store"
)

// startScanHandler records a scan and runs it in the background.
func (s *Server) startScanHandler(c *gin.Context) {
	var req StartScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := scanner.ValidateIP(req.IP); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec := &store.Record{
		ID:     uuid.New().String(),
		Kind:   store.KindScan,
		Target: req.IP,
		Status: store.StatusRunning,
	}
	if err := s.store.Save(c.Request.Context(), rec); err != nil {
		s.logger.Errorw("Failed to save scan record", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record scan"})
		return
	}

	s.wg.Add(1)
	go s.runScan(rec, req)

	s.logger.Infow("Background scan started", "scan_id", rec.ID, "ip", req.IP, "ports", req.Ports)
	c.JSON(http.StatusAccepted, StartScanResponse{ScanID: rec.ID, Status: rec.Status})
}

func (s *Server) runScan(rec *store.Record, req StartScanRequest) {
	defer s.wg.Done()

	reporter := callback.NewReporter(rec.ID, req.ProgressURL, req.CompleteURL, s.callback.APIKey, s.logger)

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	go reporter.Run(ctx, time.Duration(s.callback.Interval)*time.Second)

	rep, err := s.scanner.Scan(ctx, scanner.Request{
		ID:         rec.ID,
		IP:         req.IP,
		Ports:      req.Ports,
		OnPhase:    func(p scanner.Phase) { reporter.SetPhase(string(p)) },
		OnProgress: reporter.SetProgress,
		OnOpen:     func(report.PortResult) { reporter.IncrementDiscoveryCount() },
	})

	status := store.StatusCompleted
	switch {
	case errors.Is(err, context.Canceled):
		status = store.StatusCancelled
	case err != nil:
		status = store.StatusFailed
	}

	rec.Status = status
	if err != nil {
		rec.Error = err.Error()
	}
	if rep != nil {
		if data, mErr := json.Marshal(rep); mErr == nil {
			rec.Result = data
		} else {
			s.logger.Errorw("Failed to encode scan report", "scan_id", rec.ID, "error", mErr)
		}
	}

	// The server context may already be cancelled.
	saveCtx, saveCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer saveCancel()
	if sErr := s.store.Save(saveCtx, rec); sErr != nil {
		s.logger.Errorw("Failed to save scan record", "scan_id", rec.ID, "error", sErr)
	}

	_ = reporter.ReportComplete(status, rec.Error)
	s.logger.Infow("Background scan finished",
		"scan_id", rec.ID,
		"status", status,
		"open_ports", reporter.DiscoveryCount(),
	)
}
