package services

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"
)

// ReportState exposes whether the report service has produced anything yet
type ReportState interface {
	HasReport() bool
}

// ScheduleState exposes the scheduler's state
type ScheduleState interface {
	Running() bool
	Next() map[string]time.Time
}

// ClientCounter exposes the number of connected websocket clients
type ClientCounter interface {
	ClientCount() int
}

// BuildInfo identifies the running binary
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// HealthService provides health check functionality
type HealthService struct {
	build     BuildInfo
	reports   ReportState
	schedule  ScheduleState
	clients   ClientCounter
	startTime time.Time
	logger    *slog.Logger
}

// HealthStatus represents the health status response
type HealthStatus struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version"`
	Runtime   map[string]interface{} `json:"runtime,omitempty"`
	Services  map[string]interface{} `json:"services,omitempty"`
}

// ServiceHealth represents individual service health
type ServiceHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Uptime  string `json:"uptime,omitempty"`
}

// NewHealthService creates a new health service. Nil collaborators are reported as disabled.
func NewHealthService(build BuildInfo, reports ReportState, schedule ScheduleState, clients ClientCounter, logger *slog.Logger) *HealthService {
	if logger == nil {
		logger = slog.Default()
	}
	if build.Version == "" {
		build.Version = "dev"
	}

	logger.Info("HealthService initialized",
		slog.String("version", build.Version),
		slog.String("commit", build.Commit),
		slog.String("build_time", build.BuildTime))

	return &HealthService{
		build:     build,
		reports:   reports,
		schedule:  schedule,
		clients:   clients,
		startTime: time.Now(),
		logger:    logger,
	}
}

// HealthCheck returns overall health status
func (hs *HealthService) HealthCheck(ctx context.Context) HealthStatus {
	hs.logger.DebugContext(ctx, "health check",
		slog.String("uptime", time.Since(hs.startTime).String()))

	status := hs.ReadinessCheck(ctx)
	if status.Status == "ready" {
		status.Status = "ok"
	} else {
		status.Status = "degraded"
	}
	status.Runtime = hs.runtimeInfo()
	return status
}

// ReadinessCheck reports each collaborator. A service without a first report
// is still ready: the HTTP surface answers 404 until the first run completes.
func (hs *HealthService) ReadinessCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:    "ready",
		Timestamp: time.Now(),
		Version:   hs.build.Version,
		Services: map[string]interface{}{
			"report":    hs.checkReport(),
			"scheduler": hs.checkScheduler(),
			"websocket": hs.checkWebSocket(),
		},
	}

	for _, service := range status.Services {
		if sh, ok := service.(ServiceHealth); ok && sh.Status == "not_ready" {
			status.Status = "not_ready"
			break
		}
	}

	return status
}

// LivenessCheck returns liveness status
func (hs *HealthService) LivenessCheck(ctx context.Context) HealthStatus {
	return HealthStatus{
		Status:    "alive",
		Timestamp: time.Now(),
		Version:   hs.build.Version,
		Runtime:   hs.runtimeInfo(),
	}
}

// Version returns version information
func (hs *HealthService) Version() map[string]interface{} {
	result := map[string]interface{}{
		"version":      hs.build.Version,
		"go_version":   runtime.Version(),
		"os":           runtime.GOOS,
		"arch":         runtime.GOARCH,
		"uptime":       time.Since(hs.startTime).Seconds(),
		"start_time":   hs.startTime.Format(time.RFC3339),
		"current_time": time.Now().Format(time.RFC3339),
	}

	if hs.build.Commit != "" {
		result["commit"] = hs.build.Commit
	}
	if hs.build.BuildTime != "" {
		result["build_time"] = hs.build.BuildTime
	}

	return result
}

func (hs *HealthService) runtimeInfo() map[string]interface{} {
	return map[string]interface{}{
		"uptime":     time.Since(hs.startTime).Seconds(),
		"go_version": runtime.Version(),
		"goroutines": runtime.NumGoroutine(),
	}
}

func (hs *HealthService) checkReport() ServiceHealth {
	if hs.reports == nil {
		return ServiceHealth{Status: "not_ready", Message: "report service not initialized"}
	}
	if !hs.reports.HasReport() {
		return ServiceHealth{Status: "ready", Message: "no report generated yet"}
	}
	return ServiceHealth{Status: "ready", Message: "latest report available"}
}

func (hs *HealthService) checkScheduler() ServiceHealth {
	if hs.schedule == nil {
		return ServiceHealth{Status: "disabled"}
	}
	if !hs.schedule.Running() {
		return ServiceHealth{Status: "not_ready", Message: "scheduler not running"}
	}

	var next time.Time
	for _, t := range hs.schedule.Next() {
		if next.IsZero() || (!t.IsZero() && t.Before(next)) {
			next = t
		}
	}
	msg := "scheduler running"
	if !next.IsZero() {
		msg = fmt.Sprintf("next run %s", next.UTC().Format(time.RFC3339))
	}
	return ServiceHealth{Status: "ready", Message: msg, Uptime: time.Since(hs.startTime).String()}
}

func (hs *HealthService) checkWebSocket() ServiceHealth {
	if hs.clients == nil {
		return ServiceHealth{Status: "disabled"}
	}
	return ServiceHealth{
		Status:  "ready",
		Message: fmt.Sprintf("%d clients connected", hs.clients.ClientCount()),
		Uptime:  time.Since(hs.startTime).String(),
	}
}
